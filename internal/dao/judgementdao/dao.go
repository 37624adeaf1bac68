package judgementdao

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/savaki/ddb/v2"
)

// DefaultTableName is used when no table is configured
const DefaultTableName = "judgements-table"

// Status represents where a judgement is in the OCR pipeline
type Status string

const (
	// StatusPendingOCR is set once the PDF is stored and a DS API job has been accepted
	StatusPendingOCR Status = "pending ocr"
)

func (s Status) String() string {
	return string(s)
}

// ID is the judgement unique id in format {diary}_{yyyy-mm-dd}
// Example: 123452019_2021-03-05
type ID string

func (id ID) String() string {
	return string(id)
}

// Record represents a judgement job record in DynamoDB
type Record struct {
	UniqueID   ID     `ddb:"hash" dynamodbav:"uniqueId"`
	Status     Status `dynamodbav:"status,omitempty"`
	JobID      string `dynamodbav:"jobId,omitempty"`      // DS API job id
	SourceURL  string `dynamodbav:"sourceUrl,omitempty"`  // Link the PDF was fetched from
	InputPath  string `dynamodbav:"inputPath,omitempty"`  // s3:// URI of the stored PDF
	OutputPath string `dynamodbav:"outputPath,omitempty"` // s3:// URI the DS API writes to
	RequestID  string `dynamodbav:"requestId,omitempty"`  // KSUID sent to the DS API as X-Request-Id
	UpdatedAt  int64  `dynamodbav:"updatedAt,omitempty"`  // Unix epoch timestamp of last update
}

// UpdateJobInput contains the fields written when a DS API job is accepted
type UpdateJobInput struct {
	ID         ID
	Status     Status
	JobID      string
	SourceURL  string
	InputPath  string
	OutputPath string
	RequestID  string
}

// DAO provides data access operations for judgement records
type DAO struct {
	table *ddb.Table
}

// New creates a new DAO instance
func New(client *dynamodb.Client, tableName string) *DAO {
	if tableName == "" {
		tableName = DefaultTableName
	}
	db := ddb.New(client)
	table := db.MustTable(tableName, &Record{})
	return &DAO{
		table: table,
	}
}

// Put writes the full record, replacing any existing item
func (d *DAO) Put(ctx context.Context, record Record) error {
	if record.UniqueID == "" {
		return fmt.Errorf("unique id is required")
	}
	if record.UpdatedAt == 0 {
		record.UpdatedAt = time.Now().Unix()
	}

	if err := d.table.Put(&record).RunWithContext(ctx); err != nil {
		return fmt.Errorf("failed to put judgement record: %w", err)
	}
	return nil
}

// Find retrieves a judgement record by id
// Returns nil if not found
func (d *DAO) Find(ctx context.Context, id ID) (*Record, error) {
	var record Record

	err := d.table.Get(id.String()).
		ConsistentRead(true).
		ScanWithContext(ctx, &record)
	if err != nil {
		errStr := err.Error()
		if strings.Contains(errStr, "item not found") || strings.Contains(errStr, "ItemNotFound") {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find judgement record: %w", err)
	}

	if record.UniqueID == "" {
		return nil, nil
	}

	return &record, nil
}

// UpdateJob records the DS API job for a judgement.
// The item is created when it does not exist yet.
func (d *DAO) UpdateJob(ctx context.Context, input UpdateJobInput) error {
	if input.ID == "" {
		return fmt.Errorf("unique id is required")
	}
	if input.Status == "" {
		return fmt.Errorf("status is required")
	}

	update := d.table.Update(input.ID.String()).
		Set("#Status = ?", input.Status.String()).
		Set("#JobID = ?", input.JobID).
		Set("#UpdatedAt = ?", time.Now().Unix())

	if input.SourceURL != "" {
		update = update.Set("#SourceURL = ?", input.SourceURL)
	}
	if input.InputPath != "" {
		update = update.Set("#InputPath = ?", input.InputPath)
	}
	if input.OutputPath != "" {
		update = update.Set("#OutputPath = ?", input.OutputPath)
	}
	if input.RequestID != "" {
		update = update.Set("#RequestID = ?", input.RequestID)
	}

	if err := update.RunWithContext(ctx); err != nil {
		return fmt.Errorf("failed to update judgement %s: %w", input.ID, err)
	}
	return nil
}

// Delete removes a judgement record by id
func (d *DAO) Delete(ctx context.Context, id ID) error {
	if err := d.table.Delete(id.String()).RunWithContext(ctx); err != nil {
		return fmt.Errorf("failed to delete judgement record: %w", err)
	}
	return nil
}
