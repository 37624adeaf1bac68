package models

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// JudgementMessage is the SQS message body announcing a judgement PDF
type JudgementMessage struct {
	JudgementPdfLink string `json:"judgementPdfLink"`
}

// JobRequest is the payload posted to the DS API to start an OCR job
type JobRequest struct {
	InputFilePath  string `json:"input_file_path"`  // s3://{input bucket}/{prefix}/{file}
	OutputFilePath string `json:"output_file_path"` // s3://{output bucket}/{prefix}/{file}
}

// JobResponse is the DS API reply. Only job_id is read.
type JobResponse struct {
	JobID JobID `json:"job_id"`
}

// JobID accepts either a JSON string or a JSON number
type JobID string

func (j *JobID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*j = ""
		return nil
	}

	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*j = JobID(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("job_id must be a string or number: %w", err)
	}
	*j = JobID(n.String())
	return nil
}

func (j JobID) String() string {
	return string(j)
}
