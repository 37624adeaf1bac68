// Package judgement derives storage names and record identifiers from
// judgement PDF links.
//
// Links are expected to end in a file name of the form
// {diary}_{year}_..._{dd-Mon-yyyy}.pdf, for example
// https://host/pdfs/12345_2019_Judgement_05-Mar-2021.pdf.
package judgement

import (
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/savaki/judgement-ingest/internal/errors"
)

const (
	pdfExt = ".pdf"

	// sourceDateLayout matches dates such as 05-Mar-2021 or 5-mar-2021
	sourceDateLayout = "2-Jan-2006"
	recordDateLayout = "2006-01-02"
)

// baseName returns the last element of the URL path
func baseName(rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", errors.ErrInvalidJudgementURL, rawURL, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("%w: %s, expected absolute URL", errors.ErrInvalidJudgementURL, rawURL)
	}

	name := path.Base(u.Path)
	if name == "." || name == "/" || name == "" {
		return "", fmt.Errorf("%w: %s has no file name", errors.ErrInvalidJudgementURL, rawURL)
	}
	return name, nil
}

// FileName returns the name the PDF is stored under, always ending in .pdf
func FileName(rawURL string) (string, error) {
	name, err := baseName(rawURL)
	if err != nil {
		return "", err
	}
	if !strings.HasSuffix(name, pdfExt) {
		name += pdfExt
	}
	return name, nil
}

// UniqueID builds the record key {diary}_{yyyy-mm-dd} from the link's file name.
// The diary number is the first two underscore separated fields joined together
// and the date is the last field with its four character extension removed.
func UniqueID(rawURL string) (string, error) {
	name, err := baseName(rawURL)
	if err != nil {
		return "", err
	}

	parts := strings.Split(name, "_")
	if len(parts) < 2 {
		return "", fmt.Errorf("%w: %s, expected {diary}_{year}_..._{dd-Mon-yyyy}.pdf", errors.ErrInvalidFileName, name)
	}

	last := parts[len(parts)-1]
	if len(last) <= len(pdfExt) {
		return "", fmt.Errorf("%w: %s, missing date segment", errors.ErrInvalidFileName, name)
	}

	date, err := FormatDate(last[:len(last)-len(pdfExt)])
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", errors.ErrInvalidFileName, name, err)
	}

	diary := parts[0] + parts[1]
	return fmt.Sprintf("%s_%s", diary, date), nil
}

// FormatDate converts dd-Mon-yyyy to yyyy-mm-dd
func FormatDate(s string) (string, error) {
	t, err := time.Parse(sourceDateLayout, s)
	if err != nil {
		return "", fmt.Errorf("invalid date %q: %w", s, err)
	}
	return t.Format(recordDateLayout), nil
}

// ObjectKey joins the key prefix and file name
func ObjectKey(prefix, fileName string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return fileName
	}
	return prefix + "/" + fileName
}

// S3URI formats an s3:// URI for the bucket and key
func S3URI(bucket, key string) string {
	return fmt.Sprintf("s3://%s/%s", bucket, key)
}
