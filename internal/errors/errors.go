package errors

import "errors"

var (
	ErrMissingJudgementLink = errors.New("message has no judgementPdfLink")
	ErrInvalidJudgementURL  = errors.New("invalid judgement URL")
	ErrInvalidFileName      = errors.New("invalid judgement file name")
	ErrMissingJobID         = errors.New("DS API response has no job_id")
	ErrUnexpectedStatus     = errors.New("unexpected HTTP status")
	ErrPDFTooLarge          = errors.New("judgement PDF too large")
	ErrImageNotFound        = errors.New("image not found in ECR repository")
	ErrInvalidImageTag      = errors.New("invalid image tag")
)
