package publish

import (
	"errors"
	"time"
)

// ErrVerificationInconclusive marks a submission with no success or failure signal.
var ErrVerificationInconclusive = errors.New("publish verification inconclusive")

// Policy decides what a stage failure does to the rest of the pipeline.
type Policy int

const (
	// Required failures abort the publish attempt
	Required Policy = iota

	// Optional failures are logged and the next stage runs
	Optional
)

func (p Policy) String() string {
	if p == Required {
		return "required"
	}
	return "optional"
}

// Verification is what the page said after submission.
type Verification int

const (
	VerificationSkipped Verification = iota
	VerificationVerified
	VerificationInconclusive
	VerificationFailed
)

func (v Verification) String() string {
	switch v {
	case VerificationVerified:
		return "verified"
	case VerificationInconclusive:
		return "unverified"
	case VerificationFailed:
		return "failed"
	default:
		return "skipped"
	}
}

// ImageResult is the upload result of one image.
type ImageResult struct {
	// Source is the local path, or "random #n" for downloaded images
	Source    string
	Succeeded bool
	Err       error
}

// UploadOutcome summarizes the media stage. A partial failure never aborts the pipeline.
type UploadOutcome struct {
	Results      []ImageResult
	AnySucceeded bool

	// NoFileInput is set when no file input could be found and no upload was tried
	NoFileInput bool
}

func (u *UploadOutcome) record(source string, err error) {
	u.Results = append(u.Results, ImageResult{Source: source, Succeeded: err == nil, Err: err})
	if err == nil {
		u.AnySucceeded = true
	}
}

// StageResult reports one stage run.
type StageResult struct {
	Name     string
	Policy   Policy
	Err      error
	Duration time.Duration
}

// Outcome is the result of one publish attempt.
type Outcome struct {
	Title string

	// Completed is true when every stage ran; false means a required stage failed
	Completed bool

	// Submitted is true when the publish control was clicked
	Submitted bool

	Upload       UploadOutcome
	Verification Verification
	Stages       []StageResult

	// Err is the failure that aborted the attempt
	Err error
}

// Published reports whether the post was submitted and nothing said it failed.
func (o Outcome) Published() bool {
	return o.Completed && o.Submitted && o.Verification != VerificationFailed
}

// StageErr returns the error recorded for the named stage.
func (o Outcome) StageErr(name string) error {
	for _, s := range o.Stages {
		if s.Name == name {
			return s.Err
		}
	}
	return nil
}
