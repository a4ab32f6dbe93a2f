package entities

import (
	"errors"
	"strings"
)

// WriteMode selects how the record store is opened.
type WriteMode string

const (
	WriteTruncate WriteMode = "truncate" // replace existing content
	WriteAppend   WriteMode = "append"   // keep existing content, add lines
)

// ErrInvalidRunRequest is returned when a RunRequest is missing mandatory input.
var ErrInvalidRunRequest = errors.New("invalid run request")

// RunRequest holds the input of one pipeline run. It is not modified once the run starts.
type RunRequest struct {
	Subject          string    // required topical category
	Topic            string    // optional, defaults to Subject
	Count            int       // number of items requested, > 0
	ReferenceText    string    // optional grounding text supplied inline
	ReferencePath    string    // optional file to extract grounding text from
	SkipVerification bool      // skip the second model pass
	OutputPath       string    // record store location; empty keeps items in memory only
	WriteMode        WriteMode // truncate (default) or append
	APIKey           string    // credential for the completion endpoint
}

// EffectiveTopic returns the topic, falling back to the subject.
func (r RunRequest) EffectiveTopic() string {
	if strings.TrimSpace(r.Topic) == "" {
		return r.Subject
	}
	return r.Topic
}

// Validate checks the mandatory fields of the request.
func (r RunRequest) Validate() error {
	if strings.TrimSpace(r.Subject) == "" {
		return errors.Join(ErrInvalidRunRequest, errors.New("subject is required"))
	}
	if r.Count <= 0 {
		return errors.Join(ErrInvalidRunRequest, errors.New("count must be positive"))
	}
	return nil
}

// BatchFailure records a generation batch that produced nothing.
type BatchFailure struct {
	Batch int    `json:"batch"` // 1-based batch number
	Size  int    `json:"size"`  // items requested in the batch
	Error string `json:"error"` // failure description
}

// RunSummary reports the outcome of one run.
type RunSummary struct {
	Requested     int            `json:"requested"`      // items asked for
	Generated     int            `json:"generated"`      // items decoded from the model
	Rejected      int            `json:"rejected"`       // items failing structural checks before verification
	Excluded      int            `json:"excluded"`       // items dropped by the verifier
	Persisted     int            `json:"persisted"`      // lines written to the record store
	Verified      bool           `json:"verified"`       // whether the verifier pass succeeded
	Output        string         `json:"output"`         // record store location, empty when not written
	BatchFailures []BatchFailure `json:"batch_failures"` // batches skipped after retries
}
