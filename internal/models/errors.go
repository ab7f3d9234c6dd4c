package models

import "fmt"

// RunWide tags errors that are not scoped to a single application.
const RunWide = "*"

// ErrorKind classifies a DetectionError.
type ErrorKind string

const (
	ErrorKindTimedOut    ErrorKind = "timed_out"
	ErrorKindNotFound    ErrorKind = "not_found"
	ErrorKindNonZeroExit ErrorKind = "non_zero_exit"
	ErrorKindParse       ErrorKind = "parse"
	ErrorKindPersistence ErrorKind = "persistence"
	ErrorKindCorpus      ErrorKind = "corpus"
	ErrorKindCatalog     ErrorKind = "catalog"
	ErrorKindCancelled   ErrorKind = "cancelled"
	ErrorKindInternal    ErrorKind = "internal"
)

// DetectionError is a failure recorded in a RunResult. It is a value, never returned as error
// from Detect.
type DetectionError struct {
	ApplicationKey string    `json:"application_key"`
	Kind           ErrorKind `json:"kind"`
	Message        string    `json:"message"`
	Command        string    `json:"command,omitempty"`
}

func (e DetectionError) Error() string {
	if e.Command == "" {
		return fmt.Sprintf("%s: %s: %s", e.ApplicationKey, e.Kind, e.Message)
	}
	return fmt.Sprintf("%s: %s: %s (%s)", e.ApplicationKey, e.Kind, e.Message, e.Command)
}

// IsRunWide reports whether the error applies to the whole run.
func (e DetectionError) IsRunWide() bool {
	return e.ApplicationKey == RunWide
}
