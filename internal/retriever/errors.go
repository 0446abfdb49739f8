package retriever

import (
	"errors"
	"fmt"

	"github.com/kacper-wojtaszczyk/weathermart/internal/model"
)

// SourceUnavailableError means the upstream system could not be reached or
// answered with a transient failure. The caller may retry.
type SourceUnavailableError struct {
	Source model.Source
	Err    error
}

func (e *SourceUnavailableError) Error() string {
	return fmt.Sprintf("source %q unavailable: %v", e.Source, e.Err)
}

func (e *SourceUnavailableError) Unwrap() error {
	return e.Err
}

// DataNotFoundError means the upstream confirmed the absence of every
// requested day for the unit. It is permanent and must not be retried.
type DataNotFoundError struct {
	Source   model.Source
	Variable model.CanonicalVariable
	Range    model.DateRange
}

func (e *DataNotFoundError) Error() string {
	return fmt.Sprintf("no data for %s/%s over %s", e.Source, e.Variable, e.Range)
}

// InvalidParameterError means the request violates the variant's
// preconditions, e.g. a missing required spatial bound or a licensing tier
// above the allowed maximum.
type InvalidParameterError struct {
	Name   string
	Reason string
}

func (e *InvalidParameterError) Error() string {
	return fmt.Sprintf("invalid parameter %q: %s", e.Name, e.Reason)
}

// UnknownSourceError means a retriever was asked about a source it does not
// declare. Reaching it indicates a dispatch bug, not a user error.
type UnknownSourceError struct {
	Source model.Source
}

func (e *UnknownSourceError) Error() string {
	return fmt.Sprintf("source %q is not served by this retriever", e.Source)
}

// IsTransient reports whether the error is worth retrying.
func IsTransient(err error) bool {
	var unavailable *SourceUnavailableError
	return errors.As(err, &unavailable)
}

// IsNotFound reports whether the error is a confirmed permanent absence.
func IsNotFound(err error) bool {
	var notFound *DataNotFoundError
	return errors.As(err, &notFound)
}
