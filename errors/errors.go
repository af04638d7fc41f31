package errors

import "fmt"

type ErrorCode int

const (
	InternalError ErrorCode = iota
	InvalidConfiguration
	UnknownQueryVariant
	MalformedContainer
	SchemaMismatch
	EmptySchema
	BadColumnFormat
	EmptyProjection
	EvaluationFailed
	RemoteCallFailure
	UnknownObject
	IndexNotSupported
)

func NewInvalidConfigurationError(msg string) SkyError {
	return NewSkyErrorf(InvalidConfiguration, "Invalid configuration: %s", msg)
}

func NewUnknownQueryVariantError(variant string) SkyError {
	return NewSkyErrorf(UnknownQueryVariant, "Unknown query variant: %s", variant)
}

func NewMalformedContainerError(msg string) SkyError {
	return NewSkyErrorf(MalformedContainer, "Malformed row container: %s", msg)
}

func NewSchemaMismatchError(msg string) SkyError {
	return NewSkyErrorf(SchemaMismatch, "Schema mismatch: %s", msg)
}

func NewEmptySchemaError() SkyError {
	return NewSkyErrorf(EmptySchema, "Schema string contains no columns")
}

func NewBadColumnFormatError(colStr string) SkyError {
	return NewSkyErrorf(BadColumnFormat, "Cannot parse column descriptor: %q", colStr)
}

func NewEmptyProjectionError(requested string) SkyError {
	return NewSkyErrorf(EmptyProjection, "Projection %q selects no columns", requested)
}

func NewEvaluationFailedError(oid string, msg string) SkyError {
	return NewSkyErrorf(EvaluationFailed, "Evaluation failed for object %s: %s", oid, msg)
}

func NewRemoteCallFailureError(oid string, cause error) SkyError {
	return NewSkyErrorf(RemoteCallFailure, "Storage call failed for object %s: %v", oid, cause)
}

func NewUnknownObjectError(oid string) SkyError {
	return NewSkyErrorf(UnknownObject, "Unknown object: %s", oid)
}

func NewIndexNotSupportedError(variant string) SkyError {
	return NewSkyErrorf(IndexNotSupported, "Query variant %s does not support an index", variant)
}

func NewSkyErrorf(errorCode ErrorCode, msgFormat string, args ...interface{}) SkyError {
	msg := fmt.Sprintf(fmt.Sprintf("SKY%04d - %s", errorCode, msgFormat), args...)
	return SkyError{Code: errorCode, Msg: msg}
}

func NewSkyError(errorCode ErrorCode, msg string) SkyError {
	return SkyError{Code: errorCode, Msg: msg}
}

// SkyError is any kind of error that is exposed to the user via external interfaces like the CLI
type SkyError struct {
	Code ErrorCode
	Msg  string
}

func (u SkyError) Error() string {
	return u.Msg
}

// ErrorCodeOf returns the code carried by err, or InternalError if err carries no code.
// It looks through any wrapping applied by this package.
func ErrorCodeOf(err error) ErrorCode {
	var se SkyError
	if As(err, &se) {
		return se.Code
	}
	return InternalError
}

// IsRecoverable reports whether err should be absorbed at the worker boundary,
// skipping the object's contribution, rather than terminating the run.
func IsRecoverable(err error) bool {
	switch ErrorCodeOf(err) {
	case MalformedContainer, SchemaMismatch, EvaluationFailed, EmptySchema, BadColumnFormat:
		return true
	}
	return false
}
