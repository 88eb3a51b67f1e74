package errs

import (
	"errors"
	"fmt"
)

// Kind classifies an application error so controllers can map it to an HTTP
// status and UIs can drive a fix-it flow from it.
type Kind string

const (
	KindForbidden             Kind = "forbidden"
	KindInvalidState          Kind = "invalid_state"
	KindEmptyMapping          Kind = "empty_mapping"
	KindDuplicateUpload       Kind = "duplicate_upload"
	KindNameConflict          Kind = "name_conflict"
	KindNotFound              Kind = "not_found"
	KindCatalogUnavailable    Kind = "catalog_unavailable"
	KindUnresolvedReference   Kind = "unresolved_reference"
	KindCyclicRelationship    Kind = "cyclic_relationship"
	KindAmbiguousNaturalKey   Kind = "ambiguous_natural_key"
	KindRequiredColumnMissing Kind = "required_column_missing"
	KindTypeMismatch          Kind = "type_mismatch"
	KindImportError           Kind = "import_error"
	KindMasterDataApproval    Kind = "master_data_approval"
	KindBadRequest            Kind = "bad_request"
)

// Error carries a kind plus structured detail for the caller. Detail keys are
// stable (e.g. "column", "table", "existing_session_id") so clients can act on
// them without parsing the message.
type Error struct {
	Kind    Kind
	Message string
	Detail  map[string]interface{}
	wrapped error
}

func (e *Error) Error() string {
	if e.wrapped != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.wrapped)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.wrapped }

func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, err error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), wrapped: err}
}

// With attaches a detail key/value and returns the same error for chaining.
func (e *Error) With(key string, value interface{}) *Error {
	if e.Detail == nil {
		e.Detail = map[string]interface{}{}
	}
	e.Detail[key] = value
	return e
}

// KindOf returns the Kind of err if it is (or wraps) an *Error, else "".
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return ""
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// DetailOf returns the structured detail of err, or nil.
func DetailOf(err error) map[string]interface{} {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Detail
	}
	return nil
}
