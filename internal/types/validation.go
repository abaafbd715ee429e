package types

import "fmt"

// ValidationErrorKind classifies a schema violation found by validation.
type ValidationErrorKind string

const (
	ValidationMissing      ValidationErrorKind = "missing"
	ValidationTypeMismatch ValidationErrorKind = "type_mismatch"
	ValidationShape        ValidationErrorKind = "shape"
	ValidationUnknownType  ValidationErrorKind = "unknown_type"
)

// ValidationError is one violation, located by store path.
type ValidationError struct {
	Kind   ValidationErrorKind
	Path   string
	Type   string
	Reason string
}

func (e ValidationError) Error() string {
	if e.Type == "" {
		return fmt.Sprintf("%s (%s): %s", e.Path, e.Kind, e.Reason)
	}
	return fmt.Sprintf("%s (%s) [%s]: %s", e.Path, e.Kind, e.Type, e.Reason)
}
