package errors

import (
	"strings"
	"unicode"
)

// ValidateLocation validates a manifest location used as a recorder key.
//
// Locations are opaque to the recorder but must be non-blank and free of
// control characters so they can be rendered in reports and used as map keys
// without surprises.
func ValidateLocation(location string) error {
	if strings.TrimSpace(location) == "" {
		return New(ErrCodeInvalidPath, "location cannot be empty")
	}

	for _, r := range location {
		if r == '\x00' || unicode.IsControl(r) {
			return New(ErrCodeInvalidPath, "location contains invalid characters")
		}
	}

	return nil
}

// RequireField returns an INVALID_INPUT error when value is blank.
// field and componentType are only used to build the message.
func RequireField(value, field, componentType string) error {
	if strings.TrimSpace(value) == "" {
		return New(ErrCodeInvalidInput, "property %s of component type %s is required", field, componentType)
	}
	return nil
}
