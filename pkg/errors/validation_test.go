package errors

import (
	"testing"
)

func TestValidateLocation(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"absolute path", "/repo/Cargo.lock", false},
		{"relative path", "crates/a/Cargo.toml", false},
		{"windows path", `C:\repo\go.mod`, false},

		{"empty", "", true},
		{"blank", "   ", true},
		{"null byte", "foo\x00bar", true},
		{"newline", "foo\nbar", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateLocation(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateLocation(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if err != nil && !Is(err, ErrCodeInvalidPath) {
				t.Errorf("ValidateLocation(%q) code = %v, want %v", tt.input, GetCode(err), ErrCodeInvalidPath)
			}
		})
	}
}

func TestRequireField(t *testing.T) {
	if err := RequireField("serde", "Name", "Cargo"); err != nil {
		t.Errorf("RequireField() unexpected error: %v", err)
	}
	err := RequireField(" ", "Version", "Cargo")
	if err == nil {
		t.Fatal("RequireField() expected error for blank value")
	}
	if UserMessage(err) != "property Version of component type Cargo is required" {
		t.Errorf("UserMessage() = %q", UserMessage(err))
	}
}
