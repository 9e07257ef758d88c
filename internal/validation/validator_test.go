package validation

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidateRequired(t *testing.T) {
	v := NewValidator()

	type req struct {
		Name  string `json:"name" validate:"required,min=2"`
		Email string `json:"email" validate:"required,email"`
	}

	err := v.Validate(&req{})
	require.Error(t, err)

	fieldErrs, ok := err.(FieldError)
	require.True(t, ok)
	require.Contains(t, fieldErrs, "name")
	require.Contains(t, fieldErrs, "email")

	require.NoError(t, v.Validate(&req{Name: "ok", Email: "a@b.com"}))
}

func TestValidateMobile(t *testing.T) {
	v := NewValidator()

	type req struct {
		Mobile string `json:"mobile" validate:"mobile"`
	}

	require.NoError(t, v.Validate(&req{Mobile: "9876543210"}))
	require.NoError(t, v.Validate(&req{})) // optional when empty

	require.Error(t, v.Validate(&req{Mobile: "12345"}))
	require.Error(t, v.Validate(&req{Mobile: "98765432100"}))
	require.Error(t, v.Validate(&req{Mobile: "98765abcde"}))
}

func TestValidateMinTrimsWhitespace(t *testing.T) {
	v := NewValidator()

	type req struct {
		Name string `json:"name" validate:"min=2"`
	}

	// Padding must not satisfy the minimum length
	require.Error(t, v.Validate(&req{Name: "  a  "}))
	require.NoError(t, v.Validate(&req{Name: "  ab "}))
}

func TestValidateOneof(t *testing.T) {
	v := NewValidator()

	type req struct {
		Role string `json:"role" validate:"oneof=OWNER ADMIN USER"`
	}

	require.NoError(t, v.Validate(&req{Role: "ADMIN"}))
	require.NoError(t, v.Validate(&req{})) // empty skips oneof

	err := v.Validate(&req{Role: "ROOT"})
	require.Error(t, err)
	require.Contains(t, err.(FieldError)["role"], "must be one of")
}

func TestErrorMessageIsStable(t *testing.T) {
	err := FieldError{"b": "bad", "a": "also bad"}
	require.Equal(t, "a: also bad; b: bad", err.Error())
}
