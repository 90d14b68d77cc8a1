package user

import (
	"testing"

	"github.com/go-playground/validator/v10"

	"github.com/campushq/backend/core"
)

func pwdTag(t *testing.T, err error) string {
	t.Helper()
	if err == nil {
		return ""
	}
	vErrs, ok := err.(validator.ValidationErrors)
	if !ok {
		t.Fatalf("unexpected error type %T: %v", err, err)
	}
	for _, vErr := range vErrs {
		if vErr.Field() == "password" {
			return vErr.Tag()
		}
	}
	t.Fatalf("no password error in %v", err)
	return ""
}

func TestPasswordPolicy(t *testing.T) {
	tests := []struct {
		name    string
		nu      NewUser
		wantTag string
	}{
		{
			name:    "too short",
			nu:      NewUser{Name: "Jane", Username: "jane001", Password: "Ab1!", PasswordConfirm: "Ab1!"},
			wantTag: pwdMinLenTag,
		},
		{
			name:    "whitespace",
			nu:      NewUser{Name: "Jane", Username: "jane001", Password: "Ab1! cdef", PasswordConfirm: "Ab1! cdef"},
			wantTag: pwdNoSpaceTag,
		},
		{
			name:    "all numeric",
			nu:      NewUser{Name: "Jane", Username: "jane001", Password: "12345678", PasswordConfirm: "12345678"},
			wantTag: pwdNotAllNumTag,
		},
		{
			name:    "no complexity",
			nu:      NewUser{Name: "Jane", Username: "jane001", Password: "abcdefgh", PasswordConfirm: "abcdefgh"},
			wantTag: pwdComplexityTag,
		},
		{
			name:    "similar to username",
			nu:      NewUser{Name: "Jane", Username: "jane0001", Password: "Jane#0001", PasswordConfirm: "Jane#0001"},
			wantTag: pwdAttrSimTag,
		},
		{
			name: "acceptable",
			nu:   NewUser{Name: "Jane", Username: "jane001", Password: "Xk9$wzQp2m", PasswordConfirm: "Xk9$wzQp2m"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := core.Validate.Struct(&tt.nu)
			if got := pwdTag(t, err); got != tt.wantTag {
				t.Errorf("password tag = %q, want %q (err = %v)", got, tt.wantTag, err)
			}
		})
	}
}

func TestUsernameOrEmailRequired(t *testing.T) {
	nu := NewUser{Name: "Jane", Password: "Xk9$wzQp2m", PasswordConfirm: "Xk9$wzQp2m"}
	err := core.Validate.Struct(&nu)
	if err == nil {
		t.Fatal("Validate() error = nil, want username_or_email error")
	}
	vErrs, ok := err.(validator.ValidationErrors)
	if !ok {
		t.Fatalf("unexpected error type %T: %v", err, err)
	}
	var found bool
	for _, vErr := range vErrs {
		if vErr.Tag() == usernameOrEmailTag {
			found = true
		}
	}
	if !found {
		t.Errorf("Validate() = %v, want %s", err, usernameOrEmailTag)
	}
}
