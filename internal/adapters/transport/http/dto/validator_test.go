package dto

import (
	"testing"

	customErrors "github.com/agile-platform/backend/internal/domain/auth/errors"
	"github.com/stretchr/testify/require"
)

func validRegister() RegisterDTO {
	return RegisterDTO{
		Email:           "alice@x.com",
		Password:        "Secr3t!2",
		ConfirmPassword: "Secr3t!2",
		Name:            "Alice",
	}
}

func TestValidate_RegisterOK(t *testing.T) {
	require.NoError(t, Validate(NewValidator(), validRegister()))

	in := validRegister()
	in.Name = "王小明"
	require.NoError(t, Validate(NewValidator(), in))
}

func TestValidate_PasswordRules(t *testing.T) {
	v := NewValidator()
	for _, pwd := range []string{
		"short1!A",
		"alllower1!",
		"ALLUPPER1!",
		"NoDigits!!",
		"NoSpecial12",
		"Sh0rt!",
	} {
		in := validRegister()
		in.Password, in.ConfirmPassword = pwd, pwd
		err := Validate(v, in)
		if pwd == "short1!A" {
			require.NoError(t, err, pwd)
			continue
		}
		require.Error(t, err, pwd)
		require.True(t, customErrors.IsInvalidArgument(err))
		require.Equal(t, "password", customErrors.Details(err)[0].Field)
	}
}

func TestValidate_FieldDetails(t *testing.T) {
	in := RegisterDTO{
		Email:           "not-an-email",
		Password:        "Secr3t!2",
		ConfirmPassword: "Secr3t!3",
		Name:            "A1",
	}
	err := Validate(NewValidator(), in)
	require.Error(t, err)
	require.Equal(t, "Validation failed", customErrors.Message(err, ""))

	fields := map[string]bool{}
	for _, d := range customErrors.Details(err) {
		fields[d.Field] = true
		require.NotEmpty(t, d.Message)
	}
	require.Equal(t, map[string]bool{"email": true, "confirmPassword": true, "name": true}, fields)
}

func TestValidate_ChangePassword(t *testing.T) {
	v := NewValidator()
	ok := ChangePasswordDTO{CurrentPassword: "x", NewPassword: "N3wPass!x", ConfirmNewPassword: "N3wPass!x"}
	require.NoError(t, Validate(v, ok))

	bad := ok
	bad.ConfirmNewPassword = "other"
	err := Validate(v, bad)
	require.Error(t, err)
	require.Equal(t, "confirmNewPassword", customErrors.Details(err)[0].Field)

	require.Error(t, Validate(v, LoginDTO{Email: "alice@x.com"}))
}
