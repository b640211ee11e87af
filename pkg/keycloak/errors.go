// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package keycloak

import (
	"errors"
	"fmt"
)

// Account-state and credential errors surfaced by the login flow. Each is a
// distinct, user-facing reason; none is retried automatically.
var (
	// ErrUserNotFound is returned when a user lookup matches nothing. It is
	// deliberately distinct from ErrInvalidCredentials; the caller decides
	// how much to disclose.
	ErrUserNotFound = errors.New("user not found")
	// ErrInvalidCredentials is returned when the token endpoint rejects a
	// password grant with 401.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountLocked is returned when the user is temporarily disabled due
	// to repeated failed login attempts.
	ErrAccountLocked = errors.New("account temporarily locked")
	// ErrAccountExpired is returned when the account_expiration attribute is
	// in the past.
	ErrAccountExpired = errors.New("account expired")
	// ErrSessionLimitReached is returned when the realm's concurrent-session
	// cap would be exceeded.
	ErrSessionLimitReached = errors.New("concurrent session limit reached")
)

// ConfigError indicates an operator or setup mistake (malformed expiration
// attribute, admin credentials missing required capabilities) rather than an
// end-user failure. It is kept distinct so monitoring can separate the two.
type ConfigError struct {
	Reason string
	Err    error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("configuration error: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("configuration error: %s", e.Reason)
}

// Unwrap returns the underlying error.
func (e *ConfigError) Unwrap() error {
	return e.Err
}

// isConfigError reports whether err is (or wraps) a ConfigError.
func isConfigError(err error) bool {
	var configErr *ConfigError
	return errors.As(err, &configErr)
}

// MandatoryAction is the closed set of remote-side actions that can block a
// login until the user resolves them.
type MandatoryAction int

// Mandatory actions recognized from the identity provider's requiredActions.
const (
	// MandatoryActionOther covers custom or unrecognized actions; the raw
	// action name is preserved on the MandatoryActionError.
	MandatoryActionOther MandatoryAction = iota
	MandatoryActionUpdateUserLocale
	MandatoryActionConfigureTOTP
	MandatoryActionVerifyEmail
	MandatoryActionUpdatePassword
	MandatoryActionUpdateProfile
)

// String implements fmt.Stringer.
func (a MandatoryAction) String() string {
	switch a {
	case MandatoryActionUpdateUserLocale:
		return "update_user_locale"
	case MandatoryActionConfigureTOTP:
		return "CONFIGURE_TOTP"
	case MandatoryActionVerifyEmail:
		return "VERIFY_EMAIL"
	case MandatoryActionUpdatePassword:
		return "UPDATE_PASSWORD"
	case MandatoryActionUpdateProfile:
		return "UPDATE_PROFILE"
	default:
		return "other"
	}
}

// mandatoryActionFromName maps a remote action name to its variant.
// Unrecognized names map to MandatoryActionOther.
func mandatoryActionFromName(name string) MandatoryAction {
	switch name {
	case "update_user_locale":
		return MandatoryActionUpdateUserLocale
	case "CONFIGURE_TOTP":
		return MandatoryActionConfigureTOTP
	case "VERIFY_EMAIL":
		return MandatoryActionVerifyEmail
	case "UPDATE_PASSWORD":
		return MandatoryActionUpdatePassword
	case "UPDATE_PROFILE":
		return MandatoryActionUpdateProfile
	default:
		return MandatoryActionOther
	}
}

// MandatoryActionError blocks a login on a specific pending remote-side
// action. The action kind is preserved rather than collapsed into a generic
// "login failed".
type MandatoryActionError struct {
	// Action is the recognized variant.
	Action MandatoryAction
	// Name is the raw action name as reported by the identity provider.
	Name string
}

// Error implements the error interface.
func (e *MandatoryActionError) Error() string {
	return fmt.Sprintf("login blocked until required action is resolved: %s", e.Name)
}
