package gcal

import (
	"errors"
	"strings"

	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"
)

// The error values below are the gateway's whole taxonomy; provider exception
// types never leak past this package. Only ErrNoRefreshToken and
// ErrInvalidGrant should drive "please reconnect" behavior upstream; everything
// else is either client input or transient.
var (
	ErrNoRefreshToken = errors.New("no refresh token on file")
	ErrInvalidGrant   = errors.New("refresh token revoked or expired")
	ErrAuth           = errors.New("calendar authorization failed")
	ErrInvalidState   = errors.New("oauth state matches no counselor")
	ErrFreeBusy       = errors.New("free/busy query failed")
	ErrEvent          = errors.New("calendar event operation failed")
)

// IsAuthError reports whether err is any calendar authorization failure.
func IsAuthError(err error) bool {
	return errors.Is(err, ErrNoRefreshToken) || errors.Is(err, ErrInvalidGrant) || errors.Is(err, ErrAuth)
}

// NeedsReconnect reports whether err means the counselor must go through the
// OAuth consent flow again, as opposed to a transient auth hiccup.
func NeedsReconnect(err error) bool {
	return errors.Is(err, ErrNoRefreshToken) || errors.Is(err, ErrInvalidGrant)
}

// invalidGrant detects a revoked/expired refresh token in the provider's
// response. Distinguished from other auth failures because it is the one
// signal that should surface as "reconnect your calendar" rather than retry.
func invalidGrant(err error) bool {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		if re.ErrorCode == "invalid_grant" {
			return true
		}
		return strings.Contains(string(re.Body), "invalid_grant")
	}
	return strings.Contains(err.Error(), "invalid_grant")
}

// authStatus reports whether a Calendar API error is an authorization problem
// rather than a request or availability problem.
func authStatus(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && (gerr.Code == 401 || gerr.Code == 403)
}
