package api

import "fmt"

// Error reasons reported by the backend in an {"error": "..."} payload.
const (
	ReasonRequireLogin = "REQUIRE_LOGIN"
	ReasonExpiredToken = "ERROR_ACCESS_TOKEN"
)

// Error represents an API error payload
type Error struct {
	Reason string `json:"error"`
	Status int    `json:"-"`
}

func (e *Error) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("api error: status %d", e.Status)
	}
	if e.Status != 0 {
		return fmt.Sprintf("api error: %s (status %d)", e.Reason, e.Status)
	}
	return fmt.Sprintf("api error: %s", e.Reason)
}

// IsExpiredToken reports whether the access token was rejected as expired.
func (e *Error) IsExpiredToken() bool {
	return e.Reason == ReasonExpiredToken
}

// IsRequireLogin reports whether the request requires a fresh login.
func (e *Error) IsRequireLogin() bool {
	return e.Reason == ReasonRequireLogin
}
