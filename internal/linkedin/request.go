package linkedin

import "net/url"

// AuthRequest is what a settings page load tells the AuthHandler.
// Nil pointers mean the query parameter was absent.
type AuthRequest struct {
	IsLinking    bool
	Code         *string
	ErrorMessage *string
	State        *string
}

// ParseAuthRequest reads code, error_description and state from the query.
// The request is an unlink only when unlinkKey is present and equals
// unlinkValue; every other page load counts as linking.
func ParseAuthRequest(query url.Values, unlinkKey, unlinkValue string) AuthRequest {
	return AuthRequest{
		IsLinking:    !(query.Has(unlinkKey) && query.Get(unlinkKey) == unlinkValue),
		Code:         optional(query, "code"),
		ErrorMessage: optional(query, "error_description"),
		State:        optional(query, "state"),
	}
}

func optional(query url.Values, key string) *string {
	if !query.Has(key) {
		return nil
	}
	v := query.Get(key)
	return &v
}
