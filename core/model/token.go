package model

import "time"

// tokenLeeway renews tokens slightly before the server rejects them.
const tokenLeeway = 30 * time.Second

// AccessToken is a bearer token for the owner API.
type AccessToken struct {
	Token  string
	Expiry time.Time
}

// Valid reports whether the token can still be used at now. A zero expiry
// never expires.
func (t AccessToken) Valid(now time.Time) bool {
	if t.Token == "" {
		return false
	}
	if t.Expiry.IsZero() {
		return true
	}
	return now.Add(tokenLeeway).Before(t.Expiry)
}
