package models

import "time"

// Credential is a bearer token together with its absolute expiry. The two
// fields are always written as one value; a refresh produces a new Credential.
type Credential struct {
	Token     string
	ExpiresAt time.Time
}

func (c Credential) Valid(now time.Time) bool {
	return c.Token != "" && now.Before(c.ExpiresAt)
}

// ExpiresWithin reports whether less than margin remains before expiry.
func (c Credential) ExpiresWithin(now time.Time, margin time.Duration) bool {
	return c.ExpiresAt.Sub(now) < margin
}
