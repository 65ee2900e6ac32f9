package domain

import "time"

// Well known grant types written by the protocol layer. The store treats the
// type as an opaque classification string.
const (
	GrantTypeAuthorizationCode = "authorization_code"
	GrantTypeReferenceToken    = "reference_token"
	GrantTypeRefreshToken      = "refresh_token"
	GrantTypeUserConsent       = "user_consent"
)

// Grant models a persisted authorization artifact (reference token, refresh
// token, authorization code, consent) keyed by an opaque identifier.
type Grant struct {
	Key          string
	Type         string
	SubjectID    string
	SessionID    string
	ClientID     string
	Description  string
	CreationTime time.Time
	Expiration   *time.Time // nil means the grant never expires
	ConsumedTime *time.Time // set once a one-time-use grant has been redeemed
	Data         string     // opaque serialized payload
}

// HasExpired reports whether the grant's expiration is at or before now.
// Grants without an expiration never expire.
func (g Grant) HasExpired(now time.Time) bool {
	return g.Expiration != nil && !g.Expiration.After(now)
}

// IsConsumed reports whether a one-time-use grant has been redeemed.
func (g Grant) IsConsumed() bool {
	return g.ConsumedTime != nil
}

// GrantFilter narrows protocol-layer lookups. Empty fields are ignored, but at
// least one field must be set.
type GrantFilter struct {
	SubjectID string
	SessionID string
	ClientID  string
	Type      string
}

// IsEmpty reports whether no field of the filter is set.
func (f GrantFilter) IsEmpty() bool {
	return f.SubjectID == "" && f.SessionID == "" && f.ClientID == "" && f.Type == ""
}

// Matches reports whether g satisfies every non-empty field of the filter.
func (f GrantFilter) Matches(g Grant) bool {
	if f.SubjectID != "" && f.SubjectID != g.SubjectID {
		return false
	}
	if f.SessionID != "" && f.SessionID != g.SessionID {
		return false
	}
	if f.ClientID != "" && f.ClientID != g.ClientID {
		return false
	}
	if f.Type != "" && f.Type != g.Type {
		return false
	}
	return true
}
