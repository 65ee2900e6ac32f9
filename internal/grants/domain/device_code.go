package domain

import "time"

// DeviceCode represents a device authorization flow pairing (RFC 8628). The
// record is created when the device starts the flow and is updated with the
// subject once the user approves on a secondary device.
type DeviceCode struct {
	DeviceCode   string
	UserCode     string
	SubjectID    string // empty until the user completes authorization
	SessionID    string
	ClientID     string
	Description  string
	CreationTime time.Time
	Expiration   time.Time
	Data         string
}

// HasExpired reports whether the device code's expiration is at or before now.
func (d DeviceCode) HasExpired(now time.Time) bool {
	return !d.Expiration.After(now)
}

// IsAuthorized reports whether a user has approved the device.
func (d DeviceCode) IsAuthorized() bool {
	return d.SubjectID != ""
}
