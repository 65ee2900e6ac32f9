package bunsql

import (
	"time"

	"github.com/aussiebroadwan/grantsweep/internal/grants/domain"
	"github.com/aussiebroadwan/grantsweep/internal/grants/store"
	"github.com/uptrace/bun"
)

// Postgres TIMESTAMPTZ and MySQL DATETIME(6) both keep microseconds and round
// anything finer. Expirations are rounded up before they reach the database
// and query cutoffs down so a record is never selected early.
const precision = time.Microsecond

type grantRecord struct {
	bun.BaseModel `bun:"table:persisted_grants,alias:g"`

	Key          string     `bun:"key,pk"`
	Type         string     `bun:"type,notnull"`
	SubjectID    string     `bun:"subject_id,notnull"`
	SessionID    string     `bun:"session_id,notnull"`
	ClientID     string     `bun:"client_id,notnull"`
	Description  string     `bun:"description,notnull"`
	CreationTime time.Time  `bun:"creation_time,notnull"`
	Expiration   *time.Time `bun:"expiration"`
	ConsumedTime *time.Time `bun:"consumed_time"`
	Data         string     `bun:"data,notnull"`
}

func newGrantRecord(g domain.Grant) *grantRecord {
	return &grantRecord{
		Key:          g.Key,
		Type:         g.Type,
		SubjectID:    g.SubjectID,
		SessionID:    g.SessionID,
		ClientID:     g.ClientID,
		Description:  g.Description,
		CreationTime: g.CreationTime.UTC(),
		Expiration:   utcPtr(store.CeilTimePtr(g.Expiration, precision)),
		ConsumedTime: utcPtr(g.ConsumedTime),
		Data:         g.Data,
	}
}

func (r *grantRecord) toDomain() domain.Grant {
	return domain.Grant{
		Key:          r.Key,
		Type:         r.Type,
		SubjectID:    r.SubjectID,
		SessionID:    r.SessionID,
		ClientID:     r.ClientID,
		Description:  r.Description,
		CreationTime: r.CreationTime.UTC(),
		Expiration:   utcPtr(r.Expiration),
		ConsumedTime: utcPtr(r.ConsumedTime),
		Data:         r.Data,
	}
}

type deviceCodeRecord struct {
	bun.BaseModel `bun:"table:device_codes,alias:dc"`

	DeviceCode   string    `bun:"device_code,pk"`
	UserCode     string    `bun:"user_code,notnull,unique"`
	SubjectID    string    `bun:"subject_id,notnull"`
	SessionID    string    `bun:"session_id,notnull"`
	ClientID     string    `bun:"client_id,notnull"`
	Description  string    `bun:"description,notnull"`
	CreationTime time.Time `bun:"creation_time,notnull"`
	Expiration   time.Time `bun:"expiration,notnull"`
	Data         string    `bun:"data,notnull"`
}

func newDeviceCodeRecord(dc domain.DeviceCode) *deviceCodeRecord {
	return &deviceCodeRecord{
		DeviceCode:   dc.DeviceCode,
		UserCode:     dc.UserCode,
		SubjectID:    dc.SubjectID,
		SessionID:    dc.SessionID,
		ClientID:     dc.ClientID,
		Description:  dc.Description,
		CreationTime: dc.CreationTime.UTC(),
		Expiration:   store.CeilTime(dc.Expiration, precision).UTC(),
		Data:         dc.Data,
	}
}

func (r *deviceCodeRecord) toDomain() domain.DeviceCode {
	return domain.DeviceCode{
		DeviceCode:   r.DeviceCode,
		UserCode:     r.UserCode,
		SubjectID:    r.SubjectID,
		SessionID:    r.SessionID,
		ClientID:     r.ClientID,
		Description:  r.Description,
		CreationTime: r.CreationTime.UTC(),
		Expiration:   r.Expiration.UTC(),
		Data:         r.Data,
	}
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	val := t.UTC()
	return &val
}

func cutoff(now time.Time) time.Time {
	return store.FloorTime(now, precision).UTC()
}
