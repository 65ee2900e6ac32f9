package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/aussiebroadwan/grantsweep/internal/grants/store"
	"github.com/aussiebroadwan/grantsweep/pkg/idx"
	"golang.org/x/time/rate"
)

var ErrInvalidRate = errors.New("cleanup: batches per second must not be negative")

// Kind names a family of expiring records swept by a cleanup pass.
type Kind string

const (
	KindGrants      Kind = "grants"
	KindDeviceCodes Kind = "device_codes"
)

type CleanupConfig struct {
	// BatchSize bounds how many records are fetched and deleted per round trip.
	BatchSize int

	// BatchesPerSecond throttles batch issuance so bulk deletes leave room on
	// the shared connection pool. Zero disables throttling.
	BatchesPerSecond float64
}

func (c CleanupConfig) Validate() error {
	if err := store.CheckBatchSize(c.BatchSize); err != nil {
		return err
	}
	if c.BatchesPerSecond < 0 {
		return ErrInvalidRate
	}
	return nil
}

// KindReport is the outcome of sweeping one kind during a pass.
type KindReport struct {
	Kind    Kind
	Removed int
	Batches int
	Skipped int // malformed keys dropped from a batch
	Err     error
}

// PassReport is the outcome of one cleanup pass.
type PassReport struct {
	ID         idx.ID
	Trigger    string
	StartedAt  time.Time
	FinishedAt time.Time
	Kinds      []KindReport

	// Failure is set when the pass aborted outside of any kind, e.g. a panic
	// recovered by the scheduler.
	Failure error
}

// Removed is the total number of records removed across kinds.
func (r PassReport) Removed() int {
	n := 0
	for _, k := range r.Kinds {
		n += k.Removed
	}
	return n
}

// Err joins the per-kind errors. It is nil when every kind succeeded.
func (r PassReport) Err() error {
	errs := make([]error, 0, len(r.Kinds)+1)
	if r.Failure != nil {
		errs = append(errs, r.Failure)
	}
	for _, k := range r.Kinds {
		if k.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", k.Kind, k.Err))
		}
	}
	return errors.Join(errs...)
}

func (r PassReport) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// ForKind returns the report for k, if that kind ran.
func (r PassReport) ForKind(k Kind) (KindReport, bool) {
	for _, kr := range r.Kinds {
		if kr.Kind == k {
			return kr, true
		}
	}
	return KindReport{}, false
}

// CleanupService removes expired grants and device codes in bounded batches.
// Each pass is idempotent: re-running it after a partial failure only removes
// what is left.
type CleanupService struct {
	Grants      store.ExpiredGrants
	DeviceCodes store.ExpiredDeviceCodes
	Logger      *slog.Logger
	Config      CleanupConfig

	// Now is the clock used to decide expiry. Defaults to time.Now in UTC.
	Now func() time.Time

	limiter *rate.Limiter
}

func NewCleanupService(grants store.ExpiredGrants, deviceCodes store.ExpiredDeviceCodes, logger *slog.Logger, cfg CleanupConfig) (*CleanupService, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &CleanupService{
		Grants:      grants,
		DeviceCodes: deviceCodes,
		Logger:      logger,
		Config:      cfg,
		Now:         func() time.Time { return time.Now().UTC() },
	}
	if cfg.BatchesPerSecond > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(cfg.BatchesPerSecond), 1)
	}
	return s, nil
}

type sweep struct {
	kind Kind
	find func(ctx context.Context, now time.Time, batchSize int) ([]string, error)
	del  func(ctx context.Context, keys []string) (int, error)
}

func (s *CleanupService) sweeps() []sweep {
	return []sweep{
		{kind: KindGrants, find: s.Grants.FindExpiredGrants, del: s.Grants.DeleteGrants},
		{kind: KindDeviceCodes, find: s.DeviceCodes.FindExpiredDeviceCodes, del: s.DeviceCodes.DeleteDeviceCodes},
	}
}

// RemoveExpiredGrants runs a single pass over every kind. The expiry cutoff is
// captured once so records expiring mid-pass wait for the next one. A failure
// in one kind is recorded in its report and does not stop the others.
func (s *CleanupService) RemoveExpiredGrants(ctx context.Context) PassReport {
	now := s.Now()
	report := PassReport{ID: idx.New(), StartedAt: now}
	logger := s.Logger.With("pass_id", report.ID.String())

	logger.Debug("starting cleanup pass", "cutoff", now, "batch_size", s.Config.BatchSize)

	for _, sw := range s.sweeps() {
		kr := s.sweepKind(ctx, logger, now, sw)
		report.Kinds = append(report.Kinds, kr)

		if kr.Err != nil {
			logger.Error("cleanup failed",
				"kind", kr.Kind,
				"removed", kr.Removed,
				"batches", kr.Batches,
				"error", kr.Err,
			)
			continue
		}
		logger.Debug("cleanup kind completed",
			"kind", kr.Kind,
			"removed", kr.Removed,
			"batches", kr.Batches,
			"skipped", kr.Skipped,
		)
	}

	report.FinishedAt = s.Now()
	return report
}

// sweepKind pages through one kind until a short batch signals nothing is
// left. A full batch that removes nothing still counts as progress unless the
// next find returns the very same page. Cancellation is only observed between
// store calls.
func (s *CleanupService) sweepKind(ctx context.Context, logger *slog.Logger, now time.Time, sw sweep) (kr KindReport) {
	kr.Kind = sw.kind

	defer func() {
		if r := recover(); r != nil {
			kr.Err = fmt.Errorf("panic: %v", r)
		}
	}()

	var prev []string
	for {
		if err := ctx.Err(); err != nil {
			kr.Err = err
			return kr
		}
		if s.limiter != nil {
			if err := s.limiter.Wait(ctx); err != nil {
				kr.Err = err
				return kr
			}
		}

		keys, err := sw.find(ctx, now, s.Config.BatchSize)
		if err != nil {
			kr.Err = fmt.Errorf("find expired: %w", err)
			return kr
		}
		if len(keys) == 0 {
			return kr
		}
		if prev != nil && slices.Equal(keys, prev) {
			logger.Warn("expired page did not shrink, stopping kind", "kind", sw.kind, "batch_size", len(keys))
			return kr
		}
		prev = keys
		kr.Batches++

		valid := make([]string, 0, len(keys))
		for _, k := range keys {
			if k == "" {
				kr.Skipped++
				continue
			}
			valid = append(valid, k)
		}
		if skipped := len(keys) - len(valid); skipped > 0 {
			logger.Warn("skipping malformed keys", "kind", sw.kind, "count", skipped)
		}

		removed := 0
		if len(valid) > 0 {
			removed, err = sw.del(ctx, valid)
			if err != nil {
				kr.Err = fmt.Errorf("delete batch: %w", err)
				return kr
			}
		}
		kr.Removed += removed

		if len(keys) < s.Config.BatchSize {
			return kr
		}
	}
}
