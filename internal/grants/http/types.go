package http

import (
	"github.com/aussiebroadwan/grantsweep/internal/grants/service"
	"github.com/aussiebroadwan/grantsweep/pkg/sweepsdk"
)

func newPassResult(r service.PassReport) *sweepsdk.PassResult {
	v := &sweepsdk.PassResult{
		ID:         r.ID.String(),
		Trigger:    r.Trigger,
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
		DurationMS: r.Duration().Milliseconds(),
		Removed:    r.Removed(),
		Kinds:      make([]sweepsdk.KindResult, 0, len(r.Kinds)),
	}
	if err := r.Err(); err != nil {
		v.Error = err.Error()
	}

	for _, k := range r.Kinds {
		kr := sweepsdk.KindResult{
			Kind:    string(k.Kind),
			Removed: k.Removed,
			Batches: k.Batches,
			Skipped: k.Skipped,
		}
		if k.Err != nil {
			kr.Error = k.Err.Error()
		}
		v.Kinds = append(v.Kinds, kr)
	}
	return v
}
