// ABOUTME: Location fix processing for the session controller
// ABOUTME: Resolves historical status, applies the distance filter and tracks data loss

package recorder

import (
	"context"
	"errors"
	"sort"

	"github.com/harper/triplog/internal/geo"
	"github.com/harper/triplog/internal/models"
	"github.com/harper/triplog/internal/status"
	"github.com/harper/triplog/internal/storage"
)

// FixResult summarizes one processed delivery batch.
type FixResult struct {
	Accepted  int `json:"accepted"`
	Discarded int `json:"discarded"`
	Failed    int `json:"failed"`
}

// HandleFixes processes a delivery batch. Fixes are sorted by timestamp and
// each one is routed by the status that was active when it was sensed, not
// the live status. Accepted fixes are committed together; anything that
// cannot be saved lands in the failed list.
func (c *Controller) HandleFixes(ctx context.Context, fixes []models.Fix) FixResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.processFixesLocked(ctx, fixes)
}

func (c *Controller) processFixesLocked(ctx context.Context, fixes []models.Fix) FixResult {
	var res FixResult
	if len(fixes) == 0 {
		return res
	}

	sorted := append([]models.Fix(nil), fixes...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})
	c.updateCurrentFixLocked(sorted[len(sorted)-1])

	type candidate struct {
		fix       models.Fix
		recording status.Status
	}
	var candidates []candidate
	for _, fix := range sorted {
		if !fix.HasValidAccuracy() {
			res.Discarded++
			continue
		}
		st := c.history.StatusAt(fix.Timestamp)
		if !st.IsRecording() {
			res.Discarded++
			continue
		}
		// a pause opened at this exact instant contains the fix
		if c.history.StatusThrough(fix.Timestamp) != st {
			res.Discarded++
			continue
		}
		candidates = append(candidates, candidate{fix: fix, recording: st})
	}
	if len(candidates) == 0 {
		return res
	}

	minDistance := c.current.MinimumDistance
	batch, err := c.store.Begin(ctx)
	if err != nil {
		for _, cand := range candidates {
			c.failFixLocked(cand.fix, err)
		}
		res.Failed += len(candidates)
		return res
	}

	// per-fix failures are only recorded once the commit outcome is known;
	// a failed commit fails the whole delivery batch instead
	type failure struct {
		fix models.Fix
		err error
	}
	var failures []failure
	var accepted []models.Fix
	for _, cand := range candidates {
		id, seg := cand.recording.RecordingID, cand.recording.SegmentID

		first := false
		distance := 0.0
		prev, err := batch.LatestPointBefore(id, cand.fix.Timestamp)
		switch {
		case errors.Is(err, storage.ErrNotFound):
			first = true
		case err != nil:
			failures = append(failures, failure{cand.fix, err})
			continue
		default:
			distance = geo.Distance(prev.Latitude, prev.Longitude, cand.fix.Latitude, cand.fix.Longitude)
			first = prev.SegmentID != seg
		}

		if !first && distance < minDistance {
			res.Discarded++
			continue
		}

		p, err := batch.AppendPoint(id, cand.fix, c.heading, distance, seg)
		if err != nil {
			failures = append(failures, failure{cand.fix, err})
			continue
		}
		c.logger.Debug("point accepted", "recording", id, "segment", seg, "point", p.ID, "distance", distance)
		accepted = append(accepted, cand.fix)
	}

	if len(accepted) == 0 {
		if err := batch.Rollback(); err != nil {
			c.logger.Warn("rollback of empty point batch failed", "err", err)
		}
	} else if err := batch.Commit(); err != nil {
		// filtering decisions were made against points that never landed, so
		// every fix of the delivery goes back for a retry
		c.logger.Error("point batch commit failed", "fixes", len(sorted), "err", err)
		for _, fix := range sorted {
			c.failFixLocked(fix, err)
		}
		return FixResult{Failed: len(sorted)}
	}

	for _, f := range failures {
		c.failFixLocked(f.fix, f.err)
	}
	res.Failed += len(failures)
	res.Accepted = len(accepted)
	return res
}

// updateCurrentFixLocked publishes fix as the current location when it is the
// newest fix seen so far.
func (c *Controller) updateCurrentFixLocked(fix models.Fix) {
	if !c.latestFixAt.IsZero() && !fix.Timestamp.After(c.latestFixAt) {
		return
	}
	c.latestFixAt = fix.Timestamp
	if !fix.HasValidAccuracy() {
		c.fixFeed.Publish(nil)
		return
	}
	c.fixFeed.Publish(&fix)
}

// failFixLocked records a fix that could not be saved. The list is bounded;
// when full the oldest entry is dropped and logged.
func (c *Controller) failFixLocked(fix models.Fix, err error) {
	c.dataLoss++
	if len(c.failed) >= c.opts.FailedCapacity {
		dropped := c.failed[0]
		c.failed = c.failed[1:]
		c.logger.Error("failed fix list full; dropping oldest", "timestamp", dropped.Fix.Timestamp, "reason", dropped.Reason)
	}
	c.failed = append(c.failed, FailedFix{Fix: fix, Reason: err.Error(), FailedAt: c.clock.Now()})
	c.logger.Warn("fix could not be saved", "timestamp", fix.Timestamp, "err", err)
}

// FailedFixes returns a copy of the failed fix list, oldest first.
func (c *Controller) FailedFixes() []FailedFix {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]FailedFix, len(c.failed))
	copy(out, c.failed)
	return out
}

// DataLossCount counts every failed save, including fixes since retried or
// dropped from the list.
func (c *Controller) DataLossCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dataLoss
}

// RetryFailed re-processes the failed fix list as one batch. Fixes that
// fail again return to the list.
func (c *Controller) RetryFailed(ctx context.Context) FixResult {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.failed) == 0 {
		return FixResult{}
	}
	fixes := make([]models.Fix, len(c.failed))
	for i, f := range c.failed {
		fixes[i] = f.Fix
	}
	c.failed = nil
	c.logger.Info("retrying failed fixes", "count", len(fixes))
	return c.processFixesLocked(ctx, fixes)
}
