// ABOUTME: Read-only consistency audit shared by all storage backends
// ABOUTME: Reports violated recording, pause and point invariants without repairing them

package storage

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/harper/triplog/internal/models"
)

// ViolationKind identifies which invariant a Violation breaks.
type ViolationKind string

const (
	KindMultipleOpenRecordings ViolationKind = "multiple_open_recordings"
	KindMissingStart           ViolationKind = "missing_start"
	KindPauseOutsideRecording  ViolationKind = "pause_outside_recording"
	KindStaleOpenPause         ViolationKind = "stale_open_pause"
	KindPauseOverlap           ViolationKind = "pause_overlap"
	KindPointOutsideRecording  ViolationKind = "point_outside_recording"
	KindPointInPause           ViolationKind = "point_in_pause"
	KindOrphanPoint            ViolationKind = "orphan_point"
	KindOrphanPause            ViolationKind = "orphan_pause"
	KindOrphanHistoryRef       ViolationKind = "orphan_history_ref"
	KindUntrackedOpenRecording ViolationKind = "untracked_open_recording"
)

// Violation is a single broken invariant found by a consistency check.
type Violation struct {
	Kind        ViolationKind `json:"kind"`
	RecordingID uuid.UUID     `json:"recording_id"`
	PointID     string        `json:"point_id,omitempty"`
	Detail      string        `json:"detail"`
}

func (v Violation) String() string {
	if v.PointID != "" {
		return fmt.Sprintf("%s: recording %s point %s: %s", v.Kind, v.RecordingID, v.PointID, v.Detail)
	}
	return fmt.Sprintf("%s: recording %s: %s", v.Kind, v.RecordingID, v.Detail)
}

// storeScan is a full read of a store taken inside one read transaction.
type storeScan struct {
	recordings   []*models.Recording
	points       map[uuid.UUID][]*models.Point
	orphanPoints []*models.Point
	orphanPauses map[uuid.UUID]int
}

// violations audits the scan. Comparisons that cannot be made because a
// segment lacks a start time are reported as missing starts, never as passes.
func (s *storeScan) violations() []Violation {
	var out []Violation

	var open []*models.Recording
	for _, rec := range s.recordings {
		if !rec.TotalTimeSegment.HasStart() {
			out = append(out, Violation{
				Kind:        KindMissingStart,
				RecordingID: rec.ID,
				Detail:      "total time segment has no start time",
			})
		}
		if rec.TotalTimeSegment.IsOpen() {
			open = append(open, rec)
		}
	}
	if len(open) > 1 {
		for _, rec := range open {
			out = append(out, Violation{
				Kind:        KindMultipleOpenRecordings,
				RecordingID: rec.ID,
				Detail:      fmt.Sprintf("one of %d recordings with an open total time segment", len(open)),
			})
		}
	}

	for _, rec := range s.recordings {
		out = append(out, checkPauses(rec)...)
		out = append(out, checkPoints(rec, s.points[rec.ID])...)
	}

	for _, p := range s.orphanPoints {
		out = append(out, Violation{
			Kind:        KindOrphanPoint,
			RecordingID: p.RecordingID,
			PointID:     p.ID,
			Detail:      "point references a recording that does not exist",
		})
	}

	orphanIDs := make([]uuid.UUID, 0, len(s.orphanPauses))
	for id := range s.orphanPauses {
		orphanIDs = append(orphanIDs, id)
	}
	sort.Slice(orphanIDs, func(i, j int) bool { return orphanIDs[i].String() < orphanIDs[j].String() })
	for _, id := range orphanIDs {
		out = append(out, Violation{
			Kind:        KindOrphanPause,
			RecordingID: id,
			Detail:      fmt.Sprintf("%d pause(s) reference a recording that does not exist", s.orphanPauses[id]),
		})
	}

	return out
}

func checkPauses(rec *models.Recording) []Violation {
	var out []Violation
	pauses := make([]models.TimeSegment, len(rec.Pauses))
	copy(pauses, rec.Pauses)
	sorted := &models.Recording{Pauses: pauses}
	sorted.SortPauses()
	pauses = sorted.Pauses

	for i, p := range pauses {
		if !p.HasStart() {
			out = append(out, Violation{
				Kind:        KindMissingStart,
				RecordingID: rec.ID,
				Detail:      fmt.Sprintf("pause %d has no start time", i),
			})
			continue
		}
		if inside, ok := rec.TotalTimeSegment.ContainsSegment(p); ok && !inside {
			out = append(out, Violation{
				Kind:        KindPauseOutsideRecording,
				RecordingID: rec.ID,
				Detail:      fmt.Sprintf("pause starting %s is not within the recording", p.StartTime.Format(time.RFC3339)),
			})
		}
		if p.IsOpen() && (i != len(pauses)-1 || rec.IsFinished()) {
			out = append(out, Violation{
				Kind:        KindStaleOpenPause,
				RecordingID: rec.ID,
				Detail:      fmt.Sprintf("pause starting %s is open but is not the latest pause of an unfinished recording", p.StartTime.Format(time.RFC3339)),
			})
		}
		for j := i + 1; j < len(pauses); j++ {
			if hit, ok := p.Intersects(pauses[j]); ok && hit {
				out = append(out, Violation{
					Kind:        KindPauseOverlap,
					RecordingID: rec.ID,
					Detail: fmt.Sprintf("pauses starting %s and %s intersect",
						p.StartTime.Format(time.RFC3339), pauses[j].StartTime.Format(time.RFC3339)),
				})
			}
		}
	}
	return out
}

func checkPoints(rec *models.Recording, points []*models.Point) []Violation {
	var out []Violation
	for _, pt := range points {
		if inside, ok := rec.TotalTimeSegment.Contains(pt.Timestamp); ok && !inside {
			out = append(out, Violation{
				Kind:        KindPointOutsideRecording,
				RecordingID: rec.ID,
				PointID:     pt.ID,
				Detail:      fmt.Sprintf("point at %s is outside the recording", pt.Timestamp.Format(time.RFC3339Nano)),
			})
		}
		for _, p := range rec.Pauses {
			if paused, ok := p.Contains(pt.Timestamp); ok && paused {
				out = append(out, Violation{
					Kind:        KindPointInPause,
					RecordingID: rec.ID,
					PointID:     pt.ID,
					Detail:      fmt.Sprintf("point at %s falls inside a pause", pt.Timestamp.Format(time.RFC3339Nano)),
				})
				break
			}
		}
	}
	return out
}
