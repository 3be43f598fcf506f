// ABOUTME: Core data models for recordings, points and GPS fixes
// ABOUTME: Provides constructors, validation and derived recording values

package models

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// ValidateCoordinates checks if latitude and longitude are within valid ranges.
func ValidateCoordinates(lat, lng float64) error {
	if math.IsNaN(lat) || math.IsNaN(lng) {
		return fmt.Errorf("coordinates cannot be NaN")
	}
	if math.IsInf(lat, 0) || math.IsInf(lng, 0) {
		return fmt.Errorf("coordinates cannot be infinite")
	}
	if lat < -90 || lat > 90 {
		return fmt.Errorf("latitude must be between -90 and 90")
	}
	if lng < -180 || lng > 180 {
		return fmt.Errorf("longitude must be between -180 and 180")
	}
	return nil
}

// ValidateName checks if a recording name is valid (non-empty, within length limits).
func ValidateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("name cannot be empty or whitespace")
	}
	if len(name) > 255 {
		return fmt.Errorf("name too long (max 255 characters)")
	}
	return nil
}

// DefaultRecordingName names a recording after its start time.
func DefaultRecordingName(start time.Time) string {
	return "Trip " + start.Local().Format("2006-01-02 15:04")
}

// Fix is a single GPS sample as delivered by a location provider.
// A negative HorizontalAccuracy marks an invalid fix; a negative Speed
// means the speed is unknown.
type Fix struct {
	Timestamp          time.Time `json:"timestamp" yaml:"timestamp"`
	Latitude           float64   `json:"latitude" yaml:"latitude"`
	Longitude          float64   `json:"longitude" yaml:"longitude"`
	Altitude           float64   `json:"altitude,omitempty" yaml:"altitude,omitempty"`
	HorizontalAccuracy float64   `json:"horizontal_accuracy" yaml:"horizontal_accuracy"`
	Speed              float64   `json:"speed" yaml:"speed"`
}

// HasValidAccuracy reports whether the fix carries a usable position.
func (f Fix) HasValidAccuracy() bool {
	return f.HorizontalAccuracy >= 0
}

// Heading is a compass reading. A negative Accuracy marks an invalid reading.
type Heading struct {
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
	Degrees   float64   `json:"degrees" yaml:"degrees"`
	Accuracy  float64   `json:"accuracy" yaml:"accuracy"`
}

// Recording is a trip: a total time segment, its pauses and aggregate stats.
// Points are not held inline; they live in the store keyed by recording ID.
type Recording struct {
	ID               uuid.UUID     `json:"id"`
	Name             string        `json:"name"`
	TotalTimeSegment TimeSegment   `json:"total_time_segment"`
	Pauses           []TimeSegment `json:"pauses,omitempty"`
	TotalDistance    float64       `json:"total_distance"`
	MaxSpeed         float64       `json:"max_speed"`
	AverageSpeed     float64       `json:"average_speed"`
	PointCount       int           `json:"point_count"`
	CreatedAt        time.Time     `json:"created_at"`
}

// NewRecording creates a recording with a generated UUID and an open total
// time segment starting at now.
func NewRecording(name string, now time.Time) *Recording {
	return NewRecordingWithID(uuid.New(), name, now)
}

// NewRecordingWithID creates a recording under an existing reference. An
// empty name is replaced by one derived from now.
func NewRecordingWithID(id uuid.UUID, name string, now time.Time) *Recording {
	if name == "" {
		name = DefaultRecordingName(now)
	}
	return &Recording{
		ID:               id,
		Name:             name,
		TotalTimeSegment: NewOpenSegment(now),
		CreatedAt:        now,
	}
}

// IsFinished reports whether the total time segment is closed.
func (r *Recording) IsFinished() bool {
	return !r.TotalTimeSegment.IsOpen()
}

// SortPauses orders pauses by start time; pauses without a start sort first.
func (r *Recording) SortPauses() {
	sort.SliceStable(r.Pauses, func(i, j int) bool {
		a, b := r.Pauses[i].StartTime, r.Pauses[j].StartTime
		if a == nil || b == nil {
			return a == nil && b != nil
		}
		return a.Before(*b)
	})
}

// LatestPause returns the pause with the latest start time.
func (r *Recording) LatestPause() (*TimeSegment, bool) {
	if len(r.Pauses) == 0 {
		return nil, false
	}
	latest := 0
	for i := 1; i < len(r.Pauses); i++ {
		cur, best := r.Pauses[i].StartTime, r.Pauses[latest].StartTime
		if cur != nil && (best == nil || !cur.Before(*best)) {
			latest = i
		}
	}
	return &r.Pauses[latest], true
}

// Duration is the total time of the recording, pauses included.
func (r *Recording) Duration(now time.Time) time.Duration {
	return r.TotalTimeSegment.EffectiveDuration(now)
}

// ActiveDuration is the total time minus the pauses, never negative.
func (r *Recording) ActiveDuration(now time.Time) time.Duration {
	active := r.Duration(now)
	for _, p := range r.Pauses {
		active -= p.EffectiveDuration(now)
	}
	if active < 0 {
		return 0
	}
	return active
}

// Snapshot returns the read-only summary handed to observers.
func (r *Recording) Snapshot() RecordingSnapshot {
	snap := RecordingSnapshot{
		ID:            r.ID,
		Name:          r.Name,
		TotalDistance: r.TotalDistance,
		MaxSpeed:      r.MaxSpeed,
		PointCount:    r.PointCount,
		Finished:      r.IsFinished(),
	}
	if r.TotalTimeSegment.StartTime != nil {
		snap.StartTime = *r.TotalTimeSegment.StartTime
	}
	return snap
}

// RecordingSnapshot is an immutable summary of a recording.
type RecordingSnapshot struct {
	ID            uuid.UUID `json:"id"`
	Name          string    `json:"name"`
	TotalDistance float64   `json:"total_distance"`
	MaxSpeed      float64   `json:"max_speed"`
	PointCount    int       `json:"point_count"`
	StartTime     time.Time `json:"start_time"`
	Finished      bool      `json:"finished"`
}

// Point is a recorded fix attached to a recording segment.
type Point struct {
	ID                 string    `json:"id"`
	RecordingID        uuid.UUID `json:"recording_id"`
	Timestamp          time.Time `json:"timestamp"`
	Latitude           float64   `json:"latitude"`
	Longitude          float64   `json:"longitude"`
	Altitude           float64   `json:"altitude,omitempty"`
	HorizontalAccuracy float64   `json:"horizontal_accuracy"`
	Speed              float64   `json:"speed"`
	Heading            *float64  `json:"heading,omitempty"`
	SegmentID          int       `json:"segment_id"`
}

// NewPoint creates a point from a fix with a generated, time-sortable ID.
func NewPoint(recordingID uuid.UUID, fix Fix, heading *Heading, segmentID int) *Point {
	p := &Point{
		ID:                 ulid.Make().String(),
		RecordingID:        recordingID,
		Timestamp:          fix.Timestamp,
		Latitude:           fix.Latitude,
		Longitude:          fix.Longitude,
		Altitude:           fix.Altitude,
		HorizontalAccuracy: fix.HorizontalAccuracy,
		Speed:              fix.Speed,
		SegmentID:          segmentID,
	}
	if heading != nil && heading.Accuracy >= 0 {
		deg := heading.Degrees
		p.Heading = &deg
	}
	return p
}
