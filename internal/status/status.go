// ABOUTME: RecordingStatus tagged union: stopped, recording or paused
// ABOUTME: Carries the recording reference and point segment id with a stable JSON form

package status

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// State is the tag of a Status.
type State string

const (
	StateStopped   State = "stopped"
	StateRecording State = "recording"
	StatePaused    State = "paused"
)

// Status is the recording status. RecordingID and SegmentID are only
// meaningful when State is recording or paused. The zero value is stopped.
type Status struct {
	State       State
	RecordingID uuid.UUID
	SegmentID   int
}

// Stopped returns the stopped status.
func Stopped() Status {
	return Status{State: StateStopped}
}

// Recording returns a recording status for the given recording and segment.
func Recording(id uuid.UUID, segmentID int) Status {
	return Status{State: StateRecording, RecordingID: id, SegmentID: segmentID}
}

// Paused returns a paused status for the given recording and segment.
func Paused(id uuid.UUID, segmentID int) Status {
	return Status{State: StatePaused, RecordingID: id, SegmentID: segmentID}
}

func (s Status) IsStopped() bool   { return !s.IsRecording() && !s.IsPaused() }
func (s Status) IsRecording() bool { return s.State == StateRecording }
func (s Status) IsPaused() bool    { return s.State == StatePaused }

// RecordingRef returns the referenced recording when the status has one.
func (s Status) RecordingRef() (uuid.UUID, bool) {
	if s.IsStopped() {
		return uuid.Nil, false
	}
	return s.RecordingID, true
}

func (s Status) String() string {
	if s.IsStopped() {
		return string(StateStopped)
	}
	return fmt.Sprintf("%s(%s, segment %d)", s.State, s.RecordingID, s.SegmentID)
}

type statusJSON struct {
	State       State      `json:"state"`
	RecordingID *uuid.UUID `json:"recording_id,omitempty"`
	SegmentID   *int       `json:"segment_id,omitempty"`
}

func (s Status) MarshalJSON() ([]byte, error) {
	out := statusJSON{State: StateStopped}
	if !s.IsStopped() {
		out.State = s.State
		id, seg := s.RecordingID, s.SegmentID
		out.RecordingID = &id
		out.SegmentID = &seg
	}
	return json.Marshal(out)
}

func (s *Status) UnmarshalJSON(data []byte) error {
	var in statusJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	switch in.State {
	case StateStopped:
		*s = Stopped()
		return nil
	case StateRecording, StatePaused:
		if in.RecordingID == nil || in.SegmentID == nil {
			return fmt.Errorf("status %q requires recording_id and segment_id", in.State)
		}
		*s = Status{State: in.State, RecordingID: *in.RecordingID, SegmentID: *in.SegmentID}
		return nil
	default:
		return fmt.Errorf("unknown status state %q", in.State)
	}
}
