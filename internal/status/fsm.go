// ABOUTME: Pure recording status state machine
// ABOUTME: Transition returns the next status plus the store effects the caller must run

package status

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ErrIllegalTransition is returned when an event is not valid in the current status.
var ErrIllegalTransition = errors.New("illegal status transition")

// EventKind names a status event.
type EventKind string

const (
	EventStart       EventKind = "start"
	EventPause       EventKind = "pause"
	EventResume      EventKind = "resume"
	EventStop        EventKind = "stop"
	EventSystemPause EventKind = "system-pause"
)

// Event drives a transition. NewRecordingID is required for EventStart and
// becomes the reference of the recording the start effect creates.
type Event struct {
	Kind           EventKind
	NewRecordingID uuid.UUID
}

// EffectKind names a store mutation requested by a transition.
type EffectKind string

const (
	EffectCreateRecording EffectKind = "create-recording"
	EffectOpenPause       EffectKind = "open-pause"
	EffectClosePause      EffectKind = "close-pause"
	EffectFinishRecording EffectKind = "finish-recording"
)

// Effect is a store mutation against one recording.
type Effect struct {
	Kind        EffectKind
	RecordingID uuid.UUID
}

// Transition computes the status that follows ev in from, along with the
// effects to execute once the new status is committed. It never mutates
// anything. Finishing a paused recording closes its pause as part of the
// finish effect.
func Transition(from Status, ev Event) (Status, []Effect, error) {
	switch ev.Kind {
	case EventStart:
		if !from.IsStopped() {
			return from, nil, illegal(from, ev)
		}
		if ev.NewRecordingID == uuid.Nil {
			return from, nil, fmt.Errorf("start requires a new recording id")
		}
		return Recording(ev.NewRecordingID, 0),
			[]Effect{{Kind: EffectCreateRecording, RecordingID: ev.NewRecordingID}}, nil

	case EventPause, EventSystemPause:
		if !from.IsRecording() {
			return from, nil, illegal(from, ev)
		}
		return Paused(from.RecordingID, from.SegmentID),
			[]Effect{{Kind: EffectOpenPause, RecordingID: from.RecordingID}}, nil

	case EventResume:
		if !from.IsPaused() {
			return from, nil, illegal(from, ev)
		}
		return Recording(from.RecordingID, from.SegmentID+1),
			[]Effect{{Kind: EffectClosePause, RecordingID: from.RecordingID}}, nil

	case EventStop:
		if from.IsStopped() {
			return from, nil, illegal(from, ev)
		}
		return Stopped(),
			[]Effect{{Kind: EffectFinishRecording, RecordingID: from.RecordingID}}, nil

	default:
		return from, nil, fmt.Errorf("unknown event %q", ev.Kind)
	}
}

func illegal(from Status, ev Event) error {
	return fmt.Errorf("%w: cannot %s while %s", ErrIllegalTransition, ev.Kind, from.State)
}
