// ABOUTME: TimeSegment value type for recording spans and pauses
// ABOUTME: Closed interval with an optional duration and tri-state comparisons

package models

import "time"

// DegradedSegmentDuration is the arbitrary duration given to a segment that
// must be closed but has no start time.
const DegradedSegmentDuration = time.Second

// TimeSegment is a start time plus an optional duration. A segment without a
// duration is open (unfinished). A segment without a start time is invalid;
// comparisons involving it report ok == false.
type TimeSegment struct {
	StartTime *time.Time     `json:"start_time,omitempty"`
	Duration  *time.Duration `json:"duration,omitempty"`
}

// NewOpenSegment returns an open segment starting at start.
func NewOpenSegment(start time.Time) TimeSegment {
	return TimeSegment{StartTime: &start}
}

// NewClosedSegment returns a closed segment spanning [start, start+d].
func NewClosedSegment(start time.Time, d time.Duration) TimeSegment {
	return TimeSegment{StartTime: &start, Duration: &d}
}

// IsOpen reports whether the segment is unfinished.
func (s TimeSegment) IsOpen() bool {
	return s.Duration == nil
}

// HasStart reports whether the segment has a start time.
func (s TimeSegment) HasStart() bool {
	return s.StartTime != nil
}

// EndTime returns the end of a closed segment. It returns false for open or
// invalid segments, and for segments with a negative duration.
func (s TimeSegment) EndTime() (time.Time, bool) {
	if s.StartTime == nil || s.Duration == nil || *s.Duration < 0 {
		return time.Time{}, false
	}
	return s.StartTime.Add(*s.Duration), true
}

// EffectiveDuration is the duration of a closed segment, or the time elapsed
// since the start for an open one (never negative). Invalid open segments
// have an effective duration of zero.
func (s TimeSegment) EffectiveDuration(now time.Time) time.Duration {
	if s.Duration != nil {
		return *s.Duration
	}
	if s.StartTime == nil {
		return 0
	}
	if d := now.Sub(*s.StartTime); d > 0 {
		return d
	}
	return 0
}

// Close finishes the segment at now. A segment without a start time gets a
// start of now-1s and a duration of DegradedSegmentDuration; Close returns
// false in that case so the caller can log the repair.
func (s *TimeSegment) Close(now time.Time) bool {
	if s.StartTime == nil {
		start := now.Add(-DegradedSegmentDuration)
		d := DegradedSegmentDuration
		s.StartTime = &start
		s.Duration = &d
		return false
	}
	d := now.Sub(*s.StartTime)
	if d < 0 {
		d = 0
	}
	s.Duration = &d
	return true
}

// Contains reports whether t falls inside the segment. An open segment
// extends indefinitely. ok is false when the segment has no start time.
func (s TimeSegment) Contains(t time.Time) (contains, ok bool) {
	if s.StartTime == nil {
		return false, false
	}
	if t.Before(*s.StartTime) {
		return false, true
	}
	if s.IsOpen() {
		return true, true
	}
	end, valid := s.EndTime()
	if !valid {
		return false, false
	}
	return !t.After(end), true
}

// ContainsSegment reports whether other lies entirely inside s.
// ok is false when either segment has no start time.
func (s TimeSegment) ContainsSegment(other TimeSegment) (contains, ok bool) {
	if s.StartTime == nil || other.StartTime == nil {
		return false, false
	}
	if other.StartTime.Before(*s.StartTime) {
		return false, true
	}
	myEnd, myClosed := s.EndTime()
	otherEnd, otherClosed := other.EndTime()
	switch {
	case !myClosed:
		return true, true
	case !otherClosed:
		return false, true
	default:
		return !myEnd.Before(otherEnd), true
	}
}

// Intersects reports whether the two segments share at least one instant.
// ok is false when either segment has no start time.
func (s TimeSegment) Intersects(other TimeSegment) (intersects, ok bool) {
	if s.StartTime == nil || other.StartTime == nil {
		return false, false
	}
	myStart, otherStart := *s.StartTime, *other.StartTime
	myEnd, myClosed := s.EndTime()
	otherEnd, otherClosed := other.EndTime()

	switch {
	case !myClosed && !otherClosed:
		return true, true
	case !myClosed:
		return !otherEnd.Before(myStart), true
	case !otherClosed:
		return !myEnd.Before(otherStart), true
	default:
		return !otherStart.After(myEnd) && !myStart.After(otherEnd), true
	}
}
