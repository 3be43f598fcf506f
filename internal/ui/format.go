// ABOUTME: Terminal UI formatting utilities
// ABOUTME: Provides human-readable output for status, recordings, points, and violations

package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/harper/triplog/internal/models"
	"github.com/harper/triplog/internal/status"
	"github.com/harper/triplog/internal/storage"
)

var (
	faint = color.New(color.Faint)
	green = color.New(color.FgGreen)
	red   = color.New(color.FgRed)
	cyan  = color.New(color.FgCyan)
)

// FormatStatus formats the recording status for terminal display.
func FormatStatus(st status.Status) string {
	id, ok := st.RecordingRef()
	switch {
	case st.IsRecording():
		return fmt.Sprintf("%s %s", color.GreenString("● recording"), faint.Sprintf("%s segment %d", shortID(id.String()), st.SegmentID))
	case st.IsPaused() && ok:
		return fmt.Sprintf("%s %s", color.YellowString("‖ paused"), faint.Sprintf("%s segment %d", shortID(id.String()), st.SegmentID))
	default:
		return faint.Sprint("■ stopped")
	}
}

// FormatRecording formats a one-line recording summary.
func FormatRecording(rec *models.Recording, now time.Time) string {
	if rec == nil {
		return faint.Sprint("(no recording)")
	}

	state := faint.Sprint("finished")
	if !rec.IsFinished() {
		state = color.GreenString("active")
	}

	started := "no start"
	if rec.TotalTimeSegment.StartTime != nil {
		started = rec.TotalTimeSegment.StartTime.Local().Format("Jan 2, 3:04 PM")
	}

	return fmt.Sprintf("%s %s - %s, %s, %s points - %s %s",
		cyan.Sprint(shortID(rec.ID.String())),
		green.Sprint(rec.Name),
		FormatDistance(rec.TotalDistance),
		FormatDuration(rec.ActiveDuration(now)),
		humanize.Comma(int64(rec.PointCount)),
		faint.Sprint(started),
		state)
}

// FormatRecordingDetail formats a recording with its stats and pauses.
func FormatRecordingDetail(rec *models.Recording, now time.Time) string {
	if rec == nil {
		return faint.Sprint("(no recording)")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n", green.Sprint(rec.Name), faint.Sprint(rec.ID.String()))
	fmt.Fprintf(&b, "  started:  %s\n", formatOptionalTime(rec.TotalTimeSegment.StartTime))
	if end, ok := rec.TotalTimeSegment.EndTime(); ok {
		fmt.Fprintf(&b, "  finished: %s\n", end.Local().Format("Jan 2, 3:04:05 PM"))
	} else {
		fmt.Fprintf(&b, "  finished: %s\n", color.GreenString("still recording"))
	}
	fmt.Fprintf(&b, "  duration: %s (%s moving)\n", FormatDuration(rec.Duration(now)), FormatDuration(rec.ActiveDuration(now)))
	fmt.Fprintf(&b, "  distance: %s\n", FormatDistance(rec.TotalDistance))
	fmt.Fprintf(&b, "  speed:    %s avg, %s max\n", FormatSpeed(rec.AverageSpeed), FormatSpeed(rec.MaxSpeed))
	fmt.Fprintf(&b, "  points:   %s\n", humanize.Comma(int64(rec.PointCount)))

	if len(rec.Pauses) > 0 {
		fmt.Fprintf(&b, "  pauses:\n")
		for _, p := range rec.Pauses {
			fmt.Fprintf(&b, "    %s\n", FormatPause(p, now))
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// FormatPause formats a pause segment.
func FormatPause(p models.TimeSegment, now time.Time) string {
	start := formatOptionalTime(p.StartTime)
	if p.IsOpen() {
		return fmt.Sprintf("%s - %s", start, color.YellowString("open"))
	}
	return fmt.Sprintf("%s for %s", start, FormatDuration(p.EffectiveDuration(now)))
}

// FormatPoint formats a recorded point for listing.
func FormatPoint(p *models.Point) string {
	if p == nil {
		return faint.Sprint("  (no point)")
	}
	line := fmt.Sprintf("  %s %s ±%.0fm seg %d",
		p.Timestamp.Local().Format("15:04:05"),
		color.CyanString("(%.5f, %.5f)", p.Latitude, p.Longitude),
		p.HorizontalAccuracy,
		p.SegmentID)
	if p.Speed >= 0 {
		line += " " + faint.Sprint(FormatSpeed(p.Speed))
	}
	if p.Heading != nil {
		line += " " + faint.Sprintf("%.0f°", *p.Heading)
	}
	return line
}

// FormatFix formats the current fix.
func FormatFix(fix *models.Fix) string {
	if fix == nil {
		return faint.Sprint("(no fix)")
	}
	return fmt.Sprintf("%s ±%.0fm - %s",
		color.CyanString("(%.5f, %.5f)", fix.Latitude, fix.Longitude),
		fix.HorizontalAccuracy,
		faint.Sprint(FormatRelativeTime(fix.Timestamp)))
}

// FormatViolation formats a consistency violation.
func FormatViolation(v storage.Violation) string {
	target := shortID(v.RecordingID.String())
	if v.PointID != "" {
		target += " point " + v.PointID
	}
	return fmt.Sprintf("%s %s %s", red.Sprint(v.Kind), cyan.Sprint(target), v.Detail)
}

// FormatDistance formats meters, switching to SI prefixes above a kilometer.
func FormatDistance(meters float64) string {
	if meters < 1000 {
		return fmt.Sprintf("%.0f m", meters)
	}
	return humanize.SIWithDigits(meters, 2, "m")
}

// FormatSpeed formats meters per second as km/h.
func FormatSpeed(mps float64) string {
	if mps < 0 {
		return "unknown"
	}
	return fmt.Sprintf("%.1f km/h", mps*3.6)
}

// FormatDuration formats a duration rounded to the second.
func FormatDuration(d time.Duration) string {
	return d.Round(time.Second).String()
}

// FormatRelativeTime formats a time as relative to now.
func FormatRelativeTime(t time.Time) string {
	diff := time.Since(t)

	// Handle future times (clock skew, bad data)
	if diff < 0 {
		return color.YellowString("in the future")
	}

	if diff < time.Minute {
		return "just now"
	}
	if diff < time.Hour {
		mins := int(diff.Minutes())
		if mins == 1 {
			return "1 minute ago"
		}
		return fmt.Sprintf("%d minutes ago", mins)
	}
	if diff < 24*time.Hour {
		hours := int(diff.Hours())
		if hours == 1 {
			return "1 hour ago"
		}
		return fmt.Sprintf("%d hours ago", hours)
	}
	days := int(diff.Hours() / 24)
	if days == 1 {
		return "1 day ago"
	}
	return fmt.Sprintf("%d days ago", days)
}

func formatOptionalTime(t *time.Time) string {
	if t == nil {
		return color.RedString("missing")
	}
	return t.Local().Format("Jan 2, 3:04:05 PM")
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
