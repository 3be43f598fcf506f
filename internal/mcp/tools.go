// ABOUTME: MCP tool definitions and handlers
// ABOUTME: Recording commands, status, location reports and diagnostics for AI agents

package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/harper/triplog/internal/models"
	"github.com/harper/triplog/internal/recorder"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

func (s *Server) registerTools() {
	s.registerCommandTools()
	s.registerGetStatusTool()
	s.registerGetSnapshotTool()
	s.registerReportLocationTool()
	s.registerListRecordingsTool()
	s.registerCheckConsistencyTool()
	s.registerGetDataLossTool()
}

var emptySchema = map[string]interface{}{
	"type":       "object",
	"properties": map[string]interface{}{},
}

// EmptyInput is the input of tools that take no arguments.
type EmptyInput struct{}

// FixOutput is a location fix.
type FixOutput struct {
	Timestamp string  `json:"timestamp"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Accuracy  float64 `json:"accuracy"`
	Speed     float64 `json:"speed"`
}

// StatusOutput describes the live recording status.
type StatusOutput struct {
	State       string     `json:"state"`
	RecordingID string     `json:"recording_id,omitempty"`
	SegmentID   int        `json:"segment_id"`
	CanRecord   bool       `json:"can_record"`
	CurrentFix  *FixOutput `json:"current_fix,omitempty"`
	DataLoss    int        `json:"data_loss"`
}

// RecordingOutput summarizes a recording.
type RecordingOutput struct {
	ID             string  `json:"id"`
	Name           string  `json:"name"`
	Start          string  `json:"start,omitempty"`
	Finished       bool    `json:"finished"`
	Duration       string  `json:"duration"`
	ActiveDuration string  `json:"active_duration"`
	DistanceMeters float64 `json:"distance_meters"`
	MaxSpeed       float64 `json:"max_speed"`
	AverageSpeed   float64 `json:"average_speed"`
	PointCount     int     `json:"point_count"`
	Pauses         int     `json:"pauses"`
}

func fixOutput(f models.Fix) *FixOutput {
	return &FixOutput{
		Timestamp: f.Timestamp.Format(time.RFC3339Nano),
		Latitude:  f.Latitude,
		Longitude: f.Longitude,
		Accuracy:  f.HorizontalAccuracy,
		Speed:     f.Speed,
	}
}

func recordingOutput(rec *models.Recording, now time.Time) RecordingOutput {
	out := RecordingOutput{
		ID:             rec.ID.String(),
		Name:           rec.Name,
		Finished:       rec.IsFinished(),
		Duration:       rec.Duration(now).Round(time.Second).String(),
		ActiveDuration: rec.ActiveDuration(now).Round(time.Second).String(),
		DistanceMeters: rec.TotalDistance,
		MaxSpeed:       rec.MaxSpeed,
		AverageSpeed:   rec.AverageSpeed,
		PointCount:     rec.PointCount,
		Pauses:         len(rec.Pauses),
	}
	if rec.TotalTimeSegment.StartTime != nil {
		out.Start = rec.TotalTimeSegment.StartTime.Format(time.RFC3339)
	}
	return out
}

func (s *Server) statusOutput() StatusOutput {
	st := s.ctrl.Status()
	out := StatusOutput{
		State:     string(st.State),
		SegmentID: st.SegmentID,
		CanRecord: s.ctrl.CanRecord(),
		DataLoss:  s.ctrl.DataLossCount(),
	}
	if id, ok := st.RecordingRef(); ok {
		out.RecordingID = id.String()
	}
	if fix := s.ctrl.CurrentFix(); fix != nil {
		out.CurrentFix = fixOutput(*fix)
	}
	return out
}

func jsonResult(v any) *mcp.CallToolResult {
	jsonBytes, _ := json.MarshalIndent(v, "", "  ") //nolint:errchkjson // output is always serializable
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(jsonBytes)}},
	}
}

// StartInput defines input for start_recording tool.
type StartInput struct {
	Name string `json:"name,omitempty"`
}

func (s *Server) registerCommandTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "start_recording",
		Description: "Start recording a new trip. Fails if a trip is already being recorded or location permission is denied.",
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"name": map[string]interface{}{
					"type":        "string",
					"description": "Optional trip name (defaults to one derived from the start time)",
				},
			},
		},
	}, s.handleStart)

	for _, tool := range []struct {
		name, description string
		cmd               recorder.Command
	}{
		{"pause_recording", "Pause the trip being recorded. Fixes are ignored until it is resumed.", recorder.CommandPause},
		{"resume_recording", "Resume a paused trip. Points after resuming start a new segment.", recorder.CommandResume},
		{"stop_recording", "Stop and finish the current trip.", recorder.CommandStop},
	} {
		mcp.AddTool(s.mcp, &mcp.Tool{
			Name:        tool.name,
			Description: tool.description,
			InputSchema: emptySchema,
		}, s.commandHandler(tool.cmd))
	}
}

func (s *Server) handleStart(ctx context.Context, _ *mcp.CallToolRequest, input StartInput) (*mcp.CallToolResult, StatusOutput, error) {
	if err := s.ctrl.StartWithName(ctx, input.Name); err != nil {
		return nil, StatusOutput{}, err
	}
	output := s.statusOutput()
	return jsonResult(output), output, nil
}

func (s *Server) commandHandler(cmd recorder.Command) func(context.Context, *mcp.CallToolRequest, EmptyInput) (*mcp.CallToolResult, StatusOutput, error) {
	return func(ctx context.Context, _ *mcp.CallToolRequest, _ EmptyInput) (*mcp.CallToolResult, StatusOutput, error) {
		if err := s.ctrl.Command(ctx, cmd); err != nil {
			return nil, StatusOutput{}, err
		}
		output := s.statusOutput()
		return jsonResult(output), output, nil
	}
}

func (s *Server) registerGetStatusTool() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "get_status",
		Description: "Get the recording status, current location and data loss count.",
		InputSchema: emptySchema,
	}, s.handleGetStatus)
}

func (s *Server) handleGetStatus(_ context.Context, _ *mcp.CallToolRequest, _ EmptyInput) (*mcp.CallToolResult, StatusOutput, error) {
	output := s.statusOutput()
	return jsonResult(output), output, nil
}

// SnapshotOutput defines output for get_snapshot tool.
type SnapshotOutput struct {
	Active    bool             `json:"active"`
	Recording *RecordingOutput `json:"recording,omitempty"`
}

func (s *Server) registerGetSnapshotTool() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "get_snapshot",
		Description: "Get a summary of the trip currently being recorded or paused.",
		InputSchema: emptySchema,
	}, s.handleGetSnapshot)
}

func (s *Server) handleGetSnapshot(ctx context.Context, _ *mcp.CallToolRequest, _ EmptyInput) (*mcp.CallToolResult, SnapshotOutput, error) {
	rec, err := s.ctrl.CurrentRecording(ctx)
	if err != nil {
		return nil, SnapshotOutput{}, fmt.Errorf("failed to load recording: %w", err)
	}
	if rec == nil {
		output := SnapshotOutput{}
		return jsonResult(output), output, nil
	}
	ro := recordingOutput(rec, s.ctrl.Now())
	output := SnapshotOutput{Active: true, Recording: &ro}
	return jsonResult(output), output, nil
}

// ReportLocationInput defines input for report_location tool.
type ReportLocationInput struct {
	Latitude  float64  `json:"latitude"`
	Longitude float64  `json:"longitude"`
	Accuracy  *float64 `json:"accuracy,omitempty"`
	Speed     *float64 `json:"speed,omitempty"`
	Altitude  float64  `json:"altitude,omitempty"`
	At        *string  `json:"at,omitempty"`
}

// ReportLocationOutput defines output for report_location tool.
type ReportLocationOutput struct {
	Accepted  bool   `json:"accepted"`
	Discarded bool   `json:"discarded"`
	Failed    bool   `json:"failed"`
	State     string `json:"state"`
}

func (s *Server) registerReportLocationTool() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "report_location",
		Description: "Report a GPS fix as if delivered by the device. The fix is recorded when a trip was recording at its timestamp and it is far enough from the previous point.",
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"latitude": map[string]interface{}{
					"type":        "number",
					"description": "Latitude coordinate (-90 to 90)",
				},
				"longitude": map[string]interface{}{
					"type":        "number",
					"description": "Longitude coordinate (-180 to 180)",
				},
				"accuracy": map[string]interface{}{
					"type":        "number",
					"description": "Horizontal accuracy in meters (default 5, negative marks an invalid fix)",
				},
				"speed": map[string]interface{}{
					"type":        "number",
					"description": "Speed in meters per second (default unknown)",
				},
				"altitude": map[string]interface{}{
					"type":        "number",
					"description": "Altitude in meters",
				},
				"at": map[string]interface{}{
					"type":        "string",
					"description": "Optional time the fix was sensed in RFC3339 format (defaults to now)",
				},
			},
			"required": []string{"latitude", "longitude"},
		},
	}, s.handleReportLocation)
}

func (s *Server) handleReportLocation(ctx context.Context, _ *mcp.CallToolRequest, input ReportLocationInput) (*mcp.CallToolResult, ReportLocationOutput, error) {
	if err := models.ValidateCoordinates(input.Latitude, input.Longitude); err != nil {
		return nil, ReportLocationOutput{}, err
	}

	fix := models.Fix{
		Timestamp:          s.ctrl.Now(),
		Latitude:           input.Latitude,
		Longitude:          input.Longitude,
		Altitude:           input.Altitude,
		HorizontalAccuracy: 5,
		Speed:              -1,
	}
	if input.At != nil {
		at, err := time.Parse(time.RFC3339, *input.At)
		if err != nil {
			return nil, ReportLocationOutput{}, fmt.Errorf("invalid timestamp: %w", err)
		}
		fix.Timestamp = at
	}
	if input.Accuracy != nil {
		fix.HorizontalAccuracy = *input.Accuracy
	}
	if input.Speed != nil {
		fix.Speed = *input.Speed
	}

	res := s.ctrl.HandleFixes(ctx, []models.Fix{fix})
	output := ReportLocationOutput{
		Accepted:  res.Accepted > 0,
		Discarded: res.Discarded > 0,
		Failed:    res.Failed > 0,
		State:     string(s.ctrl.Status().State),
	}
	return jsonResult(output), output, nil
}

// ListRecordingsInput defines input for list_recordings tool.
type ListRecordingsInput struct {
	Limit int `json:"limit,omitempty"`
}

// ListRecordingsOutput defines output for list_recordings tool.
type ListRecordingsOutput struct {
	Recordings []RecordingOutput `json:"recordings"`
	Count      int               `json:"count"`
}

func (s *Server) registerListRecordingsTool() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "list_recordings",
		Description: "List recorded trips, newest first.",
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of trips to return (default all)",
				},
			},
		},
	}, s.handleListRecordings)
}

func (s *Server) handleListRecordings(ctx context.Context, _ *mcp.CallToolRequest, input ListRecordingsInput) (*mcp.CallToolResult, ListRecordingsOutput, error) {
	recs, err := s.ctrl.Recordings(ctx)
	if err != nil {
		return nil, ListRecordingsOutput{}, fmt.Errorf("failed to list recordings: %w", err)
	}
	if input.Limit > 0 && len(recs) > input.Limit {
		recs = recs[:input.Limit]
	}

	now := s.ctrl.Now()
	output := ListRecordingsOutput{Recordings: make([]RecordingOutput, len(recs)), Count: len(recs)}
	for i, rec := range recs {
		output.Recordings[i] = recordingOutput(rec, now)
	}
	return jsonResult(output), output, nil
}

// ViolationOutput is one consistency violation.
type ViolationOutput struct {
	Kind        string `json:"kind"`
	RecordingID string `json:"recording_id,omitempty"`
	PointID     string `json:"point_id,omitempty"`
	Detail      string `json:"detail"`
}

// ConsistencyOutput defines output for check_consistency tool.
type ConsistencyOutput struct {
	Consistent bool              `json:"consistent"`
	Violations []ViolationOutput `json:"violations"`
}

func (s *Server) registerCheckConsistencyTool() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "check_consistency",
		Description: "Audit the trip store and status history for broken invariants. Reports problems without repairing them.",
		InputSchema: emptySchema,
	}, s.handleCheckConsistency)
}

func (s *Server) handleCheckConsistency(ctx context.Context, _ *mcp.CallToolRequest, _ EmptyInput) (*mcp.CallToolResult, ConsistencyOutput, error) {
	violations, err := s.ctrl.CheckConsistency(ctx)
	if err != nil {
		return nil, ConsistencyOutput{}, fmt.Errorf("failed to check consistency: %w", err)
	}

	output := ConsistencyOutput{
		Consistent: len(violations) == 0,
		Violations: make([]ViolationOutput, len(violations)),
	}
	for i, v := range violations {
		vo := ViolationOutput{Kind: string(v.Kind), PointID: v.PointID, Detail: v.Detail}
		if v.RecordingID != uuid.Nil {
			vo.RecordingID = v.RecordingID.String()
		}
		output.Violations[i] = vo
	}
	return jsonResult(output), output, nil
}

// DataLossOutput defines output for get_data_loss tool.
type DataLossOutput struct {
	Count  int               `json:"count"`
	Failed []FailedFixOutput `json:"failed"`
}

// FailedFixOutput is a fix that could not be saved.
type FailedFixOutput struct {
	Fix      FixOutput `json:"fix"`
	Reason   string    `json:"reason"`
	FailedAt string    `json:"failed_at"`
}

func (s *Server) registerGetDataLossTool() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "get_data_loss",
		Description: "List location fixes that could not be saved. Set retry to save them again.",
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"retry": map[string]interface{}{
					"type":        "boolean",
					"description": "Retry saving the failed fixes before reporting",
				},
			},
		},
	}, s.handleGetDataLoss)
}

// DataLossInput defines input for get_data_loss tool.
type DataLossInput struct {
	Retry bool `json:"retry,omitempty"`
}

func (s *Server) handleGetDataLoss(ctx context.Context, _ *mcp.CallToolRequest, input DataLossInput) (*mcp.CallToolResult, DataLossOutput, error) {
	if input.Retry {
		res := s.ctrl.RetryFailed(ctx)
		s.logger.Info("retried failed fixes", "accepted", res.Accepted, "failed", res.Failed)
	}

	failed := s.ctrl.FailedFixes()
	output := DataLossOutput{
		Count:  s.ctrl.DataLossCount(),
		Failed: make([]FailedFixOutput, len(failed)),
	}
	for i, f := range failed {
		output.Failed[i] = FailedFixOutput{
			Fix:      *fixOutput(f.Fix),
			Reason:   f.Reason,
			FailedAt: f.FailedAt.Format(time.RFC3339),
		}
	}
	return jsonResult(output), output, nil
}
