// ABOUTME: Tests for MCP server, tools, and resources
// ABOUTME: Drives a real controller over an in-memory store through the tool handlers

package mcp

import (
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/harper/triplog/internal/recorder"
	"github.com/harper/triplog/internal/replay"
	"github.com/harper/triplog/internal/status"
	"github.com/harper/triplog/internal/storage"
)

var t0 = time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)

type testEnv struct {
	server   *Server
	ctrl     *recorder.Controller
	store    storage.TripStore
	provider *replay.Provider
	clock    *replay.Clock
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := log.New(io.Discard)

	store, err := storage.NewBadgerStore("", logger)
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	history, err := status.OpenHistory("", logger)
	if err != nil {
		t.Fatalf("failed to open history: %v", err)
	}

	env := &testEnv{
		store:    store,
		provider: replay.NewProvider(recorder.AuthWhenInUse, 8),
		clock:    replay.NewClock(t0),
	}
	env.ctrl, err = recorder.New(context.Background(), recorder.Deps{
		Store:    store,
		History:  history,
		Provider: env.provider,
		Clock:    env.clock,
		Logger:   logger,
	}, recorder.Options{})
	if err != nil {
		t.Fatalf("failed to create controller: %v", err)
	}

	env.server, err = NewServer(env.ctrl, logger)
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}
	return env
}

func strPtr(s string) *string { return &s }

func floatPtr(f float64) *float64 { return &f }

func TestNewServer(t *testing.T) {
	env := newTestEnv(t)
	if env.server.mcp == nil {
		t.Error("expected non-nil mcp server")
	}
	if env.server.ctrl == nil {
		t.Error("expected non-nil controller")
	}
}

func TestNewServer_NilController(t *testing.T) {
	_, err := NewServer(nil, nil)
	if err == nil {
		t.Error("expected error for nil controller")
	}
}

func TestCommandTools(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	result, output, err := env.server.handleStart(ctx, nil, StartInput{Name: "errand"})
	if err != nil {
		t.Fatalf("handleStart failed: %v", err)
	}
	if result == nil {
		t.Fatal("expected non-nil result")
	}
	if output.State != string(status.StateRecording) || output.RecordingID == "" {
		t.Errorf("expected recording status, got %+v", output)
	}

	steps := []struct {
		cmd   recorder.Command
		state status.State
		seg   int
	}{
		{recorder.CommandPause, status.StatePaused, 0},
		{recorder.CommandResume, status.StateRecording, 1},
		{recorder.CommandStop, status.StateStopped, 0},
	}
	for _, step := range steps {
		env.clock.Set(env.clock.Now().Add(time.Minute))
		_, output, err := env.server.commandHandler(step.cmd)(ctx, nil, EmptyInput{})
		if err != nil {
			t.Fatalf("%s failed: %v", step.cmd, err)
		}
		if output.State != string(step.state) || output.SegmentID != step.seg {
			t.Errorf("%s: expected %s/%d, got %+v", step.cmd, step.state, step.seg, output)
		}
	}
}

func TestCommandTools_IllegalCommand(t *testing.T) {
	env := newTestEnv(t)
	_, _, err := env.server.commandHandler(recorder.CommandPause)(context.Background(), nil, EmptyInput{})
	if err == nil {
		t.Error("expected error when pausing while stopped")
	}
}

func TestHandleStart_InvalidName(t *testing.T) {
	env := newTestEnv(t)
	_, _, err := env.server.handleStart(context.Background(), nil, StartInput{Name: "   "})
	if err == nil {
		t.Error("expected error for blank name")
	}
}

func TestHandleReportLocation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	if _, _, err := env.server.handleStart(ctx, nil, StartInput{}); err != nil {
		t.Fatalf("start: %v", err)
	}

	env.clock.Set(t0.Add(10 * time.Second))
	_, output, err := env.server.handleReportLocation(ctx, nil, ReportLocationInput{
		Latitude:  41.8781,
		Longitude: -87.6298,
		Speed:     floatPtr(2),
	})
	if err != nil {
		t.Fatalf("handleReportLocation failed: %v", err)
	}
	if !output.Accepted {
		t.Errorf("expected fix to be accepted, got %+v", output)
	}

	// same place again is filtered
	_, output, err = env.server.handleReportLocation(ctx, nil, ReportLocationInput{
		Latitude:  41.8781,
		Longitude: -87.6298,
		At:        strPtr(t0.Add(20 * time.Second).Format(time.RFC3339)),
	})
	if err != nil {
		t.Fatalf("handleReportLocation failed: %v", err)
	}
	if !output.Discarded {
		t.Errorf("expected fix to be discarded, got %+v", output)
	}

	_, snap, err := env.server.handleGetSnapshot(ctx, nil, EmptyInput{})
	if err != nil {
		t.Fatalf("handleGetSnapshot failed: %v", err)
	}
	if !snap.Active || snap.Recording == nil || snap.Recording.PointCount != 1 {
		t.Errorf("expected active snapshot with 1 point, got %+v", snap)
	}
	if snap.Recording.MaxSpeed != 2 {
		t.Errorf("expected max speed 2, got %f", snap.Recording.MaxSpeed)
	}
}

func TestHandleReportLocation_InvalidInput(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if _, _, err := env.server.handleReportLocation(ctx, nil, ReportLocationInput{Latitude: 91}); err == nil {
		t.Error("expected error for invalid latitude")
	}
	if _, _, err := env.server.handleReportLocation(ctx, nil, ReportLocationInput{At: strPtr("yesterday")}); err == nil {
		t.Error("expected error for invalid timestamp")
	}
}

func TestHandleReportLocation_UpdatesCurrentFix(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, _, err := env.server.handleReportLocation(ctx, nil, ReportLocationInput{Latitude: 41.9, Longitude: -87.6, Accuracy: floatPtr(8)})
	if err != nil {
		t.Fatalf("handleReportLocation failed: %v", err)
	}

	_, output, err := env.server.handleGetStatus(ctx, nil, EmptyInput{})
	if err != nil {
		t.Fatalf("handleGetStatus failed: %v", err)
	}
	if output.State != string(status.StateStopped) {
		t.Errorf("expected stopped, got %s", output.State)
	}
	if output.CurrentFix == nil || output.CurrentFix.Accuracy != 8 {
		t.Errorf("expected current fix with accuracy 8, got %+v", output.CurrentFix)
	}
	if !output.CanRecord {
		t.Error("expected can_record true")
	}
}

func TestHandleGetSnapshot_Stopped(t *testing.T) {
	env := newTestEnv(t)
	_, output, err := env.server.handleGetSnapshot(context.Background(), nil, EmptyInput{})
	if err != nil {
		t.Fatalf("handleGetSnapshot failed: %v", err)
	}
	if output.Active || output.Recording != nil {
		t.Errorf("expected inactive snapshot, got %+v", output)
	}
}

func TestHandleListRecordings(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	for i, name := range []string{"first", "second", "third"} {
		env.clock.Set(t0.Add(time.Duration(i) * time.Hour))
		if _, _, err := env.server.handleStart(ctx, nil, StartInput{Name: name}); err != nil {
			t.Fatalf("start: %v", err)
		}
		env.clock.Set(t0.Add(time.Duration(i)*time.Hour + 30*time.Minute))
		if _, _, err := env.server.commandHandler(recorder.CommandStop)(ctx, nil, EmptyInput{}); err != nil {
			t.Fatalf("stop: %v", err)
		}
	}

	_, output, err := env.server.handleListRecordings(ctx, nil, ListRecordingsInput{Limit: 2})
	if err != nil {
		t.Fatalf("handleListRecordings failed: %v", err)
	}
	if output.Count != 2 {
		t.Fatalf("expected 2 recordings, got %d", output.Count)
	}
	if output.Recordings[0].Name != "third" {
		t.Errorf("expected newest first, got %q", output.Recordings[0].Name)
	}
	if !output.Recordings[0].Finished || output.Recordings[0].Duration != "30m0s" {
		t.Errorf("expected finished 30m recording, got %+v", output.Recordings[0])
	}
}

func TestHandleCheckConsistency(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	if _, _, err := env.server.handleStart(ctx, nil, StartInput{}); err != nil {
		t.Fatalf("start: %v", err)
	}

	_, output, err := env.server.handleCheckConsistency(ctx, nil, EmptyInput{})
	if err != nil {
		t.Fatalf("handleCheckConsistency failed: %v", err)
	}
	if !output.Consistent || len(output.Violations) != 0 {
		t.Errorf("expected consistent store, got %+v", output)
	}
}

func TestHandleGetDataLoss(t *testing.T) {
	env := newTestEnv(t)
	_, output, err := env.server.handleGetDataLoss(context.Background(), nil, DataLossInput{Retry: true})
	if err != nil {
		t.Fatalf("handleGetDataLoss failed: %v", err)
	}
	if output.Count != 0 || len(output.Failed) != 0 {
		t.Errorf("expected no data loss, got %+v", output)
	}
}

func TestHandleStatusResource(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	if _, _, err := env.server.handleStart(ctx, nil, StartInput{Name: "walk"}); err != nil {
		t.Fatalf("start: %v", err)
	}

	result, err := env.server.handleStatusResource(ctx, nil)
	if err != nil {
		t.Fatalf("handleStatusResource failed: %v", err)
	}
	if len(result.Contents) != 1 {
		t.Fatalf("expected 1 content, got %d", len(result.Contents))
	}
	if result.Contents[0].URI != "triplog://status" {
		t.Errorf("expected URI 'triplog://status', got %q", result.Contents[0].URI)
	}
	if result.Contents[0].MIMEType != "application/json" {
		t.Errorf("expected MIME type 'application/json', got %q", result.Contents[0].MIMEType)
	}

	var res StatusResource
	if err := json.Unmarshal([]byte(result.Contents[0].Text), &res); err != nil {
		t.Fatalf("invalid resource JSON: %v", err)
	}
	if res.Status.State != string(status.StateRecording) {
		t.Errorf("expected recording, got %s", res.Status.State)
	}
	if res.Recording == nil || res.Recording.Name != "walk" {
		t.Errorf("expected current recording walk, got %+v", res.Recording)
	}
}
