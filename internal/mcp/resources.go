// ABOUTME: MCP resource definitions
// ABOUTME: Provides a read-only view of the live recording status for AI agents

package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const statusURI = "triplog://status"

// StatusResource is the content of the status resource.
type StatusResource struct {
	Status    StatusOutput     `json:"status"`
	Recording *RecordingOutput `json:"recording,omitempty"`
}

func (s *Server) registerResources() {
	s.mcp.AddResource(&mcp.Resource{
		Name:        statusURI,
		Description: "Live recording status with a summary of the current trip",
		URI:         statusURI,
		MIMEType:    "application/json",
	}, s.handleStatusResource)
}

func (s *Server) handleStatusResource(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	output := StatusResource{Status: s.statusOutput()}

	rec, err := s.ctrl.CurrentRecording(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load current recording: %w", err)
	}
	if rec != nil {
		ro := recordingOutput(rec, s.ctrl.Now())
		output.Recording = &ro
	}

	jsonBytes, _ := json.MarshalIndent(output, "", "  ") //nolint:errchkjson // output is always serializable

	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{
			{
				URI:      statusURI,
				MIMEType: "application/json",
				Text:     string(jsonBytes),
			},
		},
	}, nil
}
