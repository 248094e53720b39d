package mcpserver

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"feditest/internal/report"
)

func call(t *testing.T, handler func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error), args map[string]interface{}) (string, bool) {
	t.Helper()
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	result, err := handler(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, result.Content, 1)
	text, ok := mcp.AsTextContent(result.Content[0])
	require.True(t, ok)
	return text.Text, result.IsError
}

func TestListDrivers(t *testing.T) {
	s := NewServer("test")
	text, isErr := call(t, s.handleListDrivers, nil)
	require.False(t, isErr, text)

	var drivers []DriverInfo
	require.NoError(t, json.Unmarshal([]byte(text), &drivers))
	names := make([]string, len(drivers))
	for i, d := range drivers {
		names[i] = d.Name
	}
	assert.Contains(t, names, "webclient")
	assert.Contains(t, names, "sandbox-client")
}

func TestListScenarios(t *testing.T) {
	s := NewServer("test")

	text, isErr := call(t, s.handleListScenarios, map[string]interface{}{"testsdir": "../../examples/sandbox"})
	require.False(t, isErr, text)
	var listing struct {
		Plan      string         `json:"plan"`
		Scenarios []ScenarioInfo `json:"scenarios"`
	}
	require.NoError(t, json.Unmarshal([]byte(text), &listing))
	assert.Equal(t, "sandbox", listing.Plan)
	require.NotEmpty(t, listing.Scenarios)
	assert.Contains(t, listing.Scenarios[0].Roles, "client")

	_, isErr = call(t, s.handleListScenarios, map[string]interface{}{})
	assert.True(t, isErr)

	text, isErr = call(t, s.handleListScenarios, map[string]interface{}{"testsdir": "does/not/exist"})
	assert.True(t, isErr)
	assert.Contains(t, text, "Failed to load test plan")
}

func TestRunPlan(t *testing.T) {
	s := NewServer("test")
	text, isErr := call(t, s.handleRunPlan, map[string]interface{}{
		"testsdir":      "../../examples/sandbox",
		"constellation": "../../examples/constellations/sandbox-faulty.yaml",
		"scenario":      "multiply",
		"step_timeout":  "5s",
	})
	require.False(t, isErr, text)

	var rep report.Report
	require.NoError(t, json.Unmarshal([]byte(text), &rep))
	require.Len(t, rep.Scenarios, 1)
	assert.Equal(t, report.StatusFailed, rep.Scenarios[0].Status)

	text, isErr = call(t, s.handleRunPlan, map[string]interface{}{
		"testsdir":      "../../examples/sandbox",
		"constellation": "../../examples/constellations/sandbox.yaml",
		"step_timeout":  "soon",
	})
	assert.True(t, isErr)
	assert.Contains(t, text, "invalid step_timeout")
}
