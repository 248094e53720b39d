package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"feditest/internal/app"
	"feditest/internal/driver"
	"feditest/internal/plan"
	"feditest/pkg/logging"
)

// DriverInfo describes a registered driver.
type DriverInfo struct {
	Name           string              `json:"name"`
	Description    string              `json:"description,omitempty"`
	Capabilities   []driver.Capability `json:"capabilities"`
	VolatileFields []string            `json:"volatile_fields,omitempty"`
}

// ScenarioInfo describes a scenario of a test plan.
type ScenarioInfo struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Roles       []string `json:"roles"`
	Steps       int      `json:"steps"`
	Tags        []string `json:"tags,omitempty"`
	Skip        string   `json:"skip,omitempty"`
}

// Drivers returns the built-in drivers.
func Drivers(version string) ([]DriverInfo, error) {
	cfg := app.NewConfig("", "")
	cfg.Version = version
	a, err := app.NewApplication(cfg)
	if err != nil {
		return nil, err
	}
	var out []DriverInfo
	for _, e := range a.Registry().Entries() {
		out = append(out, DriverInfo{
			Name:           e.Name,
			Description:    e.Description,
			Capabilities:   e.Capabilities.List(),
			VolatileFields: e.VolatileFields,
		})
	}
	return out, nil
}

// Scenarios returns the scenarios of the plan at testsDir.
func Scenarios(testsDir string) (string, []ScenarioInfo, error) {
	p, err := plan.Load(testsDir)
	if err != nil {
		return "", nil, err
	}
	out := make([]ScenarioInfo, 0, len(p.Scenarios))
	for i := range p.Scenarios {
		s := &p.Scenarios[i]
		out = append(out, ScenarioInfo{
			Name:        s.Name,
			Description: s.Description,
			Roles:       s.RoleNames(),
			Steps:       len(s.Steps),
			Tags:        s.Tags,
			Skip:        s.Skip,
		})
	}
	return p.Name, out, nil
}

func (s *Server) handleListDrivers(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	drivers, err := Drivers(s.version)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list drivers: %v", err)), nil
	}
	return jsonResult(drivers)
}

func (s *Server) handleListScenarios(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	testsDir, err := request.RequireString("testsdir")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	name, scenarios, err := Scenarios(testsDir)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to load test plan: %v", err)), nil
	}
	return jsonResult(map[string]interface{}{"plan": name, "scenarios": scenarios})
}

func (s *Server) handleRunPlan(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	testsDir, err := request.RequireString("testsdir")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	spec, err := request.RequireString("constellation")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	cfg := app.NewConfig(testsDir, spec)
	cfg.Output = app.OutputNone
	cfg.Version = s.version
	if mode := request.GetString("mode", ""); mode != "" {
		cfg.Run.Mode = mode
	}
	cfg.Run.Session = request.GetString("session", "")
	if pattern := request.GetString("scenario", ""); pattern != "" {
		cfg.Scenarios = []string{pattern}
	}
	if raw := request.GetString("step_timeout", ""); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid step_timeout: %v", err)), nil
		}
		cfg.Run.StepTimeout = d
	}
	cfg.Run.ContinueOnFailure = request.GetBool("continue_on_failure", false)

	a, err := app.NewApplication(cfg)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	logging.Info("MCP", "Running test plan %s against %s", testsDir, spec)
	rep, err := a.Run(ctx)
	if err != nil && rep == nil {
		return mcp.NewToolResultError(fmt.Sprintf("Run failed: %v", err)), nil
	}
	return jsonResult(rep)
}

func jsonResult(v interface{}) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to format result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
