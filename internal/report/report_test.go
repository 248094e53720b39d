package report

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"feditest/internal/matcher"
	"feditest/internal/session"
)

func TestCounts_String(t *testing.T) {
	var c Counts
	for _, s := range []Status{StatusPassed, StatusErrored} {
		c.Add(s)
	}
	assert.Equal(t, "1 passed, 0 failed, 1 errored, 0 skipped", c.String())
	assert.Equal(t, 2, c.Total)
}

func TestReport_ExitCode(t *testing.T) {
	tests := []struct {
		name      string
		scenarios []ScenarioResult
		want      int
	}{
		{name: "empty", want: ExitPassed},
		{name: "passed and declared skip", scenarios: []ScenarioResult{
			{Status: StatusPassed}, {Status: StatusSkipped, SkipReason: "not supported"},
		}, want: ExitPassed},
		{name: "failure", scenarios: []ScenarioResult{{Status: StatusPassed}, {Status: StatusFailed}}, want: ExitFailures},
		{name: "error beats failure", scenarios: []ScenarioResult{{Status: StatusFailed}, {Status: StatusErrored}}, want: ExitInfrastructure},
		{name: "unassembled skip", scenarios: []ScenarioResult{
			{Status: StatusSkipped, Failure: &Failure{Kind: KindSetup, Message: "role down"}},
		}, want: ExitInfrastructure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &Report{Scenarios: tt.scenarios}
			assert.Equal(t, tt.want, r.ExitCode())
		})
	}
}

func TestAggregator_KeepsPlanOrder(t *testing.T) {
	a := NewAggregator(Meta{RunID: "r1", Plan: "p", Mode: session.ModeLive}, []string{"one", "two", "three"})

	var wg sync.WaitGroup
	for _, name := range []string{"three", "one", "two"} {
		name := name
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.Start(name, time.Now())
			a.Complete(ScenarioResult{Name: name, Status: StatusPassed})
		}()
	}
	wg.Wait()

	r := a.Finish()
	require.Len(t, r.Scenarios, 3)
	assert.Equal(t, "one", r.Scenarios[0].Name)
	assert.Equal(t, "three", r.Scenarios[2].Name)
	assert.Equal(t, Counts{Total: 3, Passed: 3}, r.Counts)
	assert.Equal(t, "r1", r.RunID)
	assert.False(t, r.Finished.IsZero())
}

func TestAggregator_Abort(t *testing.T) {
	a := NewAggregator(Meta{}, []string{"done", "running", "pending"})
	a.Complete(ScenarioResult{Name: "done", Status: StatusFailed, Failure: &Failure{Kind: KindAssertion}})
	a.Start("running", time.Now())

	snap := a.Snapshot()
	assert.Equal(t, StatusRunning, snap.Scenarios[1].Status)
	assert.Equal(t, 1, snap.Counts.Total)

	a.Abort("run aborted")
	r := a.Finish()
	assert.True(t, r.Aborted)
	assert.Equal(t, "0 passed, 1 failed, 0 errored, 2 skipped", r.Counts.String())
	assert.Equal(t, "run aborted", r.Scenarios[2].SkipReason)
	assert.Equal(t, ExitInfrastructure, r.ExitCode())
}

func sampleReport() *Report {
	return &Report{
		RunID: "run-1", Plan: "interop", Constellation: "pair", Mode: session.ModeReplay,
		Scenarios: []ScenarioResult{
			{Name: "webfinger", Status: StatusPassed, Duration: 12 * time.Millisecond},
			{Name: "deliver", Status: StatusFailed, Failure: &Failure{
				Kind: KindDivergence, Step: "fetch", Operation: "inbox", Message: "replay diverged",
				Differences: []session.Difference{{Path: "response.body.object.content", Kind: session.DiffMissing, Recorded: "hi"}},
			}},
			{Name: "assert", Status: StatusFailed, Failure: &Failure{
				Kind: KindAssertion, Step: "check", Message: "expectation failed",
				Mismatches: []matcher.Mismatch{{Path: "status", Message: "expected 202, got 500"}},
			}},
			{Name: "later", Status: StatusSkipped, SkipReason: "not supported"},
		},
		Counts: Counts{Total: 4, Passed: 1, Failed: 2, Skipped: 1},
	}
}

func TestConsoleReporter(t *testing.T) {
	var buf bytes.Buffer
	r := NewConsoleReporter(&buf, false, false)

	r.ReportStart(Meta{Plan: "interop", Constellation: "pair", Mode: session.ModeReplay}, 4)
	r.ReportScenarioStart("webfinger", "", 1)
	r.ReportScenarioResult(ScenarioResult{Name: "webfinger", Status: StatusPassed})
	r.ReportSuiteResult(sampleReport())

	out := buf.String()
	assert.Contains(t, out, "Running test plan interop against constellation pair")
	assert.Contains(t, out, "webfinger ... PASSED")
	assert.Contains(t, out, "1 passed, 2 failed, 0 errored, 1 skipped")
	assert.Contains(t, out, "response.body.object.content")
	assert.Contains(t, out, "status: expected 202, got 500")
	assert.Contains(t, out, "Some scenarios did not pass.")
}

func TestConsoleReporter_ParallelBuffering(t *testing.T) {
	var buf bytes.Buffer
	r := NewConsoleReporter(&buf, false, false)
	r.SetParallelMode(true)

	r.ReportScenarioStart("a", "", 1)
	r.ReportScenarioStart("b", "", 1)
	r.ReportScenarioResult(ScenarioResult{Name: "b", Status: StatusErrored})
	r.ReportScenarioResult(ScenarioResult{Name: "a", Status: StatusPassed})

	assert.Equal(t, "b ... ERRORED (0s)\na ... PASSED (0s)\n", buf.String())
}

func TestQuietAndJSONReporters(t *testing.T) {
	var quiet, js bytes.Buffer
	r := Multi(NewQuietReporter(&quiet), NewJSONReporter(&js))

	rep := sampleReport()
	for _, s := range rep.Scenarios {
		r.ReportScenarioResult(s)
	}
	r.ReportSuiteResult(rep)

	assert.Contains(t, quiet.String(), "FAILED deliver: [divergence] fetch/inbox: replay diverged")
	assert.NotContains(t, quiet.String(), "webfinger")
	assert.Contains(t, quiet.String(), "1 passed, 2 failed, 0 errored, 1 skipped")

	var decoded Report
	require.NoError(t, json.Unmarshal(js.Bytes(), &decoded))
	assert.Equal(t, "run-1", decoded.RunID)
	assert.Len(t, decoded.Scenarios, 4)
}

func TestStructuredReporter(t *testing.T) {
	r := NewStructuredReporter()
	r.ReportStart(Meta{RunID: "x"}, 1)
	r.ReportScenarioStart("s", "", 2)
	r.ReportStepResult("s", StepResult{ID: "one", Status: StatusPassed})
	r.ReportStepResult("unknown", StepResult{ID: "ignored"})

	states := r.States()
	require.Contains(t, states, "s")
	assert.Equal(t, StatusRunning, states["s"].Status)
	assert.Len(t, states["s"].Steps, 1)

	js, err := r.JSON()
	require.NoError(t, err)
	assert.Contains(t, js, `"status": "running"`)

	r.ReportScenarioResult(ScenarioResult{Name: "s", Status: StatusPassed})
	r.ReportSuiteResult(&Report{RunID: "x"})
	assert.Equal(t, StatusPassed, r.States()["s"].Status)
	require.NotNil(t, r.Report())
	assert.Len(t, r.Results(), 1)
}

func TestWriteJSON(t *testing.T) {
	dir := t.TempDir()
	rep := sampleReport()

	path, err := WriteJSON(dir, rep)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "feditest-report-run-1.json"), path)

	path, err = WriteJSON(filepath.Join(dir, "nested", "out.json"), rep)
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"constellation": "pair"`)
}

func TestFailure_String(t *testing.T) {
	assert.Equal(t, "", (*Failure)(nil).String())
	assert.Equal(t, "[timeout] slow: step exceeded 1s", (&Failure{Kind: KindTimeout, Step: "slow", Operation: "slow", Message: "step exceeded 1s"}).String())
	assert.Equal(t, "[setup] role down", (&Failure{Kind: KindSetup, Message: "role down"}).String())
}
