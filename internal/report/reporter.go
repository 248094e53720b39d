package report

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	fstrings "feditest/pkg/strings"
)

// Reporter receives run events as they happen. Implementations must be
// safe for concurrent use when scenarios run in parallel.
type Reporter interface {
	// ReportStart is called when the run begins
	ReportStart(meta Meta, scenarios int)
	// ReportScenarioStart is called when a scenario begins
	ReportScenarioStart(name, description string, steps int)
	// ReportStepResult is called when a step completes
	ReportStepResult(scenario string, step StepResult)
	// ReportScenarioResult is called when a scenario completes
	ReportScenarioResult(result ScenarioResult)
	// ReportSuiteResult is called when all scenarios are done
	ReportSuiteResult(r *Report)
	// SetParallelMode enables or disables parallel output buffering
	SetParallelMode(parallel bool)
}

// consoleReporter prints human readable progress and a summary table.
type consoleReporter struct {
	out     io.Writer
	verbose bool
	color   bool

	mu              sync.Mutex
	parallelMode    bool
	scenarioBuffers map[string]string
}

// NewConsoleReporter creates a reporter writing to out. Colors are used
// only when color is true.
func NewConsoleReporter(out io.Writer, verbose, color bool) Reporter {
	return &consoleReporter{
		out:             out,
		verbose:         verbose,
		color:           color,
		scenarioBuffers: make(map[string]string),
	}
}

func (r *consoleReporter) SetParallelMode(parallel bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.parallelMode = parallel
	if parallel {
		r.scenarioBuffers = make(map[string]string)
	}
}

func (r *consoleReporter) ReportStart(meta Meta, scenarios int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.out, "Running test plan %s against constellation %s (%d scenarios, %s mode)\n",
		meta.Plan, meta.Constellation, scenarios, meta.Mode)
	if r.verbose {
		fmt.Fprintf(r.out, "  run id: %s\n", meta.RunID)
		if meta.SessionPath != "" {
			fmt.Fprintf(r.out, "  session: %s\n", meta.SessionPath)
		}
	}
	fmt.Fprintln(r.out)
}

func (r *consoleReporter) ReportScenarioStart(name, description string, steps int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.verbose {
		fmt.Fprintf(r.out, "> %s (%d steps)\n", name, steps)
		if description != "" {
			fmt.Fprintf(r.out, "  %s\n", description)
		}
		return
	}
	if r.parallelMode {
		r.scenarioBuffers[name] = fmt.Sprintf("%s ... ", name)
		return
	}
	fmt.Fprintf(r.out, "%s ... ", name)
}

func (r *consoleReporter) ReportStepResult(scenario string, step StepResult) {
	if !r.verbose {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.out, "  %s step %s (%v)\n", r.symbol(step.Status), step.ID, step.Duration.Round(time.Millisecond))
	for _, op := range step.Operations {
		fmt.Fprintf(r.out, "      %s %s on %s: %s\n", op.ID, op.Capability, op.Role, r.colorize(op.Status))
	}
	if step.Failure != nil {
		fmt.Fprintf(r.out, "      %s\n", step.Failure)
		writeFailureDetail(r.out, step.Failure, "        ")
	}
}

func (r *consoleReporter) ReportScenarioResult(res ScenarioResult) {
	r.mu.Lock()
	defer r.mu.Unlock()

	line := fmt.Sprintf("%s (%v)", r.colorize(res.Status), res.Duration.Round(time.Millisecond))
	if res.Status == StatusSkipped && res.SkipReason != "" {
		line += ": " + res.SkipReason
	}

	switch {
	case r.verbose:
		fmt.Fprintf(r.out, "< %s %s\n", res.Name, line)
		if res.Failure != nil {
			fmt.Fprintf(r.out, "  %s\n", res.Failure)
		}
		fmt.Fprintln(r.out)
	case r.parallelMode:
		start, ok := r.scenarioBuffers[res.Name]
		delete(r.scenarioBuffers, res.Name)
		if !ok {
			start = res.Name + " ... "
		}
		fmt.Fprintf(r.out, "%s%s\n", start, line)
	default:
		fmt.Fprintln(r.out, line)
	}
}

func (r *consoleReporter) ReportSuiteResult(rep *Report) {
	r.mu.Lock()
	defer r.mu.Unlock()

	fmt.Fprintln(r.out)
	t := table.NewWriter()
	t.SetOutputMirror(r.out)
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Scenario", "Status", "Duration", "Detail"})
	for _, s := range rep.Scenarios {
		detail := s.SkipReason
		if s.Failure != nil {
			detail = s.Failure.String()
		}
		t.AppendRow(table.Row{s.Name, r.colorize(s.Status), s.Duration.Round(time.Millisecond), fstrings.Truncate(detail, 80)})
	}
	t.AppendFooter(table.Row{"Total", rep.Counts.Total, rep.Duration.Round(time.Millisecond), rep.Counts.String()})
	t.Render()

	for _, s := range rep.Scenarios {
		if s.Failure == nil || s.Status == StatusSkipped {
			continue
		}
		fmt.Fprintf(r.out, "\n%s %s\n  %s\n", r.symbol(s.Status), s.Name, s.Failure)
		writeFailureDetail(r.out, s.Failure, "    ")
	}

	for _, w := range rep.Warnings {
		fmt.Fprintf(r.out, "warning: %s\n", w)
	}
	if rep.SessionPath != "" {
		fmt.Fprintf(r.out, "session: %s\n", rep.SessionPath)
	}
	if rep.Counts.Failed == 0 && rep.Counts.Errored == 0 && !rep.Aborted {
		fmt.Fprintln(r.out, r.paint(text.FgGreen, "\nAll scenarios passed."))
	} else {
		fmt.Fprintln(r.out, r.paint(text.FgRed, "\nSome scenarios did not pass."))
	}
}

func (r *consoleReporter) colorize(s Status) string {
	switch s {
	case StatusPassed:
		return r.paint(text.FgGreen, string(s))
	case StatusFailed:
		return r.paint(text.FgRed, string(s))
	case StatusErrored:
		return r.paint(text.FgHiRed, string(s))
	case StatusSkipped:
		return r.paint(text.FgYellow, string(s))
	default:
		return r.paint(text.FgHiBlack, string(s))
	}
}

func (r *consoleReporter) paint(c text.Color, s string) string {
	if !r.color {
		return s
	}
	return c.Sprint(s)
}

func (r *consoleReporter) symbol(s Status) string {
	switch s {
	case StatusPassed:
		return r.paint(text.FgGreen, "✓")
	case StatusFailed:
		return r.paint(text.FgRed, "✗")
	case StatusErrored:
		return r.paint(text.FgHiRed, "!")
	case StatusSkipped:
		return r.paint(text.FgYellow, "-")
	default:
		return "?"
	}
}

func writeFailureDetail(w io.Writer, f *Failure, indent string) {
	for _, m := range f.Mismatches {
		fmt.Fprintf(w, "%s%s\n", indent, m)
	}
	for _, d := range f.Differences {
		fmt.Fprintf(w, "%s%s\n", indent, d)
	}
}

// NewQuietReporter creates a reporter that only prints failures and the
// final counts.
func NewQuietReporter(out io.Writer) Reporter {
	return &quietReporter{out: out}
}

// quietReporter implements minimal output for CI integration
type quietReporter struct {
	mu  sync.Mutex
	out io.Writer
}

func (r *quietReporter) ReportStart(meta Meta, scenarios int)                    {}
func (r *quietReporter) ReportScenarioStart(name, description string, steps int) {}
func (r *quietReporter) ReportStepResult(scenario string, step StepResult)       {}
func (r *quietReporter) SetParallelMode(parallel bool)                           {}

func (r *quietReporter) ReportScenarioResult(res ScenarioResult) {
	if res.Status != StatusFailed && res.Status != StatusErrored {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.out, "%s %s: %s\n", res.Status, res.Name, res.Failure)
}

func (r *quietReporter) ReportSuiteResult(rep *Report) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.out, "%s (%v)\n", rep.Counts, rep.Duration.Round(time.Millisecond))
}

// NewJSONReporter creates a reporter that prints the final report as JSON.
func NewJSONReporter(out io.Writer) Reporter {
	return &jsonReporter{out: out}
}

// jsonReporter implements JSON output for machine consumption
type jsonReporter struct {
	out io.Writer
}

func (r *jsonReporter) ReportStart(meta Meta, scenarios int)                    {}
func (r *jsonReporter) ReportScenarioStart(name, description string, steps int) {}
func (r *jsonReporter) ReportStepResult(scenario string, step StepResult)       {}
func (r *jsonReporter) ReportScenarioResult(res ScenarioResult)                 {}
func (r *jsonReporter) SetParallelMode(parallel bool)                           {}

func (r *jsonReporter) ReportSuiteResult(rep *Report) {
	data, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		fmt.Fprintf(r.out, `{"error": %q}`+"\n", err.Error())
		return
	}
	fmt.Fprintln(r.out, string(data))
}

// Multi fans events out to several reporters.
func Multi(reporters ...Reporter) Reporter {
	return multiReporter(reporters)
}

type multiReporter []Reporter

func (m multiReporter) ReportStart(meta Meta, scenarios int) {
	for _, r := range m {
		r.ReportStart(meta, scenarios)
	}
}

func (m multiReporter) ReportScenarioStart(name, description string, steps int) {
	for _, r := range m {
		r.ReportScenarioStart(name, description, steps)
	}
}

func (m multiReporter) ReportStepResult(scenario string, step StepResult) {
	for _, r := range m {
		r.ReportStepResult(scenario, step)
	}
}

func (m multiReporter) ReportScenarioResult(res ScenarioResult) {
	for _, r := range m {
		r.ReportScenarioResult(res)
	}
}

func (m multiReporter) ReportSuiteResult(rep *Report) {
	for _, r := range m {
		r.ReportSuiteResult(rep)
	}
}

func (m multiReporter) SetParallelMode(parallel bool) {
	for _, r := range m {
		r.SetParallelMode(parallel)
	}
}
