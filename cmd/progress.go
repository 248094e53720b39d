package cmd

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/briandowns/spinner"
	"github.com/jedib0t/go-pretty/v6/text"

	"feditest/internal/report"
)

// progressReporter shows a spinner naming the scenarios in flight. It is
// added next to the regular reporter and prints nothing else.
type progressReporter struct {
	mu      sync.Mutex
	s       *spinner.Spinner
	total   int
	done    int
	running map[string]struct{}
}

func newProgressReporter(w io.Writer) *progressReporter {
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(w))
	s.Suffix = " Assembling constellation..."
	return &progressReporter{s: s, running: map[string]struct{}{}}
}

func (p *progressReporter) ReportStart(meta report.Meta, scenarios int) {
	p.mu.Lock()
	p.total = scenarios
	p.mu.Unlock()
	p.s.Start()
}

func (p *progressReporter) ReportScenarioStart(name, description string, steps int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.running[name] = struct{}{}
	p.update(name)
}

func (p *progressReporter) ReportStepResult(scenario string, step report.StepResult) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.update(fmt.Sprintf("%s / %s", scenario, step.ID))
}

func (p *progressReporter) ReportScenarioResult(res report.ScenarioResult) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.running, res.Name)
	p.done++
	p.update(res.Name)
}

func (p *progressReporter) ReportSuiteResult(rep *report.Report) {
	p.mu.Lock()
	color := text.FgGreen
	if rep.ExitCode() != report.ExitPassed {
		color = text.FgRed
	}
	p.s.FinalMSG = color.Sprintf("%s\n", rep.Counts)
	p.mu.Unlock()
	p.stop()
}

func (p *progressReporter) SetParallelMode(parallel bool) {}

// update must be called with mu held.
func (p *progressReporter) update(current string) {
	suffix := fmt.Sprintf(" [%d/%d] %s", p.done, p.total, current)
	if n := len(p.running); n > 1 {
		suffix += fmt.Sprintf(" (+%d running)", n-1)
	}
	p.s.Lock()
	p.s.Suffix = suffix
	p.s.Unlock()
}

func (p *progressReporter) stop() {
	p.s.Stop()
}
