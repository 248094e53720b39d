package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"feditest/internal/driver"
	"feditest/internal/mcpserver"
	fstrings "feditest/pkg/strings"
)

var listTypes = []string{"drivers", "scenarios"}

func newListCmd() *cobra.Command {
	var (
		testsDir string
		output   string
	)
	cmd := &cobra.Command{
		Use:   "list drivers|scenarios",
		Short: "List the built-in drivers or the scenarios of a test plan",
		Long: `List the built-in drivers with their capabilities, or the scenarios of
a test plan with the roles they need.

Examples:
  feditest list drivers
  feditest list scenarios --testsdir examples/fediverse
  feditest list scenarios --testsdir examples/sandbox -o json`,
		Args:      cobra.ExactArgs(1),
		ValidArgs: listTypes,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			switch args[0] {
			case "drivers":
				drivers, err := mcpserver.Drivers(GetVersion())
				if err != nil {
					return err
				}
				if output == "json" {
					return writeJSON(out, drivers)
				}
				return printDrivers(out, drivers)
			case "scenarios":
				if testsDir == "" {
					return fmt.Errorf("--testsdir is required to list scenarios")
				}
				planName, scenarios, err := mcpserver.Scenarios(testsDir)
				if err != nil {
					return err
				}
				if output == "json" {
					return writeJSON(out, map[string]interface{}{"plan": planName, "scenarios": scenarios})
				}
				return printScenarios(out, planName, scenarios)
			default:
				return fmt.Errorf("unknown list type %q (expected %s)", args[0], strings.Join(listTypes, " or "))
			}
		},
	}
	cmd.Flags().StringVar(&testsDir, "testsdir", "", "Test plan directory or scenario file")
	cmd.Flags().StringVarP(&output, "output", "o", "table", "Output format: table or json")
	_ = cmd.MarkFlagDirname("testsdir")
	return cmd
}

func newTable(out io.Writer, headers ...string) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.SetStyle(table.StyleRounded)
	row := make(table.Row, len(headers))
	for i, h := range headers {
		row[i] = text.FgHiCyan.Sprint(h)
	}
	t.AppendHeader(row)
	return t
}

func printDrivers(out io.Writer, drivers []mcpserver.DriverInfo) error {
	t := newTable(out, "DRIVER", "CAPABILITIES", "DESCRIPTION")
	for _, d := range drivers {
		t.AppendRow(table.Row{d.Name, joinCapabilities(d.Capabilities), fstrings.Truncate(d.Description, fstrings.DefaultColumnWidth)})
	}
	t.Render()
	return nil
}

func joinCapabilities(caps []driver.Capability) string {
	names := make([]string, len(caps))
	for i, c := range caps {
		names[i] = string(c)
	}
	return strings.Join(names, "\n")
}

func printScenarios(out io.Writer, planName string, scenarios []mcpserver.ScenarioInfo) error {
	if len(scenarios) == 0 {
		fmt.Fprintf(out, "%s\n", text.FgYellow.Sprintf("Test plan %s has no scenarios", planName))
		return nil
	}
	fmt.Fprintf(out, "Test plan %s\n", text.Bold.Sprint(planName))
	t := newTable(out, "SCENARIO", "ROLES", "STEPS", "TAGS", "DESCRIPTION")
	for _, s := range scenarios {
		desc := fstrings.Truncate(s.Description, fstrings.DefaultColumnWidth)
		if s.Skip != "" {
			desc = text.FgYellow.Sprintf("skipped: %s", s.Skip)
		}
		t.AppendRow(table.Row{s.Name, strings.Join(s.Roles, ", "), s.Steps, strings.Join(s.Tags, ", "), desc})
	}
	t.Render()
	return nil
}

func writeJSON(out io.Writer, v interface{}) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
