package cmd

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/invopop/jsonschema"
	"github.com/spf13/cobra"

	"feditest/internal/config"
	"feditest/internal/constellation"
	"feditest/internal/plan"
	"feditest/internal/session"
)

// schemaDocuments maps a document kind to a value of the type it decodes
// into.
var schemaDocuments = map[string]func() interface{}{
	"constellation": func() interface{} { return &constellation.Spec{} },
	"plan":          func() interface{} { return &plan.Plan{} },
	"scenario":      func() interface{} { return &plan.Scenario{} },
	"session":       func() interface{} { return &session.Session{} },
	"config":        func() interface{} { return &config.Run{} },
}

func schemaKinds() []string {
	kinds := make([]string, 0, len(schemaDocuments))
	for k := range schemaDocuments {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

func newSchemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema " + strings.Join(schemaKinds(), "|"),
		Short: "Print the JSON schema of a feditest document",
		Long: `Print the JSON schema of a constellation spec, test plan, scenario,
session artifact or run configuration. Editors use it to validate and
complete the YAML files.

Examples:
  feditest schema constellation > constellation.schema.json
  feditest schema scenario`,
		Args:      cobra.ExactArgs(1),
		ValidArgs: schemaKinds(),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := generateSchema(args[0])
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
}

// generateSchema returns the indented JSON schema of a document kind.
func generateSchema(kind string) ([]byte, error) {
	newDoc, ok := schemaDocuments[kind]
	if !ok {
		return nil, fmt.Errorf("unknown document %q (expected one of %s)", kind, strings.Join(schemaKinds(), ", "))
	}
	reflector := jsonschema.Reflector{AllowAdditionalProperties: false}
	if kind != "session" {
		reflector.Mapper = yamlDuration
	}
	schema := reflector.Reflect(newDoc())
	schema.Title = "feditest " + kind
	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// yamlDuration describes durations the way they are written in YAML files.
// Session artifacts are JSON and keep them as nanoseconds.
func yamlDuration(t reflect.Type) *jsonschema.Schema {
	if t == reflect.TypeOf(time.Duration(0)) {
		return &jsonschema.Schema{
			Type:        "string",
			Pattern:     `^([0-9]+(\.[0-9]+)?(ns|us|µs|ms|s|m|h))+$`,
			Description: "Go duration such as 500ms, 30s or 1m30s",
		}
	}
	return nil
}
