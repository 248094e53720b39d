package template

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	"github.com/Masterminds/sprig/v3"
)

// Engine resolves templated step parameters such as
// "{{ .actor.body.inbox }}" against the results of earlier steps.
// Templates use Go template syntax with the sprig function library.
type Engine struct {
	funcs template.FuncMap
}

// New creates a new template engine
func New() *Engine {
	funcs := sprig.TxtFuncMap()
	// Unlike sprig's env, lookups never read the process environment.
	delete(funcs, "env")
	delete(funcs, "expandenv")
	return &Engine{funcs: funcs}
}

// Replace replaces all template expressions in a value with actual values from the context
func (e *Engine) Replace(value interface{}, context map[string]interface{}) (interface{}, error) {
	switch v := value.(type) {
	case string:
		return e.replaceString(v, context)
	case map[string]interface{}:
		return e.replaceMap(v, context)
	case []interface{}:
		return e.replaceSlice(v, context)
	default:
		// Non-templatable types are returned as-is
		return value, nil
	}
}

// ReplaceMap is Replace for parameter maps.
func (e *Engine) ReplaceMap(m map[string]interface{}, context map[string]interface{}) (map[string]interface{}, error) {
	if m == nil {
		return nil, nil
	}
	return e.replaceMap(m, context)
}

func (e *Engine) replaceString(s string, context map[string]interface{}) (string, error) {
	if !strings.Contains(s, "{{") {
		return s, nil
	}

	tmpl, err := template.New("param").Funcs(e.funcs).Option("missingkey=error").Parse(s)
	if err != nil {
		return "", fmt.Errorf("invalid template %q: %w", s, err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, context); err != nil {
		return "", fmt.Errorf("failed to resolve template %q: %w", s, err)
	}
	return buf.String(), nil
}

func (e *Engine) replaceMap(m map[string]interface{}, context map[string]interface{}) (map[string]interface{}, error) {
	result := make(map[string]interface{}, len(m))
	for key, value := range m {
		replaced, err := e.Replace(value, context)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
		result[key] = replaced
	}
	return result, nil
}

func (e *Engine) replaceSlice(s []interface{}, context map[string]interface{}) ([]interface{}, error) {
	result := make([]interface{}, len(s))
	for i, value := range s {
		replaced, err := e.Replace(value, context)
		if err != nil {
			return nil, fmt.Errorf("[%d]: %w", i, err)
		}
		result[i] = replaced
	}
	return result, nil
}
