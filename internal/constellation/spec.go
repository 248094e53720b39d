package constellation

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"feditest/internal/driver"
)

// Spec declares the roles of a constellation and the driver configuration
// of each. A Spec is immutable once loaded.
type Spec struct {
	Name  string              `yaml:"name" json:"name"`
	Roles map[string]NodeSpec `yaml:"roles" json:"roles"`
}

// NodeSpec binds a role to a driver.
type NodeSpec struct {
	Driver string            `yaml:"driver" json:"driver"`
	Config driver.NodeConfig `yaml:"config,omitempty" json:"config,omitempty"`
}

// MalformedSpecError reports a constellation file that could not be parsed.
type MalformedSpecError struct {
	Path string
	Err  error
}

func (e *MalformedSpecError) Error() string {
	return fmt.Sprintf("malformed constellation spec %s: %v", e.Path, e.Err)
}

func (e *MalformedSpecError) Unwrap() error {
	return e.Err
}

// LoadFile reads a constellation spec. YAML and JSON are both accepted.
func LoadFile(path string) (*Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read constellation spec %s: %w", path, err)
	}
	spec, err := Decode(data)
	if err != nil {
		return nil, &MalformedSpecError{Path: path, Err: err}
	}
	if spec.Name == "" {
		base := filepath.Base(path)
		spec.Name = strings.TrimSuffix(base, filepath.Ext(base))
	}
	return spec, nil
}

// Decode parses a constellation document.
func Decode(data []byte) (*Spec, error) {
	var spec Spec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, err
	}
	if spec.Roles == nil {
		return nil, fmt.Errorf("missing required field roles")
	}
	return &spec, nil
}

// RoleNames returns the declared roles in sorted order.
func (s *Spec) RoleNames() []string {
	names := make([]string, 0, len(s.Roles))
	for name := range s.Roles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ApplyDomain returns a copy of s in which every role without an explicit
// domain is placed at <role>.<domain>.
func (s *Spec) ApplyDomain(domain string) *Spec {
	out := &Spec{Name: s.Name, Roles: make(map[string]NodeSpec, len(s.Roles))}
	for name, ns := range s.Roles {
		if domain != "" && ns.Config.Domain == "" {
			ns.Config.Domain = name + "." + domain
		}
		out.Roles[name] = ns
	}
	return out
}
