package plan

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"feditest/internal/driver"
)

const followScenario = `
name: follow-and-deliver
description: sender delivers a note to the receiver inbox
tags: [delivery]
steps:
  - id: discover
    role: sender
    op: webfinger.query
    params:
      resource: "acct:bob@{{ .roles.receiver.domain }}"
    expect:
      - path: subject
    store: bob
  - id: deliver
    operations:
      - id: fetch
        role: sender
        op: actor.fetch
      - id: post
        role: sender
        op: activity.deliver
        depends_on: [fetch]
      - id: check
        role: receiver
        op: timeline.fetch
        depends_on: [post]
        expect:
          - path: items
`

const mathScenario = `
name: multiply
roles:
  - name: client
    requires: [http.get]
steps:
  - id: mult
    role: server
    op: mult
    params: {a: 2, b: 3}
    expect:
      - {path: c, equals: 6}
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_Directory(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "plan.yaml", "type: feditest-testplan\nname: interop\nroles:\n  - name: receiver\n    requires: [webfinger.query]\n")
	writeFile(t, dir, "20_multiply.yaml", mathScenario)
	writeFile(t, dir, "10_follow.yml", followScenario)
	writeFile(t, dir, "README.md", "not a scenario")
	writeFile(t, dir, ".hidden/ignored.yaml", "name: [broken")

	p, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "interop", p.Name)
	assert.Equal(t, DocumentType, p.Type)
	require.Len(t, p.Scenarios, 2)
	assert.Equal(t, "follow-and-deliver", p.Scenarios[0].Name)
	assert.Equal(t, "multiply", p.Scenarios[1].Name)

	first := p.Scenarios[0].Steps[0]
	require.Len(t, first.Operations, 1)
	assert.Equal(t, "discover", first.Operations[0].ID)
	assert.Equal(t, driver.CapWebFingerQuery, first.Operations[0].Op)
	assert.Equal(t, "bob", first.Operations[0].Store)
	assert.Empty(t, first.Op)

	req := p.Requirements()
	assert.True(t, req["receiver"].Has(driver.CapWebFingerQuery))
	assert.True(t, req["receiver"].Has(driver.CapTimelineFetch))
	assert.Equal(t, "{activity.deliver, actor.fetch, webfinger.query}", req["sender"].String())
	assert.True(t, req["client"].Has(driver.CapHTTPGet))
	assert.True(t, req["server"].Has("mult"))

	assert.Equal(t, []string{"client", "server"}, p.Scenarios[1].RoleNames())
	assert.Equal(t, 4, p.Scenarios[0].OperationCount())
}

func TestPlan_ScenarioRequirements(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "plan.yaml", "type: feditest-testplan\nname: interop\nroles:\n  - name: receiver\n    requires: [webfinger.query]\n")
	writeFile(t, dir, "multiply.yaml", mathScenario)

	p, err := Load(dir)
	require.NoError(t, err)
	sc := &p.Scenarios[0]

	req := p.ScenarioRequirements(sc)
	assert.Len(t, req, 3)
	assert.True(t, req["receiver"].Has(driver.CapWebFingerQuery))
	assert.True(t, req["client"].Has(driver.CapHTTPGet))
	assert.True(t, req["server"].Has("mult"))

	_, own := sc.Requirements()["receiver"]
	assert.False(t, own)
}

func TestLoad_SingleFile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "multiply.yaml", mathScenario)

	p, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "multiply", p.Name)
	require.Len(t, p.Scenarios, 1)
	assert.Equal(t, path, p.Scenarios[0].Source)
}

func TestLoad_PlanFileWithInlineScenarios(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "all.yaml", `
type: feditest-testplan
name: inline
scenarios:
  - name: one
    steps:
      - {id: a, role: server, op: mult}
  - name: two
    skip: not supported yet
`)
	p, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "inline", p.Name)
	require.Len(t, p.Scenarios, 2)
	assert.Equal(t, "not supported yet", p.Scenarios[1].Skip)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantMsg string
	}{
		{name: "wrong type", content: "type: something-else\nscenarios: []\n", wantMsg: "unexpected document type"},
		{name: "unknown field", content: "name: x\nstepz: []\n", wantMsg: "stepz"},
		{name: "missing name", content: "steps:\n  - {id: a, role: r, op: mult}\n", wantMsg: "scenario name is required"},
		{name: "reserved char", content: "name: a/b\nsteps:\n  - {id: a, role: r, op: mult}\n", wantMsg: "must not contain"},
		{name: "no steps", content: "name: x\n", wantMsg: "at least one step"},
		{name: "duplicate step", content: "name: x\nsteps:\n  - {id: a, role: r, op: mult}\n  - {id: a, role: r, op: mult}\n", wantMsg: "duplicate step id"},
		{name: "missing op", content: "name: x\nsteps:\n  - id: a\n    operations:\n      - {role: r}\n", wantMsg: "op is required"},
		{
			name:    "dependency cycle",
			content: "name: x\nsteps:\n  - id: a\n    operations:\n      - {id: p, role: r, op: m, depends_on: [q]}\n      - {id: q, role: r, op: m, depends_on: [p]}\n",
			wantMsg: "dependency cycle",
		},
		{
			name:    "unknown dependency",
			content: "name: x\nsteps:\n  - id: a\n    operations:\n      - {id: p, role: r, op: m, depends_on: [z]}\n",
			wantMsg: "unknown z",
		},
		{name: "bad expectation", content: "name: x\nsteps:\n  - {id: a, role: r, op: m, expect: [{matches: \"([\"}]}\n", wantMsg: "expectation 0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			path := writeFile(t, dir, "s.yaml", tt.content)

			_, err := Load(path)
			require.Error(t, err)
			var planErr *PlanError
			assert.True(t, errors.As(err, &planErr), "expected PlanError, got %T", err)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestValidate_DuplicateScenarioNames(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.yaml", mathScenario)
	writeFile(t, dir, "b.yaml", mathScenario)

	_, err := Load(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `duplicate scenario name "multiply"`)
}

func TestLoad_MissingPath(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)
}

func TestFilter(t *testing.T) {
	p := &Plan{Name: "p", Scenarios: []Scenario{
		{Name: "webfinger-basic", Tags: []string{"webfinger"}},
		{Name: "webfinger-redirect", Tags: []string{"webfinger", "slow"}},
		{Name: "deliver-note", Tags: []string{"delivery"}},
	}}

	got, err := p.Filter([]string{"webfinger-*"}, nil)
	require.NoError(t, err)
	assert.Len(t, got.Scenarios, 2)
	assert.Len(t, p.Scenarios, 3)

	got, err = p.Filter(nil, []string{"delivery", "slow"})
	require.NoError(t, err)
	require.Len(t, got.Scenarios, 2)
	assert.Equal(t, "webfinger-redirect", got.Scenarios[0].Name)

	_, err = p.Filter([]string{"[a-"}, nil)
	assert.Error(t, err)

	s, ok := p.Scenario("deliver-note")
	require.True(t, ok)
	assert.Equal(t, []string{"delivery"}, s.Tags)
}

func TestStep_Graph(t *testing.T) {
	step := Step{ID: "s", Operations: []Operation{
		{ID: "a"}, {ID: "b"}, {ID: "c", DependsOn: []string{"a", "b"}},
	}}
	levels, err := step.Graph().Levels()
	require.NoError(t, err)
	require.Len(t, levels, 2)
	assert.Len(t, levels[0], 2)

	op, ok := step.Operation("c")
	require.True(t, ok)
	assert.Equal(t, []string{"a", "b"}, op.DependsOn)
}
