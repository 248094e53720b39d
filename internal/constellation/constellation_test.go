package constellation

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"feditest/internal/driver"
)

const (
	capA driver.Capability = "test.a"
	capB driver.Capability = "test.b"
	capC driver.Capability = "test.c"
)

type fakeNode struct {
	role   string
	closed *[]string
	mu     *sync.Mutex

	active    int32
	maxActive int32
}

func (n *fakeNode) Describe() map[string]interface{} {
	return map[string]interface{}{"domain": n.role + ".test"}
}

func (n *fakeNode) Close(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	*n.closed = append(*n.closed, n.role)
	return nil
}

func (n *fakeNode) Operate(ctx context.Context, c driver.Capability, p driver.Params) (driver.Result, error) {
	if c == "test.panic" {
		panic("boom")
	}
	cur := atomic.AddInt32(&n.active, 1)
	for {
		m := atomic.LoadInt32(&n.maxActive)
		if cur <= m || atomic.CompareAndSwapInt32(&n.maxActive, m, cur) {
			break
		}
	}
	time.Sleep(5 * time.Millisecond)
	atomic.AddInt32(&n.active, -1)
	return driver.Result{"ok": true}, nil
}

type fixture struct {
	reg    *driver.Registry
	calls  map[string]int
	fail   map[string]int
	closed []string
	mu     sync.Mutex
}

// newFixture registers driver "fake" with capabilities {A, B}. Roles named
// in fail fail that many times before coming up; a negative count fails
// forever.
func newFixture(t *testing.T, fail map[string]int) *fixture {
	t.Helper()
	f := &fixture{reg: driver.NewRegistry(), calls: map[string]int{}, fail: fail}
	factory := func(ctx context.Context, p driver.InitParams) (driver.Node, error) {
		f.mu.Lock()
		f.calls[p.Role]++
		n := f.calls[p.Role]
		f.mu.Unlock()
		if left := f.fail[p.Role]; left < 0 || n <= left {
			return nil, errors.New("connection refused")
		}
		if p.Config.Parameter("invalid", "") != "" {
			return nil, driver.NewConfigError("parameters.invalid", "rejected by driver")
		}
		require.NotNil(t, p.HTTPClient)
		return &fakeNode{role: p.Role, closed: &f.closed, mu: &f.mu}, nil
	}
	require.NoError(t, f.reg.Register("fake", factory, driver.NewCapabilitySet(capA, capB)))
	return f
}

func (f *fixture) totalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

func (f *fixture) assembler() *Assembler {
	a := NewAssembler(f.reg)
	a.SetupBackoff = time.Millisecond
	return a
}

func specOf(roles ...string) *Spec {
	s := &Spec{Name: "test", Roles: map[string]NodeSpec{}}
	for _, r := range roles {
		s.Roles[r] = NodeSpec{Driver: "fake"}
	}
	return s
}

func TestAssemble_MissingRoleInvokesNoFactory(t *testing.T) {
	f := newFixture(t, nil)
	required := map[string]driver.CapabilitySet{
		"sender":   driver.NewCapabilitySet(capA),
		"receiver": driver.NewCapabilitySet(capA),
	}

	live, err := f.assembler().Assemble(context.Background(), specOf("sender"), required)
	require.Error(t, err)
	assert.Nil(t, live)

	var cfgErrs *ConfigurationErrors
	require.True(t, errors.As(err, &cfgErrs))
	var missing *MissingRoleError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, "receiver", missing.Role)
	assert.Equal(t, 0, f.totalCalls())
}

func TestValidate_CapabilityMismatchNamesMissingCapability(t *testing.T) {
	f := newFixture(t, nil)
	required := map[string]driver.CapabilitySet{"server": driver.NewCapabilitySet(capA, capB, capC)}

	_, err := f.assembler().Validate(specOf("server"), required)
	require.Error(t, err)

	var mismatch *driver.CapabilityMismatchError
	require.True(t, errors.As(err, &mismatch))
	assert.Equal(t, capC, mismatch.Capability)
	assert.Equal(t, "server", mismatch.Role)
	assert.Contains(t, err.Error(), string(capC))
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	f := newFixture(t, nil)
	spec := &Spec{Name: "broken", Roles: map[string]NodeSpec{
		"a": {Driver: "nope"},
		"b": {Driver: ""},
		"c": {Driver: "fake", Config: driver.NodeConfig{
			Domain: "not a host!",
			Accounts: []driver.Account{
				{ID: "alice", Role: "role with space", Email: "not-an-email"},
				{ID: "alice", URI: "no-scheme"},
			},
		}},
		"unused": {Driver: "fake"},
	}}
	required := map[string]driver.CapabilitySet{
		"a": driver.NewCapabilitySet(), "b": driver.NewCapabilitySet(), "c": driver.NewCapabilitySet(capA),
	}

	warnings, err := f.assembler().Validate(spec, required)
	require.Error(t, err)

	var cfgErrs *ConfigurationErrors
	require.True(t, errors.As(err, &cfgErrs))
	assert.Len(t, cfgErrs.Errors, 7)

	var unknown *driver.UnknownDriverError
	require.True(t, errors.As(err, &unknown))
	assert.Equal(t, "a", unknown.Role)

	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], `"unused"`)
}

func TestAssemble_RetriesTransientFailures(t *testing.T) {
	f := newFixture(t, map[string]int{"flaky": 2, "down": -1})
	required := map[string]driver.CapabilitySet{
		"flaky": driver.NewCapabilitySet(capA),
		"down":  driver.NewCapabilitySet(capA),
		"ok":    driver.NewCapabilitySet(capA),
	}

	live, err := f.assembler().Assemble(context.Background(), specOf("flaky", "down", "ok"), required)
	require.NoError(t, err)

	assert.Equal(t, []string{"flaky", "ok"}, live.Roles())
	assert.Equal(t, 3, f.calls["flaky"])
	assert.Equal(t, 3, f.calls["down"])

	var unreachable *NodeUnreachableError
	require.True(t, errors.As(live.Failed("down"), &unreachable))
	assert.Equal(t, "down", unreachable.Role)
	assert.Equal(t, 3, unreachable.Attempts)
	assert.Contains(t, unreachable.Error(), "connection refused")
	assert.NoError(t, live.Failed("ok"))

	require.NoError(t, live.Teardown(context.Background()))
	assert.ElementsMatch(t, []string{"flaky", "ok"}, f.closed)
}

func TestAssemble_ConfigErrorIsNotRetried(t *testing.T) {
	f := newFixture(t, nil)
	spec := specOf("server")
	ns := spec.Roles["server"]
	ns.Config.Parameters = map[string]interface{}{"invalid": "yes"}
	spec.Roles["server"] = ns

	live, err := f.assembler().Assemble(context.Background(), spec, map[string]driver.CapabilitySet{"server": nil})
	require.NoError(t, err)
	assert.Equal(t, 1, f.calls["server"])
	assert.True(t, driver.IsConfigError(live.Failed("server")))
}

func TestTeardown_ReverseOrderSkipsUninitialised(t *testing.T) {
	f := newFixture(t, map[string]int{"b": -1})
	a := f.assembler()
	a.Concurrency = 1

	live, err := a.Assemble(context.Background(), specOf("a", "b", "c"), map[string]driver.CapabilitySet{"a": nil, "b": nil, "c": nil})
	require.NoError(t, err)
	require.Error(t, live.Failed("b"))

	require.NoError(t, live.Teardown(context.Background()))
	assert.Equal(t, []string{"c", "a"}, f.closed)

	// A second teardown has nothing left to close.
	require.NoError(t, live.Teardown(context.Background()))
	assert.Len(t, f.closed, 2)
}

func TestHandle_LeaseSerialisesOperations(t *testing.T) {
	for _, shared := range []bool{false, true} {
		f := newFixture(t, nil)
		spec := specOf("server")
		ns := spec.Roles["server"]
		ns.Config.Shared = shared
		spec.Roles["server"] = ns

		live, err := f.assembler().Assemble(context.Background(), spec, map[string]driver.CapabilitySet{"server": nil})
		require.NoError(t, err)
		h, ok := live.Handle("server")
		require.True(t, ok)

		var wg sync.WaitGroup
		for i := 0; i < 4; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := h.Invoke(context.Background(), "test.op", nil)
				assert.NoError(t, err)
			}()
		}
		wg.Wait()

		node := h.node.(*fakeNode)
		if shared {
			assert.Greater(t, atomic.LoadInt32(&node.maxActive), int32(1))
		} else {
			assert.Equal(t, int32(1), atomic.LoadInt32(&node.maxActive))
		}
	}
}

func TestHandle_RecoversPanics(t *testing.T) {
	f := newFixture(t, nil)
	live, err := f.assembler().Assemble(context.Background(), specOf("server"), map[string]driver.CapabilitySet{"server": nil})
	require.NoError(t, err)
	h, _ := live.Handle("server")

	_, err = h.Invoke(context.Background(), "test.panic", nil)
	var panicErr *driver.PanicError
	require.True(t, errors.As(err, &panicErr))
	assert.Equal(t, "fake", panicErr.Driver)

	// The lease was released.
	_, err = h.Invoke(context.Background(), "test.op", nil)
	assert.NoError(t, err)

	desc := live.Describe()["server"].(map[string]interface{})
	assert.Equal(t, "server.test", desc["domain"])
	assert.Equal(t, "fake", desc["driver"])
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pair.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
roles:
  sender:
    driver: webclient
    config:
      domain: a.example
      accounts:
        - {id: alice, uri: "https://a.example/users/alice"}
  receiver:
    driver: webclient
    config:
      parameters: {timeout: 5s}
`), 0o644))

	spec, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "pair", spec.Name)
	assert.Equal(t, []string{"receiver", "sender"}, spec.RoleNames())
	assert.Equal(t, "alice", spec.Roles["sender"].Config.Accounts[0].ID)

	withDomain := spec.ApplyDomain("interop.test")
	assert.Equal(t, "a.example", withDomain.Roles["sender"].Config.Domain)
	assert.Equal(t, "receiver.interop.test", withDomain.Roles["receiver"].Config.Domain)
	assert.Empty(t, spec.Roles["receiver"].Config.Domain)

	jsonPath := filepath.Join(dir, "c.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte(`{"name": "j", "roles": {"x": {"driver": "sandbox"}}}`), 0o644))
	spec, err = LoadFile(jsonPath)
	require.NoError(t, err)
	assert.Equal(t, "j", spec.Name)

	badPath := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(badPath, []byte("roles: [unclosed"), 0o644))
	_, err = LoadFile(badPath)
	var malformed *MalformedSpecError
	assert.True(t, errors.As(err, &malformed))
}

func TestValidHostname(t *testing.T) {
	tests := []struct {
		host string
		want bool
	}{
		{"example.com", true},
		{"localhost", true},
		{"localhost:8080", true},
		{"127.0.0.1", true},
		{"[::1]:443", true},
		{"a-b.c-d.test", true},
		{"-bad.test", false},
		{"bad_.test", false},
		{"has space.test", false},
		{"", false},
		{"host:99999", false},
	}
	for _, tt := range tests {
		t.Run(tt.host, func(t *testing.T) {
			assert.Equal(t, tt.want, ValidHostname(tt.host))
		})
	}
}
