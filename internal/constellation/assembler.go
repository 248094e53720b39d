package constellation

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/sync/errgroup"

	"feditest/internal/driver"
	"feditest/internal/session"
	"feditest/pkg/logging"
)

const (
	// DefaultSetupAttempts is how often a node setup is tried.
	DefaultSetupAttempts = 3
	// DefaultSetupBackoff is the delay before the first retry.
	DefaultSetupBackoff = 500 * time.Millisecond
	// DefaultHTTPTimeout bounds a single driver HTTP request.
	DefaultHTTPTimeout = 10 * time.Second
	// MaxRedirects is how many redirects a driver HTTP client follows.
	MaxRedirects = 10
)

// Assembler turns a Spec into a Live constellation.
type Assembler struct {
	Registry *driver.Registry
	Mode     session.Mode
	Recorder *session.Recorder
	Replayer *session.Replayer
	// VolatileFields are run wide volatile patterns, added to each driver's.
	VolatileFields []string
	SetupAttempts  int
	SetupBackoff   time.Duration
	// Concurrency bounds parallel node setup; zero means unbounded.
	Concurrency int
	// Base is the network transport below the session seam; nil uses a
	// clone of http.DefaultTransport.
	Base http.RoundTripper
}

// NewAssembler creates an assembler in live mode with default retries.
func NewAssembler(reg *driver.Registry) *Assembler {
	return &Assembler{
		Registry:      reg,
		Mode:          session.ModeLive,
		SetupAttempts: DefaultSetupAttempts,
		SetupBackoff:  DefaultSetupBackoff,
	}
}

// Validate checks spec against the role requirements without performing
// any I/O. All errors are collected into a *ConfigurationErrors. Roles the
// plan does not need are reported as warnings.
func (a *Assembler) Validate(spec *Spec, required map[string]driver.CapabilitySet) ([]string, error) {
	if spec == nil {
		return nil, &ConfigurationErrors{Errors: []error{errors.New("no constellation spec given")}}
	}

	var errs []error
	var warnings []string

	for _, role := range sortedRoles(required) {
		ns, ok := spec.Roles[role]
		if !ok {
			errs = append(errs, &MissingRoleError{Role: role, Requires: required[role]})
			continue
		}
		if ns.Driver == "" {
			errs = append(errs, driver.NewConfigError("roles."+role+".driver", "driver is required"))
			continue
		}
		entry, err := a.Registry.Lookup(ns.Driver)
		if err != nil {
			errs = append(errs, &driver.UnknownDriverError{Name: ns.Driver, Role: role})
			continue
		}
		errs = append(errs, driver.CheckCapabilities(role, ns.Driver, entry.Capabilities, required[role])...)
		errs = append(errs, validateNodeConfig(role, ns.Config)...)
		if entry.Validate != nil {
			if err := entry.Validate(ns.Config); err != nil {
				errs = append(errs, &RoleError{Role: role, Err: err})
			}
		}
		if _, err := a.policyFor(entry); err != nil {
			errs = append(errs, &RoleError{Role: role, Err: err})
		}
	}

	for _, role := range spec.RoleNames() {
		if _, ok := required[role]; !ok {
			warnings = append(warnings, fmt.Sprintf("role %q is declared in constellation %s but not used by the test plan", role, spec.Name))
		}
	}

	if len(errs) > 0 {
		return warnings, &ConfigurationErrors{Errors: errs}
	}
	return warnings, nil
}

// Assemble validates spec and instantiates every required role. Nodes are
// set up concurrently; each setup is retried with exponential backoff.
// A node that cannot be set up is recorded as failed and the other roles
// continue. Configuration errors are returned before any factory runs.
func (a *Assembler) Assemble(ctx context.Context, spec *Spec, required map[string]driver.CapabilitySet) (*Live, error) {
	return a.AssembleFor(ctx, spec, required, "")
}

// AssembleFor is Assemble for one of several constellations of a run.
// assembly keeps the setup traffic of each constellation apart in the
// session.
func (a *Assembler) AssembleFor(ctx context.Context, spec *Spec, required map[string]driver.CapabilitySet, assembly string) (*Live, error) {
	warnings, err := a.Validate(spec, required)
	for _, w := range warnings {
		logging.Warn("Assembler", "%s", w)
	}
	if err != nil {
		return nil, err
	}

	live := newLive(spec.Name)
	live.warnings = warnings

	g, gctx := errgroup.WithContext(ctx)
	if a.Concurrency > 0 {
		g.SetLimit(a.Concurrency)
	}
	for _, role := range sortedRoles(required) {
		role := role
		ns := spec.Roles[role]
		g.Go(func() error {
			h, err := a.setup(gctx, assembly, role, ns)
			if err != nil {
				logging.Error("Assembler", err, "Role %s could not be set up", role)
				live.fail(role, err)
				return nil
			}
			live.add(h)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		if tdErr := live.Teardown(context.WithoutCancel(ctx)); tdErr != nil {
			logging.Error("Assembler", tdErr, "Teardown after aborted setup failed")
		}
		return nil, err
	}

	logging.Info("Assembler", "Constellation %s assembled: %d nodes up, %d failed", spec.Name, len(live.order), len(live.failed))
	return live, nil
}

func (a *Assembler) setup(ctx context.Context, assembly, role string, ns NodeSpec) (*Handle, error) {
	entry, err := a.Registry.Lookup(ns.Driver)
	if err != nil {
		return nil, err
	}
	policy, err := a.policyFor(entry)
	if err != nil {
		return nil, err
	}

	transport := session.NewTransport(role, a.Mode, a.Base)
	transport.Recorder = a.Recorder
	transport.Replayer = a.Replayer
	transport.Policy = policy
	transport.Limiter = session.NewLimiter(ns.Config.RateLimit, ns.Config.Burst)

	timeout, err := ns.Config.DurationParameter("timeout", DefaultHTTPTimeout)
	if err != nil {
		return nil, err
	}
	client := &http.Client{
		Transport: transport,
		Timeout:   timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= MaxRedirects {
				return fmt.Errorf("stopped after %d redirects", MaxRedirects)
			}
			return nil
		},
	}

	params := driver.InitParams{Role: role, Driver: ns.Driver, Config: ns.Config, HTTPClient: client}

	// Setup traffic of all attempts shares one scope so its keys stay
	// stable between record and replay.
	scope := session.NewScope(session.SetupKey(assembly, role))
	sctx := session.WithScope(ctx, scope)

	attempts := 0
	node, err := backoff.Retry(sctx, func() (driver.Node, error) {
		attempts++
		logging.Debug("Assembler", "Setting up role %s with driver %s (attempt %d)", role, ns.Driver, attempts)
		n, err := callFactory(sctx, entry, params)
		if err == nil {
			return n, nil
		}
		var sessErr *session.ErroredSessionError
		var panicErr *driver.PanicError
		if driver.IsConfigError(err) || errors.As(err, &sessErr) || errors.As(err, &panicErr) {
			return nil, backoff.Permanent(err)
		}
		logging.Warn("Assembler", "Setup of role %s failed (attempt %d/%d): %v", role, attempts, a.attempts(), err)
		return nil, err
	}, backoff.WithBackOff(a.backOff()), backoff.WithMaxTries(uint(a.attempts())))
	if err != nil {
		if driver.IsConfigError(err) {
			return nil, &RoleError{Role: role, Err: err}
		}
		return nil, &NodeUnreachableError{Role: role, Driver: ns.Driver, Attempts: attempts, Cause: err}
	}
	if faults := scope.Faults(); len(faults) > 0 {
		closeQuietly(ctx, role, node)
		return nil, &NodeUnreachableError{Role: role, Driver: ns.Driver, Attempts: attempts, Cause: errors.Join(faults...)}
	}
	for _, d := range scope.Divergences() {
		logging.Warn("Assembler", "Setup traffic of role %s diverged from the recording: %v", role, d)
	}

	logging.Info("Assembler", "Role %s is up (driver %s)", role, ns.Driver)
	return newHandle(role, ns, node, transport, policy), nil
}

func callFactory(ctx context.Context, entry *driver.Entry, p driver.InitParams) (n driver.Node, err error) {
	defer func() {
		if r := recover(); r != nil {
			n, err = nil, &driver.PanicError{Driver: entry.Name, Value: r}
		}
	}()
	n, err = entry.Factory(ctx, p)
	if err == nil && n == nil {
		err = fmt.Errorf("driver %s returned no node", entry.Name)
	}
	return n, err
}

func (a *Assembler) policyFor(entry *driver.Entry) (*session.Policy, error) {
	return session.NewPolicy(append(append([]string(nil), a.VolatileFields...), entry.VolatileFields...)...)
}

func (a *Assembler) attempts() int {
	if a.SetupAttempts <= 0 {
		return DefaultSetupAttempts
	}
	return a.SetupAttempts
}

func (a *Assembler) backOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = a.SetupBackoff
	if b.InitialInterval <= 0 {
		b.InitialInterval = DefaultSetupBackoff
	}
	b.MaxInterval = 8 * b.InitialInterval
	return b
}

func sortedRoles(required map[string]driver.CapabilitySet) []string {
	roles := make([]string, 0, len(required))
	for role := range required {
		roles = append(roles, role)
	}
	sort.Strings(roles)
	return roles
}
