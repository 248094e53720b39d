package driver

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// Params are the structured inputs of a driver operation.
type Params map[string]interface{}

// Result is the structured outcome of a driver operation. HTTP-backed
// operations conventionally populate "status", "headers" and "body".
type Result map[string]interface{}

// Account is a pre-provisioned (or deliberately non-existing) account on a node.
type Account struct {
	ID       string `yaml:"id" json:"id"`
	Role     string `yaml:"role,omitempty" json:"role,omitempty"`
	URI      string `yaml:"uri,omitempty" json:"uri,omitempty"`
	Email    string `yaml:"email,omitempty" json:"email,omitempty"`
	Password string `yaml:"password,omitempty" json:"password,omitempty"`
	Token    string `yaml:"token,omitempty" json:"token,omitempty"`
}

// NodeConfig is the driver configuration of one constellation role.
type NodeConfig struct {
	Domain              string                 `yaml:"domain,omitempty" json:"domain,omitempty"`
	Credentials         map[string]string      `yaml:"credentials,omitempty" json:"credentials,omitempty"`
	Accounts            []Account              `yaml:"accounts,omitempty" json:"accounts,omitempty"`
	NonExistingAccounts []Account              `yaml:"non_existing_accounts,omitempty" json:"non_existing_accounts,omitempty"`
	Parameters          map[string]interface{} `yaml:"parameters,omitempty" json:"parameters,omitempty"`
	// Shared marks the node as safe to drive from several scenarios at once.
	Shared bool `yaml:"shared,omitempty" json:"shared,omitempty"`
	// RateLimit caps outgoing requests per second; zero means unlimited.
	RateLimit float64 `yaml:"rate_limit,omitempty" json:"rate_limit,omitempty"`
	Burst     int     `yaml:"burst,omitempty" json:"burst,omitempty"`
}

// Parameter returns the string form of a driver parameter, or def when unset.
func (c NodeConfig) Parameter(key, def string) string {
	v, ok := c.Parameters[key]
	if !ok || v == nil {
		return def
	}
	return fmt.Sprint(v)
}

// DurationParameter parses a driver parameter such as "5s", or returns def.
func (c NodeConfig) DurationParameter(key string, def time.Duration) (time.Duration, error) {
	raw := c.Parameter(key, "")
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, NewConfigError("parameters."+key, "invalid duration %q", raw)
	}
	return d, nil
}

// InitParams is what a Factory receives when a role is instantiated.
type InitParams struct {
	Role   string
	Driver string
	Config NodeConfig
	// HTTPClient must be used for all network traffic of the node. Its
	// transport implements live, record and replay behaviour.
	HTTPClient *http.Client
}

// Factory instantiates a node. It may perform network handshakes; failures
// other than *ConfigError are retried by the assembler.
type Factory func(ctx context.Context, p InitParams) (Node, error)

// Node is a live instance produced by a driver.
type Node interface {
	// Describe returns facts about the node visible to step templates,
	// for example its domain or base URL.
	Describe() map[string]interface{}
	Close(ctx context.Context) error
}

// WebFingerQuerier resolves WebFinger resources.
type WebFingerQuerier interface {
	QueryWebFinger(ctx context.Context, p Params) (Result, error)
}

// HTTPGetter performs plain HTTP GET requests.
type HTTPGetter interface {
	HTTPGet(ctx context.Context, p Params) (Result, error)
}

// ActorFetcher dereferences actor documents.
type ActorFetcher interface {
	FetchActor(ctx context.Context, p Params) (Result, error)
}

// ActivityDeliverer posts activities to an inbox.
type ActivityDeliverer interface {
	DeliverActivity(ctx context.Context, p Params) (Result, error)
}

// TimelineFetcher reads collections such as an inbox or outbox.
type TimelineFetcher interface {
	FetchTimeline(ctx context.Context, p Params) (Result, error)
}

// Operator serves capabilities that have no dedicated interface.
type Operator interface {
	Operate(ctx context.Context, c Capability, p Params) (Result, error)
}

// Invoke dispatches capability c to the matching interface of n.
func Invoke(ctx context.Context, driverName string, n Node, c Capability, p Params) (Result, error) {
	switch c {
	case CapWebFingerQuery:
		if q, ok := n.(WebFingerQuerier); ok {
			return q.QueryWebFinger(ctx, p)
		}
	case CapHTTPGet:
		if g, ok := n.(HTTPGetter); ok {
			return g.HTTPGet(ctx, p)
		}
	case CapActorFetch:
		if f, ok := n.(ActorFetcher); ok {
			return f.FetchActor(ctx, p)
		}
	case CapActivityDeliver:
		if d, ok := n.(ActivityDeliverer); ok {
			return d.DeliverActivity(ctx, p)
		}
	case CapTimelineFetch:
		if f, ok := n.(TimelineFetcher); ok {
			return f.FetchTimeline(ctx, p)
		}
	}
	if op, ok := n.(Operator); ok {
		return op.Operate(ctx, c, p)
	}
	return nil, &NotImplementedError{Driver: driverName, Capability: c}
}

// CheckCapabilities returns one CapabilityMismatchError per required
// capability the driver does not advertise.
func CheckCapabilities(role, driverName string, advertised, required CapabilitySet) []error {
	var errs []error
	for _, c := range advertised.Missing(required) {
		errs = append(errs, &CapabilityMismatchError{Role: role, Driver: driverName, Capability: c})
	}
	return errs
}
