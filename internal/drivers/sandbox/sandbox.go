// Package sandbox implements a toy multiplication protocol used to
// demonstrate and test the framework without any network access.
//
// A client node asks a server node to multiply two numbers on its behalf:
//
//	sandbox.cause_mult {server: <role>, a: 3, b: 4}  ->  {c: 12}
//
// Three server implementations exist: a direct one, one that multiplies by
// repeated addition, and a faulty one that always answers 17.
package sandbox

import (
	"context"
	"fmt"
	"sync"
	"time"

	"feditest/internal/driver"
	"feditest/pkg/logging"
)

// Capabilities of the sandbox protocol.
const (
	CapMult         driver.Capability = "sandbox.mult"
	CapCauseMult    driver.Capability = "sandbox.cause_mult"
	CapStartLogging driver.Capability = "sandbox.start_logging"
	CapLog          driver.Capability = "sandbox.log"
)

// Driver names registered by Register.
const (
	ClientDriver       = "sandbox-client"
	ServerDriver       = "sandbox-server"
	LoopServerDriver   = "sandbox-server-loop"
	FaultyServerDriver = "sandbox-server-faulty"
)

// Register adds the sandbox client and server drivers to reg.
func Register(reg *driver.Registry) error {
	serverCaps := driver.NewCapabilitySet(CapMult, CapStartLogging, CapLog)
	servers := []struct {
		name string
		desc string
		mult func(a, b int) int
	}{
		{ServerDriver, "sandbox server computing a*b", func(a, b int) int { return a * b }},
		{LoopServerDriver, "sandbox server computing a*b by repeated addition", multByAddition},
		{FaultyServerDriver, "faulty sandbox server that always answers 17", func(a, b int) int { return 17 }},
	}
	for _, s := range servers {
		mult := s.mult
		factory := func(ctx context.Context, p driver.InitParams) (driver.Node, error) {
			return &Server{role: p.Role, mult: mult}, nil
		}
		if err := reg.Register(s.name, factory, serverCaps,
			driver.WithDescription(s.desc),
			driver.WithVolatileFields("response.events.*.when"),
		); err != nil {
			return err
		}
	}

	return reg.Register(ClientDriver, func(ctx context.Context, p driver.InitParams) (driver.Node, error) {
		return &Client{role: p.Role}, nil
	}, driver.NewCapabilitySet(CapCauseMult), driver.WithDescription("sandbox client delegating multiplication to a server role"))
}

func multByAddition(a, b int) int {
	c := 0
	for i := 0; i < a; i++ {
		c += b
	}
	return c
}

// LogEvent is one multiplication observed by a logging server.
type LogEvent struct {
	When time.Time `json:"when"`
	A    int       `json:"a"`
	B    int       `json:"b"`
	C    int       `json:"c"`
}

// Server answers sandbox.mult.
type Server struct {
	role string
	mult func(a, b int) int

	mu  sync.Mutex
	log []LogEvent
	// logging is true between sandbox.start_logging and sandbox.log.
	logging bool
}

func (s *Server) Describe() map[string]interface{} {
	return map[string]interface{}{"protocol": "sandbox", "kind": "server"}
}

func (s *Server) Close(ctx context.Context) error { return nil }

// Operate implements driver.Operator.
func (s *Server) Operate(ctx context.Context, c driver.Capability, p driver.Params) (driver.Result, error) {
	switch c {
	case CapMult:
		a, b, err := operands(p)
		if err != nil {
			return nil, err
		}
		product := s.mult(a, b)
		s.mu.Lock()
		if s.logging {
			s.log = append(s.log, LogEvent{When: time.Now().UTC(), A: a, B: b, C: product})
		}
		s.mu.Unlock()
		return driver.Result{"c": product}, nil

	case CapStartLogging:
		s.mu.Lock()
		s.logging = true
		s.log = nil
		s.mu.Unlock()
		return driver.Result{}, nil

	case CapLog:
		s.mu.Lock()
		events := s.log
		s.log = nil
		s.logging = false
		s.mu.Unlock()
		out := make([]interface{}, len(events))
		for i, e := range events {
			out[i] = map[string]interface{}{"when": e.When.Format(time.RFC3339Nano), "a": e.A, "b": e.B, "c": e.C}
		}
		return driver.Result{"events": out}, nil
	}
	return nil, &driver.NotImplementedError{Driver: "sandbox-server", Capability: c}
}

// Client answers sandbox.cause_mult by invoking sandbox.mult on the server
// role named by the "server" parameter.
type Client struct {
	role string
}

func (c *Client) Describe() map[string]interface{} {
	return map[string]interface{}{"protocol": "sandbox", "kind": "client"}
}

func (c *Client) Close(ctx context.Context) error { return nil }

// Operate implements driver.Operator.
func (c *Client) Operate(ctx context.Context, capability driver.Capability, p driver.Params) (driver.Result, error) {
	if capability != CapCauseMult {
		return nil, &driver.NotImplementedError{Driver: ClientDriver, Capability: capability}
	}
	server, err := p.RequireString("server")
	if err != nil {
		return nil, err
	}
	if server == c.role {
		return nil, fmt.Errorf("client %s cannot be its own server", c.role)
	}
	a, b, err := operands(p)
	if err != nil {
		return nil, err
	}
	peer, ok := driver.PeerFor(ctx, server)
	if !ok {
		return nil, &driver.OperationError{Driver: ClientDriver, Capability: capability, Err: fmt.Errorf("no live node plays role %s", server)}
	}

	logging.Debug("Driver", "Sandbox client %s asks %s to multiply %d by %d", c.role, server, a, b)
	res, err := peer.Invoke(ctx, CapMult, driver.Params{"a": a, "b": b})
	if err != nil {
		return nil, &driver.OperationError{Driver: ClientDriver, Capability: capability, Err: err}
	}
	return driver.Result{"c": res["c"]}, nil
}

func operands(p driver.Params) (int, int, error) {
	a, err := p.Int("a")
	if err != nil {
		return 0, 0, err
	}
	b, err := p.Int("b")
	if err != nil {
		return 0, 0, err
	}
	return a, b, nil
}
