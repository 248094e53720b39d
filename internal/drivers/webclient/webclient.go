// Package webclient implements a generic fediverse client driver. It speaks
// plain HTTP to a node given by its base URL: WebFinger, actor documents,
// inbox delivery and collection paging. It knows nothing about any specific
// server product.
package webclient

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"feditest/internal/driver"
	"feditest/pkg/logging"
)

// DriverName is the registered name of the driver.
const DriverName = "webclient"

// Media types sent in Accept and Content-Type headers.
const (
	ContentTypeActivity = "application/activity+json"
	ContentTypeJRD      = "application/jrd+json"
)

// nodeInfoRelPrefix matches every NodeInfo schema version.
const nodeInfoRelPrefix = "http://nodeinfo.diaspora.software/ns/schema/"

// Options configure the driver for all nodes it creates.
type Options struct {
	// UserAgent is sent with every request.
	UserAgent string
}

// DefaultVolatileFields are the parts of this driver's exchanges that differ
// between runs.
var DefaultVolatileFields = []string{
	"request.body.id",
	"request.body.published",
	"request.body.object.id",
	"request.body.object.published",
	"request.params.activity.id",
	"response.id",
}

// Register adds the webclient driver to reg.
func Register(reg *driver.Registry, opts Options) error {
	if opts.UserAgent == "" {
		opts.UserAgent = "feditest"
	}
	caps := driver.NewCapabilitySet(
		driver.CapWebFingerQuery,
		driver.CapHTTPGet,
		driver.CapActorFetch,
		driver.CapActivityDeliver,
		driver.CapTimelineFetch,
	)
	factory := func(ctx context.Context, p driver.InitParams) (driver.Node, error) {
		return newNode(ctx, p, opts)
	}
	return reg.Register(DriverName, factory, caps,
		driver.WithDescription("generic fediverse client speaking WebFinger and ActivityPub over HTTP"),
		driver.WithValidator(validate),
		driver.WithVolatileFields(DefaultVolatileFields...),
	)
}

// validate checks the driver specific configuration without any I/O.
func validate(cfg driver.NodeConfig) error {
	raw := cfg.Parameter("base_url", "")
	if raw == "" {
		if cfg.Domain == "" {
			return driver.NewConfigError("parameters.base_url", "either a domain or a base_url parameter is required")
		}
		scheme := cfg.Parameter("scheme", "https")
		if scheme != "http" && scheme != "https" {
			return driver.NewConfigError("parameters.scheme", "unsupported scheme %q", scheme)
		}
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return driver.NewConfigError("parameters.base_url", "invalid base URL %q", raw)
	}
	switch cfg.Parameter("nodeinfo", "true") {
	case "true", "false":
	default:
		return driver.NewConfigError("parameters.nodeinfo", "must be true or false")
	}
	return nil
}

// Node is a live webclient node.
type Node struct {
	role      string
	client    *http.Client
	userAgent string
	base      *url.URL
	domain    string
	software  string
	version   string
	accounts  []driver.Account
}

func newNode(ctx context.Context, p driver.InitParams, opts Options) (*Node, error) {
	raw := p.Config.Parameter("base_url", "")
	if raw == "" {
		raw = p.Config.Parameter("scheme", "https") + "://" + p.Config.Domain
	}
	base, err := url.Parse(strings.TrimSuffix(raw, "/"))
	if err != nil {
		return nil, driver.NewConfigError("parameters.base_url", "invalid base URL %q", raw)
	}
	domain := p.Config.Domain
	if domain == "" {
		domain = base.Host
	}

	n := &Node{
		role:      p.Role,
		client:    p.HTTPClient,
		userAgent: opts.UserAgent,
		base:      base,
		domain:    domain,
		accounts:  p.Config.Accounts,
	}
	if n.client == nil {
		n.client = http.DefaultClient
	}

	if p.Config.Parameter("nodeinfo", "true") == "true" {
		if err := n.handshake(ctx); err != nil {
			return nil, err
		}
	}
	logging.Info("Driver", "Role %s is %s at %s", p.Role, n.softwareString(), n.base)
	return n, nil
}

// handshake reads the node's NodeInfo document to check it is reachable
// and to learn what software it runs.
func (n *Node) handshake(ctx context.Context) error {
	resp, err := n.get(ctx, n.base.String()+"/.well-known/nodeinfo", "application/json")
	if err != nil {
		return fmt.Errorf("nodeinfo discovery: %w", err)
	}
	if resp.Status != http.StatusOK {
		return fmt.Errorf("nodeinfo discovery: unexpected status %d", resp.Status)
	}

	var href string
	for _, link := range objects(resp.JSON()["links"]) {
		rel, _ := link["rel"].(string)
		if strings.HasPrefix(rel, nodeInfoRelPrefix) {
			href, _ = link["href"].(string)
		}
	}
	if href == "" {
		return fmt.Errorf("nodeinfo discovery: no NodeInfo link at %s", n.base)
	}

	resp, err = n.get(ctx, href, "application/json")
	if err != nil {
		return fmt.Errorf("nodeinfo: %w", err)
	}
	if resp.Status != http.StatusOK {
		return fmt.Errorf("nodeinfo: unexpected status %d from %s", resp.Status, href)
	}
	if sw, ok := resp.JSON()["software"].(map[string]interface{}); ok {
		n.software, _ = sw["name"].(string)
		n.version, _ = sw["version"].(string)
	}
	return nil
}

func (n *Node) softwareString() string {
	if n.software == "" {
		return "unknown software"
	}
	return n.software + " " + n.version
}

// Describe implements driver.Node.
func (n *Node) Describe() map[string]interface{} {
	ids := make([]interface{}, len(n.accounts))
	for i, a := range n.accounts {
		ids[i] = a.ID
	}
	return map[string]interface{}{
		"domain":   n.domain,
		"base_url": n.base.String(),
		"software": n.software,
		"version":  n.version,
		"accounts": ids,
	}
}

// Close implements driver.Node.
func (n *Node) Close(ctx context.Context) error {
	return nil
}

// target returns the base URL operations address: the "base_url" parameter,
// the base URL of the role named by "server", or the node's own.
func (n *Node) target(ctx context.Context, p driver.Params) (string, string, error) {
	if raw, ok := p.String("base_url"); ok && raw != "" {
		u, err := url.Parse(raw)
		if err != nil {
			return "", "", fmt.Errorf("parameter \"base_url\": %w", err)
		}
		return strings.TrimSuffix(raw, "/"), u.Host, nil
	}
	if role, ok := p.String("server"); ok && role != "" {
		peer, ok := driver.PeerFor(ctx, role)
		if !ok {
			return "", "", fmt.Errorf("no live node plays role %s", role)
		}
		facts := peer.Describe()
		base, _ := facts["base_url"].(string)
		domain, _ := facts["domain"].(string)
		if base == "" {
			return "", "", fmt.Errorf("role %s does not describe a base_url", role)
		}
		return base, domain, nil
	}
	return n.base.String(), n.domain, nil
}

func (n *Node) fail(c driver.Capability, err error) error {
	return &driver.OperationError{Driver: DriverName, Capability: c, Err: err}
}
