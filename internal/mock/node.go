package mock

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"

	"feditest/pkg/logging"
)

const (
	// ContentTypeActivity is the media type of ActivityPub documents.
	ContentTypeActivity = "application/activity+json"
	// ContentTypeJRD is the media type of WebFinger documents.
	ContentTypeJRD = "application/jrd+json"
	// NodeInfoSchema is the rel of the advertised NodeInfo document.
	NodeInfoSchema = "http://nodeinfo.diaspora.software/ns/schema/2.1"

	activityStreams = "https://www.w3.org/ns/activitystreams"
	maxActivitySize = 1 << 20
	// pageSize is the number of items on one outbox page.
	pageSize = 20
)

// Config describes a fake node.
type Config struct {
	// Domain is the host part of acct: URIs. Empty means the Host header
	// of each request.
	Domain   string   `yaml:"domain,omitempty" json:"domain,omitempty"`
	Accounts []string `yaml:"accounts" json:"accounts"`
	Software string   `yaml:"software,omitempty" json:"software,omitempty"`
	Version  string   `yaml:"version,omitempty" json:"version,omitempty"`
	Clock    Clock    `yaml:"-" json:"-"`
}

// Node is a fake federation node. It is safe for concurrent use.
type Node struct {
	cfg Config

	mu       sync.Mutex
	accounts map[string]*account
}

type account struct {
	name   string
	inbox  []map[string]interface{}
	outbox []map[string]interface{}
}

// NewNode creates a node serving cfg.Accounts.
func NewNode(cfg Config) *Node {
	if cfg.Software == "" {
		cfg.Software = "feditest-mock"
	}
	if cfg.Version == "" {
		cfg.Version = "1.0.0"
	}
	if cfg.Clock == nil {
		cfg.Clock = RealClock{}
	}
	n := &Node{cfg: cfg, accounts: make(map[string]*account)}
	for _, name := range cfg.Accounts {
		n.accounts[name] = &account{name: name}
	}
	return n
}

// Handler returns the node's HTTP handler.
func (n *Node) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /.well-known/webfinger", n.handleWebFinger)
	mux.HandleFunc("GET /.well-known/nodeinfo", n.handleNodeInfoLinks)
	mux.HandleFunc("GET /nodeinfo/2.1", n.handleNodeInfo)
	mux.HandleFunc("GET /users/{name}", n.withAccount(n.handleActor))
	mux.HandleFunc("GET /users/{name}/inbox", n.withAccount(n.handleInboxList))
	mux.HandleFunc("POST /users/{name}/inbox", n.withAccount(n.handleInboxPost))
	mux.HandleFunc("GET /users/{name}/outbox", n.withAccount(n.handleOutbox))
	return logRequests(mux)
}

// Post adds a note authored by name to its outbox and returns the created
// activity.
func (n *Node) Post(baseURL, name, content string) (map[string]interface{}, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	acct, ok := n.accounts[name]
	if !ok {
		return nil, fmt.Errorf("no account %q", name)
	}
	actor := actorURL(baseURL, name)
	id := fmt.Sprintf("%s/statuses/%d", actor, len(acct.outbox)+1)
	activity := map[string]interface{}{
		"id":        id + "/activity",
		"type":      "Create",
		"actor":     actor,
		"published": n.cfg.Clock.Now().Format("2006-01-02T15:04:05Z"),
		"object": map[string]interface{}{
			"id":           id,
			"type":         "Note",
			"attributedTo": actor,
			"content":      content,
		},
	}
	acct.outbox = append(acct.outbox, activity)
	return activity, nil
}

// Received returns the activities delivered to the inbox of name.
func (n *Node) Received(name string) []map[string]interface{} {
	n.mu.Lock()
	defer n.mu.Unlock()
	acct, ok := n.accounts[name]
	if !ok {
		return nil
	}
	return append([]map[string]interface{}(nil), acct.inbox...)
}

func (n *Node) domain(r *http.Request) string {
	if n.cfg.Domain != "" {
		return n.cfg.Domain
	}
	return r.Host
}

func baseURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + r.Host
}

func actorURL(base, name string) string {
	return base + "/users/" + name
}

func (n *Node) handleWebFinger(w http.ResponseWriter, r *http.Request) {
	resource := r.URL.Query().Get("resource")
	if resource == "" {
		http.Error(w, "missing resource parameter", http.StatusBadRequest)
		return
	}
	base := baseURL(r)

	var name string
	switch {
	case strings.HasPrefix(resource, "acct:"):
		user, host, ok := strings.Cut(strings.TrimPrefix(resource, "acct:"), "@")
		if !ok || !strings.EqualFold(host, n.domain(r)) {
			http.NotFound(w, r)
			return
		}
		name = user
	case strings.HasPrefix(resource, base+"/users/"):
		name = strings.TrimPrefix(resource, base+"/users/")
	default:
		http.NotFound(w, r)
		return
	}

	n.mu.Lock()
	_, ok := n.accounts[name]
	n.mu.Unlock()
	if !ok {
		http.NotFound(w, r)
		return
	}

	actor := actorURL(base, name)
	writeJSON(w, ContentTypeJRD, http.StatusOK, map[string]interface{}{
		"subject": fmt.Sprintf("acct:%s@%s", name, n.domain(r)),
		"aliases": []string{actor},
		"links": []map[string]interface{}{
			{"rel": "self", "type": ContentTypeActivity, "href": actor},
			{"rel": "http://webfinger.net/rel/profile-page", "type": "text/html", "href": base + "/@" + name},
		},
	})
}

func (n *Node) handleNodeInfoLinks(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, "application/json", http.StatusOK, map[string]interface{}{
		"links": []map[string]interface{}{
			{"rel": NodeInfoSchema, "href": baseURL(r) + "/nodeinfo/2.1"},
		},
	})
}

func (n *Node) handleNodeInfo(w http.ResponseWriter, r *http.Request) {
	n.mu.Lock()
	users := len(n.accounts)
	n.mu.Unlock()
	writeJSON(w, "application/json", http.StatusOK, map[string]interface{}{
		"version":           "2.1",
		"software":          map[string]interface{}{"name": n.cfg.Software, "version": n.cfg.Version},
		"protocols":         []string{"activitypub"},
		"openRegistrations": false,
		"usage":             map[string]interface{}{"users": map[string]interface{}{"total": users}},
		"metadata":          map[string]interface{}{},
	})
}

func (n *Node) withAccount(h func(http.ResponseWriter, *http.Request, *account)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n.mu.Lock()
		acct, ok := n.accounts[r.PathValue("name")]
		n.mu.Unlock()
		if !ok {
			http.NotFound(w, r)
			return
		}
		h(w, r, acct)
	}
}

func (n *Node) handleActor(w http.ResponseWriter, r *http.Request, acct *account) {
	actor := actorURL(baseURL(r), acct.name)
	writeJSON(w, ContentTypeActivity, http.StatusOK, map[string]interface{}{
		"@context":          []string{activityStreams},
		"id":                actor,
		"type":              "Person",
		"preferredUsername": acct.name,
		"inbox":             actor + "/inbox",
		"outbox":            actor + "/outbox",
		"followers":         actor + "/followers",
		"following":         actor + "/following",
	})
}

func (n *Node) handleInboxPost(w http.ResponseWriter, r *http.Request, acct *account) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxActivitySize))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var activity map[string]interface{}
	if err := json.Unmarshal(body, &activity); err != nil {
		http.Error(w, "activity is not a JSON object", http.StatusBadRequest)
		return
	}
	if t, _ := activity["type"].(string); t == "" {
		http.Error(w, "activity has no type", http.StatusBadRequest)
		return
	}

	n.mu.Lock()
	acct.inbox = append(acct.inbox, activity)
	n.mu.Unlock()
	logging.Debug("Mock", "Inbox of %s received a %v activity", acct.name, activity["type"])
	w.WriteHeader(http.StatusAccepted)
}

func (n *Node) handleInboxList(w http.ResponseWriter, r *http.Request, acct *account) {
	n.mu.Lock()
	items := append([]map[string]interface{}(nil), acct.inbox...)
	n.mu.Unlock()
	id := actorURL(baseURL(r), acct.name) + "/inbox"
	writeJSON(w, ContentTypeActivity, http.StatusOK, orderedCollection(id, newestFirst(items)))
}

func (n *Node) handleOutbox(w http.ResponseWriter, r *http.Request, acct *account) {
	n.mu.Lock()
	items := append([]map[string]interface{}(nil), acct.outbox...)
	n.mu.Unlock()
	id := actorURL(baseURL(r), acct.name) + "/outbox"

	if r.URL.Query().Get("page") != "true" {
		writeJSON(w, ContentTypeActivity, http.StatusOK, map[string]interface{}{
			"@context":   activityStreams,
			"id":         id,
			"type":       "OrderedCollection",
			"totalItems": len(items),
			"first":      id + "?page=true",
		})
		return
	}
	items = newestFirst(items)
	if len(items) > pageSize {
		items = items[:pageSize]
	}
	writeJSON(w, ContentTypeActivity, http.StatusOK, map[string]interface{}{
		"@context":     activityStreams,
		"id":           id + "?page=true",
		"type":         "OrderedCollectionPage",
		"partOf":       id,
		"orderedItems": items,
	})
}

func orderedCollection(id string, items []map[string]interface{}) map[string]interface{} {
	return map[string]interface{}{
		"@context":     activityStreams,
		"id":           id,
		"type":         "OrderedCollection",
		"totalItems":   len(items),
		"orderedItems": items,
	}
}

func newestFirst(items []map[string]interface{}) []map[string]interface{} {
	out := make([]map[string]interface{}, len(items))
	for i, it := range items {
		out[len(items)-1-i] = it
	}
	return out
}

func writeJSON(w http.ResponseWriter, contentType string, status int, v interface{}) {
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Error("Mock", err, "Failed to write response")
	}
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logging.Debug("Mock", "%s %s", r.Method, r.URL.RequestURI())
		next.ServeHTTP(w, r)
	})
}

// AccountNames returns the configured accounts, sorted.
func (n *Node) AccountNames() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	names := make([]string, 0, len(n.accounts))
	for name := range n.accounts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
