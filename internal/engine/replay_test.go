package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"feditest/internal/constellation"
	"feditest/internal/driver"
	"feditest/internal/plan"
	"feditest/internal/report"
	"feditest/internal/session"
)

// newInboxServer is a minimal federation endpoint: POST /inbox stores an
// activity, GET /inbox returns the last one.
func newInboxServer(t *testing.T) *httptest.Server {
	t.Helper()
	var mu sync.Mutex
	last := map[string]interface{}{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		switch r.Method {
		case http.MethodPost:
			var activity map[string]interface{}
			if err := json.NewDecoder(r.Body).Decode(&activity); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			last = activity
			w.WriteHeader(http.StatusAccepted)
		default:
			w.Header().Set("Content-Type", "application/activity+json")
			_ = json.NewEncoder(w).Encode(last)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

type inboxNode struct {
	client *http.Client
	base   string
	alter  func(driver.Result)
}

func (n *inboxNode) Describe() map[string]interface{} {
	return map[string]interface{}{"base_url": n.base}
}

func (n *inboxNode) Close(ctx context.Context) error { return nil }

func (n *inboxNode) Operate(ctx context.Context, c driver.Capability, p driver.Params) (driver.Result, error) {
	switch c {
	case driver.CapActivityDeliver:
		inbox, err := p.RequireString("inbox")
		if err != nil {
			return nil, err
		}
		content, _ := p.String("content")
		body, _ := json.Marshal(map[string]interface{}{
			"id":     "urn:uuid:" + uuid.NewString(),
			"type":   "Create",
			"object": map[string]interface{}{"type": "Note", "content": content},
		})
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, inbox, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/activity+json")
		resp, err := n.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		return driver.Result{"status": resp.StatusCode}, nil

	case driver.CapTimelineFetch:
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, n.base+"/inbox", nil)
		if err != nil {
			return nil, err
		}
		resp, err := n.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		var body map[string]interface{}
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return nil, err
		}
		res := driver.Result{"status": resp.StatusCode, "body": body}
		if n.alter != nil {
			n.alter(res)
		}
		return res, nil
	}
	return nil, &driver.NotImplementedError{Driver: "inbox", Capability: c}
}

func registerInbox(t *testing.T, reg *driver.Registry, name string, alter func(driver.Result), opts ...driver.Option) {
	t.Helper()
	factory := func(ctx context.Context, p driver.InitParams) (driver.Node, error) {
		return &inboxNode{client: p.HTTPClient, base: p.Config.Parameter("base_url", ""), alter: alter}, nil
	}
	caps := driver.NewCapabilitySet(driver.CapActivityDeliver, driver.CapTimelineFetch)
	require.NoError(t, reg.Register(name, factory, caps, opts...))
}

// dropContent is a receiver that loses the note content.
func dropContent(res driver.Result) {
	body, _ := res["body"].(map[string]interface{})
	object, _ := body["object"].(map[string]interface{})
	delete(object, "content")
}

func inboxRegistry(t *testing.T, volatile bool) *driver.Registry {
	var opts []driver.Option
	if volatile {
		opts = append(opts, driver.WithVolatileFields("request.body.id"))
	}
	reg := driver.NewRegistry()
	registerInbox(t, reg, "inbox", nil, opts...)
	registerInbox(t, reg, "inbox-lossy", dropContent, opts...)
	return reg
}

func deliverPlan() *plan.Plan {
	post := operation("post", "sender", driver.CapActivityDeliver, map[string]interface{}{
		"inbox":   "{{ .roles.receiver.base_url }}/inbox",
		"content": "hello",
	})
	post.Expect = expectEqual("status", 202)
	fetch := operation("inbox", "receiver", driver.CapTimelineFetch, nil)
	fetch.Expect = expectEqual("body.object.type", "Note")

	return &plan.Plan{Name: "federation", Scenarios: []plan.Scenario{{
		Name:  "deliver-note",
		Steps: []plan.Step{stepOf("deliver", post), stepOf("fetch", fetch)},
	}}}
}

func inboxSpec(base, receiverDriver string) *constellation.Spec {
	params := map[string]interface{}{"base_url": base}
	return &constellation.Spec{Name: "pair", Roles: map[string]constellation.NodeSpec{
		"sender":   {Driver: "inbox", Config: driver.NodeConfig{Parameters: params}},
		"receiver": {Driver: receiverDriver, Config: driver.NodeConfig{Parameters: params}},
	}}
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

// record runs the deliver plan live in record mode and returns the path of
// the written session.
func record(t *testing.T, reg *driver.Registry, base string) string {
	t.Helper()
	e, asm, _ := newExecutor(reg, session.ModeRecord, testConfig())
	rec := session.NewRecorder(session.Metadata{RunID: "rec", Plan: "federation", Constellation: "pair"})
	asm.Recorder = rec

	rep, err := e.Run(context.Background(), deliverPlan(), inboxSpec(base, "inbox"))
	require.NoError(t, err)
	require.Equal(t, report.StatusPassed, rep.Scenarios[0].Status, "%v", rep.Scenarios[0].Failure)

	var keys []string
	for _, ex := range rec.Session(true).Exchanges {
		keys = append(keys, ex.Key)
	}
	assert.ElementsMatch(t, []string{
		"deliver-note/deliver/post#1",
		"deliver-note/deliver/post",
		"deliver-note/fetch/inbox#1",
		"deliver-note/fetch/inbox",
	}, keys)

	path := filepath.Join(t.TempDir(), "session.json")
	require.NoError(t, rec.Flush(path, true))
	return path
}

func replay(t *testing.T, reg *driver.Registry, path, base, receiverDriver string) *report.Report {
	t.Helper()
	loaded, err := session.Load(path)
	require.NoError(t, err)

	e, asm, _ := newExecutor(reg, session.ModeReplay, testConfig())
	asm.Replayer = session.NewReplayer(loaded)
	asm.Base = roundTripFunc(func(r *http.Request) (*http.Response, error) {
		return nil, fmt.Errorf("live request to %s during replay", r.URL)
	})

	rep, err := e.Run(context.Background(), deliverPlan(), inboxSpec(base, receiverDriver))
	require.NoError(t, err)
	return rep
}

func TestReplay_UnchangedSystemReproducesResults(t *testing.T) {
	srv := newInboxServer(t)
	reg := inboxRegistry(t, true)
	path := record(t, reg, srv.URL)

	rep := replay(t, reg, path, srv.URL, "inbox")
	res := rep.Scenarios[0]
	assert.Equal(t, report.StatusPassed, res.Status, "%v", res.Failure)
	assert.Equal(t, "hello", res.Steps[1].Operations[0].Result["body"].(map[string]interface{})["object"].(map[string]interface{})["content"])
	assert.Empty(t, rep.Warnings)
	assert.Equal(t, report.ExitPassed, rep.ExitCode())
}

func TestReplay_AlteredReceiverDiverges(t *testing.T) {
	srv := newInboxServer(t)
	reg := inboxRegistry(t, true)
	path := record(t, reg, srv.URL)

	rep := replay(t, reg, path, srv.URL, "inbox-lossy")
	res := rep.Scenarios[0]
	assert.Equal(t, report.StatusFailed, res.Status)
	require.NotNil(t, res.Failure)
	assert.Equal(t, report.KindDivergence, res.Failure.Kind)
	assert.Equal(t, "fetch", res.Failure.Step)

	var paths []string
	for _, d := range res.Failure.Differences {
		paths = append(paths, d.Path)
	}
	assert.Equal(t, []string{"response.body.object.content"}, paths)
	assert.Equal(t, report.ExitFailures, rep.ExitCode())
}

func TestReplay_NonVolatileFieldsDiverge(t *testing.T) {
	srv := newInboxServer(t)
	reg := inboxRegistry(t, false)
	path := record(t, reg, srv.URL)

	rep := replay(t, reg, path, srv.URL, "inbox")
	res := rep.Scenarios[0]
	assert.Equal(t, report.StatusFailed, res.Status)
	require.NotNil(t, res.Failure)
	assert.Equal(t, report.KindDivergence, res.Failure.Kind)
	assert.Equal(t, "deliver", res.Failure.Step)
	require.Len(t, res.Failure.Differences, 1)
	assert.Equal(t, "request.body.id", res.Failure.Differences[0].Path)
}

func TestReplay_MissingRecordingIsSessionFault(t *testing.T) {
	srv := newInboxServer(t)
	reg := inboxRegistry(t, true)

	empty := filepath.Join(t.TempDir(), "empty.json")
	require.NoError(t, session.Save(empty, &session.Session{FormatVersion: session.FormatVersion, Complete: true, Exchanges: []session.Exchange{}}))

	rep := replay(t, reg, empty, srv.URL, "inbox")
	res := rep.Scenarios[0]
	assert.Equal(t, report.StatusErrored, res.Status)
	require.NotNil(t, res.Failure)
	assert.Equal(t, report.KindSession, res.Failure.Kind)
	assert.Contains(t, res.Failure.Message, "no recorded exchange for deliver-note/deliver/post#1")
}
