package session

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newNoteServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/activity+json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"type":   "Note",
			"path":   r.URL.Path,
			"method": r.Method,
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func doRequest(t *testing.T, ctx context.Context, client *http.Client, method, url, body string) (*http.Response, error) {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, rd)
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/activity+json")
	}
	return client.Do(req)
}

func TestTransport_RecordThenReplay(t *testing.T) {
	srv := newNoteServer(t)
	policy, err := NewPolicy("request.headers.Date")
	require.NoError(t, err)

	rec := NewRecorder(Metadata{RunID: "r"})
	live := NewTransport("receiver", ModeRecord, nil)
	live.Recorder = rec
	live.Policy = policy
	client := &http.Client{Transport: live}

	scope := NewScope(Key{Scenario: "s", Step: "fetch", Operation: "get"})
	ctx := WithScope(context.Background(), scope)

	resp, err := doRequest(t, ctx, client, http.MethodPost, srv.URL+"/inbox", `{"type":"Create"}`)
	require.NoError(t, err)
	liveBody, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Contains(t, string(liveBody), `"path":"/inbox"`)

	resp, err = doRequest(t, ctx, client, http.MethodGet, srv.URL+"/outbox", "")
	require.NoError(t, err)
	resp.Body.Close()

	recorded := rec.Session(true)
	require.Len(t, recorded.Exchanges, 2)
	assert.Equal(t, "s/fetch/get#1", recorded.Exchanges[0].Key)
	assert.Equal(t, "s/fetch/get#2", recorded.Exchanges[1].Key)
	assert.Equal(t, map[string]interface{}{"type": "Create"}, recorded.Exchanges[0].Request["body"])
	srv.Close()

	t.Run("replay serves recorded responses without I/O", func(t *testing.T) {
		replay := NewTransport("receiver", ModeReplay, nil)
		replay.Replayer = NewReplayer(recorded)
		replay.Policy = policy
		client := &http.Client{Transport: replay}
		scope := NewScope(Key{Scenario: "s", Step: "fetch", Operation: "get"})
		ctx := WithScope(context.Background(), scope)

		resp, err := doRequest(t, ctx, client, http.MethodPost, srv.URL+"/inbox", `{"type":"Create"}`)
		require.NoError(t, err)
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.JSONEq(t, string(liveBody), string(body))

		resp, err = doRequest(t, ctx, client, http.MethodGet, srv.URL+"/outbox", "")
		require.NoError(t, err)
		resp.Body.Close()

		assert.Empty(t, scope.Divergences())
		assert.Empty(t, scope.Faults())
	})

	t.Run("changed request body diverges", func(t *testing.T) {
		replay := NewTransport("receiver", ModeReplay, nil)
		replay.Replayer = NewReplayer(recorded)
		client := &http.Client{Transport: replay}
		scope := NewScope(Key{Scenario: "s", Step: "fetch", Operation: "get"})
		ctx := WithScope(context.Background(), scope)

		resp, err := doRequest(t, ctx, client, http.MethodPost, srv.URL+"/inbox", `{"type":"Announce"}`)
		require.NoError(t, err, "divergence is reported through the scope, the driver still gets the response")
		resp.Body.Close()

		divs := scope.Divergences()
		require.Len(t, divs, 1)
		assert.Equal(t, []string{"request.body.type"}, divs[0].Paths())
	})

	t.Run("extra request is a session fault", func(t *testing.T) {
		replay := NewTransport("receiver", ModeReplay, nil)
		replay.Replayer = NewReplayer(recorded)
		client := &http.Client{Transport: replay}
		scope := NewScope(Key{Scenario: "s", Step: "other", Operation: "get"})
		ctx := WithScope(context.Background(), scope)

		_, err := doRequest(t, ctx, client, http.MethodGet, srv.URL+"/x", "")
		var fault *ErroredSessionError
		require.True(t, errors.As(err, &fault))
		assert.Equal(t, ReasonMissing, fault.Reason)
		assert.Len(t, scope.Faults(), 1)
	})

	t.Run("unscoped request cannot be replayed", func(t *testing.T) {
		replay := NewTransport("receiver", ModeReplay, nil)
		replay.Replayer = NewReplayer(recorded)
		client := &http.Client{Transport: replay}

		_, err := doRequest(t, context.Background(), client, http.MethodGet, srv.URL+"/x", "")
		var fault *ErroredSessionError
		require.True(t, errors.As(err, &fault))
		assert.Equal(t, ReasonUnscoped, fault.Reason)
	})
}

func TestTransport_RecordsFailures(t *testing.T) {
	srv := newNoteServer(t)
	url := srv.URL
	srv.Close()

	rec := NewRecorder(Metadata{})
	tr := NewTransport("submitter", ModeRecord, nil)
	tr.Recorder = rec
	client := &http.Client{Transport: tr}
	ctx := WithScope(context.Background(), setupScope("submitter"))

	_, err := doRequest(t, ctx, client, http.MethodGet, url+"/.well-known/nodeinfo", "")
	require.Error(t, err)

	s := rec.Session(true)
	require.Len(t, s.Exchanges, 1)
	assert.NotEmpty(t, s.Exchanges[0].Error)
	assert.Nil(t, s.Exchanges[0].Response)

	replay := NewTransport("submitter", ModeReplay, nil)
	replay.Replayer = NewReplayer(s)
	client = &http.Client{Transport: replay}
	ctx = WithScope(context.Background(), setupScope("submitter"))

	_, err = doRequest(t, ctx, client, http.MethodGet, url+"/.well-known/nodeinfo", "")
	var recordedFailure *RecordedFailureError
	require.True(t, errors.As(err, &recordedFailure))
}

func TestTransport_LiveModeRecordsNothing(t *testing.T) {
	srv := newNoteServer(t)
	rec := NewRecorder(Metadata{})
	tr := NewTransport("receiver", ModeLive, nil)
	tr.Recorder = rec
	tr.Limiter = NewLimiter(100, 1)
	client := &http.Client{Transport: tr}
	ctx := WithScope(context.Background(), NewScope(Key{Scenario: "s", Step: "1", Operation: "a"}))

	resp, err := doRequest(t, ctx, client, http.MethodGet, srv.URL, "")
	require.NoError(t, err)
	resp.Body.Close()

	assert.Zero(t, rec.Len())
	assert.Nil(t, NewLimiter(0, 0))
}

func setupScope(role string) *Scope {
	return NewScope(SetupKey("", role))
}
