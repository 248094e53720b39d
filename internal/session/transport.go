package session

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"sort"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"feditest/pkg/logging"
)

// maxBodySize bounds how much of a body is captured.
const maxBodySize = 10 << 20

// RecordedFailureError is returned in replay mode when the recorded
// exchange ended with a transport error.
type RecordedFailureError struct {
	Key     string
	Message string
}

func (e *RecordedFailureError) Error() string {
	return fmt.Sprintf("recorded failure for %s: %s", e.Key, e.Message)
}

// Transport is the http.RoundTripper handed to drivers. It is the seam
// between drivers and the network: live and record mode perform real
// requests, replay mode answers from the session.
type Transport struct {
	Role     string
	Mode     Mode
	Base     http.RoundTripper
	Recorder *Recorder
	Replayer *Replayer
	Policy   *Policy
	// Limiter throttles live requests of this node; nil means unlimited.
	Limiter *rate.Limiter
}

// NewTransport creates a transport for role. A nil base uses a clone of
// http.DefaultTransport.
func NewTransport(role string, mode Mode, base http.RoundTripper) *Transport {
	if base == nil {
		base = http.DefaultTransport.(*http.Transport).Clone()
	}
	return &Transport{Role: role, Mode: mode, Base: base}
}

// NewLimiter returns a limiter for rps requests per second, or nil when
// rps is not positive.
func NewLimiter(rps float64, burst int) *rate.Limiter {
	if rps <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	body, err := readBody(req.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read request body: %w", err)
	}
	reqDesc := describeRequest(req, body)

	scope := ScopeFrom(ctx)
	if scope == nil {
		if t.Mode == ModeReplay {
			return nil, &ErroredSessionError{Reason: ReasonUnscoped}
		}
		if t.Mode == ModeRecord {
			logging.Warn("Session", "Role %s made an uncorrelated request to %s; it is not recorded", t.Role, req.URL)
		}
		return t.send(req, body)
	}
	key := scope.next().String()

	if t.Mode == ModeReplay {
		return t.replay(req, scope, key, reqDesc)
	}

	started := time.Now().UTC()
	resp, sendErr := t.send(req, body)
	if t.Mode != ModeRecord || t.Recorder == nil {
		return resp, sendErr
	}

	ex := Exchange{
		Key:       key,
		Kind:      KindHTTP,
		Role:      t.Role,
		Request:   reqDesc,
		Timestamp: started,
		Elapsed:   time.Since(started),
	}
	if sendErr != nil {
		ex.Error = sendErr.Error()
	} else {
		respBody, err := readBody(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to read response body: %w", err)
		}
		resp.Body = io.NopCloser(bytes.NewReader(respBody))
		resp.ContentLength = int64(len(respBody))
		ex.Response = describeResponse(resp, respBody)
	}
	if err := t.Recorder.Record(ex, t.Policy); err != nil {
		scope.addFault(err)
		if resp != nil {
			resp.Body.Close()
		}
		return nil, err
	}
	return resp, sendErr
}

func (t *Transport) send(req *http.Request, body []byte) (*http.Response, error) {
	if t.Limiter != nil {
		if err := t.Limiter.Wait(req.Context()); err != nil {
			return nil, err
		}
	}
	out := req.Clone(req.Context())
	if body != nil {
		out.Body = io.NopCloser(bytes.NewReader(body))
		out.ContentLength = int64(len(body))
		out.GetBody = func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(body)), nil
		}
	}
	return t.Base.RoundTrip(out)
}

func (t *Transport) replay(req *http.Request, scope *Scope, key string, reqDesc map[string]interface{}) (*http.Response, error) {
	if t.Replayer == nil {
		return nil, errors.New("replay transport has no session")
	}
	if err := req.Context().Err(); err != nil {
		return nil, err
	}
	ex, divergence, err := t.Replayer.Check(key, KindHTTP, reqDesc, nil, "", t.Policy)
	if err != nil {
		scope.addFault(err)
		return nil, err
	}
	if divergence != nil {
		logging.Debug("Session", "Request divergence: %v", divergence)
		scope.addDivergence(divergence)
	}
	if ex.Error != "" {
		return nil, &RecordedFailureError{Key: key, Message: ex.Error}
	}
	return buildResponse(req, ex.Response)
}

// CloseIdleConnections releases pooled connections of the base transport.
func (t *Transport) CloseIdleConnections() {
	type closeIdler interface{ CloseIdleConnections() }
	if c, ok := t.Base.(closeIdler); ok {
		c.CloseIdleConnections()
	}
}

func readBody(rc io.ReadCloser) ([]byte, error) {
	if rc == nil || rc == http.NoBody {
		return nil, nil
	}
	defer rc.Close()
	return io.ReadAll(io.LimitReader(rc, maxBodySize))
}

func describeRequest(req *http.Request, body []byte) map[string]interface{} {
	d := map[string]interface{}{
		"method":  req.Method,
		"url":     req.URL.String(),
		"headers": flattenHeader(req.Header),
	}
	if len(body) > 0 {
		d["body"] = decodeBody(body, req.Header.Get("Content-Type"))
	}
	return d
}

func describeResponse(resp *http.Response, body []byte) map[string]interface{} {
	d := map[string]interface{}{
		"status":  resp.StatusCode,
		"headers": flattenHeader(resp.Header),
	}
	if len(body) > 0 {
		d["body"] = decodeBody(body, resp.Header.Get("Content-Type"))
	}
	return d
}

func flattenHeader(h http.Header) map[string]interface{} {
	out := make(map[string]interface{}, len(h))
	for k, v := range h {
		out[http.CanonicalHeaderKey(k)] = strings.Join(v, ", ")
	}
	return out
}

// decodeBody keeps JSON bodies structured so they can be diffed field by
// field; anything else is kept as text.
func decodeBody(body []byte, contentType string) interface{} {
	if isJSON(contentType) {
		var v interface{}
		if err := json.Unmarshal(body, &v); err == nil {
			return v
		}
	}
	return string(body)
}

func isJSON(contentType string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mt == "application/json" || strings.HasSuffix(mt, "+json")
}

func buildResponse(req *http.Request, desc map[string]interface{}) (*http.Response, error) {
	status := http.StatusOK
	if s, ok := desc["status"].(float64); ok {
		status = int(s)
	}
	header := make(http.Header)
	if hs, ok := desc["headers"].(map[string]interface{}); ok {
		keys := make([]string, 0, len(hs))
		for k := range hs {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			header.Set(k, fmt.Sprint(hs[k]))
		}
	}
	var body []byte
	switch b := desc["body"].(type) {
	case nil:
	case string:
		body = []byte(b)
	default:
		encoded, err := json.Marshal(b)
		if err != nil {
			return nil, fmt.Errorf("failed to encode recorded body: %w", err)
		}
		body = encoded
	}
	header.Del("Content-Length")
	return &http.Response{
		Status:        fmt.Sprintf("%d %s", status, http.StatusText(status)),
		StatusCode:    status,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(body)),
		ContentLength: int64(len(body)),
		Request:       req,
	}, nil
}
