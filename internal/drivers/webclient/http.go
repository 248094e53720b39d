package webclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"time"
)

const maxBody = 10 << 20

// response is a decoded HTTP response.
type response struct {
	Status      int
	ContentType string
	Header      http.Header
	// Body is the decoded JSON document, or the raw text for other types.
	Body interface{}
}

// JSON returns the body as a JSON object, or nil.
func (r *response) JSON() map[string]interface{} {
	m, _ := r.Body.(map[string]interface{})
	return m
}

func (r *response) result() map[string]interface{} {
	return map[string]interface{}{
		"status":       r.Status,
		"content_type": r.ContentType,
		"body":         r.Body,
	}
}

func (n *Node) get(ctx context.Context, rawURL, accept string) (*response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	return n.do(req)
}

func (n *Node) postJSON(ctx context.Context, rawURL, contentType string, v interface{}) (*response, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Date", time.Now().UTC().Format(http.TimeFormat))
	return n.do(req)
}

func (n *Node) do(req *http.Request) (*response, error) {
	req.Header.Set("User-Agent", n.userAgent)
	resp, err := n.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("failed to read response from %s: %w", req.URL, err)
	}
	out := &response{Status: resp.StatusCode, Header: resp.Header}
	out.ContentType, _, _ = mime.ParseMediaType(resp.Header.Get("Content-Type"))
	out.Body = decode(data, out.ContentType)
	return out, nil
}

func decode(data []byte, contentType string) interface{} {
	if len(data) == 0 {
		return nil
	}
	if isJSON(contentType) {
		var v interface{}
		if err := json.Unmarshal(data, &v); err == nil {
			return v
		}
	}
	return string(data)
}

func isJSON(contentType string) bool {
	switch contentType {
	case "application/json", ContentTypeActivity, ContentTypeJRD, "application/ld+json":
		return true
	}
	return false
}

// objects returns the JSON objects of a decoded array, skipping anything
// else.
func objects(v interface{}) []map[string]interface{} {
	arr, _ := v.([]interface{})
	out := make([]map[string]interface{}, 0, len(arr))
	for _, e := range arr {
		if m, ok := e.(map[string]interface{}); ok {
			out = append(out, m)
		}
	}
	return out
}
