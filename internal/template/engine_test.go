package template

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEngine_Replace(t *testing.T) {
	ctx := map[string]interface{}{
		"roles": map[string]interface{}{
			"receiver": map[string]interface{}{"domain": "b.test", "base_url": "http://b.test"},
		},
		"actor": map[string]interface{}{
			"body": map[string]interface{}{"inbox": "http://b.test/users/bob/inbox"},
		},
	}

	tests := []struct {
		name    string
		input   interface{}
		want    interface{}
		wantErr bool
	}{
		{name: "plain string untouched", input: "hello", want: "hello"},
		{name: "nested lookup", input: "{{ .actor.body.inbox }}", want: "http://b.test/users/bob/inbox"},
		{name: "sprig function", input: `{{ .roles.receiver.domain | upper }}`, want: "B.TEST"},
		{name: "acct construction", input: "acct:bob@{{ .roles.receiver.domain }}", want: "acct:bob@b.test"},
		{
			name:  "map and slice recursion",
			input: map[string]interface{}{"to": []interface{}{"{{ .roles.receiver.base_url }}/users/bob", 3}},
			want:  map[string]interface{}{"to": []interface{}{"http://b.test/users/bob", 3}},
		},
		{name: "non-string passes through", input: 42, want: 42},
		{name: "missing key fails", input: "{{ .nothing.here }}", wantErr: true},
		{name: "syntax error fails", input: "{{ .actor", wantErr: true},
		{name: "env is unavailable", input: `{{ env "HOME" }}`, wantErr: true},
	}

	e := New()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := e.Replace(tt.input, ctx)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMergeContexts(t *testing.T) {
	merged := MergeContexts(
		map[string]interface{}{"a": 1, "b": 1},
		map[string]interface{}{"b": 2},
	)
	assert.Equal(t, map[string]interface{}{"a": 1, "b": 2}, merged)
}
