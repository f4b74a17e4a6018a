package infra

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeySpace_WindowCarriesClientHashTag(t *testing.T) {
	k := NewKeySpace("")
	assert.Equal(t, "rate_limit:{user:42}:/ml/sentiment:minute", k.Window("user:42", "/ml/sentiment", "minute"))

	k = NewKeySpace("rl:")
	assert.Equal(t, "rl:{1.2.3.4}:/x:day", k.Window("1.2.3.4", "/x", "day"))
}

func TestKeySpace_ParseRoundTrip(t *testing.T) {
	k := NewKeySpace("rate_limit")
	tests := []struct {
		client, endpoint, window string
	}{
		{"user:42", "/ml/sentiment", "minute"},
		{"ip:10.0.0.1", "GET /a:b", "hour"},
		{"we{ird}", "/x", "day"},
	}
	for _, tt := range tests {
		c, e, w, ok := k.Parse(k.Window(tt.client, tt.endpoint, tt.window))
		assert.True(t, ok, tt.client)
		assert.Equal(t, tt.client, c)
		assert.Equal(t, tt.endpoint, e)
		assert.Equal(t, tt.window, w)
	}
}

func TestKeySpace_ParseRejectsForeignKeys(t *testing.T) {
	k := NewKeySpace("rate_limit")
	for _, key := range []string{"user:42", "rate_limit:nobrace:x:minute", "rate_limit:{c}:", "other:{c}:/x:minute"} {
		_, _, _, ok := k.Parse(key)
		assert.False(t, ok, key)
	}
}

func TestKeySpace_PatternsEscapeGlob(t *testing.T) {
	k := NewKeySpace("rate_limit")
	assert.Equal(t, `rate_limit:{a\*b}:*`, k.ClientPattern("a*b"))
	assert.Equal(t, `rate_limit:{c}:/x\?:*`, k.EndpointPattern("c", "/x?"))
	assert.Equal(t, "rate_limit:{*", k.AllPattern())
}
