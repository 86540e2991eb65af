package observability

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeEndpoint(t *testing.T) {
	ep, insecure := normalizeEndpoint("http://collector:4318/")
	assert.Equal(t, "collector:4318", ep)
	assert.True(t, insecure)

	ep, insecure = normalizeEndpoint("https://otel.example.com")
	assert.Equal(t, "otel.example.com", ep)
	assert.False(t, insecure)

	ep, insecure = normalizeEndpoint("collector:4318")
	assert.Equal(t, "collector:4318", ep)
	assert.True(t, insecure)
}

func TestParseHeaders(t *testing.T) {
	h := parseHeaders("authorization=Bearer x, x-team = core ,broken,empty=")
	assert.Equal(t, map[string]string{"authorization": "Bearer x", "x-team": "core"}, h)
}
