package governance

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParsePolicyDefaults(t *testing.T) {
	for _, raw := range [][]byte{nil, {}, []byte("not json"), []byte("null")} {
		p := ParsePolicy(raw)
		assert.False(t, p.Blocked)
		assert.Empty(t, p.AllowedDomains)
	}
}

func TestParsePolicyBlocked(t *testing.T) {
	p := ParsePolicy([]byte(`{"blocked": true}`))
	assert.True(t, p.Blocked)
	assert.Empty(t, p.AllowedDomains)
}

func TestParsePolicyAllowedDomains(t *testing.T) {
	p := ParsePolicy([]byte(`{"allowed_domains": ["members.rejoin.app", "vip.irontemple.com"]}`))
	assert.False(t, p.Blocked)
	assert.Equal(t, []string{"members.rejoin.app", "vip.irontemple.com"}, p.AllowedDomains)
}

func TestParsePolicyIgnoresUnknownKeys(t *testing.T) {
	p := ParsePolicy([]byte(`{"blocked": true, "future_knob": 42}`))
	assert.True(t, p.Blocked)
}
