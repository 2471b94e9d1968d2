package connector

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseManifest(t *testing.T) {
	raw := []byte(`
wallets:
  - id: wallet-standard:treasury
    name: Treasury
    keypair: /tmp/id.json
  - id: mwa:hot
    env: HOT_WALLET_KEY
    prompt: true
    autoConnect: false
`)

	m, err := ParseManifest(raw)
	require.NoError(t, err)
	require.Len(t, m.Wallets, 2)

	connectors := m.Connectors(nil)
	require.Len(t, connectors, 2)
	assert.Equal(t, "Treasury", connectors[0].Name())
	assert.True(t, connectors[0].CanAutoConnect())
	assert.Equal(t, "mwa:hot", connectors[1].Name())
	assert.False(t, connectors[1].CanAutoConnect())

	r := NewRegistry(connectors...)
	got, ok := r.Get("hot")
	require.True(t, ok)
	assert.Equal(t, "mwa:hot", got.ID())
}

func TestParseManifest_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr string
	}{
		{name: "missing id", raw: "wallets:\n  - keypair: a\n", wantErr: "id is required"},
		{name: "duplicate", raw: "wallets:\n  - id: a\n    env: X\n  - id: a\n    env: Y\n", wantErr: "duplicate id"},
		{name: "two sources", raw: "wallets:\n  - id: a\n    env: X\n    keypair: b\n", wantErr: "mutually exclusive"},
		{name: "no source", raw: "wallets:\n  - id: a\n", wantErr: "no key source"},
		{name: "bad yaml", raw: "wallets: [", wantErr: "failed to parse"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseManifest([]byte(tt.raw))
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}
