package gateway

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryLastWriterWins(t *testing.T) {
	r := NewRegistry()

	first := newDeviceConn(nil, "tok-device-0001", 1, 8)
	displaced := r.Register(first)
	assert.Nil(t, displaced)
	assert.Equal(t, 1, r.Count())

	second := newDeviceConn(nil, "tok-device-0001", 1, 8)
	displaced = r.Register(second)
	require.Same(t, first, displaced)
	assert.Equal(t, 1, r.Count())

	got, ok := r.Lookup("tok-device-0001")
	require.True(t, ok)
	assert.Same(t, second, got)
}

func TestRegistryUnregisterGuard(t *testing.T) {
	r := NewRegistry()

	first := newDeviceConn(nil, "tok-device-0001", 1, 8)
	r.Register(first)
	second := newDeviceConn(nil, "tok-device-0001", 1, 8)
	r.Register(second)

	// The evicted connection must not tear down its replacement.
	assert.False(t, r.Unregister(first))
	got, ok := r.Lookup("tok-device-0001")
	require.True(t, ok)
	assert.Same(t, second, got)

	assert.True(t, r.Unregister(second))
	_, ok = r.Lookup("tok-device-0001")
	assert.False(t, ok)
	assert.Equal(t, 0, r.Count())
}

func TestRegistryLookupUnknown(t *testing.T) {
	r := NewRegistry()
	_, ok := r.Lookup("never-registered")
	assert.False(t, ok)
}

func TestMaskToken(t *testing.T) {
	tests := []struct {
		name  string
		token string
		want  string
	}{
		{"empty", "", "****"},
		{"short", "abcd1234", "****"},
		{"long", "abcd000000001234", "abcd…1234"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MaskToken(tt.token))
		})
	}
}
