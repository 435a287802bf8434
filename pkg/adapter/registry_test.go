package adapter

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// unregister removes a test registration so it does not leak into
// ListAdapters assertions elsewhere in the binary.
func unregister(name string) {
	registryMu.Lock()
	defer registryMu.Unlock()
	delete(factories, name)
	for a, target := range aliases {
		if target == name {
			delete(aliases, a)
		}
	}
}

func nilFactory(*slog.Logger) Adapter { return nil }

func TestUnknownAdapterError_Error(t *testing.T) {
	err := &UnknownAdapterError{Type: "oracle", Available: []string{"duckdb", "postgres"}}

	msg := err.Error()
	assert.Contains(t, msg, `"oracle"`)
	assert.Contains(t, msg, "duckdb, postgres")
	assert.Contains(t, msg, "agriflow.yaml")
}

func TestRegister_Aliases(t *testing.T) {
	Register("Warehouse_Test", nilFactory, "wt", "WT-Alias")
	t.Cleanup(func() { unregister("warehouse_test") })

	tests := []struct {
		name      string
		lookup    string
		canonical string
	}{
		{"registered name", "warehouse_test", "warehouse_test"},
		{"mixed case", "WAREHOUSE_TEST", "warehouse_test"},
		{"alias", "wt", "warehouse_test"},
		{"alias mixed case", "wt-alias", "warehouse_test"},
		{"unknown", "Nope", "nope"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.canonical, CanonicalName(tt.lookup))
		})
	}

	assert.True(t, IsRegistered("wt"))
	assert.Contains(t, ListAdapters(), "warehouse_test")
	assert.NotContains(t, ListAdapters(), "wt", "aliases are not listed")
}

func TestRegister_Panics(t *testing.T) {
	Register("panic_test", nilFactory)
	t.Cleanup(func() { unregister("panic_test") })

	assert.Panics(t, func() { Register("panic_test", nilFactory) }, "duplicate name")
	assert.Panics(t, func() { Register("nil_factory", nil) }, "nil factory")
}

func TestNewAdapter_EmptyType(t *testing.T) {
	_, err := NewAdapter(Config{}, nil)
	require.Error(t, err)
	assert.Equal(t, "adapter type not specified", err.Error())
}
