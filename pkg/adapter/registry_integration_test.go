package adapter_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carbonfact/lea/pkg/adapter"
	"github.com/carbonfact/lea/pkg/core"

	// Import adapter packages to ensure adapters are registered via init()
	_ "github.com/carbonfact/lea/pkg/adapters/duckdb"
	_ "github.com/carbonfact/lea/pkg/adapters/postgres"
)

func TestDuckDBSelfRegistration(t *testing.T) {
	assert.True(t, adapter.IsRegistered("duckdb"), "duckdb adapter should be auto-registered")
	assert.True(t, adapter.IsRegistered("motherduck"), "motherduck adapter should be auto-registered")
	assert.True(t, adapter.IsRegistered("ducklake"), "ducklake adapter should be auto-registered")
}

func TestListAdapters(t *testing.T) {
	adapters := adapter.ListAdapters()

	assert.Contains(t, adapters, "duckdb", "duckdb should be in adapter list")
	assert.Contains(t, adapters, "postgres", "postgres should be in adapter list")
}

func TestIsRegistered(t *testing.T) {
	tests := []struct {
		name        string
		adapterName string
		expected    bool
	}{
		{"duckdb registered", "duckdb", true},
		{"postgres registered", "postgres", true},
		{"unknown not registered", "unknown_db", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := adapter.IsRegistered(tt.adapterName)
			assert.Equal(t, tt.expected, got, "IsRegistered(%q)", tt.adapterName)
		})
	}
}

func TestGet(t *testing.T) {
	factory, ok := adapter.Get("duckdb")
	require.True(t, ok, "Get(duckdb) should return true")
	require.NotNil(t, factory, "Get(duckdb) should return non-nil factory")

	_, ok = adapter.Get("nonexistent")
	assert.False(t, ok, "Get(nonexistent) should return false")
}

func TestNew_DuckDBConnects(t *testing.T) {
	ctx := context.Background()
	adp, err := adapter.New("duckdb")
	require.NoError(t, err, "New(duckdb) failed")
	require.NotNil(t, adp, "New(duckdb) returned nil adapter")

	err = adp.Connect(ctx, core.AdapterConfig{Type: "duckdb", Path: ""})
	require.NoError(t, err, "Connect to in-memory duckdb failed")
	defer func() { _ = adp.Close() }()

	assert.Equal(t, "duckdb", adp.Dialect().Name)
}

func TestNew_UnknownType(t *testing.T) {
	_, err := adapter.New("unknown_adapter")
	require.Error(t, err, "New(unknown_adapter) should fail")

	var unknownErr *adapter.UnknownAdapterError
	require.ErrorAs(t, err, &unknownErr)

	assert.Equal(t, "unknown_adapter", unknownErr.Type, "error type")
	assert.Contains(t, unknownErr.Available, "duckdb", "Available adapters should include duckdb")
}
