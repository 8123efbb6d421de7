package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "responses-gateway", cfg.ServiceName)
	assert.Equal(t, ":8080", cfg.Addr())
	assert.Equal(t, 10, cfg.MaxToolTurns)
	assert.Equal(t, 45*time.Second, cfg.ToolTimeout)
	assert.Equal(t, "memory", cfg.VectorBackend)
	assert.Equal(t, "memory", cfg.ResponseStoreBackend)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("HTTP_PORT", "9001")
	t.Setenv("MAX_TOOL_TURNS", "3")
	t.Setenv("VECTOR_BACKEND", "qdrant")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":9001", cfg.Addr())
	assert.Equal(t, 3, cfg.MaxToolTurns)
	assert.Equal(t, "qdrant", cfg.VectorBackend)
}

func TestLoadRejectsUnknownBackends(t *testing.T) {
	t.Setenv("VECTOR_BACKEND", "faiss")
	_, err := Load()
	require.Error(t, err)

	t.Setenv("VECTOR_BACKEND", "memory")
	t.Setenv("RESPONSE_STORE_BACKEND", "mysql")
	_, err = Load()
	require.Error(t, err)
}

func TestMCPServerList(t *testing.T) {
	cfg := &Config{MCPServers: "search=http://mcp-search:8200, docs=http://mcp-docs:8201"}
	servers, err := cfg.MCPServerList()
	require.NoError(t, err)
	require.Len(t, servers, 2)
	assert.Equal(t, MCPServer{Label: "search", URL: "http://mcp-search:8200"}, servers[0])
	assert.Equal(t, MCPServer{Label: "docs", URL: "http://mcp-docs:8201"}, servers[1])

	cfg = &Config{MCPServers: "bad-entry"}
	_, err = cfg.MCPServerList()
	require.Error(t, err)

	cfg = &Config{}
	servers, err = cfg.MCPServerList()
	require.NoError(t, err)
	assert.Empty(t, servers)
}
