package adapter

import (
	"context"
	"os"
	"testing"

	"github.com/mklimuk/halnode/i2c"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Runs against a bridge plugged into the machine, see dev integration-test.
func TestMCP2221_Hardware(t *testing.T) {
	if os.Getenv("TEST_INTEGRATION_ENABLED") == "" {
		t.Skip("set TEST_INTEGRATION_ENABLED to run against an attached MCP2221")
	}
	if len(Devices()) == 0 {
		t.Skip("no MCP2221 attached")
	}
	ctx := context.Background()

	d, err := Open(0)
	require.NoError(t, err)
	status, err := d.Status(ctx)
	require.NoError(t, err)
	t.Logf("status: %+v", status)
	require.NoError(t, d.Close())

	m := i2c.NewManager(Opener(0))
	require.NoError(t, m.Acquire(ctx))
	defer func() {
		assert.NoError(t, m.Release(ctx))
	}()
	found, err := m.Scan(ctx, 126)
	require.NoError(t, err)
	t.Logf("found %d devices: % x", len(found), found)
	for _, a := range found {
		assert.True(t, m.Detect(ctx, a), "%#02x answered the scan but not detect", a)
	}
}
