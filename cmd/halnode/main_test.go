package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mklimuk/halnode/cmd/halnode/console"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
)

const testRegistry = `
devices:
  - name: lux
    kind: bh1750
    addr: 0x23
  - name: temp
    kind: bme280
    addr: 0x76
`

func runApp(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	console.SetOutput(&out, &errOut)
	t.Cleanup(func() { console.SetOutput(os.Stdout, os.Stderr) })
	path := filepath.Join(t.TempDir(), "devices.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testRegistry), 0o644))
	app := newApp()
	app.ExitErrHandler = func(*cli.Context, error) {}
	err := app.Run(append([]string{"halnode", "--adapter", "emulator", "--registry", path}, args...))
	return out.String(), err
}

func TestScan(t *testing.T) {
	out, err := runApp(t, "i2c", "scan", "--yaml")
	require.NoError(t, err)
	assert.Equal(t, "addresses:\n    - \"23\"\n    - 3c\n    - \"44\"\n    - \"48\"\n    - \"76\"\n", out)
}

func TestReadRegister(t *testing.T) {
	out, err := runApp(t, "i2c", "read", "--len", "1", "0x76", "0xD0")
	require.NoError(t, err)
	assert.Equal(t, "60\n", out)

	_, err = runApp(t, "i2c", "read", "0x76")
	assert.Error(t, err)
}

func TestSensors(t *testing.T) {
	out, err := runApp(t, "sensor", "bme280")
	require.NoError(t, err)
	assert.Contains(t, out, "25.08")
	assert.Contains(t, out, "1006.53")

	out, err = runApp(t, "sensor", "ads1115", "--channel", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "1024.00mV")
}

func TestDisplayPreview(t *testing.T) {
	out, err := runApp(t, "display", "preview", "--height", "32", "--template", `{lux}\n{temp}`)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSuffix(out, "\n"), "\n")
	// header plus 32 pixel rows
	require.Len(t, lines, 33)
	assert.Contains(t, lines[0], "128x32")
	assert.Contains(t, strings.Join(lines[1:9], ""), "#")
	assert.Contains(t, strings.Join(lines[9:17], ""), "#")
	assert.NotContains(t, strings.Join(lines[17:], ""), "#")
}

func TestParseByte(t *testing.T) {
	for in, expected := range map[string]byte{"0x3c": 0x3C, "60": 60, "0b101": 5} {
		v, err := parseByte(in)
		require.NoError(t, err)
		assert.Equal(t, expected, v)
	}
	_, err := parseByte("0x100")
	assert.Error(t, err)
}
