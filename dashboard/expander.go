// Package dashboard turns display templates into text and keeps registered
// displays refreshed.
package dashboard

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"github.com/mklimuk/halnode"
)

const (
	// MaxTokenLen is the longest name accepted between braces.
	MaxTokenLen = 31
	// MaxExpanded caps the expanded text of one template.
	MaxExpanded = 255
)

// Expander replaces {token} spans with live values. Reserved tokens are ip,
// heap, uptime and name; anything else names a registered device.
type Expander struct {
	devices halnode.DeviceProvider
	system  halnode.SystemInfo
}

func NewExpander(devices halnode.DeviceProvider, system halnode.SystemInfo) *Expander {
	return &Expander{devices: devices, system: system}
}

// Expand never fails: an unterminated brace or an oversized token is copied
// literally and unknown devices render as ?name.
func (e *Expander) Expand(ctx context.Context, tmpl string) string {
	var sb strings.Builder
	for i := 0; i < len(tmpl) && sb.Len() < MaxExpanded; {
		if tmpl[i] != '{' {
			sb.WriteByte(tmpl[i])
			i++
			continue
		}
		end := strings.IndexByte(tmpl[i+1:], '}')
		if end <= 0 || end > MaxTokenLen {
			sb.WriteByte('{')
			i++
			continue
		}
		sb.WriteString(e.token(ctx, tmpl[i+1:i+1+end]))
		i += end + 2
	}
	out := sb.String()
	if len(out) > MaxExpanded {
		out = out[:MaxExpanded]
	}
	return out
}

func (e *Expander) token(ctx context.Context, name string) string {
	switch name {
	case "ip":
		return e.system.IP()
	case "heap":
		return strconv.FormatUint(e.system.FreeHeap(), 10)
	case "uptime":
		return FormatUptime(int64(e.system.Uptime().Seconds()))
	case "name":
		return e.system.DeviceName()
	}
	dev, ok := e.devices.FindByName(name)
	switch {
	case ok && dev.IsSensor():
		v, err := dev.ReadSensor(ctx)
		if err != nil {
			slog.Debug("template: sensor read failed", "device", name, "err", err)
			return "nan"
		}
		if math.IsNaN(float64(v)) {
			return "nan"
		}
		return fmt.Sprintf("%.1f", v)
	case ok && dev.IsActuator():
		return strconv.Itoa(dev.LastValue())
	default:
		return "?" + name
	}
}

// FormatUptime renders whole hours and zero padded minutes, e.g. 1h02m.
func FormatUptime(secs int64) string {
	return fmt.Sprintf("%dh%02dm", secs/3600, (secs%3600)/60)
}
