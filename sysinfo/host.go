// Package sysinfo reports host identity and status for the reserved display
// template tokens.
package sysinfo

import (
	"bufio"
	"bytes"
	"fmt"
	"log/slog"
	"net"
	"os"
	"runtime"
	"strconv"
	"time"

	"github.com/mklimuk/halnode"
)

var _ halnode.SystemInfo = &Host{}

type Host struct {
	name    string
	start   time.Time
	now     func() time.Time
	addrs   func() ([]net.Addr, error)
	meminfo string
}

type Option func(*Host)

// WithName overrides the hostname reported as the device name.
func WithName(name string) Option {
	return func(h *Host) {
		h.name = name
	}
}

func WithClock(now func() time.Time) Option {
	return func(h *Host) {
		h.now = now
	}
}

func WithAddrs(addrs func() ([]net.Addr, error)) Option {
	return func(h *Host) {
		h.addrs = addrs
	}
}

// WithMeminfo points FreeHeap at a meminfo formatted file.
func WithMeminfo(path string) Option {
	return func(h *Host) {
		h.meminfo = path
	}
}

// New starts the uptime clock.
func New(opts ...Option) *Host {
	h := &Host{
		now:     time.Now,
		addrs:   net.InterfaceAddrs,
		meminfo: "/proc/meminfo",
	}
	for _, opt := range opts {
		opt(h)
	}
	h.start = h.now()
	if h.name == "" {
		name, err := os.Hostname()
		if err != nil {
			slog.Warn("could not read hostname", "err", err)
			name = "halnode"
		}
		h.name = name
	}
	return h
}

// IP returns the first global IPv4 address or 0.0.0.0 when offline.
func (h *Host) IP() string {
	addrs, err := h.addrs()
	if err != nil {
		slog.Debug("could not list interface addresses", "err", err)
		return "0.0.0.0"
	}
	for _, a := range addrs {
		n, ok := a.(*net.IPNet)
		if !ok || n.IP.IsLoopback() || n.IP.IsLinkLocalUnicast() {
			continue
		}
		if ip4 := n.IP.To4(); ip4 != nil {
			return ip4.String()
		}
	}
	return "0.0.0.0"
}

// FreeHeap returns the memory available to the process in bytes: the
// kernel's MemAvailable when readable, the Go heap's idle span otherwise.
func (h *Host) FreeHeap() uint64 {
	if v, err := memAvailable(h.meminfo); err == nil {
		return v
	}
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return m.HeapIdle - m.HeapReleased
}

func (h *Host) Uptime() time.Duration {
	return h.now().Sub(h.start)
}

func (h *Host) DeviceName() string { return h.name }

func memAvailable(path string) (uint64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		fields := bytes.Fields(scanner.Bytes())
		if len(fields) < 2 || string(fields[0]) != "MemAvailable:" {
			continue
		}
		kb, err := strconv.ParseUint(string(fields[1]), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("malformed MemAvailable: %w", err)
		}
		return kb * 1024, nil
	}
	return 0, fmt.Errorf("MemAvailable not found in %s", path)
}
