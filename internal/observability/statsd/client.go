package statsd

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	defaultPrefix        = "tipster"
	defaultFlushInterval = time.Second
	// maxPacketSize keeps a batched datagram under a typical Ethernet MTU.
	maxPacketSize = 1432
	dialTimeout   = 5 * time.Second
)

// Sink is what the session lifecycle emits to. Implementations must be safe for
// concurrent use and must never block the caller on I/O.
type Sink interface {
	Count(name string, value int64, tags map[string]string)
	Gauge(name string, value float64, tags map[string]string)
	Timing(name string, value time.Duration, tags map[string]string)
}

// Config describes how to reach a StatsD (DogStatsD tag dialect) agent.
type Config struct {
	Enabled bool
	Address string
	// Prefix is prepended to every metric name. Empty uses "tipster".
	Prefix string
	// FlushInterval bounds how long a buffered line waits before being sent.
	FlushInterval time.Duration
	Tags          map[string]string
	Logger        *slog.Logger
}

// Client batches metric lines into UDP datagrams. A disabled client accepts
// every call and drops it.
type Client struct {
	prefix string
	tags   map[string]string
	logger *slog.Logger

	mu     sync.Mutex
	conn   net.Conn
	buf    []byte
	closed bool

	stop chan struct{}
	done chan struct{}
}

var _ Sink = (*Client)(nil)

// NewClient dials the agent and starts the flush loop. A disabled config or a blank
// address yields a no-op client.
func NewClient(cfg Config) (*Client, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	prefix := trimDots(cfg.Prefix)
	if prefix == "" {
		prefix = defaultPrefix
	}

	c := &Client{
		prefix: prefix,
		tags:   copyTags(cfg.Tags),
		logger: logger.With("component", "statsd"),
	}

	address := strings.TrimSpace(cfg.Address)
	if !cfg.Enabled || address == "" {
		return c, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()
	conn, err := (&net.Dialer{}).DialContext(ctx, "udp", address)
	if err != nil {
		return nil, fmt.Errorf("statsd dial %s: %w", address, err)
	}

	interval := cfg.FlushInterval
	if interval <= 0 {
		interval = defaultFlushInterval
	}

	c.conn = conn
	c.buf = make([]byte, 0, maxPacketSize)
	c.stop = make(chan struct{})
	c.done = make(chan struct{})
	go c.flushLoop(interval)
	return c, nil
}

// Enabled reports whether metrics are actually being sent.
func (c *Client) Enabled() bool {
	if c == nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil && !c.closed
}

// Count adds value to a counter.
func (c *Client) Count(name string, value int64, tags map[string]string) {
	c.add(name, strconv.FormatInt(value, 10), "c", tags)
}

// Gauge sets a gauge.
func (c *Client) Gauge(name string, value float64, tags map[string]string) {
	c.add(name, strconv.FormatFloat(value, 'f', -1, 64), "g", tags)
}

// Timing records a duration in milliseconds.
func (c *Client) Timing(name string, value time.Duration, tags map[string]string) {
	ms := float64(value) / float64(time.Millisecond)
	c.add(name, strconv.FormatFloat(ms, 'f', -1, 64), "ms", tags)
}

// Flush sends any buffered lines immediately.
func (c *Client) Flush() {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.flushLocked()
}

// Close flushes pending lines, stops the flush loop and releases the socket.
// It is safe to call more than once.
func (c *Client) Close() error {
	if c == nil {
		return nil
	}

	c.mu.Lock()
	if c.closed || c.conn == nil {
		c.closed = true
		c.mu.Unlock()
		return nil
	}
	c.flushLocked()
	c.closed = true
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if c.stop != nil {
		close(c.stop)
		<-c.done
	}
	return conn.Close()
}

func (c *Client) flushLoop(interval time.Duration) {
	defer close(c.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.Flush()
		}
	}
}

func (c *Client) add(name, value, kind string, tags map[string]string) {
	if c == nil {
		return
	}
	metric := c.qualify(name)
	if metric == "" {
		return
	}
	line := metric + ":" + value + "|" + kind + encodeTags(c.tags, tags)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil || c.closed {
		return
	}

	if len(c.buf) > 0 && len(c.buf)+1+len(line) > maxPacketSize {
		c.flushLocked()
	}
	if len(c.buf) > 0 {
		c.buf = append(c.buf, '\n')
	}
	c.buf = append(c.buf, line...)
	if len(c.buf) >= maxPacketSize {
		c.flushLocked()
	}
}

func (c *Client) flushLocked() {
	if len(c.buf) == 0 || c.conn == nil {
		return
	}
	if _, err := c.conn.Write(c.buf); err != nil {
		c.logger.Debug("statsd write failed", "error", err, "bytes", len(c.buf))
	}
	c.buf = c.buf[:0]
}

func (c *Client) qualify(name string) string {
	n := cleanName(name)
	if n == "" {
		return ""
	}
	return c.prefix + "." + n
}

func trimDots(s string) string {
	return strings.Trim(strings.TrimSpace(s), ".")
}

// cleanName maps characters that break the line protocol to underscores and
// collapses empty path segments.
func cleanName(name string) string {
	n := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '/', ':', '|', '@', '#', ',':
			return '_'
		}
		return r
	}, strings.TrimSpace(name))

	parts := strings.Split(n, ".")
	kept := parts[:0]
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, ".")
}

// encodeTags merges base and extra (extra wins) into a sorted DogStatsD tag suffix.
func encodeTags(base, extra map[string]string) string {
	if len(base)+len(extra) == 0 {
		return ""
	}
	merged := copyTags(base)
	for k, v := range copyTags(extra) {
		merged[k] = v
	}
	if len(merged) == 0 {
		return ""
	}

	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString("|#")
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(k)
		b.WriteByte(':')
		b.WriteString(merged[k])
	}
	return b.String()
}

func copyTags(tags map[string]string) map[string]string {
	out := make(map[string]string, len(tags))
	for k, v := range tags {
		if key := strings.TrimSpace(k); key != "" {
			out[key] = strings.TrimSpace(v)
		}
	}
	return out
}
