package statsd

import (
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func listenUDP(t *testing.T) *net.UDPConn {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readPacket(t *testing.T, conn *net.UDPConn) string {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	buf := make([]byte, 4096)
	n, _, err := conn.ReadFromUDP(buf)
	require.NoError(t, err)
	return string(buf[:n])
}

func TestCleanName(t *testing.T) {
	tests := map[string]string{
		" session/init ":  "session_init",
		"session..init":   "session.init",
		".session.init.":  "session.init",
		"bad:name|x@y#z,": "bad_name_x_y_z_",
		"":                "",
		"...":             "",
	}
	for input, want := range tests {
		assert.Equal(t, want, cleanName(input), "cleanName(%q)", input)
	}
}

func TestEncodeTags(t *testing.T) {
	base := map[string]string{"env": "prod", " service ": " web "}
	extra := map[string]string{"result": " success ", "": "ignored", "env": "stage"}

	assert.Equal(t, "|#env:stage,result:success,service:web", encodeTags(base, extra))
	assert.Empty(t, encodeTags(nil, nil))
	assert.Empty(t, encodeTags(map[string]string{" ": "x"}, nil))
}

func TestNewClientDisabled(t *testing.T) {
	for name, cfg := range map[string]Config{
		"not enabled":   {Address: "127.0.0.1:8125"},
		"blank address": {Enabled: true, Address: "   "},
	} {
		t.Run(name, func(t *testing.T) {
			c, err := NewClient(cfg)
			require.NoError(t, err)
			assert.False(t, c.Enabled())

			// Calls on a disabled client are dropped without panicking.
			c.Count("session.init", 1, nil)
			c.Flush()
			assert.NoError(t, c.Close())
		})
	}
}

func TestNewClientDialError(t *testing.T) {
	_, err := NewClient(Config{Enabled: true, Address: "bad address"})
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "statsd dial"), err.Error())
}

func TestClientBatchesUntilFlush(t *testing.T) {
	server := listenUDP(t)

	c, err := NewClient(Config{
		Enabled:       true,
		Address:       server.LocalAddr().String(),
		Prefix:        ".web.",
		FlushInterval: time.Hour,
		Tags:          map[string]string{"env": "test"},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	require.True(t, c.Enabled())

	c.Count("session.init", 1, map[string]string{"result": "success"})
	c.Gauge("session.active", 2.5, nil)
	c.Timing("session.init.duration", 1500*time.Microsecond, nil)
	c.Flush()

	got := readPacket(t, server)
	assert.Equal(t, strings.Join([]string{
		"web.session.init:1|c|#env:test,result:success",
		"web.session.active:2.5|g|#env:test",
		"web.session.init.duration:1.5|ms|#env:test",
	}, "\n"), got)
}

func TestClientDefaultPrefix(t *testing.T) {
	server := listenUDP(t)

	c, err := NewClient(Config{Enabled: true, Address: server.LocalAddr().String(), FlushInterval: time.Hour})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	c.Count("session.recovery", 3, nil)
	c.Flush()
	assert.Equal(t, "tipster.session.recovery:3|c", readPacket(t, server))
}

func TestClientSplitsOversizedBatches(t *testing.T) {
	server := listenUDP(t)

	c, err := NewClient(Config{Enabled: true, Address: server.LocalAddr().String(), FlushInterval: time.Hour})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	long := strings.Repeat("x", 600)
	c.Count(long+".a", 1, nil)
	c.Count(long+".b", 1, nil)
	c.Count(long+".c", 1, nil)

	// The third line does not fit alongside the first two.
	first := readPacket(t, server)
	assert.LessOrEqual(t, len(first), maxPacketSize)
	assert.Equal(t, 2, strings.Count(first, "\n")+1)

	c.Flush()
	second := readPacket(t, server)
	assert.True(t, strings.HasSuffix(second, ".c:1|c"), second)
}

func TestClientFlushLoop(t *testing.T) {
	server := listenUDP(t)

	c, err := NewClient(Config{
		Enabled:       true,
		Address:       server.LocalAddr().String(),
		FlushInterval: 10 * time.Millisecond,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	c.Count("session.event", 1, nil)
	assert.Equal(t, "tipster.session.event:1|c", readPacket(t, server))
}

func TestClientCloseFlushesAndIsIdempotent(t *testing.T) {
	server := listenUDP(t)

	c, err := NewClient(Config{Enabled: true, Address: server.LocalAddr().String(), FlushInterval: time.Hour})
	require.NoError(t, err)

	c.Count("session.validation", 1, nil)
	require.NoError(t, c.Close())
	assert.Equal(t, "tipster.session.validation:1|c", readPacket(t, server))

	assert.False(t, c.Enabled())
	assert.NoError(t, c.Close())
	c.Count("session.validation", 1, nil)

	var nilClient *Client
	assert.False(t, nilClient.Enabled())
	assert.NoError(t, nilClient.Close())
	nilClient.Count("ignored", 1, nil)
}
