package main

import (
	"bufio"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LiaLopezRosales/ircd/client"
	"github.com/LiaLopezRosales/ircd/irc"
)

// These tests run the real server on a loopback listener and talk to it
// with the client package.

func startTestServer(t *testing.T,
	adjust func(*Config)) (*Server, string) {
	t.Helper()

	s, err := newServer("")
	require.NoError(t, err)

	if adjust != nil {
		adjust(&s.Config)
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	s.Listener = ln

	go func() {
		_ = s.start()
	}()
	t.Cleanup(s.shutdown)

	return s, ln.Addr().String()
}

func startTestClient(t *testing.T, nick, addr string) *client.Client {
	t.Helper()

	c := client.NewClient(nick, addr)
	c.Timeout = 30 * time.Second

	_, _, _, err := c.Start()
	require.NoError(t, err)
	t.Cleanup(c.Stop)

	_, err = c.WaitFor("001", 10*time.Second)
	require.NoError(t, err)

	return c
}

func TestServerConversation(t *testing.T) {
	_, addr := startTestServer(t, nil)

	alice := startTestClient(t, "alice", addr)
	bob := startTestClient(t, "bob", addr)

	alice.Join("#go")
	_, err := alice.WaitFor("366", 10*time.Second)
	require.NoError(t, err)

	bob.Join("#go")
	_, err = bob.WaitFor("366", 10*time.Second)
	require.NoError(t, err)

	// alice hears bob arrive.
	m, err := alice.WaitFor("JOIN", 10*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "bob", m.SourceNick())

	alice.Privmsg("#go", "hello bob")
	m, err = bob.WaitFor("PRIVMSG", 10*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "alice", m.SourceNick())
	assert.Equal(t, "hello bob", m.Trailing)

	// Direct message the other way.
	bob.Privmsg("alice", "hello alice")
	m, err = alice.WaitFor("PRIVMSG", 10*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "hello alice", m.Trailing)

	// bob leaves and alice hears it.
	bob.Part("#go", "done")
	m, err = alice.WaitFor("PART", 10*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "bob", m.SourceNick())

	// alice quits; bob can still WHOWAS her afterward.
	alice.Quit("bye")
	_, err = alice.WaitFor("ERROR", 10*time.Second)
	require.NoError(t, err)

	bob.Send(irc.Message{Command: "WHOWAS", Params: []string{"alice"}})
	m, err = bob.WaitFor("314", 10*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "alice", m.Params[1])
}

func TestServerNickCollision(t *testing.T) {
	_, addr := startTestServer(t, nil)

	startTestClient(t, "alice", addr)

	dup := client.NewClient("ALICE", addr)
	dup.Timeout = 30 * time.Second
	_, _, _, err := dup.Start()
	require.NoError(t, err)
	t.Cleanup(dup.Stop)

	m, err := dup.WaitFor("433", 10*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "ALICE", m.Params[1])
}

func TestServerWhois(t *testing.T) {
	_, addr := startTestServer(t, nil)

	alice := startTestClient(t, "alice", addr)
	startTestClient(t, "bob", addr)

	alice.Send(irc.Message{Command: "WHOIS", Params: []string{"bob"}})

	m, err := alice.WaitFor("311", 10*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "bob", m.Params[1])

	_, err = alice.WaitFor("318", 10*time.Second)
	require.NoError(t, err)
}

// TestServerEvictsSilentClient uses a raw connection that never answers
// PING, with the liveness timers turned way down.
func TestServerEvictsSilentClient(t *testing.T) {
	_, addr := startTestServer(t, func(c *Config) {
		c.PingInterval = 50 * time.Millisecond
		c.SweepInterval = 50 * time.Millisecond
		c.DeadTime = 300 * time.Millisecond
	})

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()

	_, err = conn.Write([]byte("NICK mute\r\nUSER mute 0 * :Mute\r\n"))
	require.NoError(t, err)

	// The server must hang up on us within a few sweep periods.
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	reader := bufio.NewReader(conn)
	for {
		if _, err := reader.ReadString('\n'); err != nil {
			return
		}
	}
}

func TestServerCapNegotiation(t *testing.T) {
	_, addr := startTestServer(t, nil)

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()

	_, err = conn.Write([]byte("CAP LS 302\r\n"))
	require.NoError(t, err)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	line, err := bufio.NewReader(conn).ReadString('\n')
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(line, ":mock.server CAP * LS"), line)
}

func TestServerOperDie(t *testing.T) {
	s, addr := startTestServer(t, func(c *Config) {
		c.Opers = map[string]string{"admin": "secret"}
	})

	alice := startTestClient(t, "alice", addr)

	alice.Send(irc.Message{Command: "OPER",
		Params: []string{"admin", "secret"}})
	_, err := alice.WaitFor("381", 10*time.Second)
	require.NoError(t, err)

	alice.Send(irc.Message{Command: "DIE"})

	select {
	case <-s.ShutdownChan:
	case <-time.After(10 * time.Second):
		t.Fatal("server did not begin shutdown")
	}

	// The link goes away; depending on timing we may or may not see the
	// farewell ERROR before it does.
	_, _ = alice.WaitFor("ERROR", 5*time.Second)
}
