package main

import (
	"net"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/LiaLopezRosales/ircd/irc"
)

// Helpers shared by the handler tests. We build a server with default
// configuration and attach clients over net.Pipe, without starting any
// goroutines; handlers run synchronously and replies pile up in each
// client's write queue where tests can inspect them.

func newTestServer(t *testing.T) *Server {
	t.Helper()

	s, err := newServer("")
	require.NoError(t, err)

	return s
}

func newTestClient(t *testing.T, s *Server) *Client {
	t.Helper()

	serverSide, clientSide := net.Pipe()
	t.Cleanup(func() { _ = clientSide.Close() })

	s.mu.Lock()
	id := s.nextClientID
	s.nextClientID++
	c := NewClient(s, id, serverSide)
	s.Clients[id] = c
	s.mu.Unlock()

	return c
}

// registerTestClient runs the NICK/USER handshake and discards the
// welcome burst.
func registerTestClient(t *testing.T, s *Server, c *Client,
	nick string) {
	t.Helper()

	s.handleMessage(c, irc.Message{Command: "NICK",
		Params: []string{nick}})
	s.handleMessage(c, irc.Message{
		Command:     "USER",
		Params:      []string{"user", "0", "*"},
		Trailing:    "Test User",
		HasTrailing: true,
	})

	require.Equal(t, StateRegistered, c.State)

	drainMessages(c)
}

// drainMessages empties a client's write queue and returns what was in
// it.
func drainMessages(c *Client) []irc.Message {
	var out []irc.Message
	for {
		select {
		case m, ok := <-c.WriteChan:
			if !ok {
				return out
			}
			out = append(out, m)
		default:
			return out
		}
	}
}

// commandsOf projects messages to their command strings, for order
// assertions.
func commandsOf(messages []irc.Message) []string {
	var out []string
	for _, m := range messages {
		out = append(out, m.Command)
	}
	return out
}

func TestErrorToQuitMessage(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, "I/O error"},
		{errors.New(""), "I/O error"},
		{errors.New("read tcp: i/o timeout"), "Ping timeout"},
		{errors.New("read tcp: connection reset by peer"),
			"Connection reset by peer"},
		{errors.Wrap(errors.New("EOF"), "error reading"),
			"Client closed connection"},
		{errors.New("something strange"), "something strange"},
	}

	for _, test := range tests {
		got := errorToQuitMessage(test.err)
		if got != test.want {
			t.Errorf("errorToQuitMessage(%v) = %q, wanted %q", test.err,
				got, test.want)
		}
	}
}
