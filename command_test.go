package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LiaLopezRosales/ircd/irc"
)

func TestRegistration(t *testing.T) {
	s := newTestServer(t)
	c := newTestClient(t, s)

	s.handleMessage(c, irc.Message{Command: "NICK",
		Params: []string{"Alice"}})
	assert.Equal(t, StateNickSet, c.State)
	assert.Empty(t, drainMessages(c))

	s.handleMessage(c, irc.Message{
		Command:     "USER",
		Params:      []string{"alice", "0", "*"},
		Trailing:    "Alice A",
		HasTrailing: true,
	})

	require.Equal(t, StateRegistered, c.State)

	messages := drainMessages(c)
	require.Equal(t, []string{"001", "002", "003", "004", "251", "254",
		"255", "375", "372", "376"}, commandsOf(messages))

	welcome := messages[0]
	assert.Equal(t, "mock.server", welcome.Prefix)
	assert.Equal(t, []string{"Alice"}, welcome.Params)
	assert.Equal(t, "Bienvenido al servidor Alice!alice@pipe",
		welcome.Trailing)

	// 004 is all middle parameters.
	assert.False(t, messages[3].HasTrailing)
	assert.Equal(t, []string{"Alice", "mock.server", "ircd-1.0.0", "io",
		"nt"}, messages[3].Params)
}

func TestRegistrationUserFirst(t *testing.T) {
	s := newTestServer(t)
	c := newTestClient(t, s)

	s.handleMessage(c, irc.Message{
		Command:     "USER",
		Params:      []string{"bob", "0", "*"},
		Trailing:    "Bob B",
		HasTrailing: true,
	})
	assert.Equal(t, StateConnected, c.State)

	s.handleMessage(c, irc.Message{Command: "NICK",
		Params: []string{"bob"}})

	require.Equal(t, StateRegistered, c.State)
	assert.Equal(t, "bob", c.User)
	assert.Equal(t, "Bob B", c.RealName)
}

func TestNickErrors(t *testing.T) {
	s := newTestServer(t)

	holder := newTestClient(t, s)
	registerTestClient(t, s, holder, "alice")

	c := newTestClient(t, s)

	tests := []struct {
		name    string
		message irc.Message
		want    string
	}{
		{"no nickname", irc.Message{Command: "NICK"}, "431"},
		{"invalid", irc.Message{Command: "NICK",
			Params: []string{"1bad"}}, "432"},
		{"in use", irc.Message{Command: "NICK",
			Params: []string{"alice"}}, "433"},
		{"in use case insensitive", irc.Message{Command: "NICK",
			Params: []string{"ALICE"}}, "433"},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			s.handleMessage(c, test.message)
			messages := drainMessages(c)
			require.Len(t, messages, 1)
			assert.Equal(t, test.want, messages[0].Command)
			assert.Equal(t, StateConnected, c.State)
		})
	}
}

func TestNickRename(t *testing.T) {
	s := newTestServer(t)

	c := newTestClient(t, s)
	registerTestClient(t, s, c, "alice")

	other := newTestClient(t, s)
	registerTestClient(t, s, other, "bob")

	s.handleMessage(c, irc.Message{Command: "JOIN",
		Params: []string{"#go"}})
	s.handleMessage(other, irc.Message{Command: "JOIN",
		Params: []string{"#go"}})
	drainMessages(c)
	drainMessages(other)

	s.handleMessage(c, irc.Message{Command: "NICK",
		Params: []string{"carol"}})

	// Both the renamer and the channel peer hear it, with the old
	// identity as source.
	for _, client := range []*Client{c, other} {
		messages := drainMessages(client)
		require.Len(t, messages, 1)
		assert.Equal(t, "NICK", messages[0].Command)
		assert.Equal(t, "alice!user@pipe", messages[0].Prefix)
		assert.Equal(t, "carol", messages[0].Trailing)
	}

	s.mu.Lock()
	_, oldThere := s.Nicks["ALICE"]
	renamed, newThere := s.Nicks["CAROL"]
	oldHistory := s.whowasEntries("alice")
	s.mu.Unlock()

	assert.False(t, oldThere)
	require.True(t, newThere)
	assert.Equal(t, c, renamed)

	// The old nick is answerable via WHOWAS.
	require.Len(t, oldHistory, 1)
	assert.Equal(t, "alice", oldHistory[0].Nick)

	// Channel membership follows the rename, operator status included.
	s.mu.Lock()
	channel := s.Channels["#GO"]
	s.mu.Unlock()
	assert.True(t, channel.hasMember("carol"))
	assert.False(t, channel.hasMember("alice"))
	assert.True(t, channel.hasOps("carol"))
	assert.False(t, channel.hasOps("alice"))

	// Channel fan-out still reaches the renamed client.
	s.handleMessage(other, irc.Message{
		Command:     "PRIVMSG",
		Params:      []string{"#go"},
		Trailing:    "hi carol",
		HasTrailing: true,
	})
	messages := drainMessages(c)
	require.Len(t, messages, 1)
	assert.Equal(t, "PRIVMSG", messages[0].Command)
	assert.Equal(t, "hi carol", messages[0].Trailing)

	// The old nick no longer names a channel member.
	s.handleMessage(c, irc.Message{Command: "KICK",
		Params: []string{"#go", "alice"}})
	messages = drainMessages(c)
	require.Len(t, messages, 1)
	assert.Equal(t, "441", messages[0].Command)

	// Teardown removes the renamed member, so the channel empties out
	// and gets destroyed like any other.
	s.quitClient(other, "gone")
	s.quitClient(c, "gone")

	s.mu.Lock()
	_, exists := s.Channels["#GO"]
	s.mu.Unlock()
	assert.False(t, exists)
}

func TestDispatchGates(t *testing.T) {
	s := newTestServer(t)
	c := newTestClient(t, s)

	// Unknown command.
	s.handleMessage(c, irc.Message{Command: "BOGUS"})
	messages := drainMessages(c)
	require.Len(t, messages, 1)
	assert.Equal(t, "421", messages[0].Command)
	assert.Equal(t, []string{"*", "BOGUS"}, messages[0].Params)

	// Registered-only command before registration.
	s.handleMessage(c, irc.Message{Command: "JOIN",
		Params: []string{"#go"}})
	messages = drainMessages(c)
	require.Len(t, messages, 1)
	assert.Equal(t, "451", messages[0].Command)

	// Not enough parameters.
	registerTestClient(t, s, c, "alice")
	s.handleMessage(c, irc.Message{Command: "KICK",
		Params: []string{"#go"}})
	messages = drainMessages(c)
	require.Len(t, messages, 1)
	assert.Equal(t, "461", messages[0].Command)
}

func TestPingPong(t *testing.T) {
	s := newTestServer(t)
	c := newTestClient(t, s)
	registerTestClient(t, s, c, "alice")

	// Client PING gets a PONG echoing the origin.
	s.handleMessage(c, irc.Message{Command: "PING",
		Params: []string{"abc"}})
	messages := drainMessages(c)
	require.Len(t, messages, 1)
	assert.Equal(t, "PONG", messages[0].Command)
	assert.Equal(t, "abc", messages[0].Trailing)

	// Client PING with no origin.
	s.handleMessage(c, irc.Message{Command: "PING"})
	messages = drainMessages(c)
	require.Len(t, messages, 1)
	assert.Equal(t, "409", messages[0].Command)

	// Server-initiated round: a mismatched PONG changes nothing, the
	// matching one clears the outstanding token.
	s.pingClients()
	messages = drainMessages(c)
	require.Len(t, messages, 1)
	require.Equal(t, "PING", messages[0].Command)
	token := messages[0].Trailing

	s.handleMessage(c, irc.Message{Command: "PONG",
		Params: []string{"wrong"}})
	assert.Equal(t, token, c.PingToken)

	s.handleMessage(c, irc.Message{Command: "PONG",
		Params: []string{token}})
	assert.Empty(t, c.PingToken)
}

func TestPingSkipsAwaitingClients(t *testing.T) {
	s := newTestServer(t)
	c := newTestClient(t, s)
	registerTestClient(t, s, c, "alice")

	s.pingClients()
	first := drainMessages(c)
	require.Len(t, first, 1)

	// No PONG came back, so the next round must not re-ping.
	s.pingClients()
	assert.Empty(t, drainMessages(c))
}

func TestSweepEvictsDeadClients(t *testing.T) {
	s := newTestServer(t)

	alive := newTestClient(t, s)
	registerTestClient(t, s, alive, "alice")

	dead := newTestClient(t, s)
	registerTestClient(t, s, dead, "bob")

	s.mu.Lock()
	dead.LastPingTime = dead.LastPingTime.Add(-2 * s.Config.DeadTime)
	dead.LastPongTime = dead.LastPongTime.Add(-2 * s.Config.DeadTime)
	s.mu.Unlock()

	s.sweepClients()

	s.mu.Lock()
	_, aliveThere := s.Nicks["ALICE"]
	_, deadThere := s.Nicks["BOB"]
	s.mu.Unlock()

	assert.True(t, aliveThere)
	assert.False(t, deadThere)
	assert.True(t, dead.destroyed)
}

func TestSweepEvictsOverflowedClients(t *testing.T) {
	s := newTestServer(t)
	c := newTestClient(t, s)
	registerTestClient(t, s, c, "alice")

	s.mu.Lock()
	c.SendQueueExceeded = true
	s.mu.Unlock()

	s.sweepClients()

	assert.True(t, c.destroyed)
}

func TestUserMode(t *testing.T) {
	s := newTestServer(t)
	c := newTestClient(t, s)
	registerTestClient(t, s, c, "alice")

	// Query.
	s.handleMessage(c, irc.Message{Command: "MODE",
		Params: []string{"alice"}})
	messages := drainMessages(c)
	require.Len(t, messages, 1)
	assert.Equal(t, "221", messages[0].Command)
	assert.Equal(t, []string{"alice", "+"}, messages[0].Params)

	// Set invisible.
	s.handleMessage(c, irc.Message{Command: "MODE",
		Params: []string{"alice", "+i"}})
	messages = drainMessages(c)
	require.Len(t, messages, 1)
	assert.Equal(t, []string{"alice", "+i"}, messages[0].Params)
	assert.True(t, c.isInvisible())

	// Operator can't be self-granted.
	s.handleMessage(c, irc.Message{Command: "MODE",
		Params: []string{"alice", "+o"}})
	drainMessages(c)
	assert.False(t, c.isOperator())

	// Someone else's modes are off limits.
	s.handleMessage(c, irc.Message{Command: "MODE",
		Params: []string{"bob", "+i"}})
	messages = drainMessages(c)
	require.Len(t, messages, 1)
	assert.Equal(t, "502", messages[0].Command)
}

func TestOper(t *testing.T) {
	s := newTestServer(t)
	s.Config.Opers = map[string]string{"admin": "secret"}

	c := newTestClient(t, s)
	registerTestClient(t, s, c, "alice")

	s.handleMessage(c, irc.Message{Command: "OPER",
		Params: []string{"admin", "wrong"}})
	messages := drainMessages(c)
	require.Len(t, messages, 1)
	assert.Equal(t, "464", messages[0].Command)
	assert.False(t, c.isOperator())

	s.handleMessage(c, irc.Message{Command: "OPER",
		Params: []string{"admin", "secret"}})
	messages = drainMessages(c)
	require.Equal(t, []string{"MODE", "381"}, commandsOf(messages))
	assert.Equal(t, []string{"alice", "+o"}, messages[0].Params)
	assert.True(t, c.isOperator())
}

func TestKill(t *testing.T) {
	s := newTestServer(t)
	s.Config.Opers = map[string]string{"admin": "secret"}

	oper := newTestClient(t, s)
	registerTestClient(t, s, oper, "alice")

	victim := newTestClient(t, s)
	registerTestClient(t, s, victim, "bob")

	// Not an operator yet.
	s.handleMessage(oper, irc.Message{Command: "KILL",
		Params: []string{"bob", "spam"}})
	messages := drainMessages(oper)
	require.Len(t, messages, 1)
	assert.Equal(t, "481", messages[0].Command)
	assert.False(t, victim.destroyed)

	s.handleMessage(oper, irc.Message{Command: "OPER",
		Params: []string{"admin", "secret"}})
	drainMessages(oper)

	s.handleMessage(oper, irc.Message{Command: "KILL",
		Params: []string{"bob", "spam"}})

	assert.True(t, victim.destroyed)

	s.mu.Lock()
	_, there := s.Nicks["BOB"]
	entries := s.whowasEntries("bob")
	s.mu.Unlock()
	assert.False(t, there)
	require.Len(t, entries, 1)
}

func TestAway(t *testing.T) {
	s := newTestServer(t)

	c := newTestClient(t, s)
	registerTestClient(t, s, c, "alice")

	other := newTestClient(t, s)
	registerTestClient(t, s, other, "bob")

	s.handleMessage(c, irc.Message{Command: "AWAY",
		Trailing: "lunch", HasTrailing: true})
	messages := drainMessages(c)
	require.Len(t, messages, 1)
	assert.Equal(t, "306", messages[0].Command)

	// A sender gets the away message back.
	s.handleMessage(other, irc.Message{
		Command:     "PRIVMSG",
		Params:      []string{"alice"},
		Trailing:    "hi",
		HasTrailing: true,
	})
	messages = drainMessages(other)
	require.Len(t, messages, 1)
	assert.Equal(t, "301", messages[0].Command)
	assert.Equal(t, "lunch", messages[0].Trailing)

	s.handleMessage(c, irc.Message{Command: "AWAY"})
	messages = drainMessages(c)
	require.Len(t, messages, 1)
	assert.Equal(t, "305", messages[0].Command)
	assert.Empty(t, c.AwayMessage)
}

func TestQuitCommand(t *testing.T) {
	s := newTestServer(t)

	c := newTestClient(t, s)
	registerTestClient(t, s, c, "alice")

	other := newTestClient(t, s)
	registerTestClient(t, s, other, "bob")

	s.handleMessage(c, irc.Message{Command: "JOIN",
		Params: []string{"#go"}})
	s.handleMessage(other, irc.Message{Command: "JOIN",
		Params: []string{"#go"}})
	drainMessages(c)
	drainMessages(other)

	s.handleMessage(c, irc.Message{Command: "QUIT",
		Trailing: "bye", HasTrailing: true})

	assert.True(t, c.destroyed)

	// The peer hears the QUIT with the reason marked as client-sent.
	messages := drainMessages(other)
	require.Len(t, messages, 1)
	assert.Equal(t, "QUIT", messages[0].Command)
	assert.Equal(t, "Quit: bye", messages[0].Trailing)

	// The quitter's queue ends with the farewell ERROR.
	messages = drainMessages(c)
	require.NotEmpty(t, messages)
	last := messages[len(messages)-1]
	assert.Equal(t, "ERROR", last.Command)
	assert.Contains(t, last.Trailing, "Quit: bye")
}
