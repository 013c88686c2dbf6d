package main

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LiaLopezRosales/ircd/irc"
)

func TestWhowasHistoryBounded(t *testing.T) {
	s := newTestServer(t)

	// Push more snapshots than the history holds.
	for i := 0; i < whowasHistorySize+5; i++ {
		c := &Client{
			DisplayNick: "ghost",
			User:        fmt.Sprintf("user%d", i),
			Host:        "host.example",
			RealName:    "Ghost",
		}
		s.mu.Lock()
		s.pushWhowas(c)
		s.mu.Unlock()
	}

	s.mu.Lock()
	entries := s.whowasEntries("GHOST")
	s.mu.Unlock()

	require.Len(t, entries, whowasHistorySize)

	// Newest first: the last pushed user is at the head.
	assert.Equal(t, fmt.Sprintf("user%d", whowasHistorySize+4),
		entries[0].User)
	assert.Equal(t, fmt.Sprintf("user%d", 5),
		entries[whowasHistorySize-1].User)
}

func TestQuitArchivesToWhowas(t *testing.T) {
	s := newTestServer(t)
	c := newTestClient(t, s)
	registerTestClient(t, s, c, "alice")

	s.quitClient(c, "gone")

	s.mu.Lock()
	_, stillThere := s.Nicks["ALICE"]
	entries := s.whowasEntries("alice")
	s.mu.Unlock()

	assert.False(t, stillThere)
	require.Len(t, entries, 1)
	assert.Equal(t, "alice", entries[0].Nick)
	assert.Equal(t, "user", entries[0].User)
}

func TestWhowasCommand(t *testing.T) {
	s := newTestServer(t)

	departed := newTestClient(t, s)
	registerTestClient(t, s, departed, "bob")
	s.quitClient(departed, "gone")

	c := newTestClient(t, s)
	registerTestClient(t, s, c, "alice")

	s.handleMessage(c, irc.Message{Command: "WHOWAS",
		Params: []string{"bob"}})

	messages := drainMessages(c)
	require.Equal(t, []string{"314", "369"}, commandsOf(messages))
	assert.Equal(t, "bob", messages[0].Params[1])

	// A nick nobody held.
	s.handleMessage(c, irc.Message{Command: "WHOWAS",
		Params: []string{"nobody"}})

	messages = drainMessages(c)
	require.Equal(t, []string{"406", "369"}, commandsOf(messages))
}
