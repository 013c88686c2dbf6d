package main

import "time"

// whowasHistorySize bounds how many snapshots we keep per nickname.
const whowasHistorySize = 10

// WhowasEntry is a snapshot of a client record taken at the moment the
// record was destroyed (QUIT, eviction, socket close) or renamed away.
// Entries never refer to live records.
type WhowasEntry struct {
	Nick           string
	User           string
	Host           string
	RealName       string
	DisconnectedAt time.Time
}

// pushWhowas records a snapshot of the client at the head of the history
// for its nick, dropping the oldest entry when we're at capacity.
//
// Caller must hold the store mutex.
func (s *Server) pushWhowas(c *Client) {
	if len(c.DisplayNick) == 0 {
		return
	}

	entry := WhowasEntry{
		Nick:           c.DisplayNick,
		User:           c.User,
		Host:           c.Host,
		RealName:       c.RealName,
		DisconnectedAt: time.Now(),
	}

	canon := canonicalizeNick(c.DisplayNick)

	history := append([]WhowasEntry{entry}, s.Whowas[canon]...)
	if len(history) > whowasHistorySize {
		history = history[:whowasHistorySize]
	}

	s.Whowas[canon] = history
}

// whowasEntries returns a copy of the history for a nick, newest first.
//
// Caller must hold the store mutex.
func (s *Server) whowasEntries(nick string) []WhowasEntry {
	history := s.Whowas[canonicalizeNick(nick)]
	out := make([]WhowasEntry, len(history))
	copy(out, history)
	return out
}
