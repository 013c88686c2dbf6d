package main

import (
	"crypto/rand"
	"encoding/hex"
	"time"

	"github.com/sirupsen/logrus"
)

// The liveness supervisor runs as two timer workers. The pinger
// periodically sends every registered client a PING carrying a fresh
// opaque token; a matching PONG moves the client back to responsive. The
// sweeper evicts clients that have been quiet past the dead time, and
// clients whose send queue overflowed.

// newPingToken generates an opaque token for a PING round.
func newPingToken() string {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand does not fail on any platform we run on.
		return "hungpo"
	}
	return hex.EncodeToString(buf)
}

// pingLoop issues PING rounds until shutdown.
func (s *Server) pingLoop() {
	ticker := time.NewTicker(s.Config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.pingClients()
		case <-s.ShutdownChan:
			logrus.Debug("Pinger shutting down.")
			return
		}
	}
}

// pingClients sends every registered client a PING with a fresh token and
// records the token as outstanding.
func (s *Server) pingClients() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()

	for _, client := range s.Clients {
		if client.State != StateRegistered {
			continue
		}

		// Still awaiting a PONG from the last round. No new token: the
		// client stays on the hook for the old one until the sweeper gets
		// it or the PONG arrives.
		if len(client.PingToken) > 0 {
			continue
		}

		client.PingToken = newPingToken()
		client.LastPingTime = now
		client.serverMessage("PING", client.PingToken)
	}
}

// sweepLoop periodically evicts dead clients until shutdown.
func (s *Server) sweepLoop() {
	ticker := time.NewTicker(s.Config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweepClients()
		case <-s.ShutdownChan:
			logrus.Debug("Sweeper shutting down.")
			return
		}
	}
}

// sweepClients finds clients past the idle bound, or with an overflowed
// send queue, and runs the standard teardown on them.
//
// A client is past the idle bound when both its last PONG and the last
// PING we sent it are older than the dead time. Unregistered connections
// get the same bound from their connection start.
func (s *Server) sweepClients() {
	now := time.Now()

	s.mu.Lock()
	var victims []*Client
	var reasons []string
	for _, client := range s.Clients {
		if client.SendQueueExceeded {
			victims = append(victims, client)
			reasons = append(reasons, "SendQ exceeded")
			continue
		}

		last := client.LastPongTime
		if client.LastPingTime.After(last) {
			last = client.LastPingTime
		}

		if now.Sub(last) > s.Config.DeadTime {
			victims = append(victims, client)
			reasons = append(reasons, "Ping timeout")
		}
	}
	s.mu.Unlock()

	// Teardown without the store mutex held; quitClient takes it itself.
	for i, client := range victims {
		s.quitClient(client, reasons[i])
	}
}
