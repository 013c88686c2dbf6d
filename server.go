package main

import (
	"crypto/tls"
	"fmt"
	"net"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/sourcegraph/conc"

	"github.com/LiaLopezRosales/ircd/irc"
)

// Server holds the state for a server: every connection, the nickname and
// channel registries, and the WHOWAS history. I put everything global to a
// server in an instance of struct rather than have global variables.
//
// All of the registries are guarded by the single store mutex. Handlers
// take it, mutate state, queue any messages to per-connection write
// queues, and release. The mutex is never held across socket I/O; the
// writer goroutines do that part.
type Server struct {
	Config Config

	mu sync.Mutex

	// Client id to Client. Every open connection, registered or not.
	Clients map[uint64]*Client

	// Canonicalized nickname to Client. Populated from NICK onward.
	Nicks map[string]*Client

	// Canonicalized channel name to Channel.
	Channels map[string]*Channel

	// Canonicalized nickname to snapshots of departed clients, newest
	// first.
	Whowas map[string][]WhowasEntry

	nextClientID uint64

	// TCP listener. May be set by the caller before start; otherwise we
	// build one from the config.
	Listener net.Listener

	// When we close this channel, this indicates that we're shutting down.
	// Other goroutines can check if this channel is closed.
	ShutdownChan chan struct{}

	shutdownOnce sync.Once

	// WaitGroup to ensure all goroutines clean up before we end.
	WG conc.WaitGroup
}

func newServer(configFile string) (*Server, error) {
	s := Server{
		Clients:  make(map[uint64]*Client),
		Nicks:    make(map[string]*Client),
		Channels: make(map[string]*Channel),
		Whowas:   make(map[string][]WhowasEntry),

		// shutdown() closes this channel.
		ShutdownChan: make(chan struct{}),
	}

	if err := s.checkAndParseConfig(configFile); err != nil {
		return nil, fmt.Errorf("configuration problem: %s", err)
	}

	return &s, nil
}

// start starts up the server.
//
// We open the listening port, start the accepter and the liveness timers,
// and then wait for shutdown.
func (s *Server) start() error {
	if s.Listener == nil {
		ln, err := s.listen()
		if err != nil {
			return err
		}
		s.Listener = ln
	}

	s.WG.Go(s.acceptConnections)
	s.WG.Go(s.pingLoop)
	s.WG.Go(s.sweepLoop)

	logrus.WithField("address", s.Listener.Addr().String()).Info(
		"ircd started")

	<-s.ShutdownChan

	s.WG.Wait()

	return nil
}

// listen opens the listening socket, wrapped in TLS when the config
// carries a certificate.
func (s *Server) listen() (net.Listener, error) {
	addr := net.JoinHostPort(s.Config.ListenHost, s.Config.ListenPort)

	if len(s.Config.TLSCert) == 0 {
		logrus.Warn("No TLS certificate configured. Listening in the clear.")
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			return nil, fmt.Errorf("unable to listen: %s", err)
		}
		return ln, nil
	}

	cert, err := tls.LoadX509KeyPair(s.Config.TLSCert, s.Config.TLSKey)
	if err != nil {
		return nil, fmt.Errorf("unable to load TLS keypair: %s", err)
	}

	ln, err := tls.Listen("tcp", addr, &tls.Config{
		Certificates: []tls.Certificate{cert},
	})
	if err != nil {
		return nil, fmt.Errorf("unable to listen: %s", err)
	}

	return ln, nil
}

// shutdown starts server shutdown. Safe to call more than once.
func (s *Server) shutdown() {
	s.shutdownOnce.Do(func() {
		logrus.Info("Server shutdown initiated.")

		// Closing ShutdownChan indicates to other goroutines that we're
		// shutting down.
		close(s.ShutdownChan)

		if err := s.Listener.Close(); err != nil {
			logrus.Debugf("Problem closing TCP listener: %s", err)
		}

		s.mu.Lock()
		clients := make([]*Client, 0, len(s.Clients))
		for _, client := range s.Clients {
			clients = append(clients, client)
		}
		s.mu.Unlock()

		for _, client := range clients {
			s.quitClient(client, "Server shutting down")
		}
	})
}

// isShuttingDown reports whether the server is shutting down.
func (s *Server) isShuttingDown() bool {
	select {
	case <-s.ShutdownChan:
		return true
	default:
		return false
	}
}

// acceptConnections accepts TCP connections and starts the reader and
// writer goroutines for each.
func (s *Server) acceptConnections() {
	for {
		conn, err := s.Listener.Accept()
		if err != nil {
			if s.isShuttingDown() {
				break
			}
			logrus.Debugf("Failed to accept connection: %s", err)
			continue
		}

		s.mu.Lock()
		id := s.nextClientID
		s.nextClientID++
		client := NewClient(s, id, conn)
		s.Clients[client.ID] = client
		s.mu.Unlock()

		logrus.WithField("client", client.String()).Info(
			"New client connection")

		s.WG.Go(client.readLoop)
		s.WG.Go(client.writeLoop)
	}

	logrus.Debug("Connection accepter shutting down.")
}

// quitClient runs the full teardown for a connection: archive the record
// to WHOWAS, leave every channel with a QUIT broadcast, free the nick,
// and close the write queue (which makes the writer close the socket).
//
// It is idempotent; the first of reader exit, writer exit, QUIT command,
// KILL, or liveness eviction wins. Callers must NOT hold the store mutex.
func (s *Server) quitClient(c *Client, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.quitClientLocked(c, reason)
}

// quitClientLocked is the teardown body. Caller must hold the store
// mutex.
func (s *Server) quitClientLocked(c *Client, reason string) {
	if c.destroyed {
		return
	}
	c.destroyed = true

	logrus.WithFields(logrus.Fields{
		"client": c.String(),
		"nick":   c.DisplayNick,
	}).Infof("Client quit: %s", reason)

	if c.State >= StateNickSet {
		// The snapshot happens atomically with destruction: the record is
		// gone from Nicks in the same critical section.
		s.pushWhowas(c)

		quitMessage := irc.Message{
			Prefix:      c.nickUhost(),
			Command:     "QUIT",
			Trailing:    reason,
			HasTrailing: true,
		}

		// Tell everyone who shares a channel with the client, once each.
		toldClients := map[uint64]struct{}{}
		for channelName := range c.Channels {
			channel, exists := s.Channels[channelName]
			if !exists {
				continue
			}

			for _, member := range s.channelMembers(channel, c) {
				if _, told := toldClients[member.ID]; told {
					continue
				}
				member.maybeQueueMessage(quitMessage)
				toldClients[member.ID] = struct{}{}
			}

			s.removeFromChannel(channel, c.DisplayNick)
		}

		delete(s.Nicks, canonicalizeNick(c.DisplayNick))
	}

	delete(s.Clients, c.ID)

	// Best effort farewell, then let the writer drain and close.
	select {
	case c.WriteChan <- irc.Message{
		Prefix:      s.Config.ServerName,
		Command:     "ERROR",
		Trailing:    fmt.Sprintf("Closing Link: %s (%s)", c.Host, reason),
		HasTrailing: true,
	}:
	default:
	}

	close(c.WriteChan)
}

// removeFromChannel drops a nick from a channel, destroying the channel
// when it empties and re-seeding the operator set when the last operator
// leaves but members remain.
//
// Caller must hold the store mutex.
func (s *Server) removeFromChannel(channel *Channel, nick string) {
	channel.removeMember(nick)

	if len(channel.Members) == 0 {
		delete(s.Channels, canonicalizeChannel(channel.Name))
		return
	}

	if len(channel.Ops) == 0 {
		// Promote the first remaining member so the channel never ends up
		// unmanageable.
		channel.grantOps(channel.sortedMembers()[0])
	}
}

// errorToQuitMessage turns a connection error into the reason shown to
// other users in the QUIT broadcast.
func errorToQuitMessage(err error) string {
	if err == nil || len(err.Error()) == 0 {
		return "I/O error"
	}

	if strings.Contains(err.Error(), "i/o timeout") {
		return "Ping timeout"
	}

	if strings.Contains(err.Error(), "connection reset by peer") {
		return "Connection reset by peer"
	}

	if strings.Contains(err.Error(), "EOF") {
		return "Client closed connection"
	}

	return err.Error()
}
