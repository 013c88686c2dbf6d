package main

import (
	"fmt"
	"net"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/LiaLopezRosales/ircd/irc"
)

// ClientState tracks where a connection is in the registration handshake.
type ClientState int

const (
	// StateConnected means the TCP+TLS session is up but we know nothing
	// about the client yet. PASS and USER may arrive in this state.
	StateConnected ClientState = iota

	// StateNickSet means a valid NICK arrived and the client record exists
	// under that nick.
	StateNickSet

	// StateRegistered means both NICK and USER succeeded. Only registered
	// clients are addressable and receive routed traffic.
	StateRegistered
)

// Client holds the state for a single connection: the endpoint itself plus
// the client record once registration progresses.
//
// Mutable fields are guarded by the server's store mutex. The write channel
// is the per-connection write queue: sends to it are non-blocking and the
// writer goroutine drains it, so lines to one connection keep their order
// and never interleave.
type Client struct {
	// Conn is the TCP connection to the client.
	Conn Conn

	// WriteChan is the channel to send to to write to the client.
	WriteChan chan irc.Message

	// A unique id. Internal to this server only.
	ID uint64

	Server *Server

	// State of the registration handshake.
	State ClientState

	// Nick. Not canonicalized.
	DisplayNick string

	// Set by the USER command.
	User     string
	RealName string

	// Host we know the peer by. Derived from the peer address.
	Host string

	// Recorded from PASS. Currently unused for authentication.
	Pass string

	// Info the client may send us before we have a valid NICK. Moved onto
	// the record when registration completes.
	PreRegUser     string
	PreRegRealName string

	// User modes, e.g. 'i' (invisible), 'o' (operator).
	Modes map[byte]struct{}

	// Away message. Blank means not away.
	AwayMessage string

	// Channel names (canonicalized) the client is in.
	Channels map[string]struct{}

	// The last time we heard anything from the client.
	LastActivityTime time.Time

	// Liveness. The supervisor writes PING with an opaque token and the
	// client must echo it back in PONG.
	LastPingTime time.Time
	LastPongTime time.Time
	PingToken    string

	// Track if we overflow our send queue. If we do, we'll kill the client.
	SendQueueExceeded bool

	// Teardown must run exactly once.
	destroyed bool
}

// NewClient creates a Client for an accepted connection.
func NewClient(s *Server, id uint64, conn net.Conn) *Client {
	now := time.Now()

	c := &Client{
		Conn: NewConn(conn, s.Config.DeadTime),

		// Buffered channel. We don't want to block sending to the client
		// from a handler or the fan-out router. The client may be stuck.
		// Make the buffer large enough that it should only max out in case
		// of connection issues.
		WriteChan: make(chan irc.Message, 4096),

		ID:               id,
		Server:           s,
		Modes:            make(map[byte]struct{}),
		Channels:         make(map[string]struct{}),
		LastActivityTime: now,
		LastPingTime:     now,
		LastPongTime:     now,
	}

	c.Host = c.Conn.Host()

	return c
}

func (c *Client) String() string {
	return fmt.Sprintf("%d %s", c.ID, c.Conn.RemoteAddr())
}

// nickUhost gives the nick!user@host prefix identifying this client as a
// message source.
func (c *Client) nickUhost() string {
	return fmt.Sprintf("%s!%s@%s", c.DisplayNick, c.User, c.Host)
}

func (c *Client) onChannel(name string) bool {
	_, exists := c.Channels[canonicalizeChannel(name)]
	return exists
}

func (c *Client) isOperator() bool {
	_, exists := c.Modes['o']
	return exists
}

func (c *Client) isInvisible() bool {
	_, exists := c.Modes['i']
	return exists
}

func (c *Client) modesString() string {
	s := "+"
	for _, mode := range []byte{'i', 'o'} {
		if _, exists := c.Modes[mode]; exists {
			s += string(mode)
		}
	}
	return s
}

// maybeQueueMessage sends a message to the client's write queue.
//
// It won't block. If the queue is full we flag the client; the sweeper
// cleans flagged clients up. Not blocking is important because the fan-out
// router queues messages while the store lock is held, and a stuck client
// must not stall everyone else.
func (c *Client) maybeQueueMessage(m irc.Message) {
	if c.destroyed || c.SendQueueExceeded {
		return
	}

	select {
	case c.WriteChan <- m:
	default:
		c.SendQueueExceeded = true
	}
}

// numeric sends a numeric reply to the client, from the server. The
// client's nick gets prepended as the first parameter, or * if it doesn't
// have one yet. The text goes out as the trailing parameter.
func (c *Client) numeric(code string, text string, params ...string) {
	nick := "*"
	if len(c.DisplayNick) > 0 {
		nick = c.DisplayNick
	}

	c.maybeQueueMessage(irc.Message{
		Prefix:      c.Server.Config.ServerName,
		Command:     code,
		Params:      append([]string{nick}, params...),
		Trailing:    text,
		HasTrailing: true,
	})
}

// numericParams is numeric without a trailing part, for replies such as
// 004 whose fields are all middles.
func (c *Client) numericParams(code string, params ...string) {
	nick := "*"
	if len(c.DisplayNick) > 0 {
		nick = c.DisplayNick
	}

	c.maybeQueueMessage(irc.Message{
		Prefix:  c.Server.Config.ServerName,
		Command: code,
		Params:  append([]string{nick}, params...),
	})
}

// serverMessage sends a non-numeric command to the client, prefixed with
// the server name. Text goes out as trailing.
func (c *Client) serverMessage(command string, text string, params ...string) {
	c.maybeQueueMessage(irc.Message{
		Prefix:      c.Server.Config.ServerName,
		Command:     command,
		Params:      params,
		Trailing:    text,
		HasTrailing: true,
	})
}

// readLoop endlessly reads from the client's TCP connection. It decodes
// each protocol message and dispatches it. Malformed lines (including
// over-length ones) are discarded with no reply. A transport error ends
// the loop and runs the standard teardown.
func (c *Client) readLoop() {
	for {
		if c.Server.isShuttingDown() {
			break
		}

		message, err := c.Conn.ReadMessage()
		if err != nil {
			if errors.Is(err, irc.ErrMalformedMessage) {
				logrus.WithFields(logrus.Fields{
					"client": c.String(),
				}).Debugf("Discarding malformed message: %s", err)
				continue
			}

			logrus.WithField("client", c.String()).Debugf("Read error: %s", err)
			c.Server.quitClient(c, errorToQuitMessage(err))
			break
		}

		c.Server.handleMessage(c, message)
	}

	logrus.WithField("client", c.String()).Debug("Reader shutting down.")
}

// writeLoop endlessly reads from the client's write queue, encodes each
// message, and writes it to the client's TCP connection.
//
// When the queue is closed, or if we have a write error, close the TCP
// connection. This way we try to deliver queued messages to the client
// before closing its socket and giving up.
func (c *Client) writeLoop() {
Loop:
	for {
		select {
		case message, ok := <-c.WriteChan:
			if !ok {
				break Loop
			}

			if err := c.Conn.WriteMessage(message); err != nil {
				logrus.WithField("client", c.String()).Debugf("Write error: %s",
					err)
				c.Server.quitClient(c, errorToQuitMessage(err))
				break Loop
			}
		case <-c.Server.ShutdownChan:
			break Loop
		}
	}

	if err := c.Conn.Close(); err != nil {
		logrus.WithField("client", c.String()).Debugf(
			"Problem closing connection: %s", err)
	}

	logrus.WithField("client", c.String()).Debug("Writer shutting down.")
}
