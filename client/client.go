// Package client implements a minimal IRC client. It connects and
// registers, answers server PINGs on its own, and hands everything else
// to the caller over channels. It's suitable for tests and small bots.
package client

import (
	"bufio"
	"crypto/tls"
	"net"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/sourcegraph/conc"

	"github.com/LiaLopezRosales/ircd/irc"
)

const defaultTimeout = 5 * time.Minute

// Client holds a connection to an IRC server.
type Client struct {
	Nick     string
	User     string
	RealName string

	// Address of the server, host:port.
	Address string

	// TLSConfig, when set, makes the connection use TLS.
	TLSConfig *tls.Config

	// Timeout applies to dialing and to each socket read and write.
	Timeout time.Duration

	conn net.Conn
	rw   *bufio.ReadWriter

	recvChan chan irc.Message
	sendChan chan irc.Message
	errChan  chan error
	doneChan chan struct{}

	// Channels we're currently on, canonical (upper-cased) name to the
	// name as the server shows it.
	mu       sync.Mutex
	channels map[string]string

	wg       conc.WaitGroup
	stopOnce sync.Once
}

// NewClient creates a Client. The nick doubles as user and real name
// until the caller overrides them.
func NewClient(nick, address string) *Client {
	return &Client{
		Nick:     nick,
		User:     nick,
		RealName: nick,
		Address:  address,
		Timeout:  defaultTimeout,
	}
}

// Start connects to the server and begins the registration handshake.
//
// It returns a channel of messages from the server, a channel to send
// messages on, and a channel reporting any connection error. Server
// PINGs are answered internally and also passed through.
func (c *Client) Start() (<-chan irc.Message, chan<- irc.Message,
	<-chan error, error) {
	dialer := &net.Dialer{Timeout: c.Timeout}

	var conn net.Conn
	var err error
	if c.TLSConfig != nil {
		conn, err = tls.DialWithDialer(dialer, "tcp", c.Address,
			c.TLSConfig)
	} else {
		conn, err = dialer.Dial("tcp", c.Address)
	}
	if err != nil {
		return nil, nil, nil, errors.Wrap(err, "error dialing")
	}

	c.conn = conn
	c.rw = bufio.NewReadWriter(bufio.NewReader(conn),
		bufio.NewWriter(conn))

	c.recvChan = make(chan irc.Message, 512)
	c.sendChan = make(chan irc.Message, 512)
	c.errChan = make(chan error, 16)
	c.doneChan = make(chan struct{})
	c.channels = make(map[string]string)

	c.wg.Go(c.reader)
	c.wg.Go(c.writer)

	c.Send(irc.Message{Command: "NICK", Params: []string{c.Nick}})
	c.Send(irc.Message{
		Command:     "USER",
		Params:      []string{c.User, "0", "*"},
		Trailing:    c.RealName,
		HasTrailing: true,
	})

	return c.recvChan, c.sendChan, c.errChan, nil
}

// Stop tears the connection down and waits for the client's goroutines
// to finish. Safe to call more than once.
func (c *Client) Stop() {
	c.stopOnce.Do(func() {
		close(c.doneChan)
		if err := c.conn.Close(); err != nil {
			logrus.Debugf("client %s: problem closing connection: %s",
				c.Nick, err)
		}
		c.wg.Wait()
		close(c.recvChan)
	})
}

// Send queues a message to go to the server. It won't block; if the
// client is stopping, the message is dropped.
func (c *Client) Send(m irc.Message) {
	select {
	case c.sendChan <- m:
	case <-c.doneChan:
	}
}

// Join joins a channel.
func (c *Client) Join(channel string) {
	c.Send(irc.Message{Command: "JOIN", Params: []string{channel}})
}

// Part leaves a channel.
func (c *Client) Part(channel, reason string) {
	m := irc.Message{Command: "PART", Params: []string{channel}}
	if len(reason) > 0 {
		m.Trailing = reason
		m.HasTrailing = true
	}
	c.Send(m)
}

// Privmsg sends a PRIVMSG to a channel or nick.
func (c *Client) Privmsg(target, text string) {
	c.Send(irc.Message{
		Command:     "PRIVMSG",
		Params:      []string{target},
		Trailing:    text,
		HasTrailing: true,
	})
}

// Notice sends a NOTICE to a channel or nick.
func (c *Client) Notice(target, text string) {
	c.Send(irc.Message{
		Command:     "NOTICE",
		Params:      []string{target},
		Trailing:    text,
		HasTrailing: true,
	})
}

// Quit sends a QUIT with the reason.
func (c *Client) Quit(reason string) {
	c.Send(irc.Message{
		Command:     "QUIT",
		Trailing:    reason,
		HasTrailing: true,
	})
}

// Channels returns the channels the client is on, sorted, as the server
// shows them.
func (c *Client) Channels() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]string, 0, len(c.channels))
	for _, name := range c.channels {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// trackChannels keeps the channel set current from the JOIN/PART/KICK
// traffic that concerns us.
func (c *Client) trackChannels(m irc.Message) {
	name := ""
	if len(m.Params) > 0 {
		name = m.Params[0]
	} else if m.HasTrailing {
		name = m.Trailing
	}
	if len(name) == 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	switch m.Command {
	case "JOIN":
		if strings.EqualFold(m.SourceNick(), c.Nick) {
			c.channels[strings.ToUpper(name)] = name
		}
	case "PART":
		if strings.EqualFold(m.SourceNick(), c.Nick) {
			delete(c.channels, strings.ToUpper(name))
		}
	case "KICK":
		if len(m.Params) > 1 && strings.EqualFold(m.Params[1], c.Nick) {
			delete(c.channels, strings.ToUpper(name))
		}
	}
}

// WaitFor reads from the receive channel until a message with the given
// command arrives or the timeout passes.
func (c *Client) WaitFor(command string,
	timeout time.Duration) (irc.Message, error) {
	deadline := time.After(timeout)

	for {
		select {
		case m, ok := <-c.recvChan:
			if !ok {
				return irc.Message{}, errors.New("connection closed")
			}
			if m.Command == command {
				return m, nil
			}
		case <-deadline:
			return irc.Message{}, errors.Errorf(
				"timed out waiting for %s", command)
		}
	}
}

// reader reads lines from the server until the connection dies. Each
// decoded message goes out on the receive channel. Lines we can't
// decode are skipped.
func (c *Client) reader() {
	for {
		m, err := c.readMessage()
		if err != nil {
			if errors.Is(err, irc.ErrMalformedMessage) {
				continue
			}
			c.reportError(err)
			return
		}

		c.trackChannels(m)

		if m.Command == "PING" {
			token := m.Trailing
			if !m.HasTrailing && len(m.Params) > 0 {
				token = m.Params[0]
			}
			c.Send(irc.Message{
				Command:     "PONG",
				Trailing:    token,
				HasTrailing: true,
			})
		}

		select {
		case c.recvChan <- m:
		case <-c.doneChan:
			return
		}
	}
}

// writer sends queued messages to the server until stopped.
func (c *Client) writer() {
	for {
		select {
		case m := <-c.sendChan:
			if err := c.writeMessage(m); err != nil {
				c.reportError(err)
				return
			}
		case <-c.doneChan:
			return
		}
	}
}

func (c *Client) readMessage() (irc.Message, error) {
	if err := c.conn.SetReadDeadline(
		time.Now().Add(c.Timeout)); err != nil {
		return irc.Message{}, errors.Wrap(err,
			"error setting read deadline")
	}

	line, err := c.rw.ReadString('\n')
	if err != nil {
		return irc.Message{}, errors.Wrap(err, "error reading")
	}

	logrus.Debugf("client %s: read: %s", c.Nick, line)

	return irc.ParseMessage(line)
}

func (c *Client) writeMessage(m irc.Message) error {
	buf, err := m.Encode()
	if err != nil {
		return err
	}

	if err := c.conn.SetWriteDeadline(
		time.Now().Add(c.Timeout)); err != nil {
		return errors.Wrap(err, "error setting write deadline")
	}

	if _, err := c.rw.WriteString(buf); err != nil {
		return errors.Wrap(err, "error writing")
	}

	logrus.Debugf("client %s: sent: %s", c.Nick, buf)

	return c.rw.Flush()
}

// reportError delivers an error without ever blocking on a full or
// unread channel.
func (c *Client) reportError(err error) {
	select {
	case c.errChan <- err:
	default:
	}
}
