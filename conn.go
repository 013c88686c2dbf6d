package main

import (
	"bufio"
	"net"
	"time"

	"github.com/pkg/errors"

	"github.com/LiaLopezRosales/ircd/irc"
)

// Conn is a connection to a client. It frames the byte stream into CRLF
// terminated lines and runs them through the protocol codec. A single TCP
// read may carry zero, one, or many lines; bufio does the reassembly.
type Conn struct {
	conn   net.Conn
	rw     *bufio.ReadWriter
	ioWait time.Duration
	IP     net.IP
}

// NewConn initializes a Conn struct.
func NewConn(conn net.Conn, ioWait time.Duration) Conn {
	var ip net.IP
	if tcpAddr, ok := conn.RemoteAddr().(*net.TCPAddr); ok {
		ip = tcpAddr.IP
	}

	return Conn{
		conn:   conn,
		rw:     bufio.NewReadWriter(bufio.NewReader(conn), bufio.NewWriter(conn)),
		ioWait: ioWait,
		IP:     ip,
	}
}

// Close closes the underlying connection.
func (c Conn) Close() error {
	return c.conn.Close()
}

// RemoteAddr returns the remote network address.
func (c Conn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// Host returns the name we know the peer by. We don't do reverse lookups,
// so this is its IP, or the raw address if we could not resolve one.
func (c Conn) Host() string {
	if c.IP != nil {
		return c.IP.String()
	}
	return c.conn.RemoteAddr().String()
}

// ReadMessage reads one line from the connection and decodes it.
//
// A transport problem comes back as a wrapped I/O error. A line that is
// not a valid protocol message comes back as irc.ErrMalformedMessage; the
// caller is expected to discard those silently and keep reading.
func (c Conn) ReadMessage() (irc.Message, error) {
	if err := c.conn.SetReadDeadline(time.Now().Add(c.ioWait)); err != nil {
		return irc.Message{}, errors.Wrap(err, "error setting read deadline")
	}

	line, err := c.rw.ReadString('\n')
	if err != nil {
		return irc.Message{}, errors.Wrap(err, "error reading")
	}

	return irc.ParseMessage(line)
}

// WriteMessage encodes the message and writes it. The full line goes out
// in one buffered write so lines never interleave on a connection.
func (c Conn) WriteMessage(m irc.Message) error {
	buf, err := m.Encode()
	if err != nil {
		return err
	}

	if err := c.conn.SetWriteDeadline(time.Now().Add(c.ioWait)); err != nil {
		return errors.Wrap(err, "error setting write deadline")
	}

	sz, err := c.rw.WriteString(buf)
	if err != nil {
		return errors.Wrap(err, "error writing")
	}

	if sz != len(buf) {
		return errors.New("short write")
	}

	if err := c.rw.Flush(); err != nil {
		return errors.Wrap(err, "flush error")
	}

	return nil
}
