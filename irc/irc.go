// Package irc provides encoding and decoding of IRC protocol messages as
// described in RFC 2812 section 2.3.1. It is useful for implementing both
// clients and servers.
package irc

import (
	"errors"
	"fmt"
	"strings"
)

// MaxLineLength is the maximum protocol message line length. It includes
// the trailing CRLF.
const MaxLineLength = 512

// ErrMalformedMessage is the error for any message we refuse to decode or
// encode: no command, over-length line, or NUL/CR/LF embedded in a field.
var ErrMalformedMessage = errors.New("malformed message")

// Message holds one protocol message.
//
// Params holds the middle parameters only. The trailing parameter is kept
// separate because an empty trailing (": " with nothing after it) is
// distinct from having no trailing at all.
type Message struct {
	// Prefix may be blank. It's optional.
	Prefix string

	// Command is the IRC command, upper-cased. It may be a numeric.
	Command string

	// Params are the middle parameters, in order. None of them may contain
	// a space or begin with ':'.
	Params []string

	// Trailing is the final parameter. It may contain spaces and ':'.
	// Meaningful only if HasTrailing is set.
	Trailing string

	// HasTrailing records whether a trailing parameter is present at all.
	HasTrailing bool
}

func (m Message) String() string {
	return fmt.Sprintf("Prefix [%s] Command [%s] Params %q Trailing [%s/%v]",
		m.Prefix, m.Command, m.Params, m.Trailing, m.HasTrailing)
}

// SourceNick returns the nickname portion of a nick!user@host prefix. If
// the prefix has no user/host portion we return it as is.
func (m Message) SourceNick() string {
	if idx := strings.IndexByte(m.Prefix, '!'); idx != -1 {
		return m.Prefix[:idx]
	}
	return m.Prefix
}

// IsNumeric reports whether the command is a three digit reply code.
func (m Message) IsNumeric() bool {
	if len(m.Command) != 3 {
		return false
	}
	for i := 0; i < 3; i++ {
		if m.Command[i] < '0' || m.Command[i] > '9' {
			return false
		}
	}
	return true
}
