package irc

import (
	"strings"

	"github.com/pkg/errors"
)

// Encode encodes the Message into a raw protocol line with a trailing
// CRLF.
//
// We refuse to encode rather than truncate: a message without a command,
// one that would exceed MaxLineLength, or one with NUL/CR/LF (or, for
// middle params, a space or leading ':') inside a field gets
// ErrMalformedMessage.
func (m Message) Encode() (string, error) {
	if len(m.Command) == 0 {
		return "", errors.Wrap(ErrMalformedMessage, "no command")
	}

	var sb strings.Builder

	if len(m.Prefix) > 0 {
		if !isValidField(m.Prefix) || strings.ContainsRune(m.Prefix, ' ') {
			return "", errors.Wrap(ErrMalformedMessage, "bad prefix")
		}
		sb.WriteByte(':')
		sb.WriteString(m.Prefix)
		sb.WriteByte(' ')
	}

	if !isValidCommand(m.Command) {
		return "", errors.Wrapf(ErrMalformedMessage, "bad command %q", m.Command)
	}
	sb.WriteString(m.Command)

	for _, param := range m.Params {
		if len(param) == 0 || param[0] == ':' || !isValidField(param) ||
			strings.ContainsRune(param, ' ') {
			return "", errors.Wrapf(ErrMalformedMessage, "bad parameter %q",
				param)
		}
		sb.WriteByte(' ')
		sb.WriteString(param)
	}

	if m.HasTrailing {
		if !isValidField(m.Trailing) {
			return "", errors.Wrap(ErrMalformedMessage, "bad trailing")
		}
		sb.WriteString(" :")
		sb.WriteString(m.Trailing)
	}

	sb.WriteString("\r\n")

	if sb.Len() > MaxLineLength {
		return "", errors.Wrap(ErrMalformedMessage, "line too long")
	}

	return sb.String(), nil
}

// isValidField rejects the octets no field may carry.
func isValidField(s string) bool {
	return !strings.ContainsAny(s, "\x00\r\n")
}
