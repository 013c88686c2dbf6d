package irc

import (
	"strings"

	"github.com/pkg/errors"
)

// ParseMessage parses one protocol line. The line should include the
// terminating CRLF, though we accept a bare LF ending too since clients in
// the wild send it.
//
// Grammar (RFC 2812 section 2.3.1):
//
//	message  = [ ":" prefix SPACE ] command { SPACE param } [ SPACE ":" trailing ] CRLF
//	command  = 1*letter / 3digit
//	param    = any octets except SPACE, NUL, CR, LF, not beginning with ":"
//	trailing = any octets except NUL, CR, LF
func ParseMessage(line string) (Message, error) {
	line, err := stripLineEnding(line)
	if err != nil {
		return Message{}, err
	}

	if len(line)+2 > MaxLineLength {
		return Message{}, errors.Wrap(ErrMalformedMessage, "line too long")
	}

	if strings.ContainsAny(line, "\x00\r\n") {
		return Message{}, errors.Wrap(ErrMalformedMessage,
			"NUL/CR/LF inside message")
	}

	m := Message{}

	// Optional prefix.
	if strings.HasPrefix(line, ":") {
		idx := strings.IndexByte(line, ' ')
		if idx == -1 {
			return Message{}, errors.Wrap(ErrMalformedMessage, "prefix only")
		}
		if idx == 1 {
			return Message{}, errors.Wrap(ErrMalformedMessage,
				"zero length prefix")
		}
		m.Prefix = line[1:idx]
		line = line[idx+1:]
	}

	// Trailing begins at the first " :".
	if idx := strings.Index(line, " :"); idx != -1 {
		m.Trailing = line[idx+2:]
		m.HasTrailing = true
		line = line[:idx]
	}

	fields := strings.Fields(line)
	if len(fields) == 0 {
		return Message{}, errors.Wrap(ErrMalformedMessage, "no command")
	}

	command := fields[0]
	if !isValidCommand(command) {
		return Message{}, errors.Wrapf(ErrMalformedMessage, "bad command %q",
			command)
	}

	m.Command = strings.ToUpper(command)
	if len(fields) > 1 {
		m.Params = fields[1:]
	}

	return m, nil
}

// stripLineEnding removes the terminating CRLF (or LF). A line without any
// ending at all is accepted as well so callers can parse pre-framed lines.
func stripLineEnding(line string) (string, error) {
	if len(line) == 0 {
		return "", errors.Wrap(ErrMalformedMessage, "blank line")
	}

	line = strings.TrimSuffix(line, "\n")
	line = strings.TrimSuffix(line, "\r")

	if len(line) == 0 {
		return "", errors.Wrap(ErrMalformedMessage, "no command")
	}

	return line, nil
}

// isValidCommand checks the 1*letter / 3digit rule.
func isValidCommand(s string) bool {
	if len(s) == 0 {
		return false
	}

	if s[0] >= '0' && s[0] <= '9' {
		if len(s) != 3 {
			return false
		}
		for i := 0; i < 3; i++ {
			if s[i] < '0' || s[i] > '9' {
				return false
			}
		}
		return true
	}

	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') {
			continue
		}
		return false
	}
	return true
}
