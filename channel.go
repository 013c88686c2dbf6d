package main

import "sort"

// Channel holds everything to do with a channel.
//
// Membership is expressed by canonicalized nickname strings, never by
// pointers into the client table: destruction walks strings and so cannot
// leave dangling references.
type Channel struct {
	// Name as supplied at creation time. Used for display.
	Name string

	// Canonicalized members. If we have zero members, we should not exist.
	Members map[string]struct{}

	// Ops tracks members who have channel operator status. Always a subset
	// of Members.
	Ops map[string]struct{}

	// Current topic. May be blank.
	Topic string

	// Modes set on the channel, e.g. 'n', 't'.
	Modes map[byte]struct{}
}

// newChannel creates a channel with the default modes. The creator becomes
// the first operator.
func newChannel(name, creatorNick string) *Channel {
	ch := &Channel{
		Name:    name,
		Members: make(map[string]struct{}),
		Ops:     make(map[string]struct{}),
		Modes:   map[byte]struct{}{'n': {}, 't': {}},
	}

	creator := canonicalizeNick(creatorNick)
	ch.Members[creator] = struct{}{}
	ch.Ops[creator] = struct{}{}

	return ch
}

func (ch *Channel) hasMember(nick string) bool {
	_, exists := ch.Members[canonicalizeNick(nick)]
	return exists
}

func (ch *Channel) hasOps(nick string) bool {
	_, exists := ch.Ops[canonicalizeNick(nick)]
	return exists
}

func (ch *Channel) hasMode(mode byte) bool {
	_, exists := ch.Modes[mode]
	return exists
}

func (ch *Channel) grantOps(nick string) {
	ch.Ops[canonicalizeNick(nick)] = struct{}{}
}

func (ch *Channel) removeOps(nick string) {
	delete(ch.Ops, canonicalizeNick(nick))
}

// removeMember takes the nick out of both the member and operator sets.
func (ch *Channel) removeMember(nick string) {
	canon := canonicalizeNick(nick)
	delete(ch.Members, canon)
	delete(ch.Ops, canon)
}

// sortedMembers returns the canonicalized member nicks in a stable order.
func (ch *Channel) sortedMembers() []string {
	members := make([]string, 0, len(ch.Members))
	for nick := range ch.Members {
		members = append(members, nick)
	}
	sort.Strings(members)
	return members
}

// modesString renders the channel modes as +nt style.
func (ch *Channel) modesString() string {
	s := "+"
	for _, mode := range []byte{'n', 't'} {
		if ch.hasMode(mode) {
			s += string(mode)
		}
	}
	return s
}
