package main

import "github.com/LiaLopezRosales/ircd/irc"

// The fan-out router resolves a logical destination (a channel, a
// nickname, the operator set) to connection endpoints and queues the same
// message to each. Resolution and queueing happen under the store mutex;
// the actual socket writes are done by each connection's writer goroutine,
// so per-connection order is preserved and one stuck endpoint cannot block
// the others. A full queue flags the endpoint for teardown without
// aborting delivery to the rest.
//
// Every function here must be called with the store mutex held.

// channelMembers resolves a channel to the registered connection
// endpoints of its members, excluding except (may be nil).
func (s *Server) channelMembers(channel *Channel, except *Client) []*Client {
	members := make([]*Client, 0, len(channel.Members))

	for _, nick := range channel.sortedMembers() {
		member, exists := s.Nicks[nick]
		if !exists || member.State != StateRegistered {
			continue
		}
		if except != nil && member.ID == except.ID {
			continue
		}
		members = append(members, member)
	}

	return members
}

// broadcastToChannel queues a message to every registered member of the
// channel, excluding except (may be nil).
func (s *Server) broadcastToChannel(channel *Channel, except *Client,
	m irc.Message) {
	for _, member := range s.channelMembers(channel, except) {
		member.maybeQueueMessage(m)
	}
}

// messageNick queues a message to the client holding the nick. Reports
// whether the nick resolved to a registered client.
func (s *Server) messageNick(nick string, m irc.Message) bool {
	target, exists := s.Nicks[canonicalizeNick(nick)]
	if !exists || target.State != StateRegistered {
		return false
	}

	target.maybeQueueMessage(m)
	return true
}

// broadcastToOpers queues a message to every client with the operator
// user mode.
func (s *Server) broadcastToOpers(m irc.Message) {
	for _, client := range s.Nicks {
		if client.State != StateRegistered || !client.isOperator() {
			continue
		}
		client.maybeQueueMessage(m)
	}
}
