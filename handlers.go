package main

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/LiaLopezRosales/ircd/irc"
)

// Channel and query command handlers. Everything here runs under the
// store mutex, via the dispatcher.

func (s *Server) joinCommand(c *Client, m irc.Message) {
	// JOIN accepts a comma separated list of channels.
	for _, name := range strings.Split(messageParam(m, 0), ",") {
		s.joinChannel(c, name)
	}
}

func (s *Server) joinChannel(c *Client, name string) {
	if !isValidChannel(name) {
		c.numeric("403", "No such channel", name)
		return
	}

	// Joining a channel we're already on is a no-op.
	if c.onChannel(name) {
		return
	}

	canon := canonicalizeChannel(name)

	channel, exists := s.Channels[canon]
	if !exists {
		// Creator gets ops.
		channel = newChannel(name, c.DisplayNick)
		s.Channels[canon] = channel
	} else {
		channel.Members[canonicalizeNick(c.DisplayNick)] = struct{}{}
	}

	c.Channels[canon] = struct{}{}

	joinMessage := irc.Message{
		Prefix:  c.nickUhost(),
		Command: "JOIN",
		Params:  []string{channel.Name},
	}

	// The joiner hears its own JOIN first, then the membership burst.
	c.maybeQueueMessage(joinMessage)
	s.broadcastToChannel(channel, c, joinMessage)

	s.namesReply(c, channel)

	if len(channel.Topic) > 0 {
		c.numeric("332", channel.Topic, channel.Name)
	} else {
		c.numeric("331", "No topic is set", channel.Name)
	}
}

// namesReply sends the 353/366 membership burst for a channel. Ops are
// marked with @; nicks go out in their display casing.
//
// Caller must hold the store mutex.
func (s *Server) namesReply(c *Client, channel *Channel) {
	names := make([]string, 0, len(channel.Members))
	for _, canon := range channel.sortedMembers() {
		member, exists := s.Nicks[canon]
		if !exists {
			continue
		}
		name := member.DisplayNick
		if channel.hasOps(name) {
			name = "@" + name
		}
		names = append(names, name)
	}

	c.numeric("353", strings.Join(names, " "), "=", channel.Name)
	c.numeric("366", "End of /NAMES list", channel.Name)
}

func (s *Server) partCommand(c *Client, m irc.Message) {
	reason := ""
	if paramCount(m) > 1 {
		reason = messageParam(m, 1)
	}

	for _, name := range strings.Split(messageParam(m, 0), ",") {
		s.partChannel(c, name, reason)
	}
}

func (s *Server) partChannel(c *Client, name, reason string) {
	channel, exists := s.Channels[canonicalizeChannel(name)]
	if !exists {
		c.numeric("403", "No such channel", name)
		return
	}

	if !c.onChannel(name) {
		c.numeric("442", "You're not on that channel", channel.Name)
		return
	}

	partMessage := irc.Message{
		Prefix:  c.nickUhost(),
		Command: "PART",
		Params:  []string{channel.Name},
	}
	if len(reason) > 0 {
		partMessage.Trailing = reason
		partMessage.HasTrailing = true
	}

	// Everyone on the channel hears it, the leaver included.
	c.maybeQueueMessage(partMessage)
	s.broadcastToChannel(channel, c, partMessage)

	delete(c.Channels, canonicalizeChannel(name))
	s.removeFromChannel(channel, c.DisplayNick)
}

func (s *Server) topicCommand(c *Client, m irc.Message) {
	name := messageParam(m, 0)

	channel, exists := s.Channels[canonicalizeChannel(name)]
	if !exists {
		c.numeric("403", "No such channel", name)
		return
	}

	if !c.onChannel(name) {
		c.numeric("442", "You're not on that channel", channel.Name)
		return
	}

	// Query.
	if paramCount(m) == 1 {
		if len(channel.Topic) > 0 {
			c.numeric("332", channel.Topic, channel.Name)
		} else {
			c.numeric("331", "No topic is set", channel.Name)
		}
		return
	}

	// Change. With +t set only operators may.
	if channel.hasMode('t') && !channel.hasOps(c.DisplayNick) {
		c.numeric("482", "You're not channel operator", channel.Name)
		return
	}

	topic := messageParam(m, 1)
	if len(topic) > maxTopicLength {
		topic = topic[:maxTopicLength]
	}

	channel.Topic = topic

	topicMessage := irc.Message{
		Prefix:      c.nickUhost(),
		Command:     "TOPIC",
		Params:      []string{channel.Name},
		Trailing:    topic,
		HasTrailing: true,
	}
	c.maybeQueueMessage(topicMessage)
	s.broadcastToChannel(channel, c, topicMessage)
}

func (s *Server) privmsgCommand(c *Client, m irc.Message) {
	if paramCount(m) == 0 {
		c.numeric("411", "No recipient given (PRIVMSG)")
		return
	}
	if paramCount(m) == 1 {
		c.numeric("412", "No text to send")
		return
	}

	s.messageCommand(c, m, "PRIVMSG")
}

// noticeCommand is PRIVMSG that never generates anything in response.
// Not even the registration gate replies; an unregistered NOTICE just
// vanishes.
func (s *Server) noticeCommand(c *Client, m irc.Message) {
	if c.State != StateRegistered || paramCount(m) < 2 {
		return
	}

	s.messageCommand(c, m, "NOTICE")
}

func (s *Server) messageCommand(c *Client, m irc.Message,
	command string) {
	target := messageParam(m, 0)
	text := messageParam(m, 1)
	silent := command == "NOTICE"

	message := irc.Message{
		Prefix:      c.nickUhost(),
		Command:     command,
		Params:      []string{target},
		Trailing:    text,
		HasTrailing: true,
	}

	if strings.HasPrefix(target, "#") {
		channel, exists := s.Channels[canonicalizeChannel(target)]
		if !exists {
			if !silent {
				c.numeric("403", "No such channel", target)
			}
			return
		}

		// +n keeps outside senders out.
		if channel.hasMode('n') && !c.onChannel(target) {
			if !silent {
				c.numeric("404", "Cannot send to channel", channel.Name)
			}
			return
		}

		message.Params = []string{channel.Name}
		s.broadcastToChannel(channel, c, message)
		return
	}

	targetClient, exists := s.Nicks[canonicalizeNick(target)]
	if !exists || targetClient.State != StateRegistered {
		if !silent {
			c.numeric("401", "No such nick/channel", target)
		}
		return
	}

	message.Params = []string{targetClient.DisplayNick}
	targetClient.maybeQueueMessage(message)

	if !silent && len(targetClient.AwayMessage) > 0 {
		c.numeric("301", targetClient.AwayMessage,
			targetClient.DisplayNick)
	}
}

func (s *Server) inviteCommand(c *Client, m irc.Message) {
	nick := messageParam(m, 0)
	name := messageParam(m, 1)

	channel, exists := s.Channels[canonicalizeChannel(name)]
	if !exists {
		c.numeric("403", "No such channel", name)
		return
	}

	if !c.onChannel(name) {
		c.numeric("442", "You're not on that channel", channel.Name)
		return
	}

	target, exists := s.Nicks[canonicalizeNick(nick)]
	if !exists || target.State != StateRegistered {
		c.numeric("401", "No such nick/channel", nick)
		return
	}

	if channel.hasMember(target.DisplayNick) {
		c.numeric("443", "is already on channel", target.DisplayNick,
			channel.Name)
		return
	}

	c.numericParams("341", target.DisplayNick, channel.Name)

	target.maybeQueueMessage(irc.Message{
		Prefix:      c.nickUhost(),
		Command:     "INVITE",
		Params:      []string{target.DisplayNick},
		Trailing:    channel.Name,
		HasTrailing: true,
	})
}

func (s *Server) kickCommand(c *Client, m irc.Message) {
	name := messageParam(m, 0)
	nick := messageParam(m, 1)

	channel, exists := s.Channels[canonicalizeChannel(name)]
	if !exists {
		c.numeric("403", "No such channel", name)
		return
	}

	if !c.onChannel(name) {
		c.numeric("442", "You're not on that channel", channel.Name)
		return
	}

	if !channel.hasOps(c.DisplayNick) {
		c.numeric("482", "You're not channel operator", channel.Name)
		return
	}

	if !channel.hasMember(nick) {
		c.numeric("441", "They aren't on that channel", nick,
			channel.Name)
		return
	}

	target := s.Nicks[canonicalizeNick(nick)]

	reason := c.DisplayNick
	if paramCount(m) > 2 {
		reason = messageParam(m, 2)
	}

	// The victim hears the KICK too, before it stops being a member.
	s.broadcastToChannel(channel, nil, irc.Message{
		Prefix:      c.nickUhost(),
		Command:     "KICK",
		Params:      []string{channel.Name, target.DisplayNick},
		Trailing:    reason,
		HasTrailing: true,
	})

	delete(target.Channels, canonicalizeChannel(name))
	s.removeFromChannel(channel, target.DisplayNick)
}

func (s *Server) namesCommand(c *Client, m irc.Message) {
	if paramCount(m) == 0 {
		c.numeric("366", "End of /NAMES list", "*")
		return
	}

	for _, name := range strings.Split(messageParam(m, 0), ",") {
		channel, exists := s.Channels[canonicalizeChannel(name)]
		if !exists {
			c.numeric("366", "End of /NAMES list", name)
			continue
		}
		s.namesReply(c, channel)
	}
}

func (s *Server) listCommand(c *Client, m irc.Message) {
	names := make([]string, 0, len(s.Channels))
	for canon := range s.Channels {
		names = append(names, canon)
	}
	sort.Strings(names)

	for _, canon := range names {
		channel := s.Channels[canon]
		c.numeric("322", channel.Topic, channel.Name,
			fmt.Sprintf("%d", s.visibleMemberCount(c, channel)))
	}

	c.numeric("323", "End of /LIST")
}

// visibleMemberCount counts the members of a channel the client can
// see: everyone when it's a member itself, otherwise only members
// without the invisible mode.
//
// Caller must hold the store mutex.
func (s *Server) visibleMemberCount(c *Client, channel *Channel) int {
	isMember := channel.hasMember(c.DisplayNick)

	count := 0
	for _, member := range s.channelMembers(channel, nil) {
		if member.isInvisible() && !isMember && member.ID != c.ID {
			continue
		}
		count++
	}
	return count
}

func (s *Server) whoCommand(c *Client, m irc.Message) {
	mask := "*"
	if paramCount(m) > 0 {
		mask = messageParam(m, 0)
	}

	if strings.HasPrefix(mask, "#") {
		channel, exists := s.Channels[canonicalizeChannel(mask)]
		if exists {
			requesterIsMember := c.onChannel(mask)
			for _, member := range s.channelMembers(channel, nil) {
				// Invisible members only show to fellow members.
				if member.isInvisible() && !requesterIsMember &&
					member.ID != c.ID {
					continue
				}
				s.whoReply(c, member, channel)
			}
		}

		c.numeric("315", "End of /WHO list", mask)
		return
	}

	// No channel given: every visible user.
	nicks := make([]string, 0, len(s.Nicks))
	for canon := range s.Nicks {
		nicks = append(nicks, canon)
	}
	sort.Strings(nicks)

	for _, canon := range nicks {
		client := s.Nicks[canon]
		if client.State != StateRegistered {
			continue
		}
		if client.isInvisible() && client.ID != c.ID {
			continue
		}
		s.whoReply(c, client, nil)
	}

	c.numeric("315", "End of /WHO list", mask)
}

// whoReply sends a single 352 line. channel may be nil for a serverwide
// WHO.
func (s *Server) whoReply(c *Client, target *Client, channel *Channel) {
	channelName := "*"
	if channel != nil {
		channelName = channel.Name
	}

	flags := "H"
	if len(target.AwayMessage) > 0 {
		flags = "G"
	}
	if channel != nil && channel.hasOps(target.DisplayNick) {
		flags += "@"
	}

	c.numeric("352", fmt.Sprintf("0 %s", target.RealName), channelName,
		target.User, target.Host, s.Config.ServerName,
		target.DisplayNick, flags)
}

func (s *Server) whoisCommand(c *Client, m irc.Message) {
	nick := messageParam(m, 0)

	target, exists := s.Nicks[canonicalizeNick(nick)]
	if !exists || target.State != StateRegistered {
		c.numeric("401", "No such nick/channel", nick)
		c.numeric("318", "End of /WHOIS list", nick)
		return
	}

	c.numeric("311", target.RealName, target.DisplayNick, target.User,
		target.Host, "*")

	if len(target.AwayMessage) > 0 {
		c.numeric("301", target.AwayMessage, target.DisplayNick)
	}

	c.numeric("312", s.Config.ServerInfo, target.DisplayNick,
		s.Config.ServerName)

	idle := int(time.Since(target.LastActivityTime).Seconds())
	if idle < 0 {
		idle = 0
	}
	c.numeric("317", "seconds idle", target.DisplayNick,
		fmt.Sprintf("%d", idle))

	c.numeric("318", "End of /WHOIS list", target.DisplayNick)
}

func (s *Server) whowasCommand(c *Client, m irc.Message) {
	if paramCount(m) == 0 {
		c.numeric("431", "No nickname given")
		return
	}

	nick := messageParam(m, 0)

	entries := s.whowasEntries(nick)
	if len(entries) == 0 {
		c.numeric("406", "There was no such nickname", nick)
		c.numeric("369", "End of WHOWAS", nick)
		return
	}

	// Newest first.
	for _, entry := range entries {
		c.numeric("314", entry.RealName, entry.Nick, entry.User,
			entry.Host, "*")
	}

	c.numeric("369", "End of WHOWAS", nick)
}
