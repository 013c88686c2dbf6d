package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/LiaLopezRosales/ircd/irc"
)

// commandDef describes one protocol command: how many parameters it
// needs, whether the client must have completed registration, and the
// handler to run.
type commandDef struct {
	minParams        int
	mustBeRegistered bool
	handler          func(*Server, *Client, irc.Message)
}

// commands is the dispatch table. Commands are keyed by their
// upper-cased name; the decoder upper-cases on the way in.
//
// Commands that need special arity replies (NICK's 431, PING's 409,
// PRIVMSG's 411/412) declare zero minParams and check inside their
// handler. NOTICE never generates replies, so it gates itself too.
var commands = map[string]commandDef{
	"PASS": {1, false, (*Server).passCommand},
	"NICK": {0, false, (*Server).nickCommand},
	"USER": {4, false, (*Server).userCommand},
	"QUIT": {0, false, (*Server).quitCommand},
	"PING": {0, false, (*Server).pingCommand},
	"PONG": {1, false, (*Server).pongCommand},

	"MODE":   {1, true, (*Server).modeCommand},
	"OPER":   {2, true, (*Server).operCommand},
	"AWAY":   {0, true, (*Server).awayCommand},
	"MOTD":   {0, true, (*Server).motdCommand},
	"LUSERS": {0, true, (*Server).lusersCommand},

	"JOIN":    {1, true, (*Server).joinCommand},
	"PART":    {1, true, (*Server).partCommand},
	"TOPIC":   {1, true, (*Server).topicCommand},
	"PRIVMSG": {0, true, (*Server).privmsgCommand},
	"NOTICE":  {0, false, (*Server).noticeCommand},
	"INVITE":  {2, true, (*Server).inviteCommand},
	"KICK":    {2, true, (*Server).kickCommand},
	"NAMES":   {0, true, (*Server).namesCommand},
	"LIST":    {0, true, (*Server).listCommand},
	"WHO":     {0, true, (*Server).whoCommand},
	"WHOIS":   {1, true, (*Server).whoisCommand},
	"WHOWAS":  {0, true, (*Server).whowasCommand},

	"VERSION":  {0, true, (*Server).versionCommand},
	"STATS":    {0, true, (*Server).statsCommand},
	"LINKS":    {0, true, (*Server).linksCommand},
	"TIME":     {0, true, (*Server).timeCommand},
	"ADMIN":    {0, true, (*Server).adminCommand},
	"INFO":     {0, true, (*Server).infoCommand},
	"USERHOST": {1, true, (*Server).userhostCommand},
	"ISON":     {1, true, (*Server).isonCommand},
	"WALLOPS":  {1, true, (*Server).wallopsCommand},
	"KILL":     {2, true, (*Server).killCommand},
	"DIE":      {0, true, (*Server).dieCommand},
	"REHASH":   {0, true, (*Server).rehashCommand},
	"RESTART":  {0, true, (*Server).restartCommand},
	"CONNECT":  {1, true, (*Server).connectCommand},
	"SQUIT":    {1, true, (*Server).squitCommand},
	"CAP":      {1, false, (*Server).capCommand},
	"SERVICE":  {0, false, (*Server).serviceCommand},
	"SERVLIST": {0, true, (*Server).servlistCommand},
	"SQUERY":   {1, true, (*Server).squeryCommand},
	"SUMMON":   {0, true, (*Server).summonCommand},
	"USERS":    {0, true, (*Server).usersCommand},
	"ERROR":    {0, false, (*Server).errorCommand},
}

// paramCount gives the number of logical parameters, counting the
// trailing parameter when present.
func paramCount(m irc.Message) int {
	n := len(m.Params)
	if m.HasTrailing {
		n++
	}
	return n
}

// messageParam fetches the i-th logical parameter. The trailing
// parameter, when present, is the last one.
func messageParam(m irc.Message, i int) string {
	if i < len(m.Params) {
		return m.Params[i]
	}
	if m.HasTrailing && i == len(m.Params) {
		return m.Trailing
	}
	return ""
}

// handleMessage dispatches one decoded message from a client.
//
// The whole of dispatch and handling runs under the store mutex.
// Handlers only mutate the registries and queue replies to write
// queues; no socket I/O happens with the mutex held.
func (s *Server) handleMessage(c *Client, m irc.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c.destroyed {
		return
	}

	c.LastActivityTime = time.Now()

	def, exists := commands[m.Command]
	if !exists {
		c.numeric("421", "Unknown command", m.Command)
		return
	}

	if def.mustBeRegistered && c.State != StateRegistered {
		c.numeric("451", "You have not registered")
		return
	}

	if paramCount(m) < def.minParams {
		c.numeric("461", "Not enough parameters", m.Command)
		return
	}

	def.handler(s, c, m)
}

// passCommand records a connection password. We don't use it to
// authenticate; we remember it for the record.
func (s *Server) passCommand(c *Client, m irc.Message) {
	if c.State == StateRegistered {
		c.numeric("462", "Unauthorized command (already registered)")
		return
	}

	c.Pass = messageParam(m, 0)
}

func (s *Server) nickCommand(c *Client, m irc.Message) {
	if paramCount(m) == 0 {
		c.numeric("431", "No nickname given")
		return
	}

	nick := messageParam(m, 0)

	if !isValidNick(s.Config.MaxNickLength, nick) {
		c.numeric("432", "Erroneous nickname", nick)
		return
	}

	canon := canonicalizeNick(nick)

	if holder, exists := s.Nicks[canon]; exists && holder.ID != c.ID {
		c.numeric("433", "Nickname is already in use", nick)
		return
	}

	switch c.State {
	case StateConnected:
		c.DisplayNick = nick
		s.Nicks[canon] = c
		c.State = StateNickSet

		// USER may have arrived first.
		if len(c.PreRegUser) > 0 {
			c.User = c.PreRegUser
			c.RealName = c.PreRegRealName
			s.completeRegistration(c)
		}

	case StateNickSet:
		delete(s.Nicks, canonicalizeNick(c.DisplayNick))
		c.DisplayNick = nick
		s.Nicks[canon] = c

	case StateRegistered:
		if nick == c.DisplayNick {
			return
		}
		s.renameClient(c, nick)
	}
}

// renameClient changes a registered client's nick: the old identity is
// archived, the nick registry and every channel membership re-keyed,
// and everyone who can see the client told once, all in one critical
// section.
//
// Caller must hold the store mutex.
func (s *Server) renameClient(c *Client, nick string) {
	// Archive the old identity; WHOWAS answers for it from now on.
	s.pushWhowas(c)

	oldUhost := c.nickUhost()
	oldCanon := canonicalizeNick(c.DisplayNick)
	newCanon := canonicalizeNick(nick)

	// Channels hold members by canonical nick, so each one the client is
	// on must follow the rename, operator status included.
	for channelName := range c.Channels {
		channel, exists := s.Channels[channelName]
		if !exists {
			continue
		}

		delete(channel.Members, oldCanon)
		channel.Members[newCanon] = struct{}{}

		if _, wasOp := channel.Ops[oldCanon]; wasOp {
			delete(channel.Ops, oldCanon)
			channel.Ops[newCanon] = struct{}{}
		}
	}

	delete(s.Nicks, oldCanon)
	c.DisplayNick = nick
	s.Nicks[newCanon] = c

	nickMessage := irc.Message{
		Prefix:      oldUhost,
		Command:     "NICK",
		Trailing:    nick,
		HasTrailing: true,
	}

	// The client itself, then everyone sharing a channel, once each.
	c.maybeQueueMessage(nickMessage)
	toldClients := map[uint64]struct{}{c.ID: {}}
	for channelName := range c.Channels {
		channel, exists := s.Channels[channelName]
		if !exists {
			continue
		}
		for _, member := range s.channelMembers(channel, nil) {
			if _, told := toldClients[member.ID]; told {
				continue
			}
			member.maybeQueueMessage(nickMessage)
			toldClients[member.ID] = struct{}{}
		}
	}
}

func (s *Server) userCommand(c *Client, m irc.Message) {
	if c.State == StateRegistered {
		c.numeric("462", "Unauthorized command (already registered)")
		return
	}

	user := messageParam(m, 0)
	realName := messageParam(m, 3)

	if !isValidUser(s.Config.MaxNickLength, user) ||
		!isValidRealName(realName) {
		c.numeric("461", "Not enough parameters", m.Command)
		return
	}

	if c.State == StateConnected {
		// No nick yet. Hold on to it until NICK arrives.
		c.PreRegUser = user
		c.PreRegRealName = realName
		return
	}

	c.User = user
	c.RealName = realName
	s.completeRegistration(c)
}

// completeRegistration moves a client to the registered state and sends
// the welcome burst: 001 through 004, then LUSERS and the MOTD.
//
// Caller must hold the store mutex.
func (s *Server) completeRegistration(c *Client) {
	c.State = StateRegistered

	// Liveness counts from here.
	c.LastPongTime = time.Now()

	c.numeric("001", fmt.Sprintf("Bienvenido al servidor %s", c.nickUhost()))
	c.numeric("002", fmt.Sprintf("Your host is %s, running version %s",
		s.Config.ServerName, s.Config.Version))
	c.numeric("003", fmt.Sprintf("This server was created %s",
		s.Config.CreatedDate))
	c.numericParams("004", s.Config.ServerName, s.Config.Version, "io", "nt")

	s.lusersReply(c)
	s.motdReply(c)
}

func (s *Server) quitCommand(c *Client, m irc.Message) {
	reason := "Quit"
	if paramCount(m) > 0 {
		reason = "Quit: " + messageParam(m, 0)
	}

	s.quitClientLocked(c, reason)
}

func (s *Server) pingCommand(c *Client, m irc.Message) {
	if paramCount(m) == 0 {
		c.numeric("409", "No origin specified")
		return
	}

	c.maybeQueueMessage(irc.Message{
		Prefix:      s.Config.ServerName,
		Command:     "PONG",
		Params:      []string{s.Config.ServerName},
		Trailing:    messageParam(m, 0),
		HasTrailing: true,
	})
}

// pongCommand matches a PONG against the outstanding token. A match
// makes the client responsive again; anything else is ignored.
func (s *Server) pongCommand(c *Client, m irc.Message) {
	token := messageParam(m, paramCount(m)-1)

	if len(c.PingToken) == 0 || token != c.PingToken {
		return
	}

	c.PingToken = ""
	c.LastPongTime = time.Now()
}

func (s *Server) modeCommand(c *Client, m irc.Message) {
	target := messageParam(m, 0)

	if strings.HasPrefix(target, "#") {
		s.channelModeCommand(c, m, target)
		return
	}

	s.userModeCommand(c, m, target)
}

func (s *Server) userModeCommand(c *Client, m irc.Message, target string) {
	if canonicalizeNick(target) != canonicalizeNick(c.DisplayNick) {
		c.numeric("502", "Cannot change mode for other users")
		return
	}

	if paramCount(m) == 1 {
		c.numericParams("221", c.modesString())
		return
	}

	modes := messageParam(m, 1)
	granting := true
	for i := 0; i < len(modes); i++ {
		switch modes[i] {
		case '+':
			granting = true
		case '-':
			granting = false
		case 'i':
			if granting {
				c.Modes['i'] = struct{}{}
			} else {
				delete(c.Modes, 'i')
			}
		case 'o':
			// Operator comes only from OPER. Clients may drop it.
			if !granting {
				delete(c.Modes, 'o')
			}
		default:
			c.numeric("501", "Unknown MODE flag")
		}
	}

	c.numericParams("221", c.modesString())
}

func (s *Server) channelModeCommand(c *Client, m irc.Message,
	target string) {
	channel, exists := s.Channels[canonicalizeChannel(target)]
	if !exists {
		c.numeric("403", "No such channel", target)
		return
	}

	if paramCount(m) == 1 {
		c.numericParams("324", channel.Name, channel.modesString())
		return
	}

	if !c.onChannel(target) {
		c.numeric("442", "You're not on that channel", channel.Name)
		return
	}

	if !channel.hasOps(c.DisplayNick) {
		c.numeric("482", "You're not channel operator", channel.Name)
		return
	}

	modes := messageParam(m, 1)
	argIndex := 2

	// Applied changes accumulate so the broadcast shows exactly what
	// took effect.
	var applied []byte
	var appliedArgs []string
	granting := true
	lastAction := byte(0)

	appendMode := func(action, mode byte) {
		if lastAction != action {
			applied = append(applied, action)
			lastAction = action
		}
		applied = append(applied, mode)
	}

	for i := 0; i < len(modes); i++ {
		switch modes[i] {
		case '+':
			granting = true
		case '-':
			granting = false
		case 'n', 't':
			mode := modes[i]
			if granting {
				channel.Modes[mode] = struct{}{}
				appendMode('+', mode)
			} else {
				delete(channel.Modes, mode)
				appendMode('-', mode)
			}
		case 'o':
			if argIndex >= paramCount(m) {
				c.numeric("461", "Not enough parameters", m.Command)
				continue
			}
			nick := messageParam(m, argIndex)
			argIndex++

			if !channel.hasMember(nick) {
				c.numeric("441", "They aren't on that channel", nick,
					channel.Name)
				continue
			}

			if granting {
				channel.grantOps(nick)
				appendMode('+', 'o')
			} else {
				channel.removeOps(nick)
				appendMode('-', 'o')
			}
			appliedArgs = append(appliedArgs, nick)
		default:
			c.numeric("472", "is unknown mode char to me",
				string(modes[i]))
		}
	}

	if len(applied) == 0 {
		return
	}

	// A non-empty channel keeps a non-empty operator set. Demoting the
	// last operator promotes the first member, same as when one leaves.
	if len(channel.Ops) == 0 {
		channel.grantOps(channel.sortedMembers()[0])
	}

	params := append([]string{channel.Name, string(applied)},
		appliedArgs...)
	s.broadcastToChannel(channel, nil, irc.Message{
		Prefix:  c.nickUhost(),
		Command: "MODE",
		Params:  params,
	})
}

func (s *Server) operCommand(c *Client, m irc.Message) {
	name := messageParam(m, 0)
	password := messageParam(m, 1)

	expected, exists := s.Config.Opers[name]
	if !exists || password != expected {
		c.numeric("464", "Password incorrect")
		return
	}

	if c.isOperator() {
		c.numeric("381", "You are now an IRC operator")
		return
	}

	c.Modes['o'] = struct{}{}

	c.maybeQueueMessage(irc.Message{
		Prefix:  s.Config.ServerName,
		Command: "MODE",
		Params:  []string{c.DisplayNick, "+o"},
	})
	c.numeric("381", "You are now an IRC operator")
}

func (s *Server) awayCommand(c *Client, m irc.Message) {
	text := ""
	if paramCount(m) > 0 {
		text = messageParam(m, 0)
	}

	if len(text) > 0 {
		c.AwayMessage = text
		c.numeric("306", "You have been marked as being away")
		return
	}

	c.AwayMessage = ""
	c.numeric("305", "You are no longer marked as being away")
}

func (s *Server) motdCommand(c *Client, m irc.Message) {
	s.motdReply(c)
}

// motdReply sends the MOTD burst. Caller must hold the store mutex.
func (s *Server) motdReply(c *Client) {
	c.numeric("375", fmt.Sprintf("- %s Message of the day - ",
		s.Config.ServerName))
	c.numeric("372", fmt.Sprintf("- %s", s.Config.MOTD))
	c.numeric("376", "End of /MOTD command")
}

func (s *Server) lusersCommand(c *Client, m irc.Message) {
	s.lusersReply(c)
}

// lusersReply sends the user counts. Caller must hold the store mutex.
func (s *Server) lusersReply(c *Client) {
	registered := 0
	for _, client := range s.Clients {
		if client.State == StateRegistered {
			registered++
		}
	}

	c.numeric("251", fmt.Sprintf(
		"There are %d users and 0 services on 1 servers", registered))
	c.numeric("254", "channels formed", strconv.Itoa(len(s.Channels)))
	c.numeric("255", fmt.Sprintf("I have %d clients and 0 servers",
		len(s.Clients)))
}
