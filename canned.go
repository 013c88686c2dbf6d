package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/LiaLopezRosales/ircd/irc"
)

// The informational and operator command handlers. Most of these have a
// fixed, single server's worth of information to report; the
// interesting ones are WALLOPS, KILL, and DIE.
//
// Everything here runs under the store mutex, via the dispatcher.

func (s *Server) versionCommand(c *Client, m irc.Message) {
	c.numeric("351", "Single server implementation", s.Config.Version,
		s.Config.ServerName)
}

func (s *Server) statsCommand(c *Client, m irc.Message) {
	query := "*"
	if paramCount(m) > 0 {
		query = messageParam(m, 0)
	}

	c.numeric("211", fmt.Sprintf("%d clients connected", len(s.Clients)))
	c.numeric("219", "End of STATS report", query)
}

func (s *Server) linksCommand(c *Client, m irc.Message) {
	c.numeric("364", s.Config.ServerInfo, s.Config.ServerName,
		s.Config.ServerName)
	c.numeric("365", "End of LINKS list", "*")
}

func (s *Server) timeCommand(c *Client, m irc.Message) {
	c.numeric("391", time.Now().Format("Mon Jan 2 15:04:05 2006"),
		s.Config.ServerName)
}

func (s *Server) adminCommand(c *Client, m irc.Message) {
	c.numeric("256", "Administrative info", s.Config.ServerName)
	c.numeric("257", s.Config.ServerInfo)
	c.numeric("258", s.Config.ServerName)
	c.numeric("259", "No admin contact configured")
}

func (s *Server) infoCommand(c *Client, m irc.Message) {
	c.numeric("371", fmt.Sprintf("%s %s", s.Config.ServerName,
		s.Config.Version))
	c.numeric("371", s.Config.ServerInfo)
	c.numeric("374", "End of INFO list")
}

// userhostCommand answers with nick=+user@host for each nick we know,
// up to the RFC's five.
func (s *Server) userhostCommand(c *Client, m irc.Message) {
	var replies []string

	count := paramCount(m)
	if count > 5 {
		count = 5
	}

	for i := 0; i < count; i++ {
		nick := messageParam(m, i)
		target, exists := s.Nicks[canonicalizeNick(nick)]
		if !exists || target.State != StateRegistered {
			continue
		}

		reply := fmt.Sprintf("%s=+%s@%s", target.DisplayNick,
			target.User, target.Host)
		if len(target.AwayMessage) > 0 {
			reply = fmt.Sprintf("%s=-%s@%s", target.DisplayNick,
				target.User, target.Host)
		}
		replies = append(replies, reply)
	}

	c.numeric("302", strings.Join(replies, " "))
}

func (s *Server) isonCommand(c *Client, m irc.Message) {
	var online []string

	for i := 0; i < paramCount(m); i++ {
		for _, nick := range strings.Fields(messageParam(m, i)) {
			target, exists := s.Nicks[canonicalizeNick(nick)]
			if exists && target.State == StateRegistered {
				online = append(online, target.DisplayNick)
			}
		}
	}

	c.numeric("303", strings.Join(online, " "))
}

func (s *Server) wallopsCommand(c *Client, m irc.Message) {
	if !c.isOperator() {
		c.numeric("481", "Permission Denied- You're not an IRC operator")
		return
	}

	s.broadcastToOpers(irc.Message{
		Prefix:      c.nickUhost(),
		Command:     "WALLOPS",
		Trailing:    messageParam(m, 0),
		HasTrailing: true,
	})
}

// killCommand forcibly disconnects another client. The victim goes
// through the standard teardown, so its nick frees, its channels hear a
// QUIT, and WHOWAS remembers it.
func (s *Server) killCommand(c *Client, m irc.Message) {
	if !c.isOperator() {
		c.numeric("481", "Permission Denied- You're not an IRC operator")
		return
	}

	nick := messageParam(m, 0)

	target, exists := s.Nicks[canonicalizeNick(nick)]
	if !exists {
		c.numeric("401", "No such nick/channel", nick)
		return
	}

	s.quitClientLocked(target, fmt.Sprintf("Killed (%s (%s))",
		c.DisplayNick, messageParam(m, 1)))
}

// dieCommand shuts the whole server down. Shutdown tears every client
// down itself, so it runs outside this critical section.
func (s *Server) dieCommand(c *Client, m irc.Message) {
	if !c.isOperator() {
		c.numeric("481", "Permission Denied- You're not an IRC operator")
		return
	}

	s.WG.Go(s.shutdown)
}

func (s *Server) rehashCommand(c *Client, m irc.Message) {
	if !c.isOperator() {
		c.numeric("481", "Permission Denied- You're not an IRC operator")
		return
	}

	c.numeric("382", "Rehashing", "ircd.conf")
}

func (s *Server) restartCommand(c *Client, m irc.Message) {
	if !c.isOperator() {
		c.numeric("481", "Permission Denied- You're not an IRC operator")
		return
	}

	c.serverMessage("NOTICE", "RESTART is not supported on this server",
		c.DisplayNick)
}

func (s *Server) connectCommand(c *Client, m irc.Message) {
	if !c.isOperator() {
		c.numeric("481", "Permission Denied- You're not an IRC operator")
		return
	}

	// We link to no one.
	c.numeric("402", "No such server", messageParam(m, 0))
}

func (s *Server) squitCommand(c *Client, m irc.Message) {
	if !c.isOperator() {
		c.numeric("481", "Permission Denied- You're not an IRC operator")
		return
	}

	c.numeric("402", "No such server", messageParam(m, 0))
}

// capCommand exists so capability negotiating clients can finish their
// handshake. We advertise nothing.
func (s *Server) capCommand(c *Client, m irc.Message) {
	subcommand := strings.ToUpper(messageParam(m, 0))
	if subcommand != "LS" && subcommand != "LIST" {
		return
	}

	nick := "*"
	if len(c.DisplayNick) > 0 {
		nick = c.DisplayNick
	}

	c.maybeQueueMessage(irc.Message{
		Prefix:      s.Config.ServerName,
		Command:     "CAP",
		Params:      []string{nick, subcommand},
		Trailing:    "",
		HasTrailing: true,
	})
}

func (s *Server) serviceCommand(c *Client, m irc.Message) {
	c.numeric("462", "Unauthorized command (already registered)")
}

func (s *Server) servlistCommand(c *Client, m irc.Message) {
	c.numeric("235", "End of service listing", "*", "*")
}

func (s *Server) squeryCommand(c *Client, m irc.Message) {
	c.numeric("401", "No such nick/channel", messageParam(m, 0))
}

func (s *Server) summonCommand(c *Client, m irc.Message) {
	c.numeric("445", "SUMMON has been disabled")
}

func (s *Server) usersCommand(c *Client, m irc.Message) {
	c.numeric("446", "USERS has been disabled")
}

// errorCommand ignores ERROR from clients. It's a server to client
// message.
func (s *Server) errorCommand(c *Client, m irc.Message) {}
