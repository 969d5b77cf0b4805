package irc

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelek-/irccatx/internal/storage"
)

// handleCommand processes a private "!command" sent to the bot
func (c *Client) handleCommand(nick, hostmask, message string) {
	fields := strings.Fields(message)
	cmd := strings.ToLower(fields[0])

	switch cmd {
	case "!help":
		c.cmdHelp(nick, hostmask, message)
	case "!version":
		c.cmdVersion(nick, hostmask, message)
	case "!login":
		c.cmdLogin(nick, hostmask, fields)
	case "!logout":
		c.cmdLogout(nick, hostmask)
	case "!channels":
		c.cmdChannels(nick, hostmask, message)
	case "!keys":
		c.cmdKeys(nick, hostmask, message)
	case "!setkey":
		c.cmdSetKey(nick, hostmask, fields)
	case "!delkey":
		c.cmdDelKey(nick, hostmask, fields)
	case "!shutdown":
		c.cmdShutdown(nick, hostmask, message)
	}
}

func (c *Client) reply(nick, text string) {
	if err := c.out.Privmsg(nick, text); err != nil {
		c.log.Warn("Reply failed", "nick", nick, "error", err)
	}
}

func (c *Client) isAdmin(nick string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.admins[fold(nick)]
}

func (c *Client) endAdminSession(nick string) {
	c.mu.Lock()
	delete(c.admins, fold(nick))
	c.mu.Unlock()
}

func (c *Client) cmdHelp(nick, hostmask, message string) {
	c.logCommand(hostmask, message)

	c.reply(nick, "Available commands:")
	c.reply(nick, "!channels - lists the channels I relay to")
	c.reply(nick, "!version - displays version information")
	c.reply(nick, "!login <password> - start an admin session")

	if c.isAdmin(nick) {
		c.reply(nick, " ")
		c.reply(nick, "Admin commands:")
		c.reply(nick, "!keys - lists destinations with an encryption key")
		c.reply(nick, "!setkey <#channel|nick> <key> - set the FiSH key for a destination")
		c.reply(nick, "!delkey <#channel|nick> - remove the FiSH key for a destination")
		c.reply(nick, "!shutdown")
		c.reply(nick, "!logout")
	}
}

func (c *Client) cmdVersion(nick, hostmask, message string) {
	c.logCommand(hostmask, message)

	c.reply(nick, fmt.Sprintf("irccatx version %s", Version))
	c.reply(nick, fmt.Sprintf("Built: %s", BuildDate))
	c.reply(nick, fmt.Sprintf("Commit: %s", GitCommit))
}

func (c *Client) cmdLogin(nick, hostmask string, fields []string) {
	if len(fields) < 2 {
		c.reply(nick, "Usage: !login <password>")
		return
	}

	if c.cfg.AdminPass != "" && fields[1] == c.cfg.AdminPass {
		c.mu.Lock()
		c.admins[fold(nick)] = true
		c.mu.Unlock()

		c.reply(nick, "Password accepted, you are now an admin. Type !help for a list of admin-only commands")
		c.logCommand(hostmask, "successful login")
	} else {
		c.reply(nick, "Password incorrect")
		c.logCommand(hostmask, "INCORRECT LOGIN ATTEMPT")
	}
}

func (c *Client) cmdLogout(nick, hostmask string) {
	c.mu.Lock()
	isAdmin := c.admins[fold(nick)]
	delete(c.admins, fold(nick))
	c.mu.Unlock()

	if isAdmin {
		c.reply(nick, "You have been logged out")
		c.logCommand(hostmask, "logged out")
	} else {
		c.reply(nick, "You're not logged in!")
		c.logCommand(hostmask, "tried to log out, but wasn't logged in")
	}
}

func (c *Client) cmdChannels(nick, hostmask, message string) {
	c.logCommand(hostmask, message)

	topics := c.state.channelTopics()
	names := c.state.channelNames()
	if len(names) == 0 {
		c.reply(nick, "I'm not in any channels")
		return
	}
	for _, name := range names {
		marker := ""
		if c.keys.HasKey(name[1:]) {
			marker = " [encrypted]"
		}
		c.reply(nick, fmt.Sprintf("%s%s: %s", name, marker, topics[name]))
	}
	c.reply(nick, fmt.Sprintf("Default channels: %s", strings.Join(c.cfg.DefaultChannels, ", ")))
}

func (c *Client) cmdKeys(nick, hostmask, message string) {
	if !c.isAdmin(nick) {
		c.reply(nick, "Sorry, only my admins can list keys")
		c.logCommand(hostmask, "tried to list keys but wasn't logged in")
		return
	}
	c.logCommand(hostmask, message)

	names := c.keys.Names()
	if len(names) == 0 {
		c.reply(nick, "No keys are set")
		return
	}
	c.reply(nick, fmt.Sprintf("Keys are set for: %s", strings.Join(names, ", ")))
}

func (c *Client) cmdSetKey(nick, hostmask string, fields []string) {
	if !c.isAdmin(nick) {
		c.reply(nick, "Sorry, only my admins can change keys")
		c.logCommand(hostmask, "tried to set a key but wasn't logged in")
		return
	}
	if len(fields) < 3 {
		c.reply(nick, "Usage: !setkey <#channel|nick> <key>")
		return
	}

	name, key := fields[1], strings.Join(fields[2:], " ")
	if err := c.keys.SetKey(name, key); err != nil {
		c.reply(nick, fmt.Sprintf("Key rejected: %v", err))
		return
	}
	if err := storage.SaveKeys(c.cfg.DataDir, c.keys.Snapshot()); err != nil {
		c.reply(nick, fmt.Sprintf("Key set, but saving failed: %v", err))
		c.log.Error("Saving keys failed", "error", err)
	} else {
		c.reply(nick, fmt.Sprintf("Key for %s has been set", name))
	}
	c.logCommand(hostmask, fmt.Sprintf("set key for %s", name))
}

func (c *Client) cmdDelKey(nick, hostmask string, fields []string) {
	if !c.isAdmin(nick) {
		c.reply(nick, "Sorry, only my admins can change keys")
		c.logCommand(hostmask, "tried to remove a key but wasn't logged in")
		return
	}
	if len(fields) < 2 {
		c.reply(nick, "Usage: !delkey <#channel|nick>")
		return
	}

	name := fields[1]
	if !c.keys.RemoveKey(name) {
		c.reply(nick, fmt.Sprintf("No key is set for %s", name))
		return
	}
	if err := storage.SaveKeys(c.cfg.DataDir, c.keys.Snapshot()); err != nil {
		c.reply(nick, fmt.Sprintf("Key removed, but saving failed: %v", err))
		c.log.Error("Saving keys failed", "error", err)
	} else {
		c.reply(nick, fmt.Sprintf("Key for %s has been removed", name))
	}
	c.logCommand(hostmask, fmt.Sprintf("removed key for %s", name))
}

func (c *Client) cmdShutdown(nick, hostmask, message string) {
	if !c.isAdmin(nick) {
		c.reply(nick, "Sorry, only my admins can shut me down")
		c.logCommand(hostmask, "issued the shutdown command but wasn't logged in")
		return
	}

	c.logCommand(hostmask, message)
	c.reply(nick, "Shutting down")

	if c.OnShutdown != nil {
		c.OnShutdown()
	}
}

func (c *Client) logCommand(hostmask, command string) {
	timestamp := time.Now().UTC().Format("Mon Jan 02, 2006 at 15:04:05 GMT")
	entry := fmt.Sprintf("%s: %s -> %s", timestamp, hostmask, command)

	c.mu.Lock()
	c.stats = storage.AddStat(c.stats, entry)
	stats := append([]string(nil), c.stats...)
	c.mu.Unlock()

	if err := storage.SaveStats(c.cfg.DataDir, stats); err != nil {
		c.log.Error("Saving stats failed", "error", err)
	}
}
