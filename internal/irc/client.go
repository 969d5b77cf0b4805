package irc

import (
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/ergochat/irc-go/ircevent"
	"github.com/ergochat/irc-go/ircmsg"
	"github.com/kelek-/irccatx/internal/config"
	"github.com/kelek-/irccatx/internal/fish"
	"github.com/kelek-/irccatx/internal/storage"
)

// Version information (set at build time or here)
var (
	Version   = "1.0.0"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

var (
	ErrNotConnected   = errors.New("not connected to IRC")
	ErrUnknownChannel = errors.New("not in channel")
	ErrUnknownUser    = errors.New("unknown user")
)

// sender is the part of ircevent.Connection the client writes through
type sender interface {
	Send(command string, params ...string) error
	Privmsg(target, message string) error
	CurrentNick() string
}

// Client is the IRC session the relay sends through. It tracks joined
// channels and visible users so that destinations can be resolved.
// Client is safe for concurrent use by multiple goroutines.
type Client struct {
	conn *ircevent.Connection
	out  sender
	cfg  *config.Config
	log  *slog.Logger
	keys *fish.Keys

	mu     sync.RWMutex
	ready  bool
	closed bool
	stats  []string
	// Admin session tracking: folded nick -> is admin
	admins map[string]bool

	state *state

	// Shutdown callback
	OnShutdown func()
}

// NewClient creates a new IRC client
func NewClient(cfg *config.Config, log *slog.Logger, keys *fish.Keys) (*Client, error) {
	c := &Client{
		cfg:    cfg,
		log:    log,
		keys:   keys,
		admins: make(map[string]bool),
		state:  newState(),
	}

	var err error
	c.stats, err = storage.LoadStats(cfg.DataDir)
	if err != nil {
		log.Warn("Could not load stats", "error", err)
	}

	conn := &ircevent.Connection{
		Server:       fmt.Sprintf("%s:%d", cfg.Server, cfg.Port),
		Nick:         cfg.Nick,
		User:         cfg.Username,
		RealName:     cfg.IRCName,
		Password:     cfg.ServerPass,
		QuitMessage:  "Shutting down",
		Debug:        false,
		UseTLS:       cfg.TLS,
		TLSConfig:    &tls.Config{ServerName: cfg.Server, InsecureSkipVerify: cfg.TLSInsecure},
		UseSASL:      cfg.SASLLogin != "",
		SASLLogin:    cfg.SASLLogin,
		SASLPassword: cfg.SASLPassword,
	}
	c.conn = conn
	c.out = conn

	// Register handlers
	c.registerHandlers()

	return c, nil
}

func (c *Client) registerHandlers() {
	// Connected (end of MOTD)
	c.conn.AddCallback("376", c.onConnect)
	c.conn.AddCallback("422", c.onConnect) // MOTD missing is also "connected"
	c.conn.AddDisconnectCallback(c.onDisconnect)

	// Channel and user tracking
	c.conn.AddCallback("JOIN", c.onJoin)
	c.conn.AddCallback("PART", c.onPart)
	c.conn.AddCallback("KICK", c.onKick)
	c.conn.AddCallback("QUIT", c.onQuit)
	c.conn.AddCallback("NICK", c.onNick)
	c.conn.AddCallback("353", c.onNames) // RPL_NAMREPLY
	c.conn.AddCallback("332", c.onTopicReply)
	c.conn.AddCallback("TOPIC", c.onTopic)

	// Private messages
	c.conn.AddCallback("PRIVMSG", c.onPrivMsg)

	// Nick issues
	c.conn.AddCallback("433", c.onNickInUse) // ERR_NICKNAMEINUSE

	// CTCP VERSION
	c.conn.AddCallback("CTCP_VERSION", c.onCtcpVersion)
}

// Connect initiates the IRC connection
func (c *Client) Connect() error {
	return c.conn.Connect()
}

// Loop runs the IRC event loop (blocking)
func (c *Client) Loop() {
	c.conn.Loop()
}

// Quit disconnects from IRC
func (c *Client) Quit(message string) {
	c.mu.Lock()
	c.closed = true
	c.ready = false
	c.mu.Unlock()
	c.conn.QuitMessage = message
	c.conn.Quit()
}

// Ready reports whether the session is registered and usable
func (c *Client) Ready() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ready
}

func (c *Client) onConnect(e ircmsg.Message) {
	c.log.Info("Connected to IRC server", "server", c.cfg.Server)
	c.state.reset()

	// Identify to NickServ
	if c.cfg.NickPass != "" && c.cfg.SASLLogin == "" {
		_ = c.out.Privmsg("NickServ", fmt.Sprintf("IDENTIFY %s %s", c.cfg.Nick, c.cfg.NickPass))
	}

	for name, key := range c.cfg.ChannelJoins() {
		params := []string{name}
		if key != "" {
			params = append(params, key)
		}
		if err := c.out.Send("JOIN", params...); err != nil {
			c.log.Warn("Join failed", "channel", name, "error", err)
		}
	}

	c.mu.Lock()
	c.ready = true
	c.mu.Unlock()

	c.log.Info("Relay initialization complete")
}

func (c *Client) onDisconnect(e ircmsg.Message) {
	c.mu.Lock()
	c.ready = false
	closed := c.closed
	c.admins = make(map[string]bool)
	c.mu.Unlock()
	c.state.reset()

	if !closed {
		c.log.Warn("Disconnected from IRC server, reconnecting")
	}
}

func (c *Client) isMe(nick string) bool {
	return strings.EqualFold(nick, c.out.CurrentNick())
}

func (c *Client) onJoin(e ircmsg.Message) {
	if len(e.Params) < 1 {
		return
	}
	nick := e.Nick()
	c.state.join(e.Params[0], nick, c.isMe(nick))
	if c.isMe(nick) {
		c.log.Info("Joined channel", "channel", e.Params[0])
	}
}

func (c *Client) onPart(e ircmsg.Message) {
	if len(e.Params) < 1 {
		return
	}
	nick := e.Nick()
	c.state.part(e.Params[0], nick, c.isMe(nick))
}

func (c *Client) onKick(e ircmsg.Message) {
	// KICK <channel> <nick> [:reason]
	if len(e.Params) < 2 {
		return
	}
	kicked := e.Params[1]
	c.state.part(e.Params[0], kicked, c.isMe(kicked))
	if c.isMe(kicked) {
		c.log.Warn("Kicked from channel", "channel", e.Params[0], "by", e.Nick())
	}
}

func (c *Client) onQuit(e ircmsg.Message) {
	nick := e.Nick()
	c.state.quit(nick)
	c.endAdminSession(nick)
}

func (c *Client) onNick(e ircmsg.Message) {
	if len(e.Params) < 1 {
		return
	}
	c.state.rename(e.Nick(), e.Params[0])
	c.endAdminSession(e.Nick())
}

func (c *Client) onNames(e ircmsg.Message) {
	// 353 <me> <symbol> <channel> :<nicks>
	if len(e.Params) < 4 {
		return
	}
	c.state.names(e.Params[2], strings.Fields(e.Params[3]))
}

func (c *Client) onTopicReply(e ircmsg.Message) {
	// 332 <me> <channel> :<topic>
	if len(e.Params) < 3 {
		return
	}
	c.state.setTopic(e.Params[1], e.Params[2])
}

func (c *Client) onTopic(e ircmsg.Message) {
	if len(e.Params) < 2 {
		return
	}
	c.state.setTopic(e.Params[0], e.Params[1])
}

func (c *Client) onPrivMsg(e ircmsg.Message) {
	if len(e.Params) < 2 {
		return
	}

	target := e.Params[0]
	message := strings.TrimSpace(e.Params[1])
	nuh, err := e.NUH()
	if err != nil {
		return
	}

	// Only respond to private messages (not channel messages)
	if !c.isMe(target) || !strings.HasPrefix(message, "!") {
		return
	}
	c.handleCommand(nuh.Name, nuh.Canonical(), message)
}

func (c *Client) onNickInUse(e ircmsg.Message) {
	if c.cfg.Alternate == "" || c.out.CurrentNick() == c.cfg.Alternate {
		return
	}
	c.log.Warn("Nick in use, switching to alternate", "nick", c.cfg.Alternate)
	c.conn.SetNick(c.cfg.Alternate)

	if c.cfg.NickPass == "" {
		return
	}
	// Schedule nick recovery
	go func() {
		time.Sleep(15 * time.Second)
		_ = c.out.Privmsg("NickServ", fmt.Sprintf("GHOST %s %s", c.cfg.Nick, c.cfg.NickPass))
		time.Sleep(2 * time.Second)
		c.conn.SetNick(c.cfg.Nick)
	}()
}

func (c *Client) onCtcpVersion(e ircmsg.Message) {
	nick := e.Nick()
	reply := fmt.Sprintf("irccatx %s (built %s, commit %s)", Version, BuildDate, GitCommit)
	_ = c.out.Send("NOTICE", nick, fmt.Sprintf("\x01VERSION %s\x01", reply))
}
