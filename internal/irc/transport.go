package irc

import (
	"fmt"

	"github.com/kelek-/irccatx/internal/relay"
	"github.com/samber/lo"
)

// channel is a tracked channel the relay can write to
type channel struct {
	c    *Client
	name string
}

func (ch channel) Name() string { return ch.name }

func (ch channel) SendMessage(text string) error {
	return ch.c.send("PRIVMSG", ch.name, text)
}

func (ch channel) SetTopic(text string) error {
	return ch.c.send("TOPIC", ch.name, text)
}

// user is a nick visible in one of the tracked channels
type user struct {
	c    *Client
	nick string
}

func (u user) Nick() string { return u.nick }

func (u user) SendMessage(text string) error {
	return u.c.send("PRIVMSG", u.nick, text)
}

// AllChannels returns the joined channels, sorted by name
func (c *Client) AllChannels() []relay.Channel {
	return lo.Map(c.state.channelNames(), func(name string, _ int) relay.Channel {
		return channel{c: c, name: name}
	})
}

// AllUsers returns every user sharing a channel with the bot, sorted by nick
func (c *Client) AllUsers() []relay.User {
	return lo.Map(c.state.userNicks(c.out.CurrentNick()), func(nick string, _ int) relay.User {
		return user{c: c, nick: nick}
	})
}

// Channel resolves a joined channel from its name without the leading
// '#', so "#x" resolves channel "##x".
func (c *Client) Channel(name string) (relay.Channel, error) {
	name = "#" + name
	tracked, ok := c.state.channel(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownChannel, name)
	}
	return channel{c: c, name: tracked}, nil
}

// User resolves a nick visible in one of the joined channels
func (c *Client) User(name string) (relay.User, error) {
	nick, ok := c.state.user(name)
	if !ok || c.isMe(nick) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownUser, name)
	}
	return user{c: c, nick: nick}, nil
}

// DefaultChannels returns the configured fallback destinations
func (c *Client) DefaultChannels() []string {
	return c.cfg.DefaultChannels
}

func (c *Client) send(command, target, text string) error {
	if !c.Ready() {
		return ErrNotConnected
	}
	if err := c.out.Send(command, target, text); err != nil {
		return fmt.Errorf("%s %s: %w", command, target, err)
	}
	return nil
}
