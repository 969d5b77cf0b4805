package relay

import (
	"errors"
	"log/slog"
	"strings"

	"github.com/kelek-/irccatx/internal/colors"
)

// Channel is a joined IRC channel
type Channel interface {
	Name() string
	SendMessage(text string) error
	SetTopic(text string) error
}

// User is an IRC user visible to the session
type User interface {
	Nick() string
	SendMessage(text string) error
}

// Transport resolves destinations on the IRC session. Implementations
// must be safe for concurrent use by multiple connections.
type Transport interface {
	AllChannels() []Channel
	AllUsers() []User
	Channel(name string) (Channel, error)
	User(name string) (User, error)
}

// Gate decides per destination name whether text must be encrypted.
// Names are channel names or nicks with exactly one sigil removed, so
// channel "##x" is looked up as "#x".
type Gate interface {
	HasKey(name string) bool
	Encrypt(name, text string) (string, error)
}

// Dispatcher executes parsed lines against a Transport
type Dispatcher struct {
	log       *slog.Logger
	transport Transport
	gate      Gate
	colorize  func(string) string
	defaults  func() []string
}

// NewDispatcher builds a dispatcher. defaults supplies the channels that
// receive lines without a target sigil; colorize runs once per line
// before parsing.
func NewDispatcher(log *slog.Logger, transport Transport, gate Gate, colorize func(string) string, defaults func() []string) *Dispatcher {
	if colorize == nil {
		colorize = colors.Colorize
	}
	return &Dispatcher{
		log:       log,
		transport: transport,
		gate:      gate,
		colorize:  colorize,
		defaults:  defaults,
	}
}

// WithLogger returns a copy of the dispatcher that logs to log
func (d *Dispatcher) WithLogger(log *slog.Logger) *Dispatcher {
	c := *d
	c.log = log
	return &c
}

// Dispatch parses and executes one line. Malformed lines are dropped
// without error; the only error returned is ErrMalformedTopic.
// Failures for individual destinations are logged and never stop the
// remaining destinations from being attempted.
func (d *Dispatcher) Dispatch(line string) error {
	line = d.colorize(line)

	cmd, err := Parse(line)
	if errors.Is(err, ErrMalformedLine) {
		d.log.Debug("Dropping malformed line", "line", colors.Strip(line))
		return nil
	}
	if err != nil {
		return err
	}

	switch cmd := cmd.(type) {
	case TopicCommand:
		d.topic(cmd)
	case MessageCommand:
		d.message(cmd)
	}
	return nil
}

func (d *Dispatcher) topic(cmd TopicCommand) {
	d.log.Info("Topic command received", "channels", cmd.Channels)

	for _, token := range cmd.Channels {
		if token == "#*" {
			for _, ch := range d.transport.AllChannels() {
				d.setTopic(ch, cmd.Topic)
			}
			continue
		}

		ch, err := d.transport.Channel(bare(token))
		if err != nil {
			d.log.Warn("Cannot set topic", "channel", token, "error", err)
			continue
		}
		d.setTopic(ch, cmd.Topic)
	}
}

func (d *Dispatcher) setTopic(ch Channel, topic string) {
	d.log.Info("Setting topic", "channel", ch.Name(), "topic", colors.Strip(topic))
	if err := ch.SetTopic(topic); err != nil {
		d.log.Warn("Setting topic failed", "channel", ch.Name(), "error", err)
	}
}

func (d *Dispatcher) message(cmd MessageCommand) {
	for _, dest := range cmd.Targets {
		switch dest.Kind {
		case AllChannels:
			for _, ch := range d.transport.AllChannels() {
				d.sendChannel(ch, cmd.Message)
			}

		case ChannelTarget:
			ch, err := d.transport.Channel(dest.Name)
			if err != nil {
				d.log.Warn("Unresolved channel", "channel", dest.Name, "error", err)
				continue
			}
			d.sendChannel(ch, cmd.Message)

		case AllUsers:
			for _, u := range d.transport.AllUsers() {
				d.sendUser(u, cmd.Message)
			}

		case UserTarget:
			u, err := d.transport.User(dest.Name)
			if err != nil {
				d.log.Warn("Unresolved user", "user", dest.Name, "error", err)
				continue
			}
			d.sendUser(u, cmd.Message)

		case Unqualified:
			// The whole line goes out, target token included
			for _, name := range d.defaults() {
				ch, err := d.transport.Channel(bare(name))
				if err != nil {
					d.log.Warn("Unresolved default channel", "channel", name, "error", err)
					continue
				}
				d.sendChannel(ch, cmd.Line)
			}
		}
	}
}

func (d *Dispatcher) sendChannel(ch Channel, text string) {
	name := bare(ch.Name())
	out, err := d.seal(name, text)
	if err != nil {
		d.log.Warn("Encryption failed, not sending", "channel", name, "error", err)
		return
	}
	if err := ch.SendMessage(out); err != nil {
		d.log.Warn("Send failed", "channel", name, "error", err)
	}
}

func (d *Dispatcher) sendUser(u User, text string) {
	name := u.Nick()
	out, err := d.seal(name, text)
	if err != nil {
		d.log.Warn("Encryption failed, not sending", "user", name, "error", err)
		return
	}
	if err := u.SendMessage(out); err != nil {
		d.log.Warn("Send failed", "user", name, "error", err)
	}
}

// seal returns the text to transmit to name
func (d *Dispatcher) seal(name, text string) (string, error) {
	if !d.gate.HasKey(name) {
		return text, nil
	}
	return d.gate.Encrypt(name, text)
}

// bare strips one leading channel or user sigil. Transport.Channel
// puts the '#' back.
func bare(name string) string {
	if strings.HasPrefix(name, "#") || strings.HasPrefix(name, "@") {
		return name[1:]
	}
	return name
}
