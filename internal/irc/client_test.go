package irc

import (
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/ergochat/irc-go/ircmsg"
	"github.com/kelek-/irccatx/internal/config"
	"github.com/kelek-/irccatx/internal/fish"
	"github.com/kelek-/irccatx/internal/relay"
	"github.com/kelek-/irccatx/internal/storage"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

// fakeSender records outgoing lines instead of writing to a socket
type fakeSender struct {
	mu    sync.Mutex
	nick  string
	lines []string
	err   error
}

func (f *fakeSender) Send(command string, params ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.lines = append(f.lines, strings.Join(append([]string{command}, params...), " "))
	return nil
}

func (f *fakeSender) Privmsg(target, message string) error {
	return f.Send("PRIVMSG", target, message)
}

func (f *fakeSender) CurrentNick() string { return f.nick }

func (f *fakeSender) Lines() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.lines...)
}

func (f *fakeSender) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lines = nil
}

func newTestClient(t *testing.T) (*Client, *fakeSender) {
	t.Helper()
	cfg := &config.Config{
		Nick:            "cat",
		AdminPass:       "letmein",
		DataDir:         t.TempDir(),
		Channels:        []string{"#ops"},
		DefaultChannels: []string{"#ops"},
	}
	keys, err := fish.NewKeys(nil)
	require.NoError(t, err)

	out := &fakeSender{nick: "cat"}
	c := &Client{
		out:    out,
		cfg:    cfg,
		log:    logs.GetLoggerFromLevel(slog.LevelDebug),
		keys:   keys,
		admins: make(map[string]bool),
		state:  newState(),
	}
	return c, out
}

func msg(t *testing.T, line string) ircmsg.Message {
	t.Helper()
	m, err := ircmsg.ParseLine(line)
	require.NoError(t, err)
	return m
}

// connect runs registration and joins #ops with alice and bob present
func connect(t *testing.T, c *Client) {
	t.Helper()
	c.onConnect(msg(t, ":irc.example.net 376 cat :End of /MOTD command."))
	c.onJoin(msg(t, ":cat!cat@host JOIN #ops"))
	c.onNames(msg(t, ":irc.example.net 353 cat = #ops :@cat alice +bob"))
}

func TestOnConnectJoinsChannels(t *testing.T) {
	req := require.New(t)
	c, out := newTestClient(t)
	c.cfg.Channels = []string{"#secret hunter2"}
	c.cfg.NickPass = "pw"

	req.False(c.Ready())
	c.onConnect(msg(t, ":irc.example.net 376 cat :End of /MOTD command."))
	req.True(c.Ready())
	req.Equal([]string{
		"PRIVMSG NickServ IDENTIFY cat pw",
		"JOIN #secret hunter2",
	}, out.Lines())
}

func TestTransportResolvesTrackedDestinations(t *testing.T) {
	req := require.New(t)
	c, _ := newTestClient(t)
	connect(t, c)

	channels := c.AllChannels()
	req.Len(channels, 1)
	req.Equal("#ops", channels[0].Name())

	nicks := make([]string, 0)
	for _, u := range c.AllUsers() {
		nicks = append(nicks, u.Nick())
	}
	req.Equal([]string{"alice", "bob"}, nicks)

	ch, err := c.Channel("ops")
	req.NoError(err)
	req.Equal("#ops", ch.Name())

	_, err = c.Channel("#elsewhere")
	req.ErrorIs(err, ErrUnknownChannel)

	u, err := c.User("ALICE")
	req.NoError(err)
	req.Equal("alice", u.Nick())

	_, err = c.User("cat")
	req.ErrorIs(err, ErrUnknownUser)
	_, err = c.User("mallory")
	req.ErrorIs(err, ErrUnknownUser)

	req.Equal([]string{"#ops"}, c.DefaultChannels())
}

func TestTransportSends(t *testing.T) {
	req := require.New(t)
	c, out := newTestClient(t)
	connect(t, c)
	out.Reset()

	ch, err := c.Channel("ops")
	req.NoError(err)
	req.NoError(ch.SendMessage("hello"))
	req.NoError(ch.SetTopic("new topic"))

	u, err := c.User("bob")
	req.NoError(err)
	req.NoError(u.SendMessage("psst"))

	req.Equal([]string{
		"PRIVMSG #ops hello",
		"TOPIC #ops new topic",
		"PRIVMSG bob psst",
	}, out.Lines())
}

func TestTransportSendErrors(t *testing.T) {
	req := require.New(t)
	c, out := newTestClient(t)
	connect(t, c)

	ch, err := c.Channel("ops")
	req.NoError(err)

	out.err = errors.New("line too long")
	req.ErrorContains(ch.SendMessage("x"), "line too long")

	out.err = nil
	c.onDisconnect(ircmsg.Message{})
	req.ErrorIs(ch.SendMessage("x"), ErrNotConnected)
	req.Empty(c.AllChannels())
}

func TestTrackingFollowsChannelEvents(t *testing.T) {
	req := require.New(t)
	c, _ := newTestClient(t)
	connect(t, c)

	c.onJoin(msg(t, ":dave!d@host JOIN #ops"))
	c.onPart(msg(t, ":alice!a@host PART #ops :bye"))
	c.onNick(msg(t, ":bob!b@host NICK robert"))
	c.onKick(msg(t, ":op!o@host KICK #ops dave :spam"))

	nicks := make([]string, 0)
	for _, u := range c.AllUsers() {
		nicks = append(nicks, u.Nick())
	}
	req.Equal([]string{"robert"}, nicks)

	c.onTopic(msg(t, ":op!o@host TOPIC #ops :fresh topic"))
	req.Equal("fresh topic", c.state.channelTopics()["#ops"])

	c.onKick(msg(t, ":op!o@host KICK #ops cat :out"))
	req.Empty(c.AllChannels())
	req.Empty(c.AllUsers())
}

func TestDoubleHashChannel(t *testing.T) {
	req := require.New(t)
	c, out := newTestClient(t)
	connect(t, c)
	c.onJoin(msg(t, ":cat!cat@host JOIN ##secret"))

	keys, err := fish.NewKeys(map[string]string{"##secret": "hashkey"})
	req.NoError(err)
	c.keys = keys
	c.cfg.DefaultChannels = []string{"##secret"}
	out.Reset()

	ch, err := c.Channel("#secret")
	req.NoError(err)
	req.Equal("##secret", ch.Name())
	_, err = c.Channel("secret")
	req.ErrorIs(err, ErrUnknownChannel)

	d := relay.NewDispatcher(c.log, c, c.keys, nil, c.DefaultChannels)
	req.NoError(d.Dispatch("##secret explicit"))
	req.NoError(d.Dispatch("#* broadcast"))
	req.NoError(d.Dispatch("%TOPIC ##secret hidden"))
	req.NoError(d.Dispatch("plain fallback"))

	seal := func(text string) string {
		enc, err := keys.Encrypt("#secret", text)
		req.NoError(err)
		return enc
	}
	req.Equal([]string{
		"PRIVMSG ##secret " + seal("explicit"),
		"PRIVMSG ##secret " + seal("broadcast"),
		"PRIVMSG #ops broadcast",
		"TOPIC ##secret hidden",
		"PRIVMSG ##secret " + seal("plain fallback"),
	}, out.Lines())
}

// The IRC client satisfies the relay's transport
func TestClientDrivesDispatcher(t *testing.T) {
	req := require.New(t)
	c, out := newTestClient(t)
	connect(t, c)
	req.NoError(c.keys.SetKey("bob", "bobkey"))
	out.Reset()

	d := relay.NewDispatcher(c.log, c, c.keys, nil, c.DefaultChannels)
	req.NoError(d.Dispatch("#ops,@bob,@ghost hi"))
	req.NoError(d.Dispatch("deploy finished"))

	enc, err := c.keys.Encrypt("bob", "hi")
	req.NoError(err)
	req.Equal([]string{
		"PRIVMSG #ops hi",
		"PRIVMSG bob " + enc,
		"PRIVMSG #ops deploy finished",
	}, out.Lines())
}

func TestCommandsLoginAndKeys(t *testing.T) {
	req := require.New(t)
	c, out := newTestClient(t)
	connect(t, c)
	out.Reset()

	privmsg := func(line string) {
		c.onPrivMsg(msg(t, ":alice!a@host PRIVMSG cat :"+line))
	}

	privmsg("!setkey #ops k1")
	req.Equal([]string{"PRIVMSG alice Sorry, only my admins can change keys"}, out.Lines())
	req.False(c.keys.HasKey("ops"))

	privmsg("!login wrong")
	privmsg("!login letmein")
	req.True(c.isAdmin("alice"))

	privmsg("!setkey #ops k1")
	req.True(c.keys.HasKey("ops"))

	saved, err := storage.LoadKeys(c.cfg.DataDir)
	req.NoError(err)
	req.Equal(map[string]string{"#ops": "k1"}, saved)

	out.Reset()
	privmsg("!keys")
	privmsg("!channels")
	req.Equal([]string{
		"PRIVMSG alice Keys are set for: #ops",
		"PRIVMSG alice #ops [encrypted]: ",
		"PRIVMSG alice Default channels: #ops",
	}, out.Lines())

	privmsg("!delkey #ops")
	req.False(c.keys.HasKey("ops"))
	saved, err = storage.LoadKeys(c.cfg.DataDir)
	req.NoError(err)
	req.Empty(saved)

	// A nick change ends the admin session
	c.onNick(msg(t, ":alice!a@host NICK alicia"))
	req.False(c.isAdmin("alice"))
	req.False(c.isAdmin("alicia"))

	stats, err := storage.LoadStats(c.cfg.DataDir)
	req.NoError(err)
	req.NotEmpty(stats)
	req.Contains(stats[len(stats)-1], "alice!a@host -> removed key for #ops")
}

func TestCommandsIgnoreChannelMessages(t *testing.T) {
	c, out := newTestClient(t)
	connect(t, c)
	out.Reset()

	c.onPrivMsg(msg(t, ":alice!a@host PRIVMSG #ops :!help"))
	c.onPrivMsg(msg(t, ":alice!a@host PRIVMSG cat :hello there"))
	require.Empty(t, out.Lines())
}

func TestCommandShutdownRequiresAdmin(t *testing.T) {
	req := require.New(t)
	c, _ := newTestClient(t)
	connect(t, c)

	calls := 0
	c.OnShutdown = func() { calls++ }

	c.onPrivMsg(msg(t, ":bob!b@host PRIVMSG cat :!shutdown"))
	req.Equal(0, calls)

	c.onPrivMsg(msg(t, ":bob!b@host PRIVMSG cat :!login letmein"))
	c.onPrivMsg(msg(t, ":bob!b@host PRIVMSG cat :!shutdown"))
	req.Equal(1, calls)
}
