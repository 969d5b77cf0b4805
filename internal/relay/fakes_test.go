package relay

import (
	"errors"
	"fmt"
	"slices"
	"sync"
)

var errUnknown = errors.New("unknown destination")

type call struct {
	Op     string
	Target string
	Text   string
}

// fakeTransport records every send in order
type fakeTransport struct {
	mu       sync.Mutex
	channels []string
	users    []string
	failing  map[string]bool
	calls    []call
}

func newFakeTransport(channels, users []string) *fakeTransport {
	return &fakeTransport{channels: channels, users: users, failing: map[string]bool{}}
}

func (f *fakeTransport) AllChannels() []Channel {
	out := make([]Channel, 0, len(f.channels))
	for _, name := range f.channels {
		out = append(out, fakeChannel{t: f, name: name})
	}
	return out
}

func (f *fakeTransport) AllUsers() []User {
	out := make([]User, 0, len(f.users))
	for _, nick := range f.users {
		out = append(out, fakeUser{t: f, nick: nick})
	}
	return out
}

func (f *fakeTransport) Channel(name string) (Channel, error) {
	if !slices.Contains(f.channels, "#"+name) {
		return nil, fmt.Errorf("%w: #%s", errUnknown, name)
	}
	return fakeChannel{t: f, name: "#" + name}, nil
}

func (f *fakeTransport) User(name string) (User, error) {
	if !slices.Contains(f.users, name) {
		return nil, fmt.Errorf("%w: %s", errUnknown, name)
	}
	return fakeUser{t: f, nick: name}, nil
}

func (f *fakeTransport) record(c call) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, c)
	if f.failing[c.Target] {
		return errors.New("send failed")
	}
	return nil
}

func (f *fakeTransport) Calls() []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.calls)
}

type fakeChannel struct {
	t    *fakeTransport
	name string
}

func (c fakeChannel) Name() string { return c.name }

func (c fakeChannel) SendMessage(text string) error {
	return c.t.record(call{Op: "msg", Target: c.name, Text: text})
}

func (c fakeChannel) SetTopic(text string) error {
	return c.t.record(call{Op: "topic", Target: c.name, Text: text})
}

type fakeUser struct {
	t    *fakeTransport
	nick string
}

func (u fakeUser) Nick() string { return u.nick }

func (u fakeUser) SendMessage(text string) error {
	return u.t.record(call{Op: "msg", Target: "@" + u.nick, Text: text})
}

// fakeGate "encrypts" deterministically and remembers its lookups
type fakeGate struct {
	mu      sync.Mutex
	keys    map[string]bool
	broken  map[string]bool
	queries []string
}

func newFakeGate(names ...string) *fakeGate {
	g := &fakeGate{keys: map[string]bool{}, broken: map[string]bool{}}
	for _, n := range names {
		g.keys[n] = true
	}
	return g
}

func (g *fakeGate) HasKey(name string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.queries = append(g.queries, name)
	return g.keys[name]
}

func (g *fakeGate) Encrypt(name, text string) (string, error) {
	if g.broken[name] {
		return "", errors.New("cipher failure")
	}
	return encrypted(name, text), nil
}

func encrypted(name, text string) string {
	return "+OK[" + name + "]" + text
}

func staticDefaults(names ...string) func() []string {
	return func() []string { return names }
}
