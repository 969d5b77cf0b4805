package irc

import (
	"sort"
	"strings"
	"sync"
)

// nick prefixes that may precede a name in RPL_NAMREPLY
const memberPrefixes = "~&@%+"

// state tracks the channels the bot is in and the users it can see there.
// Names are matched case-insensitively.
type state struct {
	mu       sync.RWMutex
	channels map[string]*channelState
	users    map[string]*userState
}

type channelState struct {
	name    string
	topic   string
	members map[string]struct{}
}

type userState struct {
	nick     string
	channels map[string]struct{}
}

func newState() *state {
	return &state{
		channels: make(map[string]*channelState),
		users:    make(map[string]*userState),
	}
}

func fold(name string) string {
	return strings.ToLower(name)
}

// reset forgets everything, used when (re)connecting
func (s *state) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.channels = make(map[string]*channelState)
	s.users = make(map[string]*userState)
}

// join records nick joining channel. When self is true the bot itself
// joined and the channel starts being tracked.
func (s *state) join(channel, nick string, self bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch, ok := s.channels[fold(channel)]
	if !ok {
		if !self {
			return
		}
		ch = &channelState{name: channel, members: make(map[string]struct{})}
		s.channels[fold(channel)] = ch
	}
	if self {
		return
	}
	s.addMember(ch, nick)
}

// names records the members listed in a NAMES reply
func (s *state) names(channel string, nicks []string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch, ok := s.channels[fold(channel)]
	if !ok {
		return
	}
	for _, nick := range nicks {
		nick = strings.TrimLeft(nick, memberPrefixes)
		if nick != "" {
			s.addMember(ch, nick)
		}
	}
}

// part records nick leaving channel; self drops the channel entirely
func (s *state) part(channel, nick string, self bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch, ok := s.channels[fold(channel)]
	if !ok {
		return
	}
	if self {
		for member := range ch.members {
			s.removeMember(ch, member)
		}
		delete(s.channels, fold(channel))
		return
	}
	s.removeMember(ch, fold(nick))
}

// quit removes nick from every channel
func (s *state) quit(nick string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[fold(nick)]
	if !ok {
		return
	}
	for key := range u.channels {
		if ch, ok := s.channels[key]; ok {
			delete(ch.members, fold(nick))
		}
	}
	delete(s.users, fold(nick))
}

// rename follows a NICK change
func (s *state) rename(from, to string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[fold(from)]
	if !ok {
		return
	}
	delete(s.users, fold(from))
	u.nick = to
	s.users[fold(to)] = u
	for key := range u.channels {
		if ch, ok := s.channels[key]; ok {
			delete(ch.members, fold(from))
			ch.members[fold(to)] = struct{}{}
		}
	}
}

func (s *state) setTopic(channel, topic string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ch, ok := s.channels[fold(channel)]; ok {
		ch.topic = topic
	}
}

// channel returns the tracked spelling of a channel name
func (s *state) channel(name string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ch, ok := s.channels[fold(name)]
	if !ok {
		return "", false
	}
	return ch.name, true
}

// user returns the tracked spelling of a nick
func (s *state) user(nick string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[fold(nick)]
	if !ok {
		return "", false
	}
	return u.nick, true
}

// channelNames returns all tracked channels, sorted case-insensitively
func (s *state) channelNames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.channels))
	for _, ch := range s.channels {
		names = append(names, ch.name)
	}
	sortFolded(names)
	return names
}

// channelTopics returns channel name -> last known topic
func (s *state) channelTopics() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	topics := make(map[string]string, len(s.channels))
	for _, ch := range s.channels {
		topics[ch.name] = ch.topic
	}
	return topics
}

// userNicks returns all visible users except self, sorted
func (s *state) userNicks(self string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	nicks := make([]string, 0, len(s.users))
	for key, u := range s.users {
		if key != fold(self) {
			nicks = append(nicks, u.nick)
		}
	}
	sortFolded(nicks)
	return nicks
}

func (s *state) addMember(ch *channelState, nick string) {
	key := fold(nick)
	u, ok := s.users[key]
	if !ok {
		u = &userState{nick: nick, channels: make(map[string]struct{})}
		s.users[key] = u
	}
	u.channels[fold(ch.name)] = struct{}{}
	ch.members[key] = struct{}{}
}

// removeMember drops nick (already folded) from ch and forgets users
// that share no channel with the bot anymore
func (s *state) removeMember(ch *channelState, key string) {
	delete(ch.members, key)
	u, ok := s.users[key]
	if !ok {
		return
	}
	delete(u.channels, fold(ch.name))
	if len(u.channels) == 0 {
		delete(s.users, key)
	}
}

func sortFolded(names []string) {
	sort.Slice(names, func(i, j int) bool {
		return fold(names[i]) < fold(names[j])
	})
}
