package relay

import (
	"errors"
	"strings"
	"unicode"

	"github.com/samber/lo"
)

// TopicToken introduces a topic command instead of a target list
const TopicToken = "%TOPIC"

var (
	// ErrMalformedLine is returned for lines without both a target
	// list and a payload. Such lines are dropped silently.
	ErrMalformedLine = errors.New("line needs a target and a payload")
	// ErrMalformedTopic is returned for %TOPIC lines without topic text
	ErrMalformedTopic = errors.New("topic command needs a channel list and a topic")
)

// Kind classifies a target token
type Kind int

const (
	Unqualified Kind = iota
	AllChannels
	ChannelTarget
	AllUsers
	UserTarget
)

func (k Kind) String() string {
	switch k {
	case AllChannels:
		return "all-channels"
	case ChannelTarget:
		return "channel"
	case AllUsers:
		return "all-users"
	case UserTarget:
		return "user"
	default:
		return "unqualified"
	}
}

// Destination is one parsed element of a target list. Name is set for
// ChannelTarget and UserTarget only and never carries the sigil.
type Destination struct {
	Kind Kind
	Name string
}

// ParseDestination classifies a single target token
func ParseDestination(token string) Destination {
	switch {
	case token == "#*":
		return Destination{Kind: AllChannels}
	case strings.HasPrefix(token, "#"):
		return Destination{Kind: ChannelTarget, Name: token[1:]}
	case token == "@*":
		return Destination{Kind: AllUsers}
	case strings.HasPrefix(token, "@"):
		return Destination{Kind: UserTarget, Name: token[1:]}
	default:
		return Destination{Kind: Unqualified}
	}
}

// Command is a parsed line: either a TopicCommand or a MessageCommand
type Command interface {
	command()
}

// TopicCommand sets the topic on each listed channel
type TopicCommand struct {
	Channels []string
	Topic    string
}

// MessageCommand sends Message to each target. Line is the whole
// input line, which unqualified targets relay instead of Message.
type MessageCommand struct {
	Targets []Destination
	Message string
	Line    string
}

func (TopicCommand) command()   {}
func (MessageCommand) command() {}

// Parse turns one colorized line into a Command
func Parse(line string) (Command, error) {
	if len(strings.Fields(line)) < 2 {
		return nil, ErrMalformedLine
	}
	targetSpec, payload := cut(line)

	if targetSpec == TopicToken {
		channels, topic := cut(payload)
		if topic == "" {
			return nil, ErrMalformedTopic
		}
		return TopicCommand{Channels: splitList(channels), Topic: topic}, nil
	}

	// Leading whitespace leaves an empty target spec, which is unqualified
	targets := []Destination{{Kind: Unqualified}}
	if targetSpec != "" {
		targets = lo.Map(splitList(targetSpec), func(token string, _ int) Destination {
			return ParseDestination(token)
		})
	}
	return MessageCommand{Targets: targets, Message: payload, Line: line}, nil
}

// cut splits s on its first run of whitespace
func cut(s string) (head, tail string) {
	i := strings.IndexFunc(s, unicode.IsSpace)
	if i < 0 {
		return s, ""
	}
	return s[:i], strings.TrimLeftFunc(s[i:], unicode.IsSpace)
}

// splitList splits a comma separated list, dropping empty entries
func splitList(s string) []string {
	return lo.Compact(strings.Split(s, ","))
}
