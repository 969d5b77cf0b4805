// Package colors translates irccat-style formatting tokens into mIRC
// control codes.
package colors

import (
	"strings"

	"github.com/ergochat/irc-go/ircfmt"
)

// Control codes
const (
	Bold      = "\x02"
	Color     = "\x03"
	Italic    = "\x1d"
	Underline = "\x1f"
	Reverse   = "\x16"
	Normal    = "\x0f"
)

// mIRC color numbers by irccat token name
var palette = []struct {
	name string
	code string
}{
	{"WHITE", "00"},
	{"BLACK", "01"},
	{"DBLUE", "02"},
	{"DGREEN", "03"},
	{"RED", "04"},
	{"BROWN", "05"},
	{"PURPLE", "06"},
	{"ORANGE", "07"},
	{"YELLOW", "08"},
	{"GREEN", "09"},
	{"TEAL", "10"},
	{"CYAN", "11"},
	{"BLUE", "12"},
	{"PINK", "13"},
	{"DGRAY", "14"},
	{"GRAY", "15"},
}

var irccat = newReplacer()

func newReplacer() *strings.Replacer {
	pairs := []string{
		"%NORMAL", Normal,
		"%BOLD", Bold,
		"%UNDERLINE", Underline,
		"%REVERSE", Reverse,
		"%ITALIC", Italic,
	}
	for _, c := range palette {
		pairs = append(pairs, "%"+c.name, Color+c.code)
	}
	return strings.NewReplacer(pairs...)
}

// Colorize replaces %TOKEN markers (%RED, %BOLD, ...) with control codes
func Colorize(line string) string {
	return irccat.Replace(line)
}

// ForSyntax returns the transform for the named syntax: "ircfmt" uses
// ircfmt's $c[red]-style escapes, anything else the irccat tokens.
func ForSyntax(syntax string) func(string) string {
	if syntax == "ircfmt" {
		return ircfmt.Unescape
	}
	return Colorize
}

// Strip removes formatting codes, for logging
func Strip(line string) string {
	return ircfmt.Strip(line)
}
