package bot

import (
	"regexp"
	"strings"
)

// Prefix starts every command typed in the main channel.
const Prefix = "!"

type Command struct {
	Name string
	Args []string
}

// Arg returns the i-th argument lowercased, or "".
func (c Command) Arg(i int) string {
	if i >= len(c.Args) {
		return ""
	}
	return strings.ToLower(c.Args[i])
}

// Parse splits "!name arg..." into a Command. Text without the prefix is not
// a command.
func Parse(text string) (Command, bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, Prefix) {
		return Command{}, false
	}
	fields := strings.Fields(strings.TrimPrefix(text, Prefix))
	if len(fields) == 0 {
		return Command{}, false
	}
	return Command{Name: strings.ToLower(fields[0]), Args: fields[1:]}, true
}

var channelRef = regexp.MustCompile(`^<#(\d+)>$|^(\d+)$`)

// ChannelRef accepts a channel mention or a bare channel id.
func ChannelRef(s string) (string, bool) {
	m := channelRef.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return "", false
	}
	if m[1] != "" {
		return m[1], true
	}
	return m[2], true
}

// Mention renders a channel reference users can click.
func Mention(channelID string) string { return "<#" + channelID + ">" }

const usage = "Commands:\n" +
	"`!book srt|ktx` start a booking\n" +
	"`!mybookings` your active bookings\n" +
	"`!slots` booking slot usage\n" +
	"`!profile set srt|ktx`, `!profile show`, `!profile delete`\n" +
	"`!card set`\n" +
	"`!fav add`, `!fav list`, `!fav delete`"
