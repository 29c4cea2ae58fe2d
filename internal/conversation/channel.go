package conversation

import (
	"context"
	"errors"
)

var (
	// ErrPromptTimeout is returned by Select and Form when the user did not
	// answer in time.
	ErrPromptTimeout = errors.New("conversation: prompt timed out")
	// ErrPermission is returned when the bot may not act on a channel.
	ErrPermission = errors.New("conversation: missing channel permission")
)

// MaxOptions is the most options a single menu can carry.
const MaxOptions = 25

type Tone int

const (
	ToneInfo Tone = iota
	ToneSuccess
	ToneWarning
	ToneDanger
)

type Field struct {
	Name   string
	Value  string
	Inline bool
}

type Message struct {
	Title  string
	Text   string
	Fields []Field
	Footer string
	Tone   Tone
}

// Text is a plain message without a title.
func Text(s string) Message { return Message{Text: s} }

type Option struct {
	Label       string
	Value       string
	Description string
}

type Menu struct {
	Placeholder string
	Options     []Option
}

// SelectPrompt asks for one or more values. The user answers from one menu;
// MaxValues caps how many options may be picked from it.
type SelectPrompt struct {
	Text      string
	Menus     []Menu
	MaxValues int
}

type FormField struct {
	Key         string
	Label       string
	Placeholder string
	MaxLength   int
	Secret      bool
	Optional    bool
}

type FormPrompt struct {
	Title  string
	Fields []FormField
}

// Channel is the dedicated, access-restricted place a conversation happens.
type Channel interface {
	ID() string
	Send(ctx context.Context, m Message) error
	// UpdateStatus keeps one message per key and edits it in place.
	UpdateStatus(ctx context.Context, key string, m Message) error
	Select(ctx context.Context, p SelectPrompt) ([]string, error)
	Form(ctx context.Context, p FormPrompt) (map[string]string, error)
	// Close deletes the channel. It returns ErrPermission when forbidden.
	Close(ctx context.Context, reason string) error
}

// ChannelFactory creates and removes dedicated channels.
type ChannelFactory interface {
	Open(ctx context.Context, ownerID, name string) (Channel, error)
	Delete(ctx context.Context, channelID string) error
}

// Menus splits options into pages of at most MaxOptions.
func Menus(placeholder string, opts []Option) []Menu {
	var out []Menu
	for start := 0; start < len(opts); start += MaxOptions {
		end := start + MaxOptions
		if end > len(opts) {
			end = len(opts)
		}
		ph := placeholder
		if len(opts) > MaxOptions {
			ph = placeholder + " (" + opts[start].Label + " – " + opts[end-1].Label + ")"
		}
		out = append(out, Menu{Placeholder: ph, Options: opts[start:end]})
	}
	return out
}
