package discord

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/example/railbot/internal/conversation"
)

var toneColors = map[conversation.Tone]int{
	conversation.ToneInfo:    0x3498db,
	conversation.ToneSuccess: 0x2ecc71,
	conversation.ToneWarning: 0xf39c12,
	conversation.ToneDanger:  0xe74c3c,
}

// Discord embed limits.
const (
	maxDescription = 4096
	maxFieldValue  = 1024
	maxFields      = 25
)

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func embed(m conversation.Message) *discordgo.MessageEmbed {
	e := &discordgo.MessageEmbed{
		Title:       m.Title,
		Description: clip(m.Text, maxDescription),
		Color:       toneColors[m.Tone],
	}
	for i, f := range m.Fields {
		if i == maxFields {
			break
		}
		e.Fields = append(e.Fields, &discordgo.MessageEmbedField{Name: f.Name, Value: clip(f.Value, maxFieldValue), Inline: f.Inline})
	}
	if m.Footer != "" {
		e.Footer = &discordgo.MessageEmbedFooter{Text: m.Footer}
	}
	return e
}

// flatten numbers the options of every menu from 1.
func flatten(p conversation.SelectPrompt) []conversation.Option {
	var out []conversation.Option
	for _, m := range p.Menus {
		out = append(out, m.Options...)
	}
	return out
}

func selectEmbed(p conversation.SelectPrompt, opts []conversation.Option) *discordgo.MessageEmbed {
	var b strings.Builder
	for i, o := range opts {
		fmt.Fprintf(&b, "`%d` %s", i+1, o.Label)
		if o.Description != "" {
			fmt.Fprintf(&b, " (%s)", o.Description)
		}
		b.WriteByte('\n')
	}
	footer := "Reply with a number."
	if p.MaxValues > 1 {
		footer = fmt.Sprintf("Reply with up to %d numbers separated by spaces or commas.", p.MaxValues)
	}
	return &discordgo.MessageEmbed{
		Title:       p.Text,
		Description: clip(b.String(), maxDescription),
		Color:       toneColors[conversation.ToneInfo],
		Footer:      &discordgo.MessageEmbedFooter{Text: footer},
	}
}

// parseChoice reads "1, 3 4" as option numbers. Duplicates are dropped and
// the order the user typed is kept.
func parseChoice(text string, n, maxValues int) ([]int, error) {
	if maxValues < 1 {
		maxValues = 1
	}
	fields := strings.FieldsFunc(text, func(r rune) bool { return r == ',' || r == ' ' || r == '\n' })
	if len(fields) == 0 {
		return nil, fmt.Errorf("reply with a number from 1 to %d", n)
	}
	seen := make(map[int]bool)
	var out []int
	for _, f := range fields {
		i, err := strconv.Atoi(f)
		if err != nil || i < 1 || i > n {
			return nil, fmt.Errorf("%q is not a number from 1 to %d", f, n)
		}
		if !seen[i] {
			seen[i] = true
			out = append(out, i-1)
		}
	}
	if len(out) > maxValues {
		return nil, fmt.Errorf("choose at most %d", maxValues)
	}
	return out, nil
}

func fieldPrompt(f conversation.FormField) string {
	var b strings.Builder
	b.WriteString("**" + f.Label + "**")
	if f.Placeholder != "" {
		b.WriteString(" (e.g. " + f.Placeholder + ")")
	}
	if f.Optional {
		b.WriteString("\nReply `-` to skip.")
	}
	if f.Secret {
		b.WriteString("\nYour reply is deleted right after it is read.")
	}
	return b.String()
}

// fieldValue applies the skip marker and the length limit.
func fieldValue(f conversation.FormField, text string) (string, error) {
	v := strings.TrimSpace(text)
	if f.Optional && v == "-" {
		return "", nil
	}
	if v == "" && !f.Optional {
		return "", fmt.Errorf("%s is required", f.Label)
	}
	if f.MaxLength > 0 && len([]rune(v)) > f.MaxLength {
		return "", fmt.Errorf("%s can be at most %d characters", f.Label, f.MaxLength)
	}
	return v, nil
}
