package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/example/railbot/internal/booking"
	"github.com/example/railbot/internal/conversation"
	"github.com/example/railbot/internal/db"
	"github.com/example/railbot/internal/rail"
)

func (s *Service) profile(ctx context.Context, inv Invocation) (*conversation.Message, error) {
	switch inv.Cmd.Arg(0) {
	case "set":
		p, err := rail.ParseProvider(inv.Cmd.Arg(1))
		if err != nil {
			return nil, userError("Usage: `!profile set srt` or `!profile set ktx`.")
		}
		return s.setLogin(ctx, inv, p)
	case "show":
		return s.showProfile(ctx, inv)
	case "delete":
		ok, err := s.d.Users.Delete(ctx, inv.UserID)
		if err != nil {
			return nil, fmt.Errorf("delete profile: %w", err)
		}
		if !ok {
			return text("You have no stored profile."), nil
		}
		return text("Your profile, card and favorite routes have been deleted."), nil
	}
	return nil, userError("Usage: `!profile set srt|ktx`, `!profile show` or `!profile delete`.")
}

func loginForm(p rail.Provider) conversation.FormPrompt {
	return conversation.FormPrompt{
		Title: fmt.Sprintf("%s login", p),
		Fields: []conversation.FormField{
			{Key: "id", Label: "Member number, email or phone", MaxLength: 64},
			{Key: "password", Label: "Password", MaxLength: 64, Secret: true},
		},
	}
}

func (s *Service) setLogin(ctx context.Context, inv Invocation, p rail.Provider) (*conversation.Message, error) {
	if _, err := s.d.Users.Ensure(ctx, inv.UserID); err != nil {
		return nil, fmt.Errorf("create profile: %w", err)
	}
	err := s.private(ctx, inv, "profile", func(ctx context.Context, ch conversation.Channel) error {
		in, err := s.form(ctx, ch, loginForm(p))
		if err != nil {
			return err
		}
		user, pass := strings.TrimSpace(in["id"]), in["password"]
		if user == "" || pass == "" {
			return userError("Both the id and the password are required.")
		}
		return s.d.Users.SetCredentials(ctx, inv.UserID, p, user, pass)
	})
	if err != nil {
		return nil, err
	}
	return text(fmt.Sprintf("Your %s login has been saved.", p)), nil
}

func (s *Service) showProfile(ctx context.Context, inv Invocation) (*conversation.Message, error) {
	u, err := s.d.Users.Get(ctx, inv.UserID)
	if db.IsNotFound(err) {
		return text("You have no stored profile. Start with `!profile set srt` or `!profile set ktx`."), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load profile: %w", err)
	}
	stored := func(ok bool) string {
		if ok {
			return "stored"
		}
		return "not stored"
	}
	return &conversation.Message{
		Title: "Your profile",
		Fields: []conversation.Field{
			{Name: "SRT login", Value: stored(u.HasSRT), Inline: true},
			{Name: "KTX login", Value: stored(u.HasKTX), Inline: true},
			{Name: "Card", Value: stored(u.HasCard), Inline: true},
		},
		Footer: "Stored values are encrypted and never shown",
	}, nil
}

func (s *Service) card(ctx context.Context, inv Invocation) (*conversation.Message, error) {
	if inv.Cmd.Arg(0) != "set" {
		return nil, userError("Usage: `!card set`.")
	}
	if _, err := s.d.Users.Ensure(ctx, inv.UserID); err != nil {
		return nil, fmt.Errorf("create profile: %w", err)
	}
	err := s.private(ctx, inv, "card", func(ctx context.Context, ch conversation.Channel) error {
		for {
			in, err := s.form(ctx, ch, cardForm())
			if err != nil {
				return err
			}
			c, err := ParseCard(in)
			if booking.IsValidation(err) {
				if err := ch.Send(ctx, conversation.Message{Text: err.Error() + ". Please try again.", Tone: conversation.ToneWarning}); err != nil {
					return err
				}
				continue
			}
			if err != nil {
				return err
			}
			return s.d.Users.SetCard(ctx, inv.UserID, c)
		}
	})
	if err != nil {
		return nil, err
	}
	return text("Your card has been saved."), nil
}

func cardForm() conversation.FormPrompt {
	return conversation.FormPrompt{
		Title: "Payment card",
		Fields: []conversation.FormField{
			{Key: "number", Label: "Card number", Placeholder: "1234-5678-1234-5678", MaxLength: 19, Secret: true},
			{Key: "password", Label: "First 2 digits of the card PIN", MaxLength: 2, Secret: true},
			{Key: "birthday", Label: "Birthday (YYMMDD) or business number", MaxLength: 10, Secret: true},
			{Key: "expire", Label: "Expiry (YYMM)", MaxLength: 4, Secret: true},
		},
	}
}

// ParseCard validates the card form. Spaces and hyphens in the number are
// ignored.
func ParseCard(in map[string]string) (rail.Card, error) {
	number := strings.NewReplacer(" ", "", "-", "").Replace(in["number"])
	if !digits(number) || len(number) < 15 || len(number) > 16 {
		return rail.Card{}, &booking.ValidationError{Field: "number", Msg: "the card number must be 15 or 16 digits"}
	}
	pw := strings.TrimSpace(in["password"])
	if !digits(pw) || len(pw) != 2 {
		return rail.Card{}, &booking.ValidationError{Field: "password", Msg: "enter the first 2 digits of the card PIN"}
	}
	bday := strings.TrimSpace(in["birthday"])
	if !digits(bday) || (len(bday) != 6 && len(bday) != 10) {
		return rail.Card{}, &booking.ValidationError{Field: "birthday", Msg: "the birthday must be YYMMDD or a 10 digit business number"}
	}
	exp := strings.TrimSpace(in["expire"])
	if !digits(exp) || len(exp) != 4 {
		return rail.Card{}, &booking.ValidationError{Field: "expire", Msg: "the expiry must be YYMM"}
	}
	if m, _ := strconv.Atoi(exp[2:]); m < 1 || m > 12 {
		return rail.Card{}, &booking.ValidationError{Field: "expire", Msg: "the expiry month must be 01 to 12"}
	}
	return rail.Card{Number: number, Password: pw, Birthday: bday, Expire: exp}, nil
}

func digits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
