package bot

import (
	"context"
	"fmt"
	"strconv"

	"github.com/example/railbot/internal/conversation"
	"github.com/example/railbot/internal/db"
	"github.com/example/railbot/internal/store"
)

func (s *Service) favorites(ctx context.Context, inv Invocation) (*conversation.Message, error) {
	switch inv.Cmd.Arg(0) {
	case "add":
		return s.addFavorite(ctx, inv)
	case "list":
		return s.listFavorites(ctx, inv)
	case "delete":
		return s.deleteFavorite(ctx, inv)
	}
	return nil, userError("Usage: `!fav add`, `!fav list` or `!fav delete`.")
}

func stationSelect(text string) conversation.SelectPrompt {
	names := conversation.AllStations()
	opts := make([]conversation.Option, len(names))
	for i, n := range names {
		opts[i] = conversation.Option{Label: n, Value: n}
	}
	return conversation.SelectPrompt{Text: text, Menus: conversation.Menus("Station", opts), MaxValues: 1}
}

func (s *Service) addFavorite(ctx context.Context, inv Invocation) (*conversation.Message, error) {
	u, err := s.d.Users.Ensure(ctx, inv.UserID)
	if err != nil {
		return nil, fmt.Errorf("create profile: %w", err)
	}
	var fav store.Favorite
	err = s.private(ctx, inv, "favorite", func(ctx context.Context, ch conversation.Channel) error {
		dep, err := s.selectOne(ctx, ch, stationSelect("Choose the departure station:"))
		if err != nil {
			return err
		}
		arr, err := s.selectOne(ctx, ch, stationSelect("Choose the arrival station:"))
		if err != nil {
			return err
		}
		fav, err = s.d.Favorites.Add(ctx, u.ID, dep, arr)
		return err
	})
	if err != nil {
		return nil, err
	}
	return text(fmt.Sprintf("Saved favorite route %s.", fav.Label())), nil
}

// userFavorites is empty for users without a profile.
func (s *Service) userFavorites(ctx context.Context, discordID string) ([]store.Favorite, error) {
	u, err := s.d.Users.Get(ctx, discordID)
	if db.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load profile: %w", err)
	}
	return s.d.Favorites.List(ctx, u.ID)
}

func (s *Service) listFavorites(ctx context.Context, inv Invocation) (*conversation.Message, error) {
	favs, err := s.userFavorites(ctx, inv.UserID)
	if err != nil {
		return nil, err
	}
	if len(favs) == 0 {
		return text("You have no favorite routes. Add one with `!fav add`."), nil
	}
	m := &conversation.Message{Title: "Favorite routes", Footer: fmt.Sprintf("%d of %d", len(favs), store.MaxFavorites)}
	for i, f := range favs {
		m.Fields = append(m.Fields, conversation.Field{Name: strconv.Itoa(i + 1), Value: f.Label(), Inline: true})
	}
	return m, nil
}

func (s *Service) deleteFavorite(ctx context.Context, inv Invocation) (*conversation.Message, error) {
	favs, err := s.userFavorites(ctx, inv.UserID)
	if err != nil {
		return nil, err
	}
	if len(favs) == 0 {
		return text("You have no favorite routes."), nil
	}
	opts := make([]conversation.Option, len(favs))
	for i, f := range favs {
		opts[i] = conversation.Option{Label: f.Label(), Value: strconv.FormatInt(f.ID, 10)}
	}
	var removed string
	err = s.private(ctx, inv, "favorite", func(ctx context.Context, ch conversation.Channel) error {
		v, err := s.selectOne(ctx, ch, conversation.SelectPrompt{
			Text:      "Choose the route to delete:",
			Menus:     []conversation.Menu{{Placeholder: "Favorite routes", Options: opts}},
			MaxValues: 1,
		})
		if err != nil {
			return err
		}
		id, _ := strconv.ParseInt(v, 10, 64)
		for _, f := range favs {
			if f.ID != id {
				continue
			}
			ok, err := s.d.Favorites.Remove(ctx, f.UserID, f.ID)
			if err != nil {
				return err
			}
			if ok {
				removed = f.Label()
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if removed == "" {
		return text("That route was already gone."), nil
	}
	return text(fmt.Sprintf("Deleted favorite route %s.", removed)), nil
}
