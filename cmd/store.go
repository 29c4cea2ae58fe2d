package cmd

import (
	"context"

	"github.com/example/railbot/internal/config"
	"github.com/example/railbot/internal/crypto"
	"github.com/example/railbot/internal/db"
	"github.com/example/railbot/internal/migrate"
	"github.com/example/railbot/internal/store"
)

type stores struct {
	db       *db.DB
	users    *store.Users
	sessions *store.Sessions
}

// openStores connects and migrates the database for the maintenance
// commands. The caller closes s.db.
func openStores(ctx context.Context) (*stores, error) {
	cfg, err := config.StoreFromEnv()
	if err != nil {
		return nil, err
	}
	enc, err := crypto.New(cfg.MasterKey)
	if err != nil {
		return nil, err
	}
	d, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if _, err := migrate.Up(ctx, d); err != nil {
		d.Close()
		return nil, err
	}
	return &stores{db: d, users: store.NewUsers(d, enc), sessions: store.NewSessions(d)}, nil
}
