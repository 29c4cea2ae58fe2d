package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/example/railbot/internal/admin"
	"github.com/example/railbot/internal/booking"
	"github.com/example/railbot/internal/bot"
	"github.com/example/railbot/internal/config"
	"github.com/example/railbot/internal/conversation"
	"github.com/example/railbot/internal/crypto"
	"github.com/example/railbot/internal/db"
	"github.com/example/railbot/internal/discord"
	"github.com/example/railbot/internal/events"
	"github.com/example/railbot/internal/logging"
	"github.com/example/railbot/internal/migrate"
	"github.com/example/railbot/internal/rail"
	"github.com/example/railbot/internal/rail/gateway"
	"github.com/example/railbot/internal/slots"
	"github.com/example/railbot/internal/store"
	"github.com/example/railbot/internal/workerpool"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func newServerCmd() *cobra.Command {
	var migrateUp bool

	cmd := &cobra.Command{
		Use:   "server",
		Short: "Run the Discord bot and the operator console",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.FromEnv()
			if err != nil {
				return err
			}

			log, err := logging.New(cfg.Env, cfg.LogLevel)
			if err != nil {
				return fmt.Errorf("logger: %w", err)
			}
			defer func() { _ = log.Sync() }()

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			enc, err := crypto.New(cfg.MasterKey)
			if err != nil {
				return err
			}

			d, err := db.Open(ctx, cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer d.Close()

			if err := d.Ping(ctx); err != nil {
				return fmt.Errorf("db ping: %w", err)
			}

			if migrateUp {
				applied, err := migrate.Up(ctx, d)
				if err != nil {
					return err
				}
				if len(applied) > 0 {
					log.Info("migrations applied", zap.Strings("versions", applied))
				}
			}

			users := store.NewUsers(d, enc)
			sessions := store.NewSessions(d)
			favorites := store.NewFavorites(d)

			// nothing from a previous process can still be polling
			n, err := sessions.RecoverOrphans(ctx)
			if err != nil {
				return fmt.Errorf("recover sessions: %w", err)
			}
			if n > 0 {
				log.Warn("marked orphaned sessions as errored", zap.Int64("sessions", n))
			}

			providers := rail.NewRegistry()
			providers.Register(rail.SRT, gateway.NewDialer(cfg.RailGatewayURL, rail.SRT, log))
			providers.Register(rail.KTX, gateway.NewDialer(cfg.RailGatewayURL, rail.KTX, log))

			slotTable := slots.NewManager(cfg.MaxSlots)
			engine := booking.NewEngine(booking.Config{
				Auth:   providers,
				Pool:   workerpool.New(cfg.WorkerPoolSize, cfg.ProviderRatePerSec),
				Creds:  users,
				Store:  sessions,
				Logger: log,
				Jitter: booking.GammaJitter(cfg.PollShape, cfg.PollScale, cfg.PollMin()),
			})

			convs := conversation.NewManager(conversation.Deps{
				Engine:    engine,
				Slots:     slotTable,
				Sessions:  sessions,
				Profiles:  users,
				Favorites: favorites,
				Events:    events.New(cfg.RabbitMQURL, log),
				Logger:    log,
				Timeouts: conversation.Timeouts{
					Idle:     cfg.ConversationTimeout(),
					Finished: cfg.FinishedDelay(),
					Aborted:  cfg.AbortedDelay(),
				},
			})

			gw, err := discord.New(discord.Config{
				Token:         cfg.DiscordToken,
				MainChannelID: cfg.MainChannelID,
				CategoryID:    cfg.CategoryID,
			}, log)
			if err != nil {
				return err
			}

			svc := bot.NewService(bot.Deps{
				Users:         users,
				Sessions:      sessions,
				Favorites:     favorites,
				Engine:        engine,
				Slots:         slotTable,
				Conversations: convs,
				Channels:      gw,
				Logger:        log,
				PromptTimeout: cfg.ConversationTimeout(),
			})

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error { return gw.Serve(gctx, svc, convs) })

			if cfg.AdminAddr != "" {
				console := &admin.Server{
					Auth:         admin.NewSessions(cfg.SessionHashKey, cfg.SessionBlockKey),
					PasswordHash: cfg.AdminPasswordHash,
					Slots:        slotTable,
					Releaser:     svc,
					Log:          log.Named("admin"),
				}
				g.Go(func() error { return admin.Start(gctx, cfg.AdminAddr, console.Routes(), log) })
			}

			log.Info("railbot started",
				zap.String("version", Version),
				zap.Int("max_slots", cfg.MaxSlots),
				zap.Int("workers", cfg.WorkerPoolSize),
			)
			err = g.Wait()

			if stopped := convs.ReleaseAll("server shutting down"); stopped > 0 {
				log.Info("stopped conversations", zap.Int("conversations", stopped))
			}
			return err
		},
	}

	cmd.Flags().BoolVar(&migrateUp, "migrate", true, "run database migrations on startup")

	cmd.Flags().Lookup("migrate").NoOptDefVal = "true"
	return cmd
}
