package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"github.com/zulandar/pressbox/internal/db"
	"github.com/zulandar/pressbox/internal/notify"
	"github.com/zulandar/pressbox/internal/report"
	"github.com/zulandar/pressbox/internal/server"
	"github.com/zulandar/pressbox/internal/session"
	"gorm.io/gorm"
)

func newServeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the Pressbox API server",
		Long:  "Starts the HTTP API, the report archive, and the scheduled cache sweeps. Stops on SIGINT/SIGTERM.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to Pressbox config file")
	return cmd
}

func runServe(cmd *cobra.Command, configPath string) error {
	godotenv.Load()

	cfg, err := loadConfig(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gormDB, err := db.Connect(cfg.Database)
	if err != nil {
		return err
	}
	if err := db.AutoMigrate(gormDB); err != nil {
		return err
	}

	fanout := buildNotifiers(cfg.Notify.SlackChannel, cfg.Notify.DiscordChannel)
	onFinish := func(ctx context.Context, sess *session.Session) {
		if err := report.Save(gormDB, sess); err != nil {
			log.Printf("serve: archive session %s: %v", sess.ID, err)
		}
		fanout.Notify(ctx, notify.EventFor(sess, archivedTitle(gormDB, sess.ID)))
	}

	st, err := buildStack(ctx, cfg, onFinish)
	if err != nil {
		return err
	}

	sweeper := cron.New()
	if _, err := sweeper.AddFunc(cfg.Cache.SweepSchedule, func() {
		if n := st.cache.Sweep(); n > 0 {
			log.Printf("serve: swept %d expired cache entries", n)
		}
		if st.memStore != nil {
			if n := st.memStore.Sweep(); n > 0 {
				log.Printf("serve: swept %d expired sessions", n)
			}
		}
	}); err != nil {
		return fmt.Errorf("schedule sweeps: %w", err)
	}
	sweeper.Start()
	defer sweeper.Stop()

	return server.Start(ctx, server.Opts{
		Runner: st.orchestrator,
		Store:  st.store,
		DB:     gormDB,
		Port:   cfg.Server.Port,
		Out:    cmd.OutOrStdout(),
	})
}

// buildNotifiers assembles the configured notifiers. A missing token or
// channel just disables that notifier.
func buildNotifiers(slackChannel, discordChannel string) *notify.Fanout {
	var notifiers []notify.Notifier
	if token := os.Getenv("SLACK_BOT_TOKEN"); token != "" && slackChannel != "" {
		notifiers = append(notifiers, notify.NewSlackNotifier(token, slackChannel))
	}
	if token := os.Getenv("DISCORD_BOT_TOKEN"); token != "" && discordChannel != "" {
		dn, err := notify.NewDiscordNotifier(token, discordChannel)
		if err != nil {
			log.Printf("serve: discord notifier disabled: %v", err)
		} else {
			notifiers = append(notifiers, dn)
		}
	}
	return notify.NewFanout(notifiers...)
}

// archivedTitle looks up the just-archived report title for notifications.
func archivedTitle(gormDB *gorm.DB, sessionID string) string {
	rec, err := report.Get(gormDB, sessionID)
	if err != nil {
		return ""
	}
	return rec.Title
}
