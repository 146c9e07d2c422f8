package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"lablink/app"
	"lablink/config"
	"lablink/db"
	"lablink/routes"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(log)

	root := &cobra.Command{
		Use:           "lablink",
		Short:         "Lab inventory borrow and return service",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			envFile, _ := cmd.Flags().GetString("env")
			return config.LoadEnv(envFile)
		},
	}
	root.PersistentFlags().String("env", ".env", "dotenv file to load")
	root.AddCommand(serveCmd(log), migrateCmd(log), dispatchCmd(log), sessionCmd(log))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := root.ExecuteContext(ctx); err != nil {
		log.Error("command failed", "err", err)
		os.Exit(1)
	}
}

func serveCmd(log *slog.Logger) *cobra.Command {
	var noDispatch bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the outbox dispatcher",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg := app.LoadConfig()
			application, err := app.New(cfg, log)
			if err != nil {
				return err
			}
			defer application.Close()
			if err := app.BootstrapStaff(ctx, cfg, application.Repo, log); err != nil {
				return err
			}
			routes.RegisterRoutes(application.Router, application)

			if !noDispatch {
				go func() {
					if err := application.Dispatcher.Run(ctx, cfg.DispatchInterval, cfg.DispatchBatch); err != nil && !errors.Is(err, context.Canceled) {
						log.Error("dispatcher stopped", "err", err)
					}
				}()
			}

			srv := &http.Server{Addr: ":" + cfg.Port, Handler: application.Router}
			errc := make(chan error, 1)
			go func() {
				log.Info("listening", "addr", srv.Addr)
				errc <- srv.ListenAndServe()
			}()
			select {
			case err := <-errc:
				return err
			case <-ctx.Done():
			}
			shutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdown)
		},
	}
	cmd.Flags().BoolVar(&noDispatch, "no-dispatch", false, "do not run the outbox dispatcher in-process")
	return cmd
}

func migrateCmd(log *slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply schema migrations and seed staff assignments",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := app.LoadConfig()
			conn, err := db.ConnectDB(cfg.DatabaseDSN())
			if err != nil {
				return err
			}
			if sqlDB, err := conn.DB(); err == nil {
				defer sqlDB.Close()
			}
			if err := app.BootstrapStaff(cmd.Context(), cfg, db.NewRepo(conn), log); err != nil {
				return err
			}
			log.Info("migrations applied")
			return nil
		},
	}
}

func dispatchCmd(log *slog.Logger) *cobra.Command {
	var once bool
	cmd := &cobra.Command{
		Use:   "dispatch",
		Short: "Run the outbox dispatcher without the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg := app.LoadConfig()
			application, err := app.New(cfg, log)
			if err != nil {
				return err
			}
			defer application.Close()
			if once {
				n, err := application.Dispatcher.Drain(ctx, cfg.DispatchBatch)
				log.Info("outbox drained", "delivered", n)
				return err
			}
			err = application.Dispatcher.Run(ctx, cfg.DispatchInterval, cfg.DispatchBatch)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
	cmd.Flags().BoolVar(&once, "once", false, "drain one batch and exit")
	return cmd
}

// sessionCmd mints a session for local testing; production sessions come
// from the login service.
func sessionCmd(log *slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "issue-session <user-id>",
		Short: "Create an application session for a user id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := uuid.Parse(args[0]); err != nil {
				return fmt.Errorf("user id must be a uuid: %w", err)
			}
			cfg := app.LoadConfig()
			application, err := app.New(cfg, log)
			if err != nil {
				return err
			}
			defer application.Close()
			id := uuid.NewString()
			if err := application.AppSessions().Create(cmd.Context(), id, args[0]); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		},
	}
}
