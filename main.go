package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"hubtask/config"
	jobs "hubtask/job"
	"hubtask/metrics"
	"hubtask/migrations"
	"hubtask/repositories"
	"hubtask/routes"
	"hubtask/services"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "hubtask",
	Short: "Lark task dashboard backend",
	Long: `hubtask mirrors Lark Base records, Task v2 tasks and their comments
into a local store and serves them to the dashboard.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		cfg = config.LoadConfig()
		setupLogging(cfg)
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	RunE:  runServe,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := repositories.OpenDB(cfg)
		if err != nil {
			return err
		}
		return migrations.RunMigrations(db)
	},
}

var syncCmd = &cobra.Command{
	Use:       "sync [all|tasks|taskv2|comments|embeddings]",
	Short:     "Run one sync and print the result as JSON",
	Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{"all", "tasks", "taskv2", "comments", "embeddings"},
	RunE:      runSync,
}

func init() {
	rootCmd.AddCommand(serveCmd, migrateCmd, syncCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics.Register()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close()

	e := routes.NewServer()
	routes.RegisterRoutes(e, a.handlers(), cfg.CronSecret)

	go jobs.StartSyncJob(ctx, cfg.SyncInterval, func(ctx context.Context) bool {
		return a.orchestrator.RunAll(ctx).Success
	})

	go func() {
		logrus.WithField("port", cfg.Port).Info("Server listening")
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.WithError(err).Fatal("Server stopped unexpectedly")
		}
	}()

	<-ctx.Done()
	logrus.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}

func runSync(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close()

	target := "all"
	if len(args) == 1 {
		target = args[0]
	}

	var out interface{}
	switch target {
	case "all":
		res := a.orchestrator.RunAll(ctx)
		out = res
		if !res.Success {
			err = errors.New(res.Message)
		}
	default:
		var res *services.SyncResult
		res, err = a.runner(target)(ctx)
		out = res
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if out != nil {
		if encErr := enc.Encode(out); encErr != nil {
			return encErr
		}
	}
	if err != nil {
		return fmt.Errorf("%s sync failed: %w", target, err)
	}
	return nil
}

func (a *app) runner(target string) services.Runner {
	switch target {
	case "tasks":
		return a.sync.SyncBitable
	case "taskv2":
		return a.sync.SyncTaskV2
	case "comments":
		return a.sync.SyncComments
	default:
		return a.embeddings.SyncEmbeddings
	}
}
