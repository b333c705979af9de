package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/nasguard/nasguard/internal/agent"
	"github.com/nasguard/nasguard/internal/agents"
	"github.com/nasguard/nasguard/internal/api"
	"github.com/nasguard/nasguard/internal/appliance"
	"github.com/nasguard/nasguard/internal/auth"
	"github.com/nasguard/nasguard/internal/config"
	"github.com/nasguard/nasguard/internal/logging"
	"github.com/nasguard/nasguard/internal/metrics"
	"github.com/nasguard/nasguard/internal/orchestrator"
	"github.com/nasguard/nasguard/internal/report"
	"github.com/nasguard/nasguard/internal/store"

	"github.com/prometheus/client_golang/prometheus"
)

type serveFlags struct {
	envFile string
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the nasguard monitoring server",
	RunE: func(cmd *cobra.Command, args []string) error {
		flags := serveFlags{}
		flags.envFile, _ = cmd.Flags().GetString("env-file")
		return runServe(cmd, flags)
	},
}

func init() {
	serveCmd.Flags().String("env-file", ".env", "path to a .env file with nasguard configuration")
}

func runServe(cmd *cobra.Command, flags serveFlags) error {
	cfg, err := config.Load(flags.envFile)
	if err != nil {
		return err
	}
	logging.Setup(cfg.LogLevel)

	log.Info().Str("appliance", cfg.ApplianceBaseURL).Msg("starting nasguard")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	persistence := store.NewFilePersistence(cfg.DataDir)
	dataStore := store.NewStore(persistence)

	client := appliance.NewHTTPClient(cfg.ApplianceBaseURL, cfg.ApplianceToken)

	orch := orchestrator.New()
	orch.Register(agents.NewStorageAgent(dataStore, client))
	orch.Register(agents.NewDisksAgent(dataStore, client))
	orch.Register(agents.NewBackupAgent(dataStore, client))
	orch.Register(agents.NewSecurityAgent(dataStore, client))
	orch.Register(agents.NewLogsAgent(dataStore, client))
	orch.Register(agents.NewUpdatesAgent(dataStore, client))

	metricsCollectors := metrics.New(prometheus.DefaultRegisterer)
	metricsCollectors.ActiveAgents.Set(6)

	var hashedToken string
	if cfg.APIToken != "" {
		hashedToken = auth.HashAPIToken(cfg.APIToken)
	}
	apiServer := api.NewServer(hashedToken, orch)

	watcher, err := config.Watch(flags.envFile, func(newCfg config.Config) {
		log.Info().Msg("configuration file changed on disk; restart nasguard to apply it")
	})
	if err != nil {
		log.Warn().Err(err).Msg("config file watcher disabled, edits require a restart")
	} else {
		defer watcher.Close()
	}

	httpServer := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      apiServer,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go runPollLoop(ctx, cfg.PollInterval, orch, apiServer, metricsCollectors)

	go func() {
		log.Info().Str("addr", cfg.ListenAddr).Msg("http server listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http server failed")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Info().Msg("shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http server shutdown error")
	}
	return nil
}

func runPollLoop(ctx context.Context, interval time.Duration, orch *orchestrator.Orchestrator, apiServer *api.Server, m *metrics.Metrics) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	runOnce(ctx, orch, apiServer, m)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			runOnce(ctx, orch, apiServer, m)
		}
	}
}

func runOnce(ctx context.Context, orch *orchestrator.Orchestrator, apiServer *api.Server, m *metrics.Metrics) {
	results := orch.RunAll(ctx)
	for _, r := range results {
		m.RecordRun(r.Agent, r.Duration.Seconds(), r.Err != nil, priorityCounts(r.Alerts))
	}

	rpt := report.Build(results, orch.LearningStatuses(), time.Now())
	apiServer.SetReport(rpt)

	if rpt.HasCriticalAlerts() {
		log.Warn().Int("alerts", len(rpt.Alerts)).Msg("critical alerts present in latest report")
	}
}

func priorityCounts(alerts []agent.Alert) map[string]int {
	counts := make(map[string]int, len(alerts))
	for _, a := range alerts {
		counts[a.Priority.String()]++
	}
	return counts
}
