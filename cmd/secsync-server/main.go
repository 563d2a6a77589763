// secsync is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// secsync is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with secsync. If not, see <https://www.gnu.org/licenses/>.

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/secsync-go/secsync/config"
	"github.com/secsync-go/secsync/internal/logger"
	"github.com/secsync-go/secsync/internal/metrics"
	"github.com/secsync-go/secsync/pkg/health"
	"github.com/secsync-go/secsync/server"
	"github.com/secsync-go/secsync/server/memory"
	"github.com/secsync-go/secsync/server/postgres"
	"github.com/secsync-go/secsync/transport/websocket"
)

var configDir string

var rootCmd = &cobra.Command{
	Use:   "secsync-server",
	Short: "secsync server core",
	Long: `secsync-server runs the server-side half of the secsync protocol:
per-document websocket fan-out, snapshot/update persistence and the
transactional clock validation that keeps causal ordering intact.`,
	RunE: runServe,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.Flags().StringVarP(&configDir, "config-dir", "c", "config", "Directory containing environment config files")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(config.LoaderOptions{ConfigDir: configDir})
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if cfg.Server == nil {
		cfg.Server = &config.ServerConfig{ListenAddr: ":8080", StoreDriver: "memory"}
	}

	log := logger.NewLogger(os.Stdout, logger.LevelFromConfig(loggingLevel(cfg)))

	store, err := openStore(cfg.Server)
	if err != nil {
		return err
	}
	defer store.Close()

	collector := metrics.NewCollector()
	hub := server.NewHub(server.HubConfig{
		Store:       store,
		Metrics:     collector,
		Log:         log,
		LenientMode: cfg.Server.LenientMode,
	})

	wsServer := websocket.NewServer(hub.Handle, hub.OnConnect, hub.OnDisconnect)

	httpServer := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           wsServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("secsync server listening", logger.String("addr", cfg.Server.ListenAddr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("server error", logger.Error(err))
		}
	}()

	if cfg.Metrics != nil && cfg.Metrics.Enabled {
		metricsAddr := fmt.Sprintf(":%d", cfg.Metrics.Port)
		go func() {
			log.Info("metrics server listening", logger.String("addr", metricsAddr))
			if err := metrics.StartServer(metricsAddr); err != nil && err != http.ErrServerClosed {
				log.Error("metrics server error", logger.Error(err))
			}
		}()
	}

	if cfg.Health != nil && cfg.Health.Enabled {
		checker := health.NewChecker(cfg.Health.Timeout)
		checker.RegisterCheck("store", health.StoreHealthCheck(store.Ping))
		checker.RegisterCheck("websocket", func(ctx context.Context) error { return nil })
		healthServer := health.NewServer(checker, log, cfg.Health.Port)
		if err := healthServer.Start(); err != nil {
			return fmt.Errorf("failed to start health server: %w", err)
		}
		defer func() { _ = healthServer.Stop(context.Background()) }()
	}

	waitForShutdown(log)
	return gracefulShutdown(httpServer, wsServer, log)
}

func loggingLevel(cfg *config.Config) string {
	if cfg.Logging == nil {
		return "info"
	}
	return cfg.Logging.Level
}

func openStore(cfg *config.ServerConfig) (server.Store, error) {
	switch cfg.StoreDriver {
	case "", "memory":
		return memory.NewStore(), nil
	case "postgres":
		if cfg.Postgres == nil {
			return nil, fmt.Errorf("store driver postgres requires server.postgres configuration")
		}
		return postgres.NewStore(context.Background(), postgres.Config{
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			Database: cfg.Postgres.Database,
			SSLMode:  cfg.Postgres.SSLMode,
		})
	default:
		return nil, fmt.Errorf("unknown store driver: %s", cfg.StoreDriver)
	}
}

func waitForShutdown(log logger.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
	log.Info("shutdown signal received")
}

func gracefulShutdown(httpServer *http.Server, wsServer *websocket.Server, log logger.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := wsServer.Close(); err != nil {
		log.Warn("error closing websocket connections", logger.Error(err))
	}
	if err := httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shut down cleanly: %w", err)
	}
	return nil
}
