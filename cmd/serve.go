package cmd

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

	"github.com/spf13/cobra"

	"github.com/formbase/formbase/internal/api"
	"github.com/formbase/formbase/internal/config"
	"github.com/formbase/formbase/internal/engine"
	"github.com/formbase/formbase/internal/logging"
	"github.com/formbase/formbase/internal/registry"
	"github.com/formbase/formbase/internal/relation"
	"github.com/formbase/formbase/internal/store"
	"github.com/formbase/formbase/internal/ws"
)

var servePort int
var serveDevMode bool
var serveConfig string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the API server",
	Long:  `Start the HTTP API server. Every configured data source is served as a live CRUD endpoint under /api/crud/.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadServeConfig()
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("port") {
			cfg.Server.Port = servePort
		}
		if serveDevMode {
			cfg.Server.DevMode = true
		}

		logger, err := logging.Setup(logLevel, cfg.Logging.Directory)
		if err != nil {
			return fmt.Errorf("setting up logging: %w", err)
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		m, err := store.Connect(ctx, cfg.Mongo.ConnectionString, cfg.Mongo.Database)
		if err != nil {
			return fmt.Errorf("connecting to mongodb: %w", err)
		}
		defer func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := m.Close(closeCtx); err != nil {
				logger.Warn("closing mongodb client", "error", err)
			}
		}()

		if err := m.Setup(ctx); err != nil {
			return fmt.Errorf("preparing metadata collections: %w", err)
		}

		reg := registry.New(m.Indexer(), logger)
		resolver := relation.NewResolver(m.Schemas(), m.Records(), reg, logger)

		hub := ws.NewHub(logger)
		hub.SetStateProvider(func() ([]byte, error) {
			return json.Marshal(map[string]any{
				"cachedDataSources": reg.Cached(),
			})
		})
		go hub.Run()

		eng := engine.New(engine.Config{
			Schemas:   m.Schemas(),
			Apps:      m.Apps(),
			Pages:     m.Pages(),
			Records:   m.Records(),
			Registry:  reg,
			Relations: resolver,
			Events:    hub,
			Logger:    logger,
		})

		srv := api.New(eng, logger, cfg.Server.Port,
			api.WithHub(hub),
			api.WithDevMode(cfg.Server.DevMode),
		)

		errCh := make(chan error, 1)
		go func() {
			errCh <- srv.Start()
		}()

		fmt.Fprintf(os.Stderr, "Formbase API: http://localhost:%d\n", cfg.Server.Port)

		select {
		case err := <-errCh:
			if err != nil && err != http.ErrServerClosed {
				return err
			}
		case <-ctx.Done():
			logger.Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("server shutdown: %w", err)
			}
		}

		return nil
	},
}

// loadServeConfig prefers the --config flag, then the root --config flag,
// then the default path if a file exists there. Without any config file the
// local-development defaults apply.
func loadServeConfig() (*config.Config, error) {
	path := serveConfig
	if path == "" {
		path = cfgFile
	}
	if path != "" {
		cfg, err := config.Load(path)
		if err != nil {
			return nil, fmt.Errorf("loading config: %w", err)
		}
		return cfg, nil
	}

	if _, err := os.Stat(config.ExpandHome(config.DefaultPath)); err == nil {
		cfg, err := config.Load("")
		if err != nil {
			return nil, fmt.Errorf("loading config: %w", err)
		}
		return cfg, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("checking config path: %w", err)
	}

	return config.Default(), nil
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 8080, "port for the API server")
	serveCmd.Flags().BoolVar(&serveDevMode, "dev", false, "enable CORS for development mode")
	serveCmd.Flags().StringVar(&serveConfig, "config", "", "path to config file")
	rootCmd.AddCommand(serveCmd)
}
