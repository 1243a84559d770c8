// main package for the voicechat web front end
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/voicechat-web/internal/backend"
	"github.com/book-expert/voicechat-web/internal/bridge"
	"github.com/book-expert/voicechat-web/internal/config"
	"github.com/book-expert/voicechat-web/internal/core"
	"github.com/book-expert/voicechat-web/internal/objectstore"
	"github.com/book-expert/voicechat-web/internal/session"
	"github.com/book-expert/voicechat-web/internal/web"
	"github.com/gin-gonic/gin"
	"github.com/nats-io/nats.go"
	"golang.org/x/sync/errgroup"
)

const (
	shutdownTimeout   = 10 * time.Second
	readHeaderTimeout = 10 * time.Second
	sweepInterval     = time.Minute
)

func setupLogger(logPath, fileName string) (*logger.Logger, error) {
	log, err := logger.New(logPath, fileName)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	return log, nil
}

// previewTTL keeps previews until their uploader releases them; the session
// sweep closes idle uploaders.
const previewTTL time.Duration = 0

// openStore returns the preview store and, when NATS is configured, the
// connection it runs on.
func openStore(cfg *config.Config, log *logger.Logger) (core.ObjectStore, *nats.Conn, error) {
	if cfg.NATS.URL == "" {
		if cfg.Preview.Store == config.PreviewStoreNATS {
			log.Warn("Preview store is nats but no NATS url is configured, using memory")
		}

		return objectstore.NewMemory(cfg.Preview.CacheMB<<20, previewTTL), nil, nil
	}

	natsConnection, err := nats.Connect(cfg.NATS.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to NATS at %s: %w", cfg.NATS.URL, err)
	}

	if cfg.Preview.Store != config.PreviewStoreNATS {
		return objectstore.NewMemory(cfg.Preview.CacheMB<<20, previewTTL), natsConnection, nil
	}

	jetstreamContext, err := natsConnection.JetStream()
	if err != nil {
		natsConnection.Close()

		return nil, nil, fmt.Errorf("failed to get JetStream context: %w", err)
	}

	store, err := objectstore.NewNats(jetstreamContext, cfg.NATS.PreviewBucket, previewTTL)
	if err != nil {
		natsConnection.Close()

		return nil, nil, err
	}

	return store, natsConnection, nil
}

func serve(ctx context.Context, httpServer *http.Server, log *logger.Logger) error {
	errChan := make(chan error, 1)

	go func() {
		errChan <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errChan:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}

		return fmt.Errorf("http server failed: %w", err)
	case <-ctx.Done():
	}

	log.Info("Shutting down http server")

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	shutdownErr := httpServer.Shutdown(shutdownCtx)
	if shutdownErr != nil {
		return fmt.Errorf("failed to shut down http server: %w", shutdownErr)
	}

	return nil
}

func run() error {
	// 1. Create a temporary logger for the bootstrap process
	bootstrapLog, err := setupLogger(os.TempDir(), "voicechat-web-bootstrap.log")
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Failed to create bootstrap logger: %v\n", err)

		return err
	}

	// 2. Load configuration using the central configurator
	cfg, err := config.Load(bootstrapLog)
	if err != nil {
		bootstrapLog.Error("Failed to load configuration: %v", err)

		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// 3. Initialize the final logger based on the loaded configuration
	log, err := setupLogger(cfg.Paths.BaseLogsDir, "voicechat-web.log")
	if err != nil {
		bootstrapLog.Error("Failed to create final logger: %v", err)

		return fmt.Errorf("failed to create final logger: %w", err)
	}

	defer func() {
		closeErr := log.Close()
		if closeErr != nil {
			fmt.Fprintf(os.Stderr, "error closing final logger: %v\n", closeErr)
		}
	}()

	_ = bootstrapLog.Close()

	// 4. Wire the backend client, preview store and sessions
	client := backend.NewClient(cfg.Backend.BaseURL, cfg.BackendTimeout(), log)

	store, natsConnection, err := openStore(cfg, log)
	if err != nil {
		log.Error("Failed to open preview store: %v", err)

		return err
	}

	if natsConnection != nil {
		defer natsConnection.Close()
	}

	registry := session.NewRegistry(session.Factory{
		Backend:          client,
		Store:            store,
		PreviewMaxHeight: cfg.Preview.MaxHeight,
		Log:              log,
	}, cfg.SessionTTL(), log)

	gin.SetMode(gin.ReleaseMode)

	server, err := web.NewServer(registry, client, web.Options{
		CookieSecret:   cfg.Server.CookieSecret,
		SessionName:    cfg.Server.SessionName,
		SessionTTL:     cfg.SessionTTL(),
		MaxUploadBytes: cfg.MaxUploadBytes(),
	}, log)
	if err != nil {
		log.Error("Failed to create web server: %v", err)

		return err
	}

	httpServer := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	// 5. Run everything until a signal arrives
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		return serve(groupCtx, httpServer, log)
	})

	group.Go(func() error {
		return registry.Run(groupCtx, sweepInterval)
	})

	if natsConnection != nil && cfg.NATS.ChatSubject != "" {
		chatBridge, bridgeErr := bridge.NewNatsBridge(
			natsConnection, cfg.NATS.ChatSubject, cfg.NATS.StatusSubject, client, cfg.BackendTimeout(), log,
		)
		if bridgeErr != nil {
			return bridgeErr
		}

		group.Go(func() error {
			return chatBridge.Run(groupCtx)
		})
	}

	log.System("voicechat-web listening on %s, backend %s", cfg.Server.Addr, client.BaseURL())

	err = group.Wait()
	if err != nil {
		log.Error("Service stopped with error: %v", err)

		return err
	}

	log.System("voicechat-web stopped")

	return nil
}

func main() {
	err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Service exited with error: %v\n", err)
		os.Exit(1)
	}
}
