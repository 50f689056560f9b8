package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"tabletop-sync-server/board"
	"tabletop-sync-server/config"
	"tabletop-sync-server/hub"
	"tabletop-sync-server/observability"
	"tabletop-sync-server/protocol"
	ws "tabletop-sync-server/websocket"
)

func main() {
	configPath := flag.String("config", "", "path to configuration file")
	flag.Parse()

	envErr := godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("initializing logger: %v", err)
	}
	defer logger.Sync()

	if envErr != nil {
		logger.Debug("no .env file found, using environment variables")
	}

	layout, err := board.LoadLayout(cfg.Game.Layout)
	if err != nil {
		logger.Fatal("loading layout", zap.Error(err))
	}

	registry := hub.New(hub.Options{
		Layout:      layout,
		GracePeriod: cfg.Game.GracePeriod,
		Logger:      logger,
	})
	handler := protocol.NewHandler(registry, logger, protocol.Options{
		RejectConflicts: cfg.Game.RejectConflicts,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go registry.Run(ctx, cfg.Game.SweepInterval)

	server := &http.Server{
		Addr:    cfg.Server.Addr(),
		Handler: newRouter(registry, handler, logger),
	}

	go func() {
		logger.Info("server starting",
			zap.String("addr", cfg.Server.Addr()),
			zap.Duration("sweep_interval", cfg.Game.SweepInterval),
			zap.Duration("grace_period", cfg.Game.GracePeriod))
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	logger.Info("server shutting down", zap.String("signal", sig.String()))
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", zap.Error(err))
	}
}

func newRouter(registry *hub.Hub, handler *protocol.Handler, logger *zap.Logger) *mux.Router {
	r := mux.NewRouter()
	r.Handle("/ws", ws.Handler(handler, logger))
	r.HandleFunc("/health", healthHandler).Methods(http.MethodGet)
	r.HandleFunc("/stats", statsHandler(registry)).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler())
	return r
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func statsHandler(registry *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessions, players := registry.Stats()
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]int{"sessions": sessions, "players": players})
	}
}
