package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"whiteboard/config"
	"whiteboard/config/database"
	"whiteboard/internal/board/repository"
	"whiteboard/pkg/logger"
	"whiteboard/router"
	"whiteboard/socket"
)

func newServeCmd() *cobra.Command {
	var (
		port    string
		migrate bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and WebSocket server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig()
			if cmd.Flags().Changed("port") {
				cfg.Server.Port = port
			}
			if migrate {
				cfg.Database.AutoMigrate = true
			}
			return serve(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVarP(&port, "port", "p", "", "listen address, overrides PORT")
	cmd.Flags().BoolVar(&migrate, "migrate", false, "apply the schema before serving")
	return cmd
}

// serve expects the logger to be initialised already.
func serve(parent context.Context, cfg *config.Config) error {
	defer logger.Sync()

	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	if cfg.Database.AutoMigrate {
		if err := database.Migrate(ctx, db); err != nil {
			return err
		}
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := socket.NewMetrics(reg)

	rooms := socket.NewRegistry()
	engine := socket.NewEngine(repository.NewBoardRepository(db), rooms, metrics, cfg.WebSocket.AppendTimeout)
	hub := socket.NewHub(rooms, engine, socket.Options{
		SendBuffer:     cfg.WebSocket.SendBuffer,
		WriteWait:      cfg.WebSocket.WriteWait,
		PongWait:       cfg.WebSocket.PongWait,
		MaxMessageSize: cfg.WebSocket.MaxMessageSize,
	}, metrics)
	defer hub.Shutdown()

	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		relay := socket.NewRelay(rdb, cfg.Redis.ChannelPrefix, uuid.NewString(), metrics)
		if err := relay.Start(ctx, engine.Deliver); err != nil {
			rdb.Close()
			return fmt.Errorf("start room relay: %w", err)
		}
		defer relay.Close()
		engine.SetRelay(relay)
	} else {
		logger.Sugar.Info("REDIS_ADDR not set, room relay disabled (single instance mode)")
	}

	srv := &http.Server{
		Addr:              listenAddr(cfg.Server.Port),
		Handler:           router.Setup(db, hub, cfg, reg),
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Sugar.Infof("Whiteboard backend listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Sugar.Info("Shutting down")
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	// Hijacked WebSocket connections are not tracked by http.Server, close them explicitly.
	hub.Shutdown()
	return srv.Shutdown(shutdownCtx)
}

// listenAddr accepts both "8080" and ":8080".
func listenAddr(port string) string {
	if port == "" {
		return ":8080"
	}
	if !strings.Contains(port, ":") {
		return ":" + port
	}
	return port
}
