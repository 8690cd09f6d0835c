// Command taskhubd serves the realtime task tracker: websocket gateway
// on /ws, REST surface under /api, MongoDB persistence.
package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/spf13/pflag"

	"taskhub/config"
	"taskhub/dispatch"
	"taskhub/gateway"
	"taskhub/httpapi"
	"taskhub/identity"
	"taskhub/logging"
	"taskhub/session"
	"taskhub/shutdown"
	"taskhub/store"
	"taskhub/tasks"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var configPath string
	var addr string
	var logLevel string

	flagSet := pflag.NewFlagSet("taskhubd", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "path to taskhub.toml (default: standard locations)")
	flagSet.StringVar(&addr, "addr", "", "listen address (overrides config)")
	flagSet.StringVar(&logLevel, "log-level", "", "log level: DEBUG, INFO, WARN, ERROR (overrides config)")
	flagSet.BoolP("help", "h", false, "show help")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			flagSet.PrintDefaults()
			return nil
		}
		return err
	}
	if help, _ := flagSet.GetBool("help"); help {
		flagSet.PrintDefaults()
		return nil
	}

	cfg, loadedFrom, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if addr != "" {
		cfg.Server.Addr = addr
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}

	log := logging.New()
	log.SetLevel(logging.ParseLevel(cfg.Log.Level))
	if loadedFrom != "" {
		log.Info("config_loaded", map[string]interface{}{"path": loadedFrom})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	client, err := store.Connect(ctx, cfg.Mongo.URI)
	cancel()
	if err != nil {
		return fmt.Errorf("connect mongo: %w", err)
	}
	db := client.Database(cfg.Mongo.Database)

	indexCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	users, err := store.NewMongoUserStore(indexCtx, db)
	cancel()
	if err != nil {
		return fmt.Errorf("init user store: %w", err)
	}
	taskStore := store.NewMongoTaskStore(db)

	verifier := identity.NewVerifier([]byte(cfg.Auth.AccessSecret), users)
	issuer := identity.NewIssuer(
		[]byte(cfg.Auth.AccessSecret),
		[]byte(cfg.Auth.RefreshSecret),
		cfg.AccessTTL(),
		cfg.RefreshTTL(),
	)

	sessions := session.NewRegistry()
	handlers := tasks.NewHandlers(taskStore, users, log)
	dispatcher := dispatch.New(sessions, log)

	gw := gateway.New(verifier, handlers, sessions, dispatcher, gateway.DefaultConfig(), log)
	api := httpapi.New(verifier, issuer, handlers, dispatcher, users, log)

	mux := http.NewServeMux()
	mux.Handle("/ws", gw)
	mux.Handle("/api/", api.Router())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	server := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: mux,
	}

	coordinator := shutdown.New(cfg.ShutdownTimeout(), func(name string, err error) {
		if err != nil {
			log.Error("shutdown_step_failed", map[string]interface{}{"step": name, "error": err.Error()})
			return
		}
		log.Info("shutdown_step_done", map[string]interface{}{"step": name})
	})
	coordinator.Register("http", 10, func(ctx context.Context) error {
		return server.Shutdown(ctx)
	})
	coordinator.Register("sessions", 20, func(ctx context.Context) error {
		if online := sessions.Users(); len(online) > 0 {
			log.Info("closing_sessions", map[string]interface{}{"online_users": len(online)})
		}
		return sessions.Close()
	})
	coordinator.Register("mongo", 30, func(ctx context.Context) error {
		return client.Disconnect(ctx)
	})
	coordinator.HandleSignals()

	listener, err := net.Listen("tcp", cfg.Server.Addr)
	if err != nil {
		return err
	}
	log.Info("listening", map[string]interface{}{"addr": listener.Addr().String()})

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.Serve(listener)
	}()

	select {
	case err := <-serveErr:
		if err != http.ErrServerClosed {
			coordinator.Shutdown()
			return err
		}
	case <-coordinator.Done():
	}

	<-coordinator.Done()
	log.Info("stopped")
	return nil
}

func loadConfig(path string) (*config.Config, string, error) {
	if path != "" {
		cfg, err := config.LoadFile(path)
		return cfg, path, err
	}
	return config.Load()
}
