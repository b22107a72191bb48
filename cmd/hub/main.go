package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"main/internal/auth"
	"main/internal/hub"
	"main/internal/ops"
	"main/internal/storage"
	"main/pkg/conn"

	pyroscope "github.com/grafana/pyroscope-go"
	"github.com/yanun0323/logs"
)

const shutdownGrace = 10 * time.Second

func main() {
	configPath := flag.String("config", "config.json", "Path to JSON config")
	seedEmail := flag.String("seed-admin-email", "", "Create an admin account on startup")
	seedPassword := flag.String("seed-admin-password", "", "Password for the seeded admin account")
	flag.Parse()

	cfg, err := ops.LoadHub(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Profiling != nil {
		profiler, err := pyroscope.Start(pyroscope.Config{
			ApplicationName: cfg.Profiling.ApplicationName,
			ServerAddress:   cfg.Profiling.ServerAddress,
			ProfileTypes: []pyroscope.ProfileType{
				pyroscope.ProfileCPU,
				pyroscope.ProfileAllocObjects,
				pyroscope.ProfileAllocSpace,
				pyroscope.ProfileInuseObjects,
				pyroscope.ProfileInuseSpace,
			},
		})
		if err != nil {
			log.Fatalf("pyroscope start failed: %v", err)
		}
		defer func() {
			_ = profiler.Stop()
		}()
	}

	users, cleanup, err := buildUserStore(cfg)
	if err != nil {
		log.Fatalf("user store: %v", err)
	}
	defer cleanup()

	if *seedEmail != "" {
		if err := seedAdmin(ctx, users, *seedEmail, *seedPassword); err != nil {
			log.Fatalf("seed admin: %v", err)
		}
	}

	manager := hub.NewManager()
	go manager.RunHeartbeat(ctx, cfg.Heartbeat)

	server, err := hub.NewServer(hub.Options{
		Addr:           cfg.Addr,
		Users:          users,
		Tokens:         auth.NewManager(cfg.AuthSecret, cfg.TokenTTL, cfg.Issuer),
		Manager:        manager,
		DisableReqLogs: cfg.DisableRequestLogs,
	})
	if err != nil {
		log.Fatalf("build server: %v", err)
	}

	go func() {
		logs.Infof("hub listening on %s", cfg.Addr)
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("serve: %v", err)
		}
	}()

	<-ctx.Done()
	logs.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := server.Stop(shutdownCtx); err != nil {
		logs.Errorf("shutdown, err: %+v", err)
	}
}

// buildUserStore opens the configured database, falling back to the
// in-memory store when none is configured.
func buildUserStore(cfg ops.HubConfig) (storage.UserStore, func(), error) {
	if cfg.Postgres == nil {
		logs.Warn("no database configured, using in-memory accounts")
		return storage.NewMemoryUserStore(), func() {}, nil
	}

	client, err := conn.New(*cfg.Postgres)
	if err != nil {
		return nil, nil, err
	}
	if err := client.Ping(); err != nil {
		_ = client.Close()
		return nil, nil, err
	}

	store, err := storage.NewPostgresUserStore(client.DB())
	if err != nil {
		_ = client.Close()
		return nil, nil, err
	}
	if err := store.Migrate(); err != nil {
		_ = client.Close()
		return nil, nil, err
	}

	return store, func() { _ = client.Close() }, nil
}

func seedAdmin(ctx context.Context, users storage.UserStore, email, password string) error {
	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}
	admin := storage.User{
		Email:          email,
		HashedPassword: hash,
		SubjectType:    "admin",
		FullName:       "Administrator",
		Active:         true,
	}

	switch store := users.(type) {
	case *storage.MemoryUserStore:
		store.Put(admin)
	case *storage.PostgresUserStore:
		if err := store.Upsert(ctx, admin); err != nil {
			return err
		}
	}
	logs.Infof("seeded admin account %s", email)
	return nil
}
