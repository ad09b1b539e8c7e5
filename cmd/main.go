package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"brokerage_ledger/internal/config"
	"brokerage_ledger/internal/handlers"
	"brokerage_ledger/internal/repository/database"
	importitems "brokerage_ledger/internal/repository/imports"
	"brokerage_ledger/internal/repository/notifications"
	"brokerage_ledger/internal/server"
	"brokerage_ledger/internal/transport/auth"

	goredis "github.com/redis/go-redis/v9"
)

func main() {
	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	setupCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cfg := config.Init(setupCtx)
	defer cfg.Close(context.Background())
	fmt.Println("✅ All connections successfully established!")

	if cfg.Migrate {
		if err := database.EnsureSchema(setupCtx, cfg.Postgres); err != nil {
			log.Fatalf("❌ Schema migration failed: %v", err)
		}
		if err := cfg.S3.EnsureBuckets(setupCtx); err != nil {
			log.Fatalf("❌ Bucket setup failed: %v", err)
		}
		if err := notifications.EnsureIndexes(setupCtx, cfg.Mongo); err != nil {
			log.Fatalf("❌ Mongo index setup failed: %v", err)
		}
		if err := importitems.EnsureIndexes(setupCtx, cfg.Mongo); err != nil {
			log.Fatalf("❌ Mongo index setup failed: %v", err)
		}
	}

	if err := cfg.CheckConnections(setupCtx); err != nil {
		log.Fatalf("❌ Connection check failed: %v", err)
	}
	fmt.Println("🟢 All connections OK")

	var cache *goredis.Client
	if cfg.Redis != nil {
		cache = cfg.Redis.Client
	}
	authn := &auth.Authenticator{
		Secret:   cfg.JWTSecret,
		Roles:    database.NewRolesRepo(cfg.Postgres),
		Cache:    cache,
		CacheTTL: cfg.RoleCacheTTL,
	}

	h := handlers.New(cfg)
	srv := server.NewServer(cfg.Port, h, authn)

	if err := srv.Run(runCtx); err != nil {
		log.Fatal(err)
	}
}
