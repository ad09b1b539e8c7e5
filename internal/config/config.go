package config

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"brokerage_ledger/internal/adapters/receipts"
	"brokerage_ledger/internal/config/connections/mongo"
	"brokerage_ledger/internal/config/connections/postgres"
	"brokerage_ledger/internal/config/connections/redis"
	"brokerage_ledger/internal/config/connections/s3"

	"github.com/joho/godotenv"
)

type Config struct {
	Port     string
	S3       *s3.S3
	Mongo    *mongo.Mongo
	Postgres *postgres.Postgres
	Redis    *redis.Redis

	ReceiptPublicBase string
	ReceiptRetry      receipts.RetryPolicy
	ReceiptMaxBytes   int64

	JWTSecret    []byte
	RoleCacheTTL time.Duration

	Migrate bool
}

func Init(ctx context.Context) *Config {
	_ = godotenv.Load()
	port := getenv("SERVER_PORT", "8070")

	s3c, err := s3.NewConnection(s3.ConnectionInfo{
		Endpoint:       getenv("AWS_ENDPOINT", "localhost:9000"),
		AccessKey:      getenv("AWS_ACCESS_KEY_ID", "minioadmin"),
		SecretKey:      getenv("AWS_SECRET_ACCESS_KEY", "minioadmin"),
		Region:         getenv("AWS_DEFAULT_REGION", "us-east-1"),
		ImportsBucket:  getenv("AWS_IMPORTS_BUCKET", "imports"),
		ReceiptsBucket: getenv("AWS_RECEIPTS_BUCKET", "receipts"),
		UseSSL:         getenv("AWS_USE_SSL", "false") == "true",
	})
	if err != nil {
		log.Fatal("S3 connect error:", err)
	}

	mg, err := mongo.NewConnection(ctx, mongo.ConnectionInfo{
		Scheme:     getenv("MONGO_SCHEME", "mongodb"),
		User:       getenv("MONGO_USER", "root"),
		Password:   getenv("MONGO_PASSWORD", "secret"),
		Host:       getenv("MONGO_HOST", "127.0.0.1"),
		Port:       getenv("MONGO_PORT", "27017"),
		DB:         getenv("MONGO_DB", "ledger_db"),
		AuthSource: getenv("MONGO_AUTH_SOURCE", "admin"),
	})
	if err != nil {
		log.Fatal("Mongo connect error:", err)
	}

	pg, err := postgres.NewConnection(ctx, postgres.ConnectionInfo{
		Host:     getenv("PG_HOST", "127.0.0.1"),
		Port:     getenv("PG_PORT", "5432"),
		User:     getenv("PG_USER", "root"),
		Password: getenv("PG_PASSWORD", "hello-world"),
		DB:       getenv("PG_DB", "brokerage"),
		SSLMode:  getenv("PG_SSLMODE", "disable"),
		MaxConns: int32(getint("PG_MAX_CONNS", 10)),
	})
	if err != nil {
		log.Fatal("Postgres connect error:", err)
	}

	rd, err := redis.NewConnection(ctx, redis.ConnectionInfo{
		Addr:     getenv("REDIS_ADDR", ""),
		Password: getenv("REDIS_PASSWORD", ""),
		DB:       getint("REDIS_DB", 0),
	})
	if err != nil {
		// the role cache is optional; sessions fall back to the database
		log.Printf("[CONFIG][REDIS][WARN] connect failed, role cache disabled: %v", err)
		rd = nil
	}

	secret := getenv("JWT_SECRET", "")
	if secret == "" {
		log.Fatal("JWT_SECRET is required")
	}

	return &Config{
		Port:     port,
		S3:       s3c,
		Mongo:    mg,
		Postgres: pg,
		Redis:    rd,

		ReceiptPublicBase: getenv("RECEIPT_PUBLIC_BASE_URL", s3c.EndpointURL()),
		ReceiptRetry: receipts.RetryPolicy{
			MaxAttempts: getint("RECEIPT_UPLOAD_MAX_ATTEMPTS", 3),
			Backoff:     time.Duration(getint("RECEIPT_UPLOAD_BACKOFF_MS", 200)) * time.Millisecond,
		},
		ReceiptMaxBytes: int64(getint("RECEIPT_MAX_BYTES", receipts.DefaultMaxBytes)),

		JWTSecret:    []byte(secret),
		RoleCacheTTL: time.Duration(getint("ROLE_CACHE_TTL_SECONDS", 600)) * time.Second,

		Migrate: getenv("DB_MIGRATE", "false") == "true",
	}
}

func (c *Config) CheckConnections(ctx context.Context) error {
	var errs []error

	if err := c.Postgres.Ping(ctx); err != nil {
		errs = append(errs, fmt.Errorf("postgres ping failed: %w", err))
	}
	if err := c.Mongo.Ping(ctx); err != nil {
		errs = append(errs, fmt.Errorf("mongo ping failed: %w", err))
	}

	if c.S3 == nil || c.S3.Client == nil {
		errs = append(errs, errors.New("s3 not initialized"))
	} else {
		for _, b := range c.S3.Buckets() {
			if ok, err := c.S3.Client.BucketExists(ctx, b); err != nil {
				errs = append(errs, fmt.Errorf("s3 bucket %q check failed: %w", b, err))
			} else if !ok {
				errs = append(errs, fmt.Errorf("s3 bucket %q not found", b))
			}
		}
	}

	if c.Redis != nil {
		if err := c.Redis.Client.Ping(ctx).Err(); err != nil {
			errs = append(errs, fmt.Errorf("redis ping failed: %w", err))
		}
	}

	if len(errs) == 0 {
		return nil
	}

	return errors.Join(errs...)
}

func (c *Config) Close(ctx context.Context) {
	c.Postgres.Close()
	if err := c.Mongo.Close(ctx); err != nil {
		log.Printf("[CONFIG][MONGO][ERR] disconnect: %v", err)
	}
	if err := c.Redis.Close(); err != nil {
		log.Printf("[CONFIG][REDIS][ERR] close: %v", err)
	}
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getint(k string, def int) int {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("[CONFIG][WARN] %s=%q is not a number, using %d", k, v, def)
		return def
	}
	return n
}
