package mongo

import (
	"context"
	"fmt"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

type ConnectionInfo struct {
	Scheme     string
	User       string
	Password   string
	Host       string
	Port       string
	DB         string
	AuthSource string
}

// Mongo holds the notification log and the import bookkeeping collections.
type Mongo struct {
	Client   *mongo.Client
	Database *mongo.Database
}

func NewConnection(ctx context.Context, info ConnectionInfo) (*Mongo, error) {
	scheme := info.Scheme
	if scheme == "" {
		scheme = "mongodb"
	}

	auth := ""
	if info.User != "" {
		auth = info.User
		if info.Password != "" {
			auth += ":" + info.Password
		}
		auth += "@"
	}

	host := info.Host
	if info.Port != "" {
		host += ":" + info.Port
	}

	query := ""
	if info.AuthSource != "" {
		query = "?authSource=" + info.AuthSource
	}

	uri := fmt.Sprintf("%s://%s%s/%s%s", scheme, auth, host, info.DB, query)

	opts := options.Client().
		ApplyURI(uri).
		SetAppName("brokerage-ledger").
		SetServerSelectionTimeout(5 * time.Second)

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, err
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}

	db := client.Database(info.DB)
	return &Mongo{Client: client, Database: db}, nil
}

func (m *Mongo) Ping(ctx context.Context) error {
	if m == nil || m.Client == nil {
		return errors.New("mongo not initialized")
	}
	return m.Client.Ping(ctx, readpref.Primary())
}

// EnsureIndex creates the index on coll when it does not exist yet.
func (m *Mongo) EnsureIndex(ctx context.Context, coll string, keys bson.D) error {
	if m == nil || m.Database == nil {
		return errors.New("mongo not initialized")
	}
	_, err := m.Database.Collection(coll).Indexes().CreateOne(ctx, mongo.IndexModel{Keys: keys})
	if err != nil {
		return fmt.Errorf("index on %s: %w", coll, err)
	}
	return nil
}

func (m *Mongo) Close(ctx context.Context) error {
	if m != nil && m.Client != nil {
		return m.Client.Disconnect(ctx)
	}
	return nil
}
