// Package notifications persists user facing messages so the web client can
// show them as toasts.
package notifications

import (
	"context"
	"log"
	"time"

	mg "brokerage_ledger/internal/config/connections/mongo"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const Collection = "notifications"

type Level string

const (
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

type Entry struct {
	UserID    string    `bson:"user_id" json:"user_id"`
	Level     Level     `bson:"level" json:"level"`
	Message   string    `bson:"message" json:"message"`
	Source    string    `bson:"source" json:"source"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
}

func Insert(ctx context.Context, m *mg.Mongo, e Entry) error {
	if m == nil || m.Client == nil || m.Database == nil {
		return mongo.ErrClientDisconnected
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	doc := bson.D{
		{Key: "user_id", Value: e.UserID},
		{Key: "level", Value: string(e.Level)},
		{Key: "message", Value: e.Message},
		{Key: "source", Value: e.Source},
		{Key: "created_at", Value: e.CreatedAt},
	}
	_, err := m.Database.Collection(Collection).InsertOne(ctx, doc, options.InsertOne())
	return err
}

// ListRecent returns the newest notifications of a user.
func ListRecent(ctx context.Context, m *mg.Mongo, userID string, limit int64) ([]Entry, error) {
	if m == nil || m.Database == nil {
		return nil, mongo.ErrClientDisconnected
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(limit)

	cur, err := m.Database.Collection(Collection).Find(ctx, bson.M{"user_id": userID}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	out := make([]Entry, 0)
	for cur.Next(ctx) {
		var e Entry
		if err := cur.Decode(&e); err != nil {
			log.Printf("[NOTIFY][LIST][WARN] decode: %v", err)
			continue
		}
		out = append(out, e)
	}
	return out, cur.Err()
}

// Sink is the Notifier handed to the reconciler and the plan service. Every
// message is logged; storing it in Mongo is best effort.
type Sink struct {
	MG     *mg.Mongo
	UserID string
	Source string
}

func NewSink(m *mg.Mongo, userID, source string) *Sink {
	return &Sink{MG: m, UserID: userID, Source: source}
}

func (s *Sink) Success(ctx context.Context, msg string) { s.emit(ctx, LevelSuccess, msg) }
func (s *Sink) Warning(ctx context.Context, msg string) { s.emit(ctx, LevelWarning, msg) }
func (s *Sink) Error(ctx context.Context, msg string)   { s.emit(ctx, LevelError, msg) }

func (s *Sink) emit(ctx context.Context, lvl Level, msg string) {
	log.Printf("[NOTIFY][%s] user=%s source=%s msg=%q", lvl, s.UserID, s.Source, msg)
	if s.MG == nil {
		return
	}
	// a cancelled request must not lose the message
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 3*time.Second)
	defer cancel()
	if err := Insert(ctx, s.MG, Entry{UserID: s.UserID, Level: lvl, Message: msg, Source: s.Source}); err != nil {
		log.Printf("[NOTIFY][MONGO][ERR] user=%s level=%s err=%v", s.UserID, lvl, err)
	}
}

// EnsureIndexes backs the per user feed query.
func EnsureIndexes(ctx context.Context, m *mg.Mongo) error {
	return m.EnsureIndex(ctx, Collection, bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}})
}
