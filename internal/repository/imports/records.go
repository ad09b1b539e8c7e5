package importitems

import (
	"context"
	"errors"
	"fmt"
	"time"

	mg "brokerage_ledger/internal/config/connections/mongo"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const ImportRecordsCollection = "import_records"

const (
	RecordParsed  = "parsed"
	RecordRunning = "running"
	RecordDone    = "done"
	RecordFailed  = "failed"
)

type Record struct {
	ID        any        `bson:"_id,omitempty" json:"id"`
	UserID    *string    `bson:"user_id,omitempty" json:"user_id,omitempty"`
	Count     int        `bson:"count" json:"count"`
	Failed    int        `bson:"failed" json:"failed"`
	Status    string     `bson:"status" json:"status"`
	Errors    *string    `bson:"errors,omitempty" json:"errors,omitempty"`
	Type      string     `bson:"type" json:"type"`
	Path      *string    `bson:"path,omitempty" json:"path,omitempty"`
	Bucket    *string    `bson:"bucket,omitempty" json:"bucket,omitempty"`
	Key       *string    `bson:"key,omitempty" json:"key,omitempty"`
	SizeBytes *int64     `bson:"size_bytes,omitempty" json:"size_bytes,omitempty"`
	CreatedAt time.Time  `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time  `bson:"updated_at" json:"updated_at"`
	DeletedAt *time.Time `bson:"deleted_at,omitempty" json:"deleted_at,omitempty"`
}

func InsertImportRecord(ctx context.Context, m *mg.Mongo, rec Record) (*mongo.InsertOneResult, error) {
	if m == nil || m.Client == nil || m.Database == nil {
		return nil, mongo.ErrClientDisconnected
	}

	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	if rec.Status == "" {
		rec.Status = RecordParsed
	}
	rec.ID = nil

	return m.Database.Collection(ImportRecordsCollection).InsertOne(ctx, rec, options.InsertOne())
}

// recordFilter matches both ObjectId and plain string ids.
func recordFilter(id string) bson.M {
	if oid, err := primitive.ObjectIDFromHex(id); err == nil {
		return bson.M{"_id": bson.M{"$in": bson.A{oid, id}}}
	}
	return bson.M{"_id": id}
}

func FindImportRecordByID(ctx context.Context, m *mg.Mongo, id string) (Record, error) {
	var out Record
	if m == nil || m.Database == nil {
		return out, mongo.ErrClientDisconnected
	}
	err := m.Database.Collection(ImportRecordsCollection).FindOne(ctx, recordFilter(id)).Decode(&out)
	if err != nil {
		return out, fmt.Errorf("import record %s: %w", id, err)
	}
	return out, nil
}

func ListImportRecords(ctx context.Context, m *mg.Mongo, filter bson.M, limit, skip int64) ([]Record, int64, error) {
	if m == nil || m.Database == nil {
		return nil, 0, mongo.ErrClientDisconnected
	}
	coll := m.Database.Collection(ImportRecordsCollection)
	if filter == nil {
		filter = bson.M{}
	}

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	if limit > 0 {
		opts.SetLimit(limit)
	}
	if skip > 0 {
		opts.SetSkip(skip)
	}

	cur, err := coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, err
	}
	defer cur.Close(ctx)

	recs := make([]Record, 0)
	for cur.Next(ctx) {
		var r Record
		if err := cur.Decode(&r); err != nil {
			continue
		}
		recs = append(recs, r)
	}
	total, err := coll.CountDocuments(ctx, filter)
	if err != nil {
		total = int64(len(recs))
	}
	return recs, total, nil
}

type Result struct {
	Status string
	Count  int
	Failed int
	Err    error
}

// FinishImportRecord stores the final status and row counters.
func FinishImportRecord(ctx context.Context, m *mg.Mongo, id string, res Result) error {
	set := bson.M{
		"status":     res.Status,
		"count":      res.Count,
		"failed":     res.Failed,
		"updated_at": time.Now().UTC(),
	}
	if res.Err != nil {
		set["errors"] = res.Err.Error()
	}
	return updateRecord(ctx, m, id, set)
}

func UpdateImportRecordStatus(ctx context.Context, m *mg.Mongo, id, status string) error {
	if status == "" {
		return errors.New("empty status")
	}
	return updateRecord(ctx, m, id, bson.M{"status": status, "updated_at": time.Now().UTC()})
}

func updateRecord(ctx context.Context, m *mg.Mongo, id string, set bson.M) error {
	if m == nil || m.Database == nil {
		return mongo.ErrClientDisconnected
	}
	if id == "" {
		return errors.New("empty importRecordID")
	}
	res, err := m.Database.Collection(ImportRecordsCollection).UpdateOne(ctx, recordFilter(id), bson.M{"$set": set})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("no import_record found with id %s", id)
	}
	return nil
}
