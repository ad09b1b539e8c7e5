package importitems

import (
	"context"
	"encoding/json"
	"log"
	"time"

	mg "brokerage_ledger/internal/config/connections/mongo"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const ImportRecordItemsCollection = "import_record_items"

const (
	ItemDone   = "done"
	ItemFailed = "failed"
)

// Item is the outcome of one imported row.
type Item struct {
	ImportRecordID string    `bson:"import_record_id" json:"import_record_id"`
	ModelType      string    `bson:"model_type" json:"model_type"`
	ModelID        string    `bson:"model_id" json:"model_id"`
	Row            int       `bson:"row" json:"row"`
	Payload        string    `bson:"payload" json:"payload"`
	Status         string    `bson:"status" json:"status"`
	Errors         string    `bson:"errors" json:"errors"`
	CreatedAt      time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt      time.Time `bson:"updated_at" json:"updated_at"`
}

type LogParams struct {
	ImportRecordID string
	ModelType      string
	ModelID        string
	Row            int
	Payload        map[string]string
	Status         string
	Errors         string
}

func InsertItem(ctx context.Context, m *mg.Mongo, item Item) (*mongo.InsertOneResult, error) {
	if m == nil || m.Client == nil || m.Database == nil {
		return nil, mongo.ErrClientDisconnected
	}

	now := time.Now().UTC()
	if item.CreatedAt.IsZero() {
		item.CreatedAt = now
	}
	item.UpdatedAt = now

	return m.Database.Collection(ImportRecordItemsCollection).InsertOne(ctx, item, options.InsertOne())
}

// ListItems returns the rows of one import in file order.
func ListItems(ctx context.Context, m *mg.Mongo, importRecordID string, status string) ([]Item, error) {
	if m == nil || m.Database == nil {
		return nil, mongo.ErrClientDisconnected
	}
	filter := bson.M{"import_record_id": importRecordID}
	if status != "" {
		filter["status"] = status
	}
	cur, err := m.Database.Collection(ImportRecordItemsCollection).Find(ctx, filter,
		options.Find().SetSort(bson.D{{Key: "row", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	out := make([]Item, 0)
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// MongoItemLog writes row outcomes; a nil Mongo turns it into a no-op.
type MongoItemLog struct {
	MG *mg.Mongo
}

func (l MongoItemLog) Log(ctx context.Context, p LogParams) {
	if l.MG == nil || l.MG.Database == nil {
		return
	}

	b, err := json.Marshal(p.Payload)
	if err != nil {
		b = []byte("{}")
	}

	if _, mErr := InsertItem(ctx, l.MG, Item{
		ImportRecordID: p.ImportRecordID,
		ModelType:      p.ModelType,
		ModelID:        p.ModelID,
		Row:            p.Row,
		Payload:        string(b),
		Status:         p.Status,
		Errors:         p.Errors,
	}); mErr != nil {
		log.Printf("[PROC][%s][MONGO][ERR] row=%d id=%s status=%s err=%v",
			p.ModelType, p.Row, p.ModelID, p.Status, mErr)
	}
}

func EnsureIndexes(ctx context.Context, m *mg.Mongo) error {
	if err := m.EnsureIndex(ctx, ImportRecordItemsCollection,
		bson.D{{Key: "import_record_id", Value: 1}, {Key: "row", Value: 1}}); err != nil {
		return err
	}
	return m.EnsureIndex(ctx, ImportRecordsCollection,
		bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}})
}
