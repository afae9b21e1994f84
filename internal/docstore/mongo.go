package docstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoStore maps each collection onto a Mongo collection keyed by _id.
type MongoStore struct {
	client       *mongo.Client
	db           *mongo.Database
	transactions bool
}

type MongoConfig struct {
	URI      string
	Database string
	// Transactions wraps batch commits in a multi-document transaction. It
	// requires a replica set or sharded cluster.
	Transactions bool
}

func OpenMongo(ctx context.Context, cfg MongoConfig) (*MongoStore, error) {
	if cfg.URI == "" || cfg.Database == "" {
		return nil, fmt.Errorf("%w: mongo uri and database are required", ErrInvalidInput)
	}
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	return &MongoStore{
		client:       client,
		db:           client.Database(cfg.Database),
		transactions: cfg.Transactions,
	}, nil
}

func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func (s *MongoStore) Get(ctx context.Context, collection, id string) (Document, error) {
	if err := checkKey(collection, id); err != nil {
		return nil, err
	}
	var raw bson.M
	err := s.db.Collection(collection).FindOne(ctx, bson.M{"_id": id}).Decode(&raw)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("document %s/%s: %w", collection, id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return fromBSON(raw), nil
}

func (s *MongoStore) Set(ctx context.Context, collection, id string, data Document) error {
	if err := checkKey(collection, id); err != nil {
		return err
	}
	_, err := s.db.Collection(collection).UpdateOne(ctx, bson.M{"_id": id}, mergeUpdate(id, Compact(data)), options.Update().SetUpsert(true))
	return err
}

func (s *MongoStore) Add(ctx context.Context, collection string, data Document) (string, error) {
	id := uuid.New().String()
	if err := s.Set(ctx, collection, id, data); err != nil {
		return "", err
	}
	return id, nil
}

func (s *MongoStore) Find(ctx context.Context, collection string, q Query) ([]Record, error) {
	if err := checkQuery(collection, q); err != nil {
		return nil, err
	}
	opts := options.Find()
	if q.OrderBy != "" {
		dir := 1
		if q.Descending {
			dir = -1
		}
		opts.SetSort(bson.D{{Key: q.OrderBy, Value: dir}, {Key: "_id", Value: 1}})
	} else {
		opts.SetSort(bson.D{{Key: "_id", Value: 1}})
	}
	if q.Limit > 0 {
		opts.SetLimit(int64(q.Limit))
	}

	filter := bson.M{}
	if q.After != nil {
		cmp := "$gt"
		if q.Descending {
			cmp = "$lt"
		}
		filter = bson.M{"$or": bson.A{
			bson.M{q.OrderBy: bson.M{cmp: q.After.Value}},
			bson.M{q.OrderBy: q.After.Value, "_id": bson.M{"$gt": q.After.ID}},
			bson.M{q.OrderBy: nil},
		}}
	}

	cursor, err := s.db.Collection(collection).Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", collection, err)
	}
	defer cursor.Close(ctx)

	records := make([]Record, 0)
	for cursor.Next(ctx) {
		var raw bson.M
		if err := cursor.Decode(&raw); err != nil {
			return nil, fmt.Errorf("decode %s: %w", collection, err)
		}
		id, _ := raw["_id"].(string)
		records = append(records, Record{ID: id, Data: fromBSON(raw)})
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("cursor error: %w", err)
	}
	return records, nil
}

func (s *MongoStore) NewBatch() Batch {
	return &mongoBatch{store: s}
}

// mergeUpdate builds a $set upsert. An empty payload still creates the
// document.
func mergeUpdate(id string, data Document) bson.M {
	if len(data) == 0 {
		return bson.M{"$setOnInsert": bson.M{"_id": id}}
	}
	return bson.M{"$set": toBSON(data)}
}

type mongoBatch struct {
	opList
	store *MongoStore
}

func (b *mongoBatch) Commit(ctx context.Context) error {
	if b.err != nil {
		return b.err
	}
	if len(b.ops) == 0 {
		return nil
	}

	order := make([]string, 0, 2)
	models := make(map[string][]mongo.WriteModel)
	for _, op := range b.ops {
		if _, ok := models[op.collection]; !ok {
			order = append(order, op.collection)
		}
		switch op.kind {
		case opSet:
			models[op.collection] = append(models[op.collection], mongo.NewUpdateOneModel().
				SetFilter(bson.M{"_id": op.id}).
				SetUpdate(mergeUpdate(op.id, op.data)).
				SetUpsert(true))
		case opDelete:
			models[op.collection] = append(models[op.collection], mongo.NewDeleteOneModel().
				SetFilter(bson.M{"_id": op.id}))
		}
	}

	write := func(ctx context.Context) error {
		for _, name := range order {
			if _, err := b.store.db.Collection(name).BulkWrite(ctx, models[name], options.BulkWrite().SetOrdered(true)); err != nil {
				return fmt.Errorf("bulk write %s: %w", name, err)
			}
		}
		return nil
	}

	if b.store.transactions {
		session, err := b.store.client.StartSession()
		if err != nil {
			return fmt.Errorf("start session: %w", err)
		}
		defer session.EndSession(ctx)
		if _, err := session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
			return nil, write(sc)
		}); err != nil {
			return err
		}
	} else if err := write(ctx); err != nil {
		return err
	}

	b.reset()
	return nil
}

func toBSON(d Document) bson.M {
	out := make(bson.M, len(d))
	for k, v := range d {
		if nested, ok := v.(Document); ok {
			out[k] = toBSON(nested)
			continue
		}
		out[k] = v
	}
	return out
}

func fromBSON(raw bson.M) Document {
	out := make(Document, len(raw))
	for k, v := range raw {
		if k == "_id" {
			continue
		}
		out[k] = fromBSONValue(v)
	}
	return out
}

func fromBSONValue(v any) any {
	switch tv := v.(type) {
	case primitive.DateTime:
		return tv.Time().UTC()
	case bson.M:
		return fromBSON(tv)
	case primitive.D:
		return fromBSON(tv.Map())
	case primitive.A:
		out := make([]any, len(tv))
		for i, item := range tv {
			out[i] = fromBSONValue(item)
		}
		return out
	default:
		return v
	}
}
