package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoStore implements Store on a MongoDB database. Subscriptions use change
// streams and batches run inside a session transaction, so it requires a
// replica-set deployment (a single-node replica set is enough).
type MongoStore struct {
	client *mongo.Client
	db     *mongo.Database
}

func NewMongoStore(client *mongo.Client, dbName string) *MongoStore {
	return &MongoStore{
		client: client,
		db:     client.Database(dbName),
	}
}

// toDocument round-trips a struct through bson so the store can inspect and
// set the _id field regardless of the concrete document type.
func toDocument(doc any) (bson.M, error) {
	raw, err := bson.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to encode document: %v", err)
	}
	var data bson.M
	if err := bson.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("failed to decode document: %v", err)
	}
	return data, nil
}

func (s *MongoStore) Create(ctx context.Context, collection string, doc any) (string, error) {
	data, err := toDocument(doc)
	if err != nil {
		return "", err
	}
	id, _ := data["_id"].(string)
	if id == "" {
		id = uuid.New().String()
		data["_id"] = id
	}
	if _, err := s.db.Collection(collection).InsertOne(ctx, data); err != nil {
		return "", fmt.Errorf("failed to insert into %s: %v", collection, err)
	}
	return id, nil
}

func (s *MongoStore) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	result, err := s.db.Collection(collection).UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M(fields)})
	if err != nil {
		return fmt.Errorf("failed to update %s/%s: %v", collection, id, err)
	}
	if result.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStore) Delete(ctx context.Context, collection, id string) error {
	result, err := s.db.Collection(collection).DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("failed to delete %s/%s: %v", collection, id, err)
	}
	if result.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStore) GetOne(ctx context.Context, collection, id string, out any) error {
	err := s.db.Collection(collection).FindOne(ctx, bson.M{"_id": id}).Decode(out)
	if err == mongo.ErrNoDocuments {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to fetch %s/%s: %v", collection, id, err)
	}
	return nil
}

func (s *MongoStore) Query(ctx context.Context, collection string, filter Filter, order *Order, out any) error {
	opts := options.Find()
	if order != nil {
		direction := 1
		if order.Desc {
			direction = -1
		}
		opts.SetSort(bson.D{{Key: order.Field, Value: direction}})
	}
	mongoFilter := bson.M{}
	for k, v := range filter {
		mongoFilter[k] = v
	}
	cursor, err := s.db.Collection(collection).Find(ctx, mongoFilter, opts)
	if err != nil {
		return fmt.Errorf("failed to query %s: %v", collection, err)
	}
	defer cursor.Close(ctx)

	if err := cursor.All(ctx, out); err != nil {
		return fmt.Errorf("failed to decode %s documents: %v", collection, err)
	}
	return nil
}

// changeEvent is the slice of a change stream event the store cares about.
type changeEvent struct {
	OperationType string `bson:"operationType"`
	DocumentKey   struct {
		ID string `bson:"_id"`
	} `bson:"documentKey"`
}

func (s *MongoStore) Subscribe(ctx context.Context, collection string, filter Filter, onChange func(Change)) (func(), error) {
	pipeline := mongo.Pipeline{}
	if len(filter) > 0 {
		match := bson.D{}
		for k, v := range filter {
			match = append(match, bson.E{Key: "fullDocument." + k, Value: v})
		}
		pipeline = append(pipeline, bson.D{{Key: "$match", Value: match}})
	}

	streamCtx, cancel := context.WithCancel(ctx)
	stream, err := s.db.Collection(collection).Watch(streamCtx, pipeline,
		options.ChangeStream().SetFullDocument(options.UpdateLookup))
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to open change stream on %s: %v", collection, err)
	}

	go func() {
		defer stream.Close(context.Background())
		for stream.Next(streamCtx) {
			var event changeEvent
			if err := stream.Decode(&event); err != nil {
				continue
			}
			change := Change{Collection: collection, ID: event.DocumentKey.ID}
			switch event.OperationType {
			case "insert":
				change.Type = ChangeCreated
			case "update", "replace":
				change.Type = ChangeUpdated
			case "delete":
				change.Type = ChangeDeleted
			default:
				continue
			}
			onChange(change)
		}
	}()

	return cancel, nil
}

func (s *MongoStore) Batch() Batch {
	return &mongoBatch{store: s}
}

type mongoOpKind int

const (
	opSet mongoOpKind = iota
	opUpdate
	opDelete
)

type mongoOp struct {
	kind       mongoOpKind
	collection string
	id         string
	doc        any
	fields     map[string]any
}

type mongoBatch struct {
	store *MongoStore
	ops   []mongoOp
}

func (b *mongoBatch) Set(collection, id string, doc any) {
	b.ops = append(b.ops, mongoOp{kind: opSet, collection: collection, id: id, doc: doc})
}

func (b *mongoBatch) Update(collection, id string, fields map[string]any) {
	b.ops = append(b.ops, mongoOp{kind: opUpdate, collection: collection, id: id, fields: fields})
}

func (b *mongoBatch) Delete(collection, id string) {
	b.ops = append(b.ops, mongoOp{kind: opDelete, collection: collection, id: id})
}

// Commit runs all staged operations in a single transaction so a cascade can
// never be applied partially.
func (b *mongoBatch) Commit(ctx context.Context) error {
	session, err := b.store.client.StartSession()
	if err != nil {
		return fmt.Errorf("failed to start session: %v", err)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (any, error) {
		for _, op := range b.ops {
			coll := b.store.db.Collection(op.collection)
			switch op.kind {
			case opSet:
				data, err := toDocument(op.doc)
				if err != nil {
					return nil, err
				}
				data["_id"] = op.id
				opts := options.Replace().SetUpsert(true)
				if _, err := coll.ReplaceOne(sc, bson.M{"_id": op.id}, data, opts); err != nil {
					return nil, err
				}
			case opUpdate:
				result, err := coll.UpdateOne(sc, bson.M{"_id": op.id}, bson.M{"$set": bson.M(op.fields)})
				if err != nil {
					return nil, err
				}
				if result.MatchedCount == 0 {
					return nil, ErrNotFound
				}
			case opDelete:
				if _, err := coll.DeleteOne(sc, bson.M{"_id": op.id}); err != nil {
					return nil, err
				}
			}
		}
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("batch commit failed: %w", err)
	}
	return nil
}
