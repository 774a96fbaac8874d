// Package mongostore persists stock items in a MongoDB document store.
package mongostore

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"stockroom/internal/stock"
)

const (
	itemsCollection    = "stock"
	countersCollection = "counters"
	counterID          = "stock"
)

// Store implements stock.Store on two collections: the items keyed by their
// integer id, and a counters document whose seq is the highest id handed out.
type Store struct {
	items    *mongo.Collection
	counters *mongo.Collection
	pageSize int
	tracer   trace.Tracer
}

type counter struct {
	Seq int64 `bson:"seq"`
}

// Connect dials uri and verifies the deployment answers.
func Connect(ctx context.Context, uri string) (*mongo.Client, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	return client, nil
}

// New builds a store on db. List returns at most pageSize items.
func New(db *mongo.Database, pageSize int) *Store {
	return &Store{
		items:    db.Collection(itemsCollection),
		counters: db.Collection(countersCollection),
		pageSize: pageSize,
		tracer:   otel.Tracer("stockroom/storage/mongo"),
	}
}

// Init raises the id counter to the highest id already stored, so documents
// written by other tools never collide with new ones.
func (s *Store) Init(ctx context.Context) error {
	var top stock.Item
	opts := options.FindOne().SetSort(bson.D{{Key: "_id", Value: -1}})
	err := s.items.FindOne(ctx, bson.M{}, opts).Decode(&top)
	if err != nil && !errors.Is(err, mongo.ErrNoDocuments) {
		return fmt.Errorf("find highest id: %w", err)
	}

	_, err = s.counters.UpdateOne(ctx,
		bson.M{"_id": counterID},
		bson.M{"$max": bson.M{"seq": top.ID}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("seed id counter: %w", err)
	}
	return nil
}

func (s *Store) List(ctx context.Context) ([]stock.Item, error) {
	ctx, span := s.start(ctx, "mongostore.list", attribute.Int("page.size", s.pageSize))
	defer span.End()

	opts := options.Find().
		SetSort(bson.D{{Key: "title", Value: -1}}).
		SetLimit(int64(s.pageSize))
	cursor, err := s.items.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fail(span, fmt.Errorf("find items: %w", err))
	}

	items := []stock.Item{}
	if err := cursor.All(ctx, &items); err != nil {
		return nil, fail(span, fmt.Errorf("decode items: %w", err))
	}

	span.SetAttributes(attribute.Int("items.loaded", len(items)))
	return items, nil
}

func (s *Store) Get(ctx context.Context, id int64) (*stock.Item, error) {
	ctx, span := s.start(ctx, "mongostore.get", attribute.Int64("item.id", id))
	defer span.End()

	var item stock.Item
	err := s.items.FindOne(ctx, bson.M{"_id": id}).Decode(&item)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, stock.ErrNotFound
	}
	if err != nil {
		return nil, fail(span, fmt.Errorf("find item: %w", err))
	}
	return &item, nil
}

func (s *Store) Create(ctx context.Context, item stock.Item) (*stock.Item, error) {
	ctx, span := s.start(ctx, "mongostore.create")
	defer span.End()

	id, err := s.nextID(ctx)
	if err != nil {
		return nil, fail(span, err)
	}
	item.ID = id

	if _, err := s.items.InsertOne(ctx, item); err != nil {
		return nil, fail(span, fmt.Errorf("insert item: %w", err))
	}

	span.SetAttributes(attribute.Int64("item.id", id))
	return &item, nil
}

func (s *Store) Update(ctx context.Context, id int64, patch stock.Patch) (*stock.Item, error) {
	set := setDocument(patch)
	if len(set) == 0 {
		return s.Get(ctx, id)
	}

	ctx, span := s.start(ctx, "mongostore.update", attribute.Int64("item.id", id))
	defer span.End()

	var item stock.Item
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	err := s.items.FindOneAndUpdate(ctx, bson.M{"_id": id}, bson.M{"$set": set}, opts).Decode(&item)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, stock.ErrNotFound
	}
	if err != nil {
		return nil, fail(span, fmt.Errorf("update item: %w", err))
	}
	return &item, nil
}

func (s *Store) Delete(ctx context.Context, id int64) error {
	ctx, span := s.start(ctx, "mongostore.delete", attribute.Int64("item.id", id))
	defer span.End()

	res, err := s.items.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fail(span, fmt.Errorf("delete item: %w", err))
	}
	if res.DeletedCount == 0 {
		return stock.ErrNotFound
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.items.Database().Client().Ping(ctx, nil)
}

// nextID atomically increments the counter document and returns its new value.
func (s *Store) nextID(ctx context.Context) (int64, error) {
	var c counter
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
	err := s.counters.FindOneAndUpdate(ctx,
		bson.M{"_id": counterID},
		bson.M{"$inc": bson.M{"seq": 1}},
		opts,
	).Decode(&c)
	if err != nil {
		return 0, fmt.Errorf("allocate id: %w", err)
	}
	return c.Seq, nil
}

func setDocument(p stock.Patch) bson.M {
	set := bson.M{}
	if p.Title != nil {
		set["title"] = *p.Title
	}
	if p.Description != nil {
		set["description"] = *p.Description
	}
	if p.Price != nil {
		set["price"] = *p.Price
	}
	if p.ImageURI != nil {
		set["imageUri"] = *p.ImageURI
	}
	if p.Done != nil {
		set["done"] = *p.Done
	}
	return set
}

func (s *Store) start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs, attribute.String("db.system", "mongodb"))
	return s.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
