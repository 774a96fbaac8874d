// Package redisstore persists stock items in Redis hashes.
//
// Listing reads a sorted set whose members are "<title>\x00<id>", all with
// score 0, so ZREVRANGEBYLEX yields the first page in descending title order
// without loading the rest of the collection. The scripts below keep that
// index in step with the hashes.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"stockroom/internal/stock"
)

const (
	seqKey        = "stock:seq"
	titleIndexKey = "stock:titles"
	itemKeyPrefix = "stock:item:"
)

// KEYS: item hash, title index. ARGV: id, then field/value pairs.
var updateScript = redis.NewScript(`
local old = redis.call('HGET', KEYS[1], 'title')
if not old then
	return false
end
if #ARGV > 1 then
	redis.call('HSET', KEYS[1], unpack(ARGV, 2))
	local new = redis.call('HGET', KEYS[1], 'title')
	if new ~= old then
		redis.call('ZREM', KEYS[2], old .. '\0' .. ARGV[1])
		redis.call('ZADD', KEYS[2], 0, new .. '\0' .. ARGV[1])
	end
end
return redis.call('HGETALL', KEYS[1])
`)

// KEYS: item hash, title index. ARGV: id.
var deleteScript = redis.NewScript(`
local title = redis.call('HGET', KEYS[1], 'title')
if not title then
	return 0
end
redis.call('DEL', KEYS[1])
redis.call('ZREM', KEYS[2], title .. '\0' .. ARGV[1])
return 1
`)

// Store implements stock.Store with one hash per item, a lexicographic title
// index and an INCR counter for id assignment.
type Store struct {
	client   *redis.Client
	pageSize int
	tracer   trace.Tracer
}

// Connect opens a client for addr and verifies the server answers.
func Connect(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// New builds a store on client. List returns at most pageSize items.
func New(client *redis.Client, pageSize int) *Store {
	return &Store{
		client:   client,
		pageSize: pageSize,
		tracer:   otel.Tracer("stockroom/storage/redis"),
	}
}

func itemKey(id int64) string {
	return itemKeyPrefix + strconv.FormatInt(id, 10)
}

func titleMember(title string, id int64) string {
	return title + "\x00" + strconv.FormatInt(id, 10)
}

// memberID returns the id suffix of a title index member.
func memberID(member string) (string, error) {
	i := strings.LastIndexByte(member, 0)
	if i < 0 {
		return "", fmt.Errorf("corrupt title index member %q", member)
	}
	return member[i+1:], nil
}

func (s *Store) List(ctx context.Context) ([]stock.Item, error) {
	ctx, span := s.start(ctx, "redisstore.list", attribute.Int("page.size", s.pageSize))
	defer span.End()

	members, err := s.client.ZRevRangeByLex(ctx, titleIndexKey, &redis.ZRangeBy{
		Min:   "-",
		Max:   "+",
		Count: int64(s.pageSize),
	}).Result()
	if err != nil {
		return nil, fail(span, fmt.Errorf("read index: %w", err))
	}

	ids := make([]string, len(members))
	for i, member := range members {
		if ids[i], err = memberID(member); err != nil {
			return nil, fail(span, err)
		}
	}

	cmds := make([]*redis.MapStringStringCmd, len(ids))
	_, err = s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = pipe.HGetAll(ctx, itemKeyPrefix+id)
		}
		return nil
	})
	if err != nil {
		return nil, fail(span, fmt.Errorf("read items: %w", err))
	}

	items := make([]stock.Item, 0, len(cmds))
	for i, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			continue
		}
		item, err := decode(ids[i], fields)
		if err != nil {
			return nil, fail(span, err)
		}
		items = append(items, item)
	}

	span.SetAttributes(attribute.Int("items.loaded", len(items)))
	return items, nil
}

func (s *Store) Get(ctx context.Context, id int64) (*stock.Item, error) {
	ctx, span := s.start(ctx, "redisstore.get", attribute.Int64("item.id", id))
	defer span.End()

	fields, err := s.client.HGetAll(ctx, itemKey(id)).Result()
	if err != nil {
		return nil, fail(span, fmt.Errorf("read item: %w", err))
	}
	if len(fields) == 0 {
		return nil, stock.ErrNotFound
	}

	item, err := decode(strconv.FormatInt(id, 10), fields)
	if err != nil {
		return nil, fail(span, err)
	}
	return &item, nil
}

func (s *Store) Create(ctx context.Context, item stock.Item) (*stock.Item, error) {
	ctx, span := s.start(ctx, "redisstore.create")
	defer span.End()

	id, err := s.client.Incr(ctx, seqKey).Result()
	if err != nil {
		return nil, fail(span, fmt.Errorf("allocate id: %w", err))
	}
	item.ID = id

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, itemKey(id), encode(item))
		pipe.ZAdd(ctx, titleIndexKey, redis.Z{Score: 0, Member: titleMember(item.Title, id)})
		return nil
	})
	if err != nil {
		return nil, fail(span, fmt.Errorf("write item: %w", err))
	}

	span.SetAttributes(attribute.Int64("item.id", id))
	return &item, nil
}

func (s *Store) Update(ctx context.Context, id int64, patch stock.Patch) (*stock.Item, error) {
	ctx, span := s.start(ctx, "redisstore.update", attribute.Int64("item.id", id))
	defer span.End()

	args := append([]any{strconv.FormatInt(id, 10)}, patchArgs(patch)...)
	flat, err := updateScript.Run(ctx, s.client, []string{itemKey(id), titleIndexKey}, args...).StringSlice()
	if errors.Is(err, redis.Nil) {
		return nil, stock.ErrNotFound
	}
	if err != nil {
		return nil, fail(span, fmt.Errorf("update item: %w", err))
	}

	fields := make(map[string]string, len(flat)/2)
	for i := 0; i+1 < len(flat); i += 2 {
		fields[flat[i]] = flat[i+1]
	}
	item, err := decode(strconv.FormatInt(id, 10), fields)
	if err != nil {
		return nil, fail(span, err)
	}
	return &item, nil
}

func (s *Store) Delete(ctx context.Context, id int64) error {
	ctx, span := s.start(ctx, "redisstore.delete", attribute.Int64("item.id", id))
	defer span.End()

	deleted, err := deleteScript.Run(ctx, s.client, []string{itemKey(id), titleIndexKey}, strconv.FormatInt(id, 10)).Int()
	if err != nil {
		return fail(span, fmt.Errorf("delete item: %w", err))
	}
	if deleted == 0 {
		return stock.ErrNotFound
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func encode(item stock.Item) map[string]any {
	return map[string]any{
		"title":       item.Title,
		"description": item.Description,
		"price":       item.Price,
		"imageUri":    item.ImageURI,
		"done":        formatBool(item.Done),
	}
}

func decode(id string, fields map[string]string) (stock.Item, error) {
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return stock.Item{}, fmt.Errorf("corrupt item id %q: %w", id, err)
	}
	return stock.Item{
		ID:          n,
		Title:       fields["title"],
		Description: fields["description"],
		Price:       fields["price"],
		ImageURI:    fields["imageUri"],
		Done:        fields["done"] == "1",
	}, nil
}

func patchArgs(p stock.Patch) []any {
	var args []any
	if p.Title != nil {
		args = append(args, "title", *p.Title)
	}
	if p.Description != nil {
		args = append(args, "description", *p.Description)
	}
	if p.Price != nil {
		args = append(args, "price", *p.Price)
	}
	if p.ImageURI != nil {
		args = append(args, "imageUri", *p.ImageURI)
	}
	if p.Done != nil {
		args = append(args, "done", formatBool(*p.Done))
	}
	return args
}

func formatBool(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func (s *Store) start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs, attribute.String("db.system", "redis"))
	return s.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
