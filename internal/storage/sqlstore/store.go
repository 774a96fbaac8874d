// Package sqlstore persists stock items in PostgreSQL or MySQL through sqlx.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	// Registered drivers.
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"

	"stockroom/internal/stock"
)

const columns = `id, title, description, price, image_uri, done`

var schemas = map[string]string{
	"postgres": `
		CREATE TABLE IF NOT EXISTS stock_items (
			id BIGSERIAL PRIMARY KEY,
			title TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			price TEXT NOT NULL DEFAULT '',
			image_uri TEXT NOT NULL DEFAULT '',
			done BOOLEAN NOT NULL DEFAULT FALSE
		)`,
	"mysql": `
		CREATE TABLE IF NOT EXISTS stock_items (
			id BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY,
			title VARCHAR(512) NOT NULL,
			description TEXT NOT NULL,
			price VARCHAR(64) NOT NULL DEFAULT '',
			image_uri VARCHAR(2048) NOT NULL DEFAULT '',
			done BOOLEAN NOT NULL DEFAULT FALSE
		)`,
}

// Store implements stock.Store on a SQL database. Ids come from the table's
// auto-increment sequence, which never hands out a value twice.
type Store struct {
	db       *sqlx.DB
	pageSize int
	tracer   trace.Tracer
}

// Open connects to the database and verifies the connection.
func Open(ctx context.Context, driver, dsn string) (*sqlx.DB, error) {
	if _, ok := schemas[driver]; !ok {
		return nil, fmt.Errorf("unsupported sql driver %q", driver)
	}
	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}
	return db, nil
}

// New wraps an open database. List returns at most pageSize items.
func New(db *sqlx.DB, pageSize int) *Store {
	return &Store{
		db:       db,
		pageSize: pageSize,
		tracer:   otel.Tracer("stockroom/storage/sql"),
	}
}

// Migrate creates the stock_items table when it does not exist.
func (s *Store) Migrate(ctx context.Context) error {
	ddl, ok := schemas[s.db.DriverName()]
	if !ok {
		return fmt.Errorf("unsupported sql driver %q", s.db.DriverName())
	}
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create stock_items: %w", err)
	}
	return nil
}

func (s *Store) List(ctx context.Context) ([]stock.Item, error) {
	ctx, span := s.start(ctx, "sqlstore.list", attribute.Int("page.size", s.pageSize))
	defer span.End()

	items := []stock.Item{}
	query := s.db.Rebind(`SELECT ` + columns + ` FROM stock_items ORDER BY title DESC LIMIT ?`)
	if err := s.db.SelectContext(ctx, &items, query, s.pageSize); err != nil {
		return nil, fail(span, fmt.Errorf("select items: %w", err))
	}

	span.SetAttributes(attribute.Int("items.loaded", len(items)))
	return items, nil
}

func (s *Store) Get(ctx context.Context, id int64) (*stock.Item, error) {
	ctx, span := s.start(ctx, "sqlstore.get", attribute.Int64("item.id", id))
	defer span.End()

	var item stock.Item
	query := s.db.Rebind(`SELECT ` + columns + ` FROM stock_items WHERE id = ?`)
	err := s.db.GetContext(ctx, &item, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, stock.ErrNotFound
	}
	if err != nil {
		return nil, fail(span, fmt.Errorf("select item: %w", err))
	}
	return &item, nil
}

func (s *Store) Create(ctx context.Context, item stock.Item) (*stock.Item, error) {
	ctx, span := s.start(ctx, "sqlstore.create")
	defer span.End()

	args := []any{item.Title, item.Description, item.Price, item.ImageURI, item.Done}
	insert := `INSERT INTO stock_items (title, description, price, image_uri, done) VALUES (?, ?, ?, ?, ?)`

	// MySQL has no RETURNING clause.
	if s.db.DriverName() == "postgres" {
		if err := s.db.QueryRowxContext(ctx, s.db.Rebind(insert+` RETURNING id`), args...).Scan(&item.ID); err != nil {
			return nil, fail(span, fmt.Errorf("insert item: %w", err))
		}
	} else {
		res, err := s.db.ExecContext(ctx, insert, args...)
		if err != nil {
			return nil, fail(span, fmt.Errorf("insert item: %w", err))
		}
		if item.ID, err = res.LastInsertId(); err != nil {
			return nil, fail(span, fmt.Errorf("read inserted id: %w", err))
		}
	}

	span.SetAttributes(attribute.Int64("item.id", item.ID))
	return &item, nil
}

func (s *Store) Update(ctx context.Context, id int64, patch stock.Patch) (*stock.Item, error) {
	ctx, span := s.start(ctx, "sqlstore.update", attribute.Int64("item.id", id))
	defer span.End()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fail(span, fmt.Errorf("begin transaction: %w", err))
	}
	defer tx.Rollback()

	var item stock.Item
	err = tx.GetContext(ctx, &item, tx.Rebind(`SELECT `+columns+` FROM stock_items WHERE id = ? FOR UPDATE`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, stock.ErrNotFound
	}
	if err != nil {
		return nil, fail(span, fmt.Errorf("lock item: %w", err))
	}

	patch.Apply(&item)
	_, err = tx.NamedExecContext(ctx, `
		UPDATE stock_items
		SET title = :title, description = :description, price = :price, image_uri = :image_uri, done = :done
		WHERE id = :id
	`, item)
	if err != nil {
		return nil, fail(span, fmt.Errorf("update item: %w", err))
	}

	if err := tx.Commit(); err != nil {
		return nil, fail(span, fmt.Errorf("commit transaction: %w", err))
	}
	return &item, nil
}

func (s *Store) Delete(ctx context.Context, id int64) error {
	ctx, span := s.start(ctx, "sqlstore.delete", attribute.Int64("item.id", id))
	defer span.End()

	res, err := s.db.ExecContext(ctx, s.db.Rebind(`DELETE FROM stock_items WHERE id = ?`), id)
	if err != nil {
		return fail(span, fmt.Errorf("delete item: %w", err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fail(span, fmt.Errorf("read affected rows: %w", err))
	}
	if n == 0 {
		return stock.ErrNotFound
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs, attribute.String("db.system", s.db.DriverName()))
	return s.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
