// Package pgstore keeps remote tables in PostgreSQL. Writes go through gorm;
// the changefeed is a row trigger that NOTIFYs "ledger_<table>", consumed
// with a dedicated pgx connection per subscription.
package pgstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/roach88/ledgersync/internal/remote"
)

// Store implements remote.Store on PostgreSQL.
type Store struct {
	db  *gorm.DB
	dsn string
	log zerolog.Logger
}

// Option configures Open.
type Option func(*options)

type options struct {
	migrate bool
	log     zerolog.Logger
}

// WithoutMigrate skips schema migration; the schema is managed elsewhere.
func WithoutMigrate() Option {
	return func(o *options) { o.migrate = false }
}

// WithLogger sets the store's logger.
func WithLogger(l zerolog.Logger) Option {
	return func(o *options) { o.log = l }
}

// Open connects to dsn (a postgres:// URL), migrates the tables and installs
// the change triggers.
func Open(ctx context.Context, dsn string, opts ...Option) (*Store, error) {
	o := options{migrate: true, log: zerolog.Nop()}
	for _, opt := range opts {
		opt(&o)
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	s := &Store{db: db, dsn: dsn, log: o.log}
	if o.migrate {
		if err := s.Migrate(ctx); err != nil {
			_ = s.Close()
			return nil, err
		}
	}
	return s, nil
}

// Migrate creates or updates the tables and (re)installs the triggers.
func (s *Store) Migrate(ctx context.Context) error {
	db := s.db.WithContext(ctx)
	if err := db.AutoMigrate(models()...); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec(notifyFunction).Error; err != nil {
			return fmt.Errorf("install notify function: %w", err)
		}
		for _, t := range remote.Tables {
			for _, stmt := range triggerSQL(string(t)) {
				if err := tx.Exec(stmt).Error; err != nil {
					return fmt.Errorf("install trigger on %s: %w", t, err)
				}
			}
		}
		return nil
	})
}

// Close releases the connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Upsert implements remote.Store. Each row is an INSERT .. ON CONFLICT DO
// UPDATE of exactly the columns it carries.
func (s *Store) Upsert(ctx context.Context, table remote.Table, rows []remote.Row) error {
	if _, err := remote.ParseTable(string(table)); err != nil {
		return err
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, row := range rows {
			values, err := sqlValues(row)
			if err != nil {
				return err
			}
			err = tx.Table(string(table)).
				Clauses(clause.OnConflict{
					Columns:   []clause.Column{{Name: table.PrimaryKey()}},
					DoUpdates: clause.AssignmentColumns(updateColumns(table, row)),
				}).
				Create(values).Error
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("upsert %s: %w", table, mapError(table, err))
	}
	return nil
}

// Delete implements remote.Store.
func (s *Store) Delete(ctx context.Context, table remote.Table, filter remote.Filter) error {
	if _, err := remote.ParseTable(string(table)); err != nil {
		return err
	}
	err := s.db.WithContext(ctx).
		Exec("DELETE FROM "+quote(string(table))+" WHERE "+quote(filter.Column)+" IN ?", filter.Values).
		Error
	if err != nil {
		return fmt.Errorf("delete %s: %w", table, mapError(table, err))
	}
	return nil
}

// Select implements remote.Store. Rows are read as to_jsonb so they carry
// exactly the shapes the changefeed delivers.
func (s *Store) Select(ctx context.Context, table remote.Table, filter *remote.Filter) ([]remote.Row, error) {
	if _, err := remote.ParseTable(string(table)); err != nil {
		return nil, err
	}
	query := "SELECT to_jsonb(t)::text FROM " + quote(string(table)) + " t"
	var args []any
	if filter != nil {
		query += " WHERE t." + quote(filter.Column) + " IN ?"
		args = append(args, filter.Values)
	}
	query += " ORDER BY t." + quote(table.PrimaryKey())

	rows, err := s.db.WithContext(ctx).Raw(query, args...).Rows()
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", table, mapError(table, err))
	}
	defer rows.Close()

	var out []remote.Row
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("select %s: %w", table, err)
		}
		row, err := decodeJSON[remote.Row]([]byte(raw))
		if err != nil {
			return nil, fmt.Errorf("select %s: %w", table, err)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// Subscribe implements remote.Store with LISTEN on a dedicated connection.
func (s *Store) Subscribe(ctx context.Context, table remote.Table) (remote.Subscription, error) {
	if _, err := remote.ParseTable(string(table)); err != nil {
		return nil, err
	}
	conn, err := pgx.Connect(ctx, s.dsn)
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: connect: %w", table, err)
	}
	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{channel(table)}.Sanitize()); err != nil {
		_ = conn.Close(context.Background())
		return nil, fmt.Errorf("subscribe %s: listen: %w", table, err)
	}

	listenCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	feed := remote.NewFeed(func() error {
		cancel()
		<-done
		return conn.Close(context.Background())
	})

	go func() {
		defer close(done)
		defer feed.End()
		for {
			n, err := conn.WaitForNotification(listenCtx)
			if err != nil {
				if listenCtx.Err() == nil {
					s.log.Error().Err(err).Str("table", string(table)).Msg("changefeed connection lost")
				}
				return
			}
			change, err := decodeNotification(n.Payload)
			if err != nil {
				s.log.Warn().Err(err).Str("channel", n.Channel).Msg("drop malformed notification")
				continue
			}
			feed.Push(change)
		}
	}()
	return feed, nil
}

func channel(table remote.Table) string {
	return "ledger_" + string(table)
}

func quote(ident string) string {
	return pgx.Identifier{ident}.Sanitize()
}

// updateColumns lists the columns an upsert overwrites on conflict.
func updateColumns(table remote.Table, row remote.Row) []string {
	cols := make([]string, 0, len(row))
	for c := range row {
		if c != table.PrimaryKey() {
			cols = append(cols, c)
		}
	}
	sort.Strings(cols)
	return cols
}

// sqlValues converts a row into driver-friendly values: exact numbers become
// numeric text and nested lists or objects become jsonb text.
func sqlValues(row remote.Row) (map[string]any, error) {
	out := make(map[string]any, len(row))
	for k, v := range row {
		switch val := v.(type) {
		case json.Number:
			out[k] = val.String()
		case []any, map[string]any, []map[string]any, remote.Row:
			data, err := json.Marshal(val)
			if err != nil {
				return nil, fmt.Errorf("column %s: %w", k, err)
			}
			out[k] = string(data)
		default:
			out[k] = v
		}
	}
	return out, nil
}

var undefinedColumn = regexp.MustCompile(`column "([^"]+)"`)

// mapError turns an undefined_column error (SQLSTATE 42703) into a
// *remote.MissingColumnError so the writer can retry without the column.
func mapError(table remote.Table, err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != "42703" {
		return err
	}
	m := undefinedColumn.FindStringSubmatch(pgErr.Message)
	if m == nil {
		return err
	}
	return &remote.MissingColumnError{Table: table, Column: m[1]}
}

func decodeNotification(payload string) (remote.Change, error) {
	c, err := decodeJSON[remote.Change]([]byte(payload))
	if err != nil {
		return remote.Change{}, err
	}
	if _, err := remote.ParseTable(string(c.Table)); err != nil {
		return remote.Change{}, err
	}
	return c, nil
}

func decodeJSON[T any](data []byte) (T, error) {
	var v T
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	err := dec.Decode(&v)
	return v, err
}
