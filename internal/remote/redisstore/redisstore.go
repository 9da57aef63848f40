// Package redisstore keeps remote tables in Redis hashes and carries the
// changefeed over Redis pub/sub.
//
// Layout, with the default "ledger" prefix:
//
//	ledger:{table}              hash: primary key -> JSON row
//	ledger:changes:{table}      pub/sub channel of JSON remote.Change values
//	ledger:lock:{table}:{key}   redislock key held while a row is rewritten
//
// The per-row lock makes the read-merge-write of an upsert and the
// INSERT/UPDATE decision atomic across clients.
package redisstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/roach88/ledgersync/internal/remote"
)

// DefaultPrefix namespaces every key the store touches.
const DefaultPrefix = "ledger"

// Store implements remote.Store on Redis.
type Store struct {
	rdb     *redis.Client
	locker  *redislock.Client
	prefix  string
	lockTTL time.Duration
	retry   redislock.RetryStrategy
	log     zerolog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithPrefix overrides DefaultPrefix.
func WithPrefix(prefix string) Option {
	return func(s *Store) { s.prefix = prefix }
}

// WithLogger sets the store's logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Store) { s.log = l }
}

// New wraps an existing client.
func New(rdb *redis.Client, opts ...Option) *Store {
	s := &Store{
		rdb:     rdb,
		locker:  redislock.New(rdb),
		prefix:  DefaultPrefix,
		lockTTL: 30 * time.Second,
		retry:   redislock.LimitRetry(redislock.LinearBackoff(25*time.Millisecond), 40),
		log:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open connects to a redis:// URL and checks the connection.
func Open(ctx context.Context, url string, opts ...Option) (*Store, error) {
	redisOpts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(redisOpts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return New(rdb, opts...), nil
}

// Close closes the Redis client.
func (s *Store) Close() error {
	return s.rdb.Close()
}

func (s *Store) tableKey(t remote.Table) string {
	return s.prefix + ":" + string(t)
}

func (s *Store) channel(t remote.Table) string {
	return s.prefix + ":changes:" + string(t)
}

func (s *Store) lockKey(t remote.Table, key string) string {
	return s.prefix + ":lock:" + string(t) + ":" + key
}

func checkTable(t remote.Table) error {
	_, err := remote.ParseTable(string(t))
	return err
}

// Upsert implements remote.Store. Each row is merged into the stored row
// under that row's lock and the resulting change is published.
func (s *Store) Upsert(ctx context.Context, table remote.Table, rows []remote.Row) error {
	if err := checkTable(table); err != nil {
		return err
	}
	for _, row := range rows {
		if err := s.upsertRow(ctx, table, row); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) upsertRow(ctx context.Context, table remote.Table, row remote.Row) error {
	key := row.Key(table)
	if key == "" {
		return fmt.Errorf("upsert %s: row has no %s", table, table.PrimaryKey())
	}

	lock, err := s.locker.Obtain(ctx, s.lockKey(table, key), s.lockTTL, &redislock.Options{RetryStrategy: s.retry})
	if errors.Is(err, redislock.ErrNotObtained) {
		return fmt.Errorf("upsert %s/%s: row is locked by another writer", table, key)
	} else if err != nil {
		return fmt.Errorf("upsert %s/%s: obtain lock: %w", table, key, err)
	}
	defer func() {
		if err := lock.Release(context.WithoutCancel(ctx)); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			s.log.Warn().Err(err).Str("table", string(table)).Str("key", key).Msg("release row lock")
		}
	}()

	change := remote.Change{Table: table, Type: remote.ChangeInsert}
	raw, err := s.rdb.HGet(ctx, s.tableKey(table), key).Result()
	switch {
	case errors.Is(err, redis.Nil):
		norm, err := remote.NormalizeRow(row)
		if err != nil {
			return err
		}
		change.New = norm
	case err != nil:
		return fmt.Errorf("upsert %s/%s: read: %w", table, key, err)
	default:
		old, err := decodeRow([]byte(raw))
		if err != nil {
			return fmt.Errorf("upsert %s/%s: stored row: %w", table, key, err)
		}
		merged := old.Clone()
		for k, v := range row {
			merged[k] = v
		}
		norm, err := remote.NormalizeRow(merged)
		if err != nil {
			return err
		}
		change = remote.Change{Table: table, Type: remote.ChangeUpdate, New: norm, Old: old}
	}

	rowJSON, err := json.Marshal(change.New)
	if err != nil {
		return err
	}
	changeJSON, err := json.Marshal(change)
	if err != nil {
		return err
	}
	_, err = s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, s.tableKey(table), key, rowJSON)
		p.Publish(ctx, s.channel(table), changeJSON)
		return nil
	})
	if err != nil {
		return fmt.Errorf("upsert %s/%s: write: %w", table, key, err)
	}
	return nil
}

// Delete implements remote.Store.
func (s *Store) Delete(ctx context.Context, table remote.Table, filter remote.Filter) error {
	rows, err := s.Select(ctx, table, &filter)
	if err != nil {
		return err
	}
	for _, row := range rows {
		changeJSON, err := json.Marshal(remote.Change{Table: table, Type: remote.ChangeDelete, Old: row})
		if err != nil {
			return err
		}
		key := row.Key(table)
		_, err = s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.HDel(ctx, s.tableKey(table), key)
			p.Publish(ctx, s.channel(table), changeJSON)
			return nil
		})
		if err != nil {
			return fmt.Errorf("delete %s/%s: %w", table, key, err)
		}
	}
	return nil
}

// Select implements remote.Store. Rows come back ordered by primary key.
func (s *Store) Select(ctx context.Context, table remote.Table, filter *remote.Filter) ([]remote.Row, error) {
	if err := checkTable(table); err != nil {
		return nil, err
	}
	all, err := s.rdb.HGetAll(ctx, s.tableKey(table)).Result()
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", table, err)
	}
	keys := make([]string, 0, len(all))
	for k := range all {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]remote.Row, 0, len(all))
	for _, k := range keys {
		row, err := decodeRow([]byte(all[k]))
		if err != nil {
			return nil, fmt.Errorf("select %s/%s: %w", table, k, err)
		}
		if filter != nil && !filter.Matches(row) {
			continue
		}
		out = append(out, row)
	}
	return out, nil
}

// Subscribe implements remote.Store. The subscription is confirmed before
// returning, so no write published afterwards is missed.
func (s *Store) Subscribe(ctx context.Context, table remote.Table) (remote.Subscription, error) {
	if err := checkTable(table); err != nil {
		return nil, err
	}
	ps := s.rdb.Subscribe(ctx, s.channel(table))
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribe %s: %w", table, err)
	}

	feed := remote.NewFeed(ps.Close)
	go func() {
		defer feed.End()
		for msg := range ps.Channel() {
			change, err := decodeChange([]byte(msg.Payload))
			if err != nil {
				s.log.Warn().Err(err).Str("channel", msg.Channel).Msg("drop malformed change")
				continue
			}
			feed.Push(change)
		}
	}()
	return feed, nil
}

func decodeRow(data []byte) (remote.Row, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var row remote.Row
	if err := dec.Decode(&row); err != nil {
		return nil, err
	}
	return row, nil
}

func decodeChange(data []byte) (remote.Change, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var c remote.Change
	if err := dec.Decode(&c); err != nil {
		return remote.Change{}, err
	}
	if _, err := remote.ParseTable(string(c.Table)); err != nil {
		return remote.Change{}, err
	}
	return c, nil
}
