// Package memstore is an in-process remote.Store. It backs the hub's
// "memory" backend and stands in for a shared store in engine tests, where
// several engines attached to one Store behave like clients of one database.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/roach88/ledgersync/internal/remote"
)

// Store keeps rows per table and fans every accepted write out to all
// subscriptions of that table.
//
// Thread-safety: all methods are safe for concurrent use.
type Store struct {
	mu       sync.RWMutex
	tables   map[remote.Table]map[string]remote.Row
	subs     map[remote.Table]map[*remote.Feed]struct{}
	missing  map[remote.Table]map[string]bool
	writeErr error
	writes   int
}

// Option configures a Store.
type Option func(*Store)

// WithoutColumns makes the store reject writes that name any of columns, the
// way an older database schema would.
func WithoutColumns(table remote.Table, columns ...string) Option {
	return func(s *Store) {
		if s.missing[table] == nil {
			s.missing[table] = map[string]bool{}
		}
		for _, c := range columns {
			s.missing[table][c] = true
		}
	}
}

// New creates an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		tables:  map[remote.Table]map[string]remote.Row{},
		subs:    map[remote.Table]map[*remote.Feed]struct{}{},
		missing: map[remote.Table]map[string]bool{},
	}
	for _, t := range remote.Tables {
		s.tables[t] = map[string]remote.Row{}
		s.subs[t] = map[*remote.Feed]struct{}{}
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AddColumn lifts a WithoutColumns restriction, as a schema migration would.
func (s *Store) AddColumn(table remote.Table, column string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.missing[table], column)
}

// FailWrites makes every Upsert and Delete return err until called with nil.
func (s *Store) FailWrites(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writeErr = err
}

// Writes returns the number of accepted Upsert and Delete calls.
func (s *Store) Writes() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.writes
}

func (s *Store) table(t remote.Table) (map[string]remote.Row, error) {
	rows, ok := s.tables[t]
	if !ok {
		return nil, fmt.Errorf("%w: %q", remote.ErrUnknownTable, t)
	}
	return rows, nil
}

// Upsert implements remote.Store. Rows are copied through their JSON form,
// so readers see the same value shapes a networked store would return.
func (s *Store) Upsert(ctx context.Context, table remote.Table, rows []remote.Row) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.table(table)
	if err != nil {
		return err
	}
	if s.writeErr != nil {
		return s.writeErr
	}
	normalized := make([]remote.Row, 0, len(rows))
	for _, r := range rows {
		for col := range r {
			if s.missing[table][col] {
				return &remote.MissingColumnError{Table: table, Column: col}
			}
		}
		n, err := remote.NormalizeRow(r)
		if err != nil {
			return err
		}
		normalized = append(normalized, n)
	}

	s.writes++
	for _, r := range normalized {
		key := r.Key(table)
		change := remote.Change{Table: table, Type: remote.ChangeInsert, New: r}
		if old, ok := data[key]; ok {
			merged := old.Clone()
			for k, v := range r {
				merged[k] = v
			}
			change = remote.Change{Table: table, Type: remote.ChangeUpdate, New: merged, Old: old}
		}
		data[key] = change.New
		s.publishLocked(change)
	}
	return nil
}

// Delete implements remote.Store.
func (s *Store) Delete(ctx context.Context, table remote.Table, filter remote.Filter) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.table(table)
	if err != nil {
		return err
	}
	if s.writeErr != nil {
		return s.writeErr
	}
	s.writes++
	for _, key := range sortedKeys(data) {
		row := data[key]
		if !filter.Matches(row) {
			continue
		}
		delete(data, key)
		s.publishLocked(remote.Change{Table: table, Type: remote.ChangeDelete, Old: row})
	}
	return nil
}

// Select implements remote.Store. Rows come back ordered by primary key.
func (s *Store) Select(ctx context.Context, table remote.Table, filter *remote.Filter) ([]remote.Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := s.table(table)
	if err != nil {
		return nil, err
	}
	out := make([]remote.Row, 0, len(data))
	for _, key := range sortedKeys(data) {
		row := data[key]
		if filter != nil && !filter.Matches(row) {
			continue
		}
		out = append(out, row.Clone())
	}
	return out, nil
}

// Subscribe implements remote.Store.
func (s *Store) Subscribe(ctx context.Context, table remote.Table) (remote.Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.table(table); err != nil {
		return nil, err
	}
	var feed *remote.Feed
	feed = remote.NewFeed(func() error {
		s.mu.Lock()
		delete(s.subs[table], feed)
		s.mu.Unlock()
		return nil
	})
	s.subs[table][feed] = struct{}{}
	return feed, nil
}

// Publish delivers a change to subscribers without touching stored rows.
// Tests use it to replay or fabricate changefeed events.
func (s *Store) Publish(change remote.Change) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.publishLocked(change)
}

// Subscribers returns the number of open subscriptions for a table.
func (s *Store) Subscribers(table remote.Table) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subs[table])
}

// Close ends every open subscription.
func (s *Store) Close() error {
	s.mu.Lock()
	feeds := make([]*remote.Feed, 0)
	for _, subs := range s.subs {
		for f := range subs {
			feeds = append(feeds, f)
		}
	}
	s.mu.Unlock()

	for _, f := range feeds {
		f.End()
		_ = f.Close()
	}
	return nil
}

func (s *Store) publishLocked(change remote.Change) {
	for f := range s.subs[change.Table] {
		f.Push(change)
	}
}

func sortedKeys(rows map[string]remote.Row) []string {
	keys := make([]string, 0, len(rows))
	for k := range rows {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
