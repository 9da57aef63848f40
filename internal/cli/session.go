package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"

	"github.com/roach88/ledgersync/internal/config"
	"github.com/roach88/ledgersync/internal/engine"
	"github.com/roach88/ledgersync/internal/ledger"
	"github.com/roach88/ledgersync/internal/localstore"
	"github.com/roach88/ledgersync/internal/logger"
	"github.com/roach88/ledgersync/internal/remote"
	"github.com/roach88/ledgersync/internal/remote/httpstore"
	"github.com/roach88/ledgersync/internal/remote/pgstore"
	"github.com/roach88/ledgersync/internal/remote/redisstore"
)

// flushTimeout bounds how long a command waits for its remote writes.
const flushTimeout = 30 * time.Second

// Dialer opens the remote store named by a URL. The closer releases it.
type Dialer func(ctx context.Context, rawURL string) (remote.Store, io.Closer, error)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// DialStore picks the store implementation from the URL scheme.
func DialStore(ctx context.Context, rawURL string) (remote.Store, io.Closer, error) {
	scheme, err := config.RemoteScheme(rawURL)
	if err != nil {
		return nil, nil, err
	}
	switch scheme {
	case "http":
		s, err := httpstore.New(rawURL, httpstore.WithLogger(logger.WithComponent("httpstore")))
		if err != nil {
			return nil, nil, err
		}
		return s, nopCloser{}, nil
	case "redis":
		s, err := redisstore.Open(ctx, rawURL, redisstore.WithLogger(logger.WithComponent("redisstore")))
		if err != nil {
			return nil, nil, err
		}
		return s, s, nil
	default:
		s, err := pgstore.Open(ctx, rawURL, pgstore.WithLogger(logger.WithComponent("pgstore")))
		if err != nil {
			return nil, nil, err
		}
		return s, s, nil
	}
}

// session is one engine run: the local ledger loaded, the loop running,
// and (when configured) the remote connected and followed.
type session struct {
	eng    *engine.Engine
	ledger *localstore.Ledger
	remote io.Closer
	log    zerolog.Logger

	cancel context.CancelFunc
	done   chan error
}

func openSession(ctx context.Context, opts *RootOptions, extra ...engine.Option) (*session, error) {
	log := logger.WithComponent("cli")
	cfg := opts.Config

	db, err := localstore.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open local ledger: %w", err)
	}
	led, err := localstore.NewLedger(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	state, loadErrs := led.Load(ctx, ledger.DefaultCatalog())
	for _, lerr := range loadErrs {
		log.Warn().Err(lerr).Msg("local ledger entry discarded, using defaults")
	}

	engOpts := []engine.Option{
		engine.WithPersister(led),
		engine.WithLogger(logger.WithComponent("engine")),
		engine.WithToday(opts.Today),
	}
	var closer io.Closer = nopCloser{}
	if cfg.RemoteURL != "" {
		store, c, err := opts.Dial(ctx, cfg.RemoteURL)
		if err != nil {
			_ = led.Close()
			return nil, fmt.Errorf("connect remote store: %w", err)
		}
		engOpts = append(engOpts, engine.WithRemote(store))
		closer = c
	}
	eng := engine.New(state, append(engOpts, extra...)...)

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s := &session{eng: eng, ledger: led, remote: closer, log: log, cancel: cancel, done: make(chan error, 1)}
	go func() { s.done <- eng.Run(runCtx) }()

	if err := eng.Start(ctx); err != nil {
		_ = s.close(ctx)
		return nil, err
	}
	return s, nil
}

// close waits for pending remote writes, then tears the session down.
// Write failures are logged by the engine and do not fail the command.
func (s *session) close(ctx context.Context) error {
	flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), flushTimeout)
	defer cancel()
	if err := s.eng.Flush(flushCtx); err != nil {
		s.log.Warn().Err(err).Msg("remote writes still in flight")
	}
	if failed := s.eng.Stats().WriteFailures; failed > 0 {
		s.log.Warn().Int64("failures", failed).Msg("some remote writes failed; the local ledger keeps the changes")
	}

	errs := []error{s.eng.Close()}
	s.eng.Stop()
	if err := <-s.done; err != nil && !errors.Is(err, context.Canceled) {
		errs = append(errs, err)
	}
	s.cancel()
	errs = append(errs, s.remote.Close(), s.ledger.Close())
	return errors.Join(errs...)
}

// withSession runs fn inside a session and closes it afterwards.
func withSession(ctx context.Context, opts *RootOptions, fn func(eng *engine.Engine) error) error {
	s, err := openSession(ctx, opts)
	if err != nil {
		return err
	}
	runErr := fn(s.eng)
	closeErr := s.close(ctx)
	if runErr != nil {
		return runErr
	}
	return closeErr
}
