package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"caseboard/internal/board"
	"caseboard/internal/config"
	"caseboard/internal/files"
	"caseboard/internal/logging"
	"caseboard/internal/model"
	"caseboard/internal/perm"
	"caseboard/internal/remote"
	"caseboard/internal/store"
)

// session is everything one command invocation opened. Close releases it.
type session struct {
	cfg     config.Config
	log     *log.Logger
	records board.RecordStore
	sqlite  *store.SQLite  // nil in remote mode
	remote  *remote.Client // nil in local mode
	board   *board.Board

	closers []func() error
}

func (s *session) onClose(fn func() error) { s.closers = append(s.closers, fn) }

func (s *session) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}

// openSession loads config, opens the record store and builds a board.
// Logs go to logOut (stderr for scriptable commands).
func openSession(ctx context.Context, app *App, logOut io.Writer) (*session, error) {
	cfg, err := app.loadConfig()
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.LogLevel, logOut)
	if err != nil {
		return nil, err
	}
	s := &session{cfg: cfg, log: logger}
	shutdown := logging.InstallTracing(logger)
	s.onClose(func() error { return shutdown(context.Background()) })
	if err := s.openRecords(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}

	opts := []board.Option{
		board.WithLogger(logger),
		board.WithAuthor(cfg.Identity.DisplayName()),
	}
	host, err := openFiles(ctx, cfg)
	if err != nil {
		logger.WithError(err).Warn("file host unavailable; uploads disabled")
	} else {
		opts = append(opts, board.WithFiles(host))
	}
	s.board = board.New(s.records, s.gate(), cfg.Board(), opts...)
	return s, nil
}

func (s *session) openRecords(ctx context.Context) error {
	if s.cfg.RemoteURL != "" {
		c, err := remote.New(s.cfg.RemoteURL, s.cfg.Token, remote.WithLogger(s.log))
		if err != nil {
			return err
		}
		s.remote = c
		s.records = c
		return nil
	}

	path, err := s.cfg.DatabasePath()
	if err != nil {
		return err
	}
	db, err := store.OpenSQLite(ctx, path, s.log)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	s.onClose(db.Close)
	s.sqlite = db
	s.records = db

	if s.cfg.RedisURL != "" {
		opt, err := redis.ParseURL(s.cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("redis_url: %w", err)
		}
		client := redis.NewClient(opt)
		s.onClose(client.Close)
		s.records = store.NewCache(db, client, s.cfg.CacheTTL, s.log)
	}
	return nil
}

// gate authorizes locally as the configured identity. A record server
// checks its own callers, so remote mode lets everything through here.
func (s *session) gate() perm.Gate {
	if s.remote != nil {
		return perm.AllowAll{}
	}
	return perm.StaticGate{Identity: s.cfg.Identity}
}

func openFiles(ctx context.Context, cfg config.Config) (files.Host, error) {
	switch cfg.Files.Kind {
	case "drive":
		return files.NewDriveFromFiles(ctx, cfg.Files.DriveCredentials, cfg.Files.DriveToken, cfg.Files.DriveFolderID)
	default:
		dir, err := cfg.FilesDir()
		if err != nil {
			return nil, err
		}
		return files.Local{Dir: dir, BaseURL: cfg.Files.BaseURL, MaxBytes: cfg.Files.MaxBytes}, nil
	}
}

// hold puts the task on the board so the engine can authorize and apply
// mutations to it.
func (s *session) hold(ctx context.Context, id string) (model.Task, error) {
	t, err := s.board.OnView(ctx, id)
	if err != nil {
		return model.Task{}, err
	}
	if _, ok := s.board.Store().Task(id); !ok {
		s.board.Store().Put(t)
	}
	return t, nil
}

// held is the board's current copy of id after a mutation.
func (s *session) held(id string) (model.Task, error) {
	t, ok := s.board.Store().Task(id)
	if !ok {
		return model.Task{}, board.NotFoundError{Kind: "task", ID: id}
	}
	return t, nil
}

// withSession opens a session with logs on stderr and closes it after fn.
func withSession(cmd *cobra.Command, app *App, fn func(ctx context.Context, s *session) error) error {
	ctx := cmdContext(cmd)
	s, err := openSession(ctx, app, cmd.ErrOrStderr())
	if err != nil {
		return writeErr(cmd, err)
	}
	defer func() { _ = s.Close() }()
	if err := fn(ctx, s); err != nil {
		return writeErr(cmd, err)
	}
	return nil
}
