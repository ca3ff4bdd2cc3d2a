package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v3"
	"github.com/hashicorp/go-hclog"

	"task-api/store"
)

var badgerKey = []byte("snapshot")

// Badger keeps the JSON snapshot under one key of an embedded Badger DB.
type Badger struct {
	db *badger.DB
}

func NewBadger(dir string, logger hclog.Logger) (*Badger, error) {
	if dir == "" {
		return nil, errors.New("badger: dir is required")
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	opts := badger.DefaultOptions(dir)
	opts.Logger = &badgerLogger{logger: logger}
	opts.SyncWrites = true

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("badger: open db: %w", err)
	}
	return &Badger{db: db}, nil
}

func (b *Badger) Save(_ context.Context, s *store.Store) error {
	val, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(badgerKey, val)
	})
}

func (b *Badger) Load(_ context.Context) (*store.Store, error) {
	var val []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(badgerKey)
		if err != nil {
			return err
		}
		val, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("badger: %w", store.ErrNoSnapshot)
	}
	if err != nil {
		return nil, fmt.Errorf("badger: read snapshot: %w", err)
	}

	s := store.New()
	if err := json.Unmarshal(val, s); err != nil {
		return nil, fmt.Errorf("badger: decode snapshot: %w", err)
	}
	return s, nil
}

func (b *Badger) Close() error {
	return b.db.Close()
}

// badgerLogger routes Badger's printf-style logging into hclog.
type badgerLogger struct {
	logger hclog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...any) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...any) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...any) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...any) {
	l.logger.Trace(fmt.Sprintf(format, args...))
}
