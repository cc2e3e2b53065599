package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/dgraph-io/badger/v4"

	"github.com/melih-ucgun/graft/internal/types"
)

// Key layout. Every record is one JSON document under its own key; the
// execution and application indexes hold empty values.
const (
	applicationPrefix = "app/"
	rollbackPrefix    = "rb/"
	executionIndex    = "exec/"
	rollbackIndex     = "apprb/"
)

// Ledger persists ApplicationRecords and RollbackRecords in BadgerDB.
// It is safe for concurrent use; badger transactions give read-after-write
// consistency without any startup scan.
type Ledger struct {
	db *badger.DB
}

// NewLedger wraps an open BadgerDB handle.
func NewLedger(db *badger.DB) *Ledger {
	return &Ledger{db: db}
}

// OpenLedger opens the store described by cfg and wraps it.
func OpenLedger(cfg StoreConfig) (*Ledger, error) {
	db, err := OpenStore(cfg)
	if err != nil {
		return nil, err
	}
	return NewLedger(db), nil
}

// Close releases the underlying database.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// SaveApplication writes rec and indexes it under its execution id.
func (l *Ledger) SaveApplication(ctx context.Context, rec *types.ApplicationRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if rec == nil || rec.ApplicationID == "" {
		return errors.New("ledger: application id is required")
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("ledger: marshal application %s: %w", rec.ApplicationID, err)
	}

	return l.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set([]byte(applicationPrefix+rec.ApplicationID), data); err != nil {
			return fmt.Errorf("ledger: %w: %v", types.ErrIO, err)
		}
		if rec.ExecutionID != "" {
			key := executionIndex + rec.ExecutionID + "/" + rec.ApplicationID
			if err := txn.Set([]byte(key), nil); err != nil {
				return fmt.Errorf("ledger: %w: %v", types.ErrIO, err)
			}
		}
		return nil
	})
}

// GetApplication returns the record stored under id, or an error wrapping
// types.ErrNotFound.
func (l *Ledger) GetApplication(ctx context.Context, id string) (*types.ApplicationRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var rec types.ApplicationRecord
	err := l.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, applicationPrefix+id, &rec)
	})
	if err != nil {
		return nil, fmt.Errorf("ledger: application %s: %w", id, err)
	}
	return &rec, nil
}

// ListApplications returns every application, newest first.
func (l *Ledger) ListApplications(ctx context.Context) ([]types.ApplicationRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []types.ApplicationRecord
	err := l.db.View(func(txn *badger.Txn) error {
		return scanPrefix(txn, applicationPrefix, func(_ []byte, val []byte) error {
			var rec types.ApplicationRecord
			if err := json.Unmarshal(val, &rec); err != nil {
				return fmt.Errorf("ledger: decode application: %w", err)
			}
			out = append(out, rec)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sortApplications(out)
	return out, nil
}

// ListApplicationsByExecution returns the applications of one execution, newest first.
func (l *Ledger) ListApplicationsByExecution(ctx context.Context, executionID string) ([]types.ApplicationRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	prefix := executionIndex + executionID + "/"
	var out []types.ApplicationRecord
	err := l.db.View(func(txn *badger.Txn) error {
		var ids []string
		if err := scanPrefix(txn, prefix, func(key, _ []byte) error {
			ids = append(ids, string(key[len(prefix):]))
			return nil
		}); err != nil {
			return err
		}
		for _, id := range ids {
			var rec types.ApplicationRecord
			if err := getJSON(txn, applicationPrefix+id, &rec); err != nil {
				return fmt.Errorf("ledger: application %s: %w", id, err)
			}
			out = append(out, rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sortApplications(out)
	return out, nil
}

// SaveRollback writes rec and indexes it under its application id.
func (l *Ledger) SaveRollback(ctx context.Context, rec *types.RollbackRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if rec == nil || rec.RollbackID == "" {
		return errors.New("ledger: rollback id is required")
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("ledger: marshal rollback %s: %w", rec.RollbackID, err)
	}

	return l.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set([]byte(rollbackPrefix+rec.RollbackID), data); err != nil {
			return fmt.Errorf("ledger: %w: %v", types.ErrIO, err)
		}
		key := rollbackIndex + rec.ApplicationID + "/" + rec.RollbackID
		if err := txn.Set([]byte(key), nil); err != nil {
			return fmt.Errorf("ledger: %w: %v", types.ErrIO, err)
		}
		return nil
	})
}

// GetRollback returns the rollback stored under id.
func (l *Ledger) GetRollback(ctx context.Context, id string) (*types.RollbackRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var rec types.RollbackRecord
	err := l.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, rollbackPrefix+id, &rec)
	})
	if err != nil {
		return nil, fmt.Errorf("ledger: rollback %s: %w", id, err)
	}
	return &rec, nil
}

// ListRollbacks returns the rollbacks of one application, newest first.
func (l *Ledger) ListRollbacks(ctx context.Context, applicationID string) ([]types.RollbackRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	prefix := rollbackIndex + applicationID + "/"
	var out []types.RollbackRecord
	err := l.db.View(func(txn *badger.Txn) error {
		var ids []string
		if err := scanPrefix(txn, prefix, func(key, _ []byte) error {
			ids = append(ids, string(key[len(prefix):]))
			return nil
		}); err != nil {
			return err
		}
		for _, id := range ids {
			var rec types.RollbackRecord
			if err := getJSON(txn, rollbackPrefix+id, &rec); err != nil {
				return fmt.Errorf("ledger: rollback %s: %w", id, err)
			}
			out = append(out, rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	return out, nil
}

func getJSON(txn *badger.Txn, key string, v any) error {
	item, err := txn.Get([]byte(key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return types.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("%w: %v", types.ErrIO, err)
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, v)
	})
}

func scanPrefix(txn *badger.Txn, prefix string, fn func(key, val []byte) error) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = []byte(prefix)
	it := txn.NewIterator(opts)
	defer it.Close()

	for it.Rewind(); it.Valid(); it.Next() {
		item := it.Item()
		key := item.KeyCopy(nil)
		val, err := item.ValueCopy(nil)
		if err != nil {
			return fmt.Errorf("ledger: %w: read %s: %v", types.ErrIO, key, err)
		}
		if err := fn(key, val); err != nil {
			return err
		}
	}
	return nil
}

func sortApplications(recs []types.ApplicationRecord) {
	sort.SliceStable(recs, func(i, j int) bool {
		return recs[i].StartedAt.After(recs[j].StartedAt)
	})
}
