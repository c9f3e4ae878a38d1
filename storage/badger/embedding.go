package badger

import (
	"context"
	"errors"
	"slices"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/semindex/core"
	"github.com/poiesic/semindex/storage"
)

// writeBatchThreshold is the batch size from which SaveEmbeddings switches
// from a single transaction to a WriteBatch.
const writeBatchThreshold = 512

// EmbeddingRepository implements storage.EmbeddingStore for BadgerDB.
type EmbeddingRepository struct {
	backend     *Backend
	dims        int
	ownsBackend bool
}

var _ storage.EmbeddingStore = (*EmbeddingRepository)(nil)

// RepositoryOption configures an EmbeddingRepository.
type RepositoryOption func(*EmbeddingRepository)

// WithDimensions sets the vector length records must have.
// Default is core.Dimensions.
func WithDimensions(dims int) RepositoryOption {
	return func(r *EmbeddingRepository) {
		r.dims = dims
	}
}

// NewEmbeddingRepository creates a repository over an open backend. The
// caller keeps ownership of the backend.
func NewEmbeddingRepository(backend *Backend, opts ...RepositoryOption) *EmbeddingRepository {
	r := &EmbeddingRepository{
		backend: backend,
		dims:    core.Dimensions,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Open opens the database at path and returns a repository that closes it
// on Close.
func Open(path string, opts ...RepositoryOption) (*EmbeddingRepository, error) {
	backend, err := OpenBackend(path, false)
	if err != nil {
		return nil, err
	}
	r := NewEmbeddingRepository(backend, opts...)
	r.ownsBackend = true
	return r, nil
}

// Close closes the backend if the repository opened it.
func (r *EmbeddingRepository) Close() error {
	if !r.ownsBackend {
		return nil
	}
	return r.backend.Close()
}

// GetAllEmbeddings returns every stored record ordered by ID.
func (r *EmbeddingRepository) GetAllEmbeddings(ctx context.Context) ([]*core.EmbeddingRecord, error) {
	var results []*core.EmbeddingRecord
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(recordPrefix)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var record *core.EmbeddingRecord
			err := iter.Item().Value(func(val []byte) error {
				var err error
				record, err = storage.UnmarshalRecord(val)
				return err
			})
			if err != nil {
				return err
			}
			results = append(results, record)
		}
		return nil
	}, false)
	return results, err
}

// GetEmbedding retrieves a single record by ID.
// Returns storage.ErrNotFound if the record doesn't exist.
func (r *EmbeddingRepository) GetEmbedding(ctx context.Context, id string) (*core.EmbeddingRecord, error) {
	var result *core.EmbeddingRecord
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		result, err = readRecord(tx, makeRecordKey(id))
		if err != nil {
			return err
		}
		if result == nil {
			return storage.ErrNotFound
		}
		return nil
	}, false)
	return result, err
}

// SaveEmbedding inserts or replaces a record and its index entries.
func (r *EmbeddingRepository) SaveEmbedding(ctx context.Context, record *core.EmbeddingRecord) error {
	return r.SaveEmbeddings(ctx, []*core.EmbeddingRecord{record})
}

// SaveEmbeddings inserts or replaces records in one transaction. Batches of
// writeBatchThreshold or more records go through a WriteBatch instead.
func (r *EmbeddingRepository) SaveEmbeddings(ctx context.Context, records []*core.EmbeddingRecord) error {
	if len(records) == 0 {
		return nil
	}
	for _, record := range records {
		if err := storage.ValidateRecord(record, r.dims); err != nil {
			return err
		}
	}
	if len(records) >= writeBatchThreshold {
		return r.saveBatch(ctx, records)
	}

	return r.backend.WithTx(func(tx *badger.Txn) error {
		for _, record := range records {
			old, err := readRecord(tx, makeRecordKey(record.ID))
			if err != nil {
				return err
			}
			if old != nil {
				if err := deleteIndexes(tx, old); err != nil {
					return err
				}
			}
			if err := writeRecord(tx, record); err != nil {
				return err
			}
		}
		return tx.Commit()
	}, true)
}

// saveBatch reads the records being replaced first, so that stale parent
// job index entries can be removed in the same batch.
func (r *EmbeddingRepository) saveBatch(ctx context.Context, records []*core.EmbeddingRecord) error {
	var stale []*core.EmbeddingRecord
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		for _, record := range records {
			old, err := readRecord(tx, makeRecordKey(record.ID))
			if err != nil {
				return err
			}
			if old != nil && old.ParentJobID != record.ParentJobID {
				stale = append(stale, old)
			}
		}
		return nil
	}, false)
	if err != nil {
		return err
	}

	r.backend.logger.Debug("writing embeddings in batch", "count", len(records))
	return r.backend.WithBatch(func(wb *badger.WriteBatch) error {
		for _, old := range stale {
			if err := deleteIndexes(wb, old); err != nil {
				return err
			}
		}
		for _, record := range records {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := writeRecord(wb, record); err != nil {
				return err
			}
		}
		return nil
	})
}

// DeleteEmbedding removes a record by ID. Absent records are ignored.
func (r *EmbeddingRepository) DeleteEmbedding(ctx context.Context, id string) error {
	return r.backend.WithTx(func(tx *badger.Txn) error {
		if err := deleteRecord(tx, id); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

// DeleteEmbeddingsByEntity removes every chunk of one entity.
func (r *EmbeddingRepository) DeleteEmbeddingsByEntity(ctx context.Context, entityType core.EntityType, entityID string) error {
	return r.backend.WithTx(func(tx *badger.Txn) error {
		ids, err := scanIndex(tx, makeEntityIndexPrefix(entityType, entityID))
		if err != nil {
			return err
		}
		for _, id := range ids {
			if err := deleteRecord(tx, id); err != nil {
				return err
			}
		}
		return tx.Commit()
	}, true)
}

// DeleteEmbeddingsByJob removes the job's own records and every record
// owned by the job.
func (r *EmbeddingRepository) DeleteEmbeddingsByJob(ctx context.Context, jobID string) error {
	return r.backend.WithTx(func(tx *badger.Txn) error {
		own, err := scanIndex(tx, makeEntityIndexPrefix(core.EntityTypeJob, jobID))
		if err != nil {
			return err
		}
		owned, err := scanIndex(tx, makeJobIndexPrefix(jobID))
		if err != nil {
			return err
		}
		for _, id := range slices.Concat(own, owned) {
			if err := deleteRecord(tx, id); err != nil {
				return err
			}
		}
		return tx.Commit()
	}, true)
}

// ReplaceEntities deletes the chunk sets of keys and writes records in one
// transaction.
func (r *EmbeddingRepository) ReplaceEntities(ctx context.Context, keys []core.EntityKey, records []*core.EmbeddingRecord) error {
	for _, record := range records {
		if err := storage.ValidateRecord(record, r.dims); err != nil {
			return err
		}
	}
	return r.backend.WithTx(func(tx *badger.Txn) error {
		for _, key := range keys {
			if err := ctx.Err(); err != nil {
				return err
			}
			ids, err := scanIndex(tx, makeEntityIndexPrefix(key.Type, key.ID))
			if err != nil {
				return err
			}
			for _, id := range ids {
				if err := deleteRecord(tx, id); err != nil {
					return err
				}
			}
		}
		for _, record := range records {
			if err := ctx.Err(); err != nil {
				return err
			}
			old, err := readRecord(tx, makeRecordKey(record.ID))
			if err != nil {
				return err
			}
			if old != nil {
				if err := deleteIndexes(tx, old); err != nil {
					return err
				}
			}
			if err := writeRecord(tx, record); err != nil {
				return err
			}
		}
		return tx.Commit()
	}, true)
}

// ClearAllEmbeddings removes every record and index entry.
func (r *EmbeddingRepository) ClearAllEmbeddings(ctx context.Context) error {
	return r.backend.DropPrefix(recordPrefix, entityIndexPrefix, jobIndexPrefix)
}

// Helper methods

// writer is the subset shared by badger.Txn and badger.WriteBatch.
type writer interface {
	Set(key, val []byte) error
	Delete(key []byte) error
}

func writeRecord(w writer, record *core.EmbeddingRecord) error {
	if err := w.Set(makeRecordKey(record.ID), storage.MarshalRecord(record)); err != nil {
		return err
	}
	if err := w.Set(makeEntityIndexKey(record.EntityType, record.EntityID, record.ID), []byte(record.ID)); err != nil {
		return err
	}
	if record.ParentJobID != "" {
		if err := w.Set(makeJobIndexKey(record.ParentJobID, record.ID), []byte(record.ID)); err != nil {
			return err
		}
	}
	return nil
}

func deleteIndexes(w writer, record *core.EmbeddingRecord) error {
	if err := w.Delete(makeEntityIndexKey(record.EntityType, record.EntityID, record.ID)); err != nil {
		return err
	}
	if record.ParentJobID != "" {
		if err := w.Delete(makeJobIndexKey(record.ParentJobID, record.ID)); err != nil {
			return err
		}
	}
	return nil
}

func deleteRecord(tx *badger.Txn, id string) error {
	key := makeRecordKey(id)
	record, err := readRecord(tx, key)
	if err != nil {
		return err
	}
	if record == nil {
		return nil
	}
	if err := deleteIndexes(tx, record); err != nil {
		return err
	}
	return tx.Delete(key)
}

// scanIndex returns the record IDs stored under an index prefix.
func scanIndex(tx *badger.Txn, prefix []byte) ([]string, error) {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	iter := tx.NewIterator(opts)
	defer iter.Close()

	var ids []string
	for iter.Rewind(); iter.Valid(); iter.Next() {
		val, err := iter.Item().ValueCopy(nil)
		if err != nil {
			return nil, err
		}
		ids = append(ids, string(val))
	}
	return ids, nil
}

// readRecord reads a record from the transaction. Returns nil, nil if the
// key doesn't exist.
func readRecord(tx *badger.Txn, key []byte) (*core.EmbeddingRecord, error) {
	item, err := tx.Get(key)
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, nil
		}
		return nil, err
	}

	var record *core.EmbeddingRecord
	err = item.Value(func(val []byte) error {
		var unmarshalErr error
		record, unmarshalErr = storage.UnmarshalRecord(val)
		return unmarshalErr
	})
	return record, err
}
