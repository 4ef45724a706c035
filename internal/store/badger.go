package store

import (
	"encoding/binary"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/pkg/errors"
)

// Key layout. Badger has no secondary-index feature of its own (the
// teacher only ever used it for single blob keys in internal/storage,
// never for range scans), so depth and seed_level indexes are plain
// composite keys under their own prefixes — the standard idiomatic way
// to range-scan in an ordered key-value store.
//
//	p/<fp:8>                          -> encoded Record (primary)
//	d/<depth:2><fp:8>                 -> empty (depth index)
//	l/<level:2><status:1><fp:8>       -> empty (seed-level index;
//	                                      status 0x00 = unsolved, 0x01 = solved)
//
// Only the "p/", "d/" and "l/" prefixes contain a slash; the big-endian
// fields after them are concatenated with no separator.
const (
	prefixPrimary = "p/"
	prefixDepth   = "d/"
	prefixLevel   = "l/"

	statusUnsolved = byte(0x00)
	statusSolved   = byte(0x01)
)

func primaryKey(fp uint64) []byte {
	k := make([]byte, 0, len(prefixPrimary)+8)
	k = append(k, prefixPrimary...)
	k = appendBE64(k, fp)
	return k
}

func depthIndexPrefix(depth uint16) []byte {
	k := make([]byte, 0, len(prefixDepth)+2)
	k = append(k, prefixDepth...)
	return appendBE16(k, depth)
}

func depthIndexKey(depth uint16, fp uint64) []byte {
	k := depthIndexPrefix(depth)
	return appendBE64(k, fp)
}

func levelUnsolvedPrefix(level uint16) []byte {
	k := make([]byte, 0, len(prefixLevel)+3)
	k = append(k, prefixLevel...)
	k = appendBE16(k, level)
	return append(k, statusUnsolved)
}

func levelIndexKey(level uint16, status byte, fp uint64) []byte {
	k := make([]byte, 0, len(prefixLevel)+11)
	k = append(k, prefixLevel...)
	k = appendBE16(k, level)
	k = append(k, status)
	return appendBE64(k, fp)
}

func appendBE64(b []byte, v uint64) []byte {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], v)
	return append(b, tmp[:]...)
}

func appendBE16(b []byte, v uint16) []byte {
	var tmp [2]byte
	binary.BigEndian.PutUint16(tmp[:], v)
	return append(b, tmp[:]...)
}

func fingerprintFromKeySuffix(key []byte) uint64 {
	return binary.BigEndian.Uint64(key[len(key)-8:])
}

// encodeRecord serializes everything but Fingerprint (which lives in the
// key) into the primary value.
func encodeRecord(r Record) []byte {
	buf := make([]byte, 0, 1+len(r.PackedCells)+2+2+1+1+1)
	buf = append(buf, byte(len(r.PackedCells)))
	buf = append(buf, r.PackedCells...)
	buf = appendBE16(buf, r.Depth)
	buf = appendBE16(buf, r.SeedLevel)
	if r.Solved {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}
	buf = append(buf, byte(r.Score))
	buf = append(buf, byte(r.BestMove))
	return buf
}

func decodeRecord(fp uint64, data []byte) (Record, error) {
	if len(data) < 1 {
		return Record{}, errors.Wrap(ErrNotFound, "empty record value")
	}
	cellsLen := int(data[0])
	off := 1
	if len(data) < off+cellsLen+2+2+1+1+1 {
		return Record{}, errors.New("store: truncated record value")
	}
	packed := append([]byte(nil), data[off:off+cellsLen]...)
	off += cellsLen
	depth := binary.BigEndian.Uint16(data[off : off+2])
	off += 2
	level := binary.BigEndian.Uint16(data[off : off+2])
	off += 2
	solved := data[off] == 1
	off++
	score := int8(data[off])
	off++
	bestMove := int8(data[off])

	return Record{
		Fingerprint: fp,
		PackedCells: packed,
		Depth:       depth,
		SeedLevel:   level,
		Solved:      solved,
		Score:       score,
		BestMove:    bestMove,
	}, nil
}

// BadgerStore is the reference Store backend: an embedded, MVCC-capable,
// sorted-key store. It is grounded on internal/storage/storage.go's
// badger.Open/View/Update usage, generalized from a single-key
// preferences blob to an indexed collection of Records.
type BadgerStore struct {
	db *badger.DB
}

// Options configures a BadgerStore.
type Options struct {
	Dir string
	// FastMode relaxes fsync-per-transaction durability (spec.md §4.4's
	// "fast mode" knob), accepting loss of uncommitted work on crash for
	// higher throughput. Re-running BFS after a crash in this mode
	// simply re-discovers any lost positions (insert_batch dedup makes
	// this safe).
	FastMode bool
}

// maxTxnOps bounds how many records a single Badger transaction inserts
// (each new record writes three keys: primary, depth index, level index).
// Badger enforces its own transaction size limits; chunking here keeps
// InsertBatch well under them regardless of batch_size.
const maxTxnOps = 2000

// Open creates or opens a BadgerStore at opts.Dir.
func Open(opts Options) (*BadgerStore, error) {
	bopts := badger.DefaultOptions(opts.Dir)
	bopts.Logger = nil
	bopts.SyncWrites = !opts.FastMode

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, errors.Wrap(err, "store: open badger")
	}
	return &BadgerStore{db: db}, nil
}

func (s *BadgerStore) Close() error {
	return errors.Wrap(s.db.Close(), "store: close badger")
}

func (s *BadgerStore) Flush() error {
	return errors.Wrap(s.db.Sync(), "store: sync badger")
}

func (s *BadgerStore) InsertBatch(records []Record) (int, error) {
	inserted := 0
	for start := 0; start < len(records); start += maxTxnOps {
		end := start + maxTxnOps
		if end > len(records) {
			end = len(records)
		}
		n, err := s.insertChunk(records[start:end])
		inserted += n
		if err != nil {
			return inserted, err
		}
	}
	return inserted, nil
}

func (s *BadgerStore) insertChunk(records []Record) (int, error) {
	inserted := 0
	err := s.db.Update(func(txn *badger.Txn) error {
		for _, r := range records {
			pk := primaryKey(r.Fingerprint)
			_, err := txn.Get(pk)
			if err == nil {
				continue // already present: silently skip (spec.md §4.4)
			}
			if !errors.Is(err, badger.ErrKeyNotFound) {
				return errors.Wrap(err, "store: probe existing record")
			}
			if err := txn.Set(pk, encodeRecord(r)); err != nil {
				return errors.Wrap(err, "store: insert record")
			}
			if err := txn.Set(depthIndexKey(r.Depth, r.Fingerprint), nil); err != nil {
				return errors.Wrap(err, "store: insert depth index")
			}
			if err := txn.Set(levelIndexKey(r.SeedLevel, statusUnsolved, r.Fingerprint), nil); err != nil {
				return errors.Wrap(err, "store: insert level index")
			}
			inserted++
		}
		return nil
	})
	return inserted, errors.Wrap(err, "store: insert batch transaction")
}

func (s *BadgerStore) Exists(fp uint64) (bool, error) {
	found := false
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(primaryKey(fp))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return nil
	})
	return found, errors.Wrap(err, "store: exists")
}

func (s *BadgerStore) Get(fp uint64) (Record, error) {
	var rec Record
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(primaryKey(fp))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			decoded, err := decodeRecord(fp, val)
			if err != nil {
				return err
			}
			rec = decoded
			return nil
		})
	})
	if errors.Is(err, ErrNotFound) {
		return Record{}, ErrNotFound
	}
	return rec, errors.Wrap(err, "store: get")
}

// scanIndex walks every key under prefix, skipping offset matches and
// collecting up to limit fingerprints (0 = unlimited), then fetches each
// record's full value via Get.
func (s *BadgerStore) scanIndex(prefix []byte, offset, limit int) ([]Record, error) {
	var fps []uint64
	err := s.db.View(func(txn *badger.Txn) error {
		iopts := badger.DefaultIteratorOptions
		iopts.PrefetchValues = false
		it := txn.NewIterator(iopts)
		defer it.Close()

		skipped := 0
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if skipped < offset {
				skipped++
				continue
			}
			key := it.Item().KeyCopy(nil)
			fps = append(fps, fingerprintFromKeySuffix(key))
			if limit > 0 && len(fps) >= limit {
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "store: scan index")
	}

	out := make([]Record, 0, len(fps))
	for _, fp := range fps {
		r, err := s.Get(fp)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

func (s *BadgerStore) ScanByDepth(depth uint16, offset, limit int) ([]Record, error) {
	return s.scanIndex(depthIndexPrefix(depth), offset, limit)
}

func (s *BadgerStore) ScanUnsolvedByLevel(level uint16, offset, limit int) ([]Record, error) {
	return s.scanIndex(levelUnsolvedPrefix(level), offset, limit)
}

func (s *BadgerStore) countPrefix(prefix []byte) (int, error) {
	count := 0
	err := s.db.View(func(txn *badger.Txn) error {
		iopts := badger.DefaultIteratorOptions
		iopts.PrefetchValues = false
		it := txn.NewIterator(iopts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			count++
		}
		return nil
	})
	return count, errors.Wrap(err, "store: count prefix")
}

func (s *BadgerStore) CountByDepth(depth uint16) (int, error) {
	return s.countPrefix(depthIndexPrefix(depth))
}

func (s *BadgerStore) CountUnsolvedByLevel(level uint16) (int, error) {
	return s.countPrefix(levelUnsolvedPrefix(level))
}

func (s *BadgerStore) UpdateScore(fp uint64, score, bestMove int8) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(primaryKey(fp))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		var rec Record
		if err := item.Value(func(val []byte) error {
			decoded, derr := decodeRecord(fp, val)
			if derr != nil {
				return derr
			}
			rec = decoded
			return nil
		}); err != nil {
			return err
		}

		if rec.Solved {
			if rec.Score == score && rec.BestMove == bestMove {
				return nil // idempotent no-op, spec.md §8 law
			}
			return errors.Errorf("store: conflicting UpdateScore for fingerprint %d", fp)
		}

		rec.Solved = true
		rec.Score = score
		rec.BestMove = bestMove
		if err := txn.Set(primaryKey(fp), encodeRecord(rec)); err != nil {
			return err
		}
		if err := txn.Delete(levelIndexKey(rec.SeedLevel, statusUnsolved, fp)); err != nil {
			return err
		}
		return txn.Set(levelIndexKey(rec.SeedLevel, statusSolved, fp), nil)
	})
	return errors.Wrap(err, "store: update score")
}

// ReorganizeBySeedLevel is the advisory physical-reorganization hook of
// spec.md §4.4: it forces a value-log GC pass so that after BFS
// completes, retrograde's seed-level scans read more densely packed
// files. It is a performance hint, never required for correctness.
func (s *BadgerStore) ReorganizeBySeedLevel() error {
	for {
		if err := s.db.RunValueLogGC(0.5); err != nil {
			if errors.Is(err, badger.ErrNoRewrite) {
				return nil
			}
			return errors.Wrap(err, "store: reorganize")
		}
	}
}
