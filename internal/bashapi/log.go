// Package bashapi implements spec.md §6.3's standalone bash execution
// collaborator interface: HTTP/WS routes backed by their own persisted
// event log (BashCommand/BashOutput), independent of any conversation.
// Execution itself runs through the same internal/toolexec.RunBash
// primitive the agent's execute_bash tool uses, so behavior (timeout,
// workspace resolution, captured-output bound) is identical either way.
package bashapi

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/bytedance/sonic"
	bolt "go.etcd.io/bbolt"

	"github.com/haasonsaas/nexus/pkg/events"
)

// sonicJSON mirrors internal/eventlog's choice of sonic over encoding/json
// for the hot append path. It is not named json because other files of this
// package import encoding/json under that name.
var sonicJSON = sonic.ConfigStd

var (
	bucketByIndex = []byte("bash_events_by_index")
	bucketByID    = []byte("bash_events_by_id")
)

// SortOrder controls Search's iteration direction, matching
// internal/eventlog.SortOrder's two values.
type SortOrder string

const (
	SortTimestampAsc  SortOrder = "TIMESTAMP"
	SortTimestampDesc SortOrder = "TIMESTAMP_DESC"
)

// ErrNotFound is returned when no matching bash event exists.
var ErrNotFound = fmt.Errorf("bashapi: not found")

// Log is the append-only, BoltDB-backed store for BashCommand/BashOutput
// events, rooted at config.BashEventsDir rather than any one conversation's
// directory.
type Log struct {
	mu sync.RWMutex
	db *bolt.DB
}

// Open opens (creating if absent) the BoltDB file at path.
func Open(path string) (*Log, error) {
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("bashapi: open %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketByIndex); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(bucketByID)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("bashapi: init buckets: %w", err)
	}
	return &Log{db: db}, nil
}

func (l *Log) Close() error { return l.db.Close() }

func indexKey(i uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, i)
	return b
}

func decode(raw []byte) (events.Event, error) {
	return events.Parse(raw)
}

// Append persists event, assigning it an ID if it doesn't already have one.
func (l *Log) Append(event events.Event) (events.Event, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var stamped events.Event
	err := l.db.Update(func(tx *bolt.Tx) error {
		idxBucket := tx.Bucket(bucketByIndex)
		idBucket := tx.Bucket(bucketByID)

		seq, err := idxBucket.NextSequence()
		if err != nil {
			return err
		}
		index := seq - 1

		stamped = event
		if stamped.EventID() == "" {
			stamped = events.WithID(stamped, events.ID(fmt.Sprintf("%016x", index)))
		}
		raw, err := sonicJSON.Marshal(stamped)
		if err != nil {
			return fmt.Errorf("marshal bash event: %w", err)
		}
		if err := idxBucket.Put(indexKey(index), raw); err != nil {
			return err
		}
		return idBucket.Put([]byte(stamped.EventID()), indexKey(index))
	})
	if err != nil {
		return nil, err
	}
	return stamped, nil
}

// GetByID returns the event with the given ID.
func (l *Log) GetByID(id events.ID) (events.Event, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var raw []byte
	err := l.db.View(func(tx *bolt.Tx) error {
		idxRaw := tx.Bucket(bucketByID).Get([]byte(id))
		if idxRaw == nil {
			return ErrNotFound
		}
		v := tx.Bucket(bucketByIndex).Get(idxRaw)
		if v == nil {
			return ErrNotFound
		}
		raw = append([]byte(nil), v...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return decode(raw)
}

// BatchGet returns events aligned with ids; missing entries are nil.
func (l *Log) BatchGet(ids []events.ID) ([]events.Event, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]events.Event, len(ids))
	err := l.db.View(func(tx *bolt.Tx) error {
		idBucket := tx.Bucket(bucketByID)
		idxBucket := tx.Bucket(bucketByIndex)
		for i, id := range ids {
			idxRaw := idBucket.Get([]byte(id))
			if idxRaw == nil {
				continue
			}
			v := idxBucket.Get(idxRaw)
			if v == nil {
				continue
			}
			e, err := decode(v)
			if err != nil {
				return err
			}
			out[i] = e
		}
		return nil
	})
	return out, err
}

// Filter narrows a Search call by Kind and CommandID, both optional,
// matching spec.md §6.3's kind__eq/command_id__eq query params. There is
// no timestamp range filter.
type Filter struct {
	Kind      events.Kind
	CommandID events.ID
}

// Page is one page of a Search call.
type Page struct {
	Items      []events.Event
	NextCursor string
}

// Search returns a page of bash events, optionally filtered, in the
// requested sort order. cursor, when non-empty, resumes from the hex index
// it encodes. A limit outside [1, 100] becomes 100.
func (l *Log) Search(cursor string, limit int, filter Filter, order SortOrder) (Page, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if limit <= 0 || limit > 100 {
		limit = 100
	}

	var page Page
	err := l.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketByIndex)
		c := b.Cursor()

		var k, v []byte
		if cursor != "" {
			start, err := decodeCursor(cursor)
			if err != nil {
				return err
			}
			k, v = c.Seek(indexKey(start))
		} else if order == SortTimestampDesc {
			k, v = c.Last()
		} else {
			k, v = c.First()
		}

		next := func() ([]byte, []byte) {
			if order == SortTimestampDesc {
				return c.Prev()
			}
			return c.Next()
		}

		for ; k != nil && len(page.Items) < limit; k, v = next() {
			e, err := decode(v)
			if err != nil {
				return err
			}
			if !matches(e, filter) {
				continue
			}
			page.Items = append(page.Items, e)
		}
		if k != nil {
			page.NextCursor = hex.EncodeToString(k)
		}
		return nil
	})
	return page, err
}

func matches(e events.Event, f Filter) bool {
	if f.Kind != "" && e.EventKind() != f.Kind {
		return false
	}
	if f.CommandID != "" {
		switch v := e.(type) {
		case events.BashCommand:
			if v.CommandID != f.CommandID {
				return false
			}
		case events.BashOutput:
			if v.CommandID != f.CommandID {
				return false
			}
		default:
			return false
		}
	}
	return true
}

func decodeCursor(cursor string) (uint64, error) {
	b, err := hex.DecodeString(cursor)
	if err != nil || len(b) != 8 {
		return 0, fmt.Errorf("bashapi: invalid cursor %q", cursor)
	}
	var v uint64
	for _, c := range b {
		v = v<<8 | uint64(c)
	}
	return v, nil
}

// Clear removes every stored bash event and returns how many were deleted.
func (l *Log) Clear() (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	count := 0
	err := l.db.Update(func(tx *bolt.Tx) error {
		count = tx.Bucket(bucketByIndex).Stats().KeyN
		if err := tx.DeleteBucket(bucketByIndex); err != nil && err != bolt.ErrBucketNotFound {
			return err
		}
		if err := tx.DeleteBucket(bucketByID); err != nil && err != bolt.ErrBucketNotFound {
			return err
		}
		if _, err := tx.CreateBucket(bucketByIndex); err != nil {
			return err
		}
		_, err := tx.CreateBucket(bucketByID)
		return err
	})
	return count, err
}
