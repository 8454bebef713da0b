// Package eventlog implements the append-only, per-conversation event
// store: a BoltDB-backed sequence of typed events with unique IDs, random
// access by index or ID, cursor-paginated search, counting, and an
// on-append callback invoked synchronously within the append.
package eventlog

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/bytedance/sonic"
	bolt "go.etcd.io/bbolt"

	"github.com/google/uuid"

	"github.com/haasonsaas/nexus/pkg/events"
)

// json is the append-path encoder; every event this Log persists is
// marshaled through it, so it uses sonic rather than encoding/json.
var json = sonic.ConfigStd

var (
	bucketByIndex = []byte("events_by_index")
	bucketByID    = []byte("events_by_id") // value: big-endian index, for get_by_id
)

// SortOrder controls search() iteration direction.
type SortOrder string

const (
	SortTimestampAsc  SortOrder = "TIMESTAMP"
	SortTimestampDesc SortOrder = "TIMESTAMP_DESC"
)

// ErrNotFound is returned by get_by_id/get_by_index when no such event exists.
var ErrNotFound = fmt.Errorf("eventlog: not found")

// AppendCallback is invoked synchronously, inside Append, after the event is
// durably persisted but before Append returns. Used by EventService to
// dispatch to PubSub without a separate read-then-notify race.
type AppendCallback func(index uint64, event events.Event)

// Log is one conversation's append-only event store.
type Log struct {
	mu       sync.RWMutex
	db       *bolt.DB
	onAppend []AppendCallback
}

// Open opens (creating if absent) the BoltDB file at path and prepares its
// buckets. Loading on startup requires no extra index rebuild: the id->index
// and index->event buckets are both maintained transactionally on append, so
// they are always consistent with each other on disk.
func Open(path string) (*Log, error) {
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("eventlog: open %s: %w", path, err)
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
		return nil, fmt.Errorf("eventlog: init buckets: %w", err)
	}
	return &Log{db: db}, nil
}

// Close releases the underlying database file.
func (l *Log) Close() error {
	return l.db.Close()
}

// OnAppend registers a callback fired synchronously on every successful
// Append, in registration order.
func (l *Log) OnAppend(cb AppendCallback) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onAppend = append(l.onAppend, cb)
}

func indexKey(i uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, i)
	return b
}

// Append assigns the event an ID (if not already set) and the next
// sequential index, persists it, and invokes every registered on-append
// callback before returning. It fails only on persistence error.
func (l *Log) Append(event events.Event) (uint64, events.Event, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var index uint64
	var stamped events.Event

	err := l.db.Update(func(tx *bolt.Tx) error {
		idxBucket := tx.Bucket(bucketByIndex)
		idBucket := tx.Bucket(bucketByID)

		seq, err := idxBucket.NextSequence()
		if err != nil {
			return err
		}
		index = seq - 1 // 0-based index

		stamped = withID(event)
		raw, err := json.Marshal(stamped)
		if err != nil {
			return fmt.Errorf("marshal event: %w", err)
		}
		if err := idxBucket.Put(indexKey(index), raw); err != nil {
			return err
		}
		return idBucket.Put([]byte(stamped.EventID()), indexKey(index))
	})
	if err != nil {
		return 0, nil, err
	}

	for _, cb := range l.onAppend {
		cb(index, stamped)
	}
	return index, stamped, nil
}

// withID assigns a UUID to the event's Base.ID if it is empty. Because
// every concrete Event type embeds Base as its first field and Base is
// addressed through the Event interface only for reads, assignment happens
// by type-switching on the concrete variants defined in pkg/events.
func withID(e events.Event) events.Event {
	if e.EventID() != "" {
		return e
	}
	id := events.ID(uuid.NewString())
	return events.WithID(e, id)
}

func decode(raw []byte) (events.Event, error) {
	return events.Parse(raw)
}

// GetByIndex returns the event at position i (0-based, insertion order).
func (l *Log) GetByIndex(i uint64) (events.Event, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var raw []byte
	err := l.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketByIndex).Get(indexKey(i))
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

// Count returns the number of events matching kindFilter (nil/empty means
// all events).
func (l *Log) Count(kindFilter []events.Kind) (int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	filter := kindSet(kindFilter)
	count := 0
	err := l.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketByIndex).ForEach(func(_, v []byte) error {
			if len(filter) == 0 {
				count++
				return nil
			}
			e, err := decode(v)
			if err != nil {
				return err
			}
			if filter[e.EventKind()] {
				count++
			}
			return nil
		})
	})
	return count, err
}

// All returns every event in insertion order. Used to build the View at the
// start of each step; conversations are bounded in size by condensation, so
// a full scan per step is cheap relative to the LLM call it precedes.
func (l *Log) All() ([]events.Event, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []events.Event
	err := l.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketByIndex).ForEach(func(_, v []byte) error {
			e, err := decode(v)
			if err != nil {
				return err
			}
			out = append(out, e)
			return nil
		})
	})
	return out, err
}

// Len returns the total number of appended events, the next valid index for
// Append.
func (l *Log) Len() (uint64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var n uint64
	err := l.db.View(func(tx *bolt.Tx) error {
		n = uint64(tx.Bucket(bucketByIndex).Stats().KeyN)
		return nil
	})
	return n, err
}

func kindSet(kinds []events.Kind) map[events.Kind]bool {
	if len(kinds) == 0 {
		return nil
	}
	m := make(map[events.Kind]bool, len(kinds))
	for _, k := range kinds {
		m[k] = true
	}
	return m
}
