package eventlog

import (
	"encoding/hex"
	"fmt"

	bolt "go.etcd.io/bbolt"

	"github.com/haasonsaas/nexus/pkg/events"
)

// Page is one page of a search() call.
type Page struct {
	Items      []events.Event
	NextCursor string // hex-encoded next index; empty when exhausted
}

// EncodeCursor renders an index as the hex page_id cursor format used
// throughout the HTTP API (ported from the original implementation's
// literal hex page-id scheme).
func EncodeCursor(index uint64) string {
	b := indexKey(index)
	return hex.EncodeToString(b)
}

// DecodeCursor parses a hex page_id cursor back into an index.
func DecodeCursor(cursor string) (uint64, error) {
	b, err := hex.DecodeString(cursor)
	if err != nil || len(b) != 8 {
		return 0, fmt.Errorf("eventlog: invalid cursor %q", cursor)
	}
	return uint64FromKey(b), nil
}

func uint64FromKey(b []byte) uint64 {
	var v uint64
	for _, c := range b {
		v = v<<8 | uint64(c)
	}
	return v
}

// Search returns a page of events, optionally filtered by kind, in the
// requested sort order. cursor, when non-empty, resumes from the index it
// encodes. A limit outside [1, 100] becomes 100.
func (l *Log) Search(cursor string, limit int, kindFilter []events.Kind, order SortOrder) (Page, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if limit <= 0 || limit > 100 {
		limit = 100
	}
	filter := kindSet(kindFilter)

	var page Page
	err := l.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketByIndex)
		c := b.Cursor()

		var k, v []byte
		if cursor != "" {
			start, err := DecodeCursor(cursor)
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
			if len(filter) > 0 && !filter[e.EventKind()] {
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
