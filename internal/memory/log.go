package memory

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sort"
	"time"

	badger "github.com/dgraph-io/badger/v4"
)

// Key space. Every durable byte lives under one of three prefixes:
//
//	'l' u16(len) agent u64(txn nanos)  -> framed log record
//	'i' u16(len) agent episode id     -> u64(txn nanos)
//	'm' agent                          -> nil
//
// Record keys sort by commit time, so a prefix scan replays an agent
// in exactly the order transaction times were assigned.
const (
	keyKindRecord byte = 'l'
	keyKindID     byte = 'i'
	keyKindAgent  byte = 'm'
)

func agentPrefix(kind byte, agent string) []byte {
	key := make([]byte, 0, 3+len(agent))
	key = append(key, kind)
	key = binary.BigEndian.AppendUint16(key, uint16(len(agent)))
	return append(key, agent...)
}

func recordKey(agent string, ts uint64) []byte {
	return binary.BigEndian.AppendUint64(agentPrefix(keyKindRecord, agent), ts)
}

func recordPrefix(agent string) []byte {
	return agentPrefix(keyKindRecord, agent)
}

func tsFromRecordKey(key []byte) uint64 {
	return binary.BigEndian.Uint64(key[len(key)-8:])
}

func idKey(agent, id string) []byte {
	return append(agentPrefix(keyKindID, agent), id...)
}

func idPrefix(agent string) []byte {
	return agentPrefix(keyKindID, agent)
}

func agentKey(agent string) []byte {
	return append([]byte{keyKindAgent}, agent...)
}

// episodeLog is the durable append-only store. Records are immutable
// once committed; corrections and tombstones are new records. All
// writes for one agent happen under that agent's lock, which also
// owns the transaction clock.
type episodeLog struct {
	db *badger.DB
}

func newEpisodeLog(db *badger.DB) *episodeLog {
	return &episodeLog{db: db}
}

// nextTransactionTime assigns a strictly increasing commit time for
// the agent: wall clock nanoseconds, bumped past the last committed
// time when the clock stalls or steps backwards. The caller must hold
// the agent's lock.
func nextTransactionTime(lk *agentLock) uint64 {
	ts := uint64(time.Now().UnixNano())
	if ts <= lk.lastTS {
		ts = lk.lastTS + 1
	}
	return ts
}

// appendEpisode durably commits an episode and stamps its transaction
// time. The caller must hold the agent's lock. On error the episode
// was not committed and the clock is unchanged.
func (l *episodeLog) appendEpisode(lk *agentLock, ep *Episode) error {
	ts := nextTransactionTime(lk)
	ep.TransactionTime = time.Unix(0, int64(ts)).UTC()

	frame, err := encodeRecord(&logRecord{Kind: recordEpisode, Episode: ep})
	if err != nil {
		return err
	}

	err = l.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(recordKey(ep.AgentID, ts), frame); err != nil {
			return err
		}
		var tsBuf [8]byte
		binary.BigEndian.PutUint64(tsBuf[:], ts)
		if err := txn.Set(idKey(ep.AgentID, ep.ID), tsBuf[:]); err != nil {
			return err
		}
		return txn.Set(agentKey(ep.AgentID), nil)
	})
	if err != nil {
		return fmt.Errorf("committing episode %s: %w: %w", ep.ID, ErrDurability, err)
	}

	lk.lastTS = ts
	return nil
}

// appendStatus durably commits a status transition. The caller must
// hold the agent's lock.
func (l *episodeLog) appendStatus(lk *agentLock, agent string, ch *statusChange) error {
	ts := nextTransactionTime(lk)

	frame, err := encodeRecord(&logRecord{Kind: recordStatus, Status: ch})
	if err != nil {
		return err
	}

	err = l.db.Update(func(txn *badger.Txn) error {
		return txn.Set(recordKey(agent, ts), frame)
	})
	if err != nil {
		return fmt.Errorf("committing status %s -> %s: %w: %w", ch.EpisodeID, ch.Status, ErrDurability, err)
	}

	lk.lastTS = ts
	return nil
}

// appendClear durably commits a clear marker. The caller must hold
// the agent's lock.
func (l *episodeLog) appendClear(lk *agentLock, agent string, marker *clearMarker) error {
	ts := nextTransactionTime(lk)

	frame, err := encodeRecord(&logRecord{Kind: recordClear, Clear: marker})
	if err != nil {
		return err
	}

	err = l.db.Update(func(txn *badger.Txn) error {
		return txn.Set(recordKey(agent, ts), frame)
	})
	if err != nil {
		return fmt.Errorf("committing clear for %s: %w: %w", agent, ErrDurability, err)
	}

	lk.lastTS = ts
	return nil
}

// read fetches one episode record by id, following the id index to
// its commit time.
func (l *episodeLog) read(agent, id string) (*Episode, error) {
	var ep *Episode
	err := l.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(idKey(agent, id))
		if err != nil {
			return err
		}
		var ts uint64
		if err := item.Value(func(val []byte) error {
			if len(val) != 8 {
				return fmt.Errorf("%w: id index entry for %s is %d bytes", ErrCorruption, id, len(val))
			}
			ts = binary.BigEndian.Uint64(val)
			return nil
		}); err != nil {
			return err
		}

		item, err = txn.Get(recordKey(agent, ts))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			rec, err := decodeRecord(val)
			if err != nil {
				return err
			}
			if rec.Kind != recordEpisode {
				return fmt.Errorf("%w: id index for %s points at a %s record", ErrCorruption, id, rec.Kind)
			}
			ep = rec.Episode
			return nil
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("episode %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return ep, nil
}

// replay walks an agent's records in commit order. Corrupt records
// are passed to quarantine and skipped; everything else goes to
// apply. Returns the highest transaction time seen, counting corrupt
// records so the recovered clock never collides with a committed key.
func (l *episodeLog) replay(ctx context.Context, agent string, apply func(ts uint64, rec *logRecord) error, quarantine func(ts uint64, err error)) (uint64, error) {
	prefix := recordPrefix(agent)
	var last uint64

	err := l.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		n := 0
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if n%256 == 0 {
				if err := ctx.Err(); err != nil {
					return err
				}
			}
			n++

			item := it.Item()
			ts := tsFromRecordKey(item.Key())
			if ts > last {
				last = ts
			}

			var rec *logRecord
			err := item.Value(func(val []byte) error {
				decoded, derr := decodeRecord(val)
				if derr != nil {
					return derr
				}
				rec = decoded
				return nil
			})
			if err != nil {
				if errors.Is(err, ErrCorruption) {
					quarantine(ts, err)
					continue
				}
				return err
			}

			if err := apply(ts, rec); err != nil {
				return err
			}
		}
		return nil
	})
	return last, err
}

// ScanOrder selects the timeline a scan walks.
type ScanOrder int

const (
	// OrderTransactionTime walks records in commit order.
	OrderTransactionTime ScanOrder = iota

	// OrderEventTime walks records by when their occurrence happened.
	OrderEventTime
)

// ScanOptions shape a log scan.
type ScanOptions struct {
	// Order is the timeline to walk.
	Order ScanOrder

	// Desc walks newest first.
	Desc bool

	// Filter, when set, keeps only episodes it returns true for.
	Filter func(*Episode) bool
}

// ErrStopScan halts a scan early from inside the visit callback.
var ErrStopScan = errors.New("stop scan")

// scan streams an agent's committed episode records. Status and clear
// records are skipped: scan yields episodes as they were committed,
// and the caller overlays current lifecycle state if it needs it.
// Corrupt records are passed to quarantine and skipped. Event-time
// order materializes the agent's episodes before visiting.
func (l *episodeLog) scan(ctx context.Context, agent string, opts ScanOptions, visit func(*Episode) error, quarantine func(ts uint64, err error)) error {
	if opts.Order == OrderEventTime {
		return l.scanByEvent(ctx, agent, opts, visit, quarantine)
	}

	prefix := recordPrefix(agent)
	iterOpts := badger.DefaultIteratorOptions
	iterOpts.Prefix = prefix
	iterOpts.Reverse = opts.Desc

	seek := prefix
	if opts.Desc {
		// Reverse iteration seeks to the last possible key under the
		// prefix.
		seek = recordKey(agent, ^uint64(0))
	}

	err := l.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(iterOpts)
		defer it.Close()

		n := 0
		for it.Seek(seek); it.ValidForPrefix(prefix); it.Next() {
			if n%256 == 0 {
				if err := ctx.Err(); err != nil {
					return err
				}
			}
			n++

			item := it.Item()
			var rec *logRecord
			err := item.Value(func(val []byte) error {
				decoded, derr := decodeRecord(val)
				if derr != nil {
					return derr
				}
				rec = decoded
				return nil
			})
			if err != nil {
				if errors.Is(err, ErrCorruption) {
					quarantine(tsFromRecordKey(item.Key()), err)
					continue
				}
				return err
			}
			if rec.Kind != recordEpisode {
				continue
			}
			if opts.Filter != nil && !opts.Filter(rec.Episode) {
				continue
			}
			if err := visit(rec.Episode); err != nil {
				return err
			}
		}
		return nil
	})
	if errors.Is(err, ErrStopScan) {
		return nil
	}
	return err
}

func (l *episodeLog) scanByEvent(ctx context.Context, agent string, opts ScanOptions, visit func(*Episode) error, quarantine func(ts uint64, err error)) error {
	var eps []*Episode
	collect := func(_ uint64, rec *logRecord) error {
		if rec.Kind != recordEpisode {
			return nil
		}
		if opts.Filter != nil && !opts.Filter(rec.Episode) {
			return nil
		}
		eps = append(eps, rec.Episode)
		return nil
	}
	if _, err := l.replay(ctx, agent, collect, quarantine); err != nil {
		return err
	}

	sort.SliceStable(eps, func(i, j int) bool {
		a, b := eps[i], eps[j]
		if !a.EventTime.Equal(b.EventTime) {
			if opts.Desc {
				return a.EventTime.After(b.EventTime)
			}
			return a.EventTime.Before(b.EventTime)
		}
		if opts.Desc {
			return a.TransactionTime.After(b.TransactionTime)
		}
		return a.TransactionTime.Before(b.TransactionTime)
	})

	for _, ep := range eps {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := visit(ep); err != nil {
			if errors.Is(err, ErrStopScan) {
				return nil
			}
			return err
		}
	}
	return nil
}

// agents lists every agent namespace that has ever committed a
// record.
func (l *episodeLog) agents() ([]string, error) {
	prefix := []byte{keyKindAgent}
	var out []string

	err := l.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			out = append(out, string(it.Item().Key()[1:]))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(out)
	return out, nil
}

// purge irreversibly deletes every key belonging to an agent. This is
// the one operation that erases instead of tombstoning. The caller
// must hold the agent's lock.
func (l *episodeLog) purge(agent string) error {
	err := l.db.DropPrefix(recordPrefix(agent), idPrefix(agent), agentKey(agent))
	if err != nil {
		return fmt.Errorf("purging agent %s: %w: %w", agent, ErrDurability, err)
	}
	return nil
}
