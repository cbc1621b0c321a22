package persistence

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/pkg/errors"
)

// ErrNotExists 表示数据不存在
var ErrNotExists = fmt.Errorf("persistence data not exists")

// Service is a small Badger-backed KV service for engine state:
// snapshot keys (Save/Load) plus append-only streams (Append/ReadStream).
// Kelly stats snapshots and circuit-breaker trip events both live here.
type Service struct {
	db *badger.DB
}

// Open opens (or creates) the database under dir.
func Open(dir string) (*Service, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("persistence: dir is required")
	}
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, errors.Wrap(err, "open badger")
	}
	return &Service{db: db}, nil
}

// Close closes the database.
func (s *Service) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// NewStore returns a store bound to key "prefix:id:tag".
func (s *Service) NewStore(prefix, id, tag string) *Store {
	return &Store{
		svc: s,
		key: fmt.Sprintf("%s:%s:%s", prefix, id, tag),
	}
}

// Store is one snapshot slot plus its append-only stream.
type Store struct {
	svc *Service
	key string
}

// Save writes data as a JSON snapshot (overwrites previous snapshot).
func (st *Store) Save(data interface{}) error {
	b, err := json.Marshal(data)
	if err != nil {
		return errors.Wrap(err, "marshal snapshot")
	}
	return st.svc.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(st.key), b)
	})
}

// Load reads the JSON snapshot into data; ErrNotExists when absent.
func (st *Store) Load(data interface{}) error {
	return st.svc.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(st.key))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return ErrNotExists
			}
			return err
		}
		return item.Value(func(val []byte) error {
			if len(val) == 0 {
				return ErrNotExists
			}
			return json.Unmarshal(val, data)
		})
	})
}

// Append writes record to the store's append-only stream.
// Stream keys are "key/<big-endian unix-nano>" so iteration is time-ordered.
func (st *Store) Append(record interface{}) error {
	b, err := json.Marshal(record)
	if err != nil {
		return errors.Wrap(err, "marshal record")
	}
	k := make([]byte, 0, len(st.key)+9)
	k = append(k, []byte(st.key+"/")...)
	k = binary.BigEndian.AppendUint64(k, uint64(time.Now().UnixNano()))
	return st.svc.db.Update(func(txn *badger.Txn) error {
		return txn.Set(k, b)
	})
}

// ReadStream iterates the append-only stream oldest-first.
func (st *Store) ReadStream(fn func(raw []byte) error) error {
	prefix := []byte(st.key + "/")
	return st.svc.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := it.Item().Value(func(val []byte) error {
				return fn(append([]byte(nil), val...))
			}); err != nil {
				return err
			}
		}
		return nil
	})
}

// BreakerTrip is one circuit-breaker trip event (append-only audit trail).
type BreakerTrip struct {
	Reason   string    `json:"reason"`
	Failures int64     `json:"failures"`
	At       time.Time `json:"at"`
}
