package client

import (
	"strconv"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Session keys, one per persisted value
const (
	KeyToken          = "token"
	KeyDisabledOrders = "disabledOrders"
	KeyStockFilter    = "stockFilter"
	KeyCurrentPage    = "currentPage"
)

// Stock filter values understood by the order list
const (
	StockFilterAll        = "all"
	StockFilterInStock    = "in-stock"
	StockFilterOutOfStock = "out-of-stock"
)

// SessionStore persists the operator session between runs. It is local to
// one machine; nothing is synchronized across devices.
type SessionStore interface {
	Token() string
	SetToken(token string) error
	ClearToken() error

	// IsDisabled and Disable make the store a workflow.DisabledSet
	IsDisabled(orderID int64) bool
	Disable(orderID int64) error
	DisabledOrders() map[int64]bool

	StockFilter() string
	SetStockFilter(filter string) error
	CurrentPage() int
	SetCurrentPage(page int) error
}

type sessionState struct {
	Token          string
	DisabledOrders map[int64]bool
	StockFilter    string
	CurrentPage    int
}

func newSessionState() sessionState {
	return sessionState{DisabledOrders: map[int64]bool{}, StockFilter: StockFilterAll, CurrentPage: 1}
}

// MemoryStore is a SessionStore for tests and one-shot runs
type MemoryStore struct {
	mu    sync.RWMutex
	state sessionState
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: newSessionState()}
}

func (m *MemoryStore) Token() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.Token
}

func (m *MemoryStore) SetToken(token string) error {
	m.mu.Lock()
	m.state.Token = token
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) ClearToken() error {
	return m.SetToken("")
}

func (m *MemoryStore) IsDisabled(orderID int64) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.DisabledOrders[orderID]
}

func (m *MemoryStore) Disable(orderID int64) error {
	m.mu.Lock()
	m.state.DisabledOrders[orderID] = true
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) DisabledOrders() map[int64]bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[int64]bool, len(m.state.DisabledOrders))
	for k, v := range m.state.DisabledOrders {
		out[k] = v
	}
	return out
}

func (m *MemoryStore) StockFilter() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.StockFilter
}

func (m *MemoryStore) SetStockFilter(filter string) error {
	if err := checkStockFilter(filter); err != nil {
		return err
	}
	m.mu.Lock()
	m.state.StockFilter = filter
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) CurrentPage() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.CurrentPage
}

func (m *MemoryStore) SetCurrentPage(page int) error {
	if page < 1 {
		page = 1
	}
	m.mu.Lock()
	m.state.CurrentPage = page
	m.mu.Unlock()
	return nil
}

func checkStockFilter(filter string) error {
	switch filter {
	case StockFilterAll, StockFilterInStock, StockFilterOutOfStock:
		return nil
	}
	return errors.Errorf("unknown stock filter %q", filter)
}

var sessionBucket = []byte("session")

// BoltStore keeps the session in a bbolt file; values are JSON encoded
type BoltStore struct {
	db *bolt.DB
}

func OpenBoltStore(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, errors.Wrapf(err, "open session %s", path)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(sessionBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "init session bucket")
	}
	return &BoltStore{db: db}, nil
}

func (b *BoltStore) Close() error {
	return b.db.Close()
}

func (b *BoltStore) get(key string, v interface{}) bool {
	var found bool
	_ = b.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(sessionBucket).Get([]byte(key))
		if raw == nil {
			return nil
		}
		found = json.Unmarshal(raw, v) == nil
		return nil
	})
	return found
}

func (b *BoltStore) put(key string, v interface{}) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(sessionBucket).Put([]byte(key), raw)
	})
}

func (b *BoltStore) Token() string {
	var token string
	b.get(KeyToken, &token)
	return token
}

func (b *BoltStore) SetToken(token string) error {
	return b.put(KeyToken, token)
}

func (b *BoltStore) ClearToken() error {
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(sessionBucket).Delete([]byte(KeyToken))
	})
}

// DisabledOrders keys are order ids as strings on disk
func (b *BoltStore) DisabledOrders() map[int64]bool {
	raw := map[string]bool{}
	b.get(KeyDisabledOrders, &raw)
	out := make(map[int64]bool, len(raw))
	for k, v := range raw {
		if id, err := strconv.ParseInt(k, 10, 64); err == nil {
			out[id] = v
		}
	}
	return out
}

func (b *BoltStore) IsDisabled(orderID int64) bool {
	return b.DisabledOrders()[orderID]
}

func (b *BoltStore) Disable(orderID int64) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(sessionBucket)
		raw := map[string]bool{}
		if cur := bucket.Get([]byte(KeyDisabledOrders)); cur != nil {
			if err := json.Unmarshal(cur, &raw); err != nil {
				return err
			}
		}
		raw[strconv.FormatInt(orderID, 10)] = true
		data, err := json.Marshal(raw)
		if err != nil {
			return err
		}
		return bucket.Put([]byte(KeyDisabledOrders), data)
	})
}

func (b *BoltStore) StockFilter() string {
	filter := StockFilterAll
	b.get(KeyStockFilter, &filter)
	return filter
}

func (b *BoltStore) SetStockFilter(filter string) error {
	if err := checkStockFilter(filter); err != nil {
		return err
	}
	return b.put(KeyStockFilter, filter)
}

func (b *BoltStore) CurrentPage() int {
	page := 1
	b.get(KeyCurrentPage, &page)
	if page < 1 {
		return 1
	}
	return page
}

func (b *BoltStore) SetCurrentPage(page int) error {
	if page < 1 {
		page = 1
	}
	return b.put(KeyCurrentPage, page)
}
