// Package storage persists orders, execution logs, agent accounts, and
// advisor configs in a single Pebble database with JSON values.
package storage

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"

	"github.com/monfun/agent/pkg/advisor"
	"github.com/monfun/agent/pkg/order"
	"github.com/monfun/agent/pkg/wallet"
)

type Store struct {
	db *pebble.DB

	// Order transitions are read-modify-write; the mutex keeps the
	// scheduler and the API from interleaving them.
	mu sync.Mutex
}

func Open(path string) (*Store, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// ---- orders ----

func (s *Store) CreateOrder(o *order.Order) error {
	return s.putJSON(orderKey(o.ID), o, pebble.Sync)
}

// GetOrder returns nil when the order does not exist.
func (s *Store) GetOrder(id string) (*order.Order, error) {
	var o order.Order
	ok, err := s.getJSON(orderKey(id), &o)
	if err != nil || !ok {
		return nil, err
	}
	return &o, nil
}

func (s *Store) ActiveOrders() ([]*order.Order, error) {
	return s.scanOrders(func(o *order.Order) bool {
		return o.Status == order.StatusActive
	})
}

func (s *Store) OrdersByWallet(walletAddress string) ([]*order.Order, error) {
	wallet := strings.ToLower(walletAddress)
	orders, err := s.scanOrders(func(o *order.Order) bool {
		return o.WalletAddress == wallet
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(orders, func(i, j int) bool {
		return orders[i].CreatedAt.After(orders[j].CreatedAt)
	})
	return orders, nil
}

// OrdersByToken returns the live (ACTIVE or TRIGGERED) orders for a
// token, the raw material for the orderbook view.
func (s *Store) OrdersByToken(tokenAddress string) ([]*order.Order, error) {
	token := strings.ToLower(tokenAddress)
	return s.scanOrders(func(o *order.Order) bool {
		return o.TokenAddress == token &&
			(o.Status == order.StatusActive || o.Status == order.StatusTriggered)
	})
}

// CancelOrder transitions ACTIVE → CANCELLED. Any other source state is
// rejected.
func (s *Store) CancelOrder(id string) (*order.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, err := s.GetOrder(id)
	if err != nil {
		return nil, err
	}
	if o == nil {
		return nil, fmt.Errorf("order %s not found", id)
	}
	if o.Status != order.StatusActive {
		return nil, fmt.Errorf("order %s is %s, only ACTIVE orders can be cancelled", id, o.Status)
	}
	o.Status = order.StatusCancelled
	o.UpdatedAt = time.Now()
	return o, s.putJSON(orderKey(id), o, pebble.Sync)
}

func (s *Store) UpdateStatus(id string, status order.Status, txHash, routerUsed string) error {
	return s.mutateOrder(id, func(o *order.Order) {
		o.Status = status
		if txHash != "" {
			o.TxHash = txHash
		}
		if routerUsed != "" {
			o.RouterUsed = routerUsed
		}
	})
}

func (s *Store) UpdatePeakPrice(id, peak string) error {
	return s.mutateOrder(id, func(o *order.Order) {
		o.PeakPrice = peak
	})
}

// ReactivateDCA re-arms a recurring order after execution.
func (s *Store) ReactivateDCA(id string, executedAt time.Time, txHash, routerUsed string) error {
	return s.mutateOrder(id, func(o *order.Order) {
		o.Status = order.StatusActive
		o.LastExecutedAt = &executedAt
		o.TxHash = txHash
		o.RouterUsed = routerUsed
	})
}

func (s *Store) mutateOrder(id string, mutate func(*order.Order)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, err := s.GetOrder(id)
	if err != nil {
		return err
	}
	if o == nil {
		return fmt.Errorf("order %s not found", id)
	}
	mutate(o)
	o.UpdatedAt = time.Now()
	return s.putJSON(orderKey(id), o, pebble.Sync)
}

func (s *Store) scanOrders(keep func(*order.Order) bool) ([]*order.Order, error) {
	prefix := []byte(prefixOrder)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var orders []*order.Order
	for iter.First(); iter.Valid(); iter.Next() {
		var o order.Order
		if err := json.Unmarshal(iter.Value(), &o); err != nil {
			continue
		}
		if keep(&o) {
			orders = append(orders, &o)
		}
	}
	return orders, nil
}

// ---- execution logs ----

// AppendLog writes one audit entry. NoSync: log volume is high and a
// lost tail entry on crash is acceptable.
func (s *Store) AppendLog(l *order.ExecutionLog) error {
	data, err := json.Marshal(l)
	if err != nil {
		return fmt.Errorf("marshal execution log: %w", err)
	}
	return s.db.Set(logKey(l.OrderID, l.CreatedAt.UnixNano(), l.ID), data, pebble.NoSync)
}

// LogsByOrder returns an order's audit trail, newest first.
func (s *Store) LogsByOrder(orderID string, limit int) ([]*order.ExecutionLog, error) {
	prefix := logPrefix(orderID)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var logs []*order.ExecutionLog
	for iter.Last(); iter.Valid() && (limit <= 0 || len(logs) < limit); iter.Prev() {
		var l order.ExecutionLog
		if err := json.Unmarshal(iter.Value(), &l); err != nil {
			continue
		}
		logs = append(logs, &l)
	}
	return logs, nil
}

// ---- agent accounts ----

func (s *Store) SaveAccount(acc *wallet.Account) error {
	return s.putJSON(accountKey(strings.ToLower(acc.WalletAddress)), acc, pebble.Sync)
}

func (s *Store) LoadAccount(walletAddress string) (*wallet.Account, error) {
	var acc wallet.Account
	ok, err := s.getJSON(accountKey(strings.ToLower(walletAddress)), &acc)
	if err != nil || !ok {
		return nil, err
	}
	return &acc, nil
}

// ---- advisor configs ----

// LoadAdvisorConfig returns a zero config (no keys, "auto" preference)
// for wallets that never saved one.
func (s *Store) LoadAdvisorConfig(walletAddress string) (advisor.Config, error) {
	wallet := strings.ToLower(walletAddress)
	var cfg advisor.Config
	ok, err := s.getJSON(advisorKey(wallet), &cfg)
	if err != nil {
		return advisor.Config{}, err
	}
	if !ok {
		return advisor.Config{WalletAddress: wallet, Preferred: "auto"}, nil
	}
	return cfg, nil
}

func (s *Store) SaveAdvisorConfig(cfg advisor.Config) error {
	cfg.WalletAddress = strings.ToLower(cfg.WalletAddress)
	return s.putJSON(advisorKey(cfg.WalletAddress), cfg, pebble.Sync)
}

// ---- helpers ----

func (s *Store) putJSON(key []byte, v interface{}, opts *pebble.WriteOptions) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	return s.db.Set(key, data, opts)
}

func (s *Store) getJSON(key []byte, v interface{}) (bool, error) {
	data, closer, err := s.db.Get(key)
	if err == pebble.ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	defer closer.Close()
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("unmarshal %s: %w", key, err)
	}
	return true, nil
}
