// Package events is the in-process push pipeline: the monitor publishes
// order lifecycle events, the API's websocket hub fans them out to
// clients subscribed by wallet.
package events

import (
	"sync"
	"time"
)

type Type string

const (
	OrderTriggered Type = "order:triggered"
	OrderExecuted  Type = "order:executed"
	OrderFailed    Type = "order:failed"
	OrderExpired   Type = "order:expired"
	OrderAborted   Type = "order:aborted"
)

// Event is a closed payload struct; all fields are present on the wire
// even when empty so consumers never probe for shape.
type Event struct {
	Type          Type      `json:"type"`
	OrderID       string    `json:"orderId"`
	WalletAddress string    `json:"walletAddress"`
	TokenAddress  string    `json:"tokenAddress,omitempty"`
	Direction     string    `json:"direction,omitempty"`
	TxHash        string    `json:"txHash,omitempty"`
	Reason        string    `json:"reason,omitempty"`
	At            time.Time `json:"at"`
}

type subscriber struct {
	wallet string // lowercased; empty subscribes to everything
	ch     chan Event
}

// Bus fans events out to subscribers. Publish never blocks: a slow
// subscriber drops events rather than stalling the monitor tick.
type Bus struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]subscriber
}

func NewBus() *Bus {
	return &Bus{subs: map[int]subscriber{}}
}

// Subscribe registers a listener for one wallet's events (or all events
// when wallet is empty). The returned cancel func must be called to
// release the subscription.
func (b *Bus) Subscribe(wallet string) (<-chan Event, func()) {
	ch := make(chan Event, 64)
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = subscriber{wallet: wallet, ch: ch}
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		if s, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(s.ch)
		}
		b.mu.Unlock()
	}
	return ch, cancel
}

func (b *Bus) Publish(ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, s := range b.subs {
		if s.wallet != "" && s.wallet != ev.WalletAddress {
			continue
		}
		select {
		case s.ch <- ev:
		default:
		}
	}
}
