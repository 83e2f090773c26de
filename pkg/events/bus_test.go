package events

import (
	"testing"
	"time"
)

func TestBusFiltersByWallet(t *testing.T) {
	b := NewBus()
	mine, cancelMine := b.Subscribe("0xaaa")
	defer cancelMine()
	all, cancelAll := b.Subscribe("")
	defer cancelAll()

	b.Publish(Event{Type: OrderTriggered, OrderID: "1", WalletAddress: "0xaaa"})
	b.Publish(Event{Type: OrderExecuted, OrderID: "2", WalletAddress: "0xbbb"})

	select {
	case ev := <-mine:
		if ev.OrderID != "1" {
			t.Errorf("wallet subscriber got order %s, want 1", ev.OrderID)
		}
	default:
		t.Fatal("wallet subscriber missed its event")
	}
	select {
	case ev := <-mine:
		t.Errorf("wallet subscriber leaked foreign event: %+v", ev)
	default:
	}

	if n := len(drain(all)); n != 2 {
		t.Errorf("wildcard subscriber got %d events, want 2", n)
	}
}

func TestBusPublishNeverBlocks(t *testing.T) {
	b := NewBus()
	ch, cancel := b.Subscribe("")
	defer cancel()

	done := make(chan struct{})
	go func() {
		// Overfill the subscriber buffer; extra events must be dropped,
		// not block the publisher.
		for i := 0; i < 200; i++ {
			b.Publish(Event{Type: OrderAborted, OrderID: "x", WalletAddress: "0xaaa"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}
	if n := len(drain(ch)); n == 0 || n > 64 {
		t.Errorf("got %d buffered events, want 1..64", n)
	}
}

func TestBusCancelClosesChannel(t *testing.T) {
	b := NewBus()
	ch, cancel := b.Subscribe("0xaaa")
	cancel()

	if _, open := <-ch; open {
		t.Error("channel still open after cancel")
	}
	// Publishing after cancel must not panic.
	b.Publish(Event{Type: OrderExpired, WalletAddress: "0xaaa"})
}

func TestBusStampsTime(t *testing.T) {
	b := NewBus()
	ch, cancel := b.Subscribe("")
	defer cancel()

	b.Publish(Event{Type: OrderFailed, WalletAddress: "0xaaa"})
	ev := <-ch
	if ev.At.IsZero() {
		t.Error("publish should stamp At when unset")
	}
}

func drain(ch <-chan Event) []Event {
	var out []Event
	for {
		select {
		case ev := <-ch:
			out = append(out, ev)
		default:
			return out
		}
	}
}
