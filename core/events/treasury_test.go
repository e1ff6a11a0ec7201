package events

import (
	"bytes"
	"testing"

	"github.com/holiman/uint256"

	"treasury/crypto"
)

type bareEvent struct{}

func (bareEvent) EventType() string { return "bare" }

func TestEnvelopeAttributes(t *testing.T) {
	controller := crypto.NewAddress(crypto.Originated, bytes.Repeat([]byte{1}, 20))
	tokenID := uint64(3)
	env := Envelope(FundsMoved{
		Controller:  controller,
		Asset:       " fa2 ",
		Destination: controller,
		Amount:      uint256.NewInt(12),
		TokenID:     &tokenID,
	})
	if env.Type != TypeFundsMoved {
		t.Fatalf("unexpected type %q", env.Type)
	}
	if env.Attributes["asset"] != "fa2" || env.Attributes["amount"] != "12" || env.Attributes["tokenId"] != "3" {
		t.Fatalf("unexpected attributes %v", env.Attributes)
	}

	env = Envelope(LiquidityAdded{Controller: controller})
	if env.Attributes["tokens"] != "0" {
		t.Fatalf("nil amount should render as zero, got %q", env.Attributes["tokens"])
	}

	env = Envelope(bareEvent{})
	if env.Type != "bare" || len(env.Attributes) != 0 {
		t.Fatalf("unexpected bare envelope %+v", env)
	}
	if Envelope(nil) != nil {
		t.Fatalf("nil event should have no envelope")
	}
}

func TestBufferDrain(t *testing.T) {
	var b Buffer
	b.Emit(bareEvent{})
	b.Emit(nil)
	if got := b.Drain(); len(got) != 1 {
		t.Fatalf("drained %d events", len(got))
	}
	if got := b.Drain(); len(got) != 0 {
		t.Fatalf("buffer not reset")
	}
}
