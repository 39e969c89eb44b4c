package framestore

import (
	"errors"
	"testing"

	"github.com/daviddao/boxslice_viewer/internal/boxslice"
)

func TestSubscribeReceivesChanges(t *testing.T) {
	s := quietStore(2)
	ch := make(chan Change, 4)
	if err := s.Subscribe("ui", ch); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	s.Ingest([]boxslice.Frame{frameAt(0, 1), frameAt(1, -1), frameAt(2, 1)})
	select {
	case c := <-ch:
		if c.Appended != 3 || c.Evicted != 1 || c.Len != 2 {
			t.Errorf("change = %+v", c)
		}
	default:
		t.Fatal("no change delivered")
	}

	// A pure duplicate changes nothing and must not notify.
	s.Ingest([]boxslice.Frame{frameAt(3, 1)})
	select {
	case c := <-ch:
		t.Errorf("unexpected change for duplicate: %+v", c)
	default:
	}

	s.Reset()
	if c := <-ch; !c.Reset {
		t.Errorf("expected reset change, got %+v", c)
	}
}

func TestSubscribeErrors(t *testing.T) {
	s := quietStore(2)
	if err := s.Subscribe("a", nil); !errors.Is(err, ErrNilChannel) {
		t.Errorf("nil channel: got %v", err)
	}
	ch := make(chan Change, 1)
	if err := s.Subscribe("a", ch); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if err := s.Subscribe("a", ch); !errors.Is(err, ErrSubscriberExists) {
		t.Errorf("duplicate id: got %v", err)
	}
	s.Unsubscribe("a")
	if err := s.Subscribe("a", ch); err != nil {
		t.Errorf("re-subscribe after Unsubscribe: %v", err)
	}
}

func TestNotifyNeverBlocks(t *testing.T) {
	s := quietStore(10)
	ch := make(chan Change) // unbuffered, nobody reading
	if err := s.Subscribe("slow", ch); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	s.Ingest([]boxslice.Frame{frameAt(0, 1)}) // must return
	if s.Len() != 1 {
		t.Errorf("Len = %d", s.Len())
	}
}
