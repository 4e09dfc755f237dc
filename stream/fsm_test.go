package stream

import (
	"testing"

	"github.com/wippyai/gateware/internal/bitvec"
)

func narrow(v uint64, sop, eop bool) Beat {
	return Beat{Payload: bitvec.FromUint64(8, v), Valid: true, SOP: sop, EOP: eop}
}

func TestPackFSMMarkersAreOred(t *testing.T) {
	fsm := NewPackFSM(8, 4, false, true)
	s := fsm.Reset()

	in := []Beat{
		narrow(0x11, false, false),
		narrow(0x22, true, false),
		narrow(0x33, false, false),
		narrow(0x44, false, true),
	}
	for i, b := range in {
		var out PackOutput
		s, out = fsm.Step(s, b, false)
		if !out.SinkReady {
			t.Fatalf("beat %d: sink not ready", i)
		}
		if out.Source.Valid {
			t.Fatalf("beat %d: wide beat offered early", i)
		}
	}

	out := fsm.Output(s, false)
	if !out.Source.Valid || !out.Busy {
		t.Fatalf("wide beat not offered: %+v", out)
	}
	if out.SinkReady {
		t.Error("sink ready while full and source stalled")
	}
	if got := out.Source.Payload.Uint64(); got != 0x44332211 {
		t.Errorf("payload = %#x, want 0x44332211", got)
	}
	if !out.Source.SOP || !out.Source.EOP {
		t.Errorf("markers sop=%v eop=%v, want both set", out.Source.SOP, out.Source.EOP)
	}

	s, out = fsm.Step(s, Beat{}, true)
	if !out.Source.Valid {
		t.Fatal("wide beat not offered on consuming tick")
	}
	if s.Full || s.SOP || s.EOP {
		t.Errorf("state after consume = %+v, want cleared", s)
	}
}

func TestPackFSMReverse(t *testing.T) {
	fsm := NewPackFSM(8, 2, true, false)
	s := fsm.Reset()
	s, _ = fsm.Step(s, narrow(0xAB, false, false), true)
	s, _ = fsm.Step(s, narrow(0xCD, false, false), true)
	if got := fsm.Output(s, true).Source.Payload.Uint64(); got != 0xABCD {
		t.Errorf("payload = %#x, want 0xabcd", got)
	}
}

func TestPackFSMEarlyFlushKeepsStaleSlots(t *testing.T) {
	fsm := NewPackFSM(8, 4, false, true)
	s := fsm.Reset()

	s, _ = fsm.Step(s, narrow(0x11, true, false), true)
	s, _ = fsm.Step(s, narrow(0x22, false, true), true)
	if !s.Full || s.Index != 0 {
		t.Fatalf("state = %+v, want full at index 0", s)
	}
	if got := s.Acc.Uint64(); got != 0x2211 {
		t.Errorf("first packet = %#x, want 0x2211", got)
	}

	// Consumed on the same tick the next packet's only beat arrives.
	s, _ = fsm.Step(s, narrow(0x33, true, true), true)
	if !s.Full {
		t.Fatal("second packet not flushed")
	}
	if got := s.Acc.Uint64(); got != 0x2233 {
		t.Errorf("second packet = %#x, want 0x2233", got)
	}
	if !s.SOP || !s.EOP {
		t.Errorf("markers = %v/%v, want the new beat's only", s.SOP, s.EOP)
	}
}

func TestPackFSMMarkersRestartAfterConsume(t *testing.T) {
	fsm := NewPackFSM(8, 2, false, true)
	s := fsm.Reset()
	s, _ = fsm.Step(s, narrow(0x01, true, false), true)
	s, _ = fsm.Step(s, narrow(0x02, false, false), true)
	if !s.Full || !s.SOP {
		t.Fatalf("state = %+v, want full with sop", s)
	}

	s, _ = fsm.Step(s, narrow(0x03, false, false), true)
	if s.SOP || s.EOP {
		t.Errorf("markers carried over after consume: %+v", s)
	}
	if s.Full || s.Index != 1 {
		t.Errorf("state = %+v, want one slot filled", s)
	}
}

func TestUnpackFSMOrderAndMarkers(t *testing.T) {
	wide := Beat{Payload: bitvec.FromUint64(24, 0x332211), Valid: true, SOP: true, EOP: true}

	tests := []struct {
		name    string
		reverse bool
		want    []uint64
	}{
		{"forward", false, []uint64{0x11, 0x22, 0x33}},
		{"reverse", true, []uint64{0x33, 0x22, 0x11}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fsm := NewUnpackFSM(8, 3, tt.reverse, true)
			s := fsm.Reset()
			for i, want := range tt.want {
				var out UnpackOutput
				s, out = fsm.Step(s, wide, true)
				if got := out.Source.Payload.Uint64(); got != want {
					t.Errorf("beat %d = %#x, want %#x", i, got, want)
				}
				if out.Source.SOP != (i == 0) {
					t.Errorf("beat %d sop = %v", i, out.Source.SOP)
				}
				if out.Source.EOP != (i == 2) {
					t.Errorf("beat %d eop = %v", i, out.Source.EOP)
				}
				if out.SinkReady != (i == 2) {
					t.Errorf("beat %d sink ready = %v", i, out.SinkReady)
				}
				if out.Busy != (i != 0) {
					t.Errorf("beat %d busy = %v", i, out.Busy)
				}
			}
			if s.Index != 0 {
				t.Errorf("index = %d after full word, want 0", s.Index)
			}
		})
	}
}

func TestUnpackFSMHoldsIndexWhenStalled(t *testing.T) {
	fsm := NewUnpackFSM(4, 2, false, false)
	wide := Beat{Payload: bitvec.FromUint64(8, 0xA5), Valid: true}
	s := fsm.Reset()

	s, _ = fsm.Step(s, wide, true)
	for range 3 {
		var out UnpackOutput
		s, out = fsm.Step(s, wide, false)
		if out.SinkReady {
			t.Fatal("sink acknowledged while stalled")
		}
	}
	if s.Index != 1 {
		t.Fatalf("index = %d, want 1", s.Index)
	}
	out := fsm.Output(s, wide, true)
	if got := out.Source.Payload.Uint64(); got != 0xA {
		t.Errorf("second nibble = %#x, want 0xa", got)
	}
	if !out.SinkReady {
		t.Error("last nibble does not acknowledge the wide beat")
	}
}

func TestUnpackFSMIgnoresMarkersWhenNotPacketized(t *testing.T) {
	fsm := NewUnpackFSM(8, 2, false, false)
	out := fsm.Output(fsm.Reset(), Beat{Payload: bitvec.New(16), Valid: true, SOP: true, EOP: true}, true)
	if out.Source.SOP || out.Source.EOP {
		t.Error("markers emitted on a non-packetized stream")
	}
}
