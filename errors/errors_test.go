package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		contains []string
	}{
		{
			name: "full error",
			err: &Error{
				Phase:  PhaseElaborate,
				Kind:   KindWidthRatio,
				Path:   []string{"converter", "data"},
				Detail: "12 is not a multiple of 8",
			},
			contains: []string{"[elaborate]", "width_ratio", "converter.data", "12 is not a multiple of 8"},
		},
		{
			name: "minimal error",
			err: &Error{
				Phase: PhaseSimulate,
				Kind:  KindOutOfRange,
			},
			contains: []string{"[simulate]", "out_of_range"},
		},
		{
			name: "error with cause",
			err: &Error{
				Phase:  PhaseKernel,
				Kind:   KindInstantiation,
				Detail: "instantiate kernel module",
				Cause:  errors.New("underlying error"),
			},
			contains: []string{"[kernel]", "instantiation", "caused by", "underlying error"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.err.Error()
			for _, s := range tt.contains {
				if !strings.Contains(msg, s) {
					t.Errorf("error message %q does not contain %q", msg, s)
				}
			}
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := Wrap(PhaseParse, KindInvalidData, cause, "parse map")

	if !errors.Is(err, cause) {
		t.Error("errors.Is did not find cause")
	}
	if !errors.Is(errors.Unwrap(err), cause) {
		t.Error("errors.Unwrap did not return cause")
	}
}

func TestError_Is(t *testing.T) {
	err := ReservedName([]string{"valid"}, "valid")

	if !errors.Is(err, &Error{Phase: PhaseElaborate, Kind: KindReservedName}) {
		t.Error("expected match on phase and kind")
	}
	if errors.Is(err, &Error{Phase: PhaseSimulate, Kind: KindReservedName}) {
		t.Error("unexpected match on different phase")
	}
	if errors.Is(err, &Error{Phase: PhaseElaborate, Kind: KindDuplicateName}) {
		t.Error("unexpected match on different kind")
	}
}

func TestBuilder(t *testing.T) {
	err := New(PhaseElaborate, KindLayoutMismatch).
		Path("chunkerize", "data").
		Value(7).
		Detail("field %q has width %d", "data", 7).
		Build()

	if err.Phase != PhaseElaborate || err.Kind != KindLayoutMismatch {
		t.Fatalf("unexpected phase/kind: %s/%s", err.Phase, err.Kind)
	}
	if got := strings.Join(err.Path, "."); got != "chunkerize.data" {
		t.Errorf("path = %q", got)
	}
	if err.Detail != `field "data" has width 7` {
		t.Errorf("detail = %q", err.Detail)
	}
	if err.Value != 7 {
		t.Errorf("value = %v", err.Value)
	}
}

func TestIsConfiguration(t *testing.T) {
	tests := []struct {
		err  error
		name string
		want bool
	}{
		{name: "width ratio", err: WidthRatio(nil, 12, 8), want: true},
		{name: "config phase", err: Unsupported(PhaseConfig, "controller"), want: true},
		{name: "wrapped", err: fmt.Errorf("build: %w", InvalidDepth(nil, 3, "not a power of two")), want: true},
		{name: "protocol", err: ProtocolViolation(nil, 4, "payload changed"), want: false},
		{name: "plain", err: errors.New("plain"), want: false},
		{name: "nil", err: nil, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsConfiguration(tt.err); got != tt.want {
				t.Errorf("IsConfiguration() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsKind(t *testing.T) {
	err := fmt.Errorf("tick: %w", CombinationalLoop(9, 12))
	if !IsKind(err, KindCombinationalLoop) {
		t.Error("expected combinational loop kind through wrapping")
	}
	if IsKind(err, KindTimeout) {
		t.Error("unexpected timeout kind")
	}
}

func TestWidthRatioDetail(t *testing.T) {
	err := WidthRatio([]string{"converter"}, 8, 12)
	if !strings.Contains(err.Error(), "width 12 is not an integer multiple of width 8") {
		t.Errorf("unexpected message: %s", err)
	}
}
