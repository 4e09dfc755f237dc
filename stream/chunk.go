package stream

import (
	"go.uber.org/zap"

	"github.com/wippyai/gateware/errors"
	"github.com/wippyai/gateware/internal/bitvec"
	"github.com/wippyai/gateware/layout"
)

// move copies one slice of a wide field to or from one chunk.
type move struct {
	wide  layout.Ref
	chunk layout.Ref
}

// chunkMoves maps every top-level field of wide onto n chunks of narrow.
// Chunk c takes slice n-1-c (most significant first), or slice c when reversed.
func chunkMoves(op string, wide, narrow *layout.Layout, n int, reverse bool) ([]move, error) {
	if n < 1 {
		return nil, errors.New(errors.PhaseElaborate, errors.KindInvalidInput).
			Path(op).
			Detail("chunk count %d must be at least 1", n).
			Build()
	}
	if wide.Len() != narrow.Len() {
		return nil, errors.LayoutMismatch([]string{op},
			"layouts "+wide.String()+" and "+narrow.String()+" have different fields")
	}

	moves := make([]move, 0, n*wide.Len())
	for i := range wide.Len() {
		f := wide.Field(i)
		j, ok := narrow.Lookup(f.Name)
		if !ok {
			return nil, errors.LayoutMismatch([]string{op, f.Name},
				"field missing from "+narrow.String())
		}
		wr := wide.TopRef(i)
		if wr.Width%n != 0 {
			return nil, errors.New(errors.PhaseElaborate, errors.KindWidthRatio).
				Path(op, f.Name).
				Detail("width %d does not split into %d chunks", wr.Width, n).
				Build()
		}
		w := wr.Width / n
		nr := narrow.TopRef(j)
		if nr.Width != w {
			return nil, errors.New(errors.PhaseElaborate, errors.KindLayoutMismatch).
				Path(op, f.Name).
				Detail("chunk width %d, want %d (%d/%d)", nr.Width, w, wr.Width, n).
				Build()
		}
		for c := range n {
			s := n - 1 - c
			if reverse {
				s = c
			}
			moves = append(moves, move{
				wide:  layout.Ref{Offset: wr.Offset + s*w, Width: w},
				chunk: layout.Ref{Offset: c*narrow.Width() + nr.Offset, Width: w},
			})
		}
	}
	return moves, nil
}

func split(in bitvec.Vector, moves []move, width int) bitvec.Vector {
	out := bitvec.New(width)
	for _, m := range moves {
		out = m.chunk.Set(out, m.wide.Get(in))
	}
	return out
}

func merge(in bitvec.Vector, moves []move, width int) bitvec.Vector {
	out := bitvec.New(width)
	for _, m := range moves {
		out = m.wide.Set(out, m.chunk.Get(in))
	}
	return out
}

// combinational passes the handshake straight through while transforming
// the payload.
func combinational(sink, source *Endpoint, fn func(bitvec.Vector) bitvec.Vector) bool {
	b := sink.Beat()
	b.Payload = fn(b.Payload)
	changed := source.Drive(b)
	if sink.SetReady(source.Ready()) {
		changed = true
	}
	return changed
}

// Chunkerize reinterprets each wide field as n consecutive narrow chunks.
// It holds no state and adds no latency.
type Chunkerize struct {
	Sink   *Endpoint
	Source *Endpoint
	moves  []move
	n      int
}

// NewChunkerize splits every field of from into n chunks shaped like to.
// Each field of from must exist in to with exactly 1/n of its width.
func NewChunkerize(from, to *layout.Layout, n int, reverse bool) (*Chunkerize, error) {
	moves, err := chunkMoves("chunkerize", from, to, n, reverse)
	if err != nil {
		return nil, err
	}
	c := &Chunkerize{
		Sink:   NewEndpoint(from),
		Source: NewEndpoint(layout.Chunked(to.WithPacketized(from.Packetized()), n)),
		moves:  moves,
		n:      n,
	}
	Logger().Debug("chunkerize elaborated",
		zap.Stringer("from", from),
		zap.Stringer("to", to),
		zap.Int("n", n),
		zap.Bool("reverse", reverse))
	return c, nil
}

func (c *Chunkerize) Eval() bool {
	width := c.Source.Description().Width()
	return combinational(c.Sink, c.Source, func(v bitvec.Vector) bitvec.Vector {
		return split(v, c.moves, width)
	})
}

func (c *Chunkerize) Commit()    {}
func (c *Chunkerize) Busy() bool { return false }

// Unchunkerize merges n narrow chunks back into wide fields. It is the exact
// inverse of Chunkerize with the same n and reverse flag.
type Unchunkerize struct {
	Sink   *Endpoint
	Source *Endpoint
	moves  []move
	n      int
}

// NewUnchunkerize merges n chunks shaped like from into the fields of to.
func NewUnchunkerize(from *layout.Layout, n int, to *layout.Layout, reverse bool) (*Unchunkerize, error) {
	moves, err := chunkMoves("unchunkerize", to, from, n, reverse)
	if err != nil {
		return nil, err
	}
	u := &Unchunkerize{
		Sink:   NewEndpoint(layout.Chunked(from, n)),
		Source: NewEndpoint(to.WithPacketized(from.Packetized())),
		moves:  moves,
		n:      n,
	}
	Logger().Debug("unchunkerize elaborated",
		zap.Stringer("from", from),
		zap.Stringer("to", to),
		zap.Int("n", n),
		zap.Bool("reverse", reverse))
	return u, nil
}

func (u *Unchunkerize) Eval() bool {
	width := u.Source.Description().Width()
	return combinational(u.Sink, u.Source, func(v bitvec.Vector) bitvec.Vector {
		return merge(v, u.moves, width)
	})
}

func (u *Unchunkerize) Commit()    {}
func (u *Unchunkerize) Busy() bool { return false }
