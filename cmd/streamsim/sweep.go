package main

import (
	"context"
	"fmt"
	"runtime"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wippyai/gateware/errors"
	"github.com/wippyai/gateware/sim"
)

// widthPairs lists every pair of widths up to limit where one divides the
// other.
func widthPairs(limit int) [][2]int {
	var pairs [][2]int
	for from := 1; from <= limit; from++ {
		for to := 1; to <= limit; to++ {
			if from%to == 0 || to%from == 0 {
				pairs = append(pairs, [2]int{from, to})
			}
		}
	}
	return pairs
}

// sweep runs a round trip scenario for every width pair up to limit, in
// both chunk orders, and fails if any of them loses or reorders data.
func sweep(ctx context.Context, limit, beats int, metrics *sim.Metrics) ([]Result, error) {
	if limit < 1 || limit > 64 {
		return nil, errors.InvalidInput(errors.PhaseConfig, fmt.Sprintf("sweep limit %d out of range 1 to 64", limit))
	}
	var scenarios []*Scenario
	for _, p := range widthPairs(limit) {
		for _, reverse := range []bool{false, true} {
			ratio := max(p[0], p[1]) / min(p[0], p[1])
			s := &Scenario{
				Name:      fmt.Sprintf("%d->%d reverse=%v", p[0], p[1], reverse),
				From:      p[0],
				To:        p[1],
				Beats:     beats * ratio,
				Reverse:   reverse,
				RoundTrip: true,
			}
			if err := s.normalize(); err != nil {
				return nil, err
			}
			scenarios = append(scenarios, s)
		}
	}

	results := make([]Result, len(scenarios))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, s := range scenarios {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			r, err := s.Run(ctx, metrics)
			if err != nil {
				return errors.Wrap(errors.PhaseSimulate, errors.KindInvalidData, err, s.Name)
			}
			if !r.OK {
				log.Warn("round trip mismatch", zap.String("scenario", s.Name))
			}
			results[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
