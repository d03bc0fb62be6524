package core

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/encodeous/trustmesh/state"
)

// ViewChange is one modification of the global trust view.
type ViewChange struct {
	Id      state.NodeId
	Prev    float64
	Score   float64
	Initial bool
}

func (c ViewChange) String() string {
	if c.Initial {
		return fmt.Sprintf("Node %d added with initial Trust Score = %s", c.Id, state.FormatScore(c.Score))
	}
	return fmt.Sprintf("Node %d Trust Score updated from %s to %s", c.Id, state.FormatScore(c.Prev), state.FormatScore(c.Score))
}

// ViewSink receives the changes produced by one aggregation tick.
type ViewSink interface {
	Publish(ctx context.Context, at time.Duration, changes []ViewChange) error
}

// Aggregator folds every node's trust table into a single global view. Later tables in a tick
// overwrite earlier ones for the same id.
type Aggregator struct {
	view  map[state.NodeId]float64
	sinks []ViewSink
	log   *slog.Logger
	// Ticks counts aggregation rounds
	Ticks uint64
}

func NewAggregator(log *slog.Logger, sinks ...ViewSink) *Aggregator {
	return &Aggregator{
		view:  make(map[state.NodeId]float64),
		sinks: sinks,
		log:   log,
	}
}

func (a *Aggregator) AddSink(s ViewSink) {
	a.sinks = append(a.sinks, s)
}

// Update reads each table in order and returns the changes it made to the view.
func (a *Aggregator) Update(ctx context.Context, now time.Duration, tables ...TrustTable) []ViewChange {
	a.Ticks++
	changes := make([]ViewChange, 0)
	for _, table := range tables {
		for _, entry := range table.GetTrustScores() {
			prev, ok := a.view[entry.V1]
			if ok && prev == entry.V2 {
				continue
			}
			a.view[entry.V1] = entry.V2
			changes = append(changes, ViewChange{Id: entry.V1, Prev: prev, Score: entry.V2, Initial: !ok})
		}
	}
	for _, sink := range a.sinks {
		if err := sink.Publish(ctx, now, changes); err != nil {
			a.log.Error("failed to publish global trust view", "sink", fmt.Sprintf("%T", sink), "err", err)
		}
	}
	return changes
}

// Score returns the global score of id.
func (a *Aggregator) Score(id state.NodeId) (float64, bool) {
	s, ok := a.view[id]
	return s, ok
}

// View returns the global view ordered by id.
func (a *Aggregator) View() []state.Pair[state.NodeId, float64] {
	out := make([]state.Pair[state.NodeId, float64], 0, len(a.view))
	for id, score := range a.view {
		out = append(out, state.Pair[state.NodeId, float64]{V1: id, V2: score})
	}
	state.SortById(out)
	return out
}

// LogViewSink writes every change to the log.
type LogViewSink struct {
	Log *slog.Logger
}

func (s LogViewSink) Publish(ctx context.Context, at time.Duration, changes []ViewChange) error {
	if len(changes) == 0 {
		return nil
	}
	s.Log.Info("Updating Global Trust Scores", "time", state.FormatSeconds(at.Seconds()), "changes", len(changes))
	for _, c := range changes {
		s.Log.Info(c.String())
	}
	return nil
}
