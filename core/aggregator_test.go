package core

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/encodeous/trustmesh/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	records []string
	err     error
}

func (s *recordingSink) Publish(ctx context.Context, at time.Duration, changes []ViewChange) error {
	for _, c := range changes {
		s.records = append(s.records, c.String())
	}
	return s.err
}

func TestAggregator_DeltaLog(t *testing.T) {
	sink := &recordingSink{}
	agg := NewAggregator(discardLogger(), sink)
	ctx := context.Background()

	a := NewTrustRouting(1, TrustRoutingCfg{}, discardLogger())
	b := NewTrustRouting(2, TrustRoutingCfg{}, discardLogger())
	a.SetTrustScore(7, 1)
	b.SetTrustScore(8, 1)

	agg.Update(ctx, 5*time.Second, a, b)
	assert.Equal(t, []string{
		"Node 7 added with initial Trust Score = 1",
		"Node 8 added with initial Trust Score = 1",
	}, sink.records)

	// unchanged tables produce nothing
	assert.Empty(t, agg.Update(ctx, 10*time.Second, a, b))

	a.UpdateTrustScore(7, true)
	b.UpdateTrustScore(8, true)
	b.UpdateTrustScore(8, true)
	changes := agg.Update(ctx, 15*time.Second, a, b)
	assert.Equal(t, []ViewChange{{Id: 7, Prev: 1, Score: 0.8}, {Id: 8, Prev: 1, Score: 0.6}}, changes)
	assert.Equal(t, []string{
		"Node 7 added with initial Trust Score = 1",
		"Node 8 added with initial Trust Score = 1",
		"Node 7 Trust Score updated from 1 to 0.8",
		"Node 8 Trust Score updated from 1 to 0.6",
	}, sink.records)
	assert.Equal(t, uint64(3), agg.Ticks)
	assert.Equal(t, []state.Pair[state.NodeId, float64]{{V1: 7, V2: 0.8}, {V1: 8, V2: 0.6}}, agg.View())
}

func TestAggregator_LastWriterWins(t *testing.T) {
	agg := NewAggregator(discardLogger())
	a := NewTrustRouting(1, TrustRoutingCfg{}, discardLogger())
	b := NewTrustRouting(2, TrustRoutingCfg{}, discardLogger())
	a.SetTrustScore(9, 0.4)
	b.SetTrustScore(9, 1)

	changes := agg.Update(context.Background(), time.Second, a, b)
	assert.Equal(t, []ViewChange{{Id: 9, Score: 0.4, Initial: true}, {Id: 9, Prev: 0.4, Score: 1}}, changes)
	score, ok := agg.Score(9)
	assert.True(t, ok)
	assert.Equal(t, 1.0, score)
	_, ok = agg.Score(3)
	assert.False(t, ok)
}

func TestAggregator_SinkErrorIsNotFatal(t *testing.T) {
	agg := NewAggregator(discardLogger(), &recordingSink{err: errors.New("down")}, LogViewSink{Log: discardLogger()})
	a := NewTrustRouting(1, TrustRoutingCfg{}, discardLogger())
	a.InitializeTrustScores(2)
	assert.Len(t, agg.Update(context.Background(), time.Second, a), 2)
}

func TestRedisViewSink(t *testing.T) {
	mr := miniredis.RunT(t)
	sink := NewRedisViewSink(mr.Addr(), state.RedisViewKey)
	t.Cleanup(func() { _ = sink.Close() })
	agg := NewAggregator(discardLogger(), sink)

	a := NewTrustRouting(1, TrustRoutingCfg{}, discardLogger())
	a.InitializeTrustScores(3)
	for range 4 {
		a.UpdateTrustScore(2, true)
	}
	agg.Update(context.Background(), 5*time.Second, a)

	assert.Equal(t, "0.2", mr.HGet(state.RedisViewKey, "2"))
	assert.Equal(t, "1", mr.HGet(state.RedisViewKey, "0"))
	at, err := mr.Get(state.RedisViewKey + ":time")
	require.NoError(t, err)
	assert.Equal(t, "5", at)

	view, err := sink.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"0": "1", "1": "1", "2": "0.2"}, view)
}

func TestRedisViewSink_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()
	sink := NewRedisViewSink(addr, state.RedisViewKey)
	t.Cleanup(func() { _ = sink.Close() })
	err := sink.Publish(context.Background(), time.Second, []ViewChange{{Id: 1, Score: 1, Initial: true}})
	assert.Error(t, err)
}
