package core

import (
	"fmt"

	"github.com/encodeous/trustmesh/state"
)

type TrustEvent int

// trace events

const (
	TrustPenalized TrustEvent = iota
	TrustRewarded
	TrustForced
)

// info events

const (
	BlacklistAdded TrustEvent = iota + 100
	BlacklistRemoved
)

// warn events

const (
	InvalidParameter TrustEvent = iota + 1000
)

func (e TrustEvent) String() string {
	switch e {
	case TrustPenalized:
		return "TrustPenalized"
	case TrustRewarded:
		return "TrustRewarded"
	case TrustForced:
		return "TrustForced"
	case BlacklistAdded:
		return "BlacklistAdded"
	case BlacklistRemoved:
		return "BlacklistRemoved"
	case InvalidParameter:
		return "InvalidParameter"
	default:
		return fmt.Sprintf("TrustEvent(%d)", int(e))
	}
}

// Trust receives the side effects of trust table updates
type Trust interface {
	TrustChanged(event TrustEvent, id state.NodeId, prev, cur float64)
}

// InitializeTrustScores seeds ids [0, n) with InitialTrust. Existing entries are kept, so repeated calls are no-ops.
func InitializeTrustScores(s *state.TrustState, n uint32) {
	for i := range n {
		id := state.NodeId(i)
		if _, ok := s.Scores[id]; !ok {
			s.Scores[id] = state.InitialTrust
		}
	}
}

// UpdateTrustScore applies the outcome of one forwarding event attributed to id and returns the new score.
func UpdateTrustScore(s *state.TrustState, r Trust, id state.NodeId, dropped bool) float64 {
	old := s.GetTrustScore(id)
	delta, event := state.ForwardReward, TrustRewarded
	if dropped {
		delta, event = -state.DropPenalty, TrustPenalized
	}
	score := state.ClampScore(old + delta)
	s.Scores[id] = score
	r.TrustChanged(event, id, old, score)
	reconcile(s, r, id)
	return score
}

// SetTrustScore overwrites the score of id, then reconciles the blacklist as an update would.
func SetTrustScore(s *state.TrustState, r Trust, id state.NodeId, score float64) {
	old := s.GetTrustScore(id)
	score = state.ClampScore(score)
	s.Scores[id] = score
	r.TrustChanged(TrustForced, id, old, score)
	reconcile(s, r, id)
}

// reconcile moves id across the blacklist boundary. Between the two thresholds membership does not change.
func reconcile(s *state.TrustState, r Trust, id state.NodeId) {
	if id == s.Id {
		return
	}
	score := s.Scores[id]
	listed := s.IsBlacklisted(id)
	if score < state.TrustThreshold && !listed {
		s.Blacklist[id] = struct{}{}
		r.TrustChanged(BlacklistAdded, id, score, score)
	} else if score >= state.RecoveryThreshold && listed {
		delete(s.Blacklist, id)
		r.TrustChanged(BlacklistRemoved, id, score, score)
	}
}
