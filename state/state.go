package state

import (
	"fmt"
	"strings"
)

// NodeId identifies a simulated node, an index in [0, N).
type NodeId uint32

// Role selects how a trust-aware routing instance treats transit traffic.
type Role int

const (
	// Mitigating nodes drop traffic towards blacklisted destinations with a low probability.
	Mitigating Role = iota
	// Malicious nodes drop every transit packet with a high probability.
	Malicious
)

func (r Role) String() string {
	switch r {
	case Mitigating:
		return "mitigating"
	case Malicious:
		return "malicious"
	default:
		return fmt.Sprintf("role(%d)", int(r))
	}
}

// Attribution decides which node a forwarding event is charged to.
type Attribution string

const (
	AttributeDestination Attribution = "destination"
	AttributeNextHop     Attribution = "next-hop"
)

type Pair[Ty1, Ty2 any] struct {
	V1 Ty1
	V2 Ty2
}

// TrustState is the per-node trust table and the blacklist derived from it.
// It is owned by a single routing instance and must only be touched from the simulation goroutine.
type TrustState struct {
	Id        NodeId
	Scores    map[NodeId]float64
	Blacklist map[NodeId]struct{}
	// Dropped and Forwarded only ever increase
	Dropped   uint64
	Forwarded uint64
}

func NewTrustState(owner NodeId) *TrustState {
	return &TrustState{
		Id:        owner,
		Scores:    make(map[NodeId]float64),
		Blacklist: make(map[NodeId]struct{}),
	}
}

// GetTrustScore returns the stored score, or InitialTrust for a node that was never observed.
func (t *TrustState) GetTrustScore(id NodeId) float64 {
	if score, ok := t.Scores[id]; ok {
		return score
	}
	return InitialTrust
}

func (t *TrustState) IsBlacklisted(id NodeId) bool {
	_, ok := t.Blacklist[id]
	return ok
}

// GetTrustScores returns a snapshot of the table ordered by node id.
func (t *TrustState) GetTrustScores() []Pair[NodeId, float64] {
	out := make([]Pair[NodeId, float64], 0, len(t.Scores))
	for id, score := range t.Scores {
		out = append(out, Pair[NodeId, float64]{id, score})
	}
	SortById(out)
	return out
}

// GetBlacklistedNodes returns the blacklist ordered by node id.
func (t *TrustState) GetBlacklistedNodes() []NodeId {
	out := make([]NodeId, 0, len(t.Blacklist))
	for id := range t.Blacklist {
		out = append(out, id)
	}
	SortIds(out)
	return out
}

func (t *TrustState) StringScores() string {
	sb := strings.Builder{}
	for i, entry := range t.GetTrustScores() {
		if i != 0 {
			sb.WriteString("\n")
		}
		flag := ""
		if t.IsBlacklisted(entry.V1) {
			flag = " (blacklisted)"
		}
		sb.WriteString(fmt.Sprintf("%d: %s%s", entry.V1, FormatScore(entry.V2), flag))
	}
	return sb.String()
}
