package core

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"slices"
	"strconv"
	"time"

	"github.com/encodeous/trustmesh/state"
)

// TrustTable is a read only view of one node's trust state.
type TrustTable interface {
	Id() state.NodeId
	GetTrustScores() []state.Pair[state.NodeId, float64]
	GetBlacklistedNodes() []state.NodeId
}

// TrustLogger appends trust tables to a csv file with the header Time,NodeID,TrustScore.
type TrustLogger struct {
	path        string
	wroteHeader bool
	log         *slog.Logger
	// Rows counts data rows written
	Rows uint64
}

func NewTrustLogger(path string, log *slog.Logger) *TrustLogger {
	return &TrustLogger{path: path, log: log}
}

func (l *TrustLogger) Path() string {
	return l.path
}

// LogTrustScores appends one row per table entry and one BlacklistedNode row per blacklist member.
// Failing to open the sink skips this cycle.
func (l *TrustLogger) LogTrustScores(now time.Duration, tables ...TrustTable) {
	if err := l.write(now, tables); err != nil {
		l.log.Error("failed to write trust log", "path", l.path, "err", err)
	}
}

func (l *TrustLogger) write(now time.Duration, tables []TrustTable) error {
	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	if !l.wroteHeader {
		// a file that already holds rows from an earlier run keeps its header
		if info, err := f.Stat(); err == nil && info.Size() > 0 {
			l.wroteHeader = true
		}
	}
	bw := bufio.NewWriter(f)
	w := csv.NewWriter(bw)
	if !l.wroteHeader {
		if err := w.Write([]string{"Time", "NodeID", "TrustScore"}); err != nil {
			return err
		}
		l.wroteHeader = true
	}
	t := state.FormatSeconds(now.Seconds())
	for _, table := range tables {
		for _, entry := range table.GetTrustScores() {
			if err := w.Write([]string{t, fmt.Sprint(entry.V1), state.FormatScore(entry.V2)}); err != nil {
				return err
			}
			l.Rows++
		}
		for _, id := range table.GetBlacklistedNodes() {
			if err := w.Write([]string{t, "BlacklistedNode", fmt.Sprint(id)}); err != nil {
				return err
			}
			l.Rows++
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	return bw.Flush()
}

// TrustLogSummary condenses a trust log: the last logged score of every id, and the blacklist rows
// of every snapshot.
type TrustLogSummary struct {
	Times       []time.Duration
	Last        map[state.NodeId]float64
	Blacklisted map[time.Duration][]state.NodeId
	Rows        uint64
}

// ReadTrustLog parses a log written by TrustLogger. Repeated headers from appended runs are skipped.
func ReadTrustLog(r io.Reader) (*TrustLogSummary, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = 3
	sum := &TrustLogSummary{
		Last:        make(map[state.NodeId]float64),
		Blacklisted: make(map[time.Duration][]state.NodeId),
	}
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if rec[0] == "Time" {
			continue
		}
		secs, err := strconv.ParseFloat(rec[0], 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: bad time %q: %w", sum.Rows+1, rec[0], err)
		}
		at := time.Duration(math.Round(secs * float64(time.Second)))
		if len(sum.Times) == 0 || sum.Times[len(sum.Times)-1] != at {
			sum.Times = append(sum.Times, at)
		}
		if rec[1] == "BlacklistedNode" {
			id, err := strconv.ParseUint(rec[2], 10, 32)
			if err != nil {
				return nil, fmt.Errorf("bad blacklisted id %q: %w", rec[2], err)
			}
			if !slices.Contains(sum.Blacklisted[at], state.NodeId(id)) {
				sum.Blacklisted[at] = append(sum.Blacklisted[at], state.NodeId(id))
				state.SortIds(sum.Blacklisted[at])
			}
		} else {
			id, err := strconv.ParseUint(rec[1], 10, 32)
			if err != nil {
				return nil, fmt.Errorf("bad node id %q: %w", rec[1], err)
			}
			score, err := strconv.ParseFloat(rec[2], 64)
			if err != nil {
				return nil, fmt.Errorf("bad score %q: %w", rec[2], err)
			}
			sum.Last[state.NodeId(id)] = score
		}
		sum.Rows++
	}
	return sum, nil
}
