package sim

import (
	"log/slog"
	"math"
	"reflect"
	"runtime"
	"time"

	"github.com/encodeous/trustmesh/perf"
	"github.com/encodeous/trustmesh/state"
	"github.com/iti/evt/evtm"
	"github.com/iti/evt/vrtime"
)

// runForever bounds a run without a stop time. It stays well inside the int64 tick range of the
// event manager.
const runForever = 1e8

// Simulator is a single threaded discrete event scheduler. Events run to completion in
// (time, insertion order), and nothing scheduled after the stop time is executed.
// A Simulator must only be used from one goroutine.
type Simulator struct {
	evtMgr  *evtm.EventManager
	log     *slog.Logger
	seq     int64
	stopAt  time.Duration
	stopped bool
	running bool
	// Dispatched counts executed events
	Dispatched uint64
}

type event struct {
	at  time.Duration
	fun func()
}

func New(log *slog.Logger) *Simulator {
	return &Simulator{
		evtMgr: evtm.New(),
		log:    log,
		stopAt: time.Duration(math.MaxInt64),
	}
}

func SecondsToDuration(secs float64) time.Duration {
	return time.Duration(math.Round(secs * float64(time.Second)))
}

// Now returns the current simulation time.
func (s *Simulator) Now() time.Duration {
	return SecondsToDuration(s.evtMgr.CurrentSeconds())
}

// Schedule runs fun after delay has elapsed in simulation time.
func (s *Simulator) Schedule(delay time.Duration, fun func()) {
	if delay < 0 {
		delay = 0
	}
	s.seq++
	// the priority breaks ties between events at the same instant in insertion order
	s.evtMgr.Schedule(s, event{at: s.Now() + delay, fun: fun}, dispatch, vrtime.SecondsToTimePri(delay.Seconds(), s.seq))
}

// ScheduleAt runs fun at an absolute simulation time. Times in the past run immediately.
func (s *Simulator) ScheduleAt(at time.Duration, fun func()) {
	s.Schedule(at-s.Now(), fun)
}

// ScheduleRepeating runs fun first at start and then every interval until the simulation stops.
func (s *Simulator) ScheduleRepeating(start, interval time.Duration, fun func()) {
	var tick func()
	tick = func() {
		fun()
		s.Schedule(interval, tick)
	}
	s.ScheduleAt(start, tick)
}

// Stop ends the run at the given simulation time. Events scheduled later are discarded.
func (s *Simulator) Stop(at time.Duration) {
	s.stopAt = at
}

// Run executes events until the queue drains or the stop time is reached.
func (s *Simulator) Run() {
	s.running = true
	s.log.Debug("simulation started", "stop", s.stopAt)
	limit := float64(runForever)
	if s.stopAt != time.Duration(math.MaxInt64) {
		limit = s.stopAt.Seconds()
	}
	s.evtMgr.Run(limit)
	s.running = false
	s.stopped = true
	s.log.Debug("simulation finished", "now", s.Now(), "events", s.Dispatched)
}

func (s *Simulator) Stopped() bool {
	return s.stopped
}

func dispatch(evtMgr *evtm.EventManager, context any, data any) any {
	s := context.(*Simulator)
	ev := data.(event)
	if s.stopped || ev.at > s.stopAt {
		return nil
	}
	start := time.Now()
	ev.fun()
	s.Dispatched++
	elapsed := time.Since(start)
	perf.DispatchLatency.Add(float64(elapsed.Microseconds()))
	if elapsed > state.SlowDispatchThreshold {
		s.log.Warn("dispatch took a long time!", "fun", runtime.FuncForPC(reflect.ValueOf(ev.fun).Pointer()).Name(), "elapsed", elapsed, "at", ev.at)
	}
	return nil
}
