package obs

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
)

const (
	okSuffix   = ".ok"
	failSuffix = ".fail"
)

// Stats holds the durable ok/fail counters of one ingestion source. The
// counters are persisted as "<name>.ok" and "<name>.fail" in dir so an
// external notifier can read them after the process exits.
type Stats struct {
	dir  string
	name string
	now  func() time.Time

	// persistEach writes the files after every increment.
	persistEach bool

	ok        atomic.Int64
	fail      atomic.Int64
	lastTouch atomic.Int64

	persistMu sync.Mutex
}

// StatsOption customizes Stats.
type StatsOption func(*Stats)

// WithClock replaces time.Now, used by tests.
func WithClock(now func() time.Time) StatsOption {
	return func(s *Stats) {
		if now != nil {
			s.now = now
		}
	}
}

// WithPersistEach writes the counter files after every increment.
func WithPersistEach() StatsOption {
	return func(s *Stats) {
		s.persistEach = true
	}
}

// NewStats creates counters for the named source. The activity clock starts
// at creation time.
func NewStats(dir, name string, opts ...StatsOption) *Stats {
	s := &Stats{dir: dir, name: name, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	s.Touch()
	return s
}

func (s *Stats) Name() string {
	return s.name
}

// IncOK counts a success and marks activity.
func (s *Stats) IncOK() {
	s.ok.Add(1)
	s.Touch()
	s.maybePersist()
}

// IncFail counts a failure and marks activity.
func (s *Stats) IncFail() {
	s.fail.Add(1)
	s.Touch()
	s.maybePersist()
}

// Set overwrites both counters, used by batch sources that count locally.
func (s *Stats) Set(ok, fail int64) {
	s.ok.Store(ok)
	s.fail.Store(fail)
	s.Touch()
}

// Touch marks activity without counting anything, e.g. a receive attempt.
func (s *Stats) Touch() {
	s.lastTouch.Store(s.now().UnixNano())
}

func (s *Stats) OK() int64 {
	return s.ok.Load()
}

func (s *Stats) Fail() int64 {
	return s.fail.Load()
}

// Total is ok + fail.
func (s *Stats) Total() int64 {
	return s.ok.Load() + s.fail.Load()
}

// LastTouch is the unix-nano timestamp of the most recent activity.
func (s *Stats) LastTouch() int64 {
	return s.lastTouch.Load()
}

// IdleFor is the time elapsed since the last activity.
func (s *Stats) IdleFor() time.Duration {
	return s.now().Sub(time.Unix(0, s.lastTouch.Load()))
}

func (s *Stats) maybePersist() {
	if !s.persistEach {
		return
	}
	if err := s.Persist(); err != nil {
		logs.Warnf("persist %s stats, err: %+v", s.name, err)
	}
}

// Persist writes both counter files atomically.
func (s *Stats) Persist() error {
	if s.dir == "" {
		return nil
	}
	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return errors.Wrap(err, "mkdir stat dir")
	}
	if err := writeCounter(filepath.Join(s.dir, s.name+okSuffix), s.ok.Load()); err != nil {
		return err
	}
	return writeCounter(filepath.Join(s.dir, s.name+failSuffix), s.fail.Load())
}

func writeCounter(path string, v int64) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp*")
	if err != nil {
		return errors.Wrap(err, "create temp counter")
	}
	if _, err := tmp.WriteString(strconv.FormatInt(v, 10) + "\n"); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return errors.Wrap(err, "write counter")
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return errors.Wrap(err, "close counter")
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return errors.Wrap(err, "rename counter")
	}
	return nil
}

// Counts is a persisted ok/fail pair.
type Counts struct {
	OK   int64
	Fail int64
}

// ReadCounts loads "<name>.ok" and "<name>.fail" from dir. A missing or
// unreadable file counts as zero.
func ReadCounts(dir, name string) Counts {
	return Counts{
		OK:   readCounter(filepath.Join(dir, name+okSuffix)),
		Fail: readCounter(filepath.Join(dir, name+failSuffix)),
	}
}

func readCounter(path string) int64 {
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			logs.Warnf("read counter %s, err: %+v (treat as 0)", path, err)
		}
		return 0
	}
	s := strings.TrimSpace(string(data))
	if s == "" {
		return 0
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		logs.Warnf("parse counter %s, err: %+v (treat as 0)", path, err)
		return 0
	}
	return v
}
