package log

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/klauspost/compress/zstd"

	"colonysim.ai/internal/sim/world"
)

// DefaultSegmentTicks is how many consecutive ticks share one file.
const DefaultSegmentTicks = 3600

const segmentExt = ".jsonl.zst"

// Stream appends JSON lines to zstd-compressed segment files under dir.
// Files are keyed by simulation tick, not wall-clock time, so a replayed run
// lays out the same files as the run it reproduces. A segment is named after
// the first tick written to it and holds entries up to span ticks later.
type Stream[T any] struct {
	dir    string
	prefix string
	span   uint64
	tickOf func(T) uint64

	mu    sync.Mutex
	start uint64
	f     *os.File
	zw    *zstd.Encoder
	bw    *bufio.Writer
}

func NewStream[T any](dir, prefix string, span uint64, tickOf func(T) uint64) *Stream[T] {
	if span == 0 {
		span = DefaultSegmentTicks
	}
	return &Stream[T]{dir: dir, prefix: prefix, span: span, tickOf: tickOf}
}

// Append writes v to the segment covering its tick. Each entry is flushed
// to the compressor before Append returns.
func (s *Stream[T]) Append(v T) error {
	line, err := json.Marshal(v)
	if err != nil {
		return err
	}
	tick := s.tickOf(v)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil || tick < s.start || tick >= s.start+s.span {
		if err := s.openSegment(tick); err != nil {
			return err
		}
	}
	if _, err := s.bw.Write(append(line, '\n')); err != nil {
		return err
	}
	return s.bw.Flush()
}

func (s *Stream[T]) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeSegment()
}

func (s *Stream[T]) openSegment(tick uint64) error {
	if err := s.closeSegment(); err != nil {
		return err
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(SegmentPath(s.dir, s.prefix, tick), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	zw, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	s.start, s.f, s.zw, s.bw = tick, f, zw, bufio.NewWriterSize(zw, 64*1024)
	return nil
}

func (s *Stream[T]) closeSegment() error {
	if s.f == nil {
		return nil
	}
	err := s.bw.Flush()
	if cerr := s.zw.Close(); err == nil {
		err = cerr
	}
	if cerr := s.f.Close(); err == nil {
		err = cerr
	}
	s.f, s.zw, s.bw = nil, nil, nil
	return err
}

// SegmentPath names the segment that starts at tick. The zero padding keeps
// lexical and tick order the same.
func SegmentPath(dir, prefix string, tick uint64) string {
	return filepath.Join(dir, fmt.Sprintf("%s-%012d%s", prefix, tick, segmentExt))
}

// Segments lists the segment files of prefix in dir in tick order.
func Segments(dir, prefix string) ([]string, error) {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range ents {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, prefix+"-") || !strings.HasSuffix(name, segmentExt) {
			continue
		}
		out = append(out, filepath.Join(dir, name))
	}
	sort.Strings(out)
	return out, nil
}

// ReadSegment decodes every line of one segment file.
func ReadSegment[T any](path string) ([]T, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	zr, err := zstd.NewReader(f)
	if err != nil {
		return nil, err
	}
	defer zr.Close()

	var out []T
	sc := bufio.NewScanner(zr)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for line := 1; sc.Scan(); line++ {
		if len(sc.Bytes()) == 0 {
			continue
		}
		var v T
		if err := json.Unmarshal(sc.Bytes(), &v); err != nil {
			return out, fmt.Errorf("%s line %d: %w", filepath.Base(path), line, err)
		}
		out = append(out, v)
	}
	return out, sc.Err()
}

// ReadStream reads every segment of prefix in dir, oldest first.
func ReadStream[T any](dir, prefix string) ([]T, error) {
	paths, err := Segments(dir, prefix)
	if err != nil {
		return nil, err
	}
	var out []T
	for _, p := range paths {
		recs, err := ReadSegment[T](p)
		out = append(out, recs...)
		if err != nil {
			return out, err
		}
	}
	return out, nil
}

const (
	TickPrefix  = "ticks"
	AuditPrefix = "audit"
)

// TickLogger keeps one entry per tick under <worldDir>/ticks.
type TickLogger struct{ s *Stream[world.TickLogEntry] }

func NewTickLogger(worldDir string) *TickLogger {
	return &TickLogger{s: NewStream(filepath.Join(worldDir, TickPrefix), TickPrefix, DefaultSegmentTicks,
		func(e world.TickLogEntry) uint64 { return e.Tick })}
}

func (l *TickLogger) WriteTick(e world.TickLogEntry) error { return l.s.Append(e) }
func (l *TickLogger) Close() error                         { return l.s.Close() }

// AuditLogger keeps deals, deliveries, crafts, spawns and removals under
// <worldDir>/audit.
type AuditLogger struct{ s *Stream[world.AuditEntry] }

func NewAuditLogger(worldDir string) *AuditLogger {
	return &AuditLogger{s: NewStream(filepath.Join(worldDir, AuditPrefix), AuditPrefix, DefaultSegmentTicks,
		func(e world.AuditEntry) uint64 { return e.Tick })}
}

func (l *AuditLogger) WriteAudit(e world.AuditEntry) error { return l.s.Append(e) }
func (l *AuditLogger) Close() error                        { return l.s.Close() }
