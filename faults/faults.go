// Package faults is the single funnel every bridge fault is reported through.
package faults

import (
	"fmt"
	"io"
	"log"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"gopkg.in/natefinch/lumberjack.v2"

	cache "github.com/go-pkgz/expirable-cache/v3"
)

type Kind string

const (
	KindResolution Kind = "resolution"
	KindReentrancy Kind = "reentrancy"
	KindScript     Kind = "script"
	KindTimeout    Kind = "timeout"
	KindStack      Kind = "stack"
	KindCapture    Kind = "capture"
)

const (
	defaultRecent         = 1000
	defaultSuppressWindow = 10 * time.Second
	defaultSuppressKeys   = 10000
)

type Fault struct {
	ID     string
	At     time.Time
	Kind   Kind
	Source string
	// Callback is "source:identifier" when the fault happened in a
	// registered callback.
	Callback string
	Message  string
	Location Location
	Stack    string
	// Repeats counts identical faults suppressed since this one was logged.
	Repeats int
}

func (f Fault) String() string {
	where := f.Source
	if f.Callback != "" {
		where = f.Callback
	}
	return fmt.Sprintf("[%s] %s at %s: %s", f.Kind, where, f.Location, f.Message)
}

// Sink receives faults.
type Sink interface {
	Report(Fault)
}

// Journal persists faults.
type Journal interface {
	Record(Fault) error
}

type Options struct {
	// LogPath is a rotated log file. Empty means stderr.
	LogPath    string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	// Recent is the number of faults kept in memory.
	Recent int
	// SuppressWindow is how long identical faults are only counted.
	SuppressWindow time.Duration
	Journal        Journal
}

type Reporter struct {
	mu       sync.Mutex
	logger   *log.Logger
	closer   io.Closer
	journal  Journal
	recent   []Fault
	next     int
	counts   map[Kind]uint64
	suppress cache.Cache[string, int]
}

func NewReporter(opts Options) *Reporter {
	if opts.Recent <= 0 {
		opts.Recent = defaultRecent
	}
	if opts.SuppressWindow <= 0 {
		opts.SuppressWindow = defaultSuppressWindow
	}
	r := &Reporter{
		journal:  opts.Journal,
		recent:   make([]Fault, opts.Recent),
		counts:   map[Kind]uint64{},
		suppress: cache.NewCache[string, int]().WithMaxKeys(defaultSuppressKeys).WithTTL(opts.SuppressWindow),
	}
	var out io.Writer = os.Stderr
	if opts.LogPath != "" {
		rotated := &lumberjack.Logger{
			Filename:   opts.LogPath,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAgeDays,
			Compress:   true,
		}
		out = rotated
		r.closer = rotated
	}
	r.logger = log.New(out, "", log.LstdFlags)
	return r
}

func (r *Reporter) key(f Fault) string {
	return fmt.Sprintf("%s|%s|%s|%s|%s", f.Kind, f.Source, f.Callback, f.Location, f.Message)
}

// Report records f. Identical faults within the suppression window are
// counted but not logged or journalled again.
func (r *Reporter) Report(f Fault) {
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	if f.At.IsZero() {
		f.At = time.Now()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counts[f.Kind]++
	key := r.key(f)
	if repeats, found := r.suppress.Get(key); found {
		r.suppress.Set(key, repeats+1, 0)
		return
	}
	r.suppress.Set(key, 0, 0)
	r.recent[r.next] = f
	r.next = (r.next + 1) % len(r.recent)
	r.logger.Print(f.String())
	if r.journal != nil {
		if err := r.journal.Record(f); err != nil {
			r.logger.Printf("journalling fault %s: %v", f.ID, err)
		}
	}
}

// Recent returns up to n faults, newest first.
func (r *Reporter) Recent(n int) []Fault {
	r.mu.Lock()
	defer r.mu.Unlock()
	result := []Fault{}
	for i := 0; i < len(r.recent) && len(result) < n; i++ {
		f := r.recent[(r.next-1-i+len(r.recent))%len(r.recent)]
		if f.ID == "" {
			break
		}
		if repeats, found := r.suppress.Peek(r.key(f)); found {
			f.Repeats = repeats
		}
		result = append(result, f)
	}
	return result
}

func (r *Reporter) Counts() map[Kind]uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	result := make(map[Kind]uint64, len(r.counts))
	for k, v := range r.counts {
		result[k] = v
	}
	return result
}

func (r *Reporter) Close() error {
	if r.closer != nil {
		return r.closer.Close()
	}
	return nil
}
