package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/gobwas/glob"
	"golang.org/x/time/rate"

	"github.com/nerrad567/doorgate/internal/metrics"
)

// Defaults used when options leave them unset.
const (
	defaultWorkers   = 2
	defaultQueueSize = 64
	defaultSettle    = 250 * time.Millisecond
)

// Publisher sends a payload to a bus topic. *mqtt.Client satisfies it.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// Recorder counts publish attempts and the queue backlog.
type Recorder interface {
	ObservePublish(kind, result string, bytes int)
	SetQueueDepth(n int)
}

// Journal keeps a durable record of every publish outcome.
type Journal interface {
	RecordPublish(ctx context.Context, t Task, result string, bytes int, cause error) error
}

// Logger is the logging interface used by the bridge.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

type noopRecorder struct{}

func (noopRecorder) ObservePublish(string, string, int) {}
func (noopRecorder) SetQueueDepth(int)                  {}

// Rule binds a directory and its file patterns to a kind and topic.
type Rule struct {
	Dir      string
	Patterns []string
	Kind     Kind
	Topic    string
}

type compiledRule struct {
	dir      string
	patterns []glob.Glob
	kind     Kind
	topic    string
}

func (r compiledRule) matches(name string) bool {
	name = strings.ToLower(name)
	for _, g := range r.patterns {
		if g.Match(name) {
			return true
		}
	}
	return false
}

// Task is one file waiting to be published.
type Task struct {
	Path  string
	Kind  Kind
	Topic string
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithWorkers sets the number of publishing workers.
func WithWorkers(n int) Option {
	return func(b *Bridge) {
		if n > 0 {
			b.workers = n
		}
	}
}

// WithQueueSize sets the task queue capacity.
func WithQueueSize(n int) Option {
	return func(b *Bridge) {
		if n > 0 {
			b.queueSize = n
		}
	}
}

// WithPublishRate limits publishes to perSecond across all workers.
// Zero or less means unlimited.
func WithPublishRate(perSecond float64) Option {
	return func(b *Bridge) {
		if perSecond > 0 {
			b.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
		} else {
			b.limiter = nil
		}
	}
}

// WithScanOnStart queues files already present when Start runs.
func WithScanOnStart(scan bool) Option {
	return func(b *Bridge) {
		b.scanOnStart = scan
	}
}

// WithSettle sets how long a path must see no further create or write
// events before it is queued. Zero queues on the first event.
func WithSettle(d time.Duration) Option {
	return func(b *Bridge) {
		if d >= 0 {
			b.settle = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l Logger) Option {
	return func(b *Bridge) {
		if l != nil {
			b.logger = l
		}
	}
}

// WithJournal records every outcome in j as well as the Recorder.
func WithJournal(j Journal) Option {
	return func(b *Bridge) {
		b.journal = j
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(b *Bridge) {
		if r != nil {
			b.recorder = r
		}
	}
}

// Bridge watches directories and publishes matching files.
type Bridge struct {
	rules       []compiledRule
	pub         Publisher
	limiter     *rate.Limiter
	workers     int
	queueSize   int
	scanOnStart bool
	settle      time.Duration
	logger      Logger
	recorder    Recorder
	journal     Journal

	queue chan Task

	mu      sync.Mutex
	pending map[string]struct{}
	timers  map[string]*time.Timer
	started bool
	stopped bool

	watcher  *fsnotify.Watcher
	cancel   context.CancelFunc
	loopDone chan struct{}
	wg       sync.WaitGroup
}

// New compiles rules and returns a Bridge that is not yet watching.
func New(rules []Rule, pub Publisher, opts ...Option) (*Bridge, error) {
	if pub == nil {
		return nil, fmt.Errorf("%w: publisher is nil", ErrInvalidRule)
	}

	b := &Bridge{
		pub:       pub,
		workers:   defaultWorkers,
		queueSize: defaultQueueSize,
		settle:    defaultSettle,
		logger:    noopLogger{},
		recorder:  noopRecorder{},
		pending:   make(map[string]struct{}),
		timers:    make(map[string]*time.Timer),
	}
	for _, opt := range opts {
		opt(b)
	}

	for i, r := range rules {
		cr, err := compileRule(r)
		if err != nil {
			return nil, fmt.Errorf("rule %d: %w", i, err)
		}
		b.rules = append(b.rules, cr)
	}
	if len(b.rules) == 0 {
		return nil, fmt.Errorf("%w: no rules", ErrInvalidRule)
	}

	b.queue = make(chan Task, b.queueSize)
	return b, nil
}

func compileRule(r Rule) (compiledRule, error) {
	if r.Dir == "" {
		return compiledRule{}, fmt.Errorf("%w: empty directory", ErrInvalidRule)
	}
	if r.Topic == "" {
		return compiledRule{}, fmt.Errorf("%w: empty topic for %s", ErrInvalidRule, r.Kind)
	}
	if len(r.Patterns) == 0 {
		return compiledRule{}, fmt.Errorf("%w: no patterns for %s", ErrInvalidRule, r.Dir)
	}
	if _, err := PolicyFor(r.Kind); err != nil {
		return compiledRule{}, err
	}

	cr := compiledRule{
		dir:   filepath.Clean(r.Dir),
		kind:  r.Kind,
		topic: r.Topic,
	}
	for _, p := range r.Patterns {
		g, err := glob.Compile(strings.ToLower(p))
		if err != nil {
			return compiledRule{}, fmt.Errorf("%w: pattern %q: %w", ErrInvalidRule, p, err)
		}
		cr.patterns = append(cr.patterns, g)
	}
	return cr, nil
}

// Start begins watching every rule directory and launches the workers.
// Directories must exist. The bridge runs until Stop or until ctx is done.
func (b *Bridge) Start(ctx context.Context) error {
	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		return ErrStopped
	}
	if b.started {
		b.mu.Unlock()
		return nil
	}

	// mu stays held until every field Stop reads is assigned.
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		b.mu.Unlock()
		return fmt.Errorf("creating watcher: %w", err)
	}

	seen := make(map[string]bool)
	for _, r := range b.rules {
		if seen[r.dir] {
			continue
		}
		seen[r.dir] = true
		if err := watcher.Add(r.dir); err != nil {
			watcher.Close() //nolint:errcheck // Already failing
			b.mu.Unlock()
			return fmt.Errorf("watching %s: %w", r.dir, err)
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	b.watcher = watcher
	b.cancel = cancel
	b.loopDone = make(chan struct{})

	for i := 0; i < b.workers; i++ {
		b.wg.Add(1)
		go b.worker(runCtx)
	}
	go b.loop(runCtx)

	b.started = true
	b.mu.Unlock()

	if b.scanOnStart {
		b.scan()
	}

	b.logger.Info("file watcher started",
		"directories", len(seen),
		"workers", b.workers,
		"queue_size", b.queueSize,
		"settle", b.settle,
	)
	return nil
}

// Stop stops watching, lets the workers finish the queued tasks and
// returns once they have exited. Stop is safe to call more than once.
func (b *Bridge) Stop() error {
	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		return nil
	}
	b.stopped = true
	started := b.started
	for path, tm := range b.timers {
		tm.Stop()
		delete(b.timers, path)
	}
	b.mu.Unlock()

	if !started {
		return nil
	}

	err := b.watcher.Close()
	<-b.loopDone

	// No Enqueue can run past this point: stopped is set under mu.
	b.mu.Lock()
	close(b.queue)
	b.mu.Unlock()

	b.wg.Wait()
	b.cancel()

	b.logger.Info("file watcher stopped")
	return err
}

func (b *Bridge) loop(ctx context.Context) {
	defer close(b.loopDone)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-b.watcher.Events:
			if !ok {
				return
			}
			b.handleEvent(ev)
		case err, ok := <-b.watcher.Errors:
			if !ok {
				return
			}
			b.logger.Warn("file watcher error", "error", err)
		}
	}
}

func (b *Bridge) handleEvent(ev fsnotify.Event) {
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
		return
	}
	if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
		return
	}
	task, ok := b.match(ev.Name)
	if !ok {
		return
	}
	b.schedule(task)
}

// schedule queues t once its path has gone quiet for the settle period.
// Every further event on the path restarts the wait, so a file still
// being written is not read half way.
func (b *Bridge) schedule(t Task) {
	if b.settle <= 0 {
		b.Enqueue(t)
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stopped {
		return
	}
	if tm, ok := b.timers[t.Path]; ok {
		tm.Reset(b.settle)
		return
	}

	var tm *time.Timer
	tm = time.AfterFunc(b.settle, func() {
		b.mu.Lock()
		if b.timers[t.Path] != tm {
			b.mu.Unlock()
			return
		}
		delete(b.timers, t.Path)
		b.mu.Unlock()
		b.Enqueue(t)
	})
	b.timers[t.Path] = tm
}

// match returns the task for the first rule covering path.
func (b *Bridge) match(path string) (Task, bool) {
	dir := filepath.Clean(filepath.Dir(path))
	name := filepath.Base(path)
	for _, r := range b.rules {
		if r.dir == dir && r.matches(name) {
			return Task{Path: path, Kind: r.kind, Topic: r.topic}, true
		}
	}
	return Task{}, false
}

func (b *Bridge) scan() {
	for _, r := range b.rules {
		entries, err := os.ReadDir(r.dir)
		if err != nil {
			b.logger.Warn("startup scan failed", "dir", r.dir, "error", err)
			continue
		}
		for _, e := range entries {
			if e.IsDir() || !r.matches(e.Name()) {
				continue
			}
			b.Enqueue(Task{Path: filepath.Join(r.dir, e.Name()), Kind: r.kind, Topic: r.topic})
		}
	}
}

// Enqueue queues t without blocking. It reports false when the task was
// dropped because the queue is full or the bridge is stopped. A path
// already waiting in the queue is accepted without queueing it twice.
func (b *Bridge) Enqueue(t Task) bool {
	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		return false
	}
	if _, dup := b.pending[t.Path]; dup {
		b.mu.Unlock()
		return true
	}

	select {
	case b.queue <- t:
		b.pending[t.Path] = struct{}{}
		b.recorder.SetQueueDepth(len(b.queue))
		b.mu.Unlock()
		return true
	default:
		b.mu.Unlock()
	}

	b.observe(context.Background(), t, metrics.PublishDropped, 0, ErrQueueFull)
	b.logger.Warn("publish queue full, task dropped",
		"path", t.Path,
		"kind", string(t.Kind),
	)
	return false
}

func (b *Bridge) worker(ctx context.Context) {
	defer b.wg.Done()
	for t := range b.queue {
		b.mu.Lock()
		delete(b.pending, t.Path)
		b.recorder.SetQueueDepth(len(b.queue))
		b.mu.Unlock()

		if err := b.process(ctx, t); err != nil {
			b.logger.Warn("file publish failed",
				"path", t.Path,
				"kind", string(t.Kind),
				"error", err,
			)
		}
	}
}

// process publishes one file and applies its post-action.
func (b *Bridge) process(ctx context.Context, t Task) error {
	policy, err := PolicyFor(t.Kind)
	if err != nil {
		return &TaskError{Path: t.Path, Kind: t.Kind, Err: err}
	}

	data, err := os.ReadFile(t.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			b.observe(ctx, t, metrics.PublishMissingFile, 0, ErrMissingFile)
			return &TaskError{Path: t.Path, Kind: t.Kind, Err: ErrMissingFile}
		}
		err = fmt.Errorf("%w: %w", ErrReadFile, err)
		b.observe(ctx, t, metrics.PublishFailed, 0, err)
		return &TaskError{Path: t.Path, Kind: t.Kind, Err: err}
	}

	// An empty file is usually one a writer has created but not yet filled.
	// It stays in place and the next write event queues it again.
	if len(data) == 0 {
		b.observe(ctx, t, metrics.PublishEmpty, 0, ErrEmptyFile)
		b.logger.Debug("empty file skipped", "path", t.Path, "kind", string(t.Kind))
		return nil
	}

	if b.limiter != nil {
		if err := b.limiter.Wait(ctx); err != nil {
			err = fmt.Errorf("%w: %w", ErrPublish, err)
			b.observe(ctx, t, metrics.PublishFailed, 0, err)
			return &TaskError{Path: t.Path, Kind: t.Kind, Err: err}
		}
	}

	if err := b.pub.Publish(t.Topic, data, policy.QoS, policy.Retain); err != nil {
		err = fmt.Errorf("%w: %w", ErrPublish, err)
		b.observe(ctx, t, metrics.PublishFailed, 0, err)
		return &TaskError{Path: t.Path, Kind: t.Kind, Err: err}
	}
	b.observe(ctx, t, metrics.PublishOK, len(data), nil)

	b.logger.Info("file published",
		"path", t.Path,
		"kind", string(t.Kind),
		"topic", t.Topic,
		"bytes", len(data),
		"qos", policy.QoS,
		"retained", policy.Retain,
	)

	if policy.After == Delete {
		if err := os.Remove(t.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			b.logger.Warn("removing published file failed", "path", t.Path, "error", err)
		}
	}
	return nil
}

// observe reports one outcome to the recorder and the journal.
// The journal write is detached from ctx so outcomes during shutdown
// are still kept.
func (b *Bridge) observe(ctx context.Context, t Task, result string, bytes int, cause error) {
	b.recorder.ObservePublish(string(t.Kind), result, bytes)
	if b.journal == nil {
		return
	}
	if err := b.journal.RecordPublish(context.WithoutCancel(ctx), t, result, bytes, cause); err != nil {
		b.logger.Warn("journalling publish failed", "path", t.Path, "error", err)
	}
}
