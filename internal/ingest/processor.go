package ingest

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/nerrad567/doorgate/internal/gateway"
	"github.com/nerrad567/doorgate/internal/logline"
	"github.com/nerrad567/doorgate/internal/metrics"
	"github.com/nerrad567/doorgate/internal/record"
)

// Decoder parses one log line.
type Decoder interface {
	Decode(line string) (logline.Event, error)
}

// Inserter stores one routed record.
type Inserter interface {
	Insert(ctx context.Context, r record.Routed) (gateway.Outcome, error)
}

// EventSink receives every newly inserted record. Duplicates are not sent.
type EventSink interface {
	WriteRecord(r record.Routed)
}

// Recorder counts processed lines and batches.
type Recorder interface {
	ObserveLine(result string)
	ObserveBatch()
}

// Logger is the logging interface used by the processor.
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

func (noopRecorder) ObserveLine(string) {}
func (noopRecorder) ObserveBatch()      {}

// Option configures a Processor.
type Option func(*Processor)

// WithLogger sets the logger.
func WithLogger(l Logger) Option {
	return func(p *Processor) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithSink mirrors newly inserted records into s.
func WithSink(s EventSink) Option {
	return func(p *Processor) {
		p.sink = s
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(p *Processor) {
		if r != nil {
			p.recorder = r
		}
	}
}

// Processor drives payloads from the log topic through decode, route and
// insert. It is safe for concurrent use if its collaborators are.
type Processor struct {
	logTopic string
	decoder  Decoder
	store    Inserter
	sink     EventSink
	recorder Recorder
	logger   Logger
}

// New creates a Processor for payloads arriving on logTopic.
func New(logTopic string, decoder Decoder, store Inserter, opts ...Option) *Processor {
	p := &Processor{
		logTopic: logTopic,
		decoder:  decoder,
		store:    store,
		recorder: noopRecorder{},
		logger:   noopLogger{},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// LineError is a classified failure of one line in a batch.
type LineError struct {
	Index int
	Line  string
	Err   error
}

// BatchResult summarises one Process call.
type BatchResult struct {
	BatchID    string
	Topic      string
	Ignored    bool
	Lines      int
	Inserted   int
	Duplicates int
	Failures   []LineError
}

// ParseErrors counts failures caused by malformed lines.
func (r BatchResult) ParseErrors() int {
	return r.count(logline.ErrMalformedLine)
}

// StoreErrors counts failures caused by the store.
func (r BatchResult) StoreErrors() int {
	return len(r.Failures) - r.ParseErrors()
}

func (r BatchResult) count(target error) int {
	n := 0
	for _, f := range r.Failures {
		if errors.Is(f.Err, target) {
			n++
		}
	}
	return n
}

// Process handles one payload. Payloads from any topic other than the log
// topic are logged and otherwise ignored.
func (p *Processor) Process(ctx context.Context, payload []byte, topic string) BatchResult {
	res := BatchResult{BatchID: uuid.NewString(), Topic: topic}
	log := p.logger

	if topic != p.logTopic {
		res.Ignored = true
		log.Info("message on non-log topic ignored",
			"batch_id", res.BatchID, "topic", topic, "bytes", len(payload))
		return res
	}

	p.recorder.ObserveBatch()
	lines := SplitLines(payload)
	res.Lines = len(lines)

	for i, line := range lines {
		p.processLine(ctx, &res, i, line)
	}

	log.Info("log batch processed",
		"batch_id", res.BatchID,
		"lines", res.Lines,
		"inserted", res.Inserted,
		"duplicates", res.Duplicates,
		"parse_errors", res.ParseErrors(),
		"store_errors", res.StoreErrors(),
	)
	return res
}

func (p *Processor) processLine(ctx context.Context, res *BatchResult, i int, line string) {
	fail := func(err error, result string) {
		res.Failures = append(res.Failures, LineError{Index: i, Line: line, Err: err})
		p.recorder.ObserveLine(result)
	}

	if !utf8.ValidString(line) {
		err := &logline.ParseError{Line: line, Field: "line", Reason: "invalid UTF-8"}
		p.logger.Warn("skipping malformed log line", "batch_id", res.BatchID, "index", i, "error", err)
		fail(err, metrics.LineParseError)
		return
	}

	ev, err := p.decoder.Decode(line)
	if err != nil {
		p.logger.Warn("skipping malformed log line",
			"batch_id", res.BatchID, "index", i, "line", line, "error", err)
		fail(err, metrics.LineParseError)
		return
	}

	routed := record.Route(ev)
	outcome, err := p.store.Insert(ctx, routed)
	if err != nil {
		p.logger.Error("failed to store log line",
			"batch_id", res.BatchID, "index", i, "schema", routed.Schema, "error", err)
		fail(err, metrics.LineStoreError)
		return
	}

	switch outcome {
	case gateway.DuplicateSkipped:
		res.Duplicates++
		p.recorder.ObserveLine(metrics.LineDuplicate)
		p.logger.Debug("duplicate log line skipped",
			"batch_id", res.BatchID, "index", i, "schema", routed.Schema)
	default:
		res.Inserted++
		p.recorder.ObserveLine(metrics.LineInserted)
		if p.sink != nil {
			p.sink.WriteRecord(routed)
		}
	}
}

// HandleMessage adapts Process to the bus handler signature. Line failures
// are already logged and counted, so it always returns nil.
func (p *Processor) HandleMessage(topic string, payload []byte) error {
	p.Process(context.Background(), payload, topic)
	return nil
}

// SplitLines splits a payload on '\n' and NUL, trims surrounding
// whitespace and drops empty lines. Both separators may appear in one payload.
func SplitLines(payload []byte) []string {
	parts := strings.FieldsFunc(string(payload), func(r rune) bool {
		return r == '\n' || r == 0
	})

	lines := make([]string, 0, len(parts))
	for _, part := range parts {
		if s := strings.TrimSpace(part); s != "" {
			lines = append(lines, s)
		}
	}
	return lines
}
