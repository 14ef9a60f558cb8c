package ingest

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"sync"
	"testing"

	"github.com/nerrad567/doorgate/internal/gateway"
	"github.com/nerrad567/doorgate/internal/infrastructure/database"
	"github.com/nerrad567/doorgate/internal/logline"
	"github.com/nerrad567/doorgate/internal/metrics"
	"github.com/nerrad567/doorgate/internal/record"
)

const logTopic = "/topic/logs"

// =============================================================================
// Test doubles
// =============================================================================

type mockInserter struct {
	mu       sync.Mutex
	records  []record.Routed
	outcomes []gateway.Outcome
	errs     []error
}

// Insert returns the next scripted outcome/error, defaulting to Inserted.
func (m *mockInserter) Insert(_ context.Context, r record.Routed) (gateway.Outcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	i := len(m.records)
	m.records = append(m.records, r)
	if i < len(m.errs) && m.errs[i] != nil {
		return 0, m.errs[i]
	}
	if i < len(m.outcomes) {
		return m.outcomes[i], nil
	}
	return gateway.Inserted, nil
}

type mockSink struct {
	mu      sync.Mutex
	records []record.Routed
}

func (m *mockSink) WriteRecord(r record.Routed) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, r)
}

type mockRecorder struct {
	mu      sync.Mutex
	lines   map[string]int
	batches int
}

func (m *mockRecorder) ObserveLine(result string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lines == nil {
		m.lines = map[string]int{}
	}
	m.lines[result]++
}

func (m *mockRecorder) ObserveBatch() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batches++
}

type logEntry struct {
	level string
	msg   string
}

type mockLogger struct {
	mu      sync.Mutex
	entries []logEntry
}

func (m *mockLogger) add(level, msg string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, logEntry{level, msg})
}

func (m *mockLogger) Debug(msg string, _ ...any) { m.add("debug", msg) }
func (m *mockLogger) Info(msg string, _ ...any)  { m.add("info", msg) }
func (m *mockLogger) Warn(msg string, _ ...any)  { m.add("warn", msg) }
func (m *mockLogger) Error(msg string, _ ...any) { m.add("error", msg) }

func (m *mockLogger) count(level string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.entries {
		if e.level == level {
			n++
		}
	}
	return n
}

func openGateway(t *testing.T) *gateway.Gateway {
	t.Helper()
	db, err := database.Open(database.Config{
		Path:        filepath.Join(t.TempDir(), "messages.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("database.Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup

	g, err := gateway.New(context.Background(), db, nil)
	if err != nil {
		t.Fatalf("gateway.New() error = %v", err)
	}
	return g
}

// =============================================================================
// SplitLines
// =============================================================================

func TestSplitLines(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    []string
	}{
		{"newlines", "a\nb\nc", []string{"a", "b", "c"}},
		{"nul separators", "a\x00b\x00", []string{"a", "b"}},
		{"mixed separators", "a\x00b\nc", []string{"a", "b", "c"}},
		{"crlf and blanks", "a\r\n\r\n  \n b \r\n", []string{"a", "b"}},
		{"empty", "", []string{}},
		{"only separators", "\n\x00\n", []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SplitLines([]byte(tt.payload))
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("SplitLines(%q) = %q, want %q", tt.payload, got, tt.want)
			}
		})
	}
}

// =============================================================================
// Process
// =============================================================================

func TestProcess_BatchResilience(t *testing.T) {
	g := openGateway(t)
	logger := &mockLogger{}
	p := New(logTopic, logline.NewCodec(logline.ReaderAuthCard), g, WithLogger(logger))

	payload := []byte("2024-01-01T00:00:00 (ACCESS/BOOT#3): 5 2 authorized 99\n" +
		"this line is garbage\n" +
		"2024-01-01T00:00:01 (SYSTEM/BOOT#3): 5 door closed\n")

	res := p.Process(context.Background(), payload, logTopic)

	if res.Lines != 3 {
		t.Errorf("Lines = %d, want 3", res.Lines)
	}
	if res.Inserted != 2 {
		t.Errorf("Inserted = %d, want 2", res.Inserted)
	}
	if res.ParseErrors() != 1 || res.StoreErrors() != 0 {
		t.Errorf("parse=%d store=%d, want 1 and 0", res.ParseErrors(), res.StoreErrors())
	}
	if res.Failures[0].Index != 1 {
		t.Errorf("failure index = %d, want 1", res.Failures[0].Index)
	}
	if logger.count("warn") != 1 {
		t.Errorf("warn logs = %d, want 1", logger.count("warn"))
	}

	counts, err := g.Counts(context.Background())
	if err != nil {
		t.Fatalf("Counts() error = %v", err)
	}
	if counts.AccessEvents != 1 || counts.SystemEvents != 1 {
		t.Errorf("counts = %+v, want one access and one system row", counts)
	}
}

func TestProcess_ScenarioA(t *testing.T) {
	g := openGateway(t)
	p := New(logTopic, logline.NewCodec(logline.ReaderAuthCard), g)

	res := p.Process(context.Background(),
		[]byte("2024-01-01T00:00:00 (ACCESS/BOOT#3): 5 2 authorized 99"), logTopic)
	if res.Inserted != 1 {
		t.Fatalf("Inserted = %d, want 1 (failures: %+v)", res.Inserted, res.Failures)
	}

	rows, err := g.RecentAccess(context.Background(), gateway.AccessFilter{})
	if err != nil {
		t.Fatalf("RecentAccess() error = %v", err)
	}
	want := record.AccessRecord{
		BootCount: 3, Timestamp: "2024-01-01T00:00:00", DoorID: 5,
		ReaderID: 2, Authorized: true, CardID: 99,
	}
	if len(rows) != 1 || rows[0].AccessRecord != want {
		t.Errorf("stored = %+v, want %+v", rows, want)
	}
}

func TestProcess_RedeliveryIsIdempotent(t *testing.T) {
	g := openGateway(t)
	rec := &mockRecorder{}
	p := New(logTopic, logline.NewCodec(""), g, WithRecorder(rec))

	payload := []byte("t1 (SYSTEM): 1 a\x00t2 (SYSTEM): 1 b\x00")
	first := p.Process(context.Background(), payload, logTopic)
	second := p.Process(context.Background(), payload, logTopic)

	if first.Inserted != 2 || second.Inserted != 0 || second.Duplicates != 2 {
		t.Errorf("first=%+v second=%+v", first, second)
	}
	if rec.batches != 2 || rec.lines[metrics.LineInserted] != 2 || rec.lines[metrics.LineDuplicate] != 2 {
		t.Errorf("recorder = %+v", rec)
	}
	if first.BatchID == "" || first.BatchID == second.BatchID {
		t.Errorf("batch ids %q and %q should be distinct and non-empty", first.BatchID, second.BatchID)
	}
}

func TestProcess_InvalidUTF8(t *testing.T) {
	ins := &mockInserter{}
	p := New(logTopic, logline.NewCodec(""), ins)

	res := p.Process(context.Background(), []byte("t (SYSTEM): 1 \xff\xfe\nt (SYSTEM): 1 ok"), logTopic)

	if res.ParseErrors() != 1 || res.Inserted != 1 {
		t.Errorf("parse=%d inserted=%d, want 1 and 1", res.ParseErrors(), res.Inserted)
	}
	if !errors.Is(res.Failures[0].Err, logline.ErrMalformedLine) {
		t.Errorf("failure = %v, want ErrMalformedLine", res.Failures[0].Err)
	}
}

func TestProcess_StoreErrorDoesNotStopBatch(t *testing.T) {
	storeErr := &gateway.StoreWriteError{Schema: record.SchemaSystem, Err: errors.New("disk full")}
	ins := &mockInserter{errs: []error{storeErr, nil}}
	logger := &mockLogger{}
	sink := &mockSink{}
	p := New(logTopic, logline.NewCodec(""), ins, WithLogger(logger), WithSink(sink))

	res := p.Process(context.Background(), []byte("t (SYSTEM): 1 a\nt (SYSTEM): 1 b"), logTopic)

	if len(ins.records) != 2 {
		t.Fatalf("Insert called %d times, want 2", len(ins.records))
	}
	if res.StoreErrors() != 1 || res.Inserted != 1 {
		t.Errorf("store=%d inserted=%d, want 1 and 1", res.StoreErrors(), res.Inserted)
	}
	if !errors.Is(res.Failures[0].Err, gateway.ErrStoreWrite) {
		t.Errorf("failure = %v, want ErrStoreWrite", res.Failures[0].Err)
	}
	if logger.count("error") != 1 {
		t.Errorf("error logs = %d, want 1", logger.count("error"))
	}
	if len(sink.records) != 1 || sink.records[0].System.Message != "b" {
		t.Errorf("sink = %+v, want only the inserted record", sink.records)
	}
}

func TestProcess_SinkSkipsDuplicates(t *testing.T) {
	ins := &mockInserter{outcomes: []gateway.Outcome{gateway.Inserted, gateway.DuplicateSkipped}}
	sink := &mockSink{}
	p := New(logTopic, logline.NewCodec(""), ins, WithSink(sink))

	p.Process(context.Background(), []byte("t (SYSTEM): 1 a\nt (SYSTEM): 1 a"), logTopic)

	if len(sink.records) != 1 {
		t.Errorf("sink received %d records, want 1", len(sink.records))
	}
}

func TestProcess_OtherTopicIgnored(t *testing.T) {
	ins := &mockInserter{}
	logger := &mockLogger{}
	p := New(logTopic, logline.NewCodec(""), ins, WithLogger(logger))

	res := p.Process(context.Background(), []byte("t (SYSTEM): 1 a"), "/topic/commands")

	if !res.Ignored {
		t.Error("Ignored = false, want true")
	}
	if len(ins.records) != 0 {
		t.Errorf("Insert called %d times, want 0", len(ins.records))
	}
	if logger.count("info") != 1 {
		t.Errorf("info logs = %d, want 1", logger.count("info"))
	}
}

func TestHandleMessage(t *testing.T) {
	ins := &mockInserter{}
	p := New(logTopic, logline.NewCodec(""), ins)

	if err := p.HandleMessage(logTopic, []byte("t (SYSTEM): 1 a\nbroken")); err != nil {
		t.Errorf("HandleMessage() error = %v, want nil", err)
	}
	if len(ins.records) != 1 {
		t.Errorf("Insert called %d times, want 1", len(ins.records))
	}
}
