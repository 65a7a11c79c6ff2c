package memory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"
)

// wordEstimator prices text at one token per whitespace-separated word.
type wordEstimator struct{}

func (wordEstimator) Estimate(text string) int { return len(strings.Fields(text)) }

// stubSummarizer returns out for every call and records its inputs.
type stubSummarizer struct {
	mu     sync.Mutex
	out    string
	err    error
	inputs []string
}

func (s *stubSummarizer) Summarize(_ context.Context, text string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inputs = append(s.inputs, text)
	return s.out, s.err
}

func (s *stubSummarizer) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.inputs)
}

func testConfig(threshold, keep, capTokens int) Config {
	return Config{
		TokenThreshold:      threshold,
		RecentTurnsKeep:     keep,
		SummaryCapTokens:    capTokens,
		EnableSummarization: true,
	}
}

func assertInvariant(t *testing.T, s *Store) {
	t.Helper()
	st := s.Snapshot()
	est := wordEstimator{}
	want := est.Estimate(st.Summary)
	for _, turn := range st.Turns {
		want += est.Estimate(turn.Question) + est.Estimate(turn.Answer)
	}
	if st.TotalTokens != want {
		t.Fatalf("total_tokens = %d, recomputed = %d", st.TotalTokens, want)
	}
}

func TestStore_NoCompressionBelowThreshold(t *testing.T) {
	sum := &stubSummarizer{out: "summary"}
	s := NewStore(ModeChat, testConfig(2000, 3, 300), wordEstimator{}, sum)

	for i := 0; i < 5; i++ {
		s.Record(context.Background(), "where is Accra", "Accra is in Ghana")
	}
	st := s.Snapshot()
	if len(st.Turns) != 5 {
		t.Fatalf("expected 5 turns, got %d", len(st.Turns))
	}
	if st.Summary != "" {
		t.Fatalf("expected no summary, got %q", st.Summary)
	}
	if st.TotalTokens != 5*7 {
		t.Fatalf("expected 35 tokens, got %d", st.TotalTokens)
	}
	if sum.calls() != 0 {
		t.Fatalf("summarizer should not run below threshold, got %d calls", sum.calls())
	}
}

func TestStore_CompressionKeepsNewestTurnsAndRecounts(t *testing.T) {
	sum := &stubSummarizer{out: "they talked about Ghana"}
	s := NewStore(ModeChat, testConfig(10, 3, 300), wordEstimator{}, sum)

	// Each turn costs 4 tokens. Three turns (12) exceed the threshold but
	// leave nothing older than the kept window, so nothing is summarized.
	for i := 0; i < 3; i++ {
		s.Record(context.Background(), fmt.Sprintf("q%d a", i), fmt.Sprintf("a%d b", i))
	}
	if sum.calls() != 0 {
		t.Fatalf("compression with an empty old window must not summarize")
	}

	s.Record(context.Background(), "q3 a", "a3 b")
	st := s.Snapshot()
	if len(st.Turns) != 3 {
		t.Fatalf("expected 3 kept turns, got %d", len(st.Turns))
	}
	if st.Turns[0].Question != "q1 a" || st.Turns[2].Question != "q3 a" {
		t.Fatalf("kept the wrong turns: %+v", st.Turns)
	}
	if st.Summary != "they talked about Ghana" {
		t.Fatalf("unexpected summary %q", st.Summary)
	}
	if want := "User: q0 a\nKiki: a0 b"; sum.inputs[0] != want {
		t.Fatalf("summarizer input = %q, want %q", sum.inputs[0], want)
	}
	if st.TotalTokens != 4+12 {
		t.Fatalf("expected recomputed total 16, got %d", st.TotalTokens)
	}
	assertInvariant(t, s)
}

func TestStore_InvariantHoldsOverManyRecords(t *testing.T) {
	sum := &stubSummarizer{out: "short recap"}
	s := NewStore(ModeRAG, testConfig(20, 2, 50), wordEstimator{}, sum)

	for i := 0; i < 40; i++ {
		before := s.Stats().Compressions
		s.Record(context.Background(),
			strings.Repeat("word ", i%5+1),
			strings.Repeat("reply ", i%7+1))
		assertInvariant(t, s)
		if s.Stats().Compressions > before && len(s.Snapshot().Turns) > 2 {
			t.Fatalf("record %d: %d turns survived compression", i, len(s.Snapshot().Turns))
		}
	}
}

func TestStore_SummaryIsCapped(t *testing.T) {
	fixed := strings.TrimSpace(strings.Repeat("fact ", 40)) // 40 tokens
	sum := &stubSummarizer{out: fixed}
	const capTokens = 60
	s := NewStore(ModeChat, testConfig(8, 1, capTokens), wordEstimator{}, sum)

	for i := 0; i < 30; i++ {
		s.Record(context.Background(), "one two three", "four five six")
		got := wordEstimator{}.Estimate(s.Snapshot().Summary)
		if got > capTokens+40 {
			t.Fatalf("record %d: summary grew to %d tokens", i, got)
		}
	}
	if s.Snapshot().Summary != fixed {
		t.Fatalf("expected re-compressed summary, got %q", s.Snapshot().Summary)
	}
}

// transcriptOnlySummarizer summarizes conversation transcripts but returns
// nothing for anything else, such as a merged summary.
type transcriptOnlySummarizer struct{ out string }

func (s transcriptOnlySummarizer) Summarize(_ context.Context, text string) (string, error) {
	if strings.HasPrefix(text, "User:") {
		return s.out, nil
	}
	return "", nil
}

func TestStore_FailedRecompressionStaysCapped(t *testing.T) {
	out := strings.TrimSpace(strings.Repeat("gist ", 10)) // 10 tokens
	const capTokens = 30
	s := NewStore(ModeChat, testConfig(8, 1, capTokens), wordEstimator{}, transcriptOnlySummarizer{out: out})

	for i := 0; i < 20; i++ {
		s.Record(context.Background(), "one two three", "four five six")
		if got := (wordEstimator{}).Estimate(s.Snapshot().Summary); got > capTokens+10 {
			t.Fatalf("record %d: summary grew to %d tokens", i, got)
		}
		assertInvariant(t, s)
	}
	if got := s.Snapshot().Summary; got == "" {
		t.Fatal("expected the newest summary to be kept")
	}
}

func TestStore_RecompressionErrorKeepsNewestSummary(t *testing.T) {
	sum := &stubSummarizer{err: errors.New("backend down")}
	s := NewStore(ModeChat, testConfig(1000, 1, 3), wordEstimator{}, sum)

	got := s.merge(context.Background(), "older summary text", "newest recap")
	if got != "newest recap" {
		t.Fatalf("merge = %q, want the newest summary only", got)
	}
	if sum.calls() != 1 {
		t.Fatalf("expected one re-compression attempt, got %d", sum.calls())
	}
}

func TestStore_SummaryAppendsUnderCap(t *testing.T) {
	sum := &stubSummarizer{out: "recap"}
	s := NewStore(ModeChat, testConfig(4, 1, 300), wordEstimator{}, sum)

	s.Record(context.Background(), "a b", "c d")
	s.Record(context.Background(), "e f", "g h")
	s.Record(context.Background(), "i j", "k l")

	if got := s.Snapshot().Summary; got != "recap recap" {
		t.Fatalf("expected appended summary, got %q", got)
	}
}

func TestStore_DisabledSummarizationTruncates(t *testing.T) {
	sum := &stubSummarizer{out: "unused"}
	cfg := testConfig(10, 2, 300)
	cfg.EnableSummarization = false
	s := NewStore(ModeChat, cfg, wordEstimator{}, sum)

	for i := 0; i < 5; i++ {
		s.Record(context.Background(), fmt.Sprintf("q%d x", i), fmt.Sprintf("a%d y", i))
	}
	st := s.Snapshot()
	if sum.calls() != 0 {
		t.Fatal("summarizer must not run when summarization is disabled")
	}
	if len(st.Turns) > 2 || st.Turns[len(st.Turns)-1].Question != "q4 x" {
		t.Fatalf("unexpected turns after truncation: %+v", st.Turns)
	}
	if st.Summary != "" {
		t.Fatalf("expected no summary, got %q", st.Summary)
	}
	assertInvariant(t, s)
}

func TestStore_EmptySummaryKeepsPriorSummary(t *testing.T) {
	sum := &stubSummarizer{out: "first recap"}
	s := NewStore(ModeChat, testConfig(4, 1, 300), wordEstimator{}, sum)
	s.Record(context.Background(), "a b", "c d")
	s.Record(context.Background(), "e f", "g h")
	if s.Snapshot().Summary != "first recap" {
		t.Fatalf("setup: unexpected summary %q", s.Snapshot().Summary)
	}

	sum.mu.Lock()
	sum.out, sum.err = "", errors.New("backend down")
	sum.mu.Unlock()
	s.Record(context.Background(), "i j", "k l")

	st := s.Snapshot()
	if st.Summary != "first recap" {
		t.Fatalf("failed summarization must not change the summary, got %q", st.Summary)
	}
	if len(st.Turns) != 1 {
		t.Fatalf("expected old turns to be dropped, got %d", len(st.Turns))
	}
	assertInvariant(t, s)
}

func TestStore_RenderContext(t *testing.T) {
	sum := &stubSummarizer{out: "The user asked about Ghana's capital."}
	s := NewStore(ModeRAG, testConfig(6, 1, 300), wordEstimator{}, sum)

	if got := s.RenderContext(); got != "" {
		t.Fatalf("empty store should render nothing, got %q", got)
	}

	s.Record(context.Background(), "capital?", "Accra.")
	if got, want := s.RenderContext(), "Previous conversation:\n\nRecent messages:\nUser: capital?\nKiki: Accra.\n\n"; got != want {
		t.Fatalf("render without summary:\n got %q\nwant %q", got, want)
	}

	s.Record(context.Background(), "independence year please", "It was 1957 exactly.")
	want := "Previous conversation:\n\n" +
		"Earlier context: The user asked about Ghana's capital.\n\n" +
		"Recent messages:\n" +
		"User: independence year please\nKiki: It was 1957 exactly.\n\n"
	if got := s.RenderContext(); got != want {
		t.Fatalf("render with summary:\n got %q\nwant %q", got, want)
	}
}

func TestStore_Reset(t *testing.T) {
	s := NewStore(ModeChat, testConfig(2000, 3, 300), wordEstimator{}, &stubSummarizer{})
	s.Reset()
	s.Record(context.Background(), "q", "a")
	s.Reset()
	s.Reset()

	st := s.Snapshot()
	if st.Summary != "" || len(st.Turns) != 0 || st.TotalTokens != 0 {
		t.Fatalf("expected empty store, got %+v", st)
	}
	if s.RenderContext() != "" {
		t.Fatal("reset store should render nothing")
	}
}

// blockingSummarizer parks every call until released.
type blockingSummarizer struct {
	entered chan struct{}
	release chan struct{}
}

func (b *blockingSummarizer) Summarize(ctx context.Context, _ string) (string, error) {
	b.entered <- struct{}{}
	select {
	case <-b.release:
		return "stale summary", nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func TestStore_ResetDuringCompressionWins(t *testing.T) {
	sum := &blockingSummarizer{entered: make(chan struct{}, 1), release: make(chan struct{})}
	s := NewStore(ModeChat, testConfig(4, 1, 300), wordEstimator{}, sum)
	s.Record(context.Background(), "a b", "c d")

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Record(context.Background(), "e f", "g h")
	}()

	select {
	case <-sum.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("compression never reached the summarizer")
	}

	// Readers are not blocked by a running summarization.
	rendered := make(chan string, 1)
	go func() { rendered <- s.RenderContext() }()
	select {
	case got := <-rendered:
		if !strings.Contains(got, "User: a b") {
			t.Errorf("expected pre-compression context, got %q", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("RenderContext blocked behind summarization")
	}

	s.Reset()
	close(sum.release)
	<-done

	st := s.Snapshot()
	if st.Summary != "" || len(st.Turns) != 0 || st.TotalTokens != 0 {
		t.Fatalf("compression result should be discarded after reset, got %+v", st)
	}
}

func TestStore_ConcurrentRecordsAreNotLost(t *testing.T) {
	s := NewStore(ModeChat, testConfig(1_000_000, 3, 300), wordEstimator{}, &stubSummarizer{})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s.Record(context.Background(), fmt.Sprintf("question %d", i), "an answer")
		}(i)
	}
	wg.Wait()

	st := s.Snapshot()
	if len(st.Turns) != 50 {
		t.Fatalf("expected 50 turns, got %d", len(st.Turns))
	}
	if st.TotalTokens != 50*4 {
		t.Fatalf("expected 200 tokens, got %d", st.TotalTokens)
	}
}

func TestStore_CompressionHook(t *testing.T) {
	var kinds []CompressionKind
	hook := WithCompressionHook(func(_ Mode, k CompressionKind) { kinds = append(kinds, k) })
	s := NewStore(ModeChat, testConfig(4, 1, 300), wordEstimator{}, &stubSummarizer{out: "x"}, hook)

	s.Record(context.Background(), "a b", "c d")
	s.Record(context.Background(), "e f", "g h")
	if len(kinds) != 1 || kinds[0] != CompressionSummarized {
		t.Fatalf("unexpected compression events %v", kinds)
	}
	if s.Stats().Compressions != 1 {
		t.Fatalf("expected 1 compression, got %d", s.Stats().Compressions)
	}
}

func TestStore_Clock(t *testing.T) {
	at := time.Date(2026, 3, 6, 12, 0, 0, 0, time.UTC)
	s := NewStore(ModeChat, DefaultConfig(), wordEstimator{}, &stubSummarizer{}, withClock(func() time.Time { return at }))
	s.Record(context.Background(), "q", "a")
	if got := s.Snapshot().Turns[0].RecordedAt; !got.Equal(at) {
		t.Fatalf("expected injected time, got %v", got)
	}
	if s.Snapshot().Turns[0].ID == "" {
		t.Fatal("expected a turn id")
	}
}
