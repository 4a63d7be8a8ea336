package retrieval

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/koopa0/lore/internal/config"
	"github.com/koopa0/lore/internal/embed"
	"github.com/koopa0/lore/internal/knowledge"
	"github.com/koopa0/lore/internal/log"
	"github.com/koopa0/lore/internal/store"
	"github.com/koopa0/lore/internal/testutil"
)

const embedDim = 8

// axis returns a unit vector along one dimension.
func axis(i int) []float32 {
	v := make([]float32, embedDim)
	v[i] = 1
	return v
}

func newTestRegistry(t *testing.T) *knowledge.Registry {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fallback.txt")
	if err := os.WriteFile(path, []byte("contact support for help"), 0o600); err != nil {
		t.Fatalf("writing fallback: %v", err)
	}
	reg, err := knowledge.NewRegistry(
		[]config.BaseConfig{{Name: "support", FallbackFile: path}}, log.NewNop())
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}
	return reg
}

func newTestOrchestrator(t *testing.T, emb embed.TextEmbedder, capt embed.Captioner, mem *store.Memory, cfg config.RetrievalConfig) *Orchestrator {
	t.Helper()
	o, err := NewOrchestrator(mem, emb, capt, newTestRegistry(t), cfg, log.NewNop())
	if err != nil {
		t.Fatalf("NewOrchestrator() error = %v", err)
	}
	// Tests retry in milliseconds, not production backoff.
	o.backoffInitial = time.Millisecond
	o.backoffMax = 4 * time.Millisecond
	return o
}

// seedSupport stores two chunks on separate axes so tests can pin query
// vectors to exact similarities.
func seedSupport(t *testing.T, mem *store.Memory) {
	t.Helper()
	err := mem.Upsert(context.Background(), "support", []store.Chunk{
		{
			ID: "pw", Document: "accounts.md", SectionPath: []string{"Accounts", "Passwords"},
			Content: "reset your password from the profile page", Embedding: axis(0),
		},
		{
			ID: "smtp", Document: "mail.md", SectionPath: []string{"Mail"},
			Content: "configure smtp for outgoing mail", Embedding: axis(1),
		},
	})
	if err != nil {
		t.Fatalf("seeding store: %v", err)
	}
}

func baseConfig() config.RetrievalConfig {
	return config.RetrievalConfig{
		SimilarityThreshold: 0.5,
		TopK:                5,
		MinAccepted:         1,
		MaxAttempts:         1,
	}
}

func TestNewOrchestrator_Guards(t *testing.T) {
	t.Parallel()

	emb := testutil.NewEmbedder(embedDim)
	mem := store.NewMemory()
	reg := newTestRegistry(t)
	logger := log.NewNop()
	cfg := baseConfig()

	if _, err := NewOrchestrator(nil, emb, nil, reg, cfg, logger); err == nil {
		t.Error("nil store should be rejected")
	}
	if _, err := NewOrchestrator(mem, nil, nil, reg, cfg, logger); err == nil {
		t.Error("nil embedder should be rejected")
	}
	if _, err := NewOrchestrator(mem, emb, nil, nil, cfg, logger); err == nil {
		t.Error("nil registry should be rejected")
	}
	if _, err := NewOrchestrator(mem, emb, nil, reg, cfg, nil); err == nil {
		t.Error("nil logger should be rejected")
	}
}

func TestAnswerContext_Grounded(t *testing.T) {
	t.Parallel()

	emb := testutil.NewEmbedder(embedDim)
	emb.Pin("how do i reset my password", []float32{0.8, 0.6, 0, 0, 0, 0, 0, 0})
	mem := store.NewMemory()
	seedSupport(t, mem)
	o := newTestOrchestrator(t, emb, nil, mem, baseConfig())

	out, err := o.AnswerContext(context.Background(), "support", Query{Text: "how do i reset my password"})
	if err != nil {
		t.Fatalf("AnswerContext() error = %v", err)
	}

	if !out.Grounded {
		t.Fatalf("outcome not grounded: %+v", out)
	}
	if out.QueryID == "" {
		t.Error("QueryID is empty")
	}
	if out.Degraded {
		t.Error("text-only query marked degraded")
	}
	if len(out.Sources) != 2 {
		t.Fatalf("Sources = %d, want 2", len(out.Sources))
	}
	top := out.Sources[0]
	if top.Document != "accounts.md" || top.Content != "reset your password from the profile page" {
		t.Errorf("top source = %+v, want the password chunk", top)
	}
	if len(top.SectionPath) != 2 || top.SectionPath[0] != "Accounts" {
		t.Errorf("top SectionPath = %v", top.SectionPath)
	}
	if out.Sources[1].Similarity > top.Similarity {
		t.Error("sources are not in descending similarity")
	}
	if out.Fallback != "" || out.Reason != "" {
		t.Errorf("grounded outcome carries fallback fields: %+v", out)
	}
}

func TestAnswerContext_NoMatchServesFallback(t *testing.T) {
	t.Parallel()

	emb := testutil.NewEmbedder(embedDim)
	emb.Pin("completely unrelated question", axis(3))
	mem := store.NewMemory()
	seedSupport(t, mem)
	o := newTestOrchestrator(t, emb, nil, mem, baseConfig())

	out, err := o.AnswerContext(context.Background(), "support", Query{Text: "completely unrelated question"})
	if err != nil {
		t.Fatalf("AnswerContext() error = %v", err)
	}

	if out.Grounded || len(out.Sources) != 0 {
		t.Fatalf("below-threshold query must not ground: %+v", out)
	}
	if out.Reason != ReasonNoMatch {
		t.Errorf("Reason = %s, want %s", out.Reason, ReasonNoMatch)
	}
	if out.Fallback != "contact support for help" {
		t.Errorf("Fallback = %q, want the base's static answer", out.Fallback)
	}
}

func TestAnswerContext_MinAcceptedGate(t *testing.T) {
	t.Parallel()

	emb := testutil.NewEmbedder(embedDim)
	emb.Pin("reset password", []float32{0.8, 0.6, 0, 0, 0, 0, 0, 0})
	mem := store.NewMemory()
	seedSupport(t, mem)

	cfg := baseConfig()
	cfg.SimilarityThreshold = 0.7 // only the 0.8 match clears it
	cfg.MinAccepted = 2
	o := newTestOrchestrator(t, emb, nil, mem, cfg)

	out, err := o.AnswerContext(context.Background(), "support", Query{Text: "reset password"})
	if err != nil {
		t.Fatalf("AnswerContext() error = %v", err)
	}
	if out.Grounded {
		t.Fatal("one accepted result must not satisfy MinAccepted=2")
	}
	if out.Reason != ReasonNoMatch {
		t.Errorf("Reason = %s, want %s", out.Reason, ReasonNoMatch)
	}
}

func TestAnswerContext_UnknownBase(t *testing.T) {
	t.Parallel()

	emb := testutil.NewEmbedder(embedDim)
	o := newTestOrchestrator(t, emb, nil, store.NewMemory(), baseConfig())

	out, err := o.AnswerContext(context.Background(), "nope", Query{Text: "hello"})
	if !errors.Is(err, knowledge.ErrUnknownBase) {
		t.Errorf("error = %v, want ErrUnknownBase", err)
	}
	if out != nil {
		t.Errorf("outcome = %+v, want nil", out)
	}
}

func TestAnswerContext_EmptyQuery(t *testing.T) {
	t.Parallel()

	emb := testutil.NewEmbedder(embedDim)
	o := newTestOrchestrator(t, emb, nil, store.NewMemory(), baseConfig())

	for _, text := range []string{"", "   ", "\n"} {
		if _, err := o.AnswerContext(context.Background(), "support", Query{Text: text}); !errors.Is(err, ErrEmptyQuery) {
			t.Errorf("AnswerContext(%q) error = %v, want ErrEmptyQuery", text, err)
		}
	}
	if len(emb.Calls()) != 0 {
		t.Error("embedder called for empty queries")
	}
}

func TestAnswerContext_ExhaustsRetriesThenFallsBack(t *testing.T) {
	t.Parallel()

	emb := testutil.NewEmbedder(embedDim)
	emb.FailNext(100, &embed.Error{Op: "embed", Kind: embed.KindTransient, Err: errors.New("rate limit")})
	cfg := baseConfig()
	cfg.MaxAttempts = 3
	o := newTestOrchestrator(t, emb, nil, store.NewMemory(), cfg)

	out, err := o.AnswerContext(context.Background(), "support", Query{Text: "anything"})
	if err != nil {
		t.Fatalf("AnswerContext() error = %v, failures must be absorbed", err)
	}
	if out.Grounded || out.Reason != ReasonRetrievalUnavailable {
		t.Errorf("outcome = %+v, want retrieval_unavailable fallback", out)
	}
	if calls := len(emb.Calls()); calls != 3 {
		t.Errorf("embedder called %d times, want exactly MaxAttempts=3", calls)
	}
}

func TestAnswerContext_PermanentErrorDoesNotRetry(t *testing.T) {
	t.Parallel()

	emb := testutil.NewEmbedder(embedDim)
	emb.FailNext(100, &embed.Error{Op: "embed", Kind: embed.KindPermanent, Err: errors.New("bad request")})
	cfg := baseConfig()
	cfg.MaxAttempts = 5
	o := newTestOrchestrator(t, emb, nil, store.NewMemory(), cfg)

	out, err := o.AnswerContext(context.Background(), "support", Query{Text: "anything"})
	if err != nil {
		t.Fatalf("AnswerContext() error = %v", err)
	}
	if out.Reason != ReasonRetrievalUnavailable {
		t.Errorf("Reason = %s, want %s", out.Reason, ReasonRetrievalUnavailable)
	}
	if calls := len(emb.Calls()); calls != 1 {
		t.Errorf("embedder called %d times for a permanent error, want 1", calls)
	}
}

func TestAnswerContext_TransientThenSuccess(t *testing.T) {
	t.Parallel()

	emb := testutil.NewEmbedder(embedDim)
	emb.Pin("reset my password", []float32{0.8, 0.6, 0, 0, 0, 0, 0, 0})
	emb.FailNext(1, &embed.Error{Op: "embed", Kind: embed.KindTransient, Err: errors.New("503")})
	mem := store.NewMemory()
	seedSupport(t, mem)

	cfg := baseConfig()
	cfg.MaxAttempts = 3
	o := newTestOrchestrator(t, emb, nil, mem, cfg)

	out, err := o.AnswerContext(context.Background(), "support", Query{Text: "reset my password"})
	if err != nil {
		t.Fatalf("AnswerContext() error = %v", err)
	}
	if !out.Grounded {
		t.Fatalf("outcome = %+v, want grounded after one retry", out)
	}
	if calls := len(emb.Calls()); calls != 2 {
		t.Errorf("embedder called %d times, want 2", calls)
	}
}

func TestAnswerContext_CaptionFailureDegradesButAnswers(t *testing.T) {
	t.Parallel()

	emb := testutil.NewEmbedder(embedDim)
	emb.Pin("my screen shows an error", []float32{0.8, 0.6, 0, 0, 0, 0, 0, 0})
	capt := testutil.NewCaptioner("unused")
	capt.FailNext(1, errors.New("vision model down"))
	mem := store.NewMemory()
	seedSupport(t, mem)
	o := newTestOrchestrator(t, emb, capt, mem, baseConfig())

	out, err := o.AnswerContext(context.Background(), "support",
		Query{Text: "my screen shows an error", Image: []byte{0x89}})
	if err != nil {
		t.Fatalf("AnswerContext() error = %v, caption failure must not error", err)
	}
	if !out.Grounded {
		t.Fatalf("outcome = %+v, want grounded from text alone", out)
	}
	if !out.Degraded {
		t.Error("caption failure must set Degraded")
	}
}

func TestAnswerContext_CaptionJoinsTheQuery(t *testing.T) {
	t.Parallel()

	emb := testutil.NewEmbedder(embedDim)
	emb.Pin("what is this\na screenshot of a stack trace", []float32{0.8, 0.6, 0, 0, 0, 0, 0, 0})
	capt := testutil.NewCaptioner("a screenshot of a stack trace")
	mem := store.NewMemory()
	seedSupport(t, mem)
	o := newTestOrchestrator(t, emb, capt, mem, baseConfig())

	out, err := o.AnswerContext(context.Background(), "support",
		Query{Text: "what is this", Image: []byte{0x89}})
	if err != nil {
		t.Fatalf("AnswerContext() error = %v", err)
	}
	if !out.Grounded || out.Degraded {
		t.Fatalf("outcome = %+v, want grounded and not degraded", out)
	}

	texts := emb.Texts()
	if len(texts) != 1 || texts[0] != "what is this\na screenshot of a stack trace" {
		t.Errorf("embedded %v, want the fused text", texts)
	}
}

func TestAnswerContext_CircuitOpensAfterRepeatedFailures(t *testing.T) {
	t.Parallel()

	emb := testutil.NewEmbedder(embedDim)
	emb.FailNext(100, &embed.Error{Op: "embed", Kind: embed.KindTransient, Err: errors.New("quota exceeded")})
	o := newTestOrchestrator(t, emb, nil, store.NewMemory(), baseConfig())

	for i := 0; i < 5; i++ {
		out, err := o.AnswerContext(context.Background(), "support", Query{Text: "anything"})
		if err != nil || out.Reason != ReasonRetrievalUnavailable {
			t.Fatalf("query %d: out=%+v err=%v", i, out, err)
		}
	}
	if o.breaker.State() != CircuitOpen {
		t.Fatalf("breaker state = %v after 5 failed queries, want open", o.breaker.State())
	}
	callsBefore := len(emb.Calls())

	out, err := o.AnswerContext(context.Background(), "support", Query{Text: "anything"})
	if err != nil {
		t.Fatalf("AnswerContext() with open breaker error = %v", err)
	}
	if out.Grounded || out.Reason != ReasonRetrievalUnavailable {
		t.Errorf("outcome = %+v, want short-circuited fallback", out)
	}
	if got := len(emb.Calls()); got != callsBefore {
		t.Errorf("open breaker still reached the embedder (%d new calls)", got-callsBefore)
	}
}

func TestAnswerContext_CallerCancelPropagates(t *testing.T) {
	t.Parallel()

	emb := testutil.NewEmbedder(embedDim)
	o := newTestOrchestrator(t, emb, nil, store.NewMemory(), baseConfig())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out, err := o.AnswerContext(ctx, "support", Query{Text: "hello"})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
	if out != nil {
		t.Errorf("outcome = %+v, want nil on caller cancel", out)
	}
}

// waitingEmbedder blocks until its context ends.
type waitingEmbedder struct{}

func (waitingEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestAnswerContext_QueryTimeoutServesFallback(t *testing.T) {
	t.Parallel()

	cfg := baseConfig()
	cfg.QueryTimeout = 30 * time.Millisecond
	o := newTestOrchestrator(t, waitingEmbedder{}, nil, store.NewMemory(), cfg)

	start := time.Now()
	out, err := o.AnswerContext(context.Background(), "support", Query{Text: "slow"})
	if err != nil {
		t.Fatalf("AnswerContext() error = %v, deadline must be absorbed", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Fatalf("query ran %v, the deadline did not apply", elapsed)
	}
	if out.Grounded || out.Reason != ReasonTimeout {
		t.Errorf("outcome = %+v, want timeout fallback", out)
	}
}

func TestAnswerContext_SearchFailureServesFallback(t *testing.T) {
	t.Parallel()

	emb := testutil.NewEmbedder(embedDim)
	mem := store.NewMemory()
	// Stored dimension disagrees with the embedder, so search fails with a
	// permanent error.
	if err := mem.Upsert(context.Background(), "support", []store.Chunk{
		{ID: "bad", Content: "x", Embedding: []float32{1, 0}},
	}); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	o := newTestOrchestrator(t, emb, nil, mem, baseConfig())

	out, err := o.AnswerContext(context.Background(), "support", Query{Text: "anything"})
	if err != nil {
		t.Fatalf("AnswerContext() error = %v", err)
	}
	if out.Grounded || out.Reason != ReasonRetrievalUnavailable {
		t.Errorf("outcome = %+v, want retrieval_unavailable fallback", out)
	}
}

func TestAcceptResults(t *testing.T) {
	t.Parallel()

	results := []store.SearchResult{
		{Chunk: store.Chunk{ID: "a", Content: "high"}, Similarity: 0.9},
		{Chunk: store.Chunk{ID: "b", Content: "edge"}, Similarity: 0.5},
		{Chunk: store.Chunk{ID: "c", Content: "low"}, Similarity: 0.49},
	}

	accepted := acceptResults(results, 0.5)
	if len(accepted) != 2 {
		t.Fatalf("accepted %d results, want 2 (threshold is inclusive)", len(accepted))
	}
	if accepted[0].Content != "high" || accepted[1].Content != "edge" {
		t.Errorf("accepted = %+v, rank order lost", accepted)
	}
}
