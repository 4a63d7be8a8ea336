package testutil

import (
	"context"
	"errors"
	"math"
	"testing"
)

func TestEmbedder_Deterministic(t *testing.T) {
	t.Parallel()

	e := NewEmbedder(8)
	ctx := context.Background()

	first, err := e.EmbedTexts(ctx, []string{"restart the agent", "restart the agent"})
	if err != nil {
		t.Fatalf("EmbedTexts() error = %v", err)
	}
	second, err := e.EmbedTexts(ctx, []string{"restart the agent"})
	if err != nil {
		t.Fatalf("EmbedTexts() error = %v", err)
	}

	for i := range first[0] {
		if first[0][i] != first[1][i] || first[0][i] != second[0][i] {
			t.Fatalf("same text produced different vectors at dim %d", i)
		}
	}

	var norm float64
	for _, v := range first[0] {
		norm += float64(v) * float64(v)
	}
	if math.Abs(math.Sqrt(norm)-1) > 1e-5 {
		t.Errorf("vector norm = %v, want 1", math.Sqrt(norm))
	}

	if got := len(e.Calls()); got != 2 {
		t.Errorf("Calls() len = %d, want 2", got)
	}
	if got := len(e.Texts()); got != 3 {
		t.Errorf("Texts() len = %d, want 3", got)
	}
}

func TestEmbedder_PinOverridesHash(t *testing.T) {
	t.Parallel()

	e := NewEmbedder(3)
	e.Pin("query", []float32{1, 0, 0})

	vecs, err := e.EmbedTexts(context.Background(), []string{"query"})
	if err != nil {
		t.Fatalf("EmbedTexts() error = %v", err)
	}
	if vecs[0][0] != 1 || vecs[0][1] != 0 || vecs[0][2] != 0 {
		t.Errorf("pinned vector = %v, want [1 0 0]", vecs[0])
	}

	// Returned slice must not alias the pinned one.
	vecs[0][0] = 99
	again, _ := e.EmbedTexts(context.Background(), []string{"query"})
	if again[0][0] != 1 {
		t.Error("mutating a returned vector changed the pinned vector")
	}
}

func TestEmbedder_FailNext(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	e := NewEmbedder(4)
	e.FailNext(2, boom)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := e.EmbedTexts(ctx, []string{"x"}); !errors.Is(err, boom) {
			t.Fatalf("call %d error = %v, want boom", i, err)
		}
	}
	if _, err := e.EmbedTexts(ctx, []string{"x"}); err != nil {
		t.Fatalf("call after failures error = %v, want nil", err)
	}
	if got := len(e.Calls()); got != 3 {
		t.Errorf("Calls() len = %d, want 3 (failed calls recorded)", got)
	}
}

func TestCaptioner_FixedCaptionAndFailures(t *testing.T) {
	t.Parallel()

	boom := errors.New("vision down")
	c := NewCaptioner("a red error dialog")
	c.FailNext(1, boom)
	ctx := context.Background()

	if _, err := c.Caption(ctx, []byte{1}); !errors.Is(err, boom) {
		t.Fatalf("first Caption() error = %v, want injected", err)
	}
	got, err := c.Caption(ctx, []byte{1})
	if err != nil {
		t.Fatalf("Caption() error = %v", err)
	}
	if got != "a red error dialog" {
		t.Errorf("Caption() = %q", got)
	}
	if c.Count() != 2 {
		t.Errorf("Count() = %d, want 2", c.Count())
	}
}
