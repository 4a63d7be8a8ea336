package chunk

import (
	"errors"
	"reflect"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestSplit_TwoLevelMarkup(t *testing.T) {
	t.Parallel()

	doc := Document{
		Name: "guide.md",
		Text: "=== Setup\n---\nInstall steps...\n=== Usage\n---\nRun the bot...",
	}

	chunks, err := Split(doc, Options{})
	if err != nil {
		t.Fatalf("Split() error = %v", err)
	}
	if len(chunks) != 2 {
		t.Fatalf("Split() returned %d chunks, want 2", len(chunks))
	}

	want := []struct {
		path    []string
		content string
	}{
		{[]string{"Setup"}, "Install steps..."},
		{[]string{"Usage"}, "Run the bot..."},
	}
	for i, w := range want {
		if !reflect.DeepEqual(chunks[i].SectionPath, w.path) {
			t.Errorf("chunk %d path = %v, want %v", i, chunks[i].SectionPath, w.path)
		}
		if chunks[i].Content != w.content {
			t.Errorf("chunk %d content = %q, want %q", i, chunks[i].Content, w.content)
		}
		if chunks[i].Seq != i {
			t.Errorf("chunk %d seq = %d, want %d", i, chunks[i].Seq, i)
		}
		if chunks[i].Document != "guide.md" {
			t.Errorf("chunk %d document = %q, want guide.md", i, chunks[i].Document)
		}
	}
	if chunks[0].ID == chunks[1].ID {
		t.Errorf("chunk IDs collide: %s", chunks[0].ID)
	}
	for _, c := range chunks {
		if !strings.HasPrefix(c.ID, "ck_") || len(c.ID) != len("ck_")+32 {
			t.Errorf("chunk ID %q has unexpected shape", c.ID)
		}
	}
}

func TestSplit_SubsectionLabels(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		text        string
		wantPath    []string
		wantContent string
	}{
		{
			name:        "delimiter label",
			text:        "=== CLI\n--- Flags\nUse -v for verbose output.",
			wantPath:    []string{"CLI", "Flags"},
			wantContent: "Use -v for verbose output.",
		},
		{
			name:        "heading promoted",
			text:        "=== CLI\n---\n## Flags\nUse -v for verbose output.",
			wantPath:    []string{"CLI", "Flags"},
			wantContent: "Use -v for verbose output.",
		},
		{
			name:        "delimiter label wins over heading",
			text:        "=== CLI\n--- Flags\n## Verbose\nUse -v.",
			wantPath:    []string{"CLI", "Flags"},
			wantContent: "## Verbose\nUse -v.",
		},
		{
			name:        "heading with no body kept as content",
			text:        "=== CLI\n---\n## Flags",
			wantPath:    []string{"CLI", "Flags"},
			wantContent: "## Flags",
		},
		{
			name:        "deep heading stays in content",
			text:        "=== CLI\n---\n#### Minor\nDetail.",
			wantPath:    []string{"CLI"},
			wantContent: "#### Minor\nDetail.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			chunks, err := Split(Document{Name: "d", Text: tt.text}, Options{})
			if err != nil {
				t.Fatalf("Split() error = %v", err)
			}
			if len(chunks) != 1 {
				t.Fatalf("Split() returned %d chunks, want 1", len(chunks))
			}
			if !reflect.DeepEqual(chunks[0].SectionPath, tt.wantPath) {
				t.Errorf("path = %v, want %v", chunks[0].SectionPath, tt.wantPath)
			}
			if chunks[0].Content != tt.wantContent {
				t.Errorf("content = %q, want %q", chunks[0].Content, tt.wantContent)
			}
		})
	}
}

func TestSplit_PreambleSection(t *testing.T) {
	t.Parallel()

	doc := Document{
		Name: "readme.md",
		Text: "# Install Guide\nClone the repo first.\n=== Setup\n---\nRun make.",
	}

	chunks, err := Split(doc, Options{})
	if err != nil {
		t.Fatalf("Split() error = %v", err)
	}
	if len(chunks) != 2 {
		t.Fatalf("Split() returned %d chunks, want 2", len(chunks))
	}
	if got := chunks[0].Path(); got != "Install Guide" {
		t.Errorf("preamble path = %q, want %q", got, "Install Guide")
	}
	if chunks[0].Content != "Clone the repo first." {
		t.Errorf("preamble content = %q", chunks[0].Content)
	}
}

func TestSplit_BareDelimiterPromotesLabel(t *testing.T) {
	t.Parallel()

	doc := Document{Name: "d", Text: "===\nOverview\nThe service indexes documents."}

	chunks, err := Split(doc, Options{})
	if err != nil {
		t.Fatalf("Split() error = %v", err)
	}
	if len(chunks) != 1 {
		t.Fatalf("Split() returned %d chunks, want 1", len(chunks))
	}
	if got := chunks[0].Path(); got != "Overview" {
		t.Errorf("path = %q, want Overview", got)
	}
	if chunks[0].Content != "The service indexes documents." {
		t.Errorf("content = %q", chunks[0].Content)
	}
}

func TestSplit_NoDelimiters(t *testing.T) {
	t.Parallel()

	doc := Document{Name: "plain.md", Text: "Release Notes\n\nFixed the timeout bug."}

	chunks, err := Split(doc, Options{})
	if err != nil {
		t.Fatalf("Split() error = %v", err)
	}
	if len(chunks) != 1 {
		t.Fatalf("Split() returned %d chunks, want 1", len(chunks))
	}
	if got := chunks[0].Path(); got != "Release Notes" {
		t.Errorf("path = %q, want Release Notes", got)
	}
}

func TestSplit_DiscardsBlankSubsections(t *testing.T) {
	t.Parallel()

	doc := Document{Name: "d", Text: "=== A\n---\n\n---\nonly real content\n---\n   \n"}

	chunks, err := Split(doc, Options{})
	if err != nil {
		t.Fatalf("Split() error = %v", err)
	}
	if len(chunks) != 1 {
		t.Fatalf("Split() returned %d chunks, want 1", len(chunks))
	}
	if chunks[0].Content != "only real content" {
		t.Errorf("content = %q", chunks[0].Content)
	}
}

func TestSplit_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		text    string
		wantErr error
	}{
		{"empty", "", ErrEmptyDocument},
		{"whitespace only", "  \n\t\n  ", ErrEmptyDocument},
		{"bare delimiter without content", "===\n\n", ErrUnlabeledSection},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := Split(Document{Name: "bad.md", Text: tt.text}, Options{})
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Split() error = %v, want %v", err, tt.wantErr)
			}
			if err != nil && !strings.Contains(err.Error(), "bad.md") {
				t.Errorf("error %q does not name the document", err)
			}
		})
	}
}

func TestSplit_OversizePacking(t *testing.T) {
	t.Parallel()

	// Four sentences of ~10 estimated tokens each in one paragraph. With a
	// 25-token budget and 10-token overlap the packer should emit three
	// pieces, each seeded with the previous piece's final sentence.
	s1 := "alpha beta gamma ok."
	s2 := "delta epsilon zeta."
	s3 := "eta theta iota kap."
	s4 := "lambda mu nu xi pi."
	doc := Document{
		Name: "big.md",
		Text: "=== Big\n---\n" + s1 + " " + s2 + " " + s3 + " " + s4,
	}
	opts := Options{MaxTokens: 25, OverlapTokens: 10}

	chunks, err := Split(doc, opts)
	if err != nil {
		t.Fatalf("Split() error = %v", err)
	}
	if len(chunks) != 3 {
		t.Fatalf("Split() returned %d chunks, want 3", len(chunks))
	}

	for i, c := range chunks {
		if got := estimateTokens(c.Content); got > opts.MaxTokens {
			t.Errorf("chunk %d estimates %d tokens, budget %d", i, got, opts.MaxTokens)
		}
		if got := c.Path(); got != "Big" {
			t.Errorf("chunk %d path = %q, want Big", i, got)
		}
	}
	if !strings.HasPrefix(chunks[1].Content, s2) {
		t.Errorf("chunk 1 = %q, want overlap prefix %q", chunks[1].Content, s2)
	}
	if !strings.HasPrefix(chunks[2].Content, s3) {
		t.Errorf("chunk 2 = %q, want overlap prefix %q", chunks[2].Content, s3)
	}
	if !strings.HasSuffix(chunks[2].Content, s4) {
		t.Errorf("chunk 2 = %q, want suffix %q", chunks[2].Content, s4)
	}

	seen := map[string]bool{}
	for _, c := range chunks {
		if seen[c.ID] {
			t.Errorf("duplicate chunk ID %s", c.ID)
		}
		seen[c.ID] = true
	}
}

func TestSplit_HardSplitsUnbrokenRun(t *testing.T) {
	t.Parallel()

	doc := Document{Name: "d", Text: "=== Blob\n---\n" + strings.Repeat("x", 200)}
	opts := Options{MaxTokens: 25}

	chunks, err := Split(doc, opts)
	if err != nil {
		t.Fatalf("Split() error = %v", err)
	}
	if len(chunks) != 4 {
		t.Fatalf("Split() returned %d chunks, want 4", len(chunks))
	}
	for i, c := range chunks {
		if utf8.RuneCountInString(c.Content) != 50 {
			t.Errorf("chunk %d has %d runes, want 50", i, utf8.RuneCountInString(c.Content))
		}
	}
}

func TestSplit_Deterministic(t *testing.T) {
	t.Parallel()

	doc := Document{
		Name: "stable.md",
		Text: "=== One\n--- A\nfirst\n--- B\nsecond\n=== Two\n---\nthird",
	}

	a, err := Split(doc, DefaultOptions())
	if err != nil {
		t.Fatalf("Split() error = %v", err)
	}
	b, err := Split(doc, DefaultOptions())
	if err != nil {
		t.Fatalf("Split() error = %v", err)
	}
	if !reflect.DeepEqual(a, b) {
		t.Errorf("repeated Split() differs:\n%#v\n%#v", a, b)
	}
}

func TestSplit_MutationChangesOnlyOneID(t *testing.T) {
	t.Parallel()

	base := "=== A\n---\nfirst part\n---\nsecond part\n---\nthird part"
	edited := "=== A\n---\nfirst part\n---\nsecond part, now edited\n---\nthird part"

	orig, err := Split(Document{Name: "d", Text: base}, Options{})
	if err != nil {
		t.Fatalf("Split() error = %v", err)
	}
	mut, err := Split(Document{Name: "d", Text: edited}, Options{})
	if err != nil {
		t.Fatalf("Split() error = %v", err)
	}
	if len(orig) != 3 || len(mut) != 3 {
		t.Fatalf("chunk counts = %d, %d, want 3, 3", len(orig), len(mut))
	}

	if orig[0].ID != mut[0].ID {
		t.Errorf("untouched chunk 0 changed ID: %s -> %s", orig[0].ID, mut[0].ID)
	}
	if orig[2].ID != mut[2].ID {
		t.Errorf("untouched chunk 2 changed ID: %s -> %s", orig[2].ID, mut[2].ID)
	}
	if orig[1].ID == mut[1].ID {
		t.Errorf("edited chunk kept ID %s", orig[1].ID)
	}
}

func TestChunk_Path(t *testing.T) {
	t.Parallel()

	c := Chunk{SectionPath: []string{"Setup", "Linux"}}
	if got := c.Path(); got != "Setup > Linux" {
		t.Errorf("Path() = %q, want %q", got, "Setup > Linux")
	}
}

func TestEstimateTokens(t *testing.T) {
	t.Parallel()

	tests := []struct {
		text string
		want int
	}{
		{"", 0},
		{"a", 1},
		{"ab", 1},
		{"hello", 2},
		{"héllo", 2},
		{"世界", 1},
		{strings.Repeat("a", 10), 5},
	}

	for _, tt := range tests {
		if got := estimateTokens(tt.text); got != tt.want {
			t.Errorf("estimateTokens(%q) = %d, want %d", tt.text, got, tt.want)
		}
	}
}

func FuzzSplit(f *testing.F) {
	f.Add("=== Setup\n---\nInstall steps...\n=== Usage\n---\nRun the bot...")
	f.Add("plain text with no markup at all")
	f.Add("===\nPromoted\nbody")
	f.Add("=== A\n--- B\n# C\ntext\n\nmore text")
	f.Add(strings.Repeat("word ", 400))

	f.Fuzz(func(t *testing.T, text string) {
		doc := Document{Name: "fuzz.md", Text: text}
		chunks, err := Split(doc, Options{MaxTokens: 40, OverlapTokens: 8})
		if err != nil {
			if !errors.Is(err, ErrEmptyDocument) && !errors.Is(err, ErrUnlabeledSection) {
				t.Fatalf("unexpected error class: %v", err)
			}
			return
		}

		again, err := Split(doc, Options{MaxTokens: 40, OverlapTokens: 8})
		if err != nil {
			t.Fatalf("second Split() error = %v", err)
		}
		if !reflect.DeepEqual(chunks, again) {
			t.Fatal("Split() is not deterministic")
		}

		seen := map[string]bool{}
		for i, c := range chunks {
			if strings.TrimSpace(c.Content) == "" {
				t.Errorf("chunk %d has blank content", i)
			}
			if c.Seq != i {
				t.Errorf("chunk %d has seq %d", i, c.Seq)
			}
			if len(c.SectionPath) == 0 {
				t.Errorf("chunk %d has empty section path", i)
			}
			if seen[c.ID] {
				t.Errorf("duplicate chunk ID %s", c.ID)
			}
			seen[c.ID] = true
		}
	})
}
