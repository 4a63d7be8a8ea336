// Package chunk splits knowledge-base documents into addressable chunks.
//
// Documents use a two-level markup: lines beginning with === open a new
// top-level section (the rest of the line is the section label), and lines
// beginning with --- open a new subsection within the section. Each
// subsection becomes one chunk unless it exceeds the token budget, in which
// case it is split further on paragraph and sentence boundaries.
//
// Splitting is deterministic: byte-identical input produces byte-identical
// chunk IDs and content, which is what makes re-indexing idempotent.
package chunk

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Sentinel errors for malformed documents. Both abort indexing of the
// offending document only; other documents in a batch proceed.
var (
	// ErrEmptyDocument indicates the document contains no content.
	ErrEmptyDocument = errors.New("document is empty")

	// ErrUnlabeledSection indicates a bare === delimiter with no content
	// from which a section label could be derived.
	ErrUnlabeledSection = errors.New("section has no label")
)

// Default splitting limits. MaxTokens matches the embedding provider's
// comfortable input size; overlap keeps context across forced splits.
const (
	DefaultMaxTokens     = 500
	DefaultOverlapTokens = 50
)

// Document is one knowledge-base source file.
type Document struct {
	Name string
	Text string
}

// Chunk is the atomic retrievable unit.
type Chunk struct {
	// ID is stable across runs: a hash of the document name, section path,
	// subsection position, and content. Identical input bytes reproduce
	// identical IDs; editing a subsection produces a new ID so the stale
	// one can be deleted from the store.
	ID string

	// Document is the source document name.
	Document string

	// SectionPath is the ordered heading labels, major to minor.
	SectionPath []string

	// Seq is the chunk's position in document emission order.
	Seq int

	// Content is the chunk text. Never empty.
	Content string
}

// Path renders the section path for logs and source attribution.
func (c Chunk) Path() string {
	return strings.Join(c.SectionPath, " > ")
}

// Options controls splitting. The zero value uses DefaultMaxTokens and no
// overlap.
type Options struct {
	// MaxTokens is the largest estimated token count for a single chunk.
	MaxTokens int

	// OverlapTokens is carried from the tail of one forced-split piece into
	// the head of the next. Zero disables overlap.
	OverlapTokens int
}

// DefaultOptions returns the limits used by the indexing pipeline when the
// operator has not configured their own.
func DefaultOptions() Options {
	return Options{MaxTokens: DefaultMaxTokens, OverlapTokens: DefaultOverlapTokens}
}

// Split partitions a document into ordered chunks.
//
// Sections come from === delimiter lines; subsections from --- lines.
// A label on the delimiter line ("=== Setup") names the section; a bare
// delimiter promotes the first non-blank body line instead. Subsections may
// also be labeled by a leading markdown heading (# through ###). Blank
// subsections are discarded. Oversized subsections are split on paragraph
// then sentence boundaries; every piece shares the section path and gets an
// incrementing index in its ID.
func Split(doc Document, opts Options) ([]Chunk, error) {
	if strings.TrimSpace(doc.Text) == "" {
		return nil, fmt.Errorf("chunking %s: %w", doc.Name, ErrEmptyDocument)
	}

	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	overlap := opts.OverlapTokens
	if overlap < 0 {
		overlap = 0
	}
	// Overlap must leave room for new content in every piece.
	if overlap > maxTokens/2 {
		overlap = maxTokens / 2
	}

	sections, err := splitSections(doc)
	if err != nil {
		return nil, err
	}

	var chunks []Chunk
	seq := 0
	subIdx := 0
	for _, sec := range sections {
		for _, sub := range splitSubsections(sec.body) {
			content := strings.TrimSpace(sub.text)
			if content == "" {
				subIdx++
				continue
			}

			path := []string{sec.label}
			if sub.label != "" {
				path = append(path, sub.label)
			}

			for splitIdx, piece := range splitOversized(content, maxTokens, overlap) {
				chunks = append(chunks, Chunk{
					ID:          chunkID(doc.Name, path, subIdx, splitIdx, piece),
					Document:    doc.Name,
					SectionPath: path,
					Seq:         seq,
					Content:     piece,
				})
				seq++
			}
			subIdx++
		}
	}
	return chunks, nil
}

// section is one major division of a document.
type section struct {
	label string
	body  []string
}

// subsection is one minor division of a section.
type subsection struct {
	label string
	text  string
}

// splitSections cuts the document at === lines. Content before the first
// delimiter forms a preamble section labeled by its first non-blank line.
func splitSections(doc Document) ([]section, error) {
	lines := strings.Split(doc.Text, "\n")

	var sections []section
	cur := section{}
	inPreamble := true

	flush := func() error {
		if inPreamble {
			inPreamble = false
			if blankAll(cur.body) {
				cur = section{}
				return nil
			}
		}
		if cur.label == "" {
			label, body := promoteLabel(cur.body)
			if label == "" {
				return fmt.Errorf("chunking %s: %w", doc.Name, ErrUnlabeledSection)
			}
			cur.label = label
			cur.body = body
		}
		sections = append(sections, cur)
		cur = section{}
		return nil
	}

	for _, line := range lines {
		if label, ok := majorDelimiter(line); ok {
			if err := flush(); err != nil {
				return nil, err
			}
			inPreamble = false
			cur = section{label: label}
			continue
		}
		cur.body = append(cur.body, line)
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return sections, nil
}

// blankAll reports whether every line is whitespace.
func blankAll(lines []string) bool {
	for _, l := range lines {
		if strings.TrimSpace(l) != "" {
			return false
		}
	}
	return true
}

// promoteLabel derives a label from the first non-blank line, stripping a
// markdown heading prefix. The line is consumed unless it is the only
// content, in which case it doubles as both label and body.
func promoteLabel(lines []string) (string, []string) {
	for i, l := range lines {
		t := strings.TrimSpace(l)
		if t == "" {
			continue
		}
		label := strings.TrimSpace(strings.TrimLeft(t, "#"))
		if label == "" {
			return "", lines
		}
		rest := lines[i+1:]
		if blankAll(rest) {
			return label, lines[i:]
		}
		return label, rest
	}
	return "", lines
}

// majorDelimiter reports whether line opens a new section, and the label on
// the delimiter line if any.
func majorDelimiter(line string) (string, bool) {
	t := strings.TrimSpace(line)
	if !strings.HasPrefix(t, "===") {
		return "", false
	}
	return strings.TrimSpace(strings.TrimLeft(t, "=")), true
}

// minorDelimiter reports whether line opens a new subsection.
func minorDelimiter(line string) (string, bool) {
	t := strings.TrimSpace(line)
	if !strings.HasPrefix(t, "---") {
		return "", false
	}
	return strings.TrimSpace(strings.TrimLeft(t, "-")), true
}

// splitSubsections cuts a section body at --- lines. A label on the
// delimiter line wins; otherwise a leading #-heading is promoted.
func splitSubsections(body []string) []subsection {
	var subs []subsection
	cur := subsection{}
	var curLines []string

	flush := func() {
		if cur.label == "" {
			cur.label, curLines = headingLabel(curLines)
		}
		cur.text = strings.Join(curLines, "\n")
		subs = append(subs, cur)
		cur = subsection{}
		curLines = nil
	}

	for _, line := range body {
		if label, ok := minorDelimiter(line); ok {
			flush()
			cur = subsection{label: label}
			continue
		}
		curLines = append(curLines, line)
	}
	flush()
	return subs
}

// headingLabel promotes a leading markdown heading (#, ##, ###) to a
// subsection label, consuming the line when more content follows.
func headingLabel(lines []string) (string, []string) {
	for i, l := range lines {
		t := strings.TrimSpace(l)
		if t == "" {
			continue
		}
		n := 0
		for n < len(t) && t[n] == '#' {
			n++
		}
		if n == 0 || n > 3 || n == len(t) || t[n] != ' ' {
			return "", lines
		}
		label := strings.TrimSpace(t[n:])
		rest := lines[i+1:]
		if blankAll(rest) {
			return label, lines[i:]
		}
		return label, rest
	}
	return "", lines
}

// splitOversized returns content unchanged when it fits the budget, and
// otherwise packs paragraphs (then sentences) into pieces within it.
// Each piece after the first starts with up to overlap tokens of trailing
// sentences from the previous piece.
func splitOversized(content string, maxTokens, overlap int) []string {
	if estimateTokens(content) <= maxTokens {
		return []string{content}
	}

	var units []string
	for _, para := range strings.Split(content, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		if estimateTokens(para) <= maxTokens {
			units = append(units, para)
			continue
		}
		units = append(units, splitSentences(para, maxTokens)...)
	}

	var pieces []string
	var cur []string
	curTokens := 0

	for _, u := range units {
		cost := joinCost(u, len(cur))
		if curTokens+cost > maxTokens && len(cur) > 0 {
			pieces = append(pieces, strings.Join(cur, "\n\n"))
			cur = tailUnits(cur, overlap)
			// Shrink the carried overlap until the new unit fits.
			for len(cur) > 0 && unitTokens(cur)+joinCost(u, len(cur)) > maxTokens {
				cur = cur[1:]
			}
			curTokens = unitTokens(cur)
			cost = joinCost(u, len(cur))
		}
		cur = append(cur, u)
		curTokens += cost
	}
	if len(cur) > 0 {
		pieces = append(pieces, strings.Join(cur, "\n\n"))
	}
	return pieces
}

// joinCost is the token cost of appending a unit to a piece already holding
// n units, counting the paragraph break that joins them.
func joinCost(u string, n int) int {
	cost := estimateTokens(u)
	if n > 0 {
		cost++
	}
	return cost
}

// tailUnits returns the trailing units whose combined estimate stays within
// budget, preserving order.
func tailUnits(units []string, budget int) []string {
	total := 0
	i := len(units)
	for i > 0 {
		t := estimateTokens(units[i-1])
		if total+t > budget {
			break
		}
		total += t
		i--
	}
	// Copy so the overlap slice does not alias the flushed piece.
	tail := make([]string, len(units)-i)
	copy(tail, units[i:])
	return tail
}

// unitTokens is the token estimate of a piece built from units, including
// the breaks between them.
func unitTokens(units []string) int {
	total := 0
	for i, u := range units {
		total += joinCost(u, i)
	}
	return total
}

// sentenceEnders terminate a sentence when followed by whitespace or EOF.
var sentenceEnders = map[rune]bool{
	'.': true, '!': true, '?': true,
	'。': true, '！': true, '？': true,
}

// splitSentences cuts text at sentence boundaries, hard-splitting any
// single sentence that still exceeds the budget.
func splitSentences(text string, maxTokens int) []string {
	var sentences []string
	var b strings.Builder
	runes := []rune(text)

	for i, r := range runes {
		b.WriteRune(r)
		atEnd := i == len(runes)-1
		if r == '\n' || (sentenceEnders[r] && (atEnd || runes[i+1] == ' ' || runes[i+1] == '\n')) {
			s := strings.TrimSpace(b.String())
			if s != "" {
				sentences = append(sentences, s)
			}
			b.Reset()
		}
	}
	if s := strings.TrimSpace(b.String()); s != "" {
		sentences = append(sentences, s)
	}

	var out []string
	maxRunes := maxTokens * 2
	for _, s := range sentences {
		if estimateTokens(s) <= maxTokens {
			out = append(out, s)
			continue
		}
		r := []rune(s)
		for len(r) > 0 {
			n := min(len(r), maxRunes)
			if piece := strings.TrimSpace(string(r[:n])); piece != "" {
				out = append(out, piece)
			}
			r = r[n:]
		}
	}
	return out
}

// estimateTokens approximates token count as half the rune count, minimum
// one for non-empty text. Conservative for CJK, close enough for English.
func estimateTokens(text string) int {
	n := utf8.RuneCountInString(text) / 2
	if n == 0 && text != "" {
		return 1
	}
	return n
}

// idSeparator keeps hash components from bleeding into each other.
var idSeparator = []byte{0x1f}

// chunkID derives the stable identifier from the document name, section
// path, document-wide subsection position, split index, and content. The
// position keeps IDs distinct when identically labeled sections carry
// identical content.
func chunkID(doc string, path []string, subIdx, splitIdx int, content string) string {
	h := sha256.New()
	_, _ = io.WriteString(h, doc)
	for _, p := range path {
		_, _ = h.Write(idSeparator)
		_, _ = io.WriteString(h, p)
	}
	_, _ = h.Write(idSeparator)
	_, _ = io.WriteString(h, strconv.Itoa(subIdx)+":"+strconv.Itoa(splitIdx))
	_, _ = h.Write(idSeparator)
	_, _ = io.WriteString(h, content)
	return "ck_" + hex.EncodeToString(h.Sum(nil))[:32]
}
