package cmd

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/charmbracelet/glamour"

	"github.com/koopa0/lore/internal/app"
	"github.com/koopa0/lore/internal/config"
	"github.com/koopa0/lore/internal/retrieval"
)

const askRenderWidth = 80

// runAsk answers one question from the command line and renders the
// outcome for the terminal.
func runAsk() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	logger := newLogger(cfg)

	askFlags := flag.NewFlagSet("ask", flag.ContinueOnError)
	askFlags.SetOutput(os.Stderr)
	baseFlag := askFlags.String("base", "", "knowledge base to query (default: first configured)")
	imagePath := askFlags.String("image", "", "attach an image to the query")
	asJSON := askFlags.Bool("json", false, "print the raw outcome as JSON")
	if err := askFlags.Parse(os.Args[2:]); err != nil {
		return fmt.Errorf("parsing ask flags: %w", err)
	}

	question := strings.TrimSpace(strings.Join(askFlags.Args(), " "))
	if question == "" {
		return fmt.Errorf("a question is required: lore ask [flags] <question>")
	}

	base := *baseFlag
	if base == "" {
		if len(cfg.KnowledgeBases) == 0 {
			return fmt.Errorf("no knowledge bases configured")
		}
		base = cfg.KnowledgeBases[0].Name
	}

	query := retrieval.Query{Text: question}
	if *imagePath != "" {
		img, err := os.ReadFile(*imagePath)
		if err != nil {
			return fmt.Errorf("reading image: %w", err)
		}
		query.Image = img
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := app.Setup(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing engine: %w", err)
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			logger.Warn("shutdown error", "error", closeErr)
		}
	}()

	out, err := a.Service.AnswerContext(ctx, base, query)
	if err != nil {
		return fmt.Errorf("answering: %w", err)
	}

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	fmt.Print(renderMarkdown(renderOutcome(base, out)))
	return nil
}

// renderOutcome lays the outcome out as markdown: retrieved passages
// with their citations, or the base's fallback answer with the reason
// it was served.
func renderOutcome(base string, out *retrieval.Outcome) string {
	var b strings.Builder

	if !out.Grounded {
		b.WriteString(out.Fallback)
		b.WriteString("\n\n")
		fmt.Fprintf(&b, "_No grounded answer from %s (%s)._\n", base, out.Reason)
	} else {
		fmt.Fprintf(&b, "Found %d relevant passages in %s:\n\n", len(out.Sources), base)
		for i, src := range out.Sources {
			heading := src.Document
			if section := strings.Join(src.SectionPath, " > "); section != "" {
				heading += ": " + section
			}
			fmt.Fprintf(&b, "## %d. %s (similarity %.2f)\n\n", i+1, heading, src.Similarity)
			b.WriteString(src.Content)
			b.WriteString("\n\n")
		}
	}

	if out.Degraded {
		b.WriteString("_The attached image could not be used; this answer covers the text only._\n")
	}
	return b.String()
}

// renderMarkdown styles markdown for the terminal. Any renderer trouble
// degrades to the raw text rather than losing the answer.
func renderMarkdown(markdown string) string {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(askRenderWidth),
	)
	if err != nil {
		return markdown
	}
	out, err := r.Render(markdown)
	if err != nil {
		return markdown
	}
	return out
}
