package retrieval

import (
	"context"
	"time"

	"github.com/koopa0/lore/internal/embed"
	"github.com/koopa0/lore/internal/log"
)

// DefaultCaptionTimeout bounds one image caption call.
const DefaultCaptionTimeout = 30 * time.Second

// Query is one retrieval request. Image is optional.
type Query struct {
	Text  string
	Image []byte
}

// Fuser turns a query into the single text that gets embedded. Images are
// captioned and the caption appended to the text; averaging vectors from
// different embedding spaces is not a thing this does.
type Fuser struct {
	captioner embed.Captioner
	timeout   time.Duration
	logger    log.Logger
}

// NewFuser wires a fuser. captioner may be nil when no vision model is
// configured; image queries then degrade to text-only.
func NewFuser(captioner embed.Captioner, timeout time.Duration, logger log.Logger) *Fuser {
	if timeout <= 0 {
		timeout = DefaultCaptionTimeout
	}
	return &Fuser{captioner: captioner, timeout: timeout, logger: logger}
}

// Fuse returns the text to embed for q and whether the answer is degraded.
// A caption failure never fails the query: the image is dropped, the
// warning logged, and the text proceeds alone.
func (f *Fuser) Fuse(ctx context.Context, q Query) (string, bool) {
	if len(q.Image) == 0 {
		return q.Text, false
	}
	if f.captioner == nil {
		f.logger.Warn("image dropped, no captioner configured")
		return q.Text, true
	}

	cctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	caption, err := f.captioner.Caption(cctx, q.Image)
	if err != nil {
		f.logger.Warn("image caption failed, answering from text only", "error", err)
		return q.Text, true
	}
	return q.Text + "\n" + caption, false
}
