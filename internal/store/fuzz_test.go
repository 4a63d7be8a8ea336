//go:build integration

package store_test

import (
	"context"
	"strings"
	"testing"

	"github.com/koopa0/lore/internal/log"
	"github.com/koopa0/lore/internal/store"
	"github.com/koopa0/lore/internal/testutil"
)

// FuzzDelete_SQLInjection feeds hostile chunk IDs through Delete. The
// driver parameterizes every query, so no input may reach the SQL text.
func FuzzDelete_SQLInjection(f *testing.F) {
	f.Add("'; DROP TABLE chunks; --")
	f.Add("1' OR '1'='1")
	f.Add("ck' UNION SELECT * FROM chunks --")
	f.Add("\x00malicious")
	f.Add("'; SELECT pg_sleep(10); --")
	f.Add("\\'; COPY chunks TO '/tmp/pwned'; --")
	f.Add("' OR 1=1--")
	f.Add("admin'--")
	f.Add("1; DROP TABLE chunks")

	f.Fuzz(func(t *testing.T, hostileID string) {
		if hostileID == "" {
			t.Skip("empty string is valid input")
		}

		s := testutil.SetupPostgres(t)
		pg, err := store.NewPostgres(s.Pool, log.NewNop())
		if err != nil {
			t.Fatalf("NewPostgres() error = %v", err)
		}
		ctx := context.Background()

		err = pg.Delete(ctx, "kb", []string{hostileID})

		// A driver error is acceptable; evidence the input reached the
		// SQL text is not.
		if err != nil {
			msg := strings.ToLower(err.Error())
			if strings.Contains(msg, "syntax error") ||
				strings.Contains(msg, "unterminated") ||
				strings.Contains(msg, "drop table") ||
				strings.Contains(msg, "union select") {
				t.Fatalf("input reached SQL text: %q caused %v", hostileID, err)
			}
		}

		var exists bool
		err = s.Pool.QueryRow(ctx,
			"SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name = 'chunks')",
		).Scan(&exists)
		if err != nil {
			t.Fatalf("checking chunks table: %v", err)
		}
		if !exists {
			t.Fatalf("chunks table dropped by input %q", hostileID)
		}
	})
}
