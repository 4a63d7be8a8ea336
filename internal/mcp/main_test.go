package mcp

import (
	"testing"

	"go.uber.org/goleak"
)

// TestMain enables goroutine leak detection for all tests in the mcp package.
// Tool handlers share the service's worker pools, so a leaked goroutine here
// usually means a handler dropped a context.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}
