package cmd

import (
	"fmt"
	"runtime"
)

// Version is injected at build time:
//
//	go build -ldflags "-X github.com/koopa0/lore/cmd.Version=v1.2.3"
var Version = "development"

func runVersion() {
	fmt.Printf("lore %s (%s %s/%s)\n", Version, runtime.Version(), runtime.GOOS, runtime.GOARCH)
}
