package config

import "time"

// FetchConfig bounds web source crawling during indexing.
// Knowledge bases with a source_url are crawled under these limits.
type FetchConfig struct {
	// Parallelism is max concurrent requests per domain.
	Parallelism int `mapstructure:"parallelism" json:"parallelism"`

	// Delay is the pause between requests to the same domain.
	Delay time.Duration `mapstructure:"delay" json:"delay"`

	// MaxDepth caps how many links deep a crawl follows from the
	// start URL. The start page itself is depth 1.
	MaxDepth int `mapstructure:"max_depth" json:"max_depth"`

	// Timeout bounds a single page request.
	Timeout time.Duration `mapstructure:"timeout" json:"timeout"`

	// MaxPages caps how many pages one crawl may visit.
	MaxPages int `mapstructure:"max_pages" json:"max_pages"`
}
