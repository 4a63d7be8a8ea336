// Package mcp implements a Model Context Protocol (MCP) server.
//
// The MCP server exposes the retrieval engine to MCP clients — agent
// runtimes, editors, and other LLM tooling — so external models can
// ground their answers in the indexed knowledge bases through a
// standardized protocol instead of a bespoke API.
//
// # Architecture
//
//	MCP Client (agent runtime, editor, ...)
//	     |
//	     | (MCP protocol over stdio)
//	     v
//	Server (MCP SDK)
//	     |
//	     +-- retrieve_context handler
//	     +-- reindex_base handler
//	     +-- list_bases handler
//	     |
//	     v
//	app.Service (orchestrator + indexer)
//
// # Supported Tools
//
//   - retrieve_context: answer a query against a knowledge base; the
//     result is the full outcome, fallback prompt included, so the
//     calling model always has something to work with
//   - reindex_base: re-index one base from its configured sources
//   - list_bases: enumerate the configured knowledge bases
//
// # Tool Handler Pattern
//
// Tool handlers follow Go's net/http.Handler pattern:
//
//  1. Define an input struct with JSON tags and descriptions
//  2. Infer its JSON schema using jsonschema-go
//  3. Create mcp.Tool with name, description, and schema
//  4. Register the handler method with mcp.AddTool
//  5. Build responses directly in the handler — no conversion layer
//
// # Error Split
//
// Caller-addressable failures (unknown base, empty query, an index run
// already in flight) come back as tool results with IsError set, so the
// calling model can read the message and correct itself. Everything
// else is a system error and propagates through the protocol layer.
package mcp
