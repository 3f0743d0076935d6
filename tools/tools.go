//go:build tools

// Package tools documents development tool dependencies.
// They are installed with `go install` and kept out of go.mod since nothing links them.
package tools

// Development tools (install via `go install`):
//
// mockgen - regenerates internal/mocks and internal/core/cache_mock.go
//   Install: go install go.uber.org/mock/mockgen@v0.6.0
//   Version: v0.6.0 (matches go.uber.org/mock in go.mod)
//   Run: go generate ./internal/mocks
//
// Air - live reload for cmd/tipster-web during local development
//   Install: go install github.com/air-verse/air@v1.63.0
//   Docs: https://github.com/air-verse/air
