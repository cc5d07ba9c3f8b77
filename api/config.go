// Package api provides the HTTP API server for profiles, groups, chat,
// interactions, matchmaking, and friend recommendations.
package api

import (
	"net/http"

	"github.com/papercomputeco/rapport/pkg/evolve"
	"github.com/papercomputeco/rapport/pkg/groups"
	"github.com/papercomputeco/rapport/pkg/ledger"
	"github.com/papercomputeco/rapport/pkg/matching"
	"github.com/papercomputeco/rapport/pkg/recommend"
	"github.com/papercomputeco/rapport/pkg/storage"
)

// Config is the API server configuration.
type Config struct {
	// ListenAddr is the address to listen on (e.g., ":8081")
	ListenAddr string

	// Profiles serves profile reads.
	Profiles storage.ProfileStore

	Groups    *groups.Index
	Ledger    *ledger.Ledger
	Evolve    *evolve.Engine
	Matching  *matching.Ranker
	Recommend *recommend.Recommender

	// MCP is mounted at /mcp when set.
	MCP http.Handler
}
