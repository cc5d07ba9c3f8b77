// Package apitest assembles an in-memory rapport API for tests of code that
// talks to the server over HTTP.
package apitest

import (
	"net/http/httptest"

	"github.com/gofiber/adaptor/v2"

	"github.com/papercomputeco/rapport/api"
	"github.com/papercomputeco/rapport/pkg/evolve"
	"github.com/papercomputeco/rapport/pkg/groups"
	"github.com/papercomputeco/rapport/pkg/ledger"
	"github.com/papercomputeco/rapport/pkg/logger"
	"github.com/papercomputeco/rapport/pkg/matching"
	"github.com/papercomputeco/rapport/pkg/recommend"
	"github.com/papercomputeco/rapport/pkg/storage/inmemory"
	testutils "github.com/papercomputeco/rapport/pkg/utils/test"
)

// Stack is a fully wired server over an in-memory store with mock
// capabilities. Tests may adjust the mocks between requests.
type Stack struct {
	Store     *inmemory.Driver
	Embedder  *testutils.MockEmbedder
	Chat      *testutils.MockCompleter
	Summaries *testutils.MockCompleter
	Explainer *testutils.MockCompleter
	Server    *api.Server
}

// New builds a Stack whose vectors have three dimensions. It panics on
// wiring errors, which only a broken build can cause.
func New() *Stack {
	s := &Stack{
		Store:     inmemory.NewDriver(),
		Embedder:  testutils.NewMockEmbedder(),
		Chat:      testutils.NewMockCompleter(`{"reply": "Tell me more!"}`),
		Summaries: testutils.NewMockCompleter(`{"summary": "They said hello."}`),
		Explainer: testutils.NewMockCompleter(`{"explanation": "- You have a lot in common"}`),
	}
	log := logger.Nop()

	led, err := ledger.New(ledger.Config{
		Store:     s.Store,
		Completer: s.Summaries,
		Embedder:  s.Embedder,
		Logger:    log,
	})
	must(err)

	engine, err := evolve.New(evolve.Config{
		Store:     s.Store,
		Ledger:    led,
		Completer: s.Chat,
		Embedder:  s.Embedder,
		Logger:    log,
	})
	must(err)

	ranker, err := matching.New(matching.Config{
		Store:             s.Store,
		Embedder:          s.Embedder,
		PreferenceWeight:  matching.DefaultPreferenceWeight,
		DescriptionWeight: matching.DefaultDescriptionWeight,
		Dimensions:        3,
		Logger:            log,
	})
	must(err)

	rec, err := recommend.New(recommend.Config{
		Store:     s.Store,
		History:   led,
		Completer: s.Explainer,
		Logger:    log,
	})
	must(err)

	s.Server, err = api.NewServer(api.Config{
		ListenAddr: ":0",
		Profiles:   s.Store,
		Groups:     groups.New(s.Store, log),
		Ledger:     led,
		Evolve:     engine,
		Matching:   ranker,
		Recommend:  rec,
	}, log)
	must(err)

	return s
}

// Serve exposes the stack on a local HTTP listener. Close the returned
// server when done.
func (s *Stack) Serve() *httptest.Server {
	return httptest.NewServer(adaptor.FiberApp(s.Server.App()))
}

func must(err error) {
	if err != nil {
		panic(err)
	}
}
