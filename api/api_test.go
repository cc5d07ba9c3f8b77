package api_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/rapport/api"
	"github.com/papercomputeco/rapport/pkg/evolve"
	"github.com/papercomputeco/rapport/pkg/groups"
	"github.com/papercomputeco/rapport/pkg/ledger"
	"github.com/papercomputeco/rapport/pkg/logger"
	"github.com/papercomputeco/rapport/pkg/matching"
	"github.com/papercomputeco/rapport/pkg/recommend"
	"github.com/papercomputeco/rapport/pkg/social"
	"github.com/papercomputeco/rapport/pkg/storage/inmemory"
	testutils "github.com/papercomputeco/rapport/pkg/utils/test"
)

var _ = Describe("Server", func() {
	var (
		store     *inmemory.Driver
		embedder  *testutils.MockEmbedder
		chat      *testutils.MockCompleter
		explainer *testutils.MockCompleter
		server    *api.Server
	)

	do := func(method, path string, body any) (*http.Response, []byte) {
		var reader io.Reader
		switch b := body.(type) {
		case nil:
		case string:
			reader = bytes.NewBufferString(b)
		default:
			raw, err := json.Marshal(b)
			Expect(err).NotTo(HaveOccurred())
			reader = bytes.NewReader(raw)
		}

		req, err := http.NewRequest(method, path, reader)
		Expect(err).NotTo(HaveOccurred())
		if reader != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := server.App().Test(req, -1)
		Expect(err).NotTo(HaveOccurred())
		raw, err := io.ReadAll(resp.Body)
		Expect(err).NotTo(HaveOccurred())
		return resp, raw
	}

	decode := func(raw []byte, v any) {
		ExpectWithOffset(1, json.Unmarshal(raw, v)).To(Succeed(), string(raw))
	}

	saveProfile := func(p social.UserProfile) {
		resp, raw := do(http.MethodPost, "/users/"+p.UserID+"/profile", p)
		ExpectWithOffset(1, resp.StatusCode).To(Equal(http.StatusOK), string(raw))
	}

	BeforeEach(func() {
		store = inmemory.NewDriver()
		embedder = testutils.NewMockEmbedder()
		embedder.Embeddings["Chess player"] = []float32{1, 0, 0}
		embedder.Embeddings["Chess coach"] = []float32{1, 0, 0}
		embedder.Embeddings["Baker"] = []float32{0, 1, 0}
		chat = testutils.NewMockCompleter(`{"reply": "Tell me more!"}`)
		explainer = testutils.NewMockCompleter(`{"explanation": "- You both play chess"}`)
		log := logger.Nop()

		led, err := ledger.New(ledger.Config{
			Store:     store,
			Completer: testutils.NewMockCompleter(`{"summary": "Talked about chess."}`),
			Embedder:  embedder,
			Logger:    log,
		})
		Expect(err).NotTo(HaveOccurred())

		engine, err := evolve.New(evolve.Config{
			Store:     store,
			Ledger:    led,
			Completer: chat,
			Embedder:  embedder,
			Timeout:   time.Second,
			Logger:    log,
		})
		Expect(err).NotTo(HaveOccurred())

		ranker, err := matching.New(matching.Config{
			Store:             store,
			Embedder:          embedder,
			PreferenceWeight:  matching.DefaultPreferenceWeight,
			DescriptionWeight: matching.DefaultDescriptionWeight,
			Dimensions:        3,
			Logger:            log,
		})
		Expect(err).NotTo(HaveOccurred())

		rec, err := recommend.New(recommend.Config{
			Store:     store,
			History:   led,
			Completer: explainer,
			Logger:    log,
		})
		Expect(err).NotTo(HaveOccurred())

		server, err = api.NewServer(api.Config{
			ListenAddr: ":0",
			Profiles:   store,
			Groups:     groups.New(store, log),
			Ledger:     led,
			Evolve:     engine,
			Matching:   ranker,
			Recommend:  rec,
		}, log)
		Expect(err).NotTo(HaveOccurred())

		saveProfile(social.UserProfile{UserID: "alice", Description: "Chess player", Interests: []string{"chess", "hiking"}})
		saveProfile(social.UserProfile{UserID: "bob", Description: "Chess coach", Interests: []string{"chess"}})
		saveProfile(social.UserProfile{UserID: "carol", Description: "Baker", Interests: []string{"baking"}})
	})

	It("requires every service", func() {
		_, err := api.NewServer(api.Config{}, logger.Nop())
		Expect(err).To(MatchError(ContainSubstring("profile store is required")))
	})

	It("answers pings", func() {
		resp, raw := do(http.MethodGet, "/ping", nil)
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		Expect(string(raw)).To(Equal(`"pong"`))
	})

	It("returns 404 for unknown routes", func() {
		resp, raw := do(http.MethodGet, "/nope", nil)
		Expect(resp.StatusCode).To(Equal(http.StatusNotFound))

		var body api.ErrorResponse
		decode(raw, &body)
		Expect(body.Error).NotTo(BeEmpty())
	})

	Describe("profiles", func() {
		It("stores a profile with a derived embedding", func() {
			resp, raw := do(http.MethodGet, "/users/alice/profile", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var p social.UserProfile
			decode(raw, &p)
			Expect(p.Description).To(Equal("Chess player"))
			Expect(p.DescriptionEmbedding).To(Equal([]float32{1, 0, 0}))
			Expect(p.Interests).To(Equal([]string{"chess", "hiking"}))
		})

		It("acknowledges writes with a status body", func() {
			resp, raw := do(http.MethodPost, "/users/dave/profile", social.UserProfile{Description: "Runner"})
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(raw).To(MatchJSON(`{"status": "success"}`))
		})

		It("returns 404 for unknown users", func() {
			resp, raw := do(http.MethodGet, "/users/zed/profile", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))

			var body api.ErrorResponse
			decode(raw, &body)
			Expect(body.Error).To(ContainSubstring("zed"))
		})

		It("rejects a body naming another user", func() {
			resp, raw := do(http.MethodPost, "/users/alice/profile", social.UserProfile{UserID: "bob"})
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))

			var body api.ErrorResponse
			decode(raw, &body)
			Expect(body.Fields).To(HaveKeyWithValue("user_id", "does not match path"))
		})

		It("rejects unknown groups with field detail", func() {
			resp, raw := do(http.MethodPost, "/users/alice/profile", social.UserProfile{
				Description: "Chess player",
				Groups:      []social.Group{{ID: "ghost"}},
			})
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))

			var body api.ErrorResponse
			decode(raw, &body)
			Expect(body.Fields).To(HaveKeyWithValue("group_id", "unknown group"))
		})

		It("rejects malformed JSON", func() {
			resp, raw := do(http.MethodPost, "/users/alice/profile", `{"description": `)
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))

			var body api.ErrorResponse
			decode(raw, &body)
			Expect(body.Fields).To(HaveKeyWithValue("body", "invalid JSON"))
		})
	})

	Describe("groups", func() {
		var group social.Group

		BeforeEach(func() {
			resp, raw := do(http.MethodPost, "/groups", map[string]string{"name": "Chess Club", "type": "club"})
			Expect(resp.StatusCode).To(Equal(http.StatusCreated), string(raw))
			decode(raw, &group)
			Expect(group.ID).NotTo(BeEmpty())
		})

		It("validates new groups", func() {
			resp, raw := do(http.MethodPost, "/groups", map[string]string{"type": "guild"})
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))

			var body api.ErrorResponse
			decode(raw, &body)
			Expect(body.Fields).To(HaveKeyWithValue("name", "required"))
			Expect(body.Fields).To(HaveKeyWithValue("type", "oneof=work friends club other"))
		})

		It("joins members and lists them", func() {
			resp, _ := do(http.MethodPost, "/groups/"+group.ID+"/members", map[string]string{"user_id": "bob"})
			Expect(resp.StatusCode).To(Equal(http.StatusNoContent))
			resp, _ = do(http.MethodPost, "/groups/"+group.ID+"/members", map[string]string{"user_id": "alice"})
			Expect(resp.StatusCode).To(Equal(http.StatusNoContent))

			resp, raw := do(http.MethodGet, "/groups/"+group.ID+"/members", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(raw).To(MatchJSON(`["alice", "bob"]`))

			resp, raw = do(http.MethodGet, "/users/bob/groups", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			var gs []social.Group
			decode(raw, &gs)
			Expect(gs).To(Equal([]social.Group{group}))
		})

		It("lists no groups as an empty array", func() {
			resp, raw := do(http.MethodGet, "/users/carol/groups", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(raw).To(MatchJSON(`[]`))
		})

		It("returns the group by id", func() {
			resp, raw := do(http.MethodGet, "/groups/"+group.ID, nil)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			var got social.Group
			decode(raw, &got)
			Expect(got).To(Equal(group))
		})

		It("maps unknown groups to 400 on membership routes", func() {
			resp, raw := do(http.MethodGet, "/groups/ghost/members", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			var body api.ErrorResponse
			decode(raw, &body)
			Expect(body.Fields).To(HaveKeyWithValue("group_id", "unknown group"))
		})
	})

	Describe("chat", func() {
		It("returns the reply and history from the description chat", func() {
			chat.Default = `{"reply": "Chess and hiking, nice!", "updated_description": "Chess player who hikes"}`

			resp, raw := do(http.MethodPost, "/chat", social.ChatMessage{SenderID: "alice", Content: "I also hike"})
			Expect(resp.StatusCode).To(Equal(http.StatusOK), string(raw))

			var body social.ChatResponse
			decode(raw, &body)
			Expect(body.Response).To(Equal("Chess and hiking, nice!"))
			Expect(body.ConversationHistory).To(HaveLen(2))
			Expect(body.UpdatedUserDescription).To(HaveValue(Equal("Chess player who hikes")))
			Expect(body.Warning).To(BeEmpty())
		})

		It("answers peer chat in the receiver's persona", func() {
			resp, raw := do(http.MethodPost, "/chat", social.ChatMessage{SenderID: "alice", ReceiverID: "bob", Content: "Fancy a game?"})
			Expect(resp.StatusCode).To(Equal(http.StatusOK), string(raw))

			var body social.ChatResponse
			decode(raw, &body)
			Expect(body.UpdatedUserDescription).To(BeNil())
			Expect(raw).NotTo(ContainSubstring("updated_user_description"))
		})

		It("validates required fields", func() {
			resp, raw := do(http.MethodPost, "/chat", social.ChatMessage{Content: "hi"})
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))

			var body api.ErrorResponse
			decode(raw, &body)
			Expect(body.Fields).To(HaveKeyWithValue("sender_id", "required"))
		})

		It("maps completion failures to a retryable 502", func() {
			chat.SetFail(true)

			resp, raw := do(http.MethodPost, "/chat", social.ChatMessage{SenderID: "alice", Content: "hello"})
			Expect(resp.StatusCode).To(Equal(http.StatusBadGateway))

			var body api.ErrorResponse
			decode(raw, &body)
			Expect(body.Retryable).To(BeTrue())
		})

		It("reports a failed revision as a warning", func() {
			chat.Default = `{"reply": "Noted.", "updated_description": "Grandmaster"}`
			embedder.FailOn = "Grandmaster"

			resp, raw := do(http.MethodPost, "/chat", social.ChatMessage{SenderID: "alice", Content: "I am a GM"})
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var body social.ChatResponse
			decode(raw, &body)
			Expect(body.Warning).To(ContainSubstring("partial update"))
			Expect(body.UpdatedUserDescription).To(BeNil())
		})
	})

	Describe("interactions", func() {
		It("lists the user's records with fresh summaries", func() {
			do(http.MethodPost, "/chat", social.ChatMessage{SenderID: "alice", ReceiverID: "bob", Content: "Fancy a game?"})

			resp, raw := do(http.MethodGet, "/users/bob/interactions", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var recs []social.Interaction
			decode(raw, &recs)
			Expect(recs).To(HaveLen(1))
			Expect(recs[0].Messages).To(HaveLen(2))
			Expect(recs[0].Summary).To(Equal("Talked about chess."))
		})

		It("returns an empty array without history", func() {
			resp, raw := do(http.MethodGet, "/users/carol/interactions?group_id=", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(raw).To(MatchJSON(`[]`))
		})
	})

	Describe("matchmaking", func() {
		It("ranks by preferences and description", func() {
			resp, raw := do(http.MethodPost, "/matchmaking/request", social.InteractionRequest{
				UserID:          "alice",
				InteractionType: "coffee",
				Preferences:     []string{"chess"},
			})
			Expect(resp.StatusCode).To(Equal(http.StatusOK), string(raw))

			var matches []social.Match
			decode(raw, &matches)
			Expect(matches).To(HaveLen(2))
			Expect(matches[0].UserID).To(Equal("bob"))
			Expect(matches[0].MatchScore).To(BeNumerically("~", 1.0, 1e-6))
			Expect(matches[0].InteractionType).To(Equal("coffee"))
			Expect(matches[1].UserID).To(Equal("carol"))
		})

		It("validates the request body", func() {
			resp, raw := do(http.MethodPost, "/matchmaking/request", social.InteractionRequest{UserID: "alice"})
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))

			var body api.ErrorResponse
			decode(raw, &body)
			Expect(body.Fields).To(HaveKeyWithValue("interaction_type", "required"))
		})

		It("ranks by embedding alone", func() {
			resp, raw := do(http.MethodGet, "/matchmaking/embeddings/alice?interaction_type=coffee", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusOK), string(raw))

			var matches []social.Match
			decode(raw, &matches)
			Expect(matches[0].UserID).To(Equal("bob"))
			Expect(matches[0].MatchReason).To(Equal("highly similar interests (1.00)"))
		})

		It("requires an interaction type for embedding matches", func() {
			resp, _ := do(http.MethodGet, "/matchmaking/embeddings/alice", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})

		It("rejects unknown target groups", func() {
			resp, _ := do(http.MethodPost, "/matchmaking/request", social.InteractionRequest{
				UserID:          "alice",
				InteractionType: "coffee",
				TargetGroupID:   "ghost",
			})
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})
	})

	Describe("descriptions", func() {
		It("sets and reads the description", func() {
			resp, raw := do(http.MethodPost, "/users/carol/description", map[string]string{"description": "Chess coach"})
			Expect(resp.StatusCode).To(Equal(http.StatusOK), string(raw))

			resp, raw = do(http.MethodGet, "/users/carol/description", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var d social.UserDescription
			decode(raw, &d)
			Expect(d.Description).To(Equal("Chess coach"))
			Expect(d.Embedding).To(Equal([]float32{1, 0, 0}))
		})

		It("requires a description", func() {
			resp, _ := do(http.MethodPost, "/users/carol/description", map[string]string{})
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})
	})

	Describe("friends", func() {
		BeforeEach(func() {
			do(http.MethodPost, "/chat", social.ChatMessage{SenderID: "alice", ReceiverID: "bob", Content: "Fancy a game?"})
			do(http.MethodPost, "/chat", social.ChatMessage{SenderID: "alice", ReceiverID: "carol", Content: "Any bread left?"})
		})

		It("adds and lists friends", func() {
			resp, _ := do(http.MethodPost, "/users/alice/friends", map[string]string{"friend_id": "bob"})
			Expect(resp.StatusCode).To(Equal(http.StatusNoContent))

			resp, raw := do(http.MethodGet, "/users/bob/friends", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var friends []social.Friend
			decode(raw, &friends)
			Expect(friends).To(HaveLen(1))
			Expect(friends[0].UserID).To(Equal("alice"))
		})

		It("serves recommendations on both paths", func() {
			resp, raw := do(http.MethodGet, "/users/alice/friend-recommendations", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			var recs []social.FriendRecommendation
			decode(raw, &recs)
			Expect(recs).To(HaveLen(2))
			Expect(recs[0].UserID).To(Equal("bob"))

			_, alias := do(http.MethodGet, "/users/alice/recommendations", nil)
			Expect(alias).To(MatchJSON(raw))
		})

		It("excludes friends from recommendations", func() {
			do(http.MethodPost, "/users/alice/friends", map[string]string{"friend_id": "bob"})

			_, raw := do(http.MethodGet, "/users/alice/friend-recommendations", nil)
			var recs []social.FriendRecommendation
			decode(raw, &recs)
			Expect(recs).To(HaveLen(1))
			Expect(recs[0].UserID).To(Equal("carol"))
		})

		It("explains a recommendation", func() {
			resp, raw := do(http.MethodGet, "/users/alice/friend-recommendations/bob/explanation", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusOK), string(raw))

			var exp recommend.Explanation
			decode(raw, &exp)
			Expect(exp.Explanation).To(Equal("- You both play chess"))
			Expect(exp.ConfidenceScore).To(BeNumerically(">", 0))
		})

		It("rejects befriending oneself", func() {
			resp, _ := do(http.MethodPost, "/users/alice/friends", map[string]string{"friend_id": "alice"})
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})
	})
})
