package mcp

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/rapport/pkg/logger"
	"github.com/papercomputeco/rapport/pkg/social"
)

type fakeMatcher struct {
	matches []social.Match
	err     error
	got     [3]string
}

func (f *fakeMatcher) ByEmbedding(_ context.Context, userID, interactionType, groupID string) ([]social.Match, error) {
	f.got = [3]string{userID, interactionType, groupID}
	return f.matches, f.err
}

type fakeRecommender struct {
	recs []social.FriendRecommendation
	err  error
}

func (f *fakeRecommender) Recommend(context.Context, string) ([]social.FriendRecommendation, error) {
	return f.recs, f.err
}

func resultText(res *mcp.CallToolResult) string {
	ExpectWithOffset(1, res.Content).To(HaveLen(1))
	text, ok := res.Content[0].(*mcp.TextContent)
	ExpectWithOffset(1, ok).To(BeTrue())
	return text.Text
}

var _ = Describe("Tools", func() {
	var (
		ctx         context.Context
		matcher     *fakeMatcher
		recommender *fakeRecommender
		server      *Server
	)

	BeforeEach(func() {
		ctx = context.Background()
		matcher = &fakeMatcher{}
		recommender = &fakeRecommender{}

		var err error
		server, err = NewServer(Config{
			Matcher:     matcher,
			Recommender: recommender,
			Logger:      logger.Nop(),
		})
		Expect(err).NotTo(HaveOccurred())
	})

	Describe("find_matches", func() {
		It("returns ranked candidates as structured output and JSON text", func() {
			matcher.matches = []social.Match{
				{
					UserID:      "bob",
					Profile:     &social.UserProfile{UserID: "bob", Description: "Chess coach", Interests: []string{"chess"}},
					MatchScore:  0.9,
					MatchReason: "highly similar interests (0.90)",
				},
				{UserID: "carol", MatchScore: 0.4, MatchReason: "somewhat similar interests (0.40)"},
			}

			res, out, err := server.handleFindMatches(ctx, nil, FindMatchesInput{UserID: "alice", GroupID: "g1"})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.IsError).To(BeFalse())
			Expect(matcher.got).To(Equal([3]string{"alice", "chat", "g1"}))

			Expect(out.Count).To(Equal(2))
			Expect(out.Matches[0]).To(Equal(MatchResult{
				UserID:      "bob",
				Score:       0.9,
				Reason:      "highly similar interests (0.90)",
				Description: "Chess coach",
				Interests:   []string{"chess"},
			}))
			Expect(out.Matches[1].Description).To(BeEmpty())

			var decoded FindMatchesOutput
			Expect(json.Unmarshal([]byte(resultText(res)), &decoded)).To(Succeed())
			Expect(decoded).To(Equal(out))
		})

		It("requires a user id", func() {
			res, _, err := server.handleFindMatches(ctx, nil, FindMatchesInput{})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.IsError).To(BeTrue())
			Expect(resultText(res)).To(ContainSubstring("user_id is required"))
		})

		It("reports ranking failures as tool errors", func() {
			matcher.err = social.NotFound("profile", "zed")

			res, _, err := server.handleFindMatches(ctx, nil, FindMatchesInput{UserID: "zed", InteractionType: "coffee"})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.IsError).To(BeTrue())
			Expect(resultText(res)).To(ContainSubstring("profile not found: zed"))
		})
	})

	Describe("recommend_friends", func() {
		It("returns recommendations", func() {
			recommender.recs = []social.FriendRecommendation{
				{UserID: "bob", ConfidenceScore: 0.75, Recommendation: "You talked with bob recently"},
			}

			res, out, err := server.handleRecommendFriends(ctx, nil, RecommendFriendsInput{UserID: "alice"})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.IsError).To(BeFalse())
			Expect(out.Count).To(Equal(1))
			Expect(out.Recommendations[0]).To(Equal(Recommendation{
				UserID:     "bob",
				Confidence: 0.75,
				Reason:     "You talked with bob recently",
			}))
		})

		It("returns an empty list rather than null", func() {
			res, out, err := server.handleRecommendFriends(ctx, nil, RecommendFriendsInput{UserID: "alice"})
			Expect(err).NotTo(HaveOccurred())
			Expect(out.Recommendations).NotTo(BeNil())
			Expect(resultText(res)).To(ContainSubstring(`"recommendations":[]`))
		})

		It("reports failures as tool errors", func() {
			recommender.err = errors.New("boom")

			res, _, err := server.handleRecommendFriends(ctx, nil, RecommendFriendsInput{UserID: "alice"})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.IsError).To(BeTrue())
		})
	})
})
