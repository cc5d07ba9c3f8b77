package client_test

import (
	"context"
	"errors"
	"net/http"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/rapport/pkg/client"
	"github.com/papercomputeco/rapport/pkg/social"
	testutils "github.com/papercomputeco/rapport/pkg/utils/test"
	"github.com/papercomputeco/rapport/pkg/utils/test/apitest"
)

var _ = Describe("Client", func() {
	var (
		ctx  context.Context
		chat *testutils.MockCompleter
		c    *client.Client
	)

	BeforeEach(func() {
		ctx = context.Background()
		stack := apitest.New()
		stack.Embedder.Embeddings["Chess player"] = []float32{1, 0, 0}
		stack.Embedder.Embeddings["Chess coach"] = []float32{1, 0, 0}
		stack.Chat.Default = `{"reply": "Hello!"}`
		stack.Explainer.Default = `{"explanation": "- Chess"}`
		chat = stack.Chat

		ts := stack.Serve()
		DeferCleanup(ts.Close)

		var err error
		c, err = client.New(ts.URL + "/")
		Expect(err).NotTo(HaveOccurred())
	})

	It("rejects targets without a scheme and host", func() {
		_, err := client.New("localhost")
		Expect(err).To(HaveOccurred())
	})

	It("pings", func() {
		Expect(c.Ping(ctx)).To(Succeed())
	})

	It("drives the social flow end to end", func() {
		g, err := c.CreateGroup(ctx, "Chess Club", social.GroupClub, "")
		Expect(err).NotTo(HaveOccurred())

		Expect(c.PutProfile(ctx, social.UserProfile{UserID: "alice", Description: "Chess player", Groups: []social.Group{{ID: g.ID}}})).To(Succeed())
		Expect(c.PutProfile(ctx, social.UserProfile{UserID: "bob", Description: "Chess coach"})).To(Succeed())
		Expect(c.JoinGroup(ctx, g.ID, "bob")).To(Succeed())

		p, err := c.GetProfile(ctx, "alice")
		Expect(err).NotTo(HaveOccurred())
		Expect(p.Groups).To(HaveLen(1))

		resp, err := c.Chat(ctx, social.ChatMessage{SenderID: "alice", ReceiverID: "bob", Content: "Hi"})
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.Response).To(Equal("Hello!"))

		matches, err := c.MatchByEmbedding(ctx, "alice", "chat", g.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(matches).To(HaveLen(1))
		Expect(matches[0].UserID).To(Equal("bob"))

		matches, err = c.Match(ctx, social.InteractionRequest{UserID: "alice", InteractionType: "chat", Preferences: []string{"chess"}})
		Expect(err).NotTo(HaveOccurred())
		Expect(matches[0].UserID).To(Equal("bob"))

		recs, err := c.Recommendations(ctx, "alice")
		Expect(err).NotTo(HaveOccurred())
		Expect(recs).To(HaveLen(1))

		exp, err := c.Explain(ctx, "alice", "bob")
		Expect(err).NotTo(HaveOccurred())
		Expect(exp.Explanation).To(Equal("- Chess"))

		Expect(c.AddFriend(ctx, "alice", "bob")).To(Succeed())
		friends, err := c.Friends(ctx, "bob")
		Expect(err).NotTo(HaveOccurred())
		Expect(friends).To(HaveLen(1))
		Expect(friends[0].UserID).To(Equal("alice"))
	})

	It("surfaces API errors as social error kinds", func() {
		_, err := c.GetProfile(ctx, "zed")
		Expect(err).To(MatchError(social.ErrNotFound))

		var apiErr *client.APIError
		Expect(errors.As(err, &apiErr)).To(BeTrue())
		Expect(apiErr.Status).To(Equal(http.StatusNotFound))

		err = c.PutProfile(ctx, social.UserProfile{UserID: "alice", Groups: []social.Group{{ID: "ghost"}}})
		Expect(err).To(MatchError(social.ErrValidation))
		Expect(err.Error()).To(ContainSubstring("group_id: unknown group"))
	})

	It("flags retryable failures", func() {
		Expect(c.PutProfile(ctx, social.UserProfile{UserID: "alice", Description: "Chess player"})).To(Succeed())
		chat.SetFail(true)

		_, err := c.Chat(ctx, social.ChatMessage{SenderID: "alice", Content: "Hi"})
		Expect(err).To(MatchError(social.ErrDerivationFailed))
		Expect(client.Retryable(err)).To(BeTrue())
	})
})
