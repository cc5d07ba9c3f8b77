package social_test

import (
	"errors"
	"fmt"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/rapport/pkg/similarity"
	"github.com/papercomputeco/rapport/pkg/social"
)

var _ = Describe("PairKey", func() {
	It("is the same for both orders", func() {
		Expect(social.NewPairKey("bob", "alice", "")).To(Equal(social.NewPairKey("alice", "bob", "")))
		Expect(social.NewPairKey("bob", "alice", "").String()).To(Equal("5:alice|3:bob"))
	})

	It("includes the group scope", func() {
		k := social.NewPairKey("bob", "alice", "g1")
		Expect(k.String()).To(Equal("5:alice|3:bob#2:g1"))
		Expect(k).NotTo(Equal(social.NewPairKey("alice", "bob", "")))
		Expect(k.Involves("bob")).To(BeTrue())
		Expect(k.Involves("carol")).To(BeFalse())
	})

	It("keeps ids containing separators distinct", func() {
		Expect(social.NewPairKey("a|b", "c", "").String()).NotTo(Equal(social.NewPairKey("a", "b|c", "").String()))
		Expect(social.NewPairKey("a", "b#c", "").String()).NotTo(Equal(social.NewPairKey("a", "b", "c").String()))
	})
})

var _ = Describe("Interaction", func() {
	It("is stale until every turn is derived", func() {
		i := &social.Interaction{Messages: []social.Turn{{}, {}}}
		Expect(i.Stale()).To(BeTrue())
		i.DerivedTurns = 2
		Expect(i.Stale()).To(BeFalse())
	})

	It("clones without sharing slices", func() {
		i := &social.Interaction{Messages: []social.Turn{{Content: "hi"}}, Embedding: []float32{1}}
		c := i.Clone()
		c.Messages[0].Content = "changed"
		c.Embedding[0] = 2
		Expect(i.Messages[0].Content).To(Equal("hi"))
		Expect(i.Embedding[0]).To(Equal(float32(1)))
	})

	It("names the counterpart", func() {
		i := &social.Interaction{UserID: "alice", OtherUserID: "bob"}
		Expect(i.Counterpart("alice")).To(Equal("bob"))
		Expect(i.Counterpart("bob")).To(Equal("alice"))
	})
})

var _ = Describe("errors", func() {
	It("classifies unknown groups as validation errors", func() {
		err := social.UnknownGroupError("g9")
		Expect(errors.Is(err, social.ErrUnknownGroup)).To(BeTrue())
		Expect(errors.Is(err, social.ErrValidation)).To(BeTrue())
		Expect(err.Error()).To(ContainSubstring("g9"))

		var ve *social.ValidationError
		Expect(errors.As(err, &ve)).To(BeTrue())
		Expect(ve.Fields).To(HaveKeyWithValue("group_id", "unknown group"))
	})

	It("does not treat other validation errors as unknown group", func() {
		err := social.NewValidationError("content", "required")
		Expect(errors.Is(err, social.ErrValidation)).To(BeTrue())
		Expect(errors.Is(err, social.ErrUnknownGroup)).To(BeFalse())
		Expect(err.Error()).To(Equal("validation failed: content: required"))
	})

	It("classifies missing records", func() {
		err := fmt.Errorf("loading: %w", social.NotFound("profile", "dave"))
		Expect(errors.Is(err, social.ErrNotFound)).To(BeTrue())
		Expect(err.Error()).To(ContainSubstring("profile not found: dave"))
	})

	It("wraps derivation failures with their cause", func() {
		cause := errors.New("boom")
		err := social.Derivation("summary", cause)
		Expect(errors.Is(err, social.ErrDerivationFailed)).To(BeTrue())
		Expect(errors.Is(err, cause)).To(BeTrue())
	})

	It("treats dimension mismatches as validation", func() {
		_, err := similarity.Cosine([]float32{1}, []float32{1, 2})
		Expect(social.IsValidation(err)).To(BeTrue())
		Expect(social.IsValidation(social.ErrStorageUnavailable)).To(BeFalse())
	})
})

var _ = Describe("validation", func() {
	It("rejects self pairs and blank ids", func() {
		Expect(social.ValidatePair("alice", "bob")).To(Succeed())
		Expect(social.ValidatePair("alice", "alice")).To(MatchError(social.ErrValidation))
		Expect(social.ValidatePair("", "bob")).To(MatchError(social.ErrValidation))
	})

	It("rejects empty turns and unknown roles", func() {
		Expect(social.ValidateTurn(social.Turn{Role: social.RoleUser, Content: "hi"})).To(Succeed())
		Expect(social.ValidateTurn(social.Turn{Role: "bot", Content: "hi"})).To(MatchError(social.ErrValidation))
		Expect(social.ValidateTurn(social.Turn{Role: social.RoleUser, Content: "  "})).To(MatchError(social.ErrValidation))
	})

	It("normalizes terms", func() {
		Expect(social.NormalizeTerms([]string{" Chess", "chess", "", "Hiking "})).To(Equal([]string{"chess", "hiking"}))
	})

	It("knows the group types", func() {
		Expect(social.GroupClub.Valid()).To(BeTrue())
		Expect(social.GroupType("guild").Valid()).To(BeFalse())
	})
})
