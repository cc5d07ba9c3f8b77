// Package storagetest holds the behavior every storage.Driver must share.
// Driver packages register it from their own suites.
package storagetest

import (
	"context"
	"errors"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/rapport/pkg/social"
	"github.com/papercomputeco/rapport/pkg/storage"
)

// DriverSpecs registers the conformance specs for the driver returned by
// newDriver. newDriver is called once per spec and the driver is closed after.
func DriverSpecs(name string, newDriver func() storage.Driver) bool {
	return Describe(name+" conformance", func() {
		var (
			d   storage.Driver
			ctx context.Context
		)

		BeforeEach(func() {
			ctx = context.Background()
			d = newDriver()
		})

		AfterEach(func() {
			if d != nil {
				Expect(d.Close()).To(Succeed())
				d = nil
			}
		})

		Describe("profiles", func() {
			It("returns not found for unknown users", func() {
				_, err := d.GetProfile(ctx, "nobody")
				Expect(errors.Is(err, social.ErrNotFound)).To(BeTrue())
			})

			It("round trips a profile with memberships in order", func() {
				chess := &social.Group{Name: "chess club", Type: social.GroupClub}
				work := &social.Group{Name: "office", Type: social.GroupWork}
				Expect(d.CreateGroup(ctx, chess)).To(Succeed())
				Expect(d.CreateGroup(ctx, work)).To(Succeed())
				Expect(chess.ID).NotTo(BeEmpty())

				at := time.Unix(1700000000, 42).UTC()
				Expect(d.PutProfile(ctx, &social.UserProfile{
					UserID:               "alice",
					Description:          "likes chess",
					Interests:            []string{"chess", "hiking"},
					Groups:               []social.Group{{ID: work.ID}, {ID: chess.ID}},
					DescriptionEmbedding: []float32{0.25, -0.5, 1},
					DescriptionUpdatedAt: at,
				})).To(Succeed())

				p, err := d.GetProfile(ctx, "alice")
				Expect(err).NotTo(HaveOccurred())
				Expect(p.Description).To(Equal("likes chess"))
				Expect(p.Interests).To(Equal([]string{"chess", "hiking"}))
				Expect(p.DescriptionEmbedding).To(Equal([]float32{0.25, -0.5, 1}))
				Expect(p.DescriptionUpdatedAt.Equal(at)).To(BeTrue())
				Expect(p.GroupIDs()).To(Equal([]string{work.ID, chess.ID}))
				Expect(p.Groups[1].Name).To(Equal("chess club"))
			})

			It("rejects unknown groups without writing", func() {
				err := d.PutProfile(ctx, &social.UserProfile{
					UserID: "alice",
					Groups: []social.Group{{ID: "missing"}},
				})
				Expect(errors.Is(err, social.ErrUnknownGroup)).To(BeTrue())

				_, err = d.GetProfile(ctx, "alice")
				Expect(errors.Is(err, social.ErrNotFound)).To(BeTrue())
			})

			It("replaces memberships on upsert", func() {
				g1 := &social.Group{Name: "one", Type: social.GroupOther}
				g2 := &social.Group{Name: "two", Type: social.GroupOther}
				Expect(d.CreateGroup(ctx, g1)).To(Succeed())
				Expect(d.CreateGroup(ctx, g2)).To(Succeed())

				Expect(d.PutProfile(ctx, &social.UserProfile{UserID: "bob", Groups: []social.Group{{ID: g1.ID}}})).To(Succeed())
				Expect(d.PutProfile(ctx, &social.UserProfile{UserID: "bob", Groups: []social.Group{{ID: g2.ID}}})).To(Succeed())

				groups, err := d.GroupsForUser(ctx, "bob")
				Expect(err).NotTo(HaveOccurred())
				Expect(groups).To(HaveLen(1))
				Expect(groups[0].ID).To(Equal(g2.ID))
			})

			It("replaces description and embedding together", func() {
				Expect(d.PutProfile(ctx, &social.UserProfile{
					UserID:               "carol",
					Description:          "old",
					DescriptionEmbedding: []float32{1, 0},
				})).To(Succeed())

				at := time.Unix(1700000100, 0).UTC()
				Expect(d.ReplaceDescription(ctx, "carol", "new", []float32{0, 1}, at)).To(Succeed())

				p, err := d.GetProfile(ctx, "carol")
				Expect(err).NotTo(HaveOccurred())
				Expect(p.Description).To(Equal("new"))
				Expect(p.DescriptionEmbedding).To(Equal([]float32{0, 1}))
				Expect(p.DescriptionUpdatedAt.Equal(at)).To(BeTrue())
			})

			It("fails to replace the description of an unknown user", func() {
				err := d.ReplaceDescription(ctx, "nobody", "x", []float32{1}, time.Now())
				Expect(errors.Is(err, social.ErrNotFound)).To(BeTrue())
			})

			It("lists profiles by id, optionally scoped to a group", func() {
				g := &social.Group{Name: "friends", Type: social.GroupFriends}
				Expect(d.CreateGroup(ctx, g)).To(Succeed())
				Expect(d.PutProfile(ctx, &social.UserProfile{UserID: "zed"})).To(Succeed())
				Expect(d.PutProfile(ctx, &social.UserProfile{UserID: "amy", Groups: []social.Group{{ID: g.ID}}})).To(Succeed())
				Expect(d.PutProfile(ctx, &social.UserProfile{UserID: "max", Groups: []social.Group{{ID: g.ID}}})).To(Succeed())

				all, err := d.ListProfiles(ctx, "")
				Expect(err).NotTo(HaveOccurred())
				Expect(ids(all)).To(Equal([]string{"amy", "max", "zed"}))

				members, err := d.ListProfiles(ctx, g.ID)
				Expect(err).NotTo(HaveOccurred())
				Expect(ids(members)).To(Equal([]string{"amy", "max"}))
				Expect(members[0].Groups).To(HaveLen(1))

				_, err = d.ListProfiles(ctx, "missing")
				Expect(errors.Is(err, social.ErrUnknownGroup)).To(BeTrue())
			})
		})

		Describe("groups", func() {
			It("returns not found for unknown groups", func() {
				_, err := d.GetGroup(ctx, "missing")
				Expect(errors.Is(err, social.ErrNotFound)).To(BeTrue())
			})

			It("adds members idempotently and keeps join order", func() {
				g1 := &social.Group{Name: "one", Type: social.GroupClub}
				g2 := &social.Group{Name: "two", Type: social.GroupWork}
				Expect(d.CreateGroup(ctx, g1)).To(Succeed())
				Expect(d.CreateGroup(ctx, g2)).To(Succeed())

				Expect(d.AddMember(ctx, g2.ID, "dave")).To(Succeed())
				Expect(d.AddMember(ctx, g1.ID, "dave")).To(Succeed())
				Expect(d.AddMember(ctx, g2.ID, "dave")).To(Succeed())
				Expect(d.AddMember(ctx, g1.ID, "erin")).To(Succeed())

				groups, err := d.GroupsForUser(ctx, "dave")
				Expect(err).NotTo(HaveOccurred())
				Expect(groups).To(HaveLen(2))
				Expect(groups[0].ID).To(Equal(g2.ID))
				Expect(groups[1].ID).To(Equal(g1.ID))

				members, err := d.GroupMembers(ctx, g1.ID)
				Expect(err).NotTo(HaveOccurred())
				Expect(members).To(Equal([]string{"dave", "erin"}))
			})

			It("rejects members for unknown groups", func() {
				Expect(errors.Is(d.AddMember(ctx, "missing", "dave"), social.ErrUnknownGroup)).To(BeTrue())
				_, err := d.GroupMembers(ctx, "missing")
				Expect(errors.Is(err, social.ErrUnknownGroup)).To(BeTrue())
			})
		})

		Describe("interactions", func() {
			appendTurn := func(key social.PairKey, content string, at time.Time) (*social.Interaction, error) {
				return d.UpsertInteraction(ctx, key, func(rec *social.Interaction) error {
					rec.Messages = append(rec.Messages, social.Turn{Role: social.RoleUser, Content: content, CreatedAt: at})
					rec.Timestamp = at
					return nil
				})
			}

			It("creates one record per pair regardless of order", func() {
				at := time.Unix(1700000000, 0).UTC()
				first, err := appendTurn(social.NewPairKey("bob", "alice", ""), "hi", at)
				Expect(err).NotTo(HaveOccurred())
				Expect(first.ID).NotTo(BeEmpty())
				Expect(first.UserID).To(Equal("alice"))
				Expect(first.OtherUserID).To(Equal("bob"))

				second, err := appendTurn(social.NewPairKey("alice", "bob", ""), "hello", at.Add(time.Second))
				Expect(err).NotTo(HaveOccurred())
				Expect(second.ID).To(Equal(first.ID))
				Expect(second.Messages).To(HaveLen(2))

				stored, err := d.GetInteraction(ctx, first.ID)
				Expect(err).NotTo(HaveOccurred())
				Expect(stored.Messages[0].Content).To(Equal("hi"))
				Expect(stored.Messages[1].Content).To(Equal("hello"))
				Expect(stored.Stale()).To(BeTrue())
			})

			It("keeps group scopes apart", func() {
				at := time.Unix(1700000000, 0).UTC()
				global, err := appendTurn(social.NewPairKey("alice", "bob", ""), "hi", at)
				Expect(err).NotTo(HaveOccurred())
				scoped, err := appendTurn(social.NewPairKey("alice", "bob", "g1"), "hi", at.Add(time.Second))
				Expect(err).NotTo(HaveOccurred())
				Expect(scoped.ID).NotTo(Equal(global.ID))
				Expect(scoped.GroupID).To(Equal("g1"))

				all, err := d.InteractionsForUser(ctx, "bob", "")
				Expect(err).NotTo(HaveOccurred())
				Expect(all).To(HaveLen(2))
				Expect(all[0].ID).To(Equal(scoped.ID))

				only, err := d.InteractionsForUser(ctx, "alice", "g1")
				Expect(err).NotTo(HaveOccurred())
				Expect(only).To(HaveLen(1))
				Expect(only[0].ID).To(Equal(scoped.ID))
			})

			It("leaves the record untouched when the update fails", func() {
				at := time.Unix(1700000000, 0).UTC()
				rec, err := appendTurn(social.NewPairKey("alice", "bob", ""), "hi", at)
				Expect(err).NotTo(HaveOccurred())

				boom := errors.New("boom")
				_, err = d.UpsertInteraction(ctx, rec.Key(), func(r *social.Interaction) error {
					r.Messages = append(r.Messages, social.Turn{Role: social.RoleUser, Content: "lost"})
					return boom
				})
				Expect(errors.Is(err, boom)).To(BeTrue())

				stored, err := d.GetInteraction(ctx, rec.ID)
				Expect(err).NotTo(HaveOccurred())
				Expect(stored.Messages).To(HaveLen(1))
			})

			It("writes derivations only when the update reports a change", func() {
				at := time.Unix(1700000000, 0).UTC()
				rec, err := appendTurn(social.NewPairKey("alice", "bob", ""), "hi", at)
				Expect(err).NotTo(HaveOccurred())

				_, err = d.UpdateInteraction(ctx, rec.ID, func(r *social.Interaction) (bool, error) {
					r.Summary = "ignored"
					return false, nil
				})
				Expect(err).NotTo(HaveOccurred())

				updated, err := d.UpdateInteraction(ctx, rec.ID, func(r *social.Interaction) (bool, error) {
					r.Summary = "they said hi"
					r.Embedding = []float32{0.5, 0.5}
					r.DerivedTurns = len(r.Messages)
					return true, nil
				})
				Expect(err).NotTo(HaveOccurred())
				Expect(updated.Stale()).To(BeFalse())

				stored, err := d.GetInteraction(ctx, rec.ID)
				Expect(err).NotTo(HaveOccurred())
				Expect(stored.Summary).To(Equal("they said hi"))
				Expect(stored.Embedding).To(Equal([]float32{0.5, 0.5}))
				Expect(stored.DerivedTurns).To(Equal(1))
			})

			It("reports unknown interactions", func() {
				_, err := d.UpdateInteraction(ctx, "missing", func(*social.Interaction) (bool, error) { return true, nil })
				Expect(errors.Is(err, social.ErrNotFound)).To(BeTrue())
				_, err = d.GetInteraction(ctx, "missing")
				Expect(errors.Is(err, social.ErrNotFound)).To(BeTrue())
			})

			It("lists stale records oldest first", func() {
				at := time.Unix(1700000000, 0).UTC()
				older, err := appendTurn(social.NewPairKey("alice", "bob", ""), "hi", at)
				Expect(err).NotTo(HaveOccurred())
				newer, err := appendTurn(social.NewPairKey("alice", "carol", ""), "hi", at.Add(time.Minute))
				Expect(err).NotTo(HaveOccurred())
				fresh, err := appendTurn(social.NewPairKey("bob", "carol", ""), "hi", at)
				Expect(err).NotTo(HaveOccurred())
				_, err = d.UpdateInteraction(ctx, fresh.ID, func(r *social.Interaction) (bool, error) {
					r.DerivedTurns = len(r.Messages)
					return true, nil
				})
				Expect(err).NotTo(HaveOccurred())

				stale, err := d.StaleInteractions(ctx, 10)
				Expect(err).NotTo(HaveOccurred())
				Expect(stale).To(HaveLen(2))
				Expect(stale[0].ID).To(Equal(older.ID))
				Expect(stale[1].ID).To(Equal(newer.ID))

				limited, err := d.StaleInteractions(ctx, 1)
				Expect(err).NotTo(HaveOccurred())
				Expect(limited).To(HaveLen(1))
			})

			It("serializes concurrent appends to the same pair", func() {
				const writers = 8
				var wg sync.WaitGroup
				errs := make(chan error, writers)
				base := time.Unix(1700000000, 0).UTC()

				for i := range writers {
					wg.Add(1)
					go func(i int) {
						defer GinkgoRecover()
						defer wg.Done()
						a, b := "alice", "bob"
						if i%2 == 1 {
							a, b = b, a
						}
						_, err := appendTurn(social.NewPairKey(a, b, ""), "turn", base.Add(time.Duration(i)*time.Second))
						errs <- err
					}(i)
				}
				wg.Wait()
				close(errs)
				for err := range errs {
					Expect(err).NotTo(HaveOccurred())
				}

				all, err := d.InteractionsForUser(ctx, "alice", "")
				Expect(err).NotTo(HaveOccurred())
				Expect(all).To(HaveLen(1))
				Expect(all[0].Messages).To(HaveLen(writers))
			})
		})

		Describe("friends", func() {
			It("stores the relation symmetrically", func() {
				Expect(d.AddFriend(ctx, "alice", "bob")).To(Succeed())
				Expect(d.AddFriend(ctx, "bob", "alice")).To(Succeed())
				Expect(d.AddFriend(ctx, "alice", "carol")).To(Succeed())

				Expect(d.Friends(ctx, "alice")).To(Equal([]string{"bob", "carol"}))
				Expect(d.Friends(ctx, "bob")).To(Equal([]string{"alice"}))
				Expect(d.Friends(ctx, "dave")).To(BeEmpty())
			})
		})
	})
}

func ids(ps []*social.UserProfile) []string {
	out := make([]string, 0, len(ps))
	for _, p := range ps {
		out = append(out, p.UserID)
	}
	return out
}
