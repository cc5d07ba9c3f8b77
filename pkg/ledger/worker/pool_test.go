package worker_test

import (
	"context"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/rapport/pkg/ledger"
	"github.com/papercomputeco/rapport/pkg/ledger/worker"
	"github.com/papercomputeco/rapport/pkg/logger"
	"github.com/papercomputeco/rapport/pkg/social"
	"github.com/papercomputeco/rapport/pkg/storage/inmemory"
	testutils "github.com/papercomputeco/rapport/pkg/utils/test"
)

// newTestLedger creates a ledger backed by an in-memory driver and mocks.
func newTestLedger() (*ledger.Ledger, *inmemory.Driver, *testutils.MockCompleter) {
	driver := inmemory.NewDriver()
	completer := testutils.NewMockCompleter(`{"summary": "A friendly chat about hiking."}`)

	l, err := ledger.New(ledger.Config{
		Store:     driver,
		Completer: completer,
		Embedder:  testutils.NewMockEmbedder(),
		Logger:    logger.Nop(),
	})
	Expect(err).NotTo(HaveOccurred())

	return l, driver, completer
}

type blockingRecomputer struct {
	release chan struct{}
	mu      sync.Mutex
	calls   []string
}

func (b *blockingRecomputer) Recompute(_ context.Context, id string) (*social.Interaction, error) {
	<-b.release
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, id)
	return &social.Interaction{ID: id}, nil
}

func (b *blockingRecomputer) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.calls)
}

var _ = Describe("Worker Pool", func() {
	var ctx context.Context

	BeforeEach(func() {
		ctx = context.Background()
	})

	It("requires a Recomputer", func() {
		_, err := worker.NewPool(&worker.Config{})
		Expect(err).To(HaveOccurred())
	})

	Describe("Enqueue", func() {
		It("derives queued interactions in the background", func() {
			l, driver, _ := newTestLedger()
			wp, err := worker.NewPool(&worker.Config{Recomputer: l, Logger: logger.Nop()})
			Expect(err).NotTo(HaveOccurred())
			l.SetScheduler(wp)

			rec, err := l.AppendTurn(ctx, "alice", "bob", social.Turn{Role: social.RoleUser, Content: "hiking this weekend?"}, "")
			Expect(err).NotTo(HaveOccurred())

			// Drain the worker pool to ensure derivation completes before assertions
			wp.Close()

			stored, err := driver.GetInteraction(ctx, rec.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(stored.Summary).To(Equal("A friendly chat about hiking."))
			Expect(stored.DerivedTurns).To(Equal(1))
		})

		It("leaves the record stale when derivation fails", func() {
			l, driver, completer := newTestLedger()
			completer.SetFail(true)
			wp, err := worker.NewPool(&worker.Config{Recomputer: l, Logger: logger.Nop()})
			Expect(err).NotTo(HaveOccurred())
			l.SetScheduler(wp)

			rec, err := l.AppendTurn(ctx, "alice", "bob", social.Turn{Role: social.RoleUser, Content: "hi"}, "")
			Expect(err).NotTo(HaveOccurred())
			wp.Close()

			stored, err := driver.GetInteraction(ctx, rec.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(stored.Stale()).To(BeTrue())
		})

		It("drops jobs when the queue is full", func() {
			r := &blockingRecomputer{release: make(chan struct{})}
			wp, err := worker.NewPool(&worker.Config{
				Recomputer: r,
				NumWorkers: 1,
				QueueSize:  1,
				Logger:     logger.Nop(),
			})
			Expect(err).NotTo(HaveOccurred())

			Expect(wp.Enqueue("a")).To(BeTrue())
			// "a" is picked up by the only worker, which then blocks.
			Eventually(func() bool { return wp.Enqueue("b") }).Should(BeTrue())
			Expect(wp.Enqueue("c")).To(BeFalse())

			close(r.release)
			wp.Close()
			Expect(r.count()).To(Equal(2))
		})

		It("coalesces an id that is already pending", func() {
			r := &blockingRecomputer{release: make(chan struct{})}
			wp, err := worker.NewPool(&worker.Config{
				Recomputer: r,
				NumWorkers: 1,
				QueueSize:  4,
				Logger:     logger.Nop(),
			})
			Expect(err).NotTo(HaveOccurred())

			Expect(wp.Enqueue("busy")).To(BeTrue())
			Eventually(func() bool { return wp.Enqueue("x") }).Should(BeTrue())
			Expect(wp.Enqueue("x")).To(BeTrue())
			Expect(wp.Enqueue("x")).To(BeTrue())

			close(r.release)
			wp.Close()
			Expect(r.count()).To(Equal(2))
		})

		It("refuses jobs after Close", func() {
			l, _, _ := newTestLedger()
			wp, err := worker.NewPool(&worker.Config{Recomputer: l, Logger: logger.Nop()})
			Expect(err).NotTo(HaveOccurred())

			wp.Close()
			Expect(wp.Enqueue("late")).To(BeFalse())

			// A second Close is a no-op.
			wp.Close()
		})
	})
})

var _ = Describe("Sweeper", func() {
	var ctx context.Context

	BeforeEach(func() {
		ctx = context.Background()
	})

	It("re-queues stale interactions", func() {
		l, driver, completer := newTestLedger()
		completer.SetFail(true)

		rec, err := l.AppendTurn(ctx, "alice", "bob", social.Turn{Role: social.RoleUser, Content: "hi"}, "")
		Expect(err).NotTo(HaveOccurred())

		wp, err := worker.NewPool(&worker.Config{Recomputer: l, Logger: logger.Nop()})
		Expect(err).NotTo(HaveOccurred())

		sw, err := worker.NewSweeper(worker.SweeperConfig{
			Source: l,
			Queue:  wp,
			Logger: logger.Nop(),
		})
		Expect(err).NotTo(HaveOccurred())
		defer func() { Expect(sw.Stop()).To(Succeed()) }()

		completer.SetFail(false)
		queued, err := sw.Sweep(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(queued).To(Equal(1))

		wp.Close()

		stored, err := driver.GetInteraction(ctx, rec.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(stored.Stale()).To(BeFalse())
	})

	It("sweeps on its interval once started", func() {
		l, driver, _ := newTestLedger()
		rec, err := l.AppendTurn(ctx, "alice", "bob", social.Turn{Role: social.RoleUser, Content: "hi"}, "")
		Expect(err).NotTo(HaveOccurred())

		wp, err := worker.NewPool(&worker.Config{Recomputer: l, Logger: logger.Nop()})
		Expect(err).NotTo(HaveOccurred())
		defer wp.Close()

		sw, err := worker.NewSweeper(worker.SweeperConfig{
			Source:   l,
			Queue:    wp,
			Interval: 50 * time.Millisecond,
			Logger:   logger.Nop(),
		})
		Expect(err).NotTo(HaveOccurred())
		sw.Start()
		defer func() { Expect(sw.Stop()).To(Succeed()) }()

		Eventually(func() bool {
			stored, err := driver.GetInteraction(ctx, rec.ID)
			return err == nil && !stored.Stale()
		}, 2*time.Second, 20*time.Millisecond).Should(BeTrue())
	})

	It("requires a source and a queue", func() {
		_, err := worker.NewSweeper(worker.SweeperConfig{})
		Expect(err).To(HaveOccurred())
	})
})
