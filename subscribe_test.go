package ledgerd_test

import (
	"context"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/riftwell/ledgerd"
	"github.com/riftwell/ledgerd/sqlite"
)

var _ = Describe("Subscription runtime", func() {
	var store *sqlite.Store

	BeforeEach(func() {
		store = openMemoryStore()
	})

	It("delivers events in order and auto-advances the offset in Normal mode", func() {
		_, err := ledgerd.NewSave[*testAccount]("TestAccount", newTestAccount).
			Metadata([]byte("{}")).
			Data("Opened", mustEncode(accountOpened{Owner: "normal-mode"})).
			Data("Deposited", mustEncode(accountDeposited{Amount: 10})).
			Commit(testCtx, store)
		Expect(err).NotTo(HaveOccurred())

		var mu sync.Mutex
		var seen []string

		sub := ledgerd.NewSubscription("normal-sub").
			Mode(ledgerd.ModeNormal).
			Delay(5 * time.Millisecond).
			On(ledgerd.Handler{
				AggregatorType: "TestAccount",
				Handle: func(ctx context.Context, e ledgerd.Event) error {
					mu.Lock()
					seen = append(seen, e.Name)
					mu.Unlock()
					return nil
				},
			})

		ctx, cancel := context.WithCancel(testCtx)
		done := make(chan error, 1)
		go func() { done <- sub.Start(ctx, store, store) }()

		Eventually(func() []string {
			mu.Lock()
			defer mu.Unlock()
			return append([]string(nil), seen...)
		}, time.Second, 5*time.Millisecond).Should(Equal([]string{"Opened", "Deposited"}))

		cancel()
		sub.Stop()
		Eventually(done, time.Second).Should(Receive(BeNil()))

		offset, found, err := store.GetOffset(testCtx, "normal-sub", "")
		Expect(err).NotTo(HaveOccurred())
		Expect(found).To(BeTrue())
		Expect(offset).NotTo(BeEmpty())
	})

	It("only advances the Persistent offset after explicit Acknowledge", func() {
		_, err := ledgerd.NewSave[*testAccount]("TestAccount", newTestAccount).
			Metadata([]byte("{}")).
			Data("Opened", mustEncode(accountOpened{Owner: "persistent-mode"})).
			Commit(testCtx, store)
		Expect(err).NotTo(HaveOccurred())

		delivered := make(chan ledgerd.Event, 4)
		sub := ledgerd.NewSubscription("persistent-sub").
			Mode(ledgerd.ModePersistent).
			Delay(5 * time.Millisecond).
			On(ledgerd.Handler{
				AggregatorType: "TestAccount",
				Handle: func(ctx context.Context, e ledgerd.Event) error {
					delivered <- e
					return nil
				},
			})

		ctx, cancel := context.WithCancel(testCtx)
		go func() { _ = sub.Start(ctx, store, store) }()

		var e ledgerd.Event
		Eventually(delivered, time.Second).Should(Receive(&e))

		_, found, err := store.GetOffset(testCtx, "persistent-sub", "")
		Expect(err).NotTo(HaveOccurred())
		Expect(found).To(BeFalse())

		Expect(sub.Acknowledge(testCtx, e)).To(Succeed())

		_, found, err = store.GetOffset(testCtx, "persistent-sub", "")
		Expect(err).NotTo(HaveOccurred())
		Expect(found).To(BeTrue())

		cancel()
		sub.Stop()
	})

	It("withholds e2 from a Persistent subscriber until e1 is acknowledged", func() {
		_, err := ledgerd.NewSave[*testAccount]("TestAccount", newTestAccount).
			Metadata([]byte("{}")).
			Data("Opened", mustEncode(accountOpened{Owner: "persistent-withhold"})).
			Data("Deposited", mustEncode(accountDeposited{Amount: 1})).
			Commit(testCtx, store)
		Expect(err).NotTo(HaveOccurred())

		delivered := make(chan ledgerd.Event, 4)
		sub := ledgerd.NewSubscription("persistent-withhold-sub").
			Mode(ledgerd.ModePersistent).
			Delay(5 * time.Millisecond).
			On(ledgerd.Handler{
				AggregatorType: "TestAccount",
				Handle: func(ctx context.Context, e ledgerd.Event) error {
					delivered <- e
					return nil
				},
			})

		ctx, cancel := context.WithCancel(testCtx)
		defer cancel()
		go func() { _ = sub.Start(ctx, store, store) }()

		var e1 ledgerd.Event
		Eventually(delivered, time.Second).Should(Receive(&e1))
		Expect(e1.Name).To(Equal("Opened"))

		// e2 must not show up while e1 is unacknowledged, even after several
		// poll ticks.
		Consistently(delivered, 100*time.Millisecond, 5*time.Millisecond).ShouldNot(Receive())

		Expect(sub.Acknowledge(testCtx, e1)).To(Succeed())

		var e2 ledgerd.Event
		Eventually(delivered, time.Second).Should(Receive(&e2))
		Expect(e2.Name).To(Equal("Deposited"))

		sub.Stop()
	})
})
