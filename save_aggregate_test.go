package ledgerd_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/riftwell/ledgerd"
	"github.com/riftwell/ledgerd/sqlite"
)

var _ = Describe("Save and Load", func() {
	var store *sqlite.Store

	BeforeEach(func() {
		store = openMemoryStore()
	})

	It("creates a new aggregate and loads it back with the folded state", func() {
		id, err := ledgerd.NewSave[*testAccount]("TestAccount", newTestAccount).
			Metadata([]byte("{}")).
			Data("Opened", mustEncode(accountOpened{Owner: "ada"})).
			Data("Deposited", mustEncode(accountDeposited{Amount: 100})).
			Commit(testCtx, store)
		Expect(err).NotTo(HaveOccurred())
		Expect(id).NotTo(BeEmpty())

		acc, lastEvent, err := ledgerd.Load[*testAccount](testCtx, store, "TestAccount", id, newTestAccount)
		Expect(err).NotTo(HaveOccurred())
		Expect(acc.Owner).To(Equal("ada"))
		Expect(acc.Balance).To(Equal(int64(100)))
		Expect(lastEvent.Name).To(Equal("Deposited"))
		Expect(lastEvent.Version).To(Equal(uint16(2)))
	})

	It("inherits the routing key set on the first write", func() {
		id, err := ledgerd.NewSave[*testAccount]("TestAccount", newTestAccount).
			RoutingKey("r1").
			Metadata([]byte("{}")).
			Data("Opened", mustEncode(accountOpened{Owner: "grace"})).
			Commit(testCtx, store)
		Expect(err).NotTo(HaveOccurred())

		_, lastEvent, err := ledgerd.Load[*testAccount](testCtx, store, "TestAccount", id, newTestAccount)
		Expect(err).NotTo(HaveOccurred())
		Expect(lastEvent.RoutingKey).To(Equal("r1"))
	})

	It("keeps an existing aggregate's inherited routing key even when a later write requests a different one", func() {
		id, err := ledgerd.NewSave[*testAccount]("TestAccount", newTestAccount).
			Metadata([]byte("{}")).
			Data("Opened", mustEncode(accountOpened{Owner: "hopper"})).
			Commit(testCtx, store)
		Expect(err).NotTo(HaveOccurred())

		_, err = ledgerd.NewSave[*testAccount]("TestAccount", newTestAccount).
			ForAggregate(id).
			OriginalVersion(1).
			RoutingKey("r1").
			Metadata([]byte("{}")).
			Data("Deposited", mustEncode(accountDeposited{Amount: 10})).
			Commit(testCtx, store)
		Expect(err).NotTo(HaveOccurred())

		_, lastEvent, err := ledgerd.Load[*testAccount](testCtx, store, "TestAccount", id, newTestAccount)
		Expect(err).NotTo(HaveOccurred())
		Expect(lastEvent.Name).To(Equal("Deposited"))
		Expect(lastEvent.RoutingKey).To(Equal(ledgerd.DefaultRoutingKey))
	})

	It("defaults the routing key when none is set", func() {
		id, err := ledgerd.NewSave[*testAccount]("TestAccount", newTestAccount).
			Metadata([]byte("{}")).
			Data("Opened", mustEncode(accountOpened{Owner: "linus"})).
			Commit(testCtx, store)
		Expect(err).NotTo(HaveOccurred())

		_, lastEvent, err := ledgerd.Load[*testAccount](testCtx, store, "TestAccount", id, newTestAccount)
		Expect(err).NotTo(HaveOccurred())
		Expect(lastEvent.RoutingKey).To(Equal(ledgerd.DefaultRoutingKey))
	})

	It("rejects a commit with no metadata", func() {
		_, err := ledgerd.NewSave[*testAccount]("TestAccount", newTestAccount).
			Data("Opened", mustEncode(accountOpened{Owner: "no-metadata"})).
			Commit(testCtx, store)
		Expect(err).To(HaveOccurred())
		var target *ledgerd.MissingMetadataError
		Expect(err).To(BeAssignableToTypeOf(target))
	})

	It("rejects a commit with no events", func() {
		_, err := ledgerd.NewSave[*testAccount]("TestAccount", newTestAccount).
			Metadata([]byte("{}")).
			Commit(testCtx, store)
		Expect(err).To(HaveOccurred())
		var target *ledgerd.MissingDataError
		Expect(err).To(BeAssignableToTypeOf(target))
	})

	It("fails a write against a stale original version with InvalidOriginalVersion", func() {
		id, err := ledgerd.NewSave[*testAccount]("TestAccount", newTestAccount).
			Metadata([]byte("{}")).
			Data("Opened", mustEncode(accountOpened{Owner: "racer"})).
			Commit(testCtx, store)
		Expect(err).NotTo(HaveOccurred())

		_, err = ledgerd.NewSave[*testAccount]("TestAccount", newTestAccount).
			ForAggregate(id).
			OriginalVersion(0).
			Metadata([]byte("{}")).
			Data("Deposited", mustEncode(accountDeposited{Amount: 5})).
			Commit(testCtx, store)
		Expect(err).To(HaveOccurred())
		Expect(ledgerd.IsInvalidOriginalVersion(err)).To(BeTrue())
	})

	It("returns NotFound for an aggregate that was never created", func() {
		_, _, err := ledgerd.Load[*testAccount](testCtx, store, "TestAccount", "01HXNONEXISTENT00000000000", newTestAccount)
		Expect(err).To(HaveOccurred())
		Expect(ledgerd.IsNotFound(err)).To(BeTrue())
	})
})
