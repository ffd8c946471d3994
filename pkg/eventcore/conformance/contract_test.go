package conformance

import (
	"context"
	"encoding/json"

	"eventcore/pkg/eventcore"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// backendFactory builds a fresh set of providers for one spec and returns a
// teardown func releasing any backend-specific resources (files, pools).
type backendFactory func() (eventcore.Providers, func())

// describeEventStoreContract registers the behavioral contract every
// Providers implementation must satisfy, independent of storage backend.
func describeEventStoreContract(name string, newBackend backendFactory) {
	Describe(name, func() {
		var (
			providers eventcore.Providers
			teardown  func()
			store     *eventcore.EventStore
		)

		BeforeEach(func() {
			providers, teardown = newBackend()
			store = eventcore.NewEventStore(providers, eventcore.Config{})
			store.RegisterEvent("ItemAdded", eventcore.EventSchemas{})
			store.RegisterEvent("ItemRemoved", eventcore.EventSchemas{})
		})

		AfterEach(func() {
			if teardown != nil {
				teardown()
			}
		})

		It("persists pushed events and returns them in stream order", func() {
			ctx := context.Background()
			for i := 0; i < 3; i++ {
				rec, err := store.MakeRecord(eventcore.NewRecordRequest{Stream: "s1", Type: "ItemAdded"})
				Expect(err).NotTo(HaveOccurred())
				_, err = store.Push(ctx, rec, false)
				Expect(err).NotTo(HaveOccurred())
			}

			events, err := store.GetEventsByStream(ctx, "s1", eventcore.GetOptions{})
			Expect(err).NotTo(HaveOccurred())
			Expect(events).To(HaveLen(3))
			for i := 1; i < len(events); i++ {
				Expect(events[i].Created >= events[i-1].Created).To(BeTrue())
			}
		})

		It("treats a duplicate event ID as a no-op", func() {
			ctx := context.Background()
			rec, err := store.MakeRecord(eventcore.NewRecordRequest{Stream: "s1", Type: "ItemAdded"})
			Expect(err).NotTo(HaveOccurred())

			_, err = store.Push(ctx, rec, false)
			Expect(err).NotTo(HaveOccurred())
			_, err = store.Push(ctx, rec, false)
			Expect(err).NotTo(HaveOccurred())

			events, err := store.GetEventsByStream(ctx, "s1", eventcore.GetOptions{})
			Expect(err).NotTo(HaveOccurred())
			Expect(events).To(HaveLen(1))
		})

		It("filters reads by event type", func() {
			ctx := context.Background()
			recA, err := store.MakeRecord(eventcore.NewRecordRequest{Stream: "s1", Type: "ItemAdded"})
			Expect(err).NotTo(HaveOccurred())
			_, err = store.Push(ctx, recA, false)
			Expect(err).NotTo(HaveOccurred())

			recB, err := store.MakeRecord(eventcore.NewRecordRequest{Stream: "s1", Type: "ItemRemoved"})
			Expect(err).NotTo(HaveOccurred())
			_, err = store.Push(ctx, recB, false)
			Expect(err).NotTo(HaveOccurred())

			events, err := store.GetEventsByStream(ctx, "s1", eventcore.GetOptions{
				Filter: eventcore.Filter{Types: []string{"ItemRemoved"}},
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(events).To(HaveLen(1))
			Expect(events[0].Type).To(Equal("ItemRemoved"))
		})

		It("derives context rows through the registered contextor and resolves them by key", func() {
			ctx := context.Background()
			store.Contextor().Register("ItemAdded", func(rec eventcore.Record) []eventcore.ContextOp {
				return []eventcore.ContextOp{{Op: eventcore.ContextInsert, Key: "catalog"}}
			})

			rec, err := store.MakeRecord(eventcore.NewRecordRequest{Stream: "item-1", Type: "ItemAdded"})
			Expect(err).NotTo(HaveOccurred())
			_, err = store.Push(ctx, rec, false)
			Expect(err).NotTo(HaveOccurred())

			Eventually(func() ([]eventcore.Record, error) {
				return store.GetEventsByContext(ctx, "catalog", eventcore.GetOptions{})
			}).Should(HaveLen(1))
		})

		It("folds events through a reducer and round-trips a snapshot", func() {
			ctx := context.Background()
			for i := 0; i < 4; i++ {
				rec, err := store.MakeRecord(eventcore.NewRecordRequest{Stream: "s2", Type: "ItemAdded"})
				Expect(err).NotTo(HaveOccurred())
				_, err = store.Push(ctx, rec, false)
				Expect(err).NotTo(HaveOccurred())
			}

			reducer := eventcore.NewStateReducer("item-count", eventcore.ByStream, eventcore.Filter{},
				func() any { return 0 },
				func(state any, rec eventcore.Record) (any, error) { return state.(int) + 1, nil },
				func(raw []byte) (any, error) {
					var n int
					if err := json.Unmarshal(raw, &n); err != nil {
						return nil, err
					}
					return n, nil
				},
			)

			result, err := store.Reduce(ctx, "s2", reducer)
			Expect(err).NotTo(HaveOccurred())
			Expect(result).To(Equal(4))

			Expect(store.CreateSnapshot(ctx, "s2", reducer)).To(Succeed())
			snap, err := store.GetSnapshot(ctx, "s2", reducer)
			Expect(err).NotTo(HaveOccurred())
			Expect(snap).NotTo(BeNil())

			var state int
			Expect(json.Unmarshal(snap.State, &state)).To(Succeed())
			Expect(state).To(Equal(4))

			// Push past the snapshot and reduce again: Hydrate must hand
			// Reduce a concretely-typed int, not a bare map/float64, or
			// the fold's state.(int) assertion panics.
			rec, err := store.MakeRecord(eventcore.NewRecordRequest{Stream: "s2", Type: "ItemAdded"})
			Expect(err).NotTo(HaveOccurred())
			_, err = store.Push(ctx, rec, false)
			Expect(err).NotTo(HaveOccurred())

			result, err = store.Reduce(ctx, "s2", reducer)
			Expect(err).NotTo(HaveOccurred())
			Expect(result).To(Equal(5))

			Expect(store.DeleteSnapshot(ctx, "s2", reducer)).To(Succeed())
			snap, err = store.GetSnapshot(ctx, "s2", reducer)
			Expect(err).NotTo(HaveOccurred())
			Expect(snap).To(BeNil())
		})

		It("replays a stream's events without reinserting them", func() {
			ctx := context.Background()
			rec, err := store.MakeRecord(eventcore.NewRecordRequest{Stream: "s3", Type: "ItemAdded"})
			Expect(err).NotTo(HaveOccurred())
			_, err = store.Push(ctx, rec, false)
			Expect(err).NotTo(HaveOccurred())

			replayed := make(chan bool, 1)
			store.Projector().On("ItemAdded", func(rec eventcore.Record, sig eventcore.ProjectionSignals) error {
				if sig.Hydrated {
					replayed <- true
				}
				return nil
			})

			Expect(store.Replay(ctx, "s3")).To(Succeed())
			Eventually(replayed).Should(Receive())

			events, err := store.GetEventsByStream(ctx, "s3", eventcore.GetOptions{})
			Expect(err).NotTo(HaveOccurred())
			Expect(events).To(HaveLen(1))
		})
	})
}
