package ingest_test

import (
	"context"
	"os"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/spoolhq/spool/pkg/chat"
	"github.com/spoolhq/spool/pkg/event"
	"github.com/spoolhq/spool/pkg/ingest"
	"github.com/spoolhq/spool/pkg/storage"
)

// memAppender collects generated events and selections in memory. When gate
// is set, AppendUser blocks until the gate closes, pinning a worker mid-job.
type memAppender struct {
	gate chan struct{}

	mu         sync.Mutex
	userEvents map[string][]event.Event
	convEvents map[string][]event.Event
	selections map[string]map[string]string
}

func newMemAppender() *memAppender {
	return &memAppender{
		userEvents: make(map[string][]event.Event),
		convEvents: make(map[string][]event.Event),
		selections: make(map[string]map[string]string),
	}
}

func (a *memAppender) AppendUser(_ context.Context, userID string, ev event.Event) error {
	if a.gate != nil {
		<-a.gate
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.userEvents[userID] = append(a.userEvents[userID], ev)
	return nil
}

func (a *memAppender) AppendConversation(_ context.Context, conversationID string, ev event.Event) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.convEvents[conversationID] = append(a.convEvents[conversationID], ev)
	return nil
}

func (a *memAppender) SelectBranch(conversationID, messageID, branchID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	doc, ok := a.selections[conversationID]
	if !ok {
		doc = make(map[string]string)
		a.selections[conversationID] = doc
	}
	doc[messageID] = branchID
	return nil
}

// exportFixture is a three-position exchange where the assistant reply was
// regenerated once and the regeneration is the active branch.
func exportFixture() []chat.ParsedMessage {
	return []chat.ParsedMessage{
		{Role: chat.RoleUser, Content: "what is a monad?", Group: 0, ParentIndex: -1, Active: true},
		{Role: chat.RoleAssistant, Content: "a burrito", Group: 1, ParentIndex: 0},
		{Role: chat.RoleAssistant, Content: "a monoid in the category of endofunctors", Group: 1, ParentIndex: 0, Active: true},
		{Role: chat.RoleUser, Content: "thanks", Group: 2, ParentIndex: 2, Active: true},
	}
}

var _ = Describe("Pool", func() {
	var appender *memAppender

	BeforeEach(func() {
		appender = newMemAppender()
	})

	newPool := func() *ingest.Pool {
		pool, err := ingest.NewPool(&ingest.Config{
			Store:      appender,
			NumWorkers: 1,
			Logger:     zap.NewNop(),
		})
		Expect(err).NotTo(HaveOccurred())
		return pool
	}

	It("folds a parsed export into creation events", func() {
		pool := newPool()
		Expect(pool.Enqueue(ingest.Job{
			UserID:   "user-1",
			Title:    "monads",
			Messages: exportFixture(),
		})).To(BeTrue())
		pool.Close()

		Expect(appender.userEvents["user-1"]).To(HaveLen(1))
		Expect(appender.userEvents["user-1"][0].Type).To(Equal(event.TypeConversationCreated))

		Expect(appender.convEvents).To(HaveLen(1))
		for _, events := range appender.convEvents {
			types := make([]event.Type, len(events))
			for i, ev := range events {
				types[i] = ev.Type
			}
			Expect(types).To(Equal([]event.Type{
				event.TypeMessageAdded,
				event.TypeMessageAdded,
				event.TypeBranchAdded,
				event.TypeMessageAdded,
			}))
		}
	})

	It("records the non-initial active branch as an overlay selection", func() {
		pool := newPool()
		Expect(pool.Enqueue(ingest.Job{UserID: "user-1", Messages: exportFixture()})).To(BeTrue())
		pool.Close()

		Expect(appender.selections).To(HaveLen(1))
		for convID, doc := range appender.selections {
			// Only the regenerated branch needed a selection; initial
			// branches are active by construction.
			Expect(doc).To(HaveLen(1))

			events := appender.convEvents[convID]
			branchAdded, err := event.Decode(events[2])
			Expect(err).NotTo(HaveOccurred())
			ba := branchAdded.(event.BranchAdded)
			Expect(doc).To(HaveKeyWithValue(ba.MessageID, ba.BranchID))
		}
	})

	It("links a regenerated branch to its parent", func() {
		pool := newPool()
		Expect(pool.Enqueue(ingest.Job{UserID: "user-1", Messages: exportFixture()})).To(BeTrue())
		pool.Close()

		for _, events := range appender.convEvents {
			first, err := event.Decode(events[0])
			Expect(err).NotTo(HaveOccurred())
			branchAdded, err := event.Decode(events[2])
			Expect(err).NotTo(HaveOccurred())

			Expect(branchAdded.(event.BranchAdded).ParentBranchID).To(
				Equal(first.(event.MessageAdded).BranchID))
		}
	})

	It("reports a full queue instead of blocking", func() {
		appender.gate = make(chan struct{})
		pool, err := ingest.NewPool(&ingest.Config{
			Store:      appender,
			NumWorkers: 1,
			QueueSize:  1,
			Logger:     zap.NewNop(),
		})
		Expect(err).NotTo(HaveOccurred())

		job := ingest.Job{UserID: "user-1", Messages: exportFixture()}

		// First job is picked up by the worker and parks on the gate.
		Expect(pool.Enqueue(job)).To(BeTrue())
		Eventually(func() bool { return pool.Enqueue(job) }).Should(BeFalse())

		close(appender.gate)
		pool.Close()
	})
})

var _ = Describe("Pool against the real store", func() {
	It("produces a log that replays into the parsed conversation", func() {
		root, err := os.MkdirTemp("", "spool-ingest-test-*")
		Expect(err).NotTo(HaveOccurred())
		defer os.RemoveAll(root)

		store, err := storage.NewStore(&storage.Config{Root: root, Logger: zap.NewNop()})
		Expect(err).NotTo(HaveOccurred())
		defer store.Close()

		ctx := context.Background()
		userCreated, err := event.Now(event.TypeUserCreated, event.UserCreated{
			UserID: "user-1", Email: "ada@example.com",
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(store.AppendGlobal(ctx, userCreated)).To(Succeed())

		pool, err := ingest.NewPool(&ingest.Config{Store: store, Logger: zap.NewNop()})
		Expect(err).NotTo(HaveOccurred())
		Expect(pool.Enqueue(ingest.Job{
			UserID:   "user-1",
			Title:    "imported",
			Messages: exportFixture(),
		})).To(BeTrue())
		pool.Close()

		st, r, err := store.ReplayAll(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(r.Skipped()).To(BeZero())
		Expect(st.Conversations).To(HaveLen(1))

		for _, c := range st.Conversations {
			Expect(c.Title).To(Equal("imported"))
			Expect(c.Messages).To(HaveLen(3))
			Expect(c.Messages[1].Branches).To(HaveLen(2))

			active, err := c.ActiveMessages()
			Expect(err).NotTo(HaveOccurred())
			Expect(active[1].Content).To(Equal("a monoid in the category of endofunctors"))
		}
	})
})
