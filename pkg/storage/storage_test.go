package storage_test

import (
	"context"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/spoolhq/spool/pkg/event"
	"github.com/spoolhq/spool/pkg/storage"
)

var _ = Describe("Store", func() {
	var (
		root  string
		store *storage.Store
		ctx   context.Context
	)

	BeforeEach(func() {
		var err error
		root, err = os.MkdirTemp("", "spool-storage-test-*")
		Expect(err).NotTo(HaveOccurred())
		ctx = context.Background()

		store, err = storage.NewStore(&storage.Config{
			Root:   root,
			Logger: zap.NewNop(),
		})
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		store.Close()
		os.RemoveAll(root)
	})

	mustEvent := func(t event.Type, payload any) event.Event {
		ev, err := event.Now(t, payload)
		Expect(err).NotTo(HaveOccurred())
		return ev
	}

	// seed writes a user, a conversation, and one two-branch message across
	// the three scopes.
	seed := func() {
		Expect(store.AppendGlobal(ctx, mustEvent(event.TypeUserCreated, event.UserCreated{
			UserID: "user-1", Email: "ada@example.com",
		}))).To(Succeed())

		Expect(store.AppendUser(ctx, "user-1", mustEvent(event.TypeConversationCreated, event.ConversationCreated{
			ConversationID: "conv-1", UserID: "user-1", Title: "boids",
		}))).To(Succeed())

		Expect(store.AppendConversation(ctx, "conv-1", mustEvent(event.TypeMessageAdded, event.MessageAdded{
			ConversationID: "conv-1", MessageID: "msg-1", BranchID: "br-1",
			Role: "user", Content: "how do boids flock?",
		}))).To(Succeed())
		Expect(store.AppendConversation(ctx, "conv-1", mustEvent(event.TypeBranchAdded, event.BranchAdded{
			MessageID: "msg-1", BranchID: "br-2",
			Role: "user", Content: "explain boid flocking",
		}))).To(Succeed())
	}

	Describe("NewStore", func() {
		It("requires a root", func() {
			_, err := storage.NewStore(&storage.Config{Logger: zap.NewNop()})
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("scope routing", func() {
		It("writes each scope under its own entity class", func() {
			seed()

			_, err := os.Stat(filepath.Join(root, "global", "gl", "ob", "global.jsonl"))
			Expect(err).NotTo(HaveOccurred())
			_, err = os.Stat(filepath.Join(root, "users", "us", "er", "user-1.jsonl"))
			Expect(err).NotTo(HaveOccurred())
			_, err = os.Stat(filepath.Join(root, "conversations", "co", "nv", "conv-1.jsonl"))
			Expect(err).NotTo(HaveOccurred())
		})
	})

	Describe("ReplayAll", func() {
		It("reconstructs state across all three scopes", func() {
			seed()

			st, r, err := store.ReplayAll(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(r.Skipped()).To(BeZero())

			Expect(st.Users).To(HaveKey("user-1"))
			c := st.Conversations["conv-1"]
			Expect(c).NotTo(BeNil())
			Expect(c.Title).To(Equal("boids"))
			Expect(c.Messages).To(HaveLen(1))
			Expect(c.Messages[0].Branches).To(HaveLen(2))
		})

		It("is idempotent: replaying twice yields the same state", func() {
			seed()

			first, _, err := store.ReplayAll(ctx)
			Expect(err).NotTo(HaveOccurred())
			second, _, err := store.ReplayAll(ctx)
			Expect(err).NotTo(HaveOccurred())

			fa, err := first.Conversations["conv-1"].ActiveMessages()
			Expect(err).NotTo(HaveOccurred())
			sa, err := second.Conversations["conv-1"].ActiveMessages()
			Expect(err).NotTo(HaveOccurred())
			Expect(fa).To(Equal(sa))
		})

		It("applies overlay branch selections on top of the log", func() {
			seed()
			Expect(store.SelectBranch("conv-1", "msg-1", "br-2")).To(Succeed())

			st, _, err := store.ReplayAll(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(st.Conversations["conv-1"].Messages[0].ActiveBranchID).To(Equal("br-2"))
		})

		It("returns empty state for an empty store", func() {
			st, r, err := store.ReplayAll(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(st.Users).To(BeEmpty())
			Expect(st.Conversations).To(BeEmpty())
			Expect(r.Skipped()).To(BeZero())
		})
	})

	Describe("ConversationEvents", func() {
		It("loads a single conversation's log in order", func() {
			seed()

			events, err := store.ConversationEvents(ctx, "conv-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(events).To(HaveLen(2))
			Expect(events[0].Type).To(Equal(event.TypeMessageAdded))
			Expect(events[1].Type).To(Equal(event.TypeBranchAdded))
		})
	})

	Describe("DeleteConversation", func() {
		It("records the deletion and drops the overlay document", func() {
			seed()
			Expect(store.SelectBranch("conv-1", "msg-1", "br-2")).To(Succeed())

			Expect(store.DeleteConversation(ctx, "user-1", "conv-1")).To(Succeed())

			st, _, err := store.ReplayAll(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(st.Conversations).To(BeEmpty())

			_, err = os.Stat(store.Selections().Path("conv-1"))
			Expect(os.IsNotExist(err)).To(BeTrue())
		})

		It("keeps the conversation's log file on disk", func() {
			seed()
			Expect(store.DeleteConversation(ctx, "user-1", "conv-1")).To(Succeed())

			_, err := os.Stat(filepath.Join(root, "conversations", "co", "nv", "conv-1.jsonl"))
			Expect(err).NotTo(HaveOccurred())
		})
	})
})
