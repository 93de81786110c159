package chat_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/spoolhq/spool/pkg/chat"
)

func twoBranchMessage() *chat.Message {
	return &chat.Message{
		ID:             "msg-1",
		ConversationID: "conv-1",
		Branches: []*chat.Branch{
			{ID: "br-1", Role: chat.RoleAssistant, Content: "first draft"},
			{ID: "br-2", Role: chat.RoleAssistant, Content: "second draft"},
		},
		ActiveBranchID: "br-2",
	}
}

var _ = Describe("Message", func() {
	Describe("Branch", func() {
		It("finds a branch by id", func() {
			m := twoBranchMessage()
			Expect(m.Branch("br-1")).NotTo(BeNil())
			Expect(m.Branch("br-1").Content).To(Equal("first draft"))
		})

		It("returns nil for an unknown id", func() {
			Expect(twoBranchMessage().Branch("br-9")).To(BeNil())
		})
	})

	Describe("ActiveBranch", func() {
		It("resolves the selected branch", func() {
			b, err := twoBranchMessage().ActiveBranch()
			Expect(err).NotTo(HaveOccurred())
			Expect(b.ID).To(Equal("br-2"))
		})

		It("reports a consistency error when the selection is dangling", func() {
			m := twoBranchMessage()
			m.ActiveBranchID = "br-gone"

			_, err := m.ActiveBranch()
			var cerr chat.ConsistencyError
			Expect(err).To(BeAssignableToTypeOf(cerr))
			Expect(err.Error()).To(ContainSubstring("br-gone"))
		})
	})
})

var _ = Describe("Conversation", func() {
	newConversation := func() *chat.Conversation {
		return &chat.Conversation{
			ID:     "conv-1",
			UserID: "user-1",
			Messages: []*chat.Message{
				{
					ID: "msg-0",
					Branches: []*chat.Branch{
						{ID: "br-0", Role: chat.RoleUser, Content: "question"},
					},
					ActiveBranchID: "br-0",
				},
				twoBranchMessage(),
			},
		}
	}

	Describe("ActiveMessages", func() {
		It("flattens to the active branch per position", func() {
			active, err := newConversation().ActiveMessages()
			Expect(err).NotTo(HaveOccurred())
			Expect(active).To(HaveLen(2))
			Expect(active[0].Content).To(Equal("question"))
			Expect(active[1].BranchID).To(Equal("br-2"))
			Expect(active[1].Content).To(Equal("second draft"))
		})

		It("fails on the first dangling selection", func() {
			c := newConversation()
			c.Messages[1].ActiveBranchID = "br-gone"

			_, err := c.ActiveMessages()
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("Message", func() {
		It("finds a message by id", func() {
			c := newConversation()
			Expect(c.Message("msg-1")).NotTo(BeNil())
			Expect(c.Message("absent")).To(BeNil())
		})
	})
})
