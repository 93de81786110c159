package contextwindow_test

import (
	"fmt"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/spoolhq/spool/pkg/chat"
	"github.com/spoolhq/spool/pkg/contextwindow"
)

// history builds n alternating user/assistant messages.
func history(n int) []chat.ActiveMessage {
	msgs := make([]chat.ActiveMessage, n)
	for i := range msgs {
		role := chat.RoleUser
		if i%2 == 1 {
			role = chat.RoleAssistant
		}
		msgs[i] = chat.ActiveMessage{
			MessageID: fmt.Sprintf("msg-%04d", i),
			BranchID:  fmt.Sprintf("br-%04d", i),
			Role:      role,
			Content:   fmt.Sprintf("message number %d", i),
		}
	}
	return msgs
}

var _ = Describe("NewStrategy", func() {
	It("constructs each named strategy", func() {
		for _, name := range []string{"append", "rolling", "rolling-legacy", "static", "adaptive"} {
			s, err := contextwindow.NewStrategy(contextwindow.StrategyConfig{Name: name})
			Expect(err).NotTo(HaveOccurred())
			Expect(s.Name()).To(Equal(name))
		}
	})

	It("fails fast on an unknown name", func() {
		_, err := contextwindow.NewStrategy(contextwindow.StrategyConfig{Name: "clairvoyant"})
		Expect(err).To(MatchError(contextwindow.UnknownStrategyError{Name: "clairvoyant"}))
	})
})

var _ = Describe("CacheKey", func() {
	It("is deterministic for identical message sequences", func() {
		a := contextwindow.CacheKey(history(10))
		b := contextwindow.CacheKey(history(10))
		Expect(a).To(Equal(b))
		Expect(a).NotTo(BeEmpty())
	})

	It("changes when any single message changes", func() {
		msgs := history(10)
		base := contextwindow.CacheKey(msgs)

		mutated := history(10)
		mutated[4].Content = "message number 4 but edited"
		Expect(contextwindow.CacheKey(mutated)).NotTo(Equal(base))
	})

	It("distinguishes role and content boundaries", func() {
		a := []chat.ActiveMessage{{Role: "user", Content: "ab"}}
		b := []chat.ActiveMessage{{Role: "usera", Content: "b"}}
		Expect(contextwindow.CacheKey(a)).NotTo(Equal(contextwindow.CacheKey(b)))
	})

	It("is empty for an empty sequence", func() {
		Expect(contextwindow.CacheKey(nil)).To(BeEmpty())
	})
})

var _ = Describe("append strategy", func() {
	var s contextwindow.Strategy

	BeforeEach(func() {
		var err error
		s, err = contextwindow.NewStrategy(contextwindow.StrategyConfig{Name: "append"})
		Expect(err).NotTo(HaveOccurred())
	})

	It("sends the entire history with everything but the tail cacheable", func() {
		msgs := history(6)
		w := s.PrepareContext(msgs, nil, nil)

		Expect(w.Messages).To(HaveLen(6))
		Expect(w.CacheablePrefix).To(HaveLen(5))
		Expect(w.Offset).To(BeZero())
		Expect(w.Marker).NotTo(BeNil())
		Expect(w.Marker.MessageID).To(Equal("msg-0004"))
		Expect(s.ShouldRotate(w)).To(BeFalse())
	})

	It("includes a not-yet-persisted new message at the end", func() {
		msgs := history(3)
		newMsg := &chat.ActiveMessage{MessageID: "msg-new", Role: "user", Content: "latest"}
		w := s.PrepareContext(msgs, newMsg, nil)

		Expect(w.Messages).To(HaveLen(4))
		Expect(w.Messages[3].MessageID).To(Equal("msg-new"))
		Expect(w.CacheablePrefix).To(HaveLen(3))
	})

	It("handles an empty history", func() {
		w := s.PrepareContext(nil, nil, nil)
		Expect(w.Messages).To(BeEmpty())
		Expect(w.Marker).To(BeNil())
		Expect(w.Metadata.CacheKey).To(BeEmpty())
	})
})

var _ = Describe("rolling strategy", func() {
	newStrategy := func(name string, max, interval int) contextwindow.Strategy {
		s, err := contextwindow.NewStrategy(contextwindow.StrategyConfig{
			Name:             name,
			MaxMessages:      max,
			RotationInterval: interval,
		})
		Expect(err).NotTo(HaveOccurred())
		return s
	}

	It("keeps the whole history while under the bound", func() {
		s := newStrategy("rolling", 100, 20)
		w := s.PrepareContext(history(100), nil, nil)

		Expect(w.Offset).To(BeZero())
		Expect(w.Messages).To(HaveLen(100))
	})

	It("rotates a full interval when the bound is first exceeded", func() {
		s := newStrategy("rolling", 100, 20)
		w := s.PrepareContext(history(101), nil, nil)

		Expect(w.Offset).To(Equal(20))
		Expect(w.Messages).To(HaveLen(81))
		Expect(w.Messages[0].MessageID).To(Equal("msg-0020"))
	})

	It("holds the boundary fixed until the next interval is crossed", func() {
		s := newStrategy("rolling", 100, 20)

		for n := 101; n <= 120; n++ {
			w := s.PrepareContext(history(n), nil, nil)
			Expect(w.Offset).To(Equal(20), "history length %d", n)
		}

		w := s.PrepareContext(history(121), nil, nil)
		Expect(w.Offset).To(Equal(40))
	})

	It("computes the same boundary for the same history length every time", func() {
		s := newStrategy("rolling", 100, 20)
		first := s.PrepareContext(history(137), nil, nil)
		second := s.PrepareContext(history(137), nil, nil)

		Expect(first.Offset).To(Equal(second.Offset))
		Expect(first.Metadata.CacheKey).To(Equal(second.Metadata.CacheKey))
	})

	It("signals rotation when the window reaches the bound", func() {
		s := newStrategy("rolling", 10, 5)
		w := s.PrepareContext(history(10), nil, nil)
		Expect(s.ShouldRotate(w)).To(BeTrue())

		w = s.PrepareContext(history(9), nil, nil)
		Expect(s.ShouldRotate(w)).To(BeFalse())
	})

	Describe("legacy variant", func() {
		It("slides one message at a time", func() {
			s := newStrategy("rolling-legacy", 100, 20)

			w := s.PrepareContext(history(101), nil, nil)
			Expect(w.Offset).To(Equal(1))
			Expect(w.Messages).To(HaveLen(100))

			w = s.PrepareContext(history(105), nil, nil)
			Expect(w.Offset).To(Equal(5))
		})
	})
})

var _ = Describe("static strategy", func() {
	It("pins the first preambleSize messages as the cacheable prefix", func() {
		s, err := contextwindow.NewStrategy(contextwindow.StrategyConfig{
			Name:         "static",
			PreambleSize: 4,
		})
		Expect(err).NotTo(HaveOccurred())

		w := s.PrepareContext(history(10), nil, nil)
		Expect(w.Messages).To(HaveLen(10))
		Expect(w.CacheablePrefix).To(HaveLen(4))
		Expect(w.Marker.MessageID).To(Equal("msg-0003"))

		// The prefix, and therefore the key, is stable as the tail grows.
		grown := s.PrepareContext(history(25), nil, nil)
		Expect(grown.Metadata.CacheKey).To(Equal(w.Metadata.CacheKey))
	})

	It("treats a short history as all preamble", func() {
		s, err := contextwindow.NewStrategy(contextwindow.StrategyConfig{
			Name:         "static",
			PreambleSize: 8,
		})
		Expect(err).NotTo(HaveOccurred())

		w := s.PrepareContext(history(3), nil, nil)
		Expect(w.CacheablePrefix).To(HaveLen(3))
	})
})

var _ = Describe("adaptive strategy", func() {
	It("behaves like rolling until usage heuristics exist", func() {
		adaptive, err := contextwindow.NewStrategy(contextwindow.StrategyConfig{
			Name:             "adaptive",
			MaxMessages:      100,
			RotationInterval: 20,
		})
		Expect(err).NotTo(HaveOccurred())
		rolling, err := contextwindow.NewStrategy(contextwindow.StrategyConfig{
			Name:             "rolling",
			MaxMessages:      100,
			RotationInterval: 20,
		})
		Expect(err).NotTo(HaveOccurred())

		a := adaptive.PrepareContext(history(101), nil, nil)
		r := rolling.PrepareContext(history(101), nil, nil)
		Expect(a.Offset).To(Equal(r.Offset))
		Expect(a.Metadata.CacheKey).To(Equal(r.Metadata.CacheKey))
	})
})
