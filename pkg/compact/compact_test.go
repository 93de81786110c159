package compact_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/spoolhq/spool/pkg/compact"
	"github.com/spoolhq/spool/pkg/event"
)

var _ = Describe("Compactor", func() {
	var (
		dir       string
		logPath   string
		compactor *compact.Compactor
	)

	writeLog := func(lines ...string) {
		content := strings.Join(lines, "\n") + "\n"
		Expect(os.WriteFile(logPath, []byte(content), 0o644)).To(Succeed())
	}

	readLines := func(path string) []string {
		data, err := os.ReadFile(path)
		Expect(err).NotTo(HaveOccurred())
		trimmed := strings.TrimRight(string(data), "\n")
		if trimmed == "" {
			return nil
		}
		return strings.Split(trimmed, "\n")
	}

	line := func(t event.Type, payload any) string {
		ev, err := event.Now(t, payload)
		Expect(err).NotTo(HaveOccurred())
		data, err := json.Marshal(ev)
		Expect(err).NotTo(HaveOccurred())
		return string(data)
	}

	BeforeEach(func() {
		var err error
		dir, err = os.MkdirTemp("", "spool-compact-test-*")
		Expect(err).NotTo(HaveOccurred())
		logPath = filepath.Join(dir, "conv-1.jsonl")
		compactor = compact.NewCompactor(&compact.Config{Logger: zap.NewNop()})
	})

	AfterEach(func() {
		os.RemoveAll(dir)
	})

	It("drops branch-selection events and keeps the rest", func() {
		writeLog(
			line(event.TypeMessageAdded, event.MessageAdded{
				ConversationID: "conv-1", MessageID: "msg-1", BranchID: "br-1",
				Role: "user", Content: "hello",
			}),
			line(event.TypeActiveBranchChanged, event.ActiveBranchChanged{
				MessageID: "msg-1", BranchID: "br-1",
			}),
		)

		report, err := compactor.CompactFile(logPath)
		Expect(err).NotTo(HaveOccurred())
		Expect(report.EventsRead).To(Equal(2))
		Expect(report.EventsWritten).To(Equal(1))
		Expect(report.RemovedByType).To(HaveKeyWithValue(event.TypeActiveBranchChanged, 1))

		lines := readLines(logPath)
		Expect(lines).To(HaveLen(1))
		Expect(lines[0]).To(ContainSubstring(`"type":"message_added"`))
	})

	It("strips debug fields from inference records but keeps token counts", func() {
		writeLog(line(event.TypeInferenceRecorded, event.InferenceRecorded{
			ConversationID: "conv-1",
			Model:          "claude-sonnet-4",
			PromptTokens:   900,
			DebugRequest:   json.RawMessage(`{"huge":"blob"}`),
			DebugResponse:  json.RawMessage(`{"even":"bigger"}`),
		}))

		report, err := compactor.CompactFile(logPath)
		Expect(err).NotTo(HaveOccurred())
		Expect(report.DebugFieldsStripped).To(Equal(1))

		lines := readLines(logPath)
		Expect(lines).To(HaveLen(1))
		Expect(lines[0]).NotTo(ContainSubstring("debug_request"))
		Expect(lines[0]).NotTo(ContainSubstring("debug_response"))
		Expect(lines[0]).To(ContainSubstring(`"prompt_tokens":900`))
	})

	It("shrinks the file and reports both sizes", func() {
		writeLog(
			line(event.TypeInferenceRecorded, event.InferenceRecorded{
				ConversationID: "conv-1",
				DebugRequest:   json.RawMessage(`{"padding":"` + strings.Repeat("x", 4096) + `"}`),
			}),
		)

		report, err := compactor.CompactFile(logPath)
		Expect(err).NotTo(HaveOccurred())
		Expect(report.BytesAfter).To(BeNumerically("<", report.BytesBefore))
	})

	It("preserves the original byte-for-byte in the backup", func() {
		writeLog(
			line(event.TypeMessageAdded, event.MessageAdded{
				ConversationID: "conv-1", MessageID: "msg-1", BranchID: "br-1",
				Role: "user", Content: "hello",
			}),
			line(event.TypeActiveBranchChanged, event.ActiveBranchChanged{
				MessageID: "msg-1", BranchID: "br-1",
			}),
		)
		original, err := os.ReadFile(logPath)
		Expect(err).NotTo(HaveOccurred())

		report, err := compactor.CompactFile(logPath)
		Expect(err).NotTo(HaveOccurred())
		Expect(report.BackupPath).To(Equal(logPath + compact.BackupSuffix))

		backup, err := os.ReadFile(report.BackupPath)
		Expect(err).NotTo(HaveOccurred())
		Expect(backup).To(Equal(original))
	})

	It("keeps earlier backups intact across repeated runs", func() {
		writeLog(
			line(event.TypeMessageAdded, event.MessageAdded{
				ConversationID: "conv-1", MessageID: "msg-1", BranchID: "br-1",
				Role: "user", Content: "hello",
			}),
			line(event.TypeActiveBranchChanged, event.ActiveBranchChanged{
				MessageID: "msg-1", BranchID: "br-1",
			}),
		)
		original, err := os.ReadFile(logPath)
		Expect(err).NotTo(HaveOccurred())

		first, err := compactor.CompactFile(logPath)
		Expect(err).NotTo(HaveOccurred())
		Expect(first.BackupPath).To(Equal(logPath + compact.BackupSuffix))

		second, err := compactor.CompactFile(logPath)
		Expect(err).NotTo(HaveOccurred())
		Expect(second.BackupPath).NotTo(Equal(first.BackupPath))

		firstBackup, err := os.ReadFile(first.BackupPath)
		Expect(err).NotTo(HaveOccurred())
		Expect(firstBackup).To(Equal(original))

		_, err = os.Stat(second.BackupPath)
		Expect(err).NotTo(HaveOccurred())
	})

	It("passes unparseable lines through unchanged", func() {
		garbage := `{this is not json`
		writeLog(
			garbage,
			line(event.TypeMessageAdded, event.MessageAdded{
				ConversationID: "conv-1", MessageID: "msg-1", BranchID: "br-1",
				Role: "user", Content: "hello",
			}),
		)

		report, err := compactor.CompactFile(logPath)
		Expect(err).NotTo(HaveOccurred())
		Expect(report.PassthroughLines).To(Equal(1))
		Expect(report.EventsRead).To(Equal(1))

		lines := readLines(logPath)
		Expect(lines).To(HaveLen(2))
		Expect(lines[0]).To(Equal(garbage))
	})

	It("leaves an already-compact log semantically identical", func() {
		writeLog(
			line(event.TypeConversationCreated, event.ConversationCreated{
				ConversationID: "conv-1", UserID: "user-1",
			}),
			line(event.TypeMessageAdded, event.MessageAdded{
				ConversationID: "conv-1", MessageID: "msg-1", BranchID: "br-1",
				Role: "user", Content: "hello",
			}),
		)
		before := readLines(logPath)

		report, err := compactor.CompactFile(logPath)
		Expect(err).NotTo(HaveOccurred())
		Expect(report.EventsRead).To(Equal(report.EventsWritten))
		Expect(readLines(logPath)).To(Equal(before))
	})

	It("honors a custom droppable set", func() {
		custom := compact.NewCompactor(&compact.Config{
			Droppable: []event.Type{event.TypeInferenceRecorded},
			Logger:    zap.NewNop(),
		})

		writeLog(
			line(event.TypeInferenceRecorded, event.InferenceRecorded{ConversationID: "conv-1"}),
			line(event.TypeActiveBranchChanged, event.ActiveBranchChanged{
				MessageID: "msg-1", BranchID: "br-1",
			}),
		)

		report, err := custom.CompactFile(logPath)
		Expect(err).NotTo(HaveOccurred())
		Expect(report.RemovedByType).To(HaveKeyWithValue(event.TypeInferenceRecorded, 1))
		// The default drop set is replaced, not extended.
		Expect(report.EventsWritten).To(Equal(1))
	})

	It("fails cleanly when the log does not exist", func() {
		_, err := compactor.CompactFile(filepath.Join(dir, "missing.jsonl"))
		Expect(err).To(HaveOccurred())
	})
})
