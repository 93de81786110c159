// Package ingest provides an asynchronous worker pool that folds parsed
// third-party chat exports into the Message/Branch model via ordinary
// creation events — never a bypass of the event log.
//
// The pool decouples import folding from the request hot path: a parser
// (external collaborator) produces flat chat.ParsedMessage records, the pool
// turns them into message_added / message_branch_added events appended
// through the store, and records active-branch selections in the overlay.
package ingest

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spoolhq/spool/pkg/chat"
	"github.com/spoolhq/spool/pkg/event"
)

var (
	defaultNumWorkers   uint = 3
	defaultJobQueueSize uint = 256
)

// Appender is the slice of the storage service the pool writes through.
type Appender interface {
	AppendUser(ctx context.Context, userID string, ev event.Event) error
	AppendConversation(ctx context.Context, conversationID string, ev event.Event) error
	SelectBranch(conversationID, messageID, branchID string) error
}

// Job is one parsed conversation to fold into the store.
type Job struct {
	UserID   string
	Title    string
	Model    string
	Messages []chat.ParsedMessage
}

// Config is the configuration options for the ingest pool.
type Config struct {
	// Store receives the generated events.
	Store Appender

	// NumWorkers is the number of background workers in the pool.
	NumWorkers uint

	// QueueSize is the capacity of the buffered job channel (defaults to 256).
	QueueSize uint

	// Logger is the provided zap logger.
	Logger *zap.Logger
}

// Pool folds import jobs asynchronously via a worker pool.
type Pool struct {
	config *Config
	queue  chan Job
	wg     sync.WaitGroup
	logger *zap.Logger
}

// NewPool creates a new Pool and starts its worker goroutines.
func NewPool(c *Config) (*Pool, error) {
	if c.NumWorkers == 0 {
		c.NumWorkers = defaultNumWorkers
	}

	if c.QueueSize == 0 {
		c.QueueSize = defaultJobQueueSize
	}

	if c.NumWorkers > uint(math.MaxInt) {
		return nil, fmt.Errorf("NumWorkers %d exceeds max int", c.NumWorkers)
	}

	p := &Pool{
		config: c,
		queue:  make(chan Job, c.QueueSize),
		logger: c.Logger,
	}

	p.wg.Add(int(c.NumWorkers))
	for i := range c.NumWorkers {
		go p.worker(i)
	}

	return p, nil
}

// Enqueue submits a job for processing by the worker pool.
// Returns true if enqueued, false if the queue is full and the job dropped.
func (p *Pool) Enqueue(job Job) bool {
	select {
	case p.queue <- job:
		p.logger.Debug("import job queued",
			zap.String("user", job.UserID),
			zap.Int("messages", len(job.Messages)),
		)
		return true
	default:
		p.logger.Error("import job not queued, queue full, job dropped",
			zap.String("user", job.UserID),
			zap.Int("messages", len(job.Messages)),
		)
		return false
	}
}

// Close signals workers to stop and waits for in-flight jobs to drain.
func (p *Pool) Close() {
	close(p.queue)
	p.wg.Wait()
}

// worker is the inner worker goroutine that continuously pulls jobs off the
// queue.
func (p *Pool) worker(id uint) {
	defer p.wg.Done()
	p.logger.Debug("ingest worker started", zap.Uint("worker_id", id))

	for job := range p.queue {
		p.processJob(job)
	}

	p.logger.Debug("ingest worker stopped", zap.Uint("worker_id", id))
}

// processJob folds one parsed conversation into events.
func (p *Pool) processJob(job Job) {
	ctx := context.Background()

	conversationID, err := p.fold(ctx, job)
	if err != nil {
		p.logger.Error("import folding failed",
			zap.String("user", job.UserID),
			zap.Error(err),
		)
		return
	}

	p.logger.Info("conversation imported",
		zap.String("conversation", conversationID),
		zap.String("user", job.UserID),
		zap.Int("messages", len(job.Messages)),
	)
}

// fold emits a conversation_created event on the user's log, then one
// message_added per branch group and message_branch_added for each
// alternative, preserving parsed order. The exported active branch lands in
// the overlay store, matching how a live branch switch would be recorded.
func (p *Pool) fold(ctx context.Context, job Job) (string, error) {
	conversationID := uuid.NewString()

	created, err := event.Now(event.TypeConversationCreated, event.ConversationCreated{
		ConversationID: conversationID,
		UserID:         job.UserID,
		Title:          job.Title,
		Model:          job.Model,
	})
	if err != nil {
		return "", err
	}
	if err := p.config.Store.AppendUser(ctx, job.UserID, created); err != nil {
		return "", fmt.Errorf("appending conversation_created: %w", err)
	}

	// messageByGroup tracks the message created for each branch group;
	// branchByIndex lets later records reference their parent branch.
	messageByGroup := make(map[int]string)
	branchByIndex := make(map[int]string)

	for i, pm := range job.Messages {
		branchID := uuid.NewString()
		branchByIndex[i] = branchID

		ts := pm.CreatedAt
		if ts.IsZero() {
			ts = time.Now()
		}

		messageID, seen := messageByGroup[pm.Group]
		if !seen {
			messageID = uuid.NewString()
			messageByGroup[pm.Group] = messageID

			ev, err := event.New(ts, event.TypeMessageAdded, event.MessageAdded{
				ConversationID: conversationID,
				MessageID:      messageID,
				BranchID:       branchID,
				Role:           pm.Role,
				Content:        pm.Content,
				Model:          pm.Model,
			})
			if err != nil {
				return "", err
			}
			if err := p.config.Store.AppendConversation(ctx, conversationID, ev); err != nil {
				return "", fmt.Errorf("appending message_added: %w", err)
			}
		} else {
			var parentBranchID string
			if pm.ParentIndex >= 0 {
				parentBranchID = branchByIndex[pm.ParentIndex]
			}

			ev, err := event.New(ts, event.TypeBranchAdded, event.BranchAdded{
				MessageID:      messageID,
				BranchID:       branchID,
				Role:           pm.Role,
				Content:        pm.Content,
				Model:          pm.Model,
				ParentBranchID: parentBranchID,
			})
			if err != nil {
				return "", err
			}
			if err := p.config.Store.AppendConversation(ctx, conversationID, ev); err != nil {
				return "", fmt.Errorf("appending message_branch_added: %w", err)
			}
		}

		if pm.Active && seen {
			if err := p.config.Store.SelectBranch(conversationID, messageID, branchID); err != nil {
				return "", fmt.Errorf("recording branch selection: %w", err)
			}
		}
	}

	return conversationID, nil
}
