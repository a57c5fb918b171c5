package agent

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"kubepilot/internal/journal"
	"kubepilot/internal/mailbox"
	"kubepilot/internal/metrics"
)

// DefaultIdleSleep is how long the worker sleeps before each request-slot
// check.
const DefaultIdleSleep = 3 * time.Second

// failureResponse goes back to the frontend when a query cannot be
// processed; the real cause only lands in the worker log.
const failureResponse = "The agent could not process this request. Check the agent logs for details."

// Worker polls the mailbox for operator queries and drives each one through
// the orchestrator. The metrics and journal sinks are optional.
type Worker struct {
	mailbox      *mailbox.Mailbox
	orchestrator *Orchestrator
	metrics      metrics.Recorder
	journal      journal.Store
	idleSleep    time.Duration
}

// WorkerOptions carries the optional sinks and loop tuning.
type WorkerOptions struct {
	Metrics   metrics.Recorder
	Journal   journal.Store
	IdleSleep time.Duration
}

// NewWorker builds a worker over the mailbox and orchestrator.
func NewWorker(mb *mailbox.Mailbox, orch *Orchestrator, opts WorkerOptions) *Worker {
	sleep := opts.IdleSleep
	if sleep <= 0 {
		sleep = DefaultIdleSleep
	}
	return &Worker{
		mailbox:      mb,
		orchestrator: orch,
		metrics:      opts.Metrics,
		journal:      opts.Journal,
		idleSleep:    sleep,
	}
}

// Run polls for requests until the context is canceled or a quit command
// arrives. The loop sleeps before every check so an empty mailbox never
// spins hot.
func (w *Worker) Run(ctx context.Context) error {
	log.Printf("worker polling %s every %s", w.mailbox.RequestPath(), w.idleSleep)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(w.idleSleep):
		}

		env, ok, err := w.mailbox.NextRequest()
		if err != nil {
			log.Printf("mailbox: %v", err)
			continue
		}
		if !ok {
			continue
		}
		if mailbox.IsQuit(env.Body) {
			log.Printf("quit command received, stopping worker")
			return nil
		}
		w.handle(ctx, env)
	}
}

func (w *Worker) handle(ctx context.Context, env mailbox.Envelope) {
	log.Printf("processing request %d: %s", env.ID, env.Body)

	result, err := w.orchestrator.ProcessQuery(ctx, env.Body)
	if err != nil {
		log.Printf("process query %d: %v", env.ID, err)
		if err := w.mailbox.Respond(env.ID, failureResponse); err != nil {
			log.Printf("respond to %d: %v", env.ID, err)
		}
		return
	}

	if err := w.mailbox.Respond(env.ID, result.Answer); err != nil {
		log.Printf("respond to %d: %v", env.ID, err)
	}
	w.record(ctx, env, result)
}

// record feeds the finished exchange into the sinks. Sink failures are
// logged, never fatal: the answer is already on its way back.
func (w *Worker) record(ctx context.Context, env mailbox.Envelope, result *QueryResult) {
	if w.metrics != nil {
		cycle := metrics.Cycle{
			LatencyMs:    result.LatencyMs,
			InputTokens:  result.Usage.InputTokens,
			OutputTokens: result.Usage.OutputTokens,
			TotalTokens:  result.Usage.TotalTokens,
		}
		if err := w.metrics.RecordCycle(ctx, cycle); err != nil {
			log.Printf("record cycle: %v", err)
		}
		if result.ToolCalled {
			if err := w.metrics.RecordToolCall(ctx, result.ToolName, result.ToolOK, result.ToolElapsed); err != nil {
				log.Printf("record tool call: %v", err)
			}
		}
	}

	if w.journal != nil {
		ex := journal.Exchange{
			ID:           uuid.NewString(),
			RequestID:    env.ID,
			Query:        env.Body,
			Answer:       result.Answer,
			StopReason:   string(result.StopReason),
			ToolName:     result.ToolName,
			LatencyMs:    result.LatencyMs,
			InputTokens:  result.Usage.InputTokens,
			OutputTokens: result.Usage.OutputTokens,
		}
		if err := w.journal.RecordExchange(ctx, ex); err != nil {
			log.Printf("record exchange: %v", err)
		}
	}
}
