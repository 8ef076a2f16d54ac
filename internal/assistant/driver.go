// Package assistant drives one webhook turn through an assistant thread:
// post the user message, run the assistant, answer its tool calls and
// return the thread's messages.
package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/SAO-Estrategia/Asistente-Bellachik/internal/metrics"
	"github.com/SAO-Estrategia/Asistente-Bellachik/internal/storage"
	"github.com/SAO-Estrategia/Asistente-Bellachik/internal/threadlock"
	"github.com/SAO-Estrategia/Asistente-Bellachik/internal/tools"
)

const (
	defaultMaxToolRounds = 10
	defaultTurnTimeout   = 150 * time.Second
	messagePageSize      = 100
)

type Turn struct {
	ThreadID string
	Message  string
	Customer tools.Customer
}

type Message struct {
	Role     string `json:"role"`
	Content  string `json:"content"`
	ThreadID string `json:"thread_id"`
}

type Result struct {
	ThreadID   string
	RunID      string
	RunStatus  openai.RunStatus
	Messages   []Message
	ToolRounds int
}

type Driver struct {
	api         API
	assistantID string
	table       *tools.Table

	locker    threadlock.Locker
	lockWait  time.Duration
	poll      PollConfig
	maxRounds int
	turnTime  time.Duration

	log     *zap.Logger
	metrics *metrics.Metrics
	journal storage.Journal
	tracer  trace.Tracer
}

type Option func(*Driver)

// WithLocker serializes turns per thread, waiting at most wait for the lock.
func WithLocker(l threadlock.Locker, wait time.Duration) Option {
	return func(d *Driver) {
		d.locker = l
		d.lockWait = wait
	}
}

func WithPolling(p PollConfig) Option {
	return func(d *Driver) { d.poll = p }
}

func WithMaxToolRounds(n int) Option {
	return func(d *Driver) {
		if n > 0 {
			d.maxRounds = n
		}
	}
}

// WithTurnTimeout bounds a whole turn, lock wait and tool rounds included.
// A turn cut off by it fails with ErrRunTimedOut.
func WithTurnTimeout(t time.Duration) Option {
	return func(d *Driver) {
		if t > 0 {
			d.turnTime = t
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(d *Driver) { d.log = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Driver) { d.metrics = m }
}

func WithJournal(j storage.Journal) Option {
	return func(d *Driver) { d.journal = j }
}

func WithTracer(t trace.Tracer) Option {
	return func(d *Driver) { d.tracer = t }
}

func New(api API, assistantID string, table *tools.Table, opts ...Option) *Driver {
	d := &Driver{
		api:         api,
		assistantID: assistantID,
		table:       table,
		locker:      threadlock.NewMemory(),
		lockWait:    30 * time.Second,
		poll:        DefaultPollConfig(),
		maxRounds:   defaultMaxToolRounds,
		turnTime:    defaultTurnTimeout,
		log:         zap.NewNop(),
		journal:     storage.Discard{},
		tracer:      otel.Tracer("github.com/SAO-Estrategia/Asistente-Bellachik/internal/assistant"),
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// HandleTurn runs one user message to a settled run. A run that ends failed,
// expired, cancelled or incomplete is not an error: the messages are
// returned and Result.RunStatus says how it ended.
func (d *Driver) HandleTurn(ctx context.Context, turn Turn) (res *Result, err error) {
	if strings.TrimSpace(turn.Message) == "" {
		return nil, ErrEmptyMessage
	}

	start := time.Now()
	rec := storage.TurnRecord{Timestamp: start.UTC(), TurnID: uuid.NewString(), ThreadID: turn.ThreadID}
	ctx, span := d.tracer.Start(ctx, "assistant.turn", trace.WithAttributes(attribute.String("turn.id", rec.TurnID)))
	log := d.log.With(zap.String("turn_id", rec.TurnID))
	ctx, cancel := context.WithTimeoutCause(ctx, d.turnTime, errTurnDeadline)
	defer cancel()
	defer func() {
		rec.Duration = time.Since(start)
		if err != nil && errors.Is(context.Cause(ctx), errTurnDeadline) && !errors.Is(err, ErrRunTimedOut) {
			err = fmt.Errorf("%w: turn exceeded %s: %w", ErrRunTimedOut, d.turnTime, err)
		}
		if err != nil {
			rec.Error = err.Error()
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			log.Warn("turn failed", zap.String("thread_id", rec.ThreadID), zap.Error(err))
		}
		span.End()
		d.metrics.ObserveTurn(outcome(res, err))
		if jerr := d.journal.Append(rec); jerr != nil {
			log.Warn("journal append failed", zap.Error(jerr))
		}
	}()

	threadID := turn.ThreadID
	if threadID == "" {
		th, err := d.api.CreateThread(ctx, openai.ThreadRequest{})
		if err != nil {
			return nil, fmt.Errorf("create thread: %w", err)
		}
		threadID = th.ID
		log.Info("thread created", zap.String("thread_id", threadID))
	} else {
		unlock, err := d.lock(ctx, threadID)
		if err != nil {
			return nil, err
		}
		defer unlock()
	}
	rec.ThreadID = threadID
	span.SetAttributes(attribute.String("assistant.thread_id", threadID))
	log = log.With(zap.String("thread_id", threadID))

	if _, err := d.api.CreateMessage(ctx, threadID, openai.MessageRequest{
		Role:    openai.ChatMessageRoleUser,
		Content: turn.Message,
	}); err != nil {
		return nil, fmt.Errorf("append message: %w", err)
	}

	run, err := d.api.CreateRun(ctx, threadID, openai.RunRequest{AssistantID: d.assistantID})
	if err != nil {
		return nil, fmt.Errorf("create run: %w", err)
	}
	rec.RunID = run.ID
	log = log.With(zap.String("run_id", run.ID))

	registry := d.table.Bind(turn.Customer)
	rounds := 0
	for {
		run, err = d.wait(ctx, threadID, run)
		rec.RunStatus = string(run.Status)
		if err != nil {
			return nil, err
		}
		if run.Status != openai.RunStatusRequiresAction {
			break
		}
		if rounds >= d.maxRounds {
			return nil, fmt.Errorf("%w: run %s asked for tools more than %d times", ErrTooManyToolRounds, run.ID, d.maxRounds)
		}
		calls := pendingCalls(run)
		if len(calls) == 0 {
			return nil, fmt.Errorf("run %s requires action without tool calls", run.ID)
		}
		rounds++
		rec.ToolRounds = rounds

		outputs, outcomes := d.dispatch(ctx, log, registry, calls)
		rec.Tools = append(rec.Tools, outcomes...)
		log.Debug("submitting tool outputs", zap.Int("round", rounds), zap.Int("outputs", len(outputs)))

		run, err = d.api.SubmitToolOutputs(ctx, threadID, run.ID, openai.SubmitToolOutputsRequest{ToolOutputs: outputs})
		if err != nil {
			return nil, fmt.Errorf("submit tool outputs: %w", err)
		}
	}
	d.metrics.ObserveToolRounds(rounds)
	span.SetAttributes(attribute.String("assistant.run_status", string(run.Status)), attribute.Int("assistant.tool_rounds", rounds))
	if run.Status != openai.RunStatusCompleted {
		log.Warn("run ended without completing", zap.String("status", string(run.Status)), zap.Any("last_error", run.LastError))
	}

	msgs, err := d.listMessages(ctx, threadID)
	if err != nil {
		return nil, err
	}
	log.Info("turn done", zap.String("status", string(run.Status)), zap.Int("tool_rounds", rounds), zap.Int("messages", len(msgs)))

	return &Result{
		ThreadID:   threadID,
		RunID:      run.ID,
		RunStatus:  run.Status,
		Messages:   msgs,
		ToolRounds: rounds,
	}, nil
}

func (d *Driver) lock(ctx context.Context, threadID string) (func(), error) {
	if d.locker == nil {
		return func() {}, nil
	}
	lctx := ctx
	if d.lockWait > 0 {
		var cancel context.CancelFunc
		lctx, cancel = context.WithTimeout(ctx, d.lockWait)
		defer cancel()
	}
	unlock, err := d.locker.Lock(lctx, threadID)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}
	return unlock, nil
}

func pendingCalls(run openai.Run) []openai.ToolCall {
	if run.RequiredAction == nil || run.RequiredAction.SubmitToolOutputs == nil {
		return nil
	}
	return run.RequiredAction.SubmitToolOutputs.ToolCalls
}

// dispatch answers each distinct call id exactly once, in order.
func (d *Driver) dispatch(ctx context.Context, log *zap.Logger, reg *tools.Registry, calls []openai.ToolCall) ([]openai.ToolOutput, []storage.ToolOutcome) {
	seen := make(map[string]struct{}, len(calls))
	outputs := make([]openai.ToolOutput, 0, len(calls))
	outcomes := make([]storage.ToolOutcome, 0, len(calls))
	for _, call := range calls {
		if _, dup := seen[call.ID]; dup {
			log.Warn("duplicate tool call id skipped", zap.String("call_id", call.ID), zap.String("tool", call.Function.Name))
			continue
		}
		seen[call.ID] = struct{}{}

		out, ok := d.invoke(ctx, log, reg, call)
		outputs = append(outputs, openai.ToolOutput{ToolCallID: call.ID, Output: out})
		outcomes = append(outcomes, storage.ToolOutcome{Name: call.Function.Name, CallID: call.ID, OK: ok})
	}
	return outputs, outcomes
}

func (d *Driver) invoke(ctx context.Context, log *zap.Logger, reg *tools.Registry, call openai.ToolCall) (string, bool) {
	name := call.Function.Name
	ctx, span := d.tracer.Start(ctx, "assistant.tool", trace.WithAttributes(
		attribute.String("tool.name", name),
		attribute.String("tool.call_id", call.ID),
	))
	defer span.End()
	log = log.With(zap.String("tool", name), zap.String("call_id", call.ID))

	fn, found := reg.Lookup(name)
	if !found {
		log.Warn("tool not implemented")
		d.metrics.ObserveToolCall("unknown", "not_implemented")
		span.SetStatus(codes.Error, "not implemented")
		return errorOutput(fmt.Sprintf("Tool %s not implemented", name)), false
	}

	result, err := safeCall(ctx, fn, json.RawMessage(call.Function.Arguments))
	var out []byte
	if err == nil {
		out, err = json.Marshal(result)
	}
	if err != nil {
		log.Warn("tool failed", zap.Error(err))
		d.metrics.ObserveToolCall(name, "error")
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return errorOutput(err.Error()), false
	}
	d.metrics.ObserveToolCall(name, "ok")
	return string(out), true
}

func safeCall(ctx context.Context, fn tools.Func, args json.RawMessage) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("tool panicked: %v", r)
		}
	}()
	return fn(ctx, args)
}

func errorOutput(msg string) string {
	b, _ := json.Marshal(map[string]string{"error": msg})
	return string(b)
}

// listMessages returns the whole thread oldest first.
func (d *Driver) listMessages(ctx context.Context, threadID string) ([]Message, error) {
	limit := messagePageSize
	order := "asc"
	var after *string
	var out []Message
	for {
		page, err := d.api.ListMessage(ctx, threadID, &limit, &order, after, nil, nil)
		if err != nil {
			return nil, fmt.Errorf("list messages: %w", err)
		}
		for _, m := range page.Messages {
			out = append(out, Message{Role: m.Role, Content: textOf(m), ThreadID: threadID})
		}
		if !page.HasMore || len(page.Messages) == 0 {
			return out, nil
		}
		last := page.Messages[len(page.Messages)-1].ID
		if page.LastID != nil && *page.LastID != "" {
			last = *page.LastID
		}
		after = &last
	}
}

func textOf(m openai.Message) string {
	parts := make([]string, 0, len(m.Content))
	for _, c := range m.Content {
		if c.Text != nil {
			parts = append(parts, c.Text.Value)
		}
	}
	return strings.Join(parts, "\n")
}

func outcome(res *Result, err error) string {
	switch {
	case err == nil && res != nil:
		return string(res.RunStatus)
	case errors.Is(err, ErrRunTimedOut):
		return "timeout"
	case errors.Is(err, ErrThreadBusy):
		return "busy"
	case errors.Is(err, ErrTooManyToolRounds):
		return "too_many_rounds"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "error"
	}
}
