// Package chat orchestrates one streaming response: prompt composition,
// conversation formatting, adapter selection, event relay and persistence of
// the final assistant message.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/emberchat/emberchat/internal/backend"
	"github.com/emberchat/emberchat/internal/backend/router"
	"github.com/emberchat/emberchat/internal/catalog"
	"github.com/emberchat/emberchat/internal/metrics"
	"github.com/emberchat/emberchat/internal/prompt"
	"github.com/emberchat/emberchat/internal/store"
	"github.com/emberchat/emberchat/internal/stream"
	"github.com/emberchat/emberchat/internal/transcript"
)

// Service ties the orchestration components together. Each request is an
// independent unit of concurrent work; the session registry serializes
// streams per conversation session.
type Service struct {
	store    store.Store
	router   *router.Router
	sessions *stream.Registry
	template string // behavioral system-prompt template, externally supplied
	profile  string // user-profile description, externally supplied
	logger   *log.Logger
	metrics  *metrics.Collector
}

// Config holds the service's collaborators.
type Config struct {
	Store store.Store
	// Router selects adapters and enforces catalog protection.
	Router *router.Router
	// Template is the behavioral system-prompt template text.
	Template string
	// Profile is the user-profile description fed into every prompt.
	Profile string
	Logger  *log.Logger
	// Metrics is optional; nil gets a private collector.
	Metrics *metrics.Collector
}

// New creates a chat Service.
func New(cfg Config) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	collector := cfg.Metrics
	if collector == nil {
		collector = metrics.NewCollector()
	}
	return &Service{
		store:    cfg.Store,
		router:   cfg.Router,
		sessions: stream.NewRegistry(),
		template: cfg.Template,
		profile:  cfg.Profile,
		logger:   logger,
		metrics:  collector,
	}
}

// Metrics exposes the collector for the HTTP exposition endpoint.
func (s *Service) Metrics() *metrics.Collector {
	return s.metrics
}

// Router exposes the stream router so the CRUD layer can consult
// AssertDeletable before catalog deletions.
func (s *Service) Router() *router.Router {
	return s.router
}

// StreamResponse produces the lazy event sequence for one request. The prompt
// is composed deterministically from the supplied context sources, the
// history is rendered into both wire shapes, and the adapter selected by the
// model's backend kind does the rest. Transport framing is the caller's
// concern.
func (s *Service) StreamResponse(ctx context.Context, ref catalog.ModelRef, pc prompt.Context, history []transcript.Turn) (<-chan stream.Event, error) {
	adapter, err := s.router.Route(ref)
	if err != nil {
		return nil, err
	}
	req := backend.Request{
		Model:      ref.Label,
		System:     prompt.Compose(pc),
		Messages:   transcript.Structured(history),
		Transcript: transcript.Flatten(history),
	}
	return adapter.Stream(ctx, req)
}

// Result is the outcome of a completed (or partially completed) response.
type Result struct {
	Text  string
	Usage *stream.Usage
	// Err is the terminal stream error, if any. Text still carries whatever
	// accumulated before the failure.
	Err error
}

// Respond runs the full flow for one user message: acquires the session's
// stream slot, persists the user turn, streams the model response while
// forwarding fragments to sink, and persists the assistant message once the
// terminal event arrives. A truncated message is persisted on error too, so
// the user does not lose text already shown.
func (s *Service) Respond(ctx context.Context, sessionID, userText string, ref catalog.ModelRef, sink stream.Sink) (Result, error) {
	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	lease, err := s.sessions.TryAcquire(sessionID, cancel)
	if err != nil {
		return Result{}, err
	}
	defer lease.Release()

	sess, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return Result{}, fmt.Errorf("load session: %w", err)
	}
	char, err := s.store.GetCharacter(ctx, sess.CharacterID)
	if err != nil {
		return Result{}, fmt.Errorf("load character: %w", err)
	}

	if err := s.store.AppendMessage(ctx, store.Message{
		SessionID: sessionID,
		Role:      string(transcript.RoleUser),
		Text:      userText,
	}); err != nil {
		return Result{}, fmt.Errorf("persist user message: %w", err)
	}

	history, err := s.loadHistory(ctx, sessionID)
	if err != nil {
		return Result{}, err
	}

	pc := prompt.Context{
		Persona:  char.Persona,
		Template: s.template,
		Profile:  s.profile,
		Metadata: sess.Metadata,
	}

	events, err := s.StreamResponse(streamCtx, ref, pc, history)
	if err != nil {
		return Result{}, err
	}

	s.metrics.RecordStreamStart(string(ref.Kind))
	started := time.Now()
	text, usage, streamErr := stream.Aggregate(streamCtx, events, sink)
	s.metrics.RecordStreamEnd(string(ref.Kind), time.Since(started), errKind(streamErr))
	if usage != nil {
		s.metrics.RecordTokenUsage(ref.Label, int64(usage.PromptTokens), int64(usage.CompletionTokens))
	}

	if text != "" {
		if perr := s.store.AppendMessage(ctx, store.Message{
			SessionID: sessionID,
			Role:      string(transcript.RoleAssistant),
			Text:      text,
		}); perr != nil {
			s.logger.Printf("[ERROR] chat: persist assistant message for session %s: %v", sessionID, perr)
		}
	}
	if streamErr != nil {
		s.logger.Printf("[WARN] chat: session %s stream ended with error after %d bytes: %v", sessionID, len(text), streamErr)
	}

	return Result{Text: text, Usage: usage, Err: streamErr}, nil
}

// Cancel tears down the session's active stream, if any.
func (s *Service) Cancel(sessionID string) bool {
	cancelled := s.sessions.Cancel(sessionID)
	if cancelled {
		s.metrics.RecordCancellation()
	}
	return cancelled
}

// errKind maps a terminal stream error to its metrics label. Plain context
// errors from cancellation count as "cancelled".
func errKind(err error) string {
	if err == nil {
		return ""
	}
	var serr *stream.Error
	if errors.As(err, &serr) {
		return string(serr.Kind)
	}
	return "cancelled"
}

func (s *Service) loadHistory(ctx context.Context, sessionID string) ([]transcript.Turn, error) {
	msgs, err := s.store.ListMessages(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	turns := make([]transcript.Turn, 0, len(msgs))
	for _, m := range msgs {
		turns = append(turns, transcript.Turn{
			Role: transcript.Role(m.Role),
			Text: m.Text,
			At:   m.CreatedAt,
		})
	}
	return turns, nil
}
