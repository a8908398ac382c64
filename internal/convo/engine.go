package convo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"tradeid-bot/internal/metrics"
	"tradeid-bot/internal/nlu"
	"tradeid-bot/internal/repo"
)

// IntentResolver classifies free text against the conversational context.
// Its output is advisory; the engine's deterministic rules decide every
// state write.
type IntentResolver interface {
	Resolve(ctx context.Context, message string, convoCtx nlu.Context) (*nlu.Guess, error)
}

// Locker serializes turns for the same number on a best-effort basis.
type Locker interface {
	Lock(ctx context.Context, key string, ttl time.Duration) (func(), bool)
}

// EngineConfig holds tunables for the conversation engine.
type EngineConfig struct {
	MinDeposit float64
}

// Engine drives a client through the onboarding state machine one inbound
// message at a time.
type Engine struct {
	repo     repo.Repository
	resolver IntentResolver
	locks    Locker
	metrics  *metrics.Metrics
	logger   *slog.Logger
	cfg      EngineConfig
}

// New creates a conversation engine. locks may be nil.
func New(repository repo.Repository, resolver IntentResolver, locks Locker, metricRegistry *metrics.Metrics, logger *slog.Logger, cfg EngineConfig) *Engine {
	if cfg.MinDeposit <= 0 {
		cfg.MinDeposit = 250
	}
	return &Engine{
		repo:     repository,
		resolver: resolver,
		locks:    locks,
		metrics:  metricRegistry,
		logger:   logger.With("component", "convo"),
		cfg:      cfg,
	}
}

// Result is the outcome of one conversation turn. A turn that causes no
// transition is still a success.
type Result struct {
	Reply    string
	ClientID string
	State    repo.State
	Intent   string
}

// Process handles one inbound message for a WhatsApp number: it resolves the
// active client record (creating one after a terminal attempt), consults the
// intent resolver, applies the deterministic override rules, persists the
// fully-computed mutation in a single write and composes the reply. When the
// resolver is unreachable the turn answers with the apology reply and leaves
// the record untouched.
func (e *Engine) Process(ctx context.Context, number, message string, rawPayload []byte) (*Result, error) {
	if e.locks != nil {
		unlock, _ := e.locks.Lock(ctx, "convo:"+number, 15*time.Second)
		defer unlock()
	}

	client, err := e.resolveClient(ctx, number)
	if err != nil {
		return nil, err
	}

	e.audit(ctx, client.ID, repo.DirectionInbound, message, rawPayload)

	guess, resolverOK := e.consultResolver(ctx, message, client)
	if !resolverOK {
		// The gateway being down must not advance the conversation; the
		// sender retries the same step.
		e.audit(ctx, client.ID, repo.DirectionOutbound, FallbackReply, nil)
		return &Result{
			Reply:    FallbackReply,
			ClientID: client.ID,
			State:    client.State,
			Intent:   nlu.IntentGeneral,
		}, nil
	}
	intent := nlu.IntentGeneral
	if guess != nil {
		intent = guess.DetectedIntent
	}

	mutation, reply := e.applyOverrides(client, message, guess)

	if mutation != nil {
		updated, err := e.repo.UpdateClientConversation(ctx, client.ID, *mutation)
		if err != nil {
			e.metrics.Errors.WithLabelValues("convo_persist").Inc()
			return nil, fmt.Errorf("persist conversation turn: %w", err)
		}
		client = updated
		e.metrics.Transitions.WithLabelValues(string(mutation.State)).Inc()
	}

	if reply == "" {
		if guess != nil && guess.Response != "" {
			reply = guess.Response
		} else {
			reply = FallbackReply
		}
	}

	e.audit(ctx, client.ID, repo.DirectionOutbound, reply, nil)

	return &Result{
		Reply:    reply,
		ClientID: client.ID,
		State:    client.State,
		Intent:   intent,
	}, nil
}

// resolveClient returns the active record for the number, creating a fresh
// one on first contact or after a terminal attempt. Exactly one active
// record per number exists at a time.
func (e *Engine) resolveClient(ctx context.Context, number string) (*repo.Client, error) {
	client, err := e.repo.LatestClientByNumber(ctx, number)
	switch {
	case errors.Is(err, repo.ErrClientNotFound):
		// fall through to create
	case err != nil:
		return nil, fmt.Errorf("load client: %w", err)
	case !client.State.Terminal():
		return client, nil
	}

	created, err := e.repo.CreateClient(ctx, number)
	if err != nil {
		return nil, fmt.Errorf("create client: %w", err)
	}
	return created, nil
}

// consultResolver asks the intent resolver for a guess. The second return
// value is false when the resolver is unreachable; that turn degrades to the
// apology reply with no state write.
func (e *Engine) consultResolver(ctx context.Context, message string, client *repo.Client) (*nlu.Guess, bool) {
	convoCtx := nlu.Context{
		State:            string(client.State),
		WhatsAppNumber:   client.WhatsAppNumber,
		ClientName:       deref(client.ClientName),
		SelectedPlatform: deref(client.SelectedPlatform),
	}
	if turns, err := e.repo.ListRecentMessages(ctx, client.ID, 6); err == nil {
		for _, t := range turns {
			convoCtx.RecentTurns = append(convoCtx.RecentTurns, nlu.Turn{
				Direction: t.Direction,
				Content:   deref(t.Content),
			})
		}
	}

	guess, err := e.resolver.Resolve(ctx, message, convoCtx)
	if err != nil {
		e.logger.Warn("intent resolver unavailable, degrading to fallback", "error", err)
		e.metrics.Errors.WithLabelValues("nlu").Inc()
		return nil, false
	}
	return guess, true
}

// applyOverrides runs the deterministic rules that take precedence over the
// resolver's suggestion. It returns the fully-computed mutation (nil for a
// no-op turn) and the canned reply for the transition that fired ("" when
// the resolver's text should be used).
func (e *Engine) applyOverrides(client *repo.Client, message string, guess *nlu.Guess) (*repo.ConversationMutation, string) {
	switch client.State {
	case repo.StateAwaitingPlatform:
		if platform, ok := MatchPlatform(message); ok {
			return &repo.ConversationMutation{
				SelectedPlatform: &platform,
				State:            repo.StateAwaitingName,
			}, platformConfirmed(platform)
		}
		// Greeting or a fresh account request re-sends the menu without
		// touching state.
		if guess != nil && (guess.DetectedIntent == nlu.IntentNewID || guess.DetectedIntent == nlu.IntentGreeting) {
			return nil, platformMenu()
		}

	case repo.StateAwaitingName:
		if client.ClientName == nil {
			if name, ok := AcceptableName(message); ok {
				return &repo.ConversationMutation{
					ClientName: &name,
					State:      repo.StateAwaitingPayment,
				}, nameAcknowledged(name, client.Platform(), e.cfg.MinDeposit)
			}
		}
	}

	return nil, ""
}

// audit records a conversation turn; failures are logged, never surfaced.
func (e *Engine) audit(ctx context.Context, clientID, direction, content string, rawPayload []byte) {
	msg := repo.MessageRecord{
		ClientID:   clientID,
		Direction:  direction,
		Content:    &content,
		RawPayload: rawPayload,
	}
	if err := e.repo.InsertMessage(ctx, msg); err != nil {
		e.logger.Warn("failed to audit message", "direction", direction, "error", err)
	}
}

func deref(val *string) string {
	if val == nil {
		return ""
	}
	return *val
}
