package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"gopherai-assistant/internal/ai"
	"gopherai-assistant/internal/metrics"
	"gopherai-assistant/internal/model"
	"gopherai-assistant/internal/prompt"
	"gopherai-assistant/internal/store"
)

// persistTimeout bounds a record write that outlives the caller's context.
const persistTimeout = 10 * time.Second

var (
	ErrSubmissionInFlight = errors.New("a request is already in flight")
	ErrFeedbackNotAllowed = errors.New("no response to rate or feedback already given")
	ErrAssistantClosed    = errors.New("assistant is closed")
)

type Gateway interface {
	GenerateContent(ctx context.Context, req ai.GenerateContentRequest) (string, error)
}

type HistoryStore interface {
	Append(ctx context.Context, record *model.Record) error
	Snapshot(ctx context.Context, partition model.Partition) ([]model.Record, error)
	Subscribe(ctx context.Context, partition model.Partition, onChange func([]model.Record), onError func(error)) (*store.Subscription, error)
}

// Assistant runs the state machine of one user: it applies events, executes
// the resulting effects against the gateway and the store, and keeps history
// current through a store subscription.
type Assistant struct {
	gateway Gateway
	store   HistoryStore
	logger  *zap.Logger

	mu     sync.Mutex
	state  State
	closed bool

	sub    *store.Subscription
	cancel context.CancelFunc
}

func NewAssistant(gateway Gateway, historyStore HistoryStore, logger *zap.Logger) *Assistant {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Assistant{
		gateway: gateway,
		store:   historyStore,
		logger:  logger,
		state:   InitialState(),
	}
}

// Start binds the assistant to a partition and subscribes to its history.
func (a *Assistant) Start(partition model.Partition) error {
	if !partition.Valid() {
		a.dispatch(SessionFailed{Err: model.ErrInvalidRecord})
		return fmt.Errorf("%w: user id is missing", ErrSessionFailed)
	}
	a.dispatch(SessionEstablished{AppID: partition.AppID, UserID: partition.UserID})

	ctx, cancel := context.WithCancel(context.Background())
	sub, err := a.store.Subscribe(ctx, partition,
		func(records []model.Record) { a.dispatch(HistoryUpdated{Records: records}) },
		func(err error) { a.dispatch(HistoryFailed{Err: err}) },
	)
	if err != nil {
		cancel()
		a.dispatch(SessionFailed{Err: err})
		return fmt.Errorf("%w: %w", ErrSessionFailed, err)
	}

	a.mu.Lock()
	a.sub = sub
	a.cancel = cancel
	a.mu.Unlock()
	return nil
}

// State returns a copy of the current state.
func (a *Assistant) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	s := a.state
	s.History = append([]model.Record(nil), a.state.History...)
	return s
}

// SelectMode switches the instruction template and clears the turn.
func (a *Assistant) SelectMode(mode prompt.Mode) (State, error) {
	if !mode.Valid() {
		return a.State(), fmt.Errorf("%w: unknown mode %q", ErrInvalidInput, mode)
	}
	a.mu.Lock()
	if a.state.InFlight {
		a.mu.Unlock()
		return a.State(), ErrSubmissionInFlight
	}
	a.apply(ModeSelected{Mode: mode})
	a.mu.Unlock()
	return a.State(), nil
}

// Submit sends text under mode (the current mode when empty) to the gateway
// and records the interaction. The returned state carries the response even
// when persisting it failed.
func (a *Assistant) Submit(ctx context.Context, mode prompt.Mode, text string) (State, error) {
	if mode != "" && !mode.Valid() {
		return a.State(), fmt.Errorf("%w: unknown mode %q", ErrInvalidInput, mode)
	}

	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return a.State(), ErrAssistantClosed
	}
	if a.state.Phase != PhaseReady {
		a.mu.Unlock()
		return a.State(), ErrSessionFailed
	}
	if a.state.InFlight {
		a.mu.Unlock()
		return a.State(), ErrSubmissionInFlight
	}
	if mode != "" && mode != a.state.Mode {
		a.apply(ModeSelected{Mode: mode})
	}
	a.apply(InputChanged{Text: text})
	effects := a.apply(SubmitRequested{})
	current := a.state.Mode
	a.mu.Unlock()

	if len(effects) == 0 {
		metrics.Submissions.WithLabelValues(string(current), "empty").Inc()
		return a.State(), fmt.Errorf("%w: %s", ErrInvalidInput, strings.TrimSuffix(MsgEmptyInput, "."))
	}
	err := a.run(ctx, effects)
	metrics.Submissions.WithLabelValues(string(current), submitOutcome(err)).Inc()
	return a.State(), err
}

// Feedback records whether the latest response was helpful.
func (a *Assistant) Feedback(ctx context.Context, helpful bool) (State, error) {
	a.mu.Lock()
	if !a.state.CanGiveFeedback() {
		a.mu.Unlock()
		return a.State(), ErrFeedbackNotAllowed
	}
	effects := a.apply(FeedbackGiven{Helpful: helpful})
	a.mu.Unlock()
	return a.State(), a.run(ctx, effects)
}

// Close cancels the history subscription. It must not be called from a
// subscription callback.
func (a *Assistant) Close() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.closed = true
	sub, cancel := a.sub, a.cancel
	a.mu.Unlock()

	if sub != nil {
		sub.Cancel()
	}
	if cancel != nil {
		cancel()
	}
}

func (a *Assistant) dispatch(ev Event) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.apply(ev)
}

// apply must be called with mu held.
func (a *Assistant) apply(ev Event) []Effect {
	next, effects := Reduce(a.state, ev)
	a.state = next
	return effects
}

// run executes effects outside the lock and feeds their outcome back.
func (a *Assistant) run(ctx context.Context, effects []Effect) error {
	var firstErr error
	for len(effects) > 0 {
		effect := effects[0]
		effects = effects[1:]

		var ev Event
		switch e := effect.(type) {
		case CallGateway:
			text, err := a.gateway.GenerateContent(ctx, e.Prompt.Request)
			if err != nil {
				a.logger.Warn("gateway call failed", zap.String("mode", string(e.Prompt.Mode)), zap.Error(err))
				ev = CompletionFailed{Err: err}
				firstErr = err
			} else {
				ev = CompletionSucceeded{Prompt: e.Prompt, Text: text}
			}
		case AppendInteraction:
			if err := a.persist(ctx, e.Record); err != nil {
				a.logger.Error("append interaction failed", zap.Error(err))
				ev = InteractionSaveFailed{Err: err}
				firstErr = err
			} else {
				ev = InteractionSaved{Record: *e.Record}
			}
		case AppendFeedback:
			if err := a.persist(ctx, e.Record); err != nil {
				a.logger.Error("append feedback failed", zap.Error(err))
				ev = FeedbackSaveFailed{Err: err}
				firstErr = err
			} else {
				ev = FeedbackSaved{Record: *e.Record}
			}
		default:
			continue
		}

		a.mu.Lock()
		effects = append(effects, a.apply(ev)...)
		a.mu.Unlock()
	}
	return firstErr
}

// persist writes record even when ctx was canceled after the response
// arrived, e.g. by a client that went away.
func (a *Assistant) persist(ctx context.Context, record *model.Record) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()
	return a.store.Append(ctx, record)
}

func submitOutcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ai.ErrNoValidResponse):
		return "no_valid_response"
	case errors.Is(err, store.ErrHistoryNotSaved):
		return "not_saved"
	default:
		return "provider_error"
	}
}
