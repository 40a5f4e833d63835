package app

import (
	"errors"
	"strings"
	"time"

	"gopherai-assistant/internal/ai"
	"gopherai-assistant/internal/model"
	"gopherai-assistant/internal/prompt"
	"gopherai-assistant/internal/store"
)

type Phase string

const (
	PhaseInitializing Phase = "initializing"
	PhaseReady        Phase = "ready"
	PhaseFailed       Phase = "failed"
)

type FeedbackChoice string

const (
	FeedbackNone FeedbackChoice = ""
	FeedbackYes  FeedbackChoice = "yes"
	FeedbackNo   FeedbackChoice = "no"
)

// User-visible messages for the single error slot.
const (
	MsgEmptyInput      = "Please enter your query."
	MsgNoValidResponse = "No valid response from AI. Please try again with a different prompt."
	MsgSessionFailed   = "Failed to initialize the app. Please try again."
	MsgHistoryFailed   = "Failed to load chat history."
	MsgFeedbackFailed  = "Failed to save feedback."
	msgRequestFailed   = "Failed to get a response: "
	msgHistoryNotSaved = "History not saved: "
)

// State is everything one user's assistant view shows.
type State struct {
	Phase    Phase
	AppID    string
	UserID   string
	Mode     prompt.Mode
	Input    string
	Response string
	Label    string
	Error    string
	InFlight bool
	Feedback FeedbackChoice
	History  []model.Record
}

// InitialState is the state before a session exists.
func InitialState() State {
	return State{Phase: PhaseInitializing, Mode: prompt.ModeAnswer}
}

func (s State) Partition() model.Partition {
	return model.Partition{AppID: s.AppID, UserID: s.UserID}
}

// CanSubmit mirrors the submit control: enabled only when ready, idle, and non-empty.
func (s State) CanSubmit() bool {
	return s.Phase == PhaseReady && !s.InFlight && strings.TrimSpace(s.Input) != ""
}

// CanGiveFeedback reports whether a feedback record may be appended now.
func (s State) CanGiveFeedback() bool {
	if s.Phase != PhaseReady || s.Feedback != FeedbackNone || s.Response == "" {
		return false
	}
	_, ok := model.LatestInteraction(s.History)
	return ok
}

// Event is an input to Reduce.
type Event interface{ isEvent() }

type (
	SessionEstablished struct {
		AppID  string
		UserID string
	}
	SessionFailed       struct{ Err error }
	ModeSelected        struct{ Mode prompt.Mode }
	InputChanged        struct{ Text string }
	SubmitRequested     struct{}
	CompletionSucceeded struct {
		Prompt prompt.Prompt
		Text   string
	}
	CompletionFailed      struct{ Err error }
	InteractionSaved      struct{ Record model.Record }
	InteractionSaveFailed struct{ Err error }
	FeedbackGiven         struct{ Helpful bool }
	FeedbackSaved         struct{ Record model.Record }
	FeedbackSaveFailed    struct{ Err error }
	HistoryUpdated        struct{ Records []model.Record }
	HistoryFailed         struct{ Err error }
)

func (SessionEstablished) isEvent()    {}
func (SessionFailed) isEvent()         {}
func (ModeSelected) isEvent()          {}
func (InputChanged) isEvent()          {}
func (SubmitRequested) isEvent()       {}
func (CompletionSucceeded) isEvent()   {}
func (CompletionFailed) isEvent()      {}
func (InteractionSaved) isEvent()      {}
func (InteractionSaveFailed) isEvent() {}
func (FeedbackGiven) isEvent()         {}
func (FeedbackSaved) isEvent()         {}
func (FeedbackSaveFailed) isEvent()    {}
func (HistoryUpdated) isEvent()        {}
func (HistoryFailed) isEvent()         {}

// Effect is work Reduce asks the runner to perform.
type Effect interface{ isEffect() }

type (
	CallGateway       struct{ Prompt prompt.Prompt }
	AppendInteraction struct{ Record *model.Record }
	AppendFeedback    struct{ Record *model.Record }
)

func (CallGateway) isEffect()       {}
func (AppendInteraction) isEffect() {}
func (AppendFeedback) isEffect()    {}

// Reduce is the pure transition function of the assistant view.
func Reduce(s State, ev Event) (State, []Effect) {
	switch e := ev.(type) {
	case SessionEstablished:
		s.Phase = PhaseReady
		s.AppID = e.AppID
		s.UserID = e.UserID
		s.Error = ""
		return s, nil

	case SessionFailed:
		s.Phase = PhaseFailed
		s.UserID = ""
		s.Error = MsgSessionFailed
		return s, nil

	case ModeSelected:
		if s.InFlight {
			return s, nil
		}
		s.Mode = e.Mode
		s.Input = ""
		s.Response = ""
		s.Label = ""
		s.Error = ""
		s.Feedback = FeedbackNone
		return s, nil

	case InputChanged:
		s.Input = e.Text
		return s, nil

	case SubmitRequested:
		if s.Phase != PhaseReady || s.InFlight {
			return s, nil
		}
		if strings.TrimSpace(s.Input) == "" {
			s.Error = MsgEmptyInput
			return s, nil
		}
		p := prompt.Build(s.Mode, s.Input)
		s.InFlight = true
		s.Response = ""
		s.Label = p.Label
		s.Error = ""
		s.Feedback = FeedbackNone
		return s, []Effect{CallGateway{Prompt: p}}

	case CompletionSucceeded:
		if !s.InFlight {
			return s, nil
		}
		s.Response = e.Text
		rec := model.NewInteraction(s.Partition(), string(e.Prompt.Mode), e.Prompt.Text, e.Text)
		return s, []Effect{AppendInteraction{Record: rec}}

	case CompletionFailed:
		s.InFlight = false
		s.Error = completionMessage(e.Err)
		return s, nil

	case InteractionSaved:
		s.InFlight = false
		s.History = prependIfMissing(s.History, e.Record)
		return s, nil

	case InteractionSaveFailed:
		s.InFlight = false
		s.Error = msgHistoryNotSaved + notSavedCause(e.Err)
		return s, nil

	case FeedbackGiven:
		if !s.CanGiveFeedback() {
			return s, nil
		}
		latest, _ := model.LatestInteraction(s.History)
		if e.Helpful {
			s.Feedback = FeedbackYes
		} else {
			s.Feedback = FeedbackNo
		}
		rec := model.NewFeedback(s.Partition(), latest.ID, e.Helpful)
		return s, []Effect{AppendFeedback{Record: rec}}

	case FeedbackSaved:
		s.History = prependIfMissing(s.History, e.Record)
		return s, nil

	case FeedbackSaveFailed:
		s.Error = MsgFeedbackFailed
		return s, nil

	case HistoryUpdated:
		s.History = mergeHistory(e.Records, s.History)
		return s, nil

	case HistoryFailed:
		s.Error = MsgHistoryFailed
		return s, nil
	}
	return s, nil
}

func completionMessage(err error) string {
	if errors.Is(err, ai.ErrNoValidResponse) {
		return MsgNoValidResponse
	}
	return msgRequestFailed + errText(err)
}

func errText(err error) string {
	if err == nil {
		return "unknown error"
	}
	return err.Error()
}

// notSavedCause drops the store's own "history not saved" prefix so the
// message does not repeat it.
func notSavedCause(err error) string {
	text := errText(err)
	if errors.Is(err, store.ErrHistoryNotSaved) {
		text = strings.TrimPrefix(text, store.ErrHistoryNotSaved.Error()+": ")
	}
	return text
}

// prependIfMissing puts a freshly saved record at the head unless the
// subscription already delivered it.
func prependIfMissing(history []model.Record, rec model.Record) []model.Record {
	for _, r := range history {
		if r.ID == rec.ID {
			return history
		}
	}
	out := make([]model.Record, 0, len(history)+1)
	out = append(out, rec)
	return append(out, history...)
}

// mergeHistory adopts snapshot but keeps locally saved records that are newer
// than anything in it; a snapshot read before a local append lags behind.
func mergeHistory(snapshot, current []model.Record) []model.Record {
	var newest time.Time
	if len(snapshot) > 0 {
		newest = snapshot[0].Timestamp
	}
	seen := make(map[string]struct{}, len(snapshot))
	for _, r := range snapshot {
		seen[r.ID] = struct{}{}
	}
	var pending []model.Record
	for _, r := range current {
		if _, ok := seen[r.ID]; ok || !r.Timestamp.After(newest) {
			continue
		}
		pending = append(pending, r)
	}
	if len(pending) == 0 {
		return snapshot
	}
	return append(pending, snapshot...)
}
