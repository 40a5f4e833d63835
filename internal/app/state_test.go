package app

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"gopherai-assistant/internal/ai"
	"gopherai-assistant/internal/model"
	"gopherai-assistant/internal/prompt"
	"gopherai-assistant/internal/store"
)

func readyState() State {
	s, _ := Reduce(InitialState(), SessionEstablished{AppID: "app", UserID: "u1"})
	return s
}

func savedInteraction(id string) model.Record {
	return model.Record{
		ID: id, AppID: "app", UserID: "u1", Type: model.TypeInteraction,
		Prompt: "q", AIResponse: "a", Function: "answer", Timestamp: time.Now(),
	}
}

func TestReduce_SessionLifecycle(t *testing.T) {
	s := InitialState()
	if s.Phase != PhaseInitializing || s.Mode != prompt.ModeAnswer {
		t.Fatalf("initial = %+v", s)
	}
	s.Input = "hello"
	if s.CanSubmit() {
		t.Error("CanSubmit before session")
	}
	if _, effects := Reduce(s, SubmitRequested{}); len(effects) != 0 {
		t.Error("submit before session produced effects")
	}

	failed, _ := Reduce(s, SessionFailed{Err: errors.New("boom")})
	if failed.Phase != PhaseFailed || failed.Error != MsgSessionFailed {
		t.Errorf("failed = %+v", failed)
	}

	ready := readyState()
	if ready.Phase != PhaseReady || ready.UserID != "u1" || ready.AppID != "app" {
		t.Errorf("ready = %+v", ready)
	}
}

func TestReduce_SubmitEmptyInput(t *testing.T) {
	for _, input := range []string{"", "   ", "\n\t"} {
		s := readyState()
		s, _ = Reduce(s, InputChanged{Text: input})
		next, effects := Reduce(s, SubmitRequested{})
		if len(effects) != 0 {
			t.Errorf("input %q produced effects", input)
		}
		if next.Error != MsgEmptyInput || next.InFlight {
			t.Errorf("input %q: state = %+v", input, next)
		}
	}
}

func TestReduce_SubmitFlow(t *testing.T) {
	s := readyState()
	s, _ = Reduce(s, ModeSelected{Mode: prompt.ModeSummarize})
	s, _ = Reduce(s, InputChanged{Text: "long text"})
	if !s.CanSubmit() {
		t.Fatal("CanSubmit = false")
	}

	s, effects := Reduce(s, SubmitRequested{})
	if !s.InFlight || s.Label != "Text Summary" || len(effects) != 1 {
		t.Fatalf("after submit: state = %+v effects = %v", s, effects)
	}
	call, ok := effects[0].(CallGateway)
	if !ok || call.Prompt.Instruction != `Summarize the following text: "long text"` {
		t.Fatalf("effect = %#v", effects[0])
	}

	if _, again := Reduce(s, SubmitRequested{}); len(again) != 0 {
		t.Error("second submit while in flight produced effects")
	}

	s, effects = Reduce(s, CompletionSucceeded{Prompt: call.Prompt, Text: "short"})
	if s.Response != "short" || !s.InFlight {
		t.Fatalf("after completion: %+v", s)
	}
	appendEffect, ok := effects[0].(AppendInteraction)
	if !ok {
		t.Fatalf("effect = %#v", effects[0])
	}
	rec := appendEffect.Record
	if rec.Function != "summarize" || rec.Prompt != "long text" || rec.AIResponse != "short" ||
		rec.UserID != "u1" || rec.AppID != "app" || rec.Type != model.TypeInteraction {
		t.Errorf("record = %+v", rec)
	}

	rec.ID = "i1"
	s, _ = Reduce(s, InteractionSaved{Record: *rec})
	if s.InFlight || len(s.History) != 1 || s.History[0].ID != "i1" {
		t.Errorf("after save: %+v", s)
	}
}

func TestReduce_CompletionErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"no valid response", ai.ErrNoValidResponse, MsgNoValidResponse},
		{"provider", &ai.APIError{StatusCode: 500, Message: "Internal"}, "Failed to get a response: API Error: 500 - Internal"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := readyState()
			s, _ = Reduce(s, InputChanged{Text: "q"})
			s, _ = Reduce(s, SubmitRequested{})
			s, effects := Reduce(s, CompletionFailed{Err: tt.err})
			if len(effects) != 0 || s.InFlight || s.Response != "" {
				t.Errorf("state = %+v effects = %v", s, effects)
			}
			if s.Error != tt.want {
				t.Errorf("error = %q, want %q", s.Error, tt.want)
			}
		})
	}
}

func TestReduce_SaveFailureKeepsResponse(t *testing.T) {
	s := readyState()
	s, _ = Reduce(s, InputChanged{Text: "q"})
	s, effects := Reduce(s, SubmitRequested{})
	s, _ = Reduce(s, CompletionSucceeded{Prompt: effects[0].(CallGateway).Prompt, Text: "a"})
	s, _ = Reduce(s, InteractionSaveFailed{Err: errors.New("disk full")})

	if s.Response != "a" || s.InFlight {
		t.Errorf("state = %+v", s)
	}
	if !strings.HasPrefix(s.Error, "History not saved: ") || !strings.Contains(s.Error, "disk full") {
		t.Errorf("error = %q", s.Error)
	}
}

func TestReduce_SaveFailureMessageStatesCauseOnce(t *testing.T) {
	s := readyState()
	s, _ = Reduce(s, InputChanged{Text: "q"})
	s, effects := Reduce(s, SubmitRequested{})
	s, _ = Reduce(s, CompletionSucceeded{Prompt: effects[0].(CallGateway).Prompt, Text: "a"})
	cause := fmt.Errorf("%w: %w", store.ErrHistoryNotSaved, errors.New("create interaction record failed: disk full"))
	s, _ = Reduce(s, InteractionSaveFailed{Err: cause})

	want := "History not saved: create interaction record failed: disk full"
	if s.Error != want {
		t.Errorf("error = %q, want %q", s.Error, want)
	}
}

func TestReduce_ModeChangeClearsTurn(t *testing.T) {
	s := readyState()
	s.Input, s.Response, s.Error, s.Feedback = "x", "y", "z", FeedbackYes
	s, _ = Reduce(s, ModeSelected{Mode: prompt.ModeGenerate})
	if s.Mode != prompt.ModeGenerate || s.Input != "" || s.Response != "" || s.Error != "" || s.Feedback != FeedbackNone {
		t.Errorf("state = %+v", s)
	}

	s.InFlight = true
	s, _ = Reduce(s, ModeSelected{Mode: prompt.ModeAnswer})
	if s.Mode != prompt.ModeGenerate {
		t.Error("mode changed while in flight")
	}
}

func TestReduce_FeedbackTargetsNewestInteraction(t *testing.T) {
	s := readyState()
	s.Response = "a"
	helpful := true
	// The head is a feedback record, so the target must skip it.
	s.History = []model.Record{
		{ID: "f1", Type: model.TypeFeedback, ForInteractionID: "i1", FeedbackValue: &helpful},
		savedInteraction("i2"),
		savedInteraction("i1"),
	}

	next, effects := Reduce(s, FeedbackGiven{Helpful: false})
	if len(effects) != 1 || next.Feedback != FeedbackNo {
		t.Fatalf("state = %+v effects = %v", next, effects)
	}
	rec := effects[0].(AppendFeedback).Record
	if rec.ForInteractionID != "i2" || rec.FeedbackValue == nil || *rec.FeedbackValue {
		t.Errorf("feedback record = %+v", rec)
	}

	if _, again := Reduce(next, FeedbackGiven{Helpful: true}); len(again) != 0 {
		t.Error("second feedback in one turn accepted")
	}

	failed, _ := Reduce(next, FeedbackSaveFailed{Err: errors.New("x")})
	if failed.Error != MsgFeedbackFailed {
		t.Errorf("error = %q", failed.Error)
	}
}

func TestReduce_FeedbackNeedsResponse(t *testing.T) {
	s := readyState()
	s.History = []model.Record{savedInteraction("i1")}
	if _, effects := Reduce(s, FeedbackGiven{Helpful: true}); len(effects) != 0 {
		t.Error("feedback accepted without a response on screen")
	}
}

func TestReduce_History(t *testing.T) {
	s := readyState()
	records := []model.Record{savedInteraction("i1")}
	s, _ = Reduce(s, HistoryUpdated{Records: records})
	if len(s.History) != 1 {
		t.Errorf("history = %d records", len(s.History))
	}

	// A record the subscription already delivered is not duplicated.
	s, _ = Reduce(s, InteractionSaved{Record: records[0]})
	if len(s.History) != 1 {
		t.Errorf("history = %d records after duplicate save", len(s.History))
	}

	// A snapshot that predates a local save does not drop the saved record.
	newer := savedInteraction("i2")
	newer.Timestamp = records[0].Timestamp.Add(time.Second)
	s, _ = Reduce(s, InteractionSaved{Record: newer})
	s, _ = Reduce(s, HistoryUpdated{Records: records})
	if len(s.History) != 2 || s.History[0].ID != "i2" {
		t.Errorf("history after stale snapshot = %+v", s.History)
	}

	s, _ = Reduce(s, HistoryFailed{Err: errors.New("x")})
	if s.Error != MsgHistoryFailed {
		t.Errorf("error = %q", s.Error)
	}
}
