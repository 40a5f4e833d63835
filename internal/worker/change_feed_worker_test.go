package worker

import (
	"testing"

	"gopherai-assistant/internal/store"
)

type recordingHandler struct {
	events []store.ChangeEvent
}

func (h *recordingHandler) HandleChange(e store.ChangeEvent) {
	h.events = append(h.events, e)
}

func TestChangeFeedWorker_Handle(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantErr    bool
		wantEvents int
	}{
		{"valid", `{"app_id":"app","user_id":"u1","record_id":"r1","type":"interaction","origin":"node-b"}`, false, 1},
		{"missing partition", `{"app_id":"app","record_id":"r1"}`, true, 0},
		{"garbage", `not json`, true, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := &recordingHandler{}
			w := NewChangeFeedWorker(nil, h, "assistant.changes", nil)
			err := w.handle([]byte(tt.body))
			if (err != nil) != tt.wantErr {
				t.Fatalf("handle() err = %v, wantErr %v", err, tt.wantErr)
			}
			if len(h.events) != tt.wantEvents {
				t.Fatalf("events = %d, want %d", len(h.events), tt.wantEvents)
			}
			if tt.wantEvents == 1 && (h.events[0].UserID != "u1" || h.events[0].Origin != "node-b") {
				t.Errorf("event = %+v", h.events[0])
			}
		})
	}
}
