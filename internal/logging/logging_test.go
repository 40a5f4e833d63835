package logging

import "testing"

func TestNew(t *testing.T) {
	tests := []struct {
		env, level string
		wantErr    bool
	}{
		{"dev", "debug", false},
		{"prod", "", false},
		{"prod", "WARN", false},
		{"prod", "loud", true},
	}
	for _, tt := range tests {
		logger, err := New(tt.env, tt.level)
		if (err != nil) != tt.wantErr {
			t.Errorf("New(%q, %q) err = %v, wantErr %v", tt.env, tt.level, err, tt.wantErr)
			continue
		}
		if logger != nil {
			_ = logger.Sync()
		}
	}
}
