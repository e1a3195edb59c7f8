package door

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestParseState(t *testing.T) {
	tests := []struct {
		input   string
		want    State
		wantErr bool
	}{
		{"0", StateOpen, false},
		{"1", StateClosed, false},
		{"2", StateOpening, false},
		{"3", StateClosing, false},
		{"open", StateOpen, false},
		{"closed", StateClosed, false},
		{"close", StateClosed, false},
		{"opening", StateOpening, false},
		{"closing", StateClosing, false},
		{"OPEN", StateOpen, false},
		{" open ", StateOpen, false},
		{"4", 0, true},
		{"ajar", 0, true},
		{"", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseState(tt.input)
			if tt.wantErr {
				if !errors.Is(err, ErrUnknownState) {
					t.Fatalf("error = %v, want ErrUnknownState", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("ParseState(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestStateTerminal(t *testing.T) {
	if !StateOpen.Terminal() || !StateClosed.Terminal() {
		t.Error("open and closed should be terminal")
	}
	if StateOpening.Terminal() || StateClosing.Terminal() {
		t.Error("opening and closing should not be terminal")
	}
}

func TestStatusJSONUsesStateNames(t *testing.T) {
	data, err := json.Marshal(Status{Device: "garage-door", Current: StateOpening, Target: StateOpen})
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if decoded["current_state"] != "opening" {
		t.Errorf("current_state = %v, want opening", decoded["current_state"])
	}
	if decoded["target_state"] != "open" {
		t.Errorf("target_state = %v, want open", decoded["target_state"])
	}
}
