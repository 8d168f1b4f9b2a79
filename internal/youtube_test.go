package internal

import "testing"

func TestParseISODuration(t *testing.T) {
	tests := []struct {
		input   string
		want    int
		wantErr bool
	}{
		{"PT15S", 15, false},
		{"PT2M", 120, false},
		{"PT1H", 3600, false},
		{"PT1H2M3S", 3723, false},
		{"PT10M30S", 630, false},
		{"PT0S", 0, false},
		{"", 0, true},
		{"15M", 0, true},
		{"PTXS", 0, true},
		{"P1DT1H", 0, true}, // day component not used by video durations
	}

	for _, tt := range tests {
		got, err := ParseISODuration(tt.input)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseISODuration(%q): expected error, got %d", tt.input, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseISODuration(%q): unexpected error: %v", tt.input, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseISODuration(%q) = %d, want %d", tt.input, got, tt.want)
		}
	}
}
