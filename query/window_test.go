package query

import (
	"errors"
	"testing"
	"time"
)

func TestParseWindow(t *testing.T) {
	tests := []struct {
		name    string
		token   string
		want    time.Duration
		wantErr bool
	}{
		{name: "hours", token: "24h", want: 24 * time.Hour},
		{name: "days", token: "7d", want: 7 * 24 * time.Hour},
		{name: "weeks", token: "2w", want: 14 * 24 * time.Hour},
		{name: "single hour", token: "1h", want: time.Hour},
		{name: "unknown unit", token: "30x", wantErr: true},
		{name: "no unit", token: "xyz", wantErr: true},
		{name: "missing count", token: "h", wantErr: true},
		{name: "negative count", token: "-2h", wantErr: true},
		{name: "zero count", token: "0d", wantErr: true},
		{name: "empty", token: "", wantErr: true},
		{name: "fractional count", token: "1.5h", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseWindow(tt.token)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseWindow(%q): expected error, got %v", tt.token, got)
				}
				var iw *InvalidWindowError
				if !errors.As(err, &iw) {
					t.Errorf("ParseWindow(%q): error type = %T, want *InvalidWindowError", tt.token, err)
				}
				if iw != nil && iw.Token != tt.token {
					t.Errorf("InvalidWindowError.Token = %q, want %q", iw.Token, tt.token)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseWindow(%q): unexpected error: %v", tt.token, err)
			}
			if got != tt.want {
				t.Errorf("ParseWindow(%q) = %v, want %v", tt.token, got, tt.want)
			}
		})
	}
}
