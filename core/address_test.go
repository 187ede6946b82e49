package core

import (
	"errors"
	"strings"
	"testing"

	"github.com/peterldowns/testy/check"
)

func TestValidateAddress(t *testing.T) {
	tests := []struct {
		name    string
		addr    string
		wantErr bool
	}{
		{"named account", "secret1alice", false},
		{"derived address", "secret1" + strings.Repeat("0f", 19), false},
		{"longest", "secret1" + strings.Repeat("a", 64), false},
		{"empty", "", true},
		{"prefix only", "secret1", true},
		{"other prefix", "cosmos1alice", true},
		{"trailing slash", "secret1alice/", true},
		{"path segment", "secret1alice/../bob", true},
		{"dot", "secret1alice.", true},
		{"upper case", "secret1Alice", true},
		{"underscore", "secret1bidder_a", true},
		{"too long", "secret1" + strings.Repeat("a", 65), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateAddress(tt.addr)
			check.Equal(t, tt.wantErr, err != nil)
			if tt.wantErr {
				check.True(t, errors.Is(err, ErrMalformedAddress))
			}
		})
	}
}
