package contractapi

import (
	"strings"
	"testing"

	"github.com/peterldowns/testy/check"
)

func TestPad(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantLen int
	}{
		{"empty stays empty", "", 0},
		{"short payload", `{"status":{}}`, 256},
		{"exact block", strings.Repeat("x", 256), 256},
		{"one over a block", strings.Repeat("x", 257), 512},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			padded := Pad([]byte(tt.input), BlockSize)
			check.Equal(t, tt.wantLen, len(padded))
			check.True(t, strings.HasPrefix(string(padded), tt.input))
			check.Equal(t, tt.input, string(Unpad(padded)))
		})
	}
}

func TestPad_HidesMagnitude(t *testing.T) {
	small := Pad([]byte(`{"bid":{"amount_bid":"1"}}`), BlockSize)
	large := Pad([]byte(`{"bid":{"amount_bid":"18446744073709551615"}}`), BlockSize)
	check.Equal(t, len(small), len(large))
}

func TestPad_NonPositiveBlock(t *testing.T) {
	check.Equal(t, "abc", string(Pad([]byte("abc"), 0)))
}
