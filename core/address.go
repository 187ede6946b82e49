package core

import (
	"errors"
	"fmt"
	"strings"
)

// AddressPrefix is the human-readable prefix of every account and contract address.
const AddressPrefix = "secret1"

// maxAddressLen bounds the part of an address after the prefix.
const maxAddressLen = 64

// ErrMalformedAddress indicates an address outside the accepted form.
var ErrMalformedAddress = errors.New("malformed address")

// ValidateAddress accepts AddressPrefix followed by 1 to 64 lowercase letters
// or digits.
func ValidateAddress(addr string) error {
	rest, ok := strings.CutPrefix(addr, AddressPrefix)
	if !ok {
		return fmt.Errorf("%w: %q lacks the %s prefix", ErrMalformedAddress, addr, AddressPrefix)
	}
	if len(rest) == 0 || len(rest) > maxAddressLen {
		return fmt.Errorf("%w: %q has invalid length", ErrMalformedAddress, addr)
	}
	for i := 0; i < len(rest); i++ {
		c := rest[i]
		if (c < 'a' || c > 'z') && (c < '0' || c > '9') {
			return fmt.Errorf("%w: %q contains %q", ErrMalformedAddress, addr, c)
		}
	}
	return nil
}
