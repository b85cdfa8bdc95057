package oauth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"strings"
)

// StateSeparator joins the service alias and the random token in the state
// parameter. Service aliases cannot contain it.
const StateSeparator = "|"

// ErrMalformedState is returned when a state value does not split into an
// alias and a token.
var ErrMalformedState = errors.New("malformed oauth state")

// ComposeState builds the state parameter sent to the provider.
func ComposeState(alias, token string) string {
	return alias + StateSeparator + token
}

// DecomposeState splits a state parameter echoed by the provider.
func DecomposeState(state string) (alias string, token string, err error) {
	parts := strings.Split(state, StateSeparator)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", ErrMalformedState
	}
	return parts[0], parts[1], nil
}

// GenerateStateToken returns 256 bits of randomness, hex encoded.
func GenerateStateToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
