package oauth

import (
	"golang.org/x/oauth2"
)

// PKCEMethod is the only challenge method sent to providers.
const PKCEMethod = "S256"

// PKCE holds a verifier and its derived challenge.
type PKCE struct {
	Verifier  string
	Challenge string
}

// NewPKCE generates a 43 character base64url verifier and its S256 challenge.
func NewPKCE() PKCE {
	verifier := oauth2.GenerateVerifier()
	return PKCE{
		Verifier:  verifier,
		Challenge: oauth2.S256ChallengeFromVerifier(verifier),
	}
}

// AuthCodeOptions returns the authorize URL parameters for the challenge.
func (p PKCE) AuthCodeOptions() []oauth2.AuthCodeOption {
	return []oauth2.AuthCodeOption{
		oauth2.SetAuthURLParam("code_challenge", p.Challenge),
		oauth2.SetAuthURLParam("code_challenge_method", PKCEMethod),
	}
}
