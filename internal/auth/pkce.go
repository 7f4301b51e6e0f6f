package auth

import (
	"crypto/subtle"

	"golang.org/x/oauth2"
)

// NewVerifier returns a fresh PKCE code verifier.
func NewVerifier() string {
	return oauth2.GenerateVerifier()
}

// Challenge derives the S256 challenge sent along with the sign-up request.
func Challenge(verifier string) string {
	return oauth2.S256ChallengeFromVerifier(verifier)
}

func verifyChallenge(challenge, verifier string) bool {
	if challenge == "" {
		return true
	}
	if verifier == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(challenge), []byte(Challenge(verifier))) == 1
}
