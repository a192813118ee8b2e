package election

import (
	"crypto/rand"
	"encoding/hex"
	"strings"
)

// Credentials is one voter's generated secret pair. VoterID carries 32 bits
// of entropy and VoterKey 48, both rendered upper-case hex for comparison.
type Credentials struct {
	VoterID  string
	VoterKey string
}

// NewVotingSlug returns the random opaque token used as the public voting
// URL. Generation is pure; uniqueness retries belong to the creation flow.
func NewVotingSlug() (string, error) {
	return randomHex(16)
}

// NewVoterCredentials returns a fresh voter ID / voter key pair.
func NewVoterCredentials() (Credentials, error) {
	voterID, err := randomHex(4)
	if err != nil {
		return Credentials{}, err
	}
	voterKey, err := randomHex(6)
	if err != nil {
		return Credentials{}, err
	}
	return Credentials{
		VoterID:  strings.ToUpper(voterID),
		VoterKey: strings.ToUpper(voterKey),
	}, nil
}

func randomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
