package collab

import (
	"crypto/sha1"
	"encoding/hex"
	"strings"
)

// SaltedAnonymizer hashes the lowercased identifier with a deployment
// salt. The salt must stay stable for the lifetime of the deployment:
// retired identifiers recorded on old retirements must keep matching
// what the identity store holds.
type SaltedAnonymizer struct {
	Salt string
}

func (a SaltedAnonymizer) RetiredUsername(original string) string {
	return "retired__user_" + a.digest(original)
}

func (a SaltedAnonymizer) RetiredEmail(original string) string {
	return "retired__user_" + a.digest(original) + "@retired.invalid"
}

func (a SaltedAnonymizer) digest(original string) string {
	sum := sha1.Sum([]byte(a.Salt + strings.ToLower(original)))
	return hex.EncodeToString(sum[:])
}
