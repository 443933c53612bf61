package services

import (
	"context"
	"strconv"
	"strings"

	"github.com/wadjakorntonsri/go-link-guard/pkg/core/domain"
)

// MaxCounter bounds the client search space.
const MaxCounter = 5_000_000

// ProofHash is SHA256(challenge_id‖nonce‖timing‖entropy‖counter), lowercase hex.
func ProofHash(challengeID, nonce string, timing int64, entropy string, counter int64) string {
	return sha256Hex(challengeID + nonce + strconv.FormatInt(timing, 10) + entropy + strconv.FormatInt(counter, 10))
}

// MeetsDifficulty reports whether hash starts with difficulty hex zeros.
func MeetsDifficulty(hash string, difficulty int) bool {
	if difficulty <= 0 {
		return true
	}
	return strings.HasPrefix(hash, strings.Repeat("0", difficulty))
}

// SolveChallenge brute-forces a counter for c, the way a client would.
// It returns the counter and proof, or ctx.Err() when cancelled.
func SolveChallenge(ctx context.Context, c *domain.Challenge, timing int64, entropy string) (int64, string, error) {
	for counter := int64(0); counter <= MaxCounter; counter++ {
		if counter%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return 0, "", err
			}
		}
		h := ProofHash(c.ID, c.Nonce, timing, entropy, counter)
		if MeetsDifficulty(h, c.Difficulty) {
			return counter, h, nil
		}
	}
	return 0, "", domain.ErrNotFound
}
