package domain

// Challenge is one issued proof-of-work puzzle. Times are epoch milliseconds.
type Challenge struct {
	ID         string `json:"challenge_id"`
	Nonce      string `json:"nonce"`
	Difficulty int    `json:"difficulty"`
	Signature  string `json:"signature"`
	ExpiresAt  int64  `json:"expiresAt"`
	IP         string `json:"-"`
	UAHash     string `json:"-"`
	CreatedAt  int64  `json:"-"`
}

// ProofSubmission is what a client sends back for a challenge.
type ProofSubmission struct {
	ChallengeID string
	Proof       string
	Timing      int64
	Entropy     string
	Counter     int64
	IP          string
	UserAgent   string
}

// Proof verification failure reasons, in check order.
const (
	ReasonNotFound         = "not_found"
	ReasonExpired          = "expired"
	ReasonInvalidSignature = "invalid_signature"
	ReasonUAMismatch       = "ua_mismatch"
	ReasonClockSkew        = "clock_skew"
	ReasonTooFast          = "too_fast"
	ReasonInvalidEntropy   = "invalid_entropy"
	ReasonInvalidCounter   = "invalid_counter"
	ReasonInsufficientWork = "insufficient_work"
	ReasonProofMismatch    = "proof_mismatch"
	ReasonMisconfigured    = "misconfigured"
	ReasonInternal         = "internal"
)

// VerifyResult is the outcome of a proof verification.
type VerifyResult struct {
	Valid  bool
	Reason string
}
