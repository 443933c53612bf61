package services

import (
	"strconv"
	"strings"

	"github.com/wadjakorntonsri/go-link-guard/pkg/core/domain"
	"github.com/wadjakorntonsri/go-link-guard/pkg/ports"
)

const (
	hourMillis = int64(3_600_000)
	// trapBuckets is how many hour buckets a trap proof stays valid for.
	trapBuckets = 2
)

// TrapService signs the cookie set by the hidden pixel and validates it on
// protected requests. Format: nonce.timestamp.signature
type TrapService struct {
	key   []byte
	clock ports.Clock
}

func NewTrapService(key []byte, clock ports.Clock) *TrapService {
	return &TrapService{key: key, clock: clock}
}

func (s *TrapService) IssueProof() (string, error) {
	if len(s.key) == 0 {
		return "", domain.ErrMisconfigured
	}
	nonce, err := randomHex(12)
	if err != nil {
		return "", err
	}
	ts := s.clock.Now().UnixMilli()
	return nonce + "." + strconv.FormatInt(ts, 10) + "." + s.sign(nonce, ts/hourMillis), nil
}

func (s *TrapService) sign(nonce string, bucket int64) string {
	return hmacHex(s.key, "trap-proof:"+nonce+":"+strconv.FormatInt(bucket, 10))
}

// ValidateProof returns a *domain.SecurityError describing why value is not
// an acceptable trap proof, or nil.
func (s *TrapService) ValidateProof(value string) error {
	if value == "" {
		return domain.Reject(domain.CodeResourceTrap, "trap cookie missing", nil)
	}
	if len(s.key) == 0 {
		return domain.Reject(domain.CodeResourceTrap, "trap key not configured", domain.ErrMisconfigured)
	}

	parts := strings.Split(value, ".")
	if len(parts) != 3 || parts[0] == "" || parts[2] == "" {
		return domain.Reject(domain.CodeInvalidProofFmt, "trap cookie malformed", nil)
	}
	ts, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil || ts <= 0 {
		return domain.Reject(domain.CodeInvalidProofFmt, "trap timestamp malformed", nil)
	}

	bucket := ts / hourMillis
	current := s.clock.Now().UnixMilli() / hourMillis
	if bucket > current || current-bucket >= trapBuckets {
		return domain.Reject(domain.CodeExpiredProof, "trap proof outside bucket window", nil)
	}

	if !equalHex(s.sign(parts[0], bucket), parts[2]) {
		return domain.Reject(domain.CodeInvalidSig, "trap signature mismatch", nil)
	}
	return nil
}
