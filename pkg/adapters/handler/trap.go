package handler

import (
	"net/http"
	"time"

	"github.com/wadjakorntonsri/go-link-guard/pkg/logging"
	"github.com/wadjakorntonsri/go-link-guard/pkg/ports"
)

const (
	trapCookie = "__trap_proof"
	botCookie  = "__bot_flag"
)

// 1x1 transparent GIF
var pixel = []byte{
	0x47, 0x49, 0x46, 0x38, 0x39, 0x61, 0x01, 0x00, 0x01, 0x00, 0x80, 0x00, 0x00, 0x00, 0x00, 0x00,
	0xff, 0xff, 0xff, 0x21, 0xf9, 0x04, 0x01, 0x00, 0x00, 0x00, 0x00, 0x2c, 0x00, 0x00, 0x00, 0x00,
	0x01, 0x00, 0x01, 0x00, 0x00, 0x02, 0x02, 0x44, 0x01, 0x00, 0x3b,
}

const decoyPage = `<!doctype html><html><head><title>Redirecting</title></head><body><p>Redirecting...</p></body></html>`

type TrapHandler struct {
	traps        ports.TrapService
	isProduction bool
	log          logging.Logger
}

func NewTrapHandler(traps ports.TrapService, isProduction bool, log logging.Logger) *TrapHandler {
	return &TrapHandler{traps: traps, isProduction: isProduction, log: log}
}

// Image serves the hidden pixel and drops the trap proof cookie. Clients
// that never load subresources never get one.
func (h *TrapHandler) Image(w http.ResponseWriter, r *http.Request) {
	proof, err := h.traps.IssueProof()
	if err != nil {
		logging.FromContext(r.Context(), h.log).Error(r.Context(), "trap proof unavailable", "error", err)
	} else {
		http.SetCookie(w, &http.Cookie{
			Name:     trapCookie,
			Value:    proof,
			Path:     "/",
			MaxAge:   int((2 * time.Hour).Seconds()),
			HttpOnly: true,
			Secure:   h.isProduction,
			SameSite: http.SameSiteLaxMode,
		})
	}
	w.Header().Set("Content-Type", "image/gif")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(pixel)
}

// Bot is linked only from markup humans cannot see.
func (h *TrapHandler) Bot(w http.ResponseWriter, r *http.Request) {
	logging.FromContext(r.Context(), h.log).Warn(r.Context(), "honeypot visited", "ip", clientIP(r), "ua", r.UserAgent())
	http.SetCookie(w, &http.Cookie{
		Name:     botCookie,
		Value:    "1",
		Path:     "/",
		MaxAge:   int((365 * 24 * time.Hour).Seconds()),
		HttpOnly: true,
		Secure:   h.isProduction,
		SameSite: http.SameSiteLaxMode,
	})
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(decoyPage))
}
