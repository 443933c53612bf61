package handler

import (
	"net/http"

	"github.com/wadjakorntonsri/go-link-guard/pkg/app"
	"github.com/wadjakorntonsri/go-link-guard/pkg/config"
)

var mux http.Handler

func init() {
	cfg := config.Load()

	// Note: On Vercel, db.sqlite is ephemeral unless using a remote SQL/Turso URL in DATABASE_URL.
	// There is no background reaper here; run `cli purge` on a schedule instead.
	a, err := app.NewApp(cfg, app.Options{})
	if err != nil {
		panic(err)
	}
	mux = a.Handler()
}

// Handler is the entrypoint for Vercel
func Handler(w http.ResponseWriter, r *http.Request) {
	mux.ServeHTTP(w, r)
}
