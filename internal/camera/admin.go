package camera

import (
	"encoding/json"
	"io"
	"net/http"

	"tailscale.com/tsweb"
)

// AttachAdminRoutes attaches camera debugging endpoints to the given HTTP
// mux served at /debug/. These routes are accessible only over
// localhost/via Tailscale and are not publicly accessible.
func (a *Arbiter) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)

	debug.HandleSilentFunc("camera-status", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(a.Status()); err != nil {
			http.Error(w, "Failed to write camera status", http.StatusInternalServerError)
		}
	})

	debug.HandleSilentFunc("camera-force-release", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if a.ForceRelease() {
			io.WriteString(w, "Lease revoked and device closed")
			return
		}
		io.WriteString(w, "Camera was already free")
	})
}
