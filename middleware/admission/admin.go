package admission

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"admission-gateway/middleware/admission/application"
	"admission-gateway/middleware/admission/domain"
)

// API administrativa da blocklist e de inspeção de throttle.
// Consumida por ferramenta de operação; deve ficar em um listener separado
// do tráfego público (ver cmd/gateway).

type AdminOptions struct {
	Blocklist *application.Blocklist
	Limiter   application.Limiter
}

type blockRequest struct {
	Identity string `json:"identity"`
	Reason   string `json:"reason"`
	// TTLSeconds 0 = bloqueio permanente (ação administrativa explícita).
	TTLSeconds int `json:"ttl_seconds"`
}

// AdminRouter monta as rotas administrativas:
//
//	POST   /blocklist              bloqueia identidade (ttl_seconds=0 → permanente)
//	GET    /blocklist/{identity}   inspeciona a entrada atual
//	DELETE /blocklist/{identity}   desbloqueia
//	GET    /throttle/{key}         contagem atual na janela (?window_seconds=60)
func AdminRouter(opts AdminOptions) http.Handler {
	r := chi.NewRouter()

	r.Post("/blocklist", func(w http.ResponseWriter, req *http.Request) {
		var body blockRequest
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			writeAdminError(w, http.StatusBadRequest, "invalid json body")
			return
		}
		if body.Identity == "" {
			writeAdminError(w, http.StatusBadRequest, "identity is required")
			return
		}

		var err error
		if body.TTLSeconds <= 0 {
			err = opts.Blocklist.BlockPermanent(req.Context(), body.Identity, body.Reason)
		} else {
			err = opts.Blocklist.Block(req.Context(), body.Identity, body.Reason, time.Duration(body.TTLSeconds)*time.Second)
		}
		if err != nil {
			writeAdminError(w, http.StatusInternalServerError, err.Error())
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	r.Get("/blocklist/{identity}", func(w http.ResponseWriter, req *http.Request) {
		identity := chi.URLParam(req, "identity")
		entry, err := opts.Blocklist.Inspect(req.Context(), identity)
		if err != nil {
			writeAdminError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if entry == nil {
			writeAdminError(w, http.StatusNotFound, "not blocked")
			return
		}
		writeAdminJSON(w, http.StatusOK, entry)
	})

	r.Delete("/blocklist/{identity}", func(w http.ResponseWriter, req *http.Request) {
		if err := opts.Blocklist.Unblock(req.Context(), chi.URLParam(req, "identity")); err != nil {
			writeAdminError(w, http.StatusInternalServerError, err.Error())
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	r.Get("/throttle/{key}", func(w http.ResponseWriter, req *http.Request) {
		key := chi.URLParam(req, "key")
		windowSecs := 60
		if v := req.URL.Query().Get("window_seconds"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				writeAdminError(w, http.StatusBadRequest, "window_seconds must be a positive integer")
				return
			}
			windowSecs = n
		}
		count, err := opts.Limiter.Peek(req.Context(), domain.Key(key), time.Duration(windowSecs)*time.Second)
		if err != nil {
			writeAdminError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeAdminJSON(w, http.StatusOK, map[string]any{
			"key":            key,
			"window_seconds": windowSecs,
			"count":          count,
		})
	})

	return r
}

func writeAdminJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeAdminError(w http.ResponseWriter, status int, msg string) {
	writeAdminJSON(w, status, map[string]string{"error": msg})
}
