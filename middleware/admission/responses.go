package admission

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"admission-gateway/middleware/admission/domain"
)

// Tradução da decisão negada para a resposta HTTP.
//
// Motivos estáveis e machine-parseable no corpo JSON; clientes que preferem
// HTML (navegador em submissão de formulário) recebem uma página mínima.
// StoreUnavailable nunca vaza: vira uma falha genérica de serviço.

type errorBody struct {
	Error      string `json:"error"`
	RetryAfter int    `json:"retry_after,omitempty"`
}

func writeDeny(w http.ResponseWriter, r *http.Request, res domain.Result) {
	retrySecs := 0
	if res.RetryAfter > 0 {
		// Teto, não piso: anunciar menos do que falta faria um cliente
		// obediente voltar cedo demais e ser negado de novo.
		retrySecs = int((res.RetryAfter + time.Second - 1) / time.Second)
		w.Header().Set("Retry-After", formatInt(retrySecs))
	}

	status := res.Status
	if status == 0 {
		status = http.StatusForbidden
	}

	var code string
	switch res.Reason {
	case domain.ReasonRateLimitExceeded:
		code = "RateLimitExceeded"
	case domain.ReasonCSRFTokenMissing, domain.ReasonCSRFTokenMismatch:
		code = "CSRFTokenInvalid"
	case domain.ReasonIdentityBlocked:
		code = "IdentityBlocked"
	default:
		// Falha interna (store fora em fail-closed): genérico de propósito.
		code = "ServiceUnavailable"
	}

	if wantsHTML(r) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(status)
		_, _ = w.Write([]byte("<!DOCTYPE html><html><body><h1>" + http.StatusText(status) + "</h1><p>" + code + "</p></body></html>"))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorBody{Error: code, RetryAfter: retrySecs})
}

func wantsHTML(r *http.Request) bool {
	accept := r.Header.Get("Accept")
	return strings.Contains(accept, "text/html") && !strings.Contains(accept, "application/json")
}
