package domain

// Camada de domínio do controle de admissão.
//
// Regras e contratos (interfaces/tipos) sem dependência de net/http.

import "time"

type Key string

type Action string

const (
	Allow Action = "allow"
	Deny  Action = "deny"
)

// Reason é o motivo estável (machine-parseable) de uma decisão de negação.
//
// StoreUnavailable nunca deve chegar cru ao cliente final: a camada HTTP
// traduz para uma falha genérica, sem detalhe de infraestrutura.
type Reason string

const (
	ReasonNone              Reason = ""
	ReasonRateLimitExceeded Reason = "RateLimitExceeded"
	ReasonCSRFTokenMissing  Reason = "CSRFTokenMissing"
	ReasonCSRFTokenMismatch Reason = "CSRFTokenMismatch"
	ReasonIdentityBlocked   Reason = "IdentityBlocked"
	ReasonStoreUnavailable  Reason = "StoreUnavailable"
)

// Request carrega o contexto mínimo de uma requisição para o gate decidir.
//
// Ele é propositalmente "agnóstico de HTTP": Method/Path/Endpoint são strings
// genéricas; a extração a partir de *http.Request fica no adapter.
type Request struct {
	// Identity é a identidade canônica (user id autenticado ou IP do cliente).
	Identity string
	// UserID fica vazio para requisições anônimas.
	UserID string
	Tier   string

	Endpoint string
	Method   string
	Path     string
	Referer  string

	// Double-submit: valor vindo do cookie e valor vindo do header/corpo.
	CSRFCookie string
	CSRFHeader string
	// CSRFOwner identifica o dono do token (sessão ou usuário) para rotação.
	CSRFOwner string
}

// Result é o resultado tipado da admissão. Nenhuma exceção/erro cruza o gate:
// o chamador sempre recebe um Result e não pode "engolir" uma decisão de
// segurança por acidente.
type Result struct {
	Action Action
	// Status é o código HTTP sugerido (403, 429, 503, ...). Zero quando Allow.
	Status int
	Reason Reason
	// RetryAfter é o valor a ser retornado em Retry-After quando negar por cota.
	// Se 0, não há recomendação.
	RetryAfter time.Duration
	// Remaining é a cota restante na janela quando conhecida; -1 = desconhecida.
	Remaining int
	// Key é a chave de contador usada, para observabilidade.
	Key Key
}

func (r Result) Allowed() bool { return r.Action == Allow }

// Outcome é o relato pós-resposta da aplicação (sucesso/falha de login, form,
// etc.) para alimentar o rastreio de abuso e os gatilhos de rotação CSRF.
type Outcome struct {
	Identity  string
	EventType string
	Success   bool

	// SecurityEvent indica troca de senha, mudança de permissão ou atividade
	// suspeita: força a rotação do token CSRF do Owner.
	SecurityEvent bool
	Owner         string
}
