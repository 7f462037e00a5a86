package domain

import "time"

type Scope string

const (
	ScopeGlobal   Scope = "global"
	ScopeEndpoint Scope = "endpoint"
	ScopeTier     Scope = "tier"
)

type Dimension string

const (
	DimensionUser Dimension = "user"
	DimensionIP   Dimension = "ip"
	DimensionAnon Dimension = "anon"
)

// FailMode define o comportamento quando o store compartilhado está fora:
// fail-open permite (prioriza disponibilidade), fail-closed nega (prioriza a
// propriedade de segurança). Nunca misturar silenciosamente os dois — cada
// política declara o seu.
type FailMode string

const (
	FailOpen   FailMode = "open"
	FailClosed FailMode = "closed"
)

// Policy é configuração: carregada na inicialização e imutável em runtime.
type Policy struct {
	Scope Scope
	// Dimension restringe a política a uma dimensão de identidade.
	// Vazio = qualquer dimensão.
	Dimension Dimension
	// Endpoint vazio = qualquer endpoint; Tier vazio = qualquer tier.
	Endpoint string
	Tier     string

	Window      time.Duration
	MaxRequests int
	// Priority desempata quando mais de uma política casa no mesmo nível
	// de precedência (maior vence).
	Priority int
	FailMode FailMode
}
