package application

import (
	"encoding/json"
	"fmt"
	"time"

	"admission-gateway/middleware/admission/domain"
)

// Registry resolve a política de rate limit de um (endpoint, identidade).
//
// Lookup puro, sem I/O. A tabela é carregada na inicialização e imutável em
// runtime. A resolução nunca falha: há um default global compilado para cada
// dimensão de identidade.
type Registry struct {
	policies []domain.Policy

	anonDefault domain.Policy
	userDefault domain.Policy
}

// Defaults globais compilados: 100 req / 5 min para anônimos,
// 1000 req / hora para autenticados.
var (
	defaultAnonymousPolicy = domain.Policy{
		Scope:       domain.ScopeGlobal,
		Dimension:   domain.DimensionIP,
		Window:      5 * time.Minute,
		MaxRequests: 100,
		FailMode:    domain.FailOpen,
	}
	defaultAuthenticatedPolicy = domain.Policy{
		Scope:       domain.ScopeGlobal,
		Dimension:   domain.DimensionUser,
		Window:      time.Hour,
		MaxRequests: 1000,
		FailMode:    domain.FailOpen,
	}
)

type RegistryOption func(*Registry)

// WithAnonymousDefault troca o default global para requisições anônimas.
func WithAnonymousDefault(p domain.Policy) RegistryOption {
	return func(r *Registry) { r.anonDefault = p }
}

// WithAuthenticatedDefault troca o default global para requisições autenticadas.
func WithAuthenticatedDefault(p domain.Policy) RegistryOption {
	return func(r *Registry) { r.userDefault = p }
}

func NewRegistry(policies []domain.Policy, opts ...RegistryOption) *Registry {
	r := &Registry{
		policies:    policies,
		anonDefault: defaultAnonymousPolicy,
		userDefault: defaultAuthenticatedPolicy,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve escolhe exatamente uma política, na precedência:
//
//  1. endpoint exato + tier do chamador
//  2. endpoint exato, qualquer tier
//  3. default do tier
//  4. default global (compilado)
//
// Empates no mesmo nível são quebrados pela maior Priority.
func (r *Registry) Resolve(endpoint, tier string, dim domain.Dimension) domain.Policy {
	if p, ok := r.best(func(p domain.Policy) bool {
		return p.Scope == domain.ScopeEndpoint && p.Endpoint == endpoint && p.Tier != "" && p.Tier == tier && dimensionMatches(p, dim)
	}); ok {
		return p
	}
	if p, ok := r.best(func(p domain.Policy) bool {
		return p.Scope == domain.ScopeEndpoint && p.Endpoint == endpoint && p.Tier == "" && dimensionMatches(p, dim)
	}); ok {
		return p
	}
	if p, ok := r.best(func(p domain.Policy) bool {
		return p.Scope == domain.ScopeTier && p.Tier == tier && dimensionMatches(p, dim)
	}); ok {
		return p
	}
	if p, ok := r.best(func(p domain.Policy) bool {
		return p.Scope == domain.ScopeGlobal && dimensionMatches(p, dim)
	}); ok {
		return p
	}
	if dim == domain.DimensionUser {
		return r.userDefault
	}
	return r.anonDefault
}

func (r *Registry) best(match func(domain.Policy) bool) (domain.Policy, bool) {
	var found bool
	var best domain.Policy
	for _, p := range r.policies {
		if !match(p) {
			continue
		}
		if !found || p.Priority > best.Priority {
			best = p
			found = true
		}
	}
	return best, found
}

func dimensionMatches(p domain.Policy, dim domain.Dimension) bool {
	return p.Dimension == "" || p.Dimension == dim
}

// policyRow é o formato JSON da tabela de políticas (config).
type policyRow struct {
	Scope         string `json:"scope"`
	Dimension     string `json:"dimension"`
	Endpoint      string `json:"endpoint"`
	Tier          string `json:"tier"`
	WindowSeconds int    `json:"window_seconds"`
	MaxRequests   int    `json:"max_requests"`
	Priority      int    `json:"priority"`
	FailMode      string `json:"fail_mode"`
}

// ParsePolicyTable interpreta a tabela JSON de políticas vinda da configuração.
// Linhas sem fail_mode herdam defaultFailMode.
func ParsePolicyTable(data []byte, defaultFailMode domain.FailMode) ([]domain.Policy, error) {
	var rows []policyRow
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("policy table: %w", err)
	}

	out := make([]domain.Policy, 0, len(rows))
	for i, row := range rows {
		if row.WindowSeconds <= 0 {
			return nil, fmt.Errorf("policy table: row %d: window_seconds must be > 0", i)
		}
		if row.MaxRequests <= 0 {
			return nil, fmt.Errorf("policy table: row %d: max_requests must be > 0", i)
		}
		scope := domain.Scope(row.Scope)
		switch scope {
		case domain.ScopeGlobal, domain.ScopeEndpoint, domain.ScopeTier:
		default:
			return nil, fmt.Errorf("policy table: row %d: unknown scope %q", i, row.Scope)
		}
		mode := domain.FailMode(row.FailMode)
		switch mode {
		case "":
			mode = defaultFailMode
		case domain.FailOpen, domain.FailClosed:
		default:
			return nil, fmt.Errorf("policy table: row %d: unknown fail_mode %q", i, row.FailMode)
		}
		out = append(out, domain.Policy{
			Scope:       scope,
			Dimension:   domain.Dimension(row.Dimension),
			Endpoint:    row.Endpoint,
			Tier:        row.Tier,
			Window:      time.Duration(row.WindowSeconds) * time.Second,
			MaxRequests: row.MaxRequests,
			Priority:    row.Priority,
			FailMode:    mode,
		})
	}
	return out, nil
}
