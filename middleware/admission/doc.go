// Package admission fornece o adapter HTTP (net/http) da camada de admissão:
// rate limit por janela deslizante, blocklist, lockout por falhas e CSRF.
//
// Visão geral (camadas):
//
//   - domain: contratos e tipos do domínio (sem dependência de net/http)
//   - application: casos de uso (gate, políticas, janela, CSRF) sem net/http
//   - infra: implementações concretas dos stores (Redis, memória), detalhes de infraestrutura
//   - admission (este pacote): middleware HTTP + extração de identidade + tradução para status/headers + API administrativa
//
// Fluxo no gateway:
//
//  1. Extrai a identidade do cliente (usuário autenticado / XFF atrás de proxy confiável / peer)
//  2. Chama Gate.Admit para obter a decisão (blocklist → CSRF → cota)
//  3. Se negado, responde 403 (blocklist/CSRF), 429 com Retry-After (cota) ou 503 (store fora em fail-closed)
//  4. Se permitido, chama o próximo handler; a rotação CSRF roda oportunisticamente no caminho da resposta
//
// Depois da resposta, a aplicação relata desfechos (login ok/falhou, etc.) via
// Gate.Report, alimentando o lockout e os gatilhos de rotação.
//
// Variáveis de ambiente do binário gateway (cmd/gateway) controlam o comportamento,
// como POLICY_TABLE, LOCKOUT_THRESHOLD, CSRF_ROTATE_EVERY e TRUSTED_PROXIES.
package admission
