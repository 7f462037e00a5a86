// Package infra contém implementações concretas (infraestrutura) para os
// contratos definidos no pacote domain.
//
// Cada preocupação tem um par memória/Redis:
//
//   - contador de janela deslizante (log de instantes em ZSET via script Lua)
//   - blocklist com TTL
//   - contagem de falhas por identidade/evento
//   - tokens CSRF por dono
//   - eventos de decisão (memória, Redis, Prometheus)
//
// As versões em memória servem testes e desenvolvimento; as de Redis são as
// de produção, onde todos os workers compartilham o mesmo estado.
package infra
