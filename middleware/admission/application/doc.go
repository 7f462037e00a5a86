// Package application contém os casos de uso do controle de admissão:
// resolução de política, derivação de chave, janela deslizante, blocklist,
// lockout por falhas, tokens CSRF e o gate que orquestra tudo.
//
// Ele depende apenas do pacote domain e não conhece net/http.
// Ex.: Gate.Admit(ctx, req) retorna um Result (allow/deny + motivo + retry-after).
package application
