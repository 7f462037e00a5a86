package application

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"admission-gateway/middleware/admission/domain"
)

// DefaultMaxKeyLen protege o limite de tamanho de chave do store compartilhado.
const DefaultMaxKeyLen = 128

// KeyResolver deriva a chave canônica de contador a partir do contexto da
// requisição. Determinístico: mesmas entradas produzem sempre a mesma chave,
// senão o contador distribuído não funciona.
type KeyResolver struct {
	// MaxLen limita o tamanho da chave composta; 0 usa DefaultMaxKeyLen.
	MaxLen int
}

// Derive monta "scope:identidade:endpoint". Quando a composição estoura o
// limite, substitui por um digest sha256 da string completa, preservando o
// prefixo de scope para observabilidade.
func (r KeyResolver) Derive(scope domain.Scope, identity, endpoint string) domain.Key {
	maxLen := r.MaxLen
	if maxLen <= 0 {
		maxLen = DefaultMaxKeyLen
	}

	identity = strings.ToLower(strings.TrimSpace(identity))
	raw := string(scope) + ":" + identity + ":" + endpoint
	if len(raw) <= maxLen {
		return domain.Key(raw)
	}

	sum := sha256.Sum256([]byte(raw))
	return domain.Key(string(scope) + ":" + hex.EncodeToString(sum[:]))
}
