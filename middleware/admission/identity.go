package admission

import (
	"net"
	"net/http"
	"strings"
)

type IdentityFunc func(r *http.Request) string

// DefaultIdentityFunc extrai a identidade de rede do cliente.
//
// O X-Forwarded-For só é considerado quando o peer imediato é um dos proxies
// confiáveis configurados — qualquer cliente consegue forjar o header, então
// confiar nele às cegas permitiria escapar do limite trocando o valor.
func DefaultIdentityFunc(trustedProxies []string) IdentityFunc {
	trusted := make(map[string]struct{}, len(trustedProxies))
	for _, p := range trustedProxies {
		p = strings.TrimSpace(p)
		if p != "" {
			trusted[p] = struct{}{}
		}
	}

	return func(r *http.Request) string {
		host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
		if err != nil || host == "" {
			host = strings.TrimSpace(r.RemoteAddr)
		}

		if _, ok := trusted[host]; ok {
			// pega o primeiro IP do X-Forwarded-For (cliente original)
			if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
				parts := strings.Split(xff, ",")
				if len(parts) > 0 {
					ip := strings.TrimSpace(parts[0])
					if ip != "" {
						return ip
					}
				}
			}
		}

		if host != "" {
			return host
		}
		return "unknown"
	}
}
