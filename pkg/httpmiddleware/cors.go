package httpmiddleware

import (
	"net/http"
	"strings"
)

// CORS allows cross-origin requests from the listed origins; an empty list
// allows any origin. Preflight requests are answered directly with 204.
func CORS(origins []string) Middleware {
	allowAll := len(origins) == 0
	allowed := make(map[string]string, len(origins))
	for _, o := range origins {
		if o == "*" {
			allowAll = true
		}
		allowed[strings.ToLower(o)] = o
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin == "" {
				next.ServeHTTP(w, r)
				return
			}
			w.Header().Add("Vary", "Origin")

			allow := ""
			switch {
			case allowAll:
				allow = "*"
			default:
				allow = allowed[strings.ToLower(origin)]
			}
			if allow != "" {
				w.Header().Set("Access-Control-Allow-Origin", allow)
			}

			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				if allow != "" {
					w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
					if reqHeaders := r.Header.Get("Access-Control-Request-Headers"); reqHeaders != "" {
						w.Header().Set("Access-Control-Allow-Headers", reqHeaders)
					}
				}
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
