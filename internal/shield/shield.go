// Package shield holds the HTTP middleware of the admin surface.
//
//	r := chi.NewRouter()
//	for _, mw := range shield.Stack(16 << 20) {
//	    r.Use(mw)
//	}
package shield

import "net/http"

// Headers is the fixed header set of a JSON API that is never framed or
// rendered as a page.
var Headers = map[string]string{
	"Content-Security-Policy": "default-src 'none'; frame-ancestors 'none'",
	"X-Content-Type-Options":  "nosniff",
	"X-Frame-Options":         "DENY",
	"Referrer-Policy":         "no-referrer",
	"Cache-Control":           "no-store",
}

// SecurityHeaders sets Headers on every response.
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		for k, v := range Headers {
			h.Set(k, v)
		}
		next.ServeHTTP(w, r)
	})
}

// MaxBody caps request bodies at maxBytes. Reads past the cap fail with
// *http.MaxBytesError.
func MaxBody(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Body != nil && r.Body != http.NoBody {
				r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// HeadToGet serves HEAD requests with the GET routes. net/http drops the
// body.
func HeadToGet(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			r.Method = http.MethodGet
		}
		next.ServeHTTP(w, r)
	})
}

// Stack returns the admin middleware in order.
func Stack(maxBody int64) []func(http.Handler) http.Handler {
	return []func(http.Handler) http.Handler{
		HeadToGet,
		SecurityHeaders,
		MaxBody(maxBody),
	}
}
