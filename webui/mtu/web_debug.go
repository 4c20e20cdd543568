//go:build debug

package main

import "net/http"

// MaxAge disables caching so edits under webui/dist show up on reload.
func MaxAge(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store")
		h.ServeHTTP(w, r)
	})
}
