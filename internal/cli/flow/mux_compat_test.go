package flow

import (
	"net/http"
	"strings"
)

// handleMethod mirrors Go 1.22+ "METHOD /path" ServeMux patterns for older toolchains
func handleMethod(mux *http.ServeMux, pattern string, h func(http.ResponseWriter, *http.Request)) {
	method, path, ok := strings.Cut(pattern, " ")
	if !ok {
		mux.HandleFunc(pattern, h)
		return
	}
	mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != method && !(method == http.MethodGet && r.Method == http.MethodHead) {
			w.Header().Set("Allow", method)
			http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
			return
		}
		h(w, r)
	})
}
