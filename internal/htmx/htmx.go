// Package htmx holds the request and response headers the app exchanges
// with the htmx client library.
package htmx

import "net/http"

const (
	HeaderRequest  = "HX-Request"
	HeaderRedirect = "HX-Redirect"
	HeaderTrigger  = "HX-Trigger"
)

// IsRequest reports whether r was issued by htmx and therefore expects a
// fragment instead of a full page.
func IsRequest(r *http.Request) bool {
	return r.Header.Get(HeaderRequest) == "true"
}

// Redirect sends the client to url. htmx ignores 3xx responses to its own
// requests (the fragment would be swapped with the target page), so those
// get a 200 with HX-Redirect and the browser navigates itself.
func Redirect(w http.ResponseWriter, r *http.Request, url string) {
	if IsRequest(r) {
		w.Header().Set(HeaderRedirect, url)
		w.WriteHeader(http.StatusOK)
		return
	}
	http.Redirect(w, r, url, http.StatusFound)
}

// Trigger asks the client to fire event after the swap.
func Trigger(w http.ResponseWriter, event string) {
	w.Header().Set(HeaderTrigger, event)
}
