package entryhandlers

import "net/http"

// Handlers defines the HTTP surface of the entry module.
type Handlers interface {
	HandleReposition(w http.ResponseWriter, r *http.Request)
	HandleGetEntry(w http.ResponseWriter, r *http.Request)
}
