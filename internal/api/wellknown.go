package api

import "net/http"

// wellKnownManifest is the static JSON manifest for /.well-known/liftline.json.
const wellKnownManifest = `{
  "name": "Liftline",
  "description": "Field operations API for lift installation and service teams",
  "version": "0.1.0",
  "api_base": "/api/v1",
  "auth": {
    "type": "bearer",
    "header": "Authorization",
    "login": "/api/v1/auth/login"
  },
  "endpoints": {
    "sites": "/api/v1/sites",
    "chat_stream": "/api/v1/sites/{siteID}/chats/stream",
    "complaints": "/api/v1/complaints",
    "sales": "/api/v1/sales"
  },
  "health": "/health"
}`

// WellKnownHandler returns the static well-known manifest.
func WellKnownHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(wellKnownManifest))
}
