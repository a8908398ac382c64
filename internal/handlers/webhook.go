package handlers

import (
	"encoding/json"
	"io"
	"net/http"
)

// signatureHeader carries the hex HMAC of the raw body on signed webhooks.
const signatureHeader = "x-webhook-signature"

// maxBodyBytes bounds inbound webhook bodies; the largest legitimate field
// is the 5000-char message.
const maxBodyBytes = 64 << 10

func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Headers",
		"authorization, x-client-info, apikey, content-type, x-webhook-signature")
}

// preflight answers the CORS OPTIONS request. Returns true when the request
// was handled.
func preflight(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodOptions {
		return false
	}
	setCORSHeaders(w)
	w.WriteHeader(http.StatusNoContent)
	return true
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read body")
		return nil, false
	}
	defer r.Body.Close()
	return body, true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	setCORSHeaders(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
