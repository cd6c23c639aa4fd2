package http

import (
	"encoding/json"
	"net/http"
)

// ErrorBody segue o envelope de erro da API.
type ErrorBody struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

type envelope struct {
	Data  any        `json:"data"`
	Error *ErrorBody `json:"error"`
}

// WriteJSON responde com o envelope de sucesso.
func WriteJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{Data: payload, Error: nil})
}

// WriteError responde com o envelope de erro.
func WriteError(w http.ResponseWriter, status int, code, message string, details interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{Data: nil, Error: &ErrorBody{Code: code, Message: message, Details: details}})
}
