package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"crypto-signal-engine/database"
)

// errorResponse is the JSON body of every failed request
type errorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

// getIntParam retrieves an integer query parameter with default value and optional range validation
func getIntParam(r *http.Request, key string, defaultVal int, minVal, maxVal *int) int {
	valStr := r.URL.Query().Get(key)
	if valStr == "" {
		return defaultVal
	}

	val, err := strconv.Atoi(valStr)
	if err != nil {
		return defaultVal
	}

	if minVal != nil && val < *minVal {
		return defaultVal
	}
	if maxVal != nil && val > *maxVal {
		return *maxVal
	}

	return val
}

// getFloatParam retrieves a float query parameter with default value
func getFloatParam(r *http.Request, key string, defaultVal float64) float64 {
	valStr := r.URL.Query().Get(key)
	if valStr == "" {
		return defaultVal
	}

	val, err := strconv.ParseFloat(valStr, 64)
	if err != nil {
		return defaultVal
	}

	return val
}

func intPtr(v int) *int {
	return &v
}

// respondWithJSON writes payload as JSON with the given status code
func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("API Error: failed to encode response: %v", err)
	}
}

// respondWithError logs the error and sends a JSON error response
// Use this to avoid exposing internal errors while still logging them
func respondWithError(w http.ResponseWriter, code int, message string, err error) {
	if err != nil {
		log.Printf("API Error [%d]: %s - %v", code, message, err)
	} else {
		log.Printf("API Error [%d]: %s", code, message)
	}
	respondWithJSON(w, code, errorResponse{Error: message})
}

// respondWithStoreError maps typed store errors to status codes
func respondWithStoreError(w http.ResponseWriter, message string, err error) {
	var validationErr *database.ValidationError
	var notFoundErr *database.NotFoundError

	switch {
	case errors.As(err, &validationErr):
		log.Printf("API Error [400]: %s - %v", message, err)
		respondWithJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error(), Field: validationErr.Field})
	case errors.As(err, &notFoundErr):
		respondWithError(w, http.StatusNotFound, notFoundErr.Error(), nil)
	case errors.Is(err, database.ErrTransitionConflict):
		respondWithError(w, http.StatusConflict, err.Error(), nil)
	case database.IsStoreFailure(err):
		respondWithError(w, http.StatusServiceUnavailable, "store unavailable", err)
	default:
		respondWithError(w, http.StatusInternalServerError, message, err)
	}
}
