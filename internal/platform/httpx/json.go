package httpx

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

const defaultBodyLimit = 64 << 10

var (
	// ErrBodyRequired is returned for a missing or blank request body.
	ErrBodyRequired = errors.New("request body is required")
	// ErrBodyTooLarge is returned when the body exceeds the decode limit.
	ErrBodyTooLarge = errors.New("request body too large")
)

func WriteJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		_ = json.NewEncoder(w).Encode(payload)
	}
}

// DecodeJSON decodes one JSON value of at most limit bytes into dst. Unknown fields and
// trailing data are rejected.
func DecodeJSON(r *http.Request, dst any, limit int64) error {
	if r.Body == nil || r.Body == http.NoBody {
		return ErrBodyRequired
	}
	if limit <= 0 {
		limit = defaultBodyLimit
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, limit+1))
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	if int64(len(body)) > limit {
		return fmt.Errorf("%w: limit is %d bytes", ErrBodyTooLarge, limit)
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return ErrBodyRequired
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	if dec.More() {
		return errors.New("invalid JSON: trailing data")
	}
	return nil
}
