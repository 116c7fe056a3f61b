package httpapi

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"showcall/lib/config"
	"showcall/lib/control"
	"showcall/lib/cuestack"
	"showcall/lib/macro"
	"showcall/lib/store"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]any{"ok": false, "error": err.Error()})
}

// statusFor maps package sentinels onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrDuplicateID):
		return http.StatusConflict
	case errors.Is(err, control.ErrInvalidInput),
		errors.Is(err, macro.ErrEmptyMacro),
		errors.Is(err, macro.ErrInvalidStep),
		errors.Is(err, store.ErrMissingID),
		errors.Is(err, cuestack.ErrIndexOutOfRange),
		errors.Is(err, cuestack.ErrInvalidCue),
		errors.Is(err, config.ErrInvalid),
		errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

var errBadRequest = errors.New("bad request")

func badRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errBadRequest, fmt.Sprintf(format, args...))
}

// readJSON decodes a size-limited body into v. An empty body leaves v
// untouched.
func readJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return badRequest("invalid JSON: %v", err)
	}
	return nil
}

// flexInt accepts a JSON number or a numeric string, since form-driven
// clients send both.
type flexInt struct {
	set   bool
	valid bool
	n     int
}

func (f *flexInt) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" {
		return nil
	}
	f.set = true
	if unq, err := strconv.Unquote(s); err == nil {
		s = strings.TrimSpace(unq)
		if s == "" {
			f.set = false
			return nil
		}
	}
	if n, err := strconv.Atoi(s); err == nil {
		f.n, f.valid = n, true
		return nil
	}
	if v, err := strconv.ParseFloat(s, 64); err == nil && v == float64(int(v)) {
		f.n, f.valid = int(v), true
	}
	return nil
}

// positive returns the value when it is a positive integer.
func (f flexInt) positive(name string) (int, error) {
	if !f.valid || f.n < 1 {
		return 0, fmt.Errorf("%w: %s must be a positive integer", control.ErrInvalidInput, name)
	}
	return f.n, nil
}

func nowMillis() int64 {
	return time.Now().UnixMilli()
}
