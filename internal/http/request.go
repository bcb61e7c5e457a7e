package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/WouterMerckaert-dev/BudgetPal/internal/core"
)

const maxBodyBytes = 1 << 20

// decodeJSON reads a single JSON object from the body into dst. Unknown
// fields are rejected so typos do not silently drop updates.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.Is(err, io.EOF):
			return errBadRequest("request body is empty")
		case errors.As(err, &maxErr):
			return errBadRequest("request body too large")
		case errors.Is(err, core.ErrInvalidAmount):
			return errBadRequest("invalid amount")
		default:
			return errBadRequest("malformed JSON: " + err.Error())
		}
	}
	if dec.More() {
		return errBadRequest("request body must contain a single JSON object")
	}
	return nil
}

// parseDate accepts a calendar date or a full RFC 3339 timestamp. An empty
// value yields the zero time and is left to domain validation.
func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, errBadRequest("invalid date '" + s + "': use YYYY-MM-DD")
	}
	return t, nil
}

// parseIDs splits a comma separated list, dropping blanks.
func parseIDs(v string) []string {
	var ids []string
	for _, id := range strings.Split(v, ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

func parseOverviewFilter(q url.Values) core.OverviewFilter {
	return core.OverviewFilter{
		CategoryID: strings.TrimSpace(q.Get("category")),
		UserID:     strings.TrimSpace(q.Get("user")),
		Period:     core.ParsePeriod(q.Get("period")),
		Sort:       core.ParseSort(q.Get("sort")),
	}
}

// parseLimit reads a positive integer query value, clamped to max.
func parseLimit(q url.Values, def, max int) (int, error) {
	v := strings.TrimSpace(q.Get("limit"))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return 0, errBadRequest("limit must be a positive integer")
	}
	if n > max {
		n = max
	}
	return n, nil
}

// sanitizeInput removes control characters and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}
