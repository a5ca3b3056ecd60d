package httptransport

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/jayminwest/kotadb-sub013/internal/kotaerr"
	"github.com/jayminwest/kotadb-sub013/internal/ratelimit"
)

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

type errorBody struct {
	Error string       `json:"error"`
	Code  kotaerr.Code `json:"code"`
}

func writeError(w http.ResponseWriter, status int, code kotaerr.Code, message string) {
	writeJSON(w, status, errorBody{Error: message, Code: code})
}

// writeRateLimitHeaders attaches all six X-RateLimit-* headers,
// unconditionally, per P8.
func writeRateLimitHeaders(w http.ResponseWriter, result ratelimit.Result) {
	h := w.Header()
	h.Set("X-RateLimit-Limit-Hour", strconv.Itoa(result.Hour.Limit))
	h.Set("X-RateLimit-Remaining-Hour", strconv.Itoa(max0(result.Hour.Remaining)))
	h.Set("X-RateLimit-Reset-Hour", strconv.FormatInt(result.Hour.Reset.Unix(), 10))
	h.Set("X-RateLimit-Limit-Day", strconv.Itoa(result.Day.Limit))
	h.Set("X-RateLimit-Remaining-Day", strconv.Itoa(max0(result.Day.Remaining)))
	h.Set("X-RateLimit-Reset-Day", strconv.FormatInt(result.Day.Reset.Unix(), 10))
}

func max0(n int) int {
	if n < 0 {
		return 0
	}
	return n
}

func retryAfterSeconds(reset time.Time) int {
	d := int(time.Until(reset).Seconds())
	if d < 0 {
		return 0
	}
	return d
}
