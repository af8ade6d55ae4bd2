package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/Clark-Hu/business-ratings/internal/repository"
)

const (
	maxRequestBody   = 1 << 20 // 1 MiB
	defaultListLimit = 10
	maxListLimit     = 100
	dateLayout       = "2006-01-02"
)

type errorResponse struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

type listLimits struct {
	def int
	max int
}

func (s *Server) listLimits() listLimits {
	limits := listLimits{def: s.cfg.ListDefaultLimit, max: s.cfg.ListMaxLimit}
	if limits.def <= 0 {
		limits.def = defaultListLimit
	}
	if limits.max < limits.def {
		limits.max = max(maxListLimit, limits.def)
	}
	return limits
}

// buildRatingFilters parses limit, date_from and date_to for the business
// listing.
func buildRatingFilters(query url.Values, limits listLimits) (repository.RatingListFilters, error) {
	var filters repository.RatingListFilters

	limit, err := parseLimit(query, limits)
	if err != nil {
		return filters, err
	}
	filters.Limit = limit

	if val := strings.TrimSpace(query.Get("date_from")); val != "" {
		from, err := parseDateBound(val, false)
		if err != nil {
			return filters, fmt.Errorf("invalid date_from value")
		}
		filters.CreatedFrom = &from
	}
	if val := strings.TrimSpace(query.Get("date_to")); val != "" {
		to, err := parseDateBound(val, true)
		if err != nil {
			return filters, fmt.Errorf("invalid date_to value")
		}
		filters.CreatedTo = &to
	}
	if filters.CreatedFrom != nil && filters.CreatedTo != nil && filters.CreatedFrom.After(*filters.CreatedTo) {
		return filters, fmt.Errorf("date_from must not be after date_to")
	}
	return filters, nil
}

func parseLimit(query url.Values, limits listLimits) (int, error) {
	val := strings.TrimSpace(query.Get("limit"))
	if val == "" {
		return limits.def, nil
	}
	limit, err := strconv.Atoi(val)
	if err != nil || limit < 0 {
		return 0, fmt.Errorf("invalid limit value")
	}
	if limit > limits.max {
		limit = limits.max
	}
	return limit, nil
}

// parseDateBound accepts RFC 3339 timestamps or plain dates. A plain date as
// an upper bound covers the whole day, down to Postgres' microsecond
// resolution.
func parseDateBound(raw string, upper bool) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		return ts, nil
	}
	day, err := time.Parse(dateLayout, raw)
	if err != nil {
		return time.Time{}, err
	}
	if upper {
		return day.AddDate(0, 0, 1).Add(-time.Microsecond), nil
	}
	return day, nil
}

func parseBusinessID(query url.Values) (int64, error) {
	val := strings.TrimSpace(query.Get("business_id"))
	if val == "" {
		return 0, fmt.Errorf("business_id is required")
	}
	id, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid business_id value")
	}
	return id, nil
}

func parseIDParam(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "id")
	if raw == "" {
		return 0, fmt.Errorf("missing id parameter")
	}
	// Non-positive ids are never assigned; the store reports them as not found.
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid id parameter")
	}
	return id, nil
}

func decodeJSONBody(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		if err := json.NewEncoder(w).Encode(payload); err != nil {
			s.logger.Printf("failed to encode response: %v", err)
		}
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, code, message string) {
	s.respondJSON(w, status, errorResponse{
		Code:    code,
		Message: message,
	})
}

func (s *Server) respondDecodeError(w http.ResponseWriter, err error) {
	var syntaxError *json.SyntaxError
	var typeError *json.UnmarshalTypeError
	var maxBytesError *http.MaxBytesError
	switch {
	case errors.As(err, &syntaxError), errors.Is(err, io.ErrUnexpectedEOF):
		s.respondError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Malformed JSON payload")
	case errors.As(err, &typeError):
		s.respondError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", fmt.Sprintf("Invalid value for field %s", typeError.Field))
	case errors.Is(err, io.EOF):
		s.respondError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Request body cannot be empty")
	case errors.As(err, &maxBytesError):
		s.respondError(w, http.StatusRequestEntityTooLarge, "VALIDATION_ERROR", "Request body too large")
	case strings.HasPrefix(err.Error(), "json: unknown field "):
		field := strings.TrimPrefix(err.Error(), "json: unknown field ")
		s.respondError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", fmt.Sprintf("Unknown field %s", field))
	default:
		s.respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Unable to parse request body")
	}
}
