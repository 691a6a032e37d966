// Package http provides the JSON API over the report engine and the
// ledger store.
//
// This file holds the request parsing helpers shared by the handlers.
package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"conti/internal/core"
	"conti/internal/report"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 64 << 10

// BadRequestError marks a request the client must fix. It maps to 400.
type BadRequestError struct {
	Msg string
}

func (e *BadRequestError) Error() string { return e.Msg }

func badRequest(format string, args ...any) error {
	return &BadRequestError{Msg: fmt.Sprintf(format, args...)}
}

// ParseFilter reads the from, to and category query parameters. Absent
// parameters leave the matching filter field unset.
//
// Examples:
//
//	?from=2024-01-01&to=2024-03-31 -> Jan..Mar 2024, all categories
//	?category=3                    -> unbounded, category 3 only
//	?category=0                    -> matches no category, empty views
//	?from=01/02/2024               -> error
func ParseFilter(q url.Values) (core.Filter, error) {
	var f core.Filter

	if v := strings.TrimSpace(q.Get("from")); v != "" {
		d, err := core.ParseDate(v)
		if err != nil {
			return core.Filter{}, badRequest("invalid from date %q, want YYYY-MM-DD", v)
		}
		f.From = d
	}
	if v := strings.TrimSpace(q.Get("to")); v != "" {
		d, err := core.ParseDate(v)
		if err != nil {
			return core.Filter{}, badRequest("invalid to date %q, want YYYY-MM-DD", v)
		}
		f.To = d
	}
	if v := strings.TrimSpace(q.Get("category")); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return core.Filter{}, badRequest("invalid category id %q", v)
		}
		// An id no category carries, zero and negatives included, selects
		// nothing and yields empty views.
		f = f.ForCategory(id)
	}

	return f, nil
}

// reportPaths maps URL segments to report kinds.
var reportPaths = map[string]report.Kind{
	"ledger":            report.KindLedger,
	"by-month":          report.KindByMonth,
	"by-category":       report.KindByCategory,
	"by-month-category": report.KindByMonthCategory,
	"all":               report.KindAll,
}

// ParseReportKind resolves the {kind} path segment.
func ParseReportKind(segment string) (report.Kind, bool) {
	k, ok := reportPaths[segment]
	return k, ok
}

// parseID reads a positive integer path value.
func parseID(r *http.Request, name string) (int64, error) {
	raw := r.PathValue(name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, badRequest("invalid %s %q", name, raw)
	}
	return id, nil
}

// decodeJSON reads a single JSON object from the request body into dst.
// Unknown fields are rejected.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			return badRequest("request body larger than %d bytes", maxErr.Limit)
		case errors.Is(err, io.EOF):
			return badRequest("request body is empty")
		default:
			return badRequest("malformed JSON body: %v", err)
		}
	}
	if dec.More() {
		return badRequest("request body must hold a single JSON object")
	}
	return nil
}
