package http

import (
	"net/http"
	"strconv"

	"conti/internal/chart"
	applog "conti/internal/log"
)

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	segment := r.PathValue("kind")
	kind, ok := ParseReportKind(segment)
	if !ok {
		writeError(w, r, badRequest("unknown report %q", segment))
		return
	}
	f, err := ParseFilter(r.URL.Query())
	if err != nil {
		writeError(w, r, err)
		return
	}

	view, err := s.engine.Build(r.Context(), kind, f)
	if err != nil {
		writeError(w, r, err)
		return
	}

	applog.FromContext(r.Context()).DebugContext(r.Context(), "Report served",
		applog.FieldReportKind, string(kind),
		applog.FieldFrom, f.From.String(),
		applog.FieldTo, f.To.String())
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleBalanceChart(w http.ResponseWriter, r *http.Request) {
	f, err := ParseFilter(r.URL.Query())
	if err != nil {
		writeError(w, r, err)
		return
	}
	lines, err := s.engine.GetLedger(r.Context(), f)
	if err != nil {
		writeError(w, r, err)
		return
	}
	png, err := chart.RenderBalance(lines)
	if err != nil {
		writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(len(png)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}
