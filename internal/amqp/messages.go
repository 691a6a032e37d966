package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"conti/internal/core"
	"conti/internal/report"
)

// ReportRequest asks the report worker for one view. A nil CategoryID
// leaves the category filter off.
type ReportRequest struct {
	ID         string      `json:"id"`
	Kind       report.Kind `json:"kind"`
	From       core.Date   `json:"from"`
	To         core.Date   `json:"to"`
	CategoryID *int64      `json:"category_id,omitempty"`
	Timestamp  time.Time   `json:"timestamp"`
}

// NewReportRequest creates a request with a fresh id.
func NewReportRequest(kind report.Kind, f core.Filter) *ReportRequest {
	req := &ReportRequest{
		ID:        uuid.NewString(),
		Kind:      kind,
		From:      f.From,
		To:        f.To,
		Timestamp: time.Now(),
	}
	if f.ByCategory {
		id := f.CategoryID
		req.CategoryID = &id
	}
	return req
}

// Filter converts the request into an engine filter.
func (r *ReportRequest) Filter() core.Filter {
	f := core.Filter{From: r.From, To: r.To}
	if r.CategoryID != nil {
		f = f.ForCategory(*r.CategoryID)
	}
	return f
}

func (r *ReportRequest) Validate() error {
	if !r.Kind.IsValid() {
		return fmt.Errorf("%w: %q", report.ErrUnknownKind, r.Kind)
	}
	return nil
}

// ToJSON converts the message to JSON bytes
func (r *ReportRequest) ToJSON() ([]byte, error) {
	return json.Marshal(r)
}

// ReportRequestFromJSON decodes a request body.
func ReportRequestFromJSON(data []byte) (*ReportRequest, error) {
	var req ReportRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, err
	}
	return &req, nil
}

// ReportResponse answers a ReportRequest. Exactly one of Data and Error
// is set.
type ReportResponse struct {
	RequestID   string          `json:"request_id"`
	Kind        report.Kind     `json:"kind"`
	Data        json.RawMessage `json:"data,omitempty"`
	Error       string          `json:"error,omitempty"`
	GeneratedAt time.Time       `json:"generated_at"`
}

// ToJSON converts the message to JSON bytes
func (r *ReportResponse) ToJSON() ([]byte, error) {
	return json.Marshal(r)
}

// ReportResponseFromJSON decodes a response body.
func ReportResponseFromJSON(data []byte) (*ReportResponse, error) {
	var resp ReportResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// LedgerEvent announces a committed write so report consumers can refresh.
type LedgerEvent struct {
	Op        string    `json:"op"`
	Entity    string    `json:"entity"`
	ID        int64     `json:"id"`
	Timestamp time.Time `json:"timestamp"`
}

// ToJSON converts the message to JSON bytes
func (e *LedgerEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}
