package rest

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"paytrack/internal/service"
	"paytrack/internal/validation"

	"github.com/spf13/cast"
)

// ValidationError is a malformed request, as opposed to a rejected payment
// field which is reported as validation.Errors.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func decodePayment(r *http.Request) (validation.RawPayment, error) {
	var raw validation.RawPayment
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		if errors.Is(err, io.EOF) {
			return raw, &ValidationError{Message: "request body is empty"}
		}
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return raw, err
		}
		return raw, &ValidationError{Message: "invalid JSON"}
	}
	return raw, nil
}

type PaymentsExportRequest struct {
	Fields   []string
	Status   string
	Search   string
	ClientID string
}

type rawPaymentsExportRequest struct {
	Fields   []string `json:"fields"`
	Status   any      `json:"status"`
	Search   any      `json:"search"`
	ClientID any      `json:"client_id"`
}

// ValidatePaymentsExportRequest parses the export body. Empty fields select
// the default column set.
func ValidatePaymentsExportRequest(r *http.Request) (*PaymentsExportRequest, error) {
	var raw rawPaymentsExportRequest
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil && !errors.Is(err, io.EOF) {
		return nil, &ValidationError{Message: "invalid JSON"}
	}

	status, err := toString("status", raw.Status)
	if err != nil {
		return nil, err
	}
	search, err := toString("search", raw.Search)
	if err != nil {
		return nil, err
	}
	clientID, err := toString("client_id", raw.ClientID)
	if err != nil {
		return nil, err
	}
	if clientID == "" {
		clientID = r.URL.Query().Get("client_id")
	}

	return &PaymentsExportRequest{
		Fields:   raw.Fields,
		Status:   status,
		Search:   search,
		ClientID: clientID,
	}, nil
}

func (r *PaymentsExportRequest) ToServiceRequest() service.ExportRequest {
	return service.ExportRequest{
		Columns:  r.Fields,
		Filter:   service.ListFilter{Status: r.Status, Search: r.Search},
		ClientID: r.ClientID,
	}
}

func toString(field string, v any) (string, error) {
	if v == nil {
		return "", nil
	}
	s, err := cast.ToStringE(v)
	if err != nil {
		return "", &ValidationError{Field: field, Message: field + " must be a string or empty"}
	}
	return strings.TrimSpace(s), nil
}
