package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"paytrack/internal/clients"
	"paytrack/internal/domain"
	"paytrack/internal/validation"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

var ErrNoColumns = errors.New("no exportable columns selected")

type PaymentLister interface {
	List(ctx context.Context, f ListFilter) ([]domain.Payment, error)
}

// FileStore keeps generated export files; implemented by clients.StorageClient.
type FileStore interface {
	Save(ctx context.Context, fileName string, data []byte) (string, error)
	GetURL(fileName string) string
}

type PaymentColumn struct {
	Header string
	Value  func(p domain.Payment) any
}

var paymentColumns = map[string]PaymentColumn{
	"id":                      {Header: "ID", Value: func(p domain.Payment) any { return p.ID }},
	"transaction_id":          {Header: "Transaction ID", Value: func(p domain.Payment) any { return p.TransactionID }},
	"payee_first_name":        {Header: "First name", Value: func(p domain.Payment) any { return p.PayeeFirstName }},
	"payee_last_name":         {Header: "Last name", Value: func(p domain.Payment) any { return p.PayeeLastName }},
	"payee_payment_status":    {Header: "Status", Value: func(p domain.Payment) any { return string(p.PayeePaymentStatus) }},
	"payee_added_date_utc":    {Header: "Added (UTC)", Value: func(p domain.Payment) any { return p.PayeeAddedDateUTC.UTC().Format(validation.HumanDateTimeLayout) }},
	"payee_due_date":          {Header: "Due date", Value: func(p domain.Payment) any { return p.PayeeDueDate.String() }},
	"payee_address_line_1":    {Header: "Address line 1", Value: func(p domain.Payment) any { return p.PayeeAddressLine1 }},
	"payee_address_line_2":    {Header: "Address line 2", Value: func(p domain.Payment) any { return strPtr(p.PayeeAddressLine2) }},
	"payee_city":              {Header: "City", Value: func(p domain.Payment) any { return p.PayeeCity }},
	"payee_country":           {Header: "Country", Value: func(p domain.Payment) any { return p.PayeeCountry }},
	"payee_province_or_state": {Header: "Province or state", Value: func(p domain.Payment) any { return strPtr(p.PayeeProvinceOrState) }},
	"payee_postal_code":       {Header: "Postal code", Value: func(p domain.Payment) any { return p.PayeePostalCode }},
	"payee_phone_number":      {Header: "Phone", Value: func(p domain.Payment) any { return p.PayeePhoneNumber }},
	"payee_email":             {Header: "Email", Value: func(p domain.Payment) any { return p.PayeeEmail }},
	"currency":                {Header: "Currency", Value: func(p domain.Payment) any { return p.Currency }},
	"discount_percent":        {Header: "Discount %", Value: func(p domain.Payment) any { return p.DiscountPercent }},
	"tax_percent":             {Header: "Tax %", Value: func(p domain.Payment) any { return p.TaxPercent }},
	"due_amount":              {Header: "Due amount", Value: func(p domain.Payment) any { return p.DueAmount }},
	"total_due":               {Header: "Total due", Value: func(p domain.Payment) any { return p.TotalDue }},
	"evidence":                {Header: "Evidence", Value: func(p domain.Payment) any { return evidenceName(p.Evidence) }},
	"created_at":              {Header: "Created", Value: func(p domain.Payment) any { return p.CreatedAt.UTC().Format(time.DateTime) }},
	"updated_at":              {Header: "Updated", Value: func(p domain.Payment) any { return p.UpdatedAt.UTC().Format(time.DateTime) }},
}

var defaultPaymentColumns = []string{
	"transaction_id", "payee_first_name", "payee_last_name", "payee_payment_status", "payee_added_date_utc",
	"payee_due_date", "payee_address_line_1", "payee_address_line_2", "payee_city", "payee_country",
	"payee_province_or_state", "payee_postal_code", "payee_phone_number", "payee_email", "currency",
	"discount_percent", "tax_percent", "due_amount", "total_due", "evidence",
}

const (
	maxPaymentsForExport = 500_000
	exportChunkSize      = 1000
)

type ExportRequest struct {
	Columns  []string
	Filter   ListFilter
	ClientID string
}

type ExportService struct {
	payments PaymentLister
	files    FileStore
	jobs     *jobTracker
	log      *zap.Logger
	now      Clock
}

func NewExportService(payments PaymentLister, files FileStore, cache StatusCache, notify Notifier, log *zap.Logger) *ExportService {
	if log == nil {
		log = zap.NewNop()
	}
	return &ExportService{
		payments: payments,
		files:    files,
		jobs:     &jobTracker{cache: cache, notify: notify, log: log},
		log:      log,
		now:      time.Now,
	}
}

// StartPaymentsExport registers an export job and builds the workbook in the
// background. The returned id is the job key.
func (s *ExportService) StartPaymentsExport(ctx context.Context, req ExportRequest) (string, error) {
	cols, selected := selectColumns(req.Columns)
	if len(cols) == 0 {
		return "", ErrNoColumns
	}
	if req.Filter.Status != "" && !domain.PaymentStatus(strings.ToLower(req.Filter.Status)).Valid() {
		return "", validation.Errors{{
			Field:   "status",
			Kind:    validation.InvalidStatus,
			Message: fmt.Sprintf("unknown status %q", req.Filter.Status),
		}}
	}

	status := &JobStatus{
		Key:      fmt.Sprintf("exports:%s", uuid.NewString()),
		Type:     "payments",
		ClientID: req.ClientID,
		Filters:  buildPaymentsFiltersMap(req.Filter, selected),
		Created:  s.now(),
	}
	s.jobs.save(ctx, status)

	go s.runPaymentsExport(context.Background(), status, cols, req.Filter)

	return status.Key, nil
}

func (s *ExportService) runPaymentsExport(ctx context.Context, status *JobStatus, cols []PaymentColumn, filter ListFilter) {
	payments, err := s.payments.List(ctx, filter)
	if err != nil {
		s.jobs.fail(ctx, clients.JobExport, status, fmt.Errorf("load payments: %w", err))
		return
	}
	if len(payments) > maxPaymentsForExport {
		s.jobs.fail(ctx, clients.JobExport, status, fmt.Errorf("too many payments to export (more than %d)", maxPaymentsForExport))
		return
	}

	data, err := s.buildWorkbook(ctx, status, cols, payments)
	if err != nil {
		s.jobs.fail(ctx, clients.JobExport, status, err)
		return
	}

	fileName := fmt.Sprintf("payments_%s.xlsx", s.now().Format("20060102_150405"))

	s.jobs.progress(ctx, clients.JobExport, status, 95, "uploading")
	savedName, err := s.files.Save(ctx, fileName, data)
	if err != nil {
		s.jobs.fail(ctx, clients.JobExport, status, fmt.Errorf("save export failed: %w", err))
		return
	}

	s.jobs.complete(ctx, clients.JobExport, status, s.files.GetURL(savedName), fileName)
	s.log.Info("payments export ready", zap.String("job", status.Key), zap.Int("rows", len(payments)))
}

func (s *ExportService) buildWorkbook(ctx context.Context, status *JobStatus, cols []PaymentColumn, payments []domain.Payment) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	sheet := "Payments"
	if err := f.SetSheetName(f.GetSheetName(0), sheet); err != nil {
		return nil, fmt.Errorf("prepare sheet: %w", err)
	}
	_ = f.SetDocProps(&excelize.DocProperties{Creator: "paytrack", Title: "Payments"})

	for i, col := range cols {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, col.Header)
	}

	total := len(payments)
	for i, p := range payments {
		for colIdx, col := range cols {
			cell, _ := excelize.CoordinatesToCellName(colIdx+1, i+2)
			if err := f.SetCellValue(sheet, cell, col.Value(p)); err != nil {
				return nil, fmt.Errorf("write cell %s: %w", cell, err)
			}
		}

		if (i+1)%exportChunkSize == 0 || i == total-1 {
			progress := math.Round(float64(i+1) / float64(total) * 100.0)
			if progress >= 95 {
				progress = 90
			}
			s.jobs.progress(ctx, clients.JobExport, status, progress, "generating")
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("render workbook: %w", err)
	}
	return buf.Bytes(), nil
}

// JobView is a job status as presented by the export list.
type JobView struct {
	Key       string         `json:"key"`
	Type      string         `json:"type"`
	ClientID  string         `json:"client_id"`
	Progress  float64        `json:"progress"`
	FileURL   *string        `json:"file_url"`
	Error     *string        `json:"error"`
	Filters   any            `json:"filters"`
	Summary   map[string]any `json:"summary,omitempty"`
	CreatedAt string         `json:"created_at"`
}

func (s *ExportService) view(st JobStatus) JobView {
	return JobView{
		Key:       st.Key,
		Type:      st.Type,
		ClientID:  st.ClientID,
		Progress:  st.Progress,
		FileURL:   st.FileURL,
		Error:     st.Error,
		Filters:   st.Filters,
		Summary:   st.Summary,
		CreatedAt: humanizeAgo(st.Created, s.now()),
	}
}

// GetExports lists the jobs of clientID, newest first. An empty clientID
// lists every job.
func (s *ExportService) GetExports(ctx context.Context, clientID string) ([]JobView, error) {
	cache := s.jobs.cache
	if cache == nil {
		return nil, errors.New("status cache not configured")
	}

	keys, err := cache.SMembers(ctx, jobSetKey)
	if err != nil {
		return nil, fmt.Errorf("failed to get job keys: %w", err)
	}

	var statuses []JobStatus
	for _, key := range keys {
		data, err := cache.Get(ctx, key)
		if errors.Is(err, domain.ErrNotFound) {
			// expired
			_ = cache.SRem(ctx, jobSetKey, key)
			continue
		}
		if err != nil {
			continue
		}

		var status JobStatus
		if err := json.Unmarshal([]byte(data), &status); err != nil {
			continue
		}

		if clientID == "" || status.ClientID == clientID {
			statuses = append(statuses, status)
		}
	}

	sort.Slice(statuses, func(i, j int) bool {
		return statuses[i].Created.After(statuses[j].Created)
	})

	out := make([]JobView, 0, len(statuses))
	for _, status := range statuses {
		out = append(out, s.view(status))
	}
	return out, nil
}

// GetExport returns one job. Jobs of another client are reported as missing.
func (s *ExportService) GetExport(ctx context.Context, id, clientID string) (JobView, error) {
	cache := s.jobs.cache
	if cache == nil {
		return JobView{}, errors.New("status cache not configured")
	}

	data, err := cache.Get(ctx, id)
	if err != nil {
		return JobView{}, fmt.Errorf("export %s: %w", id, domain.ErrNotFound)
	}

	var status JobStatus
	if err := json.Unmarshal([]byte(data), &status); err != nil {
		return JobView{}, fmt.Errorf("failed to parse job status: %w", err)
	}

	if clientID != "" && status.ClientID != clientID {
		return JobView{}, fmt.Errorf("export %s: %w", id, domain.ErrNotFound)
	}
	return s.view(status), nil
}

func selectColumns(requested []string) ([]PaymentColumn, []string) {
	if len(requested) == 0 {
		requested = defaultPaymentColumns
	}
	var (
		cols     []PaymentColumn
		selected []string
	)
	for _, key := range requested {
		col, ok := paymentColumns[key]
		if !ok {
			continue
		}
		cols = append(cols, col)
		selected = append(selected, key)
	}
	return cols, selected
}

func buildPaymentsFiltersMap(f ListFilter, fields []string) map[string]any {
	m := map[string]any{"status": nil, "search": nil}
	if f.Status != "" {
		m["status"] = f.Status
	}
	if f.Search != "" {
		m["search"] = f.Search
	}
	m["fields"] = fields
	return m
}

func humanizeAgo(t, now time.Time) string {
	if t.After(now) {
		return "just now"
	}

	minutes := int(now.Sub(t).Minutes())
	if minutes < 1 {
		return "just now"
	}
	if minutes < 60 {
		return fmt.Sprintf("%d %s ago", minutes, plural(minutes, "minute", "minutes"))
	}
	hours := minutes / 60
	if hours < 24 {
		return fmt.Sprintf("%d %s ago", hours, plural(hours, "hour", "hours"))
	}
	days := hours / 24
	if days < 30 {
		return fmt.Sprintf("%d %s ago", days, plural(days, "day", "days"))
	}
	return t.Format("2006-01-02 15:04")
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}

func strPtr(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func evidenceName(ev *domain.EvidenceFile) string {
	if ev == nil {
		return ""
	}
	return ev.Filename
}
