package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"paytrack/internal/clients"
	"paytrack/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

type stubLister struct {
	payments []domain.Payment
	err      error
}

func (l stubLister) List(ctx context.Context, f ListFilter) ([]domain.Payment, error) {
	return l.payments, l.err
}

type memFiles struct {
	mu    sync.Mutex
	files map[string][]byte
	err   error
}

func (m *memFiles) Save(ctx context.Context, fileName string, data []byte) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.files == nil {
		m.files = map[string][]byte{}
	}
	m.files[fileName] = data
	return fileName, nil
}

func (m *memFiles) GetURL(fileName string) string {
	return "/files/" + fileName
}

func (m *memFiles) only() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, v := range m.files {
		return v
	}
	return nil
}

func statusOf(cache *fakeCache, key string) JobStatus {
	var st JobStatus
	if data, err := cache.Get(context.Background(), key); err == nil {
		_ = json.Unmarshal([]byte(data), &st)
	}
	return st
}

func samplePayment() domain.Payment {
	p := domain.Payment{
		ID:                 "p-1",
		TransactionID:      "tx-1",
		PayeeFirstName:     "Ada",
		PayeeLastName:      "Lovelace",
		PayeePaymentStatus: domain.StatusPending,
		PayeeAddedDateUTC:  time.Date(2024, 3, 1, 22, 13, 0, 0, time.UTC),
		PayeeDueDate:       domain.Date{Year: 2024, Month: time.April, Day: 10},
		Currency:           "GBP",
		DueAmount:          100,
		DiscountPercent:    10,
		TaxPercent:         5,
	}
	p.RecomputeTotalDue()
	return p
}

func TestExportService_PaymentsExportCompletes(t *testing.T) {
	cache := newFakeCache()
	files := &memFiles{}
	notifier := &mockNotifier{}
	notifier.On("NotifyJobProgress", clients.JobExport, "tab-1", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	completed := make(chan struct{})
	notifier.On("NotifyJobComplete", clients.JobExport, "tab-1", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { close(completed) }).
		Return(nil)

	svc := NewExportService(stubLister{payments: []domain.Payment{samplePayment()}}, files, cache, notifier, nil)

	id, err := svc.StartPaymentsExport(context.Background(), ExportRequest{
		Columns:  []string{"payee_last_name", "total_due", "payee_added_date_utc", "bogus"},
		ClientID: "tab-1",
	})
	require.NoError(t, err)

	select {
	case <-completed:
	case <-time.After(2 * time.Second):
		t.Fatal("export did not complete")
	}

	st := statusOf(cache, id)
	assert.Equal(t, 100.0, st.Progress)
	require.NotNil(t, st.FileURL)
	assert.Contains(t, *st.FileURL, "/files/payments_")
	assert.Nil(t, st.Error)
	assert.Equal(t, "tab-1", st.ClientID)

	f, err := excelize.OpenReader(bytes.NewReader(files.only()))
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows("Payments")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"Last name", "Total due", "Added (UTC)"}, rows[0])
	assert.Equal(t, []string{"Lovelace", "95", "Mar 01, 2024, 10:13 PM"}, rows[1])

	notifier.AssertCalled(t, "NotifyJobProgress", clients.JobExport, "tab-1", id, 95.0, "uploading")
}

func TestExportService_PaymentsExportFails(t *testing.T) {
	cache := newFakeCache()
	notifier := &mockNotifier{}
	notifier.On("NotifyJobFailed", clients.JobExport, "tab-1", mock.Anything, mock.Anything).Return(nil)

	svc := NewExportService(stubLister{err: errBoom}, &memFiles{}, cache, notifier, nil)

	id, err := svc.StartPaymentsExport(context.Background(), ExportRequest{ClientID: "tab-1"})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return statusOf(cache, id).Error != nil
	}, 2*time.Second, 10*time.Millisecond)
	assert.Contains(t, *statusOf(cache, id).Error, "boom")
}

func TestExportService_StartRejectsBadRequests(t *testing.T) {
	svc := NewExportService(stubLister{}, &memFiles{}, newFakeCache(), nil, nil)

	_, err := svc.StartPaymentsExport(context.Background(), ExportRequest{Columns: []string{"nope"}})
	assert.True(t, errors.Is(err, ErrNoColumns))

	_, err = svc.StartPaymentsExport(context.Background(), ExportRequest{Filter: ListFilter{Status: "lost"}})
	assert.Error(t, err)
}

func TestExportService_GetExports(t *testing.T) {
	ctx := context.Background()
	cache := newFakeCache()
	svc := NewExportService(stubLister{}, &memFiles{}, cache, nil, nil)
	now := time.Date(2024, 4, 10, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	tracker := svc.jobs
	tracker.save(ctx, &JobStatus{Key: "exports:old", Type: "payments", ClientID: "a", Created: now.Add(-2 * time.Hour)})
	tracker.save(ctx, &JobStatus{Key: "exports:new", Type: "payments", ClientID: "a", Created: now.Add(-5 * time.Minute)})
	tracker.save(ctx, &JobStatus{Key: "exports:other", Type: "payments", ClientID: "b", Created: now})
	tracker.save(ctx, &JobStatus{Key: "exports:gone", Type: "payments", ClientID: "a", Created: now})
	cache.drop("exports:gone")

	jobs, err := svc.GetExports(ctx, "a")
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, "exports:new", jobs[0].Key)
	assert.Equal(t, "5 minutes ago", jobs[0].CreatedAt)
	assert.Equal(t, "2 hours ago", jobs[1].CreatedAt)

	members, _ := cache.SMembers(ctx, jobSetKey)
	assert.NotContains(t, members, "exports:gone")

	all, err := svc.GetExports(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	job, err := svc.GetExport(ctx, "exports:other", "b")
	require.NoError(t, err)
	assert.Equal(t, "just now", job.CreatedAt)

	_, err = svc.GetExport(ctx, "exports:other", "a")
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	_, err = svc.GetExport(ctx, "exports:missing", "")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestHumanizeAgo(t *testing.T) {
	now := time.Date(2024, 4, 10, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, "just now", humanizeAgo(now.Add(time.Minute), now))
	assert.Equal(t, "just now", humanizeAgo(now.Add(-30*time.Second), now))
	assert.Equal(t, "1 minute ago", humanizeAgo(now.Add(-time.Minute), now))
	assert.Equal(t, "1 hour ago", humanizeAgo(now.Add(-61*time.Minute), now))
	assert.Equal(t, "3 days ago", humanizeAgo(now.Add(-72*time.Hour), now))
	assert.Equal(t, "2024-01-01 12:00", humanizeAgo(time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC), now))
}
