package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"paytrack/internal/clients"
	"paytrack/internal/domain"
	"paytrack/internal/repository"
	"paytrack/internal/validation"

	"github.com/stretchr/testify/mock"
)

type fakeRepo struct {
	mu        sync.Mutex
	payments  map[string]domain.Payment
	evidence  map[string]domain.EvidenceFile
	attachErr error
	createErr error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		payments: map[string]domain.Payment{},
		evidence: map[string]domain.EvidenceFile{},
	}
}

func (r *fakeRepo) withEvidence(p domain.Payment) domain.Payment {
	if ev, ok := r.evidence[p.ID]; ok {
		p.Evidence = &ev
	}
	return p
}

func (r *fakeRepo) List(ctx context.Context, f repository.PaymentsFilter) ([]domain.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := []domain.Payment{}
	for _, p := range r.payments {
		if f.Search != "" && !strings.Contains(strings.ToLower(p.PayeeFirstName+" "+p.PayeeLastName), strings.ToLower(f.Search)) {
			continue
		}
		out = append(out, r.withEvidence(p))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PayeeLastName < out[j].PayeeLastName })
	return out, nil
}

func (r *fakeRepo) Get(ctx context.Context, id string) (domain.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.payments[id]
	if !ok {
		return domain.Payment{}, fmt.Errorf("payment %s: %w", id, domain.ErrNotFound)
	}
	return r.withEvidence(p), nil
}

func (r *fakeRepo) Create(ctx context.Context, p *domain.Payment) error {
	if r.createErr != nil {
		return r.createErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	p.CreatedAt = time.Now()
	p.UpdatedAt = p.CreatedAt
	r.payments[p.ID] = *p
	return nil
}

func (r *fakeRepo) Update(ctx context.Context, p *domain.Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.payments[p.ID]; !ok {
		return domain.ErrNotFound
	}
	p.UpdatedAt = time.Now()
	r.payments[p.ID] = *p
	return nil
}

func (r *fakeRepo) Delete(ctx context.Context, id string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.payments[id]; !ok {
		return nil, domain.ErrNotFound
	}
	delete(r.payments, id)
	var keys []string
	if ev, ok := r.evidence[id]; ok {
		keys = append(keys, ev.StorageKey)
		delete(r.evidence, id)
	}
	return keys, nil
}

func (r *fakeRepo) DeleteAll(ctx context.Context) (int64, []string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := int64(len(r.payments))
	var keys []string
	for _, ev := range r.evidence {
		keys = append(keys, ev.StorageKey)
	}
	r.payments = map[string]domain.Payment{}
	r.evidence = map[string]domain.EvidenceFile{}
	return n, keys, nil
}

func (r *fakeRepo) AttachEvidence(ctx context.Context, ev *domain.EvidenceFile) (string, error) {
	if r.attachErr != nil {
		return "", r.attachErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.payments[ev.PaymentID]
	if !ok {
		return "", domain.ErrNotFound
	}
	var previous string
	if old, ok := r.evidence[ev.PaymentID]; ok {
		previous = old.StorageKey
	}
	ev.UploadedAt = time.Now()
	r.evidence[ev.PaymentID] = *ev
	p.PayeePaymentStatus = domain.StatusCompleted
	r.payments[p.ID] = p
	return previous, nil
}

func (r *fakeRepo) GetEvidence(ctx context.Context, paymentID string) (domain.EvidenceFile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ev, ok := r.evidence[paymentID]
	if !ok {
		return domain.EvidenceFile{}, domain.ErrNotFound
	}
	return ev, nil
}

type fakeBlobs struct {
	mu      sync.Mutex
	objects map[string][]byte
	putErr  error
}

func newFakeBlobs() *fakeBlobs {
	return &fakeBlobs{objects: map[string][]byte{}}
}

func (b *fakeBlobs) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	if b.putErr != nil {
		return "", b.putErr
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.objects[key] = append([]byte(nil), data...)
	return key, nil
}

func (b *fakeBlobs) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.objects[key]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (b *fakeBlobs) Remove(ctx context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.objects, key)
	return nil
}

func (b *fakeBlobs) keys() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []string
	for k := range b.objects {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// fakeCache mimics the redis client; a missing key yields domain.ErrNotFound.
type fakeCache struct {
	mu   sync.Mutex
	kv   map[string]string
	sets map[string]map[string]bool
}

func newFakeCache() *fakeCache {
	return &fakeCache{kv: map[string]string{}, sets: map[string]map[string]bool{}}
}

func (c *fakeCache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.kv[key] = fmt.Sprint(value)
	return nil
}

func (c *fakeCache) Get(ctx context.Context, key string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.kv[key]
	if !ok {
		return "", domain.ErrNotFound
	}
	return v, nil
}

func (c *fakeCache) SAdd(ctx context.Context, key string, members ...any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sets[key] == nil {
		c.sets[key] = map[string]bool{}
	}
	for _, m := range members {
		c.sets[key][fmt.Sprint(m)] = true
	}
	return nil
}

func (c *fakeCache) SRem(ctx context.Context, key string, members ...any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, m := range members {
		delete(c.sets[key], fmt.Sprint(m))
	}
	return nil
}

func (c *fakeCache) SMembers(ctx context.Context, key string) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []string
	for m := range c.sets[key] {
		out = append(out, m)
	}
	return out, nil
}

func (c *fakeCache) drop(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.kv, key)
}

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) NotifyJobProgress(ctx context.Context, kind clients.JobKind, clientID, jobID string, progress float64, stage string) error {
	return m.Called(kind, clientID, jobID, progress, stage).Error(0)
}

func (m *mockNotifier) NotifyJobComplete(ctx context.Context, kind clients.JobKind, clientID, jobID, url, filename string, summary map[string]any) error {
	return m.Called(kind, clientID, jobID, url, filename, summary).Error(0)
}

func (m *mockNotifier) NotifyJobFailed(ctx context.Context, kind clients.JobKind, clientID, jobID, errMsg string) error {
	return m.Called(kind, clientID, jobID, errMsg).Error(0)
}

var errBoom = errors.New("boom")

func fixedClock(y int, m time.Month, d int) Clock {
	return func() time.Time { return time.Date(y, m, d, 12, 0, 0, 0, time.UTC) }
}

func validRaw() validation.RawPayment {
	return validation.RawPayment{
		PayeeFirstName:     "Ada",
		PayeeLastName:      "Lovelace",
		PayeePaymentStatus: "pending",
		PayeeAddedDateUTC:  "2024-03-01T10:30:00Z",
		PayeeDueDate:       "2024-04-10",
		PayeeAddressLine1:  "1 Analytical Way",
		PayeeCity:          "London",
		PayeeCountry:       "GB",
		PayeePostalCode:    "N1 9GU",
		PayeePhoneNumber:   "14155552671",
		PayeeEmail:         "ada@example.com",
		Currency:           "GBP",
		DiscountPercent:    10,
		TaxPercent:         5,
		DueAmount:          100,
		TotalDue:           1,
	}
}
