package service

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"paytrack/internal/domain"
	"paytrack/internal/repository"
	"paytrack/internal/validation"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type PaymentRepository interface {
	List(ctx context.Context, f repository.PaymentsFilter) ([]domain.Payment, error)
	Get(ctx context.Context, id string) (domain.Payment, error)
	Create(ctx context.Context, p *domain.Payment) error
	Update(ctx context.Context, p *domain.Payment) error
	Delete(ctx context.Context, id string) ([]string, error)
	DeleteAll(ctx context.Context) (int64, []string, error)
	AttachEvidence(ctx context.Context, ev *domain.EvidenceFile) (string, error)
	GetEvidence(ctx context.Context, paymentID string) (domain.EvidenceFile, error)
}

// BlobStore holds evidence file contents. Implemented by the local storage
// client and the S3 client.
type BlobStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Remove(ctx context.Context, key string) error
}

// Clock returns the current instant.
type Clock func() time.Time

var evidenceTypes = map[string]string{
	"application/pdf": ".pdf",
	"image/png":       ".png",
	"image/jpeg":      ".jpg",
}

type ListFilter struct {
	// Status filters on the displayed (derived) status.
	Status string
	Search string
}

type PaymentService struct {
	repo    PaymentRepository
	blobs   BlobStore
	builder *validation.Builder
	clock   Clock
	loc     *time.Location
	log     *zap.Logger
}

func NewPaymentService(
	repo PaymentRepository,
	blobs BlobStore,
	builder *validation.Builder,
	clock Clock,
	loc *time.Location,
	log *zap.Logger,
) *PaymentService {
	if clock == nil {
		clock = time.Now
	}
	if loc == nil {
		loc = time.UTC
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &PaymentService{repo: repo, blobs: blobs, builder: builder, clock: clock, loc: loc, log: log}
}

// Today is the current calendar date in the configured time zone.
func (s *PaymentService) Today() domain.Date {
	return domain.DateOf(s.clock().In(s.loc))
}

func (s *PaymentService) Validate(raw validation.RawPayment) (domain.Payment, error) {
	return s.builder.ValidateAndNormalize(raw)
}

func (s *PaymentService) Create(ctx context.Context, raw validation.RawPayment) (domain.Payment, error) {
	p, err := s.builder.ValidateAndNormalize(raw)
	if err != nil {
		return domain.Payment{}, err
	}
	return s.CreateValidated(ctx, p)
}

// CreateValidated persists a payment that already went through the builder.
func (s *PaymentService) CreateValidated(ctx context.Context, p domain.Payment) (domain.Payment, error) {
	p.ID = uuid.NewString()
	if p.TransactionID == "" {
		p.TransactionID = uuid.NewString()
	}
	p.Evidence = nil
	p.RecomputeTotalDue()

	if err := s.repo.Create(ctx, &p); err != nil {
		return domain.Payment{}, err
	}
	return p.WithDisplayStatus(s.Today()), nil
}

func (s *PaymentService) Get(ctx context.Context, id string) (domain.Payment, error) {
	if err := checkID(id); err != nil {
		return domain.Payment{}, err
	}
	p, err := s.repo.Get(ctx, id)
	if err != nil {
		return domain.Payment{}, err
	}
	return p.WithDisplayStatus(s.Today()), nil
}

func (s *PaymentService) List(ctx context.Context, f ListFilter) ([]domain.Payment, error) {
	var want domain.PaymentStatus
	if f.Status != "" {
		want = domain.PaymentStatus(strings.ToLower(strings.TrimSpace(f.Status)))
		if !want.Valid() {
			return nil, validation.Errors{{
				Field:   "status",
				Kind:    validation.InvalidStatus,
				Message: fmt.Sprintf("unknown status %q", f.Status),
			}}
		}
	}

	payments, err := s.repo.List(ctx, repository.PaymentsFilter{Search: f.Search})
	if err != nil {
		return nil, err
	}

	today := s.Today()
	out := make([]domain.Payment, 0, len(payments))
	for _, p := range payments {
		p = p.WithDisplayStatus(today)
		if want != "" && p.PayeePaymentStatus != want {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

// Update replaces the payment with the validated raw record. Payments that
// are overdue today are locked.
func (s *PaymentService) Update(ctx context.Context, id string, raw validation.RawPayment) (domain.Payment, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return domain.Payment{}, err
	}
	if current.PayeePaymentStatus == domain.StatusOverdue {
		return domain.Payment{}, fmt.Errorf("payment %s: %w", id, domain.ErrPaymentLocked)
	}

	p, err := s.builder.ValidateAndNormalize(raw)
	if err != nil {
		return domain.Payment{}, err
	}
	p.ID = current.ID
	if p.TransactionID == "" {
		p.TransactionID = current.TransactionID
	}
	p.RecomputeTotalDue()

	if err := s.repo.Update(ctx, &p); err != nil {
		return domain.Payment{}, err
	}
	p.Evidence = current.Evidence
	return p.WithDisplayStatus(s.Today()), nil
}

func (s *PaymentService) Delete(ctx context.Context, id string) error {
	if err := checkID(id); err != nil {
		return err
	}
	keys, err := s.repo.Delete(ctx, id)
	if err != nil {
		return err
	}
	s.removeBlobs(ctx, keys)
	return nil
}

func (s *PaymentService) DeleteAll(ctx context.Context) (int64, error) {
	n, keys, err := s.repo.DeleteAll(ctx)
	if err != nil {
		return 0, err
	}
	s.removeBlobs(ctx, keys)
	return n, nil
}

// UploadEvidence stores data as the payment's evidence and marks the payment
// completed. The blob is removed again if the database write fails.
func (s *PaymentService) UploadEvidence(ctx context.Context, id, filename, contentType string, data []byte) (domain.EvidenceFile, error) {
	if err := checkID(id); err != nil {
		return domain.EvidenceFile{}, err
	}
	if len(data) == 0 {
		return domain.EvidenceFile{}, domain.ErrEmptyFile
	}

	mediaType := evidenceMediaType(contentType, data)
	ext, ok := evidenceTypes[mediaType]
	if !ok {
		return domain.EvidenceFile{}, fmt.Errorf("%w: %s", domain.ErrUnsupportedMedia, mediaType)
	}

	if _, err := s.repo.Get(ctx, id); err != nil {
		return domain.EvidenceFile{}, err
	}

	ev := domain.EvidenceFile{
		ID:          uuid.NewString(),
		PaymentID:   id,
		Filename:    evidenceFilename(filename, ext),
		ContentType: mediaType,
		Size:        int64(len(data)),
	}
	key := fmt.Sprintf("evidence/%s/%s%s", id, ev.ID, ext)

	storedKey, err := s.blobs.Put(ctx, key, data, mediaType)
	if err != nil {
		return domain.EvidenceFile{}, fmt.Errorf("store evidence: %w", err)
	}
	ev.StorageKey = storedKey

	previous, err := s.repo.AttachEvidence(ctx, &ev)
	if err != nil {
		if rmErr := s.blobs.Remove(ctx, storedKey); rmErr != nil {
			s.log.Warn("failed to remove orphaned evidence blob", zap.String("key", storedKey), zap.Error(rmErr))
		}
		return domain.EvidenceFile{}, err
	}

	if previous != "" {
		s.removeBlobs(ctx, []string{previous})
	}

	s.log.Info("evidence attached",
		zap.String("payment_id", id),
		zap.String("content_type", mediaType),
		zap.Int64("size", ev.Size),
	)
	return ev, nil
}

// OpenEvidence returns the evidence metadata and a reader over its content.
// The caller closes the reader.
func (s *PaymentService) OpenEvidence(ctx context.Context, id string) (domain.EvidenceFile, io.ReadCloser, error) {
	if err := checkID(id); err != nil {
		return domain.EvidenceFile{}, nil, err
	}
	ev, err := s.repo.GetEvidence(ctx, id)
	if err != nil {
		return domain.EvidenceFile{}, nil, err
	}
	rc, err := s.blobs.Open(ctx, ev.StorageKey)
	if err != nil {
		return domain.EvidenceFile{}, nil, err
	}
	return ev, rc, nil
}

func (s *PaymentService) removeBlobs(ctx context.Context, keys []string) {
	for _, key := range keys {
		if err := s.blobs.Remove(ctx, key); err != nil {
			s.log.Warn("failed to remove evidence blob", zap.String("key", key), zap.Error(err))
		}
	}
}

func checkID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("payment %q: %w", id, domain.ErrNotFound)
	}
	return nil
}

// evidenceMediaType trusts the declared type unless it is missing or
// generic, in which case the content is sniffed.
func evidenceMediaType(declared string, data []byte) string {
	if mt, _, err := mime.ParseMediaType(declared); err == nil && mt != "" && mt != "application/octet-stream" {
		if mt == "image/jpg" {
			return "image/jpeg"
		}
		return mt
	}
	mt, _, _ := mime.ParseMediaType(http.DetectContentType(data))
	return mt
}

func evidenceFilename(name, ext string) string {
	name = filepath.Base(strings.ReplaceAll(strings.TrimSpace(name), `\`, "/"))
	if name == "" || name == "." || name == "/" {
		return "evidence" + ext
	}
	return name
}
