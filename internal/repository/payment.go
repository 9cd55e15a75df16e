package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"paytrack/internal/domain"
)

type PaymentsFilter struct {
	// Search matches names and address lines, case-insensitively.
	Search string
}

type PaymentRepository struct {
	db *sql.DB
}

func NewPaymentRepository(db *sql.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

const paymentColumns = `p.id, p.transaction_id, p.payee_first_name, p.payee_last_name, p.payee_payment_status, p.payee_added_date_utc, p.payee_due_date, p.payee_address_line_1, p.payee_address_line_2, p.payee_city, p.payee_country, p.payee_province_or_state, p.payee_postal_code, p.payee_phone_number, p.payee_email, p.currency, p.discount_percent, p.tax_percent, p.due_amount, p.total_due, p.created_at, p.updated_at,
	e.id, e.filename, e.content_type, e.size, e.storage_key, e.uploaded_at`

const paymentFrom = ` FROM payments p LEFT JOIN payment_evidence e ON e.payment_id = p.id`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPayment(row rowScanner) (domain.Payment, error) {
	var (
		p        domain.Payment
		status   string
		dueDate  time.Time
		addr2    sql.NullString
		province sql.NullString

		evID, evName, evType, evKey sql.NullString
		evSize                      sql.NullInt64
		evAt                        sql.NullTime
	)
	if err := row.Scan(
		&p.ID,
		&p.TransactionID,
		&p.PayeeFirstName,
		&p.PayeeLastName,
		&status,
		&p.PayeeAddedDateUTC,
		&dueDate,
		&p.PayeeAddressLine1,
		&addr2,
		&p.PayeeCity,
		&p.PayeeCountry,
		&province,
		&p.PayeePostalCode,
		&p.PayeePhoneNumber,
		&p.PayeeEmail,
		&p.Currency,
		&p.DiscountPercent,
		&p.TaxPercent,
		&p.DueAmount,
		&p.TotalDue,
		&p.CreatedAt,
		&p.UpdatedAt,
		&evID,
		&evName,
		&evType,
		&evSize,
		&evKey,
		&evAt,
	); err != nil {
		return domain.Payment{}, err
	}

	p.PayeePaymentStatus = domain.PaymentStatus(status)
	p.PayeeDueDate = domain.DateOf(dueDate)
	p.PayeeAddedDateUTC = p.PayeeAddedDateUTC.UTC()
	if addr2.Valid {
		p.PayeeAddressLine2 = &addr2.String
	}
	if province.Valid {
		p.PayeeProvinceOrState = &province.String
	}
	if evID.Valid {
		p.Evidence = &domain.EvidenceFile{
			ID:          evID.String,
			PaymentID:   p.ID,
			Filename:    evName.String,
			ContentType: evType.String,
			Size:        evSize.Int64,
			StorageKey:  evKey.String,
			UploadedAt:  evAt.Time,
		}
	}
	return p, nil
}

func (r *PaymentRepository) List(ctx context.Context, f PaymentsFilter) ([]domain.Payment, error) {
	where := []string{"1=1"}
	args := []any{}
	i := 1

	if s := strings.TrimSpace(f.Search); s != "" {
		where = append(where, fmt.Sprintf(`(p.payee_first_name ILIKE $%[1]d OR p.payee_last_name ILIKE $%[1]d OR p.payee_address_line_1 ILIKE $%[1]d OR p.payee_address_line_2 ILIKE $%[1]d)`, i))
		args = append(args, "%"+escapeLike(s)+"%")
		i++
	}

	query := "SELECT " + paymentColumns + paymentFrom + " WHERE " + strings.Join(where, " AND ") + " ORDER BY p.created_at DESC, p.id"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	defer rows.Close()

	out := []domain.Payment{}
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan payment: %w", err)
		}
		out = append(out, p)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *PaymentRepository) Get(ctx context.Context, id string) (domain.Payment, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+paymentColumns+paymentFrom+" WHERE p.id = $1", id)
	p, err := scanPayment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Payment{}, fmt.Errorf("payment %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Payment{}, fmt.Errorf("get payment %s: %w", id, err)
	}
	return p, nil
}

// Create inserts p; ID and TransactionID must already be set. CreatedAt and
// UpdatedAt are filled from the database.
func (r *PaymentRepository) Create(ctx context.Context, p *domain.Payment) error {
	const q = `INSERT INTO payments (
		id, transaction_id, payee_first_name, payee_last_name, payee_payment_status, payee_added_date_utc, payee_due_date,
		payee_address_line_1, payee_address_line_2, payee_city, payee_country, payee_province_or_state, payee_postal_code,
		payee_phone_number, payee_email, currency, discount_percent, tax_percent, due_amount, total_due
	) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)
	RETURNING created_at, updated_at`

	err := r.db.QueryRowContext(ctx, q,
		p.ID,
		p.TransactionID,
		p.PayeeFirstName,
		p.PayeeLastName,
		string(p.PayeePaymentStatus),
		p.PayeeAddedDateUTC,
		p.PayeeDueDate.Time(),
		p.PayeeAddressLine1,
		p.PayeeAddressLine2,
		p.PayeeCity,
		p.PayeeCountry,
		p.PayeeProvinceOrState,
		p.PayeePostalCode,
		p.PayeePhoneNumber,
		p.PayeeEmail,
		p.Currency,
		p.DiscountPercent,
		p.TaxPercent,
		p.DueAmount,
		p.TotalDue,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}

// Update replaces every mutable column of the payment with id p.ID.
func (r *PaymentRepository) Update(ctx context.Context, p *domain.Payment) error {
	const q = `UPDATE payments SET
		transaction_id = $2, payee_first_name = $3, payee_last_name = $4, payee_payment_status = $5,
		payee_added_date_utc = $6, payee_due_date = $7, payee_address_line_1 = $8, payee_address_line_2 = $9,
		payee_city = $10, payee_country = $11, payee_province_or_state = $12, payee_postal_code = $13,
		payee_phone_number = $14, payee_email = $15, currency = $16, discount_percent = $17,
		tax_percent = $18, due_amount = $19, total_due = $20, updated_at = now()
	WHERE id = $1
	RETURNING created_at, updated_at`

	err := r.db.QueryRowContext(ctx, q,
		p.ID,
		p.TransactionID,
		p.PayeeFirstName,
		p.PayeeLastName,
		string(p.PayeePaymentStatus),
		p.PayeeAddedDateUTC,
		p.PayeeDueDate.Time(),
		p.PayeeAddressLine1,
		p.PayeeAddressLine2,
		p.PayeeCity,
		p.PayeeCountry,
		p.PayeeProvinceOrState,
		p.PayeePostalCode,
		p.PayeePhoneNumber,
		p.PayeeEmail,
		p.Currency,
		p.DiscountPercent,
		p.TaxPercent,
		p.DueAmount,
		p.TotalDue,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("payment %s: %w", p.ID, domain.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("update payment %s: %w", p.ID, err)
	}
	return nil
}

// Delete removes the payment and its evidence row in one transaction and
// returns the storage key of the removed evidence, if any.
func (r *PaymentRepository) Delete(ctx context.Context, id string) ([]string, error) {
	var keys []string
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		keys, err = queryKeys(ctx, tx, `SELECT storage_key FROM payment_evidence WHERE payment_id = $1`, id)
		if err != nil {
			return err
		}

		res, err := tx.ExecContext(ctx, `DELETE FROM payments WHERE id = $1`, id)
		if err != nil {
			return fmt.Errorf("delete payment %s: %w", id, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("payment %s: %w", id, domain.ErrNotFound)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return keys, nil
}

// DeleteAll removes every payment and evidence row and returns the number of
// deleted payments and the storage keys of the removed evidence.
func (r *PaymentRepository) DeleteAll(ctx context.Context) (int64, []string, error) {
	var (
		keys []string
		n    int64
	)
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		keys, err = queryKeys(ctx, tx, `SELECT storage_key FROM payment_evidence FOR UPDATE`)
		if err != nil {
			return err
		}

		res, err := tx.ExecContext(ctx, `DELETE FROM payments`)
		if err != nil {
			return fmt.Errorf("delete payments: %w", err)
		}
		n, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, nil, err
	}
	return n, keys, nil
}

// AttachEvidence stores ev as the payment's only evidence and marks the
// payment completed. The storage key of a replaced evidence is returned so
// the caller can remove its blob after commit.
func (r *PaymentRepository) AttachEvidence(ctx context.Context, ev *domain.EvidenceFile) (string, error) {
	var previous string
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		var id string
		err := tx.QueryRowContext(ctx, `SELECT id FROM payments WHERE id = $1 FOR UPDATE`, ev.PaymentID).Scan(&id)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("payment %s: %w", ev.PaymentID, domain.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("lock payment %s: %w", ev.PaymentID, err)
		}

		var old sql.NullString
		err = tx.QueryRowContext(ctx, `SELECT storage_key FROM payment_evidence WHERE payment_id = $1`, ev.PaymentID).Scan(&old)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("load evidence for %s: %w", ev.PaymentID, err)
		}

		const upsert = `INSERT INTO payment_evidence (id, payment_id, filename, content_type, size, storage_key)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (payment_id) DO UPDATE SET
			id = EXCLUDED.id, filename = EXCLUDED.filename, content_type = EXCLUDED.content_type,
			size = EXCLUDED.size, storage_key = EXCLUDED.storage_key, uploaded_at = now()
		RETURNING uploaded_at`
		if err := tx.QueryRowContext(ctx, upsert,
			ev.ID, ev.PaymentID, ev.Filename, ev.ContentType, ev.Size, ev.StorageKey,
		).Scan(&ev.UploadedAt); err != nil {
			return fmt.Errorf("save evidence for %s: %w", ev.PaymentID, err)
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE payments SET payee_payment_status = $2, updated_at = now() WHERE id = $1`,
			ev.PaymentID, string(domain.StatusCompleted),
		); err != nil {
			return fmt.Errorf("complete payment %s: %w", ev.PaymentID, err)
		}

		if old.Valid && old.String != ev.StorageKey {
			previous = old.String
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return previous, nil
}

func (r *PaymentRepository) GetEvidence(ctx context.Context, paymentID string) (domain.EvidenceFile, error) {
	ev := domain.EvidenceFile{PaymentID: paymentID}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, filename, content_type, size, storage_key, uploaded_at FROM payment_evidence WHERE payment_id = $1`,
		paymentID,
	).Scan(&ev.ID, &ev.Filename, &ev.ContentType, &ev.Size, &ev.StorageKey, &ev.UploadedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.EvidenceFile{}, fmt.Errorf("evidence for payment %s: %w", paymentID, domain.ErrNotFound)
	}
	if err != nil {
		return domain.EvidenceFile{}, fmt.Errorf("get evidence for payment %s: %w", paymentID, err)
	}
	return ev, nil
}

func (r *PaymentRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *PaymentRepository) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func queryKeys(ctx context.Context, tx *sql.Tx, query string, args ...any) ([]string, error) {
	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("load evidence keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
