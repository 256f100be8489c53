package billing

import (
	"context"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/fakturo/fakturo/internal/platform/db"
	"github.com/fakturo/fakturo/internal/shared"
)

// Repository provides PostgreSQL backed persistence for billing.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const eventColumns = `id, event_id, supplier_id, supplier_name, service_code,
	payment_responsible, healthcare_commission, acknowledgement_id,
	acknowledged_by, acknowledged_time, start_time, end_time,
	pending, credit, credited, invoice_id, created_at`

// InTx runs fn inside one repeatable-read transaction. A lost concurrent
// race surfaces as a consistency fault after the rollback.
func (r *Repository) InTx(ctx context.Context, fn func(TxPort) error) error {
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(&txRepo{tx: tx})
	})
	if db.IsSerializationFailure(err) {
		return shared.ConsistencyErrorf("concurrent update detected, transaction rolled back")
	}
	return err
}

// FindPendingEvents returns pending events; empty filters match everything.
func (r *Repository) FindPendingEvents(ctx context.Context, supplierID, paymentResponsible string) ([]BusinessEvent, error) {
	query := `SELECT ` + eventColumns + ` FROM business_events WHERE pending`
	args := []any{}
	if supplierID != "" {
		args = append(args, supplierID)
		query += ` AND supplier_id = $` + strconv.Itoa(len(args))
	}
	if paymentResponsible != "" {
		args = append(args, paymentResponsible)
		query += ` AND payment_responsible = $` + strconv.Itoa(len(args))
	}
	query += ` ORDER BY created_at, id`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	events, err := scanEvents(rows)
	if err != nil {
		return nil, err
	}
	return loadItems(ctx, r.pool, events)
}

// FindInvoices returns invoice headers matching the query.
func (r *Repository) FindInvoices(ctx context.Context, q InvoiceQuery) ([]InvoiceHeader, error) {
	query := `
		SELECT i.id, i.supplier_id, i.payment_responsible, i.created_by, i.created_at,
			COUNT(DISTINCT e.id) AS event_count,
			COALESCE(SUM(CASE WHEN e.credit THEN -1 ELSE 1 END * it.qty * it.price), 0) AS total_amount
		FROM invoice_data i
		LEFT JOIN business_events e ON e.invoice_id = i.id
		LEFT JOIN business_event_items it ON it.event_row_id = e.id
		WHERE i.created_at BETWEEN $1 AND $2`
	args := []any{q.From, q.To}
	if q.SupplierID != "" {
		args = append(args, q.SupplierID)
		query += ` AND i.supplier_id = $` + strconv.Itoa(len(args))
	}
	if q.PaymentResponsible != "" {
		args = append(args, q.PaymentResponsible)
		query += ` AND i.payment_responsible = $` + strconv.Itoa(len(args))
	}
	query += ` GROUP BY i.id ORDER BY i.created_at DESC, i.id DESC`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var headers []InvoiceHeader
	for rows.Next() {
		var h InvoiceHeader
		var total pgtype.Numeric
		if err := rows.Scan(&h.ID, &h.SupplierID, &h.PaymentResponsible, &h.CreatedBy,
			&h.CreatedAt, &h.EventCount, &total); err != nil {
			return nil, err
		}
		h.ReferenceID = FormatReferenceID(h.SupplierID, h.ID)
		h.TotalAmount = numericToDecimal(total)
		headers = append(headers, h)
	}
	return headers, rows.Err()
}

// GetInvoiceByID loads one invoice batch with its events, or nil when the
// id does not exist.
func (r *Repository) GetInvoiceByID(ctx context.Context, id int64) (*InvoiceData, error) {
	var inv InvoiceData
	err := r.pool.QueryRow(ctx,
		`SELECT id, supplier_id, payment_responsible, created_by, created_at
		 FROM invoice_data WHERE id = $1`, id,
	).Scan(&inv.ID, &inv.SupplierID, &inv.PaymentResponsible, &inv.CreatedBy, &inv.CreatedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT `+eventColumns+` FROM business_events WHERE invoice_id = $1 ORDER BY id`, id)
	if err != nil {
		return nil, err
	}
	events, err := scanEvents(rows)
	if err != nil {
		return nil, err
	}
	if inv.Events, err = loadItems(ctx, r.pool, events); err != nil {
		return nil, err
	}
	return &inv, nil
}

// --- Transaction Support ---

type txRepo struct {
	tx pgx.Tx
}

// LockEventID serializes registrations per event id with a transaction
// scoped advisory lock.
func (t *txRepo) LockEventID(ctx context.Context, eventID string) error {
	return db.AdvisoryLock(ctx, t.tx, "billing:event:"+eventID)
}

func (t *txRepo) FindActive(ctx context.Context, eventID string) ([]BusinessEvent, error) {
	rows, err := t.tx.Query(ctx,
		`SELECT `+eventColumns+` FROM business_events
		 WHERE event_id = $1 AND pending AND NOT credit`, eventID)
	if err != nil {
		return nil, err
	}
	events, err := scanEvents(rows)
	if err != nil {
		return nil, err
	}
	return loadItems(ctx, t.tx, events)
}

func (t *txRepo) FindCreditCandidates(ctx context.Context, eventID string) ([]BusinessEvent, error) {
	rows, err := t.tx.Query(ctx,
		`SELECT `+eventColumns+` FROM business_events
		 WHERE event_id = $1 AND NOT pending AND NOT credited AND NOT credit`, eventID)
	if err != nil {
		return nil, err
	}
	events, err := scanEvents(rows)
	if err != nil {
		return nil, err
	}
	return loadItems(ctx, t.tx, events)
}

func (t *txRepo) DeleteEvent(ctx context.Context, id int64) error {
	// items go with it via ON DELETE CASCADE
	_, err := t.tx.Exec(ctx, `DELETE FROM business_events WHERE id = $1`, id)
	return err
}

func (t *txRepo) InsertEvent(ctx context.Context, e *BusinessEvent) error {
	var invoiceID pgtype.Int8
	if e.InvoiceID > 0 {
		invoiceID = pgtype.Int8{Int64: e.InvoiceID, Valid: true}
	}
	err := t.tx.QueryRow(ctx, `
		INSERT INTO business_events (
			event_id, supplier_id, supplier_name, service_code,
			payment_responsible, healthcare_commission, acknowledgement_id,
			acknowledged_by, acknowledged_time, start_time, end_time,
			pending, credit, credited, invoice_id, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, NOW())
		RETURNING id, created_at`,
		e.EventID, e.SupplierID, e.SupplierName, e.ServiceCode,
		e.PaymentResponsible, e.HealthCareCommission, e.AcknowledgementID,
		e.AcknowledgedBy, e.AcknowledgedTime, e.StartTime, e.EndTime,
		e.Pending, e.Credit, e.Credited, invoiceID,
	).Scan(&e.ID, &e.CreatedAt)
	if err != nil {
		return err
	}

	for i := range e.Items {
		item := &e.Items[i]
		err := t.tx.QueryRow(ctx, `
			INSERT INTO business_event_items (event_row_id, item_id, description, qty, price)
			VALUES ($1, $2, $3, $4::numeric, $5::numeric)
			RETURNING id`,
			e.ID, item.ItemID, item.Description, item.Qty.String(), item.Price.String(),
		).Scan(&item.ID)
		if err != nil {
			return err
		}
	}
	return nil
}

func (t *txRepo) MarkCredited(ctx context.Context, id int64) error {
	tag, err := t.tx.Exec(ctx, `UPDATE business_events SET credited = TRUE WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ConsistencyErrorf("credit candidate row %d vanished mid-transaction", id)
	}
	return nil
}

// FindEventsByRefs resolves internal ids or acknowledgement ids, locking
// the rows so a concurrent assembly cannot claim them. An acknowledgement id
// only resolves pending rows: a credit cycle copies the acknowledgement id
// onto the superseded row and the credit clone, and the caller can only mean
// the one version that is still assemblable.
func (t *txRepo) FindEventsByRefs(ctx context.Context, refs []string) ([]BusinessEvent, error) {
	ids := make([]int64, 0, len(refs))
	ackIDs := make([]string, 0, len(refs))
	for _, ref := range refs {
		if n, err := strconv.ParseInt(ref, 10, 64); err == nil {
			ids = append(ids, n)
		} else {
			ackIDs = append(ackIDs, ref)
		}
	}

	rows, err := t.tx.Query(ctx,
		`SELECT `+eventColumns+` FROM business_events
		 WHERE id = ANY($1) OR (acknowledgement_id = ANY($2) AND pending)
		 ORDER BY id
		 FOR UPDATE`, ids, ackIDs)
	if err != nil {
		return nil, err
	}
	events, err := scanEvents(rows)
	if err != nil {
		return nil, err
	}
	return loadItems(ctx, t.tx, events)
}

func (t *txRepo) InsertInvoice(ctx context.Context, inv *InvoiceData) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `
		INSERT INTO invoice_data (supplier_id, payment_responsible, created_by, created_at)
		VALUES ($1, $2, $3, NOW())
		RETURNING id`,
		inv.SupplierID, inv.PaymentResponsible, inv.CreatedBy,
	).Scan(&id)
	return id, err
}

func (t *txRepo) AttachEvents(ctx context.Context, invoiceID int64, eventRowIDs []int64) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE business_events SET pending = FALSE, invoice_id = $1
		WHERE id = ANY($2) AND pending`, invoiceID, eventRowIDs)
	if err != nil {
		return err
	}
	if int(tag.RowsAffected()) != len(eventRowIDs) {
		return shared.ConsistencyErrorf("attached %d of %d events", tag.RowsAffected(), len(eventRowIDs))
	}
	return nil
}

// --- Helpers ---

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func scanEvents(rows pgx.Rows) ([]BusinessEvent, error) {
	defer rows.Close()
	var events []BusinessEvent
	for rows.Next() {
		var e BusinessEvent
		var invoiceID pgtype.Int8
		if err := rows.Scan(&e.ID, &e.EventID, &e.SupplierID, &e.SupplierName,
			&e.ServiceCode, &e.PaymentResponsible, &e.HealthCareCommission,
			&e.AcknowledgementID, &e.AcknowledgedBy, &e.AcknowledgedTime,
			&e.StartTime, &e.EndTime, &e.Pending, &e.Credit, &e.Credited,
			&invoiceID, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.InvoiceID = invoiceID.Int64
		events = append(events, e)
	}
	return events, rows.Err()
}

func loadItems(ctx context.Context, q querier, events []BusinessEvent) ([]BusinessEvent, error) {
	if len(events) == 0 {
		return events, nil
	}
	rowIDs := make([]int64, len(events))
	index := make(map[int64]int, len(events))
	for i := range events {
		rowIDs[i] = events[i].ID
		index[events[i].ID] = i
	}

	rows, err := q.Query(ctx, `
		SELECT id, event_row_id, item_id, description, qty, price
		FROM business_event_items
		WHERE event_row_id = ANY($1)
		ORDER BY id`, rowIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var item Item
		var eventRowID int64
		var qty, price pgtype.Numeric
		if err := rows.Scan(&item.ID, &eventRowID, &item.ItemID, &item.Description, &qty, &price); err != nil {
			return nil, err
		}
		item.Qty = numericToDecimal(qty)
		item.Price = numericToDecimal(price)
		i := index[eventRowID]
		events[i].Items = append(events[i].Items, item)
	}
	return events, rows.Err()
}

func numericToDecimal(n pgtype.Numeric) decimal.Decimal {
	if !n.Valid || n.Int == nil {
		return decimal.Decimal{}
	}
	return decimal.NewFromBigInt(n.Int, n.Exp)
}
