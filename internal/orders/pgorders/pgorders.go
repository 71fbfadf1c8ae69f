// Package pgorders is the Postgres-backed Orders Repository (spec.md
// §4.4), grounded on explorer/indexer/internal/database/db.go's
// raw database/sql + lib/pq + ON CONFLICT idiom.
package pgorders

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"cosmossdk.io/math"
	_ "github.com/lib/pq"

	"github.com/avicenne-studio/bridge-hub/internal/domain"
	"github.com/avicenne-studio/bridge-hub/internal/orders"
	"github.com/avicenne-studio/bridge-hub/pkg/logger"
)

//go:embed schema.sql
var schemaFile embed.FS

// Config mirrors database.Config: pool sizing plus the DSN.
type Config struct {
	URL            string
	MaxConnections int
	MaxIdle        int
	ConnMaxLife    time.Duration
}

// Repository is the Postgres Orders Repository.
type Repository struct {
	db  *sql.DB
	log *logger.Logger
}

func New(cfg Config) (*Repository, error) {
	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("opening orders database: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxConnections)
	db.SetMaxIdleConns(cfg.MaxIdle)
	db.SetConnMaxLifetime(cfg.ConnMaxLife)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("pinging orders database: %w", err)
	}

	log := logger.New("pgorders")
	log.Info("connected to orders database")
	return &Repository{db: db, log: log}, nil
}

// InitSchema applies schema.sql. Safe to call repeatedly; every
// statement is idempotent (CREATE ... IF NOT EXISTS).
func (r *Repository) InitSchema() error {
	schema, err := schemaFile.ReadFile("schema.sql")
	if err != nil {
		return fmt.Errorf("reading orders schema: %w", err)
	}
	if _, err := r.db.Exec(string(schema)); err != nil {
		return fmt.Errorf("applying orders schema: %w", err)
	}
	return nil
}

func (r *Repository) Close() error { return r.db.Close() }

func (r *Repository) Paginate(ctx context.Context, f orders.Filter) (orders.Page, error) {
	var where []string
	var args []interface{}
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if f.Source != nil {
		where = append(where, "source = "+arg(*f.Source))
	}
	if f.Dest != nil {
		where = append(where, "dest = "+arg(*f.Dest))
	}
	if len(f.Status) > 0 {
		placeholders := make([]string, len(f.Status))
		for i, s := range f.Status {
			placeholders[i] = arg(s)
		}
		where = append(where, "status IN ("+strings.Join(placeholders, ",")+")")
	}
	if f.From != nil {
		where = append(where, "\"from\" = "+arg(*f.From))
	}
	if f.To != nil {
		where = append(where, "\"to\" = "+arg(*f.To))
	}
	if f.AmountMin != nil {
		where = append(where, "amount >= "+arg(f.AmountMin.String()))
	}
	if f.AmountMax != nil {
		where = append(where, "amount <= "+arg(f.AmountMax.String()))
	}
	if f.CreatedAfter != nil {
		where = append(where, "created_at > "+arg(*f.CreatedAfter))
	}
	if f.CreatedBefore != nil {
		where = append(where, "created_at < "+arg(*f.CreatedBefore))
	}
	if f.ID != nil {
		where = append(where, "id = "+arg(*f.ID))
	}

	whereClause := ""
	if len(where) > 0 {
		whereClause = "WHERE " + strings.Join(where, " AND ")
	}

	var total int
	countQuery := "SELECT COUNT(*) FROM orders " + whereClause
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return orders.Page{}, fmt.Errorf("counting orders: %w", err)
	}

	order := "DESC"
	if f.Order == "asc" {
		order = "ASC"
	}
	page, limit := f.Page, f.Limit
	if page <= 0 {
		page = 1
	}
	if limit <= 0 {
		limit = 20
	}
	offset := (page - 1) * limit

	listArgs := append(append([]interface{}{}, args...), limit, offset)
	query := fmt.Sprintf(`%s %s ORDER BY created_at %s LIMIT $%d OFFSET $%d`,
		selectColumns, whereClause+" ", order, len(args)+1, len(args)+2)

	rows, err := r.db.QueryContext(ctx, query, listArgs...)
	if err != nil {
		return orders.Page{}, fmt.Errorf("listing orders: %w", err)
	}
	defer rows.Close()

	var result []*domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return orders.Page{}, err
		}
		result = append(result, o)
	}
	return orders.Page{Orders: result, Total: total}, rows.Err()
}

const selectColumns = `
	SELECT id, source, dest, "from", "to", amount, relayer_fee, origin_trx_hash,
		destination_trx_hash, source_nonce, source_payload, failure_reason_public,
		oracle_accept_to_relay, status, created_at, updated_at
	FROM orders
`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanOrder(row rowScanner) (*domain.Order, error) {
	var o domain.Order
	var amount, relayerFee string
	var destTrxHash, failureReason sql.NullString
	if err := row.Scan(
		&o.ID, &o.Source, &o.Dest, &o.From, &o.To, &amount, &relayerFee, &o.OriginTrxHash,
		&destTrxHash, &o.SourceNonce, &o.SourcePayload, &failureReason,
		&o.OracleAcceptToRelay, &o.Status, &o.CreatedAt, &o.UpdatedAt,
	); err != nil {
		return nil, fmt.Errorf("scanning order: %w", err)
	}
	o.DestinationTrxHash = destTrxHash.String
	o.FailureReasonPublic = failureReason.String

	amt, ok := math.NewIntFromString(amount)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q for order %s", amount, o.ID)
	}
	o.Amount = amt
	fee, ok := math.NewIntFromString(relayerFee)
	if !ok {
		return nil, fmt.Errorf("invalid relayer_fee %q for order %s", relayerFee, o.ID)
	}
	o.RelayerFee = fee
	return &o, nil
}

func (r *Repository) FindByID(ctx context.Context, id string) (*domain.Order, error) {
	row := r.db.QueryRowContext(ctx, selectColumns+" WHERE id = $1", id)
	o, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return o, nil
}

func (r *Repository) FindByOriginTrxHash(ctx context.Context, hash string) (*domain.Order, error) {
	row := r.db.QueryRowContext(ctx, selectColumns+" WHERE origin_trx_hash = $1", hash)
	o, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return o, nil
}

func (r *Repository) Create(ctx context.Context, o *domain.Order) (*domain.Order, error) {
	if err := o.Validate(); err != nil {
		return nil, err
	}
	id := o.ID
	if id == "" {
		id = domain.NewID()
	}
	nonce := o.SourceNonce
	if nonce == "" {
		nonce = domain.NewID()
	}
	payload := o.SourcePayload
	if payload == "" {
		payload = nonce
	}

	row := r.db.QueryRowContext(ctx, `
		INSERT INTO orders (id, source, dest, "from", "to", amount, relayer_fee, origin_trx_hash,
			destination_trx_hash, source_nonce, source_payload, failure_reason_public,
			oracle_accept_to_relay, status, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,NOW(),NOW())
		RETURNING id, source, dest, "from", "to", amount, relayer_fee, origin_trx_hash,
			destination_trx_hash, source_nonce, source_payload, failure_reason_public,
			oracle_accept_to_relay, status, created_at, updated_at
	`, id, o.Source, o.Dest, o.From, o.To, o.Amount.String(), o.RelayerFee.String(), o.OriginTrxHash,
		nullable(o.DestinationTrxHash), nonce, payload, nullable(o.FailureReasonPublic),
		o.OracleAcceptToRelay, o.Status)

	created, err := scanOrder(row)
	if err != nil {
		return nil, fmt.Errorf("inserting order: %w", err)
	}
	return created, nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func (r *Repository) Update(ctx context.Context, id string, p orders.Partial) (*domain.Order, error) {
	var sets []string
	var args []interface{}
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if p.Status != nil {
		sets = append(sets, "status = "+arg(*p.Status))
	}
	if p.DestinationTrxHash != nil {
		sets = append(sets, "destination_trx_hash = "+arg(*p.DestinationTrxHash))
	}
	if p.FailureReasonPublic != nil {
		sets = append(sets, "failure_reason_public = "+arg(*p.FailureReasonPublic))
	}
	if p.OracleAcceptToRelay != nil {
		sets = append(sets, "oracle_accept_to_relay = "+arg(*p.OracleAcceptToRelay))
	}
	if len(sets) == 0 {
		return r.FindByID(ctx, id)
	}
	sets = append(sets, "updated_at = NOW()")
	args = append(args, id)

	query := fmt.Sprintf(`
		UPDATE orders SET %s WHERE id = $%d
		RETURNING id, source, dest, "from", "to", amount, relayer_fee, origin_trx_hash,
			destination_trx_hash, source_nonce, source_payload, failure_reason_public,
			oracle_accept_to_relay, status, created_at, updated_at
	`, strings.Join(sets, ", "), len(args))

	row := r.db.QueryRowContext(ctx, query, args...)
	o, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("updating order: %w", err)
	}
	return o, nil
}

func (r *Repository) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM orders WHERE id = $1", id)
	return err
}

func (r *Repository) FindActiveIDs(ctx context.Context, limit int) ([]string, error) {
	return r.findIDsByStatus(ctx, []domain.OrderStatus{domain.StatusPending, domain.StatusInProgress}, limit)
}

func (r *Repository) FindRelayableIDs(ctx context.Context, limit int) ([]string, error) {
	return r.findIDsByStatus(ctx, []domain.OrderStatus{domain.StatusReadyForRelay}, limit)
}

func (r *Repository) findIDsByStatus(ctx context.Context, statuses []domain.OrderStatus, limit int) ([]string, error) {
	placeholders := make([]string, len(statuses))
	args := make([]interface{}, len(statuses))
	for i, s := range statuses {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = s
	}
	query := fmt.Sprintf(`SELECT id FROM orders WHERE status IN (%s) ORDER BY id`, strings.Join(placeholders, ","))
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("finding order ids by status: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *Repository) AddSignatures(ctx context.Context, orderID string, sigs []string) (orders.SignatureCounts, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return orders.SignatureCounts{}, fmt.Errorf("beginning signature tx: %w", err)
	}
	defer tx.Rollback()

	added := 0
	seen := make(map[string]struct{}, len(sigs))
	for _, sig := range sigs {
		if _, dup := seen[sig]; dup {
			continue
		}
		seen[sig] = struct{}{}

		res, err := tx.ExecContext(ctx, `
			INSERT INTO order_signatures (order_id, signature) VALUES ($1, $2)
			ON CONFLICT (order_id, signature) DO NOTHING
		`, orderID, sig)
		if err != nil {
			return orders.SignatureCounts{}, fmt.Errorf("inserting signature: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return orders.SignatureCounts{}, err
		}
		if n > 0 {
			added++
		}
	}

	var total int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM order_signatures WHERE order_id = $1`, orderID).Scan(&total); err != nil {
		return orders.SignatureCounts{}, fmt.Errorf("counting signatures: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return orders.SignatureCounts{}, fmt.Errorf("committing signature tx: %w", err)
	}
	return orders.SignatureCounts{Added: added, Total: total}, nil
}

func (r *Repository) FindByIDsWithSignatures(ctx context.Context, ids []string) ([]domain.OrderWithSignatures, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(ids))
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}
	query := selectColumns + fmt.Sprintf(" WHERE id IN (%s)", strings.Join(placeholders, ","))
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("finding orders by ids: %w", err)
	}
	defer rows.Close()

	out := make([]domain.OrderWithSignatures, 0, len(ids))
	byID := make(map[string]*domain.Order, len(ids))
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		byID[o.ID] = o
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sigRows, err := r.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT order_id, signature FROM order_signatures WHERE order_id IN (%s) ORDER BY order_id, signature
	`, strings.Join(placeholders, ",")), args...)
	if err != nil {
		return nil, fmt.Errorf("finding signatures by order ids: %w", err)
	}
	defer sigRows.Close()

	sigsByOrder := make(map[string][]string, len(ids))
	for sigRows.Next() {
		var orderID, sig string
		if err := sigRows.Scan(&orderID, &sig); err != nil {
			return nil, err
		}
		sigsByOrder[orderID] = append(sigsByOrder[orderID], sig)
	}
	if err := sigRows.Err(); err != nil {
		return nil, err
	}

	for _, id := range ids {
		o, ok := byID[id]
		if !ok {
			continue
		}
		out = append(out, domain.OrderWithSignatures{Order: o, Signatures: sigsByOrder[id]})
	}
	return out, nil
}

var _ orders.Repository = (*Repository)(nil)
