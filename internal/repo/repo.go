package repo

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const pgUniqueViolation = "23505"

// PostgresStore provides typed access to the orders table in Postgres.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
	schema string
}

var _ Store = (*PostgresStore)(nil)

// NewPostgres opens a new connection pool to the database with the desired search_path.
func NewPostgres(ctx context.Context, databaseURL, schema string, logger *slog.Logger) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}

	if cfg.ConnConfig.RuntimeParams == nil {
		cfg.ConnConfig.RuntimeParams = map[string]string{}
	}
	if schema != "" {
		cfg.ConnConfig.RuntimeParams["search_path"] = schema
	}
	cfg.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	s := &PostgresStore{
		pool:   pool,
		logger: logger.With("component", "repo_postgres"),
		schema: schema,
	}

	if err := s.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return s, nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Ping ensures the database is reachable.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// RunMigrations applies schema migrations on the connected database.
func (s *PostgresStore) RunMigrations(ctx context.Context, filesystem fs.FS) error {
	return ApplyMigrations(ctx, s.pool, filesystem)
}

// CreateOrder inserts a new order. A collision on request_id or
// transaction_hash returns a *DuplicateKeyError.
func (s *PostgresStore) CreateOrder(ctx context.Context, order Order) (*Order, error) {
	prepared, err := prepareInsert(order, time.Now())
	if err != nil {
		return nil, err
	}
	args, err := insertArgs(prepared, prepared.CreatedAt, prepared.UpdatedAt)
	if err != nil {
		return nil, err
	}

	const q = `
INSERT INTO orders (id, request_id, user_address, transaction_hash, service_type, service_id,
    variation_code, customer_identifier, phone, amount_naira, crypto_used, crypto_symbol,
    chain_id, chain_name, on_chain_status, vtpass_status, vtpass_response, electricity,
    created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10::numeric, $11::numeric, $12,
    $13, $14, $15, $16, $17::jsonb, $18::jsonb, $19, $20)
RETURNING ` + pgOrderColumns + `;`

	inserted, err := scanPostgresOrder(s.pool.QueryRow(ctx, q, args...))
	if err != nil {
		if dup := pgDuplicateKey(err); dup != nil {
			return nil, dup
		}
		return nil, fmt.Errorf("insert order: %w", err)
	}
	s.logger.Debug("order created", "request_id", inserted.RequestID, "order_id", inserted.ID)
	return inserted, nil
}

// FindOrderByRequestID retrieves an order by its idempotency key.
func (s *PostgresStore) FindOrderByRequestID(ctx context.Context, requestID string) (*Order, error) {
	q := `SELECT ` + pgOrderColumns + ` FROM orders WHERE request_id = $1 LIMIT 1;`
	order, err := scanPostgresOrder(s.pool.QueryRow(ctx, q, strings.TrimSpace(requestID)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get order by request id: %w", err)
	}
	return order, nil
}

// FindOrderByTransactionHash retrieves an order by its on-chain payment reference.
func (s *PostgresStore) FindOrderByTransactionHash(ctx context.Context, txHash string) (*Order, error) {
	q := `SELECT ` + pgOrderColumns + ` FROM orders WHERE transaction_hash = $1 LIMIT 1;`
	order, err := scanPostgresOrder(s.pool.QueryRow(ctx, q, strings.ToLower(strings.TrimSpace(txHash))))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get order by transaction hash: %w", err)
	}
	return order, nil
}

// UpdateOrder applies a reconciliation patch. The status guard is part of the
// UPDATE so concurrent writers cannot move an order backwards.
func (s *PostgresStore) UpdateOrder(ctx context.Context, requestID string, patch OrderPatch) (*Order, error) {
	from := allowedFrom(patch.VTpassStatus)
	if len(from) == 0 {
		return nil, &TransitionError{RequestID: requestID, To: patch.VTpassStatus}
	}
	resp, err := toJSON(patch.VTpassResponse)
	if err != nil {
		return nil, err
	}
	elec, err := electricityJSON(patch.Electricity)
	if err != nil {
		return nil, err
	}

	q, args := pgUpdateOrderQuery(requestID, patch.VTpassStatus, from, resp, elec)
	updated, err := scanPostgresOrder(s.pool.QueryRow(ctx, q, args...))
	if err == nil {
		return updated, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("update order: %w", err)
	}
	current, findErr := s.FindOrderByRequestID(ctx, requestID)
	if findErr != nil {
		return nil, findErr
	}
	return nil, &TransitionError{RequestID: requestID, From: current.VTpassStatus, To: patch.VTpassStatus}
}

// pgUpdateOrderQuery binds the four SET arguments first and numbers the
// allowed-from statuses after them.
func pgUpdateOrderQuery(requestID string, to VTpassStatus, from []VTpassStatus, resp, elec []byte) (string, []any) {
	in, inArgs := statusIn(from, dollarPlaceholder, 4)
	q := `
UPDATE orders
SET vtpass_status = $2,
    vtpass_response = COALESCE($3::jsonb, vtpass_response),
    electricity = COALESCE($4::jsonb, electricity),
    updated_at = NOW()
WHERE request_id = $1 AND vtpass_status IN ` + in + `
RETURNING ` + pgOrderColumns + `;`
	return q, append([]any{requestID, string(to), jsonParam(resp), jsonParam(elec)}, inArgs...)
}

// ListOrdersByUser returns a page of the user's orders, newest first.
func (s *PostgresStore) ListOrdersByUser(ctx context.Context, userAddress string, filter ListFilter) (*Page, error) {
	filter.UserAddress = userAddress
	filter.SortBy = ""
	filter.Ascending = false
	return s.ListOrders(ctx, filter)
}

// ListOrders returns a filtered, paged listing.
func (s *PostgresStore) ListOrders(ctx context.Context, filter ListFilter) (*Page, error) {
	f := filter.normalised()
	where, args := whereClause(f, dollarPlaceholder, func(t time.Time) any { return t })

	var total int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM orders `+where, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count orders: %w", err)
	}

	q := fmt.Sprintf(`SELECT %s FROM orders %s ORDER BY %s LIMIT %s OFFSET %s;`,
		pgOrderColumns, where, pgSortClause(f),
		dollarPlaceholder(len(args)+1), dollarPlaceholder(len(args)+2))
	rows, err := s.pool.Query(ctx, q, append(args, f.Limit, f.offset())...)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	page := &Page{Orders: []Order{}, Page: f.Page, Limit: f.Limit, Total: total}
	for rows.Next() {
		order, err := scanPostgresOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		page.Orders = append(page.Orders, *order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate orders: %w", err)
	}
	return page, nil
}

// BackfillChainInfo stamps chain info onto legacy orders created before the
// cutoff that are missing it. Running it twice is a no-op.
func (s *PostgresStore) BackfillChainInfo(ctx context.Context, params BackfillParams) (int64, error) {
	const match = `created_at < $1 AND (chain_id IS NULL OR chain_name IS NULL OR chain_name = '')`
	if params.DryRun {
		var n int64
		if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM orders WHERE `+match, params.Cutoff.UTC()).Scan(&n); err != nil {
			return 0, fmt.Errorf("count orders missing chain info: %w", err)
		}
		return n, nil
	}
	ct, err := s.pool.Exec(ctx,
		`UPDATE orders SET chain_id = $2, chain_name = $3, updated_at = NOW() WHERE `+match,
		params.Cutoff.UTC(), params.ChainID, params.ChainName)
	if err != nil {
		return 0, fmt.Errorf("backfill chain info: %w", err)
	}
	return ct.RowsAffected(), nil
}

const pgOrderColumns = `id::text, request_id, user_address, transaction_hash, service_type, service_id,
    variation_code, customer_identifier, phone, amount_naira::text, crypto_used::text, crypto_symbol,
    chain_id, chain_name, on_chain_status, vtpass_status, vtpass_response::text, electricity::text,
    created_at, updated_at`

var pgSortColumns = map[string]string{
	"createdAt":   "created_at",
	"updatedAt":   "updated_at",
	"amountNaira": "amount_naira",
}

func pgSortClause(f ListFilter) string {
	col, ok := pgSortColumns[f.SortBy]
	if !ok {
		col = "created_at"
	}
	dir := "DESC"
	if f.Ascending {
		dir = "ASC"
	}
	return col + " " + dir + ", id " + dir
}

func scanPostgresOrder(row pgx.Row) (*Order, error) {
	var r orderRow
	var createdAt, updatedAt time.Time
	if err := row.Scan(append(r.dest(), &createdAt, &updatedAt)...); err != nil {
		return nil, err
	}
	return r.toOrder(createdAt, updatedAt)
}

func pgDuplicateKey(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != pgUniqueViolation {
		return nil
	}
	key := pgErr.ConstraintName
	switch {
	case strings.Contains(key, "request_id"):
		key = KeyRequestID
	case strings.Contains(key, "transaction_hash"):
		key = KeyTransactionHash
	}
	return &DuplicateKeyError{Key: key}
}
