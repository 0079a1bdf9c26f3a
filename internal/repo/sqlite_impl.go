package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

func (s *SQLiteStore) CreateOrder(ctx context.Context, order Order) (*Order, error) {
	prepared, err := prepareInsert(order, time.Now())
	if err != nil {
		return nil, err
	}
	args, err := insertArgs(prepared, sqliteTime(prepared.CreatedAt), sqliteTime(prepared.UpdatedAt))
	if err != nil {
		return nil, err
	}

	const q = `
INSERT INTO orders (` + orderColumns + `)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
RETURNING ` + orderColumns + `;`

	inserted, err := scanSQLiteOrder(s.db.QueryRowContext(ctx, q, args...))
	if err != nil {
		if dup := sqliteDuplicateKey(err); dup != nil {
			return nil, dup
		}
		return nil, fmt.Errorf("insert order: %w", err)
	}
	s.logger.Debug("order created", "request_id", inserted.RequestID, "order_id", inserted.ID)
	return inserted, nil
}

func (s *SQLiteStore) FindOrderByRequestID(ctx context.Context, requestID string) (*Order, error) {
	q := `SELECT ` + orderColumns + ` FROM orders WHERE request_id = ? LIMIT 1;`
	order, err := scanSQLiteOrder(s.db.QueryRowContext(ctx, q, strings.TrimSpace(requestID)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get order by request id: %w", err)
	}
	return order, nil
}

func (s *SQLiteStore) FindOrderByTransactionHash(ctx context.Context, txHash string) (*Order, error) {
	q := `SELECT ` + orderColumns + ` FROM orders WHERE transaction_hash = ? LIMIT 1;`
	order, err := scanSQLiteOrder(s.db.QueryRowContext(ctx, q, strings.ToLower(strings.TrimSpace(txHash))))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get order by transaction hash: %w", err)
	}
	return order, nil
}

func (s *SQLiteStore) UpdateOrder(ctx context.Context, requestID string, patch OrderPatch) (*Order, error) {
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

	in, inArgs := statusIn(from, questionPlaceholder, 0)
	q := `
UPDATE orders
SET vtpass_status = ?,
    vtpass_response = COALESCE(?, vtpass_response),
    electricity = COALESCE(?, electricity),
    updated_at = ?
WHERE request_id = ? AND vtpass_status IN ` + in + `
RETURNING ` + orderColumns + `;`
	args := append([]any{
		string(patch.VTpassStatus), jsonParam(resp), jsonParam(elec), sqliteTime(time.Now()), requestID,
	}, inArgs...)

	updated, err := scanSQLiteOrder(s.db.QueryRowContext(ctx, q, args...))
	if err == nil {
		return updated, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("update order: %w", err)
	}
	current, findErr := s.FindOrderByRequestID(ctx, requestID)
	if findErr != nil {
		return nil, findErr
	}
	return nil, &TransitionError{RequestID: requestID, From: current.VTpassStatus, To: patch.VTpassStatus}
}

func (s *SQLiteStore) ListOrdersByUser(ctx context.Context, userAddress string, filter ListFilter) (*Page, error) {
	filter.UserAddress = userAddress
	filter.SortBy = ""
	filter.Ascending = false
	return s.ListOrders(ctx, filter)
}

func (s *SQLiteStore) ListOrders(ctx context.Context, filter ListFilter) (*Page, error) {
	f := filter.normalised()
	where, args := whereClause(f, questionPlaceholder, func(t time.Time) any { return sqliteTime(t) })

	var total int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM orders `+where, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count orders: %w", err)
	}

	q := fmt.Sprintf(`SELECT %s FROM orders %s ORDER BY %s LIMIT ? OFFSET ?;`, orderColumns, where, sqliteSortClause(f))
	rows, err := s.db.QueryContext(ctx, q, append(args, f.Limit, f.offset())...)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	page := &Page{Orders: []Order{}, Page: f.Page, Limit: f.Limit, Total: total}
	for rows.Next() {
		order, err := scanSQLiteOrder(rows)
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

func (s *SQLiteStore) BackfillChainInfo(ctx context.Context, params BackfillParams) (int64, error) {
	const match = `created_at < ? AND (chain_id IS NULL OR chain_name IS NULL OR chain_name = '')`
	cutoff := sqliteTime(params.Cutoff)
	if params.DryRun {
		var n int64
		if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM orders WHERE `+match, cutoff).Scan(&n); err != nil {
			return 0, fmt.Errorf("count orders missing chain info: %w", err)
		}
		return n, nil
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE orders SET chain_id = ?, chain_name = ?, updated_at = ? WHERE `+match,
		params.ChainID, params.ChainName, sqliteTime(time.Now()), cutoff)
	if err != nil {
		return 0, fmt.Errorf("backfill chain info: %w", err)
	}
	return res.RowsAffected()
}

var sqliteSortColumns = map[string]string{
	"createdAt":   "created_at",
	"updatedAt":   "updated_at",
	"amountNaira": "CAST(amount_naira AS REAL)",
}

func sqliteSortClause(f ListFilter) string {
	col, ok := sqliteSortColumns[f.SortBy]
	if !ok {
		col = "created_at"
	}
	dir := "DESC"
	if f.Ascending {
		dir = "ASC"
	}
	return col + " " + dir + ", id " + dir
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteOrder(row rowScanner) (*Order, error) {
	var r orderRow
	var createdAt, updatedAt string
	if err := row.Scan(append(r.dest(), &createdAt, &updatedAt)...); err != nil {
		return nil, err
	}
	created, err := parseSQLiteTime(createdAt)
	if err != nil {
		return nil, err
	}
	updated, err := parseSQLiteTime(updatedAt)
	if err != nil {
		return nil, err
	}
	return r.toOrder(created, updated)
}
