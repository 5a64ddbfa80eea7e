package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Trade is one persisted trade row. Times are unix milliseconds in the
// database; the struct carries time.Time for callers.
type Trade struct {
	ID          string
	Platform    string
	Asset       string
	Direction   string // "BUY" or "SELL"
	EntryPrice  float64
	Quantity    float64
	Strategy    string
	Status      string // "OPEN" or "CLOSED"
	StopLoss    float64
	TakeProfit  float64
	PeakProfit  float64
	Confidence  float64
	Ticket      string
	OpenedAt    time.Time
	ClosedAt    *time.Time
	ExitPrice   *float64
	ProfitLoss  *float64
	CloseReason *string
}

// User is an operator account for the API.
type User struct {
	ID           int64
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

const tradeColumns = `id, platform, asset, direction, entry_price, quantity,
	strategy, status, stop_loss, take_profit, peak_profit, confidence, ticket,
	opened_at, closed_at, exit_price, profit_loss, close_reason`

// CreateTrade inserts a new OPEN trade row.
func (d *Database) CreateTrade(t *Trade) error {
	_, err := d.DB.Exec(`INSERT INTO trades
		(id, platform, asset, direction, entry_price, quantity, strategy,
		 status, stop_loss, take_profit, peak_profit, confidence, ticket, opened_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Platform, t.Asset, t.Direction, t.EntryPrice, t.Quantity,
		t.Strategy, t.Status, t.StopLoss, t.TakeProfit, t.PeakProfit,
		t.Confidence, t.Ticket, t.OpenedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("insert trade %s: %w", t.ID, err)
	}
	return nil
}

// CloseTrade marks an OPEN trade closed. Returns false when the row was
// already closed (or missing), so concurrent closers never clobber a
// finished trade.
func (d *Database) CloseTrade(id string, exitPrice, profitLoss float64, reason string, closedAt time.Time) (bool, error) {
	res, err := d.DB.Exec(`UPDATE trades
		SET status = 'CLOSED', exit_price = ?, profit_loss = ?, close_reason = ?, closed_at = ?
		WHERE id = ? AND status = 'OPEN'`,
		exitPrice, profitLoss, reason, closedAt.UnixMilli(), id)
	if err != nil {
		return false, fmt.Errorf("close trade %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// UpdateTradeProtection rewrites stop loss, take profit and the peak
// profit high-water mark for a trade that is still open. The strategy
// and entry columns are never touched here.
func (d *Database) UpdateTradeProtection(id string, stopLoss, takeProfit, peakProfit float64) (bool, error) {
	res, err := d.DB.Exec(`UPDATE trades
		SET stop_loss = ?, take_profit = ?, peak_profit = ?
		WHERE id = ? AND status = 'OPEN'`,
		stopLoss, takeProfit, peakProfit, id)
	if err != nil {
		return false, fmt.Errorf("update trade protection %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// GetTrade fetches one trade by id.
func (d *Database) GetTrade(id string) (*Trade, error) {
	row := d.DB.QueryRow(`SELECT `+tradeColumns+` FROM trades WHERE id = ?`, id)
	t, err := scanTrade(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return t, err
}

// ListOpenTrades returns all OPEN trades, oldest first.
func (d *Database) ListOpenTrades() ([]*Trade, error) {
	return d.queryTrades(`SELECT ` + tradeColumns + ` FROM trades
		WHERE status = 'OPEN' ORDER BY opened_at ASC`)
}

// ListOpenTradesByPlatform returns OPEN trades for one platform.
func (d *Database) ListOpenTradesByPlatform(platform string) ([]*Trade, error) {
	return d.queryTrades(`SELECT `+tradeColumns+` FROM trades
		WHERE status = 'OPEN' AND platform = ? ORDER BY opened_at ASC`, platform)
}

// ListTrades returns the most recent trades, newest first.
func (d *Database) ListTrades(limit int) ([]*Trade, error) {
	if limit <= 0 {
		limit = 100
	}
	return d.queryTrades(`SELECT `+tradeColumns+` FROM trades
		ORDER BY opened_at DESC LIMIT ?`, limit)
}

// HasOpenTrade reports whether an OPEN trade exists for platform+asset.
func (d *Database) HasOpenTrade(platform, asset string) (bool, error) {
	var n int
	err := d.DB.QueryRow(`SELECT COUNT(1) FROM trades
		WHERE status = 'OPEN' AND platform = ? AND asset = ?`,
		platform, asset).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("count open trades: %w", err)
	}
	return n > 0, nil
}

// LastTradeTimes returns, per platform+asset key, the most recent
// opened_at across all trades. Used to seed cooldown state at startup.
func (d *Database) LastTradeTimes() (map[string]time.Time, error) {
	rows, err := d.DB.Query(`SELECT platform, asset, MAX(opened_at)
		FROM trades GROUP BY platform, asset`)
	if err != nil {
		return nil, fmt.Errorf("last trade times: %w", err)
	}
	defer rows.Close()

	out := make(map[string]time.Time)
	for rows.Next() {
		var platform, asset string
		var ms int64
		if err := rows.Scan(&platform, &asset, &ms); err != nil {
			return nil, err
		}
		out[platform+"|"+asset] = time.UnixMilli(ms)
	}
	return out, rows.Err()
}

// CreateUser stores an operator account.
func (d *Database) CreateUser(email, passwordHash string) (int64, error) {
	res, err := d.DB.Exec(`INSERT INTO users (email, password_hash, created_at)
		VALUES (?, ?, ?)`, email, passwordHash, time.Now().UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("insert user: %w", err)
	}
	return res.LastInsertId()
}

// GetUserByEmail looks up an operator account.
func (d *Database) GetUserByEmail(email string) (*User, error) {
	var u User
	var createdMs int64
	err := d.DB.QueryRow(`SELECT id, email, password_hash, created_at
		FROM users WHERE email = ?`, email).
		Scan(&u.ID, &u.Email, &u.PasswordHash, &createdMs)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user %s: %w", email, err)
	}
	u.CreatedAt = time.UnixMilli(createdMs)
	return &u, nil
}

// UpsertStrategyInstance syncs one strategy's enable flag and params.
func (d *Database) UpsertStrategyInstance(name string, enabled bool, params string) error {
	en := 0
	if enabled {
		en = 1
	}
	_, err := d.DB.Exec(`INSERT INTO strategy_instances (name, enabled, params, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			enabled = excluded.enabled,
			params = excluded.params,
			updated_at = excluded.updated_at`,
		name, en, params, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("upsert strategy %s: %w", name, err)
	}
	return nil
}

// EnabledStrategies returns the names with enabled=1.
func (d *Database) EnabledStrategies() (map[string]bool, error) {
	rows, err := d.DB.Query(`SELECT name FROM strategy_instances WHERE enabled = 1`)
	if err != nil {
		return nil, fmt.Errorf("enabled strategies: %w", err)
	}
	defer rows.Close()

	out := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		out[name] = true
	}
	return out, rows.Err()
}

func (d *Database) queryTrades(query string, args ...any) ([]*Trade, error) {
	rows, err := d.DB.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query trades: %w", err)
	}
	defer rows.Close()

	var out []*Trade
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTrade(row rowScanner) (*Trade, error) {
	var t Trade
	var openedMs int64
	var closedMs sql.NullInt64
	var exitPrice, profitLoss sql.NullFloat64
	var closeReason sql.NullString

	err := row.Scan(&t.ID, &t.Platform, &t.Asset, &t.Direction, &t.EntryPrice,
		&t.Quantity, &t.Strategy, &t.Status, &t.StopLoss, &t.TakeProfit,
		&t.PeakProfit, &t.Confidence, &t.Ticket, &openedMs, &closedMs,
		&exitPrice, &profitLoss, &closeReason)
	if err != nil {
		return nil, err
	}

	t.OpenedAt = time.UnixMilli(openedMs)
	if closedMs.Valid {
		ts := time.UnixMilli(closedMs.Int64)
		t.ClosedAt = &ts
	}
	if exitPrice.Valid {
		v := exitPrice.Float64
		t.ExitPrice = &v
	}
	if profitLoss.Valid {
		v := profitLoss.Float64
		t.ProfitLoss = &v
	}
	if closeReason.Valid {
		v := closeReason.String
		t.CloseReason = &v
	}
	return &t, nil
}
