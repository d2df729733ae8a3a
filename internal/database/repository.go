package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ErrNotFound is returned when a requested record does not exist
var ErrNotFound = errors.New("record not found")

// Repository provides data access methods
type Repository struct {
	db *DB
}

// NewRepository creates a new repository
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// HealthCheck performs a database health check
func (r *Repository) HealthCheck(ctx context.Context) error {
	return r.db.Pool.Ping(ctx)
}

// ============================================================================
// TOKENS
// ============================================================================

// GetActiveTokens retrieves all tokens flagged active by the ingestion service
func (r *Repository) GetActiveTokens(ctx context.Context) ([]*Token, error) {
	query := `
		SELECT id, symbol, name, current_price, is_active, created_at
		FROM tokens
		WHERE is_active = TRUE
		ORDER BY symbol
	`
	rows, err := r.db.Pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tokens []*Token
	for rows.Next() {
		token := &Token{}
		if err := rows.Scan(&token.ID, &token.Symbol, &token.Name,
			&token.CurrentPrice, &token.IsActive, &token.CreatedAt); err != nil {
			return nil, err
		}
		tokens = append(tokens, token)
	}
	return tokens, rows.Err()
}

// GetToken retrieves a token by ID
func (r *Repository) GetToken(ctx context.Context, id string) (*Token, error) {
	query := `
		SELECT id, symbol, name, current_price, is_active, created_at
		FROM tokens
		WHERE id = $1
	`
	token := &Token{}
	err := r.db.Pool.QueryRow(ctx, query, id).Scan(
		&token.ID, &token.Symbol, &token.Name, &token.CurrentPrice,
		&token.IsActive, &token.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return token, nil
}

// ============================================================================
// PRICE HISTORY
// ============================================================================

// GetPriceHistory retrieves a bounded recent window of price points in
// chronological order. limit <= 0 means no limit.
func (r *Repository) GetPriceHistory(ctx context.Context, tokenID string, limit int) ([]*PricePoint, error) {
	query := `
		SELECT id, token_id, price, volume, timestamp
		FROM (
			SELECT id, token_id, price, volume, timestamp
			FROM price_history
			WHERE token_id = $1
			ORDER BY timestamp DESC
			LIMIT $2
		) recent
		ORDER BY timestamp ASC
	`
	if limit <= 0 {
		limit = 500
	}
	rows, err := r.db.Pool.Query(ctx, query, tokenID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var points []*PricePoint
	for rows.Next() {
		p := &PricePoint{}
		if err := rows.Scan(&p.ID, &p.TokenID, &p.Price, &p.Volume, &p.Timestamp); err != nil {
			return nil, err
		}
		points = append(points, p)
	}
	return points, rows.Err()
}

// ============================================================================
// PATTERNS
// ============================================================================

// CreatePattern inserts a detected pattern. The ID is generated when empty.
func (r *Repository) CreatePattern(ctx context.Context, pattern *Pattern) error {
	if pattern.ID == "" {
		pattern.ID = uuid.NewString()
	}
	if pattern.DetectedAt.IsZero() {
		pattern.DetectedAt = time.Now()
	}
	query := `
		INSERT INTO patterns (id, token_id, pattern_type, confidence, timeframe, metadata, detected_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.db.Pool.Exec(ctx, query,
		pattern.ID, pattern.TokenID, pattern.PatternType, pattern.Confidence,
		pattern.Timeframe, pattern.Metadata, pattern.DetectedAt,
	)
	return err
}

// GetPattern retrieves a pattern by ID
func (r *Repository) GetPattern(ctx context.Context, id string) (*Pattern, error) {
	query := `
		SELECT id, token_id, pattern_type, confidence, timeframe, metadata, detected_at, adjusted_confidence
		FROM patterns
		WHERE id = $1
	`
	p := &Pattern{}
	err := r.db.Pool.QueryRow(ctx, query, id).Scan(
		&p.ID, &p.TokenID, &p.PatternType, &p.Confidence, &p.Timeframe,
		&p.Metadata, &p.DetectedAt, &p.AdjustedConfidence,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

// UpdatePatternAdjustedConfidence rescales a stored pattern's confidence. Raw
// confidence is never rewritten; this is the only post-detection mutation.
func (r *Repository) UpdatePatternAdjustedConfidence(ctx context.Context, id string, adjusted float64) error {
	query := `UPDATE patterns SET adjusted_confidence = $2 WHERE id = $1`
	_, err := r.db.Pool.Exec(ctx, query, id, adjusted)
	return err
}

// ============================================================================
// PORTFOLIOS
// ============================================================================

// GetPortfolio retrieves a portfolio by ID
func (r *Repository) GetPortfolio(ctx context.Context, id string) (*Portfolio, error) {
	query := `
		SELECT id, name, cash_balance, total_value, daily_pnl, total_pnl, win_rate, updated_at
		FROM portfolios
		WHERE id = $1
	`
	p := &Portfolio{}
	err := r.db.Pool.QueryRow(ctx, query, id).Scan(
		&p.ID, &p.Name, &p.CashBalance, &p.TotalValue, &p.DailyPnL,
		&p.TotalPnL, &p.WinRate, &p.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

// GetAllPortfolios retrieves every portfolio
func (r *Repository) GetAllPortfolios(ctx context.Context) ([]*Portfolio, error) {
	query := `
		SELECT id, name, cash_balance, total_value, daily_pnl, total_pnl, win_rate, updated_at
		FROM portfolios
		ORDER BY name
	`
	rows, err := r.db.Pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var portfolios []*Portfolio
	for rows.Next() {
		p := &Portfolio{}
		if err := rows.Scan(&p.ID, &p.Name, &p.CashBalance, &p.TotalValue,
			&p.DailyPnL, &p.TotalPnL, &p.WinRate, &p.UpdatedAt); err != nil {
			return nil, err
		}
		portfolios = append(portfolios, p)
	}
	return portfolios, rows.Err()
}

// CreatePortfolio inserts a new portfolio
func (r *Repository) CreatePortfolio(ctx context.Context, p *Portfolio) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	query := `
		INSERT INTO portfolios (id, name, cash_balance, total_value, daily_pnl, total_pnl, win_rate)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.db.Pool.Exec(ctx, query,
		p.ID, p.Name, p.CashBalance, p.TotalValue, p.DailyPnL, p.TotalPnL, p.WinRate,
	)
	return err
}

// UpdatePortfolio rewrites the portfolio's aggregate fields
func (r *Repository) UpdatePortfolio(ctx context.Context, p *Portfolio) error {
	query := `
		UPDATE portfolios
		SET cash_balance = $2, total_value = $3, daily_pnl = $4, total_pnl = $5,
		    win_rate = $6, updated_at = NOW()
		WHERE id = $1
	`
	_, err := r.db.Pool.Exec(ctx, query,
		p.ID, p.CashBalance, p.TotalValue, p.DailyPnL, p.TotalPnL, p.WinRate,
	)
	return err
}

// ============================================================================
// POSITIONS
// ============================================================================

// GetPositionsByPortfolio retrieves all positions for a portfolio, including
// closed (zero-amount) ones
func (r *Repository) GetPositionsByPortfolio(ctx context.Context, portfolioID string) ([]*Position, error) {
	query := `
		SELECT id, portfolio_id, token_id, amount, avg_buy_price, created_at, updated_at
		FROM positions
		WHERE portfolio_id = $1
		ORDER BY created_at
	`
	rows, err := r.db.Pool.Query(ctx, query, portfolioID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var positions []*Position
	for rows.Next() {
		p := &Position{}
		if err := rows.Scan(&p.ID, &p.PortfolioID, &p.TokenID, &p.Amount,
			&p.AvgBuyPrice, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

// GetPositionByPortfolioAndToken retrieves the single position for a
// (portfolio, token) pair. Returns ErrNotFound when none exists.
func (r *Repository) GetPositionByPortfolioAndToken(ctx context.Context, portfolioID, tokenID string) (*Position, error) {
	query := `
		SELECT id, portfolio_id, token_id, amount, avg_buy_price, created_at, updated_at
		FROM positions
		WHERE portfolio_id = $1 AND token_id = $2
	`
	p := &Position{}
	err := r.db.Pool.QueryRow(ctx, query, portfolioID, tokenID).Scan(
		&p.ID, &p.PortfolioID, &p.TokenID, &p.Amount, &p.AvgBuyPrice,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

// CreatePosition inserts a new position
func (r *Repository) CreatePosition(ctx context.Context, p *Position) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	query := `
		INSERT INTO positions (id, portfolio_id, token_id, amount, avg_buy_price)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := r.db.Pool.Exec(ctx, query,
		p.ID, p.PortfolioID, p.TokenID, p.Amount, p.AvgBuyPrice,
	)
	return err
}

// UpdatePosition rewrites a position's amount and average buy price
func (r *Repository) UpdatePosition(ctx context.Context, p *Position) error {
	query := `
		UPDATE positions
		SET amount = $2, avg_buy_price = $3, updated_at = NOW()
		WHERE id = $1
	`
	_, err := r.db.Pool.Exec(ctx, query, p.ID, p.Amount, p.AvgBuyPrice)
	return err
}

// ============================================================================
// TRADES
// ============================================================================

// CreateTrade inserts a new trade
func (r *Repository) CreateTrade(ctx context.Context, trade *Trade) error {
	if trade.ID == "" {
		trade.ID = uuid.NewString()
	}
	if trade.ExecutedAt.IsZero() {
		trade.ExecutedAt = time.Now()
	}
	query := `
		INSERT INTO trades (id, portfolio_id, token_id, pattern_id, side, amount, price, total_value, executed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := r.db.Pool.Exec(ctx, query,
		trade.ID, trade.PortfolioID, trade.TokenID, trade.PatternID, trade.Side,
		trade.Amount, trade.Price, trade.TotalValue, trade.ExecutedAt,
	)
	return err
}

// UpdateTrade sets the exit fields of a trade. These are written exactly once,
// when a sell closes out (or partially reduces) the originating buy.
func (r *Repository) UpdateTrade(ctx context.Context, trade *Trade) error {
	query := `
		UPDATE trades
		SET exit_price = $2, realized_pnl = $3, closed_at = $4
		WHERE id = $1
	`
	_, err := r.db.Pool.Exec(ctx, query,
		trade.ID, trade.ExitPrice, trade.RealizedPnL, trade.ClosedAt,
	)
	return err
}

// GetOpenBuyTrades retrieves a portfolio's buy trades not yet closed out, in
// chronological order, optionally filtered by token
func (r *Repository) GetOpenBuyTrades(ctx context.Context, portfolioID, tokenID string) ([]*Trade, error) {
	query := `
		SELECT id, portfolio_id, token_id, pattern_id, side, amount, price, total_value,
		       exit_price, realized_pnl, executed_at, closed_at
		FROM trades
		WHERE portfolio_id = $1 AND side = 'buy' AND closed_at IS NULL
		  AND ($2 = '' OR token_id = $2)
		ORDER BY executed_at
	`
	return r.queryTrades(ctx, query, portfolioID, tokenID)
}

// GetClosedTrades retrieves a portfolio's closed trades in chronological
// order. limit <= 0 returns all of them.
func (r *Repository) GetClosedTrades(ctx context.Context, portfolioID string, limit int) ([]*Trade, error) {
	query := `
		SELECT id, portfolio_id, token_id, pattern_id, side, amount, price, total_value,
		       exit_price, realized_pnl, executed_at, closed_at
		FROM trades
		WHERE portfolio_id = $1 AND closed_at IS NOT NULL
		ORDER BY closed_at
	`
	trades, err := r.queryTrades(ctx, query, portfolioID)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(trades) > limit {
		trades = trades[len(trades)-limit:]
	}
	return trades, nil
}

// GetRecentClosedTrades retrieves the most recent closed trades across all
// portfolios, newest first
func (r *Repository) GetRecentClosedTrades(ctx context.Context, limit int) ([]*Trade, error) {
	query := `
		SELECT id, portfolio_id, token_id, pattern_id, side, amount, price, total_value,
		       exit_price, realized_pnl, executed_at, closed_at
		FROM trades
		WHERE closed_at IS NOT NULL
		ORDER BY closed_at DESC
		LIMIT $1
	`
	return r.queryTrades(ctx, query, limit)
}

// GetTradesByPatternType retrieves closed trades whose originating pattern has
// the given type and timeframe
func (r *Repository) GetTradesByPatternType(ctx context.Context, patternType, timeframe string) ([]*Trade, error) {
	query := `
		SELECT t.id, t.portfolio_id, t.token_id, t.pattern_id, t.side, t.amount, t.price,
		       t.total_value, t.exit_price, t.realized_pnl, t.executed_at, t.closed_at
		FROM trades t
		JOIN patterns p ON p.id = t.pattern_id
		WHERE p.pattern_type = $1 AND p.timeframe = $2 AND t.closed_at IS NOT NULL
		ORDER BY t.closed_at
	`
	return r.queryTrades(ctx, query, patternType, timeframe)
}

// GetDailyRealizedPnL sums realized P&L of trades closed since the start of
// the current UTC day
func (r *Repository) GetDailyRealizedPnL(ctx context.Context, portfolioID string) (float64, error) {
	query := `
		SELECT COALESCE(SUM(realized_pnl), 0)
		FROM trades
		WHERE portfolio_id = $1 AND closed_at >= date_trunc('day', NOW())
	`
	var pnl float64
	err := r.db.Pool.QueryRow(ctx, query, portfolioID).Scan(&pnl)
	return pnl, err
}

func (r *Repository) queryTrades(ctx context.Context, query string, args ...interface{}) ([]*Trade, error) {
	rows, err := r.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trades []*Trade
	for rows.Next() {
		t := &Trade{}
		if err := rows.Scan(
			&t.ID, &t.PortfolioID, &t.TokenID, &t.PatternID, &t.Side, &t.Amount,
			&t.Price, &t.TotalValue, &t.ExitPrice, &t.RealizedPnL, &t.ExecutedAt, &t.ClosedAt,
		); err != nil {
			return nil, err
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// ============================================================================
// PATTERN PERFORMANCE
// ============================================================================

// GetPatternPerformance retrieves the performance record for a
// (pattern type, timeframe) pair
func (r *Repository) GetPatternPerformance(ctx context.Context, patternType, timeframe string) (*PatternPerformance, error) {
	query := `
		SELECT id, pattern_type, timeframe, total_trades, successful_trades, total_profit,
		       win_rate, average_return, confidence_multiplier, updated_at
		FROM pattern_performance
		WHERE pattern_type = $1 AND timeframe = $2
	`
	perf := &PatternPerformance{}
	err := r.db.Pool.QueryRow(ctx, query, patternType, timeframe).Scan(
		&perf.ID, &perf.PatternType, &perf.Timeframe, &perf.TotalTrades,
		&perf.SuccessfulTrades, &perf.TotalProfit, &perf.WinRate,
		&perf.AverageReturn, &perf.ConfidenceMultiplier, &perf.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return perf, nil
}

// GetAllPatternPerformance retrieves every performance record
func (r *Repository) GetAllPatternPerformance(ctx context.Context) ([]*PatternPerformance, error) {
	query := `
		SELECT id, pattern_type, timeframe, total_trades, successful_trades, total_profit,
		       win_rate, average_return, confidence_multiplier, updated_at
		FROM pattern_performance
		ORDER BY pattern_type, timeframe
	`
	rows, err := r.db.Pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*PatternPerformance
	for rows.Next() {
		perf := &PatternPerformance{}
		if err := rows.Scan(&perf.ID, &perf.PatternType, &perf.Timeframe,
			&perf.TotalTrades, &perf.SuccessfulTrades, &perf.TotalProfit,
			&perf.WinRate, &perf.AverageReturn, &perf.ConfidenceMultiplier,
			&perf.UpdatedAt); err != nil {
			return nil, err
		}
		records = append(records, perf)
	}
	return records, rows.Err()
}

// UpsertPatternPerformance inserts or updates a performance record
func (r *Repository) UpsertPatternPerformance(ctx context.Context, perf *PatternPerformance) error {
	query := `
		INSERT INTO pattern_performance
			(pattern_type, timeframe, total_trades, successful_trades, total_profit,
			 win_rate, average_return, confidence_multiplier, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
		ON CONFLICT (pattern_type, timeframe) DO UPDATE SET
			total_trades = EXCLUDED.total_trades,
			successful_trades = EXCLUDED.successful_trades,
			total_profit = EXCLUDED.total_profit,
			win_rate = EXCLUDED.win_rate,
			average_return = EXCLUDED.average_return,
			confidence_multiplier = EXCLUDED.confidence_multiplier,
			updated_at = NOW()
	`
	_, err := r.db.Pool.Exec(ctx, query,
		perf.PatternType, perf.Timeframe, perf.TotalTrades, perf.SuccessfulTrades,
		perf.TotalProfit, perf.WinRate, perf.AverageReturn, perf.ConfidenceMultiplier,
	)
	return err
}

// UpdatePatternConfidenceMultiplier rewrites just the multiplier for a
// (pattern type, timeframe) pair, creating the record if needed
func (r *Repository) UpdatePatternConfidenceMultiplier(ctx context.Context, patternType, timeframe string, multiplier float64) error {
	query := `
		INSERT INTO pattern_performance (pattern_type, timeframe, confidence_multiplier, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (pattern_type, timeframe) DO UPDATE SET
			confidence_multiplier = EXCLUDED.confidence_multiplier,
			updated_at = NOW()
	`
	_, err := r.db.Pool.Exec(ctx, query, patternType, timeframe, multiplier)
	return err
}

// ============================================================================
// LEARNING PARAMS
// ============================================================================

// GetLearningParam retrieves an adaptive parameter, returning fallback when
// the parameter has never been written
func (r *Repository) GetLearningParam(ctx context.Context, name string, fallback float64) (float64, error) {
	query := `SELECT value FROM learning_params WHERE name = $1`
	var value float64
	err := r.db.Pool.QueryRow(ctx, query, name).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return fallback, nil
	}
	if err != nil {
		return fallback, fmt.Errorf("get learning param %s: %w", name, err)
	}
	return value, nil
}

// UpdateLearningParam upserts an adaptive parameter
func (r *Repository) UpdateLearningParam(ctx context.Context, name string, value float64) error {
	query := `
		INSERT INTO learning_params (name, value, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (name) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()
	`
	_, err := r.db.Pool.Exec(ctx, query, name, value)
	return err
}
