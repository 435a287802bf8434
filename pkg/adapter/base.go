package adapter

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/leapstack-labs/agriflow/pkg/core"
)

// DefaultBatchSize caps the rows per INSERT statement. Nine parameters per
// row keeps a batch well below the postgres limit of 65535 parameters.
const DefaultBatchSize = 500

var errNotConnected = errors.New("database connection not established")

// Dialect captures the SQL differences between warehouses.
type Dialect struct {
	Name string

	// Placeholder renders the n-th (1-based) bind parameter.
	Placeholder func(n int) string

	// ConvertArg, when set, rewrites each bind value before it reaches the driver.
	ConvertArg func(v any) any
}

// QuestionPlaceholder renders "?" parameters (sqlite, duckdb).
func QuestionPlaceholder(int) string { return "?" }

// DollarPlaceholder renders "$n" parameters (postgres).
func DollarPlaceholder(n int) string { return "$" + strconv.Itoa(n) }

// BaseSQLAdapter provides the database/sql implementation of the warehouse
// contract. Embed it in concrete adapters and fill in Dialect and Schema.
type BaseSQLAdapter struct {
	DB      *sql.DB
	Cfg     core.AdapterConfig
	Logger  *slog.Logger
	Dialect Dialect

	// Schema is the DDL script applied by InitSchema.
	Schema string

	// LockDates, when set, runs inside the replace transaction before the purge.
	LockDates func(ctx context.Context, tx *sql.Tx, dateIDs []int64) error

	// Now returns the current time used for dimension versioning.
	Now func() time.Time
}

func (b *BaseSQLAdapter) logger() *slog.Logger {
	if b.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return b.Logger
}

func (b *BaseSQLAdapter) now() time.Time {
	if b.Now == nil {
		return time.Now().UTC()
	}
	return b.Now()
}

// DialectName returns the SQL dialect of the warehouse.
func (b *BaseSQLAdapter) DialectName() string { return b.Dialect.Name }

// Close closes the database connection.
func (b *BaseSQLAdapter) Close() error {
	if b.DB != nil {
		b.logger().Debug("closing database connection")
		return b.DB.Close()
	}
	return nil
}

// IsConnected returns true if the database connection is established.
func (b *BaseSQLAdapter) IsConnected() bool {
	return b.DB != nil
}

// Exec executes a SQL statement that doesn't return rows.
func (b *BaseSQLAdapter) Exec(ctx context.Context, sqlStr string, args ...any) error {
	if b.DB == nil {
		return errNotConnected
	}
	if _, err := b.DB.ExecContext(ctx, sqlStr, b.args(args...)...); err != nil {
		return fmt.Errorf("failed to execute SQL: %w", err)
	}
	return nil
}

// InitSchema applies the adapter's DDL script statement by statement.
func (b *BaseSQLAdapter) InitSchema(ctx context.Context) error {
	if b.DB == nil {
		return errNotConnected
	}
	for _, stmt := range SplitStatements(b.Schema) {
		if _, err := b.DB.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to initialize schema: %w", err)
		}
	}
	b.logger().Debug("warehouse schema ready", slog.String("dialect", b.Dialect.Name))
	return nil
}

// CropKeys maps crop_code to crop_id.
func (b *BaseSQLAdapter) CropKeys(ctx context.Context) (map[string]int64, error) {
	if b.DB == nil {
		return nil, errNotConnected
	}
	rows, err := b.DB.QueryContext(ctx, `SELECT crop_id, crop_code FROM dim_crop`)
	if err != nil {
		return nil, fmt.Errorf("failed to query dim_crop: %w", err)
	}
	defer func() { _ = rows.Close() }()

	keys := make(map[string]int64)
	for rows.Next() {
		var (
			id   int64
			code string
		)
		if err := rows.Scan(&id, &code); err != nil {
			return nil, fmt.Errorf("failed to scan dim_crop: %w", err)
		}
		keys[code] = id
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating dim_crop: %w", err)
	}
	return keys, nil
}

// CurrentFarmKeys maps farm_id to the farm_key of its current version.
func (b *BaseSQLAdapter) CurrentFarmKeys(ctx context.Context) (map[string]int64, error) {
	if b.DB == nil {
		return nil, errNotConnected
	}
	rows, err := b.DB.QueryContext(ctx, `SELECT farm_key, farm_id FROM dim_farm WHERE is_current = true`)
	if err != nil {
		return nil, fmt.Errorf("failed to query dim_farm: %w", err)
	}
	defer func() { _ = rows.Close() }()

	keys := make(map[string]int64)
	for rows.Next() {
		var (
			key int64
			id  string
		)
		if err := rows.Scan(&key, &id); err != nil {
			return nil, fmt.Errorf("failed to scan dim_farm: %w", err)
		}
		if prev, ok := keys[id]; ok {
			// More than one current version breaks the type 2 history; the
			// newest surrogate wins.
			b.logger().Warn("multiple current dim_farm rows", slog.String("farm_id", id),
				slog.Int64("farm_key", key), slog.Int64("previous_farm_key", prev))
			if prev > key {
				continue
			}
		}
		keys[id] = key
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating dim_farm: %w", err)
	}
	return keys, nil
}

// ReplacePartitions deletes the fact rows of dateIDs and inserts rows inside
// one transaction. Any failure rolls the transaction back and is reported as
// a *core.LoadFailure.
func (b *BaseSQLAdapter) ReplacePartitions(ctx context.Context, dateIDs []int64, rows []core.FactRow, opts core.ReplaceOptions) (core.ReplaceResult, error) {
	res := core.ReplaceResult{DateIDs: dateIDs}
	if len(dateIDs) == 0 {
		return res, nil
	}

	fail := func(stage string, err error) (core.ReplaceResult, error) {
		return res, &core.LoadFailure{Stage: stage, DateIDs: dateIDs, RolledBack: true, Err: err}
	}

	if b.DB == nil {
		return fail(core.LoadStageBegin, errNotConnected)
	}

	partitions := make(map[int64]struct{}, len(dateIDs))
	for _, id := range dateIDs {
		partitions[id] = struct{}{}
	}
	for _, r := range rows {
		if _, ok := partitions[r.DateID]; !ok {
			return fail(core.LoadStageBegin, fmt.Errorf("row date_id %d is outside the replaced partitions", r.DateID))
		}
	}

	tx, err := b.DB.BeginTx(ctx, nil)
	if err != nil {
		return fail(core.LoadStageBegin, err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if b.LockDates != nil {
		if err := b.LockDates(ctx, tx, dateIDs); err != nil {
			return fail(core.LoadStageLock, err)
		}
	}

	if opts.EnsureDates {
		if err := b.ensureDates(ctx, tx, dateIDs); err != nil {
			return fail(core.LoadStageDates, err)
		}
	}

	purged, err := b.purge(ctx, tx, dateIDs)
	if err != nil {
		return fail(core.LoadStagePurge, err)
	}
	res.Purged = purged

	inserted, err := b.insertFacts(ctx, tx, rows, opts.BatchSize)
	if err != nil {
		return fail(core.LoadStageInsert, err)
	}
	res.Inserted = inserted

	if err := tx.Commit(); err != nil {
		return fail(core.LoadStageCommit, err)
	}
	committed = true

	b.logger().Debug("replaced partitions",
		slog.Any("date_ids", dateIDs),
		slog.Int64("purged", purged),
		slog.Int64("inserted", inserted),
	)
	return res, nil
}

// ensureDates inserts the dim_date rows of dateIDs that do not exist yet.
func (b *BaseSQLAdapter) ensureDates(ctx context.Context, tx *sql.Tx, dateIDs []int64) error {
	p := b.Dialect.Placeholder
	//nolint:gosec // Placeholders come from the dialect
	stmt := fmt.Sprintf(
		`INSERT INTO dim_date (date_id, full_date, year, month, day) VALUES (%s, %s, %s, %s, %s) ON CONFLICT (date_id) DO NOTHING`,
		p(1), p(2), p(3), p(4), p(5),
	)
	for _, id := range dateIDs {
		day, err := DateFromID(id)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, stmt, b.args(id, day.Format(time.DateOnly), day.Year(), int(day.Month()), day.Day())...); err != nil {
			return fmt.Errorf("failed to ensure dim_date %d: %w", id, err)
		}
	}
	return nil
}

func (b *BaseSQLAdapter) purge(ctx context.Context, tx *sql.Tx, dateIDs []int64) (int64, error) {
	args := make([]any, len(dateIDs))
	for i, id := range dateIDs {
		args[i] = id
	}
	//nolint:gosec // Placeholders come from the dialect
	stmt := fmt.Sprintf(`DELETE FROM %s WHERE date_id IN (%s)`, core.FactTable, b.placeholders(1, len(dateIDs)))
	result, err := tx.ExecContext(ctx, stmt, b.args(args...)...)
	if err != nil {
		return 0, fmt.Errorf("failed to purge %s: %w", core.FactTable, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, nil // Purge applied; count unavailable
	}
	return n, nil
}

func (b *BaseSQLAdapter) insertFacts(ctx context.Context, tx *sql.Tx, rows []core.FactRow, batchSize int) (int64, error) {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	width := len(core.FactColumns)
	prefix := fmt.Sprintf("INSERT INTO %s (%s) VALUES ", core.FactTable, strings.Join(core.FactColumns, ", "))

	var inserted int64
	for start := 0; start < len(rows); start += batchSize {
		end := min(start+batchSize, len(rows))
		chunk := rows[start:end]

		var sb strings.Builder
		sb.WriteString(prefix)
		args := make([]any, 0, len(chunk)*width)
		for i, r := range chunk {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString("(")
			sb.WriteString(b.placeholders(i*width+1, width))
			sb.WriteString(")")
			args = append(args, r.Values()...)
		}

		if _, err := tx.ExecContext(ctx, sb.String(), b.args(args...)...); err != nil {
			return inserted, fmt.Errorf("failed to insert into %s: %w", core.FactTable, err)
		}
		inserted += int64(len(chunk))
	}
	return inserted, nil
}

// SeedDimensions inserts missing crops and applies type 2 versioning to farms.
func (b *BaseSQLAdapter) SeedDimensions(ctx context.Context, catalog core.DimensionCatalog) (core.SeedResult, error) {
	var res core.SeedResult
	if b.DB == nil {
		return res, errNotConnected
	}
	p := b.Dialect.Placeholder
	today := b.now().Format(time.DateOnly)

	tx, err := b.DB.BeginTx(ctx, nil)
	if err != nil {
		return res, fmt.Errorf("failed to begin seed transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, c := range catalog.Crops {
		var n int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM dim_crop WHERE crop_code = `+p(1), b.args(c.Code)...).Scan(&n); err != nil {
			return res, fmt.Errorf("failed to look up crop %s: %w", c.Code, err)
		}
		if n > 0 {
			continue
		}
		//nolint:gosec // Placeholders come from the dialect
		insert := fmt.Sprintf(`INSERT INTO dim_crop (crop_code, crop_name, variety) VALUES (%s, %s, %s)`, p(1), p(2), p(3))
		if _, err := tx.ExecContext(ctx, insert, b.args(c.Code, c.Name, c.Variety)...); err != nil {
			return res, fmt.Errorf("failed to insert crop %s: %w", c.Code, err)
		}
		res.CropsInserted++
	}

	for _, f := range catalog.Farms {
		var (
			key           int64
			name, manager sql.NullString
		)
		//nolint:gosec // Placeholders come from the dialect
		lookup := fmt.Sprintf(`SELECT farm_key, farm_name, manager_name FROM dim_farm WHERE farm_id = %s AND is_current = true`, p(1))
		err := tx.QueryRowContext(ctx, lookup, b.args(f.ID)...).Scan(&key, &name, &manager)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			// First version
		case err != nil:
			return res, fmt.Errorf("failed to look up farm %s: %w", f.ID, err)
		case name.String == f.Name && manager.String == f.Manager:
			continue
		default:
			//nolint:gosec // Placeholders come from the dialect
			closeStmt := fmt.Sprintf(`UPDATE dim_farm SET is_current = false, valid_to = %s WHERE farm_key = %s`, p(1), p(2))
			if _, err := tx.ExecContext(ctx, closeStmt, b.args(today, key)...); err != nil {
				return res, fmt.Errorf("failed to close farm version %d: %w", key, err)
			}
			res.FarmsVersioned++
		}

		//nolint:gosec // Placeholders come from the dialect
		insert := fmt.Sprintf(`INSERT INTO dim_farm (farm_id, farm_name, manager_name, is_current, valid_from) VALUES (%s, %s, %s, %s, %s)`,
			p(1), p(2), p(3), p(4), p(5))
		if _, err := tx.ExecContext(ctx, insert, b.args(f.ID, f.Name, f.Manager, true, today)...); err != nil {
			return res, fmt.Errorf("failed to insert farm %s: %w", f.ID, err)
		}
		res.FarmsInserted++
	}

	if err := tx.Commit(); err != nil {
		return res, fmt.Errorf("failed to commit seed transaction: %w", err)
	}
	return res, nil
}

// ReadFacts returns the facts with from <= date_id <= to.
func (b *BaseSQLAdapter) ReadFacts(ctx context.Context, from, to int64) ([]core.FactView, error) {
	if b.DB == nil {
		return nil, errNotConnected
	}
	//nolint:gosec // Placeholders come from the dialect
	query := fmt.Sprintf(`
		SELECT
			f.date_id,
			COALESCE(c.crop_code, ''),
			COALESCE(c.crop_name, ''),
			COALESCE(fm.farm_id, ''),
			f.quantity_harvested_kg,
			f.spoilage_kg,
			f.labor_cost_zar,
			f.logistics_cost_zar,
			f.revenue_zar,
			f.profit_zar
		FROM %s f
		LEFT JOIN dim_crop c ON c.crop_id = f.crop_id
		LEFT JOIN dim_farm fm ON fm.farm_key = f.farm_key
		WHERE f.date_id BETWEEN %s AND %s
		ORDER BY f.date_id, c.crop_code, fm.farm_id
	`, core.FactTable, b.Dialect.Placeholder(1), b.Dialect.Placeholder(2))

	rows, err := b.DB.QueryContext(ctx, query, b.args(from, to)...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", core.FactTable, err)
	}
	defer func() { _ = rows.Close() }()

	var facts []core.FactView
	for rows.Next() {
		var v core.FactView
		if err := rows.Scan(&v.DateID, &v.CropCode, &v.CropName, &v.FarmID,
			&v.QuantityHarvestedKg, &v.SpoilageKg, &v.LaborCostZAR, &v.LogisticsCostZAR,
			&v.RevenueZAR, &v.ProfitZAR); err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", core.FactTable, err)
		}
		facts = append(facts, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating %s: %w", core.FactTable, err)
	}
	return facts, nil
}

// FarmHistory returns every dim_farm version ordered by farm_id and key.
func (b *BaseSQLAdapter) FarmHistory(ctx context.Context) ([]core.FarmVersion, error) {
	if b.DB == nil {
		return nil, errNotConnected
	}
	rows, err := b.DB.QueryContext(ctx, `
		SELECT farm_key, farm_id, farm_name, COALESCE(manager_name, ''), is_current,
			CAST(valid_from AS TEXT), CAST(valid_to AS TEXT)
		FROM dim_farm
		ORDER BY farm_id, farm_key
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query dim_farm: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var history []core.FarmVersion
	for rows.Next() {
		var (
			v        core.FarmVersion
			from     string
			to       sql.NullString
			parseErr error
		)
		if err := rows.Scan(&v.FarmKey, &v.FarmID, &v.Name, &v.Manager, &v.IsCurrent, &from, &to); err != nil {
			return nil, fmt.Errorf("failed to scan dim_farm: %w", err)
		}
		if v.ValidFrom, parseErr = parseDay(from); parseErr != nil {
			return nil, fmt.Errorf("farm_key %d: %w", v.FarmKey, parseErr)
		}
		if to.Valid {
			end, err := parseDay(to.String)
			if err != nil {
				return nil, fmt.Errorf("farm_key %d: %w", v.FarmKey, err)
			}
			v.ValidTo = &end
		}
		history = append(history, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating dim_farm: %w", err)
	}
	return history, nil
}

// parseDay reads the date part of a DATE or timestamp rendered as text.
func parseDay(s string) (time.Time, error) {
	if len(s) > len(time.DateOnly) {
		s = s[:len(time.DateOnly)]
	}
	day, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid validity date %q: %w", s, err)
	}
	return day, nil
}

// placeholders renders n comma-separated parameters starting at start.
func (b *BaseSQLAdapter) placeholders(start, n int) string {
	parts := make([]string, n)
	for i := range n {
		parts[i] = b.Dialect.Placeholder(start + i)
	}
	return strings.Join(parts, ", ")
}

func (b *BaseSQLAdapter) args(vals ...any) []any {
	if b.Dialect.ConvertArg == nil {
		return vals
	}
	out := make([]any, len(vals))
	for i, v := range vals {
		out[i] = b.Dialect.ConvertArg(v)
	}
	return out
}

// DateFromID turns a YYYYMMDD date_id back into a calendar date.
func DateFromID(id int64) (time.Time, error) {
	day, err := time.Parse("20060102", strconv.FormatInt(id, 10))
	if err != nil {
		return time.Time{}, fmt.Errorf("date_id %d is not a YYYYMMDD date: %w", id, err)
	}
	return day, nil
}

// SplitStatements splits a DDL script on statement terminators, dropping
// comment-only lines and empty statements.
func SplitStatements(script string) []string {
	var lines []string
	for _, line := range strings.Split(script, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "--") {
			continue
		}
		lines = append(lines, line)
	}
	var stmts []string
	for _, stmt := range strings.Split(strings.Join(lines, "\n"), ";") {
		if s := strings.TrimSpace(stmt); s != "" {
			stmts = append(stmts, s)
		}
	}
	return stmts
}
