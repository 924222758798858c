package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/xid"
	"github.com/tbhasan/tableforge/internal/apperror"
	"github.com/tbhasan/tableforge/internal/model"
	"github.com/tbhasan/tableforge/internal/repository"
)

// compile-time check that *DB implements repository.AccountRepository
var _ repository.AccountRepository = (*DB)(nil)

const accountColumns = `id, name, email, password_hash, options_id, created_at, updated_at`

const optionsColumns = `id, fow_colour, grid_colour, ruler_colour, invert_alt,
	disable_scroll_to_zoom, use_high_dpi, grid_size, use_as_physical_board,
	mini_size, ppi, initiative_camera_lock, initiative_vision_lock,
	initiative_effect_visibility`

// CreateEmptyOptions inserts a preference row with every field NULL. The row
// deliberately represents "no overrides", not "all defaults" — resolving
// against defaults happens in memory, never in the store.
func (db *DB) CreateEmptyOptions(ctx context.Context) (*model.AccountOptions, error) {
	opts := model.NewEmptyOptions()
	opts.ID = xid.New().String()

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO account_options (id) VALUES (?)`, opts.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: inserting empty account options: %w", err)
	}

	return opts, nil
}

// CreateAccount inserts a new account row. The account must reference an
// existing options row; ID and timestamps are assigned here.
//
// A name that collides with an existing one under COLLATE NOCASE violates
// the unique index and is reported as apperror.ErrConflict.
func (db *DB) CreateAccount(ctx context.Context, account *model.Account) error {
	if account.OptionsID == "" {
		return fmt.Errorf("sqlite: account %q has no options reference", account.Name)
	}

	now := time.Now()
	account.ID = xid.New().String()
	account.CreatedAt = now
	account.UpdatedAt = now

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO accounts (id, name, email, password_hash, options_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		account.ID,
		account.Name,
		account.Email,
		account.PasswordHash,
		account.OptionsID,
		account.CreatedAt,
		account.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("account", account.Name)
		}
		return fmt.Errorf("sqlite: inserting account %q: %w", account.Name, err)
	}

	return nil
}

// GetByID retrieves an account by its internal ID.
// Returns apperror.ErrNotFound if no account exists with that ID.
func (db *DB) GetByID(ctx context.Context, id string) (*model.Account, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = ?`, id,
	)
	account, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("account", id)
		}
		return nil, fmt.Errorf("sqlite: getting account %s: %w", id, err)
	}
	return account, nil
}

// ByName retrieves the account whose name matches under case-insensitive
// comparison. The name column carries COLLATE NOCASE, so plain equality here
// folds case the same way the unique index does — and since the index rejects
// case-variant duplicates at write time, at most one row can match.
func (db *DB) ByName(ctx context.Context, name string) (*model.Account, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE name = ?`, name,
	)
	account, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("account", name)
		}
		return nil, fmt.Errorf("sqlite: getting account by name %q: %w", name, err)
	}
	return account, nil
}

// Update writes the account's mutable fields back to the store. This is the
// commit half of SetPassword's mutate-then-commit split.
func (db *DB) Update(ctx context.Context, account *model.Account) error {
	account.UpdatedAt = time.Now()

	res, err := db.conn.ExecContext(ctx,
		`UPDATE accounts SET name = ?, email = ?, password_hash = ?, updated_at = ?
		 WHERE id = ?`,
		account.Name,
		account.Email,
		account.PasswordHash,
		account.UpdatedAt,
		account.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("account", account.Name)
		}
		return fmt.Errorf("sqlite: updating account %s: %w", account.ID, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: updating account %s: %w", account.ID, err)
	}
	if affected == 0 {
		return apperror.NotFound("account", account.ID)
	}
	return nil
}

// GetOptions retrieves a preference record by its ID. NULL columns come back
// as nil fields.
func (db *DB) GetOptions(ctx context.Context, id string) (*model.AccountOptions, error) {
	var o model.AccountOptions

	err := db.conn.QueryRowContext(ctx,
		`SELECT `+optionsColumns+` FROM account_options WHERE id = ?`, id,
	).Scan(
		&o.ID,
		&o.FowColour,
		&o.GridColour,
		&o.RulerColour,
		&o.InvertAlt,
		&o.DisableScrollToZoom,
		&o.UseHighDPI,
		&o.GridSize,
		&o.UseAsPhysicalBoard,
		&o.MiniSize,
		&o.PPI,
		&o.InitiativeCameraLock,
		&o.InitiativeVisionLock,
		&o.InitiativeEffectVisibility,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("account options", id)
		}
		return nil, fmt.Errorf("sqlite: getting account options %s: %w", id, err)
	}

	return &o, nil
}

// UpdateOptions writes every preference column from the record. nil fields
// are written as NULL, so this both sets and clears overrides.
func (db *DB) UpdateOptions(ctx context.Context, opts *model.AccountOptions) error {
	res, err := db.conn.ExecContext(ctx,
		`UPDATE account_options SET
			fow_colour = ?, grid_colour = ?, ruler_colour = ?,
			invert_alt = ?, disable_scroll_to_zoom = ?,
			use_high_dpi = ?, grid_size = ?, use_as_physical_board = ?,
			mini_size = ?, ppi = ?,
			initiative_camera_lock = ?, initiative_vision_lock = ?,
			initiative_effect_visibility = ?
		 WHERE id = ?`,
		opts.FowColour,
		opts.GridColour,
		opts.RulerColour,
		opts.InvertAlt,
		opts.DisableScrollToZoom,
		opts.UseHighDPI,
		opts.GridSize,
		opts.UseAsPhysicalBoard,
		opts.MiniSize,
		opts.PPI,
		opts.InitiativeCameraLock,
		opts.InitiativeVisionLock,
		opts.InitiativeEffectVisibility,
		opts.ID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating account options %s: %w", opts.ID, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: updating account options %s: %w", opts.ID, err)
	}
	if affected == 0 {
		return apperror.NotFound("account options", opts.ID)
	}
	return nil
}

// DeleteOptions removes a bare options row. Used only to clean up after a
// failed account insert; Delete handles the normal cascade.
func (db *DB) DeleteOptions(ctx context.Context, id string) error {
	_, err := db.conn.ExecContext(ctx,
		`DELETE FROM account_options WHERE id = ?`, id,
	)
	if err != nil {
		return fmt.Errorf("sqlite: deleting account options %s: %w", id, err)
	}
	return nil
}

// Delete removes an account and its options record in one transaction. The
// account row goes first (it holds the foreign key), then the options row; a
// failure at any point rolls back both, so no orphan can survive.
func (db *DB) Delete(ctx context.Context, id string) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: beginning delete of account %s: %w", id, err)
	}
	defer tx.Rollback()

	var optionsID string
	err = tx.QueryRowContext(ctx,
		`SELECT options_id FROM accounts WHERE id = ?`, id,
	).Scan(&optionsID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return apperror.NotFound("account", id)
		}
		return fmt.Errorf("sqlite: looking up account %s for delete: %w", id, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM accounts WHERE id = ?`, id); err != nil {
		return fmt.Errorf("sqlite: deleting account %s: %w", id, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM account_options WHERE id = ?`, optionsID); err != nil {
		return fmt.Errorf("sqlite: deleting options for account %s: %w", id, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: committing delete of account %s: %w", id, err)
	}
	return nil
}

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*model.Account, error) {
	var a model.Account
	err := row.Scan(
		&a.ID,
		&a.Name,
		&a.Email,
		&a.PasswordHash,
		&a.OptionsID,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// isUniqueViolation detects SQLite unique-index failures. modernc.org/sqlite
// surfaces them as plain errors carrying the standard SQLite message, so the
// message text is the only portable signal.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
