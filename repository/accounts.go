package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
)

// ErrRecordNotFound is returned when a lookup matches no row
var ErrRecordNotFound = goerrors.New("record not found", goerrors.CategoryNotFound).
	WithTextCode("RECORD_NOT_FOUND").
	WithCode(goerrors.CodeNotFound)

// ErrDuplicateRecord is returned when an insert violates a unique column
var ErrDuplicateRecord = goerrors.New("duplicate record", goerrors.CategoryConflict).
	WithTextCode("DUPLICATE_RECORD").
	WithCode(goerrors.CodeConflict)

// IsRecordNotFound reports whether err is, or wraps, ErrRecordNotFound
func IsRecordNotFound(err error) bool {
	return hasTextCode(err, ErrRecordNotFound.TextCode)
}

// IsDuplicateRecord reports whether err is, or wraps, ErrDuplicateRecord
func IsDuplicateRecord(err error) bool {
	return hasTextCode(err, ErrDuplicateRecord.TextCode)
}

func hasTextCode(err error, code string) bool {
	var richErr *goerrors.Error
	return err != nil && goerrors.As(err, &richErr) && richErr.TextCode == code
}

// AccountModel is the Bun model for local credential accounts.
type AccountModel struct {
	bun.BaseModel `bun:"table:auth_accounts,alias:acc"`

	ID            string     `bun:"id,pk"`
	Email         string     `bun:"email,notnull,unique"`
	PasswordHash  string     `bun:"password_hash,notnull"`
	DisplayName   string     `bun:"display_name"`
	PhotoURL      string     `bun:"photo_url"`
	EmailVerified bool       `bun:"email_verified,notnull"`
	Disabled      bool       `bun:"disabled,notnull"`
	LoginAttempts int        `bun:"login_attempts,notnull"`
	LastAttemptAt *time.Time `bun:"last_attempt_at"`
	LoggedInAt    *time.Time `bun:"loggedin_at"`
	CreatedAt     time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt     time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

// AccountRepository stores local credential accounts.
type AccountRepository struct {
	db *bun.DB
}

// NewAccountRepository creates a new repository.
func NewAccountRepository(db *bun.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

func (r *AccountRepository) Create(ctx context.Context, account *AccountModel) error {
	return r.CreateTx(ctx, r.db, account)
}

// CreateTx inserts account. A taken email returns ErrDuplicateRecord.
func (r *AccountRepository) CreateTx(ctx context.Context, tx bun.IDB, account *AccountModel) error {
	account.Email = normalizeEmail(account.Email)

	exists, err := tx.NewSelect().
		Model((*AccountModel)(nil)).
		Where("acc.email = ?", account.Email).
		Exists(ctx)
	if err != nil {
		return err
	}
	if exists {
		return ErrDuplicateRecord.Clone().WithMetadata(map[string]any{
			"email": account.Email,
		})
	}

	now := time.Now()
	if account.CreatedAt.IsZero() {
		account.CreatedAt = now
	}
	account.UpdatedAt = now

	_, err = tx.NewInsert().Model(account).Exec(ctx)
	if err != nil && strings.Contains(strings.ToLower(err.Error()), "unique") {
		return ErrDuplicateRecord.Clone().WithMetadata(map[string]any{
			"email": account.Email,
		})
	}
	return err
}

func (r *AccountRepository) GetByEmail(ctx context.Context, email string) (*AccountModel, error) {
	return r.getBy(ctx, r.db, "email", normalizeEmail(email))
}

func (r *AccountRepository) GetByID(ctx context.Context, id string) (*AccountModel, error) {
	return r.getBy(ctx, r.db, "id", strings.TrimSpace(id))
}

func (r *AccountRepository) getBy(ctx context.Context, tx bun.IDB, column, value string) (*AccountModel, error) {
	record := &AccountModel{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.? = ?", bun.Ident(column), value).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRecordNotFound.Clone().WithMetadata(map[string]any{
				column: value,
			})
		}
		return nil, err
	}
	return record, nil
}

// TrackAttemptedLogin increments the failed attempt counter
func (r *AccountRepository) TrackAttemptedLogin(ctx context.Context, account *AccountModel, at time.Time) error {
	_, err := r.db.NewUpdate().
		Model((*AccountModel)(nil)).
		Set("login_attempts = login_attempts + 1").
		Set("last_attempt_at = ?", at).
		Set("updated_at = ?", at).
		Where("id = ?", account.ID).
		Exec(ctx)
	if err == nil {
		account.LoginAttempts++
		account.LastAttemptAt = &at
	}
	return err
}

// TrackSuccessfulLogin resets the attempt counter and stamps the login time
func (r *AccountRepository) TrackSuccessfulLogin(ctx context.Context, account *AccountModel, at time.Time) error {
	_, err := r.db.NewUpdate().
		Model((*AccountModel)(nil)).
		Set("login_attempts = 0").
		Set("last_attempt_at = NULL").
		Set("loggedin_at = ?", at).
		Set("updated_at = ?", at).
		Where("id = ?", account.ID).
		Exec(ctx)
	if err == nil {
		account.LoginAttempts = 0
		account.LastAttemptAt = nil
		account.LoggedInAt = &at
	}
	return err
}

func (r *AccountRepository) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	return r.updateColumn(ctx, id, "password_hash", passwordHash)
}

func (r *AccountRepository) UpdateDisplayName(ctx context.Context, id, displayName string) error {
	return r.updateColumn(ctx, id, "display_name", displayName)
}

func (r *AccountRepository) SetDisabled(ctx context.Context, id string, disabled bool) error {
	return r.updateColumn(ctx, id, "disabled", disabled)
}

func (r *AccountRepository) updateColumn(ctx context.Context, id, column string, value any) error {
	res, err := r.db.NewUpdate().
		Model((*AccountModel)(nil)).
		Set("? = ?", bun.Ident(column), value).
		Set("updated_at = ?", time.Now()).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return err
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrRecordNotFound.Clone().WithMetadata(map[string]any{
			"id": id,
		})
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
