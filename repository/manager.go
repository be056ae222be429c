package repository

import (
	"context"
	"database/sql"
	"errors"
	"log"

	"github.com/uptrace/bun"
)

// Manager groups the Bun repositories sharing one database
type Manager struct {
	db       *bun.DB
	profiles *ProfileRepository
	accounts *AccountRepository
}

// NewRepositoryManager creates the repositories for db
func NewRepositoryManager(db *bun.DB) *Manager {
	return &Manager{
		db:       db,
		profiles: NewProfileRepository(db),
		accounts: NewAccountRepository(db),
	}
}

func (m *Manager) Validate() error {
	if m.db == nil {
		return errors.New("repository db should be initialized")
	}

	if m.profiles == nil {
		return errors.New("repository profiles should be initialized")
	}

	if m.accounts == nil {
		return errors.New("repository accounts should be initialized")
	}

	return nil
}

func (m *Manager) MustValidate() {
	if err := m.Validate(); err != nil {
		log.Panic(err)
	}
}

// CreateSchema creates the profile and account tables if missing
func (m *Manager) CreateSchema(ctx context.Context) error {
	models := []any{
		(*ProfileModel)(nil),
		(*AccountModel)(nil),
	}
	for _, model := range models {
		_, err := m.db.NewCreateTable().
			Model(model).
			IfNotExists().
			Exec(ctx)
		if err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return m.db.RunInTx(ctx, opts, f)
	}
}

func (m *Manager) Profiles() *ProfileRepository {
	return m.profiles
}

func (m *Manager) Accounts() *AccountRepository {
	return m.accounts
}
