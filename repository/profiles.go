package repository

import (
	"context"
	"database/sql"
	"errors"
	"maps"
	"time"

	authsession "github.com/goliatone/go-authsession"
	"github.com/uptrace/bun"
)

// ProfileModel is the Bun model for profile documents.
type ProfileModel struct {
	bun.BaseModel `bun:"table:auth_profiles,alias:ap"`

	ID          string         `bun:"id,pk"`
	Email       string         `bun:"email"`
	DisplayName string         `bun:"display_name"`
	Role        string         `bun:"role"`
	Metadata    map[string]any `bun:"metadata,type:jsonb"`
	CreatedAt   *time.Time     `bun:"created_at"`
	LastLogin   *time.Time     `bun:"last_login"`
	UpdatedAt   *time.Time     `bun:"updated_at"`
}

// ProfileRepository implements authsession.ProfileStore using Bun.
type ProfileRepository struct {
	db  *bun.DB
	now func() time.Time
}

var _ authsession.ProfileStore = (*ProfileRepository)(nil)

// NewProfileRepository creates a new repository.
func NewProfileRepository(db *bun.DB) *ProfileRepository {
	return &ProfileRepository{db: db, now: time.Now}
}

// GetProfile implements authsession.ProfileStore.
func (r *ProfileRepository) GetProfile(ctx context.Context, id string) (*authsession.Profile, error) {
	model, err := r.find(ctx, r.db, id)
	if err != nil {
		return nil, err
	}
	return toProfile(model), nil
}

// SetProfile implements authsession.ProfileStore. With merge the update is
// applied to the stored document, otherwise it replaces it.
func (r *ProfileRepository) SetProfile(ctx context.Context, id string, update authsession.ProfileUpdate, merge bool) (*authsession.Profile, error) {
	var out *authsession.Profile
	err := r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		profile := &authsession.Profile{ID: id}
		if merge {
			existing, err := r.find(ctx, tx, id)
			switch {
			case err == nil:
				profile = toProfile(existing)
			case !authsession.IsProfileNotFound(err):
				return err
			}
		}

		update.Apply(profile)
		now := r.now()
		profile.UpdatedAt = &now

		if err := r.upsert(ctx, tx, fromProfile(profile)); err != nil {
			return err
		}
		out = profile
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateProfile implements authsession.ProfileStore. Missing documents
// return authsession.ErrProfileNotFound.
func (r *ProfileRepository) UpdateProfile(ctx context.Context, id string, update authsession.ProfileUpdate) (*authsession.Profile, error) {
	var out *authsession.Profile
	err := r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		existing, err := r.find(ctx, tx, id)
		if err != nil {
			return err
		}

		profile := toProfile(existing)
		update.Apply(profile)
		now := r.now()
		profile.UpdatedAt = &now

		_, err = tx.NewUpdate().
			Model(fromProfile(profile)).
			WherePK().
			Exec(ctx)
		if err != nil {
			return err
		}
		out = profile
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *ProfileRepository) find(ctx context.Context, db bun.IDB, id string) (*ProfileModel, error) {
	var model ProfileModel
	err := db.NewSelect().
		Model(&model).
		Where("ap.id = ?", id).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, authsession.ErrProfileNotFound.Clone().WithMetadata(map[string]any{
				"id": id,
			})
		}
		return nil, err
	}
	return &model, nil
}

func (r *ProfileRepository) upsert(ctx context.Context, db bun.IDB, model *ProfileModel) error {
	_, err := db.NewInsert().
		Model(model).
		On("CONFLICT (id) DO UPDATE").
		Set("email = EXCLUDED.email").
		Set("display_name = EXCLUDED.display_name").
		Set("role = EXCLUDED.role").
		Set("metadata = EXCLUDED.metadata").
		Set("created_at = EXCLUDED.created_at").
		Set("last_login = EXCLUDED.last_login").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	return err
}

func toProfile(m *ProfileModel) *authsession.Profile {
	p := &authsession.Profile{
		ID:          m.ID,
		Email:       m.Email,
		DisplayName: m.DisplayName,
		Role:        authsession.Role(m.Role),
		CreatedAt:   m.CreatedAt,
		LastLogin:   m.LastLogin,
		UpdatedAt:   m.UpdatedAt,
	}
	if len(m.Metadata) > 0 {
		p.Metadata = maps.Clone(m.Metadata)
	}
	return p
}

func fromProfile(p *authsession.Profile) *ProfileModel {
	metadata := map[string]any{}
	if p.Metadata != nil {
		metadata = maps.Clone(p.Metadata)
	}
	return &ProfileModel{
		ID:          p.ID,
		Email:       p.Email,
		DisplayName: p.DisplayName,
		Role:        string(p.Role),
		Metadata:    metadata,
		CreatedAt:   p.CreatedAt,
		LastLogin:   p.LastLogin,
		UpdatedAt:   p.UpdatedAt,
	}
}
