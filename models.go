package authsession

import (
	"maps"
	"time"
)

// Identity is the normalized authenticated principal
type Identity struct {
	ID            string         `json:"id"`
	Email         string         `json:"email,omitempty"`
	DisplayName   string         `json:"display_name,omitempty"`
	PhotoURL      string         `json:"photo_url,omitempty"`
	EmailVerified bool           `json:"email_verified"`
	Role          Role           `json:"role"`
	CreatedAt     *time.Time     `json:"created_at,omitempty"`
	LastLogin     *time.Time     `json:"last_login,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// HasRole checks the identity role
func (i Identity) HasRole(role Role) bool {
	return i.Role == role
}

// IsAdmin reports whether the identity holds the admin role
func (i Identity) IsAdmin() bool {
	return i.Role.IsAdmin()
}

func (i Identity) clone() Identity {
	out := i
	out.CreatedAt = cloneTime(i.CreatedAt)
	out.LastLogin = cloneTime(i.LastLogin)
	if i.Metadata != nil {
		out.Metadata = maps.Clone(i.Metadata)
	}
	return out
}

// Profile is the extended profile document keyed by identity ID
type Profile struct {
	ID          string         `json:"id"`
	Email       string         `json:"email,omitempty"`
	DisplayName string         `json:"display_name,omitempty"`
	Role        Role           `json:"role,omitempty"`
	CreatedAt   *time.Time     `json:"created_at,omitempty"`
	LastLogin   *time.Time     `json:"last_login,omitempty"`
	UpdatedAt   *time.Time     `json:"updated_at,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// ProfileUpdate is a partial profile write, nil fields are left untouched
type ProfileUpdate struct {
	Email       *string
	DisplayName *string
	Role        *Role
	CreatedAt   *time.Time
	LastLogin   *time.Time
	Metadata    map[string]any
}

// IsEmpty reports whether the update carries no fields
func (u ProfileUpdate) IsEmpty() bool {
	return u.Email == nil &&
		u.DisplayName == nil &&
		u.Role == nil &&
		u.CreatedAt == nil &&
		u.LastLogin == nil &&
		len(u.Metadata) == 0
}

// Apply merges the update into the profile. Metadata keys are merged, not replaced.
func (u ProfileUpdate) Apply(p *Profile) {
	if p == nil {
		return
	}
	if u.Email != nil {
		p.Email = *u.Email
	}
	if u.DisplayName != nil {
		p.DisplayName = *u.DisplayName
	}
	if u.Role != nil {
		p.Role = *u.Role
	}
	if u.CreatedAt != nil {
		p.CreatedAt = cloneTime(u.CreatedAt)
	}
	if u.LastLogin != nil {
		p.LastLogin = cloneTime(u.LastLogin)
	}
	if len(u.Metadata) > 0 {
		if p.Metadata == nil {
			p.Metadata = make(map[string]any, len(u.Metadata))
		}
		maps.Copy(p.Metadata, u.Metadata)
	}
}

// MergeIdentity builds the published Identity. Provider owned fields come
// from the latest provider event, engine owned fields from the document.
// A nil profile yields a provider-only projection with RoleUser.
func MergeIdentity(user ProviderUser, profile *Profile) Identity {
	identity := Identity{
		ID:            user.ID,
		Email:         user.Email,
		DisplayName:   user.DisplayName,
		PhotoURL:      user.PhotoURL,
		EmailVerified: user.EmailVerified,
		Role:          RoleUser,
	}

	if profile == nil {
		return identity
	}

	if identity.Email == "" {
		identity.Email = profile.Email
	}

	if profile.DisplayName != "" {
		identity.DisplayName = profile.DisplayName
	}

	identity.Role = roleOrDefault(profile.Role)
	identity.CreatedAt = cloneTime(profile.CreatedAt)
	identity.LastLogin = cloneTime(profile.LastLogin)
	if profile.Metadata != nil {
		identity.Metadata = maps.Clone(profile.Metadata)
	}

	return identity
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

func ptr[T any](v T) *T {
	return &v
}
