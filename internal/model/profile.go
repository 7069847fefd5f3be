package model

import (
	"time"

	"github.com/google/uuid"
)

type Profile struct {
	UserID    uuid.UUID `db:"user_id"`
	Name      string    `db:"name"`
	AvatarURL *string   `db:"avatar_url"`
	Bio       *string   `db:"bio"`
	Headline  *string   `db:"headline"`
	Location  *string   `db:"location"`
	Website   *string   `db:"website"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

type ProfileUpdate struct {
	Name      *string
	AvatarURL *string
	Bio       *string
	Headline  *string
	Location  *string
	Website   *string
}

func (p *Profile) Apply(u ProfileUpdate) {
	if u.Name != nil {
		p.Name = *u.Name
	}
	if u.AvatarURL != nil {
		p.AvatarURL = emptyToNil(*u.AvatarURL)
	}
	if u.Bio != nil {
		p.Bio = emptyToNil(*u.Bio)
	}
	if u.Headline != nil {
		p.Headline = emptyToNil(*u.Headline)
	}
	if u.Location != nil {
		p.Location = emptyToNil(*u.Location)
	}
	if u.Website != nil {
		p.Website = emptyToNil(*u.Website)
	}
}

func emptyToNil(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
