package member

import "time"

// Deleted flag values. Members are soft-deleted: the row stays until the
// maintenance purge removes it.
const (
	NotDeleted = "N"
	Deleted    = "Y"
)

// DefaultRoleName is assigned to every member created through signup.
const DefaultRoleName = "ROLE_USER"

type Member struct {
	ID           int64
	Email        string
	PasswordHash string
	Name         string
	Tel          string
	Birth        string
	Deleted      string
	Roles        []string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (m Member) IsDeleted() bool {
	return m.Deleted == Deleted
}
