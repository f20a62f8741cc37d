package directory

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	ErrNotFound       = errors.New("doctor not found")
	ErrDuplicateEmail = errors.New("a doctor with this email already exists")
)

type DoctorRepository interface {
	Create(ctx context.Context, d *Doctor) error
	GetByID(ctx context.Context, id uuid.UUID) (*Doctor, error)
	// List returns doctors ordered by name. An empty speciality matches all.
	List(ctx context.Context, speciality string, limit, offset int) ([]*Doctor, int, error)
	SetAvailability(ctx context.Context, id uuid.UUID, available bool) (*Doctor, error)
}
