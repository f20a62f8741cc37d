// Package directory holds the doctors patients can book with.
package directory

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Doctor maps to the doctor table.
type Doctor struct {
	ID          uuid.UUID       `db:"id" json:"id"`
	Name        string          `db:"name" json:"name"`
	Email       string          `db:"email" json:"email"`
	Speciality  string          `db:"speciality" json:"speciality"`
	Degree      string          `db:"degree" json:"degree"`
	Experience  string          `db:"experience" json:"experience"`
	About       string          `db:"about" json:"about"`
	Fees        decimal.Decimal `db:"fees" json:"fees"`
	Address     Address         `json:"address"`
	ImageURL    string          `db:"image_url" json:"image_url,omitempty"`
	Available   bool            `db:"available" json:"available"`
	OpeningHour int             `db:"opening_hour" json:"opening_hour"`
	ClosingHour int             `db:"closing_hour" json:"closing_hour"`
	// Timezone is an IANA name. Empty means the clinic default.
	Timezone  string    `db:"timezone" json:"timezone,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

type Address struct {
	Line1 string `db:"address_line1" json:"line1"`
	Line2 string `db:"address_line2" json:"line2"`
}
