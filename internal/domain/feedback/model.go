package feedback

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hms/hms/internal/platform/validation"
)

type Feedback struct {
	ID        uuid.UUID `db:"id" json:"id"`
	UserID    uuid.UUID `db:"user_id" json:"user_id"`
	Username  string    `db:"username" json:"username,omitempty"`
	Rating    int       `db:"rating" json:"rating" validate:"min=1,max=5"`
	Message   string    `db:"message" json:"message" validate:"max=2000"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

func (f *Feedback) Validate() error {
	f.Message = strings.TrimSpace(f.Message)
	if err := validation.Struct(f); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}
