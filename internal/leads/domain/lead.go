package domain

import (
	"time"

	"github.com/google/uuid"
)

// Lead is the aggregate the lifecycle engine operates on. The state machine
// is the only writer of Status, CurrentTouchNumber and NextActionAt.
type Lead struct {
	ID                 uuid.UUID
	Email              string
	CompanyName        string
	ContactName        string
	Phone              string
	Website            string
	Source             string
	LeverageAngle      string
	Status             Status
	CurrentTouchNumber int
	NextActionAt       *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Leverage angles are the sales framings a touch can lead with.
const (
	AngleExpansion = "expansion"
	AngleAlignment = "alignment"
	AngleStability = "stability"
	AngleMargin    = "margin"
	AngleNovelty   = "novelty"
)

// KnownAngles lists the accepted leverage angles in display order.
var KnownAngles = []string{AngleExpansion, AngleAlignment, AngleStability, AngleMargin, AngleNovelty}

// IsKnownAngle reports whether the string is a recognised leverage angle.
func IsKnownAngle(angle string) bool {
	for _, known := range KnownAngles {
		if known == angle {
			return true
		}
	}
	return false
}
