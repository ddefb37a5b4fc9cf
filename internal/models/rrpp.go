package models

import (
	"time"

	"github.com/google/uuid"
)

// RRPP is a promoter/affiliate who drives sales via a referral code.
// Codigo is the attribution key embedded in shared links
// (<event-url>?rrpp=<codigo>).
type RRPP struct {
	ID        uuid.UUID  `json:"id"`
	Codigo    string     `json:"codigo"`
	Nombre    string     `json:"nombre"`
	Redes     string     `json:"redes,omitempty"`
	Telefono  string     `json:"telefono,omitempty"`
	CreatorID uuid.UUID  `json:"creator_id"`
	ProfileID *uuid.UUID `json:"profile_id,omitempty"` // platform account, when the promoter has a login
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// ProfileEvent assigns an RRPP to an event. The active flag only gates
// management views; historical attribution keeps the stored code on the
// purchase row regardless of later unassignment.
type ProfileEvent struct {
	ID        uuid.UUID `json:"id"`
	RRPPID    uuid.UUID `json:"rrpp_id"`
	EventID   uuid.UUID `json:"event_id"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}
