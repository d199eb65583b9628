package messages

import (
	"strconv"
	"time"
)

const EventGuestStatusChanged = "guest.status_changed"

// GuestStatusChanged is published after a guest outcome has been persisted.
type GuestStatusChanged struct {
	GuestID   int64     `json:"guest_id"`
	Passport  string    `json:"passport"`
	BirthDate string    `json:"birth_date"`
	Status    string    `json:"status"`
	Reason    *string   `json:"reason,omitempty"`
	BatchID   string    `json:"batch_id"`
	ChangedAt time.Time `json:"changed_at"`
}

// Key partitions events by guest.
func (m GuestStatusChanged) Key() []byte {
	return []byte(strconv.FormatInt(m.GuestID, 10))
}
