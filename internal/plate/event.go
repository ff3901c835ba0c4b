package plate

import (
	"time"

	"github.com/MeKo-Tech/plategate/internal/utils"
)

// Event is one accepted plate read, as handed to the notifier and sinks.
type Event struct {
	ID         string    `json:"id,omitempty"`
	Plate      string    `json:"plate"`
	Confidence float64   `json:"confidence"`
	Box        utils.Box `json:"bbox"`
	Direction  Direction `json:"direction"`
	ParkingID  int64     `json:"parking_id"`
	CameraID   int64     `json:"camera_id"`
	Timestamp  time.Time `json:"timestamp"`
	Delivered  bool      `json:"sent_to_service"`
}
