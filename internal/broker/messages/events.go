package messages

import "time"

// AlertCreated публикуется воркером после создания алерта; ship-api
// потребляет его для ленты последних алертов дашборда.
type AlertCreated struct {
	AlertID         uint64    `json:"alert_id"`
	ShipmentID      uint64    `json:"shipment_id"`
	ContainerNumber string    `json:"container_number"`
	AlertType       string    `json:"alert_type"`
	Severity        string    `json:"severity"`
	Title           string    `json:"title"`
	Message         string    `json:"message"`
	CreatedAt       time.Time `json:"created_at"`
}

type ShipmentUpdated struct {
	ShipmentID      uint64     `json:"shipment_id"`
	ContainerNumber string     `json:"container_number"`
	Status          string     `json:"status"`
	TrackingStatus  *string    `json:"tracking_status,omitempty"`
	CurrentLocation *string    `json:"current_location,omitempty"`
	ETACurrent      *time.Time `json:"eta_current,omitempty"`
	ATA             *time.Time `json:"ata,omitempty"`
	UpdatedAt       time.Time  `json:"updated_at"`
}
