package models

import "time"

// Статусы отправки. Переходы монотонные: delayed/critical только из in_transit,
// из arrived возврата нет.
const (
	ShipmentStatusPending   = "pending"
	ShipmentStatusInTransit = "in_transit"
	ShipmentStatusDelayed   = "delayed"
	ShipmentStatusCritical  = "critical"
	ShipmentStatusArrived   = "arrived"
)

const (
	AlertTypeETAChange = "eta_change"
	AlertTypeDelay     = "delay"
	AlertTypeArrival   = "arrival"
)

const (
	SeverityLow      = "low"
	SeverityMedium   = "medium"
	SeverityHigh     = "high"
	SeverityCritical = "critical"
)

type Shipment struct {
	ID              uint64
	ContainerNumber string
	BLNumber        string

	CarrierID         *uint64
	SupplierID        *uint64
	VesselID          *uint64
	OriginPortID      *uint64
	DestinationPortID *uint64

	ETDOriginal *time.Time
	ETDActual   *time.Time
	ETAOriginal *time.Time
	ETACurrent  *time.Time
	ATA         *time.Time

	Status string

	TrackingStatus     *string
	CurrentLocation    *string
	LastTrackingUpdate *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// ShipmentUpdate — частичное обновление; nil-поля не трогаем.
type ShipmentUpdate struct {
	Status             *string
	TrackingStatus     *string
	CurrentLocation    *string
	LastTrackingUpdate *time.Time
	ETDActual          *time.Time
	ETACurrent         *time.Time
	ATA                *time.Time
}

func (u ShipmentUpdate) IsEmpty() bool {
	return u.Status == nil &&
		u.TrackingStatus == nil &&
		u.CurrentLocation == nil &&
		u.LastTrackingUpdate == nil &&
		u.ETDActual == nil &&
		u.ETACurrent == nil &&
		u.ATA == nil
}

type ShipmentCreateInput struct {
	ContainerNumber string
	BLNumber        string
	VesselID        *uint64
	ETDOriginal     *time.Time
	ETAOriginal     *time.Time
}

type Alert struct {
	ID         uint64
	ShipmentID uint64
	AlertType  string
	Severity   string
	Title      string
	Message    string
	IsRead     bool
	IsResolved bool
	CreatedAt  time.Time
}

type AlertInput struct {
	ShipmentID uint64
	AlertType  string
	Severity   string
	Title      string
	Message    string
}

type Vessel struct {
	ID        uint64
	Name      string
	IMONumber *string
	MMSI      *string

	CurrentLatitude  *float64
	CurrentLongitude *float64
	CurrentSpeed     *float64
	CurrentHeading   *float64

	LastPositionUpdate *time.Time
	CreatedAt          time.Time
}

// VesselPositionUpdate не использует указатели: нулевые координаты
// отбрасываются ещё на этапе нормализации провайдера.
type VesselPositionUpdate struct {
	Latitude  float64
	Longitude float64
	Speed     float64
	Heading   float64
}
