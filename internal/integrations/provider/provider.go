package provider

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
)

// ErrNotFound — провайдер ответил, но контейнер ему не известен.
// Это нормальный негативный результат, не ошибка провайдера.
var ErrNotFound = errors.New("provider: container not found")

// FetchError — любой не-2xx ответ провайдера. Клиент не ретраит сам,
// ретраи/изоляция — ответственность оркестратора.
type FetchError struct {
	Status int
	Body   string
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("provider http %d: %s", e.Status, e.Body)
}

type StatusInfo struct {
	Code        string
	Description string
	Location    string
	Timestamp   *time.Time
}

type Schedule struct {
	ETD *time.Time
	ETA *time.Time
	ATD *time.Time
	ATA *time.Time
}

type Event struct {
	EventType   string
	EventName   string
	Location    string
	Timestamp   time.Time
	IsEstimated bool
}

type VesselRef struct {
	Name string
	IMO  string
}

// TrackingResult — каноническая форма ответа трекинга, одна на контейнер
// на один опрос. Провайдерские форматы приводятся к ней нормализацией.
type TrackingResult struct {
	ContainerNumber string
	Status          StatusInfo
	Schedule        Schedule
	Events          []Event
	Vessel          *VesselRef
}

type VesselPosition struct {
	IMO         string
	MMSI        string
	Name        string
	Latitude    float64
	Longitude   float64
	Speed       float64
	Course      float64
	Heading     float64
	Destination string
	Timestamp   time.Time
}

type Client interface {
	TrackContainer(ctx context.Context, containerNumber string) (*TrackingResult, error)
	TrackBatch(ctx context.Context, containerNumbers []string) ([]TrackingResult, error)
	VesselPositions(ctx context.Context, imos []string) ([]VesselPosition, error)
}
