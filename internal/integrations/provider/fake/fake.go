package fake

import (
	"context"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/IndustriasCannon/shipwatch/internal/integrations/provider"
)

// FakeClient — детерминированная заглушка провайдера для локальной разработки
// и тестов. Судьба контейнера выводится из его номера: часть "прибыла",
// часть "опаздывает", остальные идут по расписанию.
type FakeClient struct{}

func New() *FakeClient { return &FakeClient{} }

func (f *FakeClient) TrackContainer(ctx context.Context, containerNumber string) (*provider.TrackingResult, error) {
	res := f.build(containerNumber)
	return &res, nil
}

func (f *FakeClient) TrackBatch(ctx context.Context, containerNumbers []string) ([]provider.TrackingResult, error) {
	out := make([]provider.TrackingResult, 0, len(containerNumbers))
	for _, cn := range containerNumbers {
		out = append(out, f.build(cn))
	}
	return out, nil
}

func (f *FakeClient) VesselPositions(ctx context.Context, imos []string) ([]provider.VesselPosition, error) {
	now := time.Now().UTC()
	out := make([]provider.VesselPosition, 0, len(imos))
	for i, imo := range imos {
		if imo == "" || imo == "0" {
			continue
		}
		out = append(out, provider.VesselPosition{
			IMO:       imo,
			Name:      fmt.Sprintf("MV FAKE %d", i+1),
			Latitude:  10.4 + float64(hashOf(imo)%100)/100,
			Longitude: -75.5 - float64(hashOf(imo)%100)/100,
			Speed:     float64(hashOf(imo) % 20),
			Heading:   float64(hashOf(imo) % 360),
			Timestamp: now,
		})
	}
	return out, nil
}

func (f *FakeClient) build(containerNumber string) provider.TrackingResult {
	now := time.Now().UTC()
	v := hashOf(containerNumber)

	res := provider.TrackingResult{
		ContainerNumber: containerNumber,
		Status: provider.StatusInfo{
			Code:        "SEA",
			Description: "In transit",
			Location:    "At sea",
			Timestamp:   &now,
		},
	}

	eta := now.Add(7 * 24 * time.Hour).Truncate(time.Hour)
	res.Schedule.ETA = &eta

	switch v % 5 {
	case 0:
		// Прибывшие.
		ata := now.Add(-2 * time.Hour)
		res.Schedule.ATA = &ata
		res.Status.Code = "ARR"
		res.Status.Description = "Arrived at destination"
		res.Status.Location = "Cartagena"
	case 1:
		// Сильно опаздывающие: ETA уезжает на 4 суток вперёд.
		late := eta.Add(96 * time.Hour)
		res.Schedule.ETA = &late
		res.Status.Description = "Delayed at transshipment"
	}

	res.Events = append(res.Events, provider.Event{
		EventType: "UPDATE",
		EventName: "fake provider update",
		Location:  res.Status.Location,
		Timestamp: now,
	})
	return res
}

func hashOf(s string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(s))
	return h.Sum32()
}
