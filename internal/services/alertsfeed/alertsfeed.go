package alertsfeed

import (
	"context"
	"encoding/json"
	"time"

	"github.com/IndustriasCannon/shipwatch/internal/broker/messages"
	"github.com/IndustriasCannon/shipwatch/internal/cache"
	"github.com/pkg/errors"
)

// CacheKey совпадает с ключом, который читает shipments_api.
const CacheKey = "alerts:recent"

type feedAlert struct {
	ID              uint64    `json:"id"`
	ShipmentID      uint64    `json:"shipmentId"`
	ContainerNumber string    `json:"containerNumber,omitempty"`
	AlertType       string    `json:"alertType"`
	Severity        string    `json:"severity"`
	Title           string    `json:"title"`
	Message         string    `json:"message"`
	CreatedAt       time.Time `json:"createdAt"`
}

type feedPayload struct {
	Alerts []feedAlert `json:"alerts"`
}

// Feed держит в redis скользящую ленту последних алертов в том же виде,
// в каком её отдаёт API. Пишет консюмер, читает хендлер.
type Feed struct {
	cache cache.BytesCache
	limit int
	ttl   time.Duration
}

func New(c cache.BytesCache) *Feed {
	return &Feed{cache: c, limit: 20, ttl: 24 * time.Hour}
}

func (f *Feed) WithSettings(limit int, ttl time.Duration) *Feed {
	if limit > 0 {
		f.limit = limit
	}
	if ttl > 0 {
		f.ttl = ttl
	}
	return f
}

// Apply — обработчик kafka-сообщения alert.created.
func (f *Feed) Apply(ctx context.Context, value []byte) error {
	var m messages.AlertCreated
	if err := json.Unmarshal(value, &m); err != nil {
		return errors.Wrap(err, "unmarshal alert event")
	}

	var payload feedPayload
	if b, ok, err := f.cache.Get(ctx, CacheKey); err == nil && ok {
		// Битый кэш просто перезаписываем свежей лентой.
		_ = json.Unmarshal(b, &payload)
	}

	next := make([]feedAlert, 0, f.limit)
	next = append(next, feedAlert{
		ID:              m.AlertID,
		ShipmentID:      m.ShipmentID,
		ContainerNumber: m.ContainerNumber,
		AlertType:       m.AlertType,
		Severity:        m.Severity,
		Title:           m.Title,
		Message:         m.Message,
		CreatedAt:       m.CreatedAt,
	})
	for _, a := range payload.Alerts {
		if len(next) >= f.limit {
			break
		}
		if a.ID == m.AlertID {
			continue
		}
		next = append(next, a)
	}

	b, err := json.Marshal(feedPayload{Alerts: next})
	if err != nil {
		return errors.Wrap(err, "marshal alerts feed")
	}
	return errors.Wrap(f.cache.Set(ctx, CacheKey, b, f.ttl), "store alerts feed")
}
