package reconcile

import (
	"fmt"
	"math"
	"time"

	"github.com/IndustriasCannon/shipwatch/internal/integrations/provider"
	"github.com/IndustriasCannon/shipwatch/internal/models"
)

// Пороговые значения задержки в часах.
const (
	delayAlertThreshold    = 24
	delayCriticalThreshold = 72
)

// Outcome — результат одного прохода сверки: частичное обновление отправки
// и алерты, которые нужно создать. Никакого I/O здесь нет.
type Outcome struct {
	Updates models.ShipmentUpdate
	Alerts  []models.AlertInput
}

// Reconcile сравнивает сохранённое состояние отправки с результатом трекинга
// и решает, что изменилось. Чистая функция от двух входов и текущего времени.
//
// Правила применяются в фиксированном порядке, staged-записи поздних правил
// перекрывают ранние: отправка может в одном проходе получить и delay, и
// arrival — статус в итоге будет arrived.
//
// Если ATA уже установлен, отправка финальна: обновляются только метаданные
// трекинга, алерты не создаются и статус больше не меняется.
func Reconcile(sh *models.Shipment, tr *provider.TrackingResult, now time.Time) Outcome {
	var out Outcome

	// 1. Метаданные трекинга — безусловно.
	out.Updates.TrackingStatus = strPtr(tr.Status.Description)
	out.Updates.CurrentLocation = strPtr(tr.Status.Location)
	out.Updates.LastTrackingUpdate = timePtr(now)

	if sh.ATA != nil {
		return out
	}

	// Фактическое отправление — без алерта, просто фиксируем.
	if tr.Schedule.ATD != nil && sh.ETDActual == nil {
		out.Updates.ETDActual = timePtr(*tr.Schedule.ATD)
	}

	// 2. Смена ETA. Сравниваем по значению с текущим сохранённым ETA, поэтому
	// повторный одинаковый ответ провайдера второй раз алерт не даёт.
	if tr.Schedule.ETA != nil && !equalTime(sh.ETACurrent, tr.Schedule.ETA) {
		out.Updates.ETACurrent = timePtr(*tr.Schedule.ETA)
		out.Alerts = append(out.Alerts, models.AlertInput{
			ShipmentID: sh.ID,
			AlertType:  models.AlertTypeETAChange,
			Severity:   models.SeverityMedium,
			Title:      fmt.Sprintf("ETA Change - %s", sh.ContainerNumber),
			Message:    fmt.Sprintf("ETA updated from %s to %s", formatETA(sh.ETACurrent), tr.Schedule.ETA.Format(time.RFC3339)),
		})
	}

	// 3. Детект задержки относительно исходного ETA.
	if tr.Schedule.ETA != nil && sh.ETAOriginal != nil {
		delayHours := int(math.Floor(tr.Schedule.ETA.Sub(*sh.ETAOriginal).Hours()))
		if delayHours > delayAlertThreshold && !isAlreadyFlagged(sh.Status) {
			status := models.ShipmentStatusDelayed
			severity := models.SeverityHigh
			title := fmt.Sprintf("Delay Detected - %s", sh.ContainerNumber)
			if delayHours > delayCriticalThreshold {
				status = models.ShipmentStatusCritical
				severity = models.SeverityCritical
				title = fmt.Sprintf("Critical Delay - %s", sh.ContainerNumber)
			}
			out.Updates.Status = strPtr(status)
			out.Alerts = append(out.Alerts, models.AlertInput{
				ShipmentID: sh.ID,
				AlertType:  models.AlertTypeDelay,
				Severity:   severity,
				Title:      title,
				Message: fmt.Sprintf("Delayed by %d hours. Original ETA: %s, current ETA: %s",
					delayHours, sh.ETAOriginal.Format("2006-01-02"), tr.Schedule.ETA.Format("2006-01-02")),
			})
		}
	}

	// 4. Прибытие: перекрывает статус, staged правилом 3.
	if tr.Schedule.ATA != nil {
		out.Updates.ATA = timePtr(*tr.Schedule.ATA)
		out.Updates.Status = strPtr(models.ShipmentStatusArrived)
		out.Alerts = append(out.Alerts, models.AlertInput{
			ShipmentID: sh.ID,
			AlertType:  models.AlertTypeArrival,
			Severity:   models.SeverityLow,
			Title:      fmt.Sprintf("Arrival Confirmed - %s", sh.ContainerNumber),
			Message:    fmt.Sprintf("Container arrived on %s", tr.Schedule.ATA.Format("2006-01-02")),
		})
	}

	return out
}

func isAlreadyFlagged(status string) bool {
	return status == models.ShipmentStatusDelayed ||
		status == models.ShipmentStatusCritical ||
		status == models.ShipmentStatusArrived
}

func equalTime(a *time.Time, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

func formatETA(t *time.Time) string {
	if t == nil {
		return "N/A"
	}
	return t.Format(time.RFC3339)
}

func strPtr(s string) *string       { return &s }
func timePtr(t time.Time) *time.Time { return &t }
