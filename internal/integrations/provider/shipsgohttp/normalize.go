package shipsgohttp

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/IndustriasCannon/shipwatch/internal/integrations/provider"
)

// Провайдер не гарантирует единый конверт ответа: полезная нагрузка может
// лежать под "data", под именем сущности или прямо в корне.
func unwrapObject(body []byte, keys ...string) (json.RawMessage, error) {
	var env map[string]json.RawMessage
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("unexpected provider payload: %v", err)
	}
	for _, k := range keys {
		if raw, ok := env[k]; ok && len(raw) > 0 && string(raw) != "null" {
			return raw, nil
		}
	}
	return body, nil
}

func unwrapArray(body []byte, keys ...string) (json.RawMessage, error) {
	trimmed := firstNonSpace(body)
	if trimmed == '[' {
		return body, nil
	}
	var env map[string]json.RawMessage
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("unexpected provider payload: %v", err)
	}
	for _, k := range keys {
		if raw, ok := env[k]; ok && len(raw) > 0 && firstNonSpace(raw) == '[' {
			return raw, nil
		}
	}
	return json.RawMessage("[]"), nil
}

func firstNonSpace(b []byte) byte {
	for _, c := range b {
		switch c {
		case ' ', '\t', '\n', '\r':
			continue
		}
		return c
	}
	return 0
}

type rawContainer struct {
	ContainerNumber  string `json:"containerNumber"`
	ContainerNumber2 string `json:"container_number"`

	BLNumber string `json:"blNumber"`

	Status struct {
		Code        string `json:"code"`
		Description string `json:"description"`
		Location    string `json:"location"`
		Timestamp   string `json:"timestamp"`
	} `json:"status"`

	Schedule struct {
		ETD string `json:"etd"`
		ETA string `json:"eta"`
		ATD string `json:"atd"`
		ATA string `json:"ata"`
	} `json:"schedule"`

	Events []struct {
		EventType   string `json:"eventType"`
		EventName   string `json:"eventName"`
		Location    string `json:"location"`
		Timestamp   string `json:"timestamp"`
		IsEstimated bool   `json:"isEstimated"`
	} `json:"events"`

	Vessel struct {
		Name string `json:"name"`
		IMO  string `json:"imo"`
	} `json:"vessel"`
}

func normalizeContainer(rc rawContainer) provider.TrackingResult {
	res := provider.TrackingResult{
		ContainerNumber: coalesce(rc.ContainerNumber, rc.ContainerNumber2),
		Status: provider.StatusInfo{
			Code:        rc.Status.Code,
			Description: rc.Status.Description,
			Location:    rc.Status.Location,
			Timestamp:   parseTimePtr(rc.Status.Timestamp),
		},
		Schedule: provider.Schedule{
			ETD: parseTimePtr(rc.Schedule.ETD),
			ETA: parseTimePtr(rc.Schedule.ETA),
			ATD: parseTimePtr(rc.Schedule.ATD),
			ATA: parseTimePtr(rc.Schedule.ATA),
		},
	}

	for _, e := range rc.Events {
		ts := parseTimePtr(e.Timestamp)
		if ts == nil {
			continue
		}
		res.Events = append(res.Events, provider.Event{
			EventType:   e.EventType,
			EventName:   e.EventName,
			Location:    e.Location,
			Timestamp:   *ts,
			IsEstimated: e.IsEstimated,
		})
	}

	if rc.Vessel.IMO != "" || rc.Vessel.Name != "" {
		res.Vessel = &provider.VesselRef{Name: rc.Vessel.Name, IMO: rc.Vessel.IMO}
	}
	return res
}

// Алиасы полей позиции, в порядке приоритета. AIS-источники присылают
// то PascalCase, то camelCase, то сокращения.
var (
	latAliases     = []string{"Latitude", "latitude", "lat", "Lat"}
	lonAliases     = []string{"Longitude", "longitude", "lon", "Lon", "lng"}
	imoAliases     = []string{"Imo", "imo", "IMO", "ImoNumber"}
	mmsiAliases    = []string{"Mmsi", "mmsi", "MMSI"}
	speedAliases   = []string{"Sog", "sog", "SOG", "speed", "Speed"}
	courseAliases  = []string{"Cog", "cog", "COG", "course", "Course"}
	headingAliases = []string{"Heading", "heading", "TrueHeading"}
	nameAliases    = []string{"ShipName", "shipName", "VesselName", "vesselName", "name", "Name"}
	destAliases    = []string{"Destination", "destination"}
	tsAliases      = []string{"Timestamp", "timestamp", "TimeStamp"}
)

// normalizePosition приводит duck-typed запись к канонической позиции.
// Ноль — сентинел "нет данных": пара нулевых координат или пустой/нулевой
// IMO означает невалидную запись, она отбрасывается.
func normalizePosition(m map[string]any) (provider.VesselPosition, bool) {
	pos := provider.VesselPosition{
		IMO:         pickString(m, imoAliases...),
		MMSI:        pickString(m, mmsiAliases...),
		Name:        pickString(m, nameAliases...),
		Latitude:    pickFloat(m, latAliases...),
		Longitude:   pickFloat(m, lonAliases...),
		Speed:       pickFloat(m, speedAliases...),
		Course:      pickFloat(m, courseAliases...),
		Heading:     pickFloat(m, headingAliases...),
		Destination: pickString(m, destAliases...),
	}

	if ts := parseTimePtr(pickString(m, tsAliases...)); ts != nil {
		pos.Timestamp = *ts
	}

	if pos.Latitude == 0 && pos.Longitude == 0 {
		return provider.VesselPosition{}, false
	}
	if pos.IMO == "" || pos.IMO == "0" {
		return provider.VesselPosition{}, false
	}
	return pos, true
}

func pickFloat(m map[string]any, keys ...string) float64 {
	for _, k := range keys {
		v, ok := m[k]
		if !ok {
			continue
		}
		switch n := v.(type) {
		case float64:
			return n
		case json.Number:
			if f, err := n.Float64(); err == nil {
				return f
			}
		}
	}
	return 0
}

func pickString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		v, ok := m[k]
		if !ok {
			continue
		}
		switch s := v.(type) {
		case string:
			return s
		case float64:
			// MMSI/IMO иногда приходят числом.
			return fmt.Sprintf("%.0f", s)
		}
	}
	return ""
}

var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parseTimePtr(s string) *time.Time {
	if s == "" {
		return nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}

func coalesce(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
