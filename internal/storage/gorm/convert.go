package gormstorage

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"

	"github.com/coldchain/trucksim/internal/model"
	"github.com/coldchain/trucksim/pkg/core"
)

// CustomerToModel converts a dispatch table entry at position i.
func CustomerToModel(i int, c core.Customer) model.Customer {
	return model.Customer{
		Position: i,
		Name:     c.Name,
		Lon:      c.Location.Lon,
		Lat:      c.Location.Lat,
	}
}

// ModelToCustomer converts a customer row.
func ModelToCustomer(m model.Customer) core.Customer {
	return core.Customer{
		Name:     m.Name,
		Location: core.Location{Lon: m.Lon, Lat: m.Lat},
	}
}

// TelemetryToModel converts a telemetry record to its table row.
func TelemetryToModel(rec core.TelemetryRecord) model.TelemetrySample {
	return model.TelemetrySample{
		Time:                rec.Time,
		TruckID:             rec.TruckID,
		ContentsTemperature: rec.ContentsTemperature,
		TruckState:          rec.TruckState,
		CoolingSystemState:  rec.CoolingSystemState,
		ContentsState:       rec.ContentsState,
		Lon:                 rec.Location.Lon,
		Lat:                 rec.Location.Lat,
		Event:               rec.Event,
		CargoCondition:      rec.CargoCondition,
		Alarm:               rec.Alarm,
	}
}

// PropertiesToModel encodes each property value as JSON.
func PropertiesToModel(deviceID string, props core.Properties, now time.Time) ([]model.ReportedProperty, error) {
	rows := make([]model.ReportedProperty, 0, len(props))
	for name, v := range props {
		data, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("failed to encode property %s: %w", name, err)
		}
		rows = append(rows, model.ReportedProperty{
			DeviceID:  deviceID,
			Name:      name,
			Value:     datatypes.JSON(data),
			UpdatedAt: now,
		})
	}
	return rows, nil
}

// ModelToProperties decodes property rows. Numbers come back as float64.
func ModelToProperties(rows []model.ReportedProperty) (core.Properties, error) {
	props := make(core.Properties, len(rows))
	for _, r := range rows {
		var v any
		if err := json.Unmarshal(r.Value, &v); err != nil {
			return nil, fmt.Errorf("failed to decode property %s: %w", r.Name, err)
		}
		props[r.Name] = v
	}
	return props, nil
}
