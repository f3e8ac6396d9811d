package model

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

////////////////////////
// DATABASE STRUCTURES //
////////////////////////

// DatabaseModels is a list of all the structs exported here which represent tables in the database schema
var DatabaseModels = []interface{}{
	&Customer{},
	&ReportedProperty{},
	&TelemetrySample{},
}

////////////////////////
// DISPATCH
////////////////////////

// Customer is one row of the dispatch table. Position is the index accepted
// by GoToCustomer.
type Customer struct {
	gorm.Model
	Position int     `json:"position" gorm:"uniqueIndex:idx_customer_position"`
	Name     string  `json:"name" gorm:"size:127"`
	Lon      float64 `json:"lon"`
	Lat      float64 `json:"lat"`
}

func (*Customer) TableName() string {
	return "customers"
}

////////////////////////
// DEVICE TWIN
////////////////////////

// ReportedProperty is the last reported value of one twin property of a
// device.
type ReportedProperty struct {
	DeviceID  string         `json:"deviceId" gorm:"primaryKey;size:127"`
	Name      string         `json:"name" gorm:"primaryKey;size:127"`
	Value     datatypes.JSON `json:"value"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

func (*ReportedProperty) TableName() string {
	return "reported_properties"
}

////////////////////////
// TELEMETRY
////////////////////////

// TelemetrySample is one persisted telemetry record.
type TelemetrySample struct {
	ID                  uint      `json:"id" gorm:"primarykey;autoIncrement"`
	Time                time.Time `json:"time" gorm:"index:idx_telemetry_time"`
	TruckID             string    `json:"truckId" gorm:"size:127;index:idx_telemetry_truck_id"`
	ContentsTemperature float64   `json:"contentsTemperature"`
	TruckState          string    `json:"truckState" gorm:"size:32"`
	CoolingSystemState  string    `json:"coolingSystemState" gorm:"size:32"`
	ContentsState       string    `json:"contentsState" gorm:"size:32"`
	Lon                 float64   `json:"lon"`
	Lat                 float64   `json:"lat"`
	Event               string    `json:"event" gorm:"size:255"`
	CargoCondition      float64   `json:"cargoCondition"`
	Alarm               bool      `json:"alarm"`
}

func (*TelemetrySample) TableName() string {
	return "telemetry_samples"
}
