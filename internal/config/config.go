package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/coldchain/trucksim/pkg/core"
)

// FileName is the configuration file looked up in the config directory.
const FileName = "truck_sim.cfg.json"

// SimConfig holds the simulation schedule and physical constants.
type SimConfig struct {
	TickInterval time.Duration
	TimeScale    float64
	Seed         int64
	StartLoading bool

	LoadingTime float64
	DeliverTime float64
	DumpingTime float64

	OptimalTemperature float64
	OutsideTemperature float64
	LoadTemperature    float64
	TooWarmThreshold   float64
	TooWarmTooLong     float64
	FailurePercent     float64

	Speed            float64
	ArrivalTolerance float64

	Base      core.Location
	Customers []core.Customer
}

// CustomerConfig is one entry of sim.customers.
type CustomerConfig struct {
	Name string  `json:"name" mapstructure:"name"`
	Lon  float64 `json:"lon" mapstructure:"lon"`
	Lat  float64 `json:"lat" mapstructure:"lat"`
}

// TelemetryConfig holds the telemetry emitter settings.
type TelemetryConfig struct {
	Interval   time.Duration
	QueueSize  int
	LogRecords bool
	// Store copies each record into the storage backend's sample table.
	Store bool
}

// SQLiteConfig holds the SQLite storage backend settings.
type SQLiteConfig struct {
	Path         string        `json:"path" mapstructure:"path"`
	DumpPath     string        `json:"dumpPath" mapstructure:"dumpPath"`
	DumpInterval time.Duration `json:"dumpInterval" mapstructure:"dumpInterval"`
}

// PostgresConfig holds the Postgres storage backend settings. Connection
// parameters are read from db.*.
type PostgresConfig struct {
	FlushInterval time.Duration `json:"flushInterval" mapstructure:"flushInterval"`
}

// StorageConfig selects the backend for the customer table and reported
// properties: "memory", "sqlite" or "postgres".
type StorageConfig struct {
	Type     string
	SQLite   SQLiteConfig
	Postgres PostgresConfig
}

// HubConfig holds the device hub connection settings.
type HubConfig struct {
	Enabled  bool
	URL      string
	DeviceID string
}

// OTelConfig holds the OpenTelemetry provider settings.
type OTelConfig struct {
	Enabled      bool
	ServiceName  string
	BatchTimeout time.Duration
	Endpoint     string
	Insecure     bool
}

// ControlConfig holds the local HTTP control API settings.
type ControlConfig struct {
	Enabled bool
	Address string
}

// MonitorConfig holds the status file writer settings.
type MonitorConfig struct {
	Enabled    bool
	Interval   time.Duration
	StatusFile string
}

// DefaultCustomers is the dispatch table used when none is configured.
var DefaultCustomers = []CustomerConfig{
	{Name: "Customer 0", Lon: -122.141515, Lat: 47.659159},
	{Name: "Customer 1", Lon: -122.143122, Lat: 47.661424},
	{Name: "Customer 2", Lon: -122.140215, Lat: 47.663400},
	{Name: "Customer 3", Lon: -122.136843, Lat: 47.659270},
	{Name: "Customer 4", Lon: -122.136931, Lat: 47.654888},
	{Name: "Customer 5", Lon: -122.131931, Lat: 47.662412},
	{Name: "Customer 6", Lon: -122.147428, Lat: 47.650498},
	{Name: "Customer 7", Lon: -122.117374, Lat: 47.655114},
	{Name: "Customer 8", Lon: -122.124231, Lat: 47.641569},
	{Name: "Customer 9", Lon: -122.126614, Lat: 47.631628},
}

// Load reads configuration from JSON file and sets default values.
// configDir is the directory containing the config file. Defaults stay in
// effect when the file cannot be read.
func Load(configDir string) error {
	// Set default values
	viper.SetDefault("logLevel", "info")
	viper.SetDefault("logsDir", "./trucklogs")
	viper.SetDefault("truckId", "Truck number 1")

	viper.SetDefault("sim.tickInterval", "5s")
	viper.SetDefault("sim.timeScale", 1.0)
	viper.SetDefault("sim.seed", 0)
	viper.SetDefault("sim.startLoading", false)
	viper.SetDefault("sim.loadingTime", 20)
	viper.SetDefault("sim.deliverTime", 20)
	viper.SetDefault("sim.dumpingTime", 30)
	viper.SetDefault("sim.optimalTemperature", -5)
	viper.SetDefault("sim.outsideTemperature", 12)
	viper.SetDefault("sim.loadTemperature", -2)
	viper.SetDefault("sim.tooWarmThreshold", 2)
	viper.SetDefault("sim.tooWarmTooLong", 60)
	viper.SetDefault("sim.failurePercent", 1)
	viper.SetDefault("sim.speed", 15)
	viper.SetDefault("sim.arrivalTolerance", 5)
	viper.SetDefault("sim.base.lon", -122.130137)
	viper.SetDefault("sim.base.lat", 47.644702)

	viper.SetDefault("telemetry.interval", "5s")
	viper.SetDefault("telemetry.queueSize", 64)
	viper.SetDefault("telemetry.logRecords", true)
	viper.SetDefault("telemetry.store", false)

	viper.SetDefault("api.serverUrl", "")
	viper.SetDefault("api.apiKey", "")

	viper.SetDefault("db.host", "localhost")
	viper.SetDefault("db.port", "5432")
	viper.SetDefault("db.username", "postgres")
	viper.SetDefault("db.password", "postgres")
	viper.SetDefault("db.database", "trucksim")

	viper.SetDefault("storage.type", "memory")
	viper.SetDefault("storage.sqlite.path", "./truck_sim.db")
	viper.SetDefault("storage.sqlite.dumpPath", "")
	viper.SetDefault("storage.sqlite.dumpInterval", "1m")
	viper.SetDefault("storage.postgres.flushInterval", "2s")

	viper.SetDefault("influx.enabled", false)
	viper.SetDefault("influx.host", "localhost")
	viper.SetDefault("influx.port", "8086")
	viper.SetDefault("influx.protocol", "http")
	viper.SetDefault("influx.token", "supersecrettoken")
	viper.SetDefault("influx.org", "coldchain")
	viper.SetDefault("influx.bucket", "truck_telemetry")

	viper.SetDefault("hub.enabled", false)
	viper.SetDefault("hub.url", "ws://localhost:5000/api/v1/devices")
	viper.SetDefault("hub.deviceId", "")

	viper.SetDefault("control.enabled", true)
	viper.SetDefault("control.address", "127.0.0.1:8080")

	viper.SetDefault("monitor.enabled", true)
	viper.SetDefault("monitor.interval", "10s")
	viper.SetDefault("monitor.statusFile", "./truck_status.txt")

	viper.SetDefault("graylog.enabled", false)
	viper.SetDefault("graylog.address", "localhost:12201")

	viper.SetDefault("otel.enabled", false)
	viper.SetDefault("otel.serviceName", "truck-sim")
	viper.SetDefault("otel.batchTimeout", "5s")
	viper.SetDefault("otel.endpoint", "")
	viper.SetDefault("otel.insecure", true)

	viper.SetConfigName(FileName)
	viper.AddConfigPath(configDir)
	viper.SetConfigType("json")

	err := viper.ReadInConfig()
	if err != nil {
		return fmt.Errorf("error reading config file: %w", err)
	}

	return nil
}

// GetString returns a string config value.
func GetString(key string) string {
	return viper.GetString(key)
}

// GetInt returns an int config value.
func GetInt(key string) int {
	return viper.GetInt(key)
}

// GetBool returns a bool config value.
func GetBool(key string) bool {
	return viper.GetBool(key)
}

// GetSimConfig returns the simulation settings. An empty or malformed
// sim.customers falls back to DefaultCustomers.
func GetSimConfig() SimConfig {
	var customers []CustomerConfig
	if err := viper.UnmarshalKey("sim.customers", &customers); err != nil || len(customers) == 0 {
		customers = DefaultCustomers
	}

	cfg := SimConfig{
		TickInterval:       viper.GetDuration("sim.tickInterval"),
		TimeScale:          viper.GetFloat64("sim.timeScale"),
		Seed:               viper.GetInt64("sim.seed"),
		StartLoading:       viper.GetBool("sim.startLoading"),
		LoadingTime:        viper.GetFloat64("sim.loadingTime"),
		DeliverTime:        viper.GetFloat64("sim.deliverTime"),
		DumpingTime:        viper.GetFloat64("sim.dumpingTime"),
		OptimalTemperature: viper.GetFloat64("sim.optimalTemperature"),
		OutsideTemperature: viper.GetFloat64("sim.outsideTemperature"),
		LoadTemperature:    viper.GetFloat64("sim.loadTemperature"),
		TooWarmThreshold:   viper.GetFloat64("sim.tooWarmThreshold"),
		TooWarmTooLong:     viper.GetFloat64("sim.tooWarmTooLong"),
		FailurePercent:     viper.GetFloat64("sim.failurePercent"),
		Speed:              viper.GetFloat64("sim.speed"),
		ArrivalTolerance:   viper.GetFloat64("sim.arrivalTolerance"),
		Base: core.Location{
			Lon: viper.GetFloat64("sim.base.lon"),
			Lat: viper.GetFloat64("sim.base.lat"),
		},
		Customers: make([]core.Customer, 0, len(customers)),
	}
	for _, c := range customers {
		cfg.Customers = append(cfg.Customers, core.Customer{
			Name:     c.Name,
			Location: core.Location{Lon: c.Lon, Lat: c.Lat},
		})
	}
	return cfg
}

// GetTelemetryConfig returns the telemetry emitter settings.
func GetTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Interval:   viper.GetDuration("telemetry.interval"),
		QueueSize:  viper.GetInt("telemetry.queueSize"),
		LogRecords: viper.GetBool("telemetry.logRecords"),
		Store:      viper.GetBool("telemetry.store"),
	}
}

// GetStorageConfig returns the storage backend settings.
func GetStorageConfig() StorageConfig {
	return StorageConfig{
		Type: viper.GetString("storage.type"),
		SQLite: SQLiteConfig{
			Path:         viper.GetString("storage.sqlite.path"),
			DumpPath:     viper.GetString("storage.sqlite.dumpPath"),
			DumpInterval: viper.GetDuration("storage.sqlite.dumpInterval"),
		},
		Postgres: PostgresConfig{
			FlushInterval: viper.GetDuration("storage.postgres.flushInterval"),
		},
	}
}

// GetHubConfig returns the device hub settings. The device ID defaults to the
// truck ID.
func GetHubConfig() HubConfig {
	deviceID := viper.GetString("hub.deviceId")
	if deviceID == "" {
		deviceID = viper.GetString("truckId")
	}
	return HubConfig{
		Enabled:  viper.GetBool("hub.enabled"),
		URL:      viper.GetString("hub.url"),
		DeviceID: deviceID,
	}
}

// GetOTelConfig returns the OpenTelemetry settings.
func GetOTelConfig() OTelConfig {
	return OTelConfig{
		Enabled:      viper.GetBool("otel.enabled"),
		ServiceName:  viper.GetString("otel.serviceName"),
		BatchTimeout: viper.GetDuration("otel.batchTimeout"),
		Endpoint:     viper.GetString("otel.endpoint"),
		Insecure:     viper.GetBool("otel.insecure"),
	}
}

// GetControlConfig returns the control API settings.
func GetControlConfig() ControlConfig {
	return ControlConfig{
		Enabled: viper.GetBool("control.enabled"),
		Address: viper.GetString("control.address"),
	}
}

// GetMonitorConfig returns the status monitor settings.
func GetMonitorConfig() MonitorConfig {
	return MonitorConfig{
		Enabled:    viper.GetBool("monitor.enabled"),
		Interval:   viper.GetDuration("monitor.interval"),
		StatusFile: viper.GetString("monitor.statusFile"),
	}
}
