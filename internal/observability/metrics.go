// Package observability exposes the truck simulation as Prometheus metrics.
package observability

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/coldchain/trucksim/pkg/core"
)

// Telemetry delivery outcomes.
const (
	OutcomeSent    = "sent"
	OutcomeFailed  = "failed"
	OutcomeDropped = "dropped"
)

var (
	truckStates   = []core.TruckState{core.Loading, core.Ready, core.Enroute, core.Delivering, core.Returning, core.Dumping}
	contentStates = []core.ContentsState{core.Empty, core.Full, core.Melting}
	coolingStates = []core.CoolingState{core.CoolingOff, core.CoolingOn, core.CoolingFailed}
)

// TruckCollector bundles the Prometheus metrics of one simulated truck. All
// methods are safe on a nil receiver.
type TruckCollector struct {
	gatherer prometheus.Gatherer

	ContentsTemperature prometheus.Gauge
	CargoCondition      prometheus.Gauge
	Alarm               prometheus.Gauge
	TruckState          *prometheus.GaugeVec
	CoolingState        *prometheus.GaugeVec
	ContentsState       *prometheus.GaugeVec

	Ticks     prometheus.Counter
	Telemetry *prometheus.CounterVec
	Commands  *prometheus.CounterVec
}

// NewTruckCollector registers the truck metrics against reg, defaulting to the
// global Prometheus registry when nil.
func NewTruckCollector(reg prometheus.Registerer) (*TruckCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	temperature, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "truck_contents_temperature_celsius",
		Help: "Cargo temperature at the last tick.",
	}), "truck_contents_temperature_celsius")
	if err != nil {
		return nil, err
	}
	condition, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "truck_cargo_condition_percent",
		Help: "Cargo condition, 100 for fresh cargo and 0 once melting.",
	}), "truck_cargo_condition_percent")
	if err != nil {
		return nil, err
	}
	alarm, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "truck_cargo_alarm",
		Help: "1 while the cargo condition is at or below the configured threshold.",
	}), "truck_cargo_alarm")
	if err != nil {
		return nil, err
	}

	truckState, err := registerGaugeVec(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "truck_state",
		Help: "Current operational state of the truck (1 for the active state).",
	}, []string{"state"}), "truck_state")
	if err != nil {
		return nil, err
	}
	coolingState, err := registerGaugeVec(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "truck_cooling_state",
		Help: "Current cooling system state (1 for the active state).",
	}, []string{"state"}), "truck_cooling_state")
	if err != nil {
		return nil, err
	}
	contentsState, err := registerGaugeVec(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "truck_contents_state",
		Help: "Current cargo state (1 for the active state).",
	}, []string{"state"}), "truck_contents_state")
	if err != nil {
		return nil, err
	}

	ticks, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "truck_sim_ticks_total",
		Help: "Simulation ticks applied.",
	}), "truck_sim_ticks_total")
	if err != nil {
		return nil, err
	}
	telemetry, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "truck_telemetry_records_total",
		Help: "Telemetry records by delivery outcome (sent, failed, dropped).",
	}, []string{"outcome"}), "truck_telemetry_records_total")
	if err != nil {
		return nil, err
	}
	commands, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "truck_commands_total",
		Help: "Direct method invocations by method and response code.",
	}, []string{"method", "code"}), "truck_commands_total")
	if err != nil {
		return nil, err
	}

	return &TruckCollector{
		gatherer:            gatherer,
		ContentsTemperature: temperature,
		CargoCondition:      condition,
		Alarm:               alarm,
		TruckState:          truckState,
		CoolingState:        coolingState,
		ContentsState:       contentsState,
		Ticks:               ticks,
		Telemetry:           telemetry,
		Commands:            commands,
	}, nil
}

// Handler exposes a ready-to-use /metrics handler.
func (c *TruckCollector) Handler() http.Handler {
	gatherer := prometheus.DefaultGatherer
	if c != nil && c.gatherer != nil {
		gatherer = c.gatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// Gatherer returns the Prometheus gatherer associated with the collector.
func (c *TruckCollector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

// IncTicks counts one applied simulation tick.
func (c *TruckCollector) IncTicks() {
	if c == nil {
		return
	}
	c.Ticks.Inc()
}

// ObserveState updates the state gauges from a telemetry snapshot.
func (c *TruckCollector) ObserveState(rec core.TelemetryRecord) {
	if c == nil {
		return
	}
	c.ContentsTemperature.Set(rec.ContentsTemperature)
	c.CargoCondition.Set(rec.CargoCondition)
	c.Alarm.Set(boolToFloat(rec.Alarm))

	for _, s := range truckStates {
		c.TruckState.WithLabelValues(s.String()).Set(boolToFloat(s.String() == rec.TruckState))
	}
	for _, s := range coolingStates {
		c.CoolingState.WithLabelValues(s.String()).Set(boolToFloat(s.String() == rec.CoolingSystemState))
	}
	for _, s := range contentStates {
		c.ContentsState.WithLabelValues(s.String()).Set(boolToFloat(s.String() == rec.ContentsState))
	}
}

// ObserveTelemetry counts n records with the given delivery outcome.
func (c *TruckCollector) ObserveTelemetry(outcome string, n int) {
	if c == nil || n <= 0 {
		return
	}
	c.Telemetry.WithLabelValues(outcome).Add(float64(n))
}

// ObserveCommand counts one direct method invocation.
func (c *TruckCollector) ObserveCommand(method string, status int) {
	if c == nil {
		return
	}
	c.Commands.WithLabelValues(method, strconv.Itoa(status)).Inc()
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}

func registerGaugeVec(reg prometheus.Registerer, vec *prometheus.GaugeVec, name string) (*prometheus.GaugeVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.GaugeVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(counter); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return counter, nil
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}
