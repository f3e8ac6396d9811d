package monitor

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/coldchain/trucksim/pkg/core"
)

// DefaultInterval is used when Dependencies.Interval is not set.
const DefaultInterval = 10 * time.Second

// Source is the engine view the monitor reads.
type Source interface {
	TruckID() string
	Latest() (core.TelemetryRecord, bool)
	Ticks() uint64
	SimTime() time.Duration
	Pending() int
	Threshold() float64
}

// Dependencies holds all dependencies for the monitor service
type Dependencies struct {
	Source     Source
	Logger     *slog.Logger
	StatusFile string
	Interval   time.Duration
}

// Status is one status file snapshot.
type Status struct {
	TruckID   string                `json:"truckId"`
	Time      time.Time             `json:"time"`
	Ticks     uint64                `json:"ticks"`
	SimTime   string                `json:"simTime"`
	Pending   int                   `json:"pendingTelemetry"`
	Threshold float64               `json:"cargoConditionThreshold"`
	Latest    *core.TelemetryRecord `json:"latest,omitempty"`
}

// Service manages status monitoring
type Service struct {
	deps      Dependencies
	isRunning bool
	alarm     bool
	mu        sync.RWMutex
	stopChan  chan struct{}
	done      chan struct{}
}

// NewService creates a new monitor service
func NewService(deps Dependencies) *Service {
	if deps.Interval <= 0 {
		deps.Interval = DefaultInterval
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Service{
		deps:     deps,
		stopChan: make(chan struct{}),
	}
}

// IsRunning returns whether the status monitor is running
func (s *Service) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// GetProgramStatus returns the current status as status file lines and as a
// struct.
func (s *Service) GetProgramStatus() (output []string, status Status) {
	src := s.deps.Source
	status = Status{
		TruckID:   src.TruckID(),
		Time:      time.Now(),
		Ticks:     src.Ticks(),
		SimTime:   src.SimTime().String(),
		Pending:   src.Pending(),
		Threshold: src.Threshold(),
	}
	if rec, ok := src.Latest(); ok {
		status.Latest = &rec
		output = append(output, fmt.Sprintf("%s %s | %s | cargo %s %.2f°C | cooling %s | condition %.1f%%",
			rec.Time.Format(time.Kitchen), status.TruckID, rec.TruckState, rec.ContentsState,
			rec.ContentsTemperature, rec.CoolingSystemState, rec.CargoCondition))
	} else {
		output = append(output, status.TruckID+" | no telemetry yet")
	}

	raw, err := json.MarshalIndent(status, "", "  ")
	if err != nil {
		raw = []byte(fmt.Sprintf(`{"error": "%s"}`, err))
	}
	output = append(output, string(raw))
	return output, status
}

// Check writes one status snapshot and logs alarm transitions.
func (s *Service) Check(statusFile *os.File) Status {
	lines, status := s.GetProgramStatus()

	if statusFile != nil {
		_ = statusFile.Truncate(0)
		_, _ = statusFile.Seek(0, 0)
		for _, line := range lines {
			_, _ = statusFile.WriteString(line + "\n")
		}
	}

	if status.Latest == nil {
		return status
	}

	s.mu.Lock()
	was := s.alarm
	s.alarm = status.Latest.Alarm
	s.mu.Unlock()

	switch {
	case status.Latest.Alarm && !was:
		s.deps.Logger.Warn("Cargo condition alarm raised",
			"truckId", status.TruckID,
			"condition", status.Latest.CargoCondition,
			"threshold", status.Threshold)
	case !status.Latest.Alarm && was:
		s.deps.Logger.Info("Cargo condition alarm cleared",
			"truckId", status.TruckID,
			"condition", status.Latest.CargoCondition)
	}
	return status
}

// Alarm reports whether the last check saw an active alarm.
func (s *Service) Alarm() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.alarm
}

// Start starts the status monitor goroutine
func (s *Service) Start() error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = true
	s.stopChan = make(chan struct{})
	s.done = make(chan struct{})
	stop, done := s.stopChan, s.done
	s.mu.Unlock()

	var statusFile *os.File
	if s.deps.StatusFile != "" {
		f, err := os.Create(s.deps.StatusFile)
		if err != nil {
			s.deps.Logger.Error("Error creating status file", "error", err)
		} else {
			statusFile = f
		}
	}

	go func() {
		defer func() {
			if statusFile != nil {
				statusFile.Close()
			}
			s.mu.Lock()
			s.isRunning = false
			s.mu.Unlock()
			close(done)
		}()

		s.deps.Logger.Debug("Starting status monitor", "interval", s.deps.Interval, "file", s.deps.StatusFile)
		ticker := time.NewTicker(s.deps.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				s.Check(statusFile)
			}
		}
	}()

	return nil
}

// Stop stops the status monitor and waits for it to exit.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	select {
	case <-s.stopChan:
	default:
		close(s.stopChan)
	}
	done := s.done
	s.mu.Unlock()
	<-done
}
