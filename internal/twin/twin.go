// Package twin keeps the device twin in sync: it applies desired properties
// to the engine, stores the reported set and pushes it to the hub.
package twin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/coldchain/trucksim/pkg/core"
)

// ErrInvalidProperty is returned when a desired value cannot be applied.
var ErrInvalidProperty = errors.New("invalid desired property")

// Target is the part of the engine the twin drives.
type Target interface {
	TruckID() string
	Threshold() float64
	SetThreshold(value float64) (float64, error)
}

// Store persists the reported set. storage.Backend satisfies it.
type Store interface {
	LoadReportedProperties(deviceID string) (core.Properties, error)
	SaveReportedProperties(deviceID string, props core.Properties) error
}

// Reporter pushes the reported set upstream.
type Reporter interface {
	ReportProperties(ctx context.Context, props core.Properties) error
}

// Service applies desired properties and maintains the reported set.
type Service struct {
	deviceID string
	target   Target
	store    Store
	log      zerolog.Logger

	mu       sync.Mutex
	reporter Reporter
	reported core.Properties
}

// New creates a twin service for deviceID. store may be nil.
func New(deviceID string, target Target, store Store, log zerolog.Logger) *Service {
	return &Service{
		deviceID: deviceID,
		target:   target,
		store:    store,
		log:      log,
		reported: core.Properties{},
	}
}

// SetReporter sets where reported properties are pushed. A nil reporter
// keeps them local.
func (s *Service) SetReporter(r Reporter) {
	s.mu.Lock()
	s.reporter = r
	s.mu.Unlock()
}

// Start restores a persisted threshold, then reports TruckID and the
// threshold in force.
func (s *Service) Start(ctx context.Context) error {
	if s.store != nil {
		stored, err := s.store.LoadReportedProperties(s.deviceID)
		if err != nil {
			s.log.Warn().Err(err).Msg("Could not load reported properties")
		} else if v, ok := stored[core.PropertyConditionThreshold]; ok {
			if applied, err := s.applyThreshold(v); err != nil {
				s.log.Warn().Err(err).Msg("Ignoring stored threshold")
			} else {
				s.log.Info().Float64("threshold", applied).Msg("Restored threshold")
			}
		}
	}

	return s.report(ctx, core.Properties{
		core.PropertyTruckID:            s.target.TruckID(),
		core.PropertyConditionThreshold: s.target.Threshold(),
	})
}

// ApplyDesired applies a desired-properties document. Unknown keys are
// ignored. The full reported set is pushed afterwards, including when a
// value was rejected.
func (s *Service) ApplyDesired(ctx context.Context, props core.Properties) (core.Properties, error) {
	v, ok := props[core.PropertyConditionThreshold]
	if !ok {
		s.log.Debug().Int("keys", len(props)).Msg("Desired properties without known keys")
		return s.Reported(), nil
	}

	_, applyErr := s.ApplyDesiredThreshold(ctx, v)
	return s.Reported(), applyErr
}

// ApplyDesiredThreshold applies a desired cargoConditionThreshold and
// returns the value now in force.
func (s *Service) ApplyDesiredThreshold(ctx context.Context, v any) (float64, error) {
	applied, err := s.applyThreshold(v)
	if err != nil {
		s.log.Warn().Err(err).Float64("current", applied).Msg("Desired threshold rejected")
	} else {
		s.log.Info().Float64("threshold", applied).Msg("Desired threshold applied")
	}

	if rerr := s.report(ctx, core.Properties{core.PropertyConditionThreshold: applied}); rerr != nil {
		s.log.Warn().Err(rerr).Msg("Could not report properties")
	}
	return applied, err
}

func (s *Service) applyThreshold(v any) (float64, error) {
	f, err := toFloat(v)
	if err != nil {
		return s.target.Threshold(), err
	}
	applied, err := s.target.SetThreshold(f)
	if err != nil {
		return applied, fmt.Errorf("%w: %w", ErrInvalidProperty, err)
	}
	return applied, nil
}

// Reported returns a copy of the reported set.
func (s *Service) Reported() core.Properties {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reported.Clone()
}

// report merges props into the reported set, persists it and pushes the
// whole set. Persistence failures are logged; push failures are returned.
func (s *Service) report(ctx context.Context, props core.Properties) error {
	s.mu.Lock()
	for k, v := range props {
		s.reported[k] = v
	}
	full := s.reported.Clone()
	reporter := s.reporter
	s.mu.Unlock()

	if s.store != nil {
		if err := s.store.SaveReportedProperties(s.deviceID, full); err != nil {
			s.log.Error().Err(err).Msg("Could not persist reported properties")
		}
	}
	if reporter == nil {
		return nil
	}
	if err := reporter.ReportProperties(ctx, full); err != nil {
		return fmt.Errorf("reporting properties: %w", err)
	}
	return nil
}

// ParseDesired decodes a desired-properties JSON document. Numbers are kept
// as json.Number.
func ParseDesired(payload string) (core.Properties, error) {
	dec := json.NewDecoder(strings.NewReader(payload))
	dec.UseNumber()
	var props core.Properties
	if err := dec.Decode(&props); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidProperty, err)
	}
	if props == nil {
		props = core.Properties{}
	}
	return props, nil
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, fmt.Errorf("%w: %q is not a number", ErrInvalidProperty, n.String())
		}
		return f, nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q is not a number", ErrInvalidProperty, n)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("%w: unsupported value %v (%T)", ErrInvalidProperty, v, v)
	}
}
