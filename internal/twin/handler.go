package twin

import (
	"context"

	"github.com/coldchain/trucksim/internal/dispatcher"
)

// CommandDesiredProperties is the dispatcher command carrying a desired
// properties document.
const CommandDesiredProperties = "DesiredProperties"

// Handler returns the dispatcher handler for CommandDesiredProperties. The
// result is the reported set after the update.
func (s *Service) Handler() dispatcher.HandlerFunc {
	return func(e dispatcher.Event) (any, error) {
		props, err := ParseDesired(e.Payload)
		if err != nil {
			s.log.Warn().Err(err).Str("source", e.Source).Msg("Malformed desired properties")
			return s.Reported(), err
		}
		return s.ApplyDesired(context.Background(), props)
	}
}
