package engine

import (
	"github.com/coldchain/trucksim/internal/dispatcher"
	"github.com/coldchain/trucksim/internal/truck"
)

// RegisterHandlers routes the truck's direct methods to e. Handlers return a
// core.MethodResponse and never an error; rejections are carried in the
// response status.
func (e *Engine) RegisterHandlers(d *dispatcher.Dispatcher) {
	d.Register(truck.MethodGoToCustomer, func(ev dispatcher.Event) (any, error) {
		return e.GoToCustomer(ev.Payload), nil
	}, dispatcher.Logged())

	d.Register(truck.MethodRecall, func(dispatcher.Event) (any, error) {
		return e.Recall(), nil
	}, dispatcher.Logged())
}
