package truck

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/coldchain/trucksim/pkg/core"
)

// Method names accepted on the command channel.
const (
	MethodGoToCustomer = "GoToCustomer"
	MethodRecall       = "Recall"
)

var (
	// ErrValidation marks a malformed or out-of-range command payload.
	ErrValidation = errors.New("invalid command payload")
	// ErrStateConflict marks a valid command the truck cannot act on in its
	// current state.
	ErrStateConflict = errors.New("command not allowed in current state")
)

func accepted(method string) core.MethodResponse {
	return core.MethodResponse{
		Status:  http.StatusOK,
		Payload: core.ResultBody("Executed direct method: " + method),
	}
}

func rejected(result string, err error) core.MethodResponse {
	return core.MethodResponse{
		Status:  http.StatusBadRequest,
		Payload: core.ResultBody(result),
		Err:     err,
	}
}

// ParseCustomerIndex decodes a GoToCustomer payload. Both bare ("3") and
// JSON string ("\"3\"") forms are accepted.
func ParseCustomerIndex(payload string) (int, error) {
	raw := strings.Trim(strings.TrimSpace(payload), `"`)
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a customer number", ErrValidation, payload)
	}
	return n, nil
}

// GoToCustomer dispatches the truck to the customer at the given index of
// p.Customers. The returned state is s with the command applied; on
// rejection only the event text may differ.
func GoToCustomer(s State, p Params, payload string) (State, core.MethodResponse) {
	n, err := ParseCustomerIndex(payload)
	if err != nil {
		return s, rejected("Invalid call", err)
	}
	if n < 0 || n >= len(p.Customers) {
		return s, rejected("Invalid customer",
			fmt.Errorf("%w: customer %d out of range [0,%d)", ErrValidation, n, len(p.Customers)))
	}

	switch s.Operational {
	case core.Dumping, core.Loading, core.Delivering:
		s.Event = "Unable to act - " + s.Operational.String()
		return s, rejected(s.Event, fmt.Errorf("%w: %s", ErrStateConflict, s.Operational))
	}

	if s.Cargo == core.Empty {
		s.Event = "Unable to act - empty"
		return s, rejected(s.Event, fmt.Errorf("%w: truck is empty", ErrStateConflict))
	}

	s.Event = "New customer: " + strconv.Itoa(n)
	s.Target = p.Customers[n].Location
	s.transition(core.Enroute)
	return s, accepted(MethodGoToCustomer)
}

// Recall sends the truck back to base.
func Recall(s State, p Params) (State, core.MethodResponse) {
	switch s.Operational {
	case core.Ready, core.Loading, core.Dumping:
		s.Event = "Already at base"
	case core.Returning:
		s.Event = "Already returning"
	case core.Delivering:
		s.Event = "Unable to recall - " + s.Operational.String()
		return s, rejected(s.Event, fmt.Errorf("%w: %s", ErrStateConflict, s.Operational))
	case core.Enroute:
		s.returnToBase(p)
		s.Event = "Returning to base"
	}
	return s, accepted(MethodRecall)
}
