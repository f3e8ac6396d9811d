// pkg/core/truck.go
package core

// TruckState is the operational state of the truck's task cycle.
type TruckState uint8

const (
	Loading TruckState = iota
	Ready
	Enroute
	Delivering
	Returning
	Dumping
)

var truckStateNames = [...]string{
	Loading:    "Loading",
	Ready:      "Ready",
	Enroute:    "Enroute",
	Delivering: "Delivering",
	Returning:  "Returning",
	Dumping:    "Dumping",
}

func (s TruckState) String() string {
	if int(s) < len(truckStateNames) {
		return truckStateNames[s]
	}
	return "Unknown"
}

// AtBase reports whether the truck is parked at the base in this state.
func (s TruckState) AtBase() bool {
	return s == Loading || s == Ready || s == Dumping
}

// ContentsState describes the cargo on board.
type ContentsState uint8

const (
	Empty ContentsState = iota
	Full
	Melting
)

var contentsStateNames = [...]string{
	Empty:   "Empty",
	Full:    "Full",
	Melting: "Melting",
}

func (c ContentsState) String() string {
	if int(c) < len(contentsStateNames) {
		return contentsStateNames[c]
	}
	return "Unknown"
}

// CoolingState is the state of the refrigeration unit.
type CoolingState uint8

const (
	CoolingOff CoolingState = iota
	CoolingOn
	CoolingFailed
)

var coolingStateNames = [...]string{
	CoolingOff:    "Off",
	CoolingOn:     "On",
	CoolingFailed: "Failed",
}

func (c CoolingState) String() string {
	if int(c) < len(coolingStateNames) {
		return coolingStateNames[c]
	}
	return "Unknown"
}

// Location is a WGS84 longitude/latitude pair.
type Location struct {
	Lon float64 `json:"lon"`
	Lat float64 `json:"lat"`
}

// Customer is one entry of the dispatch table. Its position in the table is
// the index accepted by GoToCustomer.
type Customer struct {
	Name     string   `json:"name"`
	Location Location `json:"location"`
}
