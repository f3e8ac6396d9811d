package memory

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coldchain/trucksim/pkg/core"
)

var seed = []core.Customer{
	{Name: "Customer 0", Location: core.Location{Lon: -122.141515, Lat: 47.659159}},
	{Name: "Customer 1", Location: core.Location{Lon: -122.143122, Lat: 47.661424}},
}

func TestInitClose(t *testing.T) {
	b := New(seed, 0)
	require.NoError(t, b.Init())
	require.NoError(t, b.Close())
}

func TestCustomers_ReturnsCopy(t *testing.T) {
	b := New(seed, 0)

	got, err := b.Customers()
	require.NoError(t, err)
	assert.Equal(t, seed, got)

	got[0].Name = "changed"
	again, _ := b.Customers()
	assert.Equal(t, "Customer 0", again[0].Name)
}

func TestSaveCustomers_Replaces(t *testing.T) {
	b := New(seed, 0)
	replacement := []core.Customer{{Name: "Only", Location: core.Location{Lon: 1, Lat: 2}}}

	require.NoError(t, b.SaveCustomers(replacement))
	got, _ := b.Customers()
	assert.Equal(t, replacement, got)
}

func TestReportedProperties_MergePerDevice(t *testing.T) {
	b := New(nil, 0)

	empty, err := b.LoadReportedProperties("truck-1")
	require.NoError(t, err)
	assert.Empty(t, empty)

	require.NoError(t, b.SaveReportedProperties("truck-1", core.Properties{core.PropertyTruckID: "truck-1"}))
	require.NoError(t, b.SaveReportedProperties("truck-1", core.Properties{core.PropertyConditionThreshold: 40.0}))
	require.NoError(t, b.SaveReportedProperties("truck-2", core.Properties{core.PropertyConditionThreshold: 10.0}))

	got, err := b.LoadReportedProperties("truck-1")
	require.NoError(t, err)
	assert.Equal(t, core.Properties{core.PropertyTruckID: "truck-1", core.PropertyConditionThreshold: 40.0}, got)

	// Mutating the returned set does not leak back.
	got[core.PropertyConditionThreshold] = 99.0
	again, _ := b.LoadReportedProperties("truck-1")
	assert.Equal(t, 40.0, again[core.PropertyConditionThreshold])
}

func TestRecordTelemetry_BoundedHistory(t *testing.T) {
	b := New(nil, 3)
	for i := 0; i < 5; i++ {
		require.NoError(t, b.RecordTelemetry(core.TelemetryRecord{
			Time:  time.Unix(int64(i), 0),
			Event: fmt.Sprintf("e%d", i),
		}))
	}

	h := b.History()
	require.Len(t, h, 3)
	assert.Equal(t, "e2", h[0].Event)
	assert.Equal(t, "e4", h[2].Event)
	assert.Empty(t, b.History())
}
