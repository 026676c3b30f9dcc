package objects

import (
	"math"
	"sync"

	"github.com/backkem/lwm2m/pkg/registry"
	"github.com/backkem/lwm2m/pkg/tlv"
)

// Temperature resource IDs (IPSO 3303).
const (
	TemperatureValue       uint16 = 5700
	TemperatureUnits       uint16 = 5701
	TemperatureMinValue    uint16 = 5601
	TemperatureMaxValue    uint16 = 5602
	TemperatureResetMinMax uint16 = 5605
)

var temperatureResources = []registry.ResourceDefinition{
	{ID: TemperatureValue, Name: "Sensor Value", Access: registry.AccessRead, Type: tlv.TypeFloat},
	{ID: TemperatureUnits, Name: "Sensor Units", Access: registry.AccessRead, Type: tlv.TypeString},
	{ID: TemperatureMinValue, Name: "Min Measured Value", Access: registry.AccessRead, Type: tlv.TypeFloat},
	{ID: TemperatureMaxValue, Name: "Max Measured Value", Access: registry.AccessRead, Type: tlv.TypeFloat},
	{ID: TemperatureResetMinMax, Name: "Reset Min and Max Measured Values", Access: registry.AccessExecute},
}

// Temperature is one instance of the IPSO Temperature object. Record
// measurements with Set.
type Temperature struct {
	mu       sync.RWMutex
	units    string
	value    float64
	min, max float64
}

func newTemperature(units string) *Temperature {
	return &Temperature{units: units, min: math.Inf(1), max: math.Inf(-1)}
}

// Set records a measurement.
func (t *Temperature) Set(v float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.value = v
	t.min = math.Min(t.min, v)
	t.max = math.Max(t.max, v)
}

// Value returns the last measurement.
func (t *Temperature) Value() float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.value
}

func (t *Temperature) readResource(id uint16, r *tlv.Record) error {
	t.mu.RLock()
	defer t.mu.RUnlock()

	switch id {
	case TemperatureValue:
		r.SetFloat(t.value)
	case TemperatureUnits:
		r.SetString(t.units)
	case TemperatureMinValue:
		r.SetFloat(finiteOr(t.min, t.value))
	case TemperatureMaxValue:
		r.SetFloat(finiteOr(t.max, t.value))
	default:
		return ErrUnsupportedResource
	}
	return nil
}

func (t *Temperature) validateResource(uint16, *tlv.Record) error {
	return ErrUnsupportedResource
}

func (t *Temperature) writeResource(uint16, *tlv.Record) error {
	return ErrUnsupportedResource
}

func (t *Temperature) executeResource(id uint16, _ *tlv.Record) error {
	if id != TemperatureResetMinMax {
		return ErrUnsupportedResource
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.min, t.max = t.value, t.value
	return nil
}

func finiteOr(v, fallback float64) float64 {
	if math.IsInf(v, 0) {
		return fallback
	}
	return v
}

// TemperatureObject is the IPSO Temperature object (3303).
type TemperatureObject struct {
	units     string
	instances instances[Temperature]
}

// NewTemperatureObject creates a Temperature object reporting in units,
// e.g. "Cel".
func NewTemperatureObject(units string) *TemperatureObject {
	return &TemperatureObject{units: units}
}

// Definition returns the object definition to register.
func (o *TemperatureObject) Definition() registry.ObjectDefinition {
	return registry.ObjectDefinition{
		ID:        TemperatureID,
		Name:      "Temperature",
		Resources: temperatureResources,
		Factory: func(instanceID uint16) map[uint16]any {
			t := newTemperature(o.units)
			o.instances.put(instanceID, t)
			return handlersFor(temperatureResources, t)
		},
	}
}

// Instance returns a Temperature instance.
func (o *TemperatureObject) Instance(instanceID uint16) (*Temperature, bool) {
	return o.instances.get(instanceID)
}
