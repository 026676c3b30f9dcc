package objects

import (
	"fmt"
	"sync"
	"time"

	"github.com/backkem/lwm2m/pkg/registry"
	"github.com/backkem/lwm2m/pkg/tlv"
)

// Device resource IDs (Appendix E.4).
const (
	DeviceManufacturer     uint16 = 0
	DeviceModelNumber      uint16 = 1
	DeviceSerialNumber     uint16 = 2
	DeviceFirmwareVersion  uint16 = 3
	DeviceReboot           uint16 = 4
	DeviceFactoryReset     uint16 = 5
	DeviceErrorCode        uint16 = 11
	DeviceCurrentTime      uint16 = 13
	DeviceUTCOffset        uint16 = 14
	DeviceTimezone         uint16 = 15
	DeviceSupportedBinding uint16 = 16
)

var deviceResources = []registry.ResourceDefinition{
	{ID: DeviceManufacturer, Name: "Manufacturer", Access: registry.AccessRead, Type: tlv.TypeString},
	{ID: DeviceModelNumber, Name: "Model Number", Access: registry.AccessRead, Type: tlv.TypeString},
	{ID: DeviceSerialNumber, Name: "Serial Number", Access: registry.AccessRead, Type: tlv.TypeString},
	{ID: DeviceFirmwareVersion, Name: "Firmware Version", Access: registry.AccessRead, Type: tlv.TypeString},
	{ID: DeviceReboot, Name: "Reboot", Access: registry.AccessExecute},
	{ID: DeviceFactoryReset, Name: "Factory Reset", Access: registry.AccessExecute},
	{ID: DeviceErrorCode, Name: "Error Code", Access: registry.AccessRead, Type: tlv.TypeInteger, Multiple: true},
	{ID: DeviceCurrentTime, Name: "Current Time", Access: registry.AccessReadWrite, Type: tlv.TypeTime},
	{ID: DeviceUTCOffset, Name: "UTC Offset", Access: registry.AccessReadWrite, Type: tlv.TypeString},
	{ID: DeviceTimezone, Name: "Timezone", Access: registry.AccessReadWrite, Type: tlv.TypeString},
	{ID: DeviceSupportedBinding, Name: "Supported Binding and Modes", Access: registry.AccessRead, Type: tlv.TypeString},
}

// DeviceInfo is the static description of the device. These values are
// set at manufacturing time and never written by a server.
type DeviceInfo struct {
	Manufacturer    string
	ModelNumber     string
	SerialNumber    string
	FirmwareVersion string

	// SupportedBinding defaults to "U".
	SupportedBinding string
}

// DeviceConfig provides dependencies for the Device object.
type DeviceConfig struct {
	Info DeviceInfo

	// Now returns the local clock. Defaults to time.Now.
	Now func() time.Time

	// Reboot runs when a server executes Reboot. The response is sent
	// before the device is expected to go down, so Reboot should only
	// schedule the restart.
	Reboot func() error

	// FactoryReset runs when a server executes Factory Reset.
	FactoryReset func() error
}

// Device is the Device object (3). A client has exactly one instance.
type Device struct {
	config DeviceConfig

	mu        sync.RWMutex
	offset    time.Duration
	utcOffset string
	timezone  string
	errors    []int64
}

// NewDevice creates the Device object.
func NewDevice(config DeviceConfig) *Device {
	if config.Now == nil {
		config.Now = time.Now
	}
	if config.Info.SupportedBinding == "" {
		config.Info.SupportedBinding = DefaultBinding
	}
	return &Device{config: config, utcOffset: "+00:00", timezone: "UTC"}
}

// Definition returns the object definition to register.
func (d *Device) Definition() registry.ObjectDefinition {
	return registry.ObjectDefinition{
		ID:        DeviceID,
		Name:      "Device",
		Resources: deviceResources,
		Factory: func(uint16) map[uint16]any {
			return handlersFor(deviceResources, d)
		},
	}
}

// Info returns the static device description.
func (d *Device) Info() DeviceInfo { return d.config.Info }

// Now returns the device clock, adjusted by any Current Time write.
func (d *Device) Now() time.Time {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.config.Now().Add(d.offset)
}

// SetErrors replaces the Error Code list. An empty list reads as the
// single code 0 (no error).
func (d *Device) SetErrors(codes ...int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.errors = append(d.errors[:0], codes...)
}

func (d *Device) readResource(id uint16, r *tlv.Record) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	switch id {
	case DeviceManufacturer:
		r.SetString(d.config.Info.Manufacturer)
	case DeviceModelNumber:
		r.SetString(d.config.Info.ModelNumber)
	case DeviceSerialNumber:
		r.SetString(d.config.Info.SerialNumber)
	case DeviceFirmwareVersion:
		r.SetString(d.config.Info.FirmwareVersion)
	case DeviceErrorCode:
		codes := d.errors
		if len(codes) == 0 {
			codes = []int64{0}
		}
		children := make([]tlv.Record, len(codes))
		for i, c := range codes {
			children[i] = tlv.Init(tlv.KindResourceInstance, tlv.TypeInteger, uint16(i))
			children[i].SetInt(c)
		}
		multi, err := tlv.NewContainer(tlv.KindMultipleResource, id, children)
		if err != nil {
			return err
		}
		*r = multi
	case DeviceCurrentTime:
		r.SetTime(d.config.Now().Add(d.offset))
	case DeviceUTCOffset:
		r.SetString(d.utcOffset)
	case DeviceTimezone:
		r.SetString(d.timezone)
	case DeviceSupportedBinding:
		r.SetString(d.config.Info.SupportedBinding)
	default:
		return ErrUnsupportedResource
	}
	return nil
}

func (d *Device) validateResource(id uint16, _ *tlv.Record) error {
	switch id {
	case DeviceCurrentTime, DeviceUTCOffset, DeviceTimezone:
		return nil
	case DeviceManufacturer, DeviceModelNumber, DeviceSerialNumber,
		DeviceFirmwareVersion, DeviceErrorCode, DeviceSupportedBinding:
		return fmt.Errorf("%w: resource %d is read-only", registry.ErrMethodNotAllowed, id)
	default:
		return ErrUnsupportedResource
	}
}

func (d *Device) writeResource(id uint16, r *tlv.Record) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch id {
	case DeviceCurrentTime:
		d.offset = r.Time().Sub(d.config.Now())
	case DeviceUTCOffset:
		d.utcOffset = r.StringValue()
	case DeviceTimezone:
		d.timezone = r.StringValue()
	case DeviceManufacturer, DeviceModelNumber, DeviceSerialNumber,
		DeviceFirmwareVersion, DeviceErrorCode, DeviceSupportedBinding:
		return fmt.Errorf("%w: resource %d is read-only", registry.ErrMethodNotAllowed, id)
	default:
		return ErrUnsupportedResource
	}
	return nil
}

func (d *Device) executeResource(id uint16, _ *tlv.Record) error {
	var fn func() error
	switch id {
	case DeviceReboot:
		fn = d.config.Reboot
	case DeviceFactoryReset:
		fn = d.config.FactoryReset
	default:
		return ErrUnsupportedResource
	}
	if fn == nil {
		return ErrNotSupported
	}
	return fn()
}
