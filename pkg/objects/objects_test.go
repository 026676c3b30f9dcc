package objects

import (
	"errors"
	"testing"
	"time"

	"github.com/backkem/lwm2m/pkg/registry"
	"github.com/backkem/lwm2m/pkg/tlv"
)

func encode(t *testing.T, recs ...tlv.Record) []byte {
	t.Helper()
	b, err := tlv.EncodeAll(recs)
	if err != nil {
		t.Fatalf("EncodeAll: %v", err)
	}
	return b
}

func intRecord(id uint16, v int64) tlv.Record {
	r := tlv.Init(tlv.KindResource, tlv.TypeInteger, id)
	r.SetInt(v)
	return r
}

func stringRecord(id uint16, s string) tlv.Record {
	r := tlv.Init(tlv.KindResource, tlv.TypeString, id)
	r.SetString(s)
	return r
}

func boolRecord(id uint16, v bool) tlv.Record {
	r := tlv.Init(tlv.KindResource, tlv.TypeBoolean, id)
	r.SetBool(v)
	return r
}

func opaqueRecord(id uint16, b []byte) tlv.Record {
	r := tlv.Init(tlv.KindResource, tlv.TypeOpaque, id)
	r.SetOpaque(b)
	return r
}

func define(t *testing.T, reg *registry.Registry, defs ...registry.ObjectDefinition) {
	t.Helper()
	for _, d := range defs {
		if err := reg.Define(d); err != nil {
			t.Fatalf("Define %d: %v", d.ID, err)
		}
	}
}

func TestSecurity_BootstrapWrite(t *testing.T) {
	reg := registry.New()
	sec := NewSecurityObject()
	define(t, reg, sec.Definition())

	bootstrap, _ := tlv.NewContainer(tlv.KindObjectInstance, 0, []tlv.Record{
		stringRecord(SecurityServerURI, "coaps://bs.example:5684"),
		boolRecord(SecurityBootstrapServer, true),
		intRecord(SecurityMode, int64(ModePSK)),
	})
	server, _ := tlv.NewContainer(tlv.KindObjectInstance, 1, []tlv.Record{
		stringRecord(SecurityServerURI, "coaps://dm.example:5684"),
		boolRecord(SecurityBootstrapServer, false),
		intRecord(SecurityMode, int64(ModePSK)),
		opaqueRecord(SecurityIdentity, []byte("device-1")),
		opaqueRecord(SecuritySecretKey, []byte{0x01, 0x02, 0x03, 0x04}),
		intRecord(SecurityShortServerID, 101),
	})
	if err := reg.BootstrapWrite(registry.ObjectPath(SecurityID), encode(t, bootstrap, server)); err != nil {
		t.Fatalf("BootstrapWrite: %v", err)
	}

	info, ok := sec.Server(reg)
	if !ok {
		t.Fatal("no registration server account")
	}
	if info.ServerURI != "coaps://dm.example:5684" || info.ShortServerID != 101 ||
		string(info.Identity) != "device-1" || len(info.SecretKey) != 4 {
		t.Errorf("server account = %+v", info)
	}
	bs, ok := sec.Bootstrap(reg)
	if !ok || bs.ServerURI != "coaps://bs.example:5684" {
		t.Errorf("bootstrap account = %+v (%v)", bs, ok)
	}

	// Deleted instances are no longer reported.
	if err := reg.Delete(registry.InstancePath(SecurityID, 1)); err != nil {
		t.Fatal(err)
	}
	if _, ok := sec.Server(reg); ok {
		t.Error("deleted account still reported")
	}
}

func TestSecurity_HiddenFromServers(t *testing.T) {
	reg := registry.New()
	sec := NewSecurityObject()
	define(t, reg, sec.Definition())
	if err := sec.Add(reg, 0, SecurityInfo{ServerURI: "coaps://dm.example", SecretKey: []byte{1}}); err != nil {
		t.Fatal(err)
	}

	if _, err := reg.ReadResource(SecurityID, 0, SecuritySecretKey); !errors.Is(err, registry.ErrMethodNotAllowed) {
		t.Errorf("read secret key: err = %v, want ErrMethodNotAllowed", err)
	}
	err := reg.WriteResource(SecurityID, 0, SecurityServerURI, encode(t, stringRecord(SecurityServerURI, "coap://evil")))
	if !errors.Is(err, registry.ErrMethodNotAllowed) {
		t.Errorf("write server uri: err = %v, want ErrMethodNotAllowed", err)
	}
	if recs, _ := reg.ReadInstance(SecurityID, 0); len(recs) != 0 {
		t.Errorf("ReadInstance exposed %d resources", len(recs))
	}
}

func TestSecurity_InvalidValues(t *testing.T) {
	reg := registry.New()
	sec := NewSecurityObject()
	define(t, reg, sec.Definition())

	tests := []struct {
		name string
		rec  tlv.Record
	}{
		{"mode", intRecord(SecurityMode, 7)},
		{"short server id zero", intRecord(SecurityShortServerID, 0)},
		{"short server id reserved", intRecord(SecurityShortServerID, 65535)},
		{"hold off", intRecord(SecurityClientHoldOff, -1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := reg.BootstrapWrite(registry.InstancePath(SecurityID, 0), encode(t, tt.rec))
			if !errors.Is(err, ErrInvalidValue) || !errors.Is(err, registry.ErrBadRequest) {
				t.Errorf("err = %v, want ErrInvalidValue", err)
			}
		})
	}
}

func TestSecurity_RejectedWriteLeavesNoAccount(t *testing.T) {
	reg := registry.New()
	sec := NewSecurityObject()
	define(t, reg, sec.Definition())

	payload := encode(t,
		stringRecord(SecurityServerURI, "coaps://rogue.example:5684"),
		intRecord(SecurityMode, 9),
	)
	err := reg.BootstrapWrite(registry.InstancePath(SecurityID, 7), payload)
	if !errors.Is(err, ErrInvalidValue) {
		t.Fatalf("err = %v, want ErrInvalidValue", err)
	}
	if reg.HasInstance(SecurityID, 7) {
		t.Error("instance /0/7 kept after a rejected write")
	}
	if info, ok := sec.Server(reg); ok {
		t.Errorf("rejected write left server account %q", info.ServerURI)
	}

	// The same write to an existing account changes nothing.
	if err := sec.Add(reg, 1, SecurityInfo{ServerURI: "coaps://dm.example", ShortServerID: 1}); err != nil {
		t.Fatal(err)
	}
	if err := reg.BootstrapWrite(registry.InstancePath(SecurityID, 1), payload); !errors.Is(err, ErrInvalidValue) {
		t.Fatalf("err = %v, want ErrInvalidValue", err)
	}
	if info, _ := sec.Server(reg); info.ServerURI != "coaps://dm.example" || info.Mode != ModePSK {
		t.Errorf("account changed by rejected write: %+v", info)
	}
}

func TestSecurity_InfoIsCopy(t *testing.T) {
	s := &Security{}
	key := []byte{1, 2, 3}
	s.Set(SecurityInfo{SecretKey: key})
	key[0] = 9
	info := s.Info()
	if info.SecretKey[0] != 1 {
		t.Error("Set kept the caller's slice")
	}
	info.SecretKey[1] = 9
	if s.Info().SecretKey[1] != 2 {
		t.Error("Info returned the internal slice")
	}
}

type serverEvents struct {
	updates  []uint16
	disabled time.Duration
}

func (e *serverEvents) UpdateTrigger(ssid uint16) { e.updates = append(e.updates, ssid) }

func (e *serverEvents) Disable(_ uint16, timeout time.Duration) { e.disabled = timeout }

func TestServer_Resources(t *testing.T) {
	reg := registry.New()
	events := &serverEvents{}
	srv := NewServerObject(events)
	define(t, reg, srv.Definition())

	if err := srv.Add(reg, 0, ServerInfo{ShortServerID: 101, Lifetime: 300, Binding: "U", DisableTimeout: 60}); err != nil {
		t.Fatal(err)
	}

	rec, err := reg.ReadResource(ServerID, 0, ServerLifetime)
	if err != nil || rec.Int != 300 {
		t.Fatalf("lifetime = %d (%v)", rec.Int, err)
	}

	if err := reg.WriteResource(ServerID, 0, ServerLifetime, encode(t, intRecord(ServerLifetime, 600))); err != nil {
		t.Fatalf("write lifetime: %v", err)
	}
	if info, _ := srv.Lookup(reg, 101); info.LifetimeDuration() != 10*time.Minute {
		t.Errorf("lifetime = %v", info.LifetimeDuration())
	}

	if err := reg.WriteResource(ServerID, 0, ServerLifetime, encode(t, intRecord(ServerLifetime, 0))); !errors.Is(err, registry.ErrBadRequest) {
		t.Errorf("zero lifetime: err = %v, want ErrBadRequest", err)
	}
	if err := reg.WriteResource(ServerID, 0, ServerBinding, encode(t, stringRecord(ServerBinding, "T"))); !errors.Is(err, registry.ErrBadRequest) {
		t.Errorf("binding T: err = %v, want ErrBadRequest", err)
	}
	if err := reg.WriteResource(ServerID, 0, ServerBinding, encode(t, stringRecord(ServerBinding, "uq"))); err != nil {
		t.Errorf("binding uq: %v", err)
	}
	if err := reg.WriteResource(ServerID, 0, ServerShortServerID, encode(t, intRecord(ServerShortServerID, 5))); !errors.Is(err, registry.ErrMethodNotAllowed) {
		t.Errorf("write short server id: err = %v, want ErrMethodNotAllowed", err)
	}

	if err := reg.ExecuteResource(ServerID, 0, ServerUpdateTrigger, nil); err != nil {
		t.Fatalf("update trigger: %v", err)
	}
	if len(events.updates) != 1 || events.updates[0] != 101 {
		t.Errorf("updates = %v", events.updates)
	}
	if err := reg.ExecuteResource(ServerID, 0, ServerDisable, nil); err != nil {
		t.Fatalf("disable: %v", err)
	}
	if events.disabled != time.Minute {
		t.Errorf("disable timeout = %v", events.disabled)
	}

	info, ok := srv.First(reg)
	if !ok || info.Binding != "UQ" {
		t.Errorf("First = %+v (%v)", info, ok)
	}
}

func TestServer_RejectedWriteIsAtomic(t *testing.T) {
	reg := registry.New()
	srv := NewServerObject(nil)
	define(t, reg, srv.Definition())
	if err := srv.Add(reg, 0, ServerInfo{ShortServerID: 101, Lifetime: 300, Binding: "U"}); err != nil {
		t.Fatal(err)
	}

	payload := encode(t, intRecord(ServerLifetime, 600), stringRecord(ServerBinding, "T"))
	if err := reg.WriteInstance(ServerID, 0, payload); !errors.Is(err, registry.ErrBadRequest) {
		t.Fatalf("err = %v, want ErrBadRequest", err)
	}
	info, _ := srv.Lookup(reg, 101)
	if info.Lifetime != 300 || info.Binding != "U" {
		t.Errorf("rejected write applied: %+v", info)
	}
}

func TestServer_BootstrapDefaults(t *testing.T) {
	reg := registry.New()
	srv := NewServerObject(nil)
	define(t, reg, srv.Definition())

	payload := encode(t, intRecord(ServerShortServerID, 7))
	if err := reg.BootstrapWrite(registry.InstancePath(ServerID, 2), payload); err != nil {
		t.Fatalf("BootstrapWrite: %v", err)
	}
	info, ok := srv.Lookup(reg, 7)
	if !ok {
		t.Fatal("instance not found by short server id")
	}
	if info.Lifetime != DefaultLifetime || info.Binding != DefaultBinding {
		t.Errorf("defaults = %+v", info)
	}
	if _, ok := srv.Lookup(reg, 8); ok {
		t.Error("unexpected match")
	}
	if err := reg.ExecuteResource(ServerID, 2, ServerUpdateTrigger, nil); !errors.Is(err, ErrNotSupported) {
		t.Errorf("trigger without events: err = %v", err)
	}
}

func TestValidBinding(t *testing.T) {
	for _, b := range []string{"U", "UQ", "S", "SQ", "US", "UQS"} {
		if !ValidBinding(b) {
			t.Errorf("ValidBinding(%q) = false", b)
		}
	}
	for _, b := range []string{"", "Q", "T", "UT", "u"} {
		if ValidBinding(b) {
			t.Errorf("ValidBinding(%q) = true", b)
		}
	}
}

func newTestDevice(t *testing.T, cfg DeviceConfig) (*registry.Registry, *Device) {
	t.Helper()
	reg := registry.New()
	dev := NewDevice(cfg)
	define(t, reg, dev.Definition())
	if err := reg.AddInstance(DeviceID, 0); err != nil {
		t.Fatal(err)
	}
	return reg, dev
}

func TestDevice_Read(t *testing.T) {
	reg, _ := newTestDevice(t, DeviceConfig{Info: DeviceInfo{
		Manufacturer:    "Acme",
		ModelNumber:     "T-1000",
		SerialNumber:    "SN42",
		FirmwareVersion: "1.2.0",
	}})

	recs, err := reg.ReadInstance(DeviceID, 0)
	if err != nil {
		t.Fatalf("ReadInstance: %v", err)
	}
	got := map[uint16]tlv.Record{}
	for _, r := range recs {
		got[r.ID] = r
	}
	if len(got) != 9 {
		t.Errorf("read %d resources, want 9", len(got))
	}
	if got[DeviceManufacturer].StringValue() != "Acme" || got[DeviceFirmwareVersion].StringValue() != "1.2.0" {
		t.Errorf("strings = %q %q", got[DeviceManufacturer].StringValue(), got[DeviceFirmwareVersion].StringValue())
	}
	if got[DeviceSupportedBinding].StringValue() != "U" {
		t.Errorf("binding = %q", got[DeviceSupportedBinding].StringValue())
	}

	// The whole instance must encode; the Error Code container included.
	if _, err := tlv.EncodeAll(recs); err != nil {
		t.Errorf("EncodeAll: %v", err)
	}
}

func TestDevice_ErrorCodes(t *testing.T) {
	reg, dev := newTestDevice(t, DeviceConfig{})

	read := func() []int64 {
		rec, err := reg.ReadResource(DeviceID, 0, DeviceErrorCode)
		if err != nil {
			t.Fatalf("ReadResource: %v", err)
		}
		if rec.Kind != tlv.KindMultipleResource || rec.ID != DeviceErrorCode {
			t.Fatalf("record = %+v", rec)
		}
		children, err := rec.Children()
		if err != nil {
			t.Fatal(err)
		}
		var out []int64
		for i := range children {
			if err := children[i].As(tlv.TypeInteger); err != nil {
				t.Fatal(err)
			}
			out = append(out, children[i].Int)
		}
		return out
	}

	if got := read(); len(got) != 1 || got[0] != 0 {
		t.Errorf("no errors: %v", got)
	}
	dev.SetErrors(1, 5)
	if got := read(); len(got) != 2 || got[0] != 1 || got[1] != 5 {
		t.Errorf("errors: %v", got)
	}
}

func TestDevice_CurrentTime(t *testing.T) {
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	reg, dev := newTestDevice(t, DeviceConfig{Now: func() time.Time { return base }})

	rec, err := reg.ReadResource(DeviceID, 0, DeviceCurrentTime)
	if err != nil || !rec.Time().Equal(base) {
		t.Fatalf("current time = %v (%v)", rec.Time(), err)
	}

	set := tlv.Init(tlv.KindResource, tlv.TypeTime, DeviceCurrentTime)
	set.SetTime(base.Add(time.Hour))
	if err := reg.WriteResource(DeviceID, 0, DeviceCurrentTime, encode(t, set)); err != nil {
		t.Fatalf("write current time: %v", err)
	}
	if got := dev.Now(); !got.Equal(base.Add(time.Hour)) {
		t.Errorf("Now = %v", got)
	}

	err = reg.WriteResource(DeviceID, 0, DeviceManufacturer, encode(t, stringRecord(DeviceManufacturer, "x")))
	if !errors.Is(err, registry.ErrMethodNotAllowed) {
		t.Errorf("write manufacturer: err = %v", err)
	}
}

func TestDevice_Execute(t *testing.T) {
	reboots := 0
	reg, _ := newTestDevice(t, DeviceConfig{Reboot: func() error { reboots++; return nil }})

	if err := reg.ExecuteResource(DeviceID, 0, DeviceReboot, nil); err != nil {
		t.Fatalf("reboot: %v", err)
	}
	if reboots != 1 {
		t.Errorf("reboots = %d", reboots)
	}
	if err := reg.ExecuteResource(DeviceID, 0, DeviceFactoryReset, nil); !errors.Is(err, ErrNotSupported) {
		t.Errorf("factory reset: err = %v, want ErrNotSupported", err)
	}
	if err := reg.ExecuteResource(DeviceID, 0, DeviceManufacturer, nil); !errors.Is(err, registry.ErrMethodNotAllowed) {
		t.Errorf("execute manufacturer: err = %v", err)
	}
}

func TestTemperature(t *testing.T) {
	reg := registry.New()
	temp := NewTemperatureObject("Cel")
	define(t, reg, temp.Definition())
	if err := reg.AddInstance(TemperatureID, 0); err != nil {
		t.Fatal(err)
	}
	inst, ok := temp.Instance(0)
	if !ok {
		t.Fatal("instance not tracked")
	}

	read := func(id uint16) float64 {
		t.Helper()
		rec, err := reg.ReadResource(TemperatureID, 0, id)
		if err != nil {
			t.Fatalf("read %d: %v", id, err)
		}
		return rec.Float
	}

	if read(TemperatureMinValue) != 0 || read(TemperatureMaxValue) != 0 {
		t.Error("min/max before any measurement should read as the value")
	}
	for _, v := range []float64{20.5, 18, 23.25} {
		inst.Set(v)
	}
	if read(TemperatureValue) != 23.25 || read(TemperatureMinValue) != 18 || read(TemperatureMaxValue) != 23.25 {
		t.Errorf("value/min/max = %v/%v/%v", read(TemperatureValue), read(TemperatureMinValue), read(TemperatureMaxValue))
	}

	if err := reg.ExecuteResource(TemperatureID, 0, TemperatureResetMinMax, nil); err != nil {
		t.Fatal(err)
	}
	if read(TemperatureMinValue) != 23.25 || read(TemperatureMaxValue) != 23.25 {
		t.Error("reset did not collapse min/max to the current value")
	}
	if got := string(reg.RegisterContent()); got != "</3303/0>" {
		t.Errorf("RegisterContent = %q", got)
	}
}
