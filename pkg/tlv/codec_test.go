package tlv

import (
	"bytes"
	"errors"
	"math"
	"testing"
	"time"
)

func TestMarshal_StringResource(t *testing.T) {
	r := Init(KindResource, TypeString, 5)
	r.SetString("19")

	got, err := r.Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	want := []byte{0xC2, 0x05, 0x31, 0x39}
	if !bytes.Equal(got, want) {
		t.Errorf("Marshal = %x, want %x", got, want)
	}
}

func TestMarshal_Vectors(t *testing.T) {
	tests := []struct {
		name string
		rec  func() Record
		want []byte
	}{
		{"int8", func() Record { r := Init(KindResource, TypeInteger, 1); r.SetInt(-1); return r },
			[]byte{0xC1, 0x01, 0xFF}},
		{"int16", func() Record { r := Init(KindResource, TypeInteger, 1); r.SetInt(300); return r },
			[]byte{0xC2, 0x01, 0x01, 0x2C}},
		{"int16 negative edge", func() Record { r := Init(KindResource, TypeInteger, 1); r.SetInt(-129); return r },
			[]byte{0xC2, 0x01, 0xFF, 0x7F}},
		{"int32", func() Record { r := Init(KindResource, TypeInteger, 1); r.SetInt(70000); return r },
			[]byte{0xC4, 0x01, 0x00, 0x01, 0x11, 0x70}},
		{"int64", func() Record { r := Init(KindResource, TypeInteger, 1); r.SetInt(1 << 40); return r },
			[]byte{0xC8, 0x01, 0x08, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x00, 0x00}},
		{"boolean", func() Record { r := Init(KindResource, TypeBoolean, 2); r.SetBool(true); return r },
			[]byte{0xC1, 0x02, 0x01}},
		{"float", func() Record { r := Init(KindResource, TypeFloat, 3); r.SetFloat(1.0); return r },
			[]byte{0xC8, 0x03, 0x08, 0x3F, 0xF0, 0, 0, 0, 0, 0, 0}},
		{"object link", func() Record { r := Init(KindResource, TypeObjectLink, 4); r.SetObjectLink(3, 1); return r },
			[]byte{0xC4, 0x04, 0x00, 0x03, 0x00, 0x01}},
		{"wide id", func() Record { r := Init(KindResource, TypeInteger, 0x1234); r.SetInt(7); return r },
			[]byte{0xE1, 0x12, 0x34, 0x07}},
		{"resource instance", func() Record { r := Init(KindResourceInstance, TypeInteger, 0); r.SetInt(1); return r },
			[]byte{0x41, 0x00, 0x01}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := tt.rec()
			got, err := r.Marshal()
			if err != nil {
				t.Fatalf("Marshal: %v", err)
			}
			if !bytes.Equal(got, tt.want) {
				t.Errorf("Marshal = %x, want %x", got, tt.want)
			}
		})
	}
}

func TestMarshal_LengthFieldWidths(t *testing.T) {
	tests := []struct {
		n       int
		typ     byte
		hdrSize int
	}{
		{7, 0xC7, 2},
		{8, 0xC8, 3},
		{255, 0xC8, 3},
		{256, 0xD0, 4},
		{4096, 0xD0, 4},
	}
	for _, tt := range tests {
		r := Init(KindResource, TypeOpaque, 9)
		r.SetOpaque(bytes.Repeat([]byte{0xAB}, tt.n))
		got, err := r.Marshal()
		if err != nil {
			t.Fatalf("n=%d: %v", tt.n, err)
		}
		if got[0] != tt.typ {
			t.Errorf("n=%d: type byte = %#x, want %#x", tt.n, got[0], tt.typ)
		}
		if len(got) != tt.hdrSize+tt.n {
			t.Errorf("n=%d: encoded length = %d, want %d", tt.n, len(got), tt.hdrSize+tt.n)
		}
	}
}

func TestRoundTrip(t *testing.T) {
	records := []Record{
		{Kind: KindResource, ID: 0, Type: TypeString, Bytes: []byte("Open Mobile Alliance")},
		{Kind: KindResource, ID: 1, Type: TypeInteger, Int: math.MinInt64},
		{Kind: KindResource, ID: 2, Type: TypeInteger, Int: math.MaxInt32},
		{Kind: KindResource, ID: 3, Type: TypeFloat, Float: -273.15},
		{Kind: KindResource, ID: 4, Type: TypeBoolean, Bool: false},
		{Kind: KindResource, ID: 5, Type: TypeTime, Int: 1700000000},
		{Kind: KindResource, ID: 6, Type: TypeObjectLink, Link: ObjectLink{ObjectID: 0xFFFF, InstanceID: 2}},
		{Kind: KindResource, ID: 300, Type: TypeOpaque, Bytes: bytes.Repeat([]byte{1, 2, 3}, 100)},
	}

	for _, want := range records {
		t.Run(want.Type.String(), func(t *testing.T) {
			data, err := want.Marshal()
			if err != nil {
				t.Fatalf("Marshal: %v", err)
			}

			got := Record{Type: want.Type}
			n, err := got.Unmarshal(data)
			if err != nil {
				t.Fatalf("Unmarshal: %v", err)
			}
			if n != len(data) {
				t.Errorf("consumed %d, want %d", n, len(data))
			}
			if got.Kind != want.Kind || got.ID != want.ID || got.Type != want.Type ||
				got.Int != want.Int || got.Float != want.Float || got.Bool != want.Bool ||
				got.Link != want.Link || !bytes.Equal(got.Bytes, want.Bytes) {
				t.Errorf("round trip = %+v, want %+v", got, want)
			}
		})
	}
}

func TestOpaqueBoundary(t *testing.T) {
	r := Init(KindResource, TypeOpaque, 1)
	r.SetOpaque(make([]byte, MaxValueLen))
	data, err := r.Marshal()
	if err != nil {
		t.Fatalf("4096 bytes: %v", err)
	}
	got := Record{Type: TypeOpaque}
	if _, err := got.Unmarshal(data); err != nil {
		t.Fatalf("Unmarshal 4096: %v", err)
	}
	if len(got.Bytes) != MaxValueLen {
		t.Errorf("decoded %d bytes", len(got.Bytes))
	}

	r.SetOpaque(make([]byte, MaxValueLen+1))
	if _, err := r.Marshal(); !errors.Is(err, ErrValueTooLarge) {
		t.Errorf("4097 bytes: err = %v, want ErrValueTooLarge", err)
	}

	// 0xD0: resource, 2 length bytes; length 0x1001 = 4097.
	oversized := append([]byte{0xD0, 0x01, 0x10, 0x01}, make([]byte, MaxValueLen+1)...)
	if _, _, err := Decode(oversized); !errors.Is(err, ErrValueTooLarge) {
		t.Errorf("Decode 4097: err = %v, want ErrValueTooLarge", err)
	}
}

func TestDecode_Malformed(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"empty", nil, ErrTruncated},
		{"type only", []byte{0xC1}, ErrTruncated},
		{"wide id cut", []byte{0xE1, 0x01}, ErrTruncated},
		{"length byte missing", []byte{0xC8, 0x01}, ErrTruncated},
		{"value short", []byte{0xC3, 0x01, 0x00}, ErrTruncated},
		{"declared past end", []byte{0xC8, 0x01, 0x10, 0x00}, ErrTruncated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := Decode(tt.data); !errors.Is(err, tt.want) {
				t.Errorf("Decode err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestAs_TypeErrors(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		typ  ResourceType
		want error
	}{
		{"int of 3 bytes", []byte{0xC3, 0x01, 1, 2, 3}, TypeInteger, ErrInvalidLength},
		{"bool of 2", []byte{0xC2, 0x01, 0, 1}, TypeBoolean, ErrInvalidLength},
		{"bool value 2", []byte{0xC1, 0x01, 2}, TypeBoolean, ErrInvalidBoolean},
		{"objlnk short", []byte{0xC2, 0x01, 0, 1}, TypeObjectLink, ErrInvalidLength},
		{"float 2 bytes", []byte{0xC2, 0x01, 0, 1}, TypeFloat, ErrInvalidLength},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := Record{Type: tt.typ}
			if _, err := r.Unmarshal(tt.data); !errors.Is(err, tt.want) {
				t.Errorf("Unmarshal err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestAs_Float32(t *testing.T) {
	r := Record{Type: TypeFloat}
	if _, err := r.Unmarshal([]byte{0xC4, 0x01, 0x3F, 0xC0, 0x00, 0x00}); err != nil {
		t.Fatal(err)
	}
	if r.Float != 1.5 {
		t.Errorf("Float = %v, want 1.5", r.Float)
	}
}

func TestPeekID(t *testing.T) {
	r := Init(KindResource, TypeInteger, 0x0102)
	r.SetInt(5)
	data, _ := r.Marshal()
	id, err := PeekID(data)
	if err != nil {
		t.Fatal(err)
	}
	if id != 0x0102 {
		t.Errorf("PeekID = %#x", id)
	}
	if _, err := PeekID([]byte{0xC0}); !errors.Is(err, ErrTruncated) {
		t.Errorf("PeekID short: %v", err)
	}
}

func TestContainer(t *testing.T) {
	name := Init(KindResource, TypeString, 0)
	name.SetString("coaps://srv:5684")
	flag := Init(KindResource, TypeBoolean, 1)
	flag.SetBool(false)

	inst, err := NewContainer(KindObjectInstance, 0, []Record{name, flag})
	if err != nil {
		t.Fatal(err)
	}
	data, err := inst.Marshal()
	if err != nil {
		t.Fatal(err)
	}
	if data[0]>>6 != byte(KindObjectInstance) {
		t.Errorf("container kind bits = %d", data[0]>>6)
	}

	outer, err := DecodeAll(data)
	if err != nil || len(outer) != 1 {
		t.Fatalf("DecodeAll: %v (%d records)", err, len(outer))
	}
	children, err := outer[0].Children()
	if err != nil {
		t.Fatal(err)
	}
	if len(children) != 2 {
		t.Fatalf("children = %d", len(children))
	}
	if err := children[0].As(TypeString); err != nil || children[0].StringValue() != "coaps://srv:5684" {
		t.Errorf("child 0 = %q (%v)", children[0].StringValue(), err)
	}
	if err := children[1].As(TypeBoolean); err != nil || children[1].Bool {
		t.Errorf("child 1 = %v (%v)", children[1].Bool, err)
	}

	if _, err := name.Children(); !errors.Is(err, ErrNotContainer) {
		t.Errorf("Children on leaf: %v", err)
	}
	if _, err := NewContainer(KindResource, 0, nil); !errors.Is(err, ErrInvalidKind) {
		t.Errorf("NewContainer leaf kind: %v", err)
	}
}

func TestTimeValue(t *testing.T) {
	ts := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	r := Init(KindResource, TypeTime, 13)
	r.SetTime(ts)
	data, _ := r.Marshal()

	got := Record{Type: TypeTime}
	if _, err := got.Unmarshal(data); err != nil {
		t.Fatal(err)
	}
	if !got.Time().Equal(ts) {
		t.Errorf("Time = %v, want %v", got.Time(), ts)
	}
}

func TestEnums(t *testing.T) {
	if KindMultipleResource.String() != "MultipleResource" || Kind(4).IsValid() {
		t.Error("Kind enum")
	}
	if TypeObjectLink.String() != "Objlnk" || ResourceType(9).IsValid() {
		t.Error("ResourceType enum")
	}
}
