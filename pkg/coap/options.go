package coap

import (
	"strings"

	"github.com/backkem/lwm2m/pkg/wire"
)

// Option numbers (RFC 7252 Section 12.2, RFC 7641).
const (
	OptionIfMatch       = 1
	OptionURIHost       = 3
	OptionETag          = 4
	OptionIfNoneMatch   = 5
	OptionObserve       = 6
	OptionURIPort       = 7
	OptionLocationPath  = 8
	OptionURIPath       = 11
	OptionContentFormat = 12
	OptionMaxAge        = 14
	OptionURIQuery      = 15
	OptionAccept        = 17
	OptionLocationQuery = 20
	OptionSize1         = 60
)

// Fixed capacities of the parsed option view.
const (
	MaxPaths          = 3
	MaxLocations      = 2
	MaxQueries        = 4
	MaxSegmentLen     = 15
	MaxQueryKeyLen    = 15
	MaxQueryValueLen  = 63
	maxUintOptionSize = 4
)

// Query is one Uri-Query key=value pair.
type Query struct {
	Key   string
	Value string
}

// Options is the LWM2M-relevant view of a message's options. Capacities are
// enforced by the Add methods and by Unmarshal.
type Options struct {
	Paths     []string
	Locations []string
	Queries   []Query

	ContentFormat    ContentFormat
	HasContentFormat bool

	Accept    ContentFormat
	HasAccept bool

	Observe    uint32
	HasObserve bool
}

// NewOptions returns an empty option set.
func NewOptions() *Options {
	return &Options{}
}

// Reset clears all options.
func (o *Options) Reset() {
	*o = Options{Paths: o.Paths[:0], Locations: o.Locations[:0], Queries: o.Queries[:0]}
}

// AddPath appends a Uri-Path segment.
func (o *Options) AddPath(segment string) error {
	if len(o.Paths) >= MaxPaths || len(segment) > MaxSegmentLen {
		return ErrOptionOverflow
	}
	o.Paths = append(o.Paths, segment)
	return nil
}

// SetPath replaces the Uri-Path with the segments of p ("/rd/5a3f").
func (o *Options) SetPath(p string) error {
	o.Paths = o.Paths[:0]
	for _, seg := range strings.Split(strings.Trim(p, "/"), "/") {
		if seg == "" {
			continue
		}
		if err := o.AddPath(seg); err != nil {
			return err
		}
	}
	return nil
}

// Path joins the Uri-Path segments, e.g. "/3/0/1".
func (o *Options) Path() string {
	return "/" + strings.Join(o.Paths, "/")
}

// AddLocation appends a Location-Path segment.
func (o *Options) AddLocation(segment string) error {
	if len(o.Locations) >= MaxLocations || len(segment) > MaxSegmentLen {
		return ErrOptionOverflow
	}
	o.Locations = append(o.Locations, segment)
	return nil
}

// AddQuery appends a Uri-Query key=value pair.
func (o *Options) AddQuery(key, value string) error {
	if len(o.Queries) >= MaxQueries || len(key) > MaxQueryKeyLen || len(value) > MaxQueryValueLen {
		return ErrOptionOverflow
	}
	o.Queries = append(o.Queries, Query{Key: key, Value: value})
	return nil
}

// Query returns the value of the first query with the given key.
func (o *Options) Query(key string) (string, bool) {
	for _, q := range o.Queries {
		if q.Key == key {
			return q.Value, true
		}
	}
	return "", false
}

// SetContentFormat sets the Content-Format option.
func (o *Options) SetContentFormat(cf ContentFormat) {
	o.ContentFormat = cf
	o.HasContentFormat = true
}

// SetAccept sets the Accept option.
func (o *Options) SetAccept(cf ContentFormat) {
	o.Accept = cf
	o.HasAccept = true
}

// Marshal appends the options to dst in ascending option-number order using
// delta encoding.
func (o *Options) Marshal(dst []byte) ([]byte, error) {
	if len(o.Paths) > MaxPaths || len(o.Locations) > MaxLocations || len(o.Queries) > MaxQueries {
		return dst, ErrOptionOverflow
	}
	prev := 0
	put := func(num int, value []byte) {
		dst = appendOption(dst, num-prev, value)
		prev = num
	}

	if o.HasObserve {
		put(OptionObserve, appendUint(nil, o.Observe))
	}
	for _, l := range o.Locations {
		if len(l) > MaxSegmentLen {
			return dst, ErrOptionOverflow
		}
		put(OptionLocationPath, []byte(l))
	}
	for _, p := range o.Paths {
		if len(p) > MaxSegmentLen {
			return dst, ErrOptionOverflow
		}
		put(OptionURIPath, []byte(p))
	}
	if o.HasContentFormat {
		put(OptionContentFormat, appendUint(nil, uint32(o.ContentFormat)))
	}
	for _, q := range o.Queries {
		if len(q.Key) > MaxQueryKeyLen || len(q.Value) > MaxQueryValueLen {
			return dst, ErrOptionOverflow
		}
		if q.Value == "" {
			put(OptionURIQuery, []byte(q.Key))
		} else {
			put(OptionURIQuery, []byte(q.Key+"="+q.Value))
		}
	}
	if o.HasAccept {
		put(OptionAccept, appendUint(nil, uint32(o.Accept)))
	}
	return dst, nil
}

// Unmarshal parses an option sequence into o, stopping at the payload marker
// or the end of data. It returns the number of bytes consumed, excluding the
// marker. Elective options this view does not model are skipped; unknown
// critical options fail with ErrUnknownCriticalOption.
func (o *Options) Unmarshal(data []byte) (int, error) {
	o.Reset()
	num := 0
	off := 0
	for off < len(data) {
		if data[off] == PayloadMarker {
			return off, nil
		}
		delta := int(data[off] >> 4)
		length := int(data[off] & 0x0F)
		off++

		var err error
		if delta, off, err = extend(data, off, delta); err != nil {
			return 0, err
		}
		if length, off, err = extend(data, off, length); err != nil {
			return 0, err
		}
		if len(data)-off < length {
			return 0, ErrMalformedOption
		}
		num += delta
		value := data[off : off+length]
		off += length

		if err := o.apply(num, value); err != nil {
			return 0, err
		}
	}
	return off, nil
}

func (o *Options) apply(num int, value []byte) error {
	switch num {
	case OptionURIPath:
		return o.AddPath(string(value))
	case OptionLocationPath:
		return o.AddLocation(string(value))
	case OptionURIQuery:
		key, val, _ := strings.Cut(string(value), "=")
		return o.AddQuery(key, val)
	case OptionContentFormat:
		v, err := parseUint(value, 2)
		if err != nil {
			return err
		}
		o.SetContentFormat(ContentFormat(v))
	case OptionAccept:
		v, err := parseUint(value, 2)
		if err != nil {
			return err
		}
		o.SetAccept(ContentFormat(v))
	case OptionObserve:
		v, err := parseUint(value, 3)
		if err != nil {
			return err
		}
		o.Observe = v
		o.HasObserve = true
	case OptionIfMatch, OptionURIHost, OptionETag, OptionIfNoneMatch, OptionURIPort, OptionMaxAge, OptionLocationQuery, OptionSize1:
		// Recognized, not modeled.
	default:
		if num&1 == 1 {
			return ErrUnknownCriticalOption
		}
	}
	return nil
}

// extend resolves the 13/14 extended forms of a delta or length nibble.
func extend(data []byte, off, nibble int) (int, int, error) {
	switch nibble {
	case 13:
		if off+1 > len(data) {
			return 0, 0, ErrMalformedOption
		}
		return int(data[off]) + 13, off + 1, nil
	case 14:
		if off+2 > len(data) {
			return 0, 0, ErrMalformedOption
		}
		return int(wire.Uint16(data[off:])) + 269, off + 2, nil
	case 15:
		return 0, 0, ErrMalformedOption
	}
	return nibble, off, nil
}

func nibble(v int) (byte, []byte) {
	switch {
	case v < 13:
		return byte(v), nil
	case v < 269:
		return 13, []byte{byte(v - 13)}
	default:
		return 14, wire.AppendUint16(nil, uint16(v-269))
	}
}

func appendOption(dst []byte, delta int, value []byte) []byte {
	d, dext := nibble(delta)
	l, lext := nibble(len(value))
	dst = append(dst, d<<4|l)
	dst = append(dst, dext...)
	dst = append(dst, lext...)
	return append(dst, value...)
}

// appendUint encodes v in the fewest bytes, zero as an empty value.
func appendUint(dst []byte, v uint32) []byte {
	switch {
	case v == 0:
		return dst
	case v <= 0xFF:
		return append(dst, byte(v))
	case v <= 0xFFFF:
		return wire.AppendUint16(dst, uint16(v))
	case v <= 0xFFFFFF:
		return wire.AppendUint24(dst, v)
	default:
		return wire.AppendUint32(dst, v)
	}
}

func parseUint(b []byte, max int) (uint32, error) {
	if len(b) > max || len(b) > maxUintOptionSize {
		return 0, ErrOptionOverflow
	}
	var v uint32
	for _, c := range b {
		v = v<<8 | uint32(c)
	}
	return v, nil
}
