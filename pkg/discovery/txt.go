package discovery

import (
	"fmt"
	"strings"
)

// TXT record keys of an LWM2M server entry.
const (
	// TXTKeyRole is the server role, "bs" or "dm".
	TXTKeyRole = "role"

	// TXTKeyVersion is the LWM2M enabler version, e.g. "1.0".
	TXTKeyVersion = "lwm2m"
)

// ServerTXT is the TXT content of an LWM2M server entry.
type ServerTXT struct {
	Role    Role
	Version string
}

// Encode returns the TXT record strings for t.
func (t *ServerTXT) Encode() []string {
	var records []string
	if v := t.Role.TXTValue(); v != "" {
		records = append(records, TXTKeyRole+"="+v)
	}
	if t.Version != "" {
		records = append(records, TXTKeyVersion+"="+t.Version)
	}
	return records
}

// ParseTXT parses TXT record strings into a key-value map. Keys without a
// value map to "". Later duplicates are ignored.
func ParseTXT(records []string) map[string]string {
	result := make(map[string]string, len(records))
	for _, record := range records {
		key, value, _ := strings.Cut(record, "=")
		if key == "" {
			continue
		}
		if _, ok := result[key]; !ok {
			result[key] = value
		}
	}
	return result
}

// ParseServerTXT parses the TXT records of an LWM2M server entry.
func ParseServerTXT(records []string) (*ServerTXT, error) {
	txt := ParseTXT(records)
	role, err := ParseRole(txt[TXTKeyRole])
	if err != nil {
		return nil, fmt.Errorf("%w: %s=%q", ErrInvalidTXTRecord, TXTKeyRole, txt[TXTKeyRole])
	}
	return &ServerTXT{Role: role, Version: txt[TXTKeyVersion]}, nil
}
