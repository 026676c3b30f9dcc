package discovery

import (
	"net"
	"sort"
)

// SortIPsByPreference orders server addresses for dialing, most usable
// first:
//  1. globally routable addresses, IPv6 before IPv4
//  2. IPv6 unique local addresses (fc00::/7)
//  3. private IPv4 addresses
//  4. IPv6 link-local addresses, which need a zone to dial
//  5. loopback, then anything else
//
// The input slice is not modified.
func SortIPsByPreference(ips []net.IP) []net.IP {
	if len(ips) <= 1 {
		return ips
	}
	sorted := make([]net.IP, len(ips))
	copy(sorted, ips)
	sort.SliceStable(sorted, func(i, j int) bool {
		return ipPriority(sorted[i]) < ipPriority(sorted[j])
	})
	return sorted
}

// ipPriority returns the priority of an IP address (lower is better).
func ipPriority(ip net.IP) int {
	if ip.To16() == nil {
		return 99
	}
	v4 := ip.To4() != nil
	switch {
	case isGlobalUnicast(ip) && !v4:
		return 0
	case isGlobalUnicast(ip):
		return 1
	case isUniqueLocal(ip):
		return 2
	case v4 && ip.IsPrivate():
		return 3
	case ip.IsLinkLocalUnicast():
		return 4
	case ip.IsLoopback():
		return 80
	case ip.IsMulticast():
		return 90
	}
	return 10
}

// isGlobalUnicast returns true if the IP is a globally routable unicast
// address. Private IPv4 ranges and ULAs are excluded.
func isGlobalUnicast(ip net.IP) bool {
	return ip.IsGlobalUnicast() && !ip.IsPrivate()
}

// isUniqueLocal returns true if the IP is an IPv6 Unique Local Address
// (fc00::/7).
func isUniqueLocal(ip net.IP) bool {
	if ip.To4() != nil {
		return false
	}
	ip = ip.To16()
	return ip != nil && ip[0]&0xfe == 0xfc
}

// FilterIPv6 returns only IPv6 addresses from the slice.
func FilterIPv6(ips []net.IP) []net.IP {
	var result []net.IP
	for _, ip := range ips {
		if ip.To4() == nil && ip.To16() != nil {
			result = append(result, ip)
		}
	}
	return result
}

// FilterIPv4 returns only IPv4 addresses from the slice.
func FilterIPv4(ips []net.IP) []net.IP {
	var result []net.IP
	for _, ip := range ips {
		if ip.To4() != nil {
			result = append(result, ip)
		}
	}
	return result
}
