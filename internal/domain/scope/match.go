package scope

import "strings"

// NormalizeTarget canonicalizes a raw target string for matching by trimming
// surrounding whitespace and lowercasing.
func NormalizeTarget(target string) string {
	return strings.ToLower(strings.TrimSpace(target))
}

// MatchHost reports whether target satisfies a host pattern. Patterns are
// either literal hostnames, compared by exact equality, or wildcards of the
// form "*.suffix", which match the bare suffix itself and any subdomain of it.
func MatchHost(pattern, target string) bool {
	pattern = NormalizeTarget(pattern)
	target = NormalizeTarget(target)

	if pattern == "" || target == "" {
		return false
	}

	if suffix, ok := strings.CutPrefix(pattern, "*."); ok {
		return target == suffix || strings.HasSuffix(target, "."+suffix)
	}

	return target == pattern
}

// CIDRContains reports whether ip falls inside the IPv4 range expressed by
// cidr. Malformed ranges and addresses never match; the caller treats them as
// out of scope rather than as errors.
func CIDRContains(cidr, ip string) bool {
	base, bits, ok := parseCIDR(cidr)
	if !ok {
		return false
	}

	addr, ok := parseIPv4(ip)
	if !ok {
		return false
	}

	// A zero-length prefix covers the entire address space.
	if bits == 0 {
		return true
	}

	mask := ^uint32(0) << (32 - bits)
	return addr&mask == base&mask
}

// parseCIDR splits "a.b.c.d/n" into the base address and prefix length.
func parseCIDR(s string) (uint32, int, bool) {
	addrPart, bitsPart, ok := strings.Cut(strings.TrimSpace(s), "/")
	if !ok {
		return 0, 0, false
	}

	base, ok := parseIPv4(addrPart)
	if !ok {
		return 0, 0, false
	}

	bits, ok := parseDecimal(bitsPart)
	if !ok || bits > 32 {
		return 0, 0, false
	}

	return base, bits, true
}

// parseIPv4 converts dotted-quad notation into a 32-bit big-endian integer.
func parseIPv4(s string) (uint32, bool) {
	parts := strings.Split(strings.TrimSpace(s), ".")
	if len(parts) != 4 {
		return 0, false
	}

	var addr uint32
	for _, part := range parts {
		octet, ok := parseDecimal(part)
		if !ok || octet > 255 {
			return 0, false
		}
		addr = addr<<8 | uint32(octet)
	}

	return addr, true
}

// parseDecimal parses a non-negative base-10 integer without the permissive
// forms strconv allows (signs, surrounding space).
func parseDecimal(s string) (int, bool) {
	if s == "" || len(s) > 3 {
		return 0, false
	}

	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, false
		}
		n = n*10 + int(r-'0')
	}

	return n, true
}
