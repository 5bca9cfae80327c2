// Package target normalizes the domains and IP addresses a run is aimed at.
package target

import (
	"bufio"
	"errors"
	"fmt"
	"net/netip"
	"os"
	"strings"

	"golang.org/x/net/idna"
	"golang.org/x/net/publicsuffix"
)

// ErrInvalidTarget is returned for values that are neither a domain nor an IP.
var ErrInvalidTarget = errors.New("invalid target")

// lookup validates and converts internationalized names to ASCII.
var lookup = idna.New(
	idna.MapForLookup(),
	idna.BidiRule(),
	idna.StrictDomainName(true),
	idna.Transitional(false),
)

// Normalize returns the canonical form of a target: an IP address as
// printed by netip, or a lower-case ASCII (punycode) domain. URL schemes,
// paths, ports and a trailing dot are stripped.
func Normalize(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if i := strings.Index(s, "://"); i >= 0 {
		s = s[i+3:]
	}
	if i := strings.IndexAny(s, "/?#"); i >= 0 {
		s = s[:i]
	}
	if s == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidTarget)
	}

	if addr, err := netip.ParseAddr(strings.Trim(s, "[]")); err == nil {
		return addr.String(), nil
	}
	if ap, err := netip.ParseAddrPort(s); err == nil {
		return ap.Addr().String(), nil
	}
	if host, port, ok := strings.Cut(s, ":"); ok && isPort(port) {
		s = host
	}

	s = strings.TrimSuffix(s, ".")
	ascii, err := lookup.ToASCII(s)
	if err != nil {
		return "", fmt.Errorf("%w: %q: %v", ErrInvalidTarget, raw, err)
	}
	ascii = strings.ToLower(ascii)
	if !strings.Contains(ascii, ".") {
		return "", fmt.Errorf("%w: %q is not a fully qualified domain", ErrInvalidTarget, raw)
	}
	return ascii, nil
}

// IsIP reports whether target is an IP address.
func IsIP(target string) bool {
	_, err := netip.ParseAddr(target)
	return err == nil
}

// RootDomain returns the registrable domain of a normalized domain, e.g.
// "example.co.uk" for "api.example.co.uk". IPs and names without a
// registrable part yield "".
func RootDomain(target string) string {
	if IsIP(target) {
		return ""
	}
	root, err := publicsuffix.EffectiveTLDPlusOne(target)
	if err != nil {
		return ""
	}
	return root
}

// InScope reports whether host equals domain or is one of its subdomains.
func InScope(host, domain string) bool {
	host = strings.TrimSuffix(strings.ToLower(host), ".")
	domain = strings.TrimSuffix(strings.ToLower(domain), ".")
	return host == domain || strings.HasSuffix(host, "."+domain)
}

// Expand turns a CLI argument into targets. An argument naming an existing
// file is read as one target per line; blank lines and lines starting with
// '#' are skipped. Duplicates are removed keeping the first occurrence.
func Expand(arg string) ([]string, error) {
	info, err := os.Stat(arg)
	if err != nil || info.IsDir() {
		t, err := Normalize(arg)
		if err != nil {
			return nil, err
		}
		return []string{t}, nil
	}

	f, err := os.Open(arg) //nolint:gosec // target list provided by user
	if err != nil {
		return nil, fmt.Errorf("failed to open target list: %w", err)
	}
	defer f.Close()

	var (
		targets []string
		seen    = make(map[string]bool)
		lineNo  int
	)
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		t, err := Normalize(line)
		if err != nil {
			return nil, fmt.Errorf("%s:%d: %w", arg, lineNo, err)
		}
		if !seen[t] {
			seen[t] = true
			targets = append(targets, t)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read target list: %w", err)
	}
	if len(targets) == 0 {
		return nil, fmt.Errorf("%w: %s contains no targets", ErrInvalidTarget, arg)
	}
	return targets, nil
}

func isPort(s string) bool {
	if s == "" || len(s) > 5 {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
