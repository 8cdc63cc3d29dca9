package discovery

import (
	"encoding/hex"
	"errors"
	"net"
	"net/url"
	"sort"
	"strings"

	"github.com/zeebo/xxh3"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// FingerprintVersion prefixes every session fingerprint.
const FingerprintVersion = "v1"

// ErrEmptyIdentifier is returned for identifiers that are blank after trimming.
var ErrEmptyIdentifier = errors.New("identifier is empty")

var (
	lower        = cases.Lower(language.Und)
	defaultPorts = map[string]string{"http": "80", "https": "443"}
)

// Canonicalize returns the form under which raw is stored. Absolute URLs get
// a lowercase scheme and host, no default port, and no fragment; everything
// else is only trimmed and NFC-normalized.
func Canonicalize(raw string) (string, error) {
	trimmed := norm.NFC.String(strings.TrimSpace(raw))
	if trimmed == "" {
		return "", ErrEmptyIdentifier
	}

	u, err := url.Parse(trimmed)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return trimmed, nil
	}

	u.Scheme = lower.String(u.Scheme)
	host := lower.String(u.Hostname())
	port := u.Port()
	if port != "" && defaultPorts[u.Scheme] != port {
		host = net.JoinHostPort(host, port)
	} else if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	u.Host = host
	u.Fragment = ""
	u.RawFragment = ""
	return u.String(), nil
}

// CanonicalSources canonicalizes, deduplicates, and sorts sources. Blank
// entries are dropped.
func CanonicalSources(sources []string) []string {
	seen := make(map[string]struct{}, len(sources))
	out := make([]string, 0, len(sources))
	for _, source := range sources {
		canonical, err := Canonicalize(source)
		if err != nil {
			continue
		}
		if _, ok := seen[canonical]; ok {
			continue
		}
		seen[canonical] = struct{}{}
		out = append(out, canonical)
	}
	sort.Strings(out)
	return out
}

// Fingerprint identifies a source set independent of order and spelling.
func Fingerprint(sources []string) string {
	sum := xxh3.HashString128(strings.Join(CanonicalSources(sources), "\n")).Bytes()
	return FingerprintVersion + "-" + hex.EncodeToString(sum[:])
}
