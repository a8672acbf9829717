package helpers

import (
	"errors"
	"net/url"
	"path"
	"sort"
	"strings"
)

var trackingQueryParams = map[string]struct{}{
	"utm_source":   {},
	"utm_medium":   {},
	"utm_campaign": {},
	"utm_term":     {},
	"utm_content":  {},
	"utm_id":       {},
	"gclid":        {},
	"dclid":        {},
	"fbclid":       {},
	"msclkid":      {},
}

// CanonicalURL normalises a URL for comparison: lowercase scheme and host,
// no default port, no fragment, a cleaned path, no tracking parameters and
// sorted query keys. A missing scheme defaults to https.
func CanonicalURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", errors.New("empty url")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	if u.Scheme == "" && u.Host == "" {
		if strings.HasPrefix(raw, "//") {
			u, err = url.Parse("https:" + raw)
		} else {
			u, err = url.Parse("https://" + raw)
		}
		if err != nil {
			return "", err
		}
	}
	u.Scheme = strings.ToLower(u.Scheme)
	if u.Scheme == "" {
		u.Scheme = "https"
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return "", errors.New("url missing host")
	}
	if port := u.Port(); port != "" && !(u.Scheme == "http" && port == "80") && !(u.Scheme == "https" && port == "443") {
		host += ":" + port
	}
	u.Host = host
	u.User = nil

	p := path.Clean("/" + u.Path)
	if p != "/" && strings.HasSuffix(u.Path, "/") {
		p += "/"
	}
	u.Path = p
	u.RawPath = ""
	u.Fragment = ""
	u.RawFragment = ""

	query := u.Query()
	for key := range query {
		if _, drop := trackingQueryParams[strings.ToLower(key)]; drop {
			query.Del(key)
		}
	}
	keys := make([]string, 0, len(query))
	for key := range query {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	var b strings.Builder
	for _, key := range keys {
		values := append([]string(nil), query[key]...)
		sort.Strings(values)
		for _, value := range values {
			if b.Len() > 0 {
				b.WriteByte('&')
			}
			b.WriteString(url.QueryEscape(key))
			if value != "" {
				b.WriteByte('=')
				b.WriteString(url.QueryEscape(value))
			}
		}
	}
	u.RawQuery = b.String()
	u.ForceQuery = false
	return u.String(), nil
}

// IdentityKey returns the deduplication key for a document address: the
// canonical URL, or the trimmed input when it cannot be canonicalised.
// Blank input yields "".
func IdentityKey(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if canonical, err := CanonicalURL(raw); err == nil {
		return canonical
	}
	return raw
}
