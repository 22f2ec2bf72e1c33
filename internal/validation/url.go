package validation

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/pders01/newsroom/internal/api"
)

// FeedURLValidator checks the feed URLs a run is submitted with. The
// backend fetches these URLs itself, so hosts it should never be pointed at
// are refused up front.
type FeedURLValidator struct {
	AllowLocalhost  bool
	AllowPrivateIPs bool
	MaxLength       int
}

func NewFeedURLValidator() *FeedURLValidator {
	return &FeedURLValidator{MaxLength: 2048}
}

// NewPermissiveFeedURLValidator allows loopback and private hosts, for
// pipelines that read feeds from the local network.
func NewPermissiveFeedURLValidator() *FeedURLValidator {
	return &FeedURLValidator{
		AllowLocalhost:  true,
		AllowPrivateIPs: true,
		MaxLength:       2048,
	}
}

func feedErr(format string, args ...any) error {
	return &api.ValidationError{Field: "rss_feeds", Message: fmt.Sprintf(format, args...)}
}

// ValidateAndNormalize validates a feed URL and returns the normalized form.
// A missing scheme defaults to https.
func (v *FeedURLValidator) ValidateAndNormalize(input string) (string, error) {
	input = strings.TrimSpace(input)

	if input == "" {
		return "", feedErr("URL cannot be empty")
	}
	if v.MaxLength > 0 && len(input) > v.MaxLength {
		return "", feedErr("URL too long (max %d characters)", v.MaxLength)
	}
	if strings.ContainsAny(input, "<>\"'` ") {
		return "", feedErr("URL %q contains invalid characters", input)
	}

	if !strings.Contains(input, "://") {
		input = "https://" + input
	}

	parsed, err := url.Parse(input)
	if err != nil {
		return "", feedErr("invalid URL format: %v", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", feedErr("URL %q must use http or https", input)
	}
	if parsed.Hostname() == "" {
		return "", feedErr("URL %q has no hostname", input)
	}

	if err := v.checkHost(parsed.Hostname()); err != nil {
		return "", err
	}
	if strings.Contains(parsed.Path, "..") {
		return "", feedErr("directory traversal patterns not allowed in URL path")
	}
	query := strings.ToLower(parsed.RawQuery)
	if strings.Contains(query, "<script") || strings.Contains(query, "javascript:") {
		return "", feedErr("suspicious query parameters detected")
	}

	parsed.Host = strings.ToLower(parsed.Host)
	return parsed.String(), nil
}

// ValidateFeedList normalizes every non-blank line of lines, dropping
// duplicates. The error names the first offending line (1-based).
func (v *FeedURLValidator) ValidateFeedList(lines []string) (api.FeedList, error) {
	seen := make(map[string]bool, len(lines))
	out := make(api.FeedList, 0, len(lines))

	for i, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		normalized, err := v.ValidateAndNormalize(line)
		if err != nil {
			var ve *api.ValidationError
			if errors.As(err, &ve) {
				ve.Message = fmt.Sprintf("line %d: %s", i+1, ve.Message)
			}
			return nil, err
		}
		if seen[normalized] {
			continue
		}
		seen[normalized] = true
		out = append(out, normalized)
	}

	if len(out) == 0 {
		return nil, feedErr("no RSS feeds given")
	}
	return out, nil
}

// ParseFeedList splits a newline or comma separated block of feed URLs.
func ParseFeedList(block string) []string {
	fields := strings.FieldsFunc(block, func(r rune) bool {
		return r == '\n' || r == '\r' || r == ','
	})
	out := fields[:0]
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}

func (v *FeedURLValidator) checkHost(hostname string) error {
	hostname = strings.ToLower(hostname)

	if !v.AllowLocalhost && isLocalhost(hostname) {
		return feedErr("localhost URLs are not permitted")
	}
	if ip := net.ParseIP(hostname); ip != nil {
		if !v.AllowPrivateIPs && isPrivateIP(ip) && !(v.AllowLocalhost && ip.IsLoopback()) {
			return feedErr("private IP addresses are not permitted")
		}
		if ip.IsUnspecified() || ip.Equal(net.IPv4bcast) {
			return feedErr("address %s cannot serve a feed", hostname)
		}
		return nil
	}
	if looksHexEncoded(hostname) {
		return feedErr("suspicious hostname detected")
	}
	return nil
}

func isLocalhost(hostname string) bool {
	if hostname == "localhost" || strings.HasSuffix(hostname, ".localhost") {
		return true
	}
	ip := net.ParseIP(hostname)
	return ip != nil && ip.IsLoopback()
}

func isPrivateIP(ip net.IP) bool {
	return ip.IsPrivate() || ip.IsLoopback() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast()
}

// looksHexEncoded flags dotted hostnames made of long hex runs, a common
// way of smuggling an address past naive checks.
func looksHexEncoded(hostname string) bool {
	parts := strings.Split(hostname, ".")
	if len(parts) != 4 {
		return false
	}
	for _, part := range parts {
		if len(part) <= 6 || !isHexString(part) {
			return false
		}
	}
	return true
}

func isHexString(s string) bool {
	for _, char := range s {
		if !((char >= '0' && char <= '9') || (char >= 'a' && char <= 'f') || (char >= 'A' && char <= 'F')) {
			return false
		}
	}
	return true
}
