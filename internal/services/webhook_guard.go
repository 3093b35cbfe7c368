package services

import (
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/google/go-github/v57/github"
)

const signaturePrefix = "sha256="

var (
	ErrInvalidSignature = errors.New("invalid webhook signature")
	ErrForbiddenSource  = errors.New("webhook source not allowed")
	ErrMissingDelivery  = errors.New("missing delivery id")
	ErrMalformedBody    = errors.New("webhook body is not a JSON object")
)

// StorageError wraps a write failure that is not a duplicate delivery
type StorageError struct {
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("store webhook: %v", e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// ValidateSignature checks an X-Hub-Signature-256 header against the raw body.
// Malformed or missing headers simply fail the check.
func ValidateSignature(body []byte, signatureHeader, secret string) bool {
	if secret == "" || !strings.HasPrefix(signatureHeader, signaturePrefix) {
		return false
	}
	// hex decoding ignores case; only the canonical lowercase digest is accepted
	digest := signatureHeader[len(signaturePrefix):]
	if digest != strings.ToLower(digest) {
		return false
	}
	// go-github compares the decoded digests with hmac.Equal
	return github.ValidateSignature(signatureHeader, body, []byte(secret)) == nil
}

// IPPolicy selects which allowlists a sender must match
type IPPolicy struct {
	GitHub     bool
	Cloudflare bool
}

func (p IPPolicy) Enabled() bool {
	return p.GitHub || p.Cloudflare
}

// AllowlistRanges is a pre-resolved snapshot of permitted sender networks
type AllowlistRanges struct {
	GitHub     []*net.IPNet
	Cloudflare []*net.IPNet
}

// ValidateSource reports whether clientIP may deliver webhooks under policy.
// With no allowlist enabled every input passes, including unparsable addresses.
func ValidateSource(clientIP string, policy IPPolicy, ranges AllowlistRanges) bool {
	if !policy.Enabled() {
		return true
	}

	ip := net.ParseIP(strings.TrimSpace(clientIP))
	if ip == nil {
		return false
	}

	if policy.GitHub && containsIP(ranges.GitHub, ip) {
		return true
	}
	if policy.Cloudflare && containsIP(ranges.Cloudflare, ip) {
		return true
	}
	return false
}

func containsIP(networks []*net.IPNet, ip net.IP) bool {
	for _, network := range networks {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}
