package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"

	"github.com/alimgiray/hookmetrics/pkg/logger"
	"github.com/alimgiray/hookmetrics/pkg/metrics"
	"github.com/google/go-github/v57/github"
	"github.com/sirupsen/logrus"
)

// Allowlist holds the current sender ranges; refreshes swap the whole snapshot
type Allowlist struct {
	mu     sync.RWMutex
	ranges AllowlistRanges
}

func NewAllowlist() *Allowlist {
	return &Allowlist{}
}

// Ranges returns the current snapshot
func (a *Allowlist) Ranges() AllowlistRanges {
	if a == nil {
		return AllowlistRanges{}
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.ranges
}

func (a *Allowlist) SetGitHub(networks []*net.IPNet) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.ranges.GitHub = networks
}

func (a *Allowlist) SetCloudflare(networks []*net.IPNet) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.ranges.Cloudflare = networks
}

// ParseCIDRs parses CIDR strings; bare addresses become single-host networks
func ParseCIDRs(values []string) ([]*net.IPNet, error) {
	networks := make([]*net.IPNet, 0, len(values))
	for _, value := range values {
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		if !strings.Contains(value, "/") {
			ip := net.ParseIP(value)
			if ip == nil {
				return nil, fmt.Errorf("invalid address %q", value)
			}
			bits := 128
			if ip.To4() != nil {
				ip, bits = ip.To4(), 32
			}
			networks = append(networks, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
			continue
		}
		_, network, err := net.ParseCIDR(value)
		if err != nil {
			return nil, fmt.Errorf("invalid CIDR %q: %w", value, err)
		}
		networks = append(networks, network)
	}
	return networks, nil
}

// MetaClient is the part of the GitHub API used to discover hook ranges
type MetaClient interface {
	Get(ctx context.Context) (*github.APIMeta, *github.Response, error)
}

// AllowlistService refreshes the allowlist from GitHub's meta API and Cloudflare's IP list
type AllowlistService struct {
	allowlist     *Allowlist
	meta          MetaClient
	httpClient    *http.Client
	cloudflareURL string
	policy        IPPolicy
	metrics       *metrics.Metrics
}

func NewAllowlistService(allowlist *Allowlist, meta MetaClient, httpClient *http.Client, cloudflareURL string, policy IPPolicy, m *metrics.Metrics) *AllowlistService {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &AllowlistService{
		allowlist:     allowlist,
		meta:          meta,
		httpClient:    httpClient,
		cloudflareURL: cloudflareURL,
		policy:        policy,
		metrics:       m,
	}
}

// Refresh reloads every enabled allowlist. A failed source keeps its previous ranges.
func (s *AllowlistService) Refresh(ctx context.Context) error {
	var errs []string

	if s.policy.GitHub {
		networks, err := s.fetchGitHub(ctx)
		if err != nil {
			errs = append(errs, err.Error())
		} else {
			s.allowlist.SetGitHub(networks)
			s.metrics.SetAllowlistSize("github", len(networks))
		}
	}

	if s.policy.Cloudflare {
		networks, err := s.fetchCloudflare(ctx)
		if err != nil {
			errs = append(errs, err.Error())
		} else {
			s.allowlist.SetCloudflare(networks)
			s.metrics.SetAllowlistSize("cloudflare", len(networks))
		}
	}

	ranges := s.allowlist.Ranges()
	logger.WithFields(logrus.Fields{
		"github_ranges":     len(ranges.GitHub),
		"cloudflare_ranges": len(ranges.Cloudflare),
	}).Info("Allowlist refreshed")

	if len(errs) > 0 {
		return fmt.Errorf("refresh allowlist: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (s *AllowlistService) fetchGitHub(ctx context.Context) ([]*net.IPNet, error) {
	meta, _, err := s.meta.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("github meta: %w", err)
	}
	networks, err := ParseCIDRs(meta.Hooks)
	if err != nil {
		return nil, fmt.Errorf("github meta: %w", err)
	}
	return networks, nil
}

type cloudflareIPsResponse struct {
	Success bool `json:"success"`
	Result  struct {
		IPv4CIDRs []string `json:"ipv4_cidrs"`
		IPv6CIDRs []string `json:"ipv6_cidrs"`
	} `json:"result"`
}

func (s *AllowlistService) fetchCloudflare(ctx context.Context) ([]*net.IPNet, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.cloudflareURL, nil)
	if err != nil {
		return nil, fmt.Errorf("cloudflare ips: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("cloudflare ips: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("cloudflare ips: unexpected status %d", resp.StatusCode)
	}

	var body cloudflareIPsResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("cloudflare ips: %w", err)
	}
	if !body.Success {
		return nil, fmt.Errorf("cloudflare ips: API reported failure")
	}

	networks, err := ParseCIDRs(append(body.Result.IPv4CIDRs, body.Result.IPv6CIDRs...))
	if err != nil {
		return nil, fmt.Errorf("cloudflare ips: %w", err)
	}
	return networks, nil
}
