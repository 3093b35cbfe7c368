package services

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateSignature(t *testing.T) {
	body := []byte(`{"zen":"Keep it logically awesome."}`)
	valid := sign(body)

	testCases := []struct {
		name      string
		body      []byte
		signature string
		secret    string
		expected  bool
	}{
		{"valid signature", body, valid, testSecret, true},
		{"wrong secret", body, valid, "another secret", false},
		{"tampered body", []byte(`{"zen":"changed"}`), valid, testSecret, false},
		{"missing header", body, "", testSecret, false},
		{"missing prefix", body, valid[len("sha256="):], testSecret, false},
		{"sha1 prefix", body, "sha1=" + valid[len("sha256="):], testSecret, false},
		{"not hex", body, "sha256=zzzz", testSecret, false},
		{"uppercase digest", body, "sha256=" + strings.ToUpper(valid[len("sha256="):]), testSecret, false},
		{"empty secret", body, valid, "", false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, ValidateSignature(tc.body, tc.signature, tc.secret))
		})
	}
}

// flipChar returns a different character at the same position: letters swap case, digits step by one
func flipChar(c byte) byte {
	switch {
	case c >= 'a' && c <= 'z':
		return c - 'a' + 'A'
	case c >= 'A' && c <= 'Z':
		return c - 'A' + 'a'
	case c >= '0' && c <= '8':
		return c + 1
	case c == '9':
		return '0'
	}
	return c + 1
}

func TestValidateSignatureRejectsEverySingleCharacterChange(t *testing.T) {
	body := []byte(`{"action":"opened","number":1}`)
	valid := sign(body)
	require.True(t, ValidateSignature(body, valid, testSecret))

	for i := 0; i < len(valid); i++ {
		flipped := []byte(valid)
		flipped[i] = flipChar(flipped[i])
		assert.False(t, ValidateSignature(body, string(flipped), testSecret), "position %d: %s", i, flipped)
	}
}

func TestValidateSource(t *testing.T) {
	githubRanges, err := ParseCIDRs([]string{"192.30.252.0/22", "2a0a:a440::/29"})
	require.NoError(t, err)
	cloudflareRanges, err := ParseCIDRs([]string{"173.245.48.0/20"})
	require.NoError(t, err)
	ranges := AllowlistRanges{GitHub: githubRanges, Cloudflare: cloudflareRanges}

	t.Run("Disabled policy accepts anything", func(t *testing.T) {
		for _, ip := range []string{"0.0.0.0", "10.0.0.1", "not-an-ip", ""} {
			assert.True(t, ValidateSource(ip, IPPolicy{}, AllowlistRanges{}), ip)
		}
	})

	t.Run("GitHub only", func(t *testing.T) {
		policy := IPPolicy{GitHub: true}
		assert.True(t, ValidateSource("192.30.252.10", policy, ranges))
		assert.True(t, ValidateSource("2a0a:a440::1", policy, ranges))
		assert.False(t, ValidateSource("173.245.48.1", policy, ranges))
		assert.False(t, ValidateSource("10.0.0.1", policy, ranges))
		assert.False(t, ValidateSource("garbage", policy, ranges))
	})

	t.Run("Cloudflare only", func(t *testing.T) {
		policy := IPPolicy{Cloudflare: true}
		assert.True(t, ValidateSource("173.245.48.1", policy, ranges))
		assert.False(t, ValidateSource("192.30.252.10", policy, ranges))
	})

	t.Run("Either allowlist", func(t *testing.T) {
		policy := IPPolicy{GitHub: true, Cloudflare: true}
		assert.True(t, ValidateSource("173.245.48.1", policy, ranges))
		assert.True(t, ValidateSource("192.30.252.10", policy, ranges))
		assert.False(t, ValidateSource("8.8.8.8", policy, ranges))
	})

	t.Run("Enabled with empty ranges fails closed", func(t *testing.T) {
		assert.False(t, ValidateSource("192.30.252.10", IPPolicy{GitHub: true}, AllowlistRanges{}))
	})
}

func TestTeamResolver(t *testing.T) {
	resolver := NewTeamResolver(map[string]string{
		"alice": "core",
		"bob":   "web",
		"carol": "core",
	})

	testCases := []struct {
		name         string
		reviewer     string
		author       string
		labels       []string
		reviewerTeam string
		prTeam       string
		crossTeam    bool
	}{
		{"different teams", "bob", "alice", nil, "web", "core", true},
		{"same team", "carol", "alice", nil, "core", "core", false},
		{"unknown reviewer", "dave", "alice", nil, "", "core", false},
		{"unknown author", "bob", "dave", nil, "web", "", false},
		{"sig label wins over author", "bob", "alice", []string{"bug", "sig-web"}, "web", "web", false},
		{"sig label makes it cross team", "alice", "carol", []string{"sig-web"}, "core", "web", true},
		{"empty sig label ignored", "bob", "alice", []string{"sig-"}, "web", "core", true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			reviewerTeam, prTeam, cross := resolver.Resolve(tc.reviewer, tc.author, tc.labels)
			assert.Equal(t, tc.reviewerTeam, reviewerTeam)
			assert.Equal(t, tc.prTeam, prTeam)
			assert.Equal(t, tc.crossTeam, cross)
		})
	}
}
