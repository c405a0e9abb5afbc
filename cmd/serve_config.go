package cmd

import (
	"fmt"
	"log"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/marketbridge/mcp-marketdata/internal/output"
)

// simpleLogger provides basic logging for the upstream market-data client
type simpleLogger struct{}

func (l *simpleLogger) Debug(msg string, args ...interface{}) {
	log.Printf("[DEBUG] %s %v", msg, args)
}

func (l *simpleLogger) Info(msg string, args ...interface{}) {
	log.Printf("[INFO] %s %v", msg, args)
}

func (l *simpleLogger) Warn(msg string, args ...interface{}) {
	log.Printf("[WARN] %s %v", msg, args)
}

func (l *simpleLogger) Error(msg string, args ...interface{}) {
	log.Printf("[ERROR] %s %v", msg, args)
}

// ServeConfig holds all configuration for the serve command.
type ServeConfig struct {
	// Transport settings
	Transport string
	HTTPAddr  string

	// Endpoint paths
	SSEEndpoint     string
	MessageEndpoint string
	HTTPEndpoint    string

	// Upstream market-data client settings
	UpstreamBaseURL       string
	UpstreamAPIKey        string
	UpstreamTimeout       time.Duration
	QPSLimit              float64
	BurstLimit            int
	AllowInsecureUpstream bool
	DebugMode             bool

	// Output settings
	Output             output.Config
	DefaultProject     string
	RestrictedProjects []string
	ReadOnly           bool

	// TokenizerVocab is the path to a WordPiece vocabulary file. When set,
	// size estimation uses the exact tokenizer instead of the byte heuristic.
	TokenizerVocab string

	// Metrics server configuration
	Metrics MetricsServeConfig
}

// MetricsServeConfig holds configuration for the standalone Prometheus
// metrics listener.
type MetricsServeConfig struct {
	// Enabled starts the metrics server next to the MCP transport.
	Enabled bool

	// Addr is the metrics listen address.
	Addr string
}

// defaultOutputRoot picks the output directory when none is configured:
// ~/.mcp-marketdata/output, with a temp-dir fallback when the home
// directory is unknown.
func defaultOutputRoot() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "mcp-marketdata", "output")
	}
	return filepath.Join(home, ".mcp-marketdata", "output")
}

// validateSecureURL validates that a URL uses HTTPS and is not vulnerable to SSRF attacks.
// It checks for:
// - Valid URL format
// - HTTPS scheme (HTTP not allowed)
// - No private/local IP addresses
// - No localhost references
func validateSecureURL(urlStr string, fieldName string) error {
	// Check for empty URL
	if urlStr == "" {
		return fmt.Errorf("%s must be a valid URL: empty URL provided", fieldName)
	}

	parsedURL, err := url.Parse(urlStr)
	if err != nil {
		return fmt.Errorf("%s must be a valid URL: %w", fieldName, err)
	}

	// Require HTTPS
	if parsedURL.Scheme != "https" {
		if parsedURL.Scheme == "" {
			return fmt.Errorf("%s must be a valid URL with HTTPS scheme", fieldName)
		}
		return fmt.Errorf("%s must use HTTPS (got: %s)", fieldName, parsedURL.Scheme)
	}

	// Extract hostname for validation
	hostname := parsedURL.Hostname()
	if hostname == "" {
		return fmt.Errorf("%s must have a valid hostname", fieldName)
	}

	// Check for localhost references
	if strings.ToLower(hostname) == "localhost" {
		return fmt.Errorf("%s cannot use localhost", fieldName)
	}

	// Resolve hostname to IP addresses to check for private IPs
	ips, err := net.LookupIP(hostname)
	if err != nil {
		// DNS lookup failure - this could be transient or the domain doesn't exist yet
		// For development/testing purposes, we'll allow this but log a warning
		log.Printf("[WARN] Could not resolve %s (%s) to validate IP address: %v", fieldName, hostname, err)
		return nil
	}

	// Check if any resolved IP is private or loopback
	for _, ip := range ips {
		if isPrivateOrLoopbackIP(ip) {
			return fmt.Errorf("%s resolves to a private or loopback IP address (%s), which could be a security risk", fieldName, ip.String())
		}
	}

	return nil
}

// isPrivateOrLoopbackIP checks if an IP address is private, loopback, or link-local.
func isPrivateOrLoopbackIP(ip net.IP) bool {
	// Check for loopback
	if ip.IsLoopback() {
		return true
	}

	// Check for link-local
	if ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() {
		return true
	}

	// Check for private IPv4 ranges
	// 10.0.0.0/8
	if ip4 := ip.To4(); ip4 != nil {
		if ip4[0] == 10 {
			return true
		}
		// 172.16.0.0/12
		if ip4[0] == 172 && ip4[1] >= 16 && ip4[1] <= 31 {
			return true
		}
		// 192.168.0.0/16
		if ip4[0] == 192 && ip4[1] == 168 {
			return true
		}
	}

	// Check for private IPv6 ranges (fc00::/7 - Unique Local Addresses)
	if len(ip) == net.IPv6len && (ip[0] == 0xfc || ip[0] == 0xfd) {
		return true
	}

	return false
}
