package mcp

import (
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/lukelzlz/nanobot/internal/config"
)

// safeServerCommands is the allowlist of programs that may host a stdio
// MCP server. Config pointing anywhere else is rejected at connect time.
var safeServerCommands = map[string]bool{
	"npx": true, "npm": true, "pnpm": true, "yarn": true, "bun": true,
	"uvx": true, "uv": true,
	"python": true, "python3": true,
	"node": true, "deno": true,
	"cargo": true, "rustc": true,
	"go": true, "java": true, "javac": true,
	"docker": true, "docker-compose": true, "podman": true,
}

// shellMetachars mark strings that would need a shell to interpret.
// MCP servers are spawned directly, never through a shell, and config
// that smells like injection is refused outright.
var shellMetachars = []string{
	"|", "&", ";", "$", "`", "\\", ">", "<", "\n", "\r",
}

func containsShellMetachars(s string) bool {
	for _, m := range shellMetachars {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}

// ValidateServerConfig vets an MCP server config before any process is
// spawned or connection opened.
func ValidateServerConfig(cfg config.MCPServerConfig) error {
	switch cfg.Transport {
	case "stdio", "":
		return validateCommand(cfg.Command, cfg.Args)
	case "sse":
		if cfg.URL == "" {
			return fmt.Errorf("sse transport requires a url")
		}
		return ValidateURL(cfg.URL)
	default:
		return fmt.Errorf("unknown transport type: %s", cfg.Transport)
	}
}

func validateCommand(command string, args []string) error {
	if command == "" {
		return fmt.Errorf("stdio transport requires a command")
	}
	for _, part := range append([]string{command}, args...) {
		if containsShellMetachars(part) {
			return fmt.Errorf("shell characters not allowed in server command: %q", part)
		}
	}
	if !safeServerCommands[filepath.Base(command)] {
		return fmt.Errorf("command not in safe list: %s", command)
	}
	return nil
}

// sensitiveEnvPatterns flag environment names that likely carry
// credentials. Matching vars are still passed when the config asks for
// them, but a warning is logged.
var sensitiveEnvPatterns = []string{
	"API_KEY", "APISECRET", "AUTH_TOKEN", "TOKEN",
	"SECRET", "PASSWORD", "PASSWD", "PASS",
	"PRIVATE_KEY", "PRIVKEY", "KEY",
	"CREDENTIAL", "CREDS",
	"SESSION", "COOKIE",
	"OPENAI", "ANTHROPIC", "OPENROUTER",
	"TELEGRAM", "DISCORD", "WHATSAPP", "SLACK",
}

// sanitizeEnv builds the subprocess environment: a small base of system
// vars plus the config-provided entries. The parent's environment is NOT
// inherited, so provider keys and channel tokens stay out of server
// processes unless explicitly configured.
func sanitizeEnv(custom map[string]string, logger *slog.Logger) []string {
	env := map[string]string{
		"PATH":   os.Getenv("PATH"),
		"HOME":   os.Getenv("HOME"),
		"USER":   os.Getenv("USER"),
		"LANG":   envOrDefault("LANG", "en_US.UTF-8"),
		"LC_ALL": envOrDefault("LC_ALL", "en_US.UTF-8"),
		"TERM":   envOrDefault("TERM", "xterm-256color"),
	}
	for key, value := range custom {
		upper := strings.ToUpper(key)
		for _, pattern := range sensitiveEnvPatterns {
			if strings.Contains(upper, pattern) {
				logger.Warn("sensitive environment variable passed to MCP server",
					"var", key)
				break
			}
		}
		env[key] = value
	}
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	return out
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// cloudMetadataIPs are instance-metadata endpoints that must never be
// reachable through an MCP server URL.
var cloudMetadataIPs = map[string]bool{
	"169.254.169.254": true,
	"100.100.100.200": true,
}

// ValidateURL rejects MCP server URLs that point at internal network
// services. Localhost is allowed since local MCP servers are the common
// case; other private, reserved and link-local ranges are blocked.
// Hostnames that fail to resolve are tolerated (mDNS, .local).
func ValidateURL(raw string) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	switch parsed.Scheme {
	case "http", "https", "ws", "wss":
	default:
		return fmt.Errorf("invalid scheme: %s", parsed.Scheme)
	}

	host := parsed.Hostname()
	if host == "localhost" || host == "127.0.0.1" || host == "::1" {
		return nil
	}

	if ip := net.ParseIP(host); ip != nil {
		return checkIP(ip, host)
	}

	addrs, err := net.LookupIP(host)
	if err != nil {
		return nil
	}
	for _, ip := range addrs {
		if err := checkIP(ip, ip.String()); err != nil {
			return err
		}
	}
	return nil
}

func checkIP(ip net.IP, display string) error {
	if cloudMetadataIPs[ip.String()] {
		return fmt.Errorf("cloud metadata access blocked: %s", display)
	}
	if ip.IsLoopback() {
		return nil
	}
	if ip.IsPrivate() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() || ip.IsUnspecified() {
		return fmt.Errorf("private IP addresses not allowed for MCP servers: %s", display)
	}
	return nil
}
