package config

import (
	"flag"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Config holds all application configuration.
type Config struct {
	Addr               string
	DBPath             string
	PcapPath           string
	MockMode           bool
	Debug              bool
	ProtectionLevel    string // low, medium, high
	EnableFirewall     bool
	EnableIDS          bool
	EnableDataProtect  bool
	DeviceWhitelist    []string
	DetectionThreshold float64 // ddos packet threshold
	ScanInterval       int     // seconds between evaluation ticks
	RetentionDays      int
	QueueCapacity      int
	AttackDuration     int // seconds an incident stays deduplicated
	SuspiciousDomains  []string
	APITokenHash       string // bcrypt hash; empty disables API auth
	Seed               int64  // synthetic generator seed
}

// Load parses command line flags and environment variables to populate Config.
// Flags take precedence over environment variables.
func Load() *Config {
	cfg := &Config{}

	// Defaults and Environment Variables
	cfg.Addr = getEnv("EDGEWATCH_ADDR", ":8080")
	cfg.DBPath = getEnv("EDGEWATCH_DB", getDefaultDBPath())
	cfg.MockMode = getEnvBool("EDGEWATCH_MOCK", false)
	cfg.ProtectionLevel = getEnv("EDGEWATCH_PROTECTION_LEVEL", "medium")
	cfg.EnableFirewall = getEnvBool("EDGEWATCH_FIREWALL", true)
	cfg.EnableIDS = getEnvBool("EDGEWATCH_IDS", true)
	cfg.EnableDataProtect = getEnvBool("EDGEWATCH_DATA_PROTECTION", true)
	cfg.DetectionThreshold = getEnvFloat("EDGEWATCH_DETECTION_THRESHOLD", 100)
	cfg.ScanInterval = getEnvInt("EDGEWATCH_SCAN_INTERVAL", 1)
	cfg.RetentionDays = getEnvInt("EDGEWATCH_RETENTION_DAYS", 30)
	cfg.QueueCapacity = getEnvInt("EDGEWATCH_QUEUE_CAPACITY", 256)
	cfg.AttackDuration = getEnvInt("EDGEWATCH_ATTACK_DURATION", 60)
	cfg.APITokenHash = getEnv("EDGEWATCH_API_TOKEN_HASH", "")
	cfg.Seed = int64(getEnvInt("EDGEWATCH_SEED", 1))
	whitelistStr := getEnv("EDGEWATCH_WHITELIST", "")
	domainsStr := getEnv("EDGEWATCH_SUSPICIOUS_DOMAINS", "fw-mirror.example.net,updates.unverified-cdn.io")

	// Command Line Flags (Override Env)
	flag.StringVar(&cfg.Addr, "addr", cfg.Addr, "HTTP server address")
	flag.StringVar(&cfg.DBPath, "db", cfg.DBPath, "Path to SQLite database")
	flag.StringVar(&cfg.PcapPath, "pcap", "", "Replay a capture file as the sample source")
	flag.BoolVar(&cfg.MockMode, "mock", cfg.MockMode, "Run with the synthetic sample generator")
	flag.BoolVar(&cfg.Debug, "debug", false, "Enable verbose debug logging")
	flag.StringVar(&cfg.ProtectionLevel, "protection-level", cfg.ProtectionLevel, "Protection level: low, medium or high")
	flag.Float64Var(&cfg.DetectionThreshold, "detection-threshold", cfg.DetectionThreshold, "DDoS packet threshold per window")
	flag.IntVar(&cfg.ScanInterval, "scan-interval", cfg.ScanInterval, "Seconds between evaluation ticks")
	flag.IntVar(&cfg.RetentionDays, "retention-days", cfg.RetentionDays, "Days to keep persisted events")
	flag.IntVar(&cfg.QueueCapacity, "queue-capacity", cfg.QueueCapacity, "Bounded threat queue capacity")
	flag.IntVar(&cfg.AttackDuration, "attack-duration", cfg.AttackDuration, "Seconds one incident suppresses re-detections")
	flag.StringVar(&whitelistStr, "whitelist", whitelistStr, "Comma separated device ids exempt from blocking")
	flag.StringVar(&domainsStr, "suspicious-domains", domainsStr, "Comma separated firmware domains to flag")

	flag.Parse()

	cfg.DeviceWhitelist = parseList(whitelistStr)
	cfg.SuspiciousDomains = parseList(domainsStr)

	return cfg
}

func parseList(s string) []string {
	var items []string
	if s == "" {
		return items
	}
	for _, p := range strings.Split(s, ",") {
		trimmed := strings.TrimSpace(p)
		if trimmed != "" {
			items = append(items, trimmed)
		}
	}
	return items
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if value, ok := os.LookupEnv(key); ok {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

// getDefaultDBPath returns the default database path in user's home directory.
// Creates the directory if it doesn't exist.
func getDefaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		log.Printf("Warning: Could not get user home directory, using current dir: %v", err)
		return "edgewatch.db"
	}

	dir := filepath.Join(home, ".edgewatch")
	if err := os.MkdirAll(dir, 0755); err != nil {
		log.Printf("Warning: Could not create .edgewatch directory, using current dir: %v", err)
		return "edgewatch.db"
	}

	return filepath.Join(dir, "edgewatch.db")
}
