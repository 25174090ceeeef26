// Package config loads the process configuration from the environment.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds every environment-derived setting the orchestrator needs to
// compose the client pool, the stream channels, and the HTTP server.
type Config struct {
	APIID    int
	APIHash  string
	BotToken string

	HelperBotToken string
	MultiTokens    map[int]string // 1-indexed, parsed from MULTI_TOKEN1..N

	BaseURL string
	Port    string

	DatabaseURL string // mongo DSN
	PostgresURL string

	// StoreBackend selects the playlist.Store implementation: "json",
	// "mongo", "postgres-text", or "postgres-array".
	StoreBackend  string
	JSONStorePath string
	MongoDatabase string

	DebugMode     bool
	DebugAddr     string
	OwnerID       int64

	// StreamChannels is the ordered list of chat IDs to stream, one per
	// configured channel (the STREAM_DB_IDS equivalent).
	StreamChannels []int64

	HLSDir  string
	LogFile string

	StreamStuckTimeout     time.Duration
	StreamRestartDelay     time.Duration
	AutoCheckerInterval    time.Duration
	AutoCheckerStartDelay  time.Duration
	InnerLoopBackoff       time.Duration
	EncoderGraceTimeout    time.Duration
	ClientStartTimeout     time.Duration
}

// Load reads the process environment and returns a populated Config. Every
// field has a sensible default so the process can start in a local
// development setting without any environment configured.
func Load() *Config {
	return &Config{
		APIID:          getEnvAsInt("API_ID", 0),
		APIHash:        getEnv("API_HASH", ""),
		BotToken:       getEnv("BOT_TOKEN", ""),
		HelperBotToken: getEnv("HELPER_BOT_TOKEN", ""),
		MultiTokens:    parseMultiTokens(),

		BaseURL: getEnv("BASE_URL", ""),
		Port:    getEnv("PORT", "8000"),

		DatabaseURL: getEnv("DATABASE_URL", ""),
		PostgresURL: getEnv("POSTGRES_URL", ""),

		StoreBackend:  getEnv("STORE_BACKEND", "json"),
		JSONStorePath: getEnv("PLAYLIST_FILE", "playlists.json"),
		MongoDatabase: getEnv("MONGO_DATABASE", "tglive"),

		DebugMode: getEnvAsBool("DEBUG_MODE", false),
		DebugAddr: getEnv("DEBUG_ADDR", ":8001"),
		OwnerID:   getEnvAsInt64("OWNER_ID", 0),

		StreamChannels: parseStreamChannels(),

		HLSDir:  getEnv("HLS_DIR", "hls"),
		LogFile: getEnv("LOG_FILE", "log.txt"),

		StreamStuckTimeout:    time.Duration(getEnvAsInt("STREAM_STUCK_TIMEOUT_SECONDS", 20)) * time.Second,
		StreamRestartDelay:    time.Duration(getEnvAsInt("STREAM_RESTART_DELAY_SECONDS", 5)) * time.Second,
		AutoCheckerInterval:   time.Duration(getEnvAsInt("AUTO_CHECKER_INTERVAL_SECONDS", 120)) * time.Second,
		AutoCheckerStartDelay: 30 * time.Second,
		InnerLoopBackoff:      3 * time.Second,
		EncoderGraceTimeout:   5 * time.Second,
		ClientStartTimeout:    30 * time.Second,
	}
}

// parseMultiTokens collects MULTI_TOKEN1..MULTI_TOKEN64 into a 1-indexed
// map, skipping unset slots. The upper bound is generous; unset env vars
// simply aren't present in the map.
func parseMultiTokens() map[int]string {
	tokens := make(map[int]string)
	for i := 1; i <= 64; i++ {
		key := "MULTI_TOKEN" + strconv.Itoa(i)
		if v, ok := os.LookupEnv(key); ok && v != "" {
			tokens[i] = v
		}
	}
	return tokens
}

// parseStreamChannels builds the ordered channel-ID list analogous to the
// original's STREAM_DB_IDS: DB_CHANNEL_ID, then CHANNEL_ID, then
// STREAM_CHANNEL_1..STREAM_CHANNEL_64, skipping unset or non-numeric ones.
func parseStreamChannels() []int64 {
	names := []string{
		"DB_CHANNEL_ID",
		"CHANNEL_ID",
	}
	var ids []int64
	for _, n := range names {
		if v, ok := os.LookupEnv(n); ok && v != "" {
			if id, err := strconv.ParseInt(v, 10, 64); err == nil {
				ids = append(ids, id)
			}
		}
	}
	// Any STREAM_CHANNEL_<n> override/extension, collected in order.
	for i := 1; i <= 64; i++ {
		key := "STREAM_CHANNEL_" + strconv.Itoa(i)
		if v, ok := os.LookupEnv(key); ok && v != "" {
			if id, err := strconv.ParseInt(v, 10, 64); err == nil {
				ids = append(ids, id)
			}
		}
	}
	return ids
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(name string, defaultVal int) int {
	if valueStr, exists := os.LookupEnv(name); exists {
		if value, err := strconv.Atoi(valueStr); err == nil {
			return value
		}
	}
	return defaultVal
}

func getEnvAsInt64(name string, defaultVal int64) int64 {
	if valueStr, exists := os.LookupEnv(name); exists {
		if value, err := strconv.ParseInt(valueStr, 10, 64); err == nil {
			return value
		}
	}
	return defaultVal
}

func getEnvAsBool(name string, defaultVal bool) bool {
	if valueStr, exists := os.LookupEnv(name); exists {
		if value, err := strconv.ParseBool(valueStr); err == nil {
			return value
		}
	}
	return defaultVal
}
