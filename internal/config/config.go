package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const defaultReminderText = "The mod team at /r/disneyvacation thanks you for your submission, however it has been " +
	"automatically removed since the link to the wikiHow source article was not provided." +
	"\n\nPlease reply to THIS COMMENT with the source article and your post " +
	"will be approved within at most 5 minutes."

// Config holds all configuration for the application
type Config struct {
	// Server configuration
	Port  string
	Debug bool

	// Reddit credentials (script app, password grant)
	RedditClientID     string
	RedditClientSecret string
	RedditUsername     string
	RedditPassword     string
	RedditUserAgent    string

	// BotUsername is the identity whose own comments mark a post as handled
	BotUsername string

	// Community and moderation policy
	Subreddits      []string
	Moderators      []string
	Operators       []string
	CitationDomains []string
	ReminderText    string

	// Sweep tuning
	PostLimit        int
	MinPostAge       time.Duration
	MaxPostAge       time.Duration
	SweepInterval    time.Duration
	TransientBackoff time.Duration
	ErrorCooldown    time.Duration
	RemovalDelay     time.Duration

	// AMP resolution
	AMPMaxDepth  int
	AMPCacheSize int
	AMPCacheTTL  time.Duration

	// Outcome log and weekly digest
	LogFile        string
	LogKeepLines   int
	DigestSchedule string

	// Notification configuration
	TeamsWebhookURL   string
	NotificationEmail string
	SMTPHost          string
	SMTPPort          int
	SMTPUsername      string
	SMTPPassword      string

	// Archive storage; Azure when an account is set, otherwise ArchiveDir
	StorageAccount   string
	StorageContainer string
	ArchiveDir       string
	ArchiveKeepWeeks int
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	username := getEnv("REDDIT_USERNAME", "")

	cfg := &Config{
		Port:  getEnv("PORT", "8080"),
		Debug: getBoolEnv("DEBUG", false),

		RedditClientID:     getEnv("REDDIT_CLIENT_ID", ""),
		RedditClientSecret: getEnv("REDDIT_CLIENT_SECRET", ""),
		RedditUsername:     username,
		RedditPassword:     getEnv("REDDIT_PASSWORD", ""),
		RedditUserAgent:    getEnv("REDDIT_USER_AGENT", "WikiHowLinkBot/2.0"),
		BotUsername:        getEnv("BOT_USERNAME", username),

		Subreddits: getSliceEnv("SUBREDDITS", []string{"disneyvacation"}),
		Moderators: getSliceEnv("MODERATORS", nil),
		Operators:  getSliceEnv("OPERATORS", nil),
		CitationDomains: getSliceEnv("CITATION_DOMAINS", []string{
			"wikihow.com",
			"wikihow.it",
			"wikihow.jp",
			"wikihow.vn",
			"wikihow.cz",
			"wikihow.tech",
			"wikihow.life",
			"wikihow.fitness",
			"wikihow.health",
			"wikihow.legal",
			"wikihow.mom",
			"wikihow.pet",
		}),
		ReminderText: getEnv("REMINDER_TEXT", defaultReminderText),

		PostLimit:        getIntEnv("POST_LIMIT", 50),
		MinPostAge:       getDurationEnv("MIN_POST_AGE", 5*time.Minute),
		MaxPostAge:       getDurationEnv("MAX_POST_AGE", 12*time.Minute),
		SweepInterval:    getDurationEnv("SWEEP_INTERVAL", 5*time.Minute),
		TransientBackoff: getDurationEnv("TRANSIENT_BACKOFF", 5*time.Minute),
		ErrorCooldown:    getDurationEnv("ERROR_COOLDOWN", 5*time.Hour),
		RemovalDelay:     getDurationEnv("REMOVAL_DELAY", 3*time.Second),

		AMPMaxDepth:  getIntEnv("AMP_MAX_DEPTH", 3),
		AMPCacheSize: getIntEnv("AMP_CACHE_SIZE", 512),
		AMPCacheTTL:  getDurationEnv("AMP_CACHE_TTL", 6*time.Hour),

		LogFile:        getEnv("LOG_FILE", "logs/WikiHowBot.log"),
		LogKeepLines:   getIntEnv("LOG_KEEP_LINES", 4),
		DigestSchedule: getEnv("DIGEST_SCHEDULE", "0 0 9 * * MON"),

		TeamsWebhookURL:   getEnv("TEAMS_WEBHOOK_URL", ""),
		NotificationEmail: getEnv("NOTIFICATION_EMAIL", ""),
		SMTPHost:          getEnv("SMTP_HOST", ""),
		SMTPPort:          getIntEnv("SMTP_PORT", 587),
		SMTPUsername:      getEnv("SMTP_USERNAME", ""),
		SMTPPassword:      getEnv("SMTP_PASSWORD", ""),

		StorageAccount:   getEnv("AZURE_STORAGE_ACCOUNT", ""),
		StorageContainer: getEnv("AZURE_STORAGE_CONTAINER", "botlogs"),
		ArchiveDir:       getEnv("ARCHIVE_DIR", "logs/archive"),
		ArchiveKeepWeeks: getIntEnv("ARCHIVE_KEEP_WEEKS", 12),
	}

	// Validate required configuration
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.RedditClientID == "" || c.RedditClientSecret == "" {
		return fmt.Errorf("REDDIT_CLIENT_ID and REDDIT_CLIENT_SECRET are required")
	}

	if c.RedditUsername == "" || c.RedditPassword == "" {
		return fmt.Errorf("REDDIT_USERNAME and REDDIT_PASSWORD are required")
	}

	if c.BotUsername == "" {
		return fmt.Errorf("BOT_USERNAME must not be empty")
	}

	if len(c.Subreddits) == 0 {
		return fmt.Errorf("at least one subreddit must be configured (SUBREDDITS)")
	}

	if len(c.CitationDomains) == 0 {
		return fmt.Errorf("at least one citation domain must be configured (CITATION_DOMAINS)")
	}

	if c.MinPostAge >= c.MaxPostAge {
		return fmt.Errorf("MIN_POST_AGE (%v) must be smaller than MAX_POST_AGE (%v)", c.MinPostAge, c.MaxPostAge)
	}

	if c.PostLimit <= 0 || c.PostLimit > 100 {
		return fmt.Errorf("POST_LIMIT must be between 1 and 100")
	}

	if c.ArchiveKeepWeeks < 0 {
		return fmt.Errorf("ARCHIVE_KEEP_WEEKS must not be negative")
	}

	if c.AMPMaxDepth < 1 {
		return fmt.Errorf("AMP_MAX_DEPTH must be at least 1")
	}

	if c.NotificationEmail != "" {
		if c.SMTPHost == "" || c.SMTPUsername == "" || c.SMTPPassword == "" {
			return fmt.Errorf("SMTP configuration is required when NOTIFICATION_EMAIL is set")
		}
	}

	return nil
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getSliceEnv(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		var items []string
		for _, item := range strings.Split(value, ",") {
			if item = strings.TrimSpace(item); item != "" {
				items = append(items, item)
			}
		}
		return items
	}
	return defaultValue
}
