package internal

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/spf13/viper"
)

// Config holds application settings
type Config struct {
	// Server
	ListenAddr string
	JWTSecret  string
	JWTExpiry  time.Duration

	// Database
	DatabasePath string

	// LLM
	LLMProvider    string
	LLMModel       string
	LLMAPIKey      string
	LLMBaseURL     string
	SummaryTimeout time.Duration
	TargetLanguage string

	// External services
	YouTubeAPIKey string
	TavilyAPIKey  string

	// Background processing
	TranscriptTimeout time.Duration
	CheckSchedule     string
	Timezone          string

	// Logging
	LogFile  string
	LogLevel string
	Verbose  bool

	// Fixed XDG paths (not configurable)
	ConfigDir string
	DataDir   string
	CacheDir  string
}

//go:embed config.toml
var defaultFS embed.FS

// EnsureDefaultConfig checks if a config file exists in the XDG config directory
// and creates it from the embedded default if it doesn't exist
func EnsureDefaultConfig(configDir string) error {
	filePath := filepath.Join(configDir, "config.toml")

	if FileExists(filePath) {
		return nil
	}

	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	defaultContent, err := defaultFS.ReadFile("config.toml")
	if err != nil {
		return fmt.Errorf("reading embedded default configuration: %w", err)
	}

	if err := os.WriteFile(filePath, defaultContent, 0644); err != nil {
		return fmt.Errorf("writing default configuration: %w", err)
	}

	fmt.Printf("Created default configuration at %s\n", filePath)
	return nil
}

// InitConfig initializes Viper and loads configuration
func InitConfig() *Config {
	// XDG standard directories
	configDir := filepath.Join(xdg.ConfigHome, "tubedigest")
	dataDir := filepath.Join(xdg.DataHome, "tubedigest")
	cacheDir := filepath.Join(xdg.CacheHome, "tubedigest")

	v := viper.New()

	// Set default values for configurable settings
	v.SetDefault("listen_addr", ":8080")
	v.SetDefault("jwt_expiry", 7*24*time.Hour)
	v.SetDefault("database_path", filepath.Join(dataDir, "tubedigest.db"))
	v.SetDefault("llm_provider", "openai")
	v.SetDefault("llm_model", "gpt-4o-mini")
	v.SetDefault("llm_base_url", "")
	v.SetDefault("summary_timeout", 2*time.Minute)
	v.SetDefault("target_language", "English")
	v.SetDefault("transcript_timeout", 3*time.Minute)
	v.SetDefault("check_schedule", "0 8 * * *")
	v.SetDefault("timezone", "UTC")
	v.SetDefault("log_file", filepath.Join(dataDir, "logs", "tubedigest.log"))
	v.SetDefault("log_level", "info")
	v.SetDefault("verbose", false)

	// Set config name and paths
	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)
	v.AddConfigPath(".")

	// Environment variables
	v.SetEnvPrefix("TUBEDIGEST")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))

	// API keys are commonly set through their conventional env vars
	_ = v.BindEnv("llm_api_key", "TUBEDIGEST_LLM_API_KEY", "OPENAI_API_KEY")
	_ = v.BindEnv("youtube_api_key", "TUBEDIGEST_YOUTUBE_API_KEY", "YOUTUBE_API_KEY")
	_ = v.BindEnv("tavily_api_key", "TUBEDIGEST_TAVILY_API_KEY", "TAVILY_API_KEY")
	_ = v.BindEnv("jwt_secret", "TUBEDIGEST_JWT_SECRET", "JWT_SECRET")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			fmt.Fprintf(os.Stderr, "Warning: Error reading config file: %v\n", err)
		}
	}

	config := &Config{
		ListenAddr: v.GetString("listen_addr"),
		JWTSecret:  v.GetString("jwt_secret"),
		JWTExpiry:  v.GetDuration("jwt_expiry"),

		DatabasePath: v.GetString("database_path"),

		LLMProvider:    v.GetString("llm_provider"),
		LLMModel:       v.GetString("llm_model"),
		LLMAPIKey:      v.GetString("llm_api_key"),
		LLMBaseURL:     v.GetString("llm_base_url"),
		SummaryTimeout: v.GetDuration("summary_timeout"),
		TargetLanguage: v.GetString("target_language"),

		YouTubeAPIKey: v.GetString("youtube_api_key"),
		TavilyAPIKey:  v.GetString("tavily_api_key"),

		TranscriptTimeout: v.GetDuration("transcript_timeout"),
		CheckSchedule:     v.GetString("check_schedule"),
		Timezone:          v.GetString("timezone"),

		LogFile:  v.GetString("log_file"),
		LogLevel: v.GetString("log_level"),
		Verbose:  v.GetBool("verbose"),

		// Fixed XDG paths
		ConfigDir: configDir,
		DataDir:   dataDir,
		CacheDir:  cacheDir,
	}

	if config.Verbose {
		fmt.Printf("Using config file: %s\n", v.ConfigFileUsed())
	}

	return config
}
