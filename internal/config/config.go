// Package config loads runtime configuration from config.yaml with
// environment-variable overrides.
package config

import (
	"log"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

type Config struct {
	ListenAddr string `yaml:"listen_addr"`
	DBPath     string `yaml:"db_path"`

	AnthropicAPIKey string `yaml:"anthropic_api_key"`
	ClaudeModel     string `yaml:"claude_model"`

	TogetherAPIKey  string `yaml:"together_api_key"`
	TogetherBaseURL string `yaml:"together_base_url"`
	LlamaModel      string `yaml:"llama_model"`
	JudgeModel      string `yaml:"judge_model"`

	ChatTimeoutSeconds     int `yaml:"chat_timeout_seconds"`
	JudgeTimeoutSeconds    int `yaml:"judge_timeout_seconds"`
	ExternalTimeoutSeconds int `yaml:"external_timeout_seconds"`

	OneSignalAppID  string `yaml:"onesignal_app_id"`
	OneSignalAPIKey string `yaml:"onesignal_api_key"`
	AdminUserID     string `yaml:"admin_user_id"`

	SlackBotToken   string `yaml:"slack_bot_token"`
	SlackOpsChannel string `yaml:"slack_ops_channel"`

	RAGBaseURL        string `yaml:"rag_base_url"`
	RAGTimeoutSeconds int    `yaml:"rag_timeout_seconds"`
	RAGMaxRetries     int    `yaml:"rag_max_retries"`

	TunerSchedule string `yaml:"tuner_schedule"`
}

func LoadConfig() Config {
	var cfg Config

	// Load from config.yaml if it exists
	configPath := "config.yaml"
	if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
		configPath = envPath
	}
	if data, err := os.ReadFile(configPath); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			log.Fatalf("Error parsing %s: %v", configPath, err)
		}
		log.Printf("Loaded config from %s", configPath)
	}

	// Env vars override YAML values
	envOverride(&cfg.ListenAddr, "LISTEN_ADDR")
	envOverride(&cfg.DBPath, "DB_PATH")
	envOverride(&cfg.AnthropicAPIKey, "ANTHROPIC_API_KEY")
	envOverride(&cfg.ClaudeModel, "CLAUDE_MODEL")
	envOverride(&cfg.TogetherAPIKey, "TOGETHER_API_KEY")
	envOverride(&cfg.TogetherBaseURL, "TOGETHER_BASE_URL")
	envOverride(&cfg.LlamaModel, "LLAMA_MODEL")
	envOverride(&cfg.JudgeModel, "JUDGE_MODEL")
	envOverrideInt(&cfg.ChatTimeoutSeconds, "CHAT_TIMEOUT_SECONDS")
	envOverrideInt(&cfg.JudgeTimeoutSeconds, "JUDGE_TIMEOUT_SECONDS")
	envOverrideInt(&cfg.ExternalTimeoutSeconds, "EXTERNAL_TIMEOUT_SECONDS")
	envOverride(&cfg.OneSignalAppID, "ONESIGNAL_APP_ID")
	envOverride(&cfg.OneSignalAPIKey, "ONESIGNAL_API_KEY")
	envOverride(&cfg.AdminUserID, "ADMIN_USER_ID")
	envOverride(&cfg.SlackBotToken, "SLACK_BOT_TOKEN")
	envOverride(&cfg.SlackOpsChannel, "SLACK_OPS_CHANNEL")
	envOverride(&cfg.RAGBaseURL, "RAG_BASE_URL")
	envOverrideInt(&cfg.RAGTimeoutSeconds, "RAG_TIMEOUT_SECONDS")
	envOverrideInt(&cfg.RAGMaxRetries, "RAG_MAX_RETRIES")
	envOverride(&cfg.TunerSchedule, "TUNER_SCHEDULE")

	// Defaults
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8080"
	}
	if cfg.DBPath == "" {
		cfg.DBPath = "./luma.db"
	}
	if cfg.ChatTimeoutSeconds == 0 {
		cfg.ChatTimeoutSeconds = 30
	}
	if cfg.JudgeTimeoutSeconds == 0 {
		cfg.JudgeTimeoutSeconds = 20
	}
	if cfg.ExternalTimeoutSeconds == 0 {
		cfg.ExternalTimeoutSeconds = 60
	}
	if cfg.RAGTimeoutSeconds == 0 {
		cfg.RAGTimeoutSeconds = 10
	}
	if cfg.RAGMaxRetries == 0 {
		cfg.RAGMaxRetries = 3
	}
	if cfg.TunerSchedule == "" {
		cfg.TunerSchedule = "@hourly"
	}

	// API keys are availability signals, not hard requirements: a backend
	// without credentials never joins the registry and routing degrades
	// around it. Log what is off so operators can tell a config gap from
	// an outage.
	if cfg.AnthropicAPIKey == "" {
		log.Printf("config: anthropic_api_key not set, deep-analysis backend disabled")
	}
	if cfg.TogetherAPIKey == "" {
		log.Printf("config: together_api_key not set, default backend and judge disabled")
	}
	if cfg.SlackBotToken == "" || cfg.SlackOpsChannel == "" {
		log.Printf("config: slack ops channel not configured, operator pages go to push only")
	}
	if cfg.OneSignalAppID == "" || cfg.OneSignalAPIKey == "" {
		log.Printf("config: onesignal not configured, operator push notifications disabled")
	}
	if cfg.RAGBaseURL == "" {
		log.Printf("config: rag_base_url not set, memory retrieval disabled")
	}

	if cfg.ChatTimeoutSeconds < 1 {
		log.Fatalf("invalid chat_timeout_seconds '%d': must be >= 1", cfg.ChatTimeoutSeconds)
	}
	if cfg.RAGMaxRetries < 1 {
		log.Fatalf("invalid rag_max_retries '%d': must be >= 1", cfg.RAGMaxRetries)
	}

	return cfg
}

func envOverride(field *string, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		*field = val
	}
}

func envOverrideInt(field *int, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		parsed, err := strconv.Atoi(val)
		if err != nil {
			log.Fatalf("invalid %s '%s': %v", envKey, val, err)
		}
		*field = parsed
	}
}
