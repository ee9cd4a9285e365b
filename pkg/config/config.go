package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

type Config struct {
	Telegram   TelegramConfig   `mapstructure:"telegram"`
	HTTP       HTTPConfig       `mapstructure:"http"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Catalog    CatalogConfig    `mapstructure:"catalog"`
	OpenAI     OpenAIConfig     `mapstructure:"openai"`
	Breaker    BreakerConfig    `mapstructure:"breaker"`
	Classifier ClassifierConfig `mapstructure:"classifier"`
	Ranker     RankerConfig     `mapstructure:"ranker"`
	Composer   ComposerConfig   `mapstructure:"composer"`
	Assistant  AssistantConfig  `mapstructure:"assistant"`
	Log        LogConfig        `mapstructure:"log"`
}

type TelegramConfig struct {
	Token   string `mapstructure:"token"`
	Enabled bool   `mapstructure:"enabled"`
}

type HTTPConfig struct {
	Addr    string `mapstructure:"addr"`
	Enabled bool   `mapstructure:"enabled"`
}

type DatabaseConfig struct {
	Driver     string `mapstructure:"driver" validate:"oneof=memory postgres sqlite"`
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port" validate:"gte=0,lte=65535"`
	User       string `mapstructure:"user"`
	Password   string `mapstructure:"password"`
	DBName     string `mapstructure:"dbname"`
	SSLMode    string `mapstructure:"sslmode"`
	SQLitePath string `mapstructure:"sqlite_path"`
}

type CatalogConfig struct {
	Source   string `mapstructure:"source" validate:"oneof=memory postgres"`
	SeedFile string `mapstructure:"seed_file"`
}

type OpenAIConfig struct {
	APIKey              string        `mapstructure:"api_key"`
	BaseURL             string        `mapstructure:"base_url"`
	Model               string        `mapstructure:"model" validate:"required"`
	MaxTokens           int           `mapstructure:"max_tokens" validate:"gt=0"`
	Temperature         float64       `mapstructure:"temperature" validate:"gte=0,lte=2"`
	ClassifyTemperature float64       `mapstructure:"classify_temperature" validate:"gte=0,lte=2"`
	Timeout             time.Duration `mapstructure:"timeout" validate:"gt=0"`
}

type BreakerConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	MaxRequests  uint32        `mapstructure:"max_requests"`
	Interval     time.Duration `mapstructure:"interval"`
	Timeout      time.Duration `mapstructure:"timeout"`
	MinRequests  uint32        `mapstructure:"min_requests"`
	FailureRatio float64       `mapstructure:"failure_ratio" validate:"gte=0,lte=1"`
}

type ClassifierConfig struct {
	// FailurePolicy decides the verdict when the inference call fails:
	// "open" admits the utterance, "closed" rejects it, "keywords" falls
	// back to the keyword classifier.
	FailurePolicy string `mapstructure:"failure_policy" validate:"oneof=open closed keywords"`
}

type RankerConfig struct {
	RetrievalLimit  int                 `mapstructure:"retrieval_limit" validate:"gt=0"`
	ResultLimit     int                 `mapstructure:"result_limit" validate:"gt=0"`
	RatingWeight    float64             `mapstructure:"rating_weight"`
	FavoriteWeight  float64             `mapstructure:"favorite_weight"`
	DietarySynonyms map[string][]string `mapstructure:"dietary_synonyms"`
}

type ComposerConfig struct {
	HistoryWindow int `mapstructure:"history_window" validate:"gte=0"`
	MaxWords      int `mapstructure:"max_words" validate:"gt=0"`
}

type AssistantConfig struct {
	TurnTimeout time.Duration `mapstructure:"turn_timeout" validate:"gt=0"`
}

type LogConfig struct {
	Development bool `mapstructure:"development"`
}

// DefaultDietarySynonyms maps a dietary preference onto the keywords that
// mark a recipe as satisfying it.
func DefaultDietarySynonyms() map[string][]string {
	return map[string][]string{
		"vegetarian":  {"vegetarian", "veggie"},
		"vegan":       {"vegan", "plant-based", "plant based"},
		"gluten-free": {"gluten-free", "gluten free"},
		"dairy-free":  {"dairy-free", "dairy free", "lactose-free", "lactose free"},
		"low-carb":    {"low-carb", "low carb", "keto"},
		"keto":        {"keto", "ketogenic", "low-carb"},
		"healthy":     {"healthy", "light meal", "low-fat", "low fat"},
		"pescatarian": {"pescatarian", "seafood", "fish"},
	}
}

func parseDatabaseURL(dbURL string) (DatabaseConfig, error) {
	u, err := url.Parse(dbURL)
	if err != nil {
		return DatabaseConfig{}, err
	}

	password, _ := u.User.Password()
	port := 5432 // default PostgreSQL port
	if u.Port() != "" {
		fmt.Sscanf(u.Port(), "%d", &port)
	}

	// Remove leading slash from path to get database name
	dbName := strings.TrimPrefix(u.Path, "/")

	sslMode := u.Query().Get("sslmode")
	if sslMode == "" {
		sslMode = "disable"
	}

	return DatabaseConfig{
		Driver:   "postgres",
		Host:     u.Hostname(),
		Port:     port,
		User:     u.User.Username(),
		Password: password,
		DBName:   dbName,
		SSLMode:  sslMode,
	}, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("telegram.enabled", false)
	v.SetDefault("http.enabled", true)
	v.SetDefault("http.addr", ":8100")
	v.SetDefault("database.driver", "memory")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.sqlite_path", "recipebot.db")
	v.SetDefault("catalog.source", "memory")
	v.SetDefault("openai.model", "gpt-4o-mini")
	v.SetDefault("openai.max_tokens", 400)
	v.SetDefault("openai.temperature", 0.7)
	v.SetDefault("openai.classify_temperature", 0.0)
	v.SetDefault("openai.timeout", 30*time.Second)
	v.SetDefault("breaker.enabled", true)
	v.SetDefault("breaker.max_requests", 3)
	v.SetDefault("breaker.interval", time.Minute)
	v.SetDefault("breaker.timeout", 30*time.Second)
	v.SetDefault("breaker.min_requests", 5)
	v.SetDefault("breaker.failure_ratio", 0.6)
	v.SetDefault("classifier.failure_policy", "open")
	v.SetDefault("ranker.retrieval_limit", 20)
	v.SetDefault("ranker.result_limit", 5)
	v.SetDefault("ranker.rating_weight", 0.7)
	v.SetDefault("ranker.favorite_weight", 0.3)
	v.SetDefault("ranker.dietary_synonyms", DefaultDietarySynonyms())
	v.SetDefault("composer.history_window", 10)
	v.SetDefault("composer.max_words", 150)
	v.SetDefault("assistant.turn_timeout", 60*time.Second)
	v.SetDefault("log.development", false)
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var config Config
	// Defaults alone always decode.
	_ = v.Unmarshal(&config)
	return &config
}

func LoadConfig(path string) (*Config, error) {
	v := viper.New()

	// Set default values
	setDefaults(v)

	// Enable environment variable support
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read the config file
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	// Check for DATABASE_URL environment variable
	if dbURL := v.GetString("DATABASE_URL"); dbURL != "" {
		dbConfig, err := parseDatabaseURL(dbURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse DATABASE_URL: %w", err)
		}
		dbConfig.SQLitePath = config.Database.SQLitePath
		config.Database = dbConfig
	}

	// Get other environment variables
	if token := v.GetString("TELEGRAM_TOKEN"); token != "" {
		config.Telegram.Token = token
		config.Telegram.Enabled = true
	}

	if apiKey := v.GetString("OPENAI_API_KEY"); apiKey != "" {
		config.OpenAI.APIKey = apiKey
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate checks field constraints and cross-field requirements.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Telegram.Enabled && c.Telegram.Token == "" {
		return fmt.Errorf("invalid config: telegram.token is required when telegram is enabled")
	}
	if c.Catalog.Source == "postgres" && c.Database.Driver != "postgres" {
		return fmt.Errorf("invalid config: postgres catalog requires database.driver=postgres")
	}
	if c.Ranker.ResultLimit > c.Ranker.RetrievalLimit {
		return fmt.Errorf("invalid config: ranker.result_limit (%d) exceeds retrieval_limit (%d)",
			c.Ranker.ResultLimit, c.Ranker.RetrievalLimit)
	}
	return nil
}
