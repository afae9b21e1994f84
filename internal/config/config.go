package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/odysseus0/campusfeed/internal/model"
)

const (
	defaultRefreshMinutes    = 30
	defaultBatchSize         = 500
	defaultMaxRetained       = 200
	defaultMaxItems          = 200
	defaultHTTPTimeoutSec    = 10
	defaultMaxRedirects      = 5
	defaultIngestConcurrency = 1
	defaultRSSLatestLimit    = 200
	defaultRSSItemsLimit     = 200
	defaultRSSItems2Limit    = 20
	defaultPostsLatestLimit  = 50
	maxPostsLatestLimit      = 100
)

const (
	DefaultAllowedHost  = "nitter.shibadogcap.com"
	DefaultCollection   = "rss_items"
	SecondaryCollection = "rss_items_2"

	defaultUserAgent  = "campusfeed/0.1"
	defaultListenAddr = ":8080"
	defaultLogLevel   = "info"
	defaultLLMBaseURL = "https://api.groq.com/openai/v1"
	defaultLLMModel   = "groq/compound-mini"
	defaultMongoDB    = "campusfeed"

	configFolderName  = "campusfeed"
	configFileName    = "config.toml"
	configPathEnvName = "XDG_CONFIG_HOME"
)

type Config struct {
	StoreDriver       string
	DBPath            string
	PostgresDSN       string
	MongoURI          string
	MongoDatabase     string
	MongoTransactions bool

	AllowedHosts      []string
	Feeds             []model.FeedSlot
	DefaultCollection string

	RefreshInterval   time.Duration
	BatchSize         int
	MaxRetained       int
	MaxItems          int
	HTTPTimeout       time.Duration
	MaxRedirects      int
	UserAgent         string
	IngestConcurrency int

	RSSLatestLimit      int
	RSSItemsFetchLimit  int
	RSSItems2FetchLimit int
	PostsLatestLimit    int

	ListenAddr string
	TalkPerMin int
	LogLevel   string
	LogFile    string
	LLMAPIKey  string
	LLMBaseURL string
	LLMModel   string
}

func LoadConfig() (Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return Config{}, err
	}
	defaultDB := filepath.Join(home, ".local", "share", "campusfeed", "campusfeed.db")

	cfg := Config{
		StoreDriver:         "sqlite",
		DBPath:              defaultDB,
		MongoDatabase:       defaultMongoDB,
		AllowedHosts:        []string{DefaultAllowedHost},
		Feeds:               defaultFeeds(),
		DefaultCollection:   DefaultCollection,
		RefreshInterval:     defaultRefreshMinutes * time.Minute,
		BatchSize:           defaultBatchSize,
		MaxRetained:         defaultMaxRetained,
		MaxItems:            defaultMaxItems,
		HTTPTimeout:         defaultHTTPTimeoutSec * time.Second,
		MaxRedirects:        defaultMaxRedirects,
		UserAgent:           defaultUserAgent,
		IngestConcurrency:   defaultIngestConcurrency,
		RSSLatestLimit:      defaultRSSLatestLimit,
		RSSItemsFetchLimit:  defaultRSSItemsLimit,
		RSSItems2FetchLimit: defaultRSSItems2Limit,
		PostsLatestLimit:    defaultPostsLatestLimit,
		ListenAddr:          defaultListenAddr,
		TalkPerMin:          10,
		LogLevel:            defaultLogLevel,
		LLMBaseURL:          defaultLLMBaseURL,
		LLMModel:            defaultLLMModel,
	}

	configPath, hasConfig, err := findConfigPath(home)
	if err != nil {
		return Config{}, err
	}
	if hasConfig {
		fileCfg, err := loadFileConfig(configPath)
		if err != nil {
			return Config{}, err
		}
		applyFileConfig(&cfg, fileCfg)
	}

	applyEnvOverrides(&cfg)

	if len(cfg.AllowedHosts) == 0 {
		cfg.AllowedHosts = []string{DefaultAllowedHost}
	}
	if cfg.BatchSize < 1 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.IngestConcurrency < 1 {
		cfg.IngestConcurrency = defaultIngestConcurrency
	}
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = defaultRefreshMinutes * time.Minute
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = defaultHTTPTimeoutSec * time.Second
	}
	return cfg, nil
}

func defaultFeeds() []model.FeedSlot {
	return []model.FeedSlot{
		{Name: "RSS_URL_1", Source: model.FeedSource{Collection: DefaultCollection}},
		{Name: "RSS_URL_2", Source: model.FeedSource{Collection: SecondaryCollection}},
	}
}

type fileConfig struct {
	Store  fileStore  `toml:"store"`
	Ingest fileIngest `toml:"ingest"`
	Limits fileLimits `toml:"limits"`
	Server fileServer `toml:"server"`
	LLM    fileLLM    `toml:"llm"`
	Feeds  []fileFeed `toml:"feeds"`
}

type fileStore struct {
	Driver            *string `toml:"driver"`
	DBPath            *string `toml:"db_path"`
	PostgresDSN       *string `toml:"postgres_dsn"`
	MongoURI          *string `toml:"mongo_uri"`
	MongoDatabase     *string `toml:"mongo_database"`
	MongoTransactions *bool   `toml:"mongo_transactions"`
}

type fileIngest struct {
	AllowedHosts      []string `toml:"allowed_hosts"`
	RefreshMinutes    *int     `toml:"refresh_minutes"`
	BatchSize         *int     `toml:"batch_size"`
	MaxRetained       *int     `toml:"max_retained"`
	MaxItems          *int     `toml:"max_items"`
	HTTPTimeoutSec    *int     `toml:"http_timeout_seconds"`
	MaxRedirects      *int     `toml:"max_redirects"`
	UserAgent         *string  `toml:"user_agent"`
	Concurrency       *int     `toml:"concurrency"`
	DefaultCollection *string  `toml:"default_collection"`
}

type fileLimits struct {
	RSSLatest      *int `toml:"rss_latest"`
	RSSItemsFetch  *int `toml:"rss_items_fetch"`
	RSSItems2Fetch *int `toml:"rss_items_2_fetch"`
	PostsLatest    *int `toml:"posts_latest"`
}

type fileServer struct {
	ListenAddr *string `toml:"listen_addr"`
	TalkPerMin *int    `toml:"talk_per_minute"`
	LogLevel   *string `toml:"log_level"`
	LogFile    *string `toml:"log_file"`
}

type fileLLM struct {
	BaseURL *string `toml:"base_url"`
	Model   *string `toml:"model"`
}

type fileFeed struct {
	URL        string `toml:"url"`
	Collection string `toml:"collection"`
}

func findConfigPath(home string) (string, bool, error) {
	candidates := make([]string, 0, 2)
	if xdgConfigHome := strings.TrimSpace(os.Getenv(configPathEnvName)); xdgConfigHome != "" {
		candidates = append(candidates, filepath.Join(xdgConfigHome, configFolderName, configFileName))
	}
	candidates = append(candidates, filepath.Join(home, ".config", configFolderName, configFileName))

	for _, candidate := range candidates {
		info, err := os.Stat(candidate)
		if err == nil {
			if info.IsDir() {
				return "", false, fmt.Errorf("config path %q is a directory; expected a file", candidate)
			}
			return candidate, true, nil
		}
		if os.IsNotExist(err) {
			continue
		}
		return "", false, fmt.Errorf("failed to read config path %q: %w", candidate, err)
	}
	return "", false, nil
}

func loadFileConfig(path string) (fileConfig, error) {
	var cfg fileConfig
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return fileConfig{}, fmt.Errorf("invalid config file %q: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		unknown := make([]string, 0, len(undecoded))
		for _, key := range undecoded {
			unknown = append(unknown, key.String())
		}
		sort.Strings(unknown)
		return fileConfig{}, fmt.Errorf("invalid config file %q: unknown key(s): %s", path, strings.Join(unknown, ", "))
	}
	if err := validateFileConfig(path, cfg); err != nil {
		return fileConfig{}, err
	}
	return cfg, nil
}

func validateFileConfig(path string, cfg fileConfig) error {
	if d := cfg.Store.Driver; d != nil {
		switch *d {
		case "sqlite", "postgres", "mongo", "memory":
		default:
			return fmt.Errorf("invalid config file %q: store.driver must be one of sqlite, postgres, mongo, memory", path)
		}
	}
	if cfg.Store.DBPath != nil && strings.TrimSpace(*cfg.Store.DBPath) == "" {
		return fmt.Errorf("invalid config file %q: store.db_path must be non-empty when provided", path)
	}
	positive := map[string]*int{
		"ingest.refresh_minutes":      cfg.Ingest.RefreshMinutes,
		"ingest.batch_size":           cfg.Ingest.BatchSize,
		"ingest.max_retained":         cfg.Ingest.MaxRetained,
		"ingest.max_items":            cfg.Ingest.MaxItems,
		"ingest.http_timeout_seconds": cfg.Ingest.HTTPTimeoutSec,
		"ingest.concurrency":          cfg.Ingest.Concurrency,
		"limits.rss_latest":           cfg.Limits.RSSLatest,
		"limits.rss_items_fetch":      cfg.Limits.RSSItemsFetch,
		"limits.rss_items_2_fetch":    cfg.Limits.RSSItems2Fetch,
		"limits.posts_latest":         cfg.Limits.PostsLatest,
		"server.talk_per_minute":      cfg.Server.TalkPerMin,
	}
	keys := make([]string, 0, len(positive))
	for k := range positive {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if v := positive[k]; v != nil && *v <= 0 {
			return fmt.Errorf("invalid config file %q: %s must be > 0", path, k)
		}
	}
	if cfg.Ingest.BatchSize != nil && *cfg.Ingest.BatchSize > defaultBatchSize {
		return fmt.Errorf("invalid config file %q: ingest.batch_size must be <= %d", path, defaultBatchSize)
	}
	if cfg.Limits.PostsLatest != nil && *cfg.Limits.PostsLatest > maxPostsLatestLimit {
		return fmt.Errorf("invalid config file %q: limits.posts_latest must be <= %d", path, maxPostsLatestLimit)
	}
	if cfg.Ingest.MaxRedirects != nil && *cfg.Ingest.MaxRedirects < 0 {
		return fmt.Errorf("invalid config file %q: ingest.max_redirects must be >= 0", path)
	}
	for i, f := range cfg.Feeds {
		if strings.TrimSpace(f.Collection) == "" {
			return fmt.Errorf("invalid config file %q: feeds[%d].collection must be non-empty", path, i)
		}
	}
	return nil
}

func applyFileConfig(cfg *Config, f fileConfig) {
	setString(&cfg.StoreDriver, f.Store.Driver)
	setString(&cfg.DBPath, f.Store.DBPath)
	setString(&cfg.PostgresDSN, f.Store.PostgresDSN)
	setString(&cfg.MongoURI, f.Store.MongoURI)
	setString(&cfg.MongoDatabase, f.Store.MongoDatabase)
	if f.Store.MongoTransactions != nil {
		cfg.MongoTransactions = *f.Store.MongoTransactions
	}

	if f.Ingest.AllowedHosts != nil {
		cfg.AllowedHosts = append([]string(nil), f.Ingest.AllowedHosts...)
	}
	if f.Ingest.RefreshMinutes != nil {
		cfg.RefreshInterval = time.Duration(*f.Ingest.RefreshMinutes) * time.Minute
	}
	setInt(&cfg.BatchSize, f.Ingest.BatchSize)
	setInt(&cfg.MaxRetained, f.Ingest.MaxRetained)
	setInt(&cfg.MaxItems, f.Ingest.MaxItems)
	if f.Ingest.HTTPTimeoutSec != nil {
		cfg.HTTPTimeout = time.Duration(*f.Ingest.HTTPTimeoutSec) * time.Second
	}
	setInt(&cfg.MaxRedirects, f.Ingest.MaxRedirects)
	setString(&cfg.UserAgent, f.Ingest.UserAgent)
	setInt(&cfg.IngestConcurrency, f.Ingest.Concurrency)
	setString(&cfg.DefaultCollection, f.Ingest.DefaultCollection)

	setInt(&cfg.RSSLatestLimit, f.Limits.RSSLatest)
	setInt(&cfg.RSSItemsFetchLimit, f.Limits.RSSItemsFetch)
	setInt(&cfg.RSSItems2FetchLimit, f.Limits.RSSItems2Fetch)
	setInt(&cfg.PostsLatestLimit, f.Limits.PostsLatest)

	setString(&cfg.ListenAddr, f.Server.ListenAddr)
	setInt(&cfg.TalkPerMin, f.Server.TalkPerMin)
	setString(&cfg.LogLevel, f.Server.LogLevel)
	setString(&cfg.LogFile, f.Server.LogFile)

	setString(&cfg.LLMBaseURL, f.LLM.BaseURL)
	setString(&cfg.LLMModel, f.LLM.Model)

	if len(f.Feeds) > 0 {
		cfg.Feeds = make([]model.FeedSlot, 0, len(f.Feeds))
		for i, feed := range f.Feeds {
			cfg.Feeds = append(cfg.Feeds, model.FeedSlot{
				Name:   fmt.Sprintf("feeds[%d]", i),
				Source: model.FeedSource{URL: strings.TrimSpace(feed.URL), Collection: strings.TrimSpace(feed.Collection)},
			})
		}
	}
}

func applyEnvOverrides(cfg *Config) {
	if v, ok := os.LookupEnv("RSS_ALLOWED_HOSTS"); ok && strings.TrimSpace(v) != "" {
		cfg.AllowedHosts = SplitHosts(v)
	}
	for i, slot := range cfg.Feeds {
		if v, ok := os.LookupEnv(slot.Name); ok && strings.TrimSpace(v) != "" {
			cfg.Feeds[i].Source.URL = strings.TrimSpace(v)
		}
	}
	envPositiveInt("RSS_LATEST_LIMIT", &cfg.RSSLatestLimit)
	envPositiveInt("RSS_ITEMS_FETCH_LIMIT", &cfg.RSSItemsFetchLimit)
	envPositiveInt("RSS_ITEMS_2_FETCH_LIMIT", &cfg.RSSItems2FetchLimit)
	if v, ok := os.LookupEnv("POSTS_LATEST_LIMIT"); ok && v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= maxPostsLatestLimit {
			cfg.PostsLatestLimit = n
		}
	}
	if v, ok := os.LookupEnv("GROQ_API_KEY"); ok {
		cfg.LLMAPIKey = strings.TrimSpace(v)
	}

	if v, ok := os.LookupEnv("CAMPUSFEED_STORE"); ok && v != "" {
		switch v {
		case "sqlite", "postgres", "mongo", "memory":
			cfg.StoreDriver = v
		}
	}
	envString("CAMPUSFEED_DB_PATH", &cfg.DBPath)
	envString("CAMPUSFEED_POSTGRES_DSN", &cfg.PostgresDSN)
	envString("CAMPUSFEED_MONGO_URI", &cfg.MongoURI)
	envString("CAMPUSFEED_MONGO_DATABASE", &cfg.MongoDatabase)
	if v, ok := os.LookupEnv("CAMPUSFEED_MONGO_TRANSACTIONS"); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.MongoTransactions = b
		}
	}
	if v, ok := os.LookupEnv("CAMPUSFEED_REFRESH_MINUTES"); ok && v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.RefreshInterval = time.Duration(n) * time.Minute
		}
	}
	if v, ok := os.LookupEnv("CAMPUSFEED_BATCH_SIZE"); ok && v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= defaultBatchSize {
			cfg.BatchSize = n
		}
	}
	envPositiveInt("CAMPUSFEED_MAX_RETAINED", &cfg.MaxRetained)
	envPositiveInt("CAMPUSFEED_MAX_ITEMS", &cfg.MaxItems)
	if v, ok := os.LookupEnv("CAMPUSFEED_HTTP_TIMEOUT_SECONDS"); ok && v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.HTTPTimeout = time.Duration(n) * time.Second
		}
	}
	if v, ok := os.LookupEnv("CAMPUSFEED_MAX_REDIRECTS"); ok && v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.MaxRedirects = n
		}
	}
	envString("CAMPUSFEED_USER_AGENT", &cfg.UserAgent)
	envPositiveInt("CAMPUSFEED_INGEST_CONCURRENCY", &cfg.IngestConcurrency)
	envString("CAMPUSFEED_LISTEN_ADDR", &cfg.ListenAddr)
	envPositiveInt("CAMPUSFEED_TALK_PER_MINUTE", &cfg.TalkPerMin)
	envString("CAMPUSFEED_LOG_LEVEL", &cfg.LogLevel)
	envString("CAMPUSFEED_LOG_FILE", &cfg.LogFile)
	envString("CAMPUSFEED_LLM_BASE_URL", &cfg.LLMBaseURL)
	envString("CAMPUSFEED_LLM_MODEL", &cfg.LLMModel)
}

// SplitHosts parses a comma separated host list, trimming and lower-casing
// entries and dropping empty ones.
func SplitHosts(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

func envString(key string, dst *string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func envPositiveInt(key string, dst *int) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			*dst = n
		}
	}
}
