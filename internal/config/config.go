package config

import (
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

const (
	defaultTimezone     = "UTC"
	configPathEnv       = "SUBMISSION_RELAY_CONFIG"
	databaseDSNEnv      = "DATABASE_DSN"
	storeDriverEnv      = "STORE_DRIVER"
	webhookIDEnv        = "DISCORD_WEBHOOK_ID"
	webhookTokenEnv     = "DISCORD_WEBHOOK_TOKEN"
	telegramTokenEnv    = "TELEGRAM_BOT_TOKEN"
	redditUserAgentEnv  = "REDDIT_USER_AGENT"
	logLevelEnv         = "LOG_LEVEL"
	httpAddrEnv         = "HTTP_ADDR"
	defaultThumbnailURL = "https://b.thumbs.redditmedia.com/LbhL2LHGo_LjcjnKj4YBmMf6aXdCJdNae2Kpx3A8OaI.png"
)

// Destination kinds.
const (
	DestinationDiscord  = "discord"
	DestinationTelegram = "telegram"
)

// Config holds high-level settings required across the application.
type Config struct {
	Logging     LoggingConfig     `yaml:"logging" toml:"logging"`
	Store       StoreConfig       `yaml:"store" toml:"store"`
	Scheduler   SchedulerConfig   `yaml:"scheduler" toml:"scheduler"`
	Source      SourceConfig      `yaml:"source" toml:"source"`
	Destination DestinationConfig `yaml:"destination" toml:"destination"`
	Channels    ChannelsConfig    `yaml:"channels" toml:"channels"`
	Classifier  ClassifierConfig  `yaml:"classifier" toml:"classifier"`
	Formatter   FormatterConfig   `yaml:"formatter" toml:"formatter"`
	Dispatcher  DispatcherConfig  `yaml:"dispatcher" toml:"dispatcher"`
	HTTP        HTTPConfig        `yaml:"http" toml:"http"`
}

// LoggingConfig selects level and handler.
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"` // text or json
}

// StoreConfig describes the submission store backend.
type StoreConfig struct {
	Driver      string        `yaml:"driver" toml:"driver"` // sqlite, postgres or memory
	DSN         string        `yaml:"dsn" toml:"dsn"`
	BusyTimeout time.Duration `yaml:"busyTimeout" toml:"busyTimeout"`
}

// SchedulerConfig defines when a relay cycle runs.
type SchedulerConfig struct {
	CronExpression string         `yaml:"cronExpression" toml:"cronExpression"`
	Timezone       string         `yaml:"timezone" toml:"timezone"`
	location       *time.Location `yaml:"-" toml:"-"`
}

// Location resolves the scheduler timezone string to a time.Location.
func (s SchedulerConfig) Location() *time.Location {
	if s.location != nil {
		return s.location
	}
	loc, _ := time.LoadLocation(defaultTimezone)
	return loc
}

// SourceConfig groups settings for the listing source.
type SourceConfig struct {
	Strategy          string        `yaml:"strategy" toml:"strategy"` // json or html
	APIURL            string        `yaml:"apiUrl" toml:"apiUrl"`
	ListingURL        string        `yaml:"listingUrl" toml:"listingUrl"`
	UserAgent         string        `yaml:"userAgent" toml:"userAgent"`
	FetchLimit        int           `yaml:"fetchLimit" toml:"fetchLimit"`
	RequestsPerSecond float64       `yaml:"requestsPerSecond" toml:"requestsPerSecond"`
	Timeout           time.Duration `yaml:"timeout" toml:"timeout"`
}

// DestinationConfig selects where submissions are relayed.
type DestinationConfig struct {
	Kind     string         `yaml:"kind" toml:"kind"`
	Discord  DiscordConfig  `yaml:"discord" toml:"discord"`
	Telegram TelegramConfig `yaml:"telegram" toml:"telegram"`
}

// DiscordConfig wires the default webhook.
type DiscordConfig struct {
	WebhookURL   string `yaml:"webhookUrl" toml:"webhookUrl"`
	WebhookID    string `yaml:"webhookId" toml:"webhookId"`
	WebhookToken string `yaml:"webhookToken" toml:"webhookToken"`
}

// TelegramConfig wires the bot used for delivery.
type TelegramConfig struct {
	BotToken string `yaml:"botToken" toml:"botToken"`
	APIURL   string `yaml:"apiUrl" toml:"apiUrl"`
}

// ChannelsConfig lists the tracked scopes and where assignments persist.
type ChannelsConfig struct {
	File   string   `yaml:"file" toml:"file"`
	Watch  bool     `yaml:"watch" toml:"watch"`
	Scopes []string `yaml:"scopes" toml:"scopes"`
}

// ClassifierConfig holds the daily-thread rule and thumbnail fallback.
type ClassifierConfig struct {
	Daily            DailyConfig `yaml:"daily" toml:"daily"`
	DefaultThumbnail string      `yaml:"defaultThumbnail" toml:"defaultThumbnail"`
}

// DailyConfig recognises the recurring discussion thread.
type DailyConfig struct {
	Scope       string `yaml:"scope" toml:"scope"`
	Author      string `yaml:"author" toml:"author"`
	Category    string `yaml:"category" toml:"category"`
	TitleMarker string `yaml:"titleMarker" toml:"titleMarker"`
}

// FormatterConfig holds link roots and the category colour table.
type FormatterConfig struct {
	SiteURL       string            `yaml:"siteUrl" toml:"siteUrl"`
	Colours       map[string]string `yaml:"colours" toml:"colours"`
	DefaultColour string            `yaml:"defaultColour" toml:"defaultColour"`
}

// DispatcherConfig bounds each delivery batch.
type DispatcherConfig struct {
	BatchSize int           `yaml:"batchSize" toml:"batchSize"`
	Backoff   time.Duration `yaml:"backoff" toml:"backoff"`
}

// HTTPConfig configures the status API; an empty Addr disables it.
type HTTPConfig struct {
	Addr            string        `yaml:"addr" toml:"addr"`
	MetricsInterval time.Duration `yaml:"metricsInterval" toml:"metricsInterval"`
}

// Load reads the file named by SUBMISSION_RELAY_CONFIG (if set) and applies
// environment overrides.
func Load() Config {
	return LoadFile(os.Getenv(configPathEnv))
}

// LoadFile merges path onto the defaults and applies environment overrides.
// Files ending in .toml are parsed as TOML, everything else as YAML.
func LoadFile(path string) Config {
	cfg := defaultConfig()

	if path != "" {
		if fileCfg, err := readFile(path); err != nil {
			log.Printf("config: cannot load %s: %v (falling back to defaults)", path, err)
		} else {
			cfg = mergeConfig(cfg, fileCfg)
		}
	}

	cfg.applyEnvOverrides()
	cfg.bindTimezone()

	return cfg
}

func readFile(path string) (Config, error) {
	var fileCfg Config
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		_, err := toml.DecodeFile(path, &fileCfg)
		return fileCfg, err
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return fileCfg, err
	}
	err = yaml.Unmarshal(raw, &fileCfg)
	return fileCfg, err
}

func (c *Config) applyEnvOverrides() {
	overrides := []struct {
		env string
		dst *string
	}{
		{databaseDSNEnv, &c.Store.DSN},
		{storeDriverEnv, &c.Store.Driver},
		{webhookIDEnv, &c.Destination.Discord.WebhookID},
		{webhookTokenEnv, &c.Destination.Discord.WebhookToken},
		{telegramTokenEnv, &c.Destination.Telegram.BotToken},
		{redditUserAgentEnv, &c.Source.UserAgent},
		{logLevelEnv, &c.Logging.Level},
	}
	for _, o := range overrides {
		if v := os.Getenv(o.env); v != "" {
			*o.dst = v
		}
	}

	// HTTP_ADDR may be set to an empty value to disable the API.
	if v, ok := os.LookupEnv(httpAddrEnv); ok {
		c.HTTP.Addr = v
	}
}

func (c *Config) bindTimezone() {
	tz := c.Scheduler.Timezone
	if tz == "" {
		tz = defaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		log.Printf("config: unknown timezone %s, reverting to %s", tz, defaultTimezone)
		loc, _ = time.LoadLocation(defaultTimezone)
	}
	c.Scheduler.location = loc
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func mergeConfig(base, override Config) Config {
	setString(&base.Logging.Level, override.Logging.Level)
	setString(&base.Logging.Format, override.Logging.Format)

	setString(&base.Store.Driver, override.Store.Driver)
	setString(&base.Store.DSN, override.Store.DSN)
	if override.Store.BusyTimeout > 0 {
		base.Store.BusyTimeout = override.Store.BusyTimeout
	}

	setString(&base.Scheduler.CronExpression, override.Scheduler.CronExpression)
	setString(&base.Scheduler.Timezone, override.Scheduler.Timezone)

	setString(&base.Source.Strategy, override.Source.Strategy)
	setString(&base.Source.APIURL, override.Source.APIURL)
	setString(&base.Source.ListingURL, override.Source.ListingURL)
	setString(&base.Source.UserAgent, override.Source.UserAgent)
	if override.Source.FetchLimit > 0 {
		base.Source.FetchLimit = override.Source.FetchLimit
	}
	if override.Source.RequestsPerSecond != 0 {
		base.Source.RequestsPerSecond = override.Source.RequestsPerSecond
	}
	if override.Source.Timeout > 0 {
		base.Source.Timeout = override.Source.Timeout
	}

	setString(&base.Destination.Kind, override.Destination.Kind)
	setString(&base.Destination.Discord.WebhookURL, override.Destination.Discord.WebhookURL)
	setString(&base.Destination.Discord.WebhookID, override.Destination.Discord.WebhookID)
	setString(&base.Destination.Discord.WebhookToken, override.Destination.Discord.WebhookToken)
	setString(&base.Destination.Telegram.BotToken, override.Destination.Telegram.BotToken)
	setString(&base.Destination.Telegram.APIURL, override.Destination.Telegram.APIURL)

	setString(&base.Channels.File, override.Channels.File)
	if override.Channels.Watch {
		base.Channels.Watch = true
	}
	if len(override.Channels.Scopes) > 0 {
		base.Channels.Scopes = override.Channels.Scopes
	}

	if override.Classifier.Daily != (DailyConfig{}) {
		base.Classifier.Daily = override.Classifier.Daily
	}
	setString(&base.Classifier.DefaultThumbnail, override.Classifier.DefaultThumbnail)

	setString(&base.Formatter.SiteURL, override.Formatter.SiteURL)
	setString(&base.Formatter.DefaultColour, override.Formatter.DefaultColour)
	for category, colour := range override.Formatter.Colours {
		base.Formatter.Colours[category] = colour
	}

	if override.Dispatcher.BatchSize > 0 {
		base.Dispatcher.BatchSize = override.Dispatcher.BatchSize
	}
	if override.Dispatcher.Backoff > 0 {
		base.Dispatcher.Backoff = override.Dispatcher.Backoff
	}

	setString(&base.HTTP.Addr, override.HTTP.Addr)
	if override.HTTP.MetricsInterval > 0 {
		base.HTTP.MetricsInterval = override.HTTP.MetricsInterval
	}

	return base
}

func defaultColours() map[string]string {
	return map[string]string{
		"politics":     "E9987B",
		"advice":       "e67367",
		"news":         "CB7BC0",
		"discussion":   "AB83E1",
		"picture":      "73b1db",
		"sports":       "60b8a7",
		"meta":         "4ccd82",
		"travel":       "f1d872",
		"other":        "c2c2cf",
		"music":        "2f2f2f",
		"civildefence": "005A9C",
		"ama":          "0099CC",
		"kiwiana":      "78A22F",
		"shitpost":     "D4327C",
		"opinion":      "FFB3BF",
		"longform":     "53C68C",
		"māoritanga":   "EA0027",
	}
}

func defaultConfig() Config {
	tz, _ := time.LoadLocation(defaultTimezone)
	return Config{
		Logging: LoggingConfig{Level: "info", Format: "text"},
		Store: StoreConfig{
			Driver:      "sqlite",
			DSN:         "data/submissions.db",
			BusyTimeout: 5 * time.Second,
		},
		Scheduler: SchedulerConfig{CronExpression: "@every 30s", Timezone: defaultTimezone, location: tz},
		Source: SourceConfig{
			Strategy:          "json",
			APIURL:            "https://www.reddit.com",
			ListingURL:        "https://old.reddit.com",
			UserAgent:         "SubmissionRelay/1.0",
			FetchLimit:        10,
			RequestsPerSecond: 1,
			Timeout:           20 * time.Second,
		},
		Destination: DestinationConfig{
			Kind:    DestinationDiscord,
			Discord: DiscordConfig{WebhookURL: "https://discordapp.com/api/webhooks"},
		},
		Channels: ChannelsConfig{
			File:  "data/assignments.yaml",
			Watch: true,
			Scopes: []string{
				"newzealand", "auckland", "chch", "wellington", "thetron", "dunedin",
				"hawkesbay", "nelsonnz", "taranaki", "palmy", "bayofplenty", "blenheim",
				"westcoastnz", "queenstown", "stewartisland", "masterton", "invercargill",
			},
		},
		Classifier: ClassifierConfig{
			Daily: DailyConfig{
				Scope:       "newzealand",
				Author:      "AutoModerator",
				Category:    "Discussion",
				TitleMarker: "Random Daily Discussion",
			},
			DefaultThumbnail: defaultThumbnailURL,
		},
		Formatter: FormatterConfig{
			SiteURL:       "https://reddit.com",
			Colours:       defaultColours(),
			DefaultColour: "c2c2cf",
		},
		Dispatcher: DispatcherConfig{BatchSize: 10, Backoff: 5 * time.Second},
		HTTP:       HTTPConfig{Addr: "127.0.0.1:8080", MetricsInterval: 30 * time.Second},
	}
}
