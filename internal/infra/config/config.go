package config

import (
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// AppConfig описывает конфигурацию сервисов.
type AppConfig struct {
	AppEnv string `envconfig:"APP_ENV" default:"dev"`
	TZ     string `envconfig:"TZ" default:"America/New_York"`
	Port   int    `envconfig:"PORT" default:"8080"`

	PGDSN     string `envconfig:"PG_DSN"`
	RedisAddr string `envconfig:"REDIS_ADDR"`

	Queue struct {
		Driver string `envconfig:"QUEUE_DRIVER" default:"redis"`
		Key    string `envconfig:"JOB_QUEUE_KEY" default:"trenddrop_jobs"`
		AMQP   string `envconfig:"RABBITMQ_URL"`
	} `envconfig:""`

	Telegram struct {
		Token       string `envconfig:"TG_BOT_TOKEN"`
		WebhookURL  string `envconfig:"TG_WEBHOOK_URL"`
		PublicChat  int64  `envconfig:"TG_PUBLIC_CHAT_ID"`
		PaidChat    int64  `envconfig:"TG_PAID_CHAT_ID"`
		AdminChat   int64  `envconfig:"TG_ADMIN_CHAT_ID"`
		DMChat      int64  `envconfig:"TG_DM_CHAT_ID"`
		APIID       int    `envconfig:"TG_API_ID"`
		APIHash     string `envconfig:"TG_API_HASH"`
		StatsAlias  string `envconfig:"TG_STATS_CHANNEL_ALIAS"`
		SessionName string `envconfig:"MTPROTO_SESSION_NAME" default:"default"`
	} `envconfig:""`

	Ebay struct {
		ClientID     string `envconfig:"EBAY_CLIENT_ID"`
		ClientSecret string `envconfig:"EBAY_CLIENT_SECRET"`
		BaseURL      string `envconfig:"EBAY_BASE_URL" default:"https://api.ebay.com"`
		CampaignID   string `envconfig:"EPN_CAMPAIGN_ID"`
	} `envconfig:""`

	OpenAI struct {
		APIKey  string        `envconfig:"OPENAI_API_KEY"`
		BaseURL string        `envconfig:"OPENAI_BASE_URL"`
		Model   string        `envconfig:"OPENAI_MODEL" default:"gpt-4o-mini"`
		Timeout time.Duration `envconfig:"OPENAI_TIMEOUT" default:"60s"`
	} `envconfig:""`

	Publish struct {
		DedupeHours        int    `envconfig:"PUBLISH_DEDUPE_HOURS" default:"48"`
		MaxPerKeyword      int    `envconfig:"PUBLISH_MAX_PER_KEYWORD" default:"2"`
		MinUniqueKeywords  int    `envconfig:"PUBLISH_MIN_UNIQUE_KEYWORDS" default:"4"`
		MaxPerSeller       int    `envconfig:"PUBLISH_MAX_PER_SELLER" default:"1"`
		CTAEvery           int    `envconfig:"PUBLISH_CTA_EVERY" default:"6"`
		CTACooldownMinutes int    `envconfig:"PUBLISH_CTA_COOLDOWN_MINUTES" default:"180"`
		PinCTA             bool   `envconfig:"PUBLISH_PIN_CTA" default:"false"`
		Limit              int    `envconfig:"PUBLISH_LIMIT" default:"5"`
		GumroadCTAURL      string `envconfig:"GUMROAD_CTA_URL"`
	} `envconfig:""`

	Trends struct {
		TopicsLimit      int    `envconfig:"TREND_TOPICS_LIMIT" default:"4"`
		VariantsPerTopic int    `envconfig:"TREND_VARIANTS_PER_TOPIC" default:"3"`
		PerPage          int    `envconfig:"TREND_PER_PAGE" default:"20"`
		Picks            int    `envconfig:"TREND_PICKS_LIMIT" default:"6"`
		SleepSecs        int    `envconfig:"TREND_SLEEP_SECS" default:"3"`
		SleepJitterSecs  int    `envconfig:"TREND_SLEEP_JITTER" default:"2"`
		SeedFile         string `envconfig:"TRENDS_SEED_FILE"`
		FeedGeo          string `envconfig:"TRENDS_FEED_GEO" default:"US"`
	} `envconfig:""`

	Storefront struct {
		DataDir           string `envconfig:"STOREFRONT_DATA_DIR" default:"docs/data"`
		ClickRedirectBase string `envconfig:"CLICK_REDIRECT_BASE"`
	} `envconfig:""`

	Reports struct {
		OutDir   string `envconfig:"REPORTS_OUT_DIR" default:"reports/out"`
		LockFile string `envconfig:"REPORTS_LOCK_FILE" default:"reports/.lock"`
		TopN     int    `envconfig:"REPORTS_TOP_N" default:"50"`
		MaxPull  int    `envconfig:"REPORTS_MAX_PULL" default:"150"`
	} `envconfig:""`

	Storage struct {
		BaseURL    string `envconfig:"SUPABASE_URL"`
		ServiceKey string `envconfig:"SUPABASE_SERVICE_KEY"`
		Bucket     string `envconfig:"SUPABASE_REPORT_BUCKET" default:"reports"`
	} `envconfig:""`

	Schedule struct {
		DropTimes     string `envconfig:"SCHEDULE_DROP_TIMES" default:"10:00,17:00"`
		ReportWeekday string `envconfig:"SCHEDULE_REPORT_WEEKDAY" default:"Monday"`
		ReportTime    string `envconfig:"SCHEDULE_REPORT_TIME" default:"08:00"`
	} `envconfig:""`

	MetricsAddr string `envconfig:"METRICS_ADDR" default:":9090"`
}

// Load загружает .env (если есть) и конфиг из окружения.
func Load() AppConfig {
	_ = godotenv.Load()
	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		log.Fatalf("не удалось загрузить конфиг: %v", err)
	}
	return cfg
}
