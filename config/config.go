package config

import (
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type App struct {
	// HTTP
	HTTPAddr       string `envconfig:"HTTP_ADDR" default:":5200"`
	AllowedOrigins string `envconfig:"ALLOWED_ORIGINS" default:"http://localhost:3000"`

	// DB
	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`

	// Gateway / service auth
	GatewayToken string `envconfig:"GAME_SERVICE_TOKEN" required:"true"`
	AdminRole    string `envconfig:"ADMIN_ROLE" default:"admin"`

	// Collaborators
	SportsDataURL   string        `envconfig:"SPORTS_DATA_URL" required:"true"`
	OracleURL       string        `envconfig:"ORACLE_URL" required:"true"`
	PaymentURL      string        `envconfig:"PAYMENT_URL" required:"true"`
	ServiceToken    string        `envconfig:"SERVICE_TOKEN"`
	ExternalTimeout time.Duration `envconfig:"EXTERNAL_TIMEOUT" default:"10s"`

	// Poller
	PollLiveInterval      time.Duration `envconfig:"POLL_LIVE_INTERVAL" default:"2m"`
	PollFinalInterval     time.Duration `envconfig:"POLL_FINAL_INTERVAL" default:"5m"`
	PollScheduledInterval time.Duration `envconfig:"POLL_SCHEDULED_INTERVAL" default:"15m"`
	TrackingSyncInterval  time.Duration `envconfig:"TRACKING_SYNC_INTERVAL" default:"1h"`
	PollRetries           int           `envconfig:"POLL_RETRIES" default:"3"`
	PollBackoff           time.Duration `envconfig:"POLL_BACKOFF" default:"2s"`
	PollFailureBudget     int           `envconfig:"POLL_FAILURE_BUDGET" default:"5"`
	DisputeWindow         time.Duration `envconfig:"DISPUTE_WINDOW" default:"24h"`
	KickoffLead           time.Duration `envconfig:"KICKOFF_LEAD" default:"30m"`
	CurrentSeason         int           `envconfig:"CURRENT_SEASON" default:"2026"`
	CurrentWeek           int           `envconfig:"CURRENT_WEEK" default:"1"`

	// Evaluation
	QueueSize         int           `envconfig:"FINALIZED_QUEUE_SIZE" default:"256"`
	EvalWorkers       int           `envconfig:"EVAL_WORKERS" default:"4"`
	EvalContestLimit  int           `envconfig:"EVAL_CONTEST_PARALLELISM" default:"8"`
	OracleLazyTimeout time.Duration `envconfig:"ORACLE_LAZY_TIMEOUT" default:"3s"`

	// Periodic jobs
	LifecycleInterval      time.Duration `envconfig:"LIFECYCLE_INTERVAL" default:"1m"`
	OutboxReplayInterval   time.Duration `envconfig:"OUTBOX_REPLAY_INTERVAL" default:"1m"`
	ReconcileInterval      time.Duration `envconfig:"RECONCILE_INTERVAL" default:"2m"`
	BaselinePrefetchPeriod time.Duration `envconfig:"BASELINE_PREFETCH_INTERVAL" default:"5m"`
	TransferMaxAttempts    int           `envconfig:"TRANSFER_MAX_ATTEMPTS" default:"5"`

	// Optional broker
	RabbitURL      string `envconfig:"RABBITMQ_URL"`
	RabbitExchange string `envconfig:"RABBITMQ_EXCHANGE" default:"contest.events"`

	// Optional R2 audit archive
	R2AccountID       string `envconfig:"R2_ACCOUNT_ID"`
	R2AccessKeyID     string `envconfig:"R2_ACCESS_KEY_ID"`
	R2SecretAccessKey string `envconfig:"R2_SECRET_ACCESS_KEY"`
	R2Bucket          string `envconfig:"R2_BUCKET"`
}

// Origins returns AllowedOrigins trimmed and re-joined for fiber's cors config.
func (a App) Origins() string {
	parts := strings.Split(a.AllowedOrigins, ",")
	for i, p := range parts {
		parts[i] = strings.TrimSpace(p)
	}
	return strings.Join(parts, ",")
}

// R2Enabled reports whether the audit archive is configured.
func (a App) R2Enabled() bool {
	return a.R2AccountID != "" && a.R2AccessKeyID != "" && a.R2SecretAccessKey != "" && a.R2Bucket != ""
}

func Load() (App, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("[Config] no .env file found, reading environment variables directly")
	}
	var c App
	err := envconfig.Process("", &c)
	return c, err
}
