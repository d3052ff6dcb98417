package config

import "time"

type AppConfig struct {
	DBDriver   string          `yaml:"db_driver" env:"WARROOM_DB_DRIVER" env-default:"sqlite"`
	DBURL      string          `yaml:"db_url" env:"WARROOM_DB_URL"`
	DBPath     string          `yaml:"db_path" env:"WARROOM_DB_PATH" env-default:"data/warroom.db"`
	ListenAddr string          `yaml:"listen_addr" env:"WARROOM_LISTEN_ADDR" env-default:"0.0.0.0:8080"`
	AppEnv     string          `yaml:"app_env" env:"WARROOM_APP_ENV"`
	Log        LogConfig       `yaml:"log"`
	Auth       AuthConfig      `yaml:"auth"`
	Incidents  IncidentsConfig `yaml:"incidents"`
	Cases      CasesConfig     `yaml:"cases"`
	Oncall     OncallConfig    `yaml:"oncall"`
	Notify     NotifyConfig    `yaml:"notify"`
	Scheduler  SchedulerConfig `yaml:"scheduler"`
}

func (c *AppConfig) IsPostgres() bool {
	if c == nil {
		return false
	}
	return c.DBDriver == "postgres"
}

type LogConfig struct {
	Level  string `yaml:"level" env:"WARROOM_LOG_LEVEL" env-default:"info"`
	Format string `yaml:"format" env:"WARROOM_LOG_FORMAT" env-default:"console"`
}

// AuthConfig lists the API tokens accepted by the HTTP layer. Hash is a
// bcrypt hash of the raw bearer token. Roles adds or replaces permission
// grants on top of the built-in viewer, responder and admin roles.
type AuthConfig struct {
	Disabled bool                `yaml:"disabled" env:"WARROOM_AUTH_DISABLED" env-default:"false"`
	Tokens   []APIToken          `yaml:"tokens"`
	Roles    map[string][]string `yaml:"roles"`
}

type APIToken struct {
	Name  string   `yaml:"name"`
	Hash  string   `yaml:"hash"`
	Roles []string `yaml:"roles"`
}

type IncidentsConfig struct {
	NameFormat      string             `yaml:"name_format" env:"WARROOM_INCIDENTS_NAME_FORMAT" env-default:"INC-{year}-{seq:05}"`
	DefaultType     string             `yaml:"default_type" env:"WARROOM_INCIDENTS_DEFAULT_TYPE"`
	DefaultPriority string             `yaml:"default_priority" env:"WARROOM_INCIDENTS_DEFAULT_PRIORITY"`
	EventSource     string             `yaml:"event_source" env:"WARROOM_INCIDENTS_EVENT_SOURCE" env-default:"Warroom Core App"`
	Types           []IncidentType     `yaml:"types"`
	Priorities      []IncidentPriority `yaml:"priorities"`
}

type IncidentType struct {
	Name             string `yaml:"name"`
	Disabled         bool   `yaml:"disabled"`
	Visibility       string `yaml:"visibility"`
	CommanderService string `yaml:"commander_service"`
	LiaisonService   string `yaml:"liaison_service"`
}

type IncidentPriority struct {
	Name          string `yaml:"name"`
	Disabled      bool   `yaml:"disabled"`
	PageCommander bool   `yaml:"page_commander"`
}

type CasesConfig struct {
	NameFormat string `yaml:"name_format" env:"WARROOM_CASES_NAME_FORMAT" env-default:"CASE-{year}-{seq:05}"`
}

// OncallConfig maps an oncall service reference to the email currently on
// call. PagerURL, when set, receives a JSON page for commanders.
type OncallConfig struct {
	Services       map[string]string `yaml:"services"`
	PagerURL       string            `yaml:"pager_url" env:"WARROOM_ONCALL_PAGER_URL"`
	RequestTimeout time.Duration     `yaml:"request_timeout" env:"WARROOM_ONCALL_REQUEST_TIMEOUT" env-default:"10s"`
}

type NotifyConfig struct {
	WebhookURL     string        `yaml:"webhook_url" env:"WARROOM_NOTIFY_WEBHOOK_URL"`
	TelegramToken  string        `yaml:"telegram_token" env:"WARROOM_NOTIFY_TELEGRAM_TOKEN"`
	TelegramChatID string        `yaml:"telegram_chat_id" env:"WARROOM_NOTIFY_TELEGRAM_CHAT_ID"`
	Template       string        `yaml:"template" env:"WARROOM_NOTIFY_TEMPLATE"`
	Timeout        time.Duration `yaml:"timeout" env:"WARROOM_NOTIFY_TIMEOUT" env-default:"10s"`
}

func (c NotifyConfig) Enabled() bool {
	return c.WebhookURL != "" || (c.TelegramToken != "" && c.TelegramChatID != "")
}

type SchedulerConfig struct {
	Enabled         bool   `yaml:"enabled" env:"WARROOM_SCHEDULER_ENABLED" env-default:"true"`
	PointerSyncSpec string `yaml:"pointer_sync_spec" env:"WARROOM_SCHEDULER_POINTER_SYNC_SPEC" env-default:"@every 15m"`
}

func (c *IncidentsConfig) FindType(name string) (IncidentType, bool) {
	for _, t := range c.Types {
		if t.Name == name {
			return t, true
		}
	}
	return IncidentType{}, false
}

func (c *IncidentsConfig) FindPriority(name string) (IncidentPriority, bool) {
	for _, p := range c.Priorities {
		if p.Name == name {
			return p, true
		}
	}
	return IncidentPriority{}, false
}
