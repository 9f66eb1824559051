package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// Tasklist is a Task-v2 tasklist the proxy lists with the tenant token.
type Tasklist struct {
	GUID string `json:"guid"`
	Name string `json:"name"`
}

type Config struct {
	Port          string
	PublicBaseURL string

	DBDriver    string
	DatabaseURL string
	DBHost      string
	DBPort      string
	DBUser      string
	DBPassword  string
	DBName      string
	SQLitePath  string

	LarkAppID        string
	LarkAppSecret    string
	LarkBaseURL      string
	OAuthRedirectURI string
	OAuthScopes      string
	BitableBaseID    string
	BitableTableIDs  []string
	Tasklists        []Tasklist
	TaskAppLink      string
	BitableLink      string

	PageSize         int
	MaxPages         int
	FetchConcurrency int
	HTTPTimeout      time.Duration

	CronSecret         string
	StateSecret        string
	TokenEncryptionKey string

	CFAccountID    string
	CFAPIToken     string
	EmbeddingModel string
	SemanticSearch bool

	ArchiveType       string
	ArchiveDir        string
	R2AccountID       string
	R2AccessKeyID     string
	R2SecretAccessKey string
	R2Bucket          string

	SyncInterval time.Duration

	LogLevel string
	LogFile  string
}

// LoadConfig reads .env (when present) and the process environment.
func LoadConfig() *Config {
	if err := godotenv.Load(); err != nil {
		logrus.Debugf("No .env file loaded: %v", err)
	}
	return FromViper(newViper())
}

func newViper() *viper.Viper {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("PORT", "8080")
	v.SetDefault("DB_DRIVER", "postgres")
	v.SetDefault("DB_PORT", "5432")
	v.SetDefault("SQLITE_PATH", "hubtask.db")
	v.SetDefault("LARK_BASE_URL", "https://open.larksuite.com/open-apis")
	v.SetDefault("OAUTH_SCOPES", "task:tasklist:read task:task:read")
	v.SetDefault("TASK_APPLINK", "https://applink.larksuite.com/client/todo/detail?guid=")
	v.SetDefault("BITABLE_LINK", "https://larksuite.com/base/")
	v.SetDefault("PAGE_SIZE", 100)
	v.SetDefault("MAX_PAGES", 0)
	v.SetDefault("FETCH_CONCURRENCY", 8)
	v.SetDefault("HTTP_TIMEOUT", "30s")
	v.SetDefault("EMBEDDING_MODEL", "@cf/baai/bge-small-en-v1.5")
	v.SetDefault("SEMANTIC_SEARCH", false)
	v.SetDefault("ARCHIVE_DIR", "./archive")
	v.SetDefault("SYNC_INTERVAL", "0s")
	v.SetDefault("LOG_LEVEL", "info")
	return v
}

// FromViper builds a Config from an already populated viper instance.
func FromViper(v *viper.Viper) *Config {
	pageSize := v.GetInt("PAGE_SIZE")
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 100
	}

	return &Config{
		Port:          v.GetString("PORT"),
		PublicBaseURL: strings.TrimRight(v.GetString("PUBLIC_BASE_URL"), "/"),

		DBDriver:    strings.ToLower(v.GetString("DB_DRIVER")),
		DatabaseURL: v.GetString("DATABASE_URL"),
		DBHost:      v.GetString("DB_HOST"),
		DBPort:      v.GetString("DB_PORT"),
		DBUser:      v.GetString("DB_USER"),
		DBPassword:  v.GetString("DB_PASSWORD"),
		DBName:      v.GetString("DB_NAME"),
		SQLitePath:  v.GetString("SQLITE_PATH"),

		LarkAppID:        v.GetString("LARK_APP_ID"),
		LarkAppSecret:    v.GetString("LARK_APP_SECRET"),
		LarkBaseURL:      strings.TrimRight(v.GetString("LARK_BASE_URL"), "/"),
		OAuthRedirectURI: v.GetString("OAUTH_REDIRECT_URI"),
		OAuthScopes:      v.GetString("OAUTH_SCOPES"),
		BitableBaseID:    v.GetString("BITABLE_BASE_ID"),
		BitableTableIDs:  splitList(v.GetString("BITABLE_TABLE_IDS")),
		Tasklists:        parseTasklists(v.GetString("TASKLISTS")),
		TaskAppLink:      v.GetString("TASK_APPLINK"),
		BitableLink:      v.GetString("BITABLE_LINK"),

		PageSize:         pageSize,
		MaxPages:         v.GetInt("MAX_PAGES"),
		FetchConcurrency: v.GetInt("FETCH_CONCURRENCY"),
		HTTPTimeout:      v.GetDuration("HTTP_TIMEOUT"),

		CronSecret:         v.GetString("CRON_SECRET"),
		StateSecret:        v.GetString("STATE_SECRET"),
		TokenEncryptionKey: v.GetString("TOKEN_ENCRYPTION_KEY"),

		CFAccountID:    v.GetString("CF_ACCOUNT_ID"),
		CFAPIToken:     v.GetString("CF_API_TOKEN"),
		EmbeddingModel: v.GetString("EMBEDDING_MODEL"),
		SemanticSearch: v.GetBool("SEMANTIC_SEARCH"),

		ArchiveType:       strings.ToLower(v.GetString("ARCHIVE_TYPE")),
		ArchiveDir:        v.GetString("ARCHIVE_DIR"),
		R2AccountID:       v.GetString("R2_ACCOUNT_ID"),
		R2AccessKeyID:     v.GetString("R2_ACCESS_KEY_ID"),
		R2SecretAccessKey: v.GetString("R2_SECRET_ACCESS_KEY"),
		R2Bucket:          v.GetString("R2_BUCKET_NAME"),

		SyncInterval: v.GetDuration("SYNC_INTERVAL"),

		LogLevel: v.GetString("LOG_LEVEL"),
		LogFile:  v.GetString("LOG_FILE"),
	}
}

// DSN returns the postgres connection string.
func (c *Config) DSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable",
		c.DBHost, c.DBUser, c.DBPassword, c.DBName, c.DBPort)
}

// EmbeddingsConfigured reports whether both the embedding model and the
// vector index are usable.
func (c *Config) EmbeddingsConfigured() bool {
	return c.CFAccountID != "" && c.CFAPIToken != ""
}

// TasklistName returns the configured display name for a tasklist guid.
func (c *Config) TasklistName(guid string) string {
	for _, tl := range c.Tasklists {
		if tl.GUID == guid {
			return tl.Name
		}
	}
	return ""
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// parseTasklists reads "guid=name,guid2=name2".
func parseTasklists(raw string) []Tasklist {
	var out []Tasklist
	for _, entry := range splitList(raw) {
		guid, name, _ := strings.Cut(entry, "=")
		guid = strings.TrimSpace(guid)
		if guid == "" {
			continue
		}
		out = append(out, Tasklist{GUID: guid, Name: strings.TrimSpace(name)})
	}
	return out
}
