package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
)

func TestFromViperDefaults(t *testing.T) {
	cfg := FromViper(newViper())

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "postgres", cfg.DBDriver)
	assert.Equal(t, "https://open.larksuite.com/open-apis", cfg.LarkBaseURL)
	assert.Equal(t, 100, cfg.PageSize)
	assert.Equal(t, 0, cfg.MaxPages)
	assert.Equal(t, 30*time.Second, cfg.HTTPTimeout)
	assert.False(t, cfg.SemanticSearch)
	assert.False(t, cfg.EmbeddingsConfigured())
}

func TestFromViperLists(t *testing.T) {
	v := newViper()
	v.Set("BITABLE_TABLE_IDS", " tblA, tblB ,,")
	v.Set("TASKLISTS", "9f97-guid=Launch Plan, other-guid=")
	v.Set("PAGE_SIZE", 500)
	v.Set("LARK_BASE_URL", "http://localhost:9999/open-apis/")

	cfg := FromViper(v)

	assert.Equal(t, []string{"tblA", "tblB"}, cfg.BitableTableIDs)
	assert.Equal(t, []Tasklist{
		{GUID: "9f97-guid", Name: "Launch Plan"},
		{GUID: "other-guid", Name: ""},
	}, cfg.Tasklists)
	assert.Equal(t, "Launch Plan", cfg.TasklistName("9f97-guid"))
	assert.Equal(t, "", cfg.TasklistName("missing"))
	assert.Equal(t, 100, cfg.PageSize, "page size is capped at the upstream maximum")
	assert.Equal(t, "http://localhost:9999/open-apis", cfg.LarkBaseURL)
}

func TestDSN(t *testing.T) {
	v := viper.New()
	v.Set("DB_HOST", "db")
	v.Set("DB_USER", "hub")
	v.Set("DB_PASSWORD", "pw")
	v.Set("DB_NAME", "hubtask")
	v.Set("DB_PORT", "5433")
	cfg := FromViper(v)
	assert.Equal(t, "host=db user=hub password=pw dbname=hubtask port=5433 sslmode=disable", cfg.DSN())

	v.Set("DATABASE_URL", "postgres://u:p@h/db")
	assert.Equal(t, "postgres://u:p@h/db", FromViper(v).DSN())
}
