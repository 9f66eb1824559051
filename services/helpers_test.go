package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"hubtask/config"
	"hubtask/lark"

	"golang.org/x/oauth2"
)

type item = map[string]interface{}

// fakeLark serves single-page list responses for the Task-v2 and Bitable
// endpoints the services call.
type fakeLark struct {
	mu            sync.Mutex
	myTasks       map[bool][]item
	tasklists     map[string][]item
	comments      map[string][]item
	failComments  map[string]bool
	tables        map[string]string
	records       map[string][]item
	failRecords   map[string]bool
	authorization []string
}

func newFakeLark() *fakeLark {
	return &fakeLark{
		myTasks:      map[bool][]item{},
		tasklists:    map[string][]item{},
		comments:     map[string][]item{},
		failComments: map[string]bool{},
		tables:       map[string]string{},
		records:      map[string][]item{},
		failRecords:  map[string]bool{},
	}
}

func (f *fakeLark) setMyTasks(completed bool, tasks ...item) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.myTasks[completed] = tasks
}

func (f *fakeLark) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.authorization = append(f.authorization, r.Header.Get("Authorization"))

	q := r.URL.Query()
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	switch {
	case r.URL.Path == "/task/v2/tasks":
		writePage(w, f.myTasks[q.Get("completed") == "true"])
	case r.URL.Path == "/task/v2/comments":
		guid := q.Get("resource_id")
		if f.failComments[guid] {
			writeCode(w, 1470400, "comment list failed")
			return
		}
		writePage(w, f.comments[guid])
	case len(parts) == 5 && parts[2] == "tasklists":
		writePage(w, f.tasklists[parts[3]])
	case len(parts) == 7 && parts[6] == "records":
		if f.failRecords[parts[5]] {
			writeCode(w, 1254000, "records failed")
			return
		}
		writePage(w, f.records[parts[5]])
	case len(parts) == 6 && parts[4] == "tables":
		name, ok := f.tables[parts[5]]
		if !ok {
			writeCode(w, 1254004, "table not found")
			return
		}
		json.NewEncoder(w).Encode(item{"code": 0, "data": item{"table": item{"table_id": parts[5], "name": name}}})
	default:
		http.NotFound(w, r)
	}
}

func writePage(w http.ResponseWriter, items []item) {
	if items == nil {
		items = []item{}
	}
	json.NewEncoder(w).Encode(item{
		"code": 0,
		"msg":  "success",
		"data": item{"items": items, "has_more": false},
	})
}

func writeCode(w http.ResponseWriter, code int, msg string) {
	json.NewEncoder(w).Encode(item{"code": code, "msg": msg})
}

func newLarkClient(t *testing.T, f *fakeLark) (*lark.Client, *config.Config) {
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	cfg := &config.Config{
		LarkBaseURL:      srv.URL,
		PageSize:         100,
		FetchConcurrency: 4,
		HTTPTimeout:      5 * time.Second,
		TaskAppLink:      "https://applink.example/detail?guid=",
		BitableLink:      "https://base.example/",
	}
	return lark.NewClient(cfg, nil), cfg
}

type staticTenant struct{}

func (staticTenant) TenantTokenSource(ctx context.Context) oauth2.TokenSource {
	return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "tenant-token", TokenType: "Bearer"})
}

type staticUser struct {
	token string
	err   error
}

func (u staticUser) ValidAccessToken(ctx context.Context) (string, error) {
	return u.token, u.err
}

func v2Task(guid, summary string, members ...item) item {
	return item{
		"guid":         guid,
		"summary":      summary,
		"completed_at": "0",
		"members":      members,
	}
}

func member(id, name, role string) item {
	return item{"id": id, "name": name, "role": role, "type": "user"}
}
