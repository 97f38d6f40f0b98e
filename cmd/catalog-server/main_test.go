package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/theimaginaryfoundation/upcycle-o-bot/fabric"
	"github.com/theimaginaryfoundation/upcycle-o-bot/fabric/logging"
	"github.com/theimaginaryfoundation/upcycle-o-bot/fabric/store"
)

func TestParseFlags_Overrides(t *testing.T) {
	t.Parallel()

	fs := flag.NewFlagSet("catalog-server", flag.ContinueOnError)
	cfg, err := parseFlags(fs, []string{"-addr", "127.0.0.1:9000", "-catalog", "data/norm.json", "-sqlite", "data/fabrics.db", "-max-body", "2048"})
	if err != nil {
		t.Fatalf("parseFlags: %v", err)
	}
	want := Config{Addr: "127.0.0.1:9000", CatalogPath: "data/norm.json", SQLitePath: "data/fabrics.db", MaxBodySize: 2048}
	if cfg != want {
		t.Fatalf("cfg=%+v, want %+v", cfg, want)
	}
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	if err := (Config{}).Validate(); err == nil {
		t.Fatalf("expected error")
	}
	if err := defaultConfig().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if err := (Config{Addr: ":1", SQLitePath: "x.db", MaxBodySize: 1}).Validate(); err != nil {
		t.Fatalf("sqlite-only config should be valid: %v", err)
	}
}

type staticCatalog struct {
	records []fabric.FabricRecord
	err     error
}

func (s staticCatalog) Fabrics(ctx context.Context) ([]fabric.FabricRecord, error) {
	return s.records, s.err
}

func testRecords() []fabric.FabricRecord {
	return []fabric.FabricRecord{
		{ID: "fabric_001", Name: "kurti_front", Material: "silk", Colors: []string{"red"}, Embellishments: []string{}},
		{ID: "fabric_002", Name: "saree", Material: "cotton", Colors: []string{"blue"}, Embellishments: []string{"beads"}},
		{ID: "fabric_003", Name: "kurti_back", Material: "silk", Colors: []string{"red"}, Embellishments: []string{}},
	}
}

func newTestRouter(src catalogSource) *gin.Engine {
	gin.SetMode(gin.TestMode)
	return newRouter(&catalogHandler{
		source:      src,
		rules:       fabric.DefaultRules(),
		maxBodySize: 1 << 10,
		log:         logging.NewNop(),
	})
}

func do(t *testing.T, r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestHealthcheck(t *testing.T) {
	t.Parallel()

	rec := do(t, newTestRouter(staticCatalog{}), http.MethodGet, "/healthcheck", "")
	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Fatalf("status=%d body=%q", rec.Code, rec.Body.String())
	}
}

func TestListGroups_StableOrder(t *testing.T) {
	t.Parallel()

	r := newTestRouter(staticCatalog{records: testRecords()})
	rec := do(t, r, http.MethodGet, "/api/groups", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Count  int            `json:"count"`
		Groups []fabric.Group `json:"groups"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Count != 2 || len(resp.Groups) != 2 {
		t.Fatalf("resp=%+v", resp)
	}
	if resp.Groups[0].Key != "kurti" || resp.Groups[1].Key != "saree" {
		t.Fatalf("keys=%s,%s, want kurti,saree", resp.Groups[0].Key, resp.Groups[1].Key)
	}
	if n := resp.Groups[0].Records; len(n) != 2 || n[0].ID != "fabric_001" || n[1].ID != "fabric_003" {
		t.Fatalf("kurti records=%+v", n)
	}

	rec = do(t, r, http.MethodGet, "/api/groups?q=SAR", "")
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Count != 1 || resp.Groups[0].Key != "saree" {
		t.Fatalf("q=SAR resp=%+v", resp)
	}

	rec = do(t, r, http.MethodGet, "/api/groups?q=lehenga", "")
	if !strings.Contains(rec.Body.String(), `"groups":[]`) {
		t.Fatalf("no-match body=%s", rec.Body.String())
	}
}

func TestGetGroup(t *testing.T) {
	t.Parallel()

	r := newTestRouter(staticCatalog{records: testRecords()})
	rec := do(t, r, http.MethodGet, "/api/groups/kurti", "")
	var g fabric.Group
	if err := json.Unmarshal(rec.Body.Bytes(), &g); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if rec.Code != http.StatusOK || g.Key != "kurti" || len(g.Records) != 2 {
		t.Fatalf("status=%d group=%+v", rec.Code, g)
	}

	rec = do(t, r, http.MethodGet, "/api/groups/lehenga", "")
	if rec.Code != http.StatusNotFound || !strings.Contains(rec.Body.String(), "group_not_found") {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}
}

func TestListFabrics(t *testing.T) {
	t.Parallel()

	rec := do(t, newTestRouter(staticCatalog{records: testRecords()}), http.MethodGet, "/api/fabrics", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"count":3`) {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}

	rec = do(t, newTestRouter(staticCatalog{err: errors.New("disk on fire")}), http.MethodGet, "/api/fabrics", "")
	if rec.Code != http.StatusInternalServerError || !strings.Contains(rec.Body.String(), "catalog_unavailable") {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}
}

func TestExtractEndpoint(t *testing.T) {
	t.Parallel()

	r := newTestRouter(staticCatalog{})
	rec := do(t, r, http.MethodPost, "/api/extract", "```json\n{\"material\": \"silk\", \"colors\": [\"red\"]}\n```")
	var resp struct {
		Fields   fabric.FabricFields `json:"fields"`
		Strategy fabric.Strategy     `json:"strategy"`
		Degraded bool                `json:"degraded"`
		Error    string              `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if rec.Code != http.StatusOK || resp.Fields.Material != "silk" || resp.Strategy != fabric.StrategyStrict || resp.Degraded {
		t.Fatalf("status=%d resp=%+v", rec.Code, resp)
	}

	rec = do(t, r, http.MethodPost, "/api/extract", "not json at all")
	resp.Error = ""
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !resp.Degraded || resp.Fields.Material != fabric.UnknownValue || resp.Error == "" {
		t.Fatalf("degraded resp=%+v", resp)
	}

	rec = do(t, r, http.MethodPost, "/api/extract", strings.Repeat("x", 2048))
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status=%d, want 413", rec.Code)
	}
}

func TestDirectivesEndpoint(t *testing.T) {
	t.Parallel()

	r := newTestRouter(staticCatalog{})
	rec := do(t, r, http.MethodPost, "/api/directives", "Idea one\nDALL·E Prompt: a red silk gown\nIdea two\nDALL·E Prompt: a blue cotton shirt\n")
	var resp struct {
		Count      int                `json:"count"`
		Directives []fabric.Directive `json:"directives"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Count != 2 || resp.Directives[0].Text != "a red silk gown" || resp.Directives[1].Text != "a blue cotton shirt" {
		t.Fatalf("resp=%+v", resp)
	}

	rec = do(t, r, http.MethodPost, "/api/directives", "no prompts here")
	if !strings.Contains(rec.Body.String(), `"directives":[]`) {
		t.Fatalf("body=%s, want empty list", rec.Body.String())
	}
}

func TestSQLiteSource(t *testing.T) {
	t.Parallel()

	db, err := store.Open(filepath.Join(t.TempDir(), "fabrics.db"))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	defer db.Close()
	if err := db.ReplaceFabrics(testRecords(), fabric.DefaultGroupSuffixes()); err != nil {
		t.Fatalf("ReplaceFabrics: %v", err)
	}

	rec := do(t, newTestRouter(sqliteCatalog{db: db}), http.MethodGet, "/api/groups/kurti", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "fabric_003") {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}
}

func TestJSONSource_MissingFileIsEmpty(t *testing.T) {
	t.Parallel()

	src := jsonCatalog{path: filepath.Join(t.TempDir(), "missing.json")}
	rec := do(t, newTestRouter(src), http.MethodGet, "/api/fabrics", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"count":0`) {
		t.Fatalf("status=%d body=%s", rec.Code, rec.Body.String())
	}
}
