package handler_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stevemurr/flatjson/document"
	"github.com/stevemurr/flatjson/handler"
	"github.com/stevemurr/flatjson/store"
)

const profile = `{
  "user_id": 101,
  "username": "alpha_user",
  "profile": {"email": "alpha@example.com", "tags": ["premium", "new_member"]},
  "settings": {"theme": "dark", "notifications": true}
}`

func setup(t *testing.T) (*httptest.Server, *store.Manager) {
	t.Helper()
	m := store.NewManager()
	h := handler.New(m, store.NewMemoryStore())
	ts := httptest.NewServer(h)
	t.Cleanup(ts.Close)
	return ts, m
}

func do(t *testing.T, method, url, body string) *http.Response {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, url, r)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func expectStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		b, _ := io.ReadAll(resp.Body)
		t.Fatalf("expected %d, got %d: %s", want, resp.StatusCode, b)
	}
}

func mustValue(t *testing.T, raw string) document.Value {
	t.Helper()
	v, err := document.ParseJSON([]byte(raw))
	if err != nil {
		t.Fatal(err)
	}
	return v
}

func decodeJSON(t *testing.T, r io.Reader) map[string]any {
	t.Helper()
	var v map[string]any
	if err := json.NewDecoder(r).Decode(&v); err != nil {
		t.Fatal(err)
	}
	return v
}

func decodeJSONArray(t *testing.T, r io.Reader) []any {
	t.Helper()
	var v []any
	if err := json.NewDecoder(r).Decode(&v); err != nil {
		t.Fatal(err)
	}
	return v
}

func resultKeys(t *testing.T, r io.Reader) []string {
	t.Helper()
	var keys []string
	for _, item := range decodeJSONArray(t, r) {
		keys = append(keys, item.(map[string]any)["key"].(string))
	}
	return keys
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestRootAndHealth(t *testing.T) {
	ts, _ := setup(t)

	resp := do(t, "GET", ts.URL+"/", "")
	expectStatus(t, resp, 200)
	body := decodeJSON(t, resp.Body)
	if body["status"] != "ok" {
		t.Fatalf("expected status=ok, got %v", body["status"])
	}

	resp = do(t, "GET", ts.URL+"/health", "")
	expectStatus(t, resp, 200)

	resp = do(t, "GET", ts.URL+"/nope", "")
	expectStatus(t, resp, 404)
}

func TestEntriesCRUD(t *testing.T) {
	ts, m := setup(t)

	// GET /entries - empty
	resp := do(t, "GET", ts.URL+"/entries", "")
	expectStatus(t, resp, 200)
	if got := decodeJSON(t, resp.Body); len(got) != 0 {
		t.Fatalf("expected no entries, got %v", got)
	}

	// PUT /entries/user.name
	resp = do(t, "PUT", ts.URL+"/entries/user.name", `"alpha_user"`)
	expectStatus(t, resp, 200)
	if v, ok := m.Get("user.name"); !ok || !v.Equal(document.String("alpha_user")) {
		t.Fatalf("expected user.name=alpha_user, got %v", v)
	}

	// GET /entries/user.name
	resp = do(t, "GET", ts.URL+"/entries/user.name", "")
	expectStatus(t, resp, 200)
	got := decodeJSON(t, resp.Body)
	if got["key"] != "user.name" || got["value"] != "alpha_user" {
		t.Fatalf("unexpected entry %v", got)
	}

	// Falsy values are still present
	resp = do(t, "PUT", ts.URL+"/entries/active", `false`)
	expectStatus(t, resp, 200)
	resp = do(t, "GET", ts.URL+"/entries/active", "")
	expectStatus(t, resp, 200)
	if got := decodeJSON(t, resp.Body); got["value"] != false {
		t.Fatalf("expected false, got %v", got["value"])
	}

	// Missing without create
	resp = do(t, "GET", ts.URL+"/entries/missing", "")
	expectStatus(t, resp, 404)

	// Missing with create
	resp = do(t, "GET", ts.URL+"/entries/missing?create=true", "")
	expectStatus(t, resp, 200)
	if got := decodeJSON(t, resp.Body); got["value"] != nil {
		t.Fatalf("expected null, got %v", got["value"])
	}
	if !m.HasKey("missing") {
		t.Fatal("expected key to be created")
	}

	// Invalid body
	resp = do(t, "PUT", ts.URL+"/entries/bad", `{"unterminated"`)
	expectStatus(t, resp, 400)

	// DELETE
	resp = do(t, "DELETE", ts.URL+"/entries/user.name", "")
	expectStatus(t, resp, 200)
	resp = do(t, "DELETE", ts.URL+"/entries/user.name", "")
	expectStatus(t, resp, 404)
}

func TestDocumentRoundTrip(t *testing.T) {
	ts, m := setup(t)

	resp := do(t, "PUT", ts.URL+"/document", profile)
	expectStatus(t, resp, 200)
	if got := decodeJSON(t, resp.Body); got["entries"] != float64(6) {
		t.Fatalf("expected 6 entries, got %v", got["entries"])
	}
	if !m.HasKey("profile.tags") {
		t.Fatal("expected profile.tags to be flattened")
	}

	resp = do(t, "PATCH", ts.URL+"/document", `{"settings":{"theme":"light"},"v1.2":true}`)
	expectStatus(t, resp, 200)
	if v, _ := m.Get("settings.theme"); !v.Equal(document.String("light")) {
		t.Fatalf("expected theme=light, got %v", v)
	}
	if !m.HasKey(`v1\.2`) {
		t.Fatal("expected escaped key")
	}

	resp = do(t, "GET", ts.URL+"/document", "")
	expectStatus(t, resp, 200)
	doc := decodeJSON(t, resp.Body)
	settings := doc["settings"].(map[string]any)
	if settings["theme"] != "light" || settings["notifications"] != true {
		t.Fatalf("unexpected settings %v", settings)
	}
	if doc["v1.2"] != true {
		t.Fatalf("expected v1.2 key to be unescaped, got %v", doc)
	}

	resp = do(t, "PUT", ts.URL+"/document", `[1,2]`)
	expectStatus(t, resp, 400)

	resp = do(t, "PUT", ts.URL+"/document", `{"a":1}}`)
	expectStatus(t, resp, 400)
	if m.HasKey("a") {
		t.Fatal("rejected body must not reach the store")
	}
}

func TestSearch(t *testing.T) {
	ts, _ := setup(t)
	expectStatus(t, do(t, "PUT", ts.URL+"/document", profile), 200)

	tests := []struct {
		name string
		body string
		want []string
	}{
		{"exact key", `{"target":"keys","criteria":"username"}`, []string{"username"}},
		{"like key", `{"target":"keys","criteria":"SETTINGS","like":true}`, []string{"settings.theme", "settings.notifications"}},
		{"regex key", `{"target":"keys","criteria":"^profile\\.","regex":true}`, []string{"profile.email", "profile.tags"}},
		{"exact value", `{"target":"values","criteria":101}`, []string{"user_id"}},
		{"array element", `{"target":"values","criteria":"premium"}`, []string{"profile.tags"}},
		{"set of values", `{"target":"values","criteria":["dark",true]}`, []string{"settings.theme", "settings.notifications"}},
		{"key or value", `{"target":"keyvalue","criteria":"example","like":true}`, []string{"profile.email"}},
		{"default target", `{"criteria":"username"}`, []string{"username"}},
		{"no match", `{"target":"values","criteria":"nobody"}`, nil},
		{"invalid regex", `{"target":"keys","criteria":"(","regex":true}`, nil},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			resp := do(t, "POST", ts.URL+"/search", tc.body)
			expectStatus(t, resp, 200)
			got := resultKeys(t, resp.Body)
			if !equalStrings(got, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
		})
	}

	resp := do(t, "POST", ts.URL+"/search", `{"target":"everything","criteria":"x"}`)
	expectStatus(t, resp, 400)
}

func TestFlattenUnflatten(t *testing.T) {
	ts, m := setup(t)

	resp := do(t, "POST", ts.URL+"/flatten", `{"a":{"b":1,"c.d":[1,2]}}`)
	expectStatus(t, resp, 200)
	got := decodeJSON(t, resp.Body)
	if got["a.b"] != float64(1) {
		t.Fatalf("expected a.b=1, got %v", got)
	}
	if _, ok := got[`a.c\.d`]; !ok {
		t.Fatalf("expected escaped key, got %v", got)
	}
	if m.Len() != 0 {
		t.Fatal("flatten must not touch the store")
	}

	resp = do(t, "POST", ts.URL+"/unflatten", `{"a.b":1,"a\\.c":2}`)
	expectStatus(t, resp, 200)
	doc := decodeJSON(t, resp.Body)
	if doc["a.c"] != float64(2) || doc["a"].(map[string]any)["b"] != float64(1) {
		t.Fatalf("unexpected document %v", doc)
	}

	expectStatus(t, do(t, "POST", ts.URL+"/flatten", `"scalar"`), 400)
	expectStatus(t, do(t, "POST", ts.URL+"/unflatten", `null`), 400)
}

func TestLock(t *testing.T) {
	ts, m := setup(t)

	resp := do(t, "GET", ts.URL+"/lock", "")
	expectStatus(t, resp, 200)
	if decodeJSON(t, resp.Body)["locked"] != false {
		t.Fatal("expected unlocked")
	}

	expectStatus(t, do(t, "PUT", ts.URL+"/lock", ""), 200)
	if !m.Locked() {
		t.Fatal("expected locked")
	}

	// Writes still go through while locked
	expectStatus(t, do(t, "PUT", ts.URL+"/entries/k", `1`), 200)

	expectStatus(t, do(t, "DELETE", ts.URL+"/lock", ""), 200)
	if m.Locked() {
		t.Fatal("expected unlocked")
	}
}

func TestSnapshots(t *testing.T) {
	ts, m := setup(t)
	expectStatus(t, do(t, "PUT", ts.URL+"/document", profile), 200)

	resp := do(t, "GET", ts.URL+"/snapshots", "")
	expectStatus(t, resp, 200)
	if got := decodeJSONArray(t, resp.Body); len(got) != 0 {
		t.Fatalf("expected no snapshots, got %v", got)
	}

	expectStatus(t, do(t, "PUT", ts.URL+"/snapshots/backup", ""), 200)

	resp = do(t, "GET", ts.URL+"/snapshots", "")
	if got := decodeJSONArray(t, resp.Body); len(got) != 1 || got[0] != "backup" {
		t.Fatalf("expected [backup], got %v", got)
	}

	if err := m.Init(mustValue(t, `{"other":1}`)); err != nil {
		t.Fatal(err)
	}
	resp = do(t, "POST", ts.URL+"/snapshots/backup/restore", "")
	expectStatus(t, resp, 200)
	if !m.HasKey("username") || m.HasKey("other") {
		t.Fatalf("expected restored profile, got %v", m.Dump())
	}

	expectStatus(t, do(t, "POST", ts.URL+"/snapshots/missing/restore", ""), 404)
	expectStatus(t, do(t, "PUT", ts.URL+"/snapshots/bad%20name", ""), 400)

	expectStatus(t, do(t, "DELETE", ts.URL+"/snapshots/backup", ""), 200)
	expectStatus(t, do(t, "DELETE", ts.URL+"/snapshots/backup", ""), 404)
}

func TestMetrics(t *testing.T) {
	ts, _ := setup(t)
	expectStatus(t, do(t, "PUT", ts.URL+"/document", profile), 200)
	expectStatus(t, do(t, "POST", ts.URL+"/search", `{"target":"keys","criteria":"user","like":true}`), 200)

	resp := do(t, "GET", ts.URL+"/metrics", "")
	expectStatus(t, resp, 200)
	b, _ := io.ReadAll(resp.Body)
	for _, want := range []string{
		`flatjson_entries 6`,
		`flatjson_searches_total{mode="like",target="keys"} 1`,
		`flatjson_http_requests_total{code="200",method="PUT"} 1`,
	} {
		if !bytes.Contains(b, []byte(want)) {
			t.Fatalf("expected %q in metrics output:\n%s", want, b)
		}
	}
}
