package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/kalambet/querybot/internal/dbtool"
	"github.com/kalambet/querybot/internal/metrics"
	"github.com/kalambet/querybot/internal/normalize"
	"github.com/kalambet/querybot/internal/queryservice"
	"github.com/kalambet/querybot/internal/storage"
)

func setupQueryService(t *testing.T) (http.Handler, *storage.Store, *metrics.Metrics) {
	t.Helper()
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	m := metrics.New()
	h := NewQueryServiceHandler(Deps{
		Store:    store,
		Answerer: dbtool.New(store, nil),
		Metrics:  m,
	})
	return h, store, m
}

func askURL(question string, userID string) string {
	q := url.Values{}
	q.Set("question", question)
	q.Set("userId", userID)
	return "/api/queries/ask?" + q.Encode()
}

func serve(h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(method, target, reader))
	return rr
}

func TestHealth(t *testing.T) {
	h, _, _ := setupQueryService(t)

	rr := serve(h, http.MethodGet, "/health", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusOK)
	}
	var body map[string]string
	json.NewDecoder(rr.Body).Decode(&body)
	if body["status"] != "ok" {
		t.Errorf("body = %v, want status=ok", body)
	}
}

func TestAsk_UnknownUser(t *testing.T) {
	h, _, _ := setupQueryService(t)

	rr := serve(h, http.MethodPost, askURL("How many users are there?", "99"), "")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusBadRequest)
	}
	if got := strings.TrimSpace(rr.Body.String()); got != `{"error":"User not found"}` {
		t.Errorf("body = %s", got)
	}
}

func TestAsk_BadParams(t *testing.T) {
	h, _, _ := setupQueryService(t)

	tests := []struct {
		name   string
		target string
		want   string
	}{
		{"missing user", "/api/queries/ask?question=hi", "userId is required"},
		{"bad user", askURL("hi", "abc"), "invalid userId"},
		{"negative user", askURL("hi", "-1"), "invalid userId"},
		{"blank question", askURL("   ", "1"), "question is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := serve(h, http.MethodPost, tt.target, "")
			if rr.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rr.Code)
			}
			if !strings.Contains(rr.Body.String(), tt.want) {
				t.Errorf("body = %s, want it to contain %q", rr.Body.String(), tt.want)
			}
		})
	}
}

func TestAsk_AnswersAndStores(t *testing.T) {
	h, store, _ := setupQueryService(t)

	rr := serve(h, http.MethodPost, askURL("Show me all reports for User 2.", "4"), "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}

	var resp struct {
		ID           int64           `json:"id"`
		QueryText    string          `json:"queryText"`
		ResponseText json.RawMessage `json:"responseText"`
		CreatedAt    string          `json:"createdAt"`
		User         storage.User    `json:"user"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.ID == 0 || resp.CreatedAt == "" {
		t.Errorf("response missing id or createdAt: %+v", resp)
	}
	if resp.User.ID != 4 || resp.User.Username != "dave" {
		t.Errorf("user = %+v", resp.User)
	}
	if !strings.HasPrefix(string(resp.ResponseText), `[{"report_name":"Q1 revenue"`) {
		t.Errorf("responseText = %s", resp.ResponseText)
	}

	stored, err := store.ListQueries(4)
	if err != nil {
		t.Fatalf("ListQueries: %v", err)
	}
	if len(stored) != 1 || stored[0].QueryText != "Show me all reports for User 2." {
		t.Fatalf("stored = %+v", stored)
	}
	if stored[0].ResponseText != string(resp.ResponseText) {
		t.Errorf("stored answer %s differs from response %s", stored[0].ResponseText, resp.ResponseText)
	}
}

func TestAsk_UnsupportedQuestion(t *testing.T) {
	h, _, _ := setupQueryService(t)

	rr := serve(h, http.MethodPost, askURL("Write me a poem", "1"), "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var resp struct {
		ResponseText string `json:"responseText"`
	}
	json.NewDecoder(rr.Body).Decode(&resp)
	if resp.ResponseText != dbtool.Unsupported {
		t.Errorf("responseText = %q", resp.ResponseText)
	}
}

type failingAnswerer struct{}

func (failingAnswerer) Answer(context.Context, string, int64) (dbtool.Answer, error) {
	return dbtool.Answer{}, errors.New("database is locked")
}

func TestAsk_AnswererError(t *testing.T) {
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	h := NewQueryServiceHandler(Deps{Store: store, Answerer: failingAnswerer{}})

	rr := serve(h, http.MethodPost, askURL("How many users are there?", "1"), "")
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "database is locked") {
		t.Errorf("body = %s", rr.Body.String())
	}
}

func TestHistory(t *testing.T) {
	h, _, _ := setupQueryService(t)

	rr := serve(h, http.MethodGet, "/api/queries/history?userId=1", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var entries []HistoryEntry
	if err := json.NewDecoder(rr.Body).Decode(&entries); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	var texts []string
	for _, e := range entries {
		texts = append(texts, e.QueryText)
	}
	want := []string{"How many users are there?", "List all users in the database."}
	if diff := cmp.Diff(want, texts); diff != "" {
		t.Errorf("history mismatch (-want +got):\n%s", diff)
	}
	if string(entries[0].ResponseText) != `[{"count":4}]` {
		t.Errorf("responseText = %s", entries[0].ResponseText)
	}

	if rr := serve(h, http.MethodGet, "/api/queries/history?userId=42", ""); rr.Code != http.StatusBadRequest {
		t.Errorf("unknown user status = %d, want 400", rr.Code)
	}
}

func TestStoredAnswer(t *testing.T) {
	if got := string(storedAnswer(`{"a":1}`)); got != `{"a":1}` {
		t.Errorf("storedAnswer(json) = %s", got)
	}
	if got := string(storedAnswer("No results found.")); got != `"No results found."` {
		t.Errorf("storedAnswer(text) = %s", got)
	}
}

// The reference service and the client agree on the wire format.
func TestAsk_ThroughClient(t *testing.T) {
	h, _, _ := setupQueryService(t)
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	c := queryservice.NewClient(srv.URL, 0)
	v, err := c.Ask(context.Background(), "How many users are there?", 2)
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	inner, ok := v.Record().Get("responseText")
	if !ok {
		t.Fatalf("no responseText in %v", v)
	}
	if got := normalize.Normalize(inner); got != "4" {
		t.Errorf("Normalize(responseText) = %q, want 4", got)
	}

	history, err := c.History(context.Background(), 2)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history) != 1 || history[0].QueryText != "How many users are there?" {
		t.Fatalf("history = %+v", history)
	}
	if got := normalize.Normalize(history[0].Answer()); got != "4" {
		t.Errorf("history answer = %q", got)
	}

	_, err = c.Ask(context.Background(), "How many users are there?", 77)
	kind := queryservice.Classify(err)
	if kind.Kind != queryservice.KindHTTPError || kind.Status != http.StatusBadRequest {
		t.Errorf("Classify = %+v, want HTTP 400", kind)
	}
}

func TestUsers(t *testing.T) {
	h, _, _ := setupQueryService(t)

	rr := serve(h, http.MethodPost, "/api/users", `{"username":"erin","email":"erin@example.com"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body = %s", rr.Code, rr.Body.String())
	}
	var created storage.User
	json.NewDecoder(rr.Body).Decode(&created)
	if created.ID != 5 || created.Role != "user" {
		t.Errorf("created = %+v", created)
	}

	if rr := serve(h, http.MethodPost, "/api/users", `{"username":"erin"}`); rr.Code != http.StatusConflict {
		t.Errorf("duplicate status = %d, want 409", rr.Code)
	}
	if rr := serve(h, http.MethodPost, "/api/users", `{"email":"x@example.com"}`); rr.Code != http.StatusBadRequest {
		t.Errorf("missing username status = %d, want 400", rr.Code)
	}
	if rr := serve(h, http.MethodPost, "/api/users", `not json`); rr.Code != http.StatusBadRequest {
		t.Errorf("bad body status = %d, want 400", rr.Code)
	}

	rr = serve(h, http.MethodGet, "/api/users", "")
	var users []storage.User
	json.NewDecoder(rr.Body).Decode(&users)
	if len(users) != 5 || users[4].Username != "erin" {
		t.Errorf("users = %+v", users)
	}
}

func TestListReports(t *testing.T) {
	h, _, _ := setupQueryService(t)

	rr := serve(h, http.MethodGet, "/api/users/1/reports", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var reports []storage.Report
	json.NewDecoder(rr.Body).Decode(&reports)
	if len(reports) != 1 || reports[0].ReportName != "Onboarding audit" {
		t.Errorf("reports = %+v", reports)
	}

	if rr := serve(h, http.MethodGet, "/api/users/9/reports", ""); rr.Code != http.StatusNotFound {
		t.Errorf("unknown user status = %d, want 404", rr.Code)
	}
	if rr := serve(h, http.MethodGet, "/api/users/x/reports", ""); rr.Code != http.StatusBadRequest {
		t.Errorf("bad id status = %d, want 400", rr.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	h, _, _ := setupQueryService(t)

	serve(h, http.MethodPost, askURL("How many users are there?", "1"), "")
	serve(h, http.MethodGet, "/api/users/1/reports", "")

	body := serve(h, http.MethodGet, "/metrics", "").Body.String()
	for _, want := range []string{
		`querybot_backend_answers_total{rule="count-users"} 1`,
		`querybot_http_requests_total{code="200",route="/api/queries/ask"} 1`,
		`querybot_http_requests_total{code="200",route="/api/users/{id}/reports"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics missing %q", want)
		}
	}
}
