package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pbaille/qabot/internal/domain"
	"github.com/pbaille/qabot/internal/observability"
	"github.com/pbaille/qabot/internal/provider"
	"github.com/pbaille/qabot/internal/qa"
	"github.com/pbaille/qabot/internal/resolver"
	"github.com/pbaille/qabot/internal/session"
	"github.com/pbaille/qabot/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeResolver struct {
	res resolver.Resolution
	err error
}

func (f *fakeResolver) Resolve(ctx context.Context, question string, manual []domain.ManualEntry) (resolver.Resolution, error) {
	return f.res, f.err
}

type testClient struct {
	t      *testing.T
	h      http.Handler
	cookie *http.Cookie
}

func (tc *testClient) do(method, path string, body any) *httptest.ResponseRecorder {
	tc.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(tc.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if tc.cookie != nil {
		req.AddCookie(tc.cookie)
	}

	rec := httptest.NewRecorder()
	tc.h.ServeHTTP(rec, req)
	for _, c := range rec.Result().Cookies() {
		if c.Name == SessionCookie {
			tc.cookie = c
		}
	}
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v))
}

func newTestServer(t *testing.T, password string, r qa.Resolver) (*testClient, store.Tables) {
	t.Helper()
	dir := t.TempDir()
	tables := store.NewCSV(filepath.Join(dir, "manual.csv"), "", filepath.Join(dir, "questions.csv"), "en")
	require.NoError(t, tables.SaveManual(context.Background(), []domain.ManualEntry{
		{Question: "reset password", Answer: "Go to settings > reset"},
	}))

	metrics := observability.NewMetrics()
	srv := New(Options{
		Registry:      session.NewRegistry(tables, nil, time.Hour, nil),
		QA:            qa.New(r, nil, metrics, nil),
		Tables:        tables,
		AdminPassword: password,
		Metrics:       metrics,
	})
	return &testClient{t: t, h: srv.Handler()}, tables
}

func TestHealth(t *testing.T) {
	tc, _ := newTestServer(t, "", &fakeResolver{})
	rec := tc.do("GET", "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestSession_CookieIsReused(t *testing.T) {
	tc, _ := newTestServer(t, "", &fakeResolver{})

	var first, second SessionResponse
	decode(t, tc.do("GET", "/api/session", nil), &first)
	require.NotNil(t, tc.cookie)
	decode(t, tc.do("GET", "/api/session", nil), &second)

	assert.Equal(t, first.ID, second.ID)
	assert.Empty(t, second.History)
}

func TestAsk_EmptyQuestionIs422(t *testing.T) {
	tc, _ := newTestServer(t, "", &fakeResolver{})
	rec := tc.do("POST", "/api/ask", AskRequest{Question: "  "})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "warning")

	var sess SessionResponse
	decode(t, tc.do("GET", "/api/session", nil), &sess)
	assert.Empty(t, sess.History)
}

func TestAsk_ProviderErrorIs502(t *testing.T) {
	fr := &fakeResolver{err: &provider.Error{Backend: "openai", Op: "chat completion", Err: errors.New("quota")}}
	tc, _ := newTestServer(t, "", fr)

	rec := tc.do("POST", "/api/ask", AskRequest{Question: "what?"})
	assert.Equal(t, http.StatusBadGateway, rec.Code)

	var sess SessionResponse
	decode(t, tc.do("GET", "/api/session", nil), &sess)
	assert.Empty(t, sess.History)
}

func TestAskThenFeedback(t *testing.T) {
	fr := &fakeResolver{res: resolver.Resolution{Answer: "R", Source: domain.SourceExternal, Index: -1}}
	tc, tables := newTestServer(t, "", fr)

	rec := tc.do("POST", "/api/ask", AskRequest{Question: "what?"})
	require.Equal(t, http.StatusOK, rec.Code)
	var ans AskResponse
	decode(t, rec, &ans)
	assert.Equal(t, "R", ans.Entry.Answer)
	assert.Equal(t, domain.SourceExternal, ans.Entry.Source)

	path := "/api/history/" + ans.Entry.ID + "/feedback"
	rec = tc.do("POST", path, FeedbackRequest{Value: "yes"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"changed":true`)

	rec = tc.do("POST", path, FeedbackRequest{Value: "no"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"changed":false`)

	rows, err := tables.LoadLedger(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, domain.FeedbackYes, rows[0].Feedback)

	assert.Equal(t, http.StatusNotFound, tc.do("POST", "/api/history/nope/feedback", FeedbackRequest{Value: "yes"}).Code)
	assert.Equal(t, http.StatusBadRequest, tc.do("POST", path, FeedbackRequest{Value: "meh"}).Code)

	require.Equal(t, http.StatusOK, tc.do("DELETE", "/api/history/"+ans.Entry.ID, nil).Code)
	assert.Equal(t, http.StatusNotFound, tc.do("DELETE", "/api/history/"+ans.Entry.ID, nil).Code)
	rows, err = tables.LoadLedger(context.Background())
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestAdmin_DisabledWithoutPassword(t *testing.T) {
	tc, _ := newTestServer(t, "", &fakeResolver{})
	assert.Equal(t, http.StatusServiceUnavailable, tc.do("POST", "/api/admin/login", LoginRequest{Password: "x"}).Code)
	assert.Equal(t, http.StatusServiceUnavailable, tc.do("GET", "/api/admin/manual", nil).Code)
	assert.Equal(t, http.StatusOK, tc.do("GET", "/api/session", nil).Code)
}

func TestAdmin_LoginGate(t *testing.T) {
	tc, _ := newTestServer(t, "hunter2", &fakeResolver{})

	assert.Equal(t, http.StatusUnauthorized, tc.do("GET", "/api/admin/manual", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, tc.do("POST", "/api/admin/login", LoginRequest{Password: "wrong"}).Code)
	assert.Equal(t, http.StatusOK, tc.do("POST", "/api/admin/login", LoginRequest{Password: "hunter2"}).Code)
	assert.Equal(t, http.StatusOK, tc.do("GET", "/api/admin/manual", nil).Code)

	assert.Equal(t, http.StatusOK, tc.do("POST", "/api/admin/logout", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, tc.do("GET", "/api/admin/manual", nil).Code)
}

func TestAdmin_ManualCRUD(t *testing.T) {
	tc, tables := newTestServer(t, "pw", &fakeResolver{})
	require.Equal(t, http.StatusOK, tc.do("POST", "/api/admin/login", LoginRequest{Password: "pw"}).Code)

	rec := tc.do("POST", "/api/admin/manual", ManualEntryRequest{Question: "hours", Answer: "9 to 5"})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = tc.do("PUT", "/api/admin/manual/1", ManualEntryRequest{Question: "opening hours", Answer: "9 to 6"})
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, http.StatusNotFound, tc.do("PUT", "/api/admin/manual/9", ManualEntryRequest{Question: "q", Answer: "a"}).Code)
	assert.Equal(t, http.StatusBadRequest, tc.do("DELETE", "/api/admin/manual/abc", nil).Code)
	assert.Equal(t, http.StatusBadRequest, tc.do("POST", "/api/admin/manual", ManualEntryRequest{Question: "q"}).Code)

	require.Equal(t, http.StatusOK, tc.do("DELETE", "/api/admin/manual/0", nil).Code)

	var list struct {
		Entries []IndexedEntry `json:"entries"`
	}
	decode(t, tc.do("GET", "/api/admin/manual", nil), &list)
	require.Len(t, list.Entries, 1)
	assert.Equal(t, 0, list.Entries[0].Index)
	assert.Equal(t, "opening hours", list.Entries[0].Question)

	onDisk, err := tables.LoadManual(context.Background())
	require.NoError(t, err)
	assert.Len(t, onDisk, 1)
}

func TestAdmin_MalformedManualIsConflict(t *testing.T) {
	tc, tables := newTestServer(t, "pw", &fakeResolver{})
	path := tables.Path(store.TableManual)
	original := "question,answer,priority\nq,a,high\n"
	require.NoError(t, os.WriteFile(path, []byte(original), 0o644))
	require.Equal(t, http.StatusOK, tc.do("POST", "/api/admin/login", LoginRequest{Password: "pw"}).Code)

	assert.Equal(t, http.StatusConflict, tc.do("POST", "/api/admin/manual", ManualEntryRequest{Question: "q", Answer: "a"}).Code)
	assert.Equal(t, http.StatusConflict, tc.do("DELETE", "/api/admin/manual/0", nil).Code)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, original, string(data))
}

func TestAdmin_LedgerAndDownload(t *testing.T) {
	fr := &fakeResolver{res: resolver.Resolution{Answer: "R", Source: domain.SourceExternal}}
	tc, _ := newTestServer(t, "pw", fr)
	require.Equal(t, http.StatusOK, tc.do("POST", "/api/admin/login", LoginRequest{Password: "pw"}).Code)

	rec := tc.do("GET", "/api/admin/ledger/download", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	require.Equal(t, http.StatusOK, tc.do("POST", "/api/ask", AskRequest{Question: "q"}).Code)

	var ledgerResp struct {
		Rows []domain.LedgerRow `json:"rows"`
	}
	decode(t, tc.do("GET", "/api/admin/ledger", nil), &ledgerResp)
	require.Len(t, ledgerResp.Rows, 1)

	decode(t, tc.do("GET", "/api/admin/ledger?feedback=yes", nil), &ledgerResp)
	assert.Empty(t, ledgerResp.Rows)

	rec = tc.do("GET", "/api/admin/ledger/download", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "questions.csv")
	assert.Contains(t, rec.Body.String(), "id,question,answer,source,feedback,created_at")

	rec = tc.do("POST", "/api/admin/save", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"written":0`)
}

func TestMetricsEndpoint(t *testing.T) {
	fr := &fakeResolver{res: resolver.Resolution{Answer: "R", Source: domain.SourceExternal}}
	tc, _ := newTestServer(t, "", fr)
	ans := tc.do("POST", "/api/ask", AskRequest{Question: "q"})
	require.Equal(t, http.StatusOK, ans.Code)

	rec := tc.do("GET", "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "qabot_ledger_rows_written_total 1")
}
