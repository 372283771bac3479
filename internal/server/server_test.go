package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"cofounder/internal/channel"
	"cofounder/internal/config"
	"cofounder/internal/db"
	"cofounder/internal/engine"
	"cofounder/internal/migrate"
)

type testServer struct {
	URL    string
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		t.Fatalf("ensure workspace: %v", err)
	}
	cfg := config.Default("biz-1")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn, cfg)
	e.Channel = &channel.Memory{}
	if _, err := e.InitBusiness(context.Background(), "biz-1", "Test Plumbing", "plumbing", "tester"); err != nil {
		t.Fatalf("init business: %v", err)
	}
	handler, err := New(Config{
		Engine:   e,
		BasePath: "/v0",
		Auth:     AuthConfig{AllowLegacyActorHeader: true},
	})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

var actorHeader = map[string]string{"X-Actor-Id": "owner-1"}

type errorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func TestHealthNeedsNoAuth(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/health", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health status %d: %s", res.StatusCode, string(data))
	}
}

func TestMissingCredentialsRejected(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/businesses", nil, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d: %s", res.StatusCode, string(data))
	}
	var envelope errorEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatalf("unmarshal error body: %v", err)
	}
	if envelope.Error.Code != "unauthorized" {
		t.Fatalf("expected unauthorized code, got %q", envelope.Error.Code)
	}
}

func TestDecisionFeedbackFlow(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/businesses/biz-1/decisions", map[string]any{
		"type":     "customer_communication",
		"decision": "I'll take care of that for you right away",
		"context":  map[string]any{"customer": "Dana"},
	}, actorHeader)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("log decision status %d: %s", res.StatusCode, string(data))
	}
	var decision DecisionResponse
	if err := json.Unmarshal(data, &decision); err != nil {
		t.Fatalf("unmarshal decision: %v", err)
	}
	if decision.ID == "" {
		t.Fatal("expected generated decision id")
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/decisions/"+decision.ID, nil, actorHeader)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("get decision status %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/businesses/biz-1/decisions/"+decision.ID+"/feedback", map[string]any{
		"feedback": "approved",
	}, actorHeader)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("feedback status %d: %s", res.StatusCode, string(data))
	}
	var analysis FeedbackAnalysisResponse
	if err := json.Unmarshal(data, &analysis); err != nil {
		t.Fatalf("unmarshal analysis: %v", err)
	}
	if len(analysis.Updates) == 0 {
		t.Fatal("expected preference updates from approval")
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/businesses/biz-1/preferences", nil, actorHeader)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list preferences status %d: %s", res.StatusCode, string(data))
	}
	var prefs []PreferenceResponse
	if err := json.Unmarshal(data, &prefs); err != nil {
		t.Fatalf("unmarshal preferences: %v", err)
	}
	if len(prefs) == 0 {
		t.Fatal("expected learned preferences after approval")
	}
}

func TestActionLifecycleOverHTTP(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	sentAt := time.Now().UTC().Add(-40 * 24 * time.Hour).Format(time.RFC3339)
	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/businesses/biz-1/invoices", map[string]any{
		"contact":      "+15550001111",
		"contact_name": "Dana",
		"amount_cents": 60000,
		"status":       "sent",
		"sent_at":      sentAt,
	}, actorHeader)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create invoice status %d: %s", res.StatusCode, string(data))
	}
	var invoice InvoiceResponse
	if err := json.Unmarshal(data, &invoice); err != nil {
		t.Fatalf("unmarshal invoice: %v", err)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/businesses/biz-1/actions/payment-reminder", map[string]any{
		"invoice_id": invoice.ID,
	}, actorHeader)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("payment reminder status %d: %s", res.StatusCode, string(data))
	}
	var action ActionResponse
	if err := json.Unmarshal(data, &action); err != nil {
		t.Fatalf("unmarshal action: %v", err)
	}
	if action.Status != "pending" {
		t.Fatalf("expected pending action, got %q", action.Status)
	}
	if action.Priority != "urgent" {
		t.Fatalf("expected urgent priority for 40 days overdue at $600, got %q", action.Priority)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/actions/"+action.ID+"/approve", nil, actorHeader)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("approve status %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/actions/"+action.ID+"/execute", nil, actorHeader)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("execute status %d: %s", res.StatusCode, string(data))
	}
	var executed ActionResponse
	if err := json.Unmarshal(data, &executed); err != nil {
		t.Fatalf("unmarshal executed action: %v", err)
	}
	if executed.Status != "executed" {
		t.Fatalf("expected executed status, got %q", executed.Status)
	}
	if executed.ExecutionResult == nil || !executed.ExecutionResult.Success {
		t.Fatalf("expected successful execution result, got %+v", executed.ExecutionResult)
	}
}

func TestErrorEnvelopeCodes(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v0/decisions/missing", nil, actorHeader)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", res.StatusCode, string(data))
	}
	var envelope errorEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatalf("unmarshal error body: %v", err)
	}
	if envelope.Error.Code != "not_found" {
		t.Fatalf("expected not_found code, got %q", envelope.Error.Code)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/businesses/biz-1/actions/alert", map[string]any{
		"message": "Revenue dipped 20% this week",
	}, actorHeader)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("alert status %d: %s", res.StatusCode, string(data))
	}
	var action ActionResponse
	if err := json.Unmarshal(data, &action); err != nil {
		t.Fatalf("unmarshal action: %v", err)
	}

	// Executing a pending action violates the lifecycle.
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/actions/"+action.ID+"/execute", nil, actorHeader)
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", res.StatusCode, string(data))
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatalf("unmarshal error body: %v", err)
	}
	if envelope.Error.Code != "invalid_transition" {
		t.Fatalf("expected invalid_transition code, got %q", envelope.Error.Code)
	}
}

func TestAlignmentCheckOverHTTP(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/businesses/biz-1/alignment-check", map[string]any{
		"text": "We could offer a discount to close the deal",
		"type": "pricing",
	}, actorHeader)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("alignment status %d: %s", res.StatusCode, string(data))
	}
	var report AlignmentResponse
	if err := json.Unmarshal(data, &report); err != nil {
		t.Fatalf("unmarshal report: %v", err)
	}
	if report.AlignmentScore != 0.5 {
		t.Fatalf("expected neutral score without preferences, got %v", report.AlignmentScore)
	}
}
