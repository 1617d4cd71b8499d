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

	"github.com/golang-jwt/jwt/v5"

	"controlline/internal/chain"
	"controlline/internal/config"
	"controlline/internal/db"
	"controlline/internal/engine"
	"controlline/internal/migrate"
)

type testServer struct {
	URL    string
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T, auth AuthConfig) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	cfg := config.Default()
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn, cfg)
	e.Now = func() time.Time { return time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC) }
	reg := chain.NewRegistry(cfg)
	handler, err := New(Config{
		Engine:   e,
		Executor: chain.NewExecutor(e, reg),
		Registry: reg,
		AppCfg:   cfg,
		BasePath: "/v0",
		Auth:     auth,
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

func TestHealth(t *testing.T) {
	srv, cleanup := newTestServer(t, AuthConfig{})
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/health", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health: %d %s", res.StatusCode, string(data))
	}
}

func TestChainRunIdempotent(t *testing.T) {
	srv, cleanup := newTestServer(t, AuthConfig{})
	defer cleanup()
	client := srv.Client()

	payload := map[string]any{"client_id": "ip_usn_dr", "period": "2025-06"}
	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/chains/reglament.ip_usn_dr.monthly/run", payload, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("run chain: %d %s", res.StatusCode, string(data))
	}
	var first RunBody
	if err := json.Unmarshal(data, &first); err != nil {
		t.Fatalf("unmarshal run: %v", err)
	}
	if first.Run.Status != "completed" || first.Run.EventsAppended == 0 {
		t.Fatalf("first run: %+v", first.Run)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/chains/reglament.ip_usn_dr.monthly/run", payload, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("second run: %d %s", res.StatusCode, string(data))
	}
	var second RunBody
	_ = json.Unmarshal(data, &second)
	if second.Run.Status != "skipped" || second.Run.ID != "" {
		t.Fatalf("second run: %+v", second.Run)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/runs?chain_id=reglament.ip_usn_dr.monthly", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list runs: %d %s", res.StatusCode, string(data))
	}
	var runs RunListBody
	_ = json.Unmarshal(data, &runs)
	if len(runs.Runs) != 1 || runs.Runs[0].Status != "completed" {
		t.Fatalf("history: %+v", runs.Runs)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/runs/"+first.Run.ID, nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("get run: %d %s", res.StatusCode, string(data))
	}
}

func TestChainRunRejectsBadPeriod(t *testing.T) {
	srv, cleanup := newTestServer(t, AuthConfig{})
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/chains/reglament.ip_usn_dr.monthly/run", map[string]any{
		"client_id": "ip_usn_dr", "period": "2025-13",
	}, nil)
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/runs", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list runs: %d", res.StatusCode)
	}
	var runs RunListBody
	_ = json.Unmarshal(data, &runs)
	if len(runs.Runs) != 0 {
		t.Fatalf("bad period left run history: %+v", runs.Runs)
	}
}

func TestChainRunUnknownChain(t *testing.T) {
	srv, cleanup := newTestServer(t, AuthConfig{})
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/chains/nope/run", map[string]any{
		"client_id": "ip_usn_dr", "period": "2025-06",
	}, nil)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d %s", res.StatusCode, string(data))
	}
}

func TestEventInstanceFlow(t *testing.T) {
	srv, cleanup := newTestServer(t, AuthConfig{})
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/events/generate", map[string]any{
		"client_id": "ip_usn_dr", "period": "2025-06",
	}, map[string]string{"X-Actor-Id": "tester"})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("generate: %d %s", res.StatusCode, string(data))
	}
	var gen GenerateEventsBody
	if err := json.Unmarshal(data, &gen); err != nil {
		t.Fatalf("unmarshal generate: %v", err)
	}
	if gen.Appended == 0 || len(gen.Events) != gen.Appended {
		t.Fatalf("generate body: appended=%d events=%d", gen.Appended, len(gen.Events))
	}

	eventID := gen.Events[0].ID
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/events/"+eventID+"/dispatch", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("dispatch: %d %s", res.StatusCode, string(data))
	}
	var dispatched InstanceBody
	_ = json.Unmarshal(data, &dispatched)
	if dispatched.Instance.ID == "" {
		t.Fatalf("dispatch body: %s", string(data))
	}

	// handled events cannot be dispatched twice
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/events/"+eventID+"/dispatch", nil, nil)
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("re-dispatch: %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/instances/"+dispatched.Instance.ID+"/steps", map[string]any{
		"title": "Call the client",
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("add step: %d %s", res.StatusCode, string(data))
	}
	var added StepBody
	_ = json.Unmarshal(data, &added)

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/instances/"+dispatched.Instance.ID+"/steps/"+added.Step.ID+"/complete", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("complete step: %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/instances?client_id=ip_usn_dr", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list instances: %d", res.StatusCode)
	}
	var insts InstanceListBody
	_ = json.Unmarshal(data, &insts)
	if len(insts.Instances) != 1 || insts.Instances[0].ComputedStatus == "" {
		t.Fatalf("instances: %s", string(data))
	}
}

func TestTasksDeriveAPI(t *testing.T) {
	srv, cleanup := newTestServer(t, AuthConfig{})
	defer cleanup()
	client := srv.Client()

	if res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/events/generate", map[string]any{
		"client_id": "ip_usn_dr", "period": "2025-06",
	}, nil); res.StatusCode != http.StatusOK {
		t.Fatalf("generate: %d %s", res.StatusCode, string(data))
	}

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/tasks/derive", map[string]any{
		"client_id": "ip_usn_dr", "period": "2025-06", "persist": true,
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("derive: %d %s", res.StatusCode, string(data))
	}
	var derived TaskListBody
	_ = json.Unmarshal(data, &derived)
	if derived.Created == 0 || len(derived.Tasks) != derived.Created {
		t.Fatalf("derive body: %s", string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/tasks?client_id=ip_usn_dr", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list tasks: %d", res.StatusCode)
	}
	var listed TaskListBody
	_ = json.Unmarshal(data, &listed)
	if len(listed.Tasks) != derived.Created {
		t.Fatalf("listed %d tasks, want %d", len(listed.Tasks), derived.Created)
	}
}

func TestUnknownEventIs404(t *testing.T) {
	srv, cleanup := newTestServer(t, AuthConfig{})
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/events/missing", nil, nil)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d %s", res.StatusCode, string(data))
	}
	var envelope struct {
		Error apiErrorBody `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil || envelope.Error.Code != "not_found" {
		t.Fatalf("error envelope: %s", string(data))
	}
}

func TestJWTEnforcement(t *testing.T) {
	const secret = "test-secret"
	srv, cleanup := newTestServer(t, AuthConfig{JWTSecret: secret})
	defer cleanup()
	client := srv.Client()

	// health stays open
	if res, _ := doJSON(t, client, http.MethodGet, srv.URL+"/v0/health", nil, nil); res.StatusCode != http.StatusOK {
		t.Fatalf("health: %d", res.StatusCode)
	}

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v0/chains", nil, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d %s", res.StatusCode, string(data))
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwtClaims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "accountant-1"},
	}).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/chains", nil, map[string]string{
		"Authorization": "Bearer " + token,
	})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("authorized request: %d %s", res.StatusCode, string(data))
	}
	var chains ChainListBody
	_ = json.Unmarshal(data, &chains)
	if len(chains.Chains) == 0 {
		t.Fatalf("chains body: %s", string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/chains", nil, map[string]string{
		"Authorization": "Bearer not-a-token",
	})
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("bad token: %d %s", res.StatusCode, string(data))
	}
}

func TestProfilesAndTemplates(t *testing.T) {
	srv, cleanup := newTestServer(t, AuthConfig{})
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v0/profiles", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("profiles: %d %s", res.StatusCode, string(data))
	}
	var profiles ProfileListBody
	_ = json.Unmarshal(data, &profiles)
	if len(profiles.Profiles) != 3 {
		t.Fatalf("profiles: %s", string(data))
	}

	if res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/events/generate", map[string]any{
		"client_id": "ip_usn_dr", "period": "2025-06",
	}, nil); res.StatusCode != http.StatusOK {
		t.Fatalf("generate: %d %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/templates?client_id=ip_usn_dr", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("templates: %d %s", res.StatusCode, string(data))
	}
	var templates TemplateListBody
	_ = json.Unmarshal(data, &templates)
	if len(templates.Templates) == 0 {
		t.Fatalf("templates body: %s", string(data))
	}
}

func TestAuditLogTail(t *testing.T) {
	srv, cleanup := newTestServer(t, AuthConfig{})
	defer cleanup()
	client := srv.Client()

	if res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/events/generate", map[string]any{
		"client_id": "ip_usn_dr", "period": "2025-06",
	}, map[string]string{"X-Actor-Id": "tester"}); res.StatusCode != http.StatusOK {
		t.Fatalf("generate: %d %s", res.StatusCode, string(data))
	}

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v0/log?limit=10", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("log: %d %s", res.StatusCode, string(data))
	}
	var audit AuditListBody
	_ = json.Unmarshal(data, &audit)
	if len(audit.Events) == 0 {
		t.Fatalf("audit body: %s", string(data))
	}
	var found bool
	for _, ev := range audit.Events {
		if ev.Type == "events.generate" && ev.ActorID == "tester" {
			found = true
		}
	}
	if !found {
		t.Fatalf("events.generate audit row missing: %+v", audit.Events)
	}
}
