package apiserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/guidepath/guidepath/pkg/auth"
	"github.com/guidepath/guidepath/pkg/chat"
	"github.com/guidepath/guidepath/pkg/composer"
	"github.com/guidepath/guidepath/pkg/config"
	"github.com/guidepath/guidepath/pkg/model"
	"github.com/guidepath/guidepath/pkg/store"
	"github.com/guidepath/guidepath/pkg/store/memory"
	"github.com/guidepath/guidepath/pkg/workflow"
)

type healthResponse struct {
	Status string `json:"status"`
	Events string `json:"events"`
}

type problemResponse struct {
	Type   string `json:"type"`
	Status int    `json:"status"`
	Detail string `json:"detail"`
}

type testServer struct {
	server     *Server
	store      *memory.Store
	customerID uuid.UUID
	tokens     *auth.TokenManager
	token      string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := zap.NewNop()
	st := memory.New()
	customerID := st.AddCustomer(model.Customer{Name: "Acme"})

	definitions := composer.NewDefinitionRegistry()
	if err := definitions.Add(model.WorkflowDefinition{
		ID:     "renewal-prep",
		Name:   "Renewal prep",
		Type:   "renewal",
		Stages: model.StageRefs{{Stage: "welcome"}, {Stage: "summary"}},
	}); err != nil {
		t.Fatalf("failed to add definition: %v", err)
	}
	comp := composer.New(
		composer.NewDefaultStageRegistry(),
		composer.Fallback(definitions, composer.NewStoredDefinitions(st.Definitions())),
		composer.NewStoreCustomerData(st.Customers(), logger),
		logger,
	)

	tokens := auth.NewTokenManager(config.AuthConfig{JWTSecret: "test-secret", Issuer: "guidepath"})
	token, err := tokens.Generate("csm-1", "Casey")
	if err != nil {
		t.Fatalf("failed to generate token: %v", err)
	}

	server := NewServer(Dependencies{
		Store:    st,
		Services: workflow.NewServices(st, logger),
		Composer: comp,
		Files:    definitions,
		Resolver: chat.NewResolver(nil, 0, logger),
		Tokens:   tokens,
	}, logger)
	return &testServer{server: server, store: st, customerID: customerID, tokens: tokens, token: token}
}

func (ts *testServer) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	return ts.doAs(t, ts.token, method, path, body)
}

func (ts *testServer) doAs(t *testing.T, token, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	recorder := httptest.NewRecorder()
	ts.server.Router().ServeHTTP(recorder, req)
	return recorder
}

func decode(t *testing.T, recorder *httptest.ResponseRecorder, dst interface{}) {
	t.Helper()
	if err := json.Unmarshal(recorder.Body.Bytes(), dst); err != nil {
		t.Fatalf("failed to decode response %q: %v", recorder.Body.String(), err)
	}
}

func expectStatus(t *testing.T, recorder *httptest.ResponseRecorder, status int) {
	t.Helper()
	if recorder.Code != status {
		t.Fatalf("expected status %d, got %d: %s", status, recorder.Code, recorder.Body.String())
	}
}

func TestHealthEndpoint(t *testing.T) {
	ts := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	recorder := httptest.NewRecorder()

	ts.server.Router().ServeHTTP(recorder, req)

	expectStatus(t, recorder, http.StatusOK)
	var response healthResponse
	decode(t, recorder, &response)
	if response.Status != "ok" {
		t.Fatalf("expected status ok, got %q", response.Status)
	}
	if response.Events != "disabled" {
		t.Fatalf("expected events disabled without a bus, got %q", response.Events)
	}
	if recorder.Header().Get("X-Request-ID") == "" {
		t.Fatal("expected a request id header")
	}
}

func TestAPIAuthRequired(t *testing.T) {
	ts := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/executions", nil)
	recorder := httptest.NewRecorder()

	ts.server.Router().ServeHTTP(recorder, req)

	expectStatus(t, recorder, http.StatusUnauthorized)
	var response problemResponse
	decode(t, recorder, &response)
	if response.Detail != "missing authorization" {
		t.Fatalf("expected missing authorization error, got %q", response.Detail)
	}
}

func TestAPIRejectsForeignToken(t *testing.T) {
	ts := newTestServer(t)
	other := auth.NewTokenManager(config.AuthConfig{JWTSecret: "other-secret"})
	token, err := other.Generate("csm-1", "Casey")
	if err != nil {
		t.Fatalf("failed to generate token: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/executions", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	recorder := httptest.NewRecorder()
	ts.server.Router().ServeHTTP(recorder, req)

	expectStatus(t, recorder, http.StatusUnauthorized)
}

func TestExecutionStepFlow(t *testing.T) {
	ts := newTestServer(t)

	created := ts.do(t, http.MethodPost, "/api/v1/executions", map[string]interface{}{
		"workflow_config_id": "renewal-prep",
		"workflow_name":      "Renewal prep",
		"customer_id":        ts.customerID.String(),
		"total_steps":        2,
	})
	expectStatus(t, created, http.StatusCreated)
	var createBody struct {
		Success   bool            `json:"success"`
		Execution model.Execution `json:"execution"`
	}
	decode(t, created, &createBody)
	if !createBody.Success {
		t.Fatal("expected success flag")
	}
	if createBody.Execution.UserID != "csm-1" {
		t.Fatalf("expected owner from token subject, got %q", createBody.Execution.UserID)
	}
	base := "/api/v1/executions/" + createBody.Execution.ID.String()

	snoozed := ts.do(t, http.MethodPost, base+"/steps/0/snooze", map[string]interface{}{"days": 3, "label": "Welcome"})
	expectStatus(t, snoozed, http.StatusOK)
	var stepBody struct {
		Step model.StepState `json:"step"`
	}
	decode(t, snoozed, &stepBody)
	if stepBody.Step.Status != model.StepSnoozed {
		t.Fatalf("expected snoozed, got %q", stepBody.Step.Status)
	}

	expectStatus(t, ts.do(t, http.MethodPost, base+"/steps/0/complete", nil), http.StatusOK)

	again := ts.do(t, http.MethodPost, base+"/steps/0/complete", nil)
	expectStatus(t, again, http.StatusConflict)
	var problem problemResponse
	decode(t, again, &problem)
	if problem.Type != "invalid_transition" {
		t.Fatalf("expected invalid_transition problem, got %q", problem.Type)
	}

	expectStatus(t, ts.do(t, http.MethodPost, base+"/steps/1/skip", nil), http.StatusBadRequest)
	expectStatus(t, ts.do(t, http.MethodPost, base+"/steps/1/skip", map[string]interface{}{"reason": "not needed"}), http.StatusOK)

	got := ts.do(t, http.MethodGet, base, nil)
	expectStatus(t, got, http.StatusOK)
	var getBody struct {
		Execution model.Execution `json:"execution"`
	}
	decode(t, got, &getBody)
	if getBody.Execution.Status != model.ExecutionCompleted {
		t.Fatalf("expected completed execution, got %q", getBody.Execution.Status)
	}
	if getBody.Execution.CompletionPercentage != 100 {
		t.Fatalf("expected 100%% completion, got %d", getBody.Execution.CompletionPercentage)
	}

	steps := ts.do(t, http.MethodGet, base+"/steps", nil)
	expectStatus(t, steps, http.StatusOK)
	var stepsBody struct {
		Steps []model.StepState `json:"steps"`
	}
	decode(t, steps, &stepsBody)
	if len(stepsBody.Steps) != 2 {
		t.Fatalf("expected 2 step states, got %d", len(stepsBody.Steps))
	}
}

func TestExecutionErrors(t *testing.T) {
	ts := newTestServer(t)

	expectStatus(t, ts.do(t, http.MethodGet, "/api/v1/executions/not-a-uuid", nil), http.StatusBadRequest)

	missing := ts.do(t, http.MethodGet, "/api/v1/executions/"+uuid.NewString(), nil)
	expectStatus(t, missing, http.StatusNotFound)
	var problem problemResponse
	decode(t, missing, &problem)
	if problem.Type != "not_found" {
		t.Fatalf("expected not_found problem, got %q", problem.Type)
	}

	expectStatus(t, ts.do(t, http.MethodGet, "/api/v1/executions?status=bogus", nil), http.StatusBadRequest)
	expectStatus(t, ts.do(t, http.MethodGet, "/api/v1/executions/"+uuid.NewString()+"/events", nil), http.StatusServiceUnavailable)
}

func TestComposeAndChat(t *testing.T) {
	ts := newTestServer(t)

	composed := ts.do(t, http.MethodPost, "/api/v1/compose", map[string]interface{}{
		"workflow_id": "renewal-prep",
		"customer_id": ts.customerID.String(),
	})
	expectStatus(t, composed, http.StatusOK)
	var composeBody struct {
		Slides []composer.Slide `json:"slides"`
	}
	decode(t, composed, &composeBody)
	if len(composeBody.Slides) != 2 {
		t.Fatalf("expected 2 slides, got %d", len(composeBody.Slides))
	}
	greeting := composeBody.Slides[0].Chat.Branches["initial"].Response
	if greeting != "Hi! Let's get Acme ready for Renewal prep." {
		t.Fatalf("unexpected greeting %q", greeting)
	}

	unknown := ts.do(t, http.MethodPost, "/api/v1/compose", map[string]interface{}{
		"workflow_id": "missing",
		"customer_id": ts.customerID.String(),
	})
	expectStatus(t, unknown, http.StatusNotFound)

	started := ts.do(t, http.MethodPost, "/api/v1/chat/advance", map[string]interface{}{
		"workflow_id": "renewal-prep",
		"customer_id": ts.customerID.String(),
		"slide_id":    "welcome",
	})
	expectStatus(t, started, http.StatusOK)
	var startBody struct {
		Result chat.Result `json:"result"`
	}
	decode(t, started, &startBody)
	if startBody.Result.State.BranchID != "initial" {
		t.Fatalf("expected initial branch, got %q", startBody.Result.State.BranchID)
	}

	advanced := ts.do(t, http.MethodPost, "/api/v1/chat/advance", map[string]interface{}{
		"workflow_id": "renewal-prep",
		"customer_id": ts.customerID.String(),
		"slide_id":    "welcome",
		"state":       startBody.Result.State,
		"input":       map[string]interface{}{"button_value": "start"},
	})
	expectStatus(t, advanced, http.StatusOK)
	var advanceBody struct {
		Result chat.Result `json:"result"`
	}
	decode(t, advanced, &advanceBody)
	if advanceBody.Result.State.BranchID != "ready" {
		t.Fatalf("expected ready branch, got %q", advanceBody.Result.State.BranchID)
	}
}

func TestSaveDefinitionRequiresAdmin(t *testing.T) {
	ts := newTestServer(t)

	recorder := ts.do(t, http.MethodPost, "/api/v1/definitions", map[string]interface{}{
		"id":     "onboarding",
		"name":   "Onboarding",
		"stages": []map[string]interface{}{{"stage": "welcome"}},
	})
	expectStatus(t, recorder, http.StatusForbidden)
	var problem problemResponse
	decode(t, recorder, &problem)
	if problem.Type != "forbidden" {
		t.Fatalf("expected forbidden problem, got %+v", problem)
	}
}

func TestSaveDefinitionValidatesStages(t *testing.T) {
	ts := newTestServer(t)
	admin, err := ts.tokens.Generate("ops-1", "Olive", auth.RoleAdmin)
	if err != nil {
		t.Fatalf("failed to generate token: %v", err)
	}

	bad := ts.doAs(t, admin, http.MethodPost, "/api/v1/definitions", map[string]interface{}{
		"id":     "broken",
		"name":   "Broken",
		"stages": []map[string]interface{}{{"stage": "no-such-stage"}},
	})
	expectStatus(t, bad, http.StatusBadRequest)

	good := ts.doAs(t, admin, http.MethodPost, "/api/v1/definitions", map[string]interface{}{
		"id":     "onboarding",
		"name":   "Onboarding",
		"stages": []map[string]interface{}{{"stage": "welcome"}},
	})
	expectStatus(t, good, http.StatusCreated)

	composed := ts.do(t, http.MethodPost, "/api/v1/compose", map[string]interface{}{
		"workflow_id": "onboarding",
		"customer_id": ts.customerID.String(),
	})
	expectStatus(t, composed, http.StatusOK)
}

func TestSaveDefinitionRejectsFileOwnedID(t *testing.T) {
	ts := newTestServer(t)
	admin, err := ts.tokens.Generate("ops-1", "Olive", auth.RoleAdmin)
	if err != nil {
		t.Fatalf("failed to generate token: %v", err)
	}

	recorder := ts.doAs(t, admin, http.MethodPost, "/api/v1/definitions", map[string]interface{}{
		"id":     "renewal-prep",
		"name":   "Renewal prep v2",
		"stages": []map[string]interface{}{{"stage": "pricing"}},
	})
	expectStatus(t, recorder, http.StatusConflict)
	var problem problemResponse
	decode(t, recorder, &problem)
	if problem.Type != "conflict" {
		t.Fatalf("expected conflict problem, got %+v", problem)
	}

	if _, err := ts.store.Definitions().Get(context.Background(), "renewal-prep"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected no stored definition, got %v", err)
	}
}

func TestReviewGatesCompletion(t *testing.T) {
	ts := newTestServer(t)

	created := ts.do(t, http.MethodPost, "/api/v1/executions", map[string]interface{}{
		"workflow_config_id": "renewal-prep",
		"workflow_name":      "Renewal prep",
		"customer_id":        ts.customerID.String(),
		"total_steps":        1,
	})
	expectStatus(t, created, http.StatusCreated)
	var createBody struct {
		Execution model.Execution `json:"execution"`
	}
	decode(t, created, &createBody)
	base := "/api/v1/executions/" + createBody.Execution.ID.String()

	requested := ts.do(t, http.MethodPost, base+"/steps/0/reviews", map[string]interface{}{"reviewer_id": "lead-1"})
	expectStatus(t, requested, http.StatusCreated)
	var reviewBody struct {
		Review model.Review `json:"review"`
	}
	decode(t, requested, &reviewBody)

	expectStatus(t, ts.do(t, http.MethodPost, base+"/steps/0/complete", nil), http.StatusConflict)

	lead, err := ts.tokens.Generate("lead-1", "Lee")
	if err != nil {
		t.Fatalf("failed to generate token: %v", err)
	}
	review := "/api/v1/reviews/" + reviewBody.Review.ID.String()
	expectStatus(t, ts.do(t, http.MethodPost, review+"/approve", nil), http.StatusBadRequest)
	expectStatus(t, ts.doAs(t, lead, http.MethodPost, review+"/approve", map[string]interface{}{"notes": "looks good"}), http.StatusOK)
	expectStatus(t, ts.doAs(t, lead, http.MethodPost, review+"/reject", map[string]interface{}{"notes": "changed my mind"}), http.StatusConflict)

	expectStatus(t, ts.do(t, http.MethodPost, base+"/steps/0/complete", nil), http.StatusOK)
}
