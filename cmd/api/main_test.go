package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"outcomes/auth"
	"outcomes/outcome"
)

const (
	customerID    = "3fa85f64-5717-4562-b3fc-2c963f66afa6"
	interactionID = "1c2d3e4f-5a6b-4c7d-8e9f-0a1b2c3d4e5f"
	actionPlanID  = "6d3b4a3e-0d6c-4b3f-9a55-8c6a4a1f1c11"
	outcomeID     = "b2a4c1f0-0c8e-4d6e-9f3b-3f1c2a5d7e90"
	touchpointID  = "0000000001"

	collectionURL = "/customers/" + customerID + "/interactions/" + interactionID + "/actionplans/" + actionPlanID + "/outcomes"
	resourceURL   = collectionURL + "/" + outcomeID
)

type stubOutcomeService struct {
	list      []outcome.Outcome
	listErr   error
	item      outcome.Outcome
	getErr    error
	created   outcome.Outcome
	createErr error
	patched   outcome.Outcome
	patchErr  error

	lastCreate outcome.CreateRequest
	lastPatch  outcome.PatchRequest
}

func (s *stubOutcomeService) List(_ context.Context, _ outcome.Scope) ([]outcome.Outcome, error) {
	return s.list, s.listErr
}

func (s *stubOutcomeService) Get(_ context.Context, _ outcome.Scope, _ string) (outcome.Outcome, error) {
	return s.item, s.getErr
}

func (s *stubOutcomeService) Create(_ context.Context, req outcome.CreateRequest) (outcome.Outcome, error) {
	s.lastCreate = req
	return s.created, s.createErr
}

func (s *stubOutcomeService) Patch(_ context.Context, req outcome.PatchRequest) (outcome.Outcome, error) {
	s.lastPatch = req
	return s.patched, s.patchErr
}

type stubPinger struct {
	err error
}

func (p stubPinger) Ping(context.Context) error { return p.err }

func serve(server *Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	return rec
}

func newRequest(method, target, body string) *http.Request {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	req.Header.Set(headerTouchpointID, touchpointID)
	return req
}

func TestHandleGetOutcome_Success(t *testing.T) {
	server := NewServer(&stubOutcomeService{
		item: outcome.Outcome{OutcomeID: outcomeID, CustomerID: customerID, TouchpointID: touchpointID},
	}, nil, nil, nil)

	rec := serve(server, newRequest(http.MethodGet, resourceURL, ""))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	var resp outcome.Outcome
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.OutcomeID != outcomeID || resp.CustomerID != customerID {
		t.Fatalf("unexpected response payload: %+v", resp)
	}
}

func TestHandleGetOutcome_NotFound(t *testing.T) {
	server := NewServer(&stubOutcomeService{getErr: outcome.ErrOutcomeNotFound}, nil, nil, nil)

	rec := serve(server, newRequest(http.MethodGet, resourceURL, ""))

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
}

func TestHandleGetOutcome_InvalidID(t *testing.T) {
	server := NewServer(&stubOutcomeService{}, nil, nil, nil)

	rec := serve(server, newRequest(http.MethodGet, collectionURL+"/not-a-guid", ""))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestHandleListOutcomes_InvalidCustomer(t *testing.T) {
	server := NewServer(&stubOutcomeService{}, nil, nil, nil)
	target := strings.Replace(collectionURL, customerID, "1234", 1)

	rec := serve(server, newRequest(http.MethodGet, target, ""))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestHandleListOutcomes_Success(t *testing.T) {
	server := NewServer(&stubOutcomeService{
		list: []outcome.Outcome{{OutcomeID: outcomeID}, {OutcomeID: "c3b5d2a1-1d9f-4e7f-8a4c-4a2d3b6e8f01"}},
	}, nil, nil, nil)

	rec := serve(server, newRequest(http.MethodGet, collectionURL, ""))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var items []outcome.Outcome
	if err := json.Unmarshal(rec.Body.Bytes(), &items); err != nil {
		t.Fatalf("decode list response: %v", err)
	}
	if len(items) != 2 || items[0].OutcomeID != outcomeID {
		t.Fatalf("unexpected payload: %+v", items)
	}
}

func TestHandleListOutcomes_UnexpectedError(t *testing.T) {
	server := NewServer(&stubOutcomeService{listErr: errors.New("boom")}, nil, nil, nil)

	rec := serve(server, newRequest(http.MethodGet, collectionURL, ""))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}

func TestHandleOutcomes_MissingTouchpoint(t *testing.T) {
	server := NewServer(&stubOutcomeService{}, nil, nil, nil)
	req := httptest.NewRequest(http.MethodGet, collectionURL, nil)

	rec := serve(server, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestHandleOutcomes_PutAndDeleteNotAllowed(t *testing.T) {
	server := NewServer(&stubOutcomeService{}, nil, nil, nil)

	for _, method := range []string{http.MethodPut, http.MethodDelete} {
		rec := serve(server, newRequest(method, resourceURL, `{}`))
		if rec.Code != http.StatusMethodNotAllowed {
			t.Fatalf("%s: expected 405, got %d", method, rec.Code)
		}
	}
}

func TestHandleCreateOutcome_Created(t *testing.T) {
	svc := &stubOutcomeService{created: outcome.Outcome{OutcomeID: outcomeID}}
	server := NewServer(svc, nil, nil, nil)

	req := newRequest(http.MethodPost, collectionURL, `{"OutcomeType":1,"OutcomeClaimedDate":"2026-01-10T09:00:00Z"}`)
	req.Header.Set(headerAPIMURL, "https://api.example.com/outcomes")
	rec := serve(server, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	if svc.lastCreate.TouchpointID != touchpointID {
		t.Fatalf("expected touchpoint %q, got %q", touchpointID, svc.lastCreate.TouchpointID)
	}
	if svc.lastCreate.Scope.ActionPlanID != actionPlanID || svc.lastCreate.Scope.InteractionID != interactionID {
		t.Fatalf("unexpected scope: %+v", svc.lastCreate.Scope)
	}
	if svc.lastCreate.BaseURL != "https://api.example.com/outcomes" {
		t.Fatalf("unexpected base url %q", svc.lastCreate.BaseURL)
	}
	if svc.lastCreate.Outcome.OutcomeType == nil || *svc.lastCreate.Outcome.OutcomeType != outcome.OutcomeTypeCustomerSatisfaction {
		t.Fatalf("body not decoded: %+v", svc.lastCreate.Outcome)
	}
}

func TestHandleCreateOutcome_BaseURLFallsBackToPath(t *testing.T) {
	svc := &stubOutcomeService{}
	server := NewServer(svc, nil, nil, nil)

	serve(server, newRequest(http.MethodPost, collectionURL, `{}`))

	if svc.lastCreate.BaseURL != collectionURL {
		t.Fatalf("expected base url %q, got %q", collectionURL, svc.lastCreate.BaseURL)
	}
}

func TestHandleCreateOutcome_MalformedBody(t *testing.T) {
	server := NewServer(&stubOutcomeService{}, nil, nil, nil)

	rec := serve(server, newRequest(http.MethodPost, collectionURL, `{"OutcomeType":`))

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rec.Code)
	}
}

func TestHandleCreateOutcome_ValidationErrors(t *testing.T) {
	server := NewServer(&stubOutcomeService{
		createErr: &outcome.ValidationErrors{Fields: []outcome.FieldError{
			{Field: "OutcomeClaimedDate", Message: "OutcomeClaimedDate is required"},
			{Field: "OutcomeEffectiveDate", Message: "OutcomeEffectiveDate is required"},
		}},
	}, nil, nil, nil)

	rec := serve(server, newRequest(http.MethodPost, collectionURL, `{}`))

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rec.Code)
	}
	var fields []outcome.FieldError
	if err := json.Unmarshal(rec.Body.Bytes(), &fields); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(fields) != 2 || fields[0].Field != "OutcomeClaimedDate" {
		t.Fatalf("unexpected validation payload: %+v", fields)
	}
}

func TestHandleCreateOutcome_ErrorMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"customer missing", outcome.ErrCustomerNotFound, http.StatusNoContent},
		{"action plan missing", outcome.ErrActionPlanNotFound, http.StatusNoContent},
		{"read only", outcome.ErrCustomerReadOnly, http.StatusForbidden},
		{"unreadable document", outcome.ErrMalformedDocument, http.StatusUnprocessableEntity},
		{"store failure", errors.New("boom"), http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			server := NewServer(&stubOutcomeService{createErr: tc.err}, nil, nil, nil)

			rec := serve(server, newRequest(http.MethodPost, collectionURL, `{}`))

			if rec.Code != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, rec.Code)
			}
		})
	}
}

func TestHandlePatchOutcome_Success(t *testing.T) {
	svc := &stubOutcomeService{patched: outcome.Outcome{OutcomeID: outcomeID}}
	server := NewServer(svc, nil, nil, nil)

	req := newRequest(http.MethodPatch, resourceURL, `{"OutcomeType":5,"OutcomeEffectiveDate":null}`)
	req.Header.Set(headerAPIMURL, "https://api.example.com/outcomes/")
	rec := serve(server, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if svc.lastPatch.OutcomeID != outcomeID {
		t.Fatalf("expected outcome id %q, got %q", outcomeID, svc.lastPatch.OutcomeID)
	}
	if svc.lastPatch.ResourceURL != "https://api.example.com/outcomes/"+outcomeID {
		t.Fatalf("unexpected resource url %q", svc.lastPatch.ResourceURL)
	}
	if !svc.lastPatch.Patch.ClearsEffectiveDate() || svc.lastPatch.Patch.ClearsClaimedDate() {
		t.Fatal("expected explicit null to clear only the effective date")
	}
}

func TestHandlePatchOutcome_NothingToUpdate(t *testing.T) {
	server := NewServer(&stubOutcomeService{patchErr: outcome.ErrOutcomeNotFound}, nil, nil, nil)

	rec := serve(server, newRequest(http.MethodPatch, resourceURL, `{}`))

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
}

func TestHandleOutcomes_BearerToken(t *testing.T) {
	tokens := auth.NewService("test-secret")
	token, err := tokens.IssueToken("0000000009", time.Hour)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	svc := &stubOutcomeService{}
	server := NewServer(svc, tokens, nil, nil)

	req := httptest.NewRequest(http.MethodPost, collectionURL, strings.NewReader(`{}`))
	req.Header.Set("Authorization", "Bearer "+token)
	rec := serve(server, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	if svc.lastCreate.TouchpointID != "0000000009" {
		t.Fatalf("expected touchpoint from token, got %q", svc.lastCreate.TouchpointID)
	}

	mismatch := newRequest(http.MethodPost, collectionURL, `{}`)
	mismatch.Header.Set("Authorization", "Bearer "+token)
	if rec := serve(server, mismatch); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for mismatching touchpoint, got %d", rec.Code)
	}

	if rec := serve(server, newRequest(http.MethodGet, collectionURL, "")); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}
}

func TestHandleHealthz(t *testing.T) {
	ok := NewServer(&stubOutcomeService{}, nil, stubPinger{}, nil)
	if rec := serve(ok, httptest.NewRequest(http.MethodGet, "/healthz", nil)); rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	down := NewServer(&stubOutcomeService{}, nil, stubPinger{err: errors.New("down")}, nil)
	if rec := serve(down, httptest.NewRequest(http.MethodGet, "/healthz", nil)); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestStart_ConfigErrorExitsNonZero(t *testing.T) {
	t.Setenv("OUTCOMES_DATABASE_URL", "")

	if code := start(); code != 1 {
		t.Fatalf("expected exit code 1, got %d", code)
	}
}

func TestStart_RunErrorExitsNonZero(t *testing.T) {
	t.Setenv("OUTCOMES_DATABASE_URL", "postgres://%zz")
	t.Setenv("OUTCOMES_LOG_MODE", "dev")

	if code := start(); code != 1 {
		t.Fatalf("expected exit code 1, got %d", code)
	}
}
