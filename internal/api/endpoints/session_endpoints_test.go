package endpoints

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"messaging-client/internal/api"
	"messaging-client/internal/conversation"
	"messaging-client/internal/dto"
	internaljwt "messaging-client/internal/jwt"
	"messaging-client/internal/model"
)

type fakeEngine struct {
	mu sync.Mutex

	deployment conversation.Deployment
	status     model.ConversationStatus
	prechat    map[string]string
	messages   []string
	retried    int
	typing     []string
	startErr   error
	sendErr    error
}

func (f *fakeEngine) Initialize(ctx context.Context, d conversation.Deployment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deployment = d
	return nil
}

func (f *fakeEngine) Restore(ctx context.Context) (bool, error) {
	return false, nil
}

func (f *fakeEngine) Start(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return f.startErr
	}
	f.status = model.ConversationStatusOpen
	return nil
}

func (f *fakeEngine) Snapshot() conversation.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	status := f.status
	if status == "" {
		status = model.ConversationStatusNotStarted
	}
	return conversation.Snapshot{Status: status, ConversationID: "conv-1"}
}

func (f *fakeEngine) Reset() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status = model.ConversationStatusNotStarted
	return nil
}

func (f *fakeEngine) SubmitPrechat(ctx context.Context, values map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prechat = values
	return nil
}

func (f *fakeEngine) SendMessage(ctx context.Context, text string, opts conversation.SendOptions) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return "", f.sendErr
	}
	f.messages = append(f.messages, text)
	return "msg-1", nil
}

func (f *fakeEngine) RetryFailed(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return "", f.sendErr
	}
	f.retried++
	return "msg-1", nil
}

func (f *fakeEngine) UserTyping(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.typing = append(f.typing, "burst")
	return nil
}

func (f *fakeEngine) SendTypingIndicator(ctx context.Context, started bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if started {
		f.typing = append(f.typing, "started")
	} else {
		f.typing = append(f.typing, "stopped")
	}
	return nil
}

func (f *fakeEngine) End(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.status != model.ConversationStatusOpen {
		return conversation.ErrNotOpen
	}
	f.status = model.ConversationStatusClosed
	return nil
}

func setupSessionHandler(t *testing.T, engine *fakeEngine, token string) http.Handler {
	t.Helper()

	server := api.NewAPIServer(api.Options{
		ListenAddr:  ":0",
		Engine:      engine,
		BridgeToken: token,
		Deployment: conversation.Deployment{
			OrgID:          "00DSG000001NruH",
			DeploymentName: "Web1",
			MessagingURL:   "https://x.my.salesforce-scrt.com",
		},
		Registerer: prometheus.NewRegistry(),
	})
	t.Cleanup(server.Close)

	sessionEndpoints := NewSessionEndpoints(server.Engine(), server.Deployment())
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/session", server.MakeHTTPHandleFunc(sessionEndpoints.Session))
	mux.HandleFunc("/api/v1/session/reset", server.MakeHTTPHandleFunc(sessionEndpoints.ResetSession))
	mux.HandleFunc("/api/v1/prechat", server.MakeHTTPHandleFunc(sessionEndpoints.Prechat))
	mux.HandleFunc("/api/v1/messages", server.MakeHTTPHandleFunc(sessionEndpoints.Messages))
	mux.HandleFunc("/api/v1/messages/retry", server.MakeHTTPHandleFunc(sessionEndpoints.RetryMessage))
	mux.HandleFunc("/api/v1/typing", server.MakeHTTPHandleFunc(sessionEndpoints.Typing))
	mux.HandleFunc("/api/v1/conversation", server.MakeHTTPHandleFunc(sessionEndpoints.Conversation))
	return mux
}

func doJSONRequest[T any](t *testing.T, handler http.Handler, method, target string, body interface{}, headers map[string]string, expectedStatus int) T {
	t.Helper()

	var payload io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request: %v", err)
		}
		payload = bytes.NewReader(b)
	}

	req := httptest.NewRequest(method, target, payload)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != expectedStatus {
		t.Fatalf("expected status %d, got %d: %s", expectedStatus, rec.Code, rec.Body.String())
	}

	var result T
	if expectedStatus != http.StatusNoContent {
		if err := json.NewDecoder(rec.Body).Decode(&result); err != nil {
			t.Fatalf("decode response: %v", err)
		}
	}
	return result
}

func TestSessionEndpointsEndToEnd(t *testing.T) {
	engine := &fakeEngine{}
	handler := setupSessionHandler(t, engine, "")

	snap := doJSONRequest[conversation.Snapshot](t, handler, http.MethodGet, "/api/v1/session", nil, nil, http.StatusOK)
	if snap.Status != model.ConversationStatusNotStarted {
		t.Fatalf("status = %s", snap.Status)
	}

	snap = doJSONRequest[conversation.Snapshot](t, handler, http.MethodPost, "/api/v1/session",
		map[string]string{"deploymentName": "Web2"}, nil, http.StatusCreated)
	if snap.Status != model.ConversationStatusOpen {
		t.Fatalf("status after start = %s", snap.Status)
	}
	if engine.deployment.DeploymentName != "Web2" || engine.deployment.OrgID != "00DSG000001NruH" {
		t.Fatalf("deployment not merged with defaults: %+v", engine.deployment)
	}

	sent := doJSONRequest[map[string]string](t, handler, http.MethodPost, "/api/v1/messages",
		map[string]string{"text": "hello"}, nil, http.StatusAccepted)
	if sent["messageId"] != "msg-1" {
		t.Fatalf("messageId = %q", sent["messageId"])
	}

	retried := doJSONRequest[map[string]string](t, handler, http.MethodPost, "/api/v1/messages/retry", nil, nil, http.StatusAccepted)
	if retried["messageId"] != "msg-1" || engine.retried != 1 {
		t.Fatalf("retry response = %v, calls = %d", retried, engine.retried)
	}
	doJSONRequest[api.ApiError](t, handler, http.MethodGet, "/api/v1/messages/retry", nil, nil, http.StatusMethodNotAllowed)

	doJSONRequest[struct{}](t, handler, http.MethodPost, "/api/v1/typing", map[string]any{}, nil, http.StatusNoContent)
	doJSONRequest[struct{}](t, handler, http.MethodPost, "/api/v1/typing", map[string]any{"started": false}, nil, http.StatusNoContent)
	if len(engine.typing) != 2 || engine.typing[0] != "burst" || engine.typing[1] != "stopped" {
		t.Fatalf("typing calls = %v", engine.typing)
	}

	doJSONRequest[conversation.Snapshot](t, handler, http.MethodPost, "/api/v1/prechat",
		map[string]any{"routingAttributes": map[string]string{"_firstName": "Ada"}}, nil, http.StatusOK)
	if engine.prechat["_firstName"] != "Ada" {
		t.Fatalf("prechat values = %v", engine.prechat)
	}

	ended := doJSONRequest[map[string]string](t, handler, http.MethodDelete, "/api/v1/conversation", nil, nil, http.StatusOK)
	if ended["status"] != string(model.ConversationStatusClosed) {
		t.Fatalf("status after end = %v", ended)
	}

	apiErr := doJSONRequest[api.ApiError](t, handler, http.MethodDelete, "/api/v1/conversation", nil, nil, http.StatusConflict)
	if apiErr.Error == "" {
		t.Fatal("expected an error message")
	}

	doJSONRequest[conversation.Snapshot](t, handler, http.MethodPost, "/api/v1/session/reset", nil, nil, http.StatusOK)
	doJSONRequest[api.ApiError](t, handler, http.MethodPut, "/api/v1/session", nil, nil, http.StatusMethodNotAllowed)
}

func TestSessionEndpointsMapEngineErrors(t *testing.T) {
	tests := []struct {
		code   conversation.ErrorCode
		status int
	}{
		{conversation.ErrorCodeValidation, http.StatusBadRequest},
		{conversation.ErrorCodeAuthentication, http.StatusUnauthorized},
		{conversation.ErrorCodeSessionRequired, http.StatusExpectationFailed},
		{conversation.ErrorCodeRateLimited, http.StatusTooManyRequests},
		{conversation.ErrorCodeServerError, http.StatusBadGateway},
		{conversation.ErrorCodeSessionEnded, http.StatusGone},
		{conversation.ErrorCodeConflict, http.StatusConflict},
	}
	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			engine := &fakeEngine{
				status:  model.ConversationStatusOpen,
				sendErr: &conversation.Error{Code: tt.code, Message: "engine said no"},
			}
			handler := setupSessionHandler(t, engine, "")

			apiErr := doJSONRequest[api.ApiError](t, handler, http.MethodPost, "/api/v1/messages",
				map[string]string{"text": "hello"}, nil, tt.status)
			if apiErr.Code != string(tt.code) || apiErr.Error != "engine said no" {
				t.Fatalf("unexpected error body: %+v", apiErr)
			}
		})
	}
}

func TestSessionEndpointsRejectMalformedBody(t *testing.T) {
	handler := setupSessionHandler(t, &fakeEngine{status: model.ConversationStatusOpen}, "")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/messages", bytes.NewBufferString("{"))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestSessionEndpointsRequireBridgeToken(t *testing.T) {
	const secret = "bridge-secret"
	handler := setupSessionHandler(t, &fakeEngine{}, secret)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/session", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status without token = %d, want 401", rec.Code)
	}

	token, err := internaljwt.CreateToken(secret, "ui", time.Minute)
	if err != nil {
		t.Fatalf("create token: %v", err)
	}
	doJSONRequest[conversation.Snapshot](t, handler, http.MethodGet, "/api/v1/session", nil,
		map[string]string{"Authorization": "Bearer " + token}, http.StatusOK)
}

func TestRetryMessageReportsMissingFailure(t *testing.T) {
	engine := &fakeEngine{
		status:  model.ConversationStatusOpen,
		sendErr: &conversation.Error{Code: conversation.ErrorCodeConflict, Message: "no failed message to retry"},
	}
	handler := setupSessionHandler(t, engine, "")

	apiErr := doJSONRequest[api.ApiError](t, handler, http.MethodPost, "/api/v1/messages/retry", nil, nil, http.StatusConflict)
	if apiErr.Code != string(conversation.ErrorCodeConflict) {
		t.Fatalf("unexpected error body: %+v", apiErr)
	}
}

func TestHealthDescribesConversation(t *testing.T) {
	engine := &fakeEngine{status: model.ConversationStatusOpen}
	health := NewUtilsEndpoints(engine)

	rec := httptest.NewRecorder()
	if err := health.Health(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil)); err != nil {
		t.Fatalf("health: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body dto.HealthResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body.Status != "ok" || body.Conversation != string(model.ConversationStatusOpen) || body.ConversationID != "conv-1" {
		t.Fatalf("unexpected health body: %+v", body)
	}
}
