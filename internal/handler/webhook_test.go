package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josh-kwaku/stay-reconciler/internal/domain"
	"github.com/josh-kwaku/stay-reconciler/internal/service"
)

type mockProcessor struct {
	provider string
	body     string
	sig      string
	res      service.WebhookResult
	err      error
}

func (m *mockProcessor) Process(_ context.Context, provider string, body []byte, header http.Header) (service.WebhookResult, error) {
	m.provider = provider
	m.body = string(body)
	m.sig = header.Get("X-Square-Signature")
	return m.res, m.err
}

func serveWebhook(t *testing.T, p *mockProcessor, provider, body string) (*httptest.ResponseRecorder, APIResponse) {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("POST /payments/webhook/{provider}", NewWebhookHandler(p).Receive)

	req := httptest.NewRequest(http.MethodPost, "/payments/webhook/"+provider, strings.NewReader(body))
	req.Header.Set("X-Square-Signature", "sig")
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	var resp APIResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	return rr, resp
}

func TestWebhookHandler_Receive(t *testing.T) {
	tests := []struct {
		name        string
		res         service.WebhookResult
		err         error
		wantStatus  int
		wantCode    string
		wantOutcome domain.WebhookOutcome
	}{
		{
			name:        "applied",
			res:         service.WebhookResult{EventID: "evt-1", Outcome: domain.WebhookOutcomeApplied},
			wantStatus:  http.StatusOK,
			wantOutcome: domain.WebhookOutcomeApplied,
		},
		{
			name:        "duplicate is acknowledged",
			res:         service.WebhookResult{EventID: "evt-1", Outcome: domain.WebhookOutcomeDuplicate},
			wantStatus:  http.StatusOK,
			wantOutcome: domain.WebhookOutcomeDuplicate,
		},
		{
			name:        "noop is acknowledged",
			res:         service.WebhookResult{EventID: "evt-1", Outcome: domain.WebhookOutcomeNoop, Detail: "booking cancelled"},
			wantStatus:  http.StatusOK,
			wantOutcome: domain.WebhookOutcomeNoop,
		},
		{
			name:        "malformed payload is acknowledged as rejected",
			err:         fmt.Errorf("process: %w", &domain.ValidationError{Field: "event_id", Reason: "missing"}),
			wantStatus:  http.StatusOK,
			wantOutcome: domain.WebhookOutcomeRejected,
		},
		{
			name:       "bad signature",
			err:        &domain.AuthenticationError{Reason: "signature mismatch"},
			wantStatus: http.StatusUnauthorized,
			wantCode:   "INVALID_SIGNATURE",
		},
		{
			name:       "unknown provider",
			err:        fmt.Errorf("process: %w", domain.ErrUnknownProvider),
			wantStatus: http.StatusNotFound,
			wantCode:   "UNKNOWN_PROVIDER",
		},
		{
			name:       "database failure asks for a retry",
			err:        fmt.Errorf("apply: begin tx: connection refused"),
			wantStatus: http.StatusInternalServerError,
			wantCode:   "INTERNAL_ERROR",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p := &mockProcessor{res: tc.res, err: tc.err}
			rr, resp := serveWebhook(t, p, "square", `{"event_id":"evt-1"}`)

			assert.Equal(t, tc.wantStatus, rr.Code)
			if tc.wantCode != "" {
				assert.False(t, resp.Success)
				require.NotNil(t, resp.Error)
				assert.Equal(t, tc.wantCode, resp.Error.Code)
				return
			}
			assert.True(t, resp.Success)
			data, ok := resp.Data.(map[string]any)
			require.True(t, ok)
			assert.Equal(t, string(tc.wantOutcome), data["outcome"])
		})
	}
}

func TestWebhookHandler_PassesRawBodyAndProvider(t *testing.T) {
	body := `{"event_id":"evt-9",  "type":"payment.updated"}`
	p := &mockProcessor{res: service.WebhookResult{EventID: "evt-9", Outcome: domain.WebhookOutcomeApplied}}

	rr, _ := serveWebhook(t, p, "square", body)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "square", p.provider)
	assert.Equal(t, body, p.body)
	assert.Equal(t, "sig", p.sig)
}
