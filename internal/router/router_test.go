package router

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"member-onboarding/internal/app"
	"member-onboarding/internal/config"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

const devToken = "Bearer dev-token-test"

func newTestServer(t *testing.T) *fiber.App {
	t.Helper()
	cfg := &config.Config{
		AppName:           "test",
		AppEnv:            "development",
		JWTSecret:         "secret",
		UploadMaxSize:     1 << 20,
		WorkerConcurrency: 2,
		CredentialHasher:  "bcrypt",
		BcryptCost:        4,
		TempSecretLength:  12,
		TempSecretTTL:     time.Hour,
		RetryBaseInterval: time.Second,
		RetryMaxInterval:  time.Minute,
		RetryMaxAttempts:  3,
		SMSConcurrency:    2,
		EmailConcurrency:  2,
		SendTimeout:       time.Second,
	}
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	c, err := app.New(cfg, nil, nil, logger)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { c.Close() })

	server := New(cfg)
	Setup(server, c)
	return server
}

func upload(t *testing.T, path, filename, content string, fields map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("file", filename)
	if err != nil {
		t.Fatal(err)
	}
	part.Write([]byte(content))
	for k, v := range fields {
		w.WriteField(k, v)
	}
	w.Close()

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Authorization", devToken)
	return req
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func do(t *testing.T, server *fiber.App, req *http.Request) (int, envelope) {
	t.Helper()
	resp, err := server.Test(req, -1)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var env envelope
	raw, _ := io.ReadAll(resp.Body)
	json.Unmarshal(raw, &env)
	return resp.StatusCode, env
}

const membersCSV = "member_id,name,phone_number,email\n" +
	"M-1001,Ana Lopez,+15550000001,ana@example.com\n" +
	"M-1002,Ben Ode,+15550000002,\n" +
	"M-1003,Bad Phone,12,\n"

func TestAdminRoutesRequireAuth(t *testing.T) {
	server := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/members", nil)
	if code, _ := do(t, server, req); code != fiber.StatusUnauthorized {
		t.Fatalf("status = %d", code)
	}
}

func TestPreviewThenConfirm(t *testing.T) {
	server := newTestServer(t)

	code, env := do(t, server, upload(t, "/api/v1/imports/preview", "members.csv", membersCSV, nil))
	if code != fiber.StatusOK {
		t.Fatalf("preview status = %d: %s", code, env.Message)
	}
	var preview struct {
		RowCount   int `json:"row_count"`
		ValidCount int `json:"valid_count"`
	}
	json.Unmarshal(env.Data, &preview)
	if preview.RowCount != 3 || preview.ValidCount != 2 {
		t.Fatalf("preview = %+v", preview)
	}

	code, env = do(t, server, upload(t, "/api/v1/imports/confirm", "members.csv", membersCSV, nil))
	if code != fiber.StatusOK {
		t.Fatalf("confirm status = %d: %s", code, env.Message)
	}
	var result struct {
		LedgerID   string `json:"ledger_id"`
		Status     string `json:"status"`
		Statistics struct {
			Successful int `json:"successful"`
			Failed     int `json:"failed"`
			SMSSent    int `json:"sms_sent"`
		} `json:"statistics"`
	}
	json.Unmarshal(env.Data, &result)
	if result.Status != "completed" || result.Statistics.Successful != 2 || result.Statistics.Failed != 1 || result.Statistics.SMSSent != 2 {
		t.Fatalf("result = %+v", result)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/members?order_by=member_id&order_dir=asc", nil)
	req.Header.Set("Authorization", devToken)
	code, env = do(t, server, req)
	if code != fiber.StatusOK {
		t.Fatalf("members status = %d", code)
	}
	var items []struct {
		MemberID string `json:"member_id"`
		Phone    string `json:"phone_number"`
	}
	json.Unmarshal(env.Data, &items)
	if len(items) != 2 || items[0].MemberID != "M-****01" || !strings.HasSuffix(items[0].Phone, "0001") || strings.Contains(items[0].Phone, "555") {
		t.Fatalf("items = %+v", items)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/imports/"+result.LedgerID+"/errors/report", nil)
	req.Header.Set("Authorization", devToken)
	resp, err := server.Test(req, -1)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != fiber.StatusOK || !strings.Contains(resp.Header.Get("Content-Type"), "spreadsheetml") {
		t.Fatalf("report status = %d, type %q", resp.StatusCode, resp.Header.Get("Content-Type"))
	}
}

func TestConfirmRejectsMissingColumns(t *testing.T) {
	server := newTestServer(t)
	code, env := do(t, server, upload(t, "/api/v1/imports/confirm", "members.csv", "member_id,name\nM-1,Ana\n", nil))
	if code != fiber.StatusUnprocessableEntity || env.Success {
		t.Fatalf("status = %d, env = %+v", code, env)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/imports", nil)
	req.Header.Set("Authorization", devToken)
	_, env = do(t, server, req)
	if string(env.Data) != "[]" && string(env.Data) != "null" {
		t.Fatalf("no ledger should exist, got %s", env.Data)
	}
}

func TestActivationRejectsUnknownMember(t *testing.T) {
	server := newTestServer(t)
	body := strings.NewReader(`{"member_id":"M-9","temp_secret":"nope","new_password":"long-enough-1"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/activation", body)
	req.Header.Set("Content-Type", "application/json")
	if code, _ := do(t, server, req); code != fiber.StatusUnauthorized {
		t.Fatalf("status = %d", code)
	}
}

func TestUnknownMemberIsNotFound(t *testing.T) {
	server := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/members/42", nil)
	req.Header.Set("Authorization", devToken)
	if code, _ := do(t, server, req); code != fiber.StatusNotFound {
		t.Fatalf("status = %d", code)
	}
}
