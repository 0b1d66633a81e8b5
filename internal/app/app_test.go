package app

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"crypto/hmac"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"encoding/json"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/initify/flakie/internal/runner"
)

const secret = "s3cret"

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	goleak.VerifyTestMain(m)
}

func newTestServer(t *testing.T) (*Server, http.Handler) {
	t.Helper()
	srv, err := NewServer(&Config{AppID: 1, WebhookSecret: secret, Runs: 1}, zap.NewNop())
	require.NoError(t, err)
	return srv, NewRouterWithServer(srv)
}

func do(t *testing.T, h http.Handler, method, path, body string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("FLAKIE_APP_ID", "42")
	t.Setenv("FLAKIE_PRIVATE_KEY", "pem")
	t.Setenv("FLAKIE_WEBHOOK_SECRET", secret)
	t.Setenv("FLAKIE_RUN_TIMEOUT", "30s")
	t.Setenv("PORT", "9090")

	cfg, err := LoadConfigFromEnv()
	require.NoError(t, err)
	assert.Equal(t, int64(42), cfg.AppID)
	assert.Equal(t, ":9090", cfg.Addr())
	assert.Equal(t, 5, cfg.Runs)
	assert.Equal(t, 30*time.Second, cfg.RunTimeout)

	t.Setenv("FLAKIE_RUNS", "0")
	_, err = LoadConfigFromEnv()
	assert.Error(t, err)
}

func TestLoadConfigRequiresSecrets(t *testing.T) {
	t.Setenv("FLAKIE_APP_ID", "")
	t.Setenv("FLAKIE_PRIVATE_KEY", "")
	t.Setenv("FLAKIE_WEBHOOK_SECRET", "")
	os.Unsetenv("FLAKIE_APP_ID")
	os.Unsetenv("FLAKIE_PRIVATE_KEY")
	os.Unsetenv("FLAKIE_WEBHOOK_SECRET")
	_, err := LoadConfigFromEnv()
	assert.Error(t, err)
}

func TestNewServerLoadsPipeline(t *testing.T) {
	_, err := NewServer(&Config{PipelinePath: filepath.Join(t.TempDir(), "missing.yml")}, nil)
	assert.Error(t, err)

	srv, err := NewServer(&Config{PipelinePath: filepath.Join("..", "..", "pipeline.yml")}, nil)
	require.NoError(t, err)
	assert.Equal(t, "Flaky Test Intelligence Demo", srv.pipeline.Name)
}

func TestPrivateKeyAndJWT(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	pkcs1 := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	got, err := parsePrivateKey(pkcs1)
	require.NoError(t, err)
	assert.True(t, key.Equal(got))

	der, err := x509.MarshalPKCS8PrivateKey(key)
	require.NoError(t, err)
	got, err = parsePrivateKey(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}))
	require.NoError(t, err)
	assert.True(t, key.Equal(got))

	_, err = parsePrivateKey([]byte("not pem"))
	assert.Error(t, err)

	signed, err := appJWT(42, key, time.Now())
	require.NoError(t, err)
	claims := &jwt.RegisteredClaims{}
	_, err = jwt.ParseWithClaims(signed, claims, func(*jwt.Token) (any, error) { return &key.PublicKey, nil })
	require.NoError(t, err)
	assert.Equal(t, "42", claims.Issuer)
}

func tarball(t *testing.T, files map[string]string) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for name, body := range files {
		require.NoError(t, tw.WriteHeader(&tar.Header{Name: name, Mode: 0o644, Size: int64(len(body)), Typeflag: tar.TypeReg}))
		_, err := tw.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
	return &buf
}

func TestExtractTarball(t *testing.T) {
	dest := t.TempDir()
	require.NoError(t, extractTarball(tarball(t, map[string]string{"repo-abc/go.mod": "module x\n"}), dest))
	data, err := os.ReadFile(filepath.Join(dest, "repo-abc", "go.mod"))
	require.NoError(t, err)
	assert.Equal(t, "module x\n", string(data))

	err = extractTarball(tarball(t, map[string]string{"../evil": "x"}), t.TempDir())
	assert.Error(t, err)
}

func TestHealth(t *testing.T) {
	_, h := newTestServer(t)
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/healthz", "", nil).Code)
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/api/healthz", "", nil).Code)
}

func TestScenarios(t *testing.T) {
	_, h := newTestServer(t)
	rec := do(t, h, http.MethodGet, "/api/scenarios?suite=IntegrationTest", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Suites    []string          `json:"suites"`
		Scenarios []json.RawMessage `json:"scenarios"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, []string{"IntegrationTest"}, body.Suites)
	assert.Len(t, body.Scenarios, 3)

	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/api/scenarios?suite=nope", "", nil).Code)
}

func TestSimulate(t *testing.T) {
	_, h := newTestServer(t)
	rec := do(t, h, http.MethodPost, "/api/simulate", `{"runs": 3, "seed": 7, "suite": "Known Regression Tests"}`,
		map[string]string{"Content-Type": "application/json"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var res runner.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, runner.StatusFailed, res.Status)
	assert.Equal(t, int64(7), res.Seed)
	assert.Len(t, res.FailedTests, 2)
	assert.Equal(t, 3, res.TotalRuns)
}

func TestSimulateRejects(t *testing.T) {
	_, h := newTestServer(t)
	hdr := map[string]string{"Content-Type": "application/json"}
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/api/simulate", `{"runs": -1}`, hdr).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/api/simulate", `{"suite": "nope"}`, hdr).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/api/simulate", `not json`, hdr).Code)
}

func signed(event, body string) map[string]string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(body))
	return map[string]string{
		"Content-Type":        "application/json",
		"X-GitHub-Event":      event,
		"X-Hub-Signature-256": "sha256=" + hex.EncodeToString(mac.Sum(nil)),
	}
}

func TestWebhook(t *testing.T) {
	srv, h := newTestServer(t)

	body := `{"zen": "Keep it logically awesome."}`
	rec := do(t, h, http.MethodPost, "/webhook", body, map[string]string{
		"Content-Type":        "application/json",
		"X-GitHub-Event":      "ping",
		"X-Hub-Signature-256": "sha256=deadbeef",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	assert.Equal(t, http.StatusAccepted, do(t, h, http.MethodPost, "/api/webhook", body, signed("ping", body)).Code)

	closed := `{"action": "closed", "number": 1}`
	assert.Equal(t, http.StatusAccepted, do(t, h, http.MethodPost, "/webhook", closed, signed("pull_request", closed)).Code)
	srv.Wait()

	bad := `{"action": `
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/webhook", bad, signed("pull_request", bad)).Code)
}

func TestHandledAction(t *testing.T) {
	for _, a := range []string{"opened", "reopened", "synchronize", "ready_for_review"} {
		assert.True(t, handledAction(a), a)
	}
	assert.False(t, handledAction("closed"))
}
