//go:build e2e

package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/atedays1/ate-days-homebase-sub000/internal/api/handlers"
	"github.com/atedays1/ate-days-homebase-sub000/internal/cli"
	"github.com/atedays1/ate-days-homebase-sub000/internal/config"
	"github.com/atedays1/ate-days-homebase-sub000/internal/server"
	"github.com/atedays1/ate-days-homebase-sub000/internal/storage"
	"github.com/atedays1/ate-days-homebase-sub000/internal/testutil"
)

const (
	rustfsKey    = "rustfsadmin"
	rustfsSecret = "rustfsadmin"
)

// E2ETestEnv holds all resources needed for E2E tests
type E2ETestEnv struct {
	T            *testing.T
	Ctx          context.Context
	PostgresC    *testutil.PostgresContainer
	RustFSC      *testutil.RustFSContainer
	Runtime      *cli.Runtime
	ServerURL    string
	ServerCloser func()
	S3Client     *storage.S3Client
	BinaryDir    string
	HTTPClient   *http.Client
}

// SetupE2EEnv creates a full E2E test environment with containers and server
func SetupE2EEnv(t *testing.T) *E2ETestEnv {
	ctx := context.Background()

	pgC := testutil.NewPostgresContainer(ctx, t)
	s3C := testutil.NewRustFSContainer(ctx, t)

	s3Client, err := storage.NewS3Client(ctx, storage.S3ClientConfig{
		Endpoint:        s3C.Endpoint(),
		Region:          "us-east-1",
		AccessKeyID:     rustfsKey,
		SecretAccessKey: rustfsSecret,
		UsePathStyle:    true,
	})
	if err != nil {
		t.Fatalf("failed to create S3 client: %v", err)
	}

	t.Setenv("HOMEBASE_DATABASE_URL", pgC.ConnectionString())
	t.Setenv("HOMEBASE_OPENAI_API_KEY", "")
	t.Setenv("HOMEBASE_SENTRY_DSN", "")
	t.Setenv("HOMEBASE_S3_ENDPOINT", s3C.Endpoint())
	t.Setenv("HOMEBASE_S3_ACCESS_KEY_ID", rustfsKey)
	t.Setenv("HOMEBASE_S3_SECRET_ACCESS_KEY", rustfsSecret)

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	rt, err := openRuntimeWithRetry(ctx, cfg)
	if err != nil {
		t.Fatalf("failed to open runtime: %v", err)
	}

	port, err := getFreePort()
	if err != nil {
		t.Fatalf("failed to get free port: %v", err)
	}

	serverURL, serverCloser := startServer(t, rt, cfg, port)

	return &E2ETestEnv{
		T:            t,
		Ctx:          ctx,
		PostgresC:    pgC,
		RustFSC:      s3C,
		Runtime:      rt,
		ServerURL:    serverURL,
		ServerCloser: serverCloser,
		S3Client:     s3Client,
		HTTPClient:   &http.Client{Timeout: 30 * time.Second},
	}
}

// openRuntimeWithRetry waits for Postgres to accept connections after the
// container reports ready.
func openRuntimeWithRetry(ctx context.Context, cfg *config.Config) (*cli.Runtime, error) {
	var lastErr error
	for i := 0; i < 5; i++ {
		rt, err := cli.OpenRuntime(ctx, cfg, cli.RuntimeOptions{Migrate: true})
		if err == nil {
			return rt, nil
		}
		lastErr = err
		time.Sleep(time.Duration(i+1) * 500 * time.Millisecond)
	}
	return nil, lastErr
}

// Cleanup releases all resources
func (e *E2ETestEnv) Cleanup() {
	if e.ServerCloser != nil {
		e.ServerCloser()
	}
	if e.Runtime != nil {
		e.Runtime.Close()
	}
	if e.RustFSC != nil {
		e.RustFSC.Terminate(e.Ctx)
	}
	if e.PostgresC != nil {
		e.PostgresC.Terminate(e.Ctx)
	}
	if e.BinaryDir != "" {
		os.RemoveAll(e.BinaryDir)
	}
}

// BuildBinaries builds the homebase and homebased binaries
func (e *E2ETestEnv) BuildBinaries() {
	tmpDir, err := os.MkdirTemp("", "homebase-e2e-*")
	if err != nil {
		e.T.Fatalf("failed to create temp dir: %v", err)
	}
	e.BinaryDir = tmpDir

	for _, name := range []string{"homebased", "homebase"} {
		cmd := exec.Command("go", "build", "-o", filepath.Join(tmpDir, name), "./cmd/"+name)
		cmd.Dir = "../.."
		if out, err := cmd.CombinedOutput(); err != nil {
			e.T.Fatalf("failed to build %s: %v\n%s", name, err, out)
		}
	}
}

// RunHomebase runs the homebase CLI against the test database and returns its
// stdout. Log lines go to stderr and are only reported on failure.
func (e *E2ETestEnv) RunHomebase(workDir string, args ...string) (string, error) {
	var stderr bytes.Buffer
	cmd := exec.Command(filepath.Join(e.BinaryDir, "homebase"), args...)
	cmd.Dir = workDir
	cmd.Env = os.Environ()
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return string(out), fmt.Errorf("%w: %s", err, stderr.String())
	}
	return string(out), nil
}

// APIResponse represents a standard API response
type APIResponse struct {
	Status int             `json:"-"`
	Header http.Header     `json:"-"`
	Data   json.RawMessage `json:"data"`
	Error  string          `json:"error,omitempty"`
	Code   string          `json:"code,omitempty"`
}

// Get performs a GET request
func (e *E2ETestEnv) Get(path string) (*APIResponse, error) {
	return e.doRequest(http.MethodGet, path, nil, "")
}

// Post performs a JSON POST request
func (e *E2ETestEnv) Post(path string, body interface{}) (*APIResponse, error) {
	jsonData, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal body: %w", err)
	}
	return e.doRequest(http.MethodPost, path, bytes.NewReader(jsonData), "application/json")
}

// Delete performs a DELETE request
func (e *E2ETestEnv) Delete(path string) (*APIResponse, error) {
	return e.doRequest(http.MethodDelete, path, nil, "")
}

// Upload posts a document as multipart form data
func (e *E2ETestEnv) Upload(filename string, content []byte, fields map[string]string) (*APIResponse, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(content); err != nil {
		return nil, err
	}
	for k, v := range fields {
		if err := writer.WriteField(k, v); err != nil {
			return nil, err
		}
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}
	return e.doRequest(http.MethodPost, "/documents", &body, writer.FormDataContentType())
}

func (e *E2ETestEnv) doRequest(method, path string, body io.Reader, contentType string) (*APIResponse, error) {
	req, err := http.NewRequest(method, e.ServerURL+path, body)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := e.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	apiResp := &APIResponse{Status: resp.StatusCode, Header: resp.Header}
	if len(respBody) > 0 {
		if err := json.Unmarshal(respBody, apiResp); err != nil {
			return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(respBody))
		}
	}
	return apiResp, nil
}

// startServer starts the HTTP server the same way homebased serve does
func startServer(t *testing.T, rt *cli.Runtime, cfg *config.Config, port int) (string, func()) {
	router := server.NewRouter(server.RouterConfig{
		DocumentHandler: handlers.NewDocumentHandler(rt.Ingest),
		ContextHandler:  handlers.NewContextHandler(rt.Retriever, rt.Context),
		MaxUploadBytes:  cfg.MaxUploadBytes,
		HealthCheck:     rt.Ping,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			t.Logf("server error: %v", err)
		}
	}()

	serverURL := fmt.Sprintf("http://localhost:%d", port)
	waitForServer(t, serverURL, 10*time.Second)

	return serverURL, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}
}

func waitForServer(t *testing.T, url string, timeout time.Duration) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		resp, err := http.Get(url + "/health")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return
			}
		}
		time.Sleep(100 * time.Millisecond)
	}
	t.Fatalf("server did not start within %v", timeout)
}

func getFreePort() (int, error) {
	addr, err := net.ResolveTCPAddr("tcp", "localhost:0")
	if err != nil {
		return 0, err
	}

	l, err := net.ListenTCP("tcp", addr)
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}
