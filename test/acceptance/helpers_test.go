//go:build acceptance

// Package acceptance contains black-box CLI and API acceptance tests (TestA_*).
// Run with: go test -tags=acceptance ./test/acceptance/...
package acceptance

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// certwizardBinary is the path to the certwizard binary.
// Set via CERTWIZARD_BINARY env var or default to bin/certwizard in the repo root.
var certwizardBinary string

func init() {
	if bin := os.Getenv("CERTWIZARD_BINARY"); bin != "" {
		certwizardBinary = bin
	} else {
		certwizardBinary = "../../bin/certwizard"
	}
}

// runCertwizard executes the certwizard CLI with the given arguments and returns stdout.
// Fails the test if the command returns a non-zero exit code.
func runCertwizard(t *testing.T, args ...string) string {
	t.Helper()
	cmd := exec.Command(certwizardBinary, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		t.Fatalf("certwizard %s failed: %v\nstderr: %s\nstdout: %s",
			strings.Join(args, " "), err, stderr.String(), stdout.String())
	}
	return stdout.String()
}

// runCertwizardExpectError executes certwizard and expects it to fail.
// Returns the combined output (stdout + stderr).
func runCertwizardExpectError(t *testing.T, args ...string) string {
	t.Helper()
	cmd := exec.Command(certwizardBinary, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err == nil {
		t.Fatalf("certwizard %s expected to fail but succeeded\nstdout: %s",
			strings.Join(args, " "), stdout.String())
	}
	return stdout.String() + stderr.String()
}

// freePort returns a TCP port that was free at the time of the call.
func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to find a free port: %v", err)
	}
	defer func() { _ = l.Close() }()
	return l.Addr().(*net.TCPAddr).Port
}

// startServer runs "certwizard serve" in the background and returns its base URL
// once /health answers. The server is stopped when the test ends.
func startServer(t *testing.T, args ...string) string {
	t.Helper()
	port := freePort(t)
	baseURL := fmt.Sprintf("http://127.0.0.1:%d", port)

	ctx, cancel := context.WithCancel(context.Background())
	cmdArgs := append([]string{"serve", "--host", "127.0.0.1", "--port", fmt.Sprint(port)}, args...)
	cmd := exec.CommandContext(ctx, certwizardBinary, cmdArgs...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	cmd.Cancel = func() error { return cmd.Process.Signal(os.Interrupt) }
	cmd.WaitDelay = 5 * time.Second

	if err := cmd.Start(); err != nil {
		cancel()
		t.Fatalf("failed to start certwizard serve: %v", err)
	}
	t.Cleanup(func() {
		cancel()
		_ = cmd.Wait()
	})

	_, err := backoff.Retry(ctx, func() (int, error) {
		resp, err := http.Get(baseURL + "/health")
		if err != nil {
			return 0, err
		}
		_ = resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return 0, fmt.Errorf("health returned %d", resp.StatusCode)
		}
		return resp.StatusCode, nil
	},
		backoff.WithBackOff(backoff.NewConstantBackOff(100*time.Millisecond)),
		backoff.WithMaxElapsedTime(10*time.Second),
	)
	if err != nil {
		t.Fatalf("server did not become healthy: %v\nstderr: %s", err, stderr.String())
	}
	return baseURL
}

// callAPI sends a JSON request and decodes the response into out when non-nil.
// Returns the HTTP status code.
func callAPI(t *testing.T, method, url string, body, out any) int {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to encode request: %v", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("failed to build request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s failed: %v", method, url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("failed to decode %s %s response: %v", method, url, err)
		}
	}
	return resp.StatusCode
}

// auditLog returns a fresh audit log path inside the test's temp dir.
func auditLog(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "audit.jsonl")
}
