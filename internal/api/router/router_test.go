package router

import (
	"bufio"
	"bytes"
	"context"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/remiblancher/certwizard/internal/api/dto"
	"github.com/remiblancher/certwizard/internal/api/service"
	"github.com/remiblancher/certwizard/internal/capability"
	"github.com/remiblancher/certwizard/internal/wizard"
)

func intPtr(v int) *int { return &v }

func testRegistry() *capability.Registry {
	p256, p384 := 256, 384
	return capability.Build([]capability.SignatureEntry{
		{KeyPairAlgorithm: "EC", SignatureAlgorithm: "SHA256withECDSA"},
		{KeyPairAlgorithm: "EC", SignatureAlgorithm: "SHA384withECDSA"},
		{KeyPairAlgorithm: "Ed25519", SignatureAlgorithm: "Ed25519"},
	}, []capability.KeySizeEntry{
		{Algorithm: "EC", KeySize: &p256},
		{Algorithm: "EC", KeySize: &p384},
		{Algorithm: "Ed25519"},
	})
}

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	svc := service.NewSessionService(testRegistry())
	return New(&Config{Version: "test", Sessions: svc, Logger: zerolog.Nop()})
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func requireStatus(t *testing.T, rec *httptest.ResponseRecorder, status int) {
	t.Helper()
	require.Equal(t, status, rec.Code, rec.Body.String())
}

func assertAPIError(t *testing.T, rec *httptest.ResponseRecorder, status int, code, kind string) {
	t.Helper()
	requireStatus(t, rec, status)
	apiErr := decode[dto.APIError](t, rec)
	assert.Equal(t, code, apiErr.Code)
	if kind != "" {
		assert.Equal(t, kind, apiErr.Details["kind"])
	}
}

func createSession(t *testing.T, h http.Handler) dto.SessionResponse {
	t.Helper()
	rec := do(t, h, http.MethodPost, "/api/v1/sessions", dto.SessionCreateRequest{KeyPairAlgorithm: "EC"})
	requireStatus(t, rec, http.StatusCreated)
	return decode[dto.SessionResponse](t, rec)
}

// =============================================================================
// Health and capabilities
// =============================================================================

func TestU_Router_Health(t *testing.T) {
	h := newTestRouter(t)

	rec := do(t, h, http.MethodGet, "/health", nil)
	requireStatus(t, rec, http.StatusOK)
	assert.Equal(t, "test", decode[dto.HealthResponse](t, rec).Version)

	rec = do(t, h, http.MethodGet, "/ready", nil)
	requireStatus(t, rec, http.StatusOK)
	assert.True(t, decode[dto.ReadyResponse](t, rec).Ready)

	rec = do(t, h, http.MethodGet, "/api/openapi.yaml", nil)
	requireStatus(t, rec, http.StatusOK)
	assert.Contains(t, rec.Body.String(), "/api/v1/sessions")
}

func TestU_Router_Algorithms(t *testing.T) {
	h := newTestRouter(t)

	rec := do(t, h, http.MethodGet, "/api/v1/algorithms", nil)
	requireStatus(t, rec, http.StatusOK)
	list := decode[dto.AlgorithmListResponse](t, rec)
	require.Len(t, list.Algorithms, 2)
	assert.Equal(t, "EC", list.Algorithms[0].KeyPairAlgorithm)
	assert.Equal(t, []int{256, 384}, list.Algorithms[0].KeySizes)
	assert.Equal(t, 256, list.Algorithms[0].DefaultKeySize)
	assert.Equal(t, "SHA256withECDSA", list.Algorithms[0].SignatureAlgorithms[0])

	rec = do(t, h, http.MethodGet, "/api/v1/algorithms/Ed25519", nil)
	requireStatus(t, rec, http.StatusOK)
	info := decode[dto.AlgorithmInfo](t, rec)
	assert.Empty(t, info.KeySizes)
	assert.True(t, info.Generatable)

	rec = do(t, h, http.MethodGet, "/api/v1/algorithms/DSA", nil)
	assertAPIError(t, rec, http.StatusNotFound, "NOT_FOUND", "")
}

func TestU_Router_ValidateExtension(t *testing.T) {
	h := newTestRouter(t)

	rec := do(t, h, http.MethodPost, "/api/v1/extensions/validate", dto.ExtensionValidateRequest{ID: "1.2.3.4", Value: "hello"})
	requireStatus(t, rec, http.StatusOK)
	resp := decode[dto.ExtensionValidateResponse](t, rec)
	assert.True(t, resp.Valid)
	assert.NotEmpty(t, resp.DER)

	rec = do(t, h, http.MethodPost, "/api/v1/extensions/validate", dto.ExtensionValidateRequest{ID: "1.2.x", Value: "hello"})
	assertAPIError(t, rec, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "INVALID_OID")
}

// =============================================================================
// Session lifecycle
// =============================================================================

func TestU_Router_Session_FullFlow(t *testing.T) {
	h := newTestRouter(t)
	sess := createSession(t, h)
	base := "/api/v1/sessions/" + sess.ID

	assert.Equal(t, wizard.StateIssuer, sess.Navigation.State)
	assert.True(t, sess.Navigation.First)
	require.NotNil(t, sess.Request)
	assert.Equal(t, "SHA256withECDSA", sess.Request.SignatureAlgorithm)
	assert.Equal(t, 256, sess.Request.KeySize)
	assert.Equal(t, 3, sess.Request.Version)

	// Issuer CN is required before leaving the first step.
	assertAPIError(t, do(t, h, http.MethodPost, base+"/advance", nil),
		http.StatusUnprocessableEntity, "VALIDATION_ERROR", "EMPTY_COMMON_NAME")
	assertAPIError(t, do(t, h, http.MethodPost, base+"/retreat", nil),
		http.StatusConflict, "NO_PREVIOUS_STATE", "")

	requireStatus(t, do(t, h, http.MethodPut, base+"/issuer", dto.SubjectInfo{CommonName: "Root CA", Organization: "Example"}), http.StatusOK)
	rec := do(t, h, http.MethodPost, base+"/advance", nil)
	requireStatus(t, rec, http.StatusOK)
	assert.Equal(t, wizard.StateSubject, decode[dto.SessionResponse](t, rec).Navigation.State)

	requireStatus(t, do(t, h, http.MethodPut, base+"/subject", dto.SubjectInfo{CommonName: "leaf.example.com"}), http.StatusOK)
	requireStatus(t, do(t, h, http.MethodPost, base+"/advance", nil), http.StatusOK)

	rec = do(t, h, http.MethodPut, base+"/dates", dto.DatesRequest{
		Version:            intPtr(3),
		Serial:             "0x2a",
		SignatureAlgorithm: "SHA384withECDSA",
	})
	requireStatus(t, rec, http.StatusOK)
	assert.Equal(t, "0x2a", decode[dto.SessionResponse](t, rec).Request.Serial)

	rec = do(t, h, http.MethodPost, base+"/advance", nil)
	requireStatus(t, rec, http.StatusOK)
	nav := decode[dto.SessionResponse](t, rec).Navigation
	assert.Equal(t, wizard.StateExtensions, nav.State)
	assert.True(t, nav.Last)
	assert.False(t, nav.HasNext)

	assertAPIError(t, do(t, h, http.MethodPost, base+"/advance", nil), http.StatusConflict, "NO_NEXT_STATE", "")

	requireStatus(t, do(t, h, http.MethodPost, base+"/extensions", dto.ExtensionInfo{ID: "1.3.6.1.4.1.55555.1", Value: "hello"}), http.StatusOK)

	rec = do(t, h, http.MethodPost, base+"/finish", nil)
	requireStatus(t, rec, http.StatusCreated)
	certResp := decode[dto.CertificateResponse](t, rec)
	assert.Equal(t, "0x2a", certResp.Serial)
	assert.Equal(t, "leaf.example.com", certResp.Subject.CommonName)
	assert.Equal(t, "Root CA", certResp.Issuer.CommonName)
	assert.Len(t, certResp.Fingerprint, 64)

	block, _ := pem.Decode([]byte(certResp.Certificate))
	require.NotNil(t, block)
	cert, err := x509.ParseCertificate(block.Bytes)
	require.NoError(t, err)
	assert.Equal(t, int64(42), cert.SerialNumber.Int64())
	assert.Equal(t, x509.ECDSAWithSHA384, cert.SignatureAlgorithm)
	assert.Equal(t, 3, cert.Version)

	found := false
	for _, ext := range cert.Extensions {
		if ext.Id.String() == "1.3.6.1.4.1.55555.1" {
			found = true
			assert.Equal(t, []byte("hello"), ext.Value)
		}
	}
	assert.True(t, found, "custom extension missing from certificate")

	// The session is closed after finishing.
	assertAPIError(t, do(t, h, http.MethodPost, base+"/advance", nil), http.StatusGone, "SESSION_CLOSED", "")
}

func TestU_Router_Session_CreateErrors(t *testing.T) {
	h := newTestRouter(t)

	tests := []struct {
		name string
		body any
		code int
	}{
		{"[Unit] Create: missing algorithm", dto.SessionCreateRequest{}, http.StatusBadRequest},
		{"[Unit] Create: unknown algorithm", dto.SessionCreateRequest{KeyPairAlgorithm: "DSA"}, http.StatusBadRequest},
		{"[Unit] Create: unlisted key size", dto.SessionCreateRequest{KeyPairAlgorithm: "EC", KeySize: 521}, http.StatusBadRequest},
		{"[Unit] Create: incompatible signature", dto.SessionCreateRequest{KeyPairAlgorithm: "EC", SignatureAlgorithm: "Ed25519"}, http.StatusUnprocessableEntity},
		{"[Unit] Create: invalid JSON", "not an object", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, http.MethodPost, "/api/v1/sessions", tt.body)
			assert.Equal(t, tt.code, rec.Code, rec.Body.String())
		})
	}
}

func TestU_Router_Session_NotFound(t *testing.T) {
	h := newTestRouter(t)

	assertAPIError(t, do(t, h, http.MethodGet, "/api/v1/sessions/nope", nil),
		http.StatusNotFound, "SESSION_NOT_FOUND", "")
}

func TestU_Router_Session_Dates_Validation(t *testing.T) {
	h := newTestRouter(t)
	base := "/api/v1/sessions/" + createSession(t, h).ID

	rec := do(t, h, http.MethodPut, base+"/dates", dto.DatesRequest{
		NotBefore: "2026-06-01T00:00:00Z",
		NotAfter:  "2026-01-01T00:00:00Z",
	})
	assertAPIError(t, rec, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "INVALID_VALIDITY")

	rec = do(t, h, http.MethodPut, base+"/dates", dto.DatesRequest{Serial: "-5"})
	assertAPIError(t, rec, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "INVALID_SERIAL")

	rec = do(t, h, http.MethodPut, base+"/dates", dto.DatesRequest{Version: intPtr(2)})
	assertAPIError(t, rec, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "UNSUPPORTED_VERSION")

	rec = do(t, h, http.MethodPut, base+"/dates", dto.DatesRequest{
		NotBefore: "2026-01-01T00:00:00Z",
		NotAfter:  "2027-01-01T00:00:00Z",
	})
	requireStatus(t, rec, http.StatusOK)
	v := decode[dto.SessionResponse](t, rec).Request.Validity
	assert.Equal(t, "2026-01-01T00:00:00Z", v.NotBefore)
	assert.Equal(t, "2027-01-01T00:00:00Z", v.NotAfter)
}

func TestU_Router_Session_Version1RejectsExtensions(t *testing.T) {
	h := newTestRouter(t)
	base := "/api/v1/sessions/" + createSession(t, h).ID

	requireStatus(t, do(t, h, http.MethodPut, base+"/issuer", dto.SubjectInfo{CommonName: "Root"}), http.StatusOK)
	requireStatus(t, do(t, h, http.MethodPut, base+"/subject", dto.SubjectInfo{CommonName: "Leaf"}), http.StatusOK)
	requireStatus(t, do(t, h, http.MethodPost, base+"/extensions", dto.ExtensionInfo{ID: "1.2.3.4", Value: "x"}), http.StatusOK)
	requireStatus(t, do(t, h, http.MethodPut, base+"/dates", dto.DatesRequest{Version: intPtr(1)}), http.StatusOK)

	assertAPIError(t, do(t, h, http.MethodPost, base+"/finish", nil),
		http.StatusUnprocessableEntity, "VALIDATION_ERROR", "INCONSISTENT_VERSION_EXTENSIONS")
	assertAPIError(t, do(t, h, http.MethodPost, base+"/extensions", dto.ExtensionInfo{ID: "1.2.3.5", Value: "y"}),
		http.StatusUnprocessableEntity, "VALIDATION_ERROR", "INCONSISTENT_VERSION_EXTENSIONS")

	requireStatus(t, do(t, h, http.MethodDelete, base+"/extensions/0", nil), http.StatusOK)
	requireStatus(t, do(t, h, http.MethodPost, base+"/finish", nil), http.StatusCreated)
}

func TestU_Router_Session_Extensions(t *testing.T) {
	h := newTestRouter(t)
	base := "/api/v1/sessions/" + createSession(t, h).ID

	requireStatus(t, do(t, h, http.MethodPost, base+"/extensions", dto.ExtensionInfo{ID: "1.2.3.4", Value: "a"}), http.StatusOK)
	rec := do(t, h, http.MethodPut, base+"/extensions/0", dto.ExtensionInfo{ID: "1.2.3.5", Critical: true, Value: "b"})
	requireStatus(t, rec, http.StatusOK)
	exts := decode[dto.SessionResponse](t, rec).Request.Extensions
	require.Len(t, exts, 1)
	assert.Equal(t, dto.ExtensionInfo{ID: "1.2.3.5", Critical: true, Value: "b"}, exts[0])

	assertAPIError(t, do(t, h, http.MethodPut, base+"/extensions/3", dto.ExtensionInfo{ID: "1.2.3.6", Value: "c"}),
		http.StatusUnprocessableEntity, "VALIDATION_ERROR", "INVALID_EXTENSION_INDEX")
	assertAPIError(t, do(t, h, http.MethodDelete, base+"/extensions/x", nil),
		http.StatusBadRequest, "INVALID_REQUEST", "")
	assertAPIError(t, do(t, h, http.MethodPost, base+"/extensions", dto.ExtensionInfo{ID: "1", Value: "c"}),
		http.StatusUnprocessableEntity, "VALIDATION_ERROR", "INVALID_OID")
}

func TestU_Router_Session_Cancel(t *testing.T) {
	h := newTestRouter(t)
	base := "/api/v1/sessions/" + createSession(t, h).ID

	rec := do(t, h, http.MethodDelete, base, nil)
	requireStatus(t, rec, http.StatusOK)
	resp := decode[dto.SessionResponse](t, rec)
	assert.Equal(t, wizard.StatusCancelled, resp.Navigation.Status)
	assert.Nil(t, resp.Request)

	assertAPIError(t, do(t, h, http.MethodPost, base+"/cancel", nil), http.StatusGone, "SESSION_CLOSED", "")
	assertAPIError(t, do(t, h, http.MethodGet, base+"/draft", nil), http.StatusGone, "SESSION_CLOSED", "")
}

// =============================================================================
// Drafts and events
// =============================================================================

func TestU_Router_Draft_RoundTrip(t *testing.T) {
	h := newTestRouter(t)
	base := "/api/v1/sessions/" + createSession(t, h).ID

	requireStatus(t, do(t, h, http.MethodPut, base+"/issuer", dto.SubjectInfo{CommonName: "Draft Root"}), http.StatusOK)
	requireStatus(t, do(t, h, http.MethodPost, base+"/advance", nil), http.StatusOK)

	rec := do(t, h, http.MethodGet, base+"/draft", nil)
	requireStatus(t, rec, http.StatusOK)
	assert.Equal(t, "application/cbor", rec.Header().Get("Content-Type"))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/sessions/draft", bytes.NewReader(rec.Body.Bytes()))
	req.Header.Set("Content-Type", "application/cbor")
	resumed := httptest.NewRecorder()
	h.ServeHTTP(resumed, req)
	requireStatus(t, resumed, http.StatusCreated)

	resp := decode[dto.SessionResponse](t, resumed)
	assert.NotEqual(t, strings.TrimPrefix(base, "/api/v1/sessions/"), resp.ID)
	assert.Equal(t, wizard.StateSubject, resp.Navigation.State)
	assert.Equal(t, "Draft Root", resp.Request.Issuer.CommonName)
	assert.Equal(t, 256, resp.Request.KeySize)

	bad := httptest.NewRequest(http.MethodPost, "/api/v1/sessions/draft", strings.NewReader("garbage"))
	badRec := httptest.NewRecorder()
	h.ServeHTTP(badRec, bad)
	assertAPIError(t, badRec, http.StatusBadRequest, "INVALID_DRAFT", "")
}

func TestU_Router_Events_ClosedSession(t *testing.T) {
	h := newTestRouter(t)
	base := "/api/v1/sessions/" + createSession(t, h).ID
	requireStatus(t, do(t, h, http.MethodPost, base+"/cancel", nil), http.StatusOK)

	rec := do(t, h, http.MethodGet, base+"/events", nil)
	requireStatus(t, rec, http.StatusOK)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "event: navigation")
	assert.Contains(t, rec.Body.String(), `"status":"CANCELLED"`)
}

func TestU_Router_Events_Stream(t *testing.T) {
	h := newTestRouter(t)
	srv := httptest.NewServer(h)
	defer srv.Close()

	base := srv.URL + "/api/v1/sessions/" + createSession(t, h).ID

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	reader := bufio.NewReader(resp.Body)
	readEvent := func() wizard.Navigation {
		t.Helper()
		for {
			line, err := reader.ReadString('\n')
			require.NoError(t, err)
			if data, ok := strings.CutPrefix(line, "data: "); ok {
				var nav wizard.Navigation
				require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(data)), &nav))
				return nav
			}
		}
	}

	assert.Equal(t, wizard.StateIssuer, readEvent().State)

	put, _ := json.Marshal(dto.SubjectInfo{CommonName: "Root"})
	issuerReq, _ := http.NewRequestWithContext(ctx, http.MethodPut, base+"/issuer", bytes.NewReader(put))
	r1, err := http.DefaultClient.Do(issuerReq)
	require.NoError(t, err)
	_ = r1.Body.Close()

	advanceReq, _ := http.NewRequestWithContext(ctx, http.MethodPost, base+"/advance", nil)
	r2, err := http.DefaultClient.Do(advanceReq)
	require.NoError(t, err)
	_ = r2.Body.Close()
	require.Equal(t, http.StatusOK, r2.StatusCode)

	nav := readEvent()
	assert.Equal(t, wizard.StateSubject, nav.State)
	assert.True(t, nav.HasPrevious)
}
