package service

import (
	"bytes"
	"context"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/remiblancher/certwizard/internal/api/dto"
	"github.com/remiblancher/certwizard/internal/audit"
	"github.com/remiblancher/certwizard/internal/capability"
	"github.com/remiblancher/certwizard/internal/wizard"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestService(t *testing.T) (*SessionService, *fakeClock) {
	t.Helper()
	reg := capability.Build([]capability.SignatureEntry{
		{KeyPairAlgorithm: "EC", SignatureAlgorithm: "SHA256withECDSA"},
		{KeyPairAlgorithm: "Ed25519", SignatureAlgorithm: "Ed25519"},
	}, nil)
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	return NewSessionService(reg, WithClock(clock.Now)), clock
}

func initAudit(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	require.NoError(t, audit.InitFile(path))
	t.Cleanup(func() { _ = audit.Close() })
	return path
}

// brokenAudit fails every write, like a full or read-only audit volume.
type brokenAudit struct{}

func (brokenAudit) Write(*audit.Event) error { return errors.New("audit volume is read-only") }
func (brokenAudit) Close() error             { return nil }
func (brokenAudit) LastHash() string         { return audit.GenesisHash }

func breakAudit(t *testing.T) {
	t.Helper()
	require.NoError(t, audit.Init(brokenAudit{}))
	t.Cleanup(func() { _ = audit.Close() })
}

func parsePEM(t *testing.T, data string) *x509.Certificate {
	t.Helper()
	block, _ := pem.Decode([]byte(data))
	require.NotNil(t, block)
	cert, err := x509.ParseCertificate(block.Bytes)
	require.NoError(t, err)
	return cert
}

func readyToFinish(t *testing.T, s *SessionService, id string) {
	t.Helper()
	ctx := context.Background()
	_, err := s.SetIssuer(ctx, id, dto.SubjectInfo{CommonName: "Root"})
	require.NoError(t, err)
	_, err = s.SetSubject(ctx, id, dto.SubjectInfo{CommonName: "Leaf"})
	require.NoError(t, err)
}

func TestU_SessionService_Create_FallbackKeySize(t *testing.T) {
	s, _ := newTestService(t)

	resp, err := s.Create(context.Background(), &dto.SessionCreateRequest{KeyPairAlgorithm: "EC"})
	require.NoError(t, err)
	assert.Equal(t, 256, resp.Request.KeySize, "registry has no sizes, provider default expected")
	assert.Equal(t, "2026-03-01T12:00:00Z", resp.Request.Validity.NotBefore)
	assert.Equal(t, "2027-03-01T12:00:00Z", resp.Request.Validity.NotAfter)
	assert.Equal(t, 1, s.Len())
}

func TestU_SessionService_Finish_Audit(t *testing.T) {
	logPath := initAudit(t)
	s, _ := newTestService(t)
	ctx := context.Background()

	created, err := s.Create(ctx, &dto.SessionCreateRequest{KeyPairAlgorithm: "Ed25519"})
	require.NoError(t, err)

	// Rejected finish: no names yet.
	_, err = s.Finish(ctx, created.ID)
	require.Error(t, err)

	readyToFinish(t, s, created.ID)
	cert, err := s.Finish(ctx, created.ID)
	require.NoError(t, err)
	assert.Contains(t, cert.Certificate, "BEGIN CERTIFICATE")
	assert.Equal(t, "Ed25519", cert.SignatureAlgorithm)

	events, err := audit.Tail(logPath, 0)
	require.NoError(t, err)
	var types []audit.EventType
	for _, e := range events {
		types = append(types, e.EventType)
	}
	assert.Equal(t, []audit.EventType{
		audit.EventRequestStarted,
		audit.EventRequestFinished,
		audit.EventRequestFinished,
		audit.EventCertIssued,
	}, types)
	assert.Equal(t, audit.ResultFailure, events[1].Result)
	assert.Equal(t, audit.ResultSuccess, events[3].Result)
	assert.Equal(t, cert.Serial, events[3].Object.Serial)

	count, err := audit.VerifyChain(logPath)
	require.NoError(t, err)
	assert.Equal(t, 4, count)
}

func TestU_SessionService_Subscribe(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()
	created, err := s.Create(ctx, &dto.SessionCreateRequest{KeyPairAlgorithm: "EC"})
	require.NoError(t, err)

	var got []wizard.Navigation
	current, unsubscribe, err := s.Subscribe(created.ID, func(n wizard.Navigation) { got = append(got, n) })
	require.NoError(t, err)
	assert.Equal(t, wizard.StateIssuer, current.State)

	readyToFinish(t, s, created.ID)
	_, err = s.Advance(ctx, created.ID)
	require.NoError(t, err)
	unsubscribe()
	_, err = s.Advance(ctx, created.ID)
	require.NoError(t, err)

	require.Len(t, got, 1)
	assert.Equal(t, wizard.StateSubject, got[0].State)

	_, _, err = s.Subscribe("missing", func(wizard.Navigation) {})
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestU_SessionService_Sweep(t *testing.T) {
	logPath := initAudit(t)
	s, clock := newTestService(t)
	ctx := context.Background()

	stale, err := s.Create(ctx, &dto.SessionCreateRequest{KeyPairAlgorithm: "EC"})
	require.NoError(t, err)
	clock.Advance(20 * time.Minute)
	fresh, err := s.Create(ctx, &dto.SessionCreateRequest{KeyPairAlgorithm: "EC"})
	require.NoError(t, err)
	clock.Advance(15 * time.Minute)

	assert.Equal(t, 1, s.Sweep(ctx, 30*time.Minute))
	assert.Equal(t, 1, s.Len())

	_, err = s.Get(ctx, stale.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = s.Get(ctx, fresh.ID)
	assert.NoError(t, err)

	events, err := audit.Tail(logPath, 1)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, audit.EventRequestCancelled, events[0].EventType)
	assert.Equal(t, stale.ID, events[0].Object.ID)
}

func TestU_SessionService_Sweep_AuditFailureLogged(t *testing.T) {
	s, clock := newTestService(t)
	var logs bytes.Buffer
	ctx := zerolog.New(&logs).WithContext(context.Background())

	_, err := s.Create(ctx, &dto.SessionCreateRequest{KeyPairAlgorithm: "EC"})
	require.NoError(t, err)
	clock.Advance(time.Hour)
	breakAudit(t)

	assert.Equal(t, 1, s.Sweep(ctx, 30*time.Minute))
	assert.Equal(t, 0, s.Len())
	assert.Contains(t, logs.String(), "failed to audit cancelled session")
	assert.Contains(t, logs.String(), "audit volume is read-only")
}

func TestU_SessionService_Finish_KnownOIDFreeText(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()

	created, err := s.Create(ctx, &dto.SessionCreateRequest{KeyPairAlgorithm: "EC"})
	require.NoError(t, err)
	readyToFinish(t, s, created.ID)
	_, err = s.AddExtension(ctx, created.ID, dto.ExtensionInfo{ID: "2.5.29.15", Critical: true, Value: "hello"})
	require.NoError(t, err)

	cert, err := s.Finish(ctx, created.ID)
	require.NoError(t, err)
	assert.Contains(t, cert.Certificate, "BEGIN CERTIFICATE")
	assert.Equal(t, "Leaf", cert.Subject.CommonName)
	assert.Equal(t, "Root", cert.Issuer.CommonName)
	assert.Equal(t, "SHA256withECDSA", cert.SignatureAlgorithm)
	assert.Equal(t, 3, cert.Version)
	assert.NotEmpty(t, cert.Serial)
	assert.NotEmpty(t, cert.Fingerprint)
}

func TestU_SessionService_Finish_AuditFailureKeepsCertificate(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()

	created, err := s.Create(ctx, &dto.SessionCreateRequest{KeyPairAlgorithm: "Ed25519"})
	require.NoError(t, err)
	readyToFinish(t, s, created.ID)
	breakAudit(t)

	cert, err := s.Finish(ctx, created.ID)
	require.NoError(t, err, "a signed certificate must be returned even when auditing fails")
	assert.Equal(t, "Leaf", parsePEM(t, cert.Certificate).Subject.CommonName)
}

func TestU_SessionService_Finish_AuditFailureBeforeIssuance(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()

	created, err := s.Create(ctx, &dto.SessionCreateRequest{KeyPairAlgorithm: "Ed25519"})
	require.NoError(t, err)
	breakAudit(t)

	// No names yet: the rejection cannot be audited, so the call fails and the session stays open.
	_, err = s.Finish(ctx, created.ID)
	require.Error(t, err)
	got, err := s.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, wizard.StatusActive, got.Navigation.Status)
}

func TestU_SessionService_ResumeDraft_NewKeys(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()

	created, err := s.Create(ctx, &dto.SessionCreateRequest{KeyPairAlgorithm: "EC"})
	require.NoError(t, err)
	original := s.sessions[created.ID].wiz.Request().PublicKey
	require.NotNil(t, original)

	data, err := s.SaveDraft(ctx, created.ID)
	require.NoError(t, err)
	resumed, err := s.ResumeDraft(ctx, data)
	require.NoError(t, err)

	req := s.sessions[resumed.ID].wiz.Request()
	require.NotNil(t, req.PrivateKey, "resumed request must describe the new private key")
	require.NotNil(t, req.PublicKey)
	assert.NotEmpty(t, req.PrivateKey.Encoded)
	assert.NotEmpty(t, req.PublicKey.Encoded)
	assert.Equal(t, "EC", req.PublicKey.Algorithm)
	assert.NotEqual(t, original.Encoded, req.PublicKey.Encoded, "a fresh key pair is expected")

	readyToFinish(t, s, resumed.ID)
	cert, err := s.Finish(ctx, resumed.ID)
	require.NoError(t, err)
	assert.Equal(t, req.PublicKey.Encoded, parsePEM(t, cert.Certificate).RawSubjectPublicKeyInfo,
		"certificate must carry the key described by the resumed request")
}
