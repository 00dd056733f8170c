// Package service provides business logic for the REST API.
package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"math/big"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/remiblancher/certwizard/internal/api/dto"
	"github.com/remiblancher/certwizard/internal/audit"
	"github.com/remiblancher/certwizard/internal/capability"
	"github.com/remiblancher/certwizard/internal/certbuild"
	"github.com/remiblancher/certwizard/internal/draft"
	"github.com/remiblancher/certwizard/internal/event"
	"github.com/remiblancher/certwizard/internal/keygen"
	"github.com/remiblancher/certwizard/internal/request"
	"github.com/remiblancher/certwizard/internal/validation"
	"github.com/remiblancher/certwizard/internal/wizard"
)

// Service errors.
var (
	ErrSessionNotFound   = errors.New("session not found")
	ErrAlgorithmNotFound = errors.New("algorithm not found")
	ErrInvalidDraft      = errors.New("invalid draft")
	ErrNotIssued         = errors.New("certificate not issued")
)

// session is one wizard plus the collaborators it was created with.
// mu serializes every wizard call.
type session struct {
	id      string
	mu      sync.Mutex
	wiz     *wizard.Wizard
	issuer  *certbuild.Issuer
	bus     *event.Bus[wizard.Navigation]
	touched time.Time
}

// issue forwards to the issuer bound once the key pair exists.
func (s *session) issue(ctx context.Context, req *request.Request) error {
	if s.issuer == nil {
		return &keygen.UnsupportedAlgorithmError{KeyPairAlgorithm: req.KeyPairAlgorithm}
	}
	return s.issuer.Issue(ctx, req)
}

func (s *session) options() []wizard.Option {
	return []wizard.Option{wizard.WithIssuer(wizard.IssuerFunc(s.issue)), wizard.WithNotifier(s.bus)}
}

func (s *session) bind(keys *keygen.KeyPair) {
	s.issuer = certbuild.NewIssuer(keys)
}

func (s *session) response() *dto.SessionResponse {
	return &dto.SessionResponse{
		ID:         s.id,
		Navigation: s.wiz.Navigation(),
		Request:    toRequestInfo(s.wiz.Request()),
	}
}

// SessionService holds the open request sessions.
type SessionService struct {
	registry *capability.Registry
	random   io.Reader
	now      func() time.Time

	mu       sync.RWMutex
	sessions map[string]*session
}

// Option configures a SessionService.
type Option func(*SessionService)

// WithRandom sets the entropy source for keys and serial numbers.
func WithRandom(r io.Reader) Option {
	return func(s *SessionService) { s.random = r }
}

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(s *SessionService) { s.now = now }
}

// NewSessionService creates a SessionService backed by registry.
func NewSessionService(registry *capability.Registry, opts ...Option) *SessionService {
	s := &SessionService{
		registry: registry,
		random:   rand.Reader,
		now:      time.Now,
		sessions: make(map[string]*session),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Registry returns the capability registry.
func (s *SessionService) Registry() *capability.Registry {
	return s.registry
}

// Len returns the number of sessions held, open or closed.
func (s *SessionService) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// =============================================================================
// Algorithms and extensions
// =============================================================================

// Algorithms lists every key-pair algorithm of the registry.
func (s *SessionService) Algorithms(ctx context.Context) *dto.AlgorithmListResponse {
	resp := &dto.AlgorithmListResponse{Algorithms: []dto.AlgorithmInfo{}}
	for _, name := range s.registry.KeyPairAlgorithms() {
		resp.Algorithms = append(resp.Algorithms, s.algorithmInfo(name))
	}
	return resp
}

// Algorithm describes one key-pair algorithm.
func (s *SessionService) Algorithm(ctx context.Context, name string) (*dto.AlgorithmInfo, error) {
	if !s.registry.Knows(name) {
		return nil, fmt.Errorf("%w: %s", ErrAlgorithmNotFound, name)
	}
	info := s.algorithmInfo(name)
	return &info, nil
}

func (s *SessionService) algorithmInfo(name string) dto.AlgorithmInfo {
	sigs := s.registry.SignatureAlgorithmsFor(name)
	if def := s.registry.DefaultSignatureAlgorithm(name); def != "" {
		sigs = append([]string{def}, slices.DeleteFunc(sigs, func(v string) bool { return v == def })...)
	}
	sizes := s.keySizes(name)
	info := dto.AlgorithmInfo{
		KeyPairAlgorithm:    name,
		SignatureAlgorithms: sigs,
		KeySizes:            sizes,
		Generatable:         keygen.Supported(name),
	}
	if len(sizes) > 0 {
		info.DefaultKeySize = sizes[0]
	}
	return info
}

// keySizes returns the registry sizes, falling back to the provider's.
func (s *SessionService) keySizes(algorithm string) []int {
	if sizes := s.registry.KeySizesFor(algorithm); len(sizes) > 0 {
		return sizes
	}
	return keygen.DefaultKeySizes(algorithm)
}

// ValidateExtension checks an extension row without a session.
func (s *SessionService) ValidateExtension(ctx context.Context, req *dto.ExtensionValidateRequest) (*dto.ExtensionValidateResponse, error) {
	entry := fromExtensionInfo(dto.ExtensionInfo{ID: req.ID, Value: req.Value})
	if err := entry.Validate(); err != nil {
		return nil, err
	}
	der, err := entry.MarshalDER()
	if err != nil {
		return nil, err
	}
	return &dto.ExtensionValidateResponse{Valid: true, DER: hex.EncodeToString(der)}, nil
}

// =============================================================================
// Session lifecycle
// =============================================================================

// Create generates a key pair and opens a session on the issuer step.
func (s *SessionService) Create(ctx context.Context, req *dto.SessionCreateRequest) (*dto.SessionResponse, error) {
	kpa := strings.TrimSpace(req.KeyPairAlgorithm)
	if !s.registry.Knows(kpa) {
		return nil, &keygen.UnsupportedAlgorithmError{KeyPairAlgorithm: kpa}
	}
	keySize := req.KeySize
	if keySize == 0 {
		if sizes := s.keySizes(kpa); len(sizes) > 0 {
			keySize = sizes[0]
		}
	} else if sizes := s.registry.KeySizesFor(kpa); len(sizes) > 0 && !slices.Contains(sizes, keySize) {
		return nil, &keygen.UnsupportedAlgorithmError{KeyPairAlgorithm: kpa, KeySize: keySize}
	}

	keys, err := keygen.Generate(s.random, kpa, keySize)
	if err != nil {
		return nil, err
	}
	priv, pub, err := keys.Info()
	if err != nil {
		return nil, err
	}

	r, err := request.New(kpa, s.registry.DefaultSignatureAlgorithm(kpa),
		request.WithClock(s.now), request.WithRandom(s.random))
	if err != nil {
		return nil, err
	}
	r.PrivateKey, r.PublicKey = priv, pub

	sess, err := s.newSession()
	if err != nil {
		return nil, err
	}
	if sess.wiz, err = wizard.New(r, s.registry, sess.options()...); err != nil {
		return nil, err
	}
	sess.bind(keys)
	if req.SignatureAlgorithm != "" {
		if err := sess.wiz.SetSignatureAlgorithm(req.SignatureAlgorithm); err != nil {
			return nil, err
		}
	}

	return s.register(ctx, sess)
}

// ResumeDraft opens a session from a saved draft. Drafts carry no key
// material, so a fresh key pair of the recorded algorithm and size is
// generated.
func (s *SessionService) ResumeDraft(ctx context.Context, data []byte) (*dto.SessionResponse, error) {
	sess, err := s.newSession()
	if err != nil {
		return nil, err
	}
	w, err := draft.Decode(data, s.registry, sess.options()...)
	if err != nil {
		if _, ok := validation.KindOf(err); ok {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrInvalidDraft, err)
	}

	req := w.Request()
	keySize := 0
	if req.PublicKey != nil {
		keySize = req.PublicKey.KeySize
	}
	keys, err := keygen.Generate(s.random, req.KeyPairAlgorithm, keySize)
	if err != nil {
		return nil, err
	}
	priv, pub, err := keys.Info()
	if err != nil {
		return nil, err
	}
	if err := w.SetKeys(priv, pub); err != nil {
		return nil, err
	}
	sess.wiz = w
	sess.bind(keys)
	return s.register(ctx, sess)
}

func (s *SessionService) newSession() (*session, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session id: %w", err)
	}
	return &session{
		id:      id.String(),
		bus:     event.NewBus[wizard.Navigation](),
		touched: s.now(),
	}, nil
}

func (s *SessionService) register(ctx context.Context, sess *session) (*dto.SessionResponse, error) {
	req := sess.wiz.Request()
	if err := audit.LogRequestStarted(sess.id, req.KeyPairAlgorithm, req.SignatureAlgorithm); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.sessions[sess.id] = sess
	s.mu.Unlock()

	zerolog.Ctx(ctx).Info().
		Str("session", sess.id).
		Str("keypair_algorithm", req.KeyPairAlgorithm).
		Str("state", sess.wiz.State().String()).
		Msg("request session started")
	return sess.response(), nil
}

func (s *SessionService) lookup(id string) (*session, error) {
	s.mu.RLock()
	sess, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return sess, nil
}

// update runs fn on the session under its lock and returns the new view.
func (s *SessionService) update(id string, fn func(*session) error) (*dto.SessionResponse, error) {
	sess, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()

	sess.touched = s.now()
	if err := fn(sess); err != nil {
		return nil, err
	}
	return sess.response(), nil
}

// Get returns the session view.
func (s *SessionService) Get(ctx context.Context, id string) (*dto.SessionResponse, error) {
	return s.update(id, func(*session) error { return nil })
}

// SetIssuer replaces the issuer name.
func (s *SessionService) SetIssuer(ctx context.Context, id string, name dto.SubjectInfo) (*dto.SessionResponse, error) {
	return s.update(id, func(sess *session) error {
		return sess.wiz.SetIssuer(fromSubjectInfo(name))
	})
}

// SetSubject replaces the subject name.
func (s *SessionService) SetSubject(ctx context.Context, id string, name dto.SubjectInfo) (*dto.SessionResponse, error) {
	return s.update(id, func(sess *session) error {
		return sess.wiz.SetSubject(fromSubjectInfo(name))
	})
}

// SetDates applies the dates step fields present in req. Inputs are
// parsed before anything is applied.
func (s *SessionService) SetDates(ctx context.Context, id string, req *dto.DatesRequest) (*dto.SessionResponse, error) {
	var serial *big.Int
	if req.Serial != "" {
		var err error
		if serial, err = request.ParseSerial(req.Serial); err != nil {
			return nil, err
		}
	}
	notBefore, err := request.ParseTime("not_before", req.NotBefore)
	if err != nil {
		return nil, err
	}
	notAfter, err := request.ParseTime("not_after", req.NotAfter)
	if err != nil {
		return nil, err
	}

	return s.update(id, func(sess *session) error {
		w := sess.wiz
		if req.Version != nil {
			if err := w.SetVersion(*req.Version); err != nil {
				return err
			}
		}
		if req.SignatureAlgorithm != "" {
			if err := w.SetSignatureAlgorithm(req.SignatureAlgorithm); err != nil {
				return err
			}
		}
		switch {
		case serial != nil:
			if err := w.SetSerial(serial); err != nil {
				return err
			}
		case req.GenerateSerial:
			if _, err := w.GenerateSerial(s.random); err != nil {
				return err
			}
		}
		if !notBefore.IsZero() || !notAfter.IsZero() {
			v := w.Request().Validity
			if !notBefore.IsZero() {
				v.NotBefore = notBefore
			}
			if !notAfter.IsZero() {
				v.NotAfter = notAfter
			}
			return w.SetValidity(v)
		}
		return nil
	})
}

// AddExtension appends an extension row.
func (s *SessionService) AddExtension(ctx context.Context, id string, ext dto.ExtensionInfo) (*dto.SessionResponse, error) {
	return s.update(id, func(sess *session) error {
		return sess.wiz.AddExtension(fromExtensionInfo(ext))
	})
}

// EditExtension replaces the extension row at index.
func (s *SessionService) EditExtension(ctx context.Context, id string, index int, ext dto.ExtensionInfo) (*dto.SessionResponse, error) {
	return s.update(id, func(sess *session) error {
		return sess.wiz.EditExtension(index, fromExtensionInfo(ext))
	})
}

// RemoveExtension deletes the extension row at index.
func (s *SessionService) RemoveExtension(ctx context.Context, id string, index int) (*dto.SessionResponse, error) {
	return s.update(id, func(sess *session) error {
		return sess.wiz.RemoveExtension(index)
	})
}

// Advance moves the session to its next step.
func (s *SessionService) Advance(ctx context.Context, id string) (*dto.SessionResponse, error) {
	return s.update(id, func(sess *session) error { return sess.wiz.Advance() })
}

// Retreat moves the session to its previous step.
func (s *SessionService) Retreat(ctx context.Context, id string) (*dto.SessionResponse, error) {
	return s.update(id, func(sess *session) error { return sess.wiz.Retreat() })
}

// Cancel abandons the session. The session stays addressable as closed
// until it is swept.
func (s *SessionService) Cancel(ctx context.Context, id string) (*dto.SessionResponse, error) {
	return s.update(id, func(sess *session) error {
		state := sess.wiz.State().String()
		if err := sess.wiz.Cancel(); err != nil {
			return err
		}
		zerolog.Ctx(ctx).Info().Str("session", id).Str("state", state).Msg("request session cancelled")
		return audit.LogRequestCancelled(id, state)
	})
}

// Finish validates the request and issues the certificate.
func (s *SessionService) Finish(ctx context.Context, id string) (*dto.CertificateResponse, error) {
	var resp *dto.CertificateResponse
	_, err := s.update(id, func(sess *session) error {
		req := sess.wiz.Request()
		if req == nil || sess.wiz.Status() != wizard.StatusActive {
			return sess.wiz.Finish(ctx)
		}
		summary := summarize(id, req)

		finishErr := sess.wiz.Finish(ctx)
		if finishErr != nil {
			if err := audit.LogRequestFinished(summary, finishErr); err != nil {
				return err
			}
			if _, isValidation := validation.KindOf(finishErr); !isValidation {
				if err := audit.LogCertIssued(summary, finishErr); err != nil {
					return err
				}
			}
			zerolog.Ctx(ctx).Warn().Err(finishErr).Str("session", id).Msg("finish rejected")
			return finishErr
		}

		result := sess.issuer.Result()
		if result == nil {
			return ErrNotIssued
		}
		resp = certificateResponse(id, result)

		// The session is closed now; an audit failure must not lose the certificate.
		if err := audit.LogRequestFinished(summary, nil); err != nil {
			zerolog.Ctx(ctx).Error().Err(err).Str("session", id).Msg("failed to audit finished request")
		}
		if err := audit.LogCertIssued(summary, nil); err != nil {
			zerolog.Ctx(ctx).Error().Err(err).Str("session", id).Msg("failed to audit issued certificate")
		}
		zerolog.Ctx(ctx).Info().Str("session", id).Str("serial", resp.Serial).Msg("certificate issued")
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func certificateResponse(id string, result *certbuild.Result) *dto.CertificateResponse {
	info := result.Info
	fp := sha256.Sum256(result.DER)
	return &dto.CertificateResponse{
		SessionID:          id,
		Serial:             serialHex(info.Serial),
		Subject:            toSubjectInfo(info.Subject),
		Issuer:             toSubjectInfo(info.Issuer),
		SignatureAlgorithm: info.SignatureAlgorithm,
		Version:            info.Version,
		Validity:           toValidityInfo(info.Validity),
		Fingerprint:        hex.EncodeToString(fp[:]),
		Certificate:        string(certbuild.EncodePEM(result.DER)),
	}
}

// =============================================================================
// Events and drafts
// =============================================================================

// Subscribe registers fn for navigation changes of a session and returns
// the current snapshot. The returned function removes the subscription.
func (s *SessionService) Subscribe(id string, fn func(wizard.Navigation)) (wizard.Navigation, func(), error) {
	sess, err := s.lookup(id)
	if err != nil {
		return wizard.Navigation{}, nil, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()

	sub := sess.bus.Subscribe(fn)
	return sess.wiz.Navigation(), func() { sess.bus.Unsubscribe(sub) }, nil
}

// SaveDraft serializes an open session.
func (s *SessionService) SaveDraft(ctx context.Context, id string) ([]byte, error) {
	var data []byte
	_, err := s.update(id, func(sess *session) error {
		var err error
		data, err = draft.Encode(sess.wiz)
		return err
	})
	return data, err
}

// =============================================================================
// Housekeeping
// =============================================================================

// Sweep removes sessions untouched for longer than idle and returns how
// many were removed. Removed open sessions are logged as cancelled.
func (s *SessionService) Sweep(ctx context.Context, idle time.Duration) int {
	cutoff := s.now().Add(-idle)

	s.mu.Lock()
	var stale []*session
	for id, sess := range s.sessions {
		sess.mu.Lock()
		if sess.touched.Before(cutoff) {
			stale = append(stale, sess)
			delete(s.sessions, id)
		}
		sess.mu.Unlock()
	}
	s.mu.Unlock()

	for _, sess := range stale {
		sess.mu.Lock()
		if sess.wiz.Status() == wizard.StatusActive {
			state := sess.wiz.State().String()
			if err := sess.wiz.Cancel(); err != nil {
				zerolog.Ctx(ctx).Warn().Err(err).Str("session", sess.id).Msg("failed to cancel idle session")
			} else if err := audit.LogRequestCancelled(sess.id, state); err != nil {
				zerolog.Ctx(ctx).Error().Err(err).Str("session", sess.id).Msg("failed to audit cancelled session")
			}
		}
		sess.mu.Unlock()
	}
	return len(stale)
}

// Run sweeps idle sessions every interval until ctx is done.
func (s *SessionService) Run(ctx context.Context, interval, idle time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.Sweep(ctx, idle); n > 0 {
				zerolog.Ctx(ctx).Info().Int("sessions", n).Msg("idle sessions removed")
			}
		}
	}
}
