package wizard

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/big"
	"slices"

	"github.com/remiblancher/certwizard/internal/capability"
	"github.com/remiblancher/certwizard/internal/extension"
	"github.com/remiblancher/certwizard/internal/request"
	"github.com/remiblancher/certwizard/internal/validation"
)

// Sentinel errors for wizard navigation.
var (
	// ErrNoNextState indicates a forward move from a step without a successor.
	ErrNoNextState = errors.New("no next wizard state")

	// ErrNoPreviousState indicates a backward move from the first step.
	ErrNoPreviousState = errors.New("no previous wizard state")

	// ErrSessionClosed indicates an operation on a finished or cancelled wizard.
	ErrSessionClosed = errors.New("wizard session is closed")
)

// Issuer receives the validated request when the wizard finishes.
type Issuer interface {
	Issue(ctx context.Context, req *request.Request) error
}

// IssuerFunc adapts a function to the Issuer interface.
type IssuerFunc func(ctx context.Context, req *request.Request) error

// Issue calls f.
func (f IssuerFunc) Issue(ctx context.Context, req *request.Request) error { return f(ctx, req) }

// Notifier receives navigation snapshots. *event.Bus[Navigation] satisfies it.
type Notifier interface {
	Post(Navigation)
}

// Option configures a Wizard.
type Option func(*Wizard)

// WithIssuer sets the collaborator called by Finish.
func WithIssuer(i Issuer) Option {
	return func(w *Wizard) { w.issuer = i }
}

// WithNotifier sets the navigation listener.
func WithNotifier(n Notifier) Option {
	return func(w *Wizard) { w.notifier = n }
}

// Wizard drives one certificate request through the four steps.
// It is not safe for concurrent use.
type Wizard struct {
	req      *request.Request
	registry *capability.Registry
	state    State
	status   Status
	issuer   Issuer
	notifier Notifier
	last     Navigation
}

// New starts a wizard on the issuer step.
func New(req *request.Request, registry *capability.Registry, opts ...Option) (*Wizard, error) {
	return Restore(req, registry, StateIssuer, opts...)
}

// Restore resumes a wizard at the given step. A version 1 request cannot
// sit on the extensions step and resumes on the dates step instead.
func Restore(req *request.Request, registry *capability.Registry, state State, opts ...Option) (*Wizard, error) {
	if req == nil {
		return nil, fmt.Errorf("wizard: request is required")
	}
	if registry == nil {
		return nil, fmt.Errorf("wizard: capability registry is required")
	}
	if state < StateIssuer || state > StateExtensions {
		return nil, fmt.Errorf("wizard: invalid state %s", state)
	}
	if err := request.CheckVersion(req.Version); err != nil {
		return nil, err
	}
	if state == StateExtensions && req.Version != request.Version3 {
		state = StateDates
	}

	w := &Wizard{req: req, registry: registry, state: state}
	for _, opt := range opts {
		opt(w)
	}
	w.last = w.Navigation()
	return w, nil
}

// State returns the current step.
func (w *Wizard) State() State { return w.state }

// Status returns the session lifecycle status.
func (w *Wizard) Status() Status { return w.status }

// Registry returns the capability registry the wizard checks against.
func (w *Wizard) Registry() *capability.Registry { return w.registry }

// HasNext reports whether a forward step exists from the current step.
// It does not evaluate the step's guard.
func (w *Wizard) HasNext() bool {
	if w.status != StatusActive {
		return false
	}
	_, ok := transitions[w.state].next(w.req)
	return ok
}

// HasPrevious reports whether a backward step exists.
func (w *Wizard) HasPrevious() bool {
	if w.status != StatusActive {
		return false
	}
	_, ok := transitions[w.state].previous()
	return ok
}

// Navigation returns the current navigation snapshot.
func (w *Wizard) Navigation() Navigation {
	hasNext := w.HasNext()
	return Navigation{
		State:       w.state,
		Status:      w.status,
		HasNext:     hasNext,
		HasPrevious: w.HasPrevious(),
		First:       w.state == StateIssuer,
		Last:        !hasNext,
	}
}

// Request returns a copy of the request being edited.
// It returns nil once the wizard has been cancelled.
func (w *Wizard) Request() *request.Request {
	if w.req == nil {
		return nil
	}
	return w.req.Clone()
}

// Advance moves to the next step after checking the current step's guard.
// On failure the step and the request are left unchanged.
func (w *Wizard) Advance() error {
	if err := w.active(); err != nil {
		return err
	}
	t := transitions[w.state]
	if err := t.guard(w.req); err != nil {
		return err
	}
	next, ok := t.next(w.req)
	if !ok {
		return fmt.Errorf("%w after %s", ErrNoNextState, w.state)
	}
	w.state = next
	w.notify()
	return nil
}

// Retreat moves to the previous step. Backward moves are never guarded.
func (w *Wizard) Retreat() error {
	if err := w.active(); err != nil {
		return err
	}
	prev, ok := transitions[w.state].previous()
	if !ok {
		return fmt.Errorf("%w before %s", ErrNoPreviousState, w.state)
	}
	w.state = prev
	w.notify()
	return nil
}

// SetVersion switches between version 1 and version 3 certificates.
// Switching to version 1 on the extensions step moves back to the dates
// step; entered extensions are kept but Finish refuses them.
func (w *Wizard) SetVersion(v int) error {
	if err := w.active(); err != nil {
		return err
	}
	if err := request.CheckVersion(v); err != nil {
		return err
	}
	w.req.Version = v
	if v != request.Version3 && w.state == StateExtensions {
		w.state = StateDates
	}
	w.notify()
	return nil
}

// SetIssuer replaces the issuer name. The common name is checked on Advance.
func (w *Wizard) SetIssuer(dn request.DistinguishedName) error {
	if err := w.active(); err != nil {
		return err
	}
	w.req.Issuer = dn
	return nil
}

// SetSubject replaces the subject name. The common name is checked on Advance.
func (w *Wizard) SetSubject(dn request.DistinguishedName) error {
	if err := w.active(); err != nil {
		return err
	}
	w.req.Subject = dn
	return nil
}

// SetSerial replaces the serial number.
func (w *Wizard) SetSerial(serial *big.Int) error {
	if err := w.active(); err != nil {
		return err
	}
	if err := request.CheckSerial(serial); err != nil {
		return err
	}
	w.req.Serial = new(big.Int).Set(serial)
	return nil
}

// GenerateSerial replaces the serial number with a random one.
func (w *Wizard) GenerateSerial(random io.Reader) (*big.Int, error) {
	if err := w.active(); err != nil {
		return nil, err
	}
	serial, err := request.RandomSerial(random)
	if err != nil {
		return nil, err
	}
	w.req.Serial = serial
	return new(big.Int).Set(serial), nil
}

// SetValidity replaces the validity window.
func (w *Wizard) SetValidity(v request.Validity) error {
	if err := w.active(); err != nil {
		return err
	}
	if err := v.Check(); err != nil {
		return err
	}
	w.req.Validity = v
	return nil
}

// SetSignatureAlgorithm selects the signature algorithm.
func (w *Wizard) SetSignatureAlgorithm(name string) error {
	if err := w.active(); err != nil {
		return err
	}
	if err := w.checkSignatureAlgorithm(name); err != nil {
		return err
	}
	w.req.SignatureAlgorithm = name
	return nil
}

// SetKeys replaces the key descriptors, as when a saved request is resumed
// with a newly generated key pair. The public key must match the request's
// key-pair algorithm.
func (w *Wizard) SetKeys(priv, pub *request.KeyInfo) error {
	if err := w.active(); err != nil {
		return err
	}
	if pub == nil || pub.Algorithm != w.req.KeyPairAlgorithm {
		return fmt.Errorf("public key does not match key-pair algorithm %s", w.req.KeyPairAlgorithm)
	}
	w.req.PrivateKey, w.req.PublicKey = priv, pub
	return nil
}

// Extensions returns a copy of the extension rows.
func (w *Wizard) Extensions() []extension.Entry {
	if w.req == nil {
		return nil
	}
	return slices.Clone(w.req.Extensions)
}

// AddExtension validates e and appends it.
func (w *Wizard) AddExtension(e extension.Entry) error {
	if err := w.active(); err != nil {
		return err
	}
	if err := w.checkExtensionsAllowed(e.ID); err != nil {
		return err
	}
	if err := e.Validate(); err != nil {
		return err
	}
	w.req.Extensions = append(w.req.Extensions, e)
	return nil
}

// EditExtension validates e and replaces the row at index i.
func (w *Wizard) EditExtension(i int, e extension.Entry) error {
	if err := w.active(); err != nil {
		return err
	}
	if err := w.checkIndex(i); err != nil {
		return err
	}
	if err := w.checkExtensionsAllowed(e.ID); err != nil {
		return err
	}
	if err := e.Validate(); err != nil {
		return err
	}
	w.req.Extensions[i] = e
	return nil
}

// RemoveExtension deletes the row at index i.
func (w *Wizard) RemoveExtension(i int) error {
	if err := w.active(); err != nil {
		return err
	}
	if err := w.checkIndex(i); err != nil {
		return err
	}
	w.req.Extensions = slices.Delete(w.req.Extensions, i, i+1)
	return nil
}

// Cancel discards the request and closes the session.
func (w *Wizard) Cancel() error {
	if err := w.active(); err != nil {
		return err
	}
	w.req = nil
	w.status = StatusCancelled
	w.notify()
	return nil
}

// Finish validates the complete request and hands a copy to the Issuer.
// It may be called from any step. If validation or issuance fails the
// session stays open.
func (w *Wizard) Finish(ctx context.Context) error {
	if err := w.active(); err != nil {
		return err
	}
	if err := w.req.Validate(); err != nil {
		return err
	}
	if err := w.checkSignatureAlgorithm(w.req.SignatureAlgorithm); err != nil {
		return err
	}
	if w.issuer != nil {
		if err := w.issuer.Issue(ctx, w.req.Clone()); err != nil {
			return fmt.Errorf("failed to issue certificate: %w", err)
		}
	}
	w.status = StatusFinished
	w.notify()
	return nil
}

func (w *Wizard) active() error {
	if w.status != StatusActive {
		return fmt.Errorf("%w (%s)", ErrSessionClosed, w.status)
	}
	return nil
}

// checkExtensionsAllowed rejects extension rows on a version 1 request.
// Rows can still be removed.
func (w *Wizard) checkExtensionsAllowed(id string) error {
	if w.req.Version != request.Version3 {
		return validation.New(validation.InconsistentVersionExtensions, "extensions", id,
			"extensions require a version 3 certificate")
	}
	return nil
}

func (w *Wizard) checkIndex(i int) error {
	if i < 0 || i >= len(w.req.Extensions) {
		return validation.New(validation.InvalidExtensionIndex, "extensions", fmt.Sprint(i),
			fmt.Sprintf("index out of range [0,%d)", len(w.req.Extensions)))
	}
	return nil
}

// checkSignatureAlgorithm accepts any algorithm for key-pair algorithms the
// registry does not know.
func (w *Wizard) checkSignatureAlgorithm(name string) error {
	kpa := w.req.KeyPairAlgorithm
	if !w.registry.Knows(kpa) || w.registry.Supports(kpa, name) {
		return nil
	}
	return validation.New(validation.IncompatibleSignatureAlgorithm, "signatureAlgorithm", name,
		fmt.Sprintf("not available for %s", kpa))
}

// notify posts the navigation snapshot if it differs from the last one posted.
func (w *Wizard) notify() {
	nav := w.Navigation()
	if nav == w.last {
		return
	}
	w.last = nav
	if w.notifier != nil {
		w.notifier.Post(nav)
	}
}
