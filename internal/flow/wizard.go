package flow

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/BTreeMap/ClinicIntake/internal/models"
	"github.com/BTreeMap/ClinicIntake/internal/store"
	"github.com/google/uuid"
)

// CodeIssuer sends a verification code to a phone number and/or email.
type CodeIssuer interface {
	SendCode(ctx context.Context, phone, email string) error
}

// CodeVerifier checks a code previously sent by a CodeIssuer.
type CodeVerifier interface {
	VerifyCode(ctx context.Context, code string) error
}

// Submitter posts completed answers. Repeating a call with the same
// idempotency key must not create a second submission.
type Submitter interface {
	SubmitForm(ctx context.Context, answers models.Answers, idempotencyKey string) (id string, err error)
}

// Opts holds configuration options for a Wizard.
type Opts struct {
	Steps     []Step
	Storage   store.LocalStorage
	Issuer    CodeIssuer
	Verifier  CodeVerifier
	Submitter Submitter
}

// Option defines a configuration option for a Wizard.
type Option func(*Opts)

// WithSteps replaces the default step catalog.
func WithSteps(steps []Step) Option {
	return func(o *Opts) { o.Steps = steps }
}

// WithStorage persists answers to storage.
func WithStorage(s store.LocalStorage) Option {
	return func(o *Opts) { o.Storage = s }
}

// WithCodeIssuer sets the collaborator called when leaving the contact step.
func WithCodeIssuer(c CodeIssuer) Option {
	return func(o *Opts) { o.Issuer = c }
}

// WithCodeVerifier sets the collaborator called when leaving the verify step.
func WithCodeVerifier(c CodeVerifier) Option {
	return func(o *Opts) { o.Verifier = c }
}

// WithSubmitter sets the collaborator called when leaving the schedule step.
func WithSubmitter(s Submitter) Option {
	return func(o *Opts) { o.Submitter = s }
}

// Wizard drives one intake session: answers, navigation, and the network
// gates between steps. Only one gated call runs at a time; overlapping calls
// get ErrBusy.
type Wizard struct {
	steps     []Step
	answers   *AnswerStore
	issuer    CodeIssuer
	verifier  CodeVerifier
	submitter Submitter

	busy atomic.Bool

	mu           sync.Mutex
	state        State
	verified     bool
	codeSentTo   string
	idemKey      string
	submissionID string
}

// New creates a Wizard positioned on the first step, with answers hydrated
// from storage when one is configured.
func New(opts ...Option) *Wizard {
	cfg := Opts{Steps: Steps}
	for _, opt := range opts {
		opt(&cfg)
	}
	w := &Wizard{
		steps:     cfg.Steps,
		answers:   NewAnswerStore(cfg.Storage),
		issuer:    cfg.Issuer,
		verifier:  cfg.Verifier,
		submitter: cfg.Submitter,
		state:     NewState(),
		idemKey:   newIdempotencyKey(),
	}
	slog.Debug("flow.New", "steps", len(w.steps), "storage_set", cfg.Storage != nil)
	return w
}

func newIdempotencyKey() string {
	if id, err := uuid.NewV7(); err == nil {
		return id.String()
	}
	return uuid.NewString()
}

// Answers returns a copy of the current answers.
func (w *Wizard) Answers() models.Answers { return w.answers.Answers() }

// Update merges partial into the answers and persists them.
func (w *Wizard) Update(partial models.Answers) { w.answers.Update(partial) }

// PersistenceDegraded reports whether saved progress could not be read or written.
func (w *Wizard) PersistenceDegraded() bool { return w.answers.Degraded() }

// State returns a copy of the navigation history.
func (w *Wizard) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	h := make([]int, len(w.state.History))
	copy(h, w.state.History)
	return State{History: h}
}

// ActiveSteps recomputes the active list from the current answers.
func (w *Wizard) ActiveSteps() []Step {
	return ActiveSteps(w.steps, w.answers.Answers())
}

// Current resolves the step on top of history.
func (w *Wizard) Current() (Step, error) {
	return Current(w.steps, w.answers.Answers(), w.State())
}

// Progress returns the 1-based position and the active list length.
func (w *Wizard) Progress() (pos, total int) {
	return w.State().Top() + 1, len(w.ActiveSteps())
}

// Verified reports whether the contact details have been confirmed.
func (w *Wizard) Verified() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.verified
}

// SubmissionID returns the id assigned by the last successful submission.
func (w *Wizard) SubmissionID() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.submissionID
}

// Next validates the current step, runs its gate, and advances. A failed
// validation or gate leaves the position unchanged. On the terminal step it
// does nothing.
func (w *Wizard) Next(ctx context.Context) error {
	if !w.busy.CompareAndSwap(false, true) {
		return ErrBusy
	}
	defer w.busy.Store(false)

	answers := w.answers.Answers()
	step, err := Current(w.steps, answers, w.State())
	if err != nil {
		return err
	}
	if step.Terminal {
		return nil
	}
	if err := step.CheckAnswers(answers); err != nil {
		slog.Debug("Wizard.Next: validation failed", "step", step.ID, "error", err)
		return err
	}
	if err := w.runGate(ctx, step, answers); err != nil {
		return err
	}

	w.mu.Lock()
	w.state = Next(w.steps, answers, w.state)
	depth := len(w.state.History)
	w.mu.Unlock()
	slog.Debug("Wizard.Next", "from", step.ID, "history", depth)
	return nil
}

func (w *Wizard) runGate(ctx context.Context, step Step, answers models.Answers) error {
	switch step.Gate {
	case GateDispatchCode:
		phone, email := contactOf(answers)
		dest := phone + "|" + email
		w.mu.Lock()
		skip := w.verified && w.codeSentTo == dest
		w.mu.Unlock()
		if skip {
			return nil
		}
		return w.dispatch(ctx, phone, email)

	case GateVerifyCode:
		if w.Verified() {
			return nil
		}
		if w.verifier == nil {
			return ErrNotConfigured
		}
		if err := w.verifier.VerifyCode(ctx, strings.TrimSpace(answers.String(models.KeyOTP))); err != nil {
			slog.Info("Wizard.runGate: verification failed", "error", err)
			return err
		}
		w.mu.Lock()
		w.verified = true
		w.mu.Unlock()

	case GateSubmit:
		if w.submitter == nil {
			return &SubmitError{Err: ErrNotConfigured}
		}
		w.mu.Lock()
		key := w.idemKey
		w.mu.Unlock()
		payload := answers.Clone()
		delete(payload, models.KeyOTP)
		id, err := w.submitter.SubmitForm(ctx, payload, key)
		if err != nil {
			slog.Warn("Wizard.runGate: submit failed", "error", err)
			return &SubmitError{Err: err}
		}
		w.mu.Lock()
		w.submissionID = id
		w.mu.Unlock()
		w.answers.Clear()
		slog.Info("Wizard.runGate: submitted", "id", id)
	}
	return nil
}

func (w *Wizard) dispatch(ctx context.Context, phone, email string) error {
	if w.issuer == nil {
		return &DispatchError{Err: ErrNotConfigured}
	}
	if err := w.issuer.SendCode(ctx, phone, email); err != nil {
		slog.Warn("Wizard.dispatch: send failed", "error", err)
		return &DispatchError{Err: err}
	}
	w.mu.Lock()
	w.codeSentTo = phone + "|" + email
	w.verified = false
	w.mu.Unlock()
	w.answers.Update(models.Answers{models.KeyOTP: ""})
	return nil
}

func contactOf(a models.Answers) (phone, email string) {
	return strings.TrimSpace(a.String(models.KeyPhone)), strings.TrimSpace(a.String(models.KeyEmail))
}

// ResendCode sends a fresh code to the current contact details. It is only
// available on the verification step.
func (w *Wizard) ResendCode(ctx context.Context) error {
	if !w.busy.CompareAndSwap(false, true) {
		return ErrBusy
	}
	defer w.busy.Store(false)

	step, err := w.Current()
	if err != nil {
		return err
	}
	if step.Gate != GateVerifyCode {
		return ErrNotOnVerifyStep
	}
	phone, email := contactOf(w.answers.Answers())
	return w.dispatch(ctx, phone, email)
}

// Previous steps back one history entry.
func (w *Wizard) Previous() error {
	if w.busy.Load() {
		return ErrBusy
	}
	w.mu.Lock()
	w.state = Previous(w.state)
	w.mu.Unlock()
	return nil
}

// GoToStep jumps to position n of the active list.
func (w *Wizard) GoToStep(n int) error {
	if w.busy.Load() {
		return ErrBusy
	}
	w.mu.Lock()
	w.state = GoToStep(w.state, n)
	w.mu.Unlock()
	return nil
}

// Reset clears answers and saved progress, returns to the first step, and
// forgets any verification.
func (w *Wizard) Reset() error {
	if w.busy.Load() {
		return ErrBusy
	}
	w.answers.Reset()
	w.mu.Lock()
	w.state = NewState()
	w.verified = false
	w.codeSentTo = ""
	w.submissionID = ""
	w.idemKey = newIdempotencyKey()
	w.mu.Unlock()
	return nil
}
