package flow

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/BTreeMap/ClinicIntake/internal/models"
	"github.com/BTreeMap/ClinicIntake/internal/otp"
	"github.com/BTreeMap/ClinicIntake/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeOTP issues a fixed code and verifies it once, like the server does.
type fakeOTP struct {
	mu      sync.Mutex
	code    string
	live    bool
	sends   []string
	sendErr error
	// block, when set, holds SendCode until it is closed.
	block   chan struct{}
	started chan struct{}
}

func (f *fakeOTP) SendCode(ctx context.Context, phone, email string) error {
	if f.block != nil {
		f.started <- struct{}{}
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sends = append(f.sends, phone+"|"+email)
	if f.sendErr != nil {
		return f.sendErr
	}
	f.live = true
	return nil
}

func (f *fakeOTP) VerifyCode(ctx context.Context, code string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.live {
		return otp.ErrCodeNotFound
	}
	if code != f.code {
		return otp.ErrCodeMismatch
	}
	f.live = false
	return nil
}

type fakeSubmitter struct {
	keys    []string
	payload models.Answers
	err     error
}

func (f *fakeSubmitter) SubmitForm(ctx context.Context, answers models.Answers, key string) (string, error) {
	f.keys = append(f.keys, key)
	f.payload = answers
	if f.err != nil {
		return "", f.err
	}
	return "sub-1", nil
}

func newTestWizard(t *testing.T, storage store.LocalStorage) (*Wizard, *fakeOTP, *fakeSubmitter) {
	t.Helper()
	o := &fakeOTP{code: "123456"}
	sub := &fakeSubmitter{}
	w := New(WithStorage(storage), WithCodeIssuer(o), WithCodeVerifier(o), WithSubmitter(sub))
	return w, o, sub
}

func currentID(t *testing.T, w *Wizard) string {
	t.Helper()
	s, err := w.Current()
	require.NoError(t, err)
	return s.ID
}

// advanceToVerify fills location and contact and leaves the wizard on the verify step.
func advanceToVerify(t *testing.T, w *Wizard) {
	t.Helper()
	ctx := context.Background()
	w.Update(models.Answers{models.KeyState: "Ohio"})
	require.NoError(t, w.Next(ctx))
	w.Update(models.Answers{
		models.KeyFirstName: "Ada",
		models.KeyLastName:  "Lovelace",
		models.KeyPhone:     "5551234567",
	})
	require.NoError(t, w.Next(ctx))
	require.Equal(t, StepVerify, currentID(t, w))
}

func TestWizardValidationBlocksNext(t *testing.T) {
	w, _, _ := newTestWizard(t, nil)
	err := w.Next(context.Background())
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, models.KeyState, ve.Field)
	assert.Equal(t, StepLocation, currentID(t, w))
}

func TestWizardDispatchFailureBlocksTransition(t *testing.T) {
	w, o, _ := newTestWizard(t, nil)
	o.sendErr = otp.ErrDeliveryFailed
	w.Update(models.Answers{models.KeyState: "Ohio"})
	require.NoError(t, w.Next(context.Background()))
	w.Update(models.Answers{models.KeyFirstName: "Ada", models.KeyLastName: "L", models.KeyEmail: "a@b.com"})

	err := w.Next(context.Background())
	var de *DispatchError
	require.ErrorAs(t, err, &de)
	assert.ErrorIs(t, err, otp.ErrDeliveryFailed)
	assert.Equal(t, StepContact, currentID(t, w))
}

func TestWizardVerifyOutcomes(t *testing.T) {
	ctx := context.Background()
	w, o, _ := newTestWizard(t, nil)
	advanceToVerify(t, w)
	assert.Equal(t, []string{"5551234567|"}, o.sends)

	w.Update(models.Answers{models.KeyOTP: "12345"})
	var ve *ValidationError
	assert.ErrorAs(t, w.Next(ctx), &ve, "malformed code never reaches the server")

	w.Update(models.Answers{models.KeyOTP: "654321"})
	assert.ErrorIs(t, w.Next(ctx), ErrCodeInvalid)
	assert.Equal(t, StepVerify, currentID(t, w))

	w.Update(models.Answers{models.KeyOTP: "123456"})
	require.NoError(t, w.Next(ctx), "a wrong guess leaves the code usable")
	assert.True(t, w.Verified())
	assert.Equal(t, StepOpioidUse, currentID(t, w))
}

func TestWizardBackThroughVerifiedStepsSkipsGates(t *testing.T) {
	ctx := context.Background()
	w, o, _ := newTestWizard(t, nil)
	advanceToVerify(t, w)
	w.Update(models.Answers{models.KeyOTP: "123456"})
	require.NoError(t, w.Next(ctx))

	require.NoError(t, w.Previous())
	require.NoError(t, w.Previous())
	require.Equal(t, StepContact, currentID(t, w))

	require.NoError(t, w.Next(ctx))
	require.NoError(t, w.Next(ctx))
	assert.Equal(t, StepOpioidUse, currentID(t, w))
	assert.Len(t, o.sends, 1, "unchanged contact is not re-dispatched")

	require.NoError(t, w.GoToStep(1))
	w.Update(models.Answers{models.KeyPhone: "5559876543"})
	require.NoError(t, w.Next(ctx))
	assert.Len(t, o.sends, 2)
	assert.False(t, w.Verified(), "new contact details need a new code")
	assert.Equal(t, "", w.Answers().String(models.KeyOTP))
}

func TestWizardExpiredCode(t *testing.T) {
	ctx := context.Background()
	w, o, _ := newTestWizard(t, nil)
	advanceToVerify(t, w)
	o.live = false

	w.Update(models.Answers{models.KeyOTP: "123456"})
	assert.ErrorIs(t, w.Next(ctx), ErrCodeExpired)

	require.NoError(t, w.ResendCode(ctx))
	assert.Len(t, o.sends, 2)
	w.Update(models.Answers{models.KeyOTP: "123456"})
	assert.NoError(t, w.Next(ctx))
}

func TestWizardResendOnlyOnVerifyStep(t *testing.T) {
	w, _, _ := newTestWizard(t, nil)
	assert.ErrorIs(t, w.ResendCode(context.Background()), ErrNotOnVerifyStep)
}

func TestWizardFullRunSubmitsOnce(t *testing.T) {
	ctx := context.Background()
	mem := store.NewInMemoryStore()
	w, _, sub := newTestWizard(t, mem)
	advanceToVerify(t, w)

	w.Update(models.Answers{models.KeyOTP: "123456"})
	require.NoError(t, w.Next(ctx))
	w.Update(models.Answers{models.KeyOpioidUse: models.OpioidNeverUsed})
	require.NoError(t, w.Next(ctx))
	require.Equal(t, StepAssessment, currentID(t, w))
	require.NoError(t, w.Next(ctx))
	w.Update(models.Answers{models.KeyAppointmentSlot: "Monday 9am"})

	_, found, _ := mem.GetItem(StorageKey)
	require.True(t, found)

	require.NoError(t, w.Next(ctx))
	assert.Equal(t, StepCompletion, currentID(t, w))
	assert.Equal(t, "sub-1", w.SubmissionID())
	require.Len(t, sub.keys, 1)
	assert.NotContains(t, sub.payload, models.KeyOTP)
	assert.Equal(t, "Monday 9am", sub.payload.String(models.KeyAppointmentSlot))

	_, found, _ = mem.GetItem(StorageKey)
	assert.False(t, found, "saved progress is cleared after submit")
	assert.Equal(t, "Ohio", w.Answers().String(models.KeyState), "answers stay for the completion screen")

	before := w.State()
	require.NoError(t, w.Next(ctx))
	assert.Equal(t, before, w.State(), "next on completion is a no-op")
	assert.Len(t, sub.keys, 1)
}

func TestWizardSubmitFailureKeepsProgress(t *testing.T) {
	ctx := context.Background()
	mem := store.NewInMemoryStore()
	w, _, sub := newTestWizard(t, mem)
	sub.err = &otp.APIError{StatusCode: 503, Message: "unavailable"}

	w.Update(models.Answers{models.KeyAppointmentSlot: "Friday"})
	schedule := IndexOf(w.ActiveSteps(), StepSchedule)
	require.NoError(t, w.GoToStep(schedule))

	err := w.Next(ctx)
	var se *SubmitError
	require.ErrorAs(t, err, &se)
	assert.True(t, se.Retryable())
	assert.Equal(t, StepSchedule, currentID(t, w))
	_, found, _ := mem.GetItem(StorageKey)
	assert.True(t, found)

	sub.err = nil
	require.NoError(t, w.Next(ctx))
	require.Len(t, sub.keys, 2)
	assert.Equal(t, sub.keys[0], sub.keys[1], "a retry reuses the idempotency key")

	sub.err = &otp.APIError{StatusCode: 400, Message: "bad"}
	assert.False(t, (&SubmitError{Err: sub.err}).Retryable())
}

func TestWizardReset(t *testing.T) {
	ctx := context.Background()
	mem := store.NewInMemoryStore()
	w, _, _ := newTestWizard(t, mem)
	advanceToVerify(t, w)
	w.Update(models.Answers{models.KeyOTP: "123456"})
	require.NoError(t, w.Next(ctx))
	key := w.idemKey

	require.NoError(t, w.Reset())
	assert.Equal(t, models.DefaultAnswers(), w.Answers())
	assert.Equal(t, []int{0}, w.State().History)
	assert.False(t, w.Verified())
	assert.NotEqual(t, key, w.idemKey)
	_, found, _ := mem.GetItem(StorageKey)
	assert.False(t, found)
}

func TestWizardResumesFromStorage(t *testing.T) {
	mem := store.NewInMemoryStore()
	w, _, _ := newTestWizard(t, mem)
	w.Update(models.Answers{models.KeyState: "Ohio", models.KeyEmail: "a@b.com"})

	resumed, _, _ := newTestWizard(t, mem)
	assert.Equal(t, "Ohio", resumed.Answers().String(models.KeyState))
	assert.Equal(t, StepLocation, currentID(t, resumed), "position is not persisted")
}

func TestWizardBusyGuard(t *testing.T) {
	ctx := context.Background()
	w, o, _ := newTestWizard(t, nil)
	w.Update(models.Answers{models.KeyState: "Ohio"})
	require.NoError(t, w.Next(ctx))
	w.Update(models.Answers{models.KeyFirstName: "Ada", models.KeyLastName: "L", models.KeyEmail: "a@b.com"})

	o.block = make(chan struct{})
	o.started = make(chan struct{})
	done := make(chan error, 1)
	go func() { done <- w.Next(ctx) }()
	<-o.started

	assert.ErrorIs(t, w.Next(ctx), ErrBusy)
	assert.ErrorIs(t, w.ResendCode(ctx), ErrBusy)
	assert.ErrorIs(t, w.Previous(), ErrBusy)
	assert.ErrorIs(t, w.GoToStep(0), ErrBusy)
	assert.ErrorIs(t, w.Reset(), ErrBusy)

	close(o.block)
	require.NoError(t, <-done)
	assert.Len(t, o.sends, 1, "only one code was dispatched")
	assert.Equal(t, StepVerify, currentID(t, w))
}

func TestWizardWithoutCollaborators(t *testing.T) {
	w := New()
	w.Update(models.Answers{models.KeyState: "Ohio"})
	require.NoError(t, w.Next(context.Background()))
	w.Update(models.Answers{models.KeyFirstName: "Ada", models.KeyLastName: "L", models.KeyEmail: "a@b.com"})
	err := w.Next(context.Background())
	assert.True(t, errors.Is(err, ErrNotConfigured))
}

func TestWizardProgress(t *testing.T) {
	w := New()
	w.Update(models.Answers{models.KeyOpioidUse: models.OpioidNeverUsed})
	pos, total := w.Progress()
	assert.Equal(t, 1, pos)
	assert.Equal(t, 7, total)
}
