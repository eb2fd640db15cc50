package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/BTreeMap/ClinicIntake/internal/flow"
	"github.com/BTreeMap/ClinicIntake/internal/models"
	"github.com/BTreeMap/ClinicIntake/internal/otp"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("63")).
			MarginBottom(1)

	progressStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("244"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	noticeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("35"))
)

// maxInlineOptions is the longest option list shown without scrolling.
const maxInlineOptions = 8

// Action is what the user chose to do after editing a screen.
type Action string

const (
	ActionNext   Action = "next"
	ActionBack   Action = "back"
	ActionResend Action = "resend"
	ActionReset  Action = "reset"
	ActionQuit   Action = "quit"
)

// stepInput binds one screen's answers to form widgets.
type stepInput struct {
	step   flow.Step
	text   map[string]*string
	lists  map[string]*[]string
	action Action
}

func newStepInput(step flow.Step, answers models.Answers) *stepInput {
	in := &stepInput{
		step:   step,
		text:   make(map[string]*string),
		lists:  make(map[string]*[]string),
		action: ActionNext,
	}
	for _, key := range step.Fields {
		f, _ := models.LookupField(key)
		if f.Kind == models.FieldList {
			l := append([]string(nil), answers.List(key)...)
			in.lists[key] = &l
			continue
		}
		s := answers.String(key)
		in.text[key] = &s
	}
	return in
}

// Partial returns the edited values for the step's fields.
func (in *stepInput) Partial() models.Answers {
	out := make(models.Answers, len(in.text)+len(in.lists))
	for k, v := range in.text {
		out[k] = strings.TrimSpace(*v)
	}
	for k, v := range in.lists {
		out[k] = append([]string{}, (*v)...)
	}
	return out
}

// Actions lists the choices available on the step.
func (in *stepInput) Actions(canGoBack bool) []huh.Option[Action] {
	label := "Continue"
	switch in.step.Gate {
	case flow.GateDispatchCode:
		label = "Send my code"
	case flow.GateVerifyCode:
		label = "Verify"
	case flow.GateSubmit:
		label = "Submit"
	}
	opts := []huh.Option[Action]{huh.NewOption(label, ActionNext)}
	if canGoBack {
		opts = append(opts, huh.NewOption("Back", ActionBack))
	}
	if in.step.Gate == flow.GateVerifyCode {
		opts = append(opts, huh.NewOption("Send a new code", ActionResend))
	}
	return append(opts,
		huh.NewOption("Start over", ActionReset),
		huh.NewOption("Save and quit", ActionQuit),
	)
}

// Form builds the huh form for the step. Validation is left to the wizard so
// the rules live in one place.
func (in *stepInput) Form(canGoBack bool) *huh.Form {
	var fields []huh.Field
	for _, key := range in.step.Fields {
		fields = append(fields, in.field(key))
	}
	fields = append(fields, huh.NewSelect[Action]().
		Title("What next?").
		Options(in.Actions(canGoBack)...).
		Value(&in.action))
	return huh.NewForm(huh.NewGroup(fields...)).WithShowHelp(true)
}

func (in *stepInput) field(key string) huh.Field {
	f, _ := models.LookupField(key)
	title := f.Label
	if title == "" {
		title = key
	}
	switch f.Kind {
	case models.FieldList:
		return huh.NewMultiSelect[string]().
			Title(title).
			Options(catalogOptions(f)...).
			Value(in.lists[key])
	case models.FieldChoice:
		sel := huh.NewSelect[string]().
			Title(title).
			Options(catalogOptions(f)...).
			Value(in.text[key])
		if len(f.Options) > maxInlineOptions {
			sel.Height(maxInlineOptions + 2)
		}
		return sel
	}
	if key == models.KeyTreatmentGoals {
		return huh.NewText().
			Title(title).
			CharLimit(models.MaxFieldLength).
			Value(in.text[key])
	}
	input := huh.NewInput().Title(title).Value(in.text[key])
	switch key {
	case models.KeyOTP:
		input.Description(fmt.Sprintf("The %d-digit code we just sent you", models.OTPCodeLength)).
			CharLimit(models.OTPCodeLength)
	case models.KeyPhone, models.KeyEmail:
		input.Description("Phone or email, at least one")
	}
	return input
}

func catalogOptions(f models.Field) []huh.Option[string] {
	opts := make([]huh.Option[string], 0, len(f.Options))
	for _, o := range f.Options {
		opts = append(opts, huh.NewOption(o.Label, o.Value))
	}
	return opts
}

// header renders the step title with its position in the active list.
func header(step flow.Step, pos, total int) string {
	return titleStyle.Render(step.Title) + "\n" +
		progressStyle.Render(fmt.Sprintf("Step %d of %d", pos, total))
}

// userMessage turns a wizard error into text for the patient.
func userMessage(err error) string {
	var verr *flow.ValidationError
	var derr *flow.DispatchError
	var serr *flow.SubmitError
	switch {
	case errors.As(err, &verr):
		label := fieldLabel(verr.Field)
		if strings.HasPrefix(verr.Message, label) {
			return verr.Message
		}
		return label + ": " + verr.Message
	case errors.Is(err, flow.ErrBusy):
		return "Still working on your last request."
	case errors.Is(err, flow.ErrCodeInvalid):
		return "That code is not correct. Check the digits and try again."
	case errors.Is(err, flow.ErrCodeExpired):
		return "That code has expired. Choose \"Send a new code\" to get another."
	case errors.As(err, &derr):
		if errors.Is(err, otp.ErrNoDestination) {
			return "Enter a phone number or email so we can send your code."
		}
		return "We could not send your code. Check your phone number and email, then try again."
	case errors.As(err, &serr):
		if serr.Retryable() {
			return "We could not reach the clinic. Your answers are saved, please try again."
		}
		return "The clinic could not accept these answers: " + err.Error()
	case errors.Is(err, flow.ErrNotConfigured), errors.Is(err, otp.ErrTransport):
		return "We could not reach the clinic. Your answers are saved, please try again."
	}
	return err.Error()
}

func fieldLabel(key string) string {
	if f, ok := models.LookupField(key); ok {
		return f.Label
	}
	return key
}
