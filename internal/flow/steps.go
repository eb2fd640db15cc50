// filepath: internal/flow/steps.go
package flow

import (
	"fmt"
	"net/mail"
	"strings"

	"github.com/BTreeMap/ClinicIntake/internal/models"
)

// Gate names the network side effect that must succeed before leaving a step.
type Gate int

const (
	GateNone Gate = iota
	// GateDispatchCode issues a verification code to the entered contact details.
	GateDispatchCode
	// GateVerifyCode checks the entered code with the server.
	GateVerifyCode
	// GateSubmit posts the completed answers.
	GateSubmit
)

func (g Gate) String() string {
	switch g {
	case GateDispatchCode:
		return "dispatch-code"
	case GateVerifyCode:
		return "verify-code"
	case GateSubmit:
		return "submit"
	default:
		return "none"
	}
}

// Group tags steps that share an inclusion rule.
type Group string

const (
	GroupOpening        Group = "opening"
	GroupSubstance      Group = "substance"
	GroupSuboxoneDetail Group = "suboxone-detail"
	GroupClosing        Group = "closing"
)

// Step IDs.
const (
	StepLocation              = "location"
	StepContact               = "contact"
	StepVerify                = "verify"
	StepOpioidUse             = "opioid-use"
	StepSuboxoneRelationship  = "suboxone-relationship"
	StepSuboxoneLastWeek      = "suboxone-last-week"
	StepSuboxonePrescriber    = "suboxone-prescriber"
	StepSuboxoneDaysRemaining = "suboxone-days-remaining"
	StepSuboxoneDoseDuration  = "suboxone-dose-duration"
	StepSuboxoneStability     = "suboxone-stability"
	StepOpioidDuration        = "opioid-duration"
	StepOpioidFrequency       = "opioid-frequency"
	StepHeroinUse             = "heroin-use"
	StepAssessment            = "assessment"
	StepSchedule              = "schedule"
	StepCompletion            = "completion"
)

// Step describes one wizard screen. Steps are declared once and never mutated.
type Step struct {
	ID    string
	Title string
	Group Group
	// Fields lists the answer keys the screen edits, in display order.
	Fields []string
	// Include decides membership in the active list. Nil means always.
	Include func(models.Answers) bool
	// Validate adds checks beyond the field catalog rules. May be nil.
	Validate func(models.Answers) error
	Gate     Gate
	Terminal bool
}

// Included reports whether s belongs in the active list for a.
func (s Step) Included(a models.Answers) bool {
	return s.Include == nil || s.Include(a)
}

// CheckAnswers runs catalog validation for every field on the step, then the
// step's own validator.
func (s Step) CheckAnswers(a models.Answers) error {
	for _, key := range s.Fields {
		if err := checkField(key, a); err != nil {
			return err
		}
	}
	if s.Validate != nil {
		return s.Validate(a)
	}
	return nil
}

func checkField(key string, a models.Answers) error {
	f, ok := models.LookupField(key)
	if !ok {
		return nil
	}
	switch f.Kind {
	case models.FieldList:
		for _, v := range a.List(key) {
			if !models.HasOption(key, v) {
				return &ValidationError{Field: key, Message: fmt.Sprintf("%q is not a valid choice", v)}
			}
		}
	default:
		v := strings.TrimSpace(a.String(key))
		if v == "" {
			if f.Required {
				return &ValidationError{Field: key, Message: f.Label + " is required"}
			}
			return nil
		}
		if len(v) > models.MaxFieldLength {
			return &ValidationError{Field: key, Message: fmt.Sprintf("must be at most %d characters", models.MaxFieldLength)}
		}
		if f.Kind == models.FieldChoice && !models.HasOption(key, v) {
			return &ValidationError{Field: key, Message: fmt.Sprintf("%q is not a valid choice", v)}
		}
	}
	return nil
}

// usesOpioids gates the substance-history group.
func usesOpioids(a models.Answers) bool {
	return a.String(models.KeyOpioidUse) != models.OpioidNeverUsed
}

// hasSuboxoneHistory gates the Suboxone detail group.
func hasSuboxoneHistory(a models.Answers) bool {
	if !usesOpioids(a) {
		return false
	}
	switch a.String(models.KeySuboxoneRelationship) {
	case models.SuboxoneCurrentlyTaking, models.SuboxoneTakenInPast:
		return true
	}
	return false
}

func validateContact(a models.Answers) error {
	phone := strings.TrimSpace(a.String(models.KeyPhone))
	email := strings.TrimSpace(a.String(models.KeyEmail))
	if phone == "" && email == "" {
		return &ValidationError{Field: models.KeyPhone, Message: "enter a phone number or an email address"}
	}
	if email != "" {
		addr, err := mail.ParseAddress(email)
		if err != nil || addr.Address != email || !strings.Contains(email[strings.LastIndex(email, "@")+1:], ".") {
			return &ValidationError{Field: models.KeyEmail, Message: models.ErrInvalidEmail.Error()}
		}
	}
	if phone != "" && countDigits(phone) < models.MinPhoneDigits {
		return &ValidationError{Field: models.KeyPhone, Message: models.ErrInvalidPhone.Error()}
	}
	return nil
}

func validateCode(a models.Answers) error {
	if !models.IsOTPCode(strings.TrimSpace(a.String(models.KeyOTP))) {
		return &ValidationError{Field: models.KeyOTP, Message: models.ErrMalformedOTP.Error()}
	}
	return nil
}

func countDigits(s string) int {
	n := 0
	for _, r := range s {
		if r >= '0' && r <= '9' {
			n++
		}
	}
	return n
}

// Steps is the fixed questionnaire in declaration order.
var Steps = []Step{
	{ID: StepLocation, Title: "Where are you located?", Group: GroupOpening, Fields: []string{models.KeyState}},
	{ID: StepContact, Title: "How can we reach you?", Group: GroupOpening,
		Fields:   []string{models.KeyFirstName, models.KeyLastName, models.KeyPhone, models.KeyEmail},
		Validate: validateContact, Gate: GateDispatchCode},
	{ID: StepVerify, Title: "Enter your verification code", Group: GroupOpening,
		Fields: []string{models.KeyOTP}, Validate: validateCode, Gate: GateVerifyCode},
	{ID: StepOpioidUse, Title: "Opioid use", Group: GroupOpening, Fields: []string{models.KeyOpioidUse}},

	{ID: StepSuboxoneRelationship, Title: "Suboxone history", Group: GroupSubstance,
		Fields: []string{models.KeySuboxoneRelationship}, Include: usesOpioids},
	{ID: StepSuboxoneLastWeek, Title: "Recent Suboxone use", Group: GroupSuboxoneDetail,
		Fields: []string{models.KeySuboxoneLastWeek}, Include: hasSuboxoneHistory},
	{ID: StepSuboxonePrescriber, Title: "Suboxone prescriber", Group: GroupSuboxoneDetail,
		Fields: []string{models.KeySuboxonePrescriber}, Include: hasSuboxoneHistory},
	{ID: StepSuboxoneDaysRemaining, Title: "Medication remaining", Group: GroupSuboxoneDetail,
		Fields: []string{models.KeySuboxoneDaysRemaining}, Include: hasSuboxoneHistory},
	{ID: StepSuboxoneDoseDuration, Title: "Current dose", Group: GroupSuboxoneDetail,
		Fields: []string{models.KeySuboxoneDoseDuration}, Include: hasSuboxoneHistory},
	{ID: StepSuboxoneStability, Title: "Dose stability", Group: GroupSuboxoneDetail,
		Fields: []string{models.KeySuboxoneStability}, Include: hasSuboxoneHistory},
	{ID: StepOpioidDuration, Title: "How long", Group: GroupSubstance,
		Fields: []string{models.KeyOpioidDuration}, Include: usesOpioids},
	{ID: StepOpioidFrequency, Title: "How often", Group: GroupSubstance,
		Fields: []string{models.KeyOpioidFrequency}, Include: usesOpioids},
	{ID: StepHeroinUse, Title: "Heroin or fentanyl", Group: GroupSubstance,
		Fields: []string{models.KeyHeroinUse}, Include: usesOpioids},

	{ID: StepAssessment, Title: "A little more about you", Group: GroupClosing,
		Fields: []string{models.KeyConditions, models.KeyTreatmentGoals}},
	{ID: StepSchedule, Title: "Pick an appointment time", Group: GroupClosing,
		Fields: []string{models.KeyAppointmentSlot}, Gate: GateSubmit},
	{ID: StepCompletion, Title: "You're all set", Group: GroupClosing, Terminal: true},
}
