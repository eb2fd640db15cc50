// Package models defines the questionnaire answer map and its field catalog.
package models

import (
	"fmt"
	"strconv"
)

// FieldKind describes the shape of an answer value.
type FieldKind string

const (
	// FieldText holds a free-text string.
	FieldText FieldKind = "text"
	// FieldChoice holds one string from a fixed option set.
	FieldChoice FieldKind = "choice"
	// FieldList holds zero or more strings.
	FieldList FieldKind = "list"
)

// Answer keys. They match the keys used by the browser form so persisted blobs
// and submissions stay shape-compatible.
const (
	KeyState                 = "stateselect"
	KeyFirstName             = "firstname"
	KeyLastName              = "lastname"
	KeyPhone                 = "phone"
	KeyEmail                 = "email"
	KeyOTP                   = "otp"
	KeyOpioidUse             = "opioiduse"
	KeySuboxoneRelationship  = "relationshipwithSuboxone"
	KeySuboxoneLastWeek      = "suboxonelastweek"
	KeySuboxonePrescriber    = "suboxoneprescriber"
	KeySuboxoneDaysRemaining = "suboxonedaysremaining"
	KeySuboxoneDoseDuration  = "suboxonedoseduration"
	KeySuboxoneStability     = "suboxonestability"
	KeyOpioidDuration        = "opioidduration"
	KeyOpioidFrequency       = "opioidfrequency"
	KeyHeroinUse             = "heroinuse"
	KeyConditions            = "conditions"
	KeyTreatmentGoals        = "treatmentgoals"
	KeyAppointmentSlot       = "appointmentslot"
)

// Opioid-use answers.
const (
	OpioidNeverUsed     = "never-used"
	OpioidUnderControl  = "under-control"
	OpioidActivelyUsing = "actively-using"
	OpioidInRecovery    = "in-recovery"
)

// Suboxone-relationship answers.
const (
	SuboxoneCurrentlyTaking = "currently-taking"
	SuboxoneTakenInPast     = "taken-in-past"
	SuboxoneNeverTaken      = "never-taken"
)

// Boolean-ish answers.
const (
	Yes = "yes"
	No  = "no"
)

// Option is one selectable value for a choice or list field.
type Option struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// Field describes one answer key.
type Field struct {
	Key      string    `json:"key"`
	Label    string    `json:"label"`
	Kind     FieldKind `json:"kind"`
	Options  []Option  `json:"options,omitempty"`
	Required bool      `json:"required,omitempty"`
}

var yesNo = []Option{{Yes, "Yes"}, {No, "No"}}

// Fields is the fixed answer catalog in questionnaire order.
var Fields = []Field{
	{Key: KeyState, Label: "Which state are you located in?", Kind: FieldChoice, Required: true, Options: stateOptions()},
	{Key: KeyFirstName, Label: "First name", Kind: FieldText, Required: true},
	{Key: KeyLastName, Label: "Last name", Kind: FieldText, Required: true},
	{Key: KeyPhone, Label: "Mobile phone", Kind: FieldText},
	{Key: KeyEmail, Label: "Email", Kind: FieldText},
	{Key: KeyOTP, Label: "Verification code", Kind: FieldText, Required: true},
	{Key: KeyOpioidUse, Label: "Which best describes your opioid use?", Kind: FieldChoice, Required: true, Options: []Option{
		{OpioidNeverUsed, "I have never used opioids"},
		{OpioidUnderControl, "My use is under control"},
		{OpioidActivelyUsing, "I am actively using"},
		{OpioidInRecovery, "I am in recovery"},
	}},
	{Key: KeySuboxoneRelationship, Label: "Have you taken Suboxone?", Kind: FieldChoice, Required: true, Options: []Option{
		{SuboxoneCurrentlyTaking, "I am currently taking it"},
		{SuboxoneTakenInPast, "I have taken it in the past"},
		{SuboxoneNeverTaken, "I have never taken it"},
	}},
	{Key: KeySuboxoneLastWeek, Label: "Have you taken Suboxone in the last week?", Kind: FieldChoice, Required: true, Options: yesNo},
	{Key: KeySuboxonePrescriber, Label: "Was it prescribed to you by a provider?", Kind: FieldChoice, Required: true, Options: yesNo},
	{Key: KeySuboxoneDaysRemaining, Label: "How many days of medication do you have left?", Kind: FieldChoice, Required: true, Options: []Option{
		{"none", "None"}, {"1-3", "1 to 3 days"}, {"4-7", "4 to 7 days"}, {"8+", "More than a week"},
	}},
	{Key: KeySuboxoneDoseDuration, Label: "How long have you been on your current daily dose?", Kind: FieldChoice, Required: true, Options: []Option{
		{"under-1-month", "Less than a month"}, {"1-6-months", "1 to 6 months"}, {"over-6-months", "More than 6 months"},
	}},
	{Key: KeySuboxoneStability, Label: "Do you feel stable on your current dose?", Kind: FieldChoice, Required: true, Options: yesNo},
	{Key: KeyOpioidDuration, Label: "How long have you been using opioids?", Kind: FieldChoice, Required: true, Options: []Option{
		{"under-1-year", "Less than a year"}, {"1-5-years", "1 to 5 years"}, {"over-5-years", "More than 5 years"},
	}},
	{Key: KeyOpioidFrequency, Label: "How often do you use?", Kind: FieldChoice, Required: true, Options: []Option{
		{"daily", "Daily"}, {"weekly", "A few times a week"}, {"occasionally", "Occasionally"},
	}},
	{Key: KeyHeroinUse, Label: "Have you used heroin or fentanyl?", Kind: FieldChoice, Required: true, Options: yesNo},
	{Key: KeyConditions, Label: "Do any of these apply to you?", Kind: FieldList, Options: []Option{
		{"anxiety", "Anxiety"}, {"depression", "Depression"}, {"chronic-pain", "Chronic pain"},
		{"pregnancy", "Pregnant or breastfeeding"}, {"liver-disease", "Liver disease"},
	}},
	{Key: KeyTreatmentGoals, Label: "What would you like to get out of treatment?", Kind: FieldText},
	{Key: KeyAppointmentSlot, Label: "Preferred appointment time", Kind: FieldText, Required: true},
}

var fieldIndex = func() map[string]Field {
	m := make(map[string]Field, len(Fields))
	for _, f := range Fields {
		m[f.Key] = f
	}
	return m
}()

// LookupField returns the catalog entry for key.
func LookupField(key string) (Field, bool) {
	f, ok := fieldIndex[key]
	return f, ok
}

// Answers maps question keys to values. Values are either string or []string.
type Answers map[string]any

// DefaultAnswers returns a fresh map holding the default for every catalog field.
func DefaultAnswers() Answers {
	a := make(Answers, len(Fields))
	for _, f := range Fields {
		if f.Kind == FieldList {
			a[f.Key] = []string{}
		} else {
			a[f.Key] = ""
		}
	}
	return a
}

// String returns the string value for key, or "" when absent or not a string.
func (a Answers) String(key string) string {
	s, _ := a[key].(string)
	return s
}

// List returns the list value for key, or nil when absent or not a list.
func (a Answers) List(key string) []string {
	l, _ := a[key].([]string)
	return l
}

// Clone returns a copy that shares no mutable state with a.
func (a Answers) Clone() Answers {
	out := make(Answers, len(a))
	for k, v := range a {
		if l, ok := v.([]string); ok {
			cp := make([]string, len(l))
			copy(cp, l)
			out[k] = cp
			continue
		}
		out[k] = v
	}
	return out
}

// Merge returns a copy of a with every key of partial written over it.
// Keys are never removed.
func (a Answers) Merge(partial Answers) Answers {
	out := a.Clone()
	for k, v := range partial.Clone() {
		out[k] = v
	}
	return out
}

// Normalize coerces every value into string or []string. Values of the wrong
// kind for a catalog field fall back to the field default.
func (a Answers) Normalize() Answers {
	out := make(Answers, len(a))
	for k, v := range a {
		nv, ok := normalizeValue(v)
		if f, known := fieldIndex[k]; known {
			_, isList := nv.([]string)
			if !ok || isList != (f.Kind == FieldList) {
				if f.Kind == FieldList {
					nv = []string{}
				} else {
					nv = ""
				}
			}
			out[k] = nv
			continue
		}
		if ok {
			out[k] = nv
		}
	}
	return out
}

func normalizeValue(v any) (any, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case []string:
		return t, true
	case bool:
		return strconv.FormatBool(t), true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case int:
		return strconv.Itoa(t), true
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	default:
		return nil, false
	}
}

// HasOption reports whether value is a listed option of the catalog field key.
// Fields without options accept any value.
func HasOption(key, value string) bool {
	f, ok := fieldIndex[key]
	if !ok || len(f.Options) == 0 {
		return true
	}
	for _, o := range f.Options {
		if o.Value == value {
			return true
		}
	}
	return false
}

// Describe renders a one-line "label: value" string for staff-facing text.
func (a Answers) Describe(key string) string {
	label := key
	if f, ok := fieldIndex[key]; ok {
		label = f.Label
	}
	if l := a.List(key); l != nil {
		return fmt.Sprintf("%s: %v", label, l)
	}
	return fmt.Sprintf("%s: %s", label, a.String(key))
}
