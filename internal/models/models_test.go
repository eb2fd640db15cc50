package models

import (
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"testing"
)

func TestDefaultAnswersCoverCatalog(t *testing.T) {
	a := DefaultAnswers()
	if len(a) != len(Fields) {
		t.Fatalf("expected %d defaults, got %d", len(Fields), len(a))
	}
	if a.String(KeyState) != "" {
		t.Errorf("expected empty default for %s", KeyState)
	}
	if l := a.List(KeyConditions); l == nil || len(l) != 0 {
		t.Errorf("expected empty list default for %s, got %#v", KeyConditions, a[KeyConditions])
	}
}

func TestMergeIsShallowAndNonDestructive(t *testing.T) {
	base := DefaultAnswers()
	merged := base.Merge(Answers{KeyState: "Ohio", KeyConditions: []string{"anxiety"}})

	if merged.String(KeyState) != "Ohio" {
		t.Errorf("expected merged state Ohio, got %q", merged.String(KeyState))
	}
	if base.String(KeyState) != "" {
		t.Error("merge must not mutate the receiver")
	}
	if merged.String(KeyEmail) != "" {
		t.Error("untouched keys must keep their value")
	}
}

func TestCloneCopiesLists(t *testing.T) {
	a := Answers{KeyConditions: []string{"anxiety"}}
	b := a.Clone()
	b.List(KeyConditions)[0] = "depression"
	if a.List(KeyConditions)[0] != "anxiety" {
		t.Error("clone shares list storage with the original")
	}
}

func TestNormalizeDecodedJSON(t *testing.T) {
	var raw Answers
	blob := `{"stateselect":"Ohio","conditions":["anxiety","depression"],"heroinuse":true,"phone":5551234567,"email":["x"],"custom":"kept"}`
	if err := json.Unmarshal([]byte(blob), &raw); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	got := raw.Normalize()

	if got.String(KeyState) != "Ohio" {
		t.Errorf("state: got %q", got.String(KeyState))
	}
	if !reflect.DeepEqual(got.List(KeyConditions), []string{"anxiety", "depression"}) {
		t.Errorf("conditions: got %#v", got[KeyConditions])
	}
	if got.String(KeyHeroinUse) != "true" {
		t.Errorf("bool should stringify, got %#v", got[KeyHeroinUse])
	}
	if got.String(KeyPhone) != "5551234567" {
		t.Errorf("number should stringify, got %#v", got[KeyPhone])
	}
	if got.String(KeyEmail) != "" {
		t.Errorf("list in a text field should fall back to default, got %#v", got[KeyEmail])
	}
	if got.String("custom") != "kept" {
		t.Errorf("unknown keys should survive, got %#v", got["custom"])
	}
}

func TestSendCodeRequestValidate(t *testing.T) {
	r := SendCodeRequest{Phone: "  ", Email: " "}
	r.Normalize()
	if err := r.Validate(); !errors.Is(err, ErrMissingDestination) {
		t.Errorf("expected ErrMissingDestination, got %v", err)
	}
	r = SendCodeRequest{Email: "a@b.com"}
	if err := r.Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestVerifyCodeRequestValidate(t *testing.T) {
	cases := map[string]error{
		"":        ErrMissingOTP,
		"12345":   ErrMalformedOTP,
		"12a456":  ErrMalformedOTP,
		"1234567": ErrMalformedOTP,
		"123456":  nil,
	}
	for code, want := range cases {
		r := VerifyCodeRequest{OTP: code}
		if err := r.Validate(); !errors.Is(err, want) {
			t.Errorf("code %q: expected %v, got %v", code, want, err)
		}
	}
}

func TestValidateForSubmission(t *testing.T) {
	a := DefaultAnswers()
	if err := ValidateForSubmission(a); !errors.Is(err, ErrMissingContact) {
		t.Errorf("expected ErrMissingContact, got %v", err)
	}
	a[KeyEmail] = "a@b.com"
	if err := ValidateForSubmission(a); !errors.Is(err, ErrMissingState) {
		t.Errorf("expected ErrMissingState, got %v", err)
	}
	a[KeyState] = "Ohio"
	if err := ValidateForSubmission(a); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	a[KeyTreatmentGoals] = strings.Repeat("x", MaxFieldLength+1)
	if err := ValidateForSubmission(a); !errors.Is(err, ErrFieldTooLong) {
		t.Errorf("expected ErrFieldTooLong, got %v", err)
	}
}

func TestAPIResponseSuccessFlag(t *testing.T) {
	if !Success(nil).Success {
		t.Error("Success() should set success=true")
	}
	if Error("boom").Success {
		t.Error("Error() should set success=false")
	}
	data, err := json.Marshal(Error("boom"))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(data), `"success":false`) {
		t.Errorf("error envelope must carry success=false, got %s", data)
	}
}

func TestNormalizeState(t *testing.T) {
	cases := []struct {
		in    string
		want  string
		known bool
	}{
		{"ohio", "Ohio", true},
		{"OH", "Ohio", true},
		{"  new   york ", "New York", true},
		{"District Of Columbia", "District of Columbia", true},
		{"atlantis", "Atlantis", false},
		{"", "", false},
	}
	for _, c := range cases {
		got, ok := NormalizeState(c.in)
		if got != c.want || ok != c.known {
			t.Errorf("NormalizeState(%q) = (%q, %v), want (%q, %v)", c.in, got, ok, c.want, c.known)
		}
	}
}
