// Package testutil provides common test utilities and helpers for ClinicIntake tests.
package testutil

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"

	"github.com/BTreeMap/ClinicIntake/internal/models"
	"github.com/BTreeMap/ClinicIntake/internal/store"
)

// TB is the subset of testing.TB the helpers need.
type TB interface {
	Helper()
	Errorf(format string, args ...any)
	Fatalf(format string, args ...any)
}

// AssertHTTPStatus checks the HTTP status code and fails the test if it doesn't match.
func AssertHTTPStatus(t TB, expected, actual int, context string) {
	t.Helper()
	if actual != expected {
		t.Errorf("%s: expected status %d, got %d", context, expected, actual)
	}
}

// AssertJSONResponse decodes the API envelope and validates its status field.
func AssertJSONResponse(t TB, rr *httptest.ResponseRecorder, expectedStatus string) map[string]interface{} {
	t.Helper()
	var response map[string]interface{}
	if err := json.NewDecoder(bytes.NewReader(rr.Body.Bytes())).Decode(&response); err != nil {
		t.Fatalf("failed to decode JSON response: %v", err)
		return nil
	}

	if status, ok := response["status"].(string); ok {
		if status != expectedStatus {
			t.Errorf("expected status '%s', got '%s'", expectedStatus, status)
		}
	} else {
		t.Errorf("response missing or invalid 'status' field")
	}

	return response
}

// CreateHTTPRequest creates an HTTP request with optional JSON body for testing.
func CreateHTTPRequest(t TB, method, url string, body interface{}) *http.Request {
	t.Helper()
	var reqBody *bytes.Buffer
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal request body: %v", err)
			return nil
		}
		reqBody = bytes.NewBuffer(jsonData)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req, err := http.NewRequest(method, url, reqBody)
	if err != nil {
		t.Fatalf("failed to create HTTP request: %v", err)
		return nil
	}
	req.Header.Set("Content-Type", "application/json")
	return req
}

// CompleteAnswers returns answers that pass submission validation.
func CompleteAnswers() models.Answers {
	a := models.DefaultAnswers()
	a[models.KeyState] = "Ohio"
	a[models.KeyFirstName] = "Ada"
	a[models.KeyLastName] = "Lovelace"
	a[models.KeyEmail] = "ada@example.com"
	a[models.KeyOpioidUse] = models.OpioidNeverUsed
	a[models.KeyAppointmentSlot] = "Monday 9am"
	return a
}

// AssertSubmissionCount validates the number of submissions in the store.
func AssertSubmissionCount(t TB, st store.Store, expected int, context string) {
	t.Helper()
	subs, err := st.GetSubmissions()
	if err != nil {
		t.Fatalf("%s: failed to get submissions: %v", context, err)
		return
	}
	if len(subs) != expected {
		t.Errorf("%s: expected %d submissions, got %d", context, expected, len(subs))
	}
}

// SeedTestData adds sample receipts and one submission to the store.
func SeedTestData(t TB, st store.Store) {
	t.Helper()

	testReceipts := []models.Receipt{
		{To: "+15551234567", Channel: models.ChannelSMS, Kind: models.ReceiptKindOTP, Status: models.MessageStatusSent, Time: 1},
		{To: "ada@example.com", Channel: models.ChannelEmail, Kind: models.ReceiptKindOTP, Status: models.MessageStatusFailed, Time: 2},
	}
	for _, receipt := range testReceipts {
		if err := st.AddReceipt(receipt); err != nil {
			t.Fatalf("failed to add test receipt: %v", err)
		}
	}

	sub := models.Submission{ID: "seed-1", Answers: CompleteAnswers()}
	if err := st.AddSubmission(sub); err != nil {
		t.Fatalf("failed to add test submission: %v", err)
	}
}

// MustMarshalJSON marshals an object to JSON and fails test on error.
func MustMarshalJSON(t TB, v interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("failed to marshal JSON: %v", err)
	}
	return data
}

// MustUnmarshalJSON unmarshals JSON data into target and fails test on error.
func MustUnmarshalJSON(t TB, data []byte, target interface{}) {
	t.Helper()
	if err := json.Unmarshal(data, target); err != nil {
		t.Fatalf("failed to unmarshal JSON: %v", err)
	}
}
