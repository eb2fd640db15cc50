// Package api provides HTTP handlers for ClinicIntake endpoints.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/BTreeMap/ClinicIntake/internal/models"
	"github.com/BTreeMap/ClinicIntake/internal/otp"
	"github.com/BTreeMap/ClinicIntake/internal/store"
	"github.com/google/uuid"
)

// PathSubmitForm receives completed questionnaires.
const PathSubmitForm = "/api/submit-form"

// IdempotencyKeyHeader lets a client retry a submission without creating a duplicate.
const IdempotencyKeyHeader = "Idempotency-Key"

// SubmitResult is the result body of a successful submission.
type SubmitResult struct {
	ID string `json:"id"`
}

// StaffNoticePayload is the outbox payload queued for every new submission.
type StaffNoticePayload struct {
	SubmissionID string `json:"submission_id"`
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxRequestBodyBytes)).Decode(v)
}

func (s *Server) sendCodeHandler(w http.ResponseWriter, r *http.Request) {
	slog.Debug("Server.sendCodeHandler: processing request", "method", r.Method, "path", r.URL.Path)
	if r.Method != http.MethodPost {
		slog.Warn("Server.sendCodeHandler: method not allowed", "method", r.Method)
		methodNotAllowed(w, http.MethodPost)
		return
	}
	var req models.SendCodeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		slog.Warn("Server.sendCodeHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}

	result, err := s.otp.Issue(r.Context(), w, r, req)
	switch {
	case err == nil:
	case errors.Is(err, otp.ErrNoDestination):
		slog.Warn("Server.sendCodeHandler: no destination supplied")
		writeJSONResponse(w, http.StatusBadRequest, models.Error(otp.MessageNoDestination))
		return
	case errors.Is(err, otp.ErrDeliveryFailed):
		writeJSONResponse(w, http.StatusBadGateway, models.ErrorWithResult(otp.MessageDeliveryFailed, result))
		return
	default:
		slog.Error("Server.sendCodeHandler: issue failed", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error(otp.MessageDeliveryFailed))
		return
	}

	slog.Info("Server.sendCodeHandler: code sent", "delivered", result.Delivered, "failed", result.FailedChannels)
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Verification code sent", result))
}

func (s *Server) verifyCodeHandler(w http.ResponseWriter, r *http.Request) {
	slog.Debug("Server.verifyCodeHandler: processing request", "method", r.Method, "path", r.URL.Path)
	if r.Method != http.MethodPost {
		slog.Warn("Server.verifyCodeHandler: method not allowed", "method", r.Method)
		methodNotAllowed(w, http.MethodPost)
		return
	}
	var req models.VerifyCodeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		slog.Warn("Server.verifyCodeHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}

	err := s.otp.Verify(w, r, req)
	switch {
	case err == nil:
		slog.Info("Server.verifyCodeHandler: code verified")
		writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Verification successful", nil))
	case errors.Is(err, models.ErrMissingOTP):
		writeJSONResponse(w, http.StatusBadRequest, models.Error(otp.MessageCodeRequired))
	case errors.Is(err, models.ErrMalformedOTP):
		writeJSONResponse(w, http.StatusBadRequest, models.Error(otp.MessageCodeMalformed))
	case errors.Is(err, otp.ErrCodeNotFound):
		slog.Warn("Server.verifyCodeHandler: no live code")
		writeJSONResponse(w, http.StatusBadRequest, models.Error(otp.MessageCodeNotFound))
	case errors.Is(err, otp.ErrCodeMismatch):
		slog.Warn("Server.verifyCodeHandler: code mismatch")
		writeJSONResponse(w, http.StatusBadRequest, models.Error(otp.MessageCodeMismatch))
	default:
		slog.Error("Server.verifyCodeHandler: verify failed", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Internal server error"))
	}
}

func (s *Server) submitFormHandler(w http.ResponseWriter, r *http.Request) {
	slog.Debug("Server.submitFormHandler: processing request", "method", r.Method, "path", r.URL.Path)
	if r.Method != http.MethodPost {
		slog.Warn("Server.submitFormHandler: method not allowed", "method", r.Method)
		methodNotAllowed(w, http.MethodPost)
		return
	}
	var raw models.Answers
	if err := decodeJSON(w, r, &raw); err != nil || raw == nil {
		slog.Warn("Server.submitFormHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	answers := raw.Normalize()
	delete(answers, models.KeyOTP)
	if err := models.ValidateForSubmission(answers); err != nil {
		slog.Warn("Server.submitFormHandler: validation failed", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}

	key := strings.TrimSpace(r.Header.Get(IdempotencyKeyHeader))
	if key != "" {
		if id, found, err := s.st.LookupSubmissionKey(key); err != nil {
			slog.Error("Server.submitFormHandler: idempotency lookup failed", "error", err)
			writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to store submission"))
			return
		} else if found {
			slog.Info("Server.submitFormHandler: duplicate submission", "id", id)
			writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Submission already received", SubmitResult{ID: id}))
			return
		}
	}

	id, err := uuid.NewV7()
	if err != nil {
		slog.Error("Server.submitFormHandler: failed to generate id", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to store submission"))
		return
	}
	sub := models.Submission{ID: id.String(), Answers: answers, CreatedAt: time.Now().UTC()}
	if err := s.st.AddSubmission(sub); err != nil {
		slog.Error("Server.submitFormHandler: failed to store submission", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to store submission"))
		return
	}

	if key != "" {
		inserted, err := s.st.RecordSubmissionKey(key, sub.ID)
		if err != nil {
			slog.Error("Server.submitFormHandler: failed to record idempotency key", "error", err, "id", sub.ID)
		} else if !inserted {
			// A concurrent request with the same key won; answer with its id.
			if winner, found, _ := s.st.LookupSubmissionKey(key); found {
				slog.Warn("Server.submitFormHandler: lost idempotency race", "id", sub.ID, "winner", winner)
				writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Submission already received", SubmitResult{ID: winner}))
				return
			}
		}
	}

	if s.staffEmail != "" {
		s.enqueueStaffNotice(sub.ID)
	}

	slog.Info("Server.submitFormHandler: submission stored", "id", sub.ID)
	writeJSONResponse(w, http.StatusCreated, models.SuccessWithMessage("Submission received", SubmitResult{ID: sub.ID}))
}

func (s *Server) enqueueStaffNotice(submissionID string) {
	payload, err := json.Marshal(StaffNoticePayload{SubmissionID: submissionID})
	if err != nil {
		slog.Error("Server.enqueueStaffNotice: encode failed", "error", err)
		return
	}
	if _, err := s.st.EnqueueOutboxMessage(submissionID, store.OutboxKindStaffNotice, string(payload)); err != nil {
		slog.Error("Server.enqueueStaffNotice: enqueue failed", "error", err, "id", submissionID)
	}
}

// submissionsHandler serves GET /api/submissions and GET /api/submissions/{id}.
func (s *Server) submissionsHandler(w http.ResponseWriter, r *http.Request) {
	slog.Debug("Server.submissionsHandler: processing request", "method", r.Method, "path", r.URL.Path)
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}

	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/submissions"), "/")
	if id == "" {
		subs, err := s.st.GetSubmissions()
		if err != nil {
			slog.Error("Server.submissionsHandler: failed to fetch submissions", "error", err)
			writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to fetch submissions"))
			return
		}
		slog.Debug("Server.submissionsHandler: submissions fetched", "count", len(subs))
		writeJSONResponse(w, http.StatusOK, models.Success(subs))
		return
	}
	if strings.Contains(id, "/") {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Unknown submissions endpoint"))
		return
	}

	sub, err := s.st.GetSubmission(id)
	if errors.Is(err, store.ErrSubmissionNotFound) {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Submission not found"))
		return
	}
	if err != nil {
		slog.Error("Server.submissionsHandler: failed to fetch submission", "error", err, "id", id)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to fetch submission"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(sub))
}

func (s *Server) receiptsHandler(w http.ResponseWriter, r *http.Request) {
	slog.Debug("Server.receiptsHandler: processing receipts request", "method", r.Method, "path", r.URL.Path)
	if r.Method != http.MethodGet {
		slog.Warn("Server.receiptsHandler: method not allowed", "method", r.Method)
		methodNotAllowed(w, http.MethodGet)
		return
	}
	receipts, err := s.st.GetReceipts()
	if err != nil {
		slog.Error("Server.receiptsHandler: failed to fetch receipts", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to fetch receipts"))
		return
	}
	slog.Debug("Server.receiptsHandler: receipts fetched", "count", len(receipts))
	writeJSONResponse(w, http.StatusOK, models.Success(receipts))
}

// healthHandler provides a health check endpoint for monitoring and load balancing
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}

	healthData := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}

	statusCode := http.StatusOK
	if _, err := s.st.GetReceipts(); err != nil {
		slog.Warn("Server.healthHandler: store check failed", "error", err)
		healthData["status"] = "degraded"
		healthData["error"] = "Failed to reach the store"
		statusCode = http.StatusServiceUnavailable
	}

	writeJSONResponse(w, statusCode, healthData)
}
