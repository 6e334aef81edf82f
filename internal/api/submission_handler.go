package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"alcyxob/present-coach/internal/observability/logging"
	"alcyxob/present-coach/internal/service"
)

type SubmissionHandler struct {
	submissionService service.SubmissionService
}

func NewSubmissionHandler(submissionService service.SubmissionService) *SubmissionHandler {
	return &SubmissionHandler{submissionService: submissionService}
}

// --- DTOs ---

type CreateSubmissionRequest struct {
	SubmissionID  string `json:"submissionId"`
	PresenterName string `json:"presenterName"`
}

type PatchEmailRequest struct {
	SubmissionID  string `json:"submissionId"`
	TransactionID string `json:"transactionId"`
	Email         string `json:"email"`
}

type UploadURLsRequest struct {
	SubmissionID  string `json:"submissionId"`
	TransactionID string `json:"transactionId"`
	PresenterName string `json:"presenterName"`
}

// bindOptional decodes a JSON body into req. A missing or malformed body
// leaves req zero-valued so field validation reports what is missing. A body
// over the size limit is answered with 413 and reports false.
func bindOptional(c *gin.Context, req any) bool {
	err := c.ShouldBindJSON(req)
	if err == nil {
		return true
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		abortWithError(c, http.StatusRequestEntityTooLarge, "Request body too large")
		return false
	}
	logger := logging.WithComponent("http")
	logger.Debug().Err(err).Str("path", c.Request.URL.Path).Msg("request body not decoded")
	return true
}

// --- Handler Methods ---

// CreateSubmission godoc
// @Summary Register a submission before checkout
// @Description Creates a pending-payment submission keyed by the client generated id. Repeated calls never downgrade a paid submission.
// @Tags Submissions
// @Accept json
// @Produce plain
// @Param submission body CreateSubmissionRequest true "Submission id and optional presenter name"
// @Success 200 {string} string "ok"
// @Failure 400 {string} string "Missing submissionId"
// @Failure 500 {string} string "error"
// @Router /createSubmission [post]
func (h *SubmissionHandler) CreateSubmission(c *gin.Context) {
	var req CreateSubmissionRequest
	if !bindOptional(c, &req) {
		return
	}

	err := h.submissionService.CreateSubmission(c.Request.Context(), req.SubmissionID, req.PresenterName)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrMissingSubmissionID):
			abortWithError(c, http.StatusBadRequest, "Missing submissionId")
		default:
			h.internalError(c, err)
		}
		return
	}
	c.String(http.StatusOK, "ok")
}

// PaymentWebhook godoc
// @Summary Receive payment provider events
// @Description Confirms payment for transaction.completed events. Every other event type is acknowledged and ignored.
// @Tags Submissions
// @Accept json
// @Produce plain
// @Success 200 {string} string "ok or ignored"
// @Failure 400 {string} string "Missing submissionId"
// @Failure 413 {string} string "Request body too large"
// @Failure 500 {string} string "error"
// @Router /paddleWebhook [post]
func (h *SubmissionHandler) PaymentWebhook(c *gin.Context) {
	body := map[string]any{}
	if !bindOptional(c, &body) {
		return
	}
	if body == nil {
		body = map[string]any{}
	}

	res, err := h.submissionService.HandlePaymentEvent(c.Request.Context(), body)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrMissingSubmissionID):
			abortWithError(c, http.StatusBadRequest, "Missing submissionId")
		default:
			h.internalError(c, err)
		}
		return
	}
	if res.Ignored {
		c.String(http.StatusOK, "ignored")
		return
	}
	c.String(http.StatusOK, "ok")
}

// PatchSubmissionEmail godoc
// @Summary Attach the buyer email after checkout
// @Description Sets the email on a paid submission if none is stored yet. The caller must present the transaction id bound by the webhook.
// @Tags Submissions
// @Accept json
// @Produce plain
// @Param patch body PatchEmailRequest true "Submission id, transaction id and email"
// @Success 200 {string} string "ok or Email already set"
// @Failure 400 {string} string "Missing submissionId, transactionId, or email"
// @Failure 403 {string} string "transactionId mismatch"
// @Failure 404 {string} string "Submission not found"
// @Failure 409 {string} string "Submission missing transactionId (webhook not written yet)"
// @Failure 500 {string} string "error"
// @Router /patchSubmissionEmail [post]
func (h *SubmissionHandler) PatchSubmissionEmail(c *gin.Context) {
	var req PatchEmailRequest
	if !bindOptional(c, &req) {
		return
	}

	err := h.submissionService.PatchEmail(c.Request.Context(), req.SubmissionID, req.TransactionID, req.Email)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrEmailAlreadySet):
			c.String(http.StatusOK, "Email already set")
		case errors.Is(err, service.ErrMissingFields):
			abortWithError(c, http.StatusBadRequest, "Missing submissionId, transactionId, or email")
		case errors.Is(err, service.ErrInvalidEmail):
			abortWithError(c, http.StatusBadRequest, "Invalid email")
		default:
			h.authorizationError(c, err)
		}
		return
	}
	c.String(http.StatusOK, "ok")
}

// GetUploadURLs godoc
// @Summary Issue signed upload URLs for a paid submission
// @Description Returns three write-only URLs (slides, audio, metrics) valid for 15 minutes and records their object paths.
// @Tags Submissions
// @Accept json
// @Produce json
// @Param request body UploadURLsRequest true "Submission id, transaction id and optional presenter name"
// @Success 200 {object} service.UploadTargets
// @Failure 400 {string} string "Missing submissionId or transactionId"
// @Failure 403 {string} string "transactionId mismatch"
// @Failure 404 {string} string "Submission not found"
// @Failure 409 {string} string "Submission missing transactionId (webhook not written yet)"
// @Failure 500 {string} string "error"
// @Router /getUploadUrls [post]
func (h *SubmissionHandler) GetUploadURLs(c *gin.Context) {
	var req UploadURLsRequest
	if !bindOptional(c, &req) {
		return
	}

	targets, err := h.submissionService.PrepareUploads(c.Request.Context(), req.SubmissionID, req.TransactionID, req.PresenterName)
	if err != nil {
		if errors.Is(err, service.ErrMissingFields) {
			abortWithError(c, http.StatusBadRequest, "Missing submissionId or transactionId")
			return
		}
		h.authorizationError(c, err)
		return
	}
	c.JSON(http.StatusOK, targets)
}

func (h *SubmissionHandler) authorizationError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrSubmissionNotFound):
		abortWithError(c, http.StatusNotFound, "Submission not found")
	case errors.Is(err, service.ErrNotYetPaid):
		abortWithError(c, http.StatusConflict, "Submission missing transactionId (webhook not written yet)")
	case errors.Is(err, service.ErrTransactionMismatch):
		abortWithError(c, http.StatusForbidden, "transactionId mismatch")
	default:
		h.internalError(c, err)
	}
}

func (h *SubmissionHandler) internalError(c *gin.Context, err error) {
	logger := logging.WithComponent("http")
	logger.Error().Err(err).Str("path", c.Request.URL.Path).Msg("request failed")
	abortWithError(c, http.StatusInternalServerError, "error")
}
