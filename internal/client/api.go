// Package client talks to the submission server and coordinates payment and
// asset upload for a rehearsal session.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultTimeout = 30 * time.Second
	maxErrorBody   = 4 << 10

	pathCreateSubmission = "/createSubmission"
	pathPatchEmail       = "/patchSubmissionEmail"
	pathUploadURLs       = "/getUploadUrls"
)

// APIError is a non-2xx response from the submission server.
type APIError struct {
	Op         string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %d %s", e.Op, e.StatusCode, e.Message)
}

// IsRetryLater reports whether the payment has not been confirmed yet.
func (e *APIError) IsRetryLater() bool { return e.StatusCode == http.StatusConflict }

// IsForbidden reports whether the transaction id was rejected.
func (e *APIError) IsForbidden() bool { return e.StatusCode == http.StatusForbidden }

// IsNotFound reports whether the submission is unknown to the server.
func (e *APIError) IsNotFound() bool { return e.StatusCode == http.StatusNotFound }

// UploadTargets are the signed URLs and object paths for one transaction.
type UploadTargets struct {
	SubmissionID  string `json:"submissionId"`
	TransactionID string `json:"transactionId"`
	SlidesURL     string `json:"slidesUrl"`
	AudioURL      string `json:"audioUrl"`
	MetricsURL    string `json:"metricsUrl"`
	SlidesPath    string `json:"slidesPath"`
	AudioPath     string `json:"audioPath"`
	MetricsPath   string `json:"metricsPath"`
}

// API is a client for the submission server endpoints.
type API struct {
	baseURL    string
	httpClient *http.Client
}

// NewAPI creates a client for the server at baseURL. A nil httpClient gets
// a default with a 30s timeout.
func NewAPI(baseURL string, httpClient *http.Client) *API {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return &API{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

// CreateSubmission registers a pending submission.
func (a *API) CreateSubmission(ctx context.Context, submissionID, presenterName string) error {
	_, err := a.post(ctx, "create submission", pathCreateSubmission, map[string]string{
		"submissionId":  submissionID,
		"presenterName": presenterName,
	})
	return err
}

// PatchEmail attaches the buyer email. alreadySet is true when the server
// kept an email stored earlier.
func (a *API) PatchEmail(ctx context.Context, submissionID, transactionID, email string) (alreadySet bool, err error) {
	body, err := a.post(ctx, "patch email", pathPatchEmail, map[string]string{
		"submissionId":  submissionID,
		"transactionId": transactionID,
		"email":         email,
	})
	if err != nil {
		return false, err
	}
	return strings.Contains(strings.ToLower(string(body)), "already set"), nil
}

// GetUploadURLs requests the signed upload URLs for a paid submission.
func (a *API) GetUploadURLs(ctx context.Context, submissionID, transactionID, presenterName string) (*UploadTargets, error) {
	req := map[string]string{
		"submissionId":  submissionID,
		"transactionId": transactionID,
	}
	if presenterName != "" {
		req["presenterName"] = presenterName
	}

	body, err := a.post(ctx, "get upload urls", pathUploadURLs, req)
	if err != nil {
		return nil, err
	}

	var targets UploadTargets
	if err := json.Unmarshal(body, &targets); err != nil {
		return nil, fmt.Errorf("decode upload urls: %w", err)
	}
	if targets.SlidesURL == "" || targets.AudioURL == "" || targets.MetricsURL == "" {
		return nil, fmt.Errorf("decode upload urls: incomplete response")
	}
	return &targets, nil
}

// Ping checks that the server is reachable.
func (a *API) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/ping", nil)
	if err != nil {
		return fmt.Errorf("ping: create request: %w", err)
	}
	resp, err := a.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return decodeAPIError("ping", resp)
	}
	return nil
}

// Put uploads data to a signed URL with the content type it was signed for.
func (a *API) Put(ctx context.Context, url, contentType string, data []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("create upload request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.ContentLength = int64(len(data))

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("upload: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return decodeAPIError("upload", resp)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func (a *API) post(ctx context.Context, op, path string, payload any) ([]byte, error) {
	buf, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%s: encode request: %w", op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+path, bytes.NewReader(buf))
	if err != nil {
		return nil, fmt.Errorf("%s: create request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, decodeAPIError(op, resp)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s: read response: %w", op, err)
	}
	return body, nil
}

func decodeAPIError(op string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	msg := strings.TrimSpace(string(body))
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	return &APIError{Op: op, StatusCode: resp.StatusCode, Message: msg}
}
