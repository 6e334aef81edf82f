package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alcyxob/present-coach/internal/analysis"
	"alcyxob/present-coach/internal/recording"
	"alcyxob/present-coach/internal/session"
)

// --- fakes ---

type stubCapture struct{ clip recording.Clip }

func (c *stubCapture) Pause() error                  { return nil }
func (c *stubCapture) Resume() error                 { return nil }
func (c *stubCapture) Stop() (recording.Clip, error) { return c.clip, nil }

type stubDevice struct{ clip recording.Clip }

func (d *stubDevice) Open(context.Context) (recording.Capture, error) {
	return &stubCapture{clip: d.clip}, nil
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func toneDecoder(recording.Clip) (analysis.Waveform, error) {
	samples := make([]float64, 8000)
	for i := range samples {
		samples[i] = 0.2
	}
	return analysis.Waveform{Samples: samples, SampleRate: 8000}, nil
}

func failingDecoder(recording.Clip) (analysis.Waveform, error) {
	return analysis.Waveform{}, errors.New("cannot decode")
}

type recordingCheckout struct {
	requests []CheckoutRequest
	err      error
}

func (r *recordingCheckout) Open(ctx context.Context, req CheckoutRequest) error {
	r.requests = append(r.requests, req)
	return r.err
}

type upload struct {
	contentType string
	body        []byte
}

// fakeServer plays the submission server and the object store.
type fakeServer struct {
	*httptest.Server

	mu        sync.Mutex
	calls     map[string]int
	bodies    map[string]map[string]string
	uploads   map[string]upload
	patchResp string
	failPaths map[string]int // path -> status code
}

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()
	f := &fakeServer{
		calls:     make(map[string]int),
		bodies:    make(map[string]map[string]string),
		uploads:   make(map[string]upload),
		patchResp: "ok",
		failPaths: make(map[string]int),
	}
	f.Server = httptest.NewServer(http.HandlerFunc(f.handle))
	t.Cleanup(f.Close)
	return f
}

func (f *fakeServer) handle(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[r.URL.Path]++

	if code, ok := f.failPaths[r.URL.Path]; ok {
		http.Error(w, "transactionId mismatch", code)
		return
	}

	if r.Method == http.MethodPut {
		data, _ := io.ReadAll(r.Body)
		f.uploads[r.URL.Path] = upload{contentType: r.Header.Get("Content-Type"), body: data}
		w.WriteHeader(http.StatusOK)
		return
	}

	var body map[string]string
	_ = json.NewDecoder(r.Body).Decode(&body)
	f.bodies[r.URL.Path] = body

	switch r.URL.Path {
	case pathCreateSubmission:
		_, _ = io.WriteString(w, "ok")
	case pathPatchEmail:
		_, _ = io.WriteString(w, f.patchResp)
	case pathUploadURLs:
		base := "submissions/" + body["submissionId"] + "/transactions/" + body["transactionId"] + "/"
		_ = json.NewEncoder(w).Encode(UploadTargets{
			SubmissionID:  body["submissionId"],
			TransactionID: body["transactionId"],
			SlidesURL:     f.URL + "/store/slides.pdf",
			AudioURL:      f.URL + "/store/audio.webm",
			MetricsURL:    f.URL + "/store/metrics.json",
			SlidesPath:    base + "slides.pdf",
			AudioPath:     base + "audio.webm",
			MetricsPath:   base + "metrics.json",
		})
	default:
		http.NotFound(w, r)
	}
}

func (f *fakeServer) count(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[path]
}

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func newSession(t *testing.T, decoder recording.Decoder) (*session.Session, *testClock) {
	t.Helper()
	c := &testClock{now: t0}
	s := session.New(&stubDevice{clip: recording.Clip{Data: []byte("RIFF....WAVE"), ContentType: "audio/wav"}},
		session.WithClock(c.Now),
		session.WithTickInterval(0),
		session.WithDecoder(decoder),
	)
	t.Cleanup(s.Close)
	return s, c
}

// rehearse attaches a deck and records a short take across two slides.
func rehearse(t *testing.T, s *session.Session, c *testClock) {
	t.Helper()
	deck, err := session.NewSlideDeck("talk.pdf", []byte("%PDF-1.4 deck"), 3)
	require.NoError(t, err)
	require.NoError(t, s.AttachSlides(deck))

	require.NoError(t, s.Recorder().Start(context.Background()))
	c.Advance(2 * time.Second)
	_, err = s.Tracker().NextPage()
	require.NoError(t, err)
	s.Tracker().OpenAudience()
	c.Advance(time.Second)
	// decode failures still leave the clip behind
	_, _ = s.Recorder().Stop()
	require.NotNil(t, s.LastRecording())
}

func newCoordinator(srv *fakeServer, s *session.Session, checkout Checkout) *Coordinator {
	return NewCoordinator(NewAPI(srv.URL, srv.Client()), s, checkout,
		WithIDGenerator(func() string { return "sub123" }),
		WithCoordinatorClock(func() time.Time { return t0.Add(time.Hour) }),
	)
}

// --- tests ---

func TestBeginCheckout_GateBlocksWithoutNetwork(t *testing.T) {
	srv := newFakeServer(t)
	s, _ := newSession(t, toneDecoder)
	checkout := &recordingCheckout{}
	coord := newCoordinator(srv, s, checkout)

	_, err := coord.BeginCheckout(context.Background(), "  ")
	assert.ErrorIs(t, err, session.ErrNameMissing)

	_, err = coord.BeginCheckout(context.Background(), "Ada")
	assert.ErrorIs(t, err, session.ErrPrerequisitesIncomplete)

	assert.Zero(t, srv.count(pathCreateSubmission))
	assert.Empty(t, checkout.requests)
}

func TestBeginCheckout(t *testing.T) {
	srv := newFakeServer(t)
	s, c := newSession(t, toneDecoder)
	rehearse(t, s, c)
	checkout := &recordingCheckout{}
	coord := newCoordinator(srv, s, checkout)

	id, err := coord.BeginCheckout(context.Background(), "Ada")
	require.NoError(t, err)
	assert.Equal(t, "sub123", id)
	assert.Equal(t, "sub123", s.SubmissionID())

	assert.Equal(t, map[string]string{"submissionId": "sub123", "presenterName": "Ada"}, srv.bodies[pathCreateSubmission])
	require.Len(t, checkout.requests, 1)
	assert.Equal(t, CheckoutRequest{SubmissionID: "sub123", PresenterName: "Ada"}, checkout.requests[0])
}

func TestBeginCheckout_DefaultIDsAreUnique(t *testing.T) {
	srv := newFakeServer(t)
	s, c := newSession(t, toneDecoder)
	rehearse(t, s, c)
	coord := NewCoordinator(NewAPI(srv.URL, srv.Client()), s, &recordingCheckout{})

	a, err := coord.BeginCheckout(context.Background(), "Ada")
	require.NoError(t, err)
	b, err := coord.BeginCheckout(context.Background(), "Ada")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
	assert.Len(t, a, 36)
}

func TestBeginCheckout_ServerError(t *testing.T) {
	srv := newFakeServer(t)
	srv.failPaths[pathCreateSubmission] = http.StatusInternalServerError
	s, c := newSession(t, toneDecoder)
	rehearse(t, s, c)
	checkout := &recordingCheckout{}
	coord := newCoordinator(srv, s, checkout)

	_, err := coord.BeginCheckout(context.Background(), "Ada")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusInternalServerError, apiErr.StatusCode)
	assert.Empty(t, checkout.requests)
	assert.Empty(t, s.SubmissionID())
}

func TestCompletePayment_PatchesCapturedEmail(t *testing.T) {
	srv := newFakeServer(t)
	s, c := newSession(t, toneDecoder)
	rehearse(t, s, c)
	coord := newCoordinator(srv, s, &recordingCheckout{})
	_, err := coord.BeginCheckout(context.Background(), "Ada")
	require.NoError(t, err)

	coord.CaptureCheckoutEmail("a@b.com")
	report, err := coord.CompletePayment(context.Background(), PaymentResult{TransactionID: "txn789"})
	require.NoError(t, err)

	assert.True(t, report.EmailPatched)
	assert.False(t, report.EmailAlreadySet)
	assert.NoError(t, report.EmailErr)
	assert.Equal(t, session.Payment{SubmissionID: "sub123", TransactionID: "txn789", Email: "a@b.com"}, report.Payment)
	assert.Equal(t, map[string]string{
		"submissionId":  "sub123",
		"transactionId": "txn789",
		"email":         "a@b.com",
	}, srv.bodies[pathPatchEmail])
}

func TestCompletePayment_AlreadySetIsSuccess(t *testing.T) {
	srv := newFakeServer(t)
	srv.patchResp = "Email already set"
	s, _ := newSession(t, toneDecoder)
	s.BeginSubmission("sub123")
	coord := newCoordinator(srv, s, &recordingCheckout{})

	report, err := coord.CompletePayment(context.Background(), PaymentResult{TransactionID: "txn789", Email: "a@b.com"})
	require.NoError(t, err)
	assert.True(t, report.EmailPatched)
	assert.True(t, report.EmailAlreadySet)
}

func TestCompletePayment_PatchFailureIsNotFatal(t *testing.T) {
	srv := newFakeServer(t)
	srv.failPaths[pathPatchEmail] = http.StatusConflict
	s, _ := newSession(t, toneDecoder)
	s.BeginSubmission("sub123")
	coord := newCoordinator(srv, s, &recordingCheckout{})

	report, err := coord.CompletePayment(context.Background(), PaymentResult{TransactionID: "txn789", Email: "a@b.com"})
	require.NoError(t, err)
	assert.False(t, report.EmailPatched)

	var apiErr *APIError
	require.ErrorAs(t, report.EmailErr, &apiErr)
	assert.True(t, apiErr.IsRetryLater())

	p, ok := s.Payment()
	require.True(t, ok)
	assert.Equal(t, "txn789", p.TransactionID)
}

func TestCompletePayment_NoEmailSkipsPatch(t *testing.T) {
	srv := newFakeServer(t)
	s, _ := newSession(t, toneDecoder)
	s.BeginSubmission("sub123")
	coord := newCoordinator(srv, s, &recordingCheckout{})

	report, err := coord.CompletePayment(context.Background(), PaymentResult{TransactionID: "txn789"})
	require.NoError(t, err)
	assert.False(t, report.EmailPatched)
	assert.Zero(t, srv.count(pathPatchEmail))
}

func TestCompletePayment_Errors(t *testing.T) {
	srv := newFakeServer(t)
	s, _ := newSession(t, toneDecoder)
	coord := newCoordinator(srv, s, &recordingCheckout{})

	_, err := coord.CompletePayment(context.Background(), PaymentResult{TransactionID: " "})
	assert.ErrorIs(t, err, ErrNoTransactionID)

	_, err = coord.CompletePayment(context.Background(), PaymentResult{TransactionID: "txn789"})
	assert.ErrorIs(t, err, ErrNoSubmission)
}

func TestUploadAssets(t *testing.T) {
	srv := newFakeServer(t)
	s, c := newSession(t, toneDecoder)
	rehearse(t, s, c)
	coord := newCoordinator(srv, s, &recordingCheckout{})
	_, err := coord.BeginCheckout(context.Background(), "Ada")
	require.NoError(t, err)
	_, err = coord.CompletePayment(context.Background(), PaymentResult{TransactionID: "txn789", Email: "a@b.com"})
	require.NoError(t, err)

	report, err := coord.UploadAssets(context.Background())
	require.NoError(t, err)
	assert.True(t, report.Success())
	assert.NoError(t, report.Err())
	assert.Equal(t, "submissions/sub123/transactions/txn789/slides.pdf", report.Slides.Path)

	assert.Equal(t, map[string]string{
		"submissionId":  "sub123",
		"transactionId": "txn789",
		"presenterName": "Ada",
	}, srv.bodies[pathUploadURLs])

	slides := srv.uploads["/store/slides.pdf"]
	assert.Equal(t, SlidesContentType, slides.contentType)
	assert.Equal(t, []byte("%PDF-1.4 deck"), slides.body)

	audio := srv.uploads["/store/audio.webm"]
	assert.Equal(t, AudioContentType, audio.contentType)
	assert.Equal(t, []byte("RIFF....WAVE"), audio.body)

	metrics := srv.uploads["/store/metrics.json"]
	assert.Equal(t, MetricsContentType, metrics.contentType)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(metrics.body, &doc))
	assert.Equal(t, "sub123", doc["submissionId"])
	assert.Equal(t, "txn789", doc["transactionId"])
	assert.Equal(t, "Ada", doc["presenterName"])
	assert.Equal(t, "a@b.com", doc["email"])
	assert.Equal(t, "2026-03-01T10:00:00Z", doc["createdAtClient"])

	free, ok := doc["freeAudioMetrics"].(map[string]any)
	require.True(t, ok)
	for _, key := range []string{"avgVolumeText", "speechTimeText", "paceText", "toneText"} {
		assert.NotEmpty(t, free[key], key)
	}

	timings, ok := doc["slideTimings"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, map[string]any{"total_ms": float64(2000), "audience_ms": float64(0)}, timings["1"])
	assert.Equal(t, map[string]any{"total_ms": float64(1000), "audience_ms": float64(1000)}, timings["2"])
}

func TestUploadAssets_MissingArtifactsMakeNoRequest(t *testing.T) {
	t.Run("slides", func(t *testing.T) {
		srv := newFakeServer(t)
		s, _ := newSession(t, toneDecoder)
		s.BeginSubmission("sub123")
		s.RecordPayment(session.Payment{TransactionID: "txn789"})

		_, err := newCoordinator(srv, s, nil).UploadAssets(context.Background())
		var missing *MissingArtifactError
		require.ErrorAs(t, err, &missing)
		assert.Equal(t, ArtifactSlides, missing.Category)
		assert.Zero(t, srv.count(pathUploadURLs))
	})

	t.Run("audio", func(t *testing.T) {
		srv := newFakeServer(t)
		s, _ := newSession(t, toneDecoder)
		deck, err := session.NewSlideDeck("talk.pdf", []byte("%PDF"), 2)
		require.NoError(t, err)
		require.NoError(t, s.AttachSlides(deck))
		s.RecordPayment(session.Payment{SubmissionID: "sub123", TransactionID: "txn789"})

		_, err = newCoordinator(srv, s, nil).UploadAssets(context.Background())
		var missing *MissingArtifactError
		require.ErrorAs(t, err, &missing)
		assert.Equal(t, ArtifactAudio, missing.Category)
		assert.Zero(t, srv.count(pathUploadURLs))
	})

	t.Run("metrics", func(t *testing.T) {
		srv := newFakeServer(t)
		s, c := newSession(t, failingDecoder)
		rehearse(t, s, c)
		s.RecordPayment(session.Payment{SubmissionID: "sub123", TransactionID: "txn789"})

		_, err := newCoordinator(srv, s, nil).UploadAssets(context.Background())
		var missing *MissingArtifactError
		require.ErrorAs(t, err, &missing)
		assert.Equal(t, ArtifactMetrics, missing.Category)
		assert.Zero(t, srv.count(pathUploadURLs))
	})

	t.Run("timing", func(t *testing.T) {
		srv := newFakeServer(t)
		s, c := newSession(t, toneDecoder)
		rehearse(t, s, c)
		// a new deck discards the timings of the recorded one
		deck, err := session.NewSlideDeck("other.pdf", []byte("%PDF"), 2)
		require.NoError(t, err)
		require.NoError(t, s.AttachSlides(deck))
		s.RecordPayment(session.Payment{SubmissionID: "sub123", TransactionID: "txn789"})

		_, err = newCoordinator(srv, s, nil).UploadAssets(context.Background())
		var missing *MissingArtifactError
		require.ErrorAs(t, err, &missing)
		assert.Equal(t, ArtifactTiming, missing.Category)
		assert.Zero(t, srv.count(pathUploadURLs))
	})
}

func TestUploadAssets_RequiresPayment(t *testing.T) {
	srv := newFakeServer(t)
	s, c := newSession(t, toneDecoder)
	rehearse(t, s, c)

	_, err := newCoordinator(srv, s, nil).UploadAssets(context.Background())
	assert.ErrorIs(t, err, ErrNotPaid)
	assert.Zero(t, srv.count(pathUploadURLs))
}

func TestUploadAssets_Forbidden(t *testing.T) {
	srv := newFakeServer(t)
	srv.failPaths[pathUploadURLs] = http.StatusForbidden
	s, c := newSession(t, toneDecoder)
	rehearse(t, s, c)
	s.RecordPayment(session.Payment{SubmissionID: "sub123", TransactionID: "wrong"})

	_, err := newCoordinator(srv, s, nil).UploadAssets(context.Background())
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.True(t, apiErr.IsForbidden())
	assert.Equal(t, "transactionId mismatch", apiErr.Message)
	assert.Zero(t, srv.count("/store/slides.pdf"))
}

func TestUploadAssets_PartialFailureReported(t *testing.T) {
	srv := newFakeServer(t)
	srv.failPaths["/store/audio.webm"] = http.StatusForbidden
	s, c := newSession(t, toneDecoder)
	rehearse(t, s, c)
	s.RecordPayment(session.Payment{SubmissionID: "sub123", TransactionID: "txn789"})

	report, err := newCoordinator(srv, s, nil).UploadAssets(context.Background())
	require.NoError(t, err)
	assert.False(t, report.Success())
	assert.True(t, report.Slides.OK())
	assert.True(t, report.Metrics.OK())
	assert.False(t, report.Audio.OK())
	assert.ErrorContains(t, report.Err(), "audio")

	assert.Equal(t, 1, srv.count("/store/slides.pdf"))
	assert.Equal(t, 1, srv.count("/store/metrics.json"))
	assert.Equal(t, 1, srv.count("/store/audio.webm"))
}

func TestLinkCheckout(t *testing.T) {
	var out strings.Builder
	lc := &LinkCheckout{BaseURL: "https://pay.example.com/checkout", PriceID: "pri_1", Out: &out}

	require.NoError(t, lc.Open(context.Background(), CheckoutRequest{SubmissionID: "sub123", PresenterName: "Ada L"}))
	assert.Contains(t, out.String(), "https://pay.example.com/checkout?")
	assert.Contains(t, out.String(), "custom_data%5BsubmissionId%5D=sub123")
	assert.Contains(t, out.String(), "custom_data%5BpresenterName%5D=Ada+L")
	assert.Contains(t, out.String(), "price_id=pri_1")

	_, err := (&LinkCheckout{BaseURL: "not a url"}).Link(CheckoutRequest{SubmissionID: "x"})
	assert.Error(t, err)
}
