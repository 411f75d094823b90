package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pamaxie/Pamaxie.Scan-API/internal/auth"
	"github.com/pamaxie/Pamaxie.Scan-API/internal/media"
	"github.com/pamaxie/Pamaxie.Scan-API/internal/scan"
)

type fakeDB struct {
	mu sync.Mutex

	connected bool
	authed    map[string]bool
	internal  map[string]bool

	results    map[string]string
	deleted    []string
	authChecks int
	setErr     error
}

func newFakeDB() *fakeDB {
	return &fakeDB{
		connected: true,
		authed:    map[string]bool{},
		internal:  map[string]bool{},
		results:   map[string]string{},
	}
}

func (f *fakeDB) CheckConnection(ctx context.Context) bool { return f.connected }

func (f *fakeDB) CheckAuth(ctx context.Context, authorization string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.authChecks++
	return f.authed[authorization]
}

func (f *fakeDB) IsInternalAuth(ctx context.Context, authorization string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.internal[authorization]
}

func (f *fakeDB) GetScan(ctx context.Context, fingerprint string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored, ok := f.results[fingerprint]
	return stored, ok, nil
}

func (f *fakeDB) SetScan(ctx context.Context, resultJSON string) error {
	if f.setErr != nil {
		return f.setErr
	}
	var result scan.Result
	if err := json.Unmarshal([]byte(resultJSON), &result); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results[result.Key] = resultJSON
	return nil
}

func (f *fakeDB) DeleteScan(ctx context.Context, fingerprint string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, fingerprint)
	delete(f.results, fingerprint)
	return nil
}

type fakeObjects struct {
	mu      sync.Mutex
	data    map[string][]byte
	deleted []string
}

func newFakeObjects() *fakeObjects {
	return &fakeObjects{data: map[string][]byte{}}
}

func (f *fakeObjects) Put(ctx context.Context, key string, data []byte, contentType string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[key] = data
	return nil
}

func (f *fakeObjects) Get(ctx context.Context, key string) ([]byte, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.data[key]
	return data, ok, nil
}

func (f *fakeObjects) Delete(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, key)
	delete(f.data, key)
	return nil
}

type fakeQueue struct {
	mu       sync.Mutex
	messages []string
}

func (f *fakeQueue) Send(ctx context.Context, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, body)
	return nil
}

func (f *fakeQueue) ReceiveAndDelete(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.messages) == 0 {
		return "", nil
	}
	body := f.messages[0]
	f.messages = f.messages[1:]
	return body, nil
}

// testHarness wires a server over in-memory stores with millisecond-scale
// budgets so poll loops finish within a test run.
type testHarness struct {
	db      *fakeDB
	objects *fakeObjects
	queue   *fakeQueue
	router  http.Handler
}

func newHarness(t *testing.T) *testHarness {
	return newHarnessWith(t, 3, time.Millisecond)
}

func newHarnessWith(t *testing.T, pollAttempts int, pollInterval time.Duration) *testHarness {
	t.Helper()
	db := newFakeDB()
	objects := newFakeObjects()
	queue := &fakeQueue{}

	coordinator := scan.NewCoordinator(db, objects, queue, "https://scan.test", pollAttempts, pollInterval)
	srv := New(coordinator, db, objects, queue, Options{LeaseAttempts: 3, LeaseInterval: 1})

	return &testHarness{db: db, objects: objects, queue: queue, router: srv.Router()}
}

func (h *testHarness) do(method, path, authorization string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	return rec
}

func testPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 1, 1))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func fingerprintOf(t *testing.T, payload []byte) string {
	t.Helper()
	canonical, err := media.Canonicalize(payload)
	require.NoError(t, err)
	return media.Hash(canonical)
}

func storedResult(t *testing.T, fingerprint string) string {
	t.Helper()
	stored, err := json.Marshal(&scan.Result{
		Key:             fingerprint,
		ScanResult:      "r",
		DataType:        "image",
		DataExtension:   "png",
		ScanMachineGUID: "w1",
	})
	require.NoError(t, err)
	return string(stored)
}

// workerToken builds a signed bearer whose claims carry the machine guid.
// The server never verifies the signature, matching production where the
// database api owns key material.
func workerToken(t *testing.T, machineGUID string, isAPIToken bool) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, &auth.TokenClaims{
		OwnerID:             7,
		IsAPIToken:          isAPIToken,
		APITokenMachineGUID: machineGUID,
		ProjectID:           3,
	})
	signed, err := token.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return "Bearer " + signed
}

func TestStatusReportsDatabaseHealth(t *testing.T) {
	h := newHarness(t)

	rec := h.do(http.MethodGet, "/scan/v1/status", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"SCAN_STATUS":"Ok","DB_STATUS":"Ok"}`, rec.Body.String())

	h.db.connected = false
	rec = h.do(http.MethodGet, "/scan/v1/status", "", nil)
	assert.JSONEq(t, `{"SCAN_STATUS":"Ok","DB_STATUS":"Unavailable"}`, rec.Body.String())
}

func TestMissingAuthorizationRejectedWithoutDatabaseCall(t *testing.T) {
	h := newHarness(t)

	rec := h.do(http.MethodPost, "/scan/v1/detection/detectImage", "", testPNG(t))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Zero(t, h.db.authChecks)
}

func TestUnknownBearerRejected(t *testing.T) {
	h := newHarness(t)

	rec := h.do(http.MethodPost, "/scan/v1/detection/detectImage", "Bearer nope", testPNG(t))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, 1, h.db.authChecks)
}

func TestDetectImageReturnsStoredResult(t *testing.T) {
	h := newHarness(t)
	h.db.authed["Bearer client"] = true

	payload := testPNG(t)
	fingerprint := fingerprintOf(t, payload)
	h.db.results[fingerprint] = storedResult(t, fingerprint)

	rec := h.do(http.MethodPost, "/scan/v1/detection/detectImage", "Bearer client", payload)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, h.db.results[fingerprint], rec.Body.String())
	assert.Empty(t, h.queue.messages, "a cache hit never enqueues")
}

func TestDetectImageEmptyBody(t *testing.T) {
	h := newHarness(t)
	h.db.authed["Bearer client"] = true

	rec := h.do(http.MethodPost, "/scan/v1/detection/detectImage", "Bearer client", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDetectImageSoftTimeout(t *testing.T) {
	h := newHarness(t)
	h.db.authed["Bearer client"] = true

	rec := h.do(http.MethodPost, "/scan/v1/detection/detectImage", "Bearer client", testPNG(t))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
	assert.Contains(t, rec.Body.String(), "timely manner")
	assert.Len(t, h.queue.messages, 1)
}

func TestDetectImageRejectsNonImage(t *testing.T) {
	h := newHarness(t)
	h.db.authed["Bearer client"] = true

	rec := h.do(http.MethodPost, "/scan/v1/detection/detectImage", "Bearer client", []byte("random bytes, not an image"))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "validate its data type")
}

func TestDetectDeclinesOtherMediaKinds(t *testing.T) {
	h := newHarness(t)
	h.db.authed["Bearer client"] = true

	// An ID3v2 header sniffs as audio.
	mp3 := append([]byte("ID3"), make([]byte, 32)...)
	rec := h.do(http.MethodPost, "/scan/v1/detection/detect", "Bearer client", mp3)
	assert.Equal(t, http.StatusNotImplemented, rec.Code)
	assert.Contains(t, rec.Body.String(), "We do not support this media type yet.")
}

func TestDetectAnswersUnrecognizableBytes(t *testing.T) {
	h := newHarness(t)
	h.db.authed["Bearer client"] = true

	rec := h.do(http.MethodPost, "/scan/v1/detection/detect", "Bearer client", []byte("????"))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Incorrect Result", rec.Body.String())
}

func TestDetectRoutesImagesToTheCoordinator(t *testing.T) {
	h := newHarness(t)
	h.db.authed["Bearer client"] = true

	payload := testPNG(t)
	fingerprint := fingerprintOf(t, payload)
	h.db.results[fingerprint] = storedResult(t, fingerprint)

	rec := h.do(http.MethodPost, "/scan/v1/detection/detect", "Bearer client", payload)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, h.db.results[fingerprint], rec.Body.String())
}

func TestGetHashFingerprintsRawBytes(t *testing.T) {
	h := newHarness(t)

	rec := h.do(http.MethodPost, "/scan/v1/detection/getHash", "", []byte("hello"))
	require.Equal(t, http.StatusOK, rec.Code)

	// Blake2b-512 of "hello", over the raw bytes, never canonicalized.
	assert.Equal(t,
		"e4cfa39a3d37be31c59609e807970799caa68a19bfaa15135f165085e01d41a65ba1e1b146aeb6bd0092b49eac214c103ccfa3a365954bbbe52f74a2b3620c94",
		rec.Body.String())
	assert.Len(t, rec.Body.String(), 128)
}

func TestDetectImageFromURLFetchesAndRecognizes(t *testing.T) {
	h := newHarness(t)
	h.db.authed["Bearer client"] = true

	payload := testPNG(t)
	fingerprint := fingerprintOf(t, payload)
	h.db.results[fingerprint] = storedResult(t, fingerprint)

	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(payload)
	}))
	defer origin.Close()

	rec := h.do(http.MethodPost, "/scan/v1/detection/detectImageFromUrl", "Bearer client", []byte(origin.URL))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, h.db.results[fingerprint], rec.Body.String())
}

func TestDetectImageFromURLRejectsBadInput(t *testing.T) {
	h := newHarness(t)
	h.db.authed["Bearer client"] = true

	rec := h.do(http.MethodPost, "/scan/v1/detection/detectImageFromUrl", "Bearer client", []byte("not a url"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "valid url")

	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer origin.Close()

	rec = h.do(http.MethodPost, "/scan/v1/detection/detectImageFromUrl", "Bearer client", []byte(origin.URL+"/gone.png"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Could not fetch the image")
}

func TestFullLifecycleClientAndWorker(t *testing.T) {
	// A generous poll budget keeps the client waiting while the worker side
	// of the test leases and completes the job.
	h := newHarnessWith(t, 1000, 2*time.Millisecond)
	h.db.authed["Bearer client"] = true
	workerAuth := workerToken(t, "w1", true)
	h.db.authed[workerAuth] = true
	h.db.internal[workerAuth] = true

	payload := testPNG(t)
	fingerprint := fingerprintOf(t, payload)

	clientDone := make(chan *httptest.ResponseRecorder, 1)
	go func() {
		clientDone <- h.do(http.MethodPost, "/scan/v1/detection/detectImage", "Bearer client", payload)
	}()

	// Worker side: lease the job the client just enqueued.
	var job scan.Job
	require.Eventually(t, func() bool {
		rec := h.do(http.MethodGet, "/scan/v1/worker/get_work", workerAuth, nil)
		if rec.Code != http.StatusOK {
			return false
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &job))
		return true
	}, 2*time.Second, time.Millisecond)

	assert.Equal(t, fingerprint, job.ImageHash)
	assert.Equal(t, "https://scan.test/scan/v1/worker/get_image/"+fingerprint+".png", job.ScanURL)

	// The staged payload is retrievable under the descriptor key.
	key := fingerprint + "." + job.DataExtension
	rec := h.do(http.MethodGet, "/scan/v1/worker/get_image/"+key, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))

	completed, err := json.Marshal(&scan.Result{
		Key:           job.ImageHash,
		ScanResult:    "r",
		DataType:      job.DataType,
		DataExtension: job.DataExtension,
	})
	require.NoError(t, err)
	rec = h.do(http.MethodPost, "/scan/v1/worker/post_result", workerAuth, completed)
	require.Equal(t, http.StatusOK, rec.Code)

	clientRec := <-clientDone
	require.Equal(t, http.StatusOK, clientRec.Code)

	var result scan.Result
	require.NoError(t, json.Unmarshal(clientRec.Body.Bytes(), &result))
	assert.Equal(t, fingerprint, result.Key)
	assert.Equal(t, "w1", result.ScanMachineGUID)
	assert.True(t, result.IsUserScan, "provenance flag comes from the internal-auth verdict")

	// The staged object was freed on acceptance.
	assert.Contains(t, h.objects.deleted, key)
	assert.Empty(t, h.objects.data)
}

func TestGetWorkRequiresInternalToken(t *testing.T) {
	h := newHarness(t)
	h.db.authed["Bearer outsider"] = true

	rec := h.do(http.MethodGet, "/scan/v1/worker/get_work", "Bearer outsider", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "pamaxie's own clients")
}

func TestGetWorkReportsNoWorkWhenQueueStaysEmpty(t *testing.T) {
	h := newHarness(t)
	workerAuth := workerToken(t, "w1", true)
	h.db.authed[workerAuth] = true
	h.db.internal[workerAuth] = true

	rec := h.do(http.MethodGet, "/scan/v1/worker/get_work", workerAuth, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "no work")
}

func TestGetWorkSkipsAlreadyCompletedJobs(t *testing.T) {
	h := newHarness(t)
	workerAuth := workerToken(t, "w1", true)
	h.db.authed[workerAuth] = true
	h.db.internal[workerAuth] = true

	h.db.results["done"] = storedResult(t, "done")
	completedJob, err := json.Marshal(&scan.Job{
		ImageHash: "done", ScanURL: "https://scan.test/scan/v1/worker/get_image/done.png",
		DataType: "image", DataExtension: "png",
	})
	require.NoError(t, err)
	require.NoError(t, h.queue.Send(context.Background(), string(completedJob)))

	rec := h.do(http.MethodGet, "/scan/v1/worker/get_work", workerAuth, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "the only message was filtered, so the lease window expires empty")
	assert.Empty(t, h.queue.messages, "the filtered message is consumed, not requeued")
}

func TestGetWorkDropsMalformedDescriptors(t *testing.T) {
	h := newHarness(t)
	workerAuth := workerToken(t, "w1", true)
	h.db.authed[workerAuth] = true
	h.db.internal[workerAuth] = true

	require.NoError(t, h.queue.Send(context.Background(), `{"ImageHash":""}`))
	goodJob, err := json.Marshal(&scan.Job{
		ImageHash: "fp", ScanURL: "https://scan.test/scan/v1/worker/get_image/fp.png",
		DataType: "image", DataExtension: "png",
	})
	require.NoError(t, err)
	require.NoError(t, h.queue.Send(context.Background(), string(goodJob)))

	rec := h.do(http.MethodGet, "/scan/v1/worker/get_work", workerAuth, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, string(goodJob), rec.Body.String())
}

func TestPostResultOverridesIdentityFromClaims(t *testing.T) {
	h := newHarness(t)
	workerAuth := workerToken(t, "machine-7", true)
	h.db.authed[workerAuth] = true
	h.db.internal[workerAuth] = true

	h.objects.data["fp.png"] = []byte("staged")

	// The body lies about its identity; the authenticated token and the
	// guard's verdict win.
	body, err := json.Marshal(&scan.Result{
		Key:             "fp",
		ScanResult:      "r",
		DataType:        "image",
		DataExtension:   "png",
		ScanMachineGUID: "forged-guid",
		IsUserScan:      false,
	})
	require.NoError(t, err)

	rec := h.do(http.MethodPost, "/scan/v1/worker/post_result", workerAuth, body)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "accepted and stored")

	var stored scan.Result
	require.NoError(t, json.Unmarshal([]byte(h.db.results["fp"]), &stored))
	assert.Equal(t, "machine-7", stored.ScanMachineGUID)
	assert.True(t, stored.IsUserScan)
	assert.True(t, stored.Valid())

	assert.Contains(t, h.objects.deleted, "fp.png")
}

func TestPostResultRejectsBadInput(t *testing.T) {
	h := newHarness(t)
	workerAuth := workerToken(t, "w1", true)
	h.db.authed[workerAuth] = true
	h.db.internal[workerAuth] = true

	rec := h.do(http.MethodPost, "/scan/v1/worker/post_result", workerAuth, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "No body found in request")

	rec = h.do(http.MethodPost, "/scan/v1/worker/post_result", workerAuth, []byte("not json"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Invalid data found in request")

	// Missing ScanResult fails validation even after the claims overwrite.
	incomplete, err := json.Marshal(&scan.Result{Key: "fp", DataType: "image", DataExtension: "png"})
	require.NoError(t, err)
	rec = h.do(http.MethodPost, "/scan/v1/worker/post_result", workerAuth, incomplete)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Invalid data found in request")
}

func TestPostResultRejectsUnreadableClaims(t *testing.T) {
	h := newHarness(t)
	h.db.authed["Bearer garbage"] = true
	h.db.internal["Bearer garbage"] = true

	rec := h.do(http.MethodPost, "/scan/v1/worker/post_result", "Bearer garbage", []byte("{}"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Invalid JWT bearer payload data")
}

func TestPostResultReportsStorageFailure(t *testing.T) {
	h := newHarness(t)
	workerAuth := workerToken(t, "w1", true)
	h.db.authed[workerAuth] = true
	h.db.internal[workerAuth] = true
	h.db.setErr = errors.New("database api rejected the write")

	body, err := json.Marshal(&scan.Result{
		Key: "fp", ScanResult: "r", DataType: "image", DataExtension: "png",
	})
	require.NoError(t, err)

	rec := h.do(http.MethodPost, "/scan/v1/worker/post_result", workerAuth, body)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "could not be stored")
}

func TestGetImageServesStagedPayload(t *testing.T) {
	h := newHarness(t)
	payload := testPNG(t)
	h.objects.data["abc.png"] = payload

	rec := h.do(http.MethodGet, "/scan/v1/worker/get_image/abc.png", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.Equal(t, payload, rec.Body.Bytes())

	rec = h.do(http.MethodGet, "/scan/v1/worker/get_image/missing.png", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRapidDuplicateSubmissionsYieldOneSurvivingJob(t *testing.T) {
	h := newHarness(t)
	h.db.authed["Bearer client"] = true
	workerAuth := workerToken(t, "w1", true)
	h.db.authed[workerAuth] = true
	h.db.internal[workerAuth] = true

	payload := testPNG(t)
	fingerprint := fingerprintOf(t, payload)

	// Two clients race the same artifact before any worker completes it;
	// both submissions time out and leave a descriptor behind.
	for i := 0; i < 2; i++ {
		rec := h.do(http.MethodPost, "/scan/v1/detection/detectImage", "Bearer client", payload)
		require.Equal(t, http.StatusOK, rec.Code)
		require.Equal(t, "60", rec.Header().Get("Retry-After"))
	}
	require.Len(t, h.queue.messages, 2)

	// The first lease dispatches; completing it makes the duplicate
	// disappear inside the worker's dedup filter.
	rec := h.do(http.MethodGet, "/scan/v1/worker/get_work", workerAuth, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	h.db.results[fingerprint] = storedResult(t, fingerprint)

	rec = h.do(http.MethodGet, "/scan/v1/worker/get_work", workerAuth, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "no work")
}

func TestBodyOverCapIsRejected(t *testing.T) {
	// Exercised through the readBody helper directly; allocating a 250 MB
	// buffer per test run is not worth it.
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/scan/v1/detection/getHash", strings.NewReader("abc"))
	req.Body = http.MaxBytesReader(rec, req.Body, 2)

	_, err := readBody(rec, req)
	require.Error(t, err)
}

func TestCappedReadRejectsOversizedPayloads(t *testing.T) {
	_, err := readAllCapped(strings.NewReader("over the limit"), 3)
	assert.ErrorIs(t, err, errPayloadTooLarge)

	data, err := readAllCapped(strings.NewReader("abc"), 3)
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), data)
}

func TestRequestMetricsLabelGetImageByRouteTemplate(t *testing.T) {
	h := newHarness(t)
	h.objects.data["served.png"] = testPNG(t)

	// Distinct object names, hits and misses alike, must all land on the
	// route template instead of minting one series per name.
	for _, name := range []string{"served.png", "one.png", "two.png", "three.png"} {
		h.do(http.MethodGet, "/scan/v1/worker/get_image/"+name, "", nil)
	}

	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)

	paths := map[string]bool{}
	for _, family := range families {
		if family.GetName() != "scan_http_requests_total" {
			continue
		}
		for _, metric := range family.GetMetric() {
			for _, label := range metric.GetLabel() {
				if label.GetName() == "path" && strings.Contains(label.GetValue(), "get_image") {
					paths[label.GetValue()] = true
				}
			}
		}
	}
	assert.Equal(t, map[string]bool{"/scan/v1/worker/get_image/{name}": true}, paths)
}
