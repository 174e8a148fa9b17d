//go:build !js && !wasm

package main

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/himanishpuri/GazeCaptcha/pkg/gazecaptcha"
	"github.com/himanishpuri/GazeCaptcha/pkg/gazecaptcha/model"
	"github.com/himanishpuri/GazeCaptcha/pkg/logger"
)

func setupTestServer(t *testing.T) (*Server, http.Handler) {
	t.Helper()
	return setupTestServerWithLog(t, logger.New(logger.Config{Level: logger.ERROR, Output: io.Discard}))
}

func setupTestServerWithLog(t *testing.T, log *logger.Logger) (*Server, http.Handler) {
	t.Helper()

	service, err := gazecaptcha.NewService(
		gazecaptcha.WithDBPath(filepath.Join(t.TempDir(), "server.sqlite3")),
		gazecaptcha.WithLogger(log),
		gazecaptcha.WithSeed(5),
	)
	if err != nil {
		t.Fatalf("Failed to create service: %v", err)
	}
	t.Cleanup(func() { service.Close() })

	s := NewServer(service, &ServerConfig{Addr: ":0", AllowedOrigins: []string{"*"}}, log, nil, nil)
	return s, s.setupRoutes()
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encoding body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()

	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decoding %q: %v", rec.Body.String(), err)
	}
	return v
}

func createChallenge(t *testing.T, h http.Handler, videoURL string) string {
	t.Helper()

	rec := doJSON(t, h, http.MethodPost, "/api/challenges", CreateChallengeRequest{
		Question: "Where does the ball land?",
		VideoURL: videoURL,
		Answer:   []model.AnswerPoint{{XN: 0.5, YN: 0.5}},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: status %d body %s", rec.Code, rec.Body.String())
	}
	return decode[CreateChallengeResponse](t, rec).ID
}

func passingRequest() VerifyRequest {
	var req VerifyRequest
	for tv := int64(1000); tv <= 2300; tv += 50 {
		req.Gaze = append(req.Gaze, model.GazeSample{T: 1690000000000 + tv, TV: tv, XN: 0.5, YN: 0.5})
	}
	req.Clicks = []model.ClickEvent{{T: 2000, XN: 0.5, YN: 0.5}}
	return req
}

func TestHealth(t *testing.T) {
	_, h := setupTestServer(t)

	rec := doJSON(t, h, http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	if body := decode[map[string]string](t, rec); body["status"] != "healthy" {
		t.Errorf("unexpected body %v", body)
	}
}

func TestChallengeCRUD(t *testing.T) {
	_, h := setupTestServer(t)

	id := createChallenge(t, h, "https://cdn.example.com/ball.mp4")

	list := decode[ListChallengesResponse](t, doJSON(t, h, http.MethodGet, "/api/challenges", nil))
	if list.Count != 1 || list.Challenges[0].ID != id {
		t.Fatalf("unexpected list %+v", list)
	}

	got := doJSON(t, h, http.MethodGet, "/api/challenges/"+id, nil)
	if got.Code != http.StatusOK {
		t.Fatalf("get: status %d", got.Code)
	}
	if dto := decode[ChallengeDTO](t, got); dto.VideoURL != "https://cdn.example.com/ball.mp4" || len(dto.Answer) != 1 {
		t.Errorf("unexpected challenge %+v", dto)
	}

	if rec := doJSON(t, h, http.MethodDelete, "/api/challenges/"+id, nil); rec.Code != http.StatusOK {
		t.Fatalf("delete: status %d", rec.Code)
	}
	if rec := doJSON(t, h, http.MethodDelete, "/api/challenges/"+id, nil); rec.Code != http.StatusNotFound {
		t.Errorf("second delete: status %d, want 404", rec.Code)
	}
	if rec := doJSON(t, h, http.MethodGet, "/api/challenges/"+id, nil); rec.Code != http.StatusNotFound {
		t.Errorf("get deleted: status %d, want 404", rec.Code)
	}
}

func TestCreateChallengeValidation(t *testing.T) {
	_, h := setupTestServer(t)

	tests := []struct {
		name string
		body any
	}{
		{"missing video", CreateChallengeRequest{Answer: []model.AnswerPoint{{XN: 0.1, YN: 0.1}}}},
		{"no answers", CreateChallengeRequest{VideoURL: "https://cdn.example.com/a.mp4"}},
		{"relative video", CreateChallengeRequest{VideoURL: "a.mp4", Answer: []model.AnswerPoint{{XN: 0.1, YN: 0.1}}}},
		{"not json", "just a string"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doJSON(t, h, http.MethodPost, "/api/challenges", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status %d, want 400 (body %s)", rec.Code, rec.Body.String())
			}
		})
	}
}

func TestVideoData(t *testing.T) {
	_, h := setupTestServer(t)

	if rec := doJSON(t, h, http.MethodGet, "/api/video-data", nil); rec.Code != http.StatusNotFound {
		t.Errorf("empty store: status %d, want 404", rec.Code)
	}

	id := createChallenge(t, h, "https://cdn.example.com/ball.mp4")
	rec := doJSON(t, h, http.MethodGet, "/api/video-data", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	p := decode[model.ChallengePayload](t, rec)
	if p.ID != id || p.VideoPath != "/api/video/"+id || p.Round != 1 {
		t.Errorf("unexpected payload %+v", p)
	}
}

func TestVerifyPassPersists(t *testing.T) {
	_, h := setupTestServer(t)
	id := createChallenge(t, h, "https://cdn.example.com/ball.mp4")

	rec := doJSON(t, h, http.MethodPost, "/api/challenges/"+id+"/verify", passingRequest())
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d body %s", rec.Code, rec.Body.String())
	}
	if v := decode[VerifyResponse](t, rec); !v.Passed {
		t.Fatalf("expected pass, got %+v", v)
	}

	recs := decode[ListRecordingsResponse](t, doJSON(t, h, http.MethodGet, "/api/challenges/"+id+"/recordings", nil))
	if recs.Count != 1 || recs.Recordings[0].ClickCount != 1 {
		t.Errorf("expected one stored recording, got %+v", recs)
	}
}

func TestVerifyFail(t *testing.T) {
	var logs bytes.Buffer
	_, h := setupTestServerWithLog(t, logger.New(logger.Config{Level: logger.INFO, Output: &logs}))
	id := createChallenge(t, h, "https://cdn.example.com/ball.mp4")

	req := passingRequest()
	req.Clicks = []model.ClickEvent{{T: 2000, XN: 0.9, YN: 0.9}}
	rec := doJSON(t, h, http.MethodPost, "/api/challenges/"+id+"/verify", req)
	if strings.Contains(rec.Body.String(), "reason") || strings.Contains(rec.Body.String(), model.ReasonNoMatch) {
		t.Errorf("failure reason leaked to the client: %s", rec.Body.String())
	}
	if v := decode[VerifyResponse](t, rec); v.Passed {
		t.Errorf("expected fail, got %+v", v)
	}
	if !strings.Contains(logs.String(), "reason="+model.ReasonNoMatch) {
		t.Errorf("expected the reason in the logs, got:\n%s", logs.String())
	}

	rec = doJSON(t, h, http.MethodPost, "/api/challenges/"+id+"/verify", VerifyRequest{})
	if v := decode[VerifyResponse](t, rec); v.Passed {
		t.Errorf("expected fail, got %+v", v)
	}
	if !strings.Contains(logs.String(), "reason="+model.ReasonNoData) {
		t.Errorf("expected no_data in the logs")
	}

	recs := decode[ListRecordingsResponse](t, doJSON(t, h, http.MethodGet, "/api/challenges/"+id+"/recordings", nil))
	if recs.Count != 0 {
		t.Errorf("failed attempts were stored: %+v", recs)
	}
}

func TestVerifyErrors(t *testing.T) {
	_, h := setupTestServer(t)
	id := createChallenge(t, h, "https://cdn.example.com/ball.mp4")

	if rec := doJSON(t, h, http.MethodPost, "/api/challenges/missing/verify", passingRequest()); rec.Code != http.StatusNotFound {
		t.Errorf("unknown challenge: status %d, want 404", rec.Code)
	}

	bad := passingRequest()
	bad.Clicks[0].XN = 4
	if rec := doJSON(t, h, http.MethodPost, "/api/challenges/"+id+"/verify", bad); rec.Code != http.StatusBadRequest {
		t.Errorf("out-of-range click: status %d, want 400", rec.Code)
	}
}

func TestVerifyClickOnlyMode(t *testing.T) {
	_, h := setupTestServer(t)
	id := createChallenge(t, h, "https://cdn.example.com/ball.mp4")

	req := VerifyRequest{Clicks: []model.ClickEvent{{T: 100, XN: 0.52, YN: 0.5}}}
	rec := doJSON(t, h, http.MethodPost, "/api/challenges/"+id+"/verify?mode=clicks", req)
	if v := decode[VerifyResponse](t, rec); !v.Passed {
		t.Errorf("expected a click-only pass without gaze, got %+v", v)
	}
}

func TestClassifyUploads(t *testing.T) {
	_, h := setupTestServer(t)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	files := map[string]string{
		"session_gaze.json": `[{"t":1690000000000,"tv":0,"xn":0.5,"yn":0.5}]`,
		"b.json":            `[{"t":1200,"xn":0.2,"yn":0.3}]`,
		"junk.json":         `{{{`,
	}
	for name, content := range files {
		fw, err := mw.CreateFormFile("files", name)
		if err != nil {
			t.Fatalf("CreateFormFile: %v", err)
		}
		fw.Write([]byte(content))
	}
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/uploads/classify", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status %d body %s", rec.Code, rec.Body.String())
	}
	resp := decode[ClassifyResponse](t, rec)
	if !resp.HasGaze || !resp.HasClicks {
		t.Errorf("expected both streams, got %+v", resp)
	}
	if len(resp.Skipped) != 1 || resp.Skipped[0].Name != "junk.json" {
		t.Errorf("expected junk.json to be skipped, got %+v", resp.Skipped)
	}
}

func TestExport(t *testing.T) {
	_, h := setupTestServer(t)
	req := passingRequest()

	rec := doJSON(t, h, http.MethodPost, "/api/export?mode=combined", ExportRequest{Gaze: req.Gaze, Clicks: req.Clicks})
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	resp := decode[ExportResponse](t, rec)
	if len(resp.Files) != 1 || !strings.HasPrefix(resp.Files[0].Name, "gaze_clicks_at_submit_") {
		t.Errorf("unexpected export %+v", resp.Files)
	}

	if rec := doJSON(t, h, http.MethodPost, "/api/export?mode=zip", ExportRequest{}); rec.Code != http.StatusBadRequest {
		t.Errorf("unknown mode: status %d, want 400", rec.Code)
	}
}

func TestVideoProxyRoute(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Range") != "bytes=0-1" {
			t.Errorf("Range not forwarded: %q", r.Header.Get("Range"))
		}
		w.Header().Set("Content-Range", "bytes 0-1/4")
		w.WriteHeader(http.StatusPartialContent)
		io.WriteString(w, "ok")
	}))
	t.Cleanup(upstream.Close)

	_, h := setupTestServer(t)
	id := createChallenge(t, h, upstream.URL+"/ball.mp4")

	req := httptest.NewRequest(http.MethodGet, "/api/video/"+id, nil)
	req.Header.Set("Range", "bytes=0-1")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusPartialContent || rec.Body.String() != "ok" {
		t.Errorf("status %d body %q", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("Cross-Origin-Resource-Policy") != "cross-origin" {
		t.Error("missing Cross-Origin-Resource-Policy")
	}

	if rec := doJSON(t, h, http.MethodGet, "/api/video/missing", nil); rec.Code != http.StatusNotFound {
		t.Errorf("unknown video: status %d, want 404", rec.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	_, h := setupTestServer(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/challenges", nil)
	req.Header.Set("Origin", "https://captcha.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got == "" {
		t.Errorf("missing Access-Control-Allow-Origin, headers %v", rec.Header())
	}
}

func TestLiveDisabled(t *testing.T) {
	_, h := setupTestServer(t)

	if rec := doJSON(t, h, http.MethodGet, "/ws/session", nil); rec.Code != http.StatusNotFound {
		t.Errorf("status %d, want 404 without a live handler", rec.Code)
	}
}
