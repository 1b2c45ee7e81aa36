package transcribe

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/linguaclip/backend/config"
)

func TestNewTencentBackendRequiresCredentials(t *testing.T) {
	_, err := NewTencentBackend(config.TencentASRConfig{}, zap.NewNop())
	if err == nil {
		t.Fatal("NewTencentBackend() without credentials: want error, got nil")
	}
}

// TestAuthorizationHeader pins the TC3-HMAC-SHA256 signature against a
// fixed request so any change to the signing steps is caught.
func TestAuthorizationHeader(t *testing.T) {
	ts := time.Unix(1609459200, 0) // 2021-01-01T00:00:00Z
	payload := []byte(`{"EngineModelType":"16k_zh","SourceType":1}`)
	got := authorizationHeader(
		"AKIDz8krbsJ5yKBZQpn74WFkmLPx3EXAMPLE",
		"Gu5t9xGARNpq86cd98joQYCN3EXAMPLE",
		"asr.tencentcloudapi.com", "asr", ts, payload,
	)
	want := "TC3-HMAC-SHA256 Credential=AKIDz8krbsJ5yKBZQpn74WFkmLPx3EXAMPLE/2021-01-01/asr/tc3_request" +
		", SignedHeaders=content-type;host" +
		", Signature=a040eabf6286a86375cdf76820209c69f38fa6262b7bf849be062096230cc504"
	if got != want {
		t.Fatalf("authorizationHeader() =\n%s\nwant\n%s", got, want)
	}
}

func newTestTencentBackend(t *testing.T, handler http.HandlerFunc) (*TencentBackend, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	b, err := NewTencentBackend(config.TencentASRConfig{
		SecretID:        "test-id",
		SecretKey:       "test-key",
		Region:          "ap-shanghai",
		EngineModelType: "16k_zh",
		PollInterval:    time.Millisecond,
		MaxPollAttempts: 5,
	}, zap.NewNop())
	if err != nil {
		t.Fatalf("NewTencentBackend() error = %v", err)
	}
	b.endpoint = srv.URL
	b.httpClient = srv.Client()
	return b, srv
}

func TestQueryTaskStillRunning(t *testing.T) {
	b, _ := newTestTencentBackend(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("X-TC-Action"); got != actionDescribeTaskStatus {
			t.Errorf("X-TC-Action = %q, want %q", got, actionDescribeTaskStatus)
		}
		if r.Header.Get("Authorization") == "" {
			t.Error("Authorization header missing")
		}
		w.Write([]byte(`{"Response":{"Data":{"TaskId":42,"Status":1,"StatusStr":"doing"}}}`))
	})

	res, err := b.QueryTask(context.Background(), 42)
	if err != nil {
		t.Fatalf("QueryTask() error = %v", err)
	}
	if res.Done {
		t.Fatal("QueryTask() on running task: Done = true, want false")
	}
}

func TestQueryTaskSuccess(t *testing.T) {
	b, _ := newTestTencentBackend(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"Response":{"Data":{"TaskId":42,"Status":2,"ResultDetail":[
			{"StartMs":0,"EndMs":1500,"FinalSentence":"你好"},
			{"StartMs":61250,"EndMs":63000,"FinalSentence":" 世界 "}
		]}}}`))
	})

	res, err := b.QueryTask(context.Background(), 42)
	if err != nil {
		t.Fatalf("QueryTask() error = %v", err)
	}
	if !res.Done {
		t.Fatal("QueryTask() on finished task: Done = false, want true")
	}
	if len(res.Segments) != 2 {
		t.Fatalf("segments = %d, want 2", len(res.Segments))
	}
	if res.Segments[0].StartMs != 0 || res.Segments[0].EndMs != 1500 || res.Segments[0].Text != "你好" {
		t.Fatalf("segment 0 = %+v", res.Segments[0])
	}
	if res.Segments[1].Text != "世界" {
		t.Fatalf("segment 1 text = %q, want trimmed", res.Segments[1].Text)
	}
}

func TestQueryTaskFailed(t *testing.T) {
	b, _ := newTestTencentBackend(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"Response":{"Data":{"TaskId":42,"Status":3,"ErrorMsg":"audio decode error"}}}`))
	})

	_, err := b.QueryTask(context.Background(), 42)
	if err == nil {
		t.Fatal("QueryTask() on failed task: want error, got nil")
	}
	if !strings.Contains(err.Error(), "audio decode error") {
		t.Fatalf("error %q does not carry remote ErrorMsg", err)
	}
}

func TestQueryTaskAPIError(t *testing.T) {
	b, _ := newTestTencentBackend(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"Response":{"Error":{"Code":"AuthFailure.SignatureFailure","Message":"signature mismatch"}}}`))
	})

	_, err := b.QueryTask(context.Background(), 42)
	if err == nil {
		t.Fatal("QueryTask() with API error: want error, got nil")
	}
	if !strings.Contains(err.Error(), "AuthFailure.SignatureFailure") {
		t.Fatalf("error %q does not carry API error code", err)
	}
}

// TestTranscribePollsUntilDone drives the full submit + poll loop: one
// in-progress answer followed by a completed one.
func TestTranscribePollsUntilDone(t *testing.T) {
	mediaPath := filepath.Join(t.TempDir(), "clip.mp3")
	if err := os.WriteFile(mediaPath, []byte("audio"), 0o644); err != nil {
		t.Fatal(err)
	}

	statusCalls := 0
	b, _ := newTestTencentBackend(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.Header.Get("X-TC-Action") {
		case actionCreateRecTask:
			var body map[string]interface{}
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				t.Errorf("decode submit body: %v", err)
			}
			if body["SourceType"] != float64(1) {
				t.Errorf("SourceType = %v, want 1", body["SourceType"])
			}
			if body["Data"] == "" {
				t.Error("submit body missing base64 audio data")
			}
			w.Write([]byte(`{"Response":{"Data":{"TaskId":7}}}`))
		case actionDescribeTaskStatus:
			statusCalls++
			if statusCalls == 1 {
				w.Write([]byte(`{"Response":{"Data":{"TaskId":7,"Status":1}}}`))
				return
			}
			w.Write([]byte(`{"Response":{"Data":{"TaskId":7,"Status":2,"ResultDetail":[
				{"StartMs":0,"EndMs":2500,"FinalSentence":"你好世界"}
			]}}}`))
		default:
			t.Errorf("unexpected action %q", r.Header.Get("X-TC-Action"))
		}
	})

	got, err := b.Transcribe(context.Background(), mediaPath, "zh")
	if err != nil {
		t.Fatalf("Transcribe() error = %v", err)
	}
	if statusCalls != 2 {
		t.Fatalf("status polls = %d, want 2", statusCalls)
	}
	if got.Language != "zh" {
		t.Fatalf("language = %q, want zh", got.Language)
	}
	if len(got.Segments) != 1 {
		t.Fatalf("segments = %d, want 1", len(got.Segments))
	}
	seg := got.Segments[0]
	if seg.Start != 0 || seg.End != 2.5 || seg.Text != "你好世界" || seg.TimeStr != "00:00:00" {
		t.Fatalf("segment = %+v", seg)
	}
}

// TestTranscribePollBudgetExhausted checks the loop gives up instead of
// polling forever when the task never finishes.
func TestTranscribePollBudgetExhausted(t *testing.T) {
	mediaPath := filepath.Join(t.TempDir(), "clip.mp3")
	if err := os.WriteFile(mediaPath, []byte("audio"), 0o644); err != nil {
		t.Fatal(err)
	}

	statusCalls := 0
	b, _ := newTestTencentBackend(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.Header.Get("X-TC-Action") {
		case actionCreateRecTask:
			w.Write([]byte(`{"Response":{"Data":{"TaskId":7}}}`))
		default:
			statusCalls++
			w.Write([]byte(`{"Response":{"Data":{"TaskId":7,"Status":1}}}`))
		}
	})
	b.maxPollAttempts = 3

	_, err := b.Transcribe(context.Background(), mediaPath, "zh")
	if err == nil {
		t.Fatal("Transcribe() with never-finishing task: want error, got nil")
	}
	if !strings.Contains(err.Error(), "still running") {
		t.Fatalf("error %q does not mention exhausted polling", err)
	}
	if statusCalls != 3 {
		t.Fatalf("status polls = %d, want 3", statusCalls)
	}
}

func TestReportedLanguage(t *testing.T) {
	b := &TencentBackend{engineModelType: "16k_zh"}
	if got := b.reportedLanguage(); got != "zh" {
		t.Fatalf("reportedLanguage() = %q, want zh", got)
	}
	b.engineModelType = "16k_en"
	if got := b.reportedLanguage(); got != "en" {
		t.Fatalf("reportedLanguage() = %q, want en", got)
	}
}
