package transcribe

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/linguaclip/backend/config"
)

const (
	tencentHost       = "asr.tencentcloudapi.com"
	tencentService    = "asr"
	tencentAPIVersion = "2019-06-14"

	actionCreateRecTask      = "CreateRecTask"
	actionDescribeTaskStatus = "DescribeTaskStatus"

	// Remote task status codes reported by DescribeTaskStatus.
	taskStatusWaiting = 0
	taskStatusRunning = 1
	taskStatusSuccess = 2
	taskStatusFailed  = 3
)

// TencentBackend submits a recognition task to Tencent cloud ASR and
// polls its status until completion. The poll loop is bounded by the
// configured attempt budget and interval; QueryTask itself is a raw
// single-shot primitive.
type TencentBackend struct {
	secretID        string
	secretKey       string
	region          string
	engineModelType string
	pollInterval    time.Duration
	maxPollAttempts int
	endpoint        string // override for tests; default https://asr.tencentcloudapi.com
	httpClient      *http.Client
	logger          *zap.Logger
	now             func() time.Time
}

// NewTencentBackend creates the remote polling adapter. Missing
// credentials fail construction.
func NewTencentBackend(cfg config.TencentASRConfig, logger *zap.Logger) (*TencentBackend, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.SecretID == "" || cfg.SecretKey == "" {
		return nil, fmt.Errorf("tencent asr: secret_id and secret_key required")
	}
	interval := cfg.PollInterval
	if interval <= 0 {
		interval = 3 * time.Second
	}
	attempts := cfg.MaxPollAttempts
	if attempts <= 0 {
		attempts = 100
	}
	return &TencentBackend{
		secretID:        cfg.SecretID,
		secretKey:       cfg.SecretKey,
		region:          cfg.Region,
		engineModelType: cfg.EngineModelType,
		pollInterval:    interval,
		maxPollAttempts: attempts,
		endpoint:        "https://" + tencentHost,
		httpClient:      &http.Client{Timeout: 30 * time.Second},
		logger:          logger,
		now:             time.Now,
	}, nil
}

// Name returns the backend identifier.
func (t *TencentBackend) Name() string { return "tencent" }

type tencentError struct {
	Code    string `json:"Code"`
	Message string `json:"Message"`
}

type createRecTaskResponse struct {
	Response struct {
		Data struct {
			TaskID uint64 `json:"TaskId"`
		} `json:"Data"`
		Error *tencentError `json:"Error"`
	} `json:"Response"`
}

type describeTaskStatusResponse struct {
	Response struct {
		Data struct {
			TaskID       uint64 `json:"TaskId"`
			Status       int    `json:"Status"`
			StatusStr    string `json:"StatusStr"`
			ErrorMsg     string `json:"ErrorMsg"`
			ResultDetail []struct {
				StartMs       int64  `json:"StartMs"`
				EndMs         int64  `json:"EndMs"`
				FinalSentence string `json:"FinalSentence"`
			} `json:"ResultDetail"`
		} `json:"Data"`
		Error *tencentError `json:"Error"`
	} `json:"Response"`
}

// TaskResult is the outcome of one QueryTask call.
type TaskResult struct {
	Done     bool
	Segments []RawSegmentMillis
}

// Transcribe uploads the media file, then drives the bounded poll loop.
func (t *TencentBackend) Transcribe(ctx context.Context, mediaPath, language string) (*Transcript, error) {
	data, err := os.ReadFile(mediaPath)
	if err != nil {
		return nil, fmt.Errorf("read media file: %w", err)
	}

	taskID, err := t.SubmitTask(ctx, data)
	if err != nil {
		return nil, err
	}
	t.logger.Debug("tencent asr task submitted", zap.Uint64("task_id", taskID))

	for attempt := 0; attempt < t.maxPollAttempts; attempt++ {
		result, err := t.QueryTask(ctx, taskID)
		if err != nil {
			return nil, err
		}
		if result.Done {
			return &Transcript{
				Language: t.reportedLanguage(),
				Segments: NormalizeMillis(result.Segments),
			}, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(t.pollInterval):
		}
	}
	return nil, fmt.Errorf("tencent asr: task %d still running after %d poll attempts", taskID, t.maxPollAttempts)
}

// SubmitTask creates a recognition task from raw audio bytes and returns
// the remote task identifier.
func (t *TencentBackend) SubmitTask(ctx context.Context, audio []byte) (uint64, error) {
	payload := map[string]interface{}{
		"EngineModelType": t.engineModelType,
		"ChannelNum":      1,
		"ResTextFormat":   0,
		"SourceType":      1,
		"Data":            base64.StdEncoding.EncodeToString(audio),
		"DataLen":         len(audio),
	}
	var resp createRecTaskResponse
	if err := t.call(ctx, actionCreateRecTask, payload, &resp); err != nil {
		return 0, err
	}
	if resp.Response.Error != nil {
		return 0, fmt.Errorf("tencent asr submit: %s: %s", resp.Response.Error.Code, resp.Response.Error.Message)
	}
	return resp.Response.Data.TaskID, nil
}

// QueryTask performs a single status query. Status 2 resolves to a done
// result, status 3 to an error; anything else means still in progress and
// the caller decides when to poll again.
func (t *TencentBackend) QueryTask(ctx context.Context, taskID uint64) (*TaskResult, error) {
	var resp describeTaskStatusResponse
	if err := t.call(ctx, actionDescribeTaskStatus, map[string]interface{}{"TaskId": taskID}, &resp); err != nil {
		return nil, err
	}
	if resp.Response.Error != nil {
		return nil, fmt.Errorf("tencent asr query: %s: %s", resp.Response.Error.Code, resp.Response.Error.Message)
	}
	data := resp.Response.Data
	switch data.Status {
	case taskStatusSuccess:
		segs := make([]RawSegmentMillis, 0, len(data.ResultDetail))
		for _, d := range data.ResultDetail {
			segs = append(segs, RawSegmentMillis{
				StartMs: d.StartMs,
				EndMs:   d.EndMs,
				Text:    strings.TrimSpace(d.FinalSentence),
			})
		}
		return &TaskResult{Done: true, Segments: segs}, nil
	case taskStatusFailed:
		return nil, fmt.Errorf("tencent asr: task %d failed: %s", taskID, data.ErrorMsg)
	default:
		return &TaskResult{Done: false}, nil
	}
}

// call signs and sends one API request, decoding the JSON response into out.
func (t *TencentBackend) call(ctx context.Context, action string, payload interface{}, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	ts := t.now()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Host", tencentHost)
	req.Header.Set("Authorization", authorizationHeader(t.secretID, t.secretKey, tencentHost, tencentService, ts, body))
	req.Header.Set("X-TC-Action", action)
	req.Header.Set("X-TC-Version", tencentAPIVersion)
	req.Header.Set("X-TC-Timestamp", strconv.FormatInt(ts.Unix(), 10))
	req.Header.Set("X-TC-Region", t.region)

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("tencent asr %s: %w", action, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("tencent asr %s: http %d: %s", action, resp.StatusCode, firstLine(string(raw)))
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	return nil
}

// reportedLanguage maps the engine model type to the language code it
// recognizes (e.g. 16k_zh -> zh). The API does not echo a language back.
func (t *TencentBackend) reportedLanguage() string {
	if i := strings.LastIndex(t.engineModelType, "_"); i >= 0 && i+1 < len(t.engineModelType) {
		return t.engineModelType[i+1:]
	}
	return t.engineModelType
}

// authorizationHeader builds the TC3-HMAC-SHA256 authorization value:
// a canonical request over fixed ordered fields, a scope-qualified string
// to sign, and a date -> service -> request-type HMAC key derivation chain.
func authorizationHeader(secretID, secretKey, host, service string, ts time.Time, payload []byte) string {
	timestamp := strconv.FormatInt(ts.Unix(), 10)
	date := ts.UTC().Format("2006-01-02")

	canonicalHeaders := "content-type:application/json\nhost:" + host + "\n"
	signedHeaders := "content-type;host"
	hashedPayload := sha256Hex(payload)
	canonicalRequest := strings.Join([]string{
		http.MethodPost, "/", "", canonicalHeaders, signedHeaders, hashedPayload,
	}, "\n")

	scope := date + "/" + service + "/tc3_request"
	stringToSign := strings.Join([]string{
		"TC3-HMAC-SHA256", timestamp, scope, sha256Hex([]byte(canonicalRequest)),
	}, "\n")

	secretDate := hmacSHA256([]byte("TC3"+secretKey), date)
	secretService := hmacSHA256(secretDate, service)
	secretSigning := hmacSHA256(secretService, "tc3_request")
	signature := hex.EncodeToString(hmacSHA256(secretSigning, stringToSign))

	return "TC3-HMAC-SHA256 Credential=" + secretID + "/" + scope +
		", SignedHeaders=" + signedHeaders + ", Signature=" + signature
}

func sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func hmacSHA256(key []byte, msg string) []byte {
	h := hmac.New(sha256.New, key)
	h.Write([]byte(msg))
	return h.Sum(nil)
}
