package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/scribo/internal/common"
	"github.com/ternarybob/scribo/internal/models"
)

// Client transcribes audio files through an OpenAI-compatible speech API,
// using the balancer for credential selection and failover.
type Client struct {
	balancer   *Balancer
	httpClient *http.Client
	baseURL    string
	logger     arbor.ILogger
}

// NewClient creates the transcription client
func NewClient(balancer *Balancer, config *common.TranscribeConfig, logger arbor.ILogger) *Client {
	timeout := config.RequestTimeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &Client{
		balancer:   balancer,
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    config.BaseURL,
		logger:     logger,
	}
}

type transcriptionResponse struct {
	Language string  `json:"language"`
	Duration float64 `json:"duration"`
	Text     string  `json:"text"`
	Segments []struct {
		Start float64 `json:"start"`
		End   float64 `json:"end"`
		Text  string  `json:"text"`
	} `json:"segments"`
}

// Transcribe uploads one audio file and returns its transcript. Transient
// provider failures rotate to the next credential before surfacing an error.
func (c *Client) Transcribe(ctx context.Context, audioPath string, opts models.TranscribeOptions) (*models.Transcript, error) {
	var transcript *models.Transcript

	err := c.balancer.Do(ctx, func(ctx context.Context, apiKey string) Outcome {
		result, outcome := c.attempt(ctx, apiKey, audioPath, opts)
		if outcome.Kind == OutcomeOK {
			transcript = result
		}
		return outcome
	})
	if err != nil {
		return nil, err
	}
	return transcript, nil
}

func (c *Client) attempt(ctx context.Context, apiKey, audioPath string, opts models.TranscribeOptions) (*models.Transcript, Outcome) {
	body, contentType, err := buildUploadBody(audioPath, opts)
	if err != nil {
		return nil, Outcome{Kind: OutcomeFatal, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/audio/transcriptions", body)
	if err != nil {
		return nil, Outcome{Kind: OutcomeFatal, Err: fmt.Errorf("failed to build request: %w", err)}
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, Outcome{Kind: OutcomeRetry, Err: fmt.Errorf("transcription request failed: %w", err)}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		// Parsed below
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, Outcome{Kind: OutcomeRejected, Err: fmt.Errorf("credential rejected: status %d", resp.StatusCode)}
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, Outcome{Kind: OutcomeRetry, Err: fmt.Errorf("transcription unavailable: status %d", resp.StatusCode)}
	default:
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, Outcome{Kind: OutcomeFatal, Err: fmt.Errorf("transcription rejected: status %d: %s", resp.StatusCode, string(detail))}
	}

	var parsed transcriptionResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, Outcome{Kind: OutcomeRetry, Err: fmt.Errorf("failed to decode transcription response: %w", err)}
	}

	transcript := &models.Transcript{
		Language: parsed.Language,
		Text:     parsed.Text,
		Duration: time.Duration(parsed.Duration * float64(time.Second)),
	}
	for _, seg := range parsed.Segments {
		transcript.Segments = append(transcript.Segments, models.TranscriptSegment{
			Start: time.Duration(seg.Start * float64(time.Second)),
			End:   time.Duration(seg.End * float64(time.Second)),
			Text:  seg.Text,
		})
	}
	return transcript, Outcome{Kind: OutcomeOK}
}

// buildUploadBody assembles the multipart form for one audio upload
func buildUploadBody(audioPath string, opts models.TranscribeOptions) (*bytes.Buffer, string, error) {
	file, err := os.Open(audioPath)
	if err != nil {
		return nil, "", fmt.Errorf("failed to open audio file: %w", err)
	}
	defer file.Close()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile("file", filepath.Base(audioPath))
	if err != nil {
		return nil, "", fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, "", fmt.Errorf("failed to read audio file: %w", err)
	}

	if err := writer.WriteField("model", "whisper-1"); err != nil {
		return nil, "", err
	}
	if err := writer.WriteField("response_format", "verbose_json"); err != nil {
		return nil, "", err
	}
	if opts.Language != "" {
		if err := writer.WriteField("language", opts.Language); err != nil {
			return nil, "", err
		}
	}
	if err := writer.Close(); err != nil {
		return nil, "", err
	}

	return &buf, writer.FormDataContentType(), nil
}
