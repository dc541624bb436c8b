package transcoder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
)

const defaultBaseURL = "https://api.mux.com"

type (
	// Config holds the credentials and knobs for the hosted transcoding
	// provider. Token pairs are provisioned in the providers dashboard.
	Config struct {
		BaseURL        string `yaml:"base_url" env:"TRANSCODER_BASE_URL"`
		TokenID        string `yaml:"token_id" env:"TRANSCODER_TOKEN_ID" env-required:"true"`
		TokenSecret    string `yaml:"token_secret" env:"TRANSCODER_TOKEN_SECRET" env-required:"true"`
		PlaybackPolicy string `yaml:"playback_policy" env:"TRANSCODER_PLAYBACK_POLICY" env-default:"public"`
	}

	// CorrelationToken travels with a job through the providers
	// pipeline and comes back verbatim on the completion callback. It
	// is the only link between a callback and our video record.
	CorrelationToken struct {
		VideoID uuid.UUID `json:"video_id"`
	}

	// Job is the providers view of an accepted transcode request. The
	// status is opaque to us; our own state machine is authoritative.
	Job struct {
		ID     string
		Status string
	}

	providerClient struct {
		config     Config
		httpClient *http.Client
	}

	jobEnvelope struct {
		Data struct {
			ID     string `json:"id"`
			Status string `json:"status"`
		} `json:"data"`
	}

	providerError struct {
		Error struct {
			Type     string   `json:"type"`
			Messages []string `json:"messages"`
		} `json:"error"`
	}
)

func NewClient(config Config) *providerClient {
	if config.BaseURL == "" {
		config.BaseURL = defaultBaseURL
	}

	return &providerClient{
		config:     config,
		httpClient: &http.Client{Timeout: time.Second * 30},
	}
}

// CreateJob asks the provider to transcode the media at the source URL.
// The correlation token is carried in the requests passthrough field so
// the eventual callback can be tied back to the originating video.
func (client *providerClient) CreateJob(ctx context.Context, sourceURL string, token CorrelationToken) (*Job, error) {
	passthrough, err := json.Marshal(token)
	if err != nil {
		return nil, &UnknownRequestError{fmt.Sprintf("correlation token could not be encoded: %s", err.Error())}
	}

	requestBody, err := json.Marshal(map[string]any{
		"input":           []map[string]string{{"url": sourceURL}},
		"playback_policy": []string{client.config.PlaybackPolicy},
		"passthrough":     string(passthrough),
	})
	if err != nil {
		return nil, &UnknownRequestError{fmt.Sprintf("request body could not be encoded: %s", err.Error())}
	}

	path := fmt.Sprintf("%s/video/v1/assets", client.config.BaseURL)
	var envelope jobEnvelope
	if err := client.httpPostJSONResponse(ctx, path, requestBody, &envelope); err != nil {
		return nil, err
	}

	return &Job{ID: envelope.Data.ID, Status: envelope.Data.Status}, nil
}

func (client *providerClient) httpPostJSONResponse(ctx context.Context, path string, body []byte, target any) error {
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, path, bytes.NewReader(body))
	if err != nil {
		return &UnknownRequestError{fmt.Sprintf("failed to construct POST(%s): %s", path, err.Error())}
	}
	request.Header.Set("Content-Type", "application/json")
	request.SetBasicAuth(client.config.TokenID, client.config.TokenSecret)

	response, err := client.httpClient.Do(request)
	if err != nil {
		return &UnknownRequestError{fmt.Sprintf("failed to perform POST(%s): %s", path, err.Error())}
	}

	defer response.Body.Close()
	responseBody, err := io.ReadAll(response.Body)

	if response.StatusCode < 200 || response.StatusCode > 299 {
		var decoded providerError
		if err := json.Unmarshal(responseBody, &decoded); err != nil || decoded.Error.Type == "" {
			return &FailedRequestError{httpCode: response.StatusCode, message: "non-OK response could not be unmarshalled"}
		}

		message := decoded.Error.Type
		if len(decoded.Error.Messages) > 0 {
			message = fmt.Sprintf("%s: %s", decoded.Error.Type, decoded.Error.Messages[0])
		}

		return &FailedRequestError{httpCode: response.StatusCode, message: message}
	}

	if err != nil {
		return &UnknownRequestError{fmt.Sprintf("failed to read response body: %s", err.Error())}
	}

	if err := json.Unmarshal(responseBody, target); err != nil {
		return &UnknownRequestError{fmt.Sprintf("response JSON could not be unmarshalled: %s", err.Error())}
	}

	return nil
}

// DecodeCorrelationToken recovers the token embedded in a callbacks
// passthrough field.
func DecodeCorrelationToken(passthrough string) (CorrelationToken, error) {
	var token CorrelationToken
	if err := json.Unmarshal([]byte(passthrough), &token); err != nil {
		return CorrelationToken{}, fmt.Errorf("passthrough is not a correlation token: %w", err)
	}

	if token.VideoID == uuid.Nil {
		return CorrelationToken{}, fmt.Errorf("passthrough carries no video ID")
	}

	return token, nil
}

type (
	FailedRequestError struct {
		httpCode int
		message  string
	}

	UnknownRequestError struct{ reason string }
)

func (err *FailedRequestError) Error() string {
	return fmt.Sprintf("transcoder request failure (HTTP %d): %s", err.httpCode, err.message)
}

func (err *UnknownRequestError) Error() string {
	return fmt.Sprintf("unknown error occurred while communicating with the transcoder: %s", err.reason)
}
