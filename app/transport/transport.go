// Package transport implements the outbound X API client used by the
// dispatcher. It covers exactly what publishing needs: media upload and
// tweet creation with reply chaining.
package transport

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
)

const (
	defaultAPIBase    = "https://api.x.com"
	defaultUploadBase = "https://upload.twitter.com"

	requestTimeout = 30 * time.Second
)

// Client talks to the X API with an OAuth2 user-context access token.
type Client struct {
	httpClient *http.Client
	token      string

	// Overridable for tests.
	APIBase    string
	UploadBase string
}

// NewClient builds a client around the given access token.
func NewClient(token string, httpClient *http.Client) (*Client, error) {
	if token == "" {
		return nil, fmt.Errorf("access token is required")
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: requestTimeout}
	}

	return &Client{
		httpClient: httpClient,
		token:      token,
		APIBase:    defaultAPIBase,
		UploadBase: defaultUploadBase,
	}, nil
}

// NewClientFromEnv builds a client from the X_ACCESS_TOKEN environment
// variable, typically provided via a .env file.
func NewClientFromEnv() (*Client, error) {
	token := os.Getenv("X_ACCESS_TOKEN")
	if token == "" {
		return nil, fmt.Errorf("X_ACCESS_TOKEN is not set")
	}
	return NewClient(token, nil)
}

type tweetRequest struct {
	Text  string      `json:"text"`
	Reply *tweetReply `json:"reply,omitempty"`
	Media *tweetMedia `json:"media,omitempty"`
}

type tweetReply struct {
	InReplyToTweetID string `json:"in_reply_to_tweet_id"`
}

type tweetMedia struct {
	MediaIDs []string `json:"media_ids"`
}

type tweetResponse struct {
	Data struct {
		ID string `json:"id"`
	} `json:"data"`
}

type mediaUploadResponse struct {
	MediaIDString string `json:"media_id_string"`
}

type apiError struct {
	Title  string `json:"title"`
	Detail string `json:"detail"`
}

// Publish uploads any attached media, then creates the tweet. replyToID,
// when set, chains the tweet under a previously published one. Returns the
// remote tweet id.
func (c *Client) Publish(ctx context.Context, text, replyToID string, mediaPaths []string) (string, error) {
	var mediaIDs []string
	for _, path := range mediaPaths {
		id, err := c.uploadMedia(ctx, path)
		if err != nil {
			return "", fmt.Errorf("failed to upload media %s: %w", path, err)
		}
		mediaIDs = append(mediaIDs, id)
	}

	payload := tweetRequest{Text: text}
	if replyToID != "" {
		payload.Reply = &tweetReply{InReplyToTweetID: replyToID}
	}
	if len(mediaIDs) > 0 {
		payload.Media = &tweetMedia{MediaIDs: mediaIDs}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to encode tweet request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.APIBase+"/2/tweets", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to post tweet: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return "", responseError(resp)
	}

	var result tweetResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("failed to decode tweet response: %w", err)
	}
	if result.Data.ID == "" {
		return "", fmt.Errorf("tweet response carried no id")
	}

	return result.Data.ID, nil
}

// uploadMedia sends one image through the v1.1 media upload endpoint and
// returns the media id for attachment.
func (c *Client) uploadMedia(ctx context.Context, path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open media file: %w", err)
	}
	defer file.Close()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("media", filepath.Base(path))
	if err != nil {
		return "", fmt.Errorf("failed to build multipart body: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return "", fmt.Errorf("failed to read media file: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("failed to finalize multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.UploadBase+"/1.1/media/upload.json", &buf)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to upload media: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", responseError(resp)
	}

	var result mediaUploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("failed to decode media upload response: %w", err)
	}
	if result.MediaIDString == "" {
		return "", fmt.Errorf("media upload response carried no id")
	}

	return result.MediaIDString, nil
}

// responseError turns a non-success API response into an error that keeps
// the API's own detail, so dispatch failures record something actionable.
func responseError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	var detail apiError
	if err := json.Unmarshal(body, &detail); err == nil && detail.Detail != "" {
		return fmt.Errorf("API error: %d %s: %s", resp.StatusCode, detail.Title, detail.Detail)
	}

	return fmt.Errorf("API error: %d %s", resp.StatusCode, resp.Status)
}
