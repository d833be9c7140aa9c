package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/Davygupta47/notebook/internal/api"
	"github.com/Davygupta47/notebook/internal/jobs"
	"github.com/Davygupta47/notebook/internal/sse"
)

type apiClient struct {
	base string
	http *http.Client
}

func newAPIClient(base string, client *http.Client) *apiClient {
	return &apiClient{base: base, http: client}
}

// apiError is a non-2xx response carrying the server's error message.
type apiError struct {
	Status  int
	Message string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

// streamError is an error frame received on the event stream.
type streamError struct {
	Message string
}

func (e *streamError) Error() string {
	return "generation failed: " + e.Message
}

// generation is what a finished stream reported.
type generation struct {
	JobID   string
	DraftID string
	SizeKB  int
}

type generateRequest struct {
	Filename string
	PDF      []byte
	APIKey   string
	Model    string
}

// Generate uploads the paper and calls onFrame for every non-comment frame
// until the stream ends. An error frame ends it with *streamError.
func (c *apiClient) Generate(ctx context.Context, req generateRequest, onFrame func(sse.Frame) error) (generation, error) {
	body, contentType, err := multipartBody(req)
	if err != nil {
		return generation{}, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/api/generate", body)
	if err != nil {
		return generation{}, err
	}
	httpReq.Header.Set("Content-Type", contentType)
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return generation{}, fmt.Errorf("post generate: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return generation{}, decodeAPIError(resp)
	}

	var result generation
	reader := sse.NewReader(resp.Body)
	for {
		frame, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return result, fmt.Errorf("read event stream: %w", err)
		}
		if frame.IsComment() {
			continue
		}
		if onFrame != nil {
			if err := onFrame(frame); err != nil {
				return result, err
			}
		}
		switch frame.Event {
		case jobs.EventDraftReady:
			var art jobs.ArtifactFrame
			if err := frame.Decode(&art); err == nil {
				result.DraftID = art.JobID
			}
		case jobs.EventComplete:
			var art jobs.ArtifactFrame
			if err := frame.Decode(&art); err != nil {
				return result, fmt.Errorf("decode complete frame: %w", err)
			}
			result.JobID = art.JobID
			result.SizeKB = art.SizeKB
			return result, nil
		case jobs.EventError:
			var ef jobs.ErrorFrame
			_ = frame.Decode(&ef)
			return result, &streamError{Message: ef.Error}
		}
	}
	return result, errors.New("event stream ended without a result")
}

func multipartBody(req generateRequest) (io.Reader, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filepath.Base(req.Filename))
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(req.PDF); err != nil {
		return nil, "", err
	}
	if err := mw.WriteField("api_key", req.APIKey); err != nil {
		return nil, "", err
	}
	if model := strings.TrimSpace(req.Model); model != "" {
		if err := mw.WriteField("model", model); err != nil {
			return nil, "", err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, "", err
	}
	return &buf, mw.FormDataContentType(), nil
}

// Download returns the stored notebook for id.
func (c *apiClient) Download(ctx context.Context, id string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/api/download/"+url.PathEscape(id), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", id, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, decodeAPIError(resp)
	}
	return io.ReadAll(resp.Body)
}

// Status returns the service status report.
func (c *apiClient) Status(ctx context.Context) (api.StatusResponse, error) {
	var status api.StatusResponse
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/api/status", nil)
	if err != nil {
		return status, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return status, fmt.Errorf("get status: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return status, decodeAPIError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return status, fmt.Errorf("decode status: %w", err)
	}
	return status, nil
}

func decodeAPIError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	var body api.ErrorResponse
	if err := json.Unmarshal(data, &body); err != nil || body.Error == "" {
		body.Error = strings.TrimSpace(string(data))
		if body.Error == "" {
			body.Error = http.StatusText(resp.StatusCode)
		}
	}
	return &apiError{Status: resp.StatusCode, Message: body.Error}
}
