package baidu

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"

	"github.com/abyssvoice/abyss-core/core/faults"
	"github.com/abyssvoice/abyss-core/core/speechtotext"
)

func (c *TranscriptionClient) Start(ctx context.Context, opts ...speechtotext.TranscriptionOption) error {
	c.options = speechtotext.Apply(opts...)

	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return fmt.Errorf("recognition already in progress")
	}
	c.started = true
	c.halted = false
	c.buffer = nil
	c.uploads = make(chan upload, 8)
	c.done = make(chan struct{})
	c.mu.Unlock()

	// One worker keeps chunk uploads strictly ordered so the endpoint sees
	// the segment's audio in capture order.
	go c.processUploads(ctx)

	chunkSize := c.options.EncodingInfo.BytesPerSecond()
	if err := c.capture.StartCapture(ctx, func(chunk []byte) {
		c.mu.Lock()
		if c.halted {
			c.mu.Unlock()
			return
		}
		c.buffer = append(c.buffer, chunk...)
		var full []byte
		if len(c.buffer) >= chunkSize {
			full = c.buffer
			c.buffer = nil
		}
		c.mu.Unlock()

		if full != nil {
			c.enqueue(upload{audio: full})
		}
	}); err != nil {
		close(c.uploads)
		c.mu.Lock()
		c.started = false
		c.mu.Unlock()
		return faults.New(faults.ProviderUnavailable, err, "failed to start microphone capture")
	}

	c.options.SpeechStartedCallback()
	return nil
}

// Stop flushes whatever audio is still buffered as the final chunk and waits
// for the authoritative transcript before returning.
func (c *TranscriptionClient) Stop() error {
	c.mu.Lock()
	if !c.started {
		c.mu.Unlock()
		return nil
	}
	c.started = false
	remaining := c.buffer
	c.buffer = nil
	c.mu.Unlock()

	if err := c.capture.StopCapture(); err != nil {
		logger.Warn("failed to stop capture device", "error", err)
	}

	c.enqueue(upload{audio: remaining, isFinal: true})
	close(c.uploads)
	<-c.done
	return nil
}

func (c *TranscriptionClient) enqueue(chunk upload) {
	select {
	case c.uploads <- chunk:
		return
	default:
	}

	// The endpoint is not keeping up. A lost chunk would leave a hole in the
	// transcript, so the whole segment is invalid.
	if c.halt() {
		c.options.ErrorCallback(faults.New(faults.ProviderUnavailable, nil,
			"recognition endpoint fell behind, captured audio was dropped"))
	}
	if chunk.isFinal {
		// Stop waits on the worker; the final chunk still has to reach it.
		select {
		case <-c.uploads:
		default:
		}
		c.uploads <- chunk
	}
}

func (c *TranscriptionClient) processUploads(ctx context.Context) {
	defer close(c.done)

	for chunk := range c.uploads {
		if c.isHalted() && !chunk.isFinal {
			continue
		}

		transcript, err := c.uploadChunk(ctx, chunk)
		if err != nil {
			// A single failed upload invalidates the whole segment; later
			// chunks would produce a transcript with a hole in it.
			if c.halt() {
				c.options.ErrorCallback(err)
			}
			continue
		}

		if chunk.isFinal {
			if !c.isHalted() {
				c.options.TranscriptionCallback(strings.TrimSpace(transcript))
				c.options.SpeechEndedCallback()
			}
		} else if !c.isHalted() {
			c.options.InterimTranscriptionCallback(strings.TrimSpace(transcript))
		}
	}
}

type recognitionResponse struct {
	ErrNo  int      `json:"err_no"`
	ErrMsg string   `json:"err_msg"`
	Result []string `json:"result"`
}

func (c *TranscriptionClient) uploadChunk(ctx context.Context, chunk upload) (string, error) {
	ctx, span := tracer.Start(ctx, "baidu.uploadChunk")
	defer span.End()

	endpoint := c.endpoint
	if c.tokens != nil {
		token, err := c.tokens.Token(ctx)
		if err != nil {
			return "", err
		}
		parsed, err := url.Parse(endpoint)
		if err != nil {
			return "", faults.New(faults.ParameterInvalid, err, "invalid recognition endpoint")
		}
		query := parsed.Query()
		query.Set("access_token", token)
		parsed.RawQuery = query.Encode()
		endpoint = parsed.String()
	}

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("audio", "chunk.pcm")
	if err != nil {
		return "", fmt.Errorf("failed to build chunk request: %w", err)
	}
	if _, err := part.Write(chunk.audio); err != nil {
		return "", fmt.Errorf("failed to build chunk request: %w", err)
	}
	if err := writer.WriteField("isFinal", fmt.Sprintf("%t", chunk.isFinal)); err != nil {
		return "", fmt.Errorf("failed to build chunk request: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("failed to build chunk request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return "", fmt.Errorf("failed to build chunk request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", faults.New(faults.NetworkTimeout, err, "chunk upload failed")
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", faults.New(faults.NetworkTimeout, err, "chunk upload failed")
	}
	if resp.StatusCode != http.StatusOK {
		return "", faults.Newf(faults.ProviderUnavailable, nil,
			"recognition endpoint returned status %d", resp.StatusCode)
	}

	var parsed recognitionResponse
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return "", faults.New(faults.ProviderUnavailable, err, "unparsable recognition response")
	}
	if parsed.ErrNo != 0 {
		return "", faults.Newf(faults.ProviderUnavailable, nil,
			"recognition rejected: %s (%d)", parsed.ErrMsg, parsed.ErrNo)
	}

	return strings.Join(parsed.Result, ""), nil
}
