package xfyun

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/abyssvoice/abyss-core/core/audio"
	"github.com/abyssvoice/abyss-core/core/faults"
	"github.com/abyssvoice/abyss-core/core/texttospeech"
)

const (
	// frameStatusLast marks both the request (all text in one frame) and the
	// server's final audio frame.
	frameStatusLast = 2
)

type synthesisRequest struct {
	Common struct {
		AppID string `json:"app_id"`
	} `json:"common"`
	Business struct {
		Aue    string `json:"aue"`
		Auf    string `json:"auf"`
		Vcn    string `json:"vcn"`
		Speed  int    `json:"speed"`
		Pitch  int    `json:"pitch"`
		Volume int    `json:"volume"`
		Tte    string `json:"tte"`
	} `json:"business"`
	Data struct {
		Status int    `json:"status"`
		Text   string `json:"text"`
	} `json:"data"`
}

type synthesisFrame struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    struct {
		Audio  string `json:"audio"`
		Status int    `json:"status"`
	} `json:"data"`
}

// Speak synthesizes the whole text over one websocket exchange and hands the
// assembled waveform to the playback sink. It blocks until the waveform is
// handed over or the request is rejected; it resolves exactly once either
// way.
func (c *Client) Speak(ctx context.Context, text string, opts ...texttospeech.SynthesisOption) error {
	ctx, span := tracer.Start(ctx, "xfyun.Speak")
	defer span.End()

	options := texttospeech.Apply(opts...)
	if err := options.ValidateParameters(); err != nil {
		return err
	}
	if text == "" {
		return faults.New(faults.ParameterInvalid, nil, "text must not be empty")
	}

	info, err := c.streamingInfo(ctx)
	if err != nil {
		return err
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, info.URL, nil)
	if err != nil {
		return faults.New(faults.ProviderUnavailable, err, "failed to open synthesis stream")
	}

	if err := conn.WriteJSON(buildRequest(info.AppID, text, options)); err != nil {
		conn.Close()
		return faults.New(faults.ProviderUnavailable, err, "failed to send synthesis request")
	}

	result := make(chan error, 1)
	var resolveOnce sync.Once
	resolve := func(err error) {
		resolveOnce.Do(func() { result <- err })
	}

	go c.collectAudio(ctx, conn, options, resolve)

	select {
	case <-ctx.Done():
		conn.Close()
		return faults.New(faults.NetworkTimeout, ctx.Err(), "synthesis cancelled")
	case err := <-result:
		return err
	}
}

func buildRequest(appID, text string, options texttospeech.SynthesisOptions) synthesisRequest {
	voice := options.Voice
	if voice == "" {
		voice = defaultVoice
	}

	request := synthesisRequest{}
	request.Common.AppID = appID
	request.Business.Aue = "raw"
	request.Business.Auf = fmt.Sprintf("audio/L16;rate=%d", options.EncodingInfo.SampleRate)
	request.Business.Vcn = voice
	request.Business.Speed = options.Speed
	request.Business.Pitch = options.Pitch
	request.Business.Volume = options.Volume
	request.Business.Tte = "UTF8"
	request.Data.Status = frameStatusLast
	request.Data.Text = base64.StdEncoding.EncodeToString([]byte(text))
	return request
}

// collectAudio reads server frames until the final-status frame, keeping the
// decoded chunks in arrival order, then hands the assembled waveform to the
// sink. The socket never outlives the resolution.
func (c *Client) collectAudio(ctx context.Context, conn *websocket.Conn, options texttospeech.SynthesisOptions, resolve func(error)) {
	defer conn.Close()

	var chunks [][]int16
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			resolve(faults.New(faults.ProviderUnavailable, err, "synthesis stream closed unexpectedly"))
			return
		}

		var frame synthesisFrame
		if err := json.Unmarshal(msg, &frame); err != nil {
			resolve(faults.New(faults.ProviderUnavailable, err, "unparsable synthesis frame"))
			return
		}

		if frame.Code != 0 {
			resolve(faults.Newf(faults.ProviderUnavailable, nil,
				"synthesis rejected: %s (%d)", frame.Message, frame.Code))
			return
		}

		if frame.Data.Audio != "" {
			payload, err := base64.StdEncoding.DecodeString(frame.Data.Audio)
			if err != nil {
				resolve(faults.New(faults.ProviderUnavailable, err, "undecodable audio frame"))
				return
			}
			chunks = append(chunks, audio.DecodePCM16(payload))
		}

		if frame.Data.Status == frameStatusLast {
			break
		}
	}

	waveform := audio.BuildWaveform(chunks, options.EncodingInfo.SampleRate)
	if waveform.IsEmpty() {
		resolve(faults.New(faults.ProviderUnavailable, nil, "synthesis produced no audio"))
		return
	}

	if err := c.sink.Play(ctx, waveform,
		options.PlaybackStartedCallback, options.PlaybackEndedCallback); err != nil {
		resolve(faults.New(faults.AudioPlaybackError, err, "failed to start playback"))
		return
	}
	resolve(nil)
}
