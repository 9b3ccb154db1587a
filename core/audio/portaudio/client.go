// Package portaudio provides an alternative microphone capture client for
// runtimes where the miniaudio backend is unavailable.
package portaudio

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"

	"github.com/gordonklaus/portaudio"

	"github.com/abyssvoice/abyss-core/core/audio"
)

type Client struct {
	bufferSize int
	stream     *portaudio.Stream

	in []int16
}

func NewClient(bufferSize int) (*Client, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize portaudio: %w", err)
	}

	in := make([]int16, bufferSize)
	stream, err := portaudio.OpenDefaultStream(1, 0, audio.DefaultSampleRate, bufferSize, in)
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("failed to open portaudio stream: %w", err)
	}

	return &Client{
		bufferSize: bufferSize,
		stream:     stream,
		in:         in,
	}, nil
}

// StartCapture starts the stream and returns. Microphone frames are read on a
// background goroutine until the context is cancelled, StopCapture stops the
// stream, or a read fails.
func (c *Client) StartCapture(ctx context.Context, onAudio func(chunk []byte)) error {
	if err := c.stream.Start(); err != nil {
		return fmt.Errorf("failed to start portaudio stream: %w", err)
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			// Read fails once StopCapture stops the stream; the loop ends
			// there.
			if err := c.stream.Read(); err != nil {
				return
			}

			buffer := bytes.Buffer{}
			_ = binary.Write(&buffer, binary.LittleEndian, c.in)
			onAudio(buffer.Bytes())
		}
	}()
	return nil
}

func (c *Client) StopCapture() error {
	if err := c.stream.Stop(); err != nil {
		return fmt.Errorf("failed to stop portaudio stream: %w", err)
	}
	return nil
}

func (c *Client) EncodingInfo() audio.EncodingInfo {
	return audio.GetDefaultEncodingInfo()
}

func (c *Client) Close() {
	c.stream.Close()
	portaudio.Terminate()
}
