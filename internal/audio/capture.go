package audio

import (
	"context"

	goaudio "github.com/go-audio/audio"
)

// FrameSource — источник сырых фреймов (микрофон или запись в тестах).
type FrameSource interface {
	Frames(ctx context.Context) (<-chan []int16, error)
}

// Capture превращает поток фреймов в поток фраз.
type Capture struct {
	Source    FrameSource
	Segmenter *Segmenter
}

func (c *Capture) Segments(ctx context.Context) (<-chan *goaudio.IntBuffer, error) {
	frames, err := c.Source.Frames(ctx)
	if err != nil {
		return nil, err
	}
	out := make(chan *goaudio.IntBuffer, 4)
	go func() {
		defer close(out)
		for frame := range frames {
			seg := c.Segmenter.Push(frame)
			if seg == nil {
				continue
			}
			select {
			case out <- seg:
			case <-ctx.Done():
				return
			}
		}
		if seg := c.Segmenter.Flush(); seg != nil && ctx.Err() == nil {
			out <- seg
		}
	}()
	return out, nil
}
