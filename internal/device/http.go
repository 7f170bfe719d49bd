package device

import (
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/dreamup/touchbot/internal/agent"
)

// HTTPFrameSource fetches frames from a screenshot endpoint that returns an
// encoded image (PNG or JPEG) per GET.
type HTTPFrameSource struct {
	URL    string
	Client *http.Client
	Retry  agent.RetryConfig
	logger zerolog.Logger
}

// NewHTTPFrameSource creates a source for url with the default transport retry policy.
func NewHTTPFrameSource(url string, retries int, logger zerolog.Logger) *HTTPFrameSource {
	cfg := agent.DefaultRetryConfig()
	if retries > 0 {
		cfg.MaxAttempts = retries
	}
	return &HTTPFrameSource{
		URL:    url,
		Client: &http.Client{Timeout: 10 * time.Second},
		Retry:  cfg,
		logger: logger.With().Str("component", "frames").Logger(),
	}
}

// Frame implements FrameSource.
func (s *HTTPFrameSource) Frame(ctx context.Context) (image.Image, error) {
	var img image.Image
	err := agent.Retry(ctx, s.Retry, func() error {
		var err error
		img, err = s.fetch(ctx)
		if err != nil {
			s.logger.Debug().Err(err).Msg("frame fetch failed")
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return img, nil
}

func (s *HTTPFrameSource) fetch(ctx context.Context) (image.Image, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
	if err != nil {
		return nil, agent.NewFrameError("build frame request", err)
	}
	resp, err := s.Client.Do(req)
	if err != nil {
		return nil, agent.NewFrameError("fetch frame", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, agent.NewFrameError("fetch frame", fmt.Errorf("unexpected status %s", resp.Status))
	}
	img, _, err := image.Decode(resp.Body)
	if err != nil {
		return nil, agent.NewFrameError("decode frame", err)
	}
	return img, nil
}
