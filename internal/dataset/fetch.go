package dataset

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
)

// Fetcher downloads the heart disease dataset and writes a cleaned CSV with
// a header row and binarized target.
type Fetcher struct {
	url      string
	fallback string
	rest     *resty.Client
}

func NewFetcher(url, fallback string, timeout time.Duration) *Fetcher {
	r := resty.New()
	if timeout > 0 {
		r.SetTimeout(timeout)
	} else {
		r.SetTimeout(30 * time.Second) // default fallback
	}
	r.SetRetryCount(2)
	return &Fetcher{url, fallback, r}
}

// Fetch downloads from the primary URL, falling back to the mirror when the
// primary fails, and writes the cleaned dataset to destPath.
func (f *Fetcher) Fetch(ctx context.Context, destPath string) (*Dataset, error) {
	ds, err := f.download(ctx, f.url)
	if err != nil {
		log.Warn().Err(err).Str("url", f.url).Msg("Primary dataset source failed, trying fallback")
		ds, err = f.download(ctx, f.fallback)
		if err != nil {
			return nil, fmt.Errorf("all dataset sources failed: %w", err)
		}
	}

	if err := SaveCSV(ds, destPath); err != nil {
		return nil, err
	}

	log.Info().
		Str("file", destPath).
		Int("rows", ds.Len()).
		Msg("Dataset downloaded")

	return ds, nil
}

func (f *Fetcher) download(ctx context.Context, url string) (*Dataset, error) {
	resp, err := f.rest.R().
		SetContext(ctx).
		Get(url)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("download error: status %d", resp.StatusCode())
	}

	ds, err := Read(strings.NewReader(resp.String()))
	if err != nil {
		return nil, fmt.Errorf("failed to parse downloaded data: %w", err)
	}
	return ds, nil
}
