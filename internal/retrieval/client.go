// Package retrieval downloads TRACER bulk archives and turns the enclosed CSV
// into records.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ThiagoRGoveia/tracer-ingest/internal/interpret"
	"github.com/ThiagoRGoveia/tracer-ingest/internal/models"
	"go.uber.org/zap"
)

// StartYear is the first year the portal publishes bulk data for.
const StartYear = 2000

const DefaultBaseURL = "http://tracer.sos.colorado.gov/PublicSite/Docs/BulkDataDownloads"

var ErrYearOutOfRange = errors.New("year out of range")

// Client builds archive URLs against a base location and downloads them.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

func NewClient(baseURL string, httpClient *http.Client, logger *zap.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 5 * time.Minute}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		logger:     logger,
	}
}

// IsValidCategory reports whether c names a downloadable report.
func IsValidCategory(c models.Category) bool {
	return c.IsValid()
}

// URL returns the archive location for year and category, for example
// <base>/2013_ContributionData.csv.zip.
func (c *Client) URL(year int, category models.Category) (string, error) {
	if !IsValidCategory(category) {
		return "", &interpret.UnknownCategoryError{Category: string(category)}
	}
	if year < StartYear {
		return "", fmt.Errorf("%w: %d is before %d", ErrYearOutOfRange, year, StartYear)
	}
	return fmt.Sprintf("%s/%d_%s.csv.zip", c.baseURL, year, category), nil
}

// FetchArchive downloads the archive at url into memory.
func (c *Client) FetchArchive(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request for %s: %w", url, err)
	}

	started := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("failed to download %s: unexpected status %s", url, resp.Status)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read body of %s: %w", url, err)
	}

	c.logger.Debug("archive downloaded",
		zap.String("url", url),
		zap.Int("bytes", len(data)),
		zap.Duration("elapsed", time.Since(started)))

	return data, nil
}

// GetReportRaw downloads and tokenizes one report without interpreting it.
func (c *Client) GetReportRaw(ctx context.Context, year int, category models.Category) ([]models.Record, error) {
	url, err := c.URL(year, category)
	if err != nil {
		return nil, err
	}

	archive, err := c.FetchArchive(ctx, url)
	if err != nil {
		return nil, err
	}

	content, err := ExtractFirstFile(archive)
	if err != nil {
		return nil, fmt.Errorf("failed to extract %s: %w", url, err)
	}

	records, err := ParseRecords(content)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", url, err)
	}

	return records, nil
}

// GetReportInterpreted downloads, tokenizes and interprets one report.
func (c *Client) GetReportInterpreted(ctx context.Context, year int, category models.Category) ([]models.Record, error) {
	if !IsValidCategory(category) {
		return nil, &interpret.UnknownCategoryError{Category: string(category)}
	}

	raw, err := c.GetReportRaw(ctx, year, category)
	if err != nil {
		return nil, err
	}

	return interpret.InterpretBatch(raw, category)
}

// GetReport interprets the given categories for year, or all of them when
// none are given.
func (c *Client) GetReport(ctx context.Context, year int, categories ...models.Category) (map[models.Category][]models.Record, error) {
	if len(categories) == 0 {
		categories = models.Categories
	}

	reports := make(map[models.Category][]models.Record, len(categories))
	for _, category := range categories {
		records, err := c.GetReportInterpreted(ctx, year, category)
		if err != nil {
			return nil, fmt.Errorf("failed to get %s report for %d: %w", category, year, err)
		}
		reports[category] = records
	}

	return reports, nil
}
