// Package wmts fetches and interprets WMTS GetCapabilities documents.
package wmts

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-spatial/geom"
	"github.com/umpc/go-sortedmap"
)

// LayerNotFoundError is returned when the requested layer is absent
// from the service's advertised contents.
type LayerNotFoundError struct {
	Layer string
}

func (e *LayerNotFoundError) Error() string {
	return fmt.Sprintf("layer %q not found in provided WMTS service", e.Layer)
}

type Client struct {
	httpClient *http.Client
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(client *Client) {
		client.httpClient = c
	}
}

func NewClient(opts ...Option) *Client {
	client := &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// GetCapabilities fetches and parses the capabilities document of the
// service at serviceURL. A GetCapabilities KVP request is appended
// when the URL does not already carry one.
func (c *Client) GetCapabilities(ctx context.Context, serviceURL string) (*Capabilities, error) {
	reqURL, err := capabilitiesURL(serviceURL)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching capabilities from %s: %w", serviceURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching capabilities from %s: status %d", serviceURL, resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading capabilities response: %w", err)
	}
	return parseCapabilities(body)
}

func capabilitiesURL(serviceURL string) (string, error) {
	u, err := url.Parse(serviceURL)
	if err != nil {
		return "", fmt.Errorf("invalid WMTS URL %q: %w", serviceURL, err)
	}
	q := u.Query()
	if q.Get("REQUEST") == "" && q.Get("request") == "" && !strings.HasSuffix(strings.ToLower(u.Path), ".xml") {
		q.Set("SERVICE", "WMTS")
		q.Set("REQUEST", "GetCapabilities")
		q.Set("VERSION", "1.0.0")
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// LayerMetadata is the slice of the capabilities the rest of the
// pipeline needs: the layer, its first tile matrix set and format.
type LayerMetadata struct {
	LayerName       string
	Title           string
	TileMatrixSetID string
	Format          string
	FormatExtension string
	Resolutions     []float64
	WGS84BBox       *geom.Extent
	SupportedCRS    string
}

// LayerMetadata resolves a layer by name. The layer's first declared
// tile matrix set and image format are selected, matching how the
// service advertises its preferred combination first.
func (caps *Capabilities) LayerMetadata(layerName string) (*LayerMetadata, error) {
	layer, ok := caps.Layers[layerName]
	if !ok {
		return nil, &LayerNotFoundError{Layer: layerName}
	}
	tmsID := layer.TileMatrixSetIDs[0]
	tms, ok := caps.TileMatrixSets[tmsID]
	if !ok {
		return nil, fmt.Errorf("layer %q references unknown tile matrix set %q", layerName, tmsID)
	}
	bbox := tms.WGS84BBox
	if bbox == nil {
		bbox = layer.WGS84BBox
	}
	if bbox == nil {
		return nil, fmt.Errorf("tile matrix set %q has no WGS84 bounding box", tmsID)
	}
	format := layer.Formats[0]
	return &LayerMetadata{
		LayerName:       layerName,
		Title:           layer.Title,
		TileMatrixSetID: tmsID,
		Format:          format,
		FormatExtension: FormatExtension(format),
		Resolutions:     tms.Resolutions(),
		WGS84BBox:       bbox,
		SupportedCRS:    tms.SupportedCRS,
	}, nil
}

// FormatExtension derives a file extension from a MIME type,
// "image/png" becomes "png".
func FormatExtension(format string) string {
	if i := strings.LastIndex(format, "/"); i >= 0 {
		return format[i+1:]
	}
	return format
}

// standardizedRenderingPixelSize per OGC: 0.28 mm.
const standardizedRenderingPixelSize = 0.28e-3

// Resolutions lists the cell size of every tile matrix, ordered from
// the coarsest level up. Cell sizes are derived from the scale
// denominators using the standardized 0.28 mm rendering pixel.
func (tms *TileMatrixSet) Resolutions() []float64 {
	// the comparison func sees values: coarser (larger) cell sizes sort
	// first, which is also ascending zoom level order
	byLevel := sortedmap.New(len(tms.TileMatrices), func(x, y interface{}) bool {
		return x.(float64) > y.(float64)
	})
	for level, tm := range tms.TileMatrices {
		byLevel.Insert(level, tm.ScaleDenominator*standardizedRenderingPixelSize/tms.metersPerUnit())
	}
	resolutions := make([]float64, 0, byLevel.Len())
	mapped := byLevel.Map()
	for _, key := range byLevel.Keys() {
		resolutions = append(resolutions, mapped[key].(float64))
	}
	return resolutions
}

// metersPerUnit for the set's CRS; geographic systems use the ground
// size of one degree at the equator.
func (tms *TileMatrixSet) metersPerUnit() float64 {
	crs := tms.SupportedCRS
	if strings.HasSuffix(crs, ":4326") || strings.HasSuffix(crs, ":CRS84") || strings.Contains(crs, "CRS84") {
		return 111319.49079327358
	}
	return 1
}
