package wmts

import (
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/go-spatial/geom"
)

// capabilitiesDoc mirrors the WMTS 1.0.0 GetCapabilities response.
// Element names are matched on local name, so the usual ows: prefixes
// need no special handling.
type capabilitiesDoc struct {
	XMLName  xml.Name `xml:"Capabilities"`
	Version  string   `xml:"version,attr"`
	Contents struct {
		Layers         []layerXML         `xml:"Layer"`
		TileMatrixSets []tileMatrixSetXML `xml:"TileMatrixSet"`
	} `xml:"Contents"`
}

type layerXML struct {
	Identifier         string   `xml:"Identifier"`
	Title              string   `xml:"Title"`
	Formats            []string `xml:"Format"`
	TileMatrixSetLinks []struct {
		TileMatrixSet string `xml:"TileMatrixSet"`
	} `xml:"TileMatrixSetLink"`
	WGS84BoundingBox cornersXML `xml:"WGS84BoundingBox"`
}

type tileMatrixSetXML struct {
	Identifier       string          `xml:"Identifier"`
	Title            string          `xml:"Title"`
	SupportedCRS     string          `xml:"SupportedCRS"`
	WGS84BoundingBox cornersXML      `xml:"WGS84BoundingBox"`
	BoundingBox      cornersXML      `xml:"BoundingBox"`
	TileMatrices     []tileMatrixXML `xml:"TileMatrix"`
}

type cornersXML struct {
	LowerCorner string `xml:"LowerCorner"`
	UpperCorner string `xml:"UpperCorner"`
}

type tileMatrixXML struct {
	Identifier       string  `xml:"Identifier"`
	ScaleDenominator float64 `xml:"ScaleDenominator"`
	TopLeftCorner    string  `xml:"TopLeftCorner"`
	TileWidth        uint    `xml:"TileWidth"`
	TileHeight       uint    `xml:"TileHeight"`
	MatrixWidth      uint    `xml:"MatrixWidth"`
	MatrixHeight     uint    `xml:"MatrixHeight"`
}

// Capabilities is the distilled service description this tool works
// with: the advertised layers and their tile matrix sets.
type Capabilities struct {
	Version        string
	Layers         map[string]Layer
	TileMatrixSets map[string]TileMatrixSet
}

type Layer struct {
	Name             string   `validate:"required"`
	Title            string
	Formats          []string `validate:"min=1"`
	TileMatrixSetIDs []string `validate:"min=1"`
	WGS84BBox        *geom.Extent
}

type TileMatrixSet struct {
	ID           string `validate:"required"`
	Title        string
	SupportedCRS string
	WGS84BBox    *geom.Extent
	// TileMatrices keyed by zoom level (the matrix identifier parsed
	// as an integer, or its position when not integer-like).
	TileMatrices map[int]TileMatrix `validate:"required,min=1"`
}

type TileMatrix struct {
	ID               string  `validate:"required"`
	ScaleDenominator float64 `validate:"required,gt=0"`
	TopLeft          [2]float64
	TileWidth        uint `validate:"required,min=1"`
	TileHeight       uint `validate:"required,min=1"`
	MatrixWidth      uint `validate:"required,min=1"`
	MatrixHeight     uint `validate:"required,min=1"`
}

func parseCapabilities(data []byte) (*Capabilities, error) {
	var doc capabilitiesDoc
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("malformed capabilities document: %w", err)
	}

	caps := &Capabilities{
		Version:        doc.Version,
		Layers:         make(map[string]Layer, len(doc.Contents.Layers)),
		TileMatrixSets: make(map[string]TileMatrixSet, len(doc.Contents.TileMatrixSets)),
	}

	validate := validator.New(validator.WithRequiredStructEnabled())

	for _, l := range doc.Contents.Layers {
		layer := Layer{
			Name:    l.Identifier,
			Title:   l.Title,
			Formats: l.Formats,
		}
		for _, link := range l.TileMatrixSetLinks {
			layer.TileMatrixSetIDs = append(layer.TileMatrixSetIDs, link.TileMatrixSet)
		}
		if bbox, err := parseCorners(l.WGS84BoundingBox); err == nil {
			layer.WGS84BBox = bbox
		}
		if err := validate.Struct(layer); err != nil {
			return nil, fmt.Errorf("invalid layer %q in capabilities: %w", l.Identifier, err)
		}
		caps.Layers[layer.Name] = layer
	}

	for _, s := range doc.Contents.TileMatrixSets {
		tms := TileMatrixSet{
			ID:           s.Identifier,
			Title:        s.Title,
			SupportedCRS: s.SupportedCRS,
			TileMatrices: make(map[int]TileMatrix, len(s.TileMatrices)),
		}
		if tms.Title == "" {
			tms.Title = tms.ID
		}
		if bbox, err := parseCorners(s.WGS84BoundingBox); err == nil {
			tms.WGS84BBox = bbox
		}
		for i, m := range s.TileMatrices {
			tm := TileMatrix{
				ID:               m.Identifier,
				ScaleDenominator: m.ScaleDenominator,
				TileWidth:        m.TileWidth,
				TileHeight:       m.TileHeight,
				MatrixWidth:      m.MatrixWidth,
				MatrixHeight:     m.MatrixHeight,
			}
			if topLeft, err := parsePoint(m.TopLeftCorner); err == nil {
				tm.TopLeft = topLeft
			}
			if err := validate.Struct(tm); err != nil {
				return nil, fmt.Errorf("invalid tile matrix %q in set %q: %w", m.Identifier, s.Identifier, err)
			}
			level := i
			if parsed, err := matrixLevel(m.Identifier); err == nil {
				level = parsed
			}
			tms.TileMatrices[level] = tm
		}
		if err := validate.Struct(tms); err != nil {
			return nil, fmt.Errorf("invalid tile matrix set %q in capabilities: %w", s.Identifier, err)
		}
		caps.TileMatrixSets[tms.ID] = tms
	}

	return caps, nil
}

// matrixLevel parses tile matrix identifiers like "14" or
// "EPSG:28992:14" into a zoom level.
func matrixLevel(id string) (int, error) {
	parts := strings.Split(id, ":")
	return strconv.Atoi(parts[len(parts)-1])
}

func parseCorners(c cornersXML) (*geom.Extent, error) {
	lower, err := parsePoint(c.LowerCorner)
	if err != nil {
		return nil, err
	}
	upper, err := parsePoint(c.UpperCorner)
	if err != nil {
		return nil, err
	}
	return &geom.Extent{lower[0], lower[1], upper[0], upper[1]}, nil
}

func parsePoint(s string) ([2]float64, error) {
	var pt [2]float64
	fields := strings.Fields(s)
	if len(fields) != 2 {
		return pt, fmt.Errorf("expected two coordinates, got %q", s)
	}
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return pt, fmt.Errorf("invalid coordinate %q: %w", f, err)
		}
		pt[i] = v
	}
	return pt, nil
}
