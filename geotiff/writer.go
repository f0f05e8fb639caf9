package geotiff

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"os"
)

const defaultRowsPerStrip = 64

// Writer accumulates pixel windows for one output raster and encodes
// the GeoTIFF on Close. The raster is held in memory; windows may be
// written in any order and later writes overwrite earlier ones.
type Writer struct {
	path    string
	profile Profile
	geo     GeoInfo
	data    []byte
	closed  bool
}

func NewWriter(path string, profile Profile, geo GeoInfo) (*Writer, error) {
	if profile.Width <= 0 || profile.Height <= 0 {
		return nil, fmt.Errorf("invalid raster size %dx%d", profile.Width, profile.Height)
	}
	switch profile.Bands {
	case 1, 3, 4:
	default:
		return nil, fmt.Errorf("unsupported band count %d", profile.Bands)
	}
	return &Writer{
		path:    path,
		profile: profile,
		geo:     geo,
		data:    make([]byte, profile.Width*profile.Height*profile.Bands),
	}, nil
}

func (w *Writer) Profile() Profile {
	return w.profile
}

// WriteWindow copies an interleaved pixel block into the raster at the
// window position. The block must be win.W*win.H*Bands bytes. Parts of
// the window outside the raster are dropped.
func (w *Writer) WriteWindow(win Window, px []byte) error {
	if w.closed {
		return fmt.Errorf("writer for %s already closed", w.path)
	}
	if win.Empty() {
		return nil
	}
	if len(px) != win.W*win.H*w.profile.Bands {
		return fmt.Errorf("window %v needs %d bytes, got %d", win, win.W*win.H*w.profile.Bands, len(px))
	}
	bands := w.profile.Bands
	clipped := win.Intersect(w.profile.Width, w.profile.Height)
	for row := 0; row < clipped.H; row++ {
		srcRow := clipped.Y - win.Y + row
		srcOff := (srcRow*win.W + (clipped.X - win.X)) * bands
		dstOff := ((clipped.Y+row)*w.profile.Width + clipped.X) * bands
		copy(w.data[dstOff:dstOff+clipped.W*bands], px[srcOff:srcOff+clipped.W*bands])
	}
	return nil
}

// Close encodes the raster and writes the file, overwriting any
// existing one.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	encoded, err := w.encode()
	if err != nil {
		return err
	}
	if err := os.WriteFile(w.path, encoded, 0o644); err != nil {
		return fmt.Errorf("writing raster to %s: %w", w.path, err)
	}
	return nil
}

type ifdEntry struct {
	tag   uint16
	ftype uint16
	count uint32
	value []byte // raw little-endian value bytes
}

func (w *Writer) encode() ([]byte, error) {
	le := binary.LittleEndian
	p := w.profile

	rowsPerStrip := defaultRowsPerStrip
	if rowsPerStrip > p.Height {
		rowsPerStrip = p.Height
	}
	stripCount := (p.Height + rowsPerStrip - 1) / rowsPerStrip

	photometric := uint16(1) // BlackIsZero
	if p.Bands >= 3 {
		photometric = 2 // RGB
	}

	entries := []ifdEntry{
		longEntry(tagImageWidth, uint32(p.Width)),
		longEntry(tagImageLength, uint32(p.Height)),
		shortsEntry(tagBitsPerSample, repeatShort(8, p.Bands)),
		shortsEntry(tagCompression, []uint16{1}),
		shortsEntry(tagPhotometric, []uint16{photometric}),
		{tag: tagStripOffsets, ftype: ftLong, count: uint32(stripCount)}, // offsets filled below
		shortsEntry(tagSamplesPerPixel, []uint16{uint16(p.Bands)}),
		longEntry(tagRowsPerStrip, uint32(rowsPerStrip)),
		{tag: tagStripByteCounts, ftype: ftLong, count: uint32(stripCount)},
	}
	entries = append(entries, shortsEntry(tagPlanarConfig, []uint16{1}))
	if p.Bands == 4 {
		entries = append(entries, shortsEntry(tagExtraSamples, []uint16{2}))
	}
	entries = append(entries,
		doublesEntry(tagModelPixelScale, []float64{w.geo.PixelSizeX, w.geo.PixelSizeY, 0}),
		doublesEntry(tagModelTiepoint, []float64{0, 0, 0, w.geo.OriginX, w.geo.OriginY, 0}),
		shortsEntry(tagGeoKeyDirectory, w.geoKeys()),
	)

	// strip sizes
	stripByteCounts := make([]uint32, stripCount)
	rowBytes := p.Width * p.Bands
	for i := 0; i < stripCount; i++ {
		rows := rowsPerStrip
		if last := p.Height - i*rowsPerStrip; last < rows {
			rows = last
		}
		stripByteCounts[i] = uint32(rows * rowBytes)
	}

	// layout: header, IFD, external values, strip data
	headerSize := 8
	ifdSize := 2 + len(entries)*12 + 4
	externalOffset := headerSize + ifdSize
	externalSize := 0
	for i := range entries {
		if entries[i].tag == tagStripOffsets || entries[i].tag == tagStripByteCounts {
			continue
		}
		if len(entries[i].value) > 4 {
			externalSize += pad2(len(entries[i].value))
		}
	}
	// strip offsets/bytecounts arrays live in the external area too
	// when there is more than one strip
	stripArrayBytes := 0
	if stripCount > 1 {
		stripArrayBytes = 2 * pad2(4*stripCount)
	}
	dataOffset := externalOffset + externalSize + stripArrayBytes

	stripOffsets := make([]uint32, stripCount)
	off := uint32(dataOffset)
	for i := 0; i < stripCount; i++ {
		stripOffsets[i] = off
		off += stripByteCounts[i]
	}

	// fill the strip entries' values now the offsets are known
	for i := range entries {
		switch entries[i].tag {
		case tagStripOffsets:
			entries[i].value = longsBytes(stripOffsets)
		case tagStripByteCounts:
			entries[i].value = longsBytes(stripByteCounts)
		}
	}

	var buf bytes.Buffer
	buf.Grow(dataOffset + len(w.data))

	// header
	buf.WriteString("II")
	binWrite(&buf, le, uint16(42))
	binWrite(&buf, le, uint32(headerSize))

	// IFD, entries are already in ascending tag order
	binWrite(&buf, le, uint16(len(entries)))
	external := make([]byte, 0, externalSize+stripArrayBytes)
	nextExternal := uint32(externalOffset)
	for _, e := range entries {
		binWrite(&buf, le, e.tag)
		binWrite(&buf, le, e.ftype)
		binWrite(&buf, le, e.count)
		if len(e.value) <= 4 {
			var inline [4]byte
			copy(inline[:], e.value)
			buf.Write(inline[:])
			continue
		}
		binWrite(&buf, le, nextExternal)
		padded := make([]byte, pad2(len(e.value)))
		copy(padded, e.value)
		external = append(external, padded...)
		nextExternal += uint32(len(padded))
	}
	binWrite(&buf, le, uint32(0)) // no next IFD

	buf.Write(external)
	buf.Write(w.data)

	return buf.Bytes(), nil
}

func (w *Writer) geoKeys() []uint16 {
	modelType := uint16(modelTypeProjected)
	epsgKey := uint16(gkProjectedCS)
	if geographicEPSG(w.geo.EPSG) {
		modelType = modelTypeGeographic
		epsgKey = gkGeographicType
	}
	return []uint16{
		// KeyDirectoryVersion, KeyRevision, MinorRevision, NumberOfKeys
		1, 1, 0, 3,
		gkModelType, 0, 1, modelType,
		gkRasterType, 0, 1, rasterTypePixelIsArea,
		epsgKey, 0, 1, uint16(w.geo.EPSG),
	}
}

func longEntry(tag uint16, v uint32) ifdEntry {
	return ifdEntry{tag: tag, ftype: ftLong, count: 1, value: longsBytes([]uint32{v})}
}

func shortsEntry(tag uint16, vs []uint16) ifdEntry {
	b := make([]byte, 2*len(vs))
	for i, v := range vs {
		binary.LittleEndian.PutUint16(b[2*i:], v)
	}
	return ifdEntry{tag: tag, ftype: ftShort, count: uint32(len(vs)), value: b}
}

func doublesEntry(tag uint16, vs []float64) ifdEntry {
	b := make([]byte, 8*len(vs))
	for i, v := range vs {
		binary.LittleEndian.PutUint64(b[8*i:], math.Float64bits(v))
	}
	return ifdEntry{tag: tag, ftype: ftDouble, count: uint32(len(vs)), value: b}
}

func longsBytes(vs []uint32) []byte {
	b := make([]byte, 4*len(vs))
	for i, v := range vs {
		binary.LittleEndian.PutUint32(b[4*i:], v)
	}
	return b
}

func repeatShort(v uint16, n int) []uint16 {
	vs := make([]uint16, n)
	for i := range vs {
		vs[i] = v
	}
	return vs
}

func pad2(n int) int {
	if n%2 == 1 {
		return n + 1
	}
	return n
}

func binWrite(buf *bytes.Buffer, order binary.ByteOrder, v interface{}) {
	_ = binary.Write(buf, order, v)
}
