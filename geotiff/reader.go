package geotiff

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"
)

// Info is the parsed shape and georeferencing of a GeoTIFF file.
type Info struct {
	Profile Profile
	Geo     GeoInfo
}

// ReadInfo parses the first IFD of a GeoTIFF file.
func ReadInfo(path string) (Info, error) {
	info, _, err := read(path, false)
	return info, err
}

// Read parses a GeoTIFF file and returns its interleaved pixel data.
func Read(path string) (Info, []byte, error) {
	return read(path, true)
}

func read(path string, withData bool) (Info, []byte, error) {
	var info Info
	raw, err := os.ReadFile(path)
	if err != nil {
		return info, nil, fmt.Errorf("reading raster %s: %w", path, err)
	}
	if len(raw) < 8 {
		return info, nil, fmt.Errorf("%s: not a TIFF file", path)
	}

	var order binary.ByteOrder
	switch string(raw[:2]) {
	case "II":
		order = binary.LittleEndian
	case "MM":
		order = binary.BigEndian
	default:
		return info, nil, fmt.Errorf("%s: unknown TIFF byte order %q", path, raw[:2])
	}
	if order.Uint16(raw[2:4]) != 42 {
		return info, nil, fmt.Errorf("%s: not a classic TIFF file", path)
	}

	ifdOffset := order.Uint32(raw[4:8])
	if int(ifdOffset)+2 > len(raw) {
		return info, nil, fmt.Errorf("%s: IFD offset out of range", path)
	}
	entryCount := int(order.Uint16(raw[ifdOffset : ifdOffset+2]))

	var stripOffsets, stripByteCounts []uint32
	var pixelScale, tiepoint []float64
	var geoKeys []uint16

	for i := 0; i < entryCount; i++ {
		off := int(ifdOffset) + 2 + i*12
		if off+12 > len(raw) {
			return info, nil, fmt.Errorf("%s: truncated IFD", path)
		}
		tag := order.Uint16(raw[off:])
		ftype := order.Uint16(raw[off+2:])
		count := order.Uint32(raw[off+4:])
		value, err := entryValue(raw, order, ftype, count, raw[off+8:off+12])
		if err != nil {
			return info, nil, fmt.Errorf("%s: tag %d: %w", path, tag, err)
		}

		switch tag {
		case tagImageWidth:
			info.Profile.Width = int(firstUint(order, ftype, value))
		case tagImageLength:
			info.Profile.Height = int(firstUint(order, ftype, value))
		case tagSamplesPerPixel:
			info.Profile.Bands = int(firstUint(order, ftype, value))
		case tagStripOffsets:
			stripOffsets = uints(order, ftype, count, value)
		case tagStripByteCounts:
			stripByteCounts = uints(order, ftype, count, value)
		case tagModelPixelScale:
			pixelScale = doubles(order, count, value)
		case tagModelTiepoint:
			tiepoint = doubles(order, count, value)
		case tagGeoKeyDirectory:
			geoKeys = shorts(order, count, value)
		}
	}

	if info.Profile.Bands == 0 {
		info.Profile.Bands = 1
	}
	if len(pixelScale) >= 2 {
		info.Geo.PixelSizeX = pixelScale[0]
		info.Geo.PixelSizeY = pixelScale[1]
	}
	if len(tiepoint) >= 6 {
		// the tiepoint maps pixel (I,J) to world (X,Y)
		info.Geo.OriginX = tiepoint[3] - tiepoint[0]*info.Geo.PixelSizeX
		info.Geo.OriginY = tiepoint[4] + tiepoint[1]*info.Geo.PixelSizeY
	}
	info.Geo.EPSG = epsgFromGeoKeys(geoKeys)

	if !withData {
		return info, nil, nil
	}

	data := make([]byte, 0, info.Profile.Width*info.Profile.Height*info.Profile.Bands)
	for i, stripOff := range stripOffsets {
		if i >= len(stripByteCounts) {
			return info, nil, fmt.Errorf("%s: strip %d has no byte count", path, i)
		}
		end := int(stripOff) + int(stripByteCounts[i])
		if end > len(raw) {
			return info, nil, fmt.Errorf("%s: strip %d out of range", path, i)
		}
		data = append(data, raw[stripOff:end]...)
	}
	return info, data, nil
}

func typeSize(ftype uint16) int {
	switch ftype {
	case ftShort:
		return 2
	case ftLong:
		return 4
	case ftDouble:
		return 8
	default:
		return 1
	}
}

// entryValue resolves an IFD entry's raw value bytes, following the
// offset when the value does not fit inline.
func entryValue(raw []byte, order binary.ByteOrder, ftype uint16, count uint32, inline []byte) ([]byte, error) {
	size := typeSize(ftype) * int(count)
	if size <= 4 {
		return inline[:size], nil
	}
	off := int(order.Uint32(inline))
	if off+size > len(raw) {
		return nil, fmt.Errorf("value offset out of range")
	}
	return raw[off : off+size], nil
}

func firstUint(order binary.ByteOrder, ftype uint16, value []byte) uint32 {
	if ftype == ftShort {
		return uint32(order.Uint16(value))
	}
	return order.Uint32(value)
}

func uints(order binary.ByteOrder, ftype uint16, count uint32, value []byte) []uint32 {
	out := make([]uint32, count)
	for i := range out {
		if ftype == ftShort {
			out[i] = uint32(order.Uint16(value[2*i:]))
		} else {
			out[i] = order.Uint32(value[4*i:])
		}
	}
	return out
}

func shorts(order binary.ByteOrder, count uint32, value []byte) []uint16 {
	out := make([]uint16, count)
	for i := range out {
		out[i] = order.Uint16(value[2*i:])
	}
	return out
}

func doubles(order binary.ByteOrder, count uint32, value []byte) []float64 {
	out := make([]float64, count)
	for i := range out {
		out[i] = math.Float64frombits(order.Uint64(value[8*i:]))
	}
	return out
}

func epsgFromGeoKeys(geoKeys []uint16) int {
	if len(geoKeys) < 4 {
		return 0
	}
	numKeys := int(geoKeys[3])
	for i := 0; i < numKeys; i++ {
		base := 4 + i*4
		if base+3 >= len(geoKeys) {
			break
		}
		switch geoKeys[base] {
		case gkProjectedCS, gkGeographicType:
			if geoKeys[base+3] > 0 {
				return int(geoKeys[base+3])
			}
		}
	}
	return 0
}
