// Copyright (C) 2020 Markus L. Noga
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package fits

import (
	"compress/gzip"
	"fmt"
	"io"
	"math"
	"os"
	"path"
	"regexp"
	"strconv"
	"strings"

	"github.com/mlnoga/stardim/internal/stats"
)

var reParser *regexp.Regexp = compileRE() // Regexp parser for FITS header lines

const bufLen int = 16 * 1024 // input buffer length for reading from file

func NewImageFromFile(fileName string, id int, logWriter io.Writer) (i *Image, err error) {
	i = NewImage()
	i.ID = id
	return i, i.ReadFile(fileName, logWriter)
}

// Read image data from the file with the given name. Decompresses gzip if a
// .gz or .gzip suffix is present, and dispatches TIFF files to the TIFF reader
func (f *Image) ReadFile(fileName string, logWriter io.Writer) error {
	file, err := os.Open(fileName)
	if err != nil {
		return err
	}
	defer file.Close()

	var r io.Reader = file

	f.FileName = fileName
	lExt := strings.ToLower(path.Ext(fileName))

	if lExt == ".tif" || lExt == ".tiff" {
		return f.ReadTIFF(fileName)
	} else if lExt == ".gz" || lExt == ".gzip" {
		r, err = gzip.NewReader(file)
		if err != nil {
			return err
		}
	}

	return f.Read(r, logWriter)
}

func (f *Image) popHeaderInt32(key string) (res int32, err error) {
	if val, ok := f.Header.Ints[key]; ok {
		delete(f.Header.Ints, key)
		return val, nil
	}
	return 0, fmt.Errorf("%d: FITS header does not contain key %s", f.ID, key)
}

func (f *Image) popHeaderInt32OrFloat(key string) (res float32, err error) {
	if val, ok := f.Header.Ints[key]; ok {
		delete(f.Header.Ints, key)
		return float32(val), nil
	} else if val, ok := f.Header.Floats[key]; ok {
		delete(f.Header.Floats, key)
		return val, nil
	}
	return 0, fmt.Errorf("%d: FITS header does not contain key %s", f.ID, key)
}

func (f *Image) Read(r io.Reader, logWriter io.Writer) (err error) {
	err = f.Header.read(r, f.ID, logWriter)
	if err != nil {
		return err
	}

	// check mandatory fields as per standard
	if !f.Header.Bools["SIMPLE"] {
		return fmt.Errorf("%d: not a valid FITS file; SIMPLE=T missing in header", f.ID)
	}
	delete(f.Header.Bools, "SIMPLE")

	if f.Bitpix, err = f.popHeaderInt32("BITPIX"); err != nil {
		return err
	}
	var naxis int32
	if naxis, err = f.popHeaderInt32("NAXIS"); err != nil {
		return err
	}
	f.Naxisn = make([]int32, naxis)
	f.Pixels = int32(1)
	for i := int32(1); i <= naxis; i++ {
		name := "NAXIS" + strconv.FormatInt(int64(i), 10)
		var nai int32
		if nai, err = f.popHeaderInt32(name); err != nil {
			return err
		}
		f.Naxisn[i-1] = nai
		f.Pixels *= nai
	}

	// optional fields relevant for further processing
	if f.Bzero, err = f.popHeaderInt32OrFloat("BZERO"); err != nil {
		f.Bzero = 0
	}
	if f.Bscale, err = f.popHeaderInt32OrFloat("BSCALE"); err != nil {
		f.Bscale = 1
	}
	if f.Exposure, err = f.popHeaderInt32OrFloat("EXPOSURE"); err != nil {
		if f.Exposure, err = f.popHeaderInt32OrFloat("EXPTIME"); err != nil {
			f.Exposure = 0
		}
	}

	return f.readData(r, logWriter)
}

// Read image data, converting to float32 and applying Bzero/Bscale. The
// resulting data values incorporate the scaling, so Bzero/Bscale are reset
func (f *Image) readData(r io.Reader, logWriter io.Writer) (err error) {
	var bytesPerValue int
	var decode func(buf []byte) float32

	switch f.Bitpix {
	case 8:
		bytesPerValue, decode = 1, func(buf []byte) float32 {
			return float32(buf[0])
		}
	case 16:
		bytesPerValue, decode = 2, func(buf []byte) float32 {
			return float32(int16(uint16(buf[0])<<8 | uint16(buf[1])))
		}
	case 32:
		fmt.Fprintf(logWriter, "%d: Warning: loss of precision converting int%d to float32 values\n", f.ID, f.Bitpix)
		bytesPerValue, decode = 4, func(buf []byte) float32 {
			return float32(int32(uint32(buf[0])<<24 | uint32(buf[1])<<16 | uint32(buf[2])<<8 | uint32(buf[3])))
		}
	case 64:
		fmt.Fprintf(logWriter, "%d: Warning: loss of precision converting int%d to float32 values\n", f.ID, f.Bitpix)
		bytesPerValue, decode = 8, func(buf []byte) float32 {
			return float32(int64(uint64(buf[0])<<56 | uint64(buf[1])<<48 | uint64(buf[2])<<40 | uint64(buf[3])<<32 |
				uint64(buf[4])<<24 | uint64(buf[5])<<16 | uint64(buf[6])<<8 | uint64(buf[7])))
		}
	case -32:
		bytesPerValue, decode = 4, func(buf []byte) float32 {
			return math.Float32frombits(uint32(buf[0])<<24 | uint32(buf[1])<<16 | uint32(buf[2])<<8 | uint32(buf[3]))
		}
	case -64:
		fmt.Fprintf(logWriter, "%d: Warning: loss of precision converting float%d to float32 values\n", f.ID, -f.Bitpix)
		bytesPerValue, decode = 8, func(buf []byte) float32 {
			return float32(math.Float64frombits(uint64(buf[0])<<56 | uint64(buf[1])<<48 | uint64(buf[2])<<40 | uint64(buf[3])<<32 |
				uint64(buf[4])<<24 | uint64(buf[5])<<16 | uint64(buf[6])<<8 | uint64(buf[7])))
		}
	default:
		return fmt.Errorf("%d: unknown BITPIX value %d", f.ID, f.Bitpix)
	}

	return f.readValues(r, bytesPerValue, decode)
}

// Batched read of values of the given byte size from network byte order,
// applying Bzero and Bscale and keeping running statistics
func (f *Image) readValues(r io.Reader, bytesPerValue int, decode func(buf []byte) float32) error {
	min, max, sum := float32(math.MaxFloat32), float32(-math.MaxFloat32), float64(0)
	f.Data = make([]float32, int(f.Pixels))
	buf := make([]byte, bufLen)

	dataIndex := 0
	leftoverBytes := 0
	for dataIndex < len(f.Data) {
		bytesToRead := (len(f.Data)-dataIndex)*bytesPerValue - leftoverBytes
		if bytesToRead > bufLen-leftoverBytes {
			bytesToRead = bufLen - leftoverBytes
		}
		bytesRead, err := r.Read(buf[leftoverBytes : leftoverBytes+bytesToRead])
		if err != nil {
			return fmt.Errorf("%d: %s", f.ID, err.Error())
		}

		availableBytes := leftoverBytes + bytesRead
		wholeValues := availableBytes / bytesPerValue
		for i := 0; i < wholeValues; i++ {
			v := decode(buf[i*bytesPerValue:])*f.Bscale + f.Bzero
			if v < min {
				min = v
			}
			if v > max {
				max = v
			}
			sum += float64(v)
			f.Data[dataIndex+i] = v
		}
		dataIndex += wholeValues
		leftoverBytes = availableBytes - wholeValues*bytesPerValue
		copy(buf, buf[availableBytes-leftoverBytes:availableBytes])
	}

	f.Bzero, f.Bscale = 0, 1 // data values incorporate these now
	mean := float32(sum / float64(len(f.Data)))
	f.Stats = stats.NewStatsWithMMM(f.Data, f.Naxisn[0], min, max, mean)
	return nil
}

func (h *Header) read(r io.Reader, id int, logWriter io.Writer) error {
	buf := make([]byte, fitsBlockSize)

	for h.Length = 0; !h.End; {
		// read next header unit
		bytesRead, err := io.ReadFull(r, buf)
		if err != nil || bytesRead != fitsBlockSize {
			return fmt.Errorf("%d: %s", id, err.Error())
		}
		h.Length += int32(bytesRead)

		// parse all lines in this header unit
		for lineNo := 0; lineNo < fitsBlockSize/HeaderLineSize && !h.End; lineNo++ {
			line := buf[lineNo*HeaderLineSize : (lineNo+1)*HeaderLineSize]
			subValues := reParser.FindSubmatch(line)
			if subValues == nil {
				fmt.Fprintf(logWriter, "%d: Warning: cannot parse '%s', ignoring\n", id, string(line))
			} else {
				subNames := reParser.SubexpNames()
				h.readLine(subNames, subValues, id, lineNo, logWriter)
			}
		}
	}
	return nil
}

func (h *Header) readLine(subNames []string, subValues [][]byte, id, lineNo int, logWriter io.Writer) {
	key := ""
	// ignore index 0 which is the whole line
	for i := 1; i < len(subNames); i++ {
		if subValues[i] != nil && len(subNames[i]) == 1 {
			switch c := subNames[i][0]; c {
			case byte('E'): // end line
				h.End = true
			case byte('H'): // history line
				h.History = append(h.History, string(subValues[i]))
			case byte('C'): // comment line
				h.Comments = append(h.Comments, string(subValues[i]))
			case byte('k'): // key
				key = string(subValues[i])
			case byte('b'): // boolean
				if len(subValues[i]) > 0 {
					v := subValues[i][0]
					h.Bools[key] = v == byte('t') || v == byte('T')
				}
			case byte('i'): // int
				val, err := strconv.ParseInt(string(subValues[i]), 10, 64)
				if err == nil {
					h.Ints[key] = int32(val)
				}
			case byte('f'): // float
				val, err := strconv.ParseFloat(string(subValues[i]), 64)
				if err == nil {
					h.Floats[key] = float32(val)
				}
			case byte('s'): // string
				h.Strings[key] = string(subValues[i])
			case byte('d'): // date
				h.Dates[key] = string(subValues[i])
			case byte('c'): // comment
				// ignore value comments
			default:
				fmt.Fprintf(logWriter, "%d:%d: Warning: unknown token '%s'\n", id, lineNo, string(c))
			}
		}
	}
}

// Build regexp parser for FITS header lines
func compileRE() *regexp.Regexp {
	white := "\\s+"
	whiteOpt := "\\s*"
	whiteLine := white

	hist := "HISTORY"
	rest := ".*"
	histLine := hist + white + "(?P<H>" + rest + ")"

	commKey := "COMMENT"
	commLine := commKey + white + "(?P<C>" + rest + ")"

	end := "(?P<E>END)"
	endLine := end + whiteOpt

	key := "(?P<k>[A-Z0-9_-]+)"
	equals := "="

	boo := "(?P<b>[TF])"
	inte := "(?P<i>[+-]?[0-9]+)"
	floa := "(?P<f>[+-]?[0-9]*\\.[0-9]*(?:[ED][-+]?[0-9]+)?)"
	stri := "'(?P<s>[^']*)'"
	date := "(?P<d>[0-9]{1,4}-?[012][0-9]-?[0123][0-9]T[012][0-9]:?[0-5][0-9]:?[0-5][0-9].?[0-9]*)"
	val := "(?:" + boo + "|" + inte + "|" + floa + "|" + stri + "|" + date + ")"

	commOpt := "(?:/(?P<c>.*))?"
	keyLine := key + whiteOpt + equals + whiteOpt + val + whiteOpt + commOpt

	lineRe := "^(?:" + whiteLine + "|" + histLine + "|" + commLine + "|" + keyLine + "|" + endLine + ")$"
	return regexp.MustCompile(lineRe)
}
