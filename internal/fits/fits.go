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
	"errors"
	"fmt"
	"math"
	"strings"
	"github.com/mlnoga/stardim/internal/mask"
	"github.com/mlnoga/stardim/internal/star"
	"github.com/mlnoga/stardim/internal/stats"
)

// Sentinel for empty or unusable input images
var ErrInvalidInput = errors.New("invalid input image")

// Upper bound of the normalized intensity range
const NormMax = float32(255)

// A FITS image.
// Spec here:   https://fits.gsfc.nasa.gov/standard40/fits_standard40aa-le.pdf
// Primer here: https://fits.gsfc.nasa.gov/fits_primer.html
type Image struct {
	ID       int         // Sequential ID number, for log output. Counted upwards from 0
	FileName string      // Original file name, if any, for log output.

	Header Header 	     // The header with all keys, values, comments, history entries etc.
	Bitpix int32         // Bits per pixel value from the header. Positive values are integral, negative floating.
	Bzero  float32 		 // Zero offset. True pixel value is Bzero + Bscale * Data[i].
	Bscale float32 		 // Value scaler. True pixel value is Bzero + Bscale * Data[i].
						 // After normalization, records the mapping back to the original intensities.
	Naxisn []int32 		 // Axis dimensions. Most quickly varying dimension first (i.e. X,Y[,channels])
	Pixels int32 		 // Number of pixels in the image. Product of Naxisn[]

	Data   []float32     // The image data, channel-planar for color images

	Exposure float32     // Image exposure in seconds

	Stats  *stats.Stats  // Image statistics: min, mean, max, location, scale

	Stars  []star.Star   // Star detections
	Mask   *mask.Mask    // Star protection mask built from the detections
}

// Creates a FITS image initialized with empty header
func NewImage() *Image {
	return &Image{
		Header:  NewHeader(),
		Bscale:  1,
	}
}

// Creates a FITS image from given naxisn. Data is not copied, allocated if nil. naxisn is deep copied
func NewImageFromNaxisn(naxisn []int32, data []float32) *Image {
	numPixels:=int32(1)
	for _,naxis:=range(naxisn) {
		numPixels*=naxis
	}
	if data==nil {
		data=make([]float32, numPixels)
	}
	return &Image{
		ID:       0,
		FileName: "",
		Header:   NewHeader(),
		Bitpix:   -32,
		Bzero:    0,
		Bscale:   1,
		Naxisn:   append([]int32(nil), naxisn...), // clone slice
		Pixels:   numPixels,
		Data:     data,
		Exposure: 0,
		Stats:    stats.NewStats(data, naxisn[0]),
		Stars:    nil,
		Mask:     nil,
	}
}

// Creates a FITS image from given image. A new data array will be allocated
func NewImageFromImage(img *Image) *Image {
	data:=make([]float32, img.Pixels)
	return &Image{
		ID:       img.ID,
		FileName: img.FileName,
		Header:   img.Header,
		Bitpix:   img.Bitpix,
		Bzero:    img.Bzero,
		Bscale:   img.Bscale,
		Naxisn:   append([]int32(nil), img.Naxisn...), // clone slice
		Pixels:   img.Pixels,
		Data:     data,
		Exposure: img.Exposure,
		Stats:    stats.NewStats(data, img.Naxisn[0]),
		Stars:    img.Stars,
		Mask:     img.Mask,
	}
}

// FITS header data
type Header struct {
	Bools    map[string]bool
	Ints     map[string]int32
	Floats   map[string]float32
	Strings  map[string]string
	Dates    map[string]string
	Comments []string
	History  []string
	End      bool
	Length   int32
}

// Creates a FITS header initialized with empty maps and arrays
func NewHeader() Header {
	return Header{
		Bools:   make(map[string]bool),
		Ints:    make(map[string]int32),
		Floats:  make(map[string]float32),
		Strings: make(map[string]string),
		Dates:   make(map[string]string),
		Comments:make([]string,0),
		History: make([]string,0),
		End:     false,
	}
}

const fitsBlockSize  int = 2880 // Block size of FITS header and data units
const HeaderLineSize int =   80 // Line size of a FITS header

func (f *Image) DimensionsToString() string {
	b:=strings.Builder{}
	for i,naxis:=range(f.Naxisn) {
		if i>0 {
			fmt.Fprintf(&b, "x%d", naxis)
		} else {
			fmt.Fprintf(&b, "%d", naxis)
		}
	}
	return b.String()
}

// Number of color channels in the image
func (f *Image) Channels() int32 {
	if len(f.Naxisn)>=3 { return f.Naxisn[2] }
	return 1
}

// Number of pixels per channel plane
func (f *Image) PlanePixels() int32 {
	return f.Naxisn[0]*f.Naxisn[1]
}

// Returns the luminance channel used for star detection. Monochrome images are
// returned as is, color images are reduced with the usual grey coefficients
// 0.299 R + 0.587 G + 0.114 B into a newly allocated plane
func (f *Image) DetectionLuminance() []float32 {
	if f.Channels()<3 { return f.Data }
	l:=f.PlanePixels()
	r, g, b:=f.Data[:l], f.Data[l:2*l], f.Data[2*l:3*l]
	lum:=make([]float32, l)
	for i:=range lum {
		lum[i]=0.299*r[i] + 0.587*g[i] + 0.114*b[i]
	}
	return lum
}

// Linearly maps the image intensities into [0, NormMax], treating all channels
// with one common affine transform so relative channel weights are preserved.
// The common transform is a deliberate departure from normalizing each channel
// over its own range, which would need per-channel mapping parameters and
// shift the color balance.
// The mapping back to the original intensities is recorded in Bzero and Bscale,
// i.e. original = Bzero + Bscale * normalized. A zero dynamic range input maps
// to a constant zero field. Non-finite values are ignored for range estimation
// and propagate into the output
func NewNormalizedImage(f *Image) (*Image, error) {
	if f==nil || len(f.Data)==0 {
		return nil, fmt.Errorf("cannot normalize empty image: %w", ErrInvalidInput)
	}

	min, max:=float32(math.MaxFloat32), float32(-math.MaxFloat32)
	finite:=0
	for _,d:=range f.Data {
		if math.IsNaN(float64(d)) || math.IsInf(float64(d),0) { continue }
		if d<min { min=d }
		if d>max { max=d }
		finite++
	}
	if finite==0 {
		return nil, fmt.Errorf("%d: no finite pixels to normalize: %w", f.ID, ErrInvalidInput)
	}

	res:=NewImageFromImage(f)
	if max-min<1e-12 {
		// constant field: avoid division by zero, map to all zeros
		res.Bzero, res.Bscale=min, 1
		return res, nil
	}

	scale:=NormMax/(max-min)
	for i,d:=range f.Data {
		v:=(d-min)*scale
		if v<0       { v=0       }
		if v>NormMax { v=NormMax }
		res.Data[i]=v
	}
	res.Bzero, res.Bscale=min, (max-min)/NormMax
	res.Stats.Clear()
	return res, nil
}

// Equal tells whether a and b contain the same elements.
// A nil argument is equivalent to an empty slice.
func EqualInt32Slice(a, b []int32) bool {
    if len(a) != len(b) {
        return false
    }
    for i, v := range a {
        if v != b[i] {
            return false
        }
    }
    return true
}
