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


package morph

import (
	"errors"
	"fmt"
	"runtime"
	"github.com/mlnoga/stardim/internal/fits"
)

// Sentinel for invalid morphology parameters
var ErrInvalidParameter = errors.New("invalid morphology parameter")

// The kind of a morphological transform
type Kind int
const (
	Erode Kind = iota // each pixel becomes the minimum of its neighborhood
	Dilate            // each pixel becomes the maximum of its neighborhood
)

func (k Kind) String() string {
	switch k {
	case Erode:  return "erode"
	case Dilate: return "dilate"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Parses a morphological transform kind from its string form
func ParseKind(s string) (Kind, error) {
	switch s {
	case "erode":  return Erode, nil
	case "dilate": return Dilate, nil
	}
	return Erode, fmt.Errorf("unknown transform kind %q: %w", s, ErrInvalidParameter)
}

// Applies a morphological transform with a square structuring element of the
// given odd size to the image, repeated for the given number of iterations,
// and returns the result as a new image. Each channel is processed
// independently; channels run concurrently without changing results.
//
// Border policy is replicate: coordinates outside the plane are clamped to the
// nearest edge pixel. A square structuring element separates into a horizontal
// and a vertical min/max pass
func Transform(f *fits.Image, kind Kind, kernelSize, iterations int32) (*fits.Image, error) {
	if kernelSize<1 || kernelSize%2==0 {
		return nil, fmt.Errorf("kernel size %d must be positive and odd: %w", kernelSize, ErrInvalidParameter)
	}
	if iterations<1 {
		return nil, fmt.Errorf("iterations %d must be at least 1: %w", iterations, ErrInvalidParameter)
	}
	if kind!=Erode && kind!=Dilate {
		return nil, fmt.Errorf("%v: %w", kind, ErrInvalidParameter)
	}

	res:=fits.NewImageFromImage(f)
	width, height:=int(f.Naxisn[0]), int(f.Naxisn[1])
	planePixels:=width*height

	limiter:=make(chan bool, runtime.NumCPU())
	for ch:=int32(0); ch<f.Channels(); ch++ {
		limiter <- true
		go func(ch int32) {
			defer func() { <-limiter }()
			src :=f.Data  [int(ch)*planePixels : (int(ch)+1)*planePixels]
			dest:=res.Data[int(ch)*planePixels : (int(ch)+1)*planePixels]
			transformPlane(dest, src, width, height, kind, kernelSize, iterations)
		}(ch)
	}
	for i:=0; i<cap(limiter); i++ { // wait for goroutines to finish
		limiter <- true
	}

	res.Stats.Clear()
	return res, nil
}

func transformPlane(dest, src []float32, width, height int, kind Kind, kernelSize, iterations int32) {
	half:=int(kernelSize)/2
	cur:=make([]float32, len(src))
	copy(cur, src)
	buf:=make([]float32, len(src))

	for iter:=int32(0); iter<iterations; iter++ {
		passX(buf, cur, width, height, half, kind)
		passY(cur, buf, width, height, half, kind)
	}
	copy(dest, cur)
}

// Horizontal min/max pass with replicate borders
func passX(res, data []float32, width, height, half int, kind Kind) {
	for y:=0; y<height; y++ {
		row:=data[y*width : (y+1)*width]
		out:=res [y*width : (y+1)*width]
		for x:=0; x<width; x++ {
			lo, hi:=x-half, x+half
			if lo<0       { lo=0       }
			if hi>width-1 { hi=width-1 }
			m:=row[lo]
			if kind==Erode {
				for i:=lo+1; i<=hi; i++ {
					if row[i]<m { m=row[i] }
				}
			} else {
				for i:=lo+1; i<=hi; i++ {
					if row[i]>m { m=row[i] }
				}
			}
			out[x]=m
		}
	}
}

// Vertical min/max pass with replicate borders
func passY(res, data []float32, width, height, half int, kind Kind) {
	for y:=0; y<height; y++ {
		lo, hi:=y-half, y+half
		if lo<0        { lo=0        }
		if hi>height-1 { hi=height-1 }
		for x:=0; x<width; x++ {
			m:=data[lo*width+x]
			if kind==Erode {
				for i:=lo+1; i<=hi; i++ {
					if v:=data[i*width+x]; v<m { m=v }
				}
			} else {
				for i:=lo+1; i<=hi; i++ {
					if v:=data[i*width+x]; v>m { m=v }
				}
			}
			res[y*width+x]=m
		}
	}
}
