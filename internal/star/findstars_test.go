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


package star

import (
	"errors"
	"math"
	"math/rand"
	"testing"
)

// Renders a gaussian source with given peak amplitude and full width at half
// maximum onto the plane
func addGaussianSource(data []float32, width int32, xc, yc, amplitude, fwhm float32) {
	sigma:=fwhm/fwhmToSigma
	height:=int32(len(data))/width
	for y:=int32(0); y<height; y++ {
		for x:=int32(0); x<width; x++ {
			dx, dy:=float32(x)-xc, float32(y)-yc
			data[y*width+x]+=amplitude*float32(math.Exp(float64(-(dx*dx+dy*dy)/(2*sigma*sigma))))
		}
	}
}

func TestFindStarsSingleSource(t *testing.T) {
	width, height:=int32(64), int32(64)
	noiseSigma:=float32(10)
	data:=make([]float32, width*height)

	rng:=rand.New(rand.NewSource(42))
	for i:=range data {
		data[i]=100 + noiseSigma*float32(rng.NormFloat64())
	}
	// one source at five times the noise level
	addGaussianSource(data, width, 32, 32, 5*noiseSigma, 4)

	stars, err:=FindStars(data, width, 4, 2)
	if err!=nil { t.Fatalf("FindStars error %v; want nil", err) }
	if len(stars)!=1 { t.Fatalf("len(stars)=%d; want 1", len(stars)) }

	s:=stars[0]
	if math.Abs(float64(s.X-32))>1 { t.Errorf("x=%v; want 32+-1", s.X) }
	if math.Abs(float64(s.Y-32))>1 { t.Errorf("y=%v; want 32+-1", s.Y) }
	if s.Mass<=0 { t.Errorf("mass=%v; want positive", s.Mass) }
}

func TestFindStarsTwoSources(t *testing.T) {
	width, height:=int32(64), int32(64)
	data:=make([]float32, width*height)
	for i:=range data { data[i]=100 }

	rng:=rand.New(rand.NewSource(7))
	for i:=range data { data[i]+=2*float32(rng.NormFloat64()) }

	addGaussianSource(data, width, 16, 20, 80, 4)
	addGaussianSource(data, width, 46, 44, 60, 4)

	stars, err:=FindStars(data, width, 4, 2)
	if err!=nil { t.Fatalf("FindStars error %v; want nil", err) }
	if len(stars)!=2 { t.Fatalf("len(stars)=%d; want 2", len(stars)) }

	// results are sorted by descending mass
	if math.Abs(float64(stars[0].X-16))>1 || math.Abs(float64(stars[0].Y-20))>1 {
		t.Errorf("star 0 at (%v,%v); want (16,20)+-1", stars[0].X, stars[0].Y)
	}
	if math.Abs(float64(stars[1].X-46))>1 || math.Abs(float64(stars[1].Y-44))>1 {
		t.Errorf("star 1 at (%v,%v); want (46,44)+-1", stars[1].X, stars[1].Y)
	}
}

// A featureless plane must yield an empty result, not an error
func TestFindStarsFlatField(t *testing.T) {
	data:=make([]float32, 32*32)
	for i:=range data { data[i]=50 }

	stars, err:=FindStars(data, 32, 4, 2)
	if err!=nil { t.Fatalf("FindStars error %v; want nil", err) }
	if len(stars)!=0 { t.Errorf("len(stars)=%d; want 0", len(stars)) }
}

func TestFindStarsBadParameters(t *testing.T) {
	data:=make([]float32, 16*16)

	if _, err:=FindStars(data, 16, 0, 2); !errors.Is(err, ErrDetection) {
		t.Errorf("fwhm=0 error %v; want ErrDetection", err)
	}
	if _, err:=FindStars(data, 16, 4, -1); !errors.Is(err, ErrDetection) {
		t.Errorf("threshold=-1 error %v; want ErrDetection", err)
	}

	data[5]=float32(math.NaN())
	if _, err:=FindStars(data, 16, 4, 2); !errors.Is(err, ErrDetection) {
		t.Errorf("NaN data error %v; want ErrDetection", err)
	}
}
