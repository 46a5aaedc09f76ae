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


package mask

import (
	"errors"
	"fmt"
	"github.com/mlnoga/stardim/internal/gauss"
	"github.com/mlnoga/stardim/internal/star"
)

// Sentinel for invalid mask builder parameters
var ErrInvalidParameter = errors.New("invalid mask parameter")

// A star protection mask: one binary plane marking star disks, and a smoothed
// [0,1] plane for selective blending. Both planes are single channel even for
// color images
type Mask struct {
	Naxisn    []int32   // plane dimensions, x first
	Radius    float32   // star disk radius in pixels
	BlurSigma float32   // gaussian sigma used for the smoothed plane
	Binary    []bool    // true inside a star disk
	Smooth    []float32 // blurred disks in [0,1]
}

// Builds a star protection mask for an image of the given dimensions. Each
// detection is covered with an inclusive euclidean disk of radius
// fwhm*radiusFactor, centered on the rounded centroid; overlapping disks
// simply merge. The smoothed plane is the binary plane blurred with a gaussian
// of sigma blurSigma. Zero detections yield an all-false, all-zero mask
func Build(naxisn []int32, stars []star.Star, radiusFactor, fwhm, blurSigma float32) (*Mask, error) {
	if radiusFactor<=0 {
		return nil, fmt.Errorf("radius factor %g must be positive: %w", radiusFactor, ErrInvalidParameter)
	}
	if fwhm<=0 {
		return nil, fmt.Errorf("fwhm %g must be positive: %w", fwhm, ErrInvalidParameter)
	}
	if blurSigma<=0 {
		return nil, fmt.Errorf("blur sigma %g must be positive: %w", blurSigma, ErrInvalidParameter)
	}
	if len(naxisn)<2 || naxisn[0]<=0 || naxisn[1]<=0 {
		return nil, fmt.Errorf("dimensions %v must have positive x and y axes: %w", naxisn, ErrInvalidParameter)
	}

	width, height:=naxisn[0], naxisn[1]
	m:=&Mask{
		Naxisn:    []int32{width, height},
		Radius:    fwhm*radiusFactor,
		BlurSigma: blurSigma,
		Binary:    make([]bool, width*height),
		Smooth:    make([]float32, width*height),
	}

	for _,s:=range stars {
		m.fillDisk(int32(s.X+0.5), int32(s.Y+0.5))
	}

	// blur the binary plane into the smooth one
	tmp:=make([]float32, len(m.Smooth))
	for i,b:=range m.Binary {
		if b { tmp[i]=1 }
	}
	blurred:=make([]float32, len(m.Smooth))
	gauss.Filter2D(blurred, m.Smooth, tmp, int(width), blurSigma)
	m.Smooth=blurred

	return m, nil
}

// Marks an inclusive euclidean disk of the mask radius around the given
// center. Setting already set pixels again is a no-op, so unions of
// overlapping disks are idempotent
func (m *Mask) fillDisk(xc, yc int32) {
	width, height:=m.Naxisn[0], m.Naxisn[1]
	r:=m.Radius
	rad:=int32(r)
	radiusSq:=r*r+1e-6

	for dy:=-rad; dy<=rad; dy++ {
		y:=yc+dy
		if y<0 || y>=height { continue }
		for dx:=-rad; dx<=rad; dx++ {
			x:=xc+dx
			if x<0 || x>=width { continue }
			if float32(dx*dx+dy*dy)<=radiusSq {
				m.Binary[y*width+x]=true
			}
		}
	}
}

// Fraction of masked pixels in the binary plane, for log output
func (m *Mask) Coverage() float32 {
	set:=0
	for _,b:=range m.Binary {
		if b { set++ }
	}
	return float32(set)/float32(len(m.Binary))
}
