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
	"fmt"
	"math"
	"github.com/mlnoga/stardim/internal/gauss"
	"github.com/mlnoga/stardim/internal/stats"
)

// Sentinel for star detection failures
var ErrDetection = errors.New("star detection error")

// Conversion factor between the full width at half maximum of a gaussian
// profile and its standard deviation, 2*sqrt(2*ln 2)
const fwhmToSigma = 2.35482

// Find stars in the given monochrome image plane. fwhm is the expected full
// width at half maximum of the stellar profiles in pixels, threshold the
// detection limit in multiples of the background noise.
//
// Background location and noise are estimated with sigma clipped statistics on
// the raw data. A matched filter with a gaussian of sigma=fwhm/2.35482 then
// suppresses pixel-scale noise; candidates are pixels whose filtered value
// exceeds location + threshold*noise. Candidates closer than fwhm to a
// brighter one are dropped, and the survivors are moved to their sub-pixel
// center of mass.
//
// An empty result is valid. Errors only occur for non-positive fwhm or
// threshold, and for non-finite image data.
func FindStars(data []float32, width int32, fwhm, threshold float32) ([]Star, error) {
	if fwhm<=0 {
		return nil, fmt.Errorf("fwhm %g must be positive: %w", fwhm, ErrDetection)
	}
	if threshold<=0 {
		return nil, fmt.Errorf("threshold %g must be positive: %w", threshold, ErrDetection)
	}
	if len(data)==0 || width<=0 || int32(len(data))%width!=0 {
		return nil, fmt.Errorf("malformed image plane of %d values, width %d: %w", len(data), width, ErrDetection)
	}
	for i,d:=range data {
		if math.IsNaN(float64(d)) || math.IsInf(float64(d),0) {
			return nil, fmt.Errorf("non-finite value %g at index %d: %w", d, i, ErrDetection)
		}
	}
	height:=int32(len(data))/width

	// estimate background location and noise on the raw data
	location, noise:=stats.SigmaClippedLocScale(data)
	if noise<=0 { noise=1e-8 }

	// matched filter to suppress pixel-scale noise
	filtered:=make([]float32, len(data))
	tmp     :=make([]float32, len(data))
	gauss.Filter2D(filtered, tmp, data, int(width), fwhm/fwhmToSigma)
	tmp=nil

	radius:=int32(fwhm+0.5)
	if radius<1 { radius=1 }

	// candidate peaks on the filtered plane
	stars:=findBrightPixels(filtered, width, location+threshold*noise, radius)

	// filter out faint stars overlapped by brighter ones
	QSortStarsDesc(stars)
	stars=filterOverlaps(stars, width, height, fwhm)

	// move stars to their center of mass on the raw data
	shiftToCenterOfMass(stars, data, width, location+0.5*threshold*noise, radius)

	// deduplicate again, centroiding may have merged neighbors
	QSortStarsDesc(stars)
	stars=filterOverlaps(stars, width, height, fwhm)

	// enrich with peak value, sharpness and roundness
	for i,s:=range stars {
		s.Value=data[s.Index]
		s.Sharpness=sharpness(data, filtered, s.Index, location)
		s.Roundness=roundness(data, width, s, location, radius)
		stars[i]=s
	}

	// return a clone of the final shortlist, so the larger candidate array can be reclaimed
	res:=make([]Star, len(stars))
	copy(res, stars)
	return res, nil
}

// Find pixels above the threshold and return them as stars. Applies early
// overlap rejection in x based on radius to reduce allocations
func findBrightPixels(data []float32, width int32, threshold float32, radius int32) []Star {
	stars:=make([]Star, 0, len(data)/100+16)

	for i,v :=range data {
		if v<=threshold { continue }
		is:=Star{Index:int32(i), Value:v, X:float32(int32(i) % width), Y:float32(int32(i) / width), Mass:v}

		// coalesce with the previous candidate if it is close by on the same row
		if len(stars)>0 {
			oldS:=stars[len(stars)-1]
			if oldS.Y==is.Y && oldS.X>=is.X-float32(radius) {
				if oldS.Value<is.Value {
					stars[len(stars)-1]=is // replace with the brighter new candidate
				}
				continue
			}
		}
		stars=append(stars, is)
	}
	return stars
}

// Filters out stars closer than radius to a brighter prior star. Expects the
// input sorted by descending mass, and filters the slice in place.
// Bins the stars into a 2D grid to avoid quadratic search effort
func filterOverlaps(stars []Star, width, height int32, radius float32) []Star {
	binSize:=int32(256)
	xBins  :=(width +binSize-1)/binSize
	yBins  :=(height+binSize-1)/binSize
	bins   :=make([][]int32, xBins*yBins)
	radiusSq:=radius*radius

	kept:=int32(0)
forAllStars:
	for _,s:=range stars {
		xCell, yCell:=int32(s.X+0.5)/binSize, int32(s.Y+0.5)/binSize

		// compare against prior stars in this and all adjacent grid cells
		for dy:=int32(-1); dy<=1; dy++ {
			if yCell+dy<0 || yCell+dy>=yBins { continue }
			for dx:=int32(-1); dx<=1; dx++ {
				if xCell+dx<0 || xCell+dx>=xBins { continue }
				for _,priorIndex:=range bins[(xCell+dx)+(yCell+dy)*xBins] {
					prior:=stars[priorIndex]
					xDist:=s.X-prior.X
					yDist:=s.Y-prior.Y
					if xDist*xDist+yDist*yDist<=radiusSq {
						continue forAllStars
					}
				}
			}
		}

		stars[kept]=s
		bins[xCell+yCell*xBins]=append(bins[xCell+yCell*xBins], kept)
		kept++
	}
	return stars[:kept]
}

// Shifts each star to its floating point-valued center of mass on the raw
// data. Modifies stars in place
func shiftToCenterOfMass(stars []Star, data []float32, width int32, threshold float32, radius int32) {
	for i,s:=range stars {
		// iterate until the shift is below 0.01 pixel, or max rounds reached
		shiftSquared:=float32(math.MaxFloat32)
		for round:=int32(0); shiftSquared>0.0001 && round<10; round++ {
			// star mass and first moments around the current position
			xMoment, yMoment, mass:=float32(0), float32(0), float32(0)
			for y:=-radius; y<=radius; y++ {
				for x:=-radius; x<=radius; x++ {
					index:=s.Index+y*width+x
					value:=float32(0)
					if index>=0 && int(index)<len(data) {
						value=data[index]-threshold
						if value<0 { value=0 }
					}
					xMoment+=float32(x)*value
					yMoment+=float32(y)*value
					mass+=value
				}
			}

			// update x and y from moments over mass
			x:=s.Index % width
			y:=s.Index / width
			if mass==0.0 { mass=1e-8 }
			deltaX:=xMoment/mass
			deltaY:=yMoment/mass
			newX:=float32(x)+deltaX
			newY:=float32(y)+deltaY

			preciseDeltaX:=newX-s.X
			preciseDeltaY:=newY-s.Y
			shiftSquared  =preciseDeltaX*preciseDeltaX + preciseDeltaY*preciseDeltaY
			index:=s.Index + width*int32(deltaY+0.5)+int32(deltaX+0.5)
			value:=float32(0)
			if index>=0 && int(index)<len(data) {
				value=data[index]
			}
			s=Star{Index:index, Value:value, X:newX, Y:newY, Mass:mass}
			stars[i]=s
		}
	}
}

// Ratio of the background-subtracted raw peak to the matched-filter peak.
// Near one for pixel-scale artifacts, well below one for resolved sources
func sharpness(data, filtered []float32, index int32, location float32) float32 {
	raw :=data[index]-location
	filt:=filtered[index]-location
	if filt<=0 { return 0 }
	return raw/filt
}

// Normalized difference of the x and y second moments about the star center.
// Zero for perfectly round sources
func roundness(data []float32, width int32, s Star, location float32, radius int32) float32 {
	mxx, myy:=float32(0), float32(0)
	for y:=-radius; y<=radius; y++ {
		for x:=-radius; x<=radius; x++ {
			index:=s.Index+y*width+x
			if index<0 || int(index)>=len(data) { continue }
			value:=data[index]-location
			if value<=0 { continue }
			mxx+=float32(x*x)*value
			myy+=float32(y*y)*value
		}
	}
	if mxx+myy<=0 { return 0 }
	return (mxx-myy)/(mxx+myy)
}
