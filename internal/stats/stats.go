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


package stats

import (
	"fmt"
	"math"
	"github.com/valyala/fastrand"
	"github.com/mlnoga/stardim/internal/qsort"
)

// Enumerated type for location and scale estimator modes
type LSEstimatorMode int
const (
	LSEMeanStdDev LSEstimatorMode = iota
	LSESigmaClippedMedianQn
	LSEHistogram
)

// Number of random samples for the subsampling estimators
const numSamples = 128*1024

// Data sets at least this large use the randomized subsampling estimators,
// smaller ones are evaluated exactly
const samplingThreshold = 4*numSamples


// Statistics on a data array, lazily evaluated and cached
type Stats struct {
	data  []float32
	width int32
	mode  LSEstimatorMode

	min, max, mean, stdDev float32
	haveMMM    bool
	haveStdDev bool

	location, scale float32
	haveLocScale    bool
}

// Creates statistics for the given data array. Does not copy the data
func NewStats(data []float32, width int32) *Stats {
	return &Stats{data: data, width: width, mode: LSESigmaClippedMedianQn}
}

// Creates statistics with min, max and mean precomputed, e.g. while reading from file
func NewStatsWithMMM(data []float32, width int32, min, max, mean float32) *Stats {
	return &Stats{data: data, width: width, mode: LSESigmaClippedMedianQn,
	              min: min, max: max, mean: mean, haveMMM: true}
}

// Selects the location and scale estimator mode. Invalidates cached estimates
func (s *Stats) SetMode(mode LSEstimatorMode) {
	if mode!=s.mode {
		s.mode=mode
		s.haveLocScale=false
	}
}

// Invalidates all cached values after the underlying data changed
func (s *Stats) Clear() {
	s.haveMMM, s.haveStdDev, s.haveLocScale = false, false, false
}

func (s *Stats) Min() float32 {
	if !s.haveMMM { s.calcMMM() }
	return s.min
}

func (s *Stats) Max() float32 {
	if !s.haveMMM { s.calcMMM() }
	return s.max
}

func (s *Stats) Mean() float32 {
	if !s.haveMMM { s.calcMMM() }
	return s.mean
}

func (s *Stats) StdDev() float32 {
	if !s.haveStdDev {
		variance:=calcVariance(s.data, s.Mean())
		s.stdDev=float32(math.Sqrt(variance))
		s.haveStdDev=true
	}
	return s.stdDev
}

// Returns the location estimate for the selected mode
func (s *Stats) Location() float32 {
	if !s.haveLocScale { s.calcLocScale() }
	return s.location
}

// Returns the scale estimate for the selected mode
func (s *Stats) Scale() float32 {
	if !s.haveLocScale { s.calcLocScale() }
	return s.scale
}

func (s *Stats) calcMMM() {
	s.min, s.mean, s.max=CalcMinMeanMax(s.data)
	s.haveMMM=true
}

func (s *Stats) calcLocScale() {
	switch s.mode {
	case LSEMeanStdDev:
		s.location, s.scale=s.Mean(), s.StdDev()
	case LSEHistogram:
		s.location, s.scale=HistogramScaleLoc(s.data, s.Min(), s.Max(), 4096)
	default:
		s.location, s.scale=SigmaClippedLocScale(s.data)
	}
	s.haveLocScale=true
}

// Pretty print statistics to string
func (s *Stats) String() string {
	return fmt.Sprintf("Min %.6g Max %.6g Mean %.6g StdDev %.6g Location %.6g Scale %.6g",
		s.Min(), s.Max(), s.Mean(), s.StdDev(), s.Location(), s.Scale())
}


// Calculate minimum, mean and maximum of given data
func CalcMinMeanMax(data []float32) (min, mean, max float32) {
	mmin, mmean, mmax:=data[0], float64(0), data[0]
	for _,v := range data {
		if v<mmin { mmin=v }
		if v>mmax { mmax=v }
		mmean+=float64(v)
	}
	return mmin, float32(mmean/float64(len(data))), mmax
}

// Calculate variance of given data from provided mean
func calcVariance(data []float32, mean float32) float64 {
	variance:=float64(0)
	for _,v :=range data {
		diff:=float64(v-mean)
		variance+=diff*diff
	}
	return variance/float64(len(data))
}


// Robust estimate of background location and noise scale. Small data sets are
// sigma clipped exactly, large ones via randomized subsampling
func SigmaClippedLocScale(data []float32) (location, scale float32) {
	if len(data)>=samplingThreshold {
		min, _, max:=CalcMinMeanMax(data)
		return FastApproxSigmaClippedMedianAndQn(data, 3, 3, (max-min)/65535.0, numSamples)
	}
	return SigmaClippedMeanStdDev(data, 3, 10)
}


// Iteratively calculates mean and standard deviation of the data, excluding
// values beyond sigma standard deviations from the mean in each round.
// Terminates once no further values are rejected, when fewer than four values
// remain, or after maxIters rounds. Does not change the data
func SigmaClippedMeanStdDev(data []float32, sigma float32, maxIters int) (mean, stdDev float32) {
	remaining:=make([]float32, len(data))
	copy(remaining, data)

	for iter:=0; ; iter++ {
		m:=float64(0)
		for _,r:=range remaining { m+=float64(r) }
		m/=float64(len(remaining))

		variance:=float64(0)
		for _,r:=range remaining {
			diff:=float64(r)-m
			variance+=diff*diff
		}
		variance/=float64(len(remaining))
		mean, stdDev=float32(m), float32(math.Sqrt(variance))

		if iter>=maxIters || len(remaining)<=3 { return mean, stdDev }

		lowBound :=mean - sigma*stdDev
		highBound:=mean + sigma*stdDev
		kept:=0
		for _,r:=range remaining {
			if r>=lowBound && r<=highBound {
				remaining[kept]=r
				kept++
			}
		}
		rejected:=len(remaining)-kept
		remaining=remaining[:kept]
		if rejected==0 { return mean, stdDev }
	}
}


// Calculates fast approximate median of the (presumably large) data by random
// subsampling. Uses provided samples array as scratchpad
func FastApproxMedian(data []float32, samples []float32) float32 {
	max:=uint32(len(data))
	rng:=fastrand.RNG{}
	for i:=range samples {
		samples[i]=data[rng.Uint32n(max)]
	}
	return qsort.QSelectMedianFloat32(samples)
}

// Calculates fast approximate median of the data within the given bounds by
// random subsampling. Uses provided samples array as scratchpad
func FastApproxBoundedMedian(data []float32, lowBound, highBound float32, samples []float32) float32 {
	max:=uint32(len(data))
	rng:=fastrand.RNG{}
	for i:=range samples {
		var d float32
		for {
			d=data[rng.Uint32n(max)]
			if d>=lowBound && d<=highBound { break }
		}
		samples[i]=d
	}
	return qsort.QSelectMedianFloat32(samples)
}

// Calculates fast approximate Qn scale estimate of the (presumably large) data
// by subsampling pairs and taking the first quartile of their distances.
// Original paper http://web.ipac.caltech.edu/staff/fmasci/home/astro_refs/BetterThanMAD.pdf
func FastApproxQn(data []float32, samples []float32) float32 {
	max:=uint32(len(data))
	rng:=fastrand.RNG{}
	for i:=range samples {
		index1:=1+rng.Uint32n(max-1)
		index2:=rng.Uint32n(index1)
		samples[i]=float32(math.Abs(float64(data[index1]-data[index2])))
	}
	// normalization constant per https://rdrr.io/cran/robustbase/man/Qn.html, valid for many samples
	return qsort.QSelectFirstQuartileFloat32(samples)*2.21914
}

// Calculates fast approximate Qn scale estimate of the data within the given bounds
func FastApproxBoundedQn(data []float32, lowBound, highBound float32, samples []float32) float32 {
	max:=uint32(len(data))
	rng:=fastrand.RNG{}
	for i:=range samples {
		var d1, d2 float32
		for {
			index1:=1+rng.Uint32n(max-1)
			d1=data[index1]
			if d1< lowBound || d1> highBound { continue }
			d2=data[rng.Uint32n(index1)]
			if d2>=lowBound && d2<=highBound { break }
		}
		samples[i]=float32(math.Abs(float64(d1-d2)))
	}
	return qsort.QSelectFirstQuartileFloat32(samples)*2.21914
}

// Returns a rapid robust estimation of location and scale. Uses a fast approximate
// median based on randomized sampling, iteratively sigma clipped with a fast
// approximate Qn based on random sampling. Exits once the absolute change in
// location and scale is below epsilon, or after ten rounds
func FastApproxSigmaClippedMedianAndQn(data []float32, sigmaLow, sigmaHigh float32, epsilon float32, numSamples int) (location, scale float32) {
	samples:=make([]float32, numSamples)
	location=FastApproxMedian(data, samples)
	scale   =FastApproxQn    (data, samples)

	for i:=0; ; i++ {
		lowBound :=location - sigmaLow *scale
		highBound:=location + sigmaHigh*scale

		newLocation:=FastApproxBoundedMedian(data, lowBound, highBound, samples)
		newScale   :=FastApproxBoundedQn    (data, lowBound, highBound, samples)
		newScale   *=1.134 // adjust for subsequent clipping

		if float32(math.Abs(float64(newLocation-location))+math.Abs(float64(newScale-scale)))<=epsilon || i>=10 {
			scale=FastApproxQn(data, samples)
			return location, scale
		}

		location, scale = newLocation, newScale
	}
}
