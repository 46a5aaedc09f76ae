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
	"math"
	"math/rand"
	"testing"
)

func TestCalcMinMeanMax(t *testing.T) {
	min, mean, max:=CalcMinMeanMax([]float32{3, -1, 7, 5, 2})
	if min!=-1 { t.Errorf("min=%v; want -1", min) }
	if max!=7  { t.Errorf("max=%v; want 7", max)  }
	if math.Abs(float64(mean-3.2))>1e-6 { t.Errorf("mean=%v; want 3.2", mean) }
}

func TestStatsLazyEvaluation(t *testing.T) {
	data:=[]float32{1, 2, 3, 4}
	s:=NewStats(data, 2)
	if s.Min()!=1 || s.Max()!=4 || s.Mean()!=2.5 {
		t.Errorf("min=%v max=%v mean=%v; want 1 4 2.5", s.Min(), s.Max(), s.Mean())
	}

	data[0]=100
	if s.Min()!=1 { t.Errorf("cached min=%v; want 1", s.Min()) }
	s.Clear()
	if s.Min()!=2 || s.Max()!=100 {
		t.Errorf("after Clear min=%v max=%v; want 2 100", s.Min(), s.Max())
	}
}

// Sigma clipping must reject a gross outlier which plain mean/stddev keeps
func TestSigmaClippedMeanStdDev(t *testing.T) {
	data:=make([]float32, 1000)
	rng:=rand.New(rand.NewSource(3))
	for i:=range data {
		data[i]=100 + 5*float32(rng.NormFloat64())
	}
	data[500]=10000

	mean, stdDev:=SigmaClippedMeanStdDev(data, 3, 10)
	if mean<98 || mean>102 {
		t.Errorf("clipped mean=%v; want about 100", mean)
	}
	if stdDev<3 || stdDev>7 {
		t.Errorf("clipped stddev=%v; want about 5", stdDev)
	}

	_, plainStdDev:=SigmaClippedMeanStdDev(data, 3, 0)
	if plainStdDev<100 {
		t.Errorf("unclipped stddev=%v; want dominated by the outlier", plainStdDev)
	}
}

// The sampled estimators agree with the exact ones on gaussian data
func TestFastApproxSigmaClippedMedianAndQn(t *testing.T) {
	data:=make([]float32, samplingThreshold)
	rng:=rand.New(rand.NewSource(7))
	for i:=range data {
		data[i]=1000 + 50*float32(rng.NormFloat64())
	}

	location, scale:=SigmaClippedLocScale(data)
	if location<995 || location>1005 {
		t.Errorf("location=%v; want about 1000", location)
	}
	if scale<40 || scale>60 {
		t.Errorf("scale=%v; want about 50", scale)
	}
}

// Location and scale respect the selected estimator mode
func TestStatsModes(t *testing.T) {
	data:=make([]float32, 10000)
	rng:=rand.New(rand.NewSource(11))
	for i:=range data {
		data[i]=200 + 10*float32(rng.NormFloat64())
	}

	for _,mode:=range []LSEstimatorMode{LSEMeanStdDev, LSESigmaClippedMedianQn, LSEHistogram} {
		s:=NewStats(data, 100)
		s.SetMode(mode)
		if loc:=s.Location(); loc<195 || loc>205 {
			t.Errorf("mode %d location=%v; want about 200", mode, loc)
		}
		if scale:=s.Scale(); scale<5 || scale>15 {
			t.Errorf("mode %d scale=%v; want about 10", mode, scale)
		}
	}
}
