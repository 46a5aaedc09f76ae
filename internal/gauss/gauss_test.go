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


package gauss

import (
	"math"
	"testing"
)

type kernel1DTestCase struct {
	Sigma   float32
	Kernel  []float32
}

func TestKernel1D(t *testing.T) {
	epsilon:=1e-5
	tcs:=[]kernel1DTestCase{
		kernel1DTestCase{1.0, []float32{0.27901, 0.44198, 0.27901}},
		kernel1DTestCase{2.0, []float32{0.028532, 0.067234, 0.124009, 0.179044, 0.20236, 0.179044, 0.124009, 0.067234, 0.028532}},
		kernel1DTestCase{3.0, []float32{0.018816, 0.034474, 0.056577, 0.083173, 0.109523, 0.129188, 0.136498, 0.129188, 0.109523,
		                                0.083173, 0.056577, 0.034474, 0.018816}},
	}

	for _,tc:=range tcs {
		sigma :=tc.Sigma
		kernel:=Kernel1D(sigma)
		if len(kernel)!=len(tc.Kernel) {
			t.Errorf("sigma=%f len(kernel)=%d; want %d", sigma, len(kernel), len(tc.Kernel))
			continue
		}
		sum   :=float32(0)
		for i,k :=range(kernel) {
			if math.Abs(float64(k-tc.Kernel[i]))>epsilon { t.Errorf("sigma=%f k[%d]=%f; want %f", sigma, i, k, tc.Kernel[i]) }
			sum+=k
		}
		if math.Abs(float64(sum-1))>epsilon { t.Errorf("sigma=%f sum=%f; want 1", sigma, sum) }
	}
}

// A constant field must stay constant under filtering, as the kernel is
// normalized and borders are reflected
func TestFilter2DFlatField(t *testing.T) {
	width, height:=16, 12
	data:=make([]float32, width*height)
	for i:=range data { data[i]=42 }

	res:=make([]float32, len(data))
	tmp:=make([]float32, len(data))
	Filter2D(res, tmp, data, width, 2.5)

	for i,v:=range res {
		if math.Abs(float64(v-42))>1e-4 {
			t.Errorf("res[%d]=%f; want 42", i, v)
		}
	}
}

// Filtering must preserve the total flux of an isolated impulse away from borders
func TestFilter2DImpulseFlux(t *testing.T) {
	width, height:=32, 32
	data:=make([]float32, width*height)
	data[16*width+16]=100

	res:=make([]float32, len(data))
	tmp:=make([]float32, len(data))
	Filter2D(res, tmp, data, width, 1.5)

	sum:=float32(0)
	for _,v:=range res { sum+=v }
	if math.Abs(float64(sum-100))>1e-3 {
		t.Errorf("sum=%f; want 100", sum)
	}
	peak:=res[16*width+16]
	if peak>=100 || peak<=0 {
		t.Errorf("peak=%f; want in (0,100)", peak)
	}
}
