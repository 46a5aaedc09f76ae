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
	"testing"
	"github.com/mlnoga/stardim/internal/star"
)

func TestBuildDiskRadius(t *testing.T) {
	naxisn:=[]int32{64, 64}
	stars:=[]star.Star{{Index:32+32*64, Value:100, X:32, Y:32}}

	// fwhm 4 with radius factor 1.5 gives a disk radius of 6 pixels
	m, err:=Build(naxisn, stars, 1.5, 4, 5)
	if err!=nil { t.Fatalf("Build error %v; want nil", err) }
	if m.Radius!=6 { t.Errorf("radius=%v; want 6", m.Radius) }

	cases:=[]struct{ x, y int32; want bool }{
		{32, 32, true},  // center
		{38, 32, true},  // distance 6, inclusive
		{32, 26, true},  // distance 6, inclusive
		{39, 32, false}, // distance 7
		{37, 37, false}, // distance sqrt(50) > 6
		{36, 36, true},  // distance sqrt(32) < 6
		{0, 0, false},   // far corner
	}
	for _,tc:=range cases {
		got:=m.Binary[tc.y*64+tc.x]
		if got!=tc.want { t.Errorf("binary[%d,%d]=%v; want %v", tc.x, tc.y, got, tc.want) }
	}
}

// Overlapping disks must merge: masking the same star twice changes nothing
func TestBuildIdempotentUnion(t *testing.T) {
	naxisn:=[]int32{48, 48}
	s:=star.Star{Index:24+24*48, Value:100, X:24, Y:24}

	once, err:=Build(naxisn, []star.Star{s}, 1.5, 4, 5)
	if err!=nil { t.Fatalf("Build error %v; want nil", err) }
	twice, err:=Build(naxisn, []star.Star{s, s}, 1.5, 4, 5)
	if err!=nil { t.Fatalf("Build error %v; want nil", err) }

	for i:=range once.Binary {
		if once.Binary[i]!=twice.Binary[i] {
			t.Fatalf("binary[%d]=%v after duplicate star; want %v", i, twice.Binary[i], once.Binary[i])
		}
	}
}

func TestBuildZeroDetections(t *testing.T) {
	m, err:=Build([]int32{32, 32}, nil, 1.5, 4, 5)
	if err!=nil { t.Fatalf("Build error %v; want nil", err) }

	for i:=range m.Binary {
		if m.Binary[i] { t.Fatalf("binary[%d]=true; want all false", i) }
		if m.Smooth[i]!=0 { t.Fatalf("smooth[%d]=%v; want all 0", i, m.Smooth[i]) }
	}
	if m.Coverage()!=0 { t.Errorf("coverage=%v; want 0", m.Coverage()) }
}

// The smoothed plane stays in [0,1], and is zero far away from any disk
func TestBuildSmoothPlane(t *testing.T) {
	naxisn:=[]int32{96, 96}
	stars:=[]star.Star{{Index:48+48*96, Value:100, X:48, Y:48}}

	m, err:=Build(naxisn, stars, 1.5, 4, 5)
	if err!=nil { t.Fatalf("Build error %v; want nil", err) }

	for i,v:=range m.Smooth {
		if v<0 || v>1 { t.Fatalf("smooth[%d]=%v; want in [0,1]", i, v) }
	}
	if m.Smooth[48*96+48]<=0.4 {
		t.Errorf("smooth at disk center=%v; want > 0.4", m.Smooth[48*96+48])
	}
	if m.Smooth[0]!=0 {
		t.Errorf("smooth at far corner=%v; want 0", m.Smooth[0])
	}
}

func TestBuildBadParameters(t *testing.T) {
	naxisn:=[]int32{32, 32}

	if _, err:=Build(naxisn, nil, 0, 4, 5); !errors.Is(err, ErrInvalidParameter) {
		t.Errorf("radiusFactor=0 error %v; want ErrInvalidParameter", err)
	}
	if _, err:=Build(naxisn, nil, 1.5, -4, 5); !errors.Is(err, ErrInvalidParameter) {
		t.Errorf("fwhm=-4 error %v; want ErrInvalidParameter", err)
	}
	if _, err:=Build(naxisn, nil, 1.5, 4, 0); !errors.Is(err, ErrInvalidParameter) {
		t.Errorf("blurSigma=0 error %v; want ErrInvalidParameter", err)
	}
	if _, err:=Build([]int32{0}, nil, 1.5, 4, 5); !errors.Is(err, ErrInvalidParameter) {
		t.Errorf("bad naxisn error %v; want ErrInvalidParameter", err)
	}
}
