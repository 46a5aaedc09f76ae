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


package blend

import (
	"errors"
	"testing"
	"github.com/mlnoga/stardim/internal/fits"
	"github.com/mlnoga/stardim/internal/mask"
	"github.com/mlnoga/stardim/internal/morph"
	"github.com/mlnoga/stardim/internal/star"
)

func newTestImage(width, height int32, background float32) *fits.Image {
	f:=fits.NewImageFromNaxisn([]int32{width, height}, nil)
	for i:=range f.Data { f.Data[i]=background }
	return f
}

// A zero mask passes the original through unchanged regardless of strength
func TestBlendZeroMask(t *testing.T) {
	orig :=newTestImage(8, 8, 100)
	trans:=newTestImage(8, 8, 0)
	smooth:=make([]float32, 64)

	res, err:=Blend(orig, trans, smooth, 1)
	if err!=nil { t.Fatalf("Blend error %v; want nil", err) }
	for i,v:=range res.Data {
		if v!=100 { t.Errorf("data[%d]=%v; want 100", i, v) }
	}
}

// A unit mask at strength 1 reproduces the transformed image
func TestBlendUnitMaskFullStrength(t *testing.T) {
	orig :=newTestImage(8, 8, 100)
	trans:=newTestImage(8, 8, 30)
	smooth:=make([]float32, 64)
	for i:=range smooth { smooth[i]=1 }

	res, err:=Blend(orig, trans, smooth, 1)
	if err!=nil { t.Fatalf("Blend error %v; want nil", err) }
	for i,v:=range res.Data {
		if v!=30 { t.Errorf("data[%d]=%v; want 30", i, v) }
	}
}

// Strength 0.5 with a unit mask lands halfway between original and transform
func TestBlendHalfStrength(t *testing.T) {
	orig :=newTestImage(8, 8, 100)
	trans:=newTestImage(8, 8, 40)
	smooth:=make([]float32, 64)
	for i:=range smooth { smooth[i]=1 }

	res, err:=Blend(orig, trans, smooth, 0.5)
	if err!=nil { t.Fatalf("Blend error %v; want nil", err) }
	for i,v:=range res.Data {
		if v!=70 { t.Errorf("data[%d]=%v; want 70", i, v) }
	}
}

// Results are clipped into the normalized range
func TestBlendClipsRange(t *testing.T) {
	orig :=newTestImage(4, 4, 250)
	trans:=newTestImage(4, 4, 500)
	smooth:=make([]float32, 16)
	for i:=range smooth { smooth[i]=1 }

	res, err:=Blend(orig, trans, smooth, 1)
	if err!=nil { t.Fatalf("Blend error %v; want nil", err) }
	for i,v:=range res.Data {
		if v!=fits.NormMax { t.Errorf("data[%d]=%v; want %v", i, v, fits.NormMax) }
	}

	trans2:=newTestImage(4, 4, -300)
	res, err=Blend(orig, trans2, smooth, 1)
	if err!=nil { t.Fatalf("Blend error %v; want nil", err) }
	for i,v:=range res.Data {
		if v!=0 { t.Errorf("data[%d]=%v; want 0", i, v) }
	}
}

func TestBlendBadInputs(t *testing.T) {
	orig :=newTestImage(8, 8, 0)
	other:=newTestImage(4, 4, 0)
	smooth:=make([]float32, 64)

	if _, err:=Blend(orig, other, smooth, 0.5); !errors.Is(err, fits.ErrInvalidInput) {
		t.Errorf("dimension mismatch error %v; want ErrInvalidInput", err)
	}
	if _, err:=Blend(orig, orig, smooth[:10], 0.5); !errors.Is(err, fits.ErrInvalidInput) {
		t.Errorf("short mask error %v; want ErrInvalidInput", err)
	}
}

func TestDifference(t *testing.T) {
	a:=newTestImage(4, 4, 10)
	b:=newTestImage(4, 4, 30)

	res, err:=Difference(a, b)
	if err!=nil { t.Fatalf("Difference error %v; want nil", err) }
	for i,v:=range res.Data {
		if v!=20 { t.Errorf("data[%d]=%v; want 20", i, v) }
	}

	if _, err:=Difference(a, newTestImage(2, 2, 0)); !errors.Is(err, fits.ErrInvalidInput) {
		t.Errorf("dimension mismatch error %v; want ErrInvalidInput", err)
	}
}

// Two chained selective stages, erosion then dilation, must leave the
// unmasked background bit-identical to the original
func TestChainedSelectiveStages(t *testing.T) {
	width, height:=int32(48), int32(48)
	orig:=newTestImage(width, height, 10)
	orig.Data[24*48+24]=200 // the star to suppress

	stars:=[]star.Star{{Index:24+24*48, Value:200, X:24, Y:24}}
	m, err:=mask.Build([]int32{width, height}, stars, 1.5, 4, 5)
	if err!=nil { t.Fatalf("Build error %v; want nil", err) }

	// stage 1: selective erosion
	eroded, err:=morph.Transform(orig, morph.Erode, 3, 1)
	if err!=nil { t.Fatalf("Transform error %v; want nil", err) }
	stage1, err:=Blend(orig, eroded, m.Smooth, 0.5)
	if err!=nil { t.Fatalf("Blend error %v; want nil", err) }

	// stage 2: selective dilation of the stage 1 result
	dilated, err:=morph.Transform(stage1, morph.Dilate, 3, 1)
	if err!=nil { t.Fatalf("Transform error %v; want nil", err) }
	stage2, err:=Blend(stage1, dilated, m.Smooth, 0.5)
	if err!=nil { t.Fatalf("Blend error %v; want nil", err) }

	// the star core must have moved towards the background
	if stage1.Data[24*48+24]>=200 {
		t.Errorf("stage 1 star peak=%v; want < 200", stage1.Data[24*48+24])
	}

	// pixels outside the smoothed mask support stay bit-identical across both stages
	for y:=int32(0); y<height; y++ {
		for x:=int32(0); x<width; x++ {
			i:=y*width+x
			if m.Smooth[i]!=0 { continue }
			if stage1.Data[i]!=orig.Data[i] {
				t.Fatalf("stage 1 data[%d,%d]=%v; want %v", x, y, stage1.Data[i], orig.Data[i])
			}
			if stage2.Data[i]!=orig.Data[i] {
				t.Fatalf("stage 2 data[%d,%d]=%v; want %v", x, y, stage2.Data[i], orig.Data[i])
			}
		}
	}

	// far corner is well outside the mask and serves as a sanity anchor
	if m.Smooth[0]!=0 {
		t.Fatalf("smooth[0]=%v; want 0", m.Smooth[0])
	}
}
