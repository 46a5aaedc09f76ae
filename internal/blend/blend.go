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
	"fmt"
	"math"
	"github.com/mlnoga/stardim/internal/fits"
)

// Blends the original and the transformed image under control of the smoothed
// mask plane: out = orig + strength * (trans - orig) * mask, per pixel and
// channel, clipped to [0, fits.NormMax]. Where the mask is zero the original
// passes through unchanged, where it is one the transform applies at full
// strength. The mask plane is single channel and steers all channels alike
func Blend(orig, trans *fits.Image, smooth []float32, strength float32) (*fits.Image, error) {
	if !fits.EqualInt32Slice(orig.Naxisn, trans.Naxisn) {
		return nil, fmt.Errorf("dimension mismatch %v vs %v: %w",
			orig.Naxisn, trans.Naxisn, fits.ErrInvalidInput)
	}
	planePixels:=int(orig.PlanePixels())
	if len(smooth)!=planePixels {
		return nil, fmt.Errorf("mask plane of %d values for %d pixels per channel: %w",
			len(smooth), planePixels, fits.ErrInvalidInput)
	}

	res:=fits.NewImageFromImage(orig)
	for ch:=0; ch<int(orig.Channels()); ch++ {
		o:=orig .Data[ch*planePixels : (ch+1)*planePixels]
		t:=trans.Data[ch*planePixels : (ch+1)*planePixels]
		d:=res  .Data[ch*planePixels : (ch+1)*planePixels]
		for i:=range d {
			v:=o[i] + strength*(t[i]-o[i])*smooth[i]
			if v<0            { v=0            }
			if v>fits.NormMax { v=fits.NormMax }
			d[i]=v
		}
	}
	res.Stats.Clear()
	return res, nil
}

// Absolute per-pixel difference of two images of equal dimensions, for
// inspection of what a selective transform actually changed
func Difference(a, b *fits.Image) (*fits.Image, error) {
	if !fits.EqualInt32Slice(a.Naxisn, b.Naxisn) {
		return nil, fmt.Errorf("dimension mismatch %v vs %v: %w", a.Naxisn, b.Naxisn, fits.ErrInvalidInput)
	}
	res:=fits.NewImageFromImage(a)
	for i:=range res.Data {
		res.Data[i]=float32(math.Abs(float64(a.Data[i]-b.Data[i])))
	}
	res.Stats.Clear()
	return res, nil
}
