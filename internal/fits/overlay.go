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


package fits

import (
	"bufio"
	"image"
	"image/color"
	"image/jpeg"
	"math"
	"os"

	colorful "github.com/lucasb-eyer/go-colorful"
	"github.com/mlnoga/stardim/internal/star"
)

// Writes a grayscale rendering of the detection luminance to JPG, with a ring
// of the given radius drawn around every detected star. Ring colors grade from
// faint blue to bright yellow by star mass, interpolated in HCL space
func (f *Image) WriteStarOverlayJPGToFile(fileName string, stars []star.Star, radius float32, quality int) error {
	file, err:=os.Create(fileName)
	if err!=nil { return err }
	defer file.Close()

	writer:=bufio.NewWriter(file)
	defer writer.Flush()

	width, height:=int(f.Naxisn[0]), int(f.Naxisn[1])
	lum:=f.DetectionLuminance()
	img:=image.NewRGBA(image.Rect(0, 0, width, height))
	scale:=float32(1.0/NormMax)
	for y:=0; y<height; y++ {
		for x:=0; x<width; x++ {
			v:=toExportRange(lum[y*width+x], 0, scale, 1)
			g:=uint8(v*255)
			img.SetRGBA(x, y, color.RGBA{g, g, g, 255})
		}
	}

	faint :=colorful.Hcl(280, 0.6, 0.5) // blue-violet
	bright:=colorful.Hcl( 90, 0.9, 0.9) // yellow
	minMass, maxMass:=massRange(stars)
	for _,s:=range stars {
		t:=0.0
		if maxMass>minMass {
			t=float64((s.Mass-minMass)/(maxMass-minMass))
		}
		c:=faint.BlendHcl(bright, t).Clamped()
		r, g, b:=c.RGB255()
		drawRing(img, s.X, s.Y, radius, color.RGBA{r, g, b, 255})
	}

	return jpeg.Encode(writer, img, &jpeg.Options{Quality: quality})
}

func massRange(stars []star.Star) (min, max float32) {
	min, max=float32(math.MaxFloat32), float32(-math.MaxFloat32)
	for _,s:=range stars {
		if s.Mass<min { min=s.Mass }
		if s.Mass>max { max=s.Mass }
	}
	return min, max
}

// Draws a one pixel wide circle outline, clipped to the image bounds
func drawRing(img *image.RGBA, cx, cy, radius float32, c color.RGBA) {
	bounds:=img.Bounds()
	steps:=int(2*math.Pi*float64(radius))+8
	for i:=0; i<steps; i++ {
		angle:=2*math.Pi*float64(i)/float64(steps)
		x:=int(float64(cx)+float64(radius)*math.Cos(angle)+0.5)
		y:=int(float64(cy)+float64(radius)*math.Sin(angle)+0.5)
		if x<bounds.Min.X || x>=bounds.Max.X || y<bounds.Min.Y || y>=bounds.Max.Y { continue }
		img.SetRGBA(x, y, c)
	}
}
