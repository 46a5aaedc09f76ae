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
	"io"
	"math"
	"os"
)

// Maps a data value into [0,1] for export, replacing NaNs with zero and
// applying the given offset, scale and inverse gamma
func toExportRange(v, min, scale float32, gammaInv float64) float32 {
	v=(v-min)*scale
	if math.IsNaN(float64(v)) || v<0 { v=0 }
	if v>1                           { v=1 }
	if gammaInv!=1.0 {
		v=float32(math.Pow(float64(v), gammaInv))
	}
	return v
}

// Writes an image to JPG with the given min, max, gamma and quality.
// Single channel images become grayscale JPGs, three channel images RGB
func (f *Image) WriteJPGToFile(fileName string, min, max, gamma float32, quality int) error {
	file, err:=os.Create(fileName)
	if err!=nil { return err }
	defer file.Close()

	writer:=bufio.NewWriter(file)
	defer writer.Flush()

	return f.WriteJPG(writer, min, max, gamma, quality)
}

// Writes an image to JPG with the given min, max, gamma and quality
func (f *Image) WriteJPG(writer io.Writer, min, max, gamma float32, quality int) error {
	width, height:=int(f.Naxisn[0]), int(f.Naxisn[1])
	scale:=1.0/(max-min)
	gammaInv:=float64(1.0/gamma)

	var img image.Image
	if f.Channels()==1 {
		gray:=image.NewGray(image.Rect(0, 0, width, height))
		for y:=0; y<height; y++ {
			for x:=0; x<width; x++ {
				v:=toExportRange(f.Data[y*width+x], min, scale, gammaInv)
				gray.SetGray(x, y, color.Gray{uint8(v*255)})
			}
		}
		img=gray
	} else {
		size:=width*height
		rgba:=image.NewRGBA(image.Rect(0, 0, width, height))
		for y:=0; y<height; y++ {
			for x:=0; x<width; x++ {
				r:=toExportRange(f.Data[y*width+x       ], min, scale, gammaInv)
				g:=toExportRange(f.Data[y*width+x+size  ], min, scale, gammaInv)
				b:=toExportRange(f.Data[y*width+x+size*2], min, scale, gammaInv)
				rgba.SetRGBA(x, y, color.RGBA{uint8(r*255), uint8(g*255), uint8(b*255), 255})
			}
		}
		img=rgba
	}

	return jpeg.Encode(writer, img, &jpeg.Options{Quality: quality})
}
