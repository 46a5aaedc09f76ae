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
	"io"
	"math"
	"os"

	"github.com/mlnoga/stardim/internal/stats"
	"golang.org/x/image/tiff"
)

// Writes an image to 16-bit TIFF with the given min, max and gamma.
// Single channel images become grayscale TIFFs, three channel images RGB
func (f *Image) WriteTIFF16ToFile(fileName string, min, max, gamma float32) error {
	file, err:=os.Create(fileName)
	if err!=nil { return err }
	defer file.Close()

	writer:=bufio.NewWriter(file)
	defer writer.Flush()

	return f.WriteTIFF16(writer, min, max, gamma)
}

// Writes an image to 16-bit TIFF with the given min, max and gamma
func (f *Image) WriteTIFF16(writer io.Writer, min, max, gamma float32) error {
	width, height:=int(f.Naxisn[0]), int(f.Naxisn[1])
	scale:=1.0/(max-min)
	gammaInv:=float64(1.0/gamma)

	var img image.Image
	if f.Channels()==1 {
		gray:=image.NewGray16(image.Rect(0, 0, width, height))
		for y:=0; y<height; y++ {
			for x:=0; x<width; x++ {
				v:=toExportRange(f.Data[y*width+x], min, scale, gammaInv)
				gray.SetGray16(x, y, color.Gray16{uint16(v*65535)})
			}
		}
		img=gray
	} else {
		size:=width*height
		rgba:=image.NewRGBA64(image.Rect(0, 0, width, height))
		for y:=0; y<height; y++ {
			for x:=0; x<width; x++ {
				r:=toExportRange(f.Data[y*width+x       ], min, scale, gammaInv)
				g:=toExportRange(f.Data[y*width+x+size  ], min, scale, gammaInv)
				b:=toExportRange(f.Data[y*width+x+size*2], min, scale, gammaInv)
				rgba.SetRGBA64(x, y, color.RGBA64{uint16(r*65535), uint16(g*65535), uint16(b*65535), 65535})
			}
		}
		img=rgba
	}

	return tiff.Encode(writer, img, &tiff.Options{Compression: tiff.Deflate, Predictor: true})
}

// Reads a color or grayscale TIFF file into the image, converting pixel
// values to float32
func (f *Image) ReadTIFF(fileName string) error {
	file, err:=os.Open(fileName)
	if err!=nil { return err }
	defer file.Close()

	t, err:=tiff.Decode(bufio.NewReader(file))
	if err!=nil { return err }

	width, height:=t.Bounds().Dx(), t.Bounds().Dy()
	bitpix, channels:=colorModelToBitpixAndChannels(t.ColorModel())

	f.FileName=fileName
	f.Bitpix=bitpix
	if channels==1 {
		f.Naxisn=[]int32{int32(width), int32(height)}
	} else {
		f.Naxisn=[]int32{int32(width), int32(height), channels}
	}
	f.Pixels=int32(width)*int32(height)*channels
	f.Bzero, f.Bscale=0, 1
	f.Data=make([]float32, f.Pixels)

	min, max, sum:=float32(math.MaxFloat32), float32(-math.MaxFloat32), float64(0)
	size:=width*height

	if channels==1 {
		for y:=0; y<height; y++ {
			for x:=0; x<width; x++ {
				c:=color.Gray16Model.Convert(t.At(x, y)).(color.Gray16)
				gray:=float32(c.Y)
				f.Data[y*width+x]=gray
				if gray<min { min=gray }
				if gray>max { max=gray }
				sum+=float64(gray)
			}
		}
	} else {
		for y:=0; y<height; y++ {
			for x:=0; x<width; x++ {
				c:=color.RGBA64Model.Convert(t.At(x, y)).(color.RGBA64)
				r, g, b:=float32(c.R), float32(c.G), float32(c.B)
				f.Data[y*width+x       ]=r
				f.Data[y*width+x+size  ]=g
				f.Data[y*width+x+size*2]=b

				gray:=0.2126*r + 0.7152*g + 0.0722*b
				if gray<min { min=gray }
				if gray>max { max=gray }
				sum+=float64(gray)
			}
		}
	}

	mean:=float32(sum/float64(size))
	f.Stats=stats.NewStatsWithMMM(f.Data, f.Naxisn[0], min, max, mean)
	return nil
}

func colorModelToBitpixAndChannels(m color.Model) (bitpix, channels int32) {
	switch m {
	case color.RGBAModel, color.NRGBAModel:
		return 8, 3
	case color.RGBA64Model, color.NRGBA64Model:
		return 16, 3
	case color.AlphaModel, color.GrayModel:
		return 8, 1
	case color.Alpha16Model, color.Gray16Model:
		return 16, 1
	default:
		return 16, 3
	}
}
