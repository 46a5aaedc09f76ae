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
	"fmt"
	"io"
)

// A star, as found on an image by star detection
type Star struct {
	Index     int32   // Index of the star in the data array. int32(x)+width*int32(y)
	Value     float32 // Peak value of the star in the data array. data[index]
	X         float32 // Precise star x position via center of mass
	Y         float32 // Precise star y position via center of mass
	Mass      float32 // Star mass. Summed pixel values above background, within the detection box
	Sharpness float32 // Ratio of the raw peak to the matched-filter peak. High for hot pixels
	Roundness float32 // Normalized difference of x and y second moments. Zero for round sources
}

// Prints given array of stars as CSV
func PrintStars(w io.Writer, stars []Star) {
	fmt.Fprintln(w,"Index,Value,X,Y,Mass,Sharpness,Roundness")
	for _,s :=range stars {
		fmt.Fprintf(w,"%d,%g,%g,%g,%g,%g,%g\n", s.Index, s.Value, s.X, s.Y, s.Mass, s.Sharpness, s.Roundness)
	}
}

// Sort an array of stars in descending order, based on mass
// Array must not contain IEEE NaN
func QSortStarsDesc(a []Star) {
    if len(a)>1 {
        index := QPartitionStarsDesc(a)
        QSortStarsDesc(a[:index+1])
        QSortStarsDesc(a[index+1:])
    }
}

// Partitions an array of stars with the middle pivot element, and returns the pivot index.
// Values greater than the pivot are moved left of the pivot, those less are moved right.
// Array must not contain IEEE NaN
func QPartitionStarsDesc(a []Star) int {
    left, right:=0, len(a)-1
    mid   := (left+right)>>1
    pivot := a[mid].Mass
    l := left -1
    r := right+1
    for {
        for {
            l++
            if a[l].Mass<=pivot { break }
        }
        for {
            r--
            if a[r].Mass>=pivot { break }
        }
        if l >= r { return r }
        a[l], a[r] = a[r], a[l]
    }
}
