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
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
)

// Writes an image to a file with the given name, as 32-bit floating point FITS
func (f *Image) WriteFile(fileName string) error {
	file, err:=os.OpenFile(fileName, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err!=nil { return err }
	defer file.Close()
	return f.Write(file)
}

// Writes an image to the given writer, as 32-bit floating point FITS with
// BZERO and BSCALE capturing the inverse of any prior normalization
func (f *Image) Write(w io.Writer) error {
	buf:=bufio.NewWriter(w)
	defer buf.Flush()

	length:=0
	length+=writeBool (buf, "SIMPLE", true, "file conforms to FITS standard")
	length+=writeInt32(buf, "BITPIX", -32, "number of bits per data pixel")
	length+=writeInt32(buf, "NAXIS", int32(len(f.Naxisn)), "number of data axes")
	for i,naxisi:=range f.Naxisn {
		length+=writeInt32(buf, "NAXIS"+strconv.FormatInt(int64(i+1), 10), naxisi, "length of data axis")
	}
	length+=writeFloat32(buf, "BZERO", f.Bzero, "offset data range to physical")
	length+=writeFloat32(buf, "BSCALE", f.Bscale, "physical = data * BSCALE + BZERO")
	if f.Exposure!=0 {
		length+=writeFloat32(buf, "EXPOSURE", f.Exposure, "exposure in seconds")
	}
	length+=writeEnd(buf)
	pad(buf, length)

	return writeFloat32Array(buf, f.Data)
}

// Writes a FITS header line with a boolean value, returning the line length
func writeBool(w io.Writer, key string, value bool, comment string) int {
	if len(key)>8     { key    =key    [0:8]  }
	if len(comment)>47 { comment=comment[0:47] }
	v:="F"
	if value { v="T" }
	n,_:=fmt.Fprintf(w, "%-8s= %20s / %-47s", key, v, comment)
	return n
}

// Writes a FITS header line with an integer value, returning the line length
func writeInt32(w io.Writer, key string, value int32, comment string) int {
	if len(key)>8     { key    =key    [0:8]  }
	if len(comment)>47 { comment=comment[0:47] }
	n,_:=fmt.Fprintf(w, "%-8s= %20d / %-47s", key, value, comment)
	return n
}

// Writes a FITS header line with a floating point value, returning the line length
func writeFloat32(w io.Writer, key string, value float32, comment string) int {
	if len(key)>8     { key    =key    [0:8]  }
	if len(comment)>47 { comment=comment[0:47] }
	n,_:=fmt.Fprintf(w, "%-8s= %20g / %-47s", key, value, comment)
	return n
}

// Writes the FITS header end line, returning the line length
func writeEnd(w io.Writer) int {
	n,_:=fmt.Fprintf(w, "END%s", "                                                                             ")
	return n
}

// Pads the header with spaces to a multiple of the FITS block size
func pad(w io.Writer, length int) {
	remainder:=length % fitsBlockSize
	if remainder==0 { return }
	for i:=remainder; i<fitsBlockSize; i++ {
		w.Write([]byte{' '})
	}
}

// Writes the data segment in network byte order, replacing NaNs with zeros,
// padded with zero bytes to a multiple of the FITS block size
func writeFloat32Array(w io.Writer, data []float32) error {
	buf:=make([]byte, bufLen)

	for block:=0; block<len(data); block+=bufLen/4 {
		end:=block+bufLen/4
		if end>len(data) { end=len(data) }
		for i,d:=range data[block:end] {
			if math.IsNaN(float64(d)) { d=0 }
			binary.BigEndian.PutUint32(buf[i*4:], math.Float32bits(d))
		}
		if _,err:=w.Write(buf[:(end-block)*4]); err!=nil { return err }
	}

	written:=len(data)*4
	remainder:=written % fitsBlockSize
	if remainder!=0 {
		zeros:=make([]byte, fitsBlockSize-remainder)
		if _,err:=w.Write(zeros); err!=nil { return err }
	}
	return nil
}
