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


package ops

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"github.com/mlnoga/stardim/internal/blend"
	"github.com/mlnoga/stardim/internal/fits"
	"github.com/mlnoga/stardim/internal/mask"
	"github.com/mlnoga/stardim/internal/morph"
	"github.com/mlnoga/stardim/internal/star"
)

// Defaults for star suppression, matching typical deep sky exposures
const (
	DefaultFWHM         = float32(4.0)
	DefaultThreshold    = float32(2.0)
	DefaultRadiusFactor = float32(1.5)
	DefaultBlurSigma    = float32(5.0)
	DefaultKernelSize   = int32(3)
	DefaultIterations   = int32(1)
	DefaultStrength     = float32(0.5)
)

// Normalizes image intensities into [0, fits.NormMax], recording the inverse
// mapping in Bzero and Bscale. Takes one input, produces one output
type OpNormalize struct {
	OpUnaryBase
}

func init() { SetOperatorFactory(func() Operator { return NewOpNormalizeDefault()}) } // register the operator for JSON decoding

func NewOpNormalizeDefault() *OpNormalize {
	op:=OpNormalize{
		OpUnaryBase : OpUnaryBase{OpBase : OpBase{Type: "normalize", Active: true}},
	}
	op.OpUnaryBase.Apply=op.Apply // assign class method to superclass abstract method
	return &op
}

func (op *OpNormalize) UnmarshalJSON(data []byte) error {
	type defaults OpNormalize
	def:=defaults(*NewOpNormalizeDefault())
	err:=json.Unmarshal(data, &def)
	if err!=nil { return err }
	*op=OpNormalize(def)
	op.OpUnaryBase.Apply=op.Apply // make method receiver point to op, not def
	return nil
}

func (op *OpNormalize) Apply(f *fits.Image, c *Context) (result *fits.Image, err error) {
	if !op.Active { return f, nil }
	res, err:=fits.NewNormalizedImage(f)
	if err!=nil { return nil, err }
	fmt.Fprintf(c.Log, "%d: Normalized [%.6g, %.6g] to [0, %g]\n",
	            f.ID, res.Bzero, res.Bzero+res.Bscale*fits.NormMax, fits.NormMax)
	c.ReportProgress(op.Type, f.ID, fmt.Sprintf("range [0, %g]", fits.NormMax))
	return res, nil
}


// Detects stars on the luminance of the image and stores them on the image.
// Optionally writes an annotated overlay JPEG. Takes one input, produces one output
type OpStarDetect struct {
	OpUnaryBase
	FWHM         float32  `json:"fwhm"`
	Threshold    float32  `json:"threshold"`
	RadiusFactor float32  `json:"radiusFactor"`
	Overlay     *OpSave   `json:"overlay"`
	StarsCSV     string   `json:"starsCSV"`
}

func init() { SetOperatorFactory(func() Operator { return NewOpStarDetectDefault()}) } // register the operator for JSON decoding

func NewOpStarDetectDefault() *OpStarDetect { return NewOpStarDetect(DefaultFWHM, DefaultThreshold, "") }

func NewOpStarDetect(fwhm, threshold float32, overlayPattern string) *OpStarDetect {
	op:=OpStarDetect{
		OpUnaryBase  : OpUnaryBase{OpBase : OpBase{Type: "starDetect", Active: true}},
		FWHM         : fwhm,
		Threshold    : threshold,
		RadiusFactor : DefaultRadiusFactor,
		Overlay      : NewOpSave(overlayPattern),
	}
	op.OpUnaryBase.Apply=op.Apply // assign class method to superclass abstract method
	return &op
}

func (op *OpStarDetect) UnmarshalJSON(data []byte) error {
	type defaults OpStarDetect
	def:=defaults(*NewOpStarDetectDefault())
	err:=json.Unmarshal(data, &def)
	if err!=nil { return err }
	*op=OpStarDetect(def)
	op.OpUnaryBase.Apply=op.Apply // make method receiver point to op, not def
	return nil
}

func (op *OpStarDetect) Apply(f *fits.Image, c *Context) (result *fits.Image, err error) {
	if !op.Active { return f, nil }

	lum:=f.DetectionLuminance()
	f.Stars, err=star.FindStars(lum, f.Naxisn[0], op.FWHM, op.Threshold)
	if err!=nil { return nil, err }
	fmt.Fprintf(c.Log, "%d: Detected %d stars with FWHM %.3g and threshold %.3g\n",
	            f.ID, len(f.Stars), op.FWHM, op.Threshold)

	if op.Overlay!=nil && op.Overlay.Active && op.Overlay.FilePattern!="" {
		fileName:=expandFilePattern(op.Overlay.FilePattern, f.ID)
		fmt.Fprintf(c.Log, "%d: Writing star overlay JPEG to %s\n", f.ID, fileName)
		if err=f.WriteStarOverlayJPGToFile(fileName, f.Stars, op.FWHM*op.RadiusFactor, 95); err!=nil {
			return nil, err
		}
	}
	if op.StarsCSV!="" {
		fileName:=expandFilePattern(op.StarsCSV, f.ID)
		fmt.Fprintf(c.Log, "%d: Writing star detections CSV to %s\n", f.ID, fileName)
		csv, errCSV:=os.Create(fileName)
		if errCSV!=nil { return nil, errCSV }
		star.PrintStars(csv, f.Stars)
		if errCSV=csv.Close(); errCSV!=nil { return nil, errCSV }
	}

	c.ReportProgress(op.Type, f.ID, fmt.Sprintf("%d stars", len(f.Stars)))
	return f, nil
}

// Expands a %d in a file pattern with the image id, as OpSave does
func expandFilePattern(pattern string, id int) string {
	if strings.Contains(pattern, "%d") {
		return fmt.Sprintf(pattern, id)
	}
	return pattern
}


// Builds the star protection mask from prior star detections and stores it on
// the image. Optionally saves the binary and the smoothed mask plane.
// Takes one input, produces one output
type OpBuildMask struct {
	OpUnaryBase
	RadiusFactor float32  `json:"radiusFactor"`
	FWHM         float32  `json:"fwhm"`
	BlurSigma    float32  `json:"blurSigma"`
	SaveMask    *OpSave   `json:"saveMask"`
	SaveSmooth  *OpSave   `json:"saveSmooth"`
}

func init() { SetOperatorFactory(func() Operator { return NewOpBuildMaskDefault()}) } // register the operator for JSON decoding

func NewOpBuildMaskDefault() *OpBuildMask { return NewOpBuildMask(DefaultRadiusFactor, DefaultFWHM, DefaultBlurSigma, "", "") }

func NewOpBuildMask(radiusFactor, fwhm, blurSigma float32, maskPattern, smoothPattern string) *OpBuildMask {
	op:=OpBuildMask{
		OpUnaryBase  : OpUnaryBase{OpBase : OpBase{Type: "buildMask", Active: true}},
		RadiusFactor : radiusFactor,
		FWHM         : fwhm,
		BlurSigma    : blurSigma,
		SaveMask     : NewOpSave(maskPattern),
		SaveSmooth   : NewOpSave(smoothPattern),
	}
	op.OpUnaryBase.Apply=op.Apply // assign class method to superclass abstract method
	return &op
}

func (op *OpBuildMask) UnmarshalJSON(data []byte) error {
	type defaults OpBuildMask
	def:=defaults(*NewOpBuildMaskDefault())
	err:=json.Unmarshal(data, &def)
	if err!=nil { return err }
	*op=OpBuildMask(def)
	op.OpUnaryBase.Apply=op.Apply // make method receiver point to op, not def
	return nil
}

func (op *OpBuildMask) Apply(f *fits.Image, c *Context) (result *fits.Image, err error) {
	if !op.Active { return f, nil }

	f.Mask, err=mask.Build(f.Naxisn[:2], f.Stars, op.RadiusFactor, op.FWHM, op.BlurSigma)
	if err!=nil { return nil, err }
	fmt.Fprintf(c.Log, "%d: Built mask with radius %.3g covering %.2f%% of the image\n",
	            f.ID, f.Mask.Radius, f.Mask.Coverage()*100)

	if err=op.saveMaskPlane(binaryToPlane(f.Mask.Binary), f, op.SaveMask, c); err!=nil { return nil, err }
	if err=op.saveMaskPlane(f.Mask.Smooth,               f, op.SaveSmooth, c); err!=nil { return nil, err }

	c.ReportProgress(op.Type, f.ID, fmt.Sprintf("coverage %.2f%%", f.Mask.Coverage()*100))
	return f, nil
}

// Saves a [0,1] mask plane as a mono image scaled to [0, fits.NormMax]
func (op *OpBuildMask) saveMaskPlane(plane []float32, f *fits.Image, save *OpSave, c *Context) error {
	if save==nil || !save.Active || save.FilePattern=="" { return nil }
	img:=fits.NewImageFromNaxisn(f.Naxisn[:2], nil)
	img.ID=f.ID
	for i,v:=range plane {
		img.Data[i]=v*fits.NormMax
	}
	_, err:=save.Apply(img, c)
	return err
}

func binaryToPlane(binary []bool) []float32 {
	plane:=make([]float32, len(binary))
	for i,b:=range binary {
		if b { plane[i]=1 }
	}
	return plane
}


// Applies a morphological transform to the whole image. Takes one input,
// produces one output
type OpMorph struct {
	OpUnaryBase
	Kind        string   `json:"kind"`
	KernelSize  int32    `json:"kernelSize"`
	Iterations  int32    `json:"iterations"`
	Save       *OpSave   `json:"save"`
}

func init() { SetOperatorFactory(func() Operator { return NewOpMorphDefault()}) } // register the operator for JSON decoding

func NewOpMorphDefault() *OpMorph { return NewOpMorph(morph.Erode.String(), DefaultKernelSize, DefaultIterations, "") }

func NewOpMorph(kind string, kernelSize, iterations int32, savePattern string) *OpMorph {
	op:=OpMorph{
		OpUnaryBase : OpUnaryBase{OpBase : OpBase{Type: "morph", Active: true}},
		Kind        : kind,
		KernelSize  : kernelSize,
		Iterations  : iterations,
		Save        : NewOpSave(savePattern),
	}
	op.OpUnaryBase.Apply=op.Apply // assign class method to superclass abstract method
	return &op
}

func (op *OpMorph) UnmarshalJSON(data []byte) error {
	type defaults OpMorph
	def:=defaults(*NewOpMorphDefault())
	err:=json.Unmarshal(data, &def)
	if err!=nil { return err }
	*op=OpMorph(def)
	op.OpUnaryBase.Apply=op.Apply // make method receiver point to op, not def
	return nil
}

func (op *OpMorph) Apply(f *fits.Image, c *Context) (result *fits.Image, err error) {
	if !op.Active { return f, nil }

	kind, err:=morph.ParseKind(op.Kind)
	if err!=nil { return nil, err }
	res, err:=morph.Transform(f, kind, op.KernelSize, op.Iterations)
	if err!=nil { return nil, err }
	fmt.Fprintf(c.Log, "%d: Applied %v with %dx%d kernel and %d iterations\n",
	            f.ID, kind, op.KernelSize, op.KernelSize, op.Iterations)

	if op.Save!=nil {
		if _, err=op.Save.Apply(res, c); err!=nil { return nil, err }
	}
	c.ReportProgress(op.Type, f.ID, fmt.Sprintf("%v %dx%d x%d", kind, op.KernelSize, op.KernelSize, op.Iterations))
	return res, nil
}


// Applies a morphological transform under control of the star protection mask:
// out = orig + strength * (trans - orig) * mask. Requires a prior buildMask.
// Takes one input, produces one output
type OpSelectiveMorph struct {
	OpUnaryBase
	Kind             string   `json:"kind"`
	KernelSize       int32    `json:"kernelSize"`
	Iterations       int32    `json:"iterations"`
	Strength         float32  `json:"strength"`
	SaveTransformed *OpSave   `json:"saveTransformed"`
	SaveDifference  *OpSave   `json:"saveDifference"`
	Save            *OpSave   `json:"save"`
}

func init() { SetOperatorFactory(func() Operator { return NewOpSelectiveMorphDefault()}) } // register the operator for JSON decoding

func NewOpSelectiveMorphDefault() *OpSelectiveMorph {
	return NewOpSelectiveMorph(morph.Erode.String(), DefaultKernelSize, DefaultIterations, DefaultStrength, "", "", "")
}

func NewOpSelectiveMorph(kind string, kernelSize, iterations int32, strength float32,
	                     transformedPattern, differencePattern, savePattern string) *OpSelectiveMorph {
	op:=OpSelectiveMorph{
		OpUnaryBase     : OpUnaryBase{OpBase : OpBase{Type: "selectiveMorph", Active: true}},
		Kind            : kind,
		KernelSize      : kernelSize,
		Iterations      : iterations,
		Strength        : strength,
		SaveTransformed : NewOpSave(transformedPattern),
		SaveDifference  : NewOpSave(differencePattern),
		Save            : NewOpSave(savePattern),
	}
	op.OpUnaryBase.Apply=op.Apply // assign class method to superclass abstract method
	return &op
}

func (op *OpSelectiveMorph) UnmarshalJSON(data []byte) error {
	type defaults OpSelectiveMorph
	def:=defaults(*NewOpSelectiveMorphDefault())
	err:=json.Unmarshal(data, &def)
	if err!=nil { return err }
	*op=OpSelectiveMorph(def)
	op.OpUnaryBase.Apply=op.Apply // make method receiver point to op, not def
	return nil
}

func (op *OpSelectiveMorph) Apply(f *fits.Image, c *Context) (result *fits.Image, err error) {
	if !op.Active { return f, nil }
	if f.Mask==nil {
		return nil, fmt.Errorf("%d: %s operator needs a prior buildMask step: %w", f.ID, op.Type, mask.ErrInvalidParameter)
	}

	kind, err:=morph.ParseKind(op.Kind)
	if err!=nil { return nil, err }
	trans, err:=morph.Transform(f, kind, op.KernelSize, op.Iterations)
	if err!=nil { return nil, err }
	if op.SaveTransformed!=nil {
		if _, err=op.SaveTransformed.Apply(trans, c); err!=nil { return nil, err }
	}

	res, err:=blend.Blend(f, trans, f.Mask.Smooth, op.Strength)
	if err!=nil { return nil, err }
	fmt.Fprintf(c.Log, "%d: Applied selective %v with %dx%d kernel, %d iterations and strength %.3g\n",
	            f.ID, kind, op.KernelSize, op.KernelSize, op.Iterations, op.Strength)

	if op.SaveDifference!=nil && op.SaveDifference.Active && op.SaveDifference.FilePattern!="" {
		diff, err:=blend.Difference(trans, res)
		if err!=nil { return nil, err }
		if _, err=op.SaveDifference.Apply(diff, c); err!=nil { return nil, err }
	}
	if op.Save!=nil {
		if _, err=op.Save.Apply(res, c); err!=nil { return nil, err }
	}

	c.ReportProgress(op.Type, f.ID, fmt.Sprintf("%v strength %.3g", kind, op.Strength))
	return res, nil
}
