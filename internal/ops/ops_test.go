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
	"bytes"
	"encoding/json"
	"math"
	"math/rand"
	"path/filepath"
	"testing"
	"github.com/mlnoga/stardim/internal/blend"
	"github.com/mlnoga/stardim/internal/fits"
	"github.com/mlnoga/stardim/internal/mask"
	"github.com/mlnoga/stardim/internal/morph"
	"github.com/mlnoga/stardim/internal/star"
	"github.com/mlnoga/stardim/internal/stats"
)

func newTestContext() (*Context, *bytes.Buffer) {
	buf:=&bytes.Buffer{}
	return NewContext(buf, stats.LSESigmaClippedMedianQn), buf
}

// Builds a noisy image with a single Gaussian star at the given position
func newStarImage(width, height int32, seed int64, x, y float32) *fits.Image {
	f:=fits.NewImageFromNaxisn([]int32{width, height}, nil)
	rng:=rand.New(rand.NewSource(seed))
	for i:=range f.Data {
		f.Data[i]=100 + 10*float32(rng.NormFloat64())
	}
	sigma:=float64(4.0/2.35482)
	for yy:=int32(0); yy<height; yy++ {
		for xx:=int32(0); xx<width; xx++ {
			dx, dy:=float64(xx)-float64(x), float64(yy)-float64(y)
			f.Data[yy*width+xx]+=float32(50*math.Exp(-(dx*dx+dy*dy)/(2*sigma*sigma)))
		}
	}
	return f
}

// A full suppression pipeline on a synthetic image: normalize, detect, build
// mask, then two chained selective stages. Background outside the mask must
// stay bit-identical to the normalized original
func TestPipelineEndToEnd(t *testing.T) {
	c, _:=newTestContext()
	var stages []string
	c.OnProgress=func(stage string, id int, summary string) {
		stages=append(stages, stage)
	}

	img:=newStarImage(64, 64, 42, 32, 32)
	in:=func() (*fits.Image, error) { return img, nil }

	seq:=NewOpSequence(
		NewOpNormalizeDefault(),
		NewOpStarDetect(4, 2, ""),
		NewOpBuildMask(1.5, 4, 5, "", ""),
		NewOpSelectiveMorph("erode", 3, 1, 0.5, "", "", ""),
		NewOpSelectiveMorph("dilate", 3, 1, 0.5, "", "", ""),
	)
	promises, err:=seq.MakePromises([]Promise{in}, c)
	if err!=nil { t.Fatalf("MakePromises error %v; want nil", err) }
	if len(promises)!=1 { t.Fatalf("got %d promises; want 1", len(promises)) }

	outs, err:=MaterializeAll(promises, c.MaxThreads, false)
	if err!=nil { t.Fatalf("MaterializeAll error %v; want nil", err) }
	res:=outs[0]

	if len(res.Stars)<1 { t.Fatalf("detected %d stars; want at least 1", len(res.Stars)) }
	if res.Mask==nil    { t.Fatalf("mask missing after buildMask") }

	for i,v:=range res.Data {
		if v<0 || v>fits.NormMax { t.Errorf("data[%d]=%v outside [0,%v]", i, v, fits.NormMax) }
	}

	// re-run just the normalization to compare the untouched background
	norm, err:=fits.NewNormalizedImage(img)
	if err!=nil { t.Fatalf("NewNormalizedImage error %v; want nil", err) }
	for i:=range res.Data {
		if res.Mask.Smooth[i]==0 && res.Data[i]!=norm.Data[i] {
			t.Fatalf("unmasked data[%d]=%v; want %v", i, res.Data[i], norm.Data[i])
		}
	}

	want:=[]string{"normalize", "starDetect", "buildMask", "selectiveMorph", "selectiveMorph"}
	if len(stages)!=len(want) {
		t.Fatalf("got %d progress reports %v; want %v", len(stages), stages, want)
	}
	for i:=range want {
		if stages[i]!=want[i] { t.Errorf("progress[%d]=%s; want %s", i, stages[i], want[i]) }
	}
}

// The saved difference artifact compares the transformed stage output against
// the blended output, not against the stage input
func TestSelectiveMorphDifferenceArtifact(t *testing.T) {
	c, _:=newTestContext()
	width, height:=int32(32), int32(32)
	img:=fits.NewImageFromNaxisn([]int32{width, height}, nil)
	for i:=range img.Data { img.Data[i]=10 }
	img.Data[16*32+16]=200 // the star to suppress

	m, err:=mask.Build([]int32{width, height}, []star.Star{{Index:16+16*32, Value:200, X:16, Y:16}}, 1.5, 4, 5)
	if err!=nil { t.Fatalf("Build error %v; want nil", err) }
	img.Mask=m

	fileName:=filepath.Join(t.TempDir(), "diff.fits")
	op:=NewOpSelectiveMorph("erode", 3, 1, 0.5, "", fileName, "")
	res, err:=op.OpUnaryBase.Apply(img, c)
	if err!=nil { t.Fatalf("Apply error %v; want nil", err) }

	trans, err:=morph.Transform(img, morph.Erode, 3, 1)
	if err!=nil { t.Fatalf("Transform error %v; want nil", err) }
	want, err:=blend.Difference(trans, res)
	if err!=nil { t.Fatalf("Difference error %v; want nil", err) }

	saved, err:=fits.NewImageFromFile(fileName, 0, c.Log)
	if err!=nil { t.Fatalf("NewImageFromFile error %v; want nil", err) }
	if len(saved.Data)!=len(want.Data) {
		t.Fatalf("saved %d pixels; want %d", len(saved.Data), len(want.Data))
	}
	for i:=range want.Data {
		if saved.Data[i]!=want.Data[i] {
			t.Fatalf("saved data[%d]=%v; want %v", i, saved.Data[i], want.Data[i])
		}
	}
}

// Selective morphology without a prior mask is an error
func TestSelectiveMorphNeedsMask(t *testing.T) {
	c, _:=newTestContext()
	img:=fits.NewImageFromNaxisn([]int32{8, 8}, nil)

	op:=NewOpSelectiveMorph("erode", 3, 1, 0.5, "", "", "")
	if _, err:=op.Apply(img, c); err==nil {
		t.Errorf("Apply without mask returned nil error; want error")
	}
}

// A pipeline descriptor round trips through JSON with all parameters intact
func TestSequenceJSONRoundTrip(t *testing.T) {
	seq:=NewOpSequence(
		NewOpNormalizeDefault(),
		NewOpStarDetect(3.5, 1.5, "overlay%d.jpg"),
		NewOpBuildMask(2, 3.5, 4, "mask%d.fits", ""),
		NewOpMorph("dilate", 5, 2, ""),
		NewOpSelectiveMorph("erode", 3, 2, 0.75, "", "", "out%d.fits"),
	)

	data, err:=json.Marshal(seq)
	if err!=nil { t.Fatalf("Marshal error %v; want nil", err) }

	restored:=&OpSequence{}
	if err:=json.Unmarshal(data, restored); err!=nil {
		t.Fatalf("Unmarshal error %v; want nil", err)
	}
	if len(restored.Steps)!=len(seq.Steps) {
		t.Fatalf("restored %d steps; want %d", len(restored.Steps), len(seq.Steps))
	}
	for i,step:=range restored.Steps {
		if step.GetType()!=seq.Steps[i].GetType() {
			t.Errorf("step %d type %s; want %s", i, step.GetType(), seq.Steps[i].GetType())
		}
	}

	sd, ok:=restored.Steps[1].(*OpStarDetect)
	if !ok { t.Fatalf("step 1 is %T; want *OpStarDetect", restored.Steps[1]) }
	if sd.FWHM!=3.5 || sd.Threshold!=1.5 {
		t.Errorf("starDetect fwhm=%v threshold=%v; want 3.5 1.5", sd.FWHM, sd.Threshold)
	}
	if sd.Overlay==nil || sd.Overlay.FilePattern!="overlay%d.jpg" {
		t.Errorf("starDetect overlay=%v; want pattern overlay%%d.jpg", sd.Overlay)
	}
	sm, ok:=restored.Steps[4].(*OpSelectiveMorph)
	if !ok { t.Fatalf("step 4 is %T; want *OpSelectiveMorph", restored.Steps[4]) }
	if sm.Kind!="erode" || sm.Iterations!=2 || sm.Strength!=0.75 {
		t.Errorf("selectiveMorph kind=%s iterations=%d strength=%v; want erode 2 0.75", sm.Kind, sm.Iterations, sm.Strength)
	}
	if sm.OpUnaryBase.Apply==nil { t.Errorf("selectiveMorph Apply not rebound after unmarshal") }
}

// Partial JSON descriptors fill in the documented defaults
func TestUnmarshalDefaults(t *testing.T) {
	restored:=&OpSequence{}
	raw:=[]byte(`{"type":"seq","active":true,"steps":[
		{"type":"starDetect"},
		{"type":"selectiveMorph","kind":"dilate"}
	]}`)
	if err:=json.Unmarshal(raw, restored); err!=nil {
		t.Fatalf("Unmarshal error %v; want nil", err)
	}

	sd:=restored.Steps[0].(*OpStarDetect)
	if sd.FWHM!=DefaultFWHM || sd.Threshold!=DefaultThreshold {
		t.Errorf("starDetect defaults fwhm=%v threshold=%v; want %v %v", sd.FWHM, sd.Threshold, DefaultFWHM, DefaultThreshold)
	}
	if sd.RadiusFactor!=DefaultRadiusFactor {
		t.Errorf("starDetect default radiusFactor=%v; want %v", sd.RadiusFactor, DefaultRadiusFactor)
	}
	sm:=restored.Steps[1].(*OpSelectiveMorph)
	if sm.Kind!="dilate" {
		t.Errorf("selectiveMorph kind=%s; want dilate", sm.Kind)
	}
	if sm.KernelSize!=DefaultKernelSize || sm.Strength!=DefaultStrength {
		t.Errorf("selectiveMorph defaults kernel=%d strength=%v; want %d %v", sm.KernelSize, sm.Strength, DefaultKernelSize, DefaultStrength)
	}
}

// The thread budget honors both the processor count and available memory
func TestThreadsForMemory(t *testing.T) {
	if n:=threadsForMemory(64*1024, 8); n!=8 {
		t.Errorf("threadsForMemory(64GB, 8)=%d; want 8", n)
	}
	if n:=threadsForMemory(2*1024, 8); n!=4 {
		t.Errorf("threadsForMemory(2GB, 8)=%d; want 4", n)
	}
	if n:=threadsForMemory(256, 8); n!=1 {
		t.Errorf("threadsForMemory(256MB, 8)=%d; want 1", n)
	}
}

func TestLoadRejectsUnsafePaths(t *testing.T) {
	c, _:=newTestContext()
	for _,p:=range []string{"/etc/passwd", "../secret.fits"} {
		op:=NewOpLoad(0, p)
		if _, err:=op.MakePromises(nil, c); err==nil {
			t.Errorf("MakePromises(%s) returned nil error; want error", p)
		}
	}
}
