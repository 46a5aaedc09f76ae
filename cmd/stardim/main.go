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

package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"runtime/pprof"
	"strings"
	"time"
	"github.com/mlnoga/stardim/internal/ops"
	"github.com/mlnoga/stardim/internal/rest"
	"github.com/mlnoga/stardim/internal/stats"
)

const version = "0.1.0"

var cpuprofile = flag.String("cpuprofile", "", "write cpu profile to `file`")
var memprofile = flag.String("memprofile", "", "write memory profile to `file`")

var out  = flag.String("out", "out.fits", "save output with given filename pattern, e.g. `out%d.fits`")
var jpg  = flag.String("jpg", "%auto", "save 8bit preview of output as JPEG to `file`. `%auto` replaces suffix of output file with .jpg")
var log  = flag.String("log", "%auto", "save log output to `file`. `%auto` replaces suffix of output file with .log")

var overlay   = flag.String("overlay", "", "save star detection overlays with given filename pattern, e.g. `overlay%d.jpg`")
var starsCSV  = flag.String("starsCSV", "", "save star detections as CSV with given filename pattern, e.g. `stars%d.csv`")
var starMask  = flag.String("starMask", "", "save binary star masks with given filename pattern, e.g. `mask%d.fits`")
var smoothMask= flag.String("smoothMask", "", "save smoothed star masks with given filename pattern, e.g. `smooth%d.fits`")
var morphed   = flag.String("morphed", "", "save intermediate morphological transforms with given filename pattern, e.g. `morph%d.fits`")
var diff      = flag.String("diff", "", "save difference of original and result with given filename pattern, e.g. `diff%d.fits`")

var fwhm        = flag.Float64("fwhm", float64(ops.DefaultFWHM), "expected star full width at half maximum in pixels")
var threshold   = flag.Float64("threshold", float64(ops.DefaultThreshold), "star detection threshold in multiples of the background noise")
var radiusFactor= flag.Float64("radiusFactor", float64(ops.DefaultRadiusFactor), "mask disk radius as a multiple of the FWHM")
var blurSigma   = flag.Float64("blurSigma", float64(ops.DefaultBlurSigma), "gaussian sigma for smoothing the binary mask")

var kinds      = flag.String("kinds", "erode,dilate", "comma separated morphological stages to chain, each erode or dilate")
var kernelSize = flag.Int64("kernelSize", int64(ops.DefaultKernelSize), "size of the square structuring element, must be odd")
var iterations = flag.Int64("iterations", int64(ops.DefaultIterations), "number of iterations per morphological stage")
var strength   = flag.Float64("strength", float64(ops.DefaultStrength), "blending strength in [0,1] for selective morphology")

var params     = flag.String("params", "", "load pipeline description from JSON `file`, overriding individual flags")
var printParams= flag.Bool("printParams", false, "print the assembled pipeline description as JSON and exit")

var lsEst      = flag.Int64("lsEst", 1, "location and scale estimators 0=mean/stddev, 1=iterative sigma-clipped sampled median and sampled Qn (standard), 2=histogram peak")
var addr       = flag.String("addr", ":8080", "listen address for the serve command")
var chroot     = flag.String("chroot", "", "serve command: change filesystem root to `path` before serving (requires root)")
var setuid     = flag.Int("setuid", -1, "serve command: switch to this numeric user id before serving, -1=don't")

func main() {
	logWriter:=io.Writer(os.Stdout)
	debug.SetGCPercent(10)
	start:=time.Now()
	flag.Usage=func(){
 	    fmt.Fprintf(logWriter, `Stardim Copyright (c) 2020 Markus L. Noga
This program comes with ABSOLUTELY NO WARRANTY.
This is free software, and you are welcome to redistribute it under certain conditions.
Refer to https://www.gnu.org/licenses/gpl-3.0.en.html for details.

Usage: %s [-flag value] (process|serve|legal|version|help) (img0.fits ... imgn.fits)

Commands:
  process Suppress stars in the input images
  serve   Start the REST API server
  legal   Show license and attribution information
  version Show version information
  help    Show this help message

Flags:
`, os.Args[0])
	    flag.PrintDefaults()
	}
	flag.Parse()

	// Initialize logging to file in addition to stdout, if selected
	if *log=="%auto" {
		if *out!="" && !strings.Contains(*out, "%d") {
			*log=strings.TrimSuffix(*out, filepath.Ext(*out))+".log"
		} else {
			*log=""
		}
	}
	var logFile *os.File
	if *log!="" {
		var err error
		logFile, err=os.OpenFile(*log, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
		if err!=nil {
			fmt.Fprintf(logWriter, "Unable to open logfile '%s'\n", *log)
			os.Exit(-1)
		}
		defer logFile.Close()
		logWriter=io.MultiWriter(os.Stdout, logFile)
	}

	// Also auto-select JPEG output target
	if *jpg=="%auto" {
		if *out!="" {
			*jpg=strings.TrimSuffix(*out, filepath.Ext(*out))+".jpg"
		} else {
			*jpg=""
		}
	}

	// Enable CPU profiling if flagged
    if *cpuprofile != "" {
        f, err := os.Create(*cpuprofile)
        if err != nil {
            fmt.Fprintf(logWriter, "Could not create CPU profile: %s\n", err.Error())
            os.Exit(-1)
        }
        defer f.Close()
        if err := pprof.StartCPUProfile(f); err != nil {
            fmt.Fprintf(logWriter, "Could not start CPU profile: %s\n", err.Error())
            os.Exit(-1)
        }
        defer pprof.StopCPUProfile()
    }

    args:=flag.Args()
    if len(args)<1 {
    	flag.Usage()
    	return
    }

	var err error
    switch args[0] {
    case "process":
		seq, errSeq:=assemblePipeline()
		if errSeq!=nil {
			fmt.Fprintf(logWriter, "Error assembling pipeline: %s\n", errSeq.Error())
			os.Exit(-1)
		}
		if *printParams {
			m, errJSON:=json.MarshalIndent(seq, "", "  ")
			if errJSON!=nil {
				fmt.Fprintf(logWriter, "Error printing pipeline: %s\n", errJSON.Error())
				os.Exit(-1)
			}
			fmt.Fprintf(logWriter, "%s\n", string(m))
			return
		}
		err=cmdProcess(args[1:], seq, logWriter)

    case "serve":
    	rest.MakeSandbox(*chroot, *setuid)
    	err=rest.Serve(*addr)

    case "legal":
    	fmt.Fprint(logWriter, legal)

    case "version":
    	fmt.Fprintf(logWriter, "Version %s\n", version)

    case "help", "?":
    	flag.Usage()

    default:
    	fmt.Fprintf(logWriter, "Unknown command '%s'\n\n", args[0])
    	flag.Usage()
    	return
    }

	now:=time.Now()
	elapsed:=now.Sub(start)
	fmt.Fprintf(logWriter, "\nDone after %v\n", elapsed)

	// Store memory profile if flagged
    if *memprofile != "" {
        f, errProf := os.Create(*memprofile)
        if errProf != nil {
            fmt.Fprintf(logWriter, "Could not create memory profile: %s\n", errProf.Error())
            os.Exit(-1)
        }
        defer f.Close()
        runtime.GC() // get up-to-date statistics
        if errProf := pprof.Lookup("allocs").WriteTo(f,0); errProf != nil {
            fmt.Fprintf(logWriter, "Could not write allocation profile: %s\n", errProf.Error())
            os.Exit(-1)
        }
    }

    if err!=nil {
		fmt.Fprintf(logWriter, "Error: %s\n", err.Error())
		os.Exit(-1)
	}
}

// Builds the pipeline sequence from the parameter file if given, else from
// the individual command line flags
func assemblePipeline() (*ops.OpSequence, error) {
	if *params!="" {
		data, err:=os.ReadFile(*params)
		if err!=nil { return nil, err }
		seq:=ops.NewOpSequenceDefault()
		if err:=json.Unmarshal(data, seq); err!=nil { return nil, err }
		return seq, nil
	}

	detect:=ops.NewOpStarDetect(float32(*fwhm), float32(*threshold), *overlay)
	detect.RadiusFactor=float32(*radiusFactor)
	detect.StarsCSV=*starsCSV
	seq:=ops.NewOpSequence(
		ops.NewOpNormalizeDefault(),
		detect,
		ops.NewOpBuildMask(float32(*radiusFactor), float32(*fwhm), float32(*blurSigma), *starMask, *smoothMask),
	)
	for _,kind:=range strings.Split(*kinds, ",") {
		kind=strings.TrimSpace(kind)
		if kind=="" { continue }
		seq.Append(ops.NewOpSelectiveMorph(kind, int32(*kernelSize), int32(*iterations), float32(*strength), *morphed, *diff, ""))
	}
	seq.Append(ops.NewOpSave(*out))
	seq.Append(ops.NewOpSave(*jpg))
	return seq, nil
}

// Runs the given pipeline over all images matching the file patterns
func cmdProcess(filePatterns []string, seq *ops.OpSequence, logWriter io.Writer) error {
	if len(filePatterns)==0 {
		return fmt.Errorf("no input files given")
	}

	c:=ops.NewContext(logWriter, stats.LSEstimatorMode(*lsEst))
	c.OnProgress=func(stage string, id int, summary string) {
		fmt.Fprintf(logWriter, "%d: completed %s (%s)\n", id, stage, summary)
	}
	fmt.Fprintf(logWriter, "Using location and scale estimator %d and up to %d threads\n", *lsEst, c.MaxThreads)

	load:=ops.NewOpLoadMany(filePatterns)
	promises, err:=load.MakePromises(nil, c)
	if err!=nil { return err }
	promises, err=seq.MakePromises(promises, c)
	if err!=nil { return err }
	_, err=ops.MaterializeAll(promises, c.MaxThreads, true)
	return err
}
