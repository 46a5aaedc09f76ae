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


package rest

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"github.com/gin-gonic/gin"

	"github.com/mlnoga/stardim/internal/ops"
	"github.com/mlnoga/stardim/internal/stats"
)


func Serve(addr string) error {
	r := gin.Default()
	api := r.Group("/api")
	{
		v1 := api.Group("/v1")
		{
			v1.GET ("/ping",    getPing)
			v1.POST("/detect",  postDetect)
			v1.POST("/process", postProcess)
		}
	}
	return r.Run(addr)
}

func getPing(c *gin.Context) {
	c.JSON(200, gin.H{
		"message": "pong",
	})
}

func printArgs(logWriter io.Writer, prefix, suffix string, args interface{}) error {
	m,err:=json.MarshalIndent(args, "", "  ")
	if err!=nil { return err }
	fmt.Fprintf(logWriter, "%s%s%s", prefix, string(m), suffix)
	return nil
}

// Prepares a streaming plain text response and a context logging into it
func newStreamingContext(c *gin.Context) *ops.Context {
	logWriter := c.Writer
	header := logWriter.Header()
	header.Set("Content-Type", "text/plain")
	logWriter.WriteHeader(http.StatusOK)

	ctx:=ops.NewContext(logWriter, stats.LSESigmaClippedMedianQn)
	ctx.OnProgress=func(stage string, id int, summary string) {
		if flusher, ok:=logWriter.(http.Flusher); ok { flusher.Flush() }
	}
	return ctx
}

// Runs a pipeline sequence against the globbed file patterns, streaming the
// log to the response as images complete
func runPipeline(ctx *ops.Context, filePatterns []string, seq *ops.OpSequence) {
	load:=ops.NewOpLoadMany(filePatterns)
	promises, err:=load.MakePromises(nil, ctx)
	if err!=nil {
		fmt.Fprintf(ctx.Log, "Error globbing filenames: %s\n", err.Error())
		return
	}
	promises, err=seq.MakePromises(promises, ctx)
	if err!=nil {
		fmt.Fprintf(ctx.Log, "Error assembling pipeline: %s\n", err.Error())
		return
	}
	if _, err=ops.MaterializeAll(promises, ctx.MaxThreads, true); err!=nil {
		fmt.Fprintf(ctx.Log, "error: %s\n", err.Error())
	}
}

type postDetectArgs struct {
	FilePatterns []string          `json:"filePatterns"`
	StarDetect   *ops.OpStarDetect `json:"starDetect"`
}

// Detects stars on the given files and streams the results, without modifying
// any image data
func postDetect(c *gin.Context)  {
	var args postDetectArgs
	if err:=c.ShouldBind(&args); err!=nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error() } )
		return
	}
	if args.StarDetect==nil { args.StarDetect=ops.NewOpStarDetectDefault() }

	ctx:=newStreamingContext(c)
	if err:=printArgs(ctx.Log, "Arguments:\n", "\n", args); err!=nil {
		fmt.Fprintf(ctx.Log, "Error printing arguments: %s\n", err.Error())
		return
	}

	seq:=ops.NewOpSequence(ops.NewOpNormalizeDefault(), args.StarDetect)
	runPipeline(ctx, args.FilePatterns, seq)
	if flusher, ok:=ctx.Log.(http.Flusher); ok { flusher.Flush() }
}

type postProcessArgs struct {
	FilePatterns []string        `json:"filePatterns"`
	Pipeline     *ops.OpSequence `json:"pipeline"`
}

// Runs a full star suppression pipeline described as a JSON operator sequence
func postProcess(c *gin.Context) {
	var args postProcessArgs
	if err:=c.ShouldBind(&args); err!=nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error() } )
		return
	}
	if args.Pipeline==nil || len(args.Pipeline.Steps)==0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "pipeline with no steps"} )
		return
	}

	ctx:=newStreamingContext(c)
	if err:=printArgs(ctx.Log, "Arguments:\n", "\n", args); err!=nil {
		fmt.Fprintf(ctx.Log, "Error printing arguments: %s\n", err.Error())
		return
	}

	runPipeline(ctx, args.FilePatterns, args.Pipeline)
	if flusher, ok:=ctx.Log.(http.Flusher); ok { flusher.Flush() }
}
