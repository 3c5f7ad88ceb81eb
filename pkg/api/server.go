// Package api provides the REST API server for tunecraft
package api

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"tunecraft/pkg/mts"
	"tunecraft/pkg/pitch"
	"tunecraft/pkg/retune"
	"tunecraft/pkg/scala"
	"tunecraft/pkg/scale"
	"tunecraft/pkg/tuning"
)

// @title Tunecraft API
// @version 1.0
// @description API for building microtonal scales and rendering Scala files and MIDI Tuning Standard sysex
// @host localhost:8080
// @BasePath /api/v1

// StartServer starts the API server on the specified port
func StartServer(port int) error {
	r := gin.Default()

	// CORS middleware
	r.Use(corsMiddleware())

	// Health check
	r.GET("/health", healthCheck)

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		v1.GET("/health", healthCheck)
		v1.GET("/scales", listScaleTypes)
		v1.POST("/scales/dump", handleDump)
		v1.POST("/render/scl", handleRenderScl)
		v1.POST("/render/kbm", handleRenderKbm)
		v1.POST("/render/mts", handleRenderMts)
		v1.POST("/plan", handlePlan)
	}

	// Swagger docs
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	return r.Run(fmt.Sprintf(":%d", port))
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// ScaleRequest selects a scale-construction strategy and its parameters.
type ScaleRequest struct {
	Type string `json:"type" binding:"required"` // equal | rank2 | harm | cust

	StepSize string `json:"step_size,omitempty"` // equal, e.g. "1:12:2"

	Generator string `json:"generator,omitempty"` // rank2, e.g. "3/2"
	NumPos    uint16 `json:"num_pos,omitempty"`
	NumNeg    uint16 `json:"num_neg,omitempty"`
	Period    string `json:"period,omitempty"`

	LowestHarmonic uint32 `json:"lowest_harmonic,omitempty"` // harm
	NoteCount      uint32 `json:"note_count,omitempty"`
	Subharmonics   bool   `json:"subharmonics,omitempty"`

	Items []string `json:"items,omitempty"` // cust
	Name  string   `json:"name,omitempty"`
}

// TuningRequest pairs a scale with a keyboard reference.
type TuningRequest struct {
	Scale   ScaleRequest `json:"scale" binding:"required"`
	RefKey  int          `json:"ref_key"`
	RefHz   float64      `json:"ref_hz"`
	RootKey *int         `json:"root_key,omitempty"`
}

// healthCheck godoc
// @Summary Health check endpoint
// @Description Returns the health status of the API
// @Tags health
// @Produce json
// @Success 200 {object} map[string]string
// @Router /health [get]
func healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "tunecraft",
	})
}

// listScaleTypes godoc
// @Summary List scale construction strategies
// @Description Returns the supported scale types and their parameters
// @Tags info
// @Produce json
// @Success 200 {object} map[string][]map[string]string
// @Router /api/v1/scales [get]
func listScaleTypes(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"types": []map[string]string{
			{"type": "equal", "description": "Equal temperament", "params": "step_size"},
			{"type": "rank2", "description": "Rank-2 temperament", "params": "generator, num_pos, num_neg, period"},
			{"type": "harm", "description": "Harmonic series segment", "params": "lowest_harmonic, note_count, subharmonics"},
			{"type": "cust", "description": "Explicit item list", "params": "items, name"},
		},
	})
}

// handleDump godoc
// @Summary Dump the pitch table of a tuning
// @Description Builds a scale and returns the frequency of every mapped MIDI key
// @Tags scales
// @Accept json
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} map[string]string
// @Router /api/v1/scales/dump [post]
func handleDump(c *gin.Context) {
	t, ok := bindTuning(c)
	if !ok {
		return
	}
	type entry struct {
		Key    int     `json:"key"`
		Degree int     `json:"degree"`
		Hz     float64 `json:"hz"`
	}
	entries := make([]entry, 0, 128)
	for key := 0; key < 128; key++ {
		degree, mapped := t.Mapping().DegreeOf(key)
		if !mapped {
			continue
		}
		freq, err := t.FrequencyOf(key)
		if err != nil {
			continue
		}
		entries = append(entries, entry{Key: key, Degree: degree, Hz: freq.Hz()})
	}
	c.JSON(http.StatusOK, gin.H{
		"scale": t.Scale().Name(),
		"items": entries,
	})
}

// handleRenderScl godoc
// @Summary Render a scale as a Scala .scl file
// @Tags render
// @Accept json
// @Produce text/plain
// @Success 200 {string} string
// @Failure 400 {object} map[string]string
// @Router /api/v1/render/scl [post]
func handleRenderScl(c *gin.Context) {
	var req ScaleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	sc, err := buildScale(req)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	content := scala.FormatScl(sc, scala.DefaultOptions())
	c.Header("Content-Disposition", "attachment; filename=scale.scl")
	c.Data(http.StatusOK, "text/plain", []byte(content))
}

// handleRenderKbm godoc
// @Summary Render a keyboard mapping as a Scala .kbm file
// @Tags render
// @Accept json
// @Produce text/plain
// @Success 200 {string} string
// @Failure 400 {object} map[string]string
// @Router /api/v1/render/kbm [post]
func handleRenderKbm(c *gin.Context) {
	var req TuningRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	mapping := mappingFromRequest(req)
	if err := mapping.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	content := scala.FormatKbm(mapping, scala.DefaultOptions())
	c.Header("Content-Disposition", "attachment; filename=mapping.kbm")
	c.Data(http.StatusOK, "text/plain", []byte(content))
}

// handleRenderMts godoc
// @Summary Render a tuning as a Single Note Tuning Change sysex dump
// @Tags render
// @Accept json
// @Produce application/octet-stream
// @Success 200 {file} binary
// @Failure 400 {object} map[string]string
// @Router /api/v1/render/mts [post]
func handleRenderMts(c *gin.Context) {
	t, ok := bindTuning(c)
	if !ok {
		return
	}
	msg, err := mts.SingleNoteTuningFromTuning(t, allKeys(), mts.DefaultSingleNoteOptions())
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.Header("Content-Disposition", "attachment; filename=tuning.syx")
	c.Data(http.StatusOK, "application/octet-stream", msg.SysEx())
}

// handlePlan godoc
// @Summary Compute an ahead-of-time retuning plan
// @Tags plan
// @Accept json
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} map[string]string
// @Router /api/v1/plan [post]
func handlePlan(c *gin.Context) {
	var req struct {
		Tuning         TuningRequest `json:"tuning" binding:"required"`
		Channels       uint8         `json:"channels"`
		PitchBendRange float64       `json:"pitch_bend_range"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	t, err := tuningFromRequest(req.Tuning)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	profile := retune.DefaultProfile()
	if req.Channels > 0 {
		profile.Channels = req.Channels
	}
	if req.PitchBendRange > 0 {
		profile.PitchBendRange = req.PitchBendRange
	}
	plan, err := retune.PlanAheadOfTime(t, allKeys(), profile)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	warnings := make([]string, 0, len(plan.Warnings))
	for _, w := range plan.Warnings {
		warnings = append(warnings, w.Msg)
	}
	c.JSON(http.StatusOK, gin.H{
		"channel_detunings": plan.ChannelDetunings,
		"keys_assigned":     len(plan.Assignments),
		"warnings":          warnings,
	})
}

func allKeys() []int {
	keys := make([]int, 128)
	for i := range keys {
		keys[i] = i
	}
	return keys
}

func bindTuning(c *gin.Context) (*tuning.Tuning, bool) {
	var req TuningRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return nil, false
	}
	t, err := tuningFromRequest(req)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return nil, false
	}
	return t, true
}

func tuningFromRequest(req TuningRequest) (*tuning.Tuning, error) {
	sc, err := buildScale(req.Scale)
	if err != nil {
		return nil, err
	}
	return tuning.New(sc, mappingFromRequest(req))
}

func mappingFromRequest(req TuningRequest) tuning.KeyboardMapping {
	refHz := req.RefHz
	if refHz <= 0 {
		refHz = pitch.MidiPitch(req.RefKey).Hz()
	}
	rootKey := req.RefKey
	if req.RootKey != nil {
		rootKey = *req.RootKey
	}
	return tuning.Linear(req.RefKey, pitch.FromHz(refHz), rootKey)
}

func buildScale(req ScaleRequest) (*scale.Scale, error) {
	switch req.Type {
	case "equal":
		step, err := pitch.ParseRatio(req.StepSize)
		if err != nil {
			return nil, err
		}
		return scale.Equal(step)
	case "rank2":
		generator, err := pitch.ParseRatio(req.Generator)
		if err != nil {
			return nil, err
		}
		period := pitch.Octave
		if req.Period != "" {
			period, err = pitch.ParseRatio(req.Period)
			if err != nil {
				return nil, err
			}
		}
		return scale.Rank2(generator, req.NumPos, req.NumNeg, period)
	case "harm":
		return scale.Harmonics(req.LowestHarmonic, req.NoteCount, req.Subharmonics)
	case "cust":
		name := req.Name
		if name == "" {
			name = "Custom scale"
		}
		builder := scale.NewBuilder(name)
		for _, item := range req.Items {
			r, err := pitch.ParseRatio(item)
			if err != nil {
				return nil, err
			}
			builder.PushRatio(r)
		}
		return builder.Build()
	default:
		return nil, fmt.Errorf("unsupported scale type %q", req.Type)
	}
}
