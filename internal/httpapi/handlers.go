package httpapi

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/programme-lv/exerciser/api"
	"github.com/programme-lv/exerciser/internal/evaluator"
	"github.com/programme-lv/exerciser/internal/metrics"
	"github.com/programme-lv/exerciser/internal/usagelog"
)

type handlers struct {
	exercises ExerciseStore
	evaluator Evaluator
	logs      LogRecorder
	logger    *slog.Logger
}

func (h *handlers) health(c *gin.Context) {
	c.String(http.StatusOK, "ok")
}

func (h *handlers) createExercise(c *gin.Context) {
	var req api.CreateExerciseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindErr(c, err)
		return
	}
	id, err := h.exercises.Create(req)
	if err != nil {
		respondErr(c, err)
		return
	}
	metrics.ExercisesStored.Set(float64(len(h.exercises.List())))
	RespondOK(c, api.CreateExerciseResponse{ID: id})
}

func (h *handlers) deleteExercise(c *gin.Context) {
	var req api.ExerciseIDRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindErr(c, err)
		return
	}
	if err := h.exercises.Delete(req.ID); err != nil {
		respondErr(c, err)
		return
	}
	metrics.ExercisesStored.Set(float64(len(h.exercises.List())))
	RespondOK(c, api.DeleteExerciseResponse{Status: "deleted"})
}

func (h *handlers) getFullExercise(c *gin.Context) {
	var req api.ExerciseIDRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindErr(c, err)
		return
	}
	ex, err := h.exercises.Get(req.ID)
	if err != nil {
		respondErr(c, err)
		return
	}
	RespondOK(c, ex)
}

func (h *handlers) getAllExercises(c *gin.Context) {
	all := h.exercises.List()
	out := make([]api.ExerciseSummary, 0, len(all))
	for _, ex := range all {
		out = append(out, ex.Summary())
	}
	RespondOK(c, out)
}

func (h *handlers) evaluate(withoutStatic bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req api.EvaluateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBindErr(c, err)
			return
		}
		fb, err := h.evaluator.Evaluate(c.Request.Context(), evaluator.Request{
			ExerciseID:    req.ID,
			Files:         req.AttemptFiles,
			Port:          req.Port,
			Previous:      req.PreviousFeedback,
			WithoutStatic: withoutStatic,
		})
		if err != nil {
			respondErr(c, err)
			return
		}
		RespondOK(c, fb)
	}
}

func (h *handlers) appendLog(c *gin.Context) {
	var req api.LogRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindErr(c, err)
		return
	}
	if err := h.logs.Append(req.UserID, req.LogContent); err != nil {
		metrics.LogAppends.WithLabelValues("error").Inc()
		respondErr(c, err)
		return
	}
	metrics.LogAppends.WithLabelValues("ok").Inc()
	c.String(http.StatusOK, "OK")
}

func (h *handlers) downloadLogs(c *gin.Context) {
	format, err := usagelog.ParseFormat(c.Query("format"))
	if err != nil {
		respondErr(c, err)
		return
	}
	data, err := h.logs.ExportAll(format)
	if err != nil {
		respondErr(c, err)
		return
	}
	contentType := "application/zip"
	if format == api.ExportTarZst {
		contentType = "application/zstd"
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", usagelog.ArchiveName(format)))
	c.Data(http.StatusOK, contentType, data)
}
