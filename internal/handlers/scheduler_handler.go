package handlers

import (
	"context"
	"net/http"

	"github.com/gigbook/backend/internal/logger"
	"github.com/gigbook/backend/internal/services"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type sweepRunner interface {
	Run(ctx context.Context, name services.SweepName) (*services.SweepReport, error)
	RunAll(ctx context.Context) ([]*services.SweepReport, error)
}

type SchedulerHandler struct {
	scheduler sweepRunner
	log       *zap.Logger
}

func NewSchedulerHandler(scheduler sweepRunner, log *zap.Logger) *SchedulerHandler {
	return &SchedulerHandler{scheduler: scheduler, log: logger.OrNop(log).Named("http.scheduler")}
}

// RunAll runs every settlement sweep
// @Summary Run all sweeps
// @Tags Scheduler
// @Produce json
// @Param X-Scheduler-Secret header string true "Scheduler secret"
// @Success 200 {object} object{reports=[]services.SweepReport}
// @Failure 401 {object} services.ErrorResponse
// @Router /internal/scheduler/run [post]
func (h *SchedulerHandler) RunAll(w http.ResponseWriter, r *http.Request) {
	reports, err := h.scheduler.RunAll(r.Context())
	if err != nil && len(reports) == 0 {
		writeServiceError(w, h.log, err)
		return
	}

	body := map[string]any{"reports": reports}
	if err != nil {
		body["error"] = services.MsgInternal
	}
	writeJSON(w, http.StatusOK, body)
}

// RunSweep runs a single sweep by name
// @Summary Run one sweep
// @Tags Scheduler
// @Produce json
// @Param X-Scheduler-Secret header string true "Scheduler secret"
// @Param sweep path string true "auto_release, incomplete_bookings or compliance"
// @Success 200 {object} services.SweepReport
// @Failure 400 {object} services.ErrorResponse
// @Router /internal/scheduler/run/{sweep} [post]
func (h *SchedulerHandler) RunSweep(w http.ResponseWriter, r *http.Request) {
	name, err := services.ParseSweepName(chi.URLParam(r, "sweep"))
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}

	report, err := h.scheduler.Run(r.Context(), name)
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}
