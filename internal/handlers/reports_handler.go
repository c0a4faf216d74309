package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"settlementsam/internal/logger"
	"settlementsam/internal/services"
)

type ReportHandler struct {
	Service *services.ReportService
	log     *zap.Logger
}

func NewReportHandler(service *services.ReportService, log *zap.Logger) *ReportHandler {
	return &ReportHandler{Service: service, log: logger.OrNop(log)}
}

// GetSummary
// @Summary      Lead and client totals
// @Tags         Reports
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  services.Summary
// @Router       /admin/reports/summary [get]
func (h *ReportHandler) GetSummary(c *gin.Context) {
	data, err := h.Service.Summary(c.Request.Context())
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, data)
}
