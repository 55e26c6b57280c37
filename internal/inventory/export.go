package inventory

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/odyssey-erp/stockroom/internal/platform/httpx"
	"github.com/odyssey-erp/stockroom/internal/report"
)

func (h *Handler) exportReportCSV(w http.ResponseWriter, r *http.Request) {
	rep, err := h.loadReport(r.Context())
	if err != nil {
		h.logger.Error("export report csv", slog.Any("error", err))
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrUpstream, err))
		return
	}
	httpx.Attachment(w, "text/csv; charset=utf-8", "inventory-report.csv")
	if err := report.WriteCSV(w, rep); err != nil {
		h.logger.Error("write report csv", slog.Any("error", err))
	}
}

func (h *Handler) exportReportJSON(w http.ResponseWriter, r *http.Request) {
	rep, err := h.loadReport(r.Context())
	if err != nil {
		h.logger.Error("export report json", slog.Any("error", err))
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrUpstream, err))
		return
	}
	httpx.JSON(w, http.StatusOK, rep)
}
