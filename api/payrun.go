/*
payrun.go - Batch calculation endpoint

PURPOSE:
  Accepts a list of period IDs and calculates them through the bounded
  worker pool. Per-period failures come back in the response body; the
  run itself always returns 200 so the caller can retry just the failed
  subset.
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/warp/payroll-engine/payroll"
)

type payrunResultDTO struct {
	PeriodID string `json:"period_id"`
	Subject  string `json:"subject,omitempty"`
	Status   string `json:"status,omitempty"`
	Error    string `json:"error,omitempty"`
}

type payrunResponse struct {
	Total   int               `json:"total"`
	Failed  int               `json:"failed"`
	Results []payrunResultDTO `json:"results"`
}

func (h *Handler) RunPayrun(w http.ResponseWriter, r *http.Request) {
	var req payrunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if len(req.PeriodIDs) == 0 {
		writeError(w, http.StatusBadRequest, errors.New("period_ids is required"))
		return
	}

	ids := make([]payroll.PeriodID, len(req.PeriodIDs))
	for i, id := range req.PeriodIDs {
		ids[i] = payroll.PeriodID(id)
	}

	results := h.Runner.Run(r.Context(), ids)

	resp := payrunResponse{Total: len(results)}
	for _, res := range results {
		dto := payrunResultDTO{
			PeriodID: string(res.PeriodID),
			Subject:  string(res.Subject),
		}
		if res.Period != nil {
			dto.Status = string(res.Period.Status)
		}
		if res.Err != nil {
			dto.Error = res.Err.Error()
			resp.Failed++
		}
		resp.Results = append(resp.Results, dto)
	}

	writeJSON(w, http.StatusOK, resp)
}
