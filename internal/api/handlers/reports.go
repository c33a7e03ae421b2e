package handlers

import (
	"field-visit-service/internal/api/dto"
	"field-visit-service/internal/domain"
	"field-visit-service/internal/ports"
	"field-visit-service/internal/services"
	"log"
	"net/http"
	"slices"
	"strings"
)

// maxReportDays bounds the window a single report request may scan.
const maxReportDays = 366

type ReportHandler struct {
	Ledger   ports.WorkLedger
	Schedule domain.WeeklySchedule
}

// Summary splits travel and work minutes into normal hours and overtime
// for every day in [from, to], both inclusive, in the schedule's time zone.
func (h *ReportHandler) Summary(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}

	q := r.URL.Query()
	from, err := domain.ParseDate(q.Get("from"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "from must be YYYY-MM-DD")
		return
	}
	to, err := domain.ParseDate(q.Get("to"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "to must be YYYY-MM-DD")
		return
	}
	if to.Before(from) {
		writeError(w, r, http.StatusBadRequest, "to must not be before from")
		return
	}

	loc := h.Schedule.Loc()
	start := from.Start(loc)
	end := to.Start(loc).AddDate(0, 0, 1)
	if end.Sub(start).Hours() > maxReportDays*24+1 {
		writeError(w, r, http.StatusBadRequest, "report window is limited to one year")
		return
	}

	var users []string
	for _, u := range strings.Split(q.Get("user_id"), ",") {
		if u = strings.TrimSpace(u); u != "" {
			users = append(users, u)
		}
	}

	summary, err := services.BuildReport(r.Context(), h.Ledger, ports.LedgerQuery{UserIDs: users, From: start, To: end}, h.Schedule)
	if err != nil {
		log.Printf("build report failed: %v", err)
		writeError(w, r, http.StatusInternalServerError, "internal server error")
		return
	}

	// Minutes of a record completed in the window may fall on earlier days.
	writeJSON(w, r, http.StatusOK, reportResponse(from, to, summary.Clip(from, to)))
}

func reportResponse(from, to domain.Date, s *domain.Summary) dto.ReportResponse {
	res := dto.ReportResponse{
		From:  from.String(),
		To:    to.String(),
		Users: make([]dto.UserTotalResponse, 0, len(s.Users)),
		Rows:  make([]dto.ReportRowResponse, 0),
	}

	for _, u := range s.Users {
		res.Users = append(res.Users, dto.UserTotalResponse{
			UserID:          u.UserID,
			Total:           allocation(u.Total),
			CompletedVisits: u.CompletedVisits,
		})
	}
	slices.SortFunc(res.Users, func(a, b dto.UserTotalResponse) int { return strings.Compare(a.UserID, b.UserID) })

	for _, row := range services.Rows(s) {
		res.Rows = append(res.Rows, dto.ReportRowResponse{
			UserID:          row.UserID,
			Date:            row.Date.String(),
			Travel:          allocation(row.Travel),
			Work:            allocation(row.Work),
			Combined:        allocation(row.Combined),
			CompletedVisits: row.CompletedVisits,
		})
	}

	return res
}

func allocation(a domain.MinuteAllocation) dto.AllocationResponse {
	return dto.AllocationResponse{Total: a.Total, Normal: a.Normal, Overtime: a.Overtime}
}
