package http

import (
	"net/http"
	"time"

	"childminder/internal/core"
	applog "childminder/internal/log"
)

type editRecordRequest struct {
	StartTime time.Time  `json:"startTime"`
	EndTime   *time.Time `json:"endTime"`
}

type statusResponse struct {
	ChildID string                 `json:"childId"`
	Day     string                 `json:"day"`
	Status  core.Status            `json:"status"`
	Record  *core.AttendanceRecord `json:"record"`
}

func (s *Server) handleListAttendance(w http.ResponseWriter, r *http.Request) {
	records, err := s.deps.Attendance.ListRecords(r.Context(), r.URL.Query().Get("childId"))
	if err != nil {
		writeServiceError(w, r, err, "failed to list attendance")
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *Server) handleChildStatus(w http.ResponseWriter, r *http.Request) {
	childID := r.PathValue("id")
	_, outcome, err := s.deps.Children.GetChild(r.Context(), childID)
	if err != nil {
		writeServiceError(w, r, err, "failed to load child")
		return
	}
	if outcome == core.OutcomeNotFound {
		writeError(w, r, http.StatusNotFound, "child not found")
		return
	}

	day := s.deps.Now()
	if v := r.URL.Query().Get("day"); v != "" {
		parsed, err := time.ParseInLocation(core.DayLayout, v, s.deps.Attendance.Location())
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "day must be YYYY-MM-DD")
			return
		}
		day = parsed
	}

	status, rec, err := s.deps.Attendance.Status(r.Context(), childID, day)
	if err != nil {
		writeServiceError(w, r, err, "failed to derive status")
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{
		ChildID: childID,
		Day:     core.DayKey(day, s.deps.Attendance.Location()),
		Status:  status,
		Record:  rec,
	})
}

func (s *Server) handleCheckIn(w http.ResponseWriter, r *http.Request) {
	childID := r.PathValue("id")
	rec, outcome, err := s.deps.Attendance.CheckIn(r.Context(), childID)
	if err != nil {
		writeServiceError(w, r, err, "failed to check in")
		return
	}
	s.structured.LogAttendance(r.Context(), applog.OpCheckIn, childID, rec.ID, outcome.String())
	if outcome.Applied() {
		s.invalidate()
	}
	writeOutcome(w, r, outcome, http.StatusCreated, rec)
}

func (s *Server) handleCheckOut(w http.ResponseWriter, r *http.Request) {
	childID := r.PathValue("id")
	rec, outcome, err := s.deps.Attendance.CheckOut(r.Context(), childID)
	if err != nil {
		writeServiceError(w, r, err, "failed to check out")
		return
	}
	s.structured.LogAttendance(r.Context(), applog.OpCheckOut, childID, rec.ID, outcome.String())
	if outcome.Applied() {
		s.invalidate()
	}
	writeOutcome(w, r, outcome, http.StatusOK, rec)
}

func (s *Server) handleEditRecord(w http.ResponseWriter, r *http.Request) {
	var req editRecordRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if req.StartTime.IsZero() {
		writeError(w, r, http.StatusUnprocessableEntity, "startTime is required")
		return
	}

	recordID := r.PathValue("id")
	rec, outcome, err := s.deps.Attendance.EditRecord(r.Context(), recordID, req.StartTime, req.EndTime)
	if err != nil {
		writeServiceError(w, r, err, "failed to edit record")
		return
	}
	s.structured.LogAttendance(r.Context(), applog.OpEdit, rec.ChildID, recordID, outcome.String())
	if outcome.Applied() {
		s.invalidate()
	}
	writeOutcome(w, r, outcome, http.StatusOK, rec)
}

func (s *Server) handleDeleteRecord(w http.ResponseWriter, r *http.Request) {
	recordID := r.PathValue("id")
	outcome, err := s.deps.Attendance.DeleteRecord(r.Context(), recordID)
	if err != nil {
		writeServiceError(w, r, err, "failed to delete record")
		return
	}
	s.structured.LogAttendance(r.Context(), applog.OpDelete, "", recordID, outcome.String())
	if outcome.Applied() {
		s.invalidate()
	}
	writeOutcome(w, r, outcome, http.StatusOK, nil)
}

func (s *Server) handleMarkAbsent(w http.ResponseWriter, r *http.Request) {
	recordID := r.PathValue("id")
	outcome, err := s.deps.Attendance.MarkAbsent(r.Context(), recordID)
	if err != nil {
		writeServiceError(w, r, err, "failed to mark absent")
		return
	}
	s.structured.LogAttendance(r.Context(), applog.OpMarkAbsent, "", recordID, outcome.String())
	if outcome.Applied() {
		s.invalidate()
	}
	writeOutcome(w, r, outcome, http.StatusOK, nil)
}

func (s *Server) handleReconcile(w http.ResponseWriter, r *http.Request) {
	created, err := s.deps.Reconciler.Reconcile(r.Context(), s.deps.Now())
	if err != nil {
		writeServiceError(w, r, err, "failed to reconcile")
		return
	}
	outcome := core.OutcomeNoOp
	if created > 0 {
		outcome = core.OutcomeOK
		s.invalidate()
	}
	s.structured.LogAttendance(r.Context(), applog.OpReconcile, "", "", outcome.String())
	writeJSON(w, http.StatusOK, map[string]int{"created": created})
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	d, err := s.deps.Attendance.Dashboard(r.Context())
	if err != nil {
		writeServiceError(w, r, err, "failed to build dashboard")
		return
	}
	if d.Materialized > 0 {
		s.invalidate()
	}
	writeJSON(w, http.StatusOK, d)
}
