package http

import (
	"errors"
	"net/http"

	"childminder/internal/assistant"
)

func (s *Server) handleListTools(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"tools": s.deps.Tools.Names()})
}

// handleAssistantTool runs one voice-assistant tool call. The body carries
// the spoken name and may be empty for tools that take no argument.
func (s *Server) handleAssistantTool(w http.ResponseWriter, r *http.Request) {
	var args assistant.Args
	if err := decodeJSON(w, r, &args, true); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	res, err := s.deps.Tools.Execute(r.Context(), r.PathValue("tool"), args)
	if errors.Is(err, assistant.ErrUnknownTool) {
		writeError(w, r, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		writeServiceError(w, r, err, "assistant tool failed")
		return
	}
	if res.RequiresReload {
		s.invalidate()
	}
	writeJSON(w, http.StatusOK, res)
}
