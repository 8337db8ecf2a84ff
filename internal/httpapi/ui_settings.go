package httpapi

import "net/http"

type uiSettingsResponse struct {
	Title        string   `json:"title"`
	Welcome      string   `json:"welcome"`
	Suggestions  []string `json:"suggestions"`
	SubmitPolicy string   `json:"submit_policy"`
}

func (s *Server) handleUISettings(w http.ResponseWriter, _ *http.Request) {
	suggestions := s.opts.UI.Suggestions
	if suggestions == nil {
		suggestions = []string{}
	}
	respondJSON(w, http.StatusOK, uiSettingsResponse{
		Title:        s.opts.UI.Title,
		Welcome:      s.opts.UI.Welcome,
		Suggestions:  suggestions,
		SubmitPolicy: string(s.cfg.SubmitPolicy),
	})
}
