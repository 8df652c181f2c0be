package httpapi

import "net/http"

type healthResponse struct {
	Status string `json:"status"`
	DB     string `json:"db"`
}

// health reports process liveness plus a store round-trip: a DB that can't
// be pinged is reported as db "unreachable" while status stays "ok" and the
// response is still a 200, since the process itself is up and able to answer.
func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok", DB: "ok"}
	if db := s.store.UnderlyingDB(); db != nil {
		if err := db.PingContext(r.Context()); err != nil {
			resp.DB = "unreachable"
		}
	}
	writeJSON(w, r, http.StatusOK, resp)
}
