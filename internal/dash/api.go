package dash

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/lgipm/remanet-dash/internal/audio"
	"github.com/lgipm/remanet-dash/internal/logging"
	"github.com/lgipm/remanet-dash/internal/stream"
)

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.session.Snapshot())
}

type filterRequest struct {
	Date *string `json:"date"`
}

// handleFilter switches between real-time and historical mode. A null
// date returns to real-time.
func (s *Server) handleFilter(w http.ResponseWriter, r *http.Request) {
	var req filterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Date == nil {
		s.session.SetFilter(nil)
		writeJSON(w, http.StatusOK, s.session.Snapshot())
		return
	}
	day, err := time.Parse("2006-01-02", *req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}
	s.session.SetFilter(&day)
	writeJSON(w, http.StatusOK, s.session.Snapshot())
}

func (s *Server) handleReconnect(w http.ResponseWriter, r *http.Request) {
	s.session.Reconnect()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "reconnecting"})
}

func (s *Server) handleDismissToast(w http.ResponseWriter, r *http.Request) {
	s.session.DismissToast()
	writeJSON(w, http.StatusOK, s.session.Snapshot())
}

type spectrumResponse struct {
	Mic        string      `json:"mic"`
	Timestamp  string      `json:"timestamp"`
	SampleRate float64     `json:"sampleRate"`
	Bins       []audio.Bin `json:"bins"`
}

// handleSpectrum computes the frequency spectrum of the most recent
// batch from one microphone.
func (s *Server) handleSpectrum(w http.ResponseWriter, r *http.Request) {
	snap := s.session.Snapshot()
	var batches []stream.MicSample
	mic := mux.Vars(r)["mic"]
	if mic == "0" {
		batches = snap.Mic0
	} else {
		batches = snap.Mic1
	}
	if len(batches) == 0 {
		writeError(w, http.StatusNotFound, "no microphone data yet")
		return
	}

	latest := batches[len(batches)-1]
	samples, err := audio.DecodeSamples(latest.Data)
	if err != nil {
		s.log.Warn("mic payload", logging.F("mic", mic), logging.F("err", err))
		writeError(w, http.StatusUnprocessableEntity, "microphone payload is not decodable")
		return
	}

	writeJSON(w, http.StatusOK, spectrumResponse{
		Mic:        "micro_" + mic,
		Timestamp:  latest.Timestamp,
		SampleRate: audio.DefaultSampleRate,
		Bins:       audio.Spectrum(samples, audio.DefaultSampleRate),
	})
}
