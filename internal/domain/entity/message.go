package entity

import (
	"time"

	"github.com/google/uuid"
)

// RunRequestMessage is the inbound message from the flight.analysis queue.
// VideoPath must be readable by the worker (shared spool volume).
type RunRequestMessage struct {
	RequestID   uuid.UUID `json:"request_id"`
	DisplayName string    `json:"display_name"`
	VideoPath   string    `json:"video_path"`
}

// RunStatusMessage is the outbound message published on every state transition.
type RunStatusMessage struct {
	EventID      uuid.UUID `json:"event_id"`
	RunID        string    `json:"run_id"`
	DisplayName  string    `json:"display_name"`
	State        RunState  `json:"state"`
	Points       int       `json:"points"`
	PlotStored   bool      `json:"plot_stored"`
	Warnings     []string  `json:"warnings,omitempty"`
	ErrorMessage string    `json:"error_message,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

func NewRunStatusMessage(st RunStatus) RunStatusMessage {
	msg := RunStatusMessage{
		EventID:     uuid.New(),
		RunID:       st.RunID,
		DisplayName: st.DisplayName,
		State:       st.State,
		Points:      st.Points,
		PlotStored:  st.PlotStored,
		Warnings:    st.Warnings,
		Timestamp:   st.UpdatedAt.UTC(),
	}
	if st.Err != nil {
		msg.ErrorMessage = st.Err.Error()
	}
	return msg
}
