package api

import (
	"time"

	"github.com/pavitrk/retirepipe/internal/retirement"
)

type RequestRetirementRequest struct {
	Username string `json:"username"`
}

type AbortRequest struct {
	Reason string `json:"reason"`
}

type ResponseEntry struct {
	State string    `json:"state"`
	Note  string    `json:"note"`
	At    time.Time `json:"at"`
}

type RecordResponse struct {
	ID               string          `json:"id"`
	UserID           string          `json:"userId"`
	OriginalUsername string          `json:"originalUsername"`
	OriginalEmail    string          `json:"originalEmail"`
	OriginalName     string          `json:"originalName"`
	RetiredUsername  string          `json:"retiredUsername,omitempty"`
	RetiredEmail     string          `json:"retiredEmail,omitempty"`
	CurrentState     string          `json:"currentState"`
	LastState        string          `json:"lastState"`
	Attempts         int             `json:"attempts"`
	Responses        []ResponseEntry `json:"responses,omitempty"`
	Created          time.Time       `json:"created"`
	Modified         time.Time       `json:"modified"`
}

type ListResponse struct {
	Items  []RecordResponse `json:"items"`
	Limit  int              `json:"limit"`
	Offset int              `json:"offset"`
}

type StatsResponse struct {
	Total    int `json:"total"`
	Pending  int `json:"pending"`
	Active   int `json:"active"`
	Errored  int `json:"errored"`
	Aborted  int `json:"aborted"`
	Complete int `json:"complete"`
}

// toRecordResponse serializes a record. The responses log can grow
// long, so list endpoints omit it and detail endpoints include it.
func toRecordResponse(rec retirement.Record, withResponses bool) RecordResponse {
	out := RecordResponse{
		ID:               rec.ID,
		UserID:           rec.UserID,
		OriginalUsername: rec.OriginalUsername,
		OriginalEmail:    rec.OriginalEmail,
		OriginalName:     rec.OriginalName,
		RetiredUsername:  rec.RetiredUsername,
		RetiredEmail:     rec.RetiredEmail,
		CurrentState:     rec.CurrentState,
		LastState:        rec.LastState,
		Attempts:         rec.Attempts,
		Created:          rec.Created,
		Modified:         rec.Modified,
	}
	if withResponses {
		for _, r := range rec.Responses {
			out.Responses = append(out.Responses, ResponseEntry{State: r.State, Note: r.Note, At: r.At})
		}
	}
	return out
}
