package model

import "fmt"

// Diagnostic is the general / technical / code triple shown on the error view
// and mirrored to the backend as the screen's status description.
type Diagnostic struct {
	General   string `json:"generalError,omitempty"`
	Technical string `json:"technicalError,omitempty"`
	Code      string `json:"errorCode,omitempty"`
	MediaID   *int   `json:"mediaId,omitempty"`
}

// Empty is true when there is no outstanding error.
func (d Diagnostic) Empty() bool {
	return d.General == "" && d.Technical == "" && d.Code == ""
}

// Complete is true when all three fields are set, the condition for the blocking error view.
func (d Diagnostic) Complete() bool {
	return d.General != "" && d.Technical != "" && d.Code != ""
}

// Message prefers the general message over the technical one.
func (d Diagnostic) Message() string {
	if d.General != "" {
		return d.General
	}
	return d.Technical
}

// StatusDescription formats the diagnostic the way the dashboard lists it.
func (d Diagnostic) StatusDescription() string {
	return fmt.Sprintf("[%s] %s", d.Code, d.General)
}
