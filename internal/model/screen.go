package model

import "time"

// ScreenStatus is the health the device reports to the backend.
type ScreenStatus string

const (
	StatusOnline    ScreenStatus = "online"
	StatusOffline   ScreenStatus = "offline"
	StatusError     ScreenStatus = "error"
	StatusOutOfSync ScreenStatus = "out_of_sync"
)

// ContentVersionUnsynced marks a screen whose content has not been acknowledged yet.
const ContentVersionUnsynced = 0

// ContentVersionSynced is reported after every successful resolution pass.
const ContentVersionSynced = 1

// Screen represents this device's record on the backend.
type Screen struct {
	ID                int          `json:"id"`
	Identifier        string       `json:"identifier"`
	Name              string       `json:"name"`
	UserID            *int         `json:"userId"`
	Linked            bool         `json:"linked"`
	PairingCode       string       `json:"pairingCode"`
	BackgroundColor   string       `json:"backgroundColor"`
	ContentVersion    int          `json:"contentVersion"`
	Status            ScreenStatus `json:"status"`
	StatusDescription *string      `json:"statusDescription"`
	CreatedAt         *time.Time   `json:"createdAt,omitempty"`
	UpdatedAt         *time.Time   `json:"updatedAt,omitempty"`
}

// ScreenUpdate is the body of PATCH /screen/update-by-identifier. Nil fields are left alone.
type ScreenUpdate struct {
	Identifier        string        `json:"identifier"`
	Status            *ScreenStatus `json:"status,omitempty"`
	StatusDescription *string       `json:"statusDescription,omitempty"`
	ContentVersion    *int          `json:"contentVersion,omitempty"`
}

// ScreenAnalytics is posted whenever the device comes online.
type ScreenAnalytics struct {
	ScreenID string       `json:"screenId"`
	UserID   int          `json:"userId"`
	Status   ScreenStatus `json:"status"`
	Date     string       `json:"date"`
}
