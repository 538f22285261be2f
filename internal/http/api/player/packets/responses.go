package packets

// RESPONSES FOR /api/player/*

type HealthResponse struct {
	Status   string `json:"status"`
	DeviceID string `json:"deviceId"`
}

type AcceptedResponse struct {
	Accepted bool `json:"accepted"`
}

type RefreshResponse struct {
	MediaID int    `json:"mediaId"`
	Path    string `json:"path"`
}
