package model

type Location struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

// DeviceInfo is collected once per boot and sent with the registration.
type DeviceInfo struct {
	IPAddress    string    `json:"ipAddress"`
	DeviceType   string    `json:"deviceType"`
	OSName       string    `json:"osName"`
	OSVersion    string    `json:"osVersion"`
	Model        string    `json:"modelName"`
	TotalStorage uint64    `json:"totalStorage"`
	FreeStorage  uint64    `json:"freeStorage"`
	Location     *Location `json:"location"`
}

// DisplayName is the screen name proposed at registration.
func (d DeviceInfo) DisplayName() string {
	if d.OSName != "" && d.Model != "" {
		return d.OSName + " " + d.Model
	}
	return "Unknown Device"
}

// RegisterScreenRequest is the body of POST /screen/add-screen.
type RegisterScreenRequest struct {
	Name         string    `json:"name"`
	Identifier   string    `json:"identifier"`
	IsVirtual    bool      `json:"isVirtual"`
	IPAddress    string    `json:"ipAddress"`
	DeviceType   string    `json:"deviceType"`
	OSName       string    `json:"osName"`
	OSVersion    string    `json:"osVersion"`
	ModelName    string    `json:"modelName"`
	TotalStorage uint64    `json:"totalStorage"`
	FreeStorage  uint64    `json:"freeStorage"`
	Location     *Location `json:"location"`
	PairingCode  string    `json:"pairingCode"`
}
