package models

import "fmt"

// Location is a WGS84 coordinate pair as reported by the device.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Session is the authenticated driver as returned by the coordination server.
// At most one Session exists per client at a time.
type Session struct {
	UserName         string   `json:"userName"`
	CredentialSecret string   `json:"secret,omitempty"`
	Status           string   `json:"status"`
	Location         Location `json:"location"`
	// Token is the signed session token issued on authenticate, if any.
	Token string `json:"token,omitempty"`
}

// String never prints the credential secret or token.
func (s Session) String() string {
	return fmt.Sprintf("Session{UserName: %s, Status: %s, Location: (%.6f, %.6f)}",
		s.UserName, s.Status, s.Location.Latitude, s.Location.Longitude)
}
