package store

// SessionFilter narrows ListSessions. Zero values mean "no filter".
type SessionFilter struct {
	DeviceID string
	Limit    int
}

// Counts holds record totals for the stats endpoint.
type Counts struct {
	Devices         int64 `json:"devices"`
	OccupiedDevices int64 `json:"occupied_devices"`
	Snacks          int64 `json:"snacks"`
	Orders          int64 `json:"orders"`
	Sessions        int64 `json:"sessions"`
	Subscriptions   int64 `json:"subscriptions"`
}
