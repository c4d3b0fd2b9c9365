package domain

// Ping is a single observation of a device inside a zone.
// Timestamp is in epoch seconds.
type Ping struct {
	DeviceID  string
	ZoneID    string
	Timestamp int64
}
