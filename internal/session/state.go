package session

// DeviceIdentity is the managed array resolved at login. All resource
// paths are scoped under StorageDeviceID until logout.
type DeviceIdentity struct {
	StorageDeviceID string `json:"storageDeviceId"`
	Model           string `json:"model"`
	SerialNumber    string `json:"serialNumber"`
}

// state is guarded by Manager.mu.
type state struct {
	transport  Transport
	sealed     map[string]string
	sessionID  string
	device     *DeviceIdentity
	generation uint64
}

// Snapshot is a copy of the session state for inspection. Header values
// and the session id are in sealed form.
type Snapshot struct {
	Open            bool
	SealedHeaders   map[string]string
	SealedSessionID string
	Device          *DeviceIdentity
	Generation      uint64
}

func (s *state) snapshot() Snapshot {
	headers := make(map[string]string, len(s.sealed))
	for k, v := range s.sealed {
		headers[k] = v
	}

	snap := Snapshot{
		Open:            s.transport != nil,
		SealedHeaders:   headers,
		SealedSessionID: s.sessionID,
		Generation:      s.generation,
	}
	if s.device != nil {
		d := *s.device
		snap.Device = &d
	}
	return snap
}
