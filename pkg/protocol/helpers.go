package protocol

// =============================================================================
// Helper functions for creating messages
// =============================================================================

// NewNamesMessage creates a tracker names message
func NewNamesMessage(names []string) (*Message, error) {
	if names == nil {
		names = []string{}
	}
	return NewMessage(TypeNames, NamesData{Names: names})
}

// NewFrameMessage creates a tracked frame message
func NewFrameMessage(seq uint64, values []float64, x, y, z, w float64) (*Message, error) {
	if values == nil {
		values = []float64{}
	}
	return NewMessage(TypeFrame, FrameData{
		Seq:      seq,
		Values:   values,
		Rotation: [4]float64{x, y, z, w},
	})
}

// NewLostMessage creates a lost frame message
func NewLostMessage(seq uint64) (*Message, error) {
	return NewMessage(TypeLost, LostData{Seq: seq})
}

// NewControlMessage creates a tracker control message
func NewControlMessage(action string) (*Message, error) {
	return NewMessage(TypeControl, ControlData{Action: action})
}

// NewActivateMessage creates an activation message
func NewActivateMessage(activated bool) (*Message, error) {
	return NewMessage(TypeActivate, ActivateData{Activated: activated})
}

// NewBlendshapeNamesMessage creates a host names message
func NewBlendshapeNamesMessage(names []string) (*Message, error) {
	if names == nil {
		names = []string{}
	}
	return NewMessage(TypeBlendshapeNames, NamesData{Names: names})
}

// NewBlendshapeValuesMessage creates a host values message.
// Nil values encode as an empty array, never null.
func NewBlendshapeValuesMessage(values []float64) (*Message, error) {
	if values == nil {
		values = []float64{}
	}
	return NewMessage(TypeBlendshapeValues, ValuesData{Values: values})
}

// NewHeadRotationMessage creates a host head rotation message
func NewHeadRotationMessage(x, y, z, w float64) (*Message, error) {
	return NewMessage(TypeHeadRotation, RotationData{X: x, Y: y, Z: z, W: w})
}

// NewTrackerStateMessage creates a lifecycle state message
func NewTrackerStateMessage(state string) (*Message, error) {
	return NewMessage(TypeTrackerState, TrackerStateData{State: state})
}

// NewPingMessage creates a ping message
func NewPingMessage(id string) (*Message, error) {
	return NewMessage(TypePing, PingData{
		ID:        id,
		Timestamp: 0, // Will be set by NewMessage
	})
}

// NewPongMessage creates a pong response message
func NewPongMessage(id string, pingTS, pongTS int64) (*Message, error) {
	return NewMessage(TypePong, PongData{
		ID:        id,
		PingTS:    pingTS,
		PongTS:    pongTS,
		LatencyMs: pongTS - pingTS,
	})
}

// =============================================================================
// Helper functions for parsing messages
// =============================================================================

// GetNamesData extracts names from a names or blendshape_names message
func (m *Message) GetNamesData() (*NamesData, error) {
	var data NamesData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetFrameData extracts frame data from a message
func (m *Message) GetFrameData() (*FrameData, error) {
	var data FrameData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetLostData extracts lost frame data from a message
func (m *Message) GetLostData() (*LostData, error) {
	var data LostData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetControlData extracts a control action from a message
func (m *Message) GetControlData() (*ControlData, error) {
	var data ControlData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetActivateData extracts activation data from a message
func (m *Message) GetActivateData() (*ActivateData, error) {
	var data ActivateData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetValuesData extracts blendshape values from a message
func (m *Message) GetValuesData() (*ValuesData, error) {
	var data ValuesData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetRotationData extracts head rotation from a message
func (m *Message) GetRotationData() (*RotationData, error) {
	var data RotationData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetTrackerStateData extracts lifecycle state from a message
func (m *Message) GetTrackerStateData() (*TrackerStateData, error) {
	var data TrackerStateData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetPingData extracts ping data from a message
func (m *Message) GetPingData() (*PingData, error) {
	var data PingData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetPongData extracts pong data from a message
func (m *Message) GetPongData() (*PongData, error) {
	var data PongData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}
