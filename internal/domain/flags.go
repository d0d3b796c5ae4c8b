package domain

// FrequencyBandCount is the fixed length of the visualization band array.
const FrequencyBandCount = 8

// SessionFlags is the derived state the UI renders from. Only the session
// machine writes these; consumers get copies through events or snapshots.
type SessionFlags struct {
	Started        bool
	Loading        bool
	Inactive       bool
	MicLevel       float64
	FrequencyBands []float64
	CamOn          bool
	MicOn          bool
	RemoteCamOn    bool
	RemoteMuted    bool
}

// NewSessionFlags returns the idle-state defaults.
func NewSessionFlags() SessionFlags {
	return SessionFlags{
		FrequencyBands: make([]float64, FrequencyBandCount),
		CamOn:          true,
		MicOn:          true,
	}
}

// Clone returns a copy safe to hand outside the session loop.
func (f SessionFlags) Clone() SessionFlags {
	out := f
	out.FrequencyBands = make([]float64, len(f.FrequencyBands))
	copy(out.FrequencyBands, f.FrequencyBands)
	return out
}

// PiPState tracks picture-in-picture on both sides of the call.
type PiPState struct {
	Visible      bool
	PartnerInPiP bool
}
