package scanner

// State is the scan session lifecycle position.
type State int32

const (
	StateIdle State = iota
	StateSettingParams
	StateScanning
	StateEnding
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSettingParams:
		return "setting_params"
	case StateScanning:
		return "scanning"
	case StateEnding:
		return "ending"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}
