package magnet

// InitialState reconciles persisted state against live hardware readings
// at process start (spec §4.2 "Initial state on process start"), grounded
// on sim960Agent.py's compute_initial_state. Any error resolving initial
// state, or a missing/malformed persisted-state file, resolves to
// Deramping — the unconditional safety sink.
func InitialState(path string, cap Capabilities, cfg Config) State {
	persisted, _, err := ReadPersistedState(path)
	if err != nil {
		return Deramping
	}

	closedLoop, err := cap.ReadPIDClosedLoop()
	if err != nil {
		return Deramping
	}
	if closedLoop {
		return Regulating
	}

	hsOpen, err := cap.ReadHeatswitch()
	if err != nil {
		return Deramping
	}

	switch persisted {
	case Soaking:
		current, err := cap.ReadCurrent()
		if err != nil {
			return Deramping
		}
		if current != cfg.SoakCurrentA {
			return Ramping
		}
		if hsOpen {
			return Deramping
		}
		return Soaking
	case HSClosing:
		if err := cap.CommandHeatswitchClose(); err != nil {
			return Deramping
		}
		return HSClosing
	case HSOpening:
		if err := cap.CommandHeatswitchOpen(); err != nil {
			return Deramping
		}
		return HSOpening
	case Ramping:
		if hsOpen {
			return Deramping
		}
		return Ramping
	case Cooling:
		if !hsOpen {
			return Deramping
		}
		return Cooling
	case Off:
		return Off
	case Deramping:
		return Deramping
	default:
		return Deramping
	}
}
