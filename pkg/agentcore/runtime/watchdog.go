package runtime

// defaultNoOutputWatchdogMs computes the no-output watchdog period when
// a backend supplies no explicit override. Fresh runs get a window
// proportional to the total timeout, clamped to a sane range; resumes
// get a larger floor since server-side session hydration can be slow
// before the child produces its first byte.
func defaultNoOutputWatchdogMs(totalTimeoutMs int64, resume bool) int64 {
	if resume {
		return clamp(totalTimeoutMs, 300_000, 900_000)
	}
	return clamp(int64(float64(totalTimeoutMs)*0.8), 180_000, 600_000)
}

// resolveWatchdogMs applies backend overrides (if any), subject to a
// 1000ms floor, falling back to defaultNoOutputWatchdogMs otherwise.
func resolveWatchdogMs(totalTimeoutMs int64, resume bool, backend BackendConfig) int64 {
	override := backend.FreshNoOutputTimeoutMs
	if resume {
		override = backend.ResumeNoOutputTimeoutMs
	}
	if override > 0 {
		if override < 1000 {
			return 1000
		}
		return override
	}
	return defaultNoOutputWatchdogMs(totalTimeoutMs, resume)
}

func clamp(v, lo, hi int64) int64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
