package event

// Retries tracks a scenario's position in its retry budget.
type Retries struct {
	// Current is the attempt number, 0 for the first run.
	Current int
	// Left is how many further attempts remain.
	Left int
}

// InitialRetries returns the state before the first attempt of a scenario
// allowed left re-runs.
func InitialRetries(left int) Retries {
	return Retries{Current: 0, Left: left}
}

// Next returns the state for the following attempt. ok is false when the
// budget is exhausted.
func (r Retries) Next() (next Retries, ok bool) {
	if r.Left == 0 {
		return Retries{}, false
	}

	return Retries{Current: r.Current + 1, Left: r.Left - 1}, true
}
