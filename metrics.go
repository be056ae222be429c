package authsession

// MetricsRecorder receives engine counters. The metrics package ships a
// prometheus backed implementation.
type MetricsRecorder interface {
	SessionPublished(state State)
	GuardEvaluated(guard string, allowed bool)
	AuthorizationFailure(handled bool)
	OperationFailed(operation, textCode string)
}

type noopMetrics struct{}

func (noopMetrics) SessionPublished(State)         {}
func (noopMetrics) GuardEvaluated(string, bool)    {}
func (noopMetrics) AuthorizationFailure(bool)      {}
func (noopMetrics) OperationFailed(string, string) {}

func normalizeMetrics(m MetricsRecorder) MetricsRecorder {
	if m == nil {
		return noopMetrics{}
	}
	return m
}
