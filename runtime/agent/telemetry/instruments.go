package telemetry

// Instrument names recorded by the orchestration loop. Centralizing them keeps
// dashboards and the runner in agreement.
const (
	// MetricSessionsStarted counts sessions created, without dimensions.
	MetricSessionsStarted = "aide.sessions.started"
	// MetricSessionsEnded counts terminal sessions, tagged by status.
	MetricSessionsEnded = "aide.sessions.ended"
	// MetricOracleDecide times each oracle decision.
	MetricOracleDecide = "aide.oracle.decide"
	// MetricToolLatency times each adapter invocation, tagged by tool.
	MetricToolLatency = "aide.tool.latency"
	// MetricToolRejected counts synthesized dispatch failures, tagged by reason.
	MetricToolRejected = "aide.tool.rejected"
)

// Span names emitted by the orchestration loop.
const (
	// SpanSessionRun covers one session from seed to terminal status.
	SpanSessionRun = "session.run"
	// SpanToolDispatch covers one adapter invocation.
	SpanToolDispatch = "tool.dispatch"
)
