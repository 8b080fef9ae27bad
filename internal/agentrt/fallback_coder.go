package agentrt

// NewFallbackCoderAgent returns the agent_kind the Fallback team routes to.
// It runs the identical merge-then-write algorithm as Coder; the distinct
// kind exists so the Fallback team's config overlay (forcing temperature=0
// on any upstream LLM-backed step) can target it independently of the
// primary team's coder without the two ever sharing a resolved
// configuration view.
func NewFallbackCoderAgent() *CoderAgent {
	return &CoderAgent{kind: "fallback_coder"}
}
