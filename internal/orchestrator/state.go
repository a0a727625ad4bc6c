package orchestrator

// State is one stage of the completion state machine (spec.md §4.8).
type State string

const (
	StateAccepted       State = "accepted"
	StatePrepared       State = "prepared"
	StateStreaming      State = "streaming"
	StateDraining       State = "draining"
	StateCommitting     State = "committing"
	StateDone           State = "done"
	StateRejectedLimit  State = "rejected_limit"
	StateRejectedInput  State = "rejected_input"
	StateUpstreamFailed State = "upstream_failed"
	StateClientGone     State = "client_gone"
	StateInternalError  State = "internal_error"
)
