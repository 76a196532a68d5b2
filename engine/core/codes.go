package core

// Error codes from the orchestration engine's error taxonomy. These are
// surfaced to callers via Error.Code; none of them carry a stack trace.
const (
	CodeValidation          = "VALIDATION"
	CodeNoIntent            = "NO_INTENT"
	CodeInsufficientInputs  = "INSUFFICIENT_INPUTS"
	CodeNoWorkflowForIntent = "NO_WORKFLOW_FOR_INTENT"
	CodeUnsatisfiedInputs   = "UNSATISFIED_INPUTS"
	CodeAdaptationFailed    = "ADAPTATION_FAILED"
	CodeLLMStructuredParse  = "LLM_STRUCTURED_OUTPUT_PARSE"
	CodeEffectorTimeout     = "EFFECTOR_TIMEOUT"
	CodeEffectorTransient   = "EFFECTOR_TRANSIENT"
	CodeEffectorPermanent   = "EFFECTOR_PERMANENT"
	CodeWorkflowCycle       = "WORKFLOW_CYCLE"
	CodeDanglingEdge        = "DANGLING_EDGE"
)
