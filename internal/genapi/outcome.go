package genapi

import "genbot/internal/domain"

// OutcomeKind classifies the terminal state of a generation attempt.
type OutcomeKind string

const (
	OutcomeCompleted OutcomeKind = "completed"
	OutcomeBlocked   OutcomeKind = "blocked"
	OutcomeFailed    OutcomeKind = "failed"
	OutcomeCanceled  OutcomeKind = "canceled"
	OutcomeTimedOut  OutcomeKind = "timed_out"
)

// Outcome carries the terminal result of AwaitCompletion. Payload holds the
// final status body for Completed outcomes; Err holds the matching domain
// sentinel otherwise.
type Outcome struct {
	Kind    OutcomeKind
	Payload map[string]any
	Err     error
}

// ResultURL extracts the generated image URL from a Completed payload.
func (o Outcome) ResultURL() (string, error) {
	if o.Kind != OutcomeCompleted {
		if o.Err != nil {
			return "", o.Err
		}
		return "", domain.ErrGenerationFailed
	}
	url, ok := ExtractResultURL(o.Payload)
	if !ok {
		return "", domain.ErrResultShapeUnrecognized
	}
	return url, nil
}

func completedOutcome(payload map[string]any) Outcome {
	return Outcome{Kind: OutcomeCompleted, Payload: payload}
}
