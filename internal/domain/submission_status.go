package domain

// SubmissionStatus is the state of a single order submission attempt.
type SubmissionStatus string

const (
	SubmissionIdle                SubmissionStatus = "IDLE"
	SubmissionValidatingShipping  SubmissionStatus = "VALIDATING_SHIPPING"
	SubmissionCapturingPayment    SubmissionStatus = "CAPTURING_PAYMENT"
	SubmissionCreatingOrderHeader SubmissionStatus = "CREATING_ORDER_HEADER"
	SubmissionCreatingOrderLines  SubmissionStatus = "CREATING_ORDER_LINES"
	SubmissionCompleted           SubmissionStatus = "COMPLETED"
	SubmissionFailed              SubmissionStatus = "FAILED"
)

var submissionTransitions = map[SubmissionStatus][]SubmissionStatus{
	SubmissionIdle:                {SubmissionValidatingShipping},
	SubmissionValidatingShipping:  {SubmissionCapturingPayment, SubmissionCreatingOrderHeader, SubmissionFailed},
	SubmissionCapturingPayment:    {SubmissionCreatingOrderHeader, SubmissionFailed},
	SubmissionCreatingOrderHeader: {SubmissionCreatingOrderLines, SubmissionCompleted, SubmissionFailed},
	SubmissionCreatingOrderLines:  {SubmissionCompleted, SubmissionFailed},
}

func (s SubmissionStatus) IsTerminal() bool {
	return s == SubmissionCompleted || s == SubmissionFailed
}

// String representation (for logging)
func (s SubmissionStatus) String() string {
	return string(s)
}

func CanTransitionTo(from, to SubmissionStatus) bool {
	for _, next := range submissionTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
