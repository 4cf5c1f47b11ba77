package session

// Step is the workflow position of a scan session
type Step int

const (
	StepIdentifyStaff Step = iota
	StepConfirmIdentity
	StepReviewPages
	StepDone
)

func (s Step) String() string {
	switch s {
	case StepIdentifyStaff:
		return "identify-staff"
	case StepConfirmIdentity:
		return "confirm-identity"
	case StepReviewPages:
		return "review-pages"
	case StepDone:
		return "done"
	default:
		return "unknown"
	}
}

// Label is the staff-facing step title
func (s Step) Label() string {
	switch s {
	case StepIdentifyStaff:
		return "員工登入"
	case StepConfirmIdentity:
		return "健保卡辨識"
	case StepReviewPages:
		return "掃描手冊頁面"
	case StepDone:
		return "完成"
	default:
		return ""
	}
}
