// Package wire holds the JSON shapes exchanged between the REST API and its
// clients.
package wire

import "time"

const (
	StageConfirm = 0
	StageTroll   = 11
	StageReveal  = 12
)

// Trolling phases, in sequence order.
const (
	PhaseError       = "error"
	PhaseLoading     = "loading"
	PhaseChallenge   = "challenge"
	PhaseWaitingReal = "waiting-real"
	PhaseAdminReview = "admin-review"
	PhaseApproved    = "approved"
)

var Phases = []string{PhaseError, PhaseLoading, PhaseChallenge, PhaseWaitingReal, PhaseAdminReview, PhaseApproved}

func ValidPhase(p string) bool {
	for _, known := range Phases {
		if p == known {
			return true
		}
	}
	return false
}

const (
	ChallengeNone     = "none"
	ChallengePending  = "pending"
	ChallengeApproved = "approved"
)

type StartSessionRequest struct {
	Fingerprint string `json:"fingerprint"`
}

type SessionStatus struct {
	SessionID       string    `json:"session_id"`
	CurrentStage    int       `json:"current_stage"`
	StartedAt       time.Time `json:"started_at"`
	ExpiresAt       time.Time `json:"expires_at"`
	Completed       bool      `json:"completed"`
	Expired         bool      `json:"expired"`
	ChallengeStatus string    `json:"challenge_status"`
	TrollingPhase   string    `json:"trolling_phase"`
}

type Puzzle struct {
	Stage       int          `json:"stage"`
	Type        string       `json:"type"`
	Title       string       `json:"title"`
	Description string       `json:"description"`
	PhotoURLs   []string     `json:"photo_urls,omitempty"`
	AudioURL    string       `json:"audio_url,omitempty"`
	Options     []string     `json:"options,omitempty"`
	ComplexData *ComplexData `json:"complex_data,omitempty"`
}

type ComplexData struct {
	PartA ComplexPartA `json:"part_a"`
	PartB ComplexPartB `json:"part_b"`
}

type ComplexPartA struct {
	Questions []ComplexQuestion `json:"questions"`
}

type ComplexQuestion struct {
	Text    string          `json:"text"`
	Options []ComplexOption `json:"options"`
}

type ComplexOption struct {
	Label    string `json:"label"`
	PhotoURL string `json:"photo_url"`
}

type ComplexPartB struct {
	Rounds []ComplexRound `json:"rounds"`
}

type ComplexRound struct {
	Instruction string   `json:"instruction"`
	GridURLs    []string `json:"grid_urls"`
}

type CaptchaData struct {
	Questions []CaptchaQuestion `json:"questions,omitempty"`
	PartA     *ComplexPartA     `json:"part_a,omitempty"`
	PartB     *ComplexPartB     `json:"part_b,omitempty"`
}

type CaptchaQuestion struct {
	Text    string   `json:"text"`
	Options []string `json:"options"`
}

type CheckRequest struct {
	SessionID string `json:"session_id"`
	Stage     int    `json:"stage"`
	Answer    string `json:"answer"`
}

type CheckResult struct {
	Correct   bool   `json:"correct"`
	Message   string `json:"message"`
	NextStage *int   `json:"next_stage,omitempty"`
}

type MediaURL struct {
	URL string `json:"url"`
}

type OK struct {
	OK bool `json:"ok"`
}

type ChallengeStatus struct {
	Status string `json:"status"`
}

type AdminSession struct {
	SessionID       string    `json:"session_id"`
	Fingerprint     string    `json:"fingerprint"`
	CurrentStage    int       `json:"current_stage"`
	StartedAt       time.Time `json:"started_at"`
	ExpiresAt       time.Time `json:"expires_at"`
	Completed       bool      `json:"completed"`
	Expired         bool      `json:"expired"`
	ChallengeStatus string    `json:"challenge_status"`
	TrollingPhase   string    `json:"trolling_phase"`
	IPAddress       string    `json:"ip_address"`
}

type AdminAttempt struct {
	ID        int64     `json:"id"`
	Stage     int       `json:"stage"`
	Answer    string    `json:"answer"`
	Correct   bool      `json:"correct"`
	CreatedAt time.Time `json:"created_at"`
}

type AdminSessionDetail struct {
	Session      AdminSession   `json:"session"`
	Attempts     []AdminAttempt `json:"attempts"`
	TotalCorrect int            `json:"total_correct"`
	TotalWrong   int            `json:"total_wrong"`
}

type ErrorBody struct {
	Detail string `json:"detail"`
}
