package grading

// Verdict is the outcome of checking one submitted answer.
type Verdict struct {
	Correct bool
	Message string
}

// CompositeAnswer is the JSON body submitted for complex captchas.
// PartA holds one option index per question, PartB one index set per round.
type CompositeAnswer struct {
	PartA []int   `json:"part_a"`
	PartB [][]int `json:"part_b"`
}
