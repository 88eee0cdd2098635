package types

// Exchange is one question/answer pair from a gathering session. The
// transcript built from these is local to one gathering run and is never
// shared between task graphs.
type Exchange struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}
