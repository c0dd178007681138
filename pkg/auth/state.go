package auth

import "context"

// State is a step of the login state machine.
type State int

const (
	StateStart State = iota
	StateIdentifierEntered
	StateChallengeRequested
	StateCodeEntered
	StateSubmitted
	StateVerified
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateStart:
		return "start"
	case StateIdentifierEntered:
		return "identifier-entered"
	case StateChallengeRequested:
		return "challenge-requested"
	case StateCodeEntered:
		return "code-entered"
	case StateSubmitted:
		return "submitted"
	case StateVerified:
		return "verified"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateVerified || s == StateFailed
}

// Outcome of a one-time-code challenge.
type Outcome int

const (
	OutcomePending Outcome = iota
	OutcomeVerified
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeVerified:
		return "verified"
	case OutcomeFailed:
		return "failed"
	default:
		return "pending"
	}
}

// Challenge is one one-time-code login attempt.
type Challenge struct {
	Identifier string
	Code       string
	Outcome    Outcome
}

// CodeSource supplies the one-time code sent out of band. RequestCode may
// block for as long as the operator needs; only ctx bounds it.
type CodeSource interface {
	RequestCode(ctx context.Context, challenge Challenge) (string, error)
}

// CodeSourceFunc adapts a function to CodeSource.
type CodeSourceFunc func(ctx context.Context, challenge Challenge) (string, error)

func (f CodeSourceFunc) RequestCode(ctx context.Context, challenge Challenge) (string, error) {
	return f(ctx, challenge)
}

// StaticCode returns a CodeSource that always supplies code.
func StaticCode(code string) CodeSource {
	return CodeSourceFunc(func(context.Context, Challenge) (string, error) {
		return code, nil
	})
}

// Result is the final report of a login attempt.
type Result struct {
	State     State
	Challenge Challenge
	History   []State

	// Err is the cause of a failed login, nil when verified
	Err error
}

// Verified reports whether the session ended authenticated.
func (r Result) Verified() bool {
	return r.State == StateVerified
}
