package signal

import (
	"strconv"
	"strings"
)

// Action is the closed set of things a button press can mean. Adding a stage
// means adding a constant here and extending the engine's switch.
type Action int

const (
	ActionUnknown Action = iota
	ActionOpen
	ActionIgnore
	ActionAccept
	ActionDeclineAccept
	ActionRegister
)

var actionNames = map[Action]string{
	ActionOpen:          "open",
	ActionIgnore:        "ignore",
	ActionAccept:        "accept",
	ActionDeclineAccept: "decline_accept",
	ActionRegister:      "register",
}

var actionsByName = map[string]Action{
	"open":           ActionOpen,
	"ignore":         ActionIgnore,
	"accept":         ActionAccept,
	"decline_accept": ActionDeclineAccept,
	"register":       ActionRegister,
}

func (a Action) String() string {
	if name, ok := actionNames[a]; ok {
		return name
	}
	return "unknown"
}

// Token correlates a button press with a stage. The correlation id is the id
// of an earlier sent message, used only for cleanup; it is advisory and a
// malformed suffix never invalidates the action.
type Token struct {
	Action      Action
	Correlation int
}

// ParseToken decodes "<action>" or "<action>:<correlation-id>". A suffix that
// does not parse as an integer is ignored, not an error.
func ParseToken(raw string) Token {
	action := raw
	correlation := 0
	if idx := strings.IndexByte(raw, ':'); idx >= 0 {
		action = raw[:idx]
		if id, err := strconv.Atoi(raw[idx+1:]); err == nil {
			correlation = id
		}
	}
	return Token{Action: actionsByName[action], Correlation: correlation}
}

// FormatToken is the inverse of ParseToken; a zero correlation id produces
// the bare action form.
func FormatToken(action Action, correlation int) string {
	if correlation == 0 {
		return action.String()
	}
	return action.String() + ":" + strconv.Itoa(correlation)
}

func (t Token) String() string {
	return FormatToken(t.Action, t.Correlation)
}
