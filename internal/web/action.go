package web

import "fmt"

// Action is what a submission of the edit form asks for.
type Action int

const (
	ActionEdit Action = iota
	ActionDelete
)

func (a Action) String() string {
	switch a {
	case ActionDelete:
		return "delete"
	default:
		return "edit"
	}
}

// ParseAction reads the form's action field. A missing value means edit;
// anything else that is not "edit" or "delete" is rejected.
func ParseAction(v string) (Action, error) {
	switch v {
	case "", "edit":
		return ActionEdit, nil
	case "delete":
		return ActionDelete, nil
	default:
		return 0, fmt.Errorf("unknown action %q", v)
	}
}
