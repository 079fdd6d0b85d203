package orderstatus

import (
	"strings"
)

// Status is the kitchen progression of an order. Cancel is terminal.
type Status struct {
	Name string
	rank int
}

func (s Status) Code() string {
	return s.Name
}

func (s Status) Label() string {
	switch s.Name {
	case "draft":
		return "Cooking"
	case "waiting":
		return "Ready"
	case "ready":
		return "Completed"
	case "cancel":
		return "Cancelled"
	}
	if len(s.Name) == 0 {
		return ""
	}
	return strings.ToUpper(s.Name[:1]) + s.Name[1:]
}

// IsTerminal reports whether no further transitions are allowed.
func (s Status) IsTerminal() bool {
	return s.Name == Statuses.Cancel.Name
}

// CanTransitionTo allows forward moves along draft, waiting, ready and a cancel
// from any non-terminal status.
func (s Status) CanTransitionTo(next Status) bool {
	if s.IsTerminal() {
		return false
	}
	if next.Name == Statuses.Cancel.Name {
		return true
	}
	return next.rank > s.rank
}

type Enum struct {
	Draft   Status
	Waiting Status
	Ready   Status
	Cancel  Status
}

var Statuses = Enum{
	Draft:   Status{Name: "draft", rank: 1},
	Waiting: Status{Name: "waiting", rank: 2},
	Ready:   Status{Name: "ready", rank: 3},
	Cancel:  Status{Name: "cancel", rank: 0},
}

var All = []Status{
	Statuses.Draft,
	Statuses.Waiting,
	Statuses.Ready,
	Statuses.Cancel,
}

// ByName returns the status for a given name, or nil if not found
func ByName(name string) *Status {
	for _, s := range All {
		if s.Name == name {
			return &s
		}
	}
	return nil
}

// IsValid reports whether name is a known status code.
func IsValid(name string) bool {
	return ByName(name) != nil
}
