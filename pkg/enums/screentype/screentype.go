package screentype

import "strings"

type ScreenType struct {
	Name string
}

func (s ScreenType) Code() string {
	return s.Name
}

func (s ScreenType) Label() string {
	if len(s.Name) == 0 {
		return ""
	}
	return strings.ToUpper(s.Name[:1]) + s.Name[1:]
}

type Enum struct {
	Kitchen ScreenType
	Bar     ScreenType
}

var ScreenTypes = Enum{
	Kitchen: ScreenType{Name: "kitchen"},
	Bar:     ScreenType{Name: "bar"},
}

var All = []ScreenType{
	ScreenTypes.Kitchen,
	ScreenTypes.Bar,
}

// ByName returns the screen type for a given name, or nil if not found
func ByName(name string) *ScreenType {
	for _, s := range All {
		if s.Name == name {
			return &s
		}
	}
	return nil
}
