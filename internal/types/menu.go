package types

// MenuState is the readiness marker for today's menu.
type MenuState int

const (
	MenuNotLoaded MenuState = iota
	MenuLoaded
	MenuFailed
)

var menuStateText = map[MenuState]string{
	MenuNotLoaded: "not_loaded",
	MenuLoaded:    "loaded",
	MenuFailed:    "failed",
}

func (s MenuState) String() string {
	if t, ok := menuStateText[s]; ok {
		return t
	}
	return "unknown"
}
