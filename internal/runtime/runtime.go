// Package runtime describes the execution context a coordinator instance
// runs in. Each isolated context constructs its own coordinator and bridge;
// nothing inspects ambient globals to find out where it is running.
package runtime

// Kind distinguishes the interactive context from the headless one.
type Kind int

const (
	// Foreground is the interactive context driven by a user interface.
	Foreground Kind = iota
	// Background is the headless context that keeps playback alive when no
	// interface is attached.
	Background
)

func (k Kind) String() string {
	switch k {
	case Foreground:
		return "foreground"
	case Background:
		return "background"
	default:
		return "unknown"
	}
}

// Context identifies one execution context. It is constructed once at
// bootstrap and passed explicitly to the coordinator and bridge.
type Context struct {
	Kind   Kind
	UserID string
}

func (c Context) String() string {
	return c.Kind.String()
}

// IsBackground reports whether this is the headless context.
func (c Context) IsBackground() bool {
	return c.Kind == Background
}
