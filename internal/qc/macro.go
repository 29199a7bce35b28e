package qc

// Macro is a parameterized text block captured by $definemacro. The body is
// stored verbatim, directives included; it is processed only at expansion.
type Macro struct {
	Name   string
	Params []string
	Body   []string
}

// condFrame tracks one level of $if/$elif/$else/$endif nesting. A frame is
// active only while all enclosing frames are active; once a branch fires,
// later branches in the same frame stay inactive without being evaluated.
type condFrame struct {
	parentActive bool
	taken        bool
	active       bool
}

type condStack struct {
	frames []condFrame
}

func (c *condStack) Active() bool {
	if len(c.frames) == 0 {
		return true
	}
	return c.frames[len(c.frames)-1].active
}

func (c *condStack) Depth() int { return len(c.frames) }

func (c *condStack) Push(cond bool) {
	parent := c.Active()
	active := parent && cond
	c.frames = append(c.frames, condFrame{
		parentActive: parent,
		taken:        active,
		active:       active,
	})
}

// Elif flips to a new branch. cond is evaluated lazily so dead branches never
// touch possibly-undefined variables.
func (c *condStack) Elif(cond func() bool) bool {
	if len(c.frames) == 0 {
		return false
	}
	top := &c.frames[len(c.frames)-1]
	if !top.parentActive || top.taken {
		top.active = false
		return true
	}
	top.active = cond()
	top.taken = top.active
	return true
}

func (c *condStack) Else() bool {
	if len(c.frames) == 0 {
		return false
	}
	top := &c.frames[len(c.frames)-1]
	top.active = top.parentActive && !top.taken
	top.taken = true
	return true
}

func (c *condStack) Pop() bool {
	if len(c.frames) == 0 {
		return false
	}
	c.frames = c.frames[:len(c.frames)-1]
	return true
}
