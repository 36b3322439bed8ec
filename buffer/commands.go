package buffer

import "arcwelder/gcode"

// UnwrittenCommand pairs a parsed command with the raw line it came from
// and the extruder offset in effect when it arrived. The welder needs
// all three to flush verbatim if the candidate arc is eventually
// aborted.
type UnwrittenCommand struct {
	// Raw is the original line text, including any trailing comment.
	Raw string

	// Command is the parsed form, nil for a blank/comment-only line.
	Command *gcode.Command

	// ExtruderOffsetE is the absolute E position in effect when this line
	// arrived, used to recompute a relative E delta on flush if needed.
	ExtruderOffsetE float64
}

// Commands is a bounded FIFO of UnwrittenCommand, kept in lockstep with a
// Points buffer: each buffered non-anchor geometry.Point has a
// corresponding UnwrittenCommand holding the line it was derived from.
type Commands struct {
	items    []UnwrittenCommand
	capacity int
}

// NewCommands creates a command buffer bounded to capacity entries.
func NewCommands(capacity int) *Commands {
	return &Commands{
		items:    make([]UnwrittenCommand, 0, capacity),
		capacity: capacity,
	}
}

// Count returns the number of commands currently buffered.
func (c *Commands) Count() int { return len(c.items) }

// Full reports whether the buffer is at capacity.
func (c *Commands) Full() bool { return len(c.items) >= c.capacity }

// Append adds a command to the end of the buffer. It returns false without
// modifying the buffer if the buffer is already full.
func (c *Commands) Append(uc UnwrittenCommand) bool {
	if c.Full() {
		return false
	}
	c.items = append(c.items, uc)
	return true
}

// PopFront removes and returns the oldest buffered command.
func (c *Commands) PopFront() (UnwrittenCommand, bool) {
	if len(c.items) == 0 {
		return UnwrittenCommand{}, false
	}
	uc := c.items[0]
	c.items = c.items[1:]
	return uc, true
}

// Drain removes and returns every buffered command in arrival order,
// leaving the buffer empty. Used on abort, to flush the buffered raw lines
// verbatim.
func (c *Commands) Drain() []UnwrittenCommand {
	out := c.items
	c.items = make([]UnwrittenCommand, 0, c.capacity)
	return out
}

// Reset clears the buffer, optionally re-seeding it with the single
// command that anchors the next candidate arc (the committed arc's
// endpoint command).
func (c *Commands) Reset(anchor *UnwrittenCommand) {
	c.items = c.items[:0]
	if anchor != nil {
		c.items = append(c.items, *anchor)
	}
}
