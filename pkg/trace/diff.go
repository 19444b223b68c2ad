package trace

// Same reports whether f and other are the same call.
// Lines are compared only when lineSensitive is set.
func (f Frame) Same(other Frame, lineSensitive bool) bool {
	if f.Name != other.Name || f.Filename != other.Filename {
		return false
	}
	return !lineSensitive || f.Line == other.Line
}

// DiffFrames compares two leaf first stacks from the root inward.
// It returns the frames of prev that ended and the frames of cur that
// began, both leaf first.
func DiffFrames(prev, cur []Frame, lineSensitive bool) (dropped, added []Frame) {
	depth := 0
	for depth < len(prev) && depth < len(cur) {
		if !prev[len(prev)-1-depth].Same(cur[len(cur)-1-depth], lineSensitive) {
			break
		}
		depth++
	}

	return prev[:len(prev)-depth], cur[:len(cur)-depth]
}
