package movehistory

import "strconv"

// Cursor is either End (append mode) or a ply index whose move the next
// submission replaces. The zero value is End.
type Cursor struct {
	index int
	set   bool
}

// End is the append-mode cursor.
var End = Cursor{}

// At returns a cursor on ply i. Negative indexes yield End.
func At(i int) Cursor {
	if i < 0 {
		return End
	}
	return Cursor{index: i, set: true}
}

func (c Cursor) IsEnd() bool { return !c.set }

// Index returns the ply index and false for End.
func (c Cursor) Index() (int, bool) {
	if !c.set {
		return 0, false
	}
	return c.index, true
}

func (c Cursor) String() string {
	if !c.set {
		return "end"
	}
	return strconv.Itoa(c.index)
}

// Step moves c one ply left (step < 0) or right (step > 0) over a sequence of
// length n. Left from End selects the last ply; right past the last ply
// returns to End.
func (c Cursor) Step(step, n int) Cursor {
	switch {
	case step < 0:
		if !c.set {
			if n == 0 {
				return End
			}
			return At(n - 1)
		}
		return At(max(0, c.index-1))
	case step > 0:
		if !c.set || c.index >= n-1 {
			return End
		}
		return At(c.index + 1)
	default:
		return c
	}
}
