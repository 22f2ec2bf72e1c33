// Package progress keeps the per-step progress slots of the active job in
// line with the status snapshots the poller delivers.
package progress

import (
	"sync"

	"github.com/pders01/newsroom/internal/api"
	"github.com/pders01/newsroom/internal/debuglog"
)

// Slot is the rendered state of one pipeline step.
type Slot struct {
	Index  int
	Label  string
	Status api.StepStatus
	// Progress is stored as sent; rendering clamps it.
	Progress int
	Message  string
}

// Percent returns the slot's progress clamped to [0, 1].
func (s Slot) Percent() float64 {
	switch {
	case s.Progress <= 0:
		return 0
	case s.Progress >= 100:
		return 1
	default:
		return float64(s.Progress) / 100
	}
}

// ApplyResult describes what one Apply call did.
type ApplyResult struct {
	Added   int
	Skipped []int
}

// View holds the progress slots. It is safe for concurrent use.
type View struct {
	mu      sync.Mutex
	stages  Stages
	slots   []Slot
	visible bool
}

func NewView(stages Stages) *View {
	v := &View{stages: stages}
	v.Reset()
	v.visible = false
	return v
}

// Reset re-seeds one waiting slot per known stage and shows the view.
func (v *View) Reset() {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.slots = v.slots[:0]
	for i := range v.stages.Names {
		v.slots = append(v.slots, v.newSlot(i))
	}
	v.visible = true
}

func (v *View) newSlot(i int) Slot {
	return Slot{Index: i, Label: v.stages.Label(i), Status: api.StepWaiting}
}

// Hide hides the view without touching the slots.
func (v *View) Hide() {
	v.mu.Lock()
	v.visible = false
	v.mu.Unlock()
}

func (v *View) Visible() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.visible
}

// Apply reconciles the slots with snap. Missing trailing slots are created
// first so every reported position has one; a step whose index has no slot
// is logged and skipped.
func (v *View) Apply(snap *api.StatusSnapshot) ApplyResult {
	var res ApplyResult
	if snap == nil {
		return res
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	for len(v.slots) < len(snap.Steps) {
		v.slots = append(v.slots, v.newSlot(len(v.slots)))
		res.Added++
	}

	for _, step := range snap.Steps {
		if step.Index < 0 || step.Index >= len(v.slots) {
			debuglog.With("job", snap.TaskID, "index", step.Index, "slots", len(v.slots)).
				Warnf("progress: no slot for step")
			res.Skipped = append(res.Skipped, step.Index)
			continue
		}
		slot := &v.slots[step.Index]
		slot.Status = step.Status
		slot.Progress = step.Progress
		slot.Message = step.Message
	}
	return res
}

// Slots returns a copy of the current slots.
func (v *View) Slots() []Slot {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]Slot(nil), v.slots...)
}

// Len returns the number of slots.
func (v *View) Len() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.slots)
}
