package daemon

// maxFlows bounds the flow list size, matching MAX_FLOWS in the original
// daemon's admission check.
const maxFlows = 2048

// FlowList is the ordered collection of admitted flows. It has exactly one
// mutator: the scheduler's event loop goroutine. Modeled on the teacher's
// plain []Server slice behind a single owner, rather than a concurrent map,
// since nothing outside the event loop ever touches it.
type FlowList struct {
	flows []*Flow
	byID  map[int]int // flow ID -> index into flows
	nextID int
}

// NewFlowList creates an empty FlowList.
func NewFlowList() *FlowList {
	return &FlowList{byID: make(map[int]int)}
}

// Add appends f, assigning it a fresh ID, and returns that ID. It reports an
// error if the list is already at maxFlows.
func (l *FlowList) Add(f *Flow) (int, error) {
	if len(l.flows) >= maxFlows {
		return 0, errTooManyFlows
	}
	id := l.nextID
	l.nextID++
	f.ID = id
	l.byID[id] = len(l.flows)
	l.flows = append(l.flows, f)
	return id, nil
}

// Get returns the flow with the given ID, or nil if absent.
func (l *FlowList) Get(id int) *Flow {
	idx, ok := l.byID[id]
	if !ok {
		return nil
	}
	return l.flows[idx]
}

// Remove deletes the flow with the given ID. It is safe to call during
// iteration via ForEach: ForEach takes a snapshot of the slice before
// invoking its callback.
func (l *FlowList) Remove(id int) {
	idx, ok := l.byID[id]
	if !ok {
		return
	}
	last := len(l.flows) - 1
	copy(l.flows[idx:], l.flows[idx+1:])
	l.flows[last] = nil
	l.flows = l.flows[:last]
	for i := idx; i < last; i++ {
		l.byID[l.flows[i].ID] = i
	}
	delete(l.byID, id)
}

// Len returns the number of flows currently admitted.
func (l *FlowList) Len() int {
	return len(l.flows)
}

// ForEach invokes fn once per flow currently in the list, in a stable
// snapshot taken before iteration begins, so fn may call Remove on the
// flow it is visiting (or any other) without skipping or revisiting
// entries.
func (l *FlowList) ForEach(fn func(*Flow)) {
	snapshot := make([]*Flow, len(l.flows))
	copy(snapshot, l.flows)
	for _, f := range snapshot {
		if _, stillPresent := l.byID[f.ID]; stillPresent {
			fn(f)
		}
	}
}

// All returns every currently admitted flow, in stable order.
func (l *FlowList) All() []*Flow {
	out := make([]*Flow, len(l.flows))
	copy(out, l.flows)
	return out
}
