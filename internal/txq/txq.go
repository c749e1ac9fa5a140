// Package txq implements the per-connection transmit queue shared by
// control and data PDUs.
//
// Data traffic can be paused by several independent holders. While any
// holder keeps it paused, only control nodes are handed out and data nodes
// keep their relative order behind them.
package txq

// Kind distinguishes control from data entries.
type Kind uint8

const (
	Ctrl Kind = iota
	Data
)

// Entry is one queued item. Value is opaque to the queue.
type Entry struct {
	Kind  Kind
	Value interface{}
}

// Queue is a FIFO with data pause. It is not safe for concurrent use.
type Queue struct {
	entries []Entry
	pause   int
}

// EnqueueCtrl appends a control entry.
func (q *Queue) EnqueueCtrl(v interface{}) { q.entries = append(q.entries, Entry{Ctrl, v}) }

// EnqueueData appends a data entry.
func (q *Queue) EnqueueData(v interface{}) { q.entries = append(q.entries, Entry{Data, v}) }

// PauseData adds one pause holder.
func (q *Queue) PauseData() { q.pause++ }

// ResumeData drops one pause holder. Extra resumes are ignored.
func (q *Queue) ResumeData() {
	if q.pause > 0 {
		q.pause--
	}
}

// Paused reports whether data is held back.
func (q *Queue) Paused() bool { return q.pause > 0 }

// Len returns the number of queued entries of either kind.
func (q *Queue) Len() int { return len(q.entries) }

// Peek returns the entry Dequeue would return, without removing it.
func (q *Queue) Peek() (Entry, bool) {
	i := q.next()
	if i < 0 {
		return Entry{}, false
	}
	return q.entries[i], true
}

// Dequeue removes and returns the next eligible entry.
func (q *Queue) Dequeue() (Entry, bool) {
	i := q.next()
	if i < 0 {
		return Entry{}, false
	}
	e := q.entries[i]
	q.entries = append(q.entries[:i], q.entries[i+1:]...)
	return e, true
}

// Remove drops every entry for which match returns true and reports how
// many were dropped.
func (q *Queue) Remove(match func(Entry) bool) int {
	n := 0
	kept := q.entries[:0]
	for _, e := range q.entries {
		if match(e) {
			n++
			continue
		}
		kept = append(kept, e)
	}
	for i := len(kept); i < len(q.entries); i++ {
		q.entries[i] = Entry{}
	}
	q.entries = kept
	return n
}

// Reset empties the queue and clears every pause holder.
func (q *Queue) Reset() {
	q.entries = nil
	q.pause = 0
}

func (q *Queue) next() int {
	for i, e := range q.entries {
		if e.Kind == Ctrl || q.pause == 0 {
			return i
		}
	}
	return -1
}
