package playback

// Queue is the ordered track list under playback. Not safe for concurrent
// use; the controller serializes all access through its command loop.
type Queue struct {
	tracks []Track
	index  int
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	return &Queue{index: -1}
}

// Replace swaps the queue contents. The index moves to the first track, or
// -1 when tracks is empty.
func (q *Queue) Replace(tracks []Track) {
	q.tracks = make([]Track, len(tracks))
	copy(q.tracks, tracks)
	if len(q.tracks) == 0 {
		q.index = -1
	} else {
		q.index = 0
	}
}

// Append adds tracks to the end. On a previously empty queue the index
// moves to the first appended track.
func (q *Queue) Append(tracks ...Track) {
	wasEmpty := len(q.tracks) == 0
	q.tracks = append(q.tracks, tracks...)
	if wasEmpty && len(q.tracks) > 0 {
		q.index = 0
	}
}

// Clear empties the queue.
func (q *Queue) Clear() {
	q.tracks = nil
	q.index = -1
}

// Len returns the number of tracks.
func (q *Queue) Len() int {
	return len(q.tracks)
}

// Tracks returns a copy of the queue contents.
func (q *Queue) Tracks() []Track {
	out := make([]Track, len(q.tracks))
	copy(out, q.tracks)
	return out
}

// Index returns the current index, -1 when the queue is empty.
func (q *Queue) Index() int {
	return q.index
}

// SetIndex moves to the given index.
func (q *Queue) SetIndex(i int) bool {
	if i < 0 || i >= len(q.tracks) {
		return false
	}
	q.index = i
	return true
}

// Current returns a copy of the current track, or nil when the queue is
// empty.
func (q *Queue) Current() *Track {
	if q.index < 0 || q.index >= len(q.tracks) {
		return nil
	}
	t := q.tracks[q.index]
	return &t
}

// HasNext reports whether a track follows the current one.
func (q *Queue) HasNext() bool {
	return q.index+1 < len(q.tracks)
}

// Next moves forward, wrapping to the first track after the last. Returns
// false only when the queue is empty.
func (q *Queue) Next() bool {
	if len(q.tracks) == 0 {
		return false
	}
	q.index = (q.index + 1) % len(q.tracks)
	return true
}

// Previous moves backward, staying on the first track when already there.
// Returns false only when the queue is empty.
func (q *Queue) Previous() bool {
	if len(q.tracks) == 0 {
		return false
	}
	if q.index > 0 {
		q.index--
	}
	return true
}

// Advance moves to the following track without wrapping. Used when a track
// finishes on its own; reaching the end of the queue returns false.
func (q *Queue) Advance() bool {
	if !q.HasNext() {
		return false
	}
	q.index++
	return true
}
