package dispatcher

import "time"

type task struct {
	id TaskID
	at time.Time
	f  func()
}

func (t *task) before(o *task) bool {
	if t.at.Equal(o.at) {
		return t.id < o.id
	}
	return t.at.Before(o.at)
}

// queue is a binary min heap of tasks ordered by due time, then by id, so
// tasks due at the same time run in post order.
type queue struct {
	data []*task
}

func (q *queue) push(t *task) {
	q.data = append(q.data, t)
	index := len(q.data) - 1
	for index > 0 {
		parent := (index - 1) / 2
		if !q.data[index].before(q.data[parent]) {
			break
		}
		q.data[index], q.data[parent] = q.data[parent], q.data[index]
		index = parent
	}
}

func (q *queue) peek() (*task, bool) {
	if len(q.data) == 0 {
		return nil, false
	}
	return q.data[0], true
}

func (q *queue) pop() (*task, bool) {
	if len(q.data) == 0 {
		return nil, false
	}
	top := q.data[0]
	last := len(q.data) - 1
	q.data[0] = q.data[last]
	q.data[last] = nil
	q.data = q.data[:last]
	index := 0
	for {
		smallest := index
		for _, child := range []int{2*index + 1, 2*index + 2} {
			if child < len(q.data) && q.data[child].before(q.data[smallest]) {
				smallest = child
			}
		}
		if smallest == index {
			break
		}
		q.data[index], q.data[smallest] = q.data[smallest], q.data[index]
		index = smallest
	}
	return top, true
}

func (q *queue) len() int {
	return len(q.data)
}
