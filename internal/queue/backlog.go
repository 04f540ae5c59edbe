package queue

// backlog is a heap of ready items ordered by priority rank (high first),
// then FIFO by insertion sequence within a class. Implements heap.Interface.
type backlog []*item

func (b backlog) Len() int { return len(b) }

func (b backlog) Less(i, j int) bool {
	pi, pj := b[i].scan.Request.Priority.Rank(), b[j].scan.Request.Priority.Rank()
	if pi != pj {
		return pi > pj
	}
	return b[i].seq < b[j].seq
}

func (b backlog) Swap(i, j int) {
	b[i], b[j] = b[j], b[i]
	b[i].pos = i
	b[j].pos = j
}

func (b *backlog) Push(x interface{}) {
	it := x.(*item)
	it.pos = len(*b)
	*b = append(*b, it)
}

func (b *backlog) Pop() interface{} {
	old := *b
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	it.pos = -1
	*b = old[:n-1]
	return it
}
