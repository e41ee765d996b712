package merkledag

import "sync"

// Admitter serializes concurrent node submissions through a single
// goroutine and delivers admitted payloads downstream in topological
// order. Its run loop has the same shape as a round/step consensus loop —
// a single goroutine selecting over a submission channel and a quit
// channel — but the steps it advances through are Enqueue, Verify
// (hash/cycle checks inside Store.Put), Admit (head/index update), and
// Deliver (push to the Deliveries channel), not Propose/Prevote/Precommit/
// Commit. There is no voting: a submission is accepted or rejected purely
// on its own hash and parent-linkage merits.
type Admitter struct {
	store *MemoryDAGStore

	submit     chan submission
	deliveries chan Delivery
	quit       chan struct{}
	wg         sync.WaitGroup
}

type submission struct {
	node   Node
	result chan admitResult
}

type admitResult struct {
	cid Cid
	err error
}

// Delivery is one node handed downstream after admission, in the order
// admission happened (parents always precede their children).
type Delivery struct {
	Cid  Cid
	Node Node
}

// NewAdmitter wraps store with a single-goroutine admission loop.
// deliveryBuf bounds how many pending deliveries may queue before Submit
// blocks; 0 means unbuffered.
func NewAdmitter(store *MemoryDAGStore, deliveryBuf int) *Admitter {
	a := &Admitter{
		store:      store,
		submit:     make(chan submission),
		deliveries: make(chan Delivery, deliveryBuf),
		quit:       make(chan struct{}),
	}
	store.SetAdmitHook(func(c Cid, n Node) {
		a.deliveries <- Delivery{Cid: c, Node: n}
	})
	return a
}

// Start launches the admission loop. It must be called before Submit.
func (a *Admitter) Start() {
	a.wg.Add(1)
	go a.run()
}

// Stop halts the admission loop and waits for it to exit. Already-queued
// deliveries remain readable from Deliveries until drained.
func (a *Admitter) Stop() {
	close(a.quit)
	a.wg.Wait()
}

// Deliveries returns the channel admitted nodes are pushed to, in
// topological order.
func (a *Admitter) Deliveries() <-chan Delivery {
	return a.deliveries
}

// Submit enqueues n for admission and blocks until the admitter has
// processed it (admitted, buffered pending its parents, or rejected).
func (a *Admitter) Submit(n Node) (Cid, error) {
	result := make(chan admitResult, 1)
	select {
	case a.submit <- submission{node: n, result: result}:
	case <-a.quit:
		return Cid{}, ErrNotFound
	}
	r := <-result
	return r.cid, r.err
}

func (a *Admitter) run() {
	defer a.wg.Done()
	for {
		select {
		case <-a.quit:
			return
		case sub := <-a.submit:
			cid, err := a.store.Put(sub.node)
			sub.result <- admitResult{cid: cid, err: err}
		}
	}
}
