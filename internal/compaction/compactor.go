package compaction

import (
	"log"
	"time"

	"github.com/mdcs-io/mdcs/pkg/merkledag"
)

// StateFolder computes the lattice state implied by every node reachable
// from frontier in dag, starting from base (normally the last snapshot's
// state, or nil for none). Supplied by the caller, which alone knows how
// to decode and join delta payloads; compaction itself stays agnostic to
// payload contents.
type StateFolder func(dag merkledag.DAGStore, frontier []merkledag.Cid, base []byte) ([]byte, error)

// Compactor drives the scan/evaluate/snapshot/prune cycle on a ticker. The
// loop shape (a single goroutine select-ing on a quit channel and a
// ticker) is the same one a round-based consensus driver uses; compaction
// just replaces propose/prevote/precommit/commit with its own stages.
type Compactor struct {
	dag       merkledag.DAGStore
	stability *StabilityMonitor
	snapshots *SnapshotManager
	pruner    *Pruner
	verifier  *PruningVerifier
	fold      StateFolder

	interval         time.Duration
	maxPrunePerCycle int

	quit chan struct{}
	done chan struct{}
}

// NewCompactor builds a Compactor. maxPrunePerCycle bounds how many nodes
// a single cycle will prune, 0 means unbounded.
func NewCompactor(dag merkledag.DAGStore, stability *StabilityMonitor, snapshots *SnapshotManager, fold StateFolder, interval time.Duration, maxPrunePerCycle int) *Compactor {
	return &Compactor{
		dag:              dag,
		stability:        stability,
		snapshots:        snapshots,
		pruner:           NewPruner(dag),
		verifier:         NewPruningVerifier(),
		fold:             fold,
		interval:         interval,
		maxPrunePerCycle: maxPrunePerCycle,
		quit:             make(chan struct{}),
		done:             make(chan struct{}),
	}
}

// Start launches the compaction loop in its own goroutine.
func (c *Compactor) Start() {
	go c.run()
}

// Stop signals the loop to exit and waits for it to do so.
func (c *Compactor) Stop() {
	close(c.quit)
	<-c.done
}

func (c *Compactor) run() {
	defer close(c.done)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.quit:
			return
		case <-ticker.C:
			if err := c.cycle(); err != nil {
				log.Printf("compaction: cycle failed: %v", err)
			}
		}
	}
}

// RunOnce runs a single scan/evaluate/snapshot/prune cycle synchronously,
// outside the ticker loop. Exposed for manual/administrative triggering
// (e.g. an API endpoint that forces compaction) and for tests.
func (c *Compactor) RunOnce() error {
	return c.cycle()
}

// cycle runs one scan/evaluate/snapshot/prune pass. Snapshotting always
// happens before pruning, and pruning is skipped entirely if the snapshot
// step fails, so a crash mid-cycle never leaves data pruned without a
// snapshot that covers it.
func (c *Compactor) cycle() error {
	heads := c.dag.Heads()
	if len(heads) == 0 {
		return nil
	}

	frontierVV, err := c.dag.FrontierVV(heads)
	if err != nil {
		return newErr(ErrKindLogic, "cycle", err)
	}
	c.stability.ObserveSelf(frontierVV)
	stableVV := c.stability.StableVV()

	beforeState, err := c.fold(c.dag, heads, c.snapshotBaseState())
	if err != nil {
		return newErr(ErrKindIO, "cycle", err)
	}

	maxHeight, err := c.maxHeadHeight(heads)
	if err != nil {
		return newErr(ErrKindLogic, "cycle", err)
	}
	if _, err := c.snapshots.MaybeSnapshot(stableVV, heads[0], maxHeight); err != nil {
		return err
	}

	ordered := c.dag.AdmittedDescending()
	candidates, err := c.pruner.Candidates(c.stability, ordered)
	if err != nil {
		return newErr(ErrKindLogic, "cycle", err)
	}
	if c.maxPrunePerCycle > 0 && len(candidates) > c.maxPrunePerCycle {
		candidates = candidates[:c.maxPrunePerCycle]
	}
	if len(candidates) == 0 {
		return nil
	}

	prunedCount, err := c.pruner.Prune(candidates)
	if err != nil {
		log.Printf("compaction: pruned %d of %d candidates before error: %v", prunedCount, len(candidates), err)
		return err
	}

	afterState, err := c.fold(c.dag, heads, c.snapshotBaseState())
	if err != nil {
		return newErr(ErrKindIO, "cycle", err)
	}
	if !c.verifier.Verify(beforeState, afterState) {
		return newErr(ErrKindIntegrity, "cycle", ErrPruneChangedState)
	}

	log.Printf("compaction: pruned %d nodes this cycle", prunedCount)
	return nil
}

func (c *Compactor) snapshotBaseState() []byte {
	if snap := c.snapshots.Latest(); snap != nil {
		return snap.State
	}
	return nil
}

func (c *Compactor) maxHeadHeight(heads []merkledag.Cid) (uint64, error) {
	var max uint64
	for _, h := range heads {
		n, err := c.dag.Get(h)
		if err != nil {
			return 0, err
		}
		if n.Height > max {
			max = n.Height
		}
	}
	return max, nil
}
