package syncengine

import (
	"errors"
	"log"
	"sort"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ethereum/go-ethereum/p2p"
	"github.com/mdcs-io/mdcs/pkg/merkledag"
)

// send transmits code/payload to conn, retrying transport errors with
// exponential backoff and jitter (spec.md §4.3 failure semantics). It does
// not retry on anything but the Send call itself failing.
func (e *Engine) send(conn *peerConn, code uint64, payload []byte) error {
	op := func() error {
		return p2p.Send(conn.rw, code, payload)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = e.cfg.InitialBackoff
	b.MaxInterval = e.cfg.MaxBackoff
	b.MaxElapsedTime = e.cfg.MaxElapsedTime

	if err := backoff.Retry(op, b); err != nil {
		return newErr(ErrKindIO, "send", err)
	}
	return nil
}

// announceFrontier sends our current head set to a newly connected peer,
// phase 1 of the exchange.
func (e *Engine) announceFrontier(conn *peerConn) error {
	heads := e.dag.Heads()
	payload, err := encodeCanonical(NewFrontierAnnounce(heads))
	if err != nil {
		return newErr(ErrKindIO, "announceFrontier", err)
	}
	return e.send(conn, uint64(KindFrontierAnnounce), payload)
}

// onFrontierAnnounce is phase 1 on the receiving side: compute which of
// the remote heads we lack and, if any, kick off phase 2.
func (e *Engine) onFrontierAnnounce(conn *peerConn, m FrontierAnnounce) error {
	remoteHeads, err := m.Cids()
	if err != nil {
		return newErr(ErrKindIntegrity, "onFrontierAnnounce", err)
	}

	conn.mu.Lock()
	conn.lastHeads = remoteHeads
	conn.mu.Unlock()

	want := e.missingOf(remoteHeads)
	if len(want) == 0 {
		e.reportFrontierIfComplete(conn)
		return nil
	}
	return e.requestRound(conn, want)
}

func (e *Engine) missingOf(heads []merkledag.Cid) []merkledag.Cid {
	var want []merkledag.Cid
	for _, h := range heads {
		if !e.dag.Has(h) {
			want = append(want, h)
		}
	}
	return want
}

// requestRound sends a sync_request for want, bumping conn's round
// counter and reporting ErrCeilingExceeded without sending anything if the
// configured ceiling is already spent.
func (e *Engine) requestRound(conn *peerConn, want []merkledag.Cid) error {
	conn.mu.Lock()
	if e.cfg.MaxRoundsPerSync > 0 && conn.rounds >= e.cfg.MaxRoundsPerSync {
		conn.mu.Unlock()
		log.Printf("syncengine: peer %s exceeded its round ceiling, %d cids still missing", conn.peer.ID(), len(want))
		return newErr(ErrKindCapacity, "requestRound", ErrCeilingExceeded)
	}
	conn.rounds++
	conn.mu.Unlock()

	req := NewSyncRequest(e.dag.Heads(), want, e.cfg.MaxDepthPerRound)
	payload, err := encodeCanonical(req)
	if err != nil {
		return newErr(ErrKindIO, "requestRound", err)
	}
	return e.send(conn, uint64(KindSyncRequest), payload)
}

// onSyncRequest is phase 2 on the sending side: for every wanted Cid, walk
// its ancestors back to whichever is closer, req.MaxDepth height-levels or
// something the requester already claims to have, and reply with
// everything found.
func (e *Engine) onSyncRequest(conn *peerConn, m SyncRequest) error {
	have, err := m.HaveCids()
	if err != nil {
		return newErr(ErrKindIntegrity, "onSyncRequest", err)
	}
	want, err := m.WantCids()
	if err != nil {
		return newErr(ErrKindIntegrity, "onSyncRequest", err)
	}

	haveSet := make(map[merkledag.Cid]struct{}, len(have))
	for _, h := range have {
		haveSet[h] = struct{}{}
	}

	found := make(map[merkledag.Cid]struct{})
	var ordered []merkledag.Cid
	for _, w := range want {
		root, err := e.dag.Get(w)
		if err != nil {
			continue // we don't have it either; nothing to offer for this one
		}
		var floor uint64
		if root.Height > m.MaxDepth {
			floor = root.Height - m.MaxDepth
		}
		// stop only checks the requester's claimed frontier here; height
		// is filtered afterward, once Ancestors has released the store's
		// lock, since Get would otherwise reenter it from inside stop.
		ancestors, err := e.dag.Ancestors(w, func(c merkledag.Cid) bool {
			_, ok := haveSet[c]
			return ok
		})
		if err != nil {
			return newErr(ErrKindIO, "onSyncRequest", err)
		}
		for _, a := range ancestors {
			if _, ok := found[a]; ok {
				continue
			}
			n, err := e.dag.Get(a)
			if err != nil || n.Height < floor {
				continue
			}
			found[a] = struct{}{}
			ordered = append(ordered, a)
		}
	}
	if len(ordered) == 0 {
		return nil
	}

	sort.Slice(ordered, func(i, j int) bool {
		ni, _ := e.dag.Get(ordered[i])
		nj, _ := e.dag.Get(ordered[j])
		if ni.Height != nj.Height {
			return ni.Height < nj.Height
		}
		return ordered[i].Less(ordered[j])
	})

	resp, err := NewSyncResponse(e.dag, ordered)
	if err != nil {
		return newErr(ErrKindIO, "onSyncRequest", err)
	}
	payload, err := encodeCanonical(resp)
	if err != nil {
		return newErr(ErrKindIO, "onSyncRequest", err)
	}
	return e.send(conn, uint64(KindSyncResponse), payload)
}

// onSyncResponse is phase 3: deliver nodes to the DAG store in the order
// given (already topological), dropping any that fail integrity and
// leaving any still-pending ones for the next round.
func (e *Engine) onSyncResponse(conn *peerConn, m SyncResponse) error {
	var stillMissing []merkledag.Cid

	for _, wn := range m.Nodes {
		n, err := wn.Node()
		if err != nil {
			if e.onIntegrityViolation != nil {
				e.onIntegrityViolation(conn.peer.ID(), merkledag.Cid{}, err)
			}
			continue
		}

		cid, err := e.dag.Put(n)
		switch {
		case err == nil:
			// Put buffers a node with missing parents and still returns
			// nil; its absent parents are asked for in the next round.
			if !e.dag.Has(cid) {
				stillMissing = append(stillMissing, e.dag.MissingParents(n)...)
			}
			continue
		case errors.Is(err, merkledag.ErrHashMismatch), errors.Is(err, merkledag.ErrCycle):
			if e.onIntegrityViolation != nil {
				e.onIntegrityViolation(conn.peer.ID(), cid, err)
			}
		case errors.Is(err, merkledag.ErrMissingParents):
			stillMissing = append(stillMissing, e.dag.MissingParents(n)...)
		default:
			log.Printf("syncengine: peer %s: put failed: %v", conn.peer.ID(), err)
		}
	}

	if len(stillMissing) == 0 {
		e.reportFrontierIfComplete(conn)
		return nil
	}
	return e.requestRound(conn, dedupeCids(stillMissing))
}

// reportFrontierIfComplete tells onPeerFrontier about conn's last-announced
// frontier once every head in it is actually admitted here, translating it
// into a version vector via the same FrontierVV the local replica uses for
// its own. Until then the peer's counters aren't confirmed to have landed,
// only to have been requested.
func (e *Engine) reportFrontierIfComplete(conn *peerConn) {
	if e.onPeerFrontier == nil {
		return
	}
	conn.mu.Lock()
	heads := conn.lastHeads
	conn.mu.Unlock()
	if len(heads) == 0 {
		return
	}
	for _, h := range heads {
		if !e.dag.Has(h) {
			return
		}
	}
	vv, err := e.dag.FrontierVV(heads)
	if err != nil {
		log.Printf("syncengine: peer %s: deriving frontier vv failed: %v", conn.peer.ID(), err)
		return
	}
	e.onPeerFrontier(conn.peer.ID(), vv)
}

func dedupeCids(cids []merkledag.Cid) []merkledag.Cid {
	seen := make(map[merkledag.Cid]struct{}, len(cids))
	out := make([]merkledag.Cid, 0, len(cids))
	for _, c := range cids {
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}

// onHeadGossip handles a best-effort head announcement arriving over this
// same transport (internal/gossip normally carries these over pubsub
// instead, but the wire shape is shared). An unknown head triggers a
// targeted sync round against whichever peer reported it.
func (e *Engine) onHeadGossip(conn *peerConn, m HeadGossip) error {
	head, err := m.Cid()
	if err != nil {
		return newErr(ErrKindIntegrity, "onHeadGossip", err)
	}
	if e.dag.Has(head) {
		return nil
	}
	return e.requestRound(conn, []merkledag.Cid{head})
}

// RequestHead triggers an authoritative sync round for head against every
// currently connected peer. internal/gossip calls this when it observes a
// HeadGossip for a Cid this replica does not recognize.
func (e *Engine) RequestHead(head merkledag.Cid) error {
	if e.dag.Has(head) {
		return nil
	}

	e.mu.RLock()
	conns := make([]*peerConn, 0, len(e.peers))
	for _, c := range e.peers {
		conns = append(conns, c)
	}
	e.mu.RUnlock()

	var firstErr error
	for _, conn := range conns {
		if err := e.requestRound(conn, []merkledag.Cid{head}); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// idleTimeout is a bound on how long a sync session may wait for a reply
// before it counts as stalled. Sessions are stateless between rounds and no
// timer is started here; no code in the module applies this constant.
const idleTimeout = 30 * time.Second
