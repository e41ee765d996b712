// Package api is the thin transport collaborator spec.md §6 describes: it
// marshals pkg/merkledag and internal/syncengine calls over HTTP (and, in
// grpc_server.go, gRPC), and nothing else. There is no document/session
// SDK surface here, no presence/awareness, no CLI-facing endpoints — only
// the node/frontier/sync plumbing a real transport layer needs to move
// bytes between replicas. Adapted from the teacher's Server (which exposed
// a chain explorer: blocks, transactions, consensus state, generic CAS
// object storage) down to what spec.md's Transport contract actually
// names.
package api

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/mdcs-io/mdcs/internal/gossip"
	"github.com/mdcs-io/mdcs/internal/security"
	"github.com/mdcs-io/mdcs/internal/syncengine"
	"github.com/mdcs-io/mdcs/pkg/merkledag"
)

// Server exposes PUT /nodes, GET /heads, POST /sync over REST.
type Server struct {
	dag         merkledag.DAGStore
	engine      *syncengine.Engine
	broadcaster *gossip.Broadcaster
	audit       *security.AuditLogger

	tlsConfig  *tls.Config
	httpServer *http.Server
	router     *mux.Router
}

// NewServer builds a Server. broadcaster may be nil if the node was
// started without gossip.
func NewServer(dag merkledag.DAGStore, engine *syncengine.Engine, broadcaster *gossip.Broadcaster) *Server {
	srv := &Server{
		dag:         dag,
		engine:      engine,
		broadcaster: broadcaster,
		router:      mux.NewRouter(),
	}
	srv.routes()
	return srv
}

// SetAuditLogger attaches a security audit trail; every node admission
// is then logged as a security event in addition to being admitted.
func (s *Server) SetAuditLogger(audit *security.AuditLogger) {
	s.audit = audit
}

// SetTLSConfig arms the REST front end to terminate TLS. Must be called
// before Start.
func (s *Server) SetTLSConfig(cfg *tls.Config) {
	s.tlsConfig = cfg
}

// Start runs the HTTP server on addr until Stop is called, over TLS if
// SetTLSConfig was called.
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{
		Addr:      addr,
		Handler:   s.router,
		TLSConfig: s.tlsConfig,
	}
	if s.tlsConfig != nil {
		log.Printf("api: REST server starting on %s (tls)", addr)
		return s.httpServer.ListenAndServeTLS("", "")
	}
	log.Printf("api: REST server starting on %s", addr)
	return s.httpServer.ListenAndServe()
}

// Stop gracefully shuts the HTTP server down.
func (s *Server) Stop() error {
	if s.httpServer == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) routes() {
	s.router.HandleFunc("/health", s.handleHealthCheck).Methods("GET")
	s.router.HandleFunc("/nodes", s.handlePutNode).Methods("PUT")
	s.router.HandleFunc("/nodes/{cid}", s.handleGetNode).Methods("GET")
	s.router.HandleFunc("/heads", s.handleGetHeads).Methods("GET")
	s.router.HandleFunc("/sync", s.handleRequestSync).Methods("POST")
}

func (s *Server) respond(w http.ResponseWriter, data interface{}, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			log.Printf("api: error encoding response: %v", err)
		}
	}
}

func (s *Server) error(w http.ResponseWriter, err error, status int) {
	s.respond(w, map[string]string{"error": err.Error()}, status)
}

func (s *Server) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	s.respond(w, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().Format(time.RFC3339),
	}, http.StatusOK)
}

// handlePutNode admits a node submitted by a peer or local client. The
// body is a syncengine.WireNode; the Cid is always recomputed from its
// content, never trusted from the request.
func (s *Server) handlePutNode(w http.ResponseWriter, r *http.Request) {
	var wire syncengine.WireNode
	if err := json.NewDecoder(r.Body).Decode(&wire); err != nil {
		s.error(w, err, http.StatusBadRequest)
		return
	}

	n, err := wire.Node()
	if err != nil {
		s.error(w, err, http.StatusBadRequest)
		return
	}

	cid, err := s.dag.Put(n)
	if err != nil {
		s.error(w, err, http.StatusUnprocessableEntity)
		return
	}

	if s.broadcaster != nil && s.dag.Has(cid) {
		if err := s.broadcaster.Announce(cid); err != nil {
			log.Printf("api: best-effort head announcement failed: %v", err)
		}
	}

	if s.audit != nil {
		s.audit.LogSecurityEvent("node_admitted", cid.String())
	}

	s.respond(w, map[string]interface{}{
		"cid":      cid.String(),
		"admitted": s.dag.Has(cid),
	}, http.StatusCreated)
}

func (s *Server) handleGetNode(w http.ResponseWriter, r *http.Request) {
	cidStr := mux.Vars(r)["cid"]
	c, err := merkledag.ParseCid(cidStr)
	if err != nil {
		s.error(w, err, http.StatusBadRequest)
		return
	}

	if _, err := s.dag.Get(c); err != nil {
		s.error(w, err, http.StatusNotFound)
		return
	}

	resp, err := syncengine.NewSyncResponse(s.dag, []merkledag.Cid{c})
	if err != nil || len(resp.Nodes) != 1 {
		s.error(w, fmt.Errorf("encode node: %v", err), http.StatusInternalServerError)
		return
	}
	s.respond(w, resp.Nodes[0], http.StatusOK)
}

// handleGetHeads reports the replica's current minimal antichain and the
// version vector derived from it.
func (s *Server) handleGetHeads(w http.ResponseWriter, r *http.Request) {
	heads := s.dag.Heads()
	vv, err := s.dag.FrontierVV(heads)
	if err != nil {
		s.error(w, err, http.StatusInternalServerError)
		return
	}

	headStrs := make([]string, len(heads))
	for i, h := range heads {
		headStrs[i] = h.String()
	}

	s.respond(w, map[string]interface{}{
		"heads":       headStrs,
		"frontier_vv": vv,
	}, http.StatusOK)
}

// handleRequestSync triggers an authoritative sync round for a specific
// head this replica does not yet recognize, the same path gossip
// triggers on an unknown HeadGossip.
func (s *Server) handleRequestSync(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Head string `json:"head"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.error(w, err, http.StatusBadRequest)
		return
	}

	head, err := merkledag.ParseCid(req.Head)
	if err != nil {
		s.error(w, err, http.StatusBadRequest)
		return
	}

	if err := s.engine.RequestHead(head); err != nil {
		s.error(w, err, http.StatusServiceUnavailable)
		return
	}

	s.respond(w, map[string]string{"status": "requested"}, http.StatusAccepted)
}
