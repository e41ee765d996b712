// Command mdcsd runs a single replica: its durable store, Merkle-DAG, sync
// engine, gossip broadcaster, compactor, and REST/gRPC front ends, all
// wired together by internal/node.Node. Adapted from the teacher's
// cmd/rechain/main.go (flag-parsed config path, signal-driven shutdown)
// down to one constructor call instead of assembling half a dozen
// subsystems by hand in main.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/mdcs-io/mdcs/internal/config"
	"github.com/mdcs-io/mdcs/internal/node"
)

func main() {
	configFile := flag.String("config", "", "path to a configuration file (optional)")
	flag.Parse()

	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		log.Fatalf("mdcsd: error loading config: %v", err)
	}

	n, err := node.New(cfg.NodeConfig())
	if err != nil {
		log.Fatalf("mdcsd: error building node: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := n.Start(ctx); err != nil {
		log.Fatalf("mdcsd: error starting node: %v", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("mdcsd: shutting down...")
	if err := n.Stop(); err != nil {
		log.Printf("mdcsd: error stopping node: %v", err)
	}
}
