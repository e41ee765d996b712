// Command mdcsctl is operational tooling for a running or stopped
// replica, not a document-editing client: inspect heads and the stable
// version vector, trigger a sync round or a compaction pass. Adapted from
// the teacher's cmd/rechainctl/main.go (cobra root with a persistent
// --grpc-addr flag, one subcommand tree per concern), with every
// chain-explorer subcommand (blocks, transactions, CAS object CRUD,
// gossip/consensus state) replaced by node/sync/compaction operations and
// its proto-backed gRPC client replaced by internal/api.Client.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/mdcs-io/mdcs/internal/api"
	"github.com/mdcs-io/mdcs/internal/compaction"
	"github.com/mdcs-io/mdcs/internal/node"
)

var (
	grpcAddr string
	dataDir  string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "mdcsctl",
		Short: "Operational tooling for an mdcs replica",
	}

	rootCmd.PersistentFlags().StringVar(&grpcAddr, "grpc-addr", "localhost:9090", "gRPC address of a running replica (networked subcommands)")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "./data", "data directory of a replica's store (local subcommands)")

	rootCmd.AddCommand(
		headsCmd(),
		syncCmd(),
		compactCmd(),
		stableVVCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

// headsCmd talks to a running replica over gRPC; it never touches the
// data directory directly, since a running replica already owns the only
// open handle to its Badger store.
func headsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "heads",
		Short: "Show a running replica's current heads and frontier version vector",
		Run: func(cmd *cobra.Command, args []string) {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			client, err := api.DialClient(ctx, grpcAddr)
			if err != nil {
				log.Fatalf("mdcsctl: %v", err)
			}
			defer client.Close()

			resp, err := client.GetHeads(ctx, &api.GetHeadsRequest{})
			if err != nil {
				log.Fatalf("mdcsctl: get heads: %v", err)
			}
			printJSON(resp)
		},
	}
}

func syncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync [cid]",
		Short: "Trigger a sync round for a head on a running replica",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			client, err := api.DialClient(ctx, grpcAddr)
			if err != nil {
				log.Fatalf("mdcsctl: %v", err)
			}
			defer client.Close()

			resp, err := client.RequestSync(ctx, &api.RequestSyncRequest{Head: args[0]})
			if err != nil {
				log.Fatalf("mdcsctl: request sync: %v", err)
			}
			printJSON(resp)
		},
	}
}

// compactCmd and stableVVCmd operate directly on a stopped replica's data
// directory: forcing a compaction pass or reading the stable version
// vector needs the store open, not a round trip through the Transport
// surface spec.md §6 defines, which exposes node/frontier/sync plumbing
// and nothing administrative.
func compactCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "compact",
		Short: "Run one scan/evaluate/snapshot/prune cycle against a stopped replica's data directory",
		Run: func(cmd *cobra.Command, args []string) {
			local, err := node.OpenLocal(dataDir, compaction.ThresholdPolicy{}, 0)
			if err != nil {
				log.Fatalf("mdcsctl: open %s: %v", dataDir, err)
			}
			defer local.Close()

			if err := local.Compact(); err != nil {
				log.Fatalf("mdcsctl: compact: %v", err)
			}
			fmt.Println("compaction cycle complete")
		},
	}
}

func stableVVCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stable-vv",
		Short: "Dump a stopped replica's stable version vector",
		Run: func(cmd *cobra.Command, args []string) {
			local, err := node.OpenLocal(dataDir, compaction.ThresholdPolicy{}, 0)
			if err != nil {
				log.Fatalf("mdcsctl: open %s: %v", dataDir, err)
			}
			defer local.Close()

			printJSON(local.StableVV())
		},
	}
}

func printJSON(v interface{}) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		log.Fatalf("mdcsctl: marshal output: %v", err)
	}
	fmt.Println(string(data))
}
