package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/kindrednet/kindred/chain"
	"github.com/kindrednet/kindred/log"
	"github.com/kindrednet/kindred/network"
	"github.com/kindrednet/kindred/pool"
	"github.com/kindrednet/kindred/rpc"
	"github.com/kindrednet/kindred/storage"
	"github.com/kindrednet/kindred/types"
	"github.com/spf13/cobra"
)

var (
	Version = "dev"
	Commit  = "none"
)

func main() {
	var rootCmd = &cobra.Command{
		Use:   "kindred",
		Short: "Kindred proof-of-work node with uncle support",
	}
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	var (
		dataDir      string
		rpcAddr      string
		wsAddr       string
		logLevel     string
		debugModules string
		networkName  string
		epochLength  uint64
	)

	var runCmd = &cobra.Command{
		Use:   "run",
		Short: "Run the node: chain, pool, relay, RPC, tip feed",
		Run: func(cmd *cobra.Command, args []string) {
			log.InitLogger(logLevel)
			log.EnableModules(debugModules)

			spec := types.MainnetSpec()
			if networkName == "test" {
				spec = types.TestSpec(epochLength)
			}
			log.Info(log.Chain, "starting kindred", "version", Version, "network", spec.Name)

			c := chain.NewChain(spec)
			ps, err := storage.NewPersistStore(dataDir)
			if err != nil {
				fmt.Printf("Error opening data dir: %v\n", err)
				os.Exit(1)
			}
			defer ps.Close()
			bs := storage.NewBlockStore(ps)
			genesisHash := spec.GenesisHeader().Hash()
			if err := bs.LoadInto(c.SubmitBlock, genesisHash); err != nil {
				fmt.Printf("Error replaying stored blocks: %v\n", err)
				os.Exit(1)
			}
			c.SetStore(bs)

			tp := pool.NewTransactionPool(pool.DefaultCapacity)
			hub := network.NewRelayHub()
			c.SetRelay(hub)

			// Drop committed transactions whenever the tip advances.
			go func() {
				for ev := range c.SubscribeTip() {
					if block := c.GetBlock(ev.Tip.Hash()); block != nil {
						tp.RemoveCommitted(block)
					}
				}
			}()

			service := rpc.NewService(c, tp, hub)
			server := rpc.NewServer(rpcAddr, service)
			go func() {
				if err := server.Start(); err != nil {
					log.Error(log.Rpc, "rpc server stopped", "err", err)
				}
			}()

			feed := rpc.NewTipFeed(c)
			go func() {
				if err := feed.Serve(wsAddr); err != nil {
					log.Error(log.Rpc, "tip feed stopped", "err", err)
				}
			}()

			sig := make(chan os.Signal, 1)
			signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
			<-sig
			server.Stop()
			log.Info(log.Chain, "shutting down", "tip", c.TipHeader().Hash().String_short())
		},
	}
	runCmd.Flags().StringVar(&dataDir, "datadir", "", "block database directory (empty for in-memory)")
	runCmd.Flags().StringVar(&rpcAddr, "rpc", ":3030", "RPC listen address")
	runCmd.Flags().StringVar(&wsAddr, "ws", ":3031", "websocket tip feed listen address")
	runCmd.Flags().StringVar(&logLevel, "loglevel", "info", "log level (trace|debug|info|warn|error)")
	runCmd.Flags().StringVar(&debugModules, "modules", "", "comma-separated log modules to enable")
	runCmd.Flags().StringVar(&networkName, "network", "mainnet", "network spec (mainnet|test)")
	runCmd.Flags().Uint64Var(&epochLength, "epoch-length", 10, "epoch length for the test network")
	rootCmd.AddCommand(runCmd)

	var versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("kindred %s (%s)\n", Version, Commit)
		},
	}
	rootCmd.AddCommand(versionCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
