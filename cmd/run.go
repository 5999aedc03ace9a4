package cmd

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	_ "net/http/pprof"
	"time"

	"github.com/encodeous/overmesh/core"
	"github.com/encodeous/overmesh/state"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var (
	logPath   string
	debugAddr string
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run an overmesh node",
	Long:  `This will run an overmesh node on the current host, announcing itself on every interface in the node config.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		verbose, _ := cmd.Flags().GetBool("verbose")

		g, ctx := errgroup.WithContext(cmd.Context())
		nodeCtx, stopNode := context.WithCancel(ctx)
		defer stopNode()

		var srv *http.Server
		if debugAddr != "" {
			// serves /debug/metrics, /debug/neighbours, /debug/vars and /debug/pprof
			srv = &http.Server{Addr: debugAddr, Handler: http.DefaultServeMux}
			g.Go(func() error {
				slog.Info("serving debug endpoints", "addr", debugAddr)
				if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
		}
		g.Go(func() error {
			defer func() {
				if srv == nil {
					return
				}
				sctx, cancel := context.WithTimeout(context.Background(), time.Second)
				defer cancel()
				_ = srv.Shutdown(sctx)
			}()
			return core.Bootstrap(nodeCtx, state.NodeConfigPath, logPath, verbose)
		})
		return g.Wait()
	},
	GroupID: "om",
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().BoolP("verbose", "v", false, "Verbose output")
	runCmd.Flags().StringVarP(&logPath, "log-path", "l", "", "Also write logs to this file, overrides log_path in the node config")
	runCmd.Flags().StringVar(&debugAddr, "debug-addr", "", "Serve metrics and pprof on this address, e.g. 127.0.0.1:6060")
}
