package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/srg/nuimo/nuimo"
)

// discoverCmd represents the discover command
var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Discover nearby Nuimo controllers",
	Long: `Scan for Nuimo controllers and display their addresses.

Controllers the Bluetooth stack already knows about are listed immediately;
newly advertising ones appear as they are seen. Stop early with Ctrl+C.`,
	RunE: runDiscover,
}

var discoverDuration time.Duration

func init() {
	discoverCmd.Flags().DurationVarP(&discoverDuration, "duration", "d", 10*time.Second, "Scan duration (0 for indefinite)")
}

func runDiscover(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	manager, err := newManager(cfg, logger)
	if err != nil {
		return err
	}
	defer manager.Close()

	ctx := context.Background()
	if discoverDuration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, discoverDuration)
		defer cancel()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		<-sigCh
		fmt.Println("\nCtrl+C pressed, stopping discovery...")
		cancel()
	}()

	runErrCh := make(chan error, 1)
	go func() { runErrCh <- manager.Run(ctx) }()

	if err := manager.StartDiscovery(); err != nil {
		return err
	}
	defer manager.StopDiscovery()

	fmt.Println("Discovering Nuimo controllers...")

	var found []*nuimo.Controller
	for {
		select {
		case c := <-manager.Discoveries():
			found = append(found, c)
			fmt.Printf("  found %s\n", c.Address())
		case err := <-runErrCh:
			if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			return printControllerTable(found)
		}
	}
}

func printControllerTable(controllers []*nuimo.Controller) error {
	if len(controllers) == 0 {
		fmt.Println("No controllers discovered")
		return nil
	}
	sort.Slice(controllers, func(i, j int) bool {
		return controllers[i].Address() < controllers[j].Address()
	})

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ADDRESS\tSTATE")
	fmt.Fprintln(w, strings.Repeat("-", 40))
	for _, c := range controllers {
		fmt.Fprintf(w, "%s\t%s\n", c.Address(), c.State())
	}
	return w.Flush()
}
