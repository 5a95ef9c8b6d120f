package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/srg/nuimo/gatt"
	"github.com/srg/nuimo/nuimo"
)

// connectCmd represents the connect command
var connectCmd = &cobra.Command{
	Use:   "connect <address>",
	Short: "Connect to a controller and print gesture events",
	Long: `Connect to a Nuimo controller and print every decoded gesture event
(button, touch swipes, rotation deltas, fly sensor) until interrupted.

With --echo each gesture also lights a short feedback frame on the LED
matrix.`,
	Args: cobra.ExactArgs(1),
	RunE: runConnect,
}

var (
	connectAutoReconnect bool
	connectEcho          bool
)

func init() {
	connectCmd.Flags().BoolVar(&connectAutoReconnect, "auto-reconnect", false, "Reconnect when the controller drops the connection")
	connectCmd.Flags().BoolVar(&connectEcho, "echo", false, "Display a feedback frame on the LED matrix for each gesture")
}

func runConnect(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}

	cmd.SilenceUsage = true
	color.NoColor = color.NoColor || !term.IsTerminal(int(os.Stdout.Fd()))

	manager, err := newManager(cfg, logger)
	if err != nil {
		return err
	}
	defer manager.Close()

	controller, err := manager.Controller(args[0])
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	listener := &watchListener{
		echo:         connectEcho,
		failed:       make(chan error, 1),
		disconnected: make(chan struct{}, 1),
	}
	listener.reconnect.Store(connectAutoReconnect)
	controller.AddListener(listener)

	runErrCh := make(chan error, 1)
	go func() { runErrCh <- manager.Run(ctx) }()

	fmt.Printf("Connecting to %s...\n", controller.Address())
	controller.Connect()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case <-sigCh:
		fmt.Println("\nCtrl+C pressed, disconnecting...")
		listener.stopReconnecting()
		controller.Disconnect()
		select {
		case <-listener.disconnected:
		case <-time.After(cfg.DisconnectTimeout + time.Second):
		}
		return nil
	case err := <-listener.failed:
		return err
	case err := <-runErrCh:
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}
}

// watchListener prints controller activity to stdout.
type watchListener struct {
	nuimo.NopControllerListener

	reconnect atomic.Bool
	echo      bool

	failed       chan error
	disconnected chan struct{}
}

func (l *watchListener) stopReconnecting() {
	l.reconnect.Store(false)
}

func (l *watchListener) ConnectSucceeded(c *nuimo.Controller) {
	color.Green("connected to %s", c.Address())
	if l.echo {
		c.DisplayMatrix(nuimo.NewLedMatrix(
			"         "+
				" **   ** "+
				" **   ** "+
				"         "+
				"*       *"+
				" *     * "+
				"  *****  "+
				"         "+
				"         "), nuimo.DefaultDisplayOptions())
	}
}

func (l *watchListener) ConnectFailed(c *nuimo.Controller, err error) {
	if l.reconnect.Load() && !errors.Is(err, gatt.ErrDeviceNotFound) {
		color.Yellow("connect failed (%s), retrying...", err)
		time.AfterFunc(time.Second, c.Connect)
		return
	}
	select {
	case l.failed <- err:
	default:
	}
}

func (l *watchListener) DisconnectSucceeded(c *nuimo.Controller) {
	color.Yellow("disconnected from %s", c.Address())
	select {
	case l.disconnected <- struct{}{}:
	default:
	}
	if l.reconnect.Load() {
		color.Yellow("reconnecting...")
		time.AfterFunc(time.Second, c.Connect)
	}
}

func (l *watchListener) ReceivedGestureEvent(c *nuimo.Controller, event nuimo.GestureEvent) {
	fmt.Printf("%s %s\n", color.CyanString("%s", event.Gesture), gestureDetail(event))
	if l.echo {
		if frame, ok := gestureFrames[event.Gesture]; ok {
			opts := nuimo.DefaultDisplayOptions()
			opts.Interval = 500 * time.Millisecond
			opts.SuppressDuplicates = true
			c.DisplayMatrix(frame, opts)
		}
	}
}

func (l *watchListener) DisplayFailed(c *nuimo.Controller, err error) {
	color.Red("display failed: %s", err)
}

func gestureDetail(event nuimo.GestureEvent) string {
	switch event.Gesture {
	case nuimo.GestureRotation, nuimo.GestureFlyUpDown:
		return fmt.Sprintf("%d", event.Value)
	default:
		return ""
	}
}

// gestureFrames are the feedback frames of --echo mode.
var gestureFrames = map[nuimo.Gesture]nuimo.LedMatrix{
	nuimo.GestureButtonPress: nuimo.NewLedMatrix(
		"         " +
			"  *****  " +
			" ******* " +
			" ******* " +
			" ******* " +
			" ******* " +
			" ******* " +
			"  *****  " +
			"         "),
	nuimo.GestureSwipeLeft: nuimo.NewLedMatrix(
		"         " +
			"   *     " +
			"  *      " +
			" ******* " +
			"  *      " +
			"   *     " +
			"         " +
			"         " +
			"         "),
	nuimo.GestureSwipeRight: nuimo.NewLedMatrix(
		"         " +
			"     *   " +
			"      *  " +
			" ******* " +
			"      *  " +
			"     *   " +
			"         " +
			"         " +
			"         "),
	nuimo.GestureSwipeUp: nuimo.NewLedMatrix(
		"    *    " +
			"   ***   " +
			"  * * *  " +
			"    *    " +
			"    *    " +
			"    *    " +
			"    *    " +
			"         " +
			"         "),
	nuimo.GestureSwipeDown: nuimo.NewLedMatrix(
		"    *    " +
			"    *    " +
			"    *    " +
			"    *    " +
			"  * * *  " +
			"   ***   " +
			"    *    " +
			"         " +
			"         "),
}
