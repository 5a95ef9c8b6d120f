package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/srg/nuimo/nuimo"
)

// displayCmd represents the display command
var displayCmd = &cobra.Command{
	Use:   "display <address>",
	Short: "Show a frame on the LED matrix",
	Long: `Connect to a Nuimo controller, display one LED matrix frame and
disconnect.

The frame is given as a string of up to 81 characters in row-major order,
one per LED; ' ' and '0' are off, anything else is on. Omitting --matrix
shows a test pattern.`,
	Args: cobra.ExactArgs(1),
	RunE: runDisplay,
}

var (
	displayMatrix     string
	displayInterval   time.Duration
	displayBrightness float64
	displayFading     bool
)

func init() {
	displayCmd.Flags().StringVarP(&displayMatrix, "matrix", "m", "", "Frame as an 81-character string (row major, ' '/'0' off)")
	displayCmd.Flags().DurationVarP(&displayInterval, "interval", "i", 2*time.Second, "How long the frame stays lit (max 25.5s)")
	displayCmd.Flags().Float64VarP(&displayBrightness, "brightness", "b", 1.0, "LED brightness, 0.0 to 1.0")
	displayCmd.Flags().BoolVar(&displayFading, "fading", false, "Cross-fade from the previous frame")
}

var testPattern = nuimo.NewLedMatrix(
	"*       *" +
		" *     * " +
		"  *   *  " +
		"   * *   " +
		"    *    " +
		"   * *   " +
		"  *   *  " +
		" *     * " +
		"*       *")

func runDisplay(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}

	cmd.SilenceUsage = true

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

	frame := testPattern
	if displayMatrix != "" {
		frame = nuimo.NewLedMatrix(displayMatrix)
	}

	listener := &displayListener{
		frame: frame,
		opts: nuimo.DisplayOptions{
			Interval:   displayInterval,
			Brightness: displayBrightness,
			Fading:     displayFading,
		},
		done:         make(chan error, 1),
		disconnected: make(chan struct{}, 1),
	}
	controller.AddListener(listener)

	runErrCh := make(chan error, 1)
	go func() { runErrCh <- manager.Run(ctx) }()

	controller.Connect()

	select {
	case err := <-listener.done:
		controller.Disconnect()
		select {
		case <-listener.disconnected:
		case <-time.After(cfg.DisconnectTimeout + time.Second):
		}
		return err
	case err := <-runErrCh:
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	case <-time.After(time.Minute):
		return fmt.Errorf("timed out waiting for the controller")
	}
}

// displayListener sends one frame once connected and reports the write
// outcome.
type displayListener struct {
	nuimo.NopControllerListener

	frame nuimo.LedMatrix
	opts  nuimo.DisplayOptions

	done         chan error
	disconnected chan struct{}
}

func (l *displayListener) ConnectSucceeded(c *nuimo.Controller) {
	c.DisplayMatrix(l.frame, l.opts)
}

func (l *displayListener) DisplayCompleted(*nuimo.Controller) {
	select {
	case l.done <- nil:
	default:
	}
}

func (l *displayListener) ConnectFailed(_ *nuimo.Controller, err error) {
	select {
	case l.done <- err:
	default:
	}
}

func (l *displayListener) DisconnectSucceeded(*nuimo.Controller) {
	select {
	case l.disconnected <- struct{}{}:
	default:
	}
}

func (l *displayListener) DisplayFailed(_ *nuimo.Controller, err error) {
	select {
	case l.done <- err:
	default:
	}
}
