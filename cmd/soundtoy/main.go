// Command soundtoy plays the sound toy graph on the default audio device and
// takes its controls from the keyboard.
//
// Usage:
//
//	soundtoy [flags]
//
// Examples:
//
//	soundtoy -assets ./assets
//	soundtoy -loop ~/Music/take.wav -log-level debug
//	soundtoy -record ~/takes/latest.wav
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/mitchellh/go-homedir"
	"github.com/sirupsen/logrus"
	"golang.org/x/term"

	"github.com/cwbudde/soundtoy/dsp/core"
	"github.com/cwbudde/soundtoy/engine"
	"github.com/cwbudde/soundtoy/engine/record"
	"github.com/cwbudde/soundtoy/internal/device"
)

func main() {
	assets := flag.String("assets", "assets", "directory holding the bundled tape loops")
	rate := flag.Int("rate", 44100, "output sample rate in Hz")
	block := flag.Int("block", 512, "render block size in frames")
	seed := flag.Int64("seed", 1, "noise seed")
	loopPath := flag.String("loop", "", "audio file to load as the user loop")
	recordPath := flag.String("record", "", "where recordings are written (default ~/.soundtoy/userRecording.wav)")
	level := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: soundtoy [flags]\n\n")
		fmt.Fprintf(os.Stderr, "Plays noise, tape loops and a user loop through a live effect chain.\n\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	log := logrus.New()
	lvl, err := logrus.ParseLevel(*level)
	if err != nil {
		log.WithError(err).Fatal("invalid log level")
	}
	log.SetLevel(lvl)

	if err := run(log, options{
		assets:     *assets,
		rate:       *rate,
		block:      *block,
		seed:       *seed,
		loopPath:   *loopPath,
		recordPath: *recordPath,
	}); err != nil {
		if errors.Is(err, engine.ErrMissingAsset) {
			log.WithError(err).Fatal("bundled loops not found; set -assets")
		}
		log.WithError(err).Fatal("soundtoy failed")
	}
}

type options struct {
	assets     string
	rate       int
	block      int
	seed       int64
	loopPath   string
	recordPath string
}

func run(log *logrus.Logger, opts options) error {
	assetDir, err := homedir.Expand(opts.assets)
	if err != nil {
		return err
	}

	pc := core.ApplyProcessorOptions(
		core.WithSampleRate(float64(opts.rate)),
		core.WithBlockSize(opts.block),
	)
	if err := pc.Validate(); err != nil {
		return err
	}

	clock, err := device.NewOtoClock(opts.rate, 0)
	if err != nil {
		return err
	}

	cfg := engine.DefaultConfig()
	cfg.SampleRate = pc.SampleRate
	cfg.BlockSize = pc.BlockSize
	cfg.AssetDir = assetDir
	eng, err := engine.New(cfg,
		engine.WithClock(clock),
		engine.WithLogger(log),
		engine.WithSeed(opts.seed),
	)
	if err != nil {
		_ = clock.Close()
		return err
	}
	defer eng.Close()

	if opts.loopPath != "" {
		path, err := homedir.Expand(opts.loopPath)
		if err != nil {
			return err
		}
		if err := eng.LoadUserLoopFile(path); err != nil {
			log.WithError(err).Warn("user loop not loaded")
		}
	}

	capture, err := device.NewMalgoCapture(record.DefaultSampleRate, record.DefaultChannels, log)
	if err != nil {
		return err
	}
	defer capture.Close()

	recOpts := []record.Option{
		record.WithLogger(log),
		record.WithStopHook(func(path string, err error) {
			if err != nil {
				log.WithError(err).Warn("recording discarded")
				return
			}
			log.WithField("path", path).Info("recording loaded as user loop")
		}),
	}
	if opts.recordPath != "" {
		recOpts = append(recOpts, record.WithOutputPath(opts.recordPath))
	}
	session, err := record.New(capture, eng, recOpts...)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	fd := int(os.Stdin.Fd())
	old, err := term.MakeRaw(fd)
	if err != nil {
		return fmt.Errorf("keyboard: %w", err)
	}
	defer func() { _ = term.Restore(fd, old) }()
	log.SetOutput(crlfWriter{os.Stderr})

	c := &controller{ctx: ctx, toy: eng, rec: session, out: os.Stdout}
	c.help()
	readKeys(ctx, os.Stdin, c)

	_ = session.Stop()
	session.Wait()

	return nil
}

// readKeys feeds key presses to c until it asks to quit, stdin closes or
// ctx is cancelled.
func readKeys(ctx context.Context, r io.Reader, c *controller) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	keys := make(chan byte)
	go pumpKeys(ctx, r, keys)

	for {
		select {
		case <-ctx.Done():
			return
		case k, ok := <-keys:
			if !ok || !c.handle(k) {
				return
			}
		}
	}
}

// pumpKeys sends bytes read from r to keys until r fails or ctx is done.
// keys is closed on return.
func pumpKeys(ctx context.Context, r io.Reader, keys chan<- byte) {
	defer close(keys)

	buf := make([]byte, 1)
	for {
		if _, err := r.Read(buf); err != nil {
			return
		}
		select {
		case keys <- buf[0]:
		case <-ctx.Done():
			return
		}
	}
}

// crlfWriter keeps log lines aligned while the terminal is in raw mode.
type crlfWriter struct {
	w io.Writer
}

func (c crlfWriter) Write(p []byte) (int, error) {
	if _, err := io.WriteString(c.w, strings.ReplaceAll(string(p), "\n", "\r\n")); err != nil {
		return 0, err
	}

	return len(p), nil
}
