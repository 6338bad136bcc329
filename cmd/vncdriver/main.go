// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: Ryan Johnson

// vncdriver types text into and takes screenshots of a remote display over
// the RFB protocol.
//
// Usage:
//
//	vncdriver type [flags] [TEXT...]
//	vncdriver screenshot [flags]
//
// Settings come from the --config file, then VNCDRIVER_* environment
// variables, then explicitly set flags.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/tenthirtyam/vncdriver"
	"github.com/tenthirtyam/vncdriver/internal/config"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	if len(args) == 0 {
		printUsage(os.Stderr)
		return fmt.Errorf("missing command")
	}

	command, args := args[0], args[1:]
	switch command {
	case "type", "screenshot":
	case "help", "-h", "--help":
		printUsage(os.Stdout)
		return nil
	default:
		printUsage(os.Stderr)
		return fmt.Errorf("unknown command %q", command)
	}

	opts := &options{}
	flagSet := opts.flagSet(command)
	if err := flagSet.Parse(args); err != nil {
		return err
	}
	if command == "type" && opts.passwordStdin && flagSet.NArg() == 0 {
		return fmt.Errorf("--password-stdin needs the text as arguments")
	}

	cfg, err := opts.resolve(flagSet)
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch command {
	case "type":
		text, err := typedText(flagSet.Args(), os.Stdin)
		if err != nil {
			return err
		}
		return runType(ctx, cfg, logger, text)
	default:
		return runScreenshot(ctx, cfg, logger)
	}
}

func printUsage(w io.Writer) {
	fmt.Fprint(w, `Usage:
  vncdriver type [flags] [TEXT...]   type TEXT (or stdin) on the remote keyboard
  vncdriver screenshot [flags]       save the remote screen as a PNG

Run "vncdriver <command> --help" for flags.
`)
}

// options holds the command-line flags.
type options struct {
	configPath    string
	address       string
	password      string
	passwordStdin bool
	rate          float64
	idleTimeout   time.Duration
	pollInterval  time.Duration
	composite     bool
	overwrite     bool
	output        string
	logLevel      string
	exclusive     bool
}

func (o *options) flagSet(command string) *pflag.FlagSet {
	flagSet := pflag.NewFlagSet("vncdriver "+command, pflag.ContinueOnError)
	flagSet.StringVar(&o.configPath, "config", "", "path to a TOML or YAML config file")
	flagSet.StringVar(&o.address, "address", config.DefaultAddress, "RFB server host:port")
	flagSet.StringVar(&o.password, "password", "", `VNC password; "-" prompts for it`)
	flagSet.BoolVar(&o.passwordStdin, "password-stdin", false, "read the VNC password from stdin")
	flagSet.StringVar(&o.logLevel, "log-level", config.DefaultLogLevel, "log level: trace, debug, info, warn or error")
	flagSet.BoolVar(&o.exclusive, "exclusive", false, "ask the server to disconnect other clients")

	switch command {
	case "type":
		flagSet.Float64Var(&o.rate, "rate", 0, "key events per second (default 50)")
	case "screenshot":
		flagSet.DurationVar(&o.idleTimeout, "idle-timeout", vncdriver.DefaultIdleTimeout, "end the capture after this long without an update")
		flagSet.DurationVar(&o.pollInterval, "poll-interval", vncdriver.DefaultPollInterval, "wait between polls that find no update")
		flagSet.BoolVar(&o.composite, "composite", false, "blend updates onto the previous frame")
		flagSet.BoolVar(&o.overwrite, "overwrite", false, "build the frame from a full refresh")
		flagSet.StringVarP(&o.output, "output", "o", "", "PNG file or directory to write (default: current directory)")
	}

	flagSet.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [flags]\n\nFlags:\n", flagSet.Name())
		flagSet.PrintDefaults()
	}
	return flagSet
}

// resolve loads the config file and environment, then applies the flags the
// user set explicitly.
func (o *options) resolve(flagSet *pflag.FlagSet) (*config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}

	if flagSet.Changed("address") {
		cfg.Address = o.address
	}
	if flagSet.Changed("password") {
		cfg.Password = o.password
	}
	if flagSet.Changed("log-level") {
		cfg.LogLevel = o.logLevel
	}
	if flagSet.Changed("exclusive") {
		cfg.Exclusive = o.exclusive
	}
	if flagSet.Changed("rate") {
		rate := o.rate
		cfg.Rate = &rate
	}
	if flagSet.Changed("idle-timeout") {
		cfg.IdleTimeout = config.Duration{Duration: o.idleTimeout}
	}
	if flagSet.Changed("poll-interval") {
		cfg.PollInterval = config.Duration{Duration: o.pollInterval}
	}
	if flagSet.Changed("output") {
		cfg.Output = o.output
	}
	switch {
	case o.composite && o.overwrite:
		return nil, fmt.Errorf("--composite and --overwrite are mutually exclusive")
	case o.composite:
		cfg.CaptureMode = vncdriver.CaptureComposite.String()
	case o.overwrite:
		cfg.CaptureMode = vncdriver.CaptureOverwrite.String()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if o.passwordStdin {
		if o.password != "" {
			return nil, fmt.Errorf("--password and --password-stdin are mutually exclusive")
		}
		password, err := readLine(os.Stdin)
		if err != nil {
			return nil, fmt.Errorf("reading password from stdin: %w", err)
		}
		cfg.Password = password
	} else if cfg.Password == "-" {
		password, err := promptPassword()
		if err != nil {
			return nil, err
		}
		cfg.Password = password
	}
	return cfg, nil
}

// promptPassword reads the password from the terminal without echo.
func promptPassword() (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("cannot prompt for a password: stdin is not a terminal (use --password-stdin)")
	}
	fmt.Fprint(os.Stderr, "Password: ")
	password, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}
	return string(password), nil
}

func readLine(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// newLogger writes human-readable records to a terminal and JSON otherwise.
func newLogger(level string) (vncdriver.Logger, error) {
	slogLevel, err := vncdriver.ParseLogLevel(level)
	if err != nil {
		return nil, err
	}

	handlerOptions := &slog.HandlerOptions{Level: slogLevel}
	var handler slog.Handler
	if term.IsTerminal(int(os.Stderr.Fd())) {
		handler = slog.NewTextHandler(os.Stderr, handlerOptions)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, handlerOptions)
	}
	return vncdriver.NewSlogLogger(slog.New(handler)), nil
}

// typedText joins the positional arguments, or reads stdin when there are none.
func typedText(args []string, stdin io.Reader) (string, error) {
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}
	data, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("reading text from stdin: %w", err)
	}
	return string(data), nil
}

func sessionOptions(cfg *config.Config, logger vncdriver.Logger) []vncdriver.SessionOption {
	auth := []vncdriver.ClientAuth{&vncdriver.ClientAuthNone{}}
	if cfg.Password != "" {
		auth = append(auth, vncdriver.NewPasswordAuth(cfg.Password))
	}

	return []vncdriver.SessionOption{
		vncdriver.WithSessionLogger(logger),
		vncdriver.WithClientOptions(
			vncdriver.WithAuth(auth...),
			vncdriver.WithExclusive(cfg.Exclusive),
			vncdriver.WithConnectTimeout(cfg.ConnectTimeout.Duration),
		),
		vncdriver.WithKeyboardOptions(vncdriver.WithRatePtr(cfg.Rate)),
		vncdriver.WithIdleTimeout(cfg.IdleTimeout.Duration),
		vncdriver.WithPollInterval(cfg.PollInterval.Duration),
	}
}

func runType(ctx context.Context, cfg *config.Config, logger vncdriver.Logger, text string) error {
	session, err := vncdriver.Dial(ctx, cfg.Address, sessionOptions(cfg, logger)...)
	if err != nil {
		return err
	}
	defer session.Close()

	return session.Type(ctx, text)
}

func runScreenshot(ctx context.Context, cfg *config.Config, logger vncdriver.Logger) error {
	if cfg.CaptureMode == "" {
		return fmt.Errorf("a capture mode is required: pass --overwrite or --composite, or set capture_mode")
	}
	mode, err := vncdriver.ParseCaptureMode(cfg.CaptureMode)
	if err != nil {
		return err
	}

	path, dir, err := outputPath(cfg.Output, time.Now())
	if err != nil {
		return err
	}

	sessionOpts := sessionOptions(cfg, logger)
	if mode == vncdriver.CaptureComposite {
		previous, err := newestFrame(dir)
		if err != nil {
			return err
		}
		if previous != nil {
			logger.Debug("Compositing onto previous frame",
				vncdriver.Field{Key: "width", Value: previous.Width},
				vncdriver.Field{Key: "height", Value: previous.Height})
			sessionOpts = append(sessionOpts, vncdriver.WithPreviousFrame(previous))
		}
	}

	session, err := vncdriver.Dial(ctx, cfg.Address, sessionOpts...)
	if err != nil {
		return err
	}
	defer session.Close()

	frame, err := session.Screenshot(ctx, mode)
	if err != nil {
		return err
	}
	if err := frame.SavePNG(path); err != nil {
		return err
	}
	logger.Info("Screenshot saved", vncdriver.Field{Key: "path", Value: path})
	fmt.Println(path)
	return nil
}

// outputPath returns the PNG path to write and the directory holding it. An
// empty output or an existing directory gets a timestamped file name.
func outputPath(output string, now time.Time) (path, dir string, err error) {
	if output == "" {
		output = "."
	}
	info, err := os.Stat(output)
	switch {
	case err == nil && info.IsDir():
		return filepath.Join(output, frameFileName(now)), output, nil
	case err == nil, errors.Is(err, os.ErrNotExist):
		return output, filepath.Dir(output), nil
	default:
		return "", "", err
	}
}

func frameFileName(now time.Time) string {
	return "frame_" + now.UTC().Format("2006-01-02T15-04-05.000000000Z") + ".png"
}

// newestFrame loads the most recently modified PNG in dir, or returns nil
// when there is none.
func newestFrame(dir string) (*vncdriver.Frame, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	var newest string
	var newestTime time.Time
	for _, entry := range entries {
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), ".png") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if newest == "" || info.ModTime().After(newestTime) {
			newest = filepath.Join(dir, entry.Name())
			newestTime = info.ModTime()
		}
	}
	if newest == "" {
		return nil, nil
	}
	return vncdriver.LoadFramePNG(newest)
}
