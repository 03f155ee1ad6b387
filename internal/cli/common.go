package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/danieljhkim/mdbook-confluence/internal/book"
	"github.com/danieljhkim/mdbook-confluence/internal/clock"
	"github.com/danieljhkim/mdbook-confluence/internal/config"
	"github.com/danieljhkim/mdbook-confluence/internal/confluence"
	"github.com/danieljhkim/mdbook-confluence/internal/fsops"
	"github.com/danieljhkim/mdbook-confluence/internal/hash"
	"github.com/danieljhkim/mdbook-confluence/internal/logging"
	"github.com/danieljhkim/mdbook-confluence/internal/remote"
	"github.com/danieljhkim/mdbook-confluence/internal/state"
	"github.com/danieljhkim/mdbook-confluence/internal/sync"
)

// envLogLevel sets the log level when --log-level is not given.
const envLogLevel = config.EnvPrefix + "_LOG"

// Dependencies replaced by tests.
var (
	fsys      fsops.FS    = fsops.NewRealFS()
	lookupEnv             = os.LookupEnv
	clk       clock.Clock = &clock.RealClock{}

	newRemoteClient = func(cfg *config.Config) (remote.Client, error) {
		c, err := confluence.New(cfg.URL,
			confluence.WithBasicAuth(cfg.Username, cfg.Password),
			confluence.WithTimeout(cfg.Timeout),
			confluence.WithUserAgent("mdbook-confluence/"+rootCmd.Version),
		)
		if err != nil {
			return nil, err
		}
		logger.WithField("url", c.BaseURL()).Debug("connecting to confluence")
		return c, nil
	}

	newPrompter = func() config.Prompter {
		return &config.TTYPrompter{}
	}
)

// logger is set up by setupLogging before any command runs.
var logger = logging.Discard()

func setupLogging(cmd *cobra.Command, _ []string) error {
	level := logLevel
	if level == "" {
		level, _ = lookupEnv(envLogLevel)
	}

	l, closer, err := logging.New(logging.Options{
		Level:  level,
		File:   logFile,
		Output: errOut,
	})
	if err != nil {
		return err
	}
	closeLogging()
	logger = logrus.NewEntry(l).WithField("cmd", cmd.Name())
	logCloser = closer
	return nil
}

func closeLogging() {
	if logCloser != nil {
		_ = logCloser.Close()
		logCloser = nil
	}
}

// inputs is what a sync pass reads from its environment.
type inputs struct {
	book *book.Book
	cfg  *config.Config

	// destination is mdBook's output directory for this backend. Empty when
	// the render context does not name one.
	destination string
}

// loadInputs reads the render context and layers the configuration over it.
func loadInputs(cmd *cobra.Command) (*inputs, error) {
	data, err := readRenderContext(cmd)
	if err != nil {
		return nil, err
	}

	rc, err := book.ReadRenderContext(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}

	tree := rc.Tree()
	logger.WithFields(logrus.Fields{
		"mdbook":   rc.Version,
		"root":     rc.Root,
		"chapters": tree.Count(),
		"context":  hash.Short(hash.Sum(string(data))),
	}).Debug("read render context")

	if ok, err := book.CheckVersion(rc.Version); err != nil {
		logger.WithError(err).Warn("could not check the mdBook version")
	} else if !ok {
		logger.WithFields(logrus.Fields{
			"mdbook":    rc.Version,
			"supported": book.SupportedMdBook,
		}).Warn("mdBook version is not supported, the render context may not decode correctly")
	}

	cfg, err := config.NewLoader(fsys, lookupEnv).Load(config.Sources{
		Table:      rc.OutputConfig(config.OutputName),
		BookConfig: bookConfigPath,
	})
	if err != nil {
		return nil, err
	}
	logger.WithField("config", cfg.String()).Debug("loaded configuration")

	return &inputs{book: tree, cfg: cfg, destination: rc.Destination}, nil
}

func readRenderContext(cmd *cobra.Command) ([]byte, error) {
	if contextPath != "" {
		data, err := fsys.ReadFile(contextPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read render context: %w", err)
		}
		return data, nil
	}

	in := cmd.InOrStdin()
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		return nil, errors.New("no render context on stdin; run through mdbook build or pass --context")
	}
	data, err := io.ReadAll(in)
	if err != nil {
		return nil, fmt.Errorf("failed to read render context: %w", err)
	}
	return data, nil
}

// newSyncer resolves the password and connects to the remote.
func newSyncer(cfg *config.Config) (*sync.Syncer, error) {
	if err := config.ResolvePassword(cfg, newPrompter()); err != nil {
		return nil, err
	}
	if cfg.PasswordInFile {
		logger.Warn("password is stored in a config file; prefer " + config.EnvPassword)
	}

	client, err := newRemoteClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}
	return sync.New(client, clk, logger), nil
}

// saveRecord stores what the pass published in the output directory and logs
// which pages changed since the previous record. Failures are only logged;
// the remote is already up to date.
func saveRecord(in *inputs, report *sync.Report) {
	if in.destination == "" || report.DryRun {
		return
	}
	store := state.NewFileStateStore(fsys, in.destination)
	rec := state.FromReport(report)

	prev, err := store.Load()
	switch {
	case err == nil:
		logger.WithFields(logrus.Fields{
			"previous": prev.SyncedAt.Format(time.RFC3339),
			"changed":  len(rec.Changed(prev)),
		}).Debug("compared with previous sync")
	case !errors.Is(err, os.ErrNotExist):
		logger.WithError(err).Warn("ignoring unreadable sync record")
	}

	if err := store.Save(rec); err != nil {
		logger.WithError(err).Warn("could not save sync record")
		return
	}
	logger.WithField("path", store.Path()).Debug("saved sync record")
}

// newRequest builds a sync request from the loaded inputs.
func newRequest(in *inputs, dryRun bool) *sync.SyncRequest {
	return &sync.SyncRequest{
		Book:          in.book,
		AnchorID:      in.cfg.RootPage,
		TitlePrefix:   in.cfg.TitlePrefix,
		QualifyTitles: in.cfg.QualifyTitles,
		Concurrency:   in.cfg.Concurrency,
		PreserveOrder: in.cfg.PreserveOrder,
		Retry:         in.cfg.RetryPolicy(),
		ServerVersion: in.cfg.ServerVersion,
		DryRun:        dryRun,
	}
}

// formatJSON formats a value as JSON.
func formatJSON(v interface{}) (string, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// outputJSON outputs a value as JSON to stdout.
func outputJSON(v interface{}) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
