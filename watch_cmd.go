package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/time/rate"
)

var watchCmd = &cobra.Command{
	Use:     "watch FILE",
	Short:   "Re-inspect an EVTX file whenever it changes",
	Long:    paragraph(fmt.Sprintf("\n%s a live event log and print its template caches again after every write.", keyword("Watch"))),
	Example: paragraph("evtxcache watch Security.evtx\nevtxcache watch -o yaml System.evtx"),
	Args:    cobra.ExactArgs(1),
	RunE:    runWatch,
}

func runWatch(cmd *cobra.Command, args []string) error {
	expanded, err := homedir.Expand(args[0])
	if err != nil {
		return fmt.Errorf("unable to expand path: %w", err)
	}
	path, err := filepath.Abs(expanded)
	if err != nil {
		return fmt.Errorf("unable to get absolute path: %w", err)
	}

	if err := inspectAndRender([]string{path}, os.Stdout); err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("error creating fsnotify watcher: %w", err)
	}
	defer watcher.Close() //nolint:errcheck

	// Watch the directory so files replaced by rename are still seen.
	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("error adding dir to fsnotify watcher: %w", err)
	}
	log.Info("fsnotify watching dir", "dir", dir)

	interval := viper.GetDuration("watch.interval")
	limiter := rate.NewLimiter(rate.Every(interval), 1)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !isFileChange(event, path) {
				continue
			}

			log.Debug("fsnotify event", "file", event.Name, "event", event.Op)
			if err := limiter.Wait(ctx); err != nil {
				return nil //nolint:nilerr
			}
			if err := inspectAndRender([]string{path}, os.Stdout); err != nil {
				// A file caught mid-write is retried on the next event.
				log.Warn("Unable to inspect file", "path", path, "error", err)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Debug("fsnotify error", "dir", dir, "error", err)
		}
	}
}

// isFileChange reports whether event wrote or (re)created path.
func isFileChange(event fsnotify.Event, path string) bool {
	if event.Name != path {
		return false
	}
	return event.Has(fsnotify.Write) || event.Has(fsnotify.Create)
}
