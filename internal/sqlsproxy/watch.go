/*---------------------------------------------------------------------------------------------
 *  Copyright (c) MrTomatePNG. All rights reserved.
 *  Licensed under the MIT License. See LICENSE in the project root for license information.
 *--------------------------------------------------------------------------------------------*/

package sqlsproxy

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-logr/logr"

	"github.com/MrTomatePNG/zed-sqls-extension/internal/lsp"
)

const (
	didChangeConfigurationMethod = "workspace/didChangeConfiguration"

	// Editors save a file with several file system operations; they are coalesced into one reload.
	settingsReloadDelay = 100 * time.Millisecond
)

// MessageInjector sends proxy-originated messages. Implemented by *lsp.Session.
type MessageInjector interface {
	Inject(ctx context.Context, dir lsp.Direction, msg *lsp.Message) error
}

// settingsWatcher sends the settings from the initialization options file to the language server
// (as a workspace/didChangeConfiguration notification) every time the file changes.
type settingsWatcher struct {
	path        string
	watcher     *fsnotify.Watcher
	initialized <-chan struct{}
	target      MessageInjector
	log         logr.Logger
}

// newSettingsWatcher starts watching the file. Changes are reported once the server is initialized.
func newSettingsWatcher(path string, initialized <-chan struct{}, target MessageInjector, log logr.Logger) (*settingsWatcher, error) {
	absPath, absErr := filepath.Abs(path)
	if absErr != nil {
		return nil, fmt.Errorf("could not resolve path of '%s': %w", path, absErr)
	}

	watcher, watcherErr := fsnotify.NewWatcher()
	if watcherErr != nil {
		return nil, fmt.Errorf("could not create file watcher: %w", watcherErr)
	}

	// Watch the folder: many editors replace the file instead of writing to it.
	if addErr := watcher.Add(filepath.Dir(absPath)); addErr != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("could not watch '%s': %w", filepath.Dir(absPath), addErr)
	}

	return &settingsWatcher{
		path:        absPath,
		watcher:     watcher,
		initialized: initialized,
		target:      target,
		log:         log.WithName("settings-watcher").WithValues("file", absPath),
	}, nil
}

// run processes file system events until the context is done.
func (sw *settingsWatcher) run(ctx context.Context) {
	defer func() { _ = sw.watcher.Close() }()

	initialized := sw.initialized
	var reload *time.Timer
	var reloadC <-chan time.Time
	pending := false

	for {
		select {
		case <-ctx.Done():
			if reload != nil {
				reload.Stop()
			}
			return

		case event, isOpen := <-sw.watcher.Events:
			if !isOpen {
				return
			}
			if filepath.Clean(event.Name) != sw.path || !(event.Has(fsnotify.Write) || event.Has(fsnotify.Create)) {
				continue
			}
			if reload != nil {
				reload.Stop()
			}
			reload = time.NewTimer(settingsReloadDelay)
			reloadC = reload.C

		case watchErr, isOpen := <-sw.watcher.Errors:
			if !isOpen {
				return
			}
			sw.log.Error(watchErr, "File watcher error")

		case <-reloadC:
			reloadC = nil
			if initialized != nil {
				sw.log.V(1).Info("Settings changed before the language server was initialized")
				pending = true
				continue
			}
			sw.sendSettings(ctx)

		case <-initialized:
			initialized = nil
			if pending {
				pending = false
				sw.sendSettings(ctx)
			}
		}
	}
}

func (sw *settingsWatcher) sendSettings(ctx context.Context) {
	settings, loadErr := LoadInitOptions(sw.path)
	if loadErr != nil {
		sw.log.Error(loadErr, "Settings file changed but could not be loaded, keeping current settings")
		return
	}
	if settings == nil {
		sw.log.V(1).Info("Settings file is gone or empty, keeping current settings")
		return
	}

	notification, msgErr := lsp.NewNotification(didChangeConfigurationMethod, map[string]json.RawMessage{"settings": settings})
	if msgErr != nil {
		sw.log.Error(msgErr, "Could not create configuration change notification")
		return
	}

	if injectErr := sw.target.Inject(ctx, lsp.Upstream, notification); injectErr != nil {
		if ctx.Err() == nil {
			sw.log.Error(injectErr, "Could not send settings to the language server")
		}
		return
	}
	sw.log.Info("Sent changed settings to the language server")
}

// WatchInitOptions watches the initialization options file until the context is done.
// Every change made after the server is initialized is sent to it as a workspace/didChangeConfiguration
// notification (changes made earlier are sent once it is). Returns an error if the file cannot be watched.
func WatchInitOptions(ctx context.Context, path string, initialized <-chan struct{}, target MessageInjector, log logr.Logger) error {
	if path == "" {
		return nil
	}

	sw, err := newSettingsWatcher(path, initialized, target, log)
	if err != nil {
		return err
	}
	go sw.run(ctx)
	return nil
}
