// Package watcher follows a small set of configuration files and reports
// debounced changes.
//
// Directories holding the files are watched with fsnotify so that editors
// which save by writing a temp file and renaming it are still seen. When
// fsnotify cannot be initialised the watcher polls file modification times.
//
// Usage:
//
//	w, err := watcher.NewFileWatcher([]string{"/etc/wikisearch/filters.yaml"}, watcher.Options{})
//	if err != nil {
//	    return err
//	}
//	go w.Serve(ctx, func(ctx context.Context, ev watcher.FileEvent) error {
//	    _, err := search.ImportFilterFile(ctx, meta, ev.Path)
//	    return err
//	})
package watcher
