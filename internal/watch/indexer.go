package watch

import (
	"time"

	"go.uber.org/zap"

	"github.com/railsplan/railsplan/internal/appcontext"
)

// RefreshEvent is emitted after every re-index attempt
type RefreshEvent struct {
	Files    []string
	Impact   *ChangeImpact
	Context  *appcontext.Context
	Duration time.Duration
	Err      error
}

// Indexer keeps .railsplan/context.json in sync with the source tree
type Indexer struct {
	appRoot   string
	extractor *appcontext.Extractor
	logger    *zap.Logger
	listeners []func(RefreshEvent)
	watcher   *FileWatcher
}

// NewIndexer creates an Indexer for appRoot
func NewIndexer(appRoot string, extractor *appcontext.Extractor, logger *zap.Logger) *Indexer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Indexer{appRoot: appRoot, extractor: extractor, logger: logger}
}

// OnRefresh registers a listener called after each re-index
func (ix *Indexer) OnRefresh(fn func(RefreshEvent)) {
	ix.listeners = append(ix.listeners, fn)
}

// Start begins watching. Changes that touch nothing the context reads are
// ignored.
func (ix *Indexer) Start(debounce time.Duration) error {
	fw, err := NewFileWatcher(Options{
		Root:     ix.appRoot,
		Patterns: []string{"*.rb", "*.json", "*.yml"},
		Ignored:  []string{"*.swp", "*.tmp"},
		Debounce: debounce,
		Logger:   ix.logger,
	}, ix.HandleChanges)
	if err != nil {
		return err
	}
	if err := fw.Start(); err != nil {
		_ = fw.Stop()
		return err
	}
	ix.watcher = fw
	return nil
}

// Stop stops watching
func (ix *Indexer) Stop() error {
	if ix.watcher == nil {
		return nil
	}
	return ix.watcher.Stop()
}

// HandleChanges re-indexes when files affect the context
func (ix *Indexer) HandleChanges(files []string) error {
	impact := AnalyzeImpact(files)
	if !impact.RequiresReindex() {
		ix.logger.Debug("changes do not affect context", zap.Strings("files", files))
		return nil
	}

	start := time.Now()
	ctx, err := ix.extractor.Refresh(ix.appRoot)
	event := RefreshEvent{
		Files:    files,
		Impact:   impact,
		Context:  ctx,
		Duration: time.Since(start),
		Err:      err,
	}
	for _, fn := range ix.listeners {
		fn(event)
	}
	if err != nil {
		return err
	}

	ix.logger.Info("context refreshed",
		zap.Int("files", len(files)),
		zap.String("hash", ctx.Hash),
		zap.Duration("duration", event.Duration))
	return nil
}
