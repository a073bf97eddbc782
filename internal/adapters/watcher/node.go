package watcher

import (
	"context"

	"github.com/grindlemire/graft"
	"go.trai.ch/kiln/internal/adapters/logger"
	"go.trai.ch/kiln/internal/core/ports"
)

// NodeID is the unique identifier for the watcher factory Graft node.
const NodeID graft.ID = "adapter.watcher"

// Factory creates fsnotify watchers reporting errors to a shared logger.
type Factory struct {
	logger ports.Logger
}

// NewWatcher implements ports.WatcherFactory.
func (f Factory) NewWatcher() (ports.Watcher, error) {
	w, err := NewWatcher(f.logger)
	if err != nil {
		return nil, err
	}
	return w, nil
}

func init() {
	graft.Register(graft.Node[ports.WatcherFactory]{
		ID:        NodeID,
		Cacheable: true,
		DependsOn: []graft.ID{logger.NodeID},
		Run: func(ctx context.Context) (ports.WatcherFactory, error) {
			log, err := graft.Dep[ports.Logger](ctx)
			if err != nil {
				return nil, err
			}
			return Factory{logger: log}, nil
		},
	})
}
