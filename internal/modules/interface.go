package modules

import (
	"context"
	"sync"
)

// Module defines the lifecycle shared by application modules.
type Module interface {
	Run(ctx context.Context, wg *sync.WaitGroup)
	Close() error
}
