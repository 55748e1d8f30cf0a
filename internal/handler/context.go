package handler

import (
	"github.com/EvilPatrick06/DnD-sub018/internal/data"
	"github.com/EvilPatrick06/DnD-sub018/internal/perception"
	"go.uber.org/zap"
)

// Deps holds shared dependencies injected into the console handlers.
type Deps struct {
	Session *perception.Session
	Lights  *data.LightTable // optional, listed by "sources"
	Log     *zap.Logger
}

func (d *Deps) log() *zap.Logger {
	if d.Log == nil {
		return zap.NewNop()
	}
	return d.Log
}
