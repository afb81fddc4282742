package store

import (
	"context"
	"os"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// ScriptExecer runs SQL scripts. Store implements it.
type ScriptExecer interface {
	ExecScript(ctx context.Context, script string) error
}

// RunScriptFile reads a SQL script from disk and executes it.
func RunScriptFile(ctx context.Context, x ScriptExecer, name string) error {
	data, err := os.ReadFile(name)
	if err != nil {
		return eris.Wrapf(err, "store: read script %s", name)
	}
	start := zap.L().With(zap.String("script", name))
	start.Info("running transform script")
	if err := x.ExecScript(ctx, string(data)); err != nil {
		return eris.Wrapf(err, "store: run script %s", name)
	}
	start.Info("transform script complete")
	return nil
}
