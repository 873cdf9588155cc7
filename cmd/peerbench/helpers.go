package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/anushabukke/peerBench-sub002/internal/archive"
	"github.com/anushabukke/peerBench-sub002/internal/ledger"
	"github.com/anushabukke/peerBench-sub002/internal/orchestration"
	"github.com/anushabukke/peerBench-sub002/internal/providers"
	"github.com/anushabukke/peerBench-sub002/internal/signing"
)

// buildProviders creates one provider per id. The returned close func
// releases every provider that was created.
func (a *app) buildProviders(ctx context.Context, ids []string) ([]*providers.Provider, func(), error) {
	registry := providers.DefaultRegistry()
	var built []*providers.Provider
	closeAll := func() {
		for _, p := range built {
			if err := p.Close(); err != nil {
				slog.Warn("Closing provider failed", "provider", p.Identifier(), "error", err)
			}
		}
	}
	for _, id := range ids {
		p, err := registry.Build(ctx, id, a.cfg, a.metrics)
		if err != nil {
			closeAll()
			return nil, func() {}, err
		}
		built = append(built, p)
	}
	return built, closeAll, nil
}

// buildSinks opens the archive and ledger sinks enabled in the project config.
func (a *app) buildSinks() ([]orchestration.Sink, func(), error) {
	var sinks []orchestration.Sink
	closeFn := func() {}

	if enabled(a.cfg.Archive.Enabled) {
		store, err := archive.New(archive.ConfigFromProject(a.cfg.Archive))
		if err != nil {
			return nil, closeFn, fmt.Errorf("configuring archive: %w", err)
		}
		sinks = append(sinks, store)
	}

	if enabled(a.cfg.Ledger.Enabled) {
		l, err := ledger.Open(a.cfg.Ledger.Path)
		if err != nil {
			return nil, closeFn, err
		}
		sinks = append(sinks, l)
		closeFn = func() {
			if err := l.Close(); err != nil {
				slog.Warn("Closing ledger failed", "error", err)
			}
		}
	}
	return sinks, closeFn, nil
}

// signer returns the operator signer unless signing is turned off.
func signer(noSign bool) (*signing.Signer, error) {
	if noSign {
		return nil, nil
	}
	s, err := signing.LoadSigner()
	if err != nil {
		return nil, err
	}
	if s == nil {
		slog.Debug("No operator key configured, outputs will not be signed", "env", signing.PrivateKeyEnv)
	}
	return s, nil
}

func enabled(b *bool) bool {
	return b != nil && *b
}

// progressPrinter writes run progress for people to read. Units report from
// several goroutines, so writes are serialized.
type progressPrinter struct {
	mu      sync.Mutex
	w       io.Writer
	verbose bool
}

func (p *progressPrinter) listen(event orchestration.ProgressEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch event.EventType {
	case orchestration.EventUnitStarted:
		fmt.Fprintf(p.w, "▶ %s (%d item(s))\n", event.Unit, event.TotalItems)
	case orchestration.EventPromptDone, orchestration.EventScoreDone:
		if p.verbose {
			fmt.Fprintf(p.w, "  ✓ [%d/%d] %s%s\n", event.ItemNum, event.TotalItems, event.Item, detail(event))
		}
	case orchestration.EventPromptCached:
		if p.verbose {
			fmt.Fprintf(p.w, "  ✓ [%d/%d] %s [cached]\n", event.ItemNum, event.TotalItems, event.Item)
		}
	case orchestration.EventPromptFailed, orchestration.EventScoreFailed:
		fmt.Fprintf(p.w, "  ✗ [%d/%d] %s: %v\n", event.ItemNum, event.TotalItems, event.Item, event.Err)
	case orchestration.EventFileFinalized:
		signed := ""
		if s, ok := event.Details["signed"].(bool); ok && s {
			signed = " signed"
		}
		fmt.Fprintf(p.w, "✓ %s cid=%v%s\n", event.Unit, event.Details["cid"], signed)
	case orchestration.EventUnitFailed:
		fmt.Fprintf(p.w, "✗ %s: %v\n", event.Unit, event.Err)
	case orchestration.EventSinkPublishErr:
		fmt.Fprintf(p.w, "! %s: %v\n", event.Unit, event.Err)
	}
}

func detail(event orchestration.ProgressEvent) string {
	if score, ok := event.Details["score"].(float64); ok {
		return fmt.Sprintf(" score=%.2f", score)
	}
	if event.Duration > 0 {
		return fmt.Sprintf(" (%dms)", event.Duration.Milliseconds())
	}
	return ""
}

// parseTargets pairs every provider with every model. A model may also be
// written provider=model to bind it to one provider only. ids are the
// configured names of provs, in the same order. A provider and model pair
// named more than once yields a single target.
func parseTargets(ids []string, provs []*providers.Provider, modelArgs []string) ([]orchestration.Target, error) {
	byID := make(map[string]*providers.Provider, len(provs))
	for i, p := range provs {
		byID[ids[i]] = p
	}

	type key struct{ provider, model string }
	seen := map[key]bool{}
	var targets []orchestration.Target
	add := func(id, model string) {
		k := key{id, strings.TrimSpace(model)}
		if seen[k] {
			return
		}
		seen[k] = true
		targets = append(targets, orchestration.Target{Provider: byID[id], Model: k.model})
	}

	for _, m := range modelArgs {
		if id, model, ok := strings.Cut(m, "="); ok {
			if _, found := byID[id]; !found {
				return nil, fmt.Errorf("model %q names provider %q, which is not in --provider", model, id)
			}
			add(id, model)
			continue
		}
		for _, id := range ids {
			add(id, m)
		}
	}
	if len(targets) == 0 {
		return nil, errors.New("no models selected")
	}
	return targets, nil
}
