package pipeline

import (
	"bytes"
	"context"
	"slices"
	"sync/atomic"

	"git.home.luguber.info/inful/assetbuilder/internal/asset"
	"git.home.luguber.info/inful/assetbuilder/internal/deps"
	"git.home.luguber.info/inful/assetbuilder/internal/entry"
	ferrors "git.home.luguber.info/inful/assetbuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/assetbuilder/internal/logfields"
)

// passState carries the data one pass accumulates from stage to stage.
type passState struct {
	ctx    context.Context
	orch   *Orchestrator
	report *Report

	graphs []entryGraph
	// files is every source file to transform, in discovery order.
	files  []string
	seen   map[string]bool
	images []string

	outputs     map[string][]byte
	cacheHits   atomic.Int64
	cacheMisses atomic.Int64

	artifacts []plannedArtifact
	index     map[string]int
}

type entryGraph struct {
	entry entry.Entry
	graph *deps.Graph
}

type plannedArtifact struct {
	asset.Artifact
	category asset.Category
}

func (ps *passState) addFile(p string) {
	if ps.seen == nil {
		ps.seen = make(map[string]bool)
	}
	if ps.seen[p] {
		return
	}
	ps.seen[p] = true
	ps.files = append(ps.files, p)
	if asset.CategoryOf(p) == asset.CategoryImage {
		ps.images = append(ps.images, p)
	}
}

func (ps *passState) addReason(file string, by []string) {
	base := ps.orch.cfg.BaseDir
	key := relTo(base, file)
	for _, b := range by {
		if b != deps.ReasonEntry {
			b = relTo(base, b)
		}
		if !slices.Contains(ps.report.Reasons[key], b) {
			ps.report.Reasons[key] = append(ps.report.Reasons[key], b)
		}
	}
}

// plan records an artifact. A later artifact for the same path replaces the
// earlier one; differing content is reported as a planning conflict.
func (ps *passState) plan(rel string, content []byte, source string, category asset.Category) {
	if ps.index == nil {
		ps.index = make(map[string]int)
	}
	a := plannedArtifact{Artifact: asset.NewArtifact(rel, content, source), category: category}
	if i, ok := ps.index[a.RelPath]; ok {
		prev := ps.artifacts[i]
		if !bytes.Equal(prev.Content, a.Content) {
			w := ferrors.PlanningConflict("two sources plan the same output path with different content").
				WithContext("path", a.RelPath).
				WithContext("previous", relTo(ps.orch.cfg.BaseDir, prev.Source)).
				WithContext("source", relTo(ps.orch.cfg.BaseDir, source)).
				Build()
			ps.report.AddWarning(w)
			ps.orch.logger.Warn("Planning conflict, last writer wins", logfields.PassID(ps.report.PassID), logfields.Artifact(a.RelPath))
		}
		ps.artifacts[i] = a
		return
	}
	ps.index[a.RelPath] = len(ps.artifacts)
	ps.artifacts = append(ps.artifacts, a)
}
