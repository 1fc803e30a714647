package examine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hazyhaar/tagqa/specmatch"
	"github.com/hazyhaar/tagqa/tagcheck/internal/recording"
	"github.com/hazyhaar/tagqa/tagcheck/report"
)

// Failure details recorded on ResultRecord.Detail.
const (
	DetailNoSource     = "no observation source"
	DetailUnclassified = "unclassified spec"
	DetailNoMatch      = "no match"
	DetailTimeout      = "collect: timeout"
)

// Config controls the examination pool.
type Config struct {
	Concurrency      int           // parallel records. Default: 5.
	CollectTimeout   time.Duration // per collector call. Default: 60s.
	StrictValueMatch bool
	Logger           *slog.Logger
}

func (c *Config) defaults() {
	if c.Concurrency <= 0 {
		c.Concurrency = 5
	}
	if c.CollectTimeout <= 0 {
		c.CollectTimeout = 60 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Pipeline examines spec records against observations from a Collector.
type Pipeline struct {
	cfg       Config
	collector Collector
	matcher   specmatch.Matcher
}

// NewPipeline creates a Pipeline.
func NewPipeline(collector Collector, cfg Config) *Pipeline {
	cfg.defaults()
	return &Pipeline{
		cfg:       cfg,
		collector: collector,
		matcher:   specmatch.Matcher{StrictValueMatch: cfg.StrictValueMatch},
	}
}

// Examine returns one ResultRecord per input record, in input order. Every
// per-record failure is contained and yields Value=false.
func (p *Pipeline) Examine(ctx context.Context, records []SpecRecord, resultField string) []report.ResultRecord {
	results := make([]report.ResultRecord, len(records))

	var g errgroup.Group
	g.SetLimit(p.cfg.Concurrency)
	for i, rec := range records {
		g.Go(func() error {
			ok, detail := p.examineOne(ctx, rec)
			results[i] = report.ResultRecord{ID: rec.ID, Field: resultField, Value: ok, Detail: detail}
			if !ok {
				p.cfg.Logger.Debug("examine: record failed", "id", rec.ID, "mode", rec.Mode, "detail", detail)
			}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

type specKind int

const (
	kindUnknown specKind = iota
	kindDataLayer
	kindAttributes
)

var attrHintRe = regexp.MustCompile(`data-[\w\-:.]+\s*=`)

// classify ignores case: hand-written specs spell it datalayer as often as dataLayer.
func classify(codeSpec string) specKind {
	lower := strings.ToLower(codeSpec)
	switch {
	case strings.Contains(lower, "datalayer"):
		return kindDataLayer
	case strings.Contains(lower, "dataattributes"), attrHintRe.MatchString(lower):
		return kindAttributes
	}
	return kindUnknown
}

func (p *Pipeline) examineOne(ctx context.Context, rec SpecRecord) (bool, string) {
	if rec.Mode == ModeNone {
		return false, DetailNoSource
	}
	if strings.TrimSpace(rec.CodeSpec) == "" {
		return false, specmatch.ErrMissingSpec.Error()
	}

	var (
		layerSpec specmatch.Node
		attrSpec  *specmatch.AttributeSpec
		err       error
	)
	kind := classify(rec.CodeSpec)
	switch kind {
	case kindDataLayer:
		layerSpec, err = specmatch.Parse(rec.CodeSpec)
	case kindAttributes:
		attrSpec, err = specmatch.ParseAttributes(rec.CodeSpec)
	default:
		return false, DetailUnclassified
	}
	if err != nil {
		return false, err.Error()
	}

	obs, err := p.collect(ctx, rec)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return false, DetailTimeout
		}
		return false, err.Error()
	}

	var ok bool
	if kind == kindDataLayer {
		ok = p.matcher.ValidateAgainstCandidates(layerSpec, dataLayerValue(obs.DataLayer))
	} else {
		elements, err := specmatch.ExtractDataAttributes(obs.HTML)
		if err != nil {
			return false, fmt.Sprintf("extract attributes: %v", err)
		}
		ok = p.matcher.MatchAttributes(attrSpec, elements)
	}
	if !ok {
		return false, DetailNoMatch
	}
	return true, ""
}

func (p *Pipeline) collect(ctx context.Context, rec SpecRecord) (Observation, error) {
	cctx, cancel := context.WithTimeout(ctx, p.cfg.CollectTimeout)
	defer cancel()

	if rec.Mode == ModeRecording {
		script, err := recording.Parse([]byte(rec.Source))
		if err != nil {
			return Observation{}, err
		}
		return p.collector.Replay(cctx, script)
	}
	return p.collector.ObserveURL(cctx, rec.Source)
}

// dataLayerValue converts the observed layer to the []any shape the matcher
// treats as a candidate set.
func dataLayerValue(layer []any) any {
	if layer == nil {
		return []any{}
	}
	return layer
}
