// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.
package decision

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
)

// AnalysisType names the query intent families. Declaration order in
// analysisFamilies doubles as the tie-break: when two families score the
// same, the earlier one wins.
type AnalysisType string

const (
	AnalysisDeviceListing   AnalysisType = "device_listing"
	AnalysisDeviceDetails   AnalysisType = "device_details"
	AnalysisComplexAnalysis AnalysisType = "complex_analysis"
	AnalysisGeneral         AnalysisType = "general"
)

const (
	routingDomain     = "query_routing"
	routingEntityType = "query"

	probeTimeout     = 2 * time.Second
	probeResultLimit = 3
)

// Signal weights. Query-text signals outweigh single document mentions so
// an explicit question shape is not drowned out by tangential knowledge.
const (
	weightKeyword       = 3
	weightCompound      = 4
	weightToolMention   = 2
	weightFamilyMention = 1
)

// Confidence thresholds over the accumulated document signal score.
const (
	confidenceHighAbove   = 3
	confidenceMediumAbove = 1
)

// Tools the assistant can dispatch to. Order is the tie-break for equal
// mention scores.
const (
	ToolListNetworkDevices   = "list_network_devices"
	ToolGetDeviceDetails     = "get_device_details"
	ToolAnalyzeNetworkImpact = "analyze_network_impact"
)

var knownTools = []string{ToolListNetworkDevices, ToolGetDeviceDetails, ToolAnalyzeNetworkImpact}

// family describes one intent family: the keywords that signal it in
// queries and documents, and the tool its signals feed.
type family struct {
	name     AnalysisType
	tool     string
	keywords []string
}

var analysisFamilies = []family{
	{
		name:     AnalysisDeviceListing,
		tool:     ToolListNetworkDevices,
		keywords: []string{"how many", "count", "list all", "show all", "inventory"},
	},
	{
		name:     AnalysisDeviceDetails,
		tool:     ToolGetDeviceDetails,
		keywords: []string{"specific", "details for", "configuration of"},
	},
	{
		name:     AnalysisComplexAnalysis,
		tool:     ToolAnalyzeNetworkImpact,
		keywords: []string{"impact", "analysis", "relationships", "depends on"},
	},
}

// Compound signals worth weightCompound: "show me" plus a listing noun or
// a concrete device identifier, and region-qualified OLT mentions such as
// "OLTs in HOBO region".
var (
	listingShowMeNouns = []string{"ftth olts", "devices", "olts"}

	deviceIDPattern      = regexp.MustCompile(`(?i)\bolt\d{2}[a-z]{2,6}\d{2,4}\b`)
	regionListingPattern = regexp.MustCompile(`(?i)\bolts?\s+(?:are\s+)?(?:deployed\s+)?in\s+\w+`)
)

// routingScores accumulates every signal of one routing evaluation. The
// zero-document fallback is not a separate code path: with no documents the
// document fields simply stay zero and the query-text signals decide alone.
type routingScores struct {
	family     map[AnalysisType]int
	tool       map[string]int
	docSignals int
	docsSeen   int
}

func newRoutingScores() *routingScores {
	return &routingScores{
		family: make(map[AnalysisType]int),
		tool:   make(map[string]int),
	}
}

// scoreQueryText extracts intent signals from the raw question. Family
// hits also feed the family's tool so that a clear question shape yields a
// tool recommendation even when the knowledge base is silent.
func (sc *routingScores) scoreQueryText(query string) {
	lq := strings.ToLower(query)
	showMe := strings.Contains(lq, "show me")

	for _, fam := range analysisFamilies {
		for _, kw := range fam.keywords {
			if strings.Contains(lq, kw) {
				sc.family[fam.name] += weightKeyword
				sc.tool[fam.tool] += weightKeyword
			}
		}
	}

	if showMe {
		for _, noun := range listingShowMeNouns {
			if strings.Contains(lq, noun) {
				sc.family[AnalysisDeviceListing] += weightCompound
				sc.tool[ToolListNetworkDevices] += weightCompound
				break
			}
		}
		if deviceIDPattern.MatchString(query) {
			sc.family[AnalysisDeviceDetails] += weightCompound
			sc.tool[ToolGetDeviceDetails] += weightCompound
		}
	}
	if regionListingPattern.MatchString(query) {
		sc.family[AnalysisDeviceListing] += weightCompound
		sc.tool[ToolListNetworkDevices] += weightCompound
	}
}

// scoreDocument extracts signals from one retrieved knowledge document:
// explicit tool mentions weigh double a keyword-family match.
func (sc *routingScores) scoreDocument(doc *RuleDocument) {
	sc.docsSeen++
	text := strings.ToLower(doc.Title + " " + doc.Content + " " + strings.Join(doc.Keywords, " "))

	for _, tool := range knownTools {
		if strings.Contains(text, tool) {
			sc.tool[tool] += weightToolMention
			sc.docSignals += weightToolMention
		}
	}
	for _, fam := range analysisFamilies {
		for _, kw := range fam.keywords {
			if strings.Contains(text, kw) {
				sc.family[fam.name] += weightFamilyMention
				sc.docSignals += weightFamilyMention
				break
			}
		}
	}
}

// bestFamily picks the highest-scoring family, earlier declaration winning
// ties. All-zero scores mean the query fits no family: general.
func (sc *routingScores) bestFamily() AnalysisType {
	best := AnalysisGeneral
	bestScore := 0
	for _, fam := range analysisFamilies {
		if s := sc.family[fam.name]; s > bestScore {
			best = fam.name
			bestScore = s
		}
	}
	return best
}

// bestTool picks the highest-scoring tool, earlier declaration winning
// ties. Nothing above zero means no recommendation.
func (sc *routingScores) bestTool() (string, int) {
	best := ""
	bestScore := 0
	for _, tool := range knownTools {
		if s := sc.tool[tool]; s > bestScore {
			best = tool
			bestScore = s
		}
	}
	return best, bestScore
}

func (sc *routingScores) confidence() ConfidenceLevel {
	switch {
	case sc.docSignals > confidenceHighAbove:
		return ConfidenceHigh
	case sc.docSignals > confidenceMediumAbove:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

// reasoning renders the accumulated evidence as a stable, human-readable
// line for logs and API responses.
func (sc *routingScores) reasoning() string {
	return fmt.Sprintf("query signals: listing=%d details=%d complex=%d; knowledge signals: %d across %d documents",
		sc.family[AnalysisDeviceListing], sc.family[AnalysisDeviceDetails],
		sc.family[AnalysisComplexAnalysis], sc.docSignals, sc.docsSeen)
}

// featureSet exposes the scores to the routing rule set so that routing
// guidance is authored with the same rule machinery as health analysis.
func (sc *routingScores) featureSet() *FeatureSet {
	_, toolScore := sc.bestTool()
	fs := NewFeatureSet()
	fs.Set("listing_score", Number(float64(sc.family[AnalysisDeviceListing])))
	fs.Set("details_score", Number(float64(sc.family[AnalysisDeviceDetails])))
	fs.Set("complex_score", Number(float64(sc.family[AnalysisComplexAnalysis])))
	fs.Set("doc_signal_score", Number(float64(sc.docSignals)))
	fs.Set("tool_score", Number(float64(toolScore)))
	return fs
}

// routingProbes derives the fixed knowledge-base probes for a query. The
// probe count and phrasing are part of the scoring contract; changing them
// shifts confidence levels fleet-wide.
func routingProbes(query string) []string {
	return []string{
		"tool selection for: " + query,
		"network operations guidance: " + query,
		"FTTH device analysis approach: " + query,
	}
}

// RouteQuery decides how the assistant should answer a natural-language
// question: which intent family it belongs to, which tool fits best, and
// how much knowledge-base evidence supports that call.
//
// Probe searches run concurrently and are advisory: a failed or timed-out
// probe only loses its own signals. With no store configured, or no
// documents found, the decision degrades to query-text signals with LOW
// confidence; the scoring function is the same in every case.
func (e *Engine) RouteQuery(ctx context.Context, query string) (*RoutingDecision, error) {
	ctx, span := tracer.Start(ctx, "decision.RouteQuery")
	defer span.End()

	sc := newRoutingScores()
	docs := e.probeSearch(ctx, query)
	for i := range docs {
		sc.scoreDocument(&docs[i])
	}
	sc.scoreQueryText(query)

	analysis := sc.bestFamily()
	tool, _ := sc.bestTool()
	confidence := sc.confidence()

	rs := e.retr.rules(ctx, routingDomain, routingEntityType)
	recommendations := e.buildRecommendations(rs, sc.featureSet())

	decision := &RoutingDecision{
		ConfidenceLevel:    confidence,
		ToolRecommendation: tool,
		AnalysisType:       analysis,
		Reasoning:          sc.reasoning(),
		Recommendations:    recommendations,
	}

	span.SetAttributes(
		attribute.String("routing.analysis_type", string(analysis)),
		attribute.String("routing.confidence", string(confidence)),
		attribute.Int("routing.doc_signals", sc.docSignals),
	)
	e.log.Debug("query routed",
		"analysis_type", analysis,
		"tool", tool,
		"confidence", confidence,
		"documents", sc.docsSeen)

	return decision, nil
}

// probeSearch fans the routing probes out against the rule store and
// merges the results, deduplicated by document ID in probe order. Probe
// failures are logged at debug and contribute nothing.
func (e *Engine) probeSearch(ctx context.Context, query string) []RuleDocument {
	if e.store == nil {
		return nil
	}
	probes := routingProbes(query)
	results := make([][]RuleDocument, len(probes))

	g, gctx := errgroup.WithContext(ctx)
	for i, probe := range probes {
		g.Go(func() error {
			pctx, cancel := context.WithTimeout(gctx, probeTimeout)
			defer cancel()
			docs, err := e.store.TextSearch(pctx, probe, routingDomain, "", probeResultLimit)
			if err != nil {
				e.log.Debug("routing probe failed", "probe", probe, "error", err)
				return nil // probes are advisory, never fail the group
			}
			results[i] = docs
			return nil
		})
	}
	_ = g.Wait()

	var merged []RuleDocument
	seen := make(map[string]struct{})
	for _, docs := range results {
		for _, doc := range docs {
			key := doc.ID
			if key == "" {
				key = doc.Title
			}
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			merged = append(merged, doc)
		}
	}
	return merged
}
