package pipeline

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/cropsense/farmops/internal/config"
	"github.com/cropsense/farmops/internal/model"
	"github.com/cropsense/farmops/pkg/anthropic"
	"github.com/cropsense/farmops/pkg/exa"
)

const researchSystemPrompt = `You are a plant pathology researcher. Synthesize the supplied literature excerpts about a crop disease into structured findings. Provide specific, actionable information grounded in the excerpts. Respond with a valid JSON object: {"disease_causes": ["<cause>"], "pathogen_lifecycle": "<narrative or empty>", "spread_mechanisms": ["<mechanism>"], "host_range": ["<crop>"], "recent_developments": ["<development>"]}`

const researchUserPrompt = `Disease: %s
Crop: %s

Literature excerpts:
%s`

// researchTopics are the targeted literature searches, each formatted with
// disease name then crop type. Order is fixed so the synthesized corpus is
// stable for a given set of results.
var researchTopics = []struct {
	name  string
	query string
}{
	{"causes", "%s %s causes pathogen lifecycle"},
	{"treatment", "%s %s treatment control management"},
	{"prevention", "%s %s prevention integrated pest management"},
	{"recent_research", "%s %s recent research 2023 2024"},
}

// researchDomains is the agricultural-literature allowlist.
var researchDomains = []string{
	"extension.org",
	"icar.org.in",
	"fao.org",
	"usda.gov",
	"agriculture.com",
	"researchgate.net",
	"springer.com",
	"sciencedirect.com",
	"wiley.com",
	"nature.com",
}

const (
	researchResultsPerTopic = 5
	researchTextLimit       = 1500
	researchCorpusLimit     = 8000
	maxResearchSources      = 10
)

// ResearchDisease implements the literature stage: four topic searches fan
// out concurrently, merge after all settle, and one completion call distills
// the combined excerpts. A failed topic contributes nothing; only a failed
// synthesis trips the fallback.
func ResearchDisease(ctx context.Context, diseaseName, cropType string, searchClient exa.Client, aiClient anthropic.Client, aiCfg config.AnthropicConfig, concurrency int) (*model.ResearchFindings, *anthropic.TokenUsage, error) {
	if concurrency < 1 {
		concurrency = 1
	}

	// Each goroutine owns one slot, so no mutex is needed.
	topicResults := make([][]exa.SearchResult, len(researchTopics))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, topic := range researchTopics {
		g.Go(func() error {
			query := fmt.Sprintf(topic.query, diseaseName, cropType)
			resp, err := searchClient.Search(gctx, query,
				exa.WithNumResults(researchResultsPerTopic),
				exa.WithDomainFilter(researchDomains...),
				exa.WithTextLimit(researchTextLimit),
			)
			if err != nil {
				zap.L().Warn("research: topic search failed",
					zap.String("topic", topic.name),
					zap.Error(err),
				)
				return nil
			}
			topicResults[i] = resp.Results
			return nil
		})
	}
	_ = g.Wait()

	var corpus strings.Builder
	var sources []string
	for i, topic := range researchTopics {
		for _, r := range topicResults[i] {
			fmt.Fprintf(&corpus, "\n--- %s RESEARCH ---\n", strings.ToUpper(topic.name))
			fmt.Fprintf(&corpus, "Title: %s\n", r.Title)
			fmt.Fprintf(&corpus, "Content: %s\n", r.Text)
			if r.URL != "" {
				sources = append(sources, r.URL)
			}
		}
	}
	if len(sources) > maxResearchSources {
		sources = sources[:maxResearchSources]
	}

	excerpts := corpus.String()
	if len(excerpts) > researchCorpusLimit {
		excerpts = excerpts[:researchCorpusLimit]
	}

	var out struct {
		Causes             []string `json:"disease_causes"`
		PathogenLifecycle  string   `json:"pathogen_lifecycle"`
		SpreadMechanisms   []string `json:"spread_mechanisms"`
		HostRange          []string `json:"host_range"`
		RecentDevelopments []string `json:"recent_developments"`
	}
	usage, err := requestJSON(ctx, aiClient, anthropic.MessageRequest{
		Model:     aiCfg.Model,
		MaxTokens: aiCfg.MaxTokens,
		System:    anthropic.BuildCachedSystemBlocks(researchSystemPrompt),
		Messages: []anthropic.Message{
			{Role: "user", Content: fmt.Sprintf(researchUserPrompt, diseaseName, cropType, excerpts)},
		},
	}, "research", &out)
	if err != nil {
		return FallbackResearchFindings(diseaseName), usage, err
	}

	findings := &model.ResearchFindings{
		Causes:             out.Causes,
		PathogenLifecycle:  out.PathogenLifecycle,
		SpreadMechanisms:   out.SpreadMechanisms,
		HostRange:          out.HostRange,
		Sources:            sources,
		RecentDevelopments: out.RecentDevelopments,
	}
	for _, list := range []*[]string{&findings.Causes, &findings.SpreadMechanisms, &findings.HostRange, &findings.Sources, &findings.RecentDevelopments} {
		if *list == nil {
			*list = []string{}
		}
	}
	return findings, usage, nil
}

// FallbackResearchFindings is the literature result when synthesis fails.
func FallbackResearchFindings(diseaseName string) *model.ResearchFindings {
	return &model.ResearchFindings{
		Causes:             []string{fmt.Sprintf("Unknown causes for %s", diseaseName)},
		SpreadMechanisms:   []string{"unknown transmission"},
		HostRange:          []string{},
		Sources:            []string{},
		RecentDevelopments: []string{},
	}
}
