package pipeline

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/cropsense/farmops/internal/model"
	"github.com/cropsense/farmops/internal/store"
	"github.com/cropsense/farmops/pkg/anthropic"
	"github.com/cropsense/farmops/pkg/exa"
)

// Compile-time interface checks.
var (
	_ anthropic.Client = (*StubCompletionClient)(nil)
	_ exa.Client       = (*StubSearchClient)(nil)
	_ store.Store      = (*StubFarmStore)(nil)
)

// Canned stage responses for offline runs. Each stage is recognized by a
// schema key that appears only in its system prompt.
const (
	stubIdentifyJSON = `{"disease_name": "Bacterial Leaf Spot", "scientific_name": "Xanthomonas campestris", "confidence": "medium", "confidence_score": 0.75, "symptoms_observed": ["leaf spots", "yellowing", "wilting"], "affected_plant_parts": ["leaves", "stems"], "severity": "moderate"}`

	stubEnvironmentJSON = `{"soil_ph_impact": "Acidic soil (pH < 6.0) increases disease susceptibility", "moisture_conditions": "High moisture and poor drainage favor pathogen growth", "temperature_range": "Optimal disease development at 25-30°C", "humidity_impact": "High humidity (>80%) promotes spore germination", "nutrient_deficiencies": ["nitrogen deficiency", "potassium deficiency"], "environmental_stress_factors": ["waterlogging", "temperature stress", "poor air circulation"]}`

	stubResearchJSON = `{"disease_causes": ["fungal pathogen", "environmental stress", "poor sanitation"], "pathogen_lifecycle": "Pathogen overwinters in soil debris, spreads through water splash", "spread_mechanisms": ["water splash", "wind dispersal", "contaminated tools", "infected seeds"], "host_range": ["tomato", "pepper", "eggplant", "potato"], "recent_developments": ["new resistant varieties", "biological control agents", "precision application methods"]}`

	stubTreatmentJSON = `{"treatments": [
		{"treatment_name": "Copper-based Fungicide", "treatment_type": "chemical", "active_ingredients": ["copper sulfate", "copper hydroxide"], "application_method": "Foliar spray", "dosage": "2-3 grams per liter of water", "frequency": "Every 7-10 days", "timing": "Early morning or evening", "cost_estimate": "₹200-300 per acre", "availability": "Local agricultural stores, online retailers", "effectiveness": 0.8, "side_effects": ["may cause leaf burn if overused", "avoid during flowering"]},
		{"treatment_name": "Trichoderma Biological Control", "treatment_type": "biological", "active_ingredients": ["Trichoderma viride", "Trichoderma harzianum"], "application_method": "Soil application and foliar spray", "dosage": "5-10 grams per liter for spray, 1 kg per acre for soil", "frequency": "Every 15 days", "timing": "Before disease onset, preventive application", "cost_estimate": "₹150-250 per acre", "availability": "Bio-fertilizer dealers, ICAR centers", "effectiveness": 0.7, "side_effects": ["no known side effects", "compatible with organic farming"]},
		{"treatment_name": "Cultural Management", "treatment_type": "cultural", "active_ingredients": ["improved sanitation", "crop rotation"], "application_method": "Field management practices", "dosage": "Complete implementation", "frequency": "Continuous", "timing": "Throughout growing season", "cost_estimate": "₹50-100 per acre (labor cost)", "availability": "Farmer implementation", "effectiveness": 0.6, "side_effects": ["requires additional labor", "long-term benefits"]}
	]}`

	stubPreventionJSON = `{"strategies": [
		{"strategy_name": "Crop Rotation", "description": "Implement 3-4 year crop rotation with non-host crops to break disease cycle", "implementation_steps": ["Plan rotation sequence with cereals or legumes", "Avoid planting susceptible crops in same field", "Maintain rotation records", "Monitor soil health during rotation"], "timing": "Plan before next planting season", "cost": "₹500-1000 per acre (planning and implementation)", "effectiveness": 0.8},
		{"strategy_name": "Sanitation Practices", "description": "Implement strict field sanitation to reduce pathogen load", "implementation_steps": ["Remove and destroy infected plant debris", "Clean tools between fields", "Use certified disease-free seeds", "Disinfect equipment regularly"], "timing": "Continuous throughout season", "cost": "₹200-400 per acre (labor and materials)", "effectiveness": 0.7},
		{"strategy_name": "Water Management", "description": "Optimize irrigation to reduce disease-favorable conditions", "implementation_steps": ["Install drip irrigation system", "Avoid overhead watering", "Improve field drainage", "Monitor soil moisture levels"], "timing": "Before planting and throughout season", "cost": "₹2000-5000 per acre (infrastructure)", "effectiveness": 0.75}
	]}`

	stubSummaryJSON = `{"executive_summary": "Analysis has identified Bacterial Leaf Spot affecting the crop with medium confidence. The disease severity is assessed as moderate, with potential yield losses requiring immediate intervention. Multiple treatment options are available with varying effectiveness levels, and immediate intervention is recommended to minimize economic impact and preserve crop quality.", "immediate_actions": ["Implement moderate severity treatment protocol immediately", "Apply recommended fungicide/bactericide as per treatment guidelines", "Improve field drainage and reduce moisture stress", "Remove and destroy infected plant material", "Monitor disease progression daily"], "long_term_recommendations": ["Implement crop rotation with non-host crops", "Invest in resistant varieties for next season", "Establish regular monitoring and early detection protocols", "Improve soil health through organic matter addition", "Consider precision agriculture technologies for better management"]}`
)

// StubCompletionClient implements anthropic.Client with canned stage
// responses for offline runs and tests.
type StubCompletionClient struct{}

// CreateMessage implements anthropic.Client.
func (s *StubCompletionClient) CreateMessage(_ context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	var content strings.Builder
	for _, sys := range req.System {
		content.WriteString(sys.Text)
	}
	for _, m := range req.Messages {
		content.WriteString(m.Content)
	}
	prompt := content.String()

	var responseText string
	switch {
	case strings.Contains(prompt, "executive_summary"):
		responseText = stubSummaryJSON
	case strings.Contains(prompt, "strategy_name"):
		responseText = stubPreventionJSON
	case strings.Contains(prompt, "treatment_name"):
		responseText = stubTreatmentJSON
	case strings.Contains(prompt, "disease_causes"):
		responseText = stubResearchJSON
	case strings.Contains(prompt, "soil_ph_impact"):
		responseText = stubEnvironmentJSON
	default:
		responseText = stubIdentifyJSON
	}

	return &anthropic.MessageResponse{
		ID:         "stub-msg-001",
		Model:      req.Model,
		Content:    []anthropic.ContentBlock{{Type: "text", Text: responseText}},
		StopReason: "end_turn",
		Usage: anthropic.TokenUsage{
			InputTokens:  150,
			OutputTokens: 50,
		},
	}, nil
}

// StubSearchClient implements exa.Client with canned agricultural results.
type StubSearchClient struct{}

// Search implements exa.Client.
func (s *StubSearchClient) Search(_ context.Context, query string, _ ...exa.SearchOption) (*exa.SearchResponse, error) {
	return &exa.SearchResponse{
		RequestID: "stub-search-001",
		Results: []exa.SearchResult{
			{
				Title: "Managing bacterial leaf spot in vegetable crops",
				URL:   "https://extension.org/bacterial-leaf-spot",
				Text:  "Bacterial leaf spot develops rapidly in warm, wet weather. Copper-based bactericides applied early, combined with strict field sanitation, reduce spread.",
				Score: 0.91,
			},
			{
				Title: "Integrated disease management for solanaceous crops",
				URL:   "https://icar.org.in/integrated-disease-management",
				Text:  "Crop rotation with non-host cereals, certified disease-free seed, and drip irrigation lower pathogen pressure across seasons.",
				Score: 0.87,
			},
		},
	}, nil
}

// StubFarmStore implements store.Store in memory for offline runs. Created
// logs and tasks stay inspectable through the exported fields.
type StubFarmStore struct {
	mu      sync.Mutex
	reports []model.StoredReport

	Logs  []model.LogEntry
	Tasks []model.Task
}

// CreateReport implements store.Store.
func (s *StubFarmStore) CreateReport(_ context.Context, rec model.StoredReport) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	s.reports = append(s.reports, rec)
	return rec.ID, nil
}

// GetReport implements store.Store.
func (s *StubFarmStore) GetReport(_ context.Context, id string) (*model.StoredReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.reports {
		if s.reports[i].ID == id {
			rec := s.reports[i]
			return &rec, nil
		}
	}
	return nil, nil
}

// ListReports implements store.Store.
func (s *StubFarmStore) ListReports(_ context.Context, actorID, page, pageSize int) ([]model.ReportSummary, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var summaries []model.ReportSummary
	for _, rec := range s.reports {
		if actorID > 0 && rec.ActorID != actorID {
			continue
		}
		disease := ""
		if rec.Report != nil {
			disease = rec.Report.Disease.Name
		}
		summaries = append(summaries, model.ReportSummary{
			ID:         rec.ID,
			Title:      rec.Title,
			CropType:   rec.CropType,
			Disease:    disease,
			Confidence: rec.Confidence,
			CreatedAt:  rec.CreatedAt,
		})
	}
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].CreatedAt.After(summaries[j].CreatedAt)
	})

	total := len(summaries)
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = store.DefaultPageSize
	}
	start := (page - 1) * pageSize
	if start >= total {
		return []model.ReportSummary{}, total, nil
	}
	end := start + pageSize
	if end > total {
		end = total
	}
	return summaries[start:end], total, nil
}

// Stats implements store.Store.
func (s *StubFarmStore) Stats(_ context.Context, actorID int) (*model.ReportStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := &model.ReportStats{
		CropCounts:    map[string]int{},
		DiseaseCounts: map[string]int{},
		SeverityDist:  map[string]int{},
		Recent:        []model.ReportSummary{},
	}
	var confidenceSum float64
	for _, rec := range s.reports {
		if actorID > 0 && rec.ActorID != actorID {
			continue
		}
		stats.TotalAnalyses++
		confidenceSum += rec.Confidence
		if rec.HasImage {
			stats.WithImages++
		}
		stats.CropCounts[rec.CropType]++
		disease := ""
		if rec.Report != nil {
			disease = rec.Report.Disease.Name
			stats.DiseaseCounts[disease]++
			stats.SeverityDist[string(rec.Report.Disease.Severity)]++
			if len(rec.Report.TaskIDs) > 0 {
				stats.WithTasks++
			}
			if rec.Report.LogEntryID != "" {
				stats.WithLogs++
			}
		}
		stats.Recent = append(stats.Recent, model.ReportSummary{
			ID:         rec.ID,
			Title:      rec.Title,
			CropType:   rec.CropType,
			Disease:    disease,
			Confidence: rec.Confidence,
			CreatedAt:  rec.CreatedAt,
		})
	}
	if stats.TotalAnalyses > 0 {
		stats.AvgConfidence = confidenceSum / float64(stats.TotalAnalyses)
	}
	sort.Slice(stats.Recent, func(i, j int) bool {
		return stats.Recent[i].CreatedAt.After(stats.Recent[j].CreatedAt)
	})
	if len(stats.Recent) > 5 {
		stats.Recent = stats.Recent[:5]
	}
	return stats, nil
}

// CreateLogEntry implements store.Store.
func (s *StubFarmStore) CreateLogEntry(_ context.Context, entry model.LogEntry) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	s.Logs = append(s.Logs, entry)
	return entry.ID, nil
}

// CreateTask implements store.Store.
func (s *StubFarmStore) CreateTask(_ context.Context, task model.Task) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if task.ID == "" {
		task.ID = uuid.New().String()
	}
	s.Tasks = append(s.Tasks, task)
	return task.ID, nil
}

// Migrate implements store.Store.
func (s *StubFarmStore) Migrate(context.Context) error { return nil }

// Ping implements store.Store.
func (s *StubFarmStore) Ping(context.Context) error { return nil }

// Close implements store.Store.
func (s *StubFarmStore) Close() error { return nil }
