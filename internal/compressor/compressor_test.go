package compressor

import "testing"

func testDict() *Dictionary {
	return &Dictionary{
		ModelProfiles: map[string]ModelProfile{
			"default": {MaxContextTokens: 8192, OptimalIntelligenceTokens: 120, CompressionTolerance: 0.15},
		},
		Abbreviations: map[string]string{
			"messageComplexity": "mc",
			"primaryEmotion":    "e",
		},
	}
}

func TestEstimateTokensDeterministic(t *testing.T) {
	if got := EstimateTokens("abcd"); got != 1 {
		t.Fatalf("expected 1, got %d", got)
	}
	if got := EstimateTokens("abcde"); got != 2 {
		t.Fatalf("expected 2, got %d", got)
	}
	if got := EstimateTokens(""); got != 0 {
		t.Fatalf("expected 0, got %d", got)
	}
}

func TestComputeBudgetClampsToModelCeiling(t *testing.T) {
	profile := ModelProfile{MaxContextTokens: 1000, OptimalIntelligenceTokens: 500, CompressionTolerance: 0.1}
	ctx := Context{MessageType: "analysis", Complexity: 10, HistoryLen: 20}
	budget := computeBudget(ctx, profile)
	if budget > 100 { // 10% of 1000
		t.Fatalf("expected budget clamped to 100, got %d", budget)
	}
}

func TestSelectStrategyThresholds(t *testing.T) {
	if selectStrategy(50) != StrategyMinimal {
		t.Fatal("expected minimal at 50")
	}
	if selectStrategy(150) != StrategyComprehensive {
		t.Fatal("expected comprehensive at 150")
	}
	if selectStrategy(100) != StrategyBalanced {
		t.Fatal("expected balanced at 100")
	}
}

func TestCompressBudgetHonored(t *testing.T) {
	dict := testDict()
	ctx := Context{
		MessageType: "analysis",
		Complexity:  8,
		HistoryLen:  12,
		Model:       "default",
		Core:        map[string]interface{}{"currentMoment": "deciding next steps now please"},
		Dynamic:     map[string]interface{}{"messageComplexity": 7.0, "engagementLevel": "high"},
		Emotional:   map[string]interface{}{"primaryEmotion": "hopeful", "emotionalIntensity": 6.0},
		Contextual:  map[string]interface{}{"topicFocus": "career planning and exploration"},
		Predictive:  map[string]interface{}{"trendDirection": map[string]interface{}{"trend": "increasing", "current": "high"}},
		Behavioral:  map[string]interface{}{"decisionStyle": "analytical"},
		Cognitive:   map[string]interface{}{"personalityTraits": []interface{}{"curious", "direct"}},
	}
	result := Compress(ctx, dict)
	if EstimateTokens(result.Text) > result.Budget {
		t.Fatalf("expected output within budget %d, got %d tokens (%q)", result.Budget, EstimateTokens(result.Text), result.Text)
	}
}

func TestCompressDeterministic(t *testing.T) {
	dict := testDict()
	ctx := Context{
		MessageType: "standard",
		Complexity:  5,
		HistoryLen:  5,
		Model:       "default",
		Core:        map[string]interface{}{"currentMoment": "checking in"},
		Emotional:   map[string]interface{}{"primaryEmotion": "calm"},
	}
	a := Compress(ctx, dict)
	b := Compress(ctx, dict)
	if a.Text != b.Text {
		t.Fatalf("expected deterministic output, got %q vs %q", a.Text, b.Text)
	}
}

func TestCompressEmptyContextProducesEmptyOrMinimal(t *testing.T) {
	dict := testDict()
	result := Compress(Context{MessageType: "greeting", Model: "default"}, dict)
	if EstimateTokens(result.Text) > result.Budget {
		t.Fatalf("expected within budget, got %d > %d", EstimateTokens(result.Text), result.Budget)
	}
}

func TestCompressNilDictFallsBack(t *testing.T) {
	result := Compress(Context{MessageType: "standard"}, nil)
	if !result.IsFallback {
		t.Fatal("expected fallback result for nil dictionary")
	}
}

func TestFallbackDefaultsType(t *testing.T) {
	result := Fallback("")
	if result.Text != "User shows standard communication pattern." {
		t.Fatalf("got %q", result.Text)
	}
	if !result.IsFallback {
		t.Fatal("expected IsFallback true")
	}
}

func TestCompressObjectSpecialForms(t *testing.T) {
	trend := compressObject(map[string]interface{}{"trend": "increasing", "current": "high"})
	if trend != "inc>hi" {
		t.Fatalf("expected trend short form, got %q", trend)
	}
	emo := compressObject(map[string]interface{}{"emotion": "joy", "intensity": 7.0})
	if emo != "joy@7" {
		t.Fatalf("expected emotion short form, got %q", emo)
	}
}
