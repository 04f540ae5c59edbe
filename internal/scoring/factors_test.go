package scoring

import (
	"testing"

	"chain-sentry/internal/domain"
)

func TestDefaultWeights_Valid(t *testing.T) {
	w := DefaultWeights()
	if err := w.Validate(); err != nil {
		t.Fatalf("default weights should validate: %v", err)
	}

	sum := w.Bytecode + w.Liquidity + w.Social + w.TxPattern + w.Developer + w.Momentum
	if sum < 0.999 || sum > 1.001 {
		t.Errorf("default weights should sum to 1.0, got %v", sum)
	}
}

func TestWeights_Validate_OutOfRange(t *testing.T) {
	w := DefaultWeights()
	w.Bytecode = 1.5
	if err := w.Validate(); err == nil {
		t.Error("Expected error for weight > 1")
	}

	w = DefaultWeights()
	w.Social = -0.1
	if err := w.Validate(); err == nil {
		t.Error("Expected error for negative weight")
	}
}

func TestWeights_Validate_AllZero(t *testing.T) {
	if err := (Weights{}).Validate(); err == nil {
		t.Error("Expected error when every weight is zero")
	}
}

func TestComputeFactors_OmitsNilVariants(t *testing.T) {
	ev := domain.EvidenceBundle{
		Bytecode:  &domain.BytecodeEvidence{Verified: true},
		Liquidity: &domain.LiquidityEvidence{TotalUSD: 50_000, LockedPct: 0.8},
	}

	factors := ComputeFactors(ev, DefaultWeights())
	if len(factors) != 2 {
		t.Fatalf("Expected 2 factors, got %d", len(factors))
	}

	names := map[string]bool{}
	for _, f := range factors {
		names[f.Name] = true
		if f.Score < 0 || f.Score > 100 {
			t.Errorf("factor %s score %v outside [0,100]", f.Name, f.Score)
		}
		if f.Confidence < 0 || f.Confidence > 1 {
			t.Errorf("factor %s confidence %v outside [0,1]", f.Name, f.Confidence)
		}
		if f.Evidence == "" {
			t.Errorf("factor %s should carry an evidence summary", f.Name)
		}
	}
	if !names[FactorBytecode] || !names[FactorLiquidity] {
		t.Errorf("Expected bytecode and liquidity factors, got %v", names)
	}
}

func TestScoreBytecode_HoneypotDominates(t *testing.T) {
	// A honeypot signature must floor the score no matter how clean the rest is.
	score, conf, _ := scoreBytecode(&domain.BytecodeEvidence{
		Verified:          true,
		HoneypotSignature: true,
	})
	if score != 5 {
		t.Errorf("honeypot bytecode should score 5, got %v", score)
	}
	if conf < 0.9 {
		t.Errorf("honeypot detection should be high confidence, got %v", conf)
	}
}

func TestScoreBytecode_Ordering(t *testing.T) {
	clean, _, _ := scoreBytecode(&domain.BytecodeEvidence{Verified: true})
	mintable, _, _ := scoreBytecode(&domain.BytecodeEvidence{Verified: true, HasMintAuthority: true})
	loaded, _, _ := scoreBytecode(&domain.BytecodeEvidence{
		HasMintAuthority: true,
		CanSelfDestruct:  true,
		ProxyIndirection: true,
		HiddenOwnerCalls: 4,
	})

	if clean != 85 {
		t.Errorf("verified clean bytecode should score 85, got %v", clean)
	}
	if mintable >= clean {
		t.Errorf("mint authority should lower the score: %v >= %v", mintable, clean)
	}
	if loaded >= mintable {
		t.Errorf("stacked red flags should score lower still: %v >= %v", loaded, mintable)
	}
	if loaded != 0 {
		// 70 - 25 - 20 - 10 - 20, clamped at 0.
		t.Errorf("fully loaded bytecode should clamp to 0, got %v", loaded)
	}
}

func TestScoreLiquidity(t *testing.T) {
	deep, _, _ := scoreLiquidity(&domain.LiquidityEvidence{
		TotalUSD:  500_000,
		LockedPct: 1.0,
	})
	// 60 + 25 + 15 with no penalties.
	if deep != 100 {
		t.Errorf("deep locked liquidity should score 100, got %v", deep)
	}

	drained, _, _ := scoreLiquidity(&domain.LiquidityEvidence{
		TotalUSD:      1_000,
		TopHolderPct:  0.9,
		RemovalEvents: 5,
	})
	if drained != 0 {
		t.Errorf("unlocked concentrated pool with removals should clamp to 0, got %v", drained)
	}

	_, lowConf, _ := scoreLiquidity(&domain.LiquidityEvidence{})
	_, highConf, _ := scoreLiquidity(&domain.LiquidityEvidence{TotalUSD: 10_000})
	if lowConf >= highConf {
		t.Errorf("zero observed liquidity should lower confidence: %v >= %v", lowConf, highConf)
	}
}

func TestScoreSocial_BotsWorseThanSilence(t *testing.T) {
	silent, _, _ := scoreSocial(&domain.SocialEvidence{})
	botted, _, _ := scoreSocial(&domain.SocialEvidence{
		MentionCount24h: 1_000,
		UniqueAuthors:   5,
		BotRatio:        1.0,
	})
	if botted >= silent {
		t.Errorf("bot-driven volume should score below silence: %v >= %v", botted, silent)
	}

	organic, _, _ := scoreSocial(&domain.SocialEvidence{
		MentionCount24h: 1_000,
		UniqueAuthors:   200,
		SentimentScore:  0.5,
	})
	if organic <= silent {
		t.Errorf("organic traction should score above silence: %v <= %v", organic, silent)
	}
}

func TestScoreTxPattern_ExtremeBuySellRatio(t *testing.T) {
	normal, _, _ := scoreTxPattern(&domain.TxPatternEvidence{BuySellRatio: 1.2, UniqueBuyers24h: 100})
	honeypotShape, _, _ := scoreTxPattern(&domain.TxPatternEvidence{BuySellRatio: 60, UniqueBuyers24h: 100})
	if honeypotShape >= normal {
		t.Errorf("extreme buy/sell ratio should tank the score: %v >= %v", honeypotShape, normal)
	}

	washed, _, _ := scoreTxPattern(&domain.TxPatternEvidence{
		BuySellRatio:     1.2,
		UniqueBuyers24h:  100,
		WashTradingScore: 1.0,
		SniperBotCount:   20,
	})
	if washed >= normal {
		t.Errorf("wash trading and snipers should lower the score: %v >= %v", washed, normal)
	}
}

func TestScoreDeveloper_PriorRugsDominate(t *testing.T) {
	reputable, _, _ := scoreDeveloper(&domain.DeveloperEvidence{
		KnownDeployer:   true,
		Doxxed:          true,
		PriorTokenCount: 5,
		WalletAgeDays:   700,
	})
	// 50 + 10 + 20 + 15 + 5
	if reputable != 100 {
		t.Errorf("reputable deployer should score 100, got %v", reputable)
	}

	rugger, _, _ := scoreDeveloper(&domain.DeveloperEvidence{
		KnownDeployer: true,
		Doxxed:        true,
		WalletAgeDays: 700,
		PriorRugCount: 2,
	})
	if rugger >= reputable-40 {
		t.Errorf("prior rugs should dominate positives: got %v", rugger)
	}
}

func TestScoreMomentum_Monotonic(t *testing.T) {
	flat, _, _ := scoreMomentum(&domain.MomentumEvidence{})
	if flat != 50 {
		t.Errorf("flat market should score 50, got %v", flat)
	}

	rising, _, _ := scoreMomentum(&domain.MomentumEvidence{
		PriceChange1hPct:   30,
		PriceChange24hPct:  150,
		VolumeChange24hPct: 200,
		HolderGrowth24hPct: 80,
	})
	if rising <= flat {
		t.Errorf("rising momentum should score above flat: %v <= %v", rising, flat)
	}

	crashing, _, _ := scoreMomentum(&domain.MomentumEvidence{
		PriceChange1hPct:   -60,
		PriceChange24hPct:  -90,
		VolumeChange24hPct: -80,
		HolderGrowth24hPct: -50,
	})
	if crashing >= flat {
		t.Errorf("crashing momentum should score below flat: %v >= %v", crashing, flat)
	}
}
