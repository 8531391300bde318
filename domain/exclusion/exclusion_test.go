package exclusion_test

import (
	"testing"

	"phenodx/domain/exclusion"
	"phenodx/domain/match"
	"phenodx/internal/testkit"
)

func newMapper() *exclusion.Mapper {
	return exclusion.NewMapper(match.NewResolver(testkit.Snapshot()))
}

func TestMap_ExactSynonym(t *testing.T) {
	m := newMapper()

	got := m.Map([]exclusion.RawFinding{{
		Finding:       "low blood sugar",
		RawText:       "no episodes of low blood sugar",
		ExclusionType: "explicit",
		Confidence:    "high",
	}})
	if len(got) != 1 {
		t.Fatalf("result count = %d, want 1", len(got))
	}
	f := got[0]
	if f.MappedTermID != "HP:0001943" || f.MappedLabel != "Hypoglycemia" {
		t.Errorf("mapped %s/%s, want HP:0001943/Hypoglycemia", f.MappedTermID, f.MappedLabel)
	}
	if f.RawText != "no episodes of low blood sugar" {
		t.Errorf("raw text %q not preserved", f.RawText)
	}
	if f.ExclusionType != exclusion.TypeExplicit || f.Confidence != match.ConfidenceHigh {
		t.Errorf("type/confidence = %s/%s", f.ExclusionType, f.Confidence)
	}
}

func TestMap_UnmappableKeptForAudit(t *testing.T) {
	m := newMapper()

	got := m.Map([]exclusion.RawFinding{{
		Finding:       "entirely unmatched phrase",
		RawText:       "denies entirely unmatched phrase",
		ExclusionType: "soft",
		Confidence:    "low",
	}})
	f := got[0]
	if f.Mapped() {
		t.Errorf("unmatched finding mapped to %s", f.MappedTermID)
	}
	if f.ExclusionType != exclusion.TypeSoft {
		t.Errorf("exclusion type = %s, want soft", f.ExclusionType)
	}
	if f.RawText == "" {
		t.Error("audit record lost the raw text")
	}
}

func TestMap_DefaultsForMissingFields(t *testing.T) {
	m := newMapper()

	f := m.Map([]exclusion.RawFinding{{Finding: "seizures", RawText: "no seizures"}})[0]
	if f.ExclusionType != exclusion.TypeExplicit {
		t.Errorf("default type = %s, want explicit", f.ExclusionType)
	}
	if f.Confidence != match.ConfidenceMedium {
		t.Errorf("default confidence = %s, want medium", f.Confidence)
	}
	if f.MappedTermID != "HP:0001250" {
		t.Errorf("mapped = %s, want HP:0001250", f.MappedTermID)
	}
}

func TestMappedTermIDs_SkipsUnmapped(t *testing.T) {
	m := newMapper()

	findings := m.Map([]exclusion.RawFinding{
		{Finding: "hypotonia", RawText: "tone was normal"},
		{Finding: "zzz nothing zzz", RawText: "zzz"},
	})
	ids := exclusion.MappedTermIDs(findings)
	if len(ids) != 1 || ids[0] != "HP:0001252" {
		t.Errorf("ids = %v, want [HP:0001252]", ids)
	}
}
