//go:build !integration

package usecase_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"render-orchestrator/internal/domain/model"
	"render-orchestrator/internal/usecase"
)

func TestQualityGate_Decide(t *testing.T) {
	gate := usecase.NewQualityGate(&MockOracle{}, 0.72, 0.5, testLogger())

	cases := []struct {
		name       string
		score      model.QualityScore
		want       model.Verdict
		reasonPart string
	}{
		{"clean pass", model.QualityScore{Similarity: 0.9, Solo: true, Clarity: 0.8}, model.VerdictApproved, ""},
		{"exactly at floors passes", model.QualityScore{Similarity: 0.72, Solo: true, Clarity: 0.5}, model.VerdictApproved, ""},
		{"similarity below floor", model.QualityScore{Similarity: 0.71, Solo: true, Clarity: 0.9}, model.VerdictRejected, "similarity"},
		{"not solo", model.QualityScore{Similarity: 0.9, Solo: false, Clarity: 0.9}, model.VerdictRejected, "single-subject"},
		{"blurry", model.QualityScore{Similarity: 0.9, Solo: true, Clarity: 0.3}, model.VerdictRejected, "clarity"},
		{"named issue", model.QualityScore{Similarity: 0.9, Solo: true, Clarity: 0.9, Issues: []string{"extra limb"}}, model.VerdictRejected, "extra limb"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := gate.Decide(tc.score)
			if d.Verdict != tc.want {
				t.Fatalf("want %s, got %s (%s)", tc.want, d.Verdict, d.Reason)
			}
			if tc.reasonPart != "" && !strings.Contains(d.Reason, tc.reasonPart) {
				t.Fatalf("reason %q missing %q", d.Reason, tc.reasonPart)
			}
		})
	}
}

func TestQualityGate_Decide_Deterministic(t *testing.T) {
	gate := usecase.NewQualityGate(&MockOracle{}, 0.72, 0.5, testLogger())
	score := model.QualityScore{Similarity: 0.71, Solo: true, Clarity: 0.9}
	first := gate.Decide(score)
	for i := 0; i < 10; i++ {
		if d := gate.Decide(score); d != first {
			t.Fatalf("decision changed between calls: %+v vs %+v", first, d)
		}
	}
}

func TestQualityGate_Score_WrapsOracleError(t *testing.T) {
	oracleErr := errors.New("rate limited")
	oracle := &MockOracle{AssessFunc: func(context.Context, string, []string) (model.QualityScore, error) {
		return model.QualityScore{}, oracleErr
	}}
	gate := usecase.NewQualityGate(oracle, 0.72, 0.5, testLogger())

	_, err := gate.Score(context.Background(), "/out/a.png", nil)
	if !errors.Is(err, oracleErr) {
		t.Fatalf("want wrapped oracle error, got %v", err)
	}
}
