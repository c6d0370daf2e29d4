package model

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestAccrual_Phases(t *testing.T) {
	a := Uninitialized()
	if a.Initialized() {
		t.Fatal("fresh watermark should be uninitialized")
	}
	now := time.Date(2025, 8, 15, 12, 0, 0, 0, time.FixedZone("KST", 9*3600))
	a = AccruingSince(now)
	if !a.Initialized() {
		t.Fatal("AccruingSince should initialize the watermark")
	}
	if a.LastTick.Location() != time.UTC {
		t.Errorf("watermark should be stored in UTC, got %s", a.LastTick.Location())
	}
}

func TestListingStatus_Terminal(t *testing.T) {
	tests := []struct {
		status   ListingStatus
		terminal bool
	}{
		{StatusActive, false},
		{StatusSold, true},
		{StatusCancelled, true},
	}
	for _, tt := range tests {
		if got := tt.status.Terminal(); got != tt.terminal {
			t.Errorf("%s.Terminal() = %v, want %v", tt.status, got, tt.terminal)
		}
	}
}

func TestParseSentiment(t *testing.T) {
	tests := map[string]Sentiment{
		"positive": SentimentPositive,
		"negative": SentimentNegative,
		"neutral":  SentimentNeutral,
		"":         SentimentNeutral,
		"POSITIVE": SentimentNeutral,
		"mixed":    SentimentNeutral,
	}
	for in, want := range tests {
		if got := ParseSentiment(in); got != want {
			t.Errorf("ParseSentiment(%q) = %s, want %s", in, got, want)
		}
	}
}

func TestSale_Total(t *testing.T) {
	s := Sale{Shares: 10, Price: decimal.NewFromInt(1200)}
	if !s.Total().Equal(decimal.NewFromInt(12000)) {
		t.Errorf("expected total 12000, got %s", s.Total())
	}
}

func TestBuildingKind_Valid(t *testing.T) {
	if !BuildingStore.Valid() || !BuildingBuilding.Valid() {
		t.Error("known kinds should be valid")
	}
	if BuildingKind("CASINO").Valid() {
		t.Error("unknown kind should be invalid")
	}
}
