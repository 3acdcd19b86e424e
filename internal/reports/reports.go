// Package reports summarises the Local Mirror for the on-device report view.
package reports

import (
	"math"
	"sort"
	"strings"

	"herdsync/pkg/domain"
)

// UnknownCounty labels records saved without a county.
const UnknownCounty = "Unknown"

// CountyShare is one county's slice of a report.
type CountyShare struct {
	County  string  `json:"county"`
	Entries int     `json:"entries"`
	Percent float64 `json:"percent"`
	Goats   int     `json:"goats,omitempty"`
	Amount  float64 `json:"amount,omitempty"`
}

// FarmerSummary aggregates farmer registrations.
type FarmerSummary struct {
	Total    int           `json:"total"`
	Male     int           `json:"male"`
	Female   int           `json:"female"`
	Goats    int           `json:"goats"`
	Counties []CountyShare `json:"counties"`
}

// OfftakeSummary aggregates offtake entries.
type OfftakeSummary struct {
	Total      int           `json:"total"`
	Male       int           `json:"male"`
	Female     int           `json:"female"`
	Goats      int           `json:"goats"`
	TotalPrice float64       `json:"totalPrice"`
	Counties   []CountyShare `json:"counties"`
}

// SummarizeFarmers counts registrations by gender and county.
func SummarizeFarmers(farmers []domain.FarmerRecord) FarmerSummary {
	out := FarmerSummary{Total: len(farmers)}
	byCounty := map[string]*CountyShare{}
	for _, f := range farmers {
		switch f.Gender {
		case domain.GenderMale:
			out.Male++
		case domain.GenderFemale:
			out.Female++
		}
		out.Goats += f.Goats
		share := shareFor(byCounty, f.County)
		share.Entries++
		share.Goats += f.Goats
	}
	out.Counties = finish(byCounty, out.Total)
	return out
}

// SummarizeOfftakes totals offtakes by gender and county.
func SummarizeOfftakes(offtakes []domain.OfftakeRecord) OfftakeSummary {
	out := OfftakeSummary{Total: len(offtakes)}
	byCounty := map[string]*CountyShare{}
	for _, o := range offtakes {
		switch o.Gender {
		case domain.GenderMale:
			out.Male++
		case domain.GenderFemale:
			out.Female++
		}
		out.Goats += o.TotalGoats
		out.TotalPrice += o.TotalPrice
		share := shareFor(byCounty, o.County)
		share.Entries++
		share.Goats += o.TotalGoats
		share.Amount += o.TotalPrice
	}
	out.Counties = finish(byCounty, out.Total)
	return out
}

func shareFor(m map[string]*CountyShare, county string) *CountyShare {
	county = strings.TrimSpace(county)
	if county == "" {
		county = UnknownCounty
	}
	s, ok := m[county]
	if !ok {
		s = &CountyShare{County: county}
		m[county] = s
	}
	return s
}

// finish computes one-decimal percentages and orders counties by entries,
// then name.
func finish(m map[string]*CountyShare, total int) []CountyShare {
	out := make([]CountyShare, 0, len(m))
	for _, s := range m {
		if total > 0 {
			s.Percent = math.Round(float64(s.Entries)/float64(total)*1000) / 10
		}
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Entries != out[j].Entries {
			return out[i].Entries > out[j].Entries
		}
		return out[i].County < out[j].County
	})
	return out
}
