package facet

import "github.com/tinytelemetry/cohortlens/internal/model"

func samplePopulation() []model.Record {
	return []model.Record{
		{
			Neighbourhood: "E01", Practice: "P1", LTCs: []string{"Asthma", "COPD"}, Flags: []string{"F1"},
			Sex: "M", Mosaic: "A01", CCG: "02M", LTCCount: "2", FlagCount: "1",
			Age: 34.5, Risk: 2, Deprivation: 3, Ward: "W1", CR: "1", CV: "a",
		},
		{
			Neighbourhood: "E01", Practice: "P2", LTCs: []string{"Asthma"},
			Sex: "F", Mosaic: "undefined", CCG: "00Q", LTCCount: "1", FlagCount: "0",
			Age: 67, Risk: 15, Deprivation: 7, Ward: "W2", CR: "2", CV: "b",
		},
		{
			Neighbourhood: "E02", Practice: "P1", Flags: []string{"F1", "F2"},
			Sex: "F", Mosaic: "", CCG: "02M", LTCCount: "5", FlagCount: "2",
			Age: 34.2, Risk: 150, Deprivation: 3, Ward: "W1", CR: "1", CV: "a",
		},
		{
			Neighbourhood: "E03", Practice: "P3", LTCs: []string{"COPD", "Diabetes", "Asthma"}, Flags: []string{"F2"},
			Sex: "M", Mosaic: "B02", CCG: "01K", LTCCount: "15", FlagCount: "1",
			Age: 81, Risk: 6, Deprivation: 10, Ward: "W3", CR: "2", CV: "a",
		},
	}
}

func loadedStore() *Store {
	s := NewStore()
	s.Load(samplePopulation())
	return s
}

func bucketsOf(h Histogram) map[string]int {
	out := make(map[string]int, len(h))
	for _, b := range h {
		out[b.Key.Text()] = b.Value
	}
	return out
}
