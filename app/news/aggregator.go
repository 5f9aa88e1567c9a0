package news

type Aggregator struct{}

func NewAggregator() *Aggregator {
	return &Aggregator{}
}

// Run merges matched items from successive fetch rounds into per-identity
// records. Each re-observation appends a (rank, window) tuple in arrival
// order; equal consecutive ranks are kept, since staying on the board is
// itself signal. Output preserves the order in which identities were first
// observed, which keeps downstream diffing deterministic.
func (a *Aggregator) Run(batches []Batch) []AggregatedRecord {
	index := make(map[string]int)
	records := make([]AggregatedRecord, 0)

	for _, batch := range batches {
		for _, item := range batch.Items {
			titleKey := NormalizeTitle(item.Title)
			key := IdentityKey(item.Platform, titleKey)
			obs := Observation{Rank: item.Rank, Window: batch.Window}

			i, ok := index[key]
			if !ok {
				index[key] = len(records)
				records = append(records, AggregatedRecord{
					Platform:     item.Platform,
					Title:        item.Title,
					TitleKey:     titleKey,
					URL:          item.URL,
					MobileURL:    item.MobileURL,
					Keyword:      item.Keyword,
					Observations: []Observation{obs},
					FirstSeen:    batch.Window,
					LastSeen:     batch.Window,
				})
				continue
			}

			rec := &records[i]
			rec.Observations = append(rec.Observations, obs)
			if batch.Window.Start.Before(rec.FirstSeen.Start) {
				rec.FirstSeen = batch.Window
			}
			if batch.Window.Start.After(rec.LastSeen.Start) || batch.Window.Round > rec.LastSeen.Round {
				rec.LastSeen = batch.Window
			}
			// Later rounds may carry URLs the first observation lacked
			if rec.URL == "" {
				rec.URL = item.URL
			}
			if rec.MobileURL == "" {
				rec.MobileURL = item.MobileURL
			}
		}
	}

	return records
}
