package capture

// Exchange is one network request observed while a channel page was loaded.
type Exchange struct {
	URL string `json:"url"`
	// HadResponse is true when a response (of any status) arrived for the request.
	HadResponse bool `json:"had_response"`
}

// dedupe keeps the first occurrence of each URL, upgrading HadResponse when any
// duplicate saw a response.
func dedupe(exchanges []Exchange) []Exchange {
	index := make(map[string]int, len(exchanges))
	out := make([]Exchange, 0, len(exchanges))
	for _, ex := range exchanges {
		if ex.URL == "" {
			continue
		}
		if i, ok := index[ex.URL]; ok {
			out[i].HadResponse = out[i].HadResponse || ex.HadResponse
			continue
		}
		index[ex.URL] = len(out)
		out = append(out, ex)
	}
	return out
}
