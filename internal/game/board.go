package game

import "sort"

type Entry struct {
	Username string `json:"username"`
	Score    int    `json:"score"`
}

// UpsertTopK drops any entry for e.Username, inserts e, orders by score desc then
// username asc and keeps the first k. The input slice is not modified.
func UpsertTopK(items []Entry, e Entry, k int) []Entry {
	out := make([]Entry, 0, len(items)+1)
	for _, it := range items {
		if it.Username != e.Username {
			out = append(out, it)
		}
	}
	out = append(out, e)
	return TopK(out, k)
}

// TopK sorts in place and truncates to k entries. Duplicate usernames keep the best one.
func TopK(items []Entry, k int) []Entry {
	sort.SliceStable(items, func(i, j int) bool { return Less(items[i], items[j]) })
	seen := make(map[string]bool, len(items))
	out := items[:0]
	for _, it := range items {
		if seen[it.Username] {
			continue
		}
		seen[it.Username] = true
		out = append(out, it)
	}
	if k >= 0 && len(out) > k {
		out = out[:k]
	}
	return out
}

func Less(a, b Entry) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	return a.Username < b.Username
}
