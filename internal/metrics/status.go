package metrics

import "sort"

// StatusBucket represents the number of responses with a given status code for a tag.
type StatusBucket struct {
	Tag   string
	Code  string
	Count int
}

// FlattenStatusBuckets converts a nested tag->status map into a sorted slice of StatusBucket rows.
// Rows are sorted by descending count, then by tag/code for stability.
func FlattenStatusBuckets(buckets map[string]map[string]int) []StatusBucket {
	if len(buckets) == 0 {
		return nil
	}
	rows := make([]StatusBucket, 0)
	for tag, codes := range buckets {
		for code, count := range codes {
			rows = append(rows, StatusBucket{Tag: tag, Code: code, Count: count})
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Count == rows[j].Count {
			if rows[i].Tag == rows[j].Tag {
				return rows[i].Code < rows[j].Code
			}
			return rows[i].Tag < rows[j].Tag
		}
		return rows[i].Count > rows[j].Count
	})
	return rows
}
