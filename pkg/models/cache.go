package models

// CacheStats reports report-cache metrics.
type CacheStats struct {
	Entries   int64 `json:"entries"`
	Capacity  int   `json:"capacity"`
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Evictions int64 `json:"evictions"`
}
