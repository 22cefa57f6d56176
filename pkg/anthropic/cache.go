package anthropic

// CachedSystem builds system blocks whose first block, the stable
// taxonomy context, carries a cache breakpoint. Any extra blocks are sent
// uncached.
func CachedSystem(stable string, extra ...string) []SystemBlock {
	blocks := []SystemBlock{{Text: stable, CacheControl: &CacheControl{TTL: "5m"}}}
	for _, e := range extra {
		if e != "" {
			blocks = append(blocks, SystemBlock{Text: e})
		}
	}
	return blocks
}
