// Package commoncrawl reads Common Crawl WET shards and acquires them from disk or HTTP.
//
// A WET shard is a multi-member gzip stream of WARC/1.0 records: one warcinfo record
// followed by one conversion record per crawled page. Records are parsed lazily, one at a
// time; a shard is never held in memory.
package commoncrawl
