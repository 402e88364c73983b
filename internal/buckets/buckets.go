// Package buckets groups captured requests by the S3 bucket they addressed.
package buckets

import (
	"slices"
	"sort"
	"time"

	"github.com/dgnsrekt/bucketspy/internal/capture"
	"github.com/dgnsrekt/bucketspy/internal/s3url"
)

// Summary describes all captures for one (bucket, region) pair.
type Summary struct {
	Name         string    `json:"name"`
	Region       string    `json:"region"`
	RequestCount int       `json:"requestCount"`
	Methods      []string  `json:"methods"`
	FirstSeen    time.Time `json:"firstSeen"`
}

type key struct {
	bucket string
	region string
}

type group struct {
	summary Summary
	methods map[string]struct{}
}

// Aggregate groups requests by bucket and region. Requests whose URL is not
// an S3 bucket endpoint are skipped. Summaries are ordered by FirstSeen,
// most recent first; Methods is sorted.
func Aggregate(requests []capture.CapturedRequest) []Summary {
	groups := make(map[key]*group)
	order := make([]key, 0)

	for _, r := range requests {
		loc := s3url.Parse(r.URL)
		if !loc.Valid() {
			continue
		}

		k := key{bucket: loc.Bucket, region: loc.Region}
		g, ok := groups[k]
		if !ok {
			g = &group{
				summary: Summary{Name: loc.Bucket, Region: loc.Region, FirstSeen: r.Timestamp},
				methods: make(map[string]struct{}),
			}
			groups[k] = g
			order = append(order, k)
		}

		g.summary.RequestCount++
		g.methods[r.Method] = struct{}{}
		if r.Timestamp.Before(g.summary.FirstSeen) {
			g.summary.FirstSeen = r.Timestamp
		}
	}

	out := make([]Summary, 0, len(order))
	for _, k := range order {
		g := groups[k]
		methods := make([]string, 0, len(g.methods))
		for m := range g.methods {
			methods = append(methods, m)
		}
		slices.Sort(methods)
		g.summary.Methods = methods
		out = append(out, g.summary)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].FirstSeen.After(out[j].FirstSeen)
	})
	return out
}
