package sumologic

import (
	"fmt"
	"strconv"
)

// The usage queries run against Sumo's self-monitoring volume indexes and end
// by multiplying gigabytes (or kDPM for metrics) into credits.

func logTierQuery(tier string, creditRate float64) string {
	return `_index=sumologic_volume _sourceCategory = "sourcecategory_and_tier_volume"` +
		`| parse regex "(?<data>\{[^\{]+\})" multi ` +
		`| json field=data "field","dataTier","sizeInBytes","count" as sourcecategory, dataTier, bytes, count ` +
		fmt.Sprintf(`|where dataTier matches "%s" `, tier) +
		`| where !(sourcecategory matches "*_volume") ` +
		`| bytes/1Gi as gbytes ` +
		`| timeslice 1h ` +
		`| sum(gbytes) as gbytes by _timeslice, sourceCategory, dataTier ` +
		`| gbytes*` + formatRate(creditRate) + ` as credits`
}

func infrequentScanQuery(creditRate float64) string {
	return `_view=sumologic_search_usage_per_query  !(user_name=*sumologic.com) !(status_message="Query Failed") ` +
		`| json field=scanned_bytes_breakdown "Infrequent" as data_scanned_bytes ` +
		`| analytics_tier as datatier ` +
		`|fields data_scanned_bytes, query, is_aggregate, query_type, status_message, user_name, datatier` +
		`| if (query_type == "View Maintenance", "Scheduled Views", query_type) as query_type` +
		`| data_scanned_bytes / 1Gi as gbytes` +
		`| timeslice 1h` +
		`|sum (gbytes) as gbytes by _timeslice, user_name` +
		`| fillmissing timeslice (1h) ` +
		`| gbytes * ` + formatRate(creditRate) + ` as credits`
}

func tracesQuery(creditRate float64) string {
	return `_index=sumologic_volume _sourceCategory="sourcecategory_tracing_volume"` +
		`| parse regex "\"(?<sourcecategory>[^\"]+)\"\:(?<data>\{[^\}]*\})" multi` +
		`| json field=data "billedBytes","spansCount" as bytes, spans` +
		`| bytes/1Gi as gbytes  ` +
		`| timeslice 1h ` +
		`| sum(gbytes) as gbytes, sum(spans) as spans by _timeslice, sourcecategory` +
		`| gbytes*` + formatRate(creditRate) + ` as credits`
}

func metricsQuery(creditRate float64) string {
	return `_index=sumologic_volume _sourceCategory="sourcecategory_metrics_volume" datapoints` +
		`| parse regex "\"(?<sourcecategory>[^\"]+)\"\:\{\"dataPoints\"\:(?<datapoints>\d+)\}" multi` +
		`| timeslice 24h ` +
		`| sum(datapoints) as datapoints by sourcecategory, _timeslice` +
		`| ((queryEndTime() - queryStartTime())/(1000*60)) as duration_in_min` +
		`| datapoints / duration_in_min as %"DPM" ` +
		`| DPM/1000 as AvgKDPM ` +
		`| AvgKDPM *` + formatRate(creditRate) + ` as credits`
}

func formatRate(rate float64) string {
	return strconv.FormatFloat(rate, 'f', -1, 64)
}
