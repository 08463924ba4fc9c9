package rpc

// maxPageSize is the device's hard per-request cap on OPFileQuery results.
const maxPageSize = 64

// maxQuerySize is the device's cap on results for one logical query before
// it starts a new "limit" phase keyed off the last entry's BeginTime.
const maxQuerySize = 511

// pageFetcher fetches one page of file-query results starting at
// beginTime.
type pageFetcher func(beginTime string) ([]map[string]any, error)

// CollectFiles drives the two-phase pagination the device uses for large
// file listings. A query's results come back 64 rows at a time; once a
// logical query has produced a multiple of 511 rows the device keeps
// returning results if re-queried from the last entry's BeginTime, so the
// only reliable end-of-results signal is two consecutive phase totals
// coming out equal.
func CollectFiles(initialBeginTime string, fetch pageFetcher) ([]map[string]any, error) {
	firstPage, err := fetch(initialBeginTime)
	if err != nil {
		return nil, err
	}

	result := append([]map[string]any{}, firstPage...)
	lastPage := firstPage

	status := "init"
	lastNumResults := 0

	for status == "init" || status == "limit" {
		if status == "init" {
			status = "run"
		}

		for len(lastPage) == maxPageSize || status == "limit" {
			var nextBeginTime string
			if n := len(lastPage); n > 0 {
				nextBeginTime, _ = lastPage[n-1]["BeginTime"].(string)
			}
			page, err := fetch(nextBeginTime)
			if err != nil {
				return result, err
			}
			result = append(result, page...)
			lastPage = page
			status = "run"
		}

		if len(result)%maxQuerySize == 0 || status == "limit" {
			if len(result) == lastNumResults {
				return result, nil
			}
			status = "limit"
			lastNumResults = len(result)
		}
	}

	return result, nil
}
