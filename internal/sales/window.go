package sales

import "time"

// DailyWindow computes the scheduled run's query bounds and the set of
// calendar days whose sales count. A Monday run covers the prior
// Friday-Sunday; any other day covers yesterday only.
func DailyWindow(now time.Time) (from, to string, validDays map[string]bool) {
	end := now.AddDate(0, 0, -1)
	start := end
	if now.Weekday() == time.Monday {
		start = now.AddDate(0, 0, -3)
	}

	validDays = make(map[string]bool)
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		validDays[d.Format("2006-01-02")] = true
	}

	return start.Format("2006-01-02T00:00:00Z"), end.Format("2006-01-02T23:59:59Z"), validDays
}

// PeriodWindow converts plain on-demand dates into the API's bounds. The
// on-demand path does not restrict by calendar day, only by status, so no
// valid-day set is produced.
func PeriodWindow(fromDate, toDate string) (from, to string) {
	return fromDate + "T00:00:00Z", toDate + "T23:59:59Z"
}
