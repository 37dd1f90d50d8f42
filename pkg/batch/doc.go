// Package batch checks many GIA reports with a bounded worker pool.
//
// Each report number is fetched independently by a Fetcher (normally
// *client.Client). At most MaxConcurrency checks run at once, and an optional
// Gate such as *admission.Limiter bounds checks across processes as well.
//
// Example usage:
//
//	runner := batch.NewRunner(giaClient, batch.DefaultConfig())
//	result := runner.Run(ctx, []string{"2141438171", "1176602155"})
//	for _, o := range result.Failures() {
//		fmt.Println(o.ReportNo, o.Err)
//	}
//
// The runner:
//   - Starts min(MaxConcurrency, len(reportNos)) workers
//   - Returns exactly one Outcome per input entry, in input order
//   - Checks duplicates independently
//   - Never stops on a failed check
package batch
