package zipr

// ProgressReporter is called by Zip and Unzip as archive entries are processed.
//
//   - name: the entry's archive-relative name.
//   - written: number of uncompressed payload bytes written since the previous call for this entry, so summing every
//     call yields total bytes processed.
//   - done: true on the final call for the entry, exactly once per entry.
//
// Unzip may extract files in parallel, in which case the reporter must be safe for concurrent use. A nil reporter
// disables reporting; the library itself never logs.
type ProgressReporter func(name string, written int64, done bool)
