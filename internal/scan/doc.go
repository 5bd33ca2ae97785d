// Package scan discovers the JavaScript resources of a single-page app.
//
// Discovery is built from stages that each take a harvest.ScanContext and
// return a new one. Extraction strategies (loader registry, network manifest,
// inline JSON blocks, fixed set) merge what they find; Stabilize repeats a
// strategy until two consecutive polls agree; Dedup and Validate clean up.
// A Pipeline runs stages in order and the Coordinator runs the volatile
// pipeline plus the static pipelines in parallel and merges the results.
package scan
