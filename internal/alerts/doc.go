// Package alerts evaluates threshold rules against the live scores of the
// serve command and delivers webhook notifications (Slack, Teams or plain
// HTTP) when a rule fires or resolves.
//
// A rule is keyed by its name and a subject: the scan target for aggregate
// fields, or the file path for file_entropy.
package alerts
