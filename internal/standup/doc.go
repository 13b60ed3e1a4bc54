// Package standup holds the standup state machine: the runtime context the
// tasks share, every task variant, the report model and the phrase pools.
//
// A team day moves through ask -> lock -> collect -> report -> unlock.
// CheckReports polls from the slow queue and enqueues AskStatus for members
// who still owe an update. AskStatus locks the member for the rest of the
// day and sends a prompt. Direct replies arrive as ReadMessage on the fast
// queue and are recorded by ReadStatusMessage while the lock holds. Once the
// team's report_by passes, SendReportSummary posts the summary and
// UnlockTeam releases locks held only for that team.
package standup
