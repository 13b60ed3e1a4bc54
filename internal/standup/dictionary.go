package standup

import "time"

// Phrase pools. "{team}" is replaced with the asked team names.
var (
	PleaseReport = []string{
		"Morning! How is it going on {team} today? A few words for the standup, please.",
		"Hey, standup time for {team}. What are you working on, and is anything blocking you?",
		"Hi there. Could you share a quick status update for {team}?",
		"Knock knock, it's the standup bot. What's new on your side today?",
		"Hello! {team} would love to hear what you're up to. Any blockers?",
		"Quick check-in for {team}: what did you get done, and what's next?",
		"Hi! Just collecting updates for {team}. How's your day shaping up?",
		"Hey, hope you're well. Mind dropping a line or two about your progress?",
		"Good day! Time for the daily update on {team}. What's on your plate?",
		"Psst. Standup. Two sentences for {team} and I'll leave you alone.",
	}

	PleaseReportLastCall = []string{
		"Last call for {team}! The summary goes out soon. Anything to add?",
		"Hey, the {team} summary is almost ready. Drop me a line before it's sent?",
		"Final reminder: {team} standup closes shortly. A quick update, please.",
		"Almost out of time for {team}. Even one sentence helps!",
		"The {team} report is about to go out without you. Any update?",
		"Closing the {team} standup in a few minutes. Still time for a status!",
	}

	Thanks = []string{
		"Thanks! :+1:",
		"Got it, thank you.",
		"Noted. Thanks a lot!",
		"Perfect, that goes into today's summary.",
		"Thank you, much appreciated.",
		"Great, thanks for the update.",
		"Cheers! I'll pass it on.",
		"Thanks, have a good one.",
		"Awesome, thank you :raised_hands:",
		"Received loud and clear. Thanks!",
		"Lovely, thanks for sharing.",
		"All set. Thank you!",
	}
)

// FollowUp acknowledges every line after the first one.
const FollowUp = "Ok, I'll add that too."

// InitialSeed sums the characters of id: a digit counts its value, a letter
// its index in a..zA..Z, anything else zero.
func InitialSeed(id string) int {
	seed := 0
	for _, r := range id {
		switch {
		case r >= '0' && r <= '9':
			seed += int(r - '0')
		case r >= 'a' && r <= 'z':
			seed += int(r - 'a')
		case r >= 'A' && r <= 'Z':
			seed += int(r-'A') + 26
		}
	}
	return seed
}

// Pick chooses a phrase for userID on day. The choice is stable for a given
// user and calendar day and rotates from one day to the next.
func Pick(pool []string, userID string, day time.Time) string {
	if len(pool) == 0 {
		return ""
	}
	return pool[(InitialSeed(userID)+day.YearDay())%len(pool)]
}
