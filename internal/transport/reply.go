package transport

import "strings"

// Random is the randomness a session draws on. *math/rand.Rand satisfies it.
type Random interface {
	Float64() float64
	Intn(n int) int
	Int63n(n int64) int64
}

// ReplyFunc produces the counterparty's answer to an outbound message.
type ReplyFunc func(outbound string, rnd Random) string

// echoPrefixLen is the number of characters of the outbound text quoted back.
const echoPrefixLen = 20

var questionReplies = []string{
	"That's a good question. Let me think about it.",
	"I'm not entirely sure, but I think so.",
	"Yes, absolutely!",
	"No, I don't think that's the case.",
	"Maybe, let me check and get back to you.",
}

var statementReplies = []string{
	"", // echo slot, filled by echoReply
	"That's interesting! Tell me more about it.",
	"I see what you mean. What do you think we should do next?",
	"Great! I'll keep that in mind.",
	"I agree with you. Let's discuss this further soon.",
	"Thanks for sharing that with me!",
}

// SynthesizeReply is the default ReplyFunc. Questions get a short
// yes/no/unsure answer; anything else gets a generic acknowledgement, one of
// which quotes the start of the outbound text.
func SynthesizeReply(outbound string, rnd Random) string {
	if strings.HasSuffix(outbound, "?") {
		return questionReplies[rnd.Intn(len(questionReplies))]
	}
	i := rnd.Intn(len(statementReplies))
	if i == 0 {
		return echoReply(outbound)
	}
	return statementReplies[i]
}

func echoReply(outbound string) string {
	return `Thanks for your message: "` + truncate(outbound, echoPrefixLen) + `"`
}

// truncate keeps at most n runes of s, marking a cut with "...".
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
