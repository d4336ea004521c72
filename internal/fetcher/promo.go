package fetcher

import "strings"

// promoPrefixLen bounds how far into the body marketing phrases are
// looked for; footers past this point do not count.
const promoPrefixLen = 500

// Signal carries the per-message inputs the promotional rules look at.
type Signal struct {
	Sender             string
	HasListUnsubscribe bool
	Body               string
}

type verdict int

const (
	verdictKeep verdict = iota
	verdictDiscard
)

// rule is one ordered predicate. Rules run top to bottom and the first
// one that fires decides the message.
type rule struct {
	name  string
	apply func(sig Signal) (verdict, bool)
}

var importantKeywords = []string{
	"security", "alert", "verification", "invoice", "receipt", "order",
}

var promoKeywords = []string{
	"view in browser", "special offer", "discount", "opt out",
}

var promoRules = []rule{
	// Operational mail from automated senders is always kept, even when
	// it carries promotional signals.
	{"noreply-important", func(sig Signal) (verdict, bool) {
		if !strings.Contains(strings.ToLower(sig.Sender), "noreply") {
			return verdictKeep, false
		}
		body := strings.ToLower(sig.Body)
		for _, word := range importantKeywords {
			if strings.Contains(body, word) {
				return verdictKeep, true
			}
		}
		return verdictKeep, false
	}},
	{"list-unsubscribe", func(sig Signal) (verdict, bool) {
		if sig.HasListUnsubscribe {
			return verdictDiscard, true
		}
		return verdictKeep, false
	}},
	{"marketing-phrase", func(sig Signal) (verdict, bool) {
		prefix := strings.ToLower(sig.Body)
		if len(prefix) > promoPrefixLen {
			prefix = prefix[:promoPrefixLen]
		}
		for _, word := range promoKeywords {
			if strings.Contains(prefix, word) {
				return verdictDiscard, true
			}
		}
		return verdictKeep, false
	}},
}

// IsPromotional classifies a message as promotional noise. The rule
// table short-circuits on the first matching rule.
func IsPromotional(sig Signal) bool {
	for _, r := range promoRules {
		if v, matched := r.apply(sig); matched {
			return v == verdictDiscard
		}
	}
	return false
}
