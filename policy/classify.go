package policy

import "strings"

// Keyword sets matched against the reason discriminator. Matching is
// case-insensitive, whitespace-trimmed, substring-based. Non-renewal is
// checked before renewal because every non-renewal phrase contains
// "renewal".
var classPhrases = []struct {
	class   Classification
	phrases []string
}{
	{ClassNonPayment, []string{"non-payment", "non payment", "nonpayment", "cancellation"}},
	{ClassNonRenewal, []string{"non-renewal", "non renewal", "nonrenewal"}},
	{ClassRenewal, []string{"renewal"}},
	{ClassMortgageBill, []string{"mortgage"}},
	{ClassDirectBill, []string{"direct bill", "direct billed", "directbill"}},
}

// settlementPhrases mark a policy as resolved; any status label containing
// one is excluded from scheduling regardless of every other field.
var settlementPhrases = []string{"paid", "received", "settled"}

// Classify maps the raw discriminator text to a campaign classification.
// An empty or unmatched discriminator yields ClassUnclassified.
func Classify(reason string) Classification {
	normalized := strings.ToLower(strings.TrimSpace(reason))
	if normalized == "" {
		return ClassUnclassified
	}

	for _, c := range classPhrases {
		for _, phrase := range c.phrases {
			if strings.Contains(normalized, phrase) {
				return c.class
			}
		}
	}

	return ClassUnclassified
}

// Settled reports whether the status label signals the policy is resolved
// (payment made, account settled). This check takes precedence over all
// scheduling logic.
func Settled(statusLabel string) bool {
	normalized := strings.ToLower(strings.TrimSpace(statusLabel))
	if normalized == "" {
		return false
	}

	for _, phrase := range settlementPhrases {
		if strings.Contains(normalized, phrase) {
			return true
		}
	}
	return false
}
