package rules

// Match is one rule hit inside a message.
type Match struct {
	Rule  CompiledRule
	URL   string
	index []int
	text  string
}

// FindAll returns every rule hit in text, in rule order.
func (c *Compiled) FindAll(text string) []Match {
	var matches []Match
	for _, rule := range c.Rules() {
		for _, loc := range rule.Regexp.FindAllStringSubmatchIndex(text, -1) {
			matches = append(matches, Match{
				Rule:  rule,
				URL:   text[loc[0]:loc[1]],
				index: loc,
				text:  text,
			})
		}
	}
	return matches
}

// Expand fills template with the submatches of m ($1, ${name}).
func (m Match) Expand(template string) string {
	if template == "" || m.Rule.Regexp == nil {
		return ""
	}
	return string(m.Rule.Regexp.ExpandString(nil, template, m.text, m.index))
}

// FixupURL is the rule's size-rejection rewrite, or "" when none is set.
func (m Match) FixupURL() string {
	return m.Expand(m.Rule.Fixup)
}

// NoVideoURL is the rule's rewrite for links without downloadable video.
func (m Match) NoVideoURL() string {
	return m.Expand(m.Rule.NoVideo)
}

