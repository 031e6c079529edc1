package mentor

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/krobus00/trading-dashboard/internal/entity"
	"github.com/sirupsen/logrus"
)

var (
	profileKeywords  = regexp.MustCompile(`(?i)\b(trading profile|my profile|skill level|risk appetite|goals|trading style)\b`)
	repeatRequest    = regexp.MustCompile(`(?i)\b(tell me again|repeat that|say it again|again please|repeat please|run it back)\b`)
	greetingPattern  = regexp.MustCompile(`(?i)^\s*(hi|hey|hello|sup|yo|gm|gn|what\??|nothing|not much|nope|yeah|yep|nah|ok|okay|k|thanks?|thank you|how are you|how's it going|good|fine|alright|you\?|u\?|cool|nice|great)\b`)
	specificQuery    = regexp.MustCompile(`(?i)\b(analyze|tell me about|what is|explain|research|latest|news|recent|current|price|market|chart|analysis)\b`)
	companyQuestion  = regexp.MustCompile(`(?i)\b(jack of all trades|joat|your (site|website|company)|what is joat|about joat|about your (site|company|platform))\b`)
	artifactHeading  = regexp.MustCompile(`(?i)^(#{2,3}\s*)?(trading profile|watchlist focus)`)
	extraBlankLines  = regexp.MustCompile(`\n{3,}`)
	linkPattern      = regexp.MustCompile(`https?://[^\s)\]]+`)
	sourcesHeading   = regexp.MustCompile(`(?i)(^|\n)#{1,3} sources`)
	informationalMsg = []string{"analyze", "tell me about", "what is", "explain", "research", "information about", "latest", "news", "current"}
)

// Source is an external reference shown under an answer.
type Source struct {
	Label  string `json:"label"`
	URL    string `json:"url"`
	Domain string `json:"domain"`
}

func internalHosts(frontendURL string) map[string]bool {
	hosts := map[string]bool{"app.jackofalltrades.ai": true, "jackofalltrades.ai": true, "localhost": true}
	if u, err := url.Parse(frontendURL); err == nil && u.Hostname() != "" {
		hosts[strings.TrimPrefix(u.Hostname(), "www.")] = true
	}
	return hosts
}

func isGreeting(message string) bool {
	trimmed := strings.ToLower(strings.TrimSpace(message))
	return len(trimmed) < 8 || greetingPattern.MatchString(trimmed)
}

// StripArtifacts removes profile and watchlist recap sections the model
// sometimes appends. A section runs until the next heading or capitalised
// paragraph.
func StripArtifacts(text string, allowProfile bool) string {
	if text == "" {
		return text
	}
	if !allowProfile {
		blocks := strings.Split(text, "\n\n")
		kept := make([]string, 0, len(blocks))
		skipping := false
		for _, block := range blocks {
			trimmed := strings.TrimSpace(block)
			if artifactHeading.MatchString(trimmed) {
				skipping = true
				continue
			}
			if skipping && (strings.HasPrefix(trimmed, "###") || startsUpper(trimmed)) {
				skipping = false
			}
			if !skipping {
				kept = append(kept, block)
			}
		}
		text = strings.Join(kept, "\n\n")
	}
	return strings.TrimSpace(extraBlankLines.ReplaceAllString(text, "\n\n"))
}

func startsUpper(s string) bool {
	return s != "" && s[0] >= 'A' && s[0] <= 'Z'
}

func (s *MentorService) generate(ctx context.Context, user Requester, req ChatRequest, mode string, history []entity.ChatTurn, mctx *Context) string {
	modelHistory := make([]entity.ChatTurn, len(history))
	for i, turn := range history {
		modelHistory[i] = turn
		if turn.Role != entity.MentorRoleAssistant {
			continue
		}
		askedProfile := i > 0 && history[i-1].Role == entity.MentorRoleUser && profileKeywords.MatchString(history[i-1].Content)
		modelHistory[i].Content = StripArtifacts(turn.Content, askedProfile)
	}

	answer := ""
	if s.model != nil && s.model.Enabled() {
		maxTokens := defaultModeTokens
		if mode == entity.MentorModeMax {
			maxTokens = maxModeTokens
		}

		wantsWebSearch := req.WebSearchEnabled && !isGreeting(req.Message) &&
			(mctx.symbol != "" || mctx.Coin != nil || specificQuery.MatchString(req.Message))

		messages := make([]entity.ChatTurn, 0, len(modelHistory)+2)
		messages = append(messages, entity.ChatTurn{Role: entity.MentorRoleSystem, Content: systemPrompt(user, req, mode, mctx, wantsWebSearch)})
		messages = append(messages, modelHistory...)
		messages = append(messages, entity.ChatTurn{Role: entity.MentorRoleUser, Content: req.Message})

		model := s.model.ModelFor(mode)
		text, err := s.model.Chat(ctx, model, messages, maxTokens)
		if err != nil {
			logrus.WithFields(logrus.Fields{"userID": user.ID, "model": model}).Errorf("mentor completion: %v", err)
		}
		answer = StripArtifacts(strings.TrimSpace(text), profileKeywords.MatchString(req.Message))
	}

	if answer == "" && repeatRequest.MatchString(req.Message) {
		for i := len(modelHistory) - 1; i >= 0; i-- {
			if modelHistory[i].Role == entity.MentorRoleAssistant && modelHistory[i].Content != "" {
				answer = modelHistory[i].Content + "\n\n_(Replaying the previous insight as requested.)_"
				break
			}
		}
	}

	if answer == "" {
		name := user.Username
		if name == "" {
			name = "there"
		}
		if isGreeting(req.Message) {
			answer = fmt.Sprintf("Hey **%s**! How can I help you today?", name)
		} else {
			answer = fmt.Sprintf("Hey **%s**. I'm temporarily unavailable. Please try again in a moment or toggle web search for real-time insights.", name)
		}
	}
	return answer
}

func systemPrompt(user Requester, req ChatRequest, mode string, mctx *Context, webSearch bool) string {
	name := user.Username
	if name == "" {
		name = "there"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "You are %s's trading mentor AI.\n\n", name)
	b.WriteString("Core guidelines:\n")
	b.WriteString("- Answer the user's exact question directly and completely\n")
	b.WriteString("- Be conversational, confident, and helpful\n")
	b.WriteString("- Provide trading opinions and analysis\n")
	b.WriteString("- When asked about the market, give actual market analysis and news, not just stats\n")
	b.WriteString("- When asked for links/articles, provide relevant sources with a ### Sources section\n")
	if webSearch {
		b.WriteString("- WEB SEARCH IS ENABLED: provide current news, articles, and fresh insights. Include a ### Sources section with the URLs you reference.\n")
	}
	b.WriteString("- Only mention watchlist/signals/profile if the user specifically asks\n")
	b.WriteString("- Never dump context blocks unless requested\n\n")

	b.WriteString("User context (use for personalization, don't list):\n")
	fmt.Fprintf(&b, "- Plan: %s\n", mctx.User.Plan)
	fmt.Fprintf(&b, "- Watchlist: %d symbols", len(mctx.Watchlist))
	if len(mctx.Watchlist) > 0 {
		fmt.Fprintf(&b, " (%s)", strings.Join(mctx.Watchlist[:min(3, len(mctx.Watchlist))], ", "))
	}
	b.WriteString("\n")
	if coin := mctx.Coin; coin != nil {
		price := "N/A"
		if coin.Price != nil {
			price = "$" + strconv.FormatFloat(*coin.Price, 'f', -1, 64)
		}
		fmt.Fprintf(&b, "- Viewing: %s at %s\n", coin.Symbol, price)
	}
	if len(mctx.Portfolio) > 0 {
		parts := make([]string, 0, 3)
		for _, p := range mctx.Portfolio[:min(3, len(mctx.Portfolio))] {
			if p.Quantity != nil {
				parts = append(parts, p.Symbol+" "+strconv.FormatFloat(*p.Quantity, 'f', -1, 64))
			} else {
				parts = append(parts, p.Symbol)
			}
		}
		fmt.Fprintf(&b, "- Portfolio: %d positions (%s)\n", len(mctx.Portfolio), strings.Join(parts, ", "))
	}

	b.WriteString("\nResponse format:\n")
	if mode == entity.MentorModeMax {
		b.WriteString("- Max mode: Provide deeper analysis with clear sections and bullet points\n")
	} else {
		b.WriteString("- Default mode: Be concise but complete\n")
	}
	b.WriteString("- Use markdown for clarity\n")
	b.WriteString("- Add a ### Sources section when you reference external material or when web search is used\n")
	b.WriteString("- Keep it natural and flowing, not template-like\n")

	if companyQuestion.MatchString(req.Message) {
		b.WriteString("\nIf asked about JOAT: mention the AI Mentor and suggest visiting the dashboard.\n")
	}
	if webSearch {
		b.WriteString("\nThe user has enabled web search. Cover recent market news, latest price movements, breaking crypto news and current sentiment. ")
		b.WriteString("End with a ### Sources section using markdown links such as [Site Name](URL).\n")
	}
	return b.String()
}

// deriveSources lists references only for informational answers about an
// explicit coin, or when the answer carries its own sources section.
func (s *MentorService) deriveSources(req ChatRequest, answer string, mctx *Context) []Source {
	sources := []Source{}
	if answer == "" || isGreeting(req.Message) {
		return sources
	}

	lowerMessage := strings.ToLower(req.Message)
	informational := false
	for _, kw := range informationalMsg {
		if strings.Contains(lowerMessage, kw) {
			informational = true
			break
		}
	}
	webSearchUsed := req.WebSearchEnabled && sourcesHeading.MatchString(strings.ToLower(answer))
	explicitCoin := mctx.symbol != ""

	if !webSearchUsed && !(explicitCoin && informational) {
		return sources
	}

	seen := map[string]bool{}
	add := func(raw, label string) {
		u, err := url.Parse(raw)
		if err != nil || u.Hostname() == "" {
			return
		}
		domain := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
		if s.internalHosts[domain] {
			return
		}
		key := domain + u.Path
		if seen[key] {
			return
		}
		seen[key] = true
		if label == "" {
			label = domain
		}
		sources = append(sources, Source{Label: label, URL: u.String(), Domain: domain})
	}

	if coin := mctx.Coin; coin != nil {
		if coin.Homepage != nil {
			add(*coin.Homepage, coin.Symbol+" site")
		}
		if coin.Forum != nil {
			add(*coin.Forum, coin.Symbol+" forum")
		}
		if coin.ID != "" {
			add("https://www.coingecko.com/en/coins/"+coin.ID, "coingecko.com")
			add("https://coinmarketcap.com/currencies/"+coin.ID, "coinmarketcap.com")
		}
	}
	if webSearchUsed {
		for _, link := range linkPattern.FindAllString(answer, -1) {
			add(strings.TrimRight(link, ".,;:"), "")
		}
	}
	return sources
}
