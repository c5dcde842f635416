package intent

import (
	"fmt"
	"strings"

	"little-giant/internal/domain"
)

// buildClassificationMessages is the two-message conversation sent to the
// model for one user turn.
func buildClassificationMessages(userMessage string) []domain.ChatMessage {
	return []domain.ChatMessage{
		{Role: domain.RoleSystem, Content: classificationPrompt},
		{Role: domain.RoleUser, Content: userMessage},
	}
}

var classificationPrompt = buildClassificationPrompt()

func buildClassificationPrompt() string {
	return strings.Join([]string{
		"Role:",
		"You classify what a browser user wants to do with their current tab.",
		"",
		"Actions:",
		actionTaxonomy(),
		"",
		"Known Sites:",
		strings.Join(siteTableLines(), "\n"),
		"Any other single-word site name maps to https://<name>.com.",
		"A bare domain such as example.org maps to https://example.org.",
		"",
		"Search URLs:",
		searchTemplateLines(),
		"Replace {query} with the URL-encoded search terms.",
		"",
		"Rules:",
		classificationRules(),
		"",
		"Output Contract:",
		outputContract(),
		"",
		"Examples:",
		workedExamples(),
	}, "\n")
}

func actionTaxonomy() string {
	return strings.Join([]string{
		"- navigate: open a website. url is required.",
		"- websearch: search the web. url is required.",
		"- images: search for images. url is required.",
		"- videos: search for videos. url is required.",
		"- click: click an element on the current page. target describes the element.",
		"- type: type text into a field. target describes the field, value is the text.",
		"- search: use the current page's own search box. target describes the box, value is the query.",
		"- scroll: scroll the page. value is top, bottom, up, down, or the text to scroll to.",
		"- chat: anything else, including questions, greetings and conversation.",
	}, "\n")
}

func searchTemplateLines() string {
	return strings.Join([]string{
		fmt.Sprintf("- websearch -> %s", strings.Replace(searchTemplates[domain.ActionWebSearch], "%s", "{query}", 1)),
		fmt.Sprintf("- images -> %s", strings.Replace(searchTemplates[domain.ActionImages], "%s", "{query}", 1)),
		fmt.Sprintf("- videos -> %s", strings.Replace(searchTemplates[domain.ActionVideos], "%s", "{query}", 1)),
	}, "\n")
}

func classificationRules() string {
	return strings.Join([]string{
		"1) Classify only the current user message.",
		"2) \"click X\" is click with target X.",
		"3) \"type Y into Z\" is type with target Z and value Y.",
		"4) \"search for Y\" on the current site is search with value Y; \"google Y\" is websearch.",
		"5) \"scroll to W\", \"scroll up\", \"go to the bottom\" are scroll with value W, up, bottom.",
		"6) Greetings, questions about who you are, and questions about what you can do are always chat.",
		"7) Never invent a website the user did not name.",
		"8) Do not use curly braces inside any value.",
	}, "\n")
}

func outputContract() string {
	return "Return one JSON object only, with no code fences and no explanation, with exactly the keys " +
		"action, url, target, value and reasoning. Use null for any key that does not apply."
}

func workedExamples() string {
	return strings.Join([]string{
		`"open amazon" -> {"action":"navigate","url":"https://amazon.in","target":null,"value":null,"reasoning":"user wants to open Amazon"}`,
		`"go to example.org" -> {"action":"navigate","url":"https://example.org","target":null,"value":null,"reasoning":"bare domain"}`,
		`"google golang generics" -> {"action":"websearch","url":"https://www.google.com/search?q=golang+generics","target":null,"value":"golang generics","reasoning":"web search"}`,
		`"show me pictures of red pandas" -> {"action":"images","url":"https://www.google.com/search?tbm=isch&q=red+pandas","target":null,"value":"red pandas","reasoning":"image search"}`,
		`"find videos about sourdough" -> {"action":"videos","url":"https://www.youtube.com/results?search_query=sourdough","target":null,"value":"sourdough","reasoning":"video search"}`,
		`"click the sign in button" -> {"action":"click","url":null,"target":"sign in","value":null,"reasoning":"click an element"}`,
		`"type hello into the message box" -> {"action":"type","url":null,"target":"message box","value":"hello","reasoning":"fill a field"}`,
		`"search for wireless mouse" -> {"action":"search","url":null,"target":"search","value":"wireless mouse","reasoning":"site search"}`,
		`"scroll to the bottom" -> {"action":"scroll","url":null,"target":null,"value":"bottom","reasoning":"scroll"}`,
		`"hi, who are you?" -> {"action":"chat","url":null,"target":null,"value":null,"reasoning":"greeting"}`,
		`"what is the weather like on mars" -> {"action":"chat","url":null,"target":null,"value":null,"reasoning":"question"}`,
	}, "\n")
}
