package domain

import (
	"encoding/json"
	"strings"
)

// Action is the closed set of intent kinds the classifier may emit.
type Action string

const (
	ActionNavigate  Action = "navigate"
	ActionClick     Action = "click"
	ActionType      Action = "type"
	ActionSearch    Action = "search"
	ActionScroll    Action = "scroll"
	ActionChat      Action = "chat"
	ActionWebSearch Action = "websearch"
	ActionImages    Action = "images"
	ActionVideos    Action = "videos"
)

var knownActions = map[Action]struct{}{
	ActionNavigate:  {},
	ActionClick:     {},
	ActionType:      {},
	ActionSearch:    {},
	ActionScroll:    {},
	ActionChat:      {},
	ActionWebSearch: {},
	ActionImages:    {},
	ActionVideos:    {},
}

// ParseAction maps free text to an Action. Unrecognized values are chat.
func ParseAction(s string) Action {
	a := Action(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := knownActions[a]; !ok {
		return ActionChat
	}
	return a
}

// OpensURL reports whether the action is fulfilled by loading Intent.URL.
func (a Action) OpensURL() bool {
	switch a {
	case ActionNavigate, ActionWebSearch, ActionImages, ActionVideos:
		return true
	}
	return false
}

// IsPageAction reports whether the action runs against the live page.
func (a Action) IsPageAction() bool {
	switch a {
	case ActionClick, ActionType, ActionSearch, ActionScroll:
		return true
	}
	return false
}

// Intent is the classifier's output contract. Optional fields are pointers
// so that they serialize as explicit nulls.
type Intent struct {
	Action    Action  `json:"action"`
	URL       *string `json:"url"`
	Target    *string `json:"target"`
	Value     *string `json:"value"`
	Reasoning string  `json:"reasoning"`
}

// UnmarshalJSON accepts missing optional keys and maps unknown actions to chat.
func (i *Intent) UnmarshalJSON(data []byte) error {
	var raw struct {
		Action    string  `json:"action"`
		URL       *string `json:"url"`
		Target    *string `json:"target"`
		Value     *string `json:"value"`
		Reasoning string  `json:"reasoning"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*i = Intent{
		Action:    ParseAction(raw.Action),
		URL:       nonEmpty(raw.URL),
		Target:    nonEmpty(raw.Target),
		Value:     nonEmpty(raw.Value),
		Reasoning: raw.Reasoning,
	}
	return nil
}

// URLString returns the URL or "".
func (i Intent) URLString() string { return deref(i.URL) }

// TargetString returns the target or "".
func (i Intent) TargetString() string { return deref(i.Target) }

// ValueString returns the value or "".
func (i Intent) ValueString() string { return deref(i.Value) }

// ChatIntent returns a chat intent carrying only a reasoning string.
func ChatIntent(reasoning string) Intent {
	return Intent{Action: ActionChat, Reasoning: reasoning}
}

// StringPtr returns a pointer to s, or nil when s is blank.
func StringPtr(s string) *string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return &s
}

func nonEmpty(p *string) *string {
	if p == nil {
		return nil
	}
	return StringPtr(*p)
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
