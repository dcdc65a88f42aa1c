package ussd

import "strings"

// Request is one gateway callback. Text carries every token entered in the
// session so far joined with "*".
type Request struct {
	SessionID   string `json:"sessionId" form:"sessionId"`
	ServiceCode string `json:"serviceCode" form:"serviceCode"`
	PhoneNumber string `json:"phoneNumber" form:"phoneNumber"`
	Text        string `json:"text" form:"text"`
}

// Input is the parsed form of Request.Text.
type Input struct {
	Raw     string
	Prior   []string
	Current string
	// Depth is the number of tokens; zero for an empty text.
	Depth int
}

// ParseInput splits the accumulated text into tokens.
func ParseInput(text string) Input {
	if text == "" {
		return Input{}
	}
	tokens := strings.Split(text, "*")
	last := len(tokens) - 1
	return Input{
		Raw:     text,
		Prior:   tokens[:last],
		Current: strings.TrimSpace(tokens[last]),
		Depth:   len(tokens),
	}
}

// Empty reports whether no token has been entered.
func (in Input) Empty() bool { return in.Depth == 0 }
