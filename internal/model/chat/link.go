package chat

// Link is an in-app navigation reference. Links produced by the validator always
// resolve to an existing catalog entity; links straight from the model do not.
type Link struct {
	Label string `json:"label"`
	URL   string `json:"url"`
}
