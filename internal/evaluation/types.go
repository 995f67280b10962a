package evaluation

import "encoding/json"

// Evaluation is a completed checklist as returned by the evaluation platform
type Evaluation struct {
	ID        int64     `json:"id"`
	Checklist Checklist `json:"checklist"`
	User      User      `json:"user"`
	Unit      Unit      `json:"unit"`
	Fields    []Field   `json:"fields"`
}

type Checklist struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type User struct {
	Name string `json:"name"`
}

type Unit struct {
	Name string `json:"name"`
}

// Field is one answered checklist item. Value is kept raw so numbers keep
// their literal text until the extraction step parses them.
type Field struct {
	Label       string          `json:"label"`
	Value       json.RawMessage `json:"value,omitempty"`
	Attachments []Attachment    `json:"attachments,omitempty"`
}

type Attachment struct {
	URL string `json:"url"`
}
