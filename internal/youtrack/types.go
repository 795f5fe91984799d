package youtrack

// YouTrack wire types. The REST API wraps every entity in a `$type`
// envelope, so these map one-to-one onto request/response JSON.

type Task struct {
	ID           string        `json:"id"`
	IDReadable   string        `json:"idReadable"`
	Summary      string        `json:"summary"`
	Description  string        `json:"description"`
	Created      int64         `json:"created"`
	Updated      int64         `json:"updated"`
	Resolved     *int64        `json:"resolved"`
	CustomFields []CustomField `json:"customFields,omitempty"`
	Comments     []Comment     `json:"comments,omitempty"`
}

type Comment struct {
	ID      string `json:"id"`
	Text    string `json:"text"`
	Created int64  `json:"created"`
	Updated int64  `json:"updated"`
	Author  Author `json:"author"`
}

type Author struct {
	Login    string `json:"login"`
	FullName string `json:"fullName"`
}

type CustomField struct {
	Type  string      `json:"$type"`
	Name  string      `json:"name,omitempty"`
	Value *FieldValue `json:"value,omitempty"`
}

type FieldValue struct {
	Name string `json:"name,omitempty"`
	ID   string `json:"id,omitempty"`
}

type ProjectRef struct {
	ID   string `json:"id"`
	Type string `json:"$type"`
}

// TaskCreate is the payload for creating a task. Project is filled in
// by the client once the project id has been resolved.
type TaskCreate struct {
	Type         string        `json:"$type"`
	Project      ProjectRef    `json:"project"`
	Summary      string        `json:"summary"`
	Description  string        `json:"description"`
	CustomFields []CustomField `json:"customFields,omitempty"`
}

// TaskUpdate is the payload for updating an existing task.
type TaskUpdate struct {
	Type         string        `json:"$type"`
	Summary      string        `json:"summary,omitempty"`
	Description  string        `json:"description,omitempty"`
	CustomFields []CustomField `json:"customFields,omitempty"`
}
